package taskboard

import (
	"context"
	"sync"
	"time"

	"github.com/avast/retry-go"
	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"
	"golang.org/x/exp/slices"

	"github.com/G-Research/taskboard/internal/taskboard/configuration"
	"github.com/G-Research/taskboard/internal/taskboard/eventstream"
	"github.com/G-Research/taskboard/internal/taskboard/grouping"
	"github.com/G-Research/taskboard/internal/taskboard/lifecycle"
	"github.com/G-Research/taskboard/internal/taskboard/model"
	"github.com/G-Research/taskboard/internal/taskboard/status"
)

const (
	defaultRestartAttempts = 5
	defaultRestartDelay    = 2 * time.Second
	phasePollInterval      = time.Second
	statusLookupTimeout    = 5 * time.Second
)

// TaskEntry is the read-only per-entity view handed to the rendering layer.
// Consumers must treat it as snapshot data, re-fetched on each update.
type TaskEntry struct {
	Id         string
	Name       string
	RetryId    int
	Derived    model.DerivedState
	Reconciled model.ReconciledLabel
}

// Application owns the ingestion pipeline for one feed URL: it opens the
// stream source, recomputes the grouped, derived and reconciled snapshot on
// every coalesced flush, and restarts the source with bounded backoff when
// the stream fails. Retry policy lives here, not in the source.
type Application struct {
	config   configuration.StreamConfig
	source   *eventstream.Source
	statuses status.Source

	mu       sync.Mutex
	snapshot []*TaskEntry
	closers  []func() error
}

func NewApplication(config configuration.StreamConfig, parser eventstream.Parser, statuses status.Source) *Application {
	app := &Application{
		config:   config,
		statuses: statuses,
	}
	app.source = eventstream.NewSource(config.Url, parser, app.recompute, eventstream.SourceConfig{
		MaxEvents:     config.MaxEvents,
		FlushInterval: config.FlushInterval,
	})
	return app
}

// RegisterCloser adds a cleanup function invoked on Stop, e.g. closing the
// status database pool.
func (a *Application) RegisterCloser(closer func() error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closers = append(a.closers, closer)
}

// Start opens the source and supervises it until ctx is cancelled.
func (a *Application) Start(ctx context.Context) {
	a.source.Open(ctx)
	go a.supervise(ctx)
}

// Stop closes the source and runs registered cleanups, aggregating any
// errors encountered.
func (a *Application) Stop() error {
	a.source.Close()

	a.mu.Lock()
	closers := a.closers
	a.mu.Unlock()

	var result *multierror.Error
	for _, closer := range closers {
		result = multierror.Append(result, closer())
	}
	return result.ErrorOrNil()
}

// Snapshot returns the latest reconciled view, one entry per task group.
func (a *Application) Snapshot() []*TaskEntry {
	a.mu.Lock()
	defer a.mu.Unlock()
	return slices.Clone(a.snapshot)
}

// Phase reports the underlying stream phase and cause.
func (a *Application) Phase() (eventstream.Phase, error) {
	return a.source.Phase()
}

func (a *Application) supervise(ctx context.Context) {
	ticker := time.NewTicker(phasePollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			phase, cause := a.source.Phase()
			if phase != eventstream.PhaseError {
				continue
			}
			log.WithField("url", a.config.Url).WithError(cause).Warn("event stream failed, restarting")
			if err := a.restart(ctx); err != nil {
				log.WithField("url", a.config.Url).WithError(err).Error("giving up restarting event stream")
				return
			}
		}
	}
}

func (a *Application) restart(ctx context.Context) error {
	attempts := a.config.RestartAttempts
	if attempts == 0 {
		attempts = defaultRestartAttempts
	}
	delay := a.config.RestartDelay
	if delay <= 0 {
		delay = defaultRestartDelay
	}
	return retry.Do(
		func() error {
			if ctx.Err() != nil {
				return retry.Unrecoverable(ctx.Err())
			}
			a.source.Restart(ctx)
			return a.awaitStreaming(ctx)
		},
		retry.Attempts(attempts),
		retry.Delay(delay),
		retry.LastErrorOnly(true),
	)
}

func (a *Application) awaitStreaming(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return retry.Unrecoverable(ctx.Err())
		case <-time.After(phasePollInterval):
			switch phase, cause := a.source.Phase(); phase {
			case eventstream.PhaseStreaming, eventstream.PhaseComplete:
				return nil
			case eventstream.PhaseError:
				return cause
			}
		}
	}
}

// recompute rebuilds the snapshot from the full accumulated record set.
// Derivation is pure and cheap relative to I/O, so it simply runs on every
// flush.
func (a *Application) recompute(records []*model.EventRecord) {
	groups := grouping.Group(records)

	ctx, cancel := context.WithTimeout(context.Background(), statusLookupTimeout)
	defer cancel()

	entries := make([]*TaskEntry, 0, len(groups))
	for _, group := range groups {
		entries = append(entries, &TaskEntry{
			Id:         group.Id,
			Name:       group.Name,
			RetryId:    group.RetryId,
			Derived:    group.Derived,
			Reconciled: lifecycle.Reconcile(group.Derived, a.externalStatus(ctx, group.Id)),
		})
	}

	a.mu.Lock()
	a.snapshot = entries
	a.mu.Unlock()
}

func (a *Application) externalStatus(ctx context.Context, entityId string) *model.ExternalStatus {
	if a.statuses == nil {
		return nil
	}
	external, found, err := a.statuses.Lookup(ctx, entityId)
	if err != nil {
		// Reconciliation treats a failed lookup the same as an absent
		// status: the event-derived state stands on its own.
		log.WithField("entityId", entityId).WithError(err).Debug("backend status lookup failed")
		return nil
	}
	if !found {
		return nil
	}
	return &external
}
