package eventstream

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"
	"golang.org/x/exp/slices"
	"k8s.io/apimachinery/pkg/util/clock"

	"github.com/G-Research/taskboard/internal/taskboard/metrics"
	"github.com/G-Research/taskboard/internal/taskboard/model"
)

type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseConnecting Phase = "connecting"
	PhaseStreaming  Phase = "streaming"
	PhaseComplete   Phase = "complete"
	PhaseError      Phase = "error"
)

const (
	// DefaultMaxEvents caps the retained record count per source. Oldest
	// records are evicted first once exceeded; for an in-progress workload
	// older history matters less than recent activity.
	DefaultMaxEvents = 50000
	// DefaultFlushInterval is the display refresh interval at which pending
	// records are flushed downstream.
	DefaultFlushInterval = 100 * time.Millisecond

	recordDelimiter = '\n'
	readChunkSize   = 4096
)

var (
	recordsReceivedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: metrics.TaskboardMetricsPrefix + "stream_records_received_total",
			Help: "Number of event records received from the feed",
		}, []string{"url"})
	recordsEvictedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: metrics.TaskboardMetricsPrefix + "stream_records_evicted_total",
			Help: "Number of event records evicted by the retained record cap",
		}, []string{"url"})
	flushCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: metrics.TaskboardMetricsPrefix + "stream_flushes_total",
			Help: "Number of coalesced flushes delivered downstream",
		}, []string{"url"})
	transportErrorCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: metrics.TaskboardMetricsPrefix + "stream_transport_errors_total",
			Help: "Number of reads that ended with a transport error",
		}, []string{"url"})
)

// Parser turns a chunk of complete records into zero or more event records.
// It is an external collaborator: it must consume each chunk exactly once
// and must not assume ordering across chunks. Returning zero records for a
// chunk is not an error.
type Parser interface {
	ParseChunk(text string) []*model.EventRecord
}

// FlushCallback receives the full accumulated record set, as a copy, after
// each coalesced flush.
type FlushCallback func(accumulated []*model.EventRecord)

type SourceConfig struct {
	MaxEvents     int
	FlushInterval time.Duration
	Client        *http.Client
}

// Source owns one long-lived HTTP read loop for a single feed URL. Bytes
// are decoded incrementally: each chunk is split at its last record
// delimiter, the complete prefix is handed to the parser and the remainder
// carried into the next read. Parsed records are coalesced into flushes at
// most once per flush interval, and the retained record set is capped at
// MaxEvents.
//
// Each Open gets a fresh generation token. Only the most recently opened
// generation may mutate source state; results arriving from a superseded
// read loop are discarded, which makes Close/Restart race-free without any
// cooperation from the transport.
type Source struct {
	url           string
	parser        Parser
	onFlush       FlushCallback
	client        *http.Client
	maxEvents     int
	flushInterval time.Duration
	clock         clock.Clock

	mu          sync.Mutex
	phase       Phase
	cause       error
	activeToken uuid.UUID
	cancel      context.CancelFunc
	accumulated []*model.EventRecord
}

func NewSource(url string, parser Parser, onFlush FlushCallback, config SourceConfig) *Source {
	if config.MaxEvents <= 0 {
		config.MaxEvents = DefaultMaxEvents
	}
	if config.FlushInterval <= 0 {
		config.FlushInterval = DefaultFlushInterval
	}
	if config.Client == nil {
		config.Client = http.DefaultClient
	}
	return &Source{
		url:           url,
		parser:        parser,
		onFlush:       onFlush,
		client:        config.Client,
		maxEvents:     config.MaxEvents,
		flushInterval: config.FlushInterval,
		clock:         clock.RealClock{},
	}
}

// Open starts a new read loop for the source URL, superseding any read loop
// started by a previous Open.
func (s *Source) Open(ctx context.Context) {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	token := uuid.New()
	readCtx, cancel := context.WithCancel(ctx)
	s.activeToken = token
	s.cancel = cancel
	s.phase = PhaseConnecting
	s.cause = nil
	s.mu.Unlock()

	go s.run(readCtx, token)
}

// Close stops the active read loop. The source settles to idle and any
// in-flight partial record is discarded silently.
func (s *Source) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.activeToken = uuid.Nil
	s.phase = PhaseIdle
	s.cause = nil
}

// Restart discards all accumulated state and re-opens the source from
// scratch. Used after a transport error; the retry policy belongs to the
// caller.
func (s *Source) Restart(ctx context.Context) {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.activeToken = uuid.Nil
	s.accumulated = nil
	s.mu.Unlock()

	s.Open(ctx)
}

// Phase returns the current stream phase, with the cause when the phase is
// error.
func (s *Source) Phase() (Phase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == "" {
		return PhaseIdle, nil
	}
	return s.phase, s.cause
}

// Snapshot returns a copy of the accumulated record set.
func (s *Source) Snapshot() []*model.EventRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.accumulated)
}

func (s *Source) run(ctx context.Context, token uuid.UUID) {
	recordCh := make(chan *model.EventRecord, readChunkSize)
	batcher := NewBatcher(recordCh, s.maxEvents, s.flushInterval, func(batch []*model.EventRecord) {
		s.ingest(token, batch)
	})
	batcher.clock = s.clock
	batcherDone := make(chan struct{})
	go func() {
		defer close(batcherDone)
		batcher.Run(ctx)
	}()

	err := s.read(ctx, token, recordCh)
	close(recordCh)
	<-batcherDone

	if ctx.Err() != nil {
		// Cancellation is not an error. Close and Restart settle the
		// source themselves; this only covers a cancelled parent context.
		s.settle(token, PhaseIdle, nil)
		return
	}
	if err != nil {
		transportErrorCounter.WithLabelValues(s.url).Inc()
		log.WithField("url", s.url).WithError(err).Warn("event stream ended with error")
		s.settle(token, PhaseError, err)
		return
	}
	s.settle(token, PhaseComplete, nil)
}

func (s *Source) read(ctx context.Context, token uuid.UUID, recordCh chan<- *model.EventRecord) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return errors.WithStack(err)
	}
	req.Header.Set("Accept", "text/plain")

	resp, err := s.client.Do(req)
	if err != nil {
		return errors.WithStack(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errors.Errorf("unexpected status %d from %s", resp.StatusCode, s.url)
	}

	s.settle(token, PhaseStreaming, nil)

	buf := make([]byte, readChunkSize)
	remainder := ""
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			remainder += string(buf[:n])
			if i := strings.LastIndexByte(remainder, recordDelimiter); i >= 0 {
				complete := remainder[:i+1]
				remainder = remainder[i+1:]
				if !s.forward(ctx, recordCh, complete) {
					return nil
				}
			}
		}
		if err == io.EOF {
			// Normal termination: the workload finished and the server
			// replayed its full history. Flush the remainder once.
			if remainder != "" {
				s.forward(ctx, recordCh, remainder)
			}
			return nil
		}
		if err != nil {
			return errors.WithStack(err)
		}
	}
}

func (s *Source) forward(ctx context.Context, recordCh chan<- *model.EventRecord, chunk string) bool {
	records := s.parser.ParseChunk(chunk)
	if len(records) > 0 {
		recordsReceivedCounter.WithLabelValues(s.url).Add(float64(len(records)))
	}
	for _, record := range records {
		select {
		case <-ctx.Done():
			return false
		case recordCh <- record:
		}
	}
	return true
}

// ingest appends a flushed batch to the accumulated set, applies the
// retained record cap and delivers a snapshot downstream. Batches from a
// superseded generation are dropped here.
func (s *Source) ingest(token uuid.UUID, batch []*model.EventRecord) {
	s.mu.Lock()
	if token != s.activeToken {
		s.mu.Unlock()
		return
	}
	if len(batch) > s.maxEvents {
		batch = batch[len(batch)-s.maxEvents:]
	}
	s.accumulated = append(s.accumulated, batch...)
	if evicted := len(s.accumulated) - s.maxEvents; evicted > 0 {
		s.accumulated = s.accumulated[evicted:]
		recordsEvictedCounter.WithLabelValues(s.url).Add(float64(evicted))
	}
	snapshot := slices.Clone(s.accumulated)
	s.mu.Unlock()

	flushCounter.WithLabelValues(s.url).Inc()
	if s.onFlush != nil {
		s.onFlush(snapshot)
	}
}

func (s *Source) settle(token uuid.UUID, phase Phase, cause error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if token != s.activeToken {
		return
	}
	s.phase = phase
	s.cause = cause
}
