package status

import (
	"context"

	"github.com/G-Research/taskboard/internal/taskboard/model"
)

// Source provides the independently-sourced backend status for an entity.
// It is polled separately from the event feed and treated as a hint during
// reconciliation, never as authoritative over a directly-observed failure.
type Source interface {
	// Lookup returns the backend status for an entity, with found false
	// when the backend has no row for it.
	Lookup(ctx context.Context, entityId string) (model.ExternalStatus, bool, error)
}
