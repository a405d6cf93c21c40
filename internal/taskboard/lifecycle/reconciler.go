package lifecycle

import (
	"github.com/G-Research/taskboard/internal/taskboard/model"
)

// Reconcile combines event-derived state with the backend database's status
// for the same entity. The two are updated via different paths with
// different latencies, so they can disagree transiently; the rules below
// pick a label that does not flicker between renders.
//
// The progress index is always the event-derived watermark. Only the label
// is ever dampened by backend lag: a progress bar jumping forward and
// snapping back is worse than a label briefly under-stating status.
func Reconcile(derived model.DerivedState, external *model.ExternalStatus) model.ReconciledLabel {
	index := derived.FurthestProgressIndex

	// A container observed to fail is authoritative; the backend cannot
	// unsay it.
	if derived.Lifecycle == model.LifecycleFailed {
		return model.ReconciledLabel{ProgressIndex: index, Label: model.LabelFailed}
	}

	if external == nil {
		return model.ReconciledLabel{ProgressIndex: index, Label: labelForLifecycle(derived.Lifecycle)}
	}

	if index == model.ProgressRunning && lagsBehindRunning(*external) {
		// Events raced ahead of the database. Prefer the conservative
		// label until the backend confirms, so the caller never sees
		// Running revert.
		return model.ReconciledLabel{ProgressIndex: index, Label: labelForExternal(*external)}
	}

	if *external == model.ExternalFailed {
		return model.ReconciledLabel{ProgressIndex: index, Label: model.LabelFailed}
	}

	return model.ReconciledLabel{ProgressIndex: index, Label: labelForLifecycle(derived.Lifecycle)}
}

// lagsBehindRunning reports whether a backend status is earlier than what
// container-start evidence implies.
func lagsBehindRunning(status model.ExternalStatus) bool {
	switch status {
	case model.ExternalWaiting, model.ExternalScheduling, model.ExternalInitializing, model.ExternalProcessing:
		return true
	case model.ExternalRunning, model.ExternalSucceeded, model.ExternalFailed:
		return false
	}
	return false
}

func labelForLifecycle(lifecycle model.Lifecycle) string {
	switch lifecycle {
	case model.LifecycleInit:
		return model.LabelInit
	case model.LifecycleRunning:
		return model.LabelRunning
	case model.LifecycleDone:
		return model.LabelDone
	case model.LifecycleFailed:
		return model.LabelFailed
	default:
		return model.LabelPending
	}
}

func labelForExternal(status model.ExternalStatus) string {
	switch status {
	case model.ExternalWaiting:
		return model.LabelPending
	case model.ExternalScheduling:
		return model.LabelScheduling
	case model.ExternalInitializing, model.ExternalProcessing:
		return model.LabelInit
	case model.ExternalRunning:
		return model.LabelRunning
	case model.ExternalSucceeded:
		return model.LabelDone
	case model.ExternalFailed:
		return model.LabelFailed
	}
	return model.LabelPending
}
