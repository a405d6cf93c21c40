package lifecycle

import (
	"github.com/G-Research/taskboard/internal/taskboard/model"
)

// Derive computes the lifecycle state for one entity from its time-ordered
// records. It is total: every record sequence, including the empty one, maps
// to a well-defined state, so callers never need a failure branch.
//
// The furthest progress index is a watermark: records can only raise it,
// never lower it, which keeps derived progress monotonic when records arrive
// out of timestamp order or repeat earlier stages. Failure records are
// invisible to the watermark and the observed set; they only decide whether
// the lifecycle label is Failed.
func Derive(records []*model.EventRecord) model.DerivedState {
	furthest := model.ProgressNone
	observed := map[int]bool{}

	for _, record := range records {
		if i, ok := observedIndex(record); ok {
			observed[i] = true
		}
		if i := advanceIndex(record); i > furthest {
			furthest = i
		}
	}

	failed := len(records) > 0 && records[len(records)-1].Stage == model.StageFailure

	return model.DerivedState{
		FurthestProgressIndex: furthest,
		ObservedStageIndices:  observed,
		Lifecycle:             deriveLifecycle(furthest, failed),
		PodPhase:              derivePodPhase(furthest, failed, len(observed) > 0),
	}
}

func deriveLifecycle(furthest int, failed bool) model.Lifecycle {
	if failed {
		return model.LifecycleFailed
	}
	switch furthest {
	case model.ProgressInitDone:
		return model.LifecycleInit
	case model.ProgressRunning:
		return model.LifecycleRunning
	case model.ProgressDone:
		return model.LifecycleDone
	default:
		return model.LifecyclePending
	}
}

func derivePodPhase(furthest int, failed bool, anyObserved bool) model.PodPhase {
	if failed {
		return model.PodFailed
	}
	switch {
	case furthest == model.ProgressDone:
		return model.PodSucceeded
	case furthest == model.ProgressInitDone || furthest == model.ProgressRunning:
		return model.PodRunning
	case anyObserved:
		return model.PodPending
	default:
		return model.PodUnknown
	}
}
