package model

import (
	"time"
)

// Stage is the coarse lifecycle bucket a reason code belongs to.
// It is assigned once, when the record is parsed, and never mutated.
type Stage string

const (
	StageScheduling Stage = "scheduling"
	StageImage      Stage = "image"
	StageContainer  Stage = "container"
	StageRuntime    Stage = "runtime"
	StageFailure    Stage = "failure"
	StageCompletion Stage = "completion"
)

type Severity string

const (
	SeverityInfo  Severity = "info"
	SeverityWarn  Severity = "warn"
	SeverityError Severity = "error"
)

// Progress indices derived from event evidence. ProgressNone means no
// informative record has been seen for the entity.
const (
	ProgressNone           = -1
	ProgressSchedulingDone = 0
	ProgressInitDone       = 1
	ProgressRunning        = 2
	ProgressDone           = 3
)

// EventRecord is one observation from the orchestrator, as produced by the
// feed parser. Timestamps are source-reported and not arrival-ordered.
type EventRecord struct {
	EntityId  string
	TaskName  string
	RetryId   int
	Timestamp time.Time
	Reason    string
	Severity  Severity
	Stage     Stage
}

type Lifecycle string

const (
	LifecyclePending Lifecycle = "Pending"
	LifecycleInit    Lifecycle = "Init"
	LifecycleRunning Lifecycle = "Running"
	LifecycleDone    Lifecycle = "Done"
	LifecycleFailed  Lifecycle = "Failed"
)

// PodPhase is the canonical external-facing phase, matching the
// orchestrator's own vocabulary.
type PodPhase string

const (
	PodPending   PodPhase = "Pending"
	PodRunning   PodPhase = "Running"
	PodSucceeded PodPhase = "Succeeded"
	PodFailed    PodPhase = "Failed"
	PodUnknown   PodPhase = "Unknown"
)

// DerivedState is the output of lifecycle derivation for one task group.
// FurthestProgressIndex never decreases as more records accumulate for the
// same entity; ObservedStageIndices may contain gaps when intermediate
// events were dropped or never emitted.
type DerivedState struct {
	FurthestProgressIndex int
	ObservedStageIndices  map[int]bool
	Lifecycle             Lifecycle
	PodPhase              PodPhase
}

// TaskGroup aggregates all records sharing one entity id. Records are sorted
// ascending by timestamp (stable, ties broken by arrival order) and Derived
// is computed once at construction. Groups are rebuilt, never patched.
type TaskGroup struct {
	Id      string
	Name    string
	RetryId int
	Records []*EventRecord
	Derived DerivedState
}

// ExternalStatus is the backend database's status vocabulary. It evolves
// independently of the event stream vocabulary, so it is kept as a closed
// enum and reconciled explicitly.
type ExternalStatus string

const (
	ExternalWaiting      ExternalStatus = "WAITING"
	ExternalScheduling   ExternalStatus = "SCHEDULING"
	ExternalInitializing ExternalStatus = "INITIALIZING"
	ExternalProcessing   ExternalStatus = "PROCESSING"
	ExternalRunning      ExternalStatus = "RUNNING"
	ExternalSucceeded    ExternalStatus = "SUCCEEDED"
	ExternalFailed       ExternalStatus = "FAILED"
)

var AllExternalStatuses = []ExternalStatus{
	ExternalWaiting,
	ExternalScheduling,
	ExternalInitializing,
	ExternalProcessing,
	ExternalRunning,
	ExternalSucceeded,
	ExternalFailed,
}

// ReconciledLabel is the final per-entity output shown to a caller.
// ProgressIndex is always the event-derived furthest index; only Label is
// subject to reconciliation with the external status.
type ReconciledLabel struct {
	ProgressIndex int
	Label         string
}

const (
	LabelScheduling = "Scheduling"
	LabelPending    = "Pending"
	LabelInit       = "Init"
	LabelRunning    = "Running"
	LabelFailed     = "Failed"
	LabelDone       = "Done"
)
