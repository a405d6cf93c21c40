package lifecycle

import (
	"github.com/G-Research/taskboard/internal/taskboard/model"
)

const (
	scheduledReason        = "Scheduled"
	failedSchedulingReason = "FailedScheduling"
	preemptingReason       = "Preempting"
	notTriggerScaleUp      = "NotTriggerScaleUp"

	pullingReason         = "Pulling"
	pulledReason          = "Pulled"
	createdReason         = "Created"
	readyToStartReason    = "PodReadyToStartContainers"
	backOffReason         = "BackOff"
	errImagePullReason    = "ErrImagePull"
	imagePullBackOff      = "ImagePullBackOff"
	failedMountReason     = "FailedMount"
	startedReason         = "Started"
	readyReason           = "Ready"
	healthyReason         = "Healthy"
	unhealthyReason       = "Unhealthy"
	nodePressureReason    = "NodePressure"
	completedReason       = "Completed"
	oomKilledReason       = "OOMKilled"
	errorReason           = "Error"
	evictedReason         = "Evicted"
	deadlineExceeded      = "DeadlineExceeded"
	failedReason          = "Failed"
	killingReason         = "Killing"
	sandboxChangedReason  = "SandboxChanged"
	networkNotReadyReason = "NetworkNotReady"
)

type reasonClassification struct {
	stage model.Stage
	// Index furthest progress advances to when this reason is seen.
	// model.ProgressNone marks reasons that are evidence of activity within
	// a stage without signalling that the stage completed.
	advancesTo int
}

// classifications is the exhaustive reason code table. A reason advances
// progress only if it specifically signals stage completion; transient and
// retry reasons are observed but never move the watermark. Reasons absent
// from this table are treated as non-advancing.
var classifications = map[string]reasonClassification{
	scheduledReason:        {model.StageScheduling, model.ProgressInitDone},
	failedSchedulingReason: {model.StageScheduling, model.ProgressNone},
	preemptingReason:       {model.StageScheduling, model.ProgressNone},
	notTriggerScaleUp:      {model.StageScheduling, model.ProgressNone},

	pullingReason:      {model.StageImage, model.ProgressInitDone},
	pulledReason:       {model.StageImage, model.ProgressInitDone},
	createdReason:      {model.StageImage, model.ProgressInitDone},
	readyToStartReason: {model.StageImage, model.ProgressInitDone},
	backOffReason:      {model.StageImage, model.ProgressNone},
	errImagePullReason: {model.StageImage, model.ProgressNone},
	imagePullBackOff:   {model.StageImage, model.ProgressNone},
	failedMountReason:  {model.StageImage, model.ProgressNone},

	startedReason: {model.StageContainer, model.ProgressRunning},

	readyReason:        {model.StageRuntime, model.ProgressRunning},
	healthyReason:      {model.StageRuntime, model.ProgressRunning},
	unhealthyReason:    {model.StageRuntime, model.ProgressNone},
	nodePressureReason: {model.StageRuntime, model.ProgressNone},

	sandboxChangedReason:  {model.StageRuntime, model.ProgressNone},
	networkNotReadyReason: {model.StageRuntime, model.ProgressNone},

	completedReason: {model.StageCompletion, model.ProgressDone},

	oomKilledReason:  {model.StageFailure, model.ProgressNone},
	errorReason:      {model.StageFailure, model.ProgressNone},
	evictedReason:    {model.StageFailure, model.ProgressNone},
	deadlineExceeded: {model.StageFailure, model.ProgressNone},
	failedReason:     {model.StageFailure, model.ProgressNone},
	killingReason:    {model.StageFailure, model.ProgressNone},
}

// ClassifyReason returns the lifecycle stage for a reason code. Reasons not
// present in the table are classified as runtime activity, or failure when
// the event carries error severity, and never advance progress.
func ClassifyReason(reason string, severity model.Severity) model.Stage {
	if classification, ok := classifications[reason]; ok {
		return classification.stage
	}
	if severity == model.SeverityError {
		return model.StageFailure
	}
	return model.StageRuntime
}

// advanceIndex returns the progress index a record advances the watermark
// to, or model.ProgressNone if the record is informative only.
func advanceIndex(record *model.EventRecord) int {
	if classification, ok := classifications[record.Reason]; ok {
		return classification.advancesTo
	}
	return model.ProgressNone
}

// observedIndex returns the coarse stage index a record evidences, with ok
// false for failure records, which are tracked only for the lifecycle label.
func observedIndex(record *model.EventRecord) (int, bool) {
	switch record.Stage {
	case model.StageScheduling:
		return model.ProgressSchedulingDone, true
	case model.StageImage:
		return model.ProgressInitDone, true
	case model.StageContainer, model.StageRuntime:
		return model.ProgressRunning, true
	case model.StageCompletion:
		return model.ProgressDone, true
	default:
		return model.ProgressNone, false
	}
}
