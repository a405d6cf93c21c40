package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/G-Research/taskboard/internal/taskboard/model"
)

func TestParseChunk_ParsesCompleteRecords(t *testing.T) {
	chunk := "2024-05-01T12:00:00Z\tworker_0-1\tNormal\tScheduled\n" +
		"2024-05-01T12:00:05Z\tworker_0-1\tNormal\tStarted\n"

	records := NewLineParser().ParseChunk(chunk)

	assert.Len(t, records, 2)
	assert.Equal(t, "worker_0-1", records[0].EntityId)
	assert.Equal(t, "worker_0", records[0].TaskName)
	assert.Equal(t, 1, records[0].RetryId)
	assert.Equal(t, "Scheduled", records[0].Reason)
	assert.Equal(t, model.StageScheduling, records[0].Stage)
	assert.Equal(t, model.StageContainer, records[1].Stage)
	assert.True(t, records[0].Timestamp.Before(records[1].Timestamp))
}

func TestParseChunk_MapsEventTypesToSeverity(t *testing.T) {
	chunk := "2024-05-01T12:00:00Z\tworker_0\tNormal\tScheduled\n" +
		"2024-05-01T12:00:01Z\tworker_0\tWarning\tFailedScheduling\n" +
		"2024-05-01T12:00:02Z\tworker_0\tError\tOOMKilled\n"

	records := NewLineParser().ParseChunk(chunk)

	assert.Len(t, records, 3)
	assert.Equal(t, model.SeverityInfo, records[0].Severity)
	assert.Equal(t, model.SeverityWarn, records[1].Severity)
	assert.Equal(t, model.SeverityError, records[2].Severity)
	assert.Equal(t, model.StageFailure, records[2].Stage)
}

func TestParseChunk_DropsMalformedLines(t *testing.T) {
	chunk := "not a record\n" +
		"2024-05-01T12:00:00Z\tworker_0\tNormal\tScheduled\n" +
		"garbage\tfields\n" +
		"not-a-time\tworker_0\tNormal\tScheduled\n"

	records := NewLineParser().ParseChunk(chunk)

	assert.Len(t, records, 1)
	assert.Equal(t, "Scheduled", records[0].Reason)
}

func TestParseChunk_EmptyChunk_YieldsNoRecords(t *testing.T) {
	assert.Empty(t, NewLineParser().ParseChunk(""))
	assert.Empty(t, NewLineParser().ParseChunk("\n\n"))
}

func TestParseChunk_ToleratesCarriageReturns(t *testing.T) {
	records := NewLineParser().ParseChunk("2024-05-01T12:00:00Z\tworker_0\tNormal\tScheduled\r\n")

	assert.Len(t, records, 1)
}

func TestParseEntityId(t *testing.T) {
	name, retryId := ParseEntityId("worker_0-2")
	assert.Equal(t, "worker_0", name)
	assert.Equal(t, 2, retryId)

	name, retryId = ParseEntityId("worker_0")
	assert.Equal(t, "worker_0", name)
	assert.Equal(t, 0, retryId)

	name, retryId = ParseEntityId("job-abc")
	assert.Equal(t, "job-abc", name)
	assert.Equal(t, 0, retryId)

	name, retryId = ParseEntityId("trailing-")
	assert.Equal(t, "trailing-", name)
	assert.Equal(t, 0, retryId)
}

func TestParseChunk_UnknownReason_ClassifiedBySeverity(t *testing.T) {
	chunk := "2024-05-01T12:00:00Z\tworker_0\tNormal\tBrandNewReason\n" +
		"2024-05-01T12:00:01Z\tworker_0\tError\tBrandNewError\n"

	records := NewLineParser().ParseChunk(chunk)

	assert.Equal(t, model.StageRuntime, records[0].Stage)
	assert.Equal(t, model.StageFailure, records[1].Stage)
}
