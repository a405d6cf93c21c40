package parser

import (
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	v1 "k8s.io/api/core/v1"

	"github.com/G-Research/taskboard/internal/taskboard/lifecycle"
	"github.com/G-Research/taskboard/internal/taskboard/model"
)

const fieldSeparator = "\t"

// LineParser is the reference parser for the text/plain event feed. Each
// record is one line of tab-separated fields:
//
//	timestamp (RFC3339), entityId, eventType, reasonCode
//
// where eventType uses the orchestrator's event type vocabulary (Normal,
// Warning) with Error accepted for feeds that distinguish terminal errors.
// Lines that cannot be classified are dropped; a chunk that produces zero
// records is not an error.
type LineParser struct{}

func NewLineParser() *LineParser {
	return &LineParser{}
}

func (p *LineParser) ParseChunk(text string) []*model.EventRecord {
	lines := strings.Split(text, "\n")
	records := make([]*model.EventRecord, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}
		record, ok := parseLine(line)
		if !ok {
			log.WithField("line", line).Debug("dropping malformed event record")
			continue
		}
		records = append(records, record)
	}
	return records
}

func parseLine(line string) (*model.EventRecord, bool) {
	fields := strings.SplitN(line, fieldSeparator, 5)
	if len(fields) < 4 {
		return nil, false
	}

	timestamp, err := time.Parse(time.RFC3339Nano, fields[0])
	if err != nil {
		return nil, false
	}
	entityId := fields[1]
	if entityId == "" {
		return nil, false
	}

	severity := parseSeverity(fields[2])
	reason := fields[3]
	taskName, retryId := ParseEntityId(entityId)

	return &model.EventRecord{
		EntityId:  entityId,
		TaskName:  taskName,
		RetryId:   retryId,
		Timestamp: timestamp,
		Reason:    reason,
		Severity:  severity,
		Stage:     lifecycle.ClassifyReason(reason, severity),
	}, true
}

func parseSeverity(eventType string) model.Severity {
	switch eventType {
	case v1.EventTypeWarning:
		return model.SeverityWarn
	case "Error":
		return model.SeverityError
	case v1.EventTypeNormal:
		return model.SeverityInfo
	default:
		return model.SeverityInfo
	}
}

// ParseEntityId splits an entity id into its task name and retry id. The
// retry id is a trailing -N suffix; ids without one are retry 0.
func ParseEntityId(entityId string) (string, int) {
	i := strings.LastIndex(entityId, "-")
	if i <= 0 || i == len(entityId)-1 {
		return entityId, 0
	}
	retryId, err := strconv.Atoi(entityId[i+1:])
	if err != nil || retryId < 0 {
		return entityId, 0
	}
	return entityId[:i], retryId
}
