package eventstream

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/G-Research/taskboard/internal/taskboard/model"
)

// testParser treats each line as an entity id.
type testParser struct{}

func (testParser) ParseChunk(text string) []*model.EventRecord {
	records := []*model.EventRecord{}
	for _, line := range strings.Split(text, "\n") {
		if line == "" {
			continue
		}
		records = append(records, &model.EventRecord{
			EntityId: line,
			TaskName: line,
			Reason:   "Started",
			Severity: model.SeverityInfo,
			Stage:    model.StageContainer,
		})
	}
	return records
}

type flushRecorder struct {
	mu      sync.Mutex
	flushes [][]*model.EventRecord
}

func (r *flushRecorder) record(accumulated []*model.EventRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flushes = append(r.flushes, accumulated)
}

func (r *flushRecorder) last() []*model.EventRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.flushes) == 0 {
		return nil
	}
	return r.flushes[len(r.flushes)-1]
}

func testConfig() SourceConfig {
	return SourceConfig{FlushInterval: 10 * time.Millisecond}
}

func awaitPhase(t *testing.T, source *Source, expected Phase) {
	t.Helper()
	assert.Eventually(t, func() bool {
		phase, _ := source.Phase()
		return phase == expected
	}, 5*time.Second, 10*time.Millisecond, "source never reached phase %s", expected)
}

func entityIds(records []*model.EventRecord) []string {
	ids := make([]string, 0, len(records))
	for _, record := range records {
		ids = append(ids, record.EntityId)
	}
	return ids
}

func TestSource_CompletedStream_ReplaysHistoryAndSettlesComplete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "text/plain", r.Header.Get("Accept"))
		fmt.Fprint(w, "task_1\ntask_2\ntask_3\n")
	}))
	defer server.Close()

	recorder := &flushRecorder{}
	source := NewSource(server.URL, testParser{}, recorder.record, testConfig())
	source.Open(context.Background())

	awaitPhase(t, source, PhaseComplete)
	assert.Equal(t, []string{"task_1", "task_2", "task_3"}, entityIds(source.Snapshot()))
	assert.Equal(t, []string{"task_1", "task_2", "task_3"}, entityIds(recorder.last()))
}

func TestSource_PartialRecordAcrossChunks_IsCarriedToNextRead(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		require.True(t, ok)
		fmt.Fprint(w, "task_1\nta")
		flusher.Flush()
		time.Sleep(50 * time.Millisecond)
		fmt.Fprint(w, "sk_2\n")
	}))
	defer server.Close()

	source := NewSource(server.URL, testParser{}, nil, testConfig())
	source.Open(context.Background())

	awaitPhase(t, source, PhaseComplete)
	assert.Equal(t, []string{"task_1", "task_2"}, entityIds(source.Snapshot()))
}

func TestSource_RemainderWithoutDelimiter_IsFlushedOnceOnCompletion(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "task_1\ntask_2")
	}))
	defer server.Close()

	source := NewSource(server.URL, testParser{}, nil, testConfig())
	source.Open(context.Background())

	awaitPhase(t, source, PhaseComplete)
	assert.Equal(t, []string{"task_1", "task_2"}, entityIds(source.Snapshot()))
}

func TestSource_Non2xxResponse_SettlesError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	source := NewSource(server.URL, testParser{}, nil, testConfig())
	source.Open(context.Background())

	awaitPhase(t, source, PhaseError)
	_, cause := source.Phase()
	assert.Error(t, cause)
}

func TestSource_ConnectionRefused_SettlesError(t *testing.T) {
	source := NewSource("http://127.0.0.1:1/events", testParser{}, nil, testConfig())
	source.Open(context.Background())

	awaitPhase(t, source, PhaseError)
}

func TestSource_Close_SettlesIdleWithoutError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		fmt.Fprint(w, "task_1\n")
		flusher.Flush()
		// Keep the stream open until the client goes away.
		<-r.Context().Done()
	}))
	defer server.Close()

	source := NewSource(server.URL, testParser{}, nil, testConfig())
	source.Open(context.Background())
	awaitPhase(t, source, PhaseStreaming)

	source.Close()

	phase, cause := source.Phase()
	assert.Equal(t, PhaseIdle, phase)
	assert.NoError(t, cause)
	// The superseded read loop must not flip the phase afterwards.
	time.Sleep(100 * time.Millisecond)
	phase, _ = source.Phase()
	assert.Equal(t, PhaseIdle, phase)
}

func TestSource_MaxEvents_EvictsOldestFirst(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "task_1\ntask_2\ntask_3\ntask_4\ntask_5\n")
	}))
	defer server.Close()

	config := testConfig()
	config.MaxEvents = 3
	source := NewSource(server.URL, testParser{}, nil, config)
	source.Open(context.Background())

	awaitPhase(t, source, PhaseComplete)
	assert.Equal(t, []string{"task_3", "task_4", "task_5"}, entityIds(source.Snapshot()))
}

func TestSource_Restart_DiscardsAccumulatedState(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "task_1\ntask_2\n")
	}))
	defer server.Close()

	source := NewSource(server.URL, testParser{}, nil, testConfig())
	source.Open(context.Background())
	awaitPhase(t, source, PhaseComplete)
	require.Len(t, source.Snapshot(), 2)

	source.Restart(context.Background())

	awaitPhase(t, source, PhaseComplete)
	assert.Equal(t, []string{"task_1", "task_2"}, entityIds(source.Snapshot()))
}

func TestSource_ParserReturningNoRecords_IsNotAnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "\n\n\n")
	}))
	defer server.Close()

	source := NewSource(server.URL, testParser{}, nil, testConfig())
	source.Open(context.Background())

	awaitPhase(t, source, PhaseComplete)
	assert.Empty(t, source.Snapshot())
}
