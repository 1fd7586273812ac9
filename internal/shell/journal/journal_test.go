package journal

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/artpar/flowstack/internal/shell/sequencer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Test Helpers
// =============================================================================

func setupTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		j.Close()
	})
	return j
}

func testReport(id string, started time.Time, final sequencer.State) sequencer.Report {
	return sequencer.Report{
		RunID: id,
		Final: final,
		Phases: []sequencer.PhaseRecord{
			{Name: "detect", State: sequencer.StateDetecting, Status: sequencer.PhaseCompleted, Attempts: 1, Duration: 120 * time.Millisecond},
			{Name: "provision", State: sequencer.StateProvisioning, Status: sequencer.PhaseSkipped, Attempts: 3, Duration: 2 * time.Second, Error: "apt-get: exit status 100"},
			{Name: "deploy", State: sequencer.StateDeploying, Status: sequencer.PhaseBypassed},
		},
		Missing:  []string{"system packages"},
		Started:  started,
		Finished: started.Add(5 * time.Second),
	}
}

var testMeta = RunMeta{
	Installation: "flowstack",
	Command:      "install",
	Components:   []string{"n8n", "qdrant"},
	Domain:       "example.com",
}

// =============================================================================
// Record / Get Tests
// =============================================================================

func TestJournal_RecordAndGet(t *testing.T) {
	j := setupTestJournal(t)
	ctx := context.Background()
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	report := testReport("run-1", started, sequencer.StateDegraded)
	report.Err = errors.New("provision skipped")
	require.NoError(t, j.Record(ctx, testMeta, report))

	run, err := j.Get(ctx, "run-1")
	require.NoError(t, err)

	assert.Equal(t, "flowstack", run.Installation)
	assert.Equal(t, "install", run.Command)
	assert.Equal(t, []string{"n8n", "qdrant"}, run.Components)
	assert.Equal(t, "example.com", run.Domain)
	assert.Equal(t, sequencer.StateDegraded, run.Final)
	assert.Equal(t, []string{"system packages"}, run.Missing)
	assert.Equal(t, "provision skipped", run.Error)
	assert.True(t, run.Started.Equal(started))
	assert.Equal(t, 5*time.Second, run.Duration())

	require.Len(t, run.Phases, 3)
	assert.Equal(t, report.Phases, run.Phases)
}

func TestJournal_GetNotFound(t *testing.T) {
	j := setupTestJournal(t)

	_, err := j.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	var storeErr *StoreError
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, "missing", storeErr.ID)
}

func TestJournal_RecordDuplicate(t *testing.T) {
	j := setupTestJournal(t)
	ctx := context.Background()
	report := testReport("run-1", time.Now(), sequencer.StateDone)

	require.NoError(t, j.Record(ctx, testMeta, report))
	err := j.Record(ctx, testMeta, report)
	assert.ErrorIs(t, err, ErrDuplicateID)

	run, err := j.Get(ctx, "run-1")
	require.NoError(t, err)
	assert.Len(t, run.Phases, 3)
}

func TestJournal_RecordEmptyLists(t *testing.T) {
	j := setupTestJournal(t)
	ctx := context.Background()

	report := sequencer.Report{RunID: "run-empty", Final: sequencer.StateKeeping, Started: time.Now(), Finished: time.Now()}
	require.NoError(t, j.Record(ctx, RunMeta{Installation: "flowstack", Command: "install"}, report))

	run, err := j.Get(ctx, "run-empty")
	require.NoError(t, err)
	assert.Empty(t, run.Components)
	assert.Empty(t, run.Missing)
	assert.Empty(t, run.Phases)
}

// =============================================================================
// List Tests
// =============================================================================

func TestJournal_ListNewestFirst(t *testing.T) {
	j := setupTestJournal(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, j.Record(ctx, testMeta, testReport(id, base.Add(time.Duration(i)*time.Hour), sequencer.StateDone)))
	}

	tests := []struct {
		name     string
		limit    int
		expected []string
	}{
		{"all", 0, []string{"c", "b", "a"}},
		{"limited", 2, []string{"c", "b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runs, err := j.List(ctx, tt.limit)
			require.NoError(t, err)
			ids := make([]string, 0, len(runs))
			for _, r := range runs {
				ids = append(ids, r.ID)
				assert.Empty(t, r.Phases)
			}
			assert.Equal(t, tt.expected, ids)
		})
	}
}

// =============================================================================
// Open Tests
// =============================================================================

func TestOpen_FileCreatesDirectoryAndReopens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "journal.db")

	j, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, j.Record(context.Background(), testMeta, testReport("persisted", time.Now(), sequencer.StateDone)))
	require.NoError(t, j.Close())

	j, err = Open(path)
	require.NoError(t, err)
	defer j.Close()

	run, err := j.Get(context.Background(), "persisted")
	require.NoError(t, err)
	assert.Equal(t, sequencer.StateDone, run.Final)
}

func TestStoreError(t *testing.T) {
	tests := []struct {
		err      *StoreError
		expected string
	}{
		{NewStoreError("Get", "run", "r1", "run not found", ErrNotFound), "Get run r1: run not found"},
		{NewStoreError("List", "run", "", "boom", nil), "List run: boom"},
		{NewStoreError("Open", "", "", "failed", ErrConnectionFailed), "Open: failed"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, tt.err.Error())
	}
}
