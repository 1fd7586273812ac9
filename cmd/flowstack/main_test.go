package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/artpar/flowstack/internal/core/domain"
	"github.com/artpar/flowstack/internal/shell/host"
	"github.com/artpar/flowstack/internal/shell/journal"
	"github.com/artpar/flowstack/internal/shell/sequencer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cliResult struct {
	code   int
	stdout string
	stderr string
}

func runCLI(t *testing.T, args ...string) cliResult {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(args, strings.NewReader(""), &stdout, &stderr)
	return cliResult{code: code, stdout: stdout.String(), stderr: stderr.String()}
}

// isolate points every path the CLI writes to into a temp directory.
func isolate(t *testing.T) (configDir, journalPath string) {
	t.Helper()
	clearEnv(t)
	dir := t.TempDir()
	configDir = filepath.Join(dir, "config")
	journalPath = filepath.Join(dir, "state", "journal.db")
	t.Setenv("FLOWSTACK_INSTALL_CONFIG_DIR", configDir)
	t.Setenv("FLOWSTACK_JOURNAL_PATH", journalPath)
	t.Setenv("FLOWSTACK_LOG_FORMAT", "text")
	return configDir, journalPath
}

// =============================================================================
// Exit Code Tests
// =============================================================================

func TestExitCode(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"success", nil, ExitSuccess},
		{"explicit", &ExitError{Code: ExitStopped}, ExitStopped},
		{"validation", fmt.Errorf("config: %w", domain.ErrInvalidIdentity), ExitConfigError},
		{"privilege", host.CheckPrivileges(func() int { return 1000 }), ExitPrivilegeError},
		{"other", errors.New("boom"), ExitFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, exitCode(tt.err))
		})
	}
}

func TestReportExitCode(t *testing.T) {
	tests := []struct {
		final    sequencer.State
		err      error
		expected int
	}{
		{sequencer.StateDone, nil, ExitSuccess},
		{sequencer.StateDegraded, nil, ExitSuccess},
		{sequencer.StateKeeping, nil, ExitSuccess},
		{sequencer.StateExited, nil, ExitStopped},
		{sequencer.StateFailed, errors.New("deploy: boom"), ExitFailed},
		{sequencer.StateFailed, fmt.Errorf("detect: %w", domain.ErrValidation), ExitConfigError},
	}

	for _, tt := range tests {
		t.Run(string(tt.final), func(t *testing.T) {
			assert.Equal(t, tt.expected, reportExitCode(sequencer.Report{Final: tt.final, Err: tt.err}))
		})
	}
}

// =============================================================================
// Command Tests
// =============================================================================

func TestRun_Version(t *testing.T) {
	res := runCLI(t, "version")
	assert.Equal(t, ExitSuccess, res.code)
	assert.Equal(t, "flowstack dev (built unknown)\n", res.stdout)
}

func TestRun_UnknownFlag(t *testing.T) {
	isolate(t)
	res := runCLI(t, "install", "--bogus")
	assert.Equal(t, ExitConfigError, res.code)
	assert.Contains(t, res.stderr, "unknown flag")
}

func TestRun_InvalidIdentityStopsBeforeAnyPhase(t *testing.T) {
	configDir, journalPath := isolate(t)
	geteuid = func() int { t.Fatal("privileges checked after a validation error"); return 0 }
	t.Cleanup(func() { geteuid = defaultGeteuid })

	res := runCLI(t, "install", "--auto", "--email", "not-an-email-or-id!!")

	assert.Equal(t, ExitConfigError, res.code)
	assert.NotEqual(t, ExitSuccess, res.code)
	assert.Contains(t, res.stderr, "neither an email address nor a simple identifier")
	assert.NoDirExists(t, configDir)
	assert.NoFileExists(t, journalPath)
	assert.Empty(t, res.stdout)
}

func TestRun_RequiresRoot(t *testing.T) {
	configDir, journalPath := isolate(t)
	geteuid = func() int { return 1000 }
	t.Cleanup(func() { geteuid = defaultGeteuid })

	for _, args := range [][]string{{"install", "--auto"}, {"--auto"}, {"cleanup", "-y"}} {
		res := runCLI(t, args...)
		assert.Equal(t, ExitPrivilegeError, res.code, args)
		assert.Contains(t, res.stderr, "root privileges required")
	}
	assert.NoDirExists(t, configDir)
	assert.NoFileExists(t, journalPath)
}

func TestRun_History(t *testing.T) {
	_, journalPath := isolate(t)

	res := runCLI(t, "history")
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Contains(t, res.stdout, "No runs recorded.")

	j, err := journal.Open(journalPath)
	require.NoError(t, err)
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, j.Record(context.Background(), journal.RunMeta{
		Installation: "flowstack",
		Command:      "install",
		Components:   []string{"n8n"},
	}, sequencer.Report{
		RunID: "run-42",
		Final: sequencer.StateDegraded,
		Phases: []sequencer.PhaseRecord{
			{Name: "deploy", State: sequencer.StateDeploying, Status: sequencer.PhaseSkipped, Attempts: 3, Error: "port is already allocated"},
		},
		Missing:  []string{"running services"},
		Started:  started,
		Finished: started.Add(time.Minute),
	}))
	require.NoError(t, j.Close())

	res = runCLI(t, "history")
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Contains(t, res.stdout, "run-42")
	assert.Contains(t, res.stdout, "Degraded")
	assert.Contains(t, res.stdout, "running services")

	res = runCLI(t, "history", "run-42")
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Contains(t, res.stdout, "port is already allocated")
	assert.Contains(t, res.stdout, "skipped")

	res = runCLI(t, "history", "missing")
	assert.Equal(t, ExitFailed, res.code)
	assert.Contains(t, res.stderr, "run not found")
}
