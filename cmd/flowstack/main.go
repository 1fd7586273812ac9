// Command flowstack installs an n8n automation stack, with optional vector
// database, reverse proxy, container UI, log viewer and auto-updater, on a
// single Docker host.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/artpar/flowstack/internal/core/domain"
	"github.com/artpar/flowstack/internal/shell/host"
	"github.com/artpar/flowstack/internal/shell/sequencer"
)

// Version information (set by build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

// Exit codes
const (
	ExitSuccess        = 0
	ExitFailed         = 1
	ExitConfigError    = 2
	ExitPrivilegeError = 3
	ExitStopped        = 4
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCommand(stdin, stdout, stderr)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)

	code := exitCode(err)
	var exitErr *ExitError
	if err != nil && !errors.As(err, &exitErr) {
		fmt.Fprintf(stderr, "error: %v\n", err)
	}
	return code
}

// ExitError carries the exit code of a command that already reported its
// outcome.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

func exitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	switch {
	case errors.Is(err, host.ErrNotRoot):
		return ExitPrivilegeError
	case errors.Is(err, domain.ErrValidation):
		return ExitConfigError
	}
	return ExitFailed
}

// reportExitCode maps how a run ended to the process exit code.
func reportExitCode(r sequencer.Report) int {
	switch r.Final {
	case sequencer.StateDone, sequencer.StateDegraded, sequencer.StateKeeping:
		return ExitSuccess
	case sequencer.StateExited:
		return ExitStopped
	}
	if errors.Is(r.Err, domain.ErrValidation) {
		return ExitConfigError
	}
	return ExitFailed
}
