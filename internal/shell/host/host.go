// Package host prepares the machine: privilege check, system packages,
// firewall rules and public address discovery.
package host

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
)

// ErrNotRoot is returned when the installer does not run as root.
var ErrNotRoot = errors.New("root privileges required")

// CheckPrivileges returns ErrNotRoot unless geteuid reports root. A nil
// geteuid uses os.Geteuid.
func CheckPrivileges(geteuid func() int) error {
	if geteuid == nil {
		geteuid = os.Geteuid
	}
	if uid := geteuid(); uid != 0 {
		return fmt.Errorf("%w: running as uid %d; re-run with sudo", ErrNotRoot, uid)
	}
	return nil
}

// =============================================================================
// Command Runner
// =============================================================================

// CommandRunner runs a system command and returns its combined output.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct {
	// Env is appended to the process environment.
	Env []string
}

// Run implements CommandRunner.
func (r ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = append(os.Environ(), r.Env...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return out.Bytes(), &CommandError{Command: name + " " + strings.Join(args, " "), Output: lastLines(out.String(), 5), Err: err}
	}
	return out.Bytes(), nil
}

// CommandError is a failed system command.
type CommandError struct {
	Command string
	Output  string
	Err     error
}

func (e *CommandError) Error() string {
	if e.Output == "" {
		return fmt.Sprintf("%s: %v", e.Command, e.Err)
	}
	return fmt.Sprintf("%s: %v: %s", e.Command, e.Err, e.Output)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}

// =============================================================================
// Packages
// =============================================================================

// RequiredPackages are installed during provisioning.
var RequiredPackages = []string{"ca-certificates", "curl", "docker.io", "docker-compose-v2", "ufw"}

// Packages installs system packages with apt.
type Packages struct {
	runner CommandRunner
	logger *slog.Logger
}

// NewPackages creates a package installer. A nil runner runs apt
// non-interactively.
func NewPackages(runner CommandRunner, logger *slog.Logger) *Packages {
	if runner == nil {
		runner = ExecRunner{Env: []string{"DEBIAN_FRONTEND=noninteractive"}}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Packages{runner: runner, logger: logger.With("component", "packages")}
}

// Installed reports whether pkg is installed.
func (p *Packages) Installed(ctx context.Context, pkg string) bool {
	out, err := p.runner.Run(ctx, "dpkg-query", "-W", "-f=${Status}", pkg)
	return err == nil && strings.Contains(string(out), "install ok installed")
}

// Ensure installs the packages that are missing. Nothing runs when all of
// them are present.
func (p *Packages) Ensure(ctx context.Context, pkgs ...string) error {
	var missing []string
	for _, pkg := range pkgs {
		if !p.Installed(ctx, pkg) {
			missing = append(missing, pkg)
		}
	}
	if len(missing) == 0 {
		p.logger.Debug("packages present", "packages", pkgs)
		return nil
	}

	p.logger.Info("installing packages", "packages", missing)
	if _, err := p.runner.Run(ctx, "apt-get", "update", "-q"); err != nil {
		return err
	}
	args := append([]string{"install", "-y", "-q", "--no-install-recommends"}, missing...)
	if _, err := p.runner.Run(ctx, "apt-get", args...); err != nil {
		return err
	}
	return nil
}

// EnableService starts a systemd unit now and at boot.
func (p *Packages) EnableService(ctx context.Context, unit string) error {
	_, err := p.runner.Run(ctx, "systemctl", "enable", "--now", unit)
	return err
}

// =============================================================================
// Firewall
// =============================================================================

// Firewall manages ufw rules.
type Firewall struct {
	runner CommandRunner
	logger *slog.Logger
}

// NewFirewall creates a firewall manager. A nil runner uses ExecRunner.
func NewFirewall(runner CommandRunner, logger *slog.Logger) *Firewall {
	if runner == nil {
		runner = ExecRunner{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Firewall{runner: runner, logger: logger.With("component", "firewall")}
}

// Allow opens the TCP ports and enables the firewall. Rules are added
// before enabling so that SSH stays reachable. Re-adding an existing rule
// is a no-op in ufw.
func (f *Firewall) Allow(ctx context.Context, ports []int) error {
	for _, port := range ports {
		if _, err := f.runner.Run(ctx, "ufw", "allow", fmt.Sprintf("%d/tcp", port)); err != nil {
			return err
		}
	}
	if _, err := f.runner.Run(ctx, "ufw", "--force", "enable"); err != nil {
		return err
	}
	f.logger.Info("firewall configured", "ports", ports)
	return nil
}
