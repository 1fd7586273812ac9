package main

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/artpar/flowstack/internal/core/domain"
	"github.com/artpar/flowstack/internal/core/manifest"
	"github.com/artpar/flowstack/internal/shell/artifacts"
	"github.com/artpar/flowstack/internal/shell/dns"
	"github.com/artpar/flowstack/internal/shell/docker"
	"github.com/artpar/flowstack/internal/shell/health"
	"github.com/artpar/flowstack/internal/shell/host"
	"github.com/artpar/flowstack/internal/shell/installer"
	"github.com/artpar/flowstack/internal/shell/journal"
	"github.com/artpar/flowstack/internal/shell/logging"
	"github.com/artpar/flowstack/internal/shell/prompt"
	"github.com/artpar/flowstack/internal/shell/retry"
	"github.com/artpar/flowstack/internal/shell/sequencer"
	"github.com/spf13/cobra"
)

var defaultGeteuid = os.Geteuid

// Overridden in tests.
var (
	geteuid  = defaultGeteuid
	attended = prompt.Attended
)

type app struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

// install runs an installation, or a cleanup when flags.cleanupOnly is set.
func (a *app) install(cmd *cobra.Command, configPath string, flags installFlags) error {
	ctx := cmd.Context()

	cfg, err := LoadConfig(configPath, cmd.Flags())
	if err != nil {
		return err
	}
	logger := SetupLogger(cfg, a.stderr)

	target, err := cfg.Target(Shortcuts{Minimal: flags.minimal, NoDomain: flags.noDomain})
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		return &ExitError{Code: ExitConfigError, Err: err}
	}
	configured, unattendedDefault, err := cfg.Dispositions()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		return &ExitError{Code: ExitConfigError, Err: err}
	}

	if err := host.CheckPrivileges(geteuid); err != nil {
		logger.Error("insufficient privileges", "error", err)
		return &ExitError{Code: ExitPrivilegeError, Err: err}
	}

	isAttended := !flags.auto && (flags.interactive || attended())

	dc, err := docker.NewDockerClient(cfg.Docker.Host)
	if err != nil {
		logger.Error("docker client", "error", err)
		return &ExitError{Code: ExitFailed, Err: err}
	}
	defer dc.Close()

	policy := retry.Policy{MaxAttempts: cfg.Retry.MaxAttempts, Delay: cfg.Retry.Delay, Escalation: retry.EscalationFatal}
	engineOpts := []retry.Option{}
	disposition := installer.DispositionPolicy{Configured: configured, UnattendedDefault: unattendedDefault}

	deps := installer.Deps{Logger: logger}
	if isAttended {
		p := prompt.New(a.stdin, a.stderr, logger)
		policy.Escalation = retry.EscalationInteractive
		engineOpts = append(engineOpts, retry.WithEscalator(p))
		disposition.Chooser = p
		deps.Confirm = p
	}

	writer := artifacts.NewWriter(target.ConfigDir(), logger)
	name := target.Name()

	deps.Engine = retry.NewEngine(logger, engineOpts...)
	deps.Detector = installer.NewDetector(logger,
		docker.NewContainerInspector(dc, name),
		docker.NewVolumeInspector(dc, name),
		docker.NewNetworkInspector(dc, name),
		writer,
	)
	deps.Cleaner = docker.NewCleaner(dc, logger)
	deps.Artifacts = writer
	deps.Generator = manifest.NewGenerator(nil, nil)
	deps.Packages = host.NewPackages(nil, logger)
	deps.Firewall = host.NewFirewall(nil, logger)
	deps.Address = host.NewIPResolver(nil, cfg.IP.Endpoints, cfg.IP.Fallback, logger)
	deps.Deployer = docker.NewDeployer(dc, logger)
	deps.Gate = health.NewGate(logger, cfg.Health.Interval)
	deps.Probes = installer.NewProbeFactory(dc, health.ProbeClient())
	deps.DNS = dns.NewResolver(nil)

	inst := installer.New(installer.Options{
		Target:        target,
		Disposition:   disposition,
		Policy:        policy,
		HealthMaxWait: cfg.Health.MaxWait,
		CleanupOnly:   flags.cleanupOnly,
	}, deps)

	command := "install"
	if flags.cleanupOnly {
		command = "cleanup"
	}
	logger.Info("starting "+command, "version", Version, "name", name, "attended", isAttended)

	report := inst.Run(ctx)
	a.record(ctx, cfg, logger, journal.RunMeta{
		Installation: name,
		Command:      command,
		Components:   componentStrings(target.Components()),
		Domain:       domainRoot(target),
	}, report)

	printReport(a.stdout, report)
	if report.Final == sequencer.StateDone || report.Final == sequencer.StateDegraded {
		if !flags.cleanupOnly {
			printAccess(a.stdout, installer.AccessURLs(inst.Result(), inst.Address()), writer.Path(manifest.EnvFile), inst.Unverified())
		}
	}

	switch report.Final {
	case sequencer.StateDone:
		logging.Success(logger, command+" complete", "run_id", report.RunID)
	case sequencer.StateDegraded:
		logger.Warn(command+" finished degraded", "run_id", report.RunID, "missing", report.Missing)
	case sequencer.StateFailed:
		logger.Error(command+" failed", "run_id", report.RunID, "error", report.Err)
	default:
		logger.Info(command+" stopped", "run_id", report.RunID, "state", report.Final)
	}

	if code := reportExitCode(report); code != ExitSuccess {
		return &ExitError{Code: code, Err: report.Err}
	}
	return nil
}

// record writes the run to the journal. The journal is best effort: a run
// is never failed because its history cannot be kept.
func (a *app) record(ctx context.Context, cfg *Config, logger *slog.Logger, meta journal.RunMeta, report sequencer.Report) {
	j, err := journal.Open(cfg.Journal.Path)
	if err != nil {
		logger.Warn("run history unavailable", "path", cfg.Journal.Path, "error", err)
		return
	}
	defer j.Close()

	if err := j.Record(context.WithoutCancel(ctx), meta, report); err != nil {
		logger.Warn("run not recorded", "run_id", report.RunID, "error", err)
	}
}

// history lists past runs, or prints the phases of one.
func (a *app) history(cmd *cobra.Command, configPath string, args []string, limit int) error {
	cfg, err := LoadConfig(configPath, cmd.Flags())
	if err != nil {
		return err
	}

	j, err := journal.Open(cfg.Journal.Path)
	if err != nil {
		return err
	}
	defer j.Close()

	if len(args) == 1 {
		run, err := j.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		printRun(a.stdout, *run)
		return nil
	}

	runs, err := j.List(cmd.Context(), limit)
	if err != nil {
		return err
	}
	printRuns(a.stdout, runs)
	return nil
}

func componentStrings(ids []domain.ComponentID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, string(id))
	}
	return out
}

func domainRoot(t domain.InstallationTarget) string {
	if dc := t.Domain(); dc != nil {
		return dc.Root
	}
	return ""
}
