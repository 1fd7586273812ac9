package installer

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/artpar/flowstack/internal/core/credentials"
	coredns "github.com/artpar/flowstack/internal/core/dns"
	"github.com/artpar/flowstack/internal/core/domain"
	"github.com/artpar/flowstack/internal/core/manifest"
	"github.com/artpar/flowstack/internal/core/monitoring"
	"github.com/artpar/flowstack/internal/shell/docker"
	"github.com/artpar/flowstack/internal/shell/health"
	"github.com/artpar/flowstack/internal/shell/host"
	"github.com/artpar/flowstack/internal/shell/logging"
	"github.com/artpar/flowstack/internal/shell/retry"
	"github.com/artpar/flowstack/internal/shell/sequencer"
)

// Phase names, as recorded in the journal.
const (
	PhaseDetect    = "detect"
	PhaseCleanup   = "cleanup"
	PhaseConfigure = "configure"
	PhaseGenerate  = "generate"
	PhaseProvision = "provision"
	PhaseDeploy    = "deploy"
	PhaseHealth    = "health"
)

// failureLogLines is how much of a failing container's output is logged.
const failureLogLines = 20

// DefaultHealthMaxWait bounds how long one service may take to become ready.
const DefaultHealthMaxWait = 3 * time.Minute

// =============================================================================
// Collaborators
// =============================================================================

// Cleaner removes the runtime resources of an installation.
type Cleaner interface {
	Clean(ctx context.Context, state domain.InstallationState) error
}

// Artifacts is the config directory holding the generated files.
type Artifacts interface {
	Dir() string
	Sync(files []manifest.File, stale []string) error
	ReadEnv() (credentials.Set, error)
	Read(rel string) ([]byte, error)
	Remove() error
}

// Packages installs system packages and enables services.
type Packages interface {
	Ensure(ctx context.Context, pkgs ...string) error
	EnableService(ctx context.Context, unit string) error
}

// Firewall opens TCP ports.
type Firewall interface {
	Allow(ctx context.Context, ports []int) error
}

// AddressResolver discovers the public address of the host.
type AddressResolver interface {
	PublicIP(ctx context.Context) string
}

// Deployer brings the services up and reports their health.
type Deployer interface {
	Deploy(ctx context.Context, req docker.DeployRequest) ([]docker.DeployedContainer, error)
	Status(ctx context.Context, installation string, services []string) ([]domain.ServiceHealth, error)
	Logs(ctx context.Context, containerName string, tail int) (string, error)
}

// DNSVerifier checks that hostnames point at the host.
type DNSVerifier interface {
	VerifyAll(ctx context.Context, hostnames []string, hostIP, root string) []coredns.VerificationResult
}

// Confirmer asks a yes/no question.
type Confirmer interface {
	Confirm(ctx context.Context, question string, def bool) (bool, error)
}

// ProbeFactory returns the readiness probe of a service.
type ProbeFactory func(def manifest.ServiceDefinition) health.Probe

// NewProbeFactory builds container probes from inspector and HTTP probes
// against the published port on the loopback address.
func NewProbeFactory(inspector health.ContainerInspector, client *http.Client) ProbeFactory {
	return func(def manifest.ServiceDefinition) health.Probe {
		if def.Probe.Kind == manifest.ProbeHTTP {
			return health.NewHTTPProbe(client, fmt.Sprintf("http://127.0.0.1:%d%s", def.Probe.Port, def.Probe.Path))
		}
		return health.NewContainerProbe(inspector, def.ContainerName)
	}
}

// =============================================================================
// Installer
// =============================================================================

// Options configure one run.
type Options struct {
	Target      domain.InstallationTarget
	Disposition DispositionPolicy
	Policy      retry.Policy

	// HealthMaxWait bounds the wait for each service.
	HealthMaxWait time.Duration

	// CleanupOnly removes the installation and installs nothing.
	CleanupOnly bool
}

// Deps are the collaborators of a run.
type Deps struct {
	Engine    *retry.Engine
	Detector  *Detector
	Cleaner   Cleaner
	Artifacts Artifacts
	Generator *manifest.Generator
	Packages  Packages
	Firewall  Firewall
	Address   AddressResolver
	Deployer  Deployer
	Gate      *health.Gate
	Probes    ProbeFactory

	// DNS is optional. Without it, hostnames are not verified.
	DNS DNSVerifier

	// Confirm is optional. With it, cleanup-only runs ask before removing.
	Confirm Confirmer

	Logger *slog.Logger
}

// Installer runs the phases of one installation.
type Installer struct {
	opts   Options
	deps   Deps
	logger *slog.Logger

	// Run state, carried from one phase to the next.
	state       domain.InstallationState
	disposition domain.Disposition
	address     string
	existing    credentials.Set
	result      *manifest.Result
	deployed    []docker.DeployedContainer
	unverified  []string
}

// New creates an installer.
func New(opts Options, deps Deps) *Installer {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if opts.HealthMaxWait <= 0 {
		opts.HealthMaxWait = DefaultHealthMaxWait
	}
	if opts.Policy.MaxAttempts <= 0 {
		opts.Policy = retry.DefaultPolicy
	}
	if deps.Generator == nil {
		deps.Generator = manifest.NewGenerator(nil, nil)
	}
	return &Installer{
		opts:   opts,
		deps:   deps,
		logger: deps.Logger.With("component", "installer"),
		state:  domain.NewInstallationState(),
	}
}

// Run executes the phases and returns the report.
func (i *Installer) Run(ctx context.Context) sequencer.Report {
	seq := sequencer.New(i.deps.Engine, i.opts.Policy, i.deps.Logger, i.Phases()...)
	return seq.Run(ctx)
}

// Phases returns the phases of the run, in order.
func (i *Installer) Phases() []sequencer.Phase {
	if i.opts.CleanupOnly {
		return []sequencer.Phase{
			{Name: PhaseDetect, State: sequencer.StateDetecting, Run: i.detectForCleanup},
			{Name: PhaseCleanup, State: sequencer.StateCleaningUp, Capability: "cleanup", When: func() bool { return i.state.Exists() }, Run: i.cleanup},
		}
	}

	return []sequencer.Phase{
		{
			Name:       PhaseDetect,
			State:      sequencer.StateDetecting,
			Capability: "existing installation check",
			Run:        i.detect,
		},
		{
			Name:       PhaseCleanup,
			State:      sequencer.StateCleaningUp,
			Capability: "cleanup of the previous installation",
			When:       func() bool { return i.disposition == domain.DispositionClean },
			Run:        i.cleanup,
		},
		{
			// Installing without knowing what exists could overwrite it.
			Name:       PhaseConfigure,
			State:      sequencer.StateConfiguring,
			Capability: "existing credentials and public address",
			DependsOn:  []string{PhaseDetect},
			Run:        i.configure,
		},
		{
			// Generating without the existing credentials would rotate them.
			Name:       PhaseGenerate,
			State:      sequencer.StateGeneratingManifest,
			Capability: "configuration files",
			DependsOn:  []string{PhaseConfigure},
			Run:        i.generate,
		},
		{
			Name:       PhaseProvision,
			State:      sequencer.StateProvisioning,
			Capability: "system packages and firewall",
			DependsOn:  []string{PhaseGenerate},
			Run:        i.provision,
		},
		{
			Name:       PhaseDeploy,
			State:      sequencer.StateDeploying,
			Capability: "running services",
			DependsOn:  []string{PhaseGenerate},
			Run:        i.deploy,
		},
		{
			Name:       PhaseHealth,
			State:      sequencer.StateHealthChecking,
			Capability: "health verification",
			DependsOn:  []string{PhaseDeploy},
			Run:        i.healthCheck,
		},
	}
}

// Result returns the generated manifest, nil before generation.
func (i *Installer) Result() *manifest.Result {
	return i.result
}

// Address returns the public address found during configuration.
func (i *Installer) Address() string {
	return i.address
}

// Unverified returns the hostnames whose DNS does not point at the host.
func (i *Installer) Unverified() []string {
	return i.unverified
}

// =============================================================================
// Phase Bodies
// =============================================================================

func (i *Installer) detect(ctx context.Context) error {
	state, err := i.deps.Detector.Detect(ctx)
	if err != nil {
		return err
	}
	i.state = state

	if i.disposition == domain.DispositionNone {
		d, err := i.opts.Disposition.Resolve(ctx, state)
		if err != nil {
			return err
		}
		i.disposition = d
	}

	switch i.disposition {
	case domain.DispositionNone:
		i.logger.Info("no existing installation, installing fresh")
	case domain.DispositionKeep:
		return sequencer.Stop(sequencer.StateKeeping, "existing installation kept")
	case domain.DispositionExit:
		return sequencer.Stop(sequencer.StateExited, "stopped without changes")
	default:
		i.logger.Info("existing installation found", "disposition", i.disposition)
	}
	return nil
}

func (i *Installer) detectForCleanup(ctx context.Context) error {
	state, err := i.deps.Detector.Detect(ctx)
	if err != nil {
		return err
	}
	i.state = state

	if !state.Exists() {
		i.logger.Info("nothing to clean up")
		return nil
	}
	if i.deps.Confirm != nil {
		ok, err := i.deps.Confirm.Confirm(ctx, fmt.Sprintf("Remove the installation %q, its data and credentials?", i.opts.Target.Name()), false)
		if err != nil {
			return err
		}
		if !ok {
			return sequencer.Stop(sequencer.StateExited, "cleanup declined")
		}
	}
	return nil
}

func (i *Installer) cleanup(ctx context.Context) error {
	if err := i.deps.Cleaner.Clean(ctx, i.state); err != nil {
		return err
	}
	if err := i.deps.Artifacts.Remove(); err != nil {
		return fmt.Errorf("remove config directory: %w", err)
	}
	i.state = domain.NewInstallationState()
	i.existing = nil
	logging.Success(i.logger, "previous installation removed")
	return nil
}

func (i *Installer) configure(ctx context.Context) error {
	i.address = i.deps.Address.PublicIP(ctx)

	existing, err := i.deps.Artifacts.ReadEnv()
	if err != nil {
		return fmt.Errorf("read existing credentials: %w", err)
	}
	i.existing = existing

	target := i.opts.Target
	i.logger.Info("configuration collected",
		"name", target.Name(),
		"components", componentNames(target.Components()),
		"domain_mode", target.DomainMode(),
		"address", i.address,
		"existing_credentials", len(existing),
	)
	return nil
}

func (i *Installer) generate(_ context.Context) error {
	result, err := i.deps.Generator.Generate(i.opts.Target, manifest.GenerateInput{
		PublicAddress: i.address,
		Existing:      i.existing,
	})
	if err != nil {
		return err
	}

	files, err := manifest.Bundle(result)
	if err != nil {
		return err
	}
	if err := i.deps.Artifacts.Sync(files, manifest.StaleFiles(files)); err != nil {
		return err
	}

	i.result = result
	logging.Success(i.logger, "configuration written",
		"dir", i.deps.Artifacts.Dir(),
		"services", len(result.Services),
		"new_credentials", len(result.Generated),
	)
	return nil
}

func (i *Installer) provision(ctx context.Context) error {
	if err := i.deps.Packages.Ensure(ctx, host.RequiredPackages...); err != nil {
		return err
	}
	if err := i.deps.Packages.EnableService(ctx, "docker"); err != nil {
		return err
	}
	return i.deps.Firewall.Allow(ctx, manifest.FirewallPorts(i.result))
}

func (i *Installer) deploy(ctx context.Context) error {
	doc, err := i.deps.Artifacts.Read(manifest.ComposeFile)
	if err != nil {
		return fmt.Errorf("read compose file: %w", err)
	}

	deployed, err := i.deps.Deployer.Deploy(ctx, docker.DeployRequest{
		Installation: i.opts.Target.Name(),
		ProjectDir:   i.deps.Artifacts.Dir(),
		Compose:      doc,
		Env:          manifest.EnvValues(i.result),
	})
	if err != nil {
		return err
	}
	i.deployed = deployed

	changed := 0
	for _, c := range deployed {
		if c.Action != docker.ActionUnchanged {
			changed++
		}
	}
	logging.Success(i.logger, "services deployed", "containers", len(deployed), "changed", changed)
	return nil
}

func (i *Installer) healthCheck(ctx context.Context) error {
	services := make([]string, 0, len(i.result.Services))
	containers := make(map[string]string, len(i.result.Services))
	for _, def := range i.result.Services {
		containers[def.Name] = def.ContainerName
		if err := i.deps.Gate.WaitUntilReady(ctx, def.Name, i.deps.Probes(def), i.opts.HealthMaxWait); err != nil {
			i.logFailure(ctx, def.Name, def.ContainerName)
			return err
		}
		services = append(services, def.Name)
	}

	statuses, err := i.deps.Deployer.Status(ctx, i.opts.Target.Name(), services)
	if err != nil {
		return err
	}
	overall := monitoring.AggregateHealth(statuses)
	if overall != domain.HealthStatusHealthy {
		for _, st := range statuses {
			if st.Health != domain.HealthStatusHealthy {
				i.logFailure(ctx, st.Service, containers[st.Service])
			}
		}
		return fmt.Errorf("stack is %s: %s", overall, strings.ReplaceAll(monitoring.Summary(statuses), "\n", "; "))
	}
	logging.Success(i.logger, "all services healthy", "services", len(statuses))

	i.verifyDNS(ctx)
	return nil
}

// logFailure logs the last output of a container that did not come up.
func (i *Installer) logFailure(ctx context.Context, service, container string) {
	if container == "" {
		return
	}
	out, err := i.deps.Deployer.Logs(ctx, container, failureLogLines)
	if err != nil {
		i.logger.Warn("container logs unavailable", "service", service, "container", container, "error", err)
		return
	}
	i.logger.Warn("service not healthy", "service", service, "container", container, "logs", out)
}

// verifyDNS warns about hostnames that do not point at the host yet. The
// proxy keeps retrying certificates, so this never fails the phase.
func (i *Installer) verifyDNS(ctx context.Context) {
	if i.deps.DNS == nil || i.result.Routes == nil {
		return
	}
	hostnames := make([]string, 0, len(i.result.Routes.Routes))
	for _, r := range i.result.Routes.Routes {
		hostnames = append(hostnames, r.Hostname)
	}

	root := i.opts.Target.Domain().Root
	i.unverified = coredns.Unverified(i.deps.DNS.VerifyAll(ctx, hostnames, i.address, root))
	if len(i.unverified) == 0 {
		logging.Success(i.logger, "DNS records point at this host", "hostnames", len(hostnames))
		return
	}
	for _, in := range coredns.GenerateInstructions(i.unverified, i.address) {
		i.logger.Warn("DNS record missing", "type", in.Type, "name", in.Name, "value", in.Value)
	}
}

// =============================================================================
// Summary
// =============================================================================

// AccessURL is where an operator reaches one service.
type AccessURL struct {
	Service string
	URL     string
}

// AccessURLs lists the public URLs of a generated manifest: one HTTPS URL per
// route in domain mode, one URL per published port otherwise.
func AccessURLs(r *manifest.Result, address string) []AccessURL {
	if r == nil {
		return nil
	}
	var urls []AccessURL
	if r.Routes != nil {
		for _, route := range r.Routes.Routes {
			urls = append(urls, AccessURL{Service: route.Service, URL: "https://" + route.Hostname})
		}
		return urls
	}
	for _, def := range r.Services {
		for _, p := range def.Ports {
			if p.Published > 0 {
				urls = append(urls, AccessURL{Service: def.Name, URL: fmt.Sprintf("http://%s:%d", address, p.Published)})
			}
		}
	}
	sort.SliceStable(urls, func(a, b int) bool { return urls[a].Service < urls[b].Service })
	return urls
}

func componentNames(ids []domain.ComponentID) string {
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		names = append(names, string(id))
	}
	return strings.Join(names, ",")
}
