package installer

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/artpar/flowstack/internal/core/credentials"
	coredns "github.com/artpar/flowstack/internal/core/dns"
	"github.com/artpar/flowstack/internal/core/domain"
	"github.com/artpar/flowstack/internal/core/manifest"
	"github.com/artpar/flowstack/internal/shell/artifacts"
	"github.com/artpar/flowstack/internal/shell/docker"
	"github.com/artpar/flowstack/internal/shell/health"
	"github.com/artpar/flowstack/internal/shell/retry"
)

// fakeHost is an in-memory runtime shared by the inspectors, the cleaner and
// the deployer fakes.
type fakeHost struct {
	mu         sync.Mutex
	resources  map[domain.ResourceKind][]string
	removed    []string
	cleanErr   error
	inspectErr error

	deployErr  error
	deploys    []docker.DeployRequest
	unhealthy  map[string]bool
	statusCall int
	logs       map[string]string
	logReads   []string
}

func newFakeHost() *fakeHost {
	return &fakeHost{
		resources: make(map[domain.ResourceKind][]string),
		unhealthy: make(map[string]bool),
		logs:      make(map[string]string),
	}
}

func (h *fakeHost) add(kind domain.ResourceKind, names ...string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, n := range names {
		found := false
		for _, existing := range h.resources[kind] {
			if existing == n {
				found = true
			}
		}
		if !found {
			h.resources[kind] = append(h.resources[kind], n)
		}
	}
}

func (h *fakeHost) inspector(kind domain.ResourceKind) ResourceInspector {
	return fakeInspector{host: h, kind: kind}
}

type fakeInspector struct {
	host *fakeHost
	kind domain.ResourceKind
}

func (i fakeInspector) Kind() domain.ResourceKind { return i.kind }

func (i fakeInspector) Inspect(context.Context) ([]string, error) {
	i.host.mu.Lock()
	defer i.host.mu.Unlock()
	if i.host.inspectErr != nil {
		return nil, i.host.inspectErr
	}
	names := append([]string(nil), i.host.resources[i.kind]...)
	sort.Strings(names)
	return names, nil
}

// Clean implements Cleaner.
func (h *fakeHost) Clean(_ context.Context, state domain.InstallationState) error {
	if h.cleanErr != nil {
		return h.cleanErr
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, kind := range []domain.ResourceKind{domain.ResourceContainers, domain.ResourceNetwork, domain.ResourceVolumes} {
		h.removed = append(h.removed, state.Names(kind)...)
		delete(h.resources, kind)
	}
	return nil
}

// Deploy implements Deployer.
func (h *fakeHost) Deploy(_ context.Context, req docker.DeployRequest) ([]docker.DeployedContainer, error) {
	h.deploys = append(h.deploys, req)
	if h.deployErr != nil {
		return nil, h.deployErr
	}
	var out []docker.DeployedContainer
	for _, line := range strings.Split(string(req.Compose), "\n") {
		line = strings.TrimSpace(line)
		if name, ok := strings.CutPrefix(line, "container_name: "); ok {
			h.add(domain.ResourceContainers, name)
			out = append(out, docker.DeployedContainer{Name: name, Action: docker.ActionCreated})
		}
	}
	h.add(domain.ResourceNetwork, req.Installation+"_network")
	return out, nil
}

// Status implements Deployer.
func (h *fakeHost) Status(_ context.Context, _ string, services []string) ([]domain.ServiceHealth, error) {
	h.statusCall++
	out := make([]domain.ServiceHealth, 0, len(services))
	for _, svc := range services {
		sh := domain.ServiceHealth{Service: svc, Status: "running", Health: domain.HealthStatusHealthy}
		if h.unhealthy[svc] {
			sh.Status = "restarting"
			sh.Health = domain.HealthStatusUnhealthy
		}
		out = append(out, sh)
	}
	return out, nil
}

// Logs implements Deployer.
func (h *fakeHost) Logs(_ context.Context, container string, _ int) (string, error) {
	h.logReads = append(h.logReads, container)
	out, ok := h.logs[container]
	if !ok {
		return "", errors.New("no such container: " + container)
	}
	return out, nil
}

// envFailure reads no credentials: every ReadEnv fails.
type envFailure struct {
	*artifacts.Writer
	err error
}

func (e envFailure) ReadEnv() (credentials.Set, error) { return nil, e.err }

type fakePackages struct {
	ensured []string
	enabled []string
	err     error
}

func (p *fakePackages) Ensure(_ context.Context, pkgs ...string) error {
	if p.err != nil {
		return p.err
	}
	p.ensured = append(p.ensured, pkgs...)
	return nil
}

func (p *fakePackages) EnableService(_ context.Context, unit string) error {
	p.enabled = append(p.enabled, unit)
	return nil
}

type fakeFirewall struct {
	ports []int
}

func (f *fakeFirewall) Allow(_ context.Context, ports []int) error {
	f.ports = ports
	return nil
}

type fixedAddress string

func (a fixedAddress) PublicIP(context.Context) string { return string(a) }

type readyProbe struct {
	name  string
	calls *[]string
}

func (p readyProbe) Ready(context.Context) (bool, error) {
	*p.calls = append(*p.calls, p.name)
	return true, nil
}

func (p readyProbe) Describe() string { return p.name }

type neverReady struct{}

func (neverReady) Ready(context.Context) (bool, error) { return false, nil }

func (neverReady) Describe() string { return "never" }

func recordingProbes(calls *[]string) ProbeFactory {
	return func(def manifest.ServiceDefinition) health.Probe {
		return readyProbe{name: def.Name + ":" + string(def.Probe.Kind), calls: calls}
	}
}

type fakeChooser struct {
	answer domain.Disposition
	asked  int
}

func (c *fakeChooser) ChooseDisposition(context.Context, domain.InstallationState) (domain.Disposition, error) {
	c.asked++
	return c.answer, nil
}

type fakeConfirm bool

func (c fakeConfirm) Confirm(context.Context, string, bool) (bool, error) { return bool(c), nil }

type fakeDNS struct {
	pointing map[string]bool
}

func (d fakeDNS) VerifyAll(_ context.Context, hostnames []string, _, _ string) []coredns.VerificationResult {
	out := make([]coredns.VerificationResult, 0, len(hostnames))
	for _, h := range hostnames {
		out = append(out, coredns.VerificationResult{Hostname: h, Verified: d.pointing[h]})
	}
	return out
}

type scriptedEscalator struct {
	decisions []retry.Decision
	asked     []string
}

func (e *scriptedEscalator) Escalate(_ context.Context, name string, _ error) (retry.Decision, error) {
	e.asked = append(e.asked, name)
	if len(e.decisions) == 0 {
		return "", errors.New("no scripted decision")
	}
	d := e.decisions[0]
	e.decisions = e.decisions[1:]
	return d, nil
}

func noSleep(context.Context, time.Duration) error { return nil }
