package manifest

import (
	"sort"
	"strings"

	"github.com/artpar/flowstack/internal/core/caddy"
	"github.com/artpar/flowstack/internal/core/compose"
	"github.com/artpar/flowstack/internal/core/credentials"
	"github.com/artpar/flowstack/internal/core/deployment"
	"github.com/artpar/flowstack/internal/core/domain"
)

// =============================================================================
// Types
// =============================================================================

// ServiceDefinition is one service of the generated manifest.
type ServiceDefinition struct {
	compose.Service

	Component domain.ComponentID
	Probe     Probe
}

// Route maps one public hostname to an internal service.
type Route struct {
	Hostname string
	Service  string
	Port     int
	TLS      bool
}

// Redirect sends plain HTTP to HTTPS for one route.
type Redirect struct {
	From string
	To   string
}

// RouteConfig is the reverse proxy configuration of domain mode.
type RouteConfig struct {
	Email     string
	Routes    []Route
	Redirects []Redirect
}

// GenerateInput carries what generation needs besides the target.
type GenerateInput struct {
	// PublicAddress is used for URLs in port mode.
	PublicAddress string

	// Existing credentials are kept as they are.
	Existing credentials.Set
}

// Result is the output of one generation pass.
type Result struct {
	Target domain.InstallationTarget

	// Services are in start order: every service follows its dependencies.
	Services []ServiceDefinition

	// Routes is nil when no domain is configured.
	Routes *RouteConfig

	Credentials credentials.Set
	// Generated lists the credential keys created in this pass.
	Generated []string

	Network compose.Network
	Volumes []compose.Volume
}

// Service returns the definition of a component.
func (r *Result) Service(id domain.ComponentID) (ServiceDefinition, bool) {
	for _, def := range r.Services {
		if def.Component == id {
			return def, true
		}
	}
	return ServiceDefinition{}, false
}

// =============================================================================
// Generator
// =============================================================================

// Generator builds manifests from a component catalog.
type Generator struct {
	catalog Catalog
	secrets *credentials.Generator
}

// NewGenerator creates a generator. A nil catalog uses DefaultCatalog and a
// nil secrets generator draws from crypto/rand.
func NewGenerator(catalog Catalog, secrets *credentials.Generator) *Generator {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	if secrets == nil {
		secrets = credentials.NewGenerator(nil, credentials.MinLength)
	}
	return &Generator{catalog: catalog, secrets: secrets}
}

// Generate builds the manifest for target.
//
// Generation is all-or-nothing: a failure for any component returns an error
// and no partial result. Ports are published only without a domain; with a
// domain, only the reverse proxy publishes ports and every proxy-eligible
// component gets a route plus an HTTP redirect. Dependency edges are checked
// here, so a cycle fails generation rather than deployment.
func (g *Generator) Generate(target domain.InstallationTarget, in GenerateInput) (*Result, error) {
	ids := target.Components()
	if !target.Has(domain.CoreComponent) {
		ids = append([]domain.ComponentID{domain.CoreComponent}, ids...)
	}

	selected := make(map[domain.ComponentID]bool, len(ids))
	for _, id := range ids {
		selected[id] = true
	}

	dc := target.Domain()
	name := target.Name()

	specs := make([]ComponentSpec, 0, len(ids))
	specByID := make(map[domain.ComponentID]ComponentSpec, len(ids))
	for _, id := range ids {
		spec, err := g.catalog.Lookup(id)
		if err != nil {
			return nil, NewGenerationError(string(id), "no catalog entry", err)
		}
		specs = append(specs, spec)
		specByID[id] = spec
	}

	var routed []domain.ComponentID
	if dc != nil {
		for _, spec := range specs {
			if spec.ProxyEligible && spec.Port > 0 {
				routed = append(routed, spec.ID)
			}
		}
	}

	byID := make(map[domain.ComponentID]ServiceDefinition, len(specs))
	volumeKeys := make(map[string]bool)
	nodes := make([]deployment.Node, 0, len(specs))

	for _, spec := range specs {
		def := g.buildService(spec, target, in, dc, selected, routed)
		byID[spec.ID] = def
		for _, v := range spec.Volumes {
			volumeKeys[v.Key] = true
		}
		nodes = append(nodes, deployment.Node{Name: def.Name, DependsOn: def.DependsOn})
	}

	order, err := deployment.Order(nodes)
	if err != nil {
		return nil, NewGenerationError("", "dependency edges are not orderable", err)
	}

	result := &Result{
		Target:   target,
		Services: make([]ServiceDefinition, 0, len(order)),
		Network: compose.Network{
			Key:  NetworkKey,
			Name: deployment.NetworkName(name),
		},
	}
	for _, svcName := range order {
		result.Services = append(result.Services, byID[domain.ComponentID(svcName)])
	}

	keys := make([]string, 0, len(volumeKeys))
	for k := range volumeKeys {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		result.Volumes = append(result.Volumes, compose.Volume{Key: k, Name: deployment.VolumeName(name, k)})
	}

	if dc != nil {
		result.Routes = buildRoutes(target, dc, routed, specByID)
	}

	var required []string
	for _, spec := range specs {
		required = append(required, spec.Credentials...)
	}
	creds, generated, err := g.secrets.Ensure(in.Existing, required)
	if err != nil {
		return nil, NewGenerationError("", "credentials", err)
	}
	result.Credentials = creds
	result.Generated = generated

	if err := Check(result); err != nil {
		return nil, err
	}
	return result, nil
}

func (g *Generator) buildService(
	spec ComponentSpec,
	target domain.InstallationTarget,
	in GenerateInput,
	dc *domain.DomainConfig,
	selected map[domain.ComponentID]bool,
	routed []domain.ComponentID,
) ServiceDefinition {
	name := target.Name()
	svc := compose.Service{
		Name:          string(spec.ID),
		ContainerName: deployment.ContainerName(name, string(spec.ID)),
		Image:         spec.Image,
		Command:       append([]string(nil), spec.Command...),
		Environment:   map[string]string{},
		Networks:      []string{NetworkKey},
		Restart:       compose.RestartUnlessStopped,
		Labels:        map[string]string{},
	}

	ctx := EnvContext{Target: target, Address: in.PublicAddress}
	if dc != nil && spec.ProxyEligible {
		ctx.Hostname = dc.Hostname(spec.ID, spec.DefaultLabel)
	}
	if spec.Env != nil {
		for k, v := range spec.Env(ctx) {
			svc.Environment[k] = v
		}
	}

	localBuild := false
	if spec.ID == domain.CoreComponent && target.Features().MediaTools {
		svc.Image = ImageN8NMedia
		svc.Build = &compose.BuildConfig{Context: "./n8n-media", Dockerfile: "Dockerfile"}
		localBuild = true
	}

	switch {
	case dc == nil && spec.Port > 0:
		svc.Ports = []compose.Port{{Target: uint32(spec.Port), Published: uint32(spec.Port)}}
	case dc != nil:
		for _, p := range spec.PublishedPorts {
			svc.Ports = append(svc.Ports, compose.Port{Target: uint32(p), Published: uint32(p)})
		}
	}

	for _, v := range spec.Volumes {
		svc.Volumes = append(svc.Volumes, compose.VolumeMount{
			Type:   compose.VolumeMountTypeVolume,
			Source: v.Key,
			Target: v.Target,
		})
	}
	for _, m := range spec.Mounts {
		svc.Volumes = append(svc.Volumes, compose.VolumeMount{
			Type:     compose.VolumeMountTypeBind,
			Source:   m.Source,
			Target:   m.Target,
			ReadOnly: m.ReadOnly,
		})
	}

	deps := make(map[domain.ComponentID]bool)
	for _, dep := range spec.DependsOn {
		if selected[dep] && dep != spec.ID {
			deps[dep] = true
		}
	}
	if spec.Proxy {
		for _, dep := range routed {
			if dep != spec.ID {
				deps[dep] = true
			}
		}
	}
	for dep := range deps {
		svc.DependsOn = append(svc.DependsOn, string(dep))
	}
	sort.Strings(svc.DependsOn)

	if selected[domain.ComponentWatchtower] {
		svc.Labels[WatchtowerEnableLabel] = "true"
		if localBuild {
			svc.Labels[WatchtowerEnableLabel] = "false"
		}
	}

	if spec.HealthCheck != nil {
		hc := *spec.HealthCheck
		hc.Test = append([]string(nil), spec.HealthCheck.Test...)
		svc.HealthCheck = &hc
	}

	probe := Probe{Kind: ProbeContainer, Port: spec.Port}
	if dc == nil && spec.ReadinessPath != "" && spec.Port > 0 {
		probe = Probe{Kind: ProbeHTTP, Port: spec.Port, Path: spec.ReadinessPath}
	}

	return ServiceDefinition{Service: svc, Component: spec.ID, Probe: probe}
}

func buildRoutes(
	target domain.InstallationTarget,
	dc *domain.DomainConfig,
	routed []domain.ComponentID,
	specs map[domain.ComponentID]ComponentSpec,
) *RouteConfig {
	rc := &RouteConfig{}
	if strings.Contains(target.AdminIdentity(), "@") {
		rc.Email = target.AdminIdentity()
	}

	for _, id := range routed {
		spec := specs[id]
		hostname := dc.Hostname(id, spec.DefaultLabel)
		rc.Routes = append(rc.Routes, Route{
			Hostname: hostname,
			Service:  string(id),
			Port:     spec.Port,
			TLS:      true,
		})
		rc.Redirects = append(rc.Redirects, Redirect{
			From: "http://" + hostname,
			To:   "https://" + hostname,
		})
	}
	return rc
}

// =============================================================================
// Consistency Check
// =============================================================================

// Check verifies the invariants of a generated manifest: the core component
// appears exactly once, identifiers are unique, every route targets a
// defined service, dependency edges are orderable, and exposure is either
// all ports (no routes) or routes with only the proxy publishing ports.
func Check(r *Result) error {
	seen := make(map[string]bool, len(r.Services))
	core := 0
	nodes := make([]deployment.Node, 0, len(r.Services))
	for _, def := range r.Services {
		if seen[def.Name] {
			return NewGenerationError(def.Name, "defined twice", ErrDuplicateService)
		}
		seen[def.Name] = true
		if def.Component == domain.CoreComponent {
			core++
		}
		nodes = append(nodes, deployment.Node{Name: def.Name, DependsOn: def.DependsOn})
	}
	if core != 1 {
		return NewGenerationError(string(domain.CoreComponent), "core component must appear once", ErrMissingCore)
	}
	if _, err := deployment.Order(nodes); err != nil {
		return NewGenerationError("", "dependency edges are not orderable", err)
	}

	if r.Routes == nil {
		return nil
	}
	if len(r.Routes.Routes) == 0 {
		return NewGenerationError("", "domain mode without routes", ErrMixedExposure)
	}
	for _, route := range r.Routes.Routes {
		if !seen[route.Service] {
			return NewGenerationError(route.Service, "route "+route.Hostname, ErrDanglingRoute)
		}
	}
	for _, def := range r.Services {
		if len(def.Ports) > 0 && def.Component != domain.ComponentCaddy {
			return NewGenerationError(def.Name, "publishes ports in domain mode", ErrMixedExposure)
		}
	}
	return nil
}

// =============================================================================
// Conversions
// =============================================================================

// Spec converts the result into a compose spec for rendering.
func (r *Result) Spec() *compose.ParsedSpec {
	spec := &compose.ParsedSpec{
		Name:     r.Target.Name(),
		Services: make([]compose.Service, 0, len(r.Services)),
		Networks: []compose.Network{r.Network},
		Volumes:  append([]compose.Volume(nil), r.Volumes...),
	}
	for _, def := range r.Services {
		spec.Services = append(spec.Services, def.Service)
	}
	return spec
}

// Caddy converts the routes into a Caddyfile config.
func (rc *RouteConfig) Caddy() caddy.Config {
	cfg := caddy.Config{Email: rc.Email}
	for _, route := range rc.Routes {
		cfg.Sites = append(cfg.Sites, caddy.Site{
			Hostname: route.Hostname,
			Upstream: route.Service + ":" + strPort(route.Port),
			Comment:  route.Service,
		})
	}
	for _, r := range rc.Redirects {
		cfg.Redirects = append(cfg.Redirects, caddy.Redirect{From: r.From, To: r.To})
	}
	return cfg
}

// FirewallPorts lists the TCP ports to allow: SSH plus every published port.
func FirewallPorts(r *Result) []int {
	set := map[int]bool{22: true}
	for _, def := range r.Services {
		for _, p := range def.Ports {
			if p.Published > 0 {
				set[int(p.Published)] = true
			}
		}
	}
	ports := make([]int, 0, len(set))
	for p := range set {
		ports = append(ports, p)
	}
	sort.Ints(ports)
	return ports
}
