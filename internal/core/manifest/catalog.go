package manifest

import (
	"fmt"

	"github.com/artpar/flowstack/internal/core/compose"
	"github.com/artpar/flowstack/internal/core/credentials"
	"github.com/artpar/flowstack/internal/core/domain"
)

// =============================================================================
// Component Catalog
// =============================================================================

// Image references used by the default catalog.
const (
	ImageN8N        = "n8nio/n8n:latest"
	ImageN8NMedia   = "flowstack/n8n-media:latest"
	ImageQdrant     = "qdrant/qdrant:latest"
	ImageCaddy      = "caddy:2-alpine"
	ImagePortainer  = "portainer/portainer-ce:latest"
	ImageDozzle     = "amir20/dozzle:latest"
	ImageWatchtower = "containrrr/watchtower:latest"
)

// Paths of generated files, relative to the config directory.
const (
	EnvFile               = ".env"
	ComposeFile           = "docker-compose.yml"
	Caddyfile             = "Caddyfile"
	DozzleUsersFile       = "dozzle/users.yml"
	PortainerPasswordFile = "portainer/admin_password"
	MediaDockerfile       = "n8n-media/Dockerfile"
	ManageScript          = "manage.sh"
)

// NetworkKey is the compose key of the shared network.
const NetworkKey = "flowstack"

// WatchtowerEnableLabel scopes auto-updates to labeled containers.
const WatchtowerEnableLabel = "com.centurylinklabs.watchtower.enable"

const dockerSocket = "/var/run/docker.sock"

// ProbeKind selects how readiness is checked.
type ProbeKind string

const (
	// ProbeContainer waits for the runtime to report the container healthy
	// (or running, when the image declares no health check).
	ProbeContainer ProbeKind = "container"

	// ProbeHTTP requests Path on the published port and expects a 2xx.
	ProbeHTTP ProbeKind = "http"
)

// Probe is the readiness probe of a service.
type Probe struct {
	Kind ProbeKind
	Port int
	Path string
}

// NamedVolume is a persistent volume owned by one component.
type NamedVolume struct {
	Key    string
	Target string
}

// Mount is a host path mounted into the container. Relative sources are
// resolved against the config directory.
type Mount struct {
	Source   string
	Target   string
	ReadOnly bool
}

// EnvContext is what a component's environment template may read.
type EnvContext struct {
	Target   domain.InstallationTarget
	Hostname string // public hostname in domain mode
	Address  string // public address in port mode
}

// ComponentSpec declares how one component becomes a ServiceDefinition.
type ComponentSpec struct {
	ID    domain.ComponentID
	Image string

	// Port is the internal HTTP port. Zero means the component serves nothing.
	Port int

	// PublishedPorts are bound on the host in domain mode. Only the reverse
	// proxy sets them.
	PublishedPorts []int

	// DefaultLabel is the subdomain label used without an override.
	DefaultLabel string

	// ProxyEligible components get a route in domain mode.
	ProxyEligible bool

	// Proxy marks the reverse proxy. It starts after every routed service.
	Proxy bool

	// ReadinessPath is probed over HTTP on the published port in port mode.
	ReadinessPath string

	Command     []string
	Volumes     []NamedVolume
	Mounts      []Mount
	Credentials []string
	HealthCheck *compose.HealthCheck

	// Env returns the component's environment. Nil means none.
	Env func(EnvContext) map[string]string

	// DependsOn lists the components this one starts after. Edges to
	// components that are not selected are dropped by the generator.
	DependsOn []domain.ComponentID
}

// Catalog maps every known component to its spec.
type Catalog map[domain.ComponentID]ComponentSpec

// Lookup returns the spec for id.
func (c Catalog) Lookup(id domain.ComponentID) (ComponentSpec, error) {
	spec, ok := c[id]
	if !ok {
		return ComponentSpec{}, fmt.Errorf("%w: %s", ErrUnknownComponent, id)
	}
	return spec, nil
}

// DefaultCatalog returns the built-in component catalog.
func DefaultCatalog() Catalog {
	return Catalog{
		domain.ComponentN8N: {
			ID:            domain.ComponentN8N,
			Image:         ImageN8N,
			Port:          5678,
			DefaultLabel:  "n8n",
			ProxyEligible: true,
			ReadinessPath: "/healthz",
			Volumes:       []NamedVolume{{Key: "n8n_data", Target: "/home/node/.n8n"}},
			Credentials:   []string{credentials.KeyEncryptionKey, credentials.KeyN8NAdminPassword},
			HealthCheck: &compose.HealthCheck{
				Test:        []string{"CMD-SHELL", "wget -qO- http://localhost:5678/healthz || exit 1"},
				Interval:    "10s",
				Timeout:     "5s",
				Retries:     6,
				StartPeriod: "30s",
			},
			Env:       n8nEnv,
			DependsOn: []domain.ComponentID{domain.ComponentQdrant},
		},
		domain.ComponentQdrant: {
			ID:            domain.ComponentQdrant,
			Image:         ImageQdrant,
			Port:          6333,
			DefaultLabel:  "qdrant",
			ProxyEligible: true,
			ReadinessPath: "/readyz",
			Volumes:       []NamedVolume{{Key: "qdrant_data", Target: "/qdrant/storage"}},
			Credentials:   []string{credentials.KeyQdrantAPIKey},
			HealthCheck: &compose.HealthCheck{
				Test:     []string{"CMD-SHELL", "bash -c ':> /dev/tcp/127.0.0.1/6333' || exit 1"},
				Interval: "10s",
				Timeout:  "5s",
				Retries:  6,
			},
			Env: func(EnvContext) map[string]string {
				return map[string]string{
					"QDRANT__SERVICE__API_KEY": ref(credentials.KeyQdrantAPIKey),
				}
			},
		},
		domain.ComponentCaddy: {
			ID:             domain.ComponentCaddy,
			Image:          ImageCaddy,
			Proxy:          true,
			PublishedPorts: []int{80, 443},
			Volumes: []NamedVolume{
				{Key: "caddy_data", Target: "/data"},
				{Key: "caddy_config", Target: "/config"},
			},
			Mounts: []Mount{{Source: "./" + Caddyfile, Target: "/etc/caddy/Caddyfile", ReadOnly: true}},
			HealthCheck: &compose.HealthCheck{
				Test:     []string{"CMD-SHELL", "wget -qO- http://localhost:2019/config/ || exit 1"},
				Interval: "10s",
				Timeout:  "5s",
				Retries:  6,
			},
		},
		domain.ComponentPortainer: {
			ID:            domain.ComponentPortainer,
			Image:         ImagePortainer,
			Port:          9000,
			DefaultLabel:  "portainer",
			ProxyEligible: true,
			Command:       []string{"--admin-password-file", "/run/secrets/admin_password"},
			Volumes:       []NamedVolume{{Key: "portainer_data", Target: "/data"}},
			Mounts: []Mount{
				{Source: dockerSocket, Target: dockerSocket},
				{Source: "./" + PortainerPasswordFile, Target: "/run/secrets/admin_password", ReadOnly: true},
			},
			Credentials: []string{credentials.KeyPortainerPassword},
		},
		domain.ComponentDozzle: {
			ID:            domain.ComponentDozzle,
			Image:         ImageDozzle,
			Port:          8080,
			DefaultLabel:  "logs",
			ProxyEligible: true,
			Mounts: []Mount{
				{Source: dockerSocket, Target: dockerSocket, ReadOnly: true},
				{Source: "./dozzle", Target: "/data", ReadOnly: true},
			},
			Credentials: []string{credentials.KeyDozzlePassword},
			HealthCheck: &compose.HealthCheck{
				Test:     []string{"CMD", "/dozzle", "healthcheck"},
				Interval: "10s",
				Timeout:  "5s",
				Retries:  6,
			},
			Env: func(EnvContext) map[string]string {
				return map[string]string{
					"DOZZLE_AUTH_PROVIDER": "simple",
					"DOZZLE_NO_ANALYTICS":  "true",
				}
			},
		},
		domain.ComponentWatchtower: {
			ID:     domain.ComponentWatchtower,
			Image:  ImageWatchtower,
			Mounts: []Mount{{Source: dockerSocket, Target: dockerSocket}},
			Env: func(ctx EnvContext) map[string]string {
				return map[string]string{
					"WATCHTOWER_CLEANUP":      "true",
					"WATCHTOWER_LABEL_ENABLE": "true",
					"WATCHTOWER_SCHEDULE":     "0 0 4 * * *",
					"TZ":                      timezone(ctx.Target),
				}
			},
		},
	}
}

// =============================================================================
// Environment Templates
// =============================================================================

func n8nEnv(ctx EnvContext) map[string]string {
	tz := timezone(ctx.Target)
	env := map[string]string{
		"N8N_PORT":                strPort(5678),
		"GENERIC_TIMEZONE":        tz,
		"TZ":                      tz,
		"N8N_ENCRYPTION_KEY":      ref(credentials.KeyEncryptionKey),
		"N8N_BASIC_AUTH_ACTIVE":   "true",
		"N8N_BASIC_AUTH_USER":     ctx.Target.AdminIdentity(),
		"N8N_BASIC_AUTH_PASSWORD": ref(credentials.KeyN8NAdminPassword),
		"N8N_DIAGNOSTICS_ENABLED": "false",
	}

	if ctx.Target.DomainMode() {
		env["N8N_HOST"] = ctx.Hostname
		env["N8N_PROTOCOL"] = "https"
		env["WEBHOOK_URL"] = "https://" + ctx.Hostname + "/"
	} else {
		env["N8N_HOST"] = ctx.Address
		env["N8N_PROTOCOL"] = "http"
		env["WEBHOOK_URL"] = "http://" + ctx.Address + ":5678/"
		env["N8N_SECURE_COOKIE"] = "false"
	}

	if ctx.Target.Has(domain.ComponentQdrant) {
		env["QDRANT_URL"] = "http://qdrant:6333"
		env["QDRANT_API_KEY"] = ref(credentials.KeyQdrantAPIKey)
	}

	if ctx.Target.Features().MediaTools {
		env["N8N_MEDIA_TOOLS"] = "ffmpeg"
	}

	return env
}

// ref renders a placeholder resolved from the env file.
func ref(key string) string {
	return "${" + key + "}"
}

func timezone(t domain.InstallationTarget) string {
	if t.Timezone() == "" {
		return "UTC"
	}
	return t.Timezone()
}

func strPort(p int) string {
	return fmt.Sprintf("%d", p)
}
