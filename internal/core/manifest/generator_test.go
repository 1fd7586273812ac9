package manifest

import (
	"testing"

	"github.com/artpar/flowstack/internal/core/compose"
	"github.com/artpar/flowstack/internal/core/credentials"
	"github.com/artpar/flowstack/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTarget(components []domain.ComponentID, root string) domain.InstallationTarget {
	return domain.NewInstallationTarget(domain.TargetParams{
		Components:    components,
		Domain:        root,
		AdminIdentity: "ops@example.com",
		Timezone:      "Europe/Berlin",
	})
}

func generate(t *testing.T, target domain.InstallationTarget) *Result {
	t.Helper()
	result, err := NewGenerator(nil, nil).Generate(target, GenerateInput{PublicAddress: "203.0.113.10"})
	require.NoError(t, err)
	return result
}

func serviceNames(r *Result) []string {
	names := make([]string, 0, len(r.Services))
	for _, def := range r.Services {
		names = append(names, def.Name)
	}
	return names
}

// subsets returns every subset of the optional components.
func subsets() [][]domain.ComponentID {
	optional := domain.OptionalComponents()
	var out [][]domain.ComponentID
	for mask := 0; mask < 1<<len(optional); mask++ {
		var set []domain.ComponentID
		for i, c := range optional {
			if mask&(1<<i) != 0 {
				set = append(set, c)
			}
		}
		out = append(out, set)
	}
	return out
}

// =============================================================================
// Scenario Tests
// =============================================================================

func TestGenerate_CoreOnlyWithoutDomain(t *testing.T) {
	result := generate(t, newTarget(nil, ""))

	require.Len(t, result.Services, 1)
	n8n := result.Services[0]
	assert.Equal(t, domain.ComponentN8N, n8n.Component)
	assert.Equal(t, []compose.Port{{Target: 5678, Published: 5678}}, n8n.Ports)
	assert.Nil(t, result.Routes)
	assert.Equal(t, ProbeHTTP, n8n.Probe.Kind)
	assert.Equal(t, "http://203.0.113.10:5678/", n8n.Environment["WEBHOOK_URL"])
}

func TestGenerate_ProxyAndVectorDBWithDomain(t *testing.T) {
	result := generate(t, newTarget([]domain.ComponentID{domain.ComponentCaddy, domain.ComponentQdrant}, "example.com"))

	assert.Equal(t, []string{"qdrant", "n8n", "caddy"}, serviceNames(result))
	for _, def := range result.Services {
		if def.Component == domain.ComponentCaddy {
			assert.Equal(t, []compose.Port{{Target: 80, Published: 80}, {Target: 443, Published: 443}}, def.Ports)
			continue
		}
		assert.Empty(t, def.Ports, def.Name)
	}

	require.NotNil(t, result.Routes)
	assert.Equal(t, []Route{
		{Hostname: "n8n.example.com", Service: "n8n", Port: 5678, TLS: true},
		{Hostname: "qdrant.example.com", Service: "qdrant", Port: 6333, TLS: true},
	}, result.Routes.Routes)
	assert.Equal(t, []Redirect{
		{From: "http://n8n.example.com", To: "https://n8n.example.com"},
		{From: "http://qdrant.example.com", To: "https://qdrant.example.com"},
	}, result.Routes.Redirects)
	assert.Equal(t, "ops@example.com", result.Routes.Email)

	caddy, ok := result.Service(domain.ComponentCaddy)
	require.True(t, ok)
	assert.Equal(t, []string{"n8n", "qdrant"}, caddy.DependsOn)

	n8n, _ := result.Service(domain.ComponentN8N)
	assert.Equal(t, "https://n8n.example.com/", n8n.Environment["WEBHOOK_URL"])
	assert.Equal(t, "http://qdrant:6333", n8n.Environment["QDRANT_URL"])
	assert.Equal(t, "${QDRANT_API_KEY}", n8n.Environment["QDRANT_API_KEY"])
	assert.Equal(t, ProbeContainer, n8n.Probe.Kind)
}

// =============================================================================
// Property Tests
// =============================================================================

func TestGenerate_Deterministic(t *testing.T) {
	for _, root := range []string{"", "example.com"} {
		for _, set := range subsets() {
			target := newTarget(set, root)
			gen := NewGenerator(nil, nil)

			first, err := gen.Generate(target, GenerateInput{PublicAddress: "203.0.113.10"})
			require.NoError(t, err)
			second, err := gen.Generate(target, GenerateInput{PublicAddress: "203.0.113.10", Existing: first.Credentials})
			require.NoError(t, err)

			assert.Equal(t, first.Services, second.Services)
			assert.Equal(t, first.Routes, second.Routes)
			assert.Equal(t, first.Credentials, second.Credentials)
			assert.Empty(t, second.Generated)
		}
	}
}

func TestGenerate_ExposureModesNeverMix(t *testing.T) {
	catalog := DefaultCatalog()
	for _, root := range []string{"", "example.com"} {
		for _, set := range subsets() {
			result := generate(t, newTarget(set, root))

			if root == "" {
				assert.Nil(t, result.Routes)
				for _, def := range result.Services {
					if catalog[def.Component].Port > 0 {
						assert.NotEmpty(t, def.Ports, "%v: %s", set, def.Name)
					} else {
						assert.Empty(t, def.Ports, "%v: %s", set, def.Name)
					}
				}
				continue
			}

			require.NotNil(t, result.Routes)
			assert.NotEmpty(t, result.Routes.Routes)
			assert.Len(t, result.Routes.Redirects, len(result.Routes.Routes))
			for _, def := range result.Services {
				if def.Component != domain.ComponentCaddy {
					assert.Empty(t, def.Ports, "%v: %s", set, def.Name)
				}
			}
		}
	}
}

func TestGenerate_DependenciesPrecedeDependents(t *testing.T) {
	for _, root := range []string{"", "example.com"} {
		for _, set := range subsets() {
			result := generate(t, newTarget(set, root))

			position := make(map[string]int)
			for i, def := range result.Services {
				position[def.Name] = i
			}
			for _, def := range result.Services {
				for _, dep := range def.DependsOn {
					depPos, ok := position[dep]
					require.True(t, ok, "%s depends on missing %s", def.Name, dep)
					assert.Less(t, depPos, position[def.Name])
				}
			}
		}
	}
}

func TestGenerate_CoreExactlyOnce(t *testing.T) {
	for _, root := range []string{"", "example.com"} {
		for _, set := range subsets() {
			result := generate(t, newTarget(set, root))

			count := 0
			for _, def := range result.Services {
				if def.Component == domain.CoreComponent {
					count++
				}
			}
			assert.Equal(t, 1, count, "%v", set)
		}
	}
}

func TestGenerate_ZeroTargetStillHasCore(t *testing.T) {
	result, err := NewGenerator(nil, nil).Generate(domain.InstallationTarget{}, GenerateInput{})
	require.NoError(t, err)
	assert.Equal(t, []string{"n8n"}, serviceNames(result))
}

func TestGenerate_RoutesReferenceServices(t *testing.T) {
	for _, set := range subsets() {
		result := generate(t, newTarget(set, "example.com"))
		for _, route := range result.Routes.Routes {
			def, ok := result.Service(domain.ComponentID(route.Service))
			require.True(t, ok, route.Service)
			assert.Equal(t, DefaultCatalog()[def.Component].Port, route.Port)
		}
	}
}

// =============================================================================
// Generation Rules
// =============================================================================

func TestGenerate_CycleIsRejected(t *testing.T) {
	catalog := DefaultCatalog()
	qdrant := catalog[domain.ComponentQdrant]
	qdrant.DependsOn = []domain.ComponentID{domain.ComponentN8N}
	catalog[domain.ComponentQdrant] = qdrant

	_, err := NewGenerator(catalog, nil).Generate(newTarget([]domain.ComponentID{domain.ComponentQdrant}, ""), GenerateInput{})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCircularDependency)
	var genErr *GenerationError
	assert.ErrorAs(t, err, &genErr)
}

func TestGenerate_UnknownCatalogEntry(t *testing.T) {
	catalog := DefaultCatalog()
	delete(catalog, domain.ComponentDozzle)

	_, err := NewGenerator(catalog, nil).Generate(newTarget([]domain.ComponentID{domain.ComponentDozzle}, ""), GenerateInput{})
	assert.ErrorIs(t, err, ErrUnknownComponent)
}

func TestGenerate_SubdomainOverrides(t *testing.T) {
	target := domain.NewInstallationTarget(domain.TargetParams{
		Components: []domain.ComponentID{domain.ComponentDozzle},
		Domain:     "example.com",
		Subdomains: map[domain.ComponentID]string{
			domain.ComponentN8N:    "flows",
			domain.ComponentQdrant: "vectors",
		},
		AdminIdentity: "admin",
	})
	result := generate(t, target)

	var hosts []string
	for _, r := range result.Routes.Routes {
		hosts = append(hosts, r.Hostname)
	}
	assert.Equal(t, []string{"flows.example.com", "logs.example.com"}, hosts)
	assert.Empty(t, result.Routes.Email)
}

func TestGenerate_MediaToolsSwapsImage(t *testing.T) {
	target := domain.NewInstallationTarget(domain.TargetParams{
		Components:    []domain.ComponentID{domain.ComponentWatchtower},
		AdminIdentity: "admin",
		MediaTools:    true,
	})
	result := generate(t, target)

	require.Len(t, result.Services, 2)
	n8n, _ := result.Service(domain.ComponentN8N)
	assert.Equal(t, ImageN8NMedia, n8n.Image)
	require.NotNil(t, n8n.Build)
	assert.Equal(t, "./n8n-media", n8n.Build.Context)
	assert.Equal(t, "false", n8n.Labels[WatchtowerEnableLabel])

	watchtower, _ := result.Service(domain.ComponentWatchtower)
	assert.Equal(t, "true", watchtower.Labels[WatchtowerEnableLabel])
	assert.Empty(t, watchtower.Ports)
}

func TestGenerate_NoWatchtowerNoLabels(t *testing.T) {
	result := generate(t, newTarget([]domain.ComponentID{domain.ComponentQdrant}, ""))
	for _, def := range result.Services {
		assert.NotContains(t, def.Labels, WatchtowerEnableLabel)
	}
}

func TestGenerate_NamesFollowInstallation(t *testing.T) {
	target := domain.NewInstallationTarget(domain.TargetParams{
		Name:          "acme",
		Components:    []domain.ComponentID{domain.ComponentQdrant},
		AdminIdentity: "admin",
	})
	result := generate(t, target)

	n8n, _ := result.Service(domain.ComponentN8N)
	assert.Equal(t, "acme_n8n", n8n.ContainerName)
	assert.Equal(t, "acme_network", result.Network.Name)
	assert.Equal(t, []compose.Volume{
		{Key: "n8n_data", Name: "acme_n8n_data"},
		{Key: "qdrant_data", Name: "acme_qdrant_data"},
	}, result.Volumes)
}

func TestGenerate_Credentials(t *testing.T) {
	existing := credentials.Set{credentials.KeyEncryptionKey: "existing-encryption-key"}
	result, err := NewGenerator(nil, nil).Generate(
		newTarget([]domain.ComponentID{domain.ComponentQdrant, domain.ComponentPortainer}, ""),
		GenerateInput{Existing: existing},
	)
	require.NoError(t, err)

	assert.Equal(t, "existing-encryption-key", result.Credentials[credentials.KeyEncryptionKey])
	assert.Equal(t, []string{
		credentials.KeyEncryptionKey,
		credentials.KeyN8NAdminPassword,
		credentials.KeyPortainerPassword,
		credentials.KeyQdrantAPIKey,
	}, result.Credentials.Keys())
	assert.NotContains(t, result.Generated, credentials.KeyEncryptionKey)
}

func TestFirewallPorts(t *testing.T) {
	portMode := generate(t, newTarget([]domain.ComponentID{domain.ComponentQdrant, domain.ComponentDozzle}, ""))
	assert.Equal(t, []int{22, 5678, 6333, 8080}, FirewallPorts(portMode))

	domainMode := generate(t, newTarget([]domain.ComponentID{domain.ComponentQdrant, domain.ComponentDozzle}, "example.com"))
	assert.Equal(t, []int{22, 80, 443}, FirewallPorts(domainMode))
}

// =============================================================================
// Check Tests
// =============================================================================

func TestCheck(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Result)
		wantErr error
	}{
		{
			name:    "duplicate",
			mutate:  func(r *Result) { r.Services = append(r.Services, r.Services[0]) },
			wantErr: ErrDuplicateService,
		},
		{
			name: "missing core",
			mutate: func(r *Result) {
				r.Services = r.Services[:1]
				r.Routes = nil
			},
			wantErr: ErrMissingCore,
		},
		{
			name:    "dangling route",
			mutate:  func(r *Result) { r.Routes.Routes[0].Service = "ghost" },
			wantErr: ErrDanglingRoute,
		},
		{
			name: "mixed exposure",
			mutate: func(r *Result) {
				for i := range r.Services {
					if r.Services[i].Component == domain.ComponentQdrant {
						r.Services[i].Ports = []compose.Port{{Target: 6333, Published: 6333}}
					}
				}
			},
			wantErr: ErrMixedExposure,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := generate(t, newTarget([]domain.ComponentID{domain.ComponentQdrant}, "example.com"))
			require.NoError(t, Check(result))

			tt.mutate(result)
			assert.ErrorIs(t, Check(result), tt.wantErr)
		})
	}
}
