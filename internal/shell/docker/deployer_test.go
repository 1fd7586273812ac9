package docker

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/artpar/flowstack/internal/core/compose"
	"github.com/artpar/flowstack/internal/core/credentials"
	"github.com/artpar/flowstack/internal/core/deployment"
	"github.com/artpar/flowstack/internal/core/domain"
	"github.com/artpar/flowstack/internal/core/manifest"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Test Helpers
// =============================================================================

func deployRequest(t *testing.T, params domain.TargetParams, existing credentials.Set) (DeployRequest, *manifest.Result) {
	t.Helper()
	if params.AdminIdentity == "" {
		params.AdminIdentity = "ops@example.com"
	}
	result, err := manifest.NewGenerator(nil, nil).Generate(
		domain.NewInstallationTarget(params),
		manifest.GenerateInput{PublicAddress: "203.0.113.10", Existing: existing},
	)
	require.NoError(t, err)

	doc, err := manifest.RenderCompose(result)
	require.NoError(t, err)

	return DeployRequest{
		Installation: result.Target.Name(),
		ProjectDir:   "/opt/flowstack",
		Compose:      doc,
		Env:          manifest.EnvValues(result),
	}, result
}

func services(deployed []DeployedContainer) []string {
	out := make([]string, 0, len(deployed))
	for _, c := range deployed {
		out = append(out, c.Service)
	}
	return out
}

// =============================================================================
// Deploy Tests
// =============================================================================

func TestDeploy_FreshInstallation(t *testing.T) {
	f := newFakeClient()
	req, result := deployRequest(t, domain.TargetParams{
		Components: []domain.ComponentID{domain.ComponentQdrant},
	}, nil)

	deployed, err := NewDeployer(f, nil).Deploy(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, []string{"qdrant", "n8n"}, services(deployed))
	for _, c := range deployed {
		assert.Equal(t, ActionCreated, c.Action)
	}

	assert.Contains(t, f.networks, "flowstack_network")
	assert.Contains(t, f.volumes, "flowstack_n8n_data")
	assert.Contains(t, f.volumes, "flowstack_qdrant_data")
	assert.ElementsMatch(t, []string{manifest.ImageN8N, manifest.ImageQdrant}, f.pulled)

	n8n := f.created[1]
	assert.Equal(t, "flowstack_n8n", n8n.Name)
	assert.Equal(t, result.Credentials[credentials.KeyEncryptionKey], n8n.Env["N8N_ENCRYPTION_KEY"])
	assert.Equal(t, result.Credentials[credentials.KeyQdrantAPIKey], n8n.Env["QDRANT_API_KEY"])
	assert.Equal(t, []string{"qdrant", "n8n"}, []string{f.created[0].Labels[deployment.LabelService], n8n.Labels[deployment.LabelService]})
	assert.Equal(t, []string{"n8n"}, n8n.NetworkAliases["flowstack_network"])
	assert.Equal(t, "unless-stopped", n8n.RestartPolicy.Name)
	assert.Equal(t, []string{"flowstack_qdrant", "flowstack_n8n"}, f.started)
}

func TestDeploy_RerunIsIdempotent(t *testing.T) {
	f := newFakeClient()
	req, _ := deployRequest(t, domain.TargetParams{
		Components: []domain.ComponentID{domain.ComponentQdrant},
	}, nil)
	d := NewDeployer(f, nil)

	_, err := d.Deploy(context.Background(), req)
	require.NoError(t, err)
	created := len(f.created)

	deployed, err := d.Deploy(context.Background(), req)
	require.NoError(t, err)

	assert.Len(t, f.created, created)
	assert.Empty(t, f.removed)
	for _, c := range deployed {
		assert.Equal(t, ActionUnchanged, c.Action)
	}
}

func TestDeploy_ChangedConfigurationReplacesContainer(t *testing.T) {
	f := newFakeClient()
	d := NewDeployer(f, nil)

	first, result := deployRequest(t, domain.TargetParams{
		Components: []domain.ComponentID{domain.ComponentQdrant},
	}, nil)
	_, err := d.Deploy(context.Background(), first)
	require.NoError(t, err)

	second, _ := deployRequest(t, domain.TargetParams{
		Components: []domain.ComponentID{domain.ComponentQdrant},
		Timezone:   "Europe/Berlin",
	}, result.Credentials)
	deployed, err := d.Deploy(context.Background(), second)
	require.NoError(t, err)

	actions := map[string]ContainerAction{}
	for _, c := range deployed {
		actions[c.Service] = c.Action
	}
	assert.Equal(t, ActionUnchanged, actions["qdrant"])
	assert.Equal(t, ActionRecreated, actions["n8n"])
	assert.Equal(t, []string{"flowstack_n8n"}, f.removed)
}

func TestDeploy_MediaVariantIsBuilt(t *testing.T) {
	f := newFakeClient()
	req, _ := deployRequest(t, domain.TargetParams{MediaTools: true}, nil)

	_, err := NewDeployer(f, nil).Deploy(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, f.built, 1)
	assert.Equal(t, manifest.ImageN8NMedia, f.built[0].Tag)
	assert.True(t, strings.HasSuffix(f.built[0].ContextDir, "n8n-media"))
	assert.NotContains(t, f.pulled, manifest.ImageN8NMedia)
}

func TestDeploy_ExistingImageIsNotPulled(t *testing.T) {
	f := newFakeClient()
	f.images[manifest.ImageN8N] = true
	req, _ := deployRequest(t, domain.TargetParams{}, nil)

	_, err := NewDeployer(f, nil).Deploy(context.Background(), req)
	require.NoError(t, err)
	assert.Empty(t, f.pulled)
}

func TestDeploy_MissingVariable(t *testing.T) {
	f := newFakeClient()
	req, _ := deployRequest(t, domain.TargetParams{}, nil)
	delete(req.Env, credentials.KeyEncryptionKey)

	_, err := NewDeployer(f, nil).Deploy(context.Background(), req)
	assert.True(t, errors.Is(err, compose.ErrUndefinedVariable))
	assert.Empty(t, f.created)
}

func TestDeploy_StartFailureNamesService(t *testing.T) {
	f := newFakeClient()
	f.errs["StartContainer"] = NewDockerError("StartContainer", "container", "x", "bind", ErrPortAlreadyAllocated)
	req, _ := deployRequest(t, domain.TargetParams{}, nil)

	_, err := NewDeployer(f, nil).Deploy(context.Background(), req)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPortAlreadyAllocated))
	assert.Contains(t, err.Error(), "service n8n")
}

// =============================================================================
// Status and Logs Tests
// =============================================================================

func TestStatus(t *testing.T) {
	f := newFakeClient()
	f.containers["flowstack_n8n"] = &ContainerInfo{ID: "a", Name: "flowstack_n8n", Status: ContainerStatusRunning, Health: "healthy"}
	f.containers["flowstack_qdrant"] = &ContainerInfo{ID: "b", Name: "flowstack_qdrant", Status: ContainerStatusRestarting, RestartCount: 5}

	status, err := NewDeployer(f, nil).Status(context.Background(), "flowstack", []string{"n8n", "qdrant", "dozzle"})
	require.NoError(t, err)

	assert.Equal(t, []domain.ServiceHealth{
		{Service: "n8n", Status: "running", Health: domain.HealthStatusHealthy},
		{Service: "qdrant", Status: "restarting", Health: domain.HealthStatusUnhealthy, Restarts: 5},
		{Service: "dozzle", Status: "missing", Health: domain.HealthStatusUnhealthy},
	}, status)
}

func TestLogs(t *testing.T) {
	var buf bytes.Buffer
	_, _ = stdcopy.NewStdWriter(&buf, stdcopy.Stdout).Write([]byte("listening on 5678\n"))
	_, _ = stdcopy.NewStdWriter(&buf, stdcopy.Stderr).Write([]byte("warning: no license\n"))

	f := newFakeClient()
	f.logs = buf.String()

	out, err := NewDeployer(f, nil).Logs(context.Background(), "flowstack_n8n", 20)
	require.NoError(t, err)
	assert.Equal(t, "listening on 5678\nwarning: no license", out)
}
