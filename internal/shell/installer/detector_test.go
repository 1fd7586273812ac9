package installer

import (
	"context"
	"errors"
	"testing"

	"github.com/artpar/flowstack/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingInspector struct{}

func (failingInspector) Kind() domain.ResourceKind { return domain.ResourceVolumes }

func (failingInspector) Inspect(context.Context) ([]string, error) {
	return nil, errors.New("permission denied")
}

// =============================================================================
// Detector Tests
// =============================================================================

func TestDetector_Detect(t *testing.T) {
	host := newFakeHost()
	host.add(domain.ResourceContainers, "flowstack_n8n")
	host.add(domain.ResourceNetwork, "flowstack_network")

	d := NewDetector(nil,
		host.inspector(domain.ResourceContainers),
		host.inspector(domain.ResourceVolumes),
		host.inspector(domain.ResourceNetwork),
	)
	state, err := d.Detect(context.Background())
	require.NoError(t, err)

	assert.True(t, state.Exists())
	assert.Equal(t, []string{"flowstack_n8n"}, state.Names(domain.ResourceContainers))
	assert.False(t, state.Present(domain.ResourceVolumes))
	assert.True(t, state.Present(domain.ResourceNetwork))
}

func TestDetector_Empty(t *testing.T) {
	state, err := NewDetector(nil, newFakeHost().inspector(domain.ResourceContainers)).Detect(context.Background())
	require.NoError(t, err)
	assert.False(t, state.Exists())
}

func TestDetector_InspectorError(t *testing.T) {
	_, err := NewDetector(nil, failingInspector{}).Detect(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "inspect volumes: permission denied")
}

// =============================================================================
// Disposition Tests
// =============================================================================

func TestDispositionPolicy_Resolve(t *testing.T) {
	existing := domain.NewInstallationState().With(domain.ResourceContainers, "flowstack_n8n")

	tests := []struct {
		name     string
		state    domain.InstallationState
		policy   DispositionPolicy
		expected domain.Disposition
		err      error
	}{
		{
			name:     "nothing installed",
			state:    domain.NewInstallationState(),
			policy:   DispositionPolicy{UnattendedDefault: domain.DispositionFail},
			expected: domain.DispositionNone,
		},
		{
			name:     "configured wins over chooser",
			state:    existing,
			policy:   DispositionPolicy{Configured: domain.DispositionClean, Chooser: &fakeChooser{answer: domain.DispositionKeep}},
			expected: domain.DispositionClean,
		},
		{
			name:     "attended asks",
			state:    existing,
			policy:   DispositionPolicy{Chooser: &fakeChooser{answer: domain.DispositionReuse}, UnattendedDefault: domain.DispositionFail},
			expected: domain.DispositionReuse,
		},
		{
			name:     "unattended default keep",
			state:    existing,
			policy:   DispositionPolicy{UnattendedDefault: domain.DispositionKeep},
			expected: domain.DispositionKeep,
		},
		{
			name:   "unattended default fail",
			state:  existing,
			policy: DispositionPolicy{UnattendedDefault: domain.DispositionFail},
			err:    ErrNoDisposition,
		},
		{
			name:   "nothing configured at all",
			state:  existing,
			policy: DispositionPolicy{},
			err:    ErrNoDisposition,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.policy.Resolve(context.Background(), tt.state)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}
