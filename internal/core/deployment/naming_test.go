package deployment

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

// =============================================================================
// Naming Tests
// =============================================================================

func TestNetworkName(t *testing.T) {
	assert.Equal(t, "flowstack_network", NetworkName("flowstack"))
	assert.Equal(t, "lab_network", NetworkName("lab"))
}

func TestVolumeName(t *testing.T) {
	assert.Equal(t, "flowstack_n8n_data", VolumeName("flowstack", "n8n_data"))
	assert.Equal(t, "flowstack_", VolumeName("flowstack", ""))
}

func TestContainerName(t *testing.T) {
	assert.Equal(t, "flowstack_n8n", ContainerName("flowstack", "n8n"))
	assert.Equal(t, "lab_qdrant", ContainerName("lab", "qdrant"))
}

func TestResourcePrefix_MatchesGeneratedNames(t *testing.T) {
	prefix := ResourcePrefix("flowstack")

	for _, name := range []string{
		NetworkName("flowstack"),
		VolumeName("flowstack", "n8n_data"),
		ContainerName("flowstack", "caddy"),
	} {
		assert.True(t, strings.HasPrefix(name, prefix), name)
	}
	assert.False(t, strings.HasPrefix(ContainerName("flowstack2", "n8n"), prefix))
}
