package deployment

import "fmt"

// =============================================================================
// Resource Naming Functions
// =============================================================================

// NetworkName generates the shared network name of an installation.
// Pattern: {installation}_network
//
// Example:
//
//	NetworkName("flowstack") // returns "flowstack_network"
func NetworkName(installation string) string {
	return fmt.Sprintf("%s_network", installation)
}

// VolumeName generates a named volume for an installation.
// Pattern: {installation}_{volumeName}
//
// Example:
//
//	VolumeName("flowstack", "n8n_data") // returns "flowstack_n8n_data"
func VolumeName(installation, volumeName string) string {
	return fmt.Sprintf("%s_%s", installation, volumeName)
}

// ContainerName generates the container name of a service.
// Pattern: {installation}_{serviceName}
//
// Example:
//
//	ContainerName("flowstack", "n8n") // returns "flowstack_n8n"
func ContainerName(installation, serviceName string) string {
	return fmt.Sprintf("%s_%s", installation, serviceName)
}

// ResourcePrefix is the prefix shared by every container and volume of an
// installation. The state detector matches resources against it.
func ResourcePrefix(installation string) string {
	return installation + "_"
}
