// Package dns contains pure functions for checking that route hostnames
// point at this host. This is part of the Functional Core: lookups happen in
// the shell and their results are passed in.
package dns

import (
	"net"
	"sort"
	"strings"
)

// =============================================================================
// Verification
// =============================================================================

// Method is how a hostname was found to point at the host.
type Method string

const (
	MethodA     Method = "A"
	MethodCNAME Method = "CNAME"
)

// VerificationInput contains DNS lookup results passed from the shell layer.
type VerificationInput struct {
	Hostname     string
	CNAMERecords []string
	ARecords     []net.IP
	LookupError  string
}

// VerificationResult is the pure output of verification logic.
type VerificationResult struct {
	Hostname string
	Verified bool
	Method   Method
	Error    string
}

// Verify checks whether a hostname resolves to one of expectedIPs, or is an
// alias of one of expectedAliases (typically the root domain).
func Verify(input VerificationInput, expectedIPs []string, expectedAliases []string) VerificationResult {
	result := VerificationResult{Hostname: input.Hostname}

	if input.LookupError != "" {
		result.Error = "DNS lookup failed: " + input.LookupError
		return result
	}

	for _, cname := range input.CNAMERecords {
		cname = strings.TrimSuffix(cname, ".")
		if strings.EqualFold(cname, input.Hostname) {
			continue
		}
		for _, alias := range expectedAliases {
			if strings.EqualFold(cname, alias) {
				result.Verified = true
				result.Method = MethodCNAME
				return result
			}
		}
	}

	for _, aRecord := range input.ARecords {
		for _, expectedIP := range expectedIPs {
			if ip := net.ParseIP(expectedIP); ip != nil && aRecord.Equal(ip) {
				result.Verified = true
				result.Method = MethodA
				return result
			}
		}
	}

	result.Error = "DNS records do not point to this host"
	return result
}

// Unverified returns the hostnames whose verification failed, sorted.
func Unverified(results []VerificationResult) []string {
	var out []string
	for _, r := range results {
		if !r.Verified {
			out = append(out, r.Hostname)
		}
	}
	sort.Strings(out)
	return out
}

// =============================================================================
// DNS Instructions
// =============================================================================

// DNSInstruction represents a DNS record the user needs to create.
type DNSInstruction struct {
	Type  string `json:"type"`
	Name  string `json:"name"`
	Value string `json:"value"`
}

// GenerateInstructions returns one A record per hostname pointing at hostIP.
func GenerateInstructions(hostnames []string, hostIP string) []DNSInstruction {
	instructions := make([]DNSInstruction, 0, len(hostnames))
	for _, h := range hostnames {
		instructions = append(instructions, DNSInstruction{Type: "A", Name: h, Value: hostIP})
	}
	return instructions
}
