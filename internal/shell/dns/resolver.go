// Package dns checks that route hostnames point at this host.
// This is part of the Imperative Shell - handles I/O (DNS lookups).
package dns

import (
	"context"
	"net"

	coredns "github.com/artpar/flowstack/internal/core/dns"
)

// Lookup is the subset of net.Resolver the resolver uses.
type Lookup interface {
	LookupCNAME(ctx context.Context, host string) (string, error)
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

// Resolver performs DNS lookups for domain verification.
type Resolver struct {
	resolver Lookup
}

// NewResolver creates a resolver. A nil lookup uses net.DefaultResolver.
func NewResolver(lookup Lookup) *Resolver {
	if lookup == nil {
		lookup = net.DefaultResolver
	}
	return &Resolver{resolver: lookup}
}

// Resolve performs DNS lookups for the given hostname and returns a VerificationInput
// that can be passed to the pure verification function.
func (r *Resolver) Resolve(ctx context.Context, hostname string) coredns.VerificationInput {
	input := coredns.VerificationInput{
		Hostname: hostname,
	}

	cname, err := r.resolver.LookupCNAME(ctx, hostname)
	if err == nil && cname != "" {
		input.CNAMERecords = []string{cname}
	}

	ips, err := r.resolver.LookupIPAddr(ctx, hostname)
	if err == nil {
		for _, ip := range ips {
			input.ARecords = append(input.ARecords, ip.IP)
		}
	}

	if len(input.CNAMERecords) == 0 && len(input.ARecords) == 0 {
		input.LookupError = "no DNS records found for " + hostname
	}

	return input
}

// VerifyAll resolves every hostname and checks it points at hostIP, directly
// or through an alias of root.
func (r *Resolver) VerifyAll(ctx context.Context, hostnames []string, hostIP, root string) []coredns.VerificationResult {
	results := make([]coredns.VerificationResult, 0, len(hostnames))
	for _, h := range hostnames {
		results = append(results, coredns.Verify(r.Resolve(ctx, h), []string{hostIP}, []string{root}))
	}
	return results
}
