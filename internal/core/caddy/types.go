package caddy

// =============================================================================
// Caddyfile Types
// =============================================================================

// Config is everything the Caddyfile describes.
type Config struct {
	// Email is the ACME account address. Empty leaves it unset.
	Email string

	// Sites are the TLS site blocks, one per public hostname.
	Sites []Site

	// Redirects are plain HTTP site blocks that redirect to HTTPS.
	Redirects []Redirect
}

// Site proxies one hostname to an upstream on the internal network.
type Site struct {
	// Hostname is the public name, e.g. "n8n.example.com".
	Hostname string

	// Upstream is the internal address, e.g. "n8n:5678".
	Upstream string

	// Comment names the component behind the site.
	Comment string
}

// Redirect sends every request on From to the same URI on To.
type Redirect struct {
	From string
	To   string
}
