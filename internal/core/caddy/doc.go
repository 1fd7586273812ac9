// Package caddy renders reverse proxy routes as a Caddyfile.
//
// This package is part of the functional core: Render is a pure function
// from a Config value to the document bytes. The same Config always renders
// to the same bytes.
//
// # Functions
//
//   - Render: Serialize a Config into a Caddyfile
//   - Validate: Check hostnames and upstreams before rendering
//
// # Usage
//
//	out, err := caddy.Render(caddy.Config{
//	    Email: "ops@example.com",
//	    Sites: []caddy.Site{{Hostname: "n8n.example.com", Upstream: "n8n:5678"}},
//	    Redirects: []caddy.Redirect{{From: "http://n8n.example.com", To: "https://n8n.example.com"}},
//	})
package caddy
