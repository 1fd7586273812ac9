package caddy

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"text/template"
)

var (
	ErrNoSites         = errors.New("caddyfile needs at least one site")
	ErrInvalidHostname = errors.New("invalid site hostname")
	ErrInvalidUpstream = errors.New("invalid upstream")
	ErrDuplicateSite   = errors.New("duplicate site hostname")
	ErrInvalidRedirect = errors.New("invalid redirect")
	ErrUnsafeDirective = errors.New("value would break the caddyfile syntax")
)

var (
	hostnameRegex = regexp.MustCompile(`^([a-z0-9]([a-z0-9\-]{0,61}[a-z0-9])?\.)+[a-z]{2,}$`)
	upstreamRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9_\-\.]*:[0-9]{1,5}$`)
)

const caddyfileTemplate = `# Generated by flowstack. Changes are overwritten on the next run.
{{- if .Email}}
{
	email {{.Email}}
}
{{- end}}
{{range .Sites}}
# {{.Comment}}
https://{{.Hostname}} {
	encode gzip
	reverse_proxy {{.Upstream}}
}
{{end}}
{{- range .Redirects}}
{{.From}} {
	redir {{.To}}{uri} permanent
}
{{end -}}
`

var tmpl = template.Must(template.New("Caddyfile").Parse(caddyfileTemplate))

// Validate checks a Config without rendering it.
func Validate(cfg Config) error {
	if len(cfg.Sites) == 0 {
		return ErrNoSites
	}
	if strings.ContainsAny(cfg.Email, " \t\n{}") {
		return fmt.Errorf("%w: email %q", ErrUnsafeDirective, cfg.Email)
	}

	seen := make(map[string]bool, len(cfg.Sites))
	for _, site := range cfg.Sites {
		if !hostnameRegex.MatchString(site.Hostname) {
			return fmt.Errorf("%w: %q", ErrInvalidHostname, site.Hostname)
		}
		if seen[site.Hostname] {
			return fmt.Errorf("%w: %q", ErrDuplicateSite, site.Hostname)
		}
		seen[site.Hostname] = true
		if !upstreamRegex.MatchString(site.Upstream) {
			return fmt.Errorf("%w: %q", ErrInvalidUpstream, site.Upstream)
		}
		if strings.ContainsAny(site.Comment, "\n") {
			return fmt.Errorf("%w: comment for %q", ErrUnsafeDirective, site.Hostname)
		}
	}

	for _, r := range cfg.Redirects {
		from := strings.TrimPrefix(r.From, "http://")
		to := strings.TrimPrefix(r.To, "https://")
		if from == r.From || to == r.To || !hostnameRegex.MatchString(from) || !hostnameRegex.MatchString(to) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidRedirect, r.From, r.To)
		}
	}
	return nil
}

// Render serializes cfg into a Caddyfile. Sites and redirects keep the
// order they are given in.
func Render(cfg Config) ([]byte, error) {
	if err := Validate(cfg); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, cfg); err != nil {
		return nil, fmt.Errorf("render caddyfile: %w", err)
	}
	return buf.Bytes(), nil
}
