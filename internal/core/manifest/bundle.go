package manifest

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"text/template"

	"github.com/artpar/flowstack/internal/core/caddy"
	"github.com/artpar/flowstack/internal/core/compose"
	"github.com/artpar/flowstack/internal/core/credentials"
	"github.com/artpar/flowstack/internal/core/domain"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// Bundle
// =============================================================================

// File is one generated artifact, relative to the config directory.
type File struct {
	Path    string
	Content []byte
	Mode    os.FileMode
}

// Secret reports whether the file holds credentials.
func (f File) Secret() bool {
	return f.Mode&0o077 == 0
}

// Bundle renders every artifact of a result, in write order.
//
// The env file comes first so that credentials exist on disk before any
// document referencing them. The compose document is parsed back and its
// placeholders are checked against the env file before it is returned.
func Bundle(r *Result) ([]File, error) {
	env := EnvValues(r)
	envContent, err := godotenv.Marshal(env)
	if err != nil {
		return nil, NewGenerationError("", "env file", err)
	}

	files := []File{{Path: EnvFile, Content: []byte(envContent + "\n"), Mode: 0o600}}

	if r.Target.Has(domain.ComponentPortainer) {
		files = append(files, File{
			Path:    PortainerPasswordFile,
			Content: []byte(r.Credentials[credentials.KeyPortainerPassword]),
			Mode:    0o600,
		})
	}

	if r.Target.Has(domain.ComponentDozzle) {
		users, err := DozzleUsers(r.Target.AdminIdentity(), r.Credentials[credentials.KeyDozzlePassword])
		if err != nil {
			return nil, NewGenerationError(string(domain.ComponentDozzle), "users file", err)
		}
		files = append(files, File{Path: DozzleUsersFile, Content: users, Mode: 0o600})
	}

	if r.Routes != nil {
		doc, err := caddy.Render(r.Routes.Caddy())
		if err != nil {
			return nil, NewGenerationError(string(domain.ComponentCaddy), "caddyfile", err)
		}
		files = append(files, File{Path: Caddyfile, Content: doc, Mode: 0o644})
	}

	if r.Target.Features().MediaTools {
		files = append(files, File{Path: MediaDockerfile, Content: []byte(mediaDockerfile), Mode: 0o644})
	}

	doc, err := RenderCompose(r)
	if err != nil {
		return nil, err
	}
	if err := compose.CheckVariables(string(doc), env); err != nil {
		return nil, NewGenerationError("", "compose variables", err)
	}
	files = append(files, File{Path: ComposeFile, Content: doc, Mode: 0o644})

	script, err := ManageScriptFor(r)
	if err != nil {
		return nil, err
	}
	files = append(files, File{Path: ManageScript, Content: script, Mode: 0o755})

	return files, nil
}

// OptionalFiles lists the artifacts that only exist for some targets.
func OptionalFiles() []string {
	return []string{Caddyfile, DozzleUsersFile, PortainerPasswordFile, MediaDockerfile}
}

// StaleFiles returns the optional artifacts that a bundle no longer contains.
// They are left over from an earlier run with a different selection.
func StaleFiles(files []File) []string {
	present := make(map[string]bool, len(files))
	for _, f := range files {
		present[f.Path] = true
	}
	var stale []string
	for _, path := range OptionalFiles() {
		if !present[path] {
			stale = append(stale, path)
		}
	}
	return stale
}

// =============================================================================
// Documents
// =============================================================================

// EnvValues is the content of the env file: the compose project name plus
// every credential.
func EnvValues(r *Result) map[string]string {
	env := make(map[string]string, len(r.Credentials)+1)
	for k, v := range r.Credentials {
		env[k] = v
	}
	env["COMPOSE_PROJECT_NAME"] = r.Target.Name()
	return env
}

// RenderCompose renders and validates the compose document.
func RenderCompose(r *Result) ([]byte, error) {
	doc, err := compose.Render(r.Spec())
	if err != nil {
		return nil, NewGenerationError("", "compose document", err)
	}
	if _, err := compose.ParseComposeSpec(string(doc)); err != nil {
		return nil, NewGenerationError("", "compose document does not load", err)
	}
	return doc, nil
}

type dozzleUser struct {
	Name     string `yaml:"name"`
	Email    string `yaml:"email,omitempty"`
	Password string `yaml:"password"`
}

// DozzleUsers renders Dozzle's users file with a bcrypt hash of password.
func DozzleUsers(identity, password string) ([]byte, error) {
	hash, err := credentials.HashPassword(password)
	if err != nil {
		return nil, err
	}

	username := identity
	user := dozzleUser{Name: identity, Password: hash}
	if at := strings.Index(identity, "@"); at > 0 {
		username = identity[:at]
		user.Name = username
		user.Email = identity
	}

	doc := map[string]map[string]dozzleUser{"users": {username: user}}
	out, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal dozzle users: %w", err)
	}
	return out, nil
}

const mediaDockerfile = `FROM n8nio/n8n:latest
USER root
RUN apk add --no-cache ffmpeg imagemagick poppler-utils
USER node
`

const manageTemplate = `#!/usr/bin/env bash
# Generated by flowstack. Manages the {{.Project}} stack.
set -euo pipefail
cd "$(dirname "$0")"

compose() {
	docker compose -p {{.Project}} -f {{.ComposeFile}} --env-file {{.EnvFile}} "$@"
}

case "${1:-}" in
	start)   compose up -d ;;
	stop)    compose stop ;;
	restart) compose restart {{"${2:-}"}} ;;
	status)  compose ps ;;
	logs)    compose logs -f --tail=100 {{"${2:-}"}} ;;
	update)
		compose pull --ignore-buildable
		compose up -d{{if .Build}} --build{{end}} --remove-orphans
		;;
	*)
		echo "usage: $0 {start|stop|restart|status|logs|update} [service]" >&2
		exit 1
		;;
esac
`

var manageTmpl = template.Must(template.New("manage.sh").Parse(manageTemplate))

// ManageScriptFor renders the helper script for a result.
func ManageScriptFor(r *Result) ([]byte, error) {
	var buf bytes.Buffer
	err := manageTmpl.Execute(&buf, map[string]any{
		"Project":     r.Target.Name(),
		"ComposeFile": ComposeFile,
		"EnvFile":     EnvFile,
		"Build":       r.Target.Features().MediaTools,
	})
	if err != nil {
		return nil, NewGenerationError("", "manage script", err)
	}
	return buf.Bytes(), nil
}
