package domain

import "strings"

// =============================================================================
// Label Normalization
// =============================================================================

// Slugify turns free-form input into a DNS-label candidate.
//
// The rules are:
//   - Letters are lowercased, digits and hyphens are kept
//   - Runs of spaces, underscores and dots collapse into one hyphen
//   - Everything else is dropped
//   - Leading and trailing hyphens are trimmed
//
// The result is not guaranteed to be a valid label (it may be empty or too
// long); validation.ValidateLabel has the final word.
//
// Example:
//
//	Slugify("My Workflows")  // returns "my-workflows"
//	Slugify("logs_viewer")   // returns "logs-viewer"
//	Slugify(" N8N! ")        // returns "n8n"
func Slugify(name string) string {
	var b strings.Builder
	pendingHyphen := false
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
		case r >= 'A' && r <= 'Z':
			r += 'a' - 'A'
		case r == '-' || r == ' ' || r == '_' || r == '.':
			pendingHyphen = b.Len() > 0
			continue
		default:
			continue
		}
		if pendingHyphen {
			b.WriteByte('-')
			pendingHyphen = false
		}
		b.WriteRune(r)
	}
	return b.String()
}

// ResourcePrefix turns an installation name into a prefix for container,
// volume and network names. Empty results fall back to the default name.
func ResourcePrefix(name string) string {
	if prefix := Slugify(name); prefix != "" {
		return prefix
	}
	return DefaultInstallationName
}
