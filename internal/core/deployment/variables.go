package deployment

import (
	"regexp"
	"sort"
)

// =============================================================================
// Variable Substitution Functions
// =============================================================================

// varPlaceholderRegex matches ${VAR} and ${VAR:-default} patterns.
// Groups:
//   - Group 1: Variable name
//   - Group 2: ":-default" when a default is given (may be ":-")
//   - Group 3: Default value
var varPlaceholderRegex = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// SubstituteVariables replaces ${VAR} and ${VAR:-default} placeholders with
// values from the env file.
//
// Behavior:
//   - ${VAR} - replaced with variables["VAR"] if present, otherwise kept as-is
//   - ${VAR:-default} - replaced with variables["VAR"] if present, otherwise "default"
//   - Unmatched text is left unchanged
//
// Examples:
//
//	SubstituteVariables("${N8N_ENCRYPTION_KEY}", map[string]string{"N8N_ENCRYPTION_KEY": "k"})
//	// Returns: "k"
//
//	SubstituteVariables("${TZ:-UTC}", nil)
//	// Returns: "UTC"
//
//	SubstituteVariables("${MISSING}", nil)
//	// Returns: "${MISSING}"
func SubstituteVariables(value string, variables map[string]string) string {
	return varPlaceholderRegex.ReplaceAllStringFunc(value, func(match string) string {
		m := varPlaceholderRegex.FindStringSubmatch(match)
		if val, ok := variables[m[1]]; ok {
			return val
		}
		if m[2] != "" {
			return m[3]
		}
		return match
	})
}

// UnresolvedVariables returns the sorted, de-duplicated names of placeholders
// left in values after substitution.
func UnresolvedVariables(values map[string]string) []string {
	seen := make(map[string]bool)
	for _, v := range values {
		for _, m := range varPlaceholderRegex.FindAllStringSubmatch(v, -1) {
			seen[m[1]] = true
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
