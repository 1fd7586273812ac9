package validation

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/artpar/flowstack/internal/core/domain"
	"github.com/go-playground/validator/v10"
)

// =============================================================================
// Patterns
// =============================================================================

var (
	hostnameRegex   = regexp.MustCompile(`^([a-z0-9]([a-z0-9\-]{0,61}[a-z0-9])?\.)+[a-z]{2,}$`)
	labelRegex      = regexp.MustCompile(`^[a-z0-9]([a-z0-9\-]{0,61}[a-z0-9])?$`)
	identifierRegex = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9._-]{2,63}$`)
	nameRegex       = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,31}$`)
)

// validate is safe for concurrent use and caches struct metadata.
var validate = validator.New()

// =============================================================================
// Field Validators
// =============================================================================

// ValidateDomain validates a root domain such as "example.com".
func ValidateDomain(root string) error {
	root = strings.TrimSuffix(strings.TrimSpace(strings.ToLower(root)), ".")
	if root == "" {
		return domain.NewValidationError("domain", root, "domain is empty", domain.ErrInvalidDomain)
	}
	if len(root) > 253 {
		return domain.NewValidationError("domain", root, "domain must be under 253 characters", domain.ErrInvalidDomain)
	}
	if !hostnameRegex.MatchString(root) {
		return domain.NewValidationError("domain", root, fmt.Sprintf("%q is not a valid domain name", root), domain.ErrInvalidDomain)
	}
	return nil
}

// ValidateLabel validates a single DNS label used as a subdomain.
func ValidateLabel(label string) error {
	if !labelRegex.MatchString(label) {
		return domain.NewValidationError("subdomain", label, fmt.Sprintf("%q is not a valid subdomain label", label), domain.ErrInvalidLabel)
	}
	return nil
}

// ValidateAdminIdentity accepts an email address or a simple identifier
// (a letter followed by 2-63 letters, digits, dots, underscores or hyphens).
func ValidateAdminIdentity(identity string) error {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return domain.NewValidationError("admin", identity, "admin identity is required", domain.ErrInvalidIdentity)
	}
	if validate.Var(identity, "email") == nil {
		return nil
	}
	if identifierRegex.MatchString(identity) {
		return nil
	}
	return domain.NewValidationError("admin", identity,
		fmt.Sprintf("%q is neither an email address nor a simple identifier", identity), domain.ErrInvalidIdentity)
}

// ValidateName validates the installation name used to prefix resources.
func ValidateName(name string) error {
	if !nameRegex.MatchString(name) {
		return domain.NewValidationError("name", name,
			fmt.Sprintf("%q must be lowercase letters, digits, '-' or '_' (max 32)", name), domain.ErrInvalidName)
	}
	return nil
}

// ValidateTimezone validates an IANA timezone name. Empty means UTC.
func ValidateTimezone(tz string) error {
	if tz == "" {
		return nil
	}
	if _, err := time.LoadLocation(tz); err != nil {
		return domain.NewValidationError("timezone", tz, fmt.Sprintf("unknown timezone %q", tz), domain.ErrInvalidTimezone)
	}
	return nil
}

// =============================================================================
// Target Construction
// =============================================================================

// NewTarget validates params and builds the InstallationTarget.
//
// Subdomain overrides are only validated for selected components, since
// overrides for anything else are ignored.
func NewTarget(p domain.TargetParams) (domain.InstallationTarget, error) {
	if p.Name == "" {
		p.Name = domain.DefaultInstallationName
	}
	if err := ValidateName(p.Name); err != nil {
		return domain.InstallationTarget{}, err
	}
	if err := ValidateAdminIdentity(p.AdminIdentity); err != nil {
		return domain.InstallationTarget{}, err
	}
	if err := ValidateTimezone(p.Timezone); err != nil {
		return domain.InstallationTarget{}, err
	}
	if strings.TrimSpace(p.Domain) != "" {
		if err := ValidateDomain(p.Domain); err != nil {
			return domain.InstallationTarget{}, err
		}
	}

	target := domain.NewInstallationTarget(p)

	if dc := target.Domain(); dc != nil {
		ids := make([]string, 0, len(dc.Subdomains))
		for id := range dc.Subdomains {
			ids = append(ids, string(id))
		}
		sort.Strings(ids)
		for _, id := range ids {
			if err := ValidateLabel(dc.Subdomains[domain.ComponentID(id)]); err != nil {
				return domain.InstallationTarget{}, err
			}
		}
	}

	return target, nil
}

// =============================================================================
// Struct Validation
// =============================================================================

// Struct runs `validate` struct tags on v and reports the first failing
// field as a validation error.
func Struct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
		fe := verrs[0]
		return domain.NewValidationError(fe.Namespace(), fmt.Sprint(fe.Value()),
			fmt.Sprintf("failed %q constraint", fe.Tag()), domain.ErrValidation)
	}
	return domain.NewValidationError("", "", err.Error(), domain.ErrValidation)
}
