// Package validation provides pure validation functions for installer input.
//
// Every failure wraps domain.ErrValidation so the retry engine can recognize
// it as permanent: a malformed domain or admin identity stays malformed no
// matter how often the phase is retried.
//
// # Functions
//
//   - ValidateDomain: Check a root domain against the hostname grammar
//   - ValidateLabel: Check a single subdomain label
//   - ValidateAdminIdentity: Accept an email address or a simple identifier
//   - ValidateName: Check the installation (resource prefix) name
//   - NewTarget: Validate TargetParams and build the InstallationTarget
//   - Struct: Run struct tag validation on configuration values
//
// # Usage
//
//	target, err := validation.NewTarget(params)
//	if err != nil {
//	    return retry.Permanent(err)
//	}
package validation
