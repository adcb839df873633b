// Package validation provides common validation utilities for configuration
// parameters across the sinkflow library.
//
// Every helper returns a *errors.ValidationError so callers can match
// errors.ErrInvalidConfiguration, and range checks additionally match
// errors.ErrOutOfRange.
package validation
