package apiutil

import (
	"fmt"
	"unicode/utf8"

	"github.com/confide-gg/confide/internal/apperr"
)

// RequireNonEmpty checks that s is not empty.
func RequireNonEmpty(field, s string) *apperr.Error {
	if s == "" {
		return apperr.BadRequest(field + " is required")
	}
	return nil
}

// ValidateStringLength checks that s has between min and max runes
// (inclusive). Pass min=0 to skip the minimum check.
func ValidateStringLength(field, s string, min, max int) *apperr.Error {
	n := utf8.RuneCountInString(s)
	if min > 0 && n < min {
		return apperr.BadRequest(fmt.Sprintf("%s must be at least %d characters", field, min))
	}
	if max > 0 && n > max {
		return apperr.BadRequest(fmt.Sprintf("%s must be at most %d characters", field, max))
	}
	return nil
}

// ValidateByteLength checks that b has between min and max bytes inclusive,
// used for the opaque ciphertext/signature size bounds in §3.
func ValidateByteLength(field string, b []byte, min, max int) *apperr.Error {
	n := len(b)
	if n < min || n > max {
		return apperr.BadRequest(fmt.Sprintf("invalid %s size", field))
	}
	return nil
}

// ValidateEnum checks that value is one of the allowed values.
func ValidateEnum(field, value string, allowed []string) *apperr.Error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return apperr.BadRequest(fmt.Sprintf("invalid %s", field))
}
