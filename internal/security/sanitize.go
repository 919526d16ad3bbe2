// internal/security/sanitize.go
package security

import (
	"errors"
	"regexp"
	"strings"
)

var dangerousPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(DROP|DELETE|INSERT|UPDATE|ALTER|CREATE|EXEC|EXECUTE|SCRIPT)`),
	regexp.MustCompile(`[<>]`),
	regexp.MustCompile(`javascript:`),
}

// Sanitize strips keywords and characters associated with injection. It is a
// filter for display and logging surfaces; queries are always parameterized.
func Sanitize(text string) string {
	for _, p := range dangerousPatterns {
		text = p.ReplaceAllString(text, "")
	}
	return strings.TrimSpace(text)
}

// ErrInvalidPhone is returned for numbers that are not South African mobile numbers.
var ErrInvalidPhone = errors.New("invalid phone number")

// ValidatePhone normalizes a South African number to +27XXXXXXXXX. Accepted
// inputs are 0XXXXXXXXX, 27XXXXXXXXX, +27XXXXXXXXX and nine bare digits,
// with any separators.
func ValidatePhone(raw string) (string, error) {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()

	switch {
	case len(digits) == 10 && digits[0] == '0':
		return "+27" + digits[1:], nil
	case len(digits) == 11 && strings.HasPrefix(digits, "27"):
		return "+" + digits, nil
	case len(digits) == 9:
		return "+27" + digits, nil
	}
	return "", ErrInvalidPhone
}

// LocalFormat renders a +27 handle as 0XXXXXXXXX for chat replies.
func LocalFormat(handle string) string {
	if strings.HasPrefix(handle, "+27") && len(handle) == 12 {
		return "0" + handle[3:]
	}
	return handle
}

// MaskHandle hides the middle digits of a handle for logs, e.g. +2782*****67.
func MaskHandle(handle string) string {
	if len(handle) <= 7 {
		return strings.Repeat("*", len(handle))
	}
	return handle[:5] + strings.Repeat("*", len(handle)-7) + handle[len(handle)-2:]
}
