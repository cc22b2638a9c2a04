// Package sanitize validates untrusted scalar fields from webhook payloads.
// It is defense-in-depth alongside parameterized queries, not the sole
// protection. Every validator returns an explicit error on rejection so
// callers cannot silently use an unvetted value.
package sanitize

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

var ErrRejected = errors.New("value rejected")

var (
	sqlCommentPattern = regexp.MustCompile(`--|/\*|\*/`)
	hexLiteralPattern = regexp.MustCompile(`0[xX][0-9a-fA-F]+`)
	sqlFuncPattern    = regexp.MustCompile(`(?i)\b(CHAR|ASCII|CONCAT)\s*\(`)
	emailPattern      = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
	phonePattern      = regexp.MustCompile(`^\+?[0-9]{7,15}$`)

	sqlKeywordPattern = regexp.MustCompile(`(?i)\b(SELECT|INSERT|UPDATE|DELETE|DROP|UNION|EXEC|EXECUTE|ALTER|CREATE|TRUNCATE|DECLARE)\b`)
)

// String validates a free-form string: length bounds plus the injection
// pattern screen. The returned string is trimmed of surrounding whitespace.
func String(v string, minLen, maxLen int) (string, error) {
	s := strings.TrimSpace(v)
	if len(s) < minLen {
		return "", fmt.Errorf("%w: shorter than %d", ErrRejected, minLen)
	}
	if len(s) > maxLen {
		return "", fmt.Errorf("%w: longer than %d", ErrRejected, maxLen)
	}
	if err := screen(s); err != nil {
		return "", err
	}
	return s, nil
}

// Number validates a numeric field against an inclusive range.
func Number(v, min, max float64) (float64, error) {
	if v < min || v > max {
		return 0, fmt.Errorf("%w: %v outside [%v, %v]", ErrRejected, v, min, max)
	}
	return v, nil
}

// UUID validates and canonicalizes a UUID string.
func UUID(v string) (string, error) {
	id, err := uuid.Parse(strings.TrimSpace(v))
	if err != nil {
		return "", fmt.Errorf("%w: not a valid UUID", ErrRejected)
	}
	return id.String(), nil
}

// Email validates an email address with a conservative format check.
func Email(v string) (string, error) {
	s := strings.TrimSpace(v)
	if len(s) > 254 || !emailPattern.MatchString(s) {
		return "", fmt.Errorf("%w: not a valid email", ErrRejected)
	}
	return s, nil
}

// Phone validates a phone number in loose E.164 form. Spaces and dashes are
// stripped before matching.
func Phone(v string) (string, error) {
	s := strings.NewReplacer(" ", "", "-", "").Replace(strings.TrimSpace(v))
	if !phonePattern.MatchString(s) {
		return "", fmt.Errorf("%w: not a valid phone number", ErrRejected)
	}
	return s, nil
}

func screen(s string) error {
	switch {
	case strings.Contains(s, ";"):
		return fmt.Errorf("%w: statement terminator", ErrRejected)
	case sqlCommentPattern.MatchString(s):
		return fmt.Errorf("%w: comment marker", ErrRejected)
	case sqlKeywordPattern.MatchString(s):
		return fmt.Errorf("%w: sql keyword", ErrRejected)
	case hexLiteralPattern.MatchString(s):
		return fmt.Errorf("%w: hex literal", ErrRejected)
	case sqlFuncPattern.MatchString(s):
		return fmt.Errorf("%w: sql function call", ErrRejected)
	}
	return nil
}
