// Package validate provides input validation for ingested feed entries and
// newsletter stories. Upstream aggregators and newsletter HTML are untrusted;
// everything is length- and shape-checked before it reaches storage.
package validate

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// String validation errors
var (
	ErrStringTooShort    = errors.New("string is too short")
	ErrStringTooLong     = errors.New("string is too long")
	ErrInvalidCharacters = errors.New("string contains invalid characters")
	ErrEmpty             = errors.New("string is empty")
)

// StringConstraints defines validation constraints for a string.
type StringConstraints struct {
	MinLength      int            // Minimum length (0 = no minimum)
	MaxLength      int            // Maximum length (0 = no maximum)
	AllowedPattern *regexp.Regexp // Optional regex pattern for allowed characters
	AllowEmpty     bool           // Whether empty strings are allowed
	TrimSpace      bool           // Whether to trim whitespace before validation
}

// String validates a string against the given constraints.
// Returns the validated (and optionally trimmed) string and an error if validation fails.
func String(s string, constraints StringConstraints) (string, error) {
	if constraints.TrimSpace {
		s = strings.TrimSpace(s)
	}

	if s == "" {
		if !constraints.AllowEmpty {
			return "", ErrEmpty
		}
		return s, nil
	}

	// Character count, not byte count
	length := utf8.RuneCountInString(s)

	if constraints.MinLength > 0 && length < constraints.MinLength {
		return "", fmt.Errorf("%w: got %d chars, need at least %d", ErrStringTooShort, length, constraints.MinLength)
	}
	if constraints.MaxLength > 0 && length > constraints.MaxLength {
		return "", fmt.Errorf("%w: got %d chars, maximum is %d", ErrStringTooLong, length, constraints.MaxLength)
	}

	if constraints.AllowedPattern != nil && !constraints.AllowedPattern.MatchString(s) {
		return "", fmt.Errorf("%w: does not match required pattern", ErrInvalidCharacters)
	}

	return s, nil
}

// ItemTitle validates a feed item or story title: required, at most 300
// characters after trimming.
func ItemTitle(title string) (string, error) {
	return String(title, StringConstraints{
		MinLength:  1,
		MaxLength:  300,
		AllowEmpty: false,
		TrimSpace:  true,
	})
}

// ItemSummary validates an item summary: optional, at most 2000 characters.
func ItemSummary(summary string) (string, error) {
	return String(summary, StringConstraints{
		MaxLength:  2000,
		AllowEmpty: true,
		TrimSpace:  true,
	})
}

var sourceNamePattern = regexp.MustCompile(`^[A-Za-z0-9 _\-\.]+$`)

// SourceName validates a feed source name: 1-100 characters, letters,
// numbers, spaces, dash, underscore and period only.
func SourceName(name string) (string, error) {
	return String(name, StringConstraints{
		MinLength:      1,
		MaxLength:      100,
		AllowedPattern: sourceNamePattern,
		AllowEmpty:     false,
		TrimSpace:      true,
	})
}
