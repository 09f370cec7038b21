package validate

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var (
	ErrInvalidURL       = errors.New("invalid URL format")
	ErrDisallowedScheme = errors.New("URL scheme not allowed")
)

// URLConstraints bounds what an incoming link may look like.
type URLConstraints struct {
	// AllowedSchemes lists acceptable schemes; empty allows any.
	AllowedSchemes []string
	// MaxLength caps the raw URL length; 0 means unbounded.
	MaxLength int
}

// StoryURLConstraints covers links extracted from feed entries and newsletter
// HTML. The service never fetches these URLs itself, it only stores and serves
// them, so the checks are about shape, not reachability.
var StoryURLConstraints = URLConstraints{
	AllowedSchemes: []string{"https", "http"},
	MaxLength:      2048,
}

// URL checks a raw URL against the constraints and returns the trimmed form.
func URL(raw string, constraints URLConstraints) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrEmpty
	}
	if constraints.MaxLength > 0 && len(raw) > constraints.MaxLength {
		return "", fmt.Errorf("%w: URL exceeds %d characters", ErrStringTooLong, constraints.MaxLength)
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	// Scheme first: opaque forms like mailto: or javascript: have no
	// hostname, and the scheme error is the useful one for those.
	if len(constraints.AllowedSchemes) > 0 && !schemeAllowed(parsed.Scheme, constraints.AllowedSchemes) {
		return "", fmt.Errorf("%w: got %q, allowed: %v", ErrDisallowedScheme, parsed.Scheme, constraints.AllowedSchemes)
	}
	if parsed.Hostname() == "" {
		return "", fmt.Errorf("%w: missing hostname", ErrInvalidURL)
	}

	return raw, nil
}

func schemeAllowed(scheme string, allowed []string) bool {
	for _, s := range allowed {
		if scheme == s {
			return true
		}
	}
	return false
}

// StoryURL validates a link destination for a feed entry or newsletter story.
func StoryURL(raw string) (string, error) {
	return URL(raw, StoryURLConstraints)
}
