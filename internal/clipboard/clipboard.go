// Package clipboard extracts a downloadable URL from clipboard text,
// adapted from the teacher's internal/clipboard/validator.go.
package clipboard

import (
	"net/url"
	"strings"

	"github.com/atotto/clipboard"
)

// Validator checks whether a blob of text is a single http(s) URL worth
// offering to the user as a download candidate.
type Validator struct {
	allowedSchemes map[string]bool
}

// NewValidator builds a Validator that accepts http and https only.
func NewValidator() *Validator {
	return &Validator{allowedSchemes: map[string]bool{"http": true, "https": true}}
}

// ExtractURL returns a cleaned URL string, or "" if text is not a single
// plausible downloadable URL.
func (v *Validator) ExtractURL(text string) string {
	text = strings.TrimSpace(text)

	if len(text) > 2048 || strings.ContainsAny(text, "\n\r") {
		return ""
	}
	if !strings.HasPrefix(text, "http://") && !strings.HasPrefix(text, "https://") {
		return ""
	}

	parsed, err := url.Parse(text)
	if err != nil || parsed.Host == "" || !v.allowedSchemes[parsed.Scheme] {
		return ""
	}
	return parsed.String()
}

// ReadURL reads the system clipboard and returns a valid URL if present.
func ReadURL() string {
	text, err := clipboard.ReadAll()
	if err != nil {
		return ""
	}
	return NewValidator().ExtractURL(text)
}
