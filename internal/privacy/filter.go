// Package privacy redacts personally identifying data from text that is about to
// leave the process: prompts, entity context and tool results sent to LLM vendors.
package privacy

import (
	"regexp"
)

const (
	EmailPlaceholder = "[EMAIL REDACTED]"
	PhonePlaceholder = "[PHONE REDACTED]"
)

var (
	emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)

	// Requires 10+ digits with separators in the usual places so dates, ids and
	// years are left alone. Placeholders contain no digits, which keeps Redact idempotent.
	phonePattern = regexp.MustCompile(`(?:\+\d{1,3}[\s.\-]?)?(?:\(\d{2,4}\)|\d{2,4})[\s.\-]?\d{3,4}[\s.\-]?\d{4}\b`)
)

// Filter redacts emails and phone numbers
type Filter struct {
	redactEmails bool
	redactPhones bool
}

// New creates a filter that redacts both emails and phone numbers
func New() *Filter {
	return &Filter{redactEmails: true, redactPhones: true}
}

// Redact replaces every email and phone number in text with a placeholder.
// Redact(Redact(x)) == Redact(x).
func (f *Filter) Redact(text string) string {
	if text == "" {
		return text
	}
	if f.redactEmails {
		text = emailPattern.ReplaceAllString(text, EmailPlaceholder)
	}
	if f.redactPhones {
		text = phonePattern.ReplaceAllString(text, PhonePlaceholder)
	}
	return text
}

// ContainsPII reports whether text still carries an email or phone number
func (f *Filter) ContainsPII(text string) bool {
	return emailPattern.MatchString(text) || phonePattern.MatchString(text)
}

var defaultFilter = New()

// Redact applies the default filter
func Redact(text string) string {
	return defaultFilter.Redact(text)
}
