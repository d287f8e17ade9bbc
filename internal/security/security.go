// Package security implements the input size caps and logging-boundary
// secret masking the core enforces regardless of which features a given
// spec run excludes (spec §4.11), grounded on the teacher's
// internal/transparency keyword-based sensitive-content detection
// (internal/transparency/safety_reporter.go's containsAnyWord check).
package security

import (
	"fmt"
	"regexp"
	"strings"
)

// Size caps (spec §4.11).
const (
	MaxInitialContextBytes = 50 * 1024
	MaxUserResponseBytes   = 10 * 1024
	MaxSeedFileBytes       = 1024 * 1024
	MaxLLMResponseBytes    = 100 * 1024
)

// LimitExceededError is returned when an input breaches one of the size
// caps above.
type LimitExceededError struct {
	Kind  string
	Limit int
	Got   int
}

func (e *LimitExceededError) Error() string {
	return fmt.Sprintf("security: %s of %d bytes exceeds the %d-byte limit", e.Kind, e.Got, e.Limit)
}

// CheckInitialContext enforces MaxInitialContextBytes.
func CheckInitialContext(b []byte) error {
	if len(b) > MaxInitialContextBytes {
		return &LimitExceededError{Kind: "initial context", Limit: MaxInitialContextBytes, Got: len(b)}
	}
	return nil
}

// CheckUserResponse enforces MaxUserResponseBytes.
func CheckUserResponse(b []byte) error {
	if len(b) > MaxUserResponseBytes {
		return &LimitExceededError{Kind: "user response", Limit: MaxUserResponseBytes, Got: len(b)}
	}
	return nil
}

// CheckSeedFile enforces MaxSeedFileBytes.
func CheckSeedFile(b []byte) error {
	if len(b) > MaxSeedFileBytes {
		return &LimitExceededError{Kind: "seed file", Limit: MaxSeedFileBytes, Got: len(b)}
	}
	return nil
}

// TruncateLLMResponse enforces MaxLLMResponseBytes by truncating rather
// than rejecting, appending a warning marker (spec §4.11: "truncated with
// warning").
func TruncateLLMResponse(s string) (string, bool) {
	if len(s) <= MaxLLMResponseBytes {
		return s, false
	}
	return s[:MaxLLMResponseBytes] + "...[truncated: response exceeded 100KB limit]", true
}

// sensitiveFieldNames are the field names masked at the logging boundary
// (spec §4.11).
var sensitiveFieldNames = map[string]bool{
	"api_key":  true,
	"password": true,
	"token":    true,
	"bearer":   true,
}

// sensitiveValuePattern matches values that look like secrets regardless
// of their field name (spec §4.11: `sk-*|pk-*|Bearer *`).
var sensitiveValuePattern = regexp.MustCompile(`(?i)\b(sk-[a-z0-9_-]+|pk-[a-z0-9_-]+|Bearer\s+[a-z0-9._-]+)\b`)

// IsSensitiveField reports whether fieldName is one of the masked field
// names, case-insensitively.
func IsSensitiveField(fieldName string) bool {
	return sensitiveFieldNames[strings.ToLower(fieldName)]
}

// MaskValue replaces everything but the last four characters of value with
// asterisks (spec §4.11: "only the last four characters are retained").
func MaskValue(value string) string {
	if len(value) <= 4 {
		return strings.Repeat("*", len(value))
	}
	return strings.Repeat("*", len(value)-4) + value[len(value)-4:]
}

// MaskField masks value if fieldName is a sensitive field name.
func MaskField(fieldName, value string) string {
	if IsSensitiveField(fieldName) {
		return MaskValue(value)
	}
	return value
}

// MaskSensitiveValues scans text for embedded secret-shaped substrings
// (sk-*, pk-*, Bearer *) and masks each occurrence, independent of any
// field name.
func MaskSensitiveValues(text string) string {
	return sensitiveValuePattern.ReplaceAllStringFunc(text, MaskValue)
}
