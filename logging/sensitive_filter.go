package logging

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

// RedactedPlaceholder is the string used to replace sensitive data
const RedactedPlaceholder = "[REDACTED]"

// sensitivePatterns contains compiled regex patterns for detecting
// credentials that must never reach a log file. Compiled once at package
// initialization.
var sensitivePatterns = []*regexp.Regexp{
	// OpenAI API keys: sk-... (legacy) or sk-proj-... (project-scoped)
	regexp.MustCompile(`(?i)(sk-[a-zA-Z0-9_-]{20,})`),
	regexp.MustCompile(`(?i)(bearer\s+[a-zA-Z0-9._-]{20,})`), // Bearer tokens

	// Generic secret assignments
	regexp.MustCompile(`(?i)(password\s*[:=]\s*[^\s,;]{8,})`),
	regexp.MustCompile(`(?i)(secret\s*[:=]\s*[^\s,;]{8,})`),
	regexp.MustCompile(`(?i)(token\s*[:=]\s*[^\s,;]{8,})`),
	regexp.MustCompile(`(?i)(api_key\s*[:=]\s*[^\s,;]{8,})`),
	regexp.MustCompile(`(?i)(apikey\s*[:=]\s*[^\s,;]{8,})`),
}

// sensitiveFieldMarkers are field-name fragments that indicate credential
// data regardless of the value.
var sensitiveFieldMarkers = []string{
	"LIBAI_OPENAI_API_KEY",
	"OPENAI_API_KEY",
	"API_KEY",
	"APIKEY",
	"PASSWORD",
	"SECRET",
	"TOKEN",
}

// promptFieldMarkers are field-name fragments for conversational content.
// Prompts and replies are user data: above debug level they are logged as
// a digest (length + hash), never verbatim.
var promptFieldMarkers = []string{
	"PROMPT",
	"REPLY",
	"TRANSCRIPT",
}

// RedactSensitiveData scans a string value and redacts detected credentials.
// This is a pure function - it takes a string and returns a sanitized string.
//
// Example:
//
//	input := "API key is sk-abc123def456ghi789jkl012"
//	output := RedactSensitiveData(input)
//	// output: "API key is [REDACTED]"
func RedactSensitiveData(value string) string {
	if value == "" {
		return value
	}

	result := value
	for _, pattern := range sensitivePatterns {
		result = pattern.ReplaceAllString(result, RedactedPlaceholder)
	}
	return result
}

// IsSensitiveField returns true if the field name indicates credential data.
// This is a pure function that only checks the field name, not the value.
//
// Example:
//
//	IsSensitiveField("LIBAI_OPENAI_API_KEY")  // true
//	IsSensitiveField("session_id")            // false
func IsSensitiveField(fieldName string) bool {
	upperName := strings.ToUpper(fieldName)
	for _, marker := range sensitiveFieldMarkers {
		if strings.Contains(upperName, marker) {
			return true
		}
	}
	return false
}

// IsPromptField returns true if the field name indicates conversational
// content that should be digested rather than logged verbatim.
func IsPromptField(fieldName string) bool {
	upperName := strings.ToUpper(fieldName)
	for _, marker := range promptFieldMarkers {
		if strings.Contains(upperName, marker) {
			return true
		}
	}
	return false
}

// ContainsSensitiveData returns true if the value contains any credential
// patterns.
func ContainsSensitiveData(value string) bool {
	if value == "" {
		return false
	}
	for _, pattern := range sensitivePatterns {
		if pattern.MatchString(value) {
			return true
		}
	}
	return false
}

// PromptDigest summarizes conversational text without reproducing it:
// character length plus a truncated SHA-256, enough to correlate log lines
// with history rows while keeping user content out of log files.
//
// Example:
//
//	PromptDigest("Hello")  // "len=5 sha256=185f8db3"
func PromptDigest(text string) string {
	sum := sha256.Sum256([]byte(text))
	return fmt.Sprintf("len=%d sha256=%s", len(text), hex.EncodeToString(sum[:4]))
}

// PromptField builds a zap field carrying the digest of conversational
// text under the given key.
//
// Example:
//
//	logger.Info("generate succeeded", logging.PromptField("reply", reply))
func PromptField(key, text string) zap.Field {
	return zap.String(key, PromptDigest(text))
}
