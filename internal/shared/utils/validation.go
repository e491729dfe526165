package utils

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Size limits (in bytes)
const (
	MaxMarkupSize  = 2 * 1024 * 1024 // 2MB - a single game document
	MaxMessageSize = 16 * 1024       // 16KB - a natural-language request
	MaxIDLength    = 128
	MaxTitleLength = 256
	MaxBatchSize   = 100
)

var (
	// SafeIDPattern allows alphanumeric, hyphens, underscores
	SafeIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	// unsafeFileChars matches anything that is not latin alphanumeric or CJK
	unsafeFileChars = regexp.MustCompile(`[^a-zA-Z0-9\x{4e00}-\x{9fa5}]`)
)

// ValidateString validates a string field with length and content checks
func ValidateString(value, fieldName string, minLen, maxLen int, required bool) error {
	if required && value == "" {
		return fmt.Errorf("%s is required", fieldName)
	}

	if value == "" && !required {
		return nil
	}

	length := utf8.RuneCountInString(value)
	if length < minLen {
		return fmt.Errorf("%s must be at least %d characters", fieldName, minLen)
	}
	if length > maxLen {
		return fmt.Errorf("%s must not exceed %d characters", fieldName, maxLen)
	}

	if strings.Contains(value, "\x00") {
		return fmt.Errorf("%s contains invalid characters", fieldName)
	}

	return nil
}

// ValidateID validates an ID field
func ValidateID(id, fieldName string, required bool) error {
	if err := ValidateString(id, fieldName, 1, MaxIDLength, required); err != nil {
		return err
	}

	if id != "" && !SafeIDPattern.MatchString(id) {
		return fmt.Errorf("%s contains invalid characters (only alphanumeric, hyphens, and underscores allowed)", fieldName)
	}

	return nil
}

// ValidateIDs validates a batch of IDs
func ValidateIDs(ids []string, fieldName string) error {
	if len(ids) == 0 {
		return fmt.Errorf("%s must not be empty", fieldName)
	}
	if len(ids) > MaxBatchSize {
		return fmt.Errorf("%s exceeds maximum batch size %d", fieldName, MaxBatchSize)
	}
	for i, id := range ids {
		if err := ValidateID(id, fmt.Sprintf("%s[%d]", fieldName, i), true); err != nil {
			return err
		}
	}
	return nil
}

// ValidateMarkup checks a document against the size limit
func ValidateMarkup(markup string) error {
	if markup == "" {
		return fmt.Errorf("html is required")
	}
	if len(markup) > MaxMarkupSize {
		return fmt.Errorf("html size %d bytes exceeds maximum %d bytes", len(markup), MaxMarkupSize)
	}
	return nil
}

// ValidateTitle validates an optional bundle title
func ValidateTitle(title string) error {
	return ValidateString(title, "title", 0, MaxTitleLength, false)
}

// ValidateMessage validates a natural-language request
func ValidateMessage(message string) error {
	if err := ValidateString(message, "message", 1, MaxMessageSize, true); err != nil {
		return err
	}

	whitespaceCount := 0
	for _, r := range message {
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
			whitespaceCount++
		}
	}

	if whitespaceCount > len(message)/2 {
		return fmt.Errorf("message contains excessive whitespace")
	}

	return nil
}

// SafeFileName reduces a title to characters safe in a file name
func SafeFileName(title string) string {
	safe := unsafeFileChars.ReplaceAllString(title, "_")
	if safe == "" {
		return "untitled"
	}
	return safe
}
