package validation

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	// StreamKeyRegex matches keys accepted by the ingest server.
	StreamKeyRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

	// FingerprintRegex accepts the hex or base64url digests browsers send.
	FingerprintRegex = regexp.MustCompile(`^[a-zA-Z0-9_=+/-]+$`)

	// MessageIDRegex bounds client supplied chat message ids.
	MessageIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_.:-]+$`)
)

const (
	MaxDisplayNameLength = 50
	MaxFingerprintLength = 128
	MaxStreamKeyLength   = 100
	MaxMessageIDLength   = 64
)

// ValidateDisplayName checks a chat display name. Any printable text is
// allowed, unlike account usernames.
func ValidateDisplayName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("username is required")
	}
	if !utf8.ValidString(name) {
		return fmt.Errorf("username contains invalid characters")
	}
	if utf8.RuneCountInString(name) > MaxDisplayNameLength {
		return fmt.Errorf("username is too long (max %d characters)", MaxDisplayNameLength)
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return fmt.Errorf("username contains control characters")
		}
	}
	return nil
}

// ValidateFingerprint allows the empty fingerprint; anonymous viewers have none.
func ValidateFingerprint(fp string) error {
	if fp == "" {
		return nil
	}
	if len(fp) > MaxFingerprintLength {
		return fmt.Errorf("fingerprint is too long (max %d characters)", MaxFingerprintLength)
	}
	if !FingerprintRegex.MatchString(fp) {
		return fmt.Errorf("invalid fingerprint format")
	}
	return nil
}

func ValidateStreamKey(key string) error {
	if key == "" {
		return fmt.Errorf("stream key is required")
	}
	if len(key) > MaxStreamKeyLength {
		return fmt.Errorf("stream key is too long (max %d characters)", MaxStreamKeyLength)
	}
	if !StreamKeyRegex.MatchString(key) {
		return fmt.Errorf("invalid stream key format")
	}
	return nil
}

func ValidateMessageID(id string) error {
	if id == "" {
		return fmt.Errorf("message id is required")
	}
	if len(id) > MaxMessageIDLength {
		return fmt.Errorf("message id is too long (max %d characters)", MaxMessageIDLength)
	}
	if !MessageIDRegex.MatchString(id) {
		return fmt.Errorf("invalid message id format")
	}
	return nil
}

// ValidateChatBody checks a trimmed chat message body.
func ValidateChatBody(body string, maxLength int) error {
	if strings.TrimSpace(body) == "" {
		return fmt.Errorf("message is empty")
	}
	if !utf8.ValidString(body) {
		return fmt.Errorf("message is not valid UTF-8")
	}
	if maxLength > 0 && utf8.RuneCountInString(body) > maxLength {
		return fmt.Errorf("message is too long (max %d characters)", maxLength)
	}
	return nil
}

// ValidateURL accepts absolute http(s) and ws(s) URLs.
func ValidateURL(urlStr string) error {
	if urlStr == "" {
		return fmt.Errorf("URL is required")
	}
	u, err := url.Parse(urlStr)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}
	switch u.Scheme {
	case "http", "https", "ws", "wss", "rtmp":
	default:
		return fmt.Errorf("invalid URL scheme (must be http, https, ws, wss or rtmp)")
	}
	if u.Host == "" {
		return fmt.Errorf("URL must have a host")
	}
	return nil
}

func ValidateStringLength(s string, min, max int, fieldName string) error {
	length := utf8.RuneCountInString(s)
	if length < min {
		return fmt.Errorf("%s must be at least %d characters", fieldName, min)
	}
	if length > max {
		return fmt.Errorf("%s is too long (max %d characters)", fieldName, max)
	}
	return nil
}
