package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateDisplayName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"plain", "viewer42", false},
		{"spaces and unicode", "Ана Мария", false},
		{"empty", "   ", true},
		{"too long", strings.Repeat("a", MaxDisplayNameLength+1), true},
		{"control char", "bad\x07name", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDisplayName(tt.input)
			assert.Equal(t, tt.wantErr, err != nil, "error = %v", err)
		})
	}
}

func TestValidateFingerprint(t *testing.T) {
	assert.NoError(t, ValidateFingerprint(""))
	assert.NoError(t, ValidateFingerprint("a1b2c3d4e5"))
	assert.NoError(t, ValidateFingerprint("aGVsbG8_d29ybGQ="))
	assert.Error(t, ValidateFingerprint("has space"))
	assert.Error(t, ValidateFingerprint(strings.Repeat("f", MaxFingerprintLength+1)))
}

func TestValidateStreamKey(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		wantErr bool
	}{
		{"valid", "main-stream_1", false},
		{"empty", "", true},
		{"slash", "live/main", true},
		{"dots", "../etc", true},
		{"too long", strings.Repeat("k", MaxStreamKeyLength+1), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStreamKey(tt.key)
			assert.Equal(t, tt.wantErr, err != nil, "error = %v", err)
		})
	}
}

func TestValidateMessageID(t *testing.T) {
	assert.NoError(t, ValidateMessageID("3f1e2d9c-1b7a-4c8e-9d3f-0a1b2c3d4e5f"))
	assert.NoError(t, ValidateMessageID("msg_1700000000000"))
	assert.Error(t, ValidateMessageID(""))
	assert.Error(t, ValidateMessageID("<script>"))
}

func TestValidateChatBody(t *testing.T) {
	assert.NoError(t, ValidateChatBody("hello", 500))
	assert.Error(t, ValidateChatBody("  \n ", 500))
	assert.Error(t, ValidateChatBody(strings.Repeat("x", 11), 10))
	assert.NoError(t, ValidateChatBody(strings.Repeat("x", 11), 0))
}

func TestValidateURL(t *testing.T) {
	assert.NoError(t, ValidateURL("https://cdn.example.com/live/main/index.m3u8"))
	assert.NoError(t, ValidateURL("rtmp://ingest.example.com/live"))
	assert.Error(t, ValidateURL(""))
	assert.Error(t, ValidateURL("ftp://example.com"))
	assert.Error(t, ValidateURL("https://"))
}

func TestValidateStringLength(t *testing.T) {
	assert.NoError(t, ValidateStringLength("abc", 1, 3, "title"))
	assert.Error(t, ValidateStringLength("", 1, 3, "title"))
	assert.Error(t, ValidateStringLength("abcd", 1, 3, "title"))
}
