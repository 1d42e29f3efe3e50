package security

import (
	"errors"
	"strings"
	"testing"
)

func TestMaskAPIKey(t *testing.T) {
	if got := MaskAPIKey("short"); got != "***" {
		t.Errorf("MaskAPIKey(short) = %q", got)
	}
	got := MaskAPIKey("ldpat_0123456789abcdef")
	if !strings.HasPrefix(got, "ldpa") || !strings.HasSuffix(got, "cdef") || strings.Contains(got, "0123456789") {
		t.Errorf("MaskAPIKey = %q, want masked middle", got)
	}
}

func TestMaskSensitiveData(t *testing.T) {
	tests := []struct {
		name  string
		input string
		leak  string
	}{
		{"apikey header value", "Authorization: ApiKey ldpat_0123456789abc", "ldpat_0123456789abc"},
		{"api_key assignment", `api_key="abcdefghij1234567890"`, "abcdefghij1234567890"},
		{"bearer token", "bearer eyJhbGciOiJIUzI1NiIsInR5cCI6", "eyJhbGciOiJIUzI1NiIsInR5cCI6"},
		{"token assignment", "token: abcdefghijklmnop", "abcdefghijklmnop"},
		{"quoted secret with spaces", `secret:   "abcdefghij1234567890"`, "abcdefghij1234567890"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := MaskSensitiveData(tt.input)
			if strings.Contains(out, tt.leak) {
				t.Errorf("MaskSensitiveData leaked credential: %q", out)
			}
			if !strings.Contains(out, "***REDACTED***") {
				t.Errorf("expected redaction marker in %q", out)
			}
		})
	}

	// Non-sensitive text passes through untouched.
	plain := "GET /api/v1/org/projects returned 200"
	if MaskSensitiveData(plain) != plain {
		t.Error("plain text must not be altered")
	}
}

func TestMaskSensitiveHeaders(t *testing.T) {
	headers := map[string][]string{
		"Authorization": {"ApiKey ldpat_secret"},
		"Content-Type":  {"application/json"},
	}

	masked := MaskSensitiveHeaders(headers)
	if masked["Authorization"] != "***REDACTED***" {
		t.Errorf("Authorization = %q, want redacted", masked["Authorization"])
	}
	if masked["Content-Type"] != "application/json" {
		t.Errorf("Content-Type = %q, want passthrough", masked["Content-Type"])
	}
}

func TestSanitizeError(t *testing.T) {
	if SanitizeError(nil) != "" {
		t.Error("SanitizeError(nil) should be empty")
	}
	err := errors.New(`request failed: api_key="abcdefghij1234567890"`)
	if strings.Contains(SanitizeError(err), "abcdefghij1234567890") {
		t.Error("SanitizeError leaked credential")
	}
}
