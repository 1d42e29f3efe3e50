// Package security provides masking utilities so credentials never reach logs.
package security

import (
	"regexp"
	"strings"
)

// MaskAPIKey masks an API key, showing only the first 4 and last 4 characters.
func MaskAPIKey(apiKey string) string {
	if len(apiKey) <= 8 {
		return "***"
	}
	return apiKey[:4] + "..." + apiKey[len(apiKey)-4:]
}

// sensitivePatterns match credential-shaped values inside free-form text.
var sensitivePatterns = []*regexp.Regexp{
	// ApiKey authorization values
	regexp.MustCompile(`(?i)(apikey\s+)([a-zA-Z0-9_-]{10,})`),
	// api_key / token / secret assignments
	regexp.MustCompile(`(?i)(api[_-]?key|token|secret)[=:]\s*["']?([a-zA-Z0-9_-]{10,})["']?`),
	// Bearer tokens
	regexp.MustCompile(`(?i)(bearer\s+)([a-zA-Z0-9_.-]{20,})`),
}

// MaskSensitiveData masks credential-shaped values in a string.
func MaskSensitiveData(data string) string {
	result := data
	for _, pattern := range sensitivePatterns {
		result = pattern.ReplaceAllStringFunc(result, func(match string) string {
			parts := pattern.FindStringSubmatch(match)
			if len(parts) >= 3 {
				return parts[1] + "***REDACTED***"
			}
			return "***REDACTED***"
		})
	}
	return result
}

// MaskSensitiveHeaders masks sensitive values in HTTP headers for logging.
func MaskSensitiveHeaders(headers map[string][]string) map[string]string {
	sensitive := map[string]bool{
		"authorization": true,
		"x-api-key":     true,
		"api-key":       true,
		"cookie":        true,
		"set-cookie":    true,
	}

	masked := make(map[string]string, len(headers))
	for key, values := range headers {
		if sensitive[strings.ToLower(key)] {
			masked[key] = "***REDACTED***"
		} else if len(values) > 0 {
			masked[key] = values[0]
		}
	}
	return masked
}

// SanitizeError removes credential-shaped values from error messages.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	return MaskSensitiveData(err.Error())
}
