package logging

import (
	"regexp"
	"strings"
)

// SensitiveDataMasker masks credentials that end up in config dumps and
// connection-error logs: S3/AWS keys, the tick-store/redis auth secret,
// bearer tokens on exchange REST calls.
type SensitiveDataMasker struct {
	patterns map[string]*regexp.Regexp
}

// NewSensitiveDataMasker creates a new data masker
func NewSensitiveDataMasker() *SensitiveDataMasker {
	return &SensitiveDataMasker{
		patterns: map[string]*regexp.Regexp{
			"api_key":      regexp.MustCompile(`(?i)(api[_-]?key|apikey|access[_-]?key|secret[_-]?key|access[_-]?token)[\s:="']+([a-zA-Z0-9_/+\-]{16,})`),
			"password":     regexp.MustCompile(`(?i)(password|passwd|pwd|redis_auth)[\s:="']+([^\s"']+)`),
			"bearer_token": regexp.MustCompile(`(?i)Bearer\s+([a-zA-Z0-9_\-\.]{20,})`),
		},
	}
}

// Mask masks sensitive data in a string
func (m *SensitiveDataMasker) Mask(input string) string {
	result := input

	// Mask API/access keys
	result = m.patterns["api_key"].ReplaceAllString(result, "$1=[REDACTED]")

	// Mask passwords and auth secrets
	result = m.patterns["password"].ReplaceAllString(result, "$1=[REDACTED]")

	// Mask bearer tokens
	result = m.patterns["bearer_token"].ReplaceAllString(result, "Bearer [REDACTED]")

	return result
}

// MaskJSON masks sensitive data in JSON strings
func (m *SensitiveDataMasker) MaskJSON(input string) string {
	// First apply standard masking
	result := m.Mask(input)

	// Additional JSON-specific patterns
	sensitiveKeys := []string{
		"password", "passwd", "pwd", "secret", "token", "api_key", "apiKey",
		"access_key", "accessKey", "secret_key", "secretKey",
		"accessToken", "refreshToken", "privateKey", "private_key", "redis_auth",
	}

	for _, key := range sensitiveKeys {
		// Match "key": "value" or 'key': 'value'
		pattern := regexp.MustCompile(`"` + key + `"\s*:\s*"[^"]*"`)
		result = pattern.ReplaceAllString(result, `"`+key+`":"[REDACTED]"`)

		pattern = regexp.MustCompile(`'` + key + `'\s*:\s*'[^']*'`)
		result = pattern.ReplaceAllString(result, `'`+key+`':'[REDACTED]'`)
	}

	return result
}

// MaskMap masks sensitive data in a map
func (m *SensitiveDataMasker) MaskMap(input map[string]interface{}) map[string]interface{} {
	result := make(map[string]interface{})

	sensitiveKeys := map[string]bool{
		"password":      true,
		"passwd":        true,
		"pwd":           true,
		"secret":        true,
		"token":         true,
		"api_key":       true,
		"apiKey":        true,
		"apikey":        true,
		"access_key":    true,
		"accessKey":     true,
		"secret_key":    true,
		"secretKey":     true,
		"access_token":  true,
		"accessToken":   true,
		"refresh_token": true,
		"refreshToken":  true,
		"private_key":   true,
		"privateKey":    true,
		"redis_auth":    true,
	}

	for key, value := range input {
		if sensitiveKeys[key] || sensitiveKeys[strings.ToLower(key)] {
			result[key] = "[REDACTED]"
		} else {
			// Recursively mask nested maps
			if nestedMap, ok := value.(map[string]interface{}); ok {
				result[key] = m.MaskMap(nestedMap)
			} else if strValue, ok := value.(string); ok {
				result[key] = m.Mask(strValue)
			} else {
				result[key] = value
			}
		}
	}

	return result
}

// maskString masks a string keeping first and last character
func maskString(s string) string {
	if len(s) <= 2 {
		return strings.Repeat("*", len(s))
	}
	return string(s[0]) + strings.Repeat("*", len(s)-2) + string(s[len(s)-1])
}

// MaskSecret masks a bare secret value (a redis auth token, an AWS key) for
// inclusion in a config dump, as opposed to Mask/MaskJSON which look for a
// key=value pattern inside a larger string.
func MaskSecret(s string) string {
	if s == "" {
		return ""
	}
	return maskString(s)
}

// Global masker instance
var globalMasker = NewSensitiveDataMasker()

// MaskSensitiveData masks sensitive data using the global masker
func MaskSensitiveData(input string) string {
	return globalMasker.Mask(input)
}

// MaskSensitiveJSON masks sensitive data in JSON using the global masker
func MaskSensitiveJSON(input string) string {
	return globalMasker.MaskJSON(input)
}

// MaskSensitiveMap masks sensitive data in a map using the global masker
func MaskSensitiveMap(input map[string]interface{}) map[string]interface{} {
	return globalMasker.MaskMap(input)
}
