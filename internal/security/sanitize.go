package security

import (
	"regexp"
	"strings"

	"github.com/caselink/voice-call-service/internal/domain"
)

const (
	maxStringLength       = 1000
	maxArrayElements      = 100
	maxArrayElementLength = 100
)

// sensitiveKeyFragments match metadata keys that must never be stored or
// forwarded, compared case-insensitively as substrings.
var sensitiveKeyFragments = []string{
	"password",
	"secret",
	"token",
	"key",
	"ssn",
	"social",
	"credit",
	"bank",
	"account",
}

var (
	scriptTagRe    = regexp.MustCompile(`(?is)<script.*?(?:</script>|$)`)
	javascriptRe   = regexp.MustCompile(`(?i)javascript:`)
	eventHandlerRe = regexp.MustCompile(`(?i)\bon\w+\s*=`)
)

// SanitizeMetadata returns a cleaned copy of metadata: sensitive keys are
// dropped, embedded script content is stripped from strings, long strings
// are truncated and oversized arrays are capped. Nested maps and arrays are
// cleaned recursively. The input is never mutated.
func SanitizeMetadata(metadata domain.JSONB) domain.JSONB {
	if metadata == nil {
		return nil
	}
	out := make(domain.JSONB, len(metadata))
	for key, value := range metadata {
		if isSensitiveKey(key) {
			continue
		}
		out[key] = sanitizeValue(value)
	}
	return out
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, frag := range sensitiveKeyFragments {
		if strings.Contains(lower, frag) {
			return true
		}
	}
	return false
}

func sanitizeValue(value interface{}) interface{} {
	switch v := value.(type) {
	case string:
		return sanitizeString(v)
	case []interface{}:
		if len(v) > maxArrayElements {
			v = v[:maxArrayElements]
		}
		cleaned := make([]interface{}, len(v))
		for i, el := range v {
			// array element strings get a tighter cap than top-level strings
			if s, ok := el.(string); ok {
				s = sanitizeString(s)
				if len(s) > maxArrayElementLength {
					s = s[:maxArrayElementLength]
				}
				cleaned[i] = s
				continue
			}
			cleaned[i] = sanitizeValue(el)
		}
		return cleaned
	case map[string]interface{}:
		cleaned := make(map[string]interface{}, len(v))
		for k, el := range v {
			if isSensitiveKey(k) {
				continue
			}
			cleaned[k] = sanitizeValue(el)
		}
		return cleaned
	case domain.JSONB:
		return map[string]interface{}(SanitizeMetadata(v))
	default:
		return v
	}
}

func sanitizeString(s string) string {
	s = scriptTagRe.ReplaceAllString(s, "")
	s = javascriptRe.ReplaceAllString(s, "")
	s = eventHandlerRe.ReplaceAllString(s, "")
	if len(s) > maxStringLength {
		s = s[:maxStringLength]
	}
	return s
}
