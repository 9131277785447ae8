package security

import (
	"strings"
	"testing"

	"github.com/caselink/voice-call-service/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeMetadataDropsSensitiveKeys(t *testing.T) {
	in := domain.JSONB{
		"campaign":       "spring",
		"password":       "hunter2",
		"api_key":        "sk-123",
		"user_ssn":       "000-00-0000",
		"creditCardInfo": "4111",
		"credit_score":   "720",
		"bank_account":   "123456",
		"social":         "000-00-0000",
		"encryption_key": "aabbcc",
		"access_token":   "tok",
	}
	out := SanitizeMetadata(in)

	assert.Equal(t, "spring", out["campaign"])
	for _, k := range []string{
		"password", "api_key", "user_ssn", "creditCardInfo",
		"credit_score", "bank_account", "social", "encryption_key", "access_token",
	} {
		_, present := out[k]
		assert.False(t, present, "key %q should be dropped", k)
	}
}

func TestSanitizeMetadataStripsScriptContent(t *testing.T) {
	in := domain.JSONB{
		"note":    `hello <script>alert(1)</script> world`,
		"link":    `javascript:alert(1)`,
		"handler": `<img onerror=alert(1) src=x>`,
	}
	out := SanitizeMetadata(in)

	assert.Equal(t, "hello  world", out["note"])
	assert.Equal(t, "alert(1)", out["link"])
	assert.NotContains(t, out["handler"].(string), "onerror=")
}

func TestSanitizeMetadataTruncatesLongStrings(t *testing.T) {
	in := domain.JSONB{"blob": strings.Repeat("a", 5000)}
	out := SanitizeMetadata(in)
	assert.Len(t, out["blob"].(string), 1000)
}

func TestSanitizeMetadataCapsArrays(t *testing.T) {
	arr := make([]interface{}, 250)
	for i := range arr {
		arr[i] = i
	}
	out := SanitizeMetadata(domain.JSONB{"items": arr})
	assert.Len(t, out["items"].([]interface{}), 100)
}

func TestSanitizeMetadataTruncatesArrayElementStrings(t *testing.T) {
	in := domain.JSONB{"notes": []interface{}{strings.Repeat("b", 500), 7}}
	out := SanitizeMetadata(in)

	notes := out["notes"].([]interface{})
	require.Len(t, notes, 2)
	assert.Len(t, notes[0].(string), 100)
	assert.Equal(t, 7, notes[1])
}

func TestSanitizeMetadataRecursesIntoNestedValues(t *testing.T) {
	in := domain.JSONB{
		"nested": map[string]interface{}{
			"token": "secret",
			"note":  "<script>x</script>ok",
		},
		"list": []interface{}{"javascript:bad", "fine"},
	}
	out := SanitizeMetadata(in)

	nested := out["nested"].(map[string]interface{})
	_, present := nested["token"]
	assert.False(t, present)
	assert.Equal(t, "ok", nested["note"])

	list := out["list"].([]interface{})
	require.Len(t, list, 2)
	assert.Equal(t, "bad", list[0])
	assert.Equal(t, "fine", list[1])
}

func TestSanitizeMetadataDoesNotMutateInput(t *testing.T) {
	in := domain.JSONB{"password": "x", "keep": "y"}
	_ = SanitizeMetadata(in)
	assert.Equal(t, "x", in["password"])
}

func TestSanitizeMetadataNil(t *testing.T) {
	assert.Nil(t, SanitizeMetadata(nil))
}
