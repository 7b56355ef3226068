// internal/consultation/sanitize_test.go
package consultation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeSymptoms_StripsScriptBlocks(t *testing.T) {
	got := SanitizeSymptoms(`itchy rash <script>alert("x")</script> on my arm`, 0)

	assert.NotContains(t, got, "<script")
	assert.NotContains(t, got, "alert")
	assert.Contains(t, got, "itchy rash")
	assert.Contains(t, got, "on my arm")
}

func TestSanitizeSymptoms_StripsHTMLTags(t *testing.T) {
	got := SanitizeSymptoms("red <b>swollen</b> patch <img src=x>", 0)

	assert.NotContains(t, got, "<")
	assert.NotContains(t, got, ">")
	assert.Contains(t, got, "swollen")
}

func TestSanitizeSymptoms_StripsScriptSchemesAndHandlers(t *testing.T) {
	got := SanitizeSymptoms("click javascript:void(0) onerror= payload burning skin", 0)

	assert.NotContains(t, strings.ToLower(got), "javascript:")
	assert.NotContains(t, strings.ToLower(got), "onerror=")
	assert.Contains(t, got, "burning skin")
}

func TestSanitizeSymptoms_NormalizesWhitespace(t *testing.T) {
	got := SanitizeSymptoms("  itching \n\t and   flaking  ", 0)

	assert.Equal(t, "itching and flaking", got)
}

func TestSanitizeSymptoms_TruncatesToMaxLength(t *testing.T) {
	raw := strings.Repeat("a", 50)
	got := SanitizeSymptoms(raw, 20)

	assert.Len(t, []rune(got), 20)
	assert.True(t, strings.HasSuffix(got, "..."))
}

func TestSanitizeSymptoms_Idempotent(t *testing.T) {
	inputs := []string{
		"plain symptom text",
		"itchy <script>x</script> rash",
		strings.Repeat("long symptom text ", 100),
		"  spaced\t\nout  ",
	}

	for _, raw := range inputs {
		once := SanitizeSymptoms(raw, 50)
		twice := SanitizeSymptoms(once, 50)
		assert.Equal(t, once, twice, "sanitizing twice must be a no-op for %q", raw)
	}
}

func TestSanitizeSymptoms_EmptyInput(t *testing.T) {
	assert.Equal(t, "", SanitizeSymptoms("", 0))
	assert.Equal(t, "", SanitizeSymptoms("   \n ", 0))
}

func TestExtractSymptomFeatures_Keywords(t *testing.T) {
	features := ExtractSymptomFeatures("severe itching and flaking skin for 2 weeks")

	assert.Contains(t, features.Keywords, "itching")
	assert.Contains(t, features.Keywords, "flaking")
	assert.Equal(t, "severe", features.Severity)
	assert.Equal(t, "2 weeks", features.Duration)
}

func TestExtractSymptomFeatures_SingularDuration(t *testing.T) {
	features := ExtractSymptomFeatures("mild redness for 1 day")

	assert.Contains(t, features.Keywords, "redness")
	assert.Equal(t, "mild", features.Severity)
	assert.Equal(t, "1 day", features.Duration)
}

func TestExtractSymptomFeatures_NoSignals(t *testing.T) {
	features := ExtractSymptomFeatures("feeling generally unwell")

	assert.Empty(t, features.Keywords)
	assert.Equal(t, "unspecified", features.Severity)
	assert.Empty(t, features.Duration)
}

func TestExtractSymptomFeatures_Deduplicates(t *testing.T) {
	features := ExtractSymptomFeatures("itchy and itching all over")

	count := 0
	for _, kw := range features.Keywords {
		if kw == "itching" {
			count++
		}
	}
	assert.Equal(t, 1, count)
}
