package promptz_test

import (
	"strings"
	"testing"

	"github.com/cremich/promptz-sub001/pkg/promptz"
	"github.com/stretchr/testify/assert"
)

func TestSlugify(t *testing.T) {
	const id = "3f2a9c1e-8b7d-4e6f-a1b2-c3d4e5f60718"

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "simple words", input: "Git Helper", expected: "git-helper-3f2a9c1e"},
		{name: "punctuation collapses", input: "Git -- Helper!!  Pro", expected: "git-helper-pro-3f2a9c1e"},
		{name: "leading and trailing symbols", input: "  ***Refactor Code***  ", expected: "refactor-code-3f2a9c1e"},
		{name: "digits kept", input: "Python 3.12 Tips", expected: "python-3-12-tips-3f2a9c1e"},
		{name: "already a slug", input: "code-review", expected: "code-review-3f2a9c1e"},
		{name: "empty name", input: "", expected: "-3f2a9c1e"},
		{name: "only symbols", input: "!!! ??? ---", expected: "-3f2a9c1e"},
		{name: "non ascii degrades", input: "Überprüfung", expected: "berpr-fung-3f2a9c1e"},
		{name: "fully non ascii", input: "日本語", expected: "-3f2a9c1e"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, promptz.Slugify(tt.input, id))
		})
	}
}

func TestSlugify_Deterministic(t *testing.T) {
	names := []string{"Git Helper", "", "a_b_c", "MiXeD CaSe 42", "émoji 🚀 prompt"}
	ids := []string{"abc-def", "nodelimiter", "", "1-2-3"}

	for _, name := range names {
		for _, id := range ids {
			first := promptz.Slugify(name, id)
			for i := 0; i < 5; i++ {
				assert.Equal(t, first, promptz.Slugify(name, id))
			}
		}
	}
}

func TestSlugify_NamePortionHasNoHyphenArtifacts(t *testing.T) {
	names := []string{"-", "--x--", "  hello  ", "***", "a", "_a_b_", "héllo wörld"}

	for _, name := range names {
		slug := promptz.Slugify(name, "seg-rest")
		prefix := strings.TrimSuffix(slug, "-seg")
		assert.False(t, strings.HasPrefix(prefix, "-"), "prefix %q of %q", prefix, name)
		assert.False(t, strings.HasSuffix(prefix, "-"), "prefix %q of %q", prefix, name)
		assert.NotContains(t, prefix, "--")
	}
}

func TestSlugify_IDWithoutDelimiter(t *testing.T) {
	assert.Equal(t, "rules-abc123", promptz.Slugify("Rules", "abc123"))
}
