package runner

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abc...", truncate("abcdef", 3))
	assert.Equal(t, "exact", truncate("exact", 5))
}

func TestTruncateKeepsRunesIntact(t *testing.T) {
	// A multibyte rune straddling the cap must be dropped whole, not
	// byte-sliced into garbage the store would reject
	s := strings.Repeat("a", 2047) + "é"
	got := truncate(s, 2048)
	assert.True(t, utf8.ValidString(got))
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.Equal(t, strings.Repeat("a", 2047)+"...", got)

	multi := strings.Repeat("é", 100)
	got = truncate(multi, 7)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, strings.Repeat("é", 3)+"...", got)
}
