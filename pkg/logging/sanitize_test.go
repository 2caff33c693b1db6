package logging_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lucasonchain/psyche/pkg/logging"
)

func TestSanitizeEscapesControlCharacters(t *testing.T) {
	assert.Equal(t, "a\\nb\\rc\\td", logging.Sanitize("a\nb\rc\td"))
}

func TestSanitizeReplacesOtherControlBytes(t *testing.T) {
	assert.Equal(t, "a?b", logging.Sanitize("a\x00b"))
}

func TestSanitizeEscapesBackslash(t *testing.T) {
	assert.Equal(t, "a\\\\b", logging.Sanitize(`a\b`))
}

func TestSanitizeTruncatesLongInput(t *testing.T) {
	s := logging.Sanitize(strings.Repeat("a", 200))
	assert.True(t, strings.HasSuffix(s, "...[truncated]"))
	assert.Less(t, len(s), 200)
}

func TestSanitizeEmpty(t *testing.T) {
	assert.Equal(t, "", logging.Sanitize(""))
}
