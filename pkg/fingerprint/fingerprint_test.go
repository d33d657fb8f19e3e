package fingerprint

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOfIsDeterministic(t *testing.T) {
	assert.Equal(t, Of("Hello world"), Of("Hello world"))
	assert.NotEqual(t, Of("Hello world"), Of("Hello world!"))
}

func TestMatches(t *testing.T) {
	fp := Of("Hello world")
	assert.True(t, Matches("Hello world", fp))
	assert.False(t, Matches("Hello world!", fp))
	// No fingerprint yet always reads as changed.
	assert.False(t, Matches("", ""))
	assert.False(t, Matches("Hello world", ""))
}
