package landmark

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHashDeterministic(t *testing.T) {
	assert.Equal(t, Hash(10, 20, 5), Hash(10, 20, 5))
}

func TestHashDistinguishesInputs(t *testing.T) {
	base := Hash(10, 20, 5)
	assert.NotEqual(t, base, Hash(11, 20, 5))
	assert.NotEqual(t, base, Hash(10, 21, 5))
	assert.NotEqual(t, base, Hash(10, 20, 6))
}

func TestHashIsTenLowercaseHexChars(t *testing.T) {
	h := Hash(123, 456, 78)
	assert.Len(t, h, 10)
	for _, r := range h {
		assert.True(t, (r >= '0' && r <= '9') || (r >= 'a' && r <= 'f'), "unexpected rune %q", r)
	}
}
