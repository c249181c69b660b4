package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHashToken(t *testing.T) {
	a := HashToken("secret-token")
	b := HashToken("secret-token")
	c := HashToken("other-token")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
	assert.NotContains(t, a, "secret")
}

func TestRandomID(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id := RandomID("sess")
		assert.Regexp(t, `^sess_[0-9a-f]{24}$`, id)
		assert.False(t, seen[id])
		seen[id] = true
	}
}
