package rotation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashTokenDeterministic(t *testing.T) {
	h1 := HashToken("some-raw-token")
	h2 := HashToken("some-raw-token")
	assert.Equal(t, h1, h2, "same input must produce the same digest")

	// hex encoded SHA-256
	assert.Len(t, h1, 64)

	assert.NotEqual(t, h1, HashToken("some-raw-tokeN"))
}

func TestNewRawTokenUnique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		raw, err := NewRawToken()
		require.NoError(t, err)
		assert.False(t, seen[raw], "raw tokens must not repeat")
		seen[raw] = true

		// 32 bytes base64url without padding.
		assert.Len(t, raw, 43)
	}
}
