package id

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateLengthAndAlphabet(t *testing.T) {
	gen := New(0)
	assert.Equal(t, 10, gen.Length())

	seen := make(map[string]struct{})
	for i := 0; i < 1000; i++ {
		v, err := gen.Generate(context.Background())
		require.NoError(t, err)
		require.Len(t, v, 10)
		for _, r := range v {
			require.True(t, strings.ContainsRune(Alphabet, r), "unexpected rune %q in %q", r, v)
		}
		seen[v] = struct{}{}
	}
	assert.Len(t, seen, 1000)
}

func TestGenerateCustomLength(t *testing.T) {
	v, err := New(21).Generate(context.Background())
	require.NoError(t, err)
	assert.Len(t, v, 21)
}

func TestGenerateCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(10).Generate(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
