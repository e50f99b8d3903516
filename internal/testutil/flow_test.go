package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFixedTokens_ReturnsInOrder(t *testing.T) {
	gen := NewFixedTokens("tok-1", "tok-2")

	assert.Equal(t, "tok-1", gen.Generate())
	assert.Equal(t, "tok-2", gen.Generate())
}

func TestFixedTokens_PanicsWhenExhausted(t *testing.T) {
	gen := NewFixedTokens("only")
	gen.Generate()

	assert.PanicsWithValue(t, "testutil: fixed tokens exhausted", func() {
		gen.Generate()
	})
}
