package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursorCoder_RoundTrip(t *testing.T) {
	coder, err := NewCursorCoder()
	require.NoError(t, err)

	cur := Cursor{SortValues: []string{"Цемент М500"}, LastID: "m-123"}
	token, err := coder.Encode(cur)
	require.NoError(t, err)

	got, err := coder.Decode(token)
	require.NoError(t, err)
	assert.Equal(t, cur, got)
}

func TestCursorCoder_TamperedTokenFailsInvalidCursor(t *testing.T) {
	coder, err := NewCursorCoder()
	require.NoError(t, err)
	token, err := coder.Encode(Cursor{LastID: "m-1"})
	require.NoError(t, err)

	tampered := "x" + token[1:]
	if tampered == token {
		tampered = "y" + token[1:]
	}
	_, err = coder.Decode(tampered)
	require.Error(t, err)
}

func TestCursorCoder_WrongSecretFailsInvalidCursor(t *testing.T) {
	a, err := NewCursorCoder()
	require.NoError(t, err)
	b, err := NewCursorCoder()
	require.NoError(t, err)

	token, err := a.Encode(Cursor{LastID: "m-1"})
	require.NoError(t, err)
	_, err = b.Decode(token)
	require.Error(t, err)
}

func TestCursorCoder_GarbageTokenFailsInvalidCursor(t *testing.T) {
	coder, err := NewCursorCoder()
	require.NoError(t, err)
	_, err = coder.Decode("not-a-valid-token!!")
	require.Error(t, err)
}
