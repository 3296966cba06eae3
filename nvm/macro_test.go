package nvm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMacroSaveLoadRoundTrip(t *testing.T) {
	fs := newTestFilesystem(t)
	store := NewMacroStore(fs)

	store.UpdateBuffer(0, []byte("hello\x00world\x00"))
	require.NoError(t, store.Save())

	reloaded := NewMacroStore(fs)
	require.NoError(t, reloaded.Load())

	assert.Equal(t, []byte("hello\x00"), reloaded.ReadBuffer(0, 6))
	assert.Equal(t, []byte("world\x00"), reloaded.ReadBuffer(6, 6))
}

func TestMacroSaveSkipsEmptyRunButKeepsIndex(t *testing.T) {
	fs := newTestFilesystem(t)
	store := NewMacroStore(fs)

	store.UpdateBuffer(0, []byte("a\x00\x00b\x00"))
	require.NoError(t, store.Save())

	assert.True(t, fs.Exists("macros/00"))
	assert.False(t, fs.Exists("macros/01")) // empty run between the two NULs
	assert.True(t, fs.Exists("macros/02"))
}

func TestMacroUpdateOnlyDirtiesOnChange(t *testing.T) {
	fs := newTestFilesystem(t)
	store := NewMacroStore(fs)
	store.UpdateBuffer(0, []byte{0, 0, 0})
	assert.False(t, store.dirty, "writing the buffer's existing zero value should not mark it dirty")
}
