package nvm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encoderRawDefaultZero(layer, encoder, direction int) uint16 { return 0 }

func TestEncoderMapSaveLoadRoundTrip(t *testing.T) {
	fs := newTestFilesystem(t)
	store := NewEncoderMapStore(fs, 2, 2, 2, encoderRawDefaultZero)

	store.Update(0, 0, 0, 0x00AB)
	store.Update(0, 1, 1, 0x00CD)
	require.NoError(t, store.Save())

	reloaded := NewEncoderMapStore(fs, 2, 2, 2, encoderRawDefaultZero)
	require.NoError(t, reloaded.Load())

	assert.EqualValues(t, 0x00AB, reloaded.Read(0, 0, 0))
	assert.EqualValues(t, 0x00CD, reloaded.Read(0, 1, 1))
	assert.Equal(t, 2, reloaded.AlteredCount(0))
}

func TestEncoderMapEraseResetsToDefaults(t *testing.T) {
	fs := newTestFilesystem(t)
	store := NewEncoderMapStore(fs, 1, 2, 2, encoderRawDefaultZero)
	store.Update(0, 0, 0, 5)
	require.NoError(t, store.Save())
	require.NoError(t, store.Erase())
	assert.EqualValues(t, 0, store.Read(0, 0, 0))
}
