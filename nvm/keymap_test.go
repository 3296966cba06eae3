package nvm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tzarc/qmk-modules/vfs"
)

func rawDefaultAlwaysZero(layer, row, col int) uint16 { return 0 }

func TestKeymapUpdateTogglesAlteredBit(t *testing.T) {
	fs := newTestFilesystem(t)
	store := NewKeymapStore(fs, 4, 3, 3, rawDefaultAlwaysZero)

	assert.False(t, store.IsAltered(0, 1, 1))
	assert.Equal(t, 0, store.AlteredCount(0))

	store.Update(0, 1, 1, 0x0004) // KC_A
	assert.True(t, store.IsAltered(0, 1, 1))
	assert.Equal(t, 1, store.AlteredCount(0))

	store.Update(0, 1, 1, 0) // back to raw default
	assert.False(t, store.IsAltered(0, 1, 1))
	assert.Equal(t, 0, store.AlteredCount(0))
}

func TestKeymapPopcountInvariant(t *testing.T) {
	fs := newTestFilesystem(t)
	store := NewKeymapStore(fs, 2, 4, 4, rawDefaultAlwaysZero)

	store.Update(0, 0, 0, 1)
	store.Update(0, 1, 1, 2)
	store.Update(0, 2, 2, 3)

	count := 0
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			if store.IsAltered(0, r, c) {
				count++
			}
		}
	}
	assert.Equal(t, count, store.AlteredCount(0))
}

func TestKeymapSaveLoadRoundTrip(t *testing.T) {
	fs := newTestFilesystem(t)
	store := NewKeymapStore(fs, 2, 3, 3, rawDefaultAlwaysZero)

	store.Update(0, 0, 0, 0x1234)
	store.Update(0, 2, 2, 0x5678)
	require.NoError(t, store.Save())

	reloaded := NewKeymapStore(fs, 2, 3, 3, rawDefaultAlwaysZero)
	require.NoError(t, reloaded.Load())

	assert.Equal(t, uint16(0x1234), reloaded.Read(0, 0, 0))
	assert.Equal(t, uint16(0x5678), reloaded.Read(0, 2, 2))
	assert.Equal(t, uint16(0), reloaded.Read(0, 1, 1))
	assert.Equal(t, 2, reloaded.AlteredCount(0))
}

func TestKeymapLoadIsIdempotent(t *testing.T) {
	fs := newTestFilesystem(t)
	store := NewKeymapStore(fs, 2, 3, 3, rawDefaultAlwaysZero)
	store.Update(0, 0, 0, 0x1111)
	require.NoError(t, store.Save())

	require.NoError(t, store.Load())
	first := store.AlteredCount(0)
	require.NoError(t, store.Load())
	second := store.AlteredCount(0)
	assert.Equal(t, first, second)
}

func TestKeymapFullGridChosenOnTie(t *testing.T) {
	fs := newTestFilesystem(t)
	// rows*cols*2 == 2*2*2 == 8; a single override entry is 4 bytes,
	// so at 2 altered keys full_size(8) == override_size(8): the tie
	// favors the full grid (mode byte 0x00).
	store := NewKeymapStore(fs, 1, 2, 2, rawDefaultAlwaysZero)
	store.Update(0, 0, 0, 1)
	store.Update(0, 0, 1, 2)
	require.NoError(t, store.Save())

	fd, err := fs.Open("layers/key00", vfs.Read)
	require.NoError(t, err)
	defer fs.Close(fd)
	mode := make([]byte, 1)
	_, err = fs.Read(fd, mode)
	require.NoError(t, err)
	assert.Equal(t, byte(0x00), mode[0])
}

func TestKeymapOutOfRangeIsNoOp(t *testing.T) {
	fs := newTestFilesystem(t)
	store := NewKeymapStore(fs, 1, 2, 2, rawDefaultAlwaysZero)
	store.Update(5, 0, 0, 1) // out of range layer
	assert.Equal(t, uint16(0), store.Read(5, 0, 0))
	assert.Equal(t, 0, store.AlteredCount(0))
}

func TestKeymapReadBufferMatchesPackedGrid(t *testing.T) {
	fs := newTestFilesystem(t)
	store := NewKeymapStore(fs, 2, 2, 2, rawDefaultAlwaysZero)
	store.Update(0, 0, 0, 0x1234)
	store.Update(0, 0, 1, 0xABCD)

	buf := store.ReadBuffer(0, 4)
	require.NotNil(t, buf)
	assert.Equal(t, []byte{0x34, 0x12, 0xCD, 0xAB}, buf)

	assert.Nil(t, store.ReadBuffer(-1, 4))
	assert.Nil(t, store.ReadBuffer(0, 2*2*2*2+1))
}

func TestKeymapUpdateBufferRoutesThroughUpdate(t *testing.T) {
	fs := newTestFilesystem(t)
	store := NewKeymapStore(fs, 1, 2, 2, rawDefaultAlwaysZero)

	// layer 0, row 0, col 1 is byte offset 2-3.
	store.UpdateBuffer(2, []byte{0xEF, 0xBE})
	assert.Equal(t, uint16(0xBEEF), store.Read(0, 0, 1))
	assert.True(t, store.IsAltered(0, 0, 1))
	assert.Equal(t, 1, store.AlteredCount(0))

	// Single-byte write only touches the low half of the next cell.
	store.Update(0, 1, 0, 0xAA55)
	store.UpdateBuffer(4, []byte{0x11})
	assert.Equal(t, uint16(0xAA11), store.Read(0, 1, 0))
}

func TestKeymapBufferRoundTripsWithSave(t *testing.T) {
	fs := newTestFilesystem(t)
	store := NewKeymapStore(fs, 1, 2, 2, rawDefaultAlwaysZero)
	full := make([]byte, 1*2*2*2)
	for i := range full {
		full[i] = byte(i + 1)
	}
	store.UpdateBuffer(0, full)
	require.NoError(t, store.Save())

	reloaded := NewKeymapStore(fs, 1, 2, 2, rawDefaultAlwaysZero)
	require.NoError(t, reloaded.Load())
	assert.Equal(t, full, reloaded.ReadBuffer(0, len(full)))
}

func TestKeymapEraseResetsToDefaults(t *testing.T) {
	fs := newTestFilesystem(t)
	store := NewKeymapStore(fs, 1, 2, 2, rawDefaultAlwaysZero)
	store.Update(0, 0, 0, 42)
	require.NoError(t, store.Save())
	require.NoError(t, store.Erase())
	assert.Equal(t, uint16(0), store.Read(0, 0, 0))
	assert.Equal(t, 0, store.AlteredCount(0))
}
