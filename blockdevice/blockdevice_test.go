package blockdevice

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemDeviceReadWriteEraseRoundTrip(t *testing.T) {
	geom := Geometry{BlockSize: 64, BlockCount: 4}
	dev := NewMemDevice(geom)

	require.NoError(t, dev.ProgramBlock(1, 0, []byte("hello")))
	buf := make([]byte, 5)
	require.NoError(t, dev.ReadBlock(1, 0, buf))
	assert.Equal(t, "hello", string(buf))

	require.NoError(t, dev.EraseBlock(1))
	require.NoError(t, dev.ReadBlock(1, 0, buf))
	for _, b := range buf {
		assert.Equal(t, byte(0xFF), b)
	}
}

func TestFileDeviceReadWriteEraseRoundTrip(t *testing.T) {
	geom := Geometry{BlockSize: 64, BlockCount: 4}
	dev, err := OpenFileDevice(t.TempDir()+"/nvm.img", geom)
	require.NoError(t, err)
	defer dev.Close()

	require.NoError(t, dev.ProgramBlock(2, 4, []byte("world")))
	buf := make([]byte, 5)
	require.NoError(t, dev.ReadBlock(2, 4, buf))
	assert.Equal(t, "world", string(buf))

	require.NoError(t, dev.EraseBlock(2))
	require.NoError(t, dev.ReadBlock(2, 4, buf))
	for _, b := range buf {
		assert.Equal(t, byte(0xFF), b)
	}
}

func TestValidateAddressRejectsOutOfRangeBlock(t *testing.T) {
	geom := Geometry{BlockSize: 4096, BlockCount: 16}
	_, err := validateAddress(geom, 16, 0, 1)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestValidateAddressRejectsMultiplicationOverflow(t *testing.T) {
	geom := Geometry{BlockSize: 4096, BlockCount: math.MaxUint32}
	_, err := validateAddress(geom, math.MaxUint32/4096+1, 0, 1)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestValidateAddressRejectsSizeOverflow(t *testing.T) {
	geom := Geometry{BlockSize: 4096, BlockCount: 16}
	_, err := validateAddress(geom, 0, math.MaxUint32-1, 4096)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestValidateAddressAccepts(t *testing.T) {
	geom := Geometry{BlockSize: 4096, BlockCount: 16}
	addr, err := validateAddress(geom, 3, 100, 50)
	require.NoError(t, err)
	assert.EqualValues(t, 3*4096+100, addr)
}
