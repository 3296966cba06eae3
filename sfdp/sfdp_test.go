package sfdp

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTransport serves READ JEDEC ID and READ SFDP against a
// pre-built byte image, exactly the two commands Probe issues.
type fakeTransport struct {
	jedecID [3]byte
	sfdp    []byte
}

func (f *fakeTransport) Command(opcode byte, addr []byte, dummy int, rx []byte) error {
	switch opcode {
	case cmdGetJEDECID:
		copy(rx, f.jedecID[:])
	case cmdEnterSFDPMode:
		a := uint32(addr[0])<<16 | uint32(addr[1])<<8 | uint32(addr[2])
		copy(rx, f.sfdp[a:a+uint32(len(rx))])
	}
	return nil
}

// buildMinimalSFDP constructs a valid header plus one JEDEC basic
// parameter header pointing at a table long enough to carry dwords
// 1-9, with dword 2 encoding a 16 Mbit density.
func buildMinimalSFDP() []byte {
	buf := make([]byte, headerSize+parameterHdrSize+9*parameterDwordLen)

	binary.LittleEndian.PutUint32(buf[0:4], sfdpSignature)
	buf[6] = 0 // header_count = 0 -> one parameter header total
	buf[7] = reservedByte

	tablePointer := uint32(headerSize + parameterHdrSize)
	paramHdr := buf[headerSize : headerSize+parameterHdrSize]
	paramHdr[3] = 9 // length in dwords
	paramHdr[4] = byte(tablePointer)
	paramHdr[5] = byte(tablePointer >> 8)
	paramHdr[6] = byte(tablePointer >> 16)
	paramHdr[7] = reservedByte

	dwords := buf[tablePointer:]
	// dword 1: 4kB erase supported (code 1) with erase opcode 0x20 in bits 8-15
	binary.LittleEndian.PutUint32(dwords[0:4], 0x20<<8|1)
	// dword 2: low density, 16 Mbit - 1 = 0x00FFFFFF
	binary.LittleEndian.PutUint32(dwords[4:8], 0x00FFFFFF)

	return buf
}

func TestProbeDecodesJEDECIDAndDensity(t *testing.T) {
	transport := &fakeTransport{
		jedecID: [3]byte{0xEF, 0x40, 0x18},
		sfdp:    buildMinimalSFDP(),
	}

	profile, err := Probe(transport)
	require.NoError(t, err)

	assert.EqualValues(t, 0xEF4018, profile.JEDECID)
	assert.EqualValues(t, 16*1024*1024, profile.DensityBits)
	assert.EqualValues(t, 2*1024*1024, profile.DensityBytes)
	assert.True(t, profile.Erase4KSupported)
	assert.EqualValues(t, 0x20, profile.EraseSize4KOpcode)
}

func TestProbeRejectsBadSignature(t *testing.T) {
	image := buildMinimalSFDP()
	binary.LittleEndian.PutUint32(image[0:4], 0xDEADBEEF)
	transport := &fakeTransport{sfdp: image}

	_, err := Probe(transport)
	assert.ErrorIs(t, err, ErrNotSupported)
}

func TestProbeRejectsCorruptReservedByte(t *testing.T) {
	image := buildMinimalSFDP()
	image[7] = 0x00
	transport := &fakeTransport{sfdp: image}

	_, err := Probe(transport)
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestDecodeAddressBytes(t *testing.T) {
	assert.Equal(t, 3, decodeAddressBytes(0))
	assert.Equal(t, 3, decodeAddressBytes(1))
	assert.Equal(t, 4, decodeAddressBytes(2))
	assert.Equal(t, 0, decodeAddressBytes(3))
}

func TestHighDensityDecoding(t *testing.T) {
	var p Profile
	// is_high_density bit set (bit 31), value 5 -> 2^5 bits.
	decodeDword2(0x80000005, &p)
	assert.EqualValues(t, 32, p.DensityBits)
	assert.EqualValues(t, 4, p.DensityBytes)
}
