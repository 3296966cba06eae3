// Package blockdevice implements littlefs.BlockDevice over a SPI NOR
// flash chip, a plain byte slice, or a host file, translating
// (block, offset, size) tuples into byte addresses with the same
// overflow guards the original flash driver uses.
package blockdevice

import (
	"errors"
	"fmt"
	"sync"

	"github.com/tzarc/qmk-modules/littlefs"
)

// ErrInvalid is returned for out-of-range blocks or address overflow,
// mirroring LFS_ERR_INVAL from the C driver this package replaces.
var ErrInvalid = errors.New("blockdevice: invalid block address")

// Transport is the minimal SPI NOR contract this package needs. The
// actual spi_start/write/receive/stop primitives stay external, as
// this package only issues read/program/erase-sector requests.
type Transport interface {
	ReadAt(addr uint32, buf []byte) error
	WriteAt(addr uint32, buf []byte) error
	EraseSector(addr uint32) error
}

// Geometry carries the fields FlashBlockDevice needs to validate and
// translate addresses; it is the block-device slice of config.DeviceProfile.
type Geometry struct {
	BlockSize  uint32
	BlockCount uint32
}

// validateAddress ports fs_validate_block_address byte-for-byte: bounds
// the block index, then guards both the block*size multiply and the
// addr+size add against uint32 wraparound.
func validateAddress(g Geometry, block, off, size uint32) (uint32, error) {
	if block >= g.BlockCount {
		return 0, ErrInvalid
	}
	if g.BlockSize == 0 || block > ^uint32(0)/g.BlockSize {
		return 0, ErrInvalid
	}
	base := block * g.BlockSize
	addr := base + off
	if addr < base {
		return 0, ErrInvalid
	}
	if size > 0 && addr+size < addr {
		return 0, ErrInvalid
	}
	return addr, nil
}

// FlashBlockDevice adapts a Transport (an opaque SPI NOR chip) to the
// littlefs.BlockDevice contract. Lock/Unlock wrap a mutex the same way
// the C driver wraps a ChibiOS mutex around each transfer.
type FlashBlockDevice struct {
	geom Geometry
	t    Transport
	mu   sync.Mutex
}

var _ littlefs.BlockDevice = (*FlashBlockDevice)(nil)

// NewFlashBlockDevice builds a block device driving t according to geom.
func NewFlashBlockDevice(geom Geometry, t Transport) *FlashBlockDevice {
	return &FlashBlockDevice{geom: geom, t: t}
}

func (bd *FlashBlockDevice) Lock()   { bd.mu.Lock() }
func (bd *FlashBlockDevice) Unlock() { bd.mu.Unlock() }

func (bd *FlashBlockDevice) ReadBlock(block, offset uint32, buf []byte) error {
	addr, err := validateAddress(bd.geom, block, offset, uint32(len(buf)))
	if err != nil {
		return err
	}
	bd.Lock()
	defer bd.Unlock()
	if err := bd.t.ReadAt(addr, buf); err != nil {
		return fmt.Errorf("blockdevice: read block %d: %w", block, err)
	}
	return nil
}

func (bd *FlashBlockDevice) ProgramBlock(block, offset uint32, buf []byte) error {
	addr, err := validateAddress(bd.geom, block, offset, uint32(len(buf)))
	if err != nil {
		return err
	}
	bd.Lock()
	defer bd.Unlock()
	if err := bd.t.WriteAt(addr, buf); err != nil {
		return fmt.Errorf("blockdevice: program block %d: %w", block, err)
	}
	return nil
}

func (bd *FlashBlockDevice) EraseBlock(block uint32) error {
	addr, err := validateAddress(bd.geom, block, 0, 0)
	if err != nil {
		return err
	}
	bd.Lock()
	defer bd.Unlock()
	if err := bd.t.EraseSector(addr); err != nil {
		return fmt.Errorf("blockdevice: erase block %d: %w", block, err)
	}
	return nil
}

// Sync is a no-op: SPI NOR writes are synchronous at the chip interface.
func (bd *FlashBlockDevice) Sync() error { return nil }
