package blockdevice

import (
	"fmt"

	"github.com/tzarc/qmk-modules/littlefs"
)

// Debug gates verbose per-transfer logging for MemDevice and FileDevice,
// mirroring the debug flag threaded through the teacher's example commands.
var Debug = false

// MemDevice is a littlefs.BlockDevice backed by a plain byte slice, for
// tests and for nvmctl runs against no hardware at all.
type MemDevice struct {
	geom   Geometry
	memory []byte
}

var _ littlefs.BlockDevice = (*MemDevice)(nil)

// NewMemDevice allocates a zeroed device and erases every block so it
// starts in the same all-0xFF state as blank NOR flash.
func NewMemDevice(geom Geometry) *MemDevice {
	dev := &MemDevice{
		geom:   geom,
		memory: make([]byte, geom.BlockSize*geom.BlockCount),
	}
	for i := uint32(0); i < geom.BlockCount; i++ {
		_ = dev.EraseBlock(i)
	}
	return dev
}

func (bd *MemDevice) ReadBlock(block, offset uint32, buf []byte) error {
	if Debug {
		fmt.Printf("blockdevice: mem ReadBlock(%d, %d, %d)\n", block, offset, len(buf))
	}
	addr := bd.geom.BlockSize*block + offset
	copy(buf, bd.memory[addr:])
	return nil
}

func (bd *MemDevice) ProgramBlock(block, offset uint32, buf []byte) error {
	if Debug {
		fmt.Printf("blockdevice: mem ProgramBlock(%d, %d, %d)\n", block, offset, len(buf))
	}
	addr := bd.geom.BlockSize*block + offset
	copy(bd.memory[addr:], buf)
	return nil
}

func (bd *MemDevice) EraseBlock(block uint32) error {
	if Debug {
		fmt.Printf("blockdevice: mem EraseBlock(%d)\n", block)
	}
	addr := bd.geom.BlockSize * block
	blank := bd.memory[addr : addr+bd.geom.BlockSize]
	for i := range blank {
		blank[i] = 0xFF
	}
	return nil
}

func (bd *MemDevice) Sync() error { return nil }
