package blockdevice

import (
	"fmt"
	"os"

	"github.com/tzarc/qmk-modules/littlefs"
)

// FileDevice is a littlefs.BlockDevice backed by a single host file.
// OpenFileDevice blanks the file each time it is called, so an image
// does not carry its contents from one nvmctl run to the next.
type FileDevice struct {
	geom Geometry
	file *os.File
}

var _ littlefs.BlockDevice = (*FileDevice)(nil)

// OpenFileDevice creates (or truncates) path and fills it with
// geom.BlockCount blank blocks.
func OpenFileDevice(path string, geom Geometry) (*FileDevice, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("blockdevice: create %s: %w", path, err)
	}
	blank := make([]byte, geom.BlockSize)
	for i := range blank {
		blank[i] = 0xFF
	}
	for i := uint32(0); i < geom.BlockCount; i++ {
		if _, err := file.Write(blank); err != nil {
			file.Close()
			return nil, fmt.Errorf("blockdevice: initialize block %d: %w", i, err)
		}
	}
	return &FileDevice{geom: geom, file: file}, nil
}

func (bd *FileDevice) ReadBlock(block, offset uint32, buf []byte) error {
	if Debug {
		fmt.Printf("blockdevice: file ReadBlock(%d, %d, %d)\n", block, offset, len(buf))
	}
	_, err := bd.file.ReadAt(buf, int64(bd.geom.BlockSize*block+offset))
	return err
}

func (bd *FileDevice) ProgramBlock(block, offset uint32, buf []byte) error {
	if Debug {
		fmt.Printf("blockdevice: file ProgramBlock(%d, %d, %d)\n", block, offset, len(buf))
	}
	_, err := bd.file.WriteAt(buf, int64(bd.geom.BlockSize*block+offset))
	return err
}

func (bd *FileDevice) EraseBlock(block uint32) error {
	if Debug {
		fmt.Printf("blockdevice: file EraseBlock(%d)\n", block)
	}
	blank := make([]byte, bd.geom.BlockSize)
	for i := range blank {
		blank[i] = 0xFF
	}
	_, err := bd.file.WriteAt(blank, int64(bd.geom.BlockSize*block))
	return err
}

func (bd *FileDevice) Sync() error { return bd.file.Sync() }

// Close releases the underlying host file.
func (bd *FileDevice) Close() error { return bd.file.Close() }
