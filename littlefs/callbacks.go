package littlefs

// #include "./go_lfs.h"
import "C"

import (
	"unsafe"

	gopointer "github.com/mattn/go-pointer"
)

//export go_lfs_block_device_read
func go_lfs_block_device_read(ctx unsafe.Pointer, block, offset uint32, buf unsafe.Pointer, size int) int {
	buffer := (*[1 << 28]byte)(buf)[:size:size]
	if err := restore(ctx).ReadBlock(block, offset, buffer); err != nil {
		return int(ErrIO)
	}
	return ErrOK
}

//export go_lfs_block_device_prog
func go_lfs_block_device_prog(ctx unsafe.Pointer, block, offset uint32, buf unsafe.Pointer, size int) int {
	buffer := (*[1 << 28]byte)(buf)[:size:size]
	if err := restore(ctx).ProgramBlock(block, offset, buffer); err != nil {
		return int(ErrIO)
	}
	return ErrOK
}

//export go_lfs_block_device_erase
func go_lfs_block_device_erase(ctx unsafe.Pointer, block uint32) int {
	if err := restore(ctx).EraseBlock(block); err != nil {
		return int(ErrIO)
	}
	return ErrOK
}

//export go_lfs_block_device_sync
func go_lfs_block_device_sync(ctx unsafe.Pointer) int {
	if err := restore(ctx).Sync(); err != nil {
		return int(ErrIO)
	}
	return ErrOK
}

func restore(ptr unsafe.Pointer) BlockDevice {
	return gopointer.Restore(ptr).(BlockDevice)
}
