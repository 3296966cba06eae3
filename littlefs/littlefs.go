// Package littlefs binds the external log-structured, wear-leveled
// littlefs library into Go. It is a contract, not an implementation:
// callers get COW journaling and wear leveling from the vendored C
// library behind this file, and this package only exposes the surface
// needed to drive it from a Go BlockDevice.
package littlefs

// #include <string.h>
// #include <stdlib.h>
// #include "./go_lfs.h"
import "C"

import (
	"errors"
	"io"
	"os"
	"time"
	"unsafe"

	gopointer "github.com/mattn/go-pointer"
)

const (
	Version = C.LFS_VERSION

	FileTypeReg FileType = C.LFS_TYPE_REG
	FileTypeDir FileType = C.LFS_TYPE_DIR

	O_RDONLY OpenFlag = C.LFS_O_RDONLY // Open a file as read only
	O_WRONLY OpenFlag = C.LFS_O_WRONLY // Open a file as write only
	O_RDWR   OpenFlag = C.LFS_O_RDWR   // Open a file as read and write
	O_CREAT  OpenFlag = C.LFS_O_CREAT  // Create a file if it does not exist
	O_EXCL   OpenFlag = C.LFS_O_EXCL   // Fail if a file already exists
	O_TRUNC  OpenFlag = C.LFS_O_TRUNC  // Truncate the existing file to zero size
	O_APPEND OpenFlag = C.LFS_O_APPEND // Move to end of file on every write

	ErrOK                 = C.LFS_ERR_OK          // No error
	ErrIO           Error = C.LFS_ERR_IO          // Error during device operation
	ErrCorrupt      Error = C.LFS_ERR_CORRUPT     // Corrupted
	ErrNoEntry      Error = C.LFS_ERR_NOENT       // No directory entry
	ErrEntryExists  Error = C.LFS_ERR_EXIST       // Entry already exists
	ErrNotDir       Error = C.LFS_ERR_NOTDIR      // Entry is not a dir
	ErrIsDir        Error = C.LFS_ERR_ISDIR       // Entry is a dir
	ErrDirNotEmpty  Error = C.LFS_ERR_NOTEMPTY    // Dir is not empty
	ErrBadFileNum   Error = C.LFS_ERR_BADF        // Bad file number
	ErrFileTooLarge Error = C.LFS_ERR_FBIG        // File too large
	ErrInvalidParam Error = C.LFS_ERR_INVAL       // Invalid parameter
	ErrNoSpace      Error = C.LFS_ERR_NOSPC       // No space left on device
	ErrNoMemory     Error = C.LFS_ERR_NOMEM       // No more memory available
	ErrNoAttr       Error = C.LFS_ERR_NOATTR      // No data/attr available
	ErrNameTooLong  Error = C.LFS_ERR_NAMETOOLONG // File name too long
)

// OpenFlag is a bit-mask over the LFS_O_* open flags.
type OpenFlag int

// FileType distinguishes regular files from directories.
type FileType uint

// Error mirrors the negative return codes littlefs uses in place of errno.
type Error int

func (err Error) Error() string {
	switch err {
	case ErrIO:
		return "littlefs: error during device operation"
	case ErrCorrupt:
		return "littlefs: corrupted"
	case ErrNoEntry:
		return "littlefs: no directory entry"
	case ErrEntryExists:
		return "littlefs: entry already exists"
	case ErrNotDir:
		return "littlefs: entry is not a dir"
	case ErrIsDir:
		return "littlefs: entry is a dir"
	case ErrDirNotEmpty:
		return "littlefs: dir is not empty"
	case ErrBadFileNum:
		return "littlefs: bad file number"
	case ErrFileTooLarge:
		return "littlefs: file too large"
	case ErrInvalidParam:
		return "littlefs: invalid parameter"
	case ErrNoSpace:
		return "littlefs: no space left on device"
	case ErrNoMemory:
		return "littlefs: no more memory available"
	case ErrNoAttr:
		return "littlefs: no data/attr available"
	case ErrNameTooLong:
		return "littlefs: file name too long"
	default:
		return "littlefs: unknown error"
	}
}

// Config carries the block-device geometry littlefs needs to lay out
// its metadata pairs, lookahead buffer and per-file caches.
type Config struct {
	ReadSize      uint32
	ProgSize      uint32
	BlockSize     uint32
	BlockCount    uint32
	CacheSize     uint32
	LookaheadSize uint32
	BlockCycles   int32
}

// LFS is a mounted (or mountable) littlefs instance bound to a BlockDevice.
type LFS struct {
	ptr unsafe.Pointer
	lfs *C.struct_lfs
	cfg *C.struct_lfs_config
}

// Info describes a directory entry, satisfying os.FileInfo for callers
// that want to treat the store like a conventional filesystem.
type Info struct {
	fileType FileType
	size     uint32
	name     string
}

var _ os.FileInfo = (*Info)(nil)

func (info *Info) Name() string { return info.name }

func (info *Info) Size() int64 { return int64(info.size) }

func (info *Info) IsDir() bool { return info.fileType == FileTypeDir }

func (info *Info) Sys() interface{} { return nil }

func (info *Info) Mode() os.FileMode {
	v := os.FileMode(0o777)
	if info.IsDir() {
		v |= os.ModeDir
	}
	return v
}

func (info *Info) ModTime() time.Time { return time.Time{} }

// New allocates a littlefs instance over blockdev without mounting it.
func New(config Config, blockdev BlockDevice) *LFS {
	l := &LFS{
		lfs: C.go_lfs_new_lfs(),
		cfg: C.go_lfs_new_lfs_config(),
	}
	*l.cfg = C.struct_lfs_config{
		context:        gopointer.Save(blockdev),
		read_size:      C.lfs_size_t(config.ReadSize),
		prog_size:      C.lfs_size_t(config.ProgSize),
		block_size:     C.lfs_size_t(config.BlockSize),
		block_count:    C.lfs_size_t(config.BlockCount),
		cache_size:     C.lfs_size_t(config.CacheSize),
		lookahead_size: C.lfs_size_t(config.LookaheadSize),
		block_cycles:   C.int32_t(config.BlockCycles),
	}
	C.go_lfs_set_callbacks(l.cfg)
	l.ptr = gopointer.Save(l) // keep alive until the caller is done with it
	return l
}

func (l *LFS) Mount() error {
	return errval(C.lfs_mount(l.lfs, l.cfg))
}

func (l *LFS) Format() error {
	return errval(C.lfs_format(l.lfs, l.cfg))
}

func (l *LFS) Unmount() error {
	return errval(C.lfs_unmount(l.lfs))
}

func (l *LFS) Remove(path string) error {
	cs := cstring(path)
	defer C.free(unsafe.Pointer(cs))
	return errval(C.lfs_remove(l.lfs, cs))
}

func (l *LFS) Rename(oldPath, newPath string) error {
	cs1, cs2 := cstring(oldPath), cstring(newPath)
	defer C.free(unsafe.Pointer(cs1))
	defer C.free(unsafe.Pointer(cs2))
	return errval(C.lfs_rename(l.lfs, cs1, cs2))
}

func (l *LFS) Stat(path string) (*Info, error) {
	cs := cstring(path)
	defer C.free(unsafe.Pointer(cs))
	info := C.struct_lfs_info{}
	if err := errval(C.lfs_stat(l.lfs, cs, &info)); err != nil {
		return nil, err
	}
	return &Info{
		fileType: FileType(info._type),
		size:     uint32(info.size),
		name:     gostring(&info.name[0]),
	}, nil
}

func (l *LFS) Mkdir(path string) error {
	cs := cstring(path)
	defer C.free(unsafe.Pointer(cs))
	return errval(C.lfs_mkdir(l.lfs, cs))
}

func (l *LFS) Open(path string) (*File, error) {
	return l.OpenFile(path, O_RDONLY)
}

func (l *LFS) OpenFile(path string, flags OpenFlag) (*File, error) {
	cs := cstring(path)
	defer C.free(unsafe.Pointer(cs))
	file := &File{lfs: l, name: path}

	var fileType FileType
	info := C.struct_lfs_info{}
	if err := errval(C.lfs_stat(l.lfs, cs, &info)); err == nil {
		fileType = FileType(info._type)
	}

	var errno C.int
	if fileType == FileTypeDir {
		file.typ = FileTypeDir
		file.hndl = unsafe.Pointer(C.go_lfs_new_lfs_dir())
		errno = C.lfs_dir_open(l.lfs, file.dirptr(), cs)
	} else {
		file.typ = FileTypeReg
		file.hndl = unsafe.Pointer(C.go_lfs_new_lfs_file())
		errno = C.lfs_file_open(l.lfs, file.fileptr(), cs, C.int(flags))
	}

	if err := errval(errno); err != nil {
		if file.hndl != nil {
			C.free(file.hndl)
			file.hndl = nil
		}
		return nil, err
	}

	return file, nil
}

// Size returns the number of allocated blocks. Best effort: if files
// share COW structures, the result may overstate real usage.
func (l *LFS) Size() (int, error) {
	errno := C.int(C.lfs_fs_size(l.lfs))
	if errno < 0 {
		return 0, errval(errno)
	}
	return int(errno), nil
}

// File is an open handle to either a regular file or a directory.
type File struct {
	lfs  *LFS
	typ  FileType
	hndl unsafe.Pointer
	name string
}

func (f *File) dirptr() *C.struct_lfs_dir { return (*C.struct_lfs_dir)(f.hndl) }

func (f *File) fileptr() *C.struct_lfs_file { return (*C.struct_lfs_file)(f.hndl) }

// Name returns the path the handle was opened with.
func (f *File) Name() string { return f.name }

// Close releases the handle; pending writes are flushed to storage.
func (f *File) Close() error {
	if f.hndl != nil {
		defer func() {
			C.free(f.hndl)
			f.hndl = nil
		}()
		switch f.typ {
		case FileTypeReg:
			return errval(C.lfs_file_close(f.lfs.lfs, f.fileptr()))
		case FileTypeDir:
			return errval(C.lfs_dir_close(f.lfs.lfs, f.dirptr()))
		default:
			panic("littlefs: unknown handle type")
		}
	}
	return nil
}

func (f *File) Read(buf []byte) (int, error) {
	if f.IsDir() {
		return 0, ErrIsDir
	}
	if len(buf) == 0 {
		return 0, nil
	}
	bufptr := unsafe.Pointer(&buf[0])
	buflen := C.lfs_size_t(len(buf))
	errno := C.int(C.lfs_file_read(f.lfs.lfs, f.fileptr(), bufptr, buflen))
	switch {
	case errno > 0:
		return int(errno), nil
	case errno == 0:
		return 0, io.EOF
	default:
		return 0, errval(errno)
	}
}

// Seek changes the position of the file.
func (f *File) Seek(offset int64, whence int) (int64, error) {
	errno := C.int(C.lfs_file_seek(f.lfs.lfs, f.fileptr(), C.lfs_soff_t(offset), C.int(whence)))
	if errno < 0 {
		return -1, errval(errno)
	}
	return int64(errno), nil
}

// Tell returns the current position of the file.
func (f *File) Tell() (int64, error) {
	errno := C.int(C.lfs_file_tell(f.lfs.lfs, f.fileptr()))
	if errno < 0 {
		return -1, errval(errno)
	}
	return int64(errno), nil
}

// Rewind moves the position of the file back to the beginning.
func (f *File) Rewind() error {
	return errval(C.lfs_file_rewind(f.lfs.lfs, f.fileptr()))
}

// Size returns the size of the file.
func (f *File) Size() (int64, error) {
	errno := C.int(C.lfs_file_size(f.lfs.lfs, f.fileptr()))
	if errno < 0 {
		return -1, errval(errno)
	}
	return int64(errno), nil
}

// Sync flushes any pending writes out to storage.
func (f *File) Sync() error {
	return errval(C.lfs_file_sync(f.lfs.lfs, f.fileptr()))
}

// Truncate resizes the file to size bytes.
func (f *File) Truncate(size uint32) error {
	return errval(C.lfs_file_truncate(f.lfs.lfs, f.fileptr(), C.lfs_off_t(size)))
}

func (f *File) Write(buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}
	bufptr := unsafe.Pointer(&buf[0])
	buflen := C.lfs_size_t(len(buf))
	errno := C.lfs_file_write(f.lfs.lfs, f.fileptr(), bufptr, buflen)
	if errno > 0 {
		return int(errno), nil
	}
	return 0, errval(C.int(errno))
}

func (f *File) IsDir() bool { return f.typ == FileTypeDir }

// Readdir lists the entries of a directory handle. n > 0 (partial
// listing) is not supported; pass n <= 0 to read every entry.
func (f *File) Readdir(n int) ([]os.FileInfo, error) {
	if n > 0 {
		return nil, errors.New("littlefs: partial Readdir not supported")
	}
	if !f.IsDir() {
		return nil, ErrNotDir
	}
	var infos []os.FileInfo
	for {
		var info C.struct_lfs_info
		i := C.lfs_dir_read(f.lfs.lfs, f.dirptr(), &info)
		if i == 0 {
			return infos, nil
		}
		if i < 0 {
			return infos, errval(C.int(i))
		}
		name := gostring(&info.name[0])
		if name == "." || name == ".." {
			continue
		}
		infos = append(infos, &Info{
			fileType: FileType(info._type),
			size:     uint32(info.size),
			name:     name,
		})
	}
}

func cstring(s string) *C.char {
	ptr := C.malloc(C.size_t(len(s) + 1))
	buf := (*[1 << 28]byte)(ptr)[: len(s)+1 : len(s)+1]
	copy(buf, s)
	buf[len(s)] = 0
	return (*C.char)(ptr)
}

func gostring(s *C.char) string {
	slen := int(C.strlen(s))
	sbuf := make([]byte, slen)
	copy(sbuf, (*[1 << 28]byte)(unsafe.Pointer(s))[:slen:slen])
	return string(sbuf)
}

func errval(errno C.int) error {
	if errno < ErrOK {
		return Error(errno)
	}
	return nil
}

// BlockDevice is the raw callback contract littlefs drives during
// mount/format/read/write. Implementations translate block/offset
// pairs into whatever medium backs the store.
type BlockDevice interface {
	ReadBlock(block, offset uint32, buf []byte) error
	ProgramBlock(block, offset uint32, buf []byte) error
	EraseBlock(block uint32) error
	Sync() error
}
