// Package vfs layers a POSIX-like, reference-counted, thread-safe
// file/directory API over littlefs, matching the mount/FD/path-safety
// contract the NVM overlay stores are built on.
package vfs

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"sync"

	"github.com/google/uuid"
	"github.com/tzarc/qmk-modules/littlefs"
)

// Debug gates verbose per-call logging, mirroring the fs_dprintf calls
// threaded through every public entry point in the original driver.
var Debug = false

func debugf(format string, args ...interface{}) {
	if Debug {
		log.Printf("vfs: "+format, args...)
	}
}

const (
	// FirstValidFD skips 0-3 so INVALID_FD (0) stays a safe sentinel
	// and room is left for future stdio-like conventions.
	FirstValidFD FD = 4
	// InvalidFD is returned by every operation that fails to produce a
	// live file descriptor.
	InvalidFD FD = 0

	// MaxDirDepth bounds directory paths; file paths get one more
	// segment of room via MaxFileDepth.
	MaxDirDepth  = 3
	MaxFileDepth = MaxDirDepth + 1

	// DefaultMaxOpenFDs is the handle-table size New uses when it is
	// given a maxOpenFDs of zero or less.
	DefaultMaxOpenFDs = 6
)

// FD is a 16-bit file/directory descriptor, matching fs_fd_t.
type FD uint16

// Whence selects the origin for Seek, matching fs_whence_t.
type Whence int

const (
	SeekSet Whence = iota
	SeekCur
	SeekEnd
)

// Mode is a bit-mask over the open-mode flags, matching fs_mode_t.
type Mode int

const (
	Read Mode = 1 << iota
	Write
	Truncate
)

// DirEntry mirrors fs_dirent_t: a directory entry valid until the next
// Readdir call on the same descriptor.
type DirEntry struct {
	Name  string
	Size  int64
	IsDir bool
}

var (
	// ErrInvalid covers out-of-range arguments, unsafe paths, depth
	// violations and unknown file descriptors.
	ErrInvalid = errors.New("vfs: invalid argument")
	// ErrNotMounted is returned when an operation needs a mounted
	// filesystem and none is available.
	ErrNotMounted = errors.New("vfs: filesystem not mounted")
	// ErrFull is surfaced when the handle table has no free slot.
	ErrFull = errors.New("vfs: no free file descriptor")
)

type handleType int

const (
	handleEmpty handleType = iota
	handleDir
	handleFile
)

type handle struct {
	fd     FD
	typ    handleType
	file   *littlefs.File
	cursor []os.FileInfo
}

// Filesystem is a mount-refcounted, descriptor-tabled wrapper around a
// littlefs.LFS instance. A single mutex serializes every public
// operation, standing in for the C driver's ChibiOS mutex plus
// __attribute__((cleanup)) RAII idiom (here: defer).
type Filesystem struct {
	mu         sync.Mutex
	lfs        *littlefs.LFS
	mountCount int
	currentFD  FD
	handles    []handle
	sessionID  uuid.UUID
}

// New wraps lfs with mount refcounting and a maxOpenFDs-sized handle
// table. lfs must not yet be mounted.
func New(lfs *littlefs.LFS, maxOpenFDs int) *Filesystem {
	if maxOpenFDs <= 0 {
		maxOpenFDs = DefaultMaxOpenFDs
	}
	return &Filesystem{
		lfs:       lfs,
		currentFD: FirstValidFD - 1,
		handles:   make([]handle, maxOpenFDs),
		sessionID: uuid.New(),
	}
}

// ---- FD allocation -------------------------------------------------

func (fs *Filesystem) findEmptySlot() (int, bool) {
	for i := range fs.handles {
		if fs.handles[i].typ == handleEmpty {
			return i, true
		}
	}
	return 0, false
}

func (fs *Filesystem) fdInUse(fd FD) bool {
	for i := range fs.handles {
		if fs.handles[i].typ != handleEmpty && fs.handles[i].fd == fd {
			return true
		}
	}
	return false
}

// allocateFD ports allocate_fd: a rotating counter starting at
// FirstValidFD, wrapping from UINT16_MAX back to FirstValidFD, and
// skipping any value already present in the handle table.
func (fs *Filesystem) allocateFD() (FD, bool) {
	first := fs.currentFD
	for {
		if fs.currentFD == ^FD(0) {
			fs.currentFD = FirstValidFD
		} else {
			fs.currentFD++
		}
		if !fs.fdInUse(fs.currentFD) {
			return fs.currentFD, true
		}
		if fs.currentFD == first {
			return InvalidFD, false
		}
	}
}

func (fs *Filesystem) findHandle(fd FD, typ handleType) (*handle, bool) {
	for i := range fs.handles {
		if fs.handles[i].fd == fd && fs.handles[i].typ == typ {
			return &fs.handles[i], true
		}
	}
	return nil, false
}

// ---- mount/unmount ---------------------------------------------------

// Mount increments the reference count, mounting (and formatting on
// first-mount failure) if this is the first live reference. A failure
// to mount after formatting is unrecoverable for this instance.
func (fs *Filesystem) Mount() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.mountLocked()
}

func (fs *Filesystem) mountLocked() error {
	if fs.mountCount == 0 {
		if err := fs.lfs.Mount(); err != nil {
			debugf("mount failed (%v), formatting", err)
			if err := fs.lfs.Format(); err != nil {
				return fmt.Errorf("vfs: format after failed mount: %w", err)
			}
			if err := fs.lfs.Mount(); err != nil {
				return fmt.Errorf("vfs: mount after format: %w", err)
			}
		}
	}
	fs.mountCount++
	return nil
}

// Unmount decrements the reference count, unmounting only at zero.
func (fs *Filesystem) Unmount() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.unmountLocked()
}

func (fs *Filesystem) unmountLocked() error {
	if fs.mountCount == 0 {
		return nil
	}
	fs.mountCount--
	if fs.mountCount == 0 {
		return fs.lfs.Unmount()
	}
	return nil
}

// IsMounted reports whether the mount reference count is above zero.
func (fs *Filesystem) IsMounted() bool {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.mountCount > 0
}

// Format unmounts any existing reference and reformats the underlying
// device, mounting a single reference afterward.
func (fs *Filesystem) Format() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	for fs.mountCount > 0 {
		if err := fs.unmountLocked(); err != nil {
			return err
		}
	}
	if err := fs.lfs.Format(); err != nil {
		return fmt.Errorf("vfs: format: %w", err)
	}
	return fs.mountLocked()
}

// ---- path-validated public API ---------------------------------------

func validate(path string, maxDepth int) error {
	if !isPathSafe(path) || !isPathDepthValid(path, maxDepth) {
		return fmt.Errorf("%w: unsafe or too-deep path %q", ErrInvalid, path)
	}
	return nil
}

// Mkdir creates a directory, tolerating one that already exists.
func (fs *Filesystem) Mkdir(path string) error {
	if err := validate(path, MaxDirDepth); err != nil {
		return err
	}
	debugf("mkdir %s", path)
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if err := fs.mountLocked(); err != nil {
		return err
	}
	defer fs.unmountLocked()

	err := fs.lfs.Mkdir(path)
	if err == nil || errors.Is(err, littlefs.ErrEntryExists) {
		return nil
	}
	return fmt.Errorf("vfs: mkdir %s: %w", path, err)
}

// Rmdir removes a directory. When recursive is set it walks and
// deletes contents first, bounded by MaxFileDepth to guard against
// runaway recursion on a corrupted tree.
func (fs *Filesystem) Rmdir(path string, recursive bool) error {
	if err := validate(path, MaxDirDepth); err != nil {
		return err
	}
	debugf("rmdir %s recursive=%v", path, recursive)
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.rmdirLocked(path, recursive, 0)
}

func (fs *Filesystem) rmdirLocked(path string, recursive bool, depth int) error {
	if depth > MaxFileDepth {
		return fmt.Errorf("%w: rmdir recursion too deep", ErrInvalid)
	}
	if err := fs.mountLocked(); err != nil {
		return err
	}
	defer fs.unmountLocked()

	if recursive {
		if _, err := fs.lfs.Stat(path); err != nil {
			return nil // already gone counts as success, as in deleteLocked
		}
		dir, err := fs.lfs.Open(path)
		if err != nil {
			return fmt.Errorf("vfs: rmdir %s: %w", path, err)
		}
		infos, err := dir.Readdir(0)
		closeErr := dir.Close()
		if err != nil {
			return fmt.Errorf("vfs: rmdir %s: %w", path, err)
		}
		if closeErr != nil {
			return fmt.Errorf("vfs: rmdir %s: %w", path, closeErr)
		}
		for _, info := range infos {
			childPath := path + "/" + info.Name()
			if info.IsDir() {
				if err := fs.rmdirLocked(childPath, true, depth+1); err != nil {
					return err
				}
			} else {
				if err := fs.deleteLocked(childPath); err != nil {
					return err
				}
			}
		}
	}
	return fs.deleteLocked(path)
}

// Exists reports whether path names a file or directory.
func (fs *Filesystem) Exists(path string) bool {
	if err := validate(path, MaxFileDepth); err != nil {
		return false
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if err := fs.mountLocked(); err != nil {
		return false
	}
	defer fs.unmountLocked()
	_, err := fs.lfs.Stat(path)
	return err == nil
}

// Delete removes a file (or empty directory), tolerating one that is
// already gone.
func (fs *Filesystem) Delete(path string) error {
	if err := validate(path, MaxFileDepth); err != nil {
		return err
	}
	debugf("delete %s", path)
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if err := fs.mountLocked(); err != nil {
		return err
	}
	defer fs.unmountLocked()
	return fs.deleteLocked(path)
}

func (fs *Filesystem) deleteLocked(path string) error {
	if _, err := fs.lfs.Stat(path); err != nil {
		return nil // already gone counts as success
	}
	if err := fs.lfs.Remove(path); err != nil && !errors.Is(err, littlefs.ErrNoEntry) {
		return fmt.Errorf("vfs: delete %s: %w", path, err)
	}
	return nil
}

// Opendir opens path for directory reading. The filesystem stays
// mounted for the lifetime of the returned descriptor; Closedir
// rebalances the mount count.
func (fs *Filesystem) Opendir(path string) (FD, error) {
	if err := validate(path, MaxDirDepth); err != nil {
		return InvalidFD, err
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()

	slot, ok := fs.findEmptySlot()
	if !ok {
		return InvalidFD, ErrFull
	}
	if err := fs.mountLocked(); err != nil {
		return InvalidFD, err
	}
	dir, err := fs.lfs.Open(path)
	if err != nil {
		fs.unmountLocked()
		return InvalidFD, fmt.Errorf("vfs: opendir %s: %w", path, err)
	}
	fd, ok := fs.allocateFD()
	if !ok {
		dir.Close()
		fs.unmountLocked()
		return InvalidFD, ErrFull
	}
	fs.handles[slot] = handle{fd: fd, typ: handleDir, file: dir}
	debugf("opendir %s fd=%d", path, fd)
	// Intentionally skip the paired unmount: the handle keeps the
	// filesystem mounted until Closedir.
	return fd, nil
}

// Readdir returns the next entry for fd, or (nil, false) at the end of
// the directory or on any error.
func (fs *Filesystem) Readdir(fd FD) (*DirEntry, bool) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	h, ok := fs.findHandle(fd, handleDir)
	if !ok || fs.mountCount == 0 {
		return nil, false
	}
	// littlefs.File.Readdir drains the whole directory at once; adapt
	// it to the one-entry-at-a-time contract with a per-handle cursor.
	return fs.readdirCursor(h)
}

func (fs *Filesystem) readdirCursor(h *handle) (*DirEntry, bool) {
	if h.cursor == nil {
		infos, err := h.file.Readdir(0)
		if err != nil {
			return nil, false
		}
		h.cursor = infos
	}
	if len(h.cursor) == 0 {
		return nil, false
	}
	next := h.cursor[0]
	h.cursor = h.cursor[1:]
	return &DirEntry{Name: next.Name(), Size: next.Size(), IsDir: next.IsDir()}, true
}

// Closedir releases a directory handle and rebalances the mount count.
func (fs *Filesystem) Closedir(fd FD) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	h, ok := fs.findHandle(fd, handleDir)
	if !ok {
		return fmt.Errorf("%w: fd %d not a directory", ErrInvalid, fd)
	}
	err := h.file.Close()
	fs.releaseHandle(fd)
	fs.unmountLocked()
	debugf("closedir %d", fd)
	if err != nil {
		return fmt.Errorf("vfs: closedir %d: %w", fd, err)
	}
	return nil
}

func (fs *Filesystem) releaseHandle(fd FD) {
	for i := range fs.handles {
		if fs.handles[i].fd == fd {
			fs.handles[i] = handle{}
			return
		}
	}
}

// Open opens filename under mode, allocating a descriptor that keeps
// the filesystem mounted until Close.
func (fs *Filesystem) Open(filename string, mode Mode) (FD, error) {
	if err := validate(filename, MaxFileDepth); err != nil {
		return InvalidFD, err
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()

	slot, ok := fs.findEmptySlot()
	if !ok {
		return InvalidFD, ErrFull
	}
	if err := fs.mountLocked(); err != nil {
		return InvalidFD, err
	}

	var flags littlefs.OpenFlag
	switch {
	case mode&Read != 0 && mode&Write != 0:
		flags = littlefs.O_RDWR | littlefs.O_CREAT
	case mode&Read != 0:
		flags = littlefs.O_RDONLY
	case mode&Write != 0:
		flags = littlefs.O_WRONLY | littlefs.O_CREAT
	}
	if mode&Truncate != 0 {
		flags |= littlefs.O_TRUNC
	}

	file, err := fs.lfs.OpenFile(filename, flags)
	if err != nil {
		fs.unmountLocked()
		return InvalidFD, fmt.Errorf("vfs: open %s: %w", filename, err)
	}
	fd, ok := fs.allocateFD()
	if !ok {
		file.Close()
		fs.unmountLocked()
		return InvalidFD, ErrFull
	}
	fs.handles[slot] = handle{fd: fd, typ: handleFile, file: file}
	debugf("open %s mode=%d fd=%d", filename, mode, fd)
	return fd, nil
}

// Seek repositions fd and returns the new offset.
func (fs *Filesystem) Seek(fd FD, offset int64, whence Whence) (int64, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	h, ok := fs.findHandle(fd, handleFile)
	if !ok || fs.mountCount == 0 {
		return -1, fmt.Errorf("%w: fd %d not open", ErrInvalid, fd)
	}
	pos, err := h.file.Seek(offset, int(whence))
	if err != nil {
		return -1, fmt.Errorf("vfs: seek fd %d: %w", fd, err)
	}
	return pos, nil
}

// Tell returns the current offset of fd.
func (fs *Filesystem) Tell(fd FD) (int64, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	h, ok := fs.findHandle(fd, handleFile)
	if !ok || fs.mountCount == 0 {
		return -1, fmt.Errorf("%w: fd %d not open", ErrInvalid, fd)
	}
	pos, err := h.file.Tell()
	if err != nil {
		return -1, fmt.Errorf("vfs: tell fd %d: %w", fd, err)
	}
	return pos, nil
}

// Read reads into buf from fd's current position.
func (fs *Filesystem) Read(fd FD, buf []byte) (int, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	h, ok := fs.findHandle(fd, handleFile)
	if !ok || fs.mountCount == 0 {
		return -1, fmt.Errorf("%w: fd %d not open", ErrInvalid, fd)
	}
	n, err := h.file.Read(buf)
	if err != nil && err != io.EOF {
		return -1, fmt.Errorf("vfs: read fd %d: %w", fd, err)
	}
	return n, err
}

// Write writes buf at fd's current position.
func (fs *Filesystem) Write(fd FD, buf []byte) (int, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	h, ok := fs.findHandle(fd, handleFile)
	if !ok || fs.mountCount == 0 {
		return -1, fmt.Errorf("%w: fd %d not open", ErrInvalid, fd)
	}
	n, err := h.file.Write(buf)
	if err != nil {
		return -1, fmt.Errorf("vfs: write fd %d: %w", fd, err)
	}
	return n, nil
}

// IsEOF reports whether fd is positioned at end-of-file, following
// fs_is_eof_nolock: tell, seek to end, compare, seek back. Any
// underlying failure is treated as EOF.
func (fs *Filesystem) IsEOF(fd FD) bool {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	h, ok := fs.findHandle(fd, handleFile)
	if !ok || fs.mountCount == 0 {
		return true
	}
	orig, err := h.file.Tell()
	if err != nil {
		return true
	}
	end, err := h.file.Seek(0, int(SeekEnd))
	if err != nil {
		return true
	}
	atEOF := orig == end
	if _, err := h.file.Seek(orig, int(SeekSet)); err != nil {
		return true
	}
	return atEOF
}

// Close releases a file handle and rebalances the mount count.
func (fs *Filesystem) Close(fd FD) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	h, ok := fs.findHandle(fd, handleFile)
	if !ok {
		return fmt.Errorf("%w: fd %d not open", ErrInvalid, fd)
	}
	err := h.file.Close()
	fs.releaseHandle(fd)
	fs.unmountLocked()
	debugf("close %d", fd)
	if err != nil {
		return fmt.Errorf("vfs: close %d: %w", fd, err)
	}
	return nil
}

// Info reports aggregate filesystem diagnostics, the Go analogue of
// fs_dump_info: block usage plus session metadata not present in the
// original firmware's console-only dump.
type Info struct {
	AllocatedBlocks int
	MountCount      int
	OpenHandles     int
	SessionID       uuid.UUID
}

// DumpInfo reports current usage and session diagnostics.
func (fs *Filesystem) DumpInfo() (Info, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if err := fs.mountLocked(); err != nil {
		return Info{}, err
	}
	defer fs.unmountLocked()

	blocks, err := fs.lfs.Size()
	if err != nil {
		return Info{}, fmt.Errorf("vfs: dump info: %w", err)
	}
	open := 0
	for i := range fs.handles {
		if fs.handles[i].typ != handleEmpty {
			open++
		}
	}
	return Info{
		AllocatedBlocks: blocks,
		MountCount:      fs.mountCount,
		OpenHandles:     open,
		SessionID:       fs.sessionID,
	}, nil
}
