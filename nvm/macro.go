package nvm

import (
	"bytes"
	"fmt"

	"github.com/tzarc/qmk-modules/vfs"
)

// MacroBufferSize is the fixed capacity of the macro buffer, matching
// DYNAMIC_KEYMAP_MACRO_COUNT's backing storage.
const MacroBufferSize = 1024

// MacroStore is a flat NUL-delimited buffer of macro strings. Reads
// and writes operate directly on the in-RAM buffer; Save/Load move it
// to and from one file per macro under macros/.
type MacroStore struct {
	fs        *vfs.Filesystem
	buf       [MacroBufferSize]byte
	dirty     bool
	dirPrefix string
}

func NewMacroStore(fs *vfs.Filesystem) *MacroStore {
	return &MacroStore{fs: fs, dirPrefix: "macros"}
}

// ReadBuffer returns a copy of size bytes starting at offset, or nil
// if the range falls outside the buffer.
func (s *MacroStore) ReadBuffer(offset, size int) []byte {
	if offset < 0 || size < 0 || offset+size > MacroBufferSize {
		return nil
	}
	out := make([]byte, size)
	copy(out, s.buf[offset:offset+size])
	return out
}

// UpdateBuffer overwrites len(data) bytes starting at offset, marking the
// store dirty if anything actually changed.
func (s *MacroStore) UpdateBuffer(offset int, data []byte) {
	if offset < 0 || offset+len(data) > MacroBufferSize {
		return
	}
	if !bytes.Equal(s.buf[offset:offset+len(data)], data) {
		copy(s.buf[offset:], data)
		s.dirty = true
	}
}

func (s *MacroStore) filename(n int) string {
	return fmt.Sprintf("%s/%02d", s.dirPrefix, n)
}

// Save splits the buffer on NUL boundaries into macros/NN files (no
// terminator persisted) and clears the dirty flag. An empty run
// between two NULs still consumes an index, keeping macro numbering
// stable across saves.
func (s *MacroStore) Save() error {
	if !s.dirty {
		return nil
	}
	if err := s.fs.Rmdir(s.dirPrefix, true); err != nil {
		return err
	}
	if err := s.fs.Mkdir(s.dirPrefix); err != nil {
		return err
	}

	index := 0
	start := 0
	for i := 0; i < MacroBufferSize; i++ {
		if s.buf[i] != 0 {
			continue
		}
		run := s.buf[start:i]
		if len(run) > 0 {
			if err := updateBlock(s.fs, s.filename(index), run); err != nil {
				return err
			}
		}
		index++
		start = i + 1
	}
	s.dirty = false
	return nil
}

// Load zeroes the buffer, then concatenates macros/00, macros/01, ...
// back in, each followed by a NUL, stopping at the first missing file.
func (s *MacroStore) Load() error {
	for i := range s.buf {
		s.buf[i] = 0
	}
	s.dirty = false

	pos := 0
	for n := 0; ; n++ {
		name := s.filename(n)
		if !s.fs.Exists(name) {
			return nil
		}
		remaining := MacroBufferSize - pos
		if remaining <= 0 {
			return nil
		}
		fd, err := s.fs.Open(name, vfs.Read)
		if err != nil {
			return err
		}
		count, err := s.fs.Read(fd, s.buf[pos:min(pos+remaining, MacroBufferSize)])
		closeErr := s.fs.Close(fd)
		if err != nil && count == 0 {
			return fmt.Errorf("nvm: macro %d: read: %w", n, err)
		}
		if closeErr != nil {
			return closeErr
		}
		pos += count + 1 // leave room for the NUL terminator already zeroed in place
		if pos > MacroBufferSize {
			pos = MacroBufferSize
		}
	}
}
