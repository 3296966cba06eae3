package nvm

import (
	"encoding/binary"
	"fmt"

	"github.com/tzarc/qmk-modules/vfs"
)

// RawDefault supplies the compile-time keycode for (layer, row, col),
// the baseline every "altered" bit is compared against.
type RawDefault func(layer, row, col int) uint16

// overrideEntrySize is the on-disk shape of one non-default keycode:
// row:u8 col:u8 keycode:u16, little endian, no padding.
const overrideEntrySize = 4

// KeymapStore is a per-layer RAM cache of keycodes with an
// altered/dirty tracking layer that decides, on save, whether a layer
// is cheaper to persist as a full grid or as a sparse override list.
type KeymapStore struct {
	fs *vfs.Filesystem

	layers, rows, cols int
	rawDefault         RawDefault
	dirPrefix          string

	cache      [][][]uint16 // [layer][row][col]
	altered    [][]bool     // [layer][row*cols+col]
	alteredCnt []int        // [layer]
	dirty      []bool       // [layer]
}

// NewKeymapStore builds a store for layers×rows×cols keycodes,
// persisted under layers/ as files named keyNN.
func NewKeymapStore(fs *vfs.Filesystem, layers, rows, cols int, rawDefault RawDefault) *KeymapStore {
	s := &KeymapStore{
		fs:         fs,
		layers:     layers,
		rows:       rows,
		cols:       cols,
		rawDefault: rawDefault,
		dirPrefix:  "layers",
		cache:      make([][][]uint16, layers),
		altered:    make([][]bool, layers),
		alteredCnt: make([]int, layers),
		dirty:      make([]bool, layers),
	}
	for l := 0; l < layers; l++ {
		s.cache[l] = make([][]uint16, rows)
		for r := 0; r < rows; r++ {
			s.cache[l][r] = make([]uint16, cols)
		}
		s.altered[l] = make([]bool, rows*cols)
	}
	return s
}

func (s *KeymapStore) inRange(layer, row, col int) bool {
	return layer >= 0 && layer < s.layers && row >= 0 && row < s.rows && col >= 0 && col < s.cols
}

// Read returns the cached keycode, or KC_NO (0) if out of range.
func (s *KeymapStore) Read(layer, row, col int) uint16 {
	if !s.inRange(layer, row, col) {
		return 0 // KC_NO
	}
	return s.cache[layer][row][col]
}

// Update writes the RAM cache unconditionally, recomputes the altered
// bit against the raw default, and marks the layer dirty. Out-of-range
// coordinates are silent no-ops, tolerating matrix-size drift between
// firmware builds sharing one filesystem image.
func (s *KeymapStore) Update(layer, row, col int, keycode uint16) {
	if !s.inRange(layer, row, col) {
		return
	}
	s.cache[layer][row][col] = keycode
	idx := row*s.cols + col
	wasAltered := s.altered[layer][idx]
	isAltered := keycode != s.rawDefault(layer, row, col)
	if isAltered != wasAltered {
		s.altered[layer][idx] = isAltered
		if isAltered {
			s.alteredCnt[layer]++
		} else {
			s.alteredCnt[layer]--
		}
	}
	s.dirty[layer] = true
}

// locate maps a byte offset into the packed little-endian keycode grid
// (every layer's rows*cols*2 bytes back to back) to the cell it falls
// in and which half of that cell's uint16 it addresses.
func (s *KeymapStore) locate(pos int) (layer, row, col, byteIdx int) {
	rowSize := s.cols * 2
	layerSize := s.rows * rowSize
	layer = pos / layerSize
	rem := pos % layerSize
	row = rem / rowSize
	rem2 := rem % rowSize
	col = rem2 / 2
	byteIdx = rem2 % 2
	return
}

// ReadBuffer copies length bytes starting at offset out of the packed
// keycode grid, VIA's bulk-transfer contract for the whole keymap.
func (s *KeymapStore) ReadBuffer(offset, length int) []byte {
	total := s.layers * s.rows * s.cols * 2
	if offset < 0 || length < 0 || offset+length > total {
		return nil
	}
	out := make([]byte, length)
	for i := range out {
		layer, row, col, byteIdx := s.locate(offset + i)
		keycode := s.cache[layer][row][col]
		if byteIdx == 0 {
			out[i] = byte(keycode)
		} else {
			out[i] = byte(keycode >> 8)
		}
	}
	return out
}

// UpdateBuffer overwrites the packed keycode grid starting at offset,
// routing each affected cell back through Update so the altered/dirty
// bookkeeping stays correct. A write landing on only one byte of a
// keycode is a read-modify-write against the current cached value.
func (s *KeymapStore) UpdateBuffer(offset int, data []byte) {
	total := s.layers * s.rows * s.cols * 2
	if offset < 0 || offset+len(data) > total {
		return
	}
	for i, b := range data {
		layer, row, col, byteIdx := s.locate(offset + i)
		keycode := s.cache[layer][row][col]
		if byteIdx == 0 {
			keycode = keycode&0xFF00 | uint16(b)
		} else {
			keycode = keycode&0x00FF | uint16(b)<<8
		}
		s.Update(layer, row, col, keycode)
	}
}

func (s *KeymapStore) filename(layer int) string {
	return fmt.Sprintf("%s/key%02d", s.dirPrefix, layer)
}

// Save persists every dirty layer, picking the cheaper of a full grid
// or a sparse override list, then clears the dirty mask. The altered
// bitmap itself is never cleared here: it tracks ground truth against
// the raw defaults, independent of what's been flushed to disk.
func (s *KeymapStore) Save() error {
	if err := s.fs.Mkdir(s.dirPrefix); err != nil {
		return err
	}
	for layer := 0; layer < s.layers; layer++ {
		if !s.dirty[layer] {
			continue
		}
		if err := s.saveLayer(layer); err != nil {
			return err
		}
		s.dirty[layer] = false
	}
	return nil
}

func (s *KeymapStore) saveLayer(layer int) error {
	name := s.filename(layer)
	count := s.alteredCnt[layer]
	if count == 0 {
		return s.fs.Delete(name)
	}

	fullSize := s.rows * s.cols * 2
	overrideSize := count * overrideEntrySize

	if fullSize <= overrideSize {
		buf := make([]byte, 1+fullSize)
		buf[0] = 0x00
		off := 1
		for r := 0; r < s.rows; r++ {
			for c := 0; c < s.cols; c++ {
				binary.LittleEndian.PutUint16(buf[off:], s.cache[layer][r][c])
				off += 2
			}
		}
		return updateBlock(s.fs, name, buf)
	}

	buf := make([]byte, 1+count*overrideEntrySize)
	buf[0] = 0x01
	off := 1
	for r := 0; r < s.rows; r++ {
		for c := 0; c < s.cols; c++ {
			if !s.altered[layer][r*s.cols+c] {
				continue
			}
			buf[off] = byte(r)
			buf[off+1] = byte(c)
			binary.LittleEndian.PutUint16(buf[off+2:], s.cache[layer][r][c])
			off += overrideEntrySize
		}
	}
	return updateBlock(s.fs, name, buf)
}

// Load resets every layer to its raw defaults, then overlays whatever
// is recorded on disk. Idempotent: running it twice yields identical
// state, since resetting-then-replaying never depends on prior state.
func (s *KeymapStore) Load() error {
	for layer := 0; layer < s.layers; layer++ {
		s.resetLayer(layer)
		if err := s.loadLayer(layer); err != nil {
			return err
		}
	}
	return nil
}

func (s *KeymapStore) resetLayer(layer int) {
	for r := 0; r < s.rows; r++ {
		for c := 0; c < s.cols; c++ {
			s.cache[layer][r][c] = s.rawDefault(layer, r, c)
		}
	}
	for i := range s.altered[layer] {
		s.altered[layer][i] = false
	}
	s.alteredCnt[layer] = 0
	s.dirty[layer] = false
}

func (s *KeymapStore) loadLayer(layer int) error {
	name := s.filename(layer)
	if !s.fs.Exists(name) {
		return nil
	}
	fd, err := s.fs.Open(name, vfs.Read)
	if err != nil {
		return err
	}
	defer s.fs.Close(fd)

	mode := make([]byte, 1)
	if _, err := s.fs.Read(fd, mode); err != nil {
		return fmt.Errorf("nvm: keymap layer %d: read mode byte: %w", layer, err)
	}

	switch mode[0] {
	case 0x00:
		grid := make([]byte, s.rows*s.cols*2)
		if _, err := readFull(s.fs, fd, grid); err != nil {
			return fmt.Errorf("nvm: keymap layer %d: read full grid: %w", layer, err)
		}
		off := 0
		for r := 0; r < s.rows; r++ {
			for c := 0; c < s.cols; c++ {
				keycode := binary.LittleEndian.Uint16(grid[off:])
				s.Update(layer, r, c, keycode)
				off += 2
			}
		}
	case 0x01:
		entry := make([]byte, overrideEntrySize)
		for {
			n, err := s.fs.Read(fd, entry)
			if n == 0 {
				break
			}
			if n < overrideEntrySize {
				return fmt.Errorf("nvm: keymap layer %d: short override entry", layer)
			}
			row, col := int(entry[0]), int(entry[1])
			keycode := binary.LittleEndian.Uint16(entry[2:])
			s.Update(layer, row, col, keycode)
			if err != nil {
				break
			}
		}
	default:
		return fmt.Errorf("nvm: keymap layer %d: unknown mode byte %#x", layer, mode[0])
	}
	s.dirty[layer] = false
	return nil
}

// Erase removes every persisted layer file and resets all in-RAM
// state to raw defaults.
func (s *KeymapStore) Erase() error {
	if err := s.fs.Rmdir(s.dirPrefix, true); err != nil {
		return err
	}
	for layer := 0; layer < s.layers; layer++ {
		s.resetLayer(layer)
	}
	return nil
}

// AlteredCount reports the population count for layer, exercised by
// the popcount invariant against the altered bitmap.
func (s *KeymapStore) AlteredCount(layer int) int {
	if layer < 0 || layer >= s.layers {
		return 0
	}
	return s.alteredCnt[layer]
}

// IsAltered reports whether (layer,row,col) differs from its raw
// default in the current cache.
func (s *KeymapStore) IsAltered(layer, row, col int) bool {
	if !s.inRange(layer, row, col) {
		return false
	}
	return s.altered[layer][row*s.cols+col]
}
