package nvm

import (
	"encoding/binary"

	"github.com/tzarc/qmk-modules/vfs"
)

// ViaStore persists the small fixed-size blobs the VIA protocol needs
// outside the keymap/macro stores: a 3-byte magic, a layout-options
// word, and an optional vendor-defined custom-config blob. Not part of
// the distilled keymap/eeconfig scope, but present in the original
// firmware's filesystem overlay and cheap to carry alongside it.
type ViaStore struct {
	fs               *vfs.Filesystem
	dir              string
	customConfigSize int
}

// NewViaStore builds a store under via/.
// customConfigSize of 0 disables the custom-config accessors, matching
// the VIA_EEPROM_CUSTOM_CONFIG_SIZE > 0 build guard.
func NewViaStore(fs *vfs.Filesystem, customConfigSize int) *ViaStore {
	return &ViaStore{fs: fs, dir: "via", customConfigSize: customConfigSize}
}

func (v *ViaStore) path(name string) string { return v.dir + "/" + name }

// Erase recursively removes the via/ directory.
func (v *ViaStore) Erase() error {
	return v.fs.Rmdir(v.dir, true)
}

// ReadMagic returns the 3 magic bytes VIA uses to validate the store.
func (v *ViaStore) ReadMagic() [3]byte {
	buf := make([]byte, 3)
	readBlock(v.fs, v.path("magic"), buf)
	return [3]byte{buf[0], buf[1], buf[2]}
}

// UpdateMagic writes the 3 magic bytes.
func (v *ViaStore) UpdateMagic(magic [3]byte) error {
	if err := v.fs.Mkdir(v.dir); err != nil {
		return err
	}
	return updateBlock(v.fs, v.path("magic"), magic[:])
}

// ReadLayoutOptions returns the 4-byte layout options word.
func (v *ViaStore) ReadLayoutOptions() uint32 {
	buf := make([]byte, 4)
	readBlock(v.fs, v.path("layout_options"), buf)
	return binary.LittleEndian.Uint32(buf)
}

// UpdateLayoutOptions writes the layout options word.
func (v *ViaStore) UpdateLayoutOptions(val uint32) error {
	if err := v.fs.Mkdir(v.dir); err != nil {
		return err
	}
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, val)
	return updateBlock(v.fs, v.path("layout_options"), buf)
}

// ReadCustomConfig copies length bytes at offset out of the
// customConfigSize-byte custom config blob. Returns (0, nil) if custom
// config is disabled or the range falls outside the blob.
func (v *ViaStore) ReadCustomConfig(offset, length int) (int, []byte) {
	if v.customConfigSize == 0 {
		return 0, nil
	}
	config := make([]byte, v.customConfigSize)
	readBlock(v.fs, v.path("custom_config"), config)
	if offset < 0 || offset+length > v.customConfigSize {
		return 0, nil
	}
	out := make([]byte, length)
	copy(out, config[offset:offset+length])
	return length, out
}

// UpdateCustomConfig writes data into the custom config blob at
// offset, reading the existing blob first so untouched regions
// survive, mirroring the C implementation's read-modify-write.
func (v *ViaStore) UpdateCustomConfig(offset int, data []byte) (int, error) {
	if v.customConfigSize == 0 {
		return 0, nil
	}
	if offset < 0 || offset+len(data) > v.customConfigSize {
		return 0, nil
	}
	if err := v.fs.Mkdir(v.dir); err != nil {
		return 0, err
	}
	config := make([]byte, v.customConfigSize)
	readBlock(v.fs, v.path("custom_config"), config)
	copy(config[offset:], data)
	if err := updateBlock(v.fs, v.path("custom_config"), config); err != nil {
		return 0, err
	}
	return len(data), nil
}
