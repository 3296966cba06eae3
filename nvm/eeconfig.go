package nvm

import (
	"encoding/binary"
	"fmt"

	"github.com/tzarc/qmk-modules/vfs"
)

// Magic values matching EECONFIG_MAGIC_NUMBER / _OFF: an enabled store
// carries the "on" magic, a deliberately disabled one carries a
// distinct sentinel rather than simply being absent.
const (
	MagicNumber    uint16 = 0xFEE5
	MagicNumberOff uint16 = 0xFFFF
)

// EeConfig is a typed key/value accessor over small named files under
// ee/, plus a pair of opaque version-tagged data blocks for
// keyboard/user-level extension data.
type EeConfig struct {
	fs        *vfs.Filesystem
	dir       string
	kbVersion uint32
	kbSize    uint32
	userVersion uint32
	userSize    uint32
}

// NewEeConfig builds an accessor. kbVersion/kbSize and
// userVersion/userSize configure the two datablocks. A size is used
// only by the matching Init method: with a zero size, Init stamps the
// version and leaves no block file. The read and update methods do
// not check the size, so a zero size does not disable them.
func NewEeConfig(fs *vfs.Filesystem, kbVersion, kbSize, userVersion, userSize uint32) *EeConfig {
	return &EeConfig{fs: fs, dir: "ee", kbVersion: kbVersion, kbSize: kbSize, userVersion: userVersion, userSize: userSize}
}

func (e *EeConfig) path(name string) string { return e.dir + "/" + name }

// Erase recursively removes ee/ and recreates it empty.
func (e *EeConfig) Erase() error {
	if err := e.fs.Rmdir(e.dir, true); err != nil {
		return err
	}
	return e.fs.Mkdir(e.dir)
}

func (e *EeConfig) readU16(name string) uint16 {
	buf := make([]byte, 2)
	readBlock(e.fs, e.path(name), buf)
	return binary.LittleEndian.Uint16(buf)
}

func (e *EeConfig) updateU16(name string, v uint16) error {
	buf := make([]byte, 2)
	binary.LittleEndian.PutUint16(buf, v)
	return updateBlock(e.fs, e.path(name), buf)
}

func (e *EeConfig) readU32(name string) uint32 {
	buf := make([]byte, 4)
	readBlock(e.fs, e.path(name), buf)
	return binary.LittleEndian.Uint32(buf)
}

func (e *EeConfig) updateU32(name string, v uint32) error {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, v)
	return updateBlock(e.fs, e.path(name), buf)
}

func (e *EeConfig) readU8(name string) uint8 {
	buf := make([]byte, 1)
	readBlock(e.fs, e.path(name), buf)
	return buf[0]
}

func (e *EeConfig) updateU8(name string, v uint8) error {
	return updateBlock(e.fs, e.path(name), []byte{v})
}

// IsEnabled reports whether ee/magic carries MagicNumber.
func (e *EeConfig) IsEnabled() bool { return e.readU16("magic") == MagicNumber }

// IsDisabled reports whether ee/magic carries MagicNumberOff.
func (e *EeConfig) IsDisabled() bool { return e.readU16("magic") == MagicNumberOff }

// Enable writes the enabled magic value.
func (e *EeConfig) Enable() error { return e.updateU16("magic", MagicNumber) }

// Disable erases the store, then writes the disabled magic value.
func (e *EeConfig) Disable() error {
	if err := e.Erase(); err != nil {
		return err
	}
	return e.updateU16("magic", MagicNumberOff)
}

func (e *EeConfig) ReadDebug() uint8         { return e.readU8("debug") }
func (e *EeConfig) UpdateDebug(v uint8) error { return e.updateU8("debug", v) }

func (e *EeConfig) ReadDefaultLayer() uint32          { return e.readU32("default_layer") }
func (e *EeConfig) UpdateDefaultLayer(v uint32) error { return e.updateU32("default_layer", v) }

func (e *EeConfig) ReadKeymap() uint16          { return e.readU16("keymap") }
func (e *EeConfig) UpdateKeymap(v uint16) error { return e.updateU16("keymap", v) }

func (e *EeConfig) ReadHandedness() bool { return e.readU8("handedness") != 0 }
func (e *EeConfig) UpdateHandedness(v bool) error {
	var b uint8
	if v {
		b = 1
	}
	return e.updateU8("handedness", b)
}

func (e *EeConfig) ReadKeymapHash() uint32          { return e.readU32("keymap_hash") }
func (e *EeConfig) UpdateKeymapHash(v uint32) error { return e.updateU32("keymap_hash", v) }

// readOpaque and updateOpaque back the peripheral-feature entries below
// (audio_config_t, backlight_config_t, ...): fixed-size structs whose
// real layout is defined by firmware headers this module never sees,
// so callers pass the size their build was compiled with and get back
// raw bytes rather than a typed struct.
func (e *EeConfig) readOpaque(name string, size int) []byte {
	buf := make([]byte, size)
	readBlock(e.fs, e.path(name), buf)
	return buf
}

func (e *EeConfig) updateOpaque(name string, data []byte) error {
	return updateBlock(e.fs, e.path(name), data)
}

// ReadAudio/UpdateAudio back audio_config_t (ee/audio, AUDIO_ENABLE).
func (e *EeConfig) ReadAudio(size int) []byte        { return e.readOpaque("audio", size) }
func (e *EeConfig) UpdateAudio(data []byte) error    { return e.updateOpaque("audio", data) }

// ReadBacklight/UpdateBacklight back backlight_config_t (ee/backlight,
// BACKLIGHT_ENABLE).
func (e *EeConfig) ReadBacklight(size int) []byte     { return e.readOpaque("backlight", size) }
func (e *EeConfig) UpdateBacklight(data []byte) error { return e.updateOpaque("backlight", data) }

// ReadRGBLight/UpdateRGBLight back rgblight_config_t (ee/rgblight,
// RGBLIGHT_ENABLE).
func (e *EeConfig) ReadRGBLight(size int) []byte     { return e.readOpaque("rgblight", size) }
func (e *EeConfig) UpdateRGBLight(data []byte) error { return e.updateOpaque("rgblight", data) }

// ReadRGBMatrix/UpdateRGBMatrix back rgb_config_t (ee/rgb_matrix,
// RGB_MATRIX_ENABLE).
func (e *EeConfig) ReadRGBMatrix(size int) []byte     { return e.readOpaque("rgb_matrix", size) }
func (e *EeConfig) UpdateRGBMatrix(data []byte) error { return e.updateOpaque("rgb_matrix", data) }

// ReadLEDMatrix/UpdateLEDMatrix back led_eeconfig_t (ee/led_matrix,
// LED_MATRIX_ENABLE).
func (e *EeConfig) ReadLEDMatrix(size int) []byte     { return e.readOpaque("led_matrix", size) }
func (e *EeConfig) UpdateLEDMatrix(data []byte) error { return e.updateOpaque("led_matrix", data) }

// ReadHaptic/UpdateHaptic back haptic_config_t (ee/haptic,
// HAPTIC_ENABLE).
func (e *EeConfig) ReadHaptic(size int) []byte     { return e.readOpaque("haptic", size) }
func (e *EeConfig) UpdateHaptic(data []byte) error { return e.updateOpaque("haptic", data) }

// ReadUnicodeMode/UpdateUnicodeMode back unicode_config_t
// (ee/unicodemode, UNICODE_COMMON_ENABLE).
func (e *EeConfig) ReadUnicodeMode(size int) []byte     { return e.readOpaque("unicodemode", size) }
func (e *EeConfig) UpdateUnicodeMode(data []byte) error { return e.updateOpaque("unicodemode", data) }

// ReadStenoMode/UpdateStenoMode back a plain uint8_t (ee/stenomode,
// STENO_ENABLE), unlike the other peripheral entries above.
func (e *EeConfig) ReadStenoMode() uint8          { return e.readU8("stenomode") }
func (e *EeConfig) UpdateStenoMode(v uint8) error { return e.updateU8("stenomode", v) }

// IsKbDatablockValid reports whether ee/keyboard matches kbVersion.
func (e *EeConfig) IsKbDatablockValid() bool { return e.readU32("keyboard") == e.kbVersion }

// ReadKbDatablock returns length bytes at offset from the keyboard
// datablock, or all-zero if the version tag doesn't match.
func (e *EeConfig) ReadKbDatablock(offset, length int) []byte {
	return e.readDatablock("kb_datablock", e.IsKbDatablockValid(), offset, length)
}

// UpdateKbDatablock stamps the current version and writes length bytes
// at offset into the keyboard datablock.
func (e *EeConfig) UpdateKbDatablock(offset int, data []byte) error {
	if err := e.updateU32("keyboard", e.kbVersion); err != nil {
		return err
	}
	return e.updateDatablockRegion("kb_datablock", offset, data)
}

// InitKbDatablock stamps the version, truncates, and extends the
// keyboard datablock to kbSize bytes.
func (e *EeConfig) InitKbDatablock() error {
	if err := e.updateU32("keyboard", e.kbVersion); err != nil {
		return err
	}
	return e.initDatablock("kb_datablock", e.kbSize)
}

// IsUserDatablockValid reports whether ee/user matches userVersion.
func (e *EeConfig) IsUserDatablockValid() bool { return e.readU32("user") == e.userVersion }

func (e *EeConfig) ReadUserDatablock(offset, length int) []byte {
	return e.readDatablock("user_datablock", e.IsUserDatablockValid(), offset, length)
}

func (e *EeConfig) UpdateUserDatablock(offset int, data []byte) error {
	if err := e.updateU32("user", e.userVersion); err != nil {
		return err
	}
	return e.updateDatablockRegion("user_datablock", offset, data)
}

func (e *EeConfig) InitUserDatablock() error {
	if err := e.updateU32("user", e.userVersion); err != nil {
		return err
	}
	return e.initDatablock("user_datablock", e.userSize)
}

func (e *EeConfig) readDatablock(name string, valid bool, offset, length int) []byte {
	out := make([]byte, length)
	if !valid {
		return out
	}
	path := e.path(name)
	if !e.fs.Exists(path) {
		return out
	}
	fd, err := e.fs.Open(path, vfs.Read)
	if err != nil {
		return out
	}
	defer e.fs.Close(fd)
	if _, err := e.fs.Seek(fd, int64(offset), vfs.SeekSet); err != nil {
		return make([]byte, length)
	}
	if _, err := readFull(e.fs, fd, out); err != nil {
		return make([]byte, length)
	}
	return out
}

func (e *EeConfig) updateDatablockRegion(name string, offset int, data []byte) error {
	path := e.path(name)
	fd, err := e.fs.Open(path, vfs.Write)
	if err != nil {
		return fmt.Errorf("nvm: %s: %w", path, err)
	}
	defer e.fs.Close(fd)
	if _, err := e.fs.Seek(fd, int64(offset), vfs.SeekSet); err != nil {
		return fmt.Errorf("nvm: %s: seek: %w", path, err)
	}
	for written := 0; written < len(data); {
		n, err := e.fs.Write(fd, data[written:])
		if err != nil {
			return fmt.Errorf("nvm: %s: write: %w", path, err)
		}
		written += n
	}
	return nil
}

// initDatablock deletes any prior contents and extends the file to
// size bytes by writing a single zero byte at the final offset,
// leaving littlefs to treat the intervening range as a sparse hole.
func (e *EeConfig) initDatablock(name string, size uint32) error {
	path := e.path(name)
	if err := e.fs.Delete(path); err != nil {
		return err
	}
	if size == 0 {
		return nil
	}
	fd, err := e.fs.Open(path, vfs.Write)
	if err != nil {
		return fmt.Errorf("nvm: %s: %w", path, err)
	}
	defer e.fs.Close(fd)
	if _, err := e.fs.Seek(fd, int64(size-1), vfs.SeekSet); err != nil {
		return fmt.Errorf("nvm: %s: seek: %w", path, err)
	}
	if _, err := e.fs.Write(fd, []byte{0}); err != nil {
		return fmt.Errorf("nvm: %s: write: %w", path, err)
	}
	return nil
}
