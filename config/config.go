// Package config loads the device profile (block-device geometry,
// filesystem limits, matrix and layer dimensions) nvmctl and the NVM
// stores are built against.
package config

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// DeviceProfile carries every tunable the block device, filesystem,
// and NVM stores need at construction time.
type DeviceProfile struct {
	// Block device geometry.
	BlockSize  uint32 `mapstructure:"block_size" yaml:"block_size"`
	BlockCount uint32 `mapstructure:"block_count" yaml:"block_count"`

	// littlefs tunables.
	ReadSize      uint32 `mapstructure:"read_size" yaml:"read_size"`
	ProgSize      uint32 `mapstructure:"prog_size" yaml:"prog_size"`
	CacheSize     uint32 `mapstructure:"cache_size" yaml:"cache_size"`
	LookaheadSize uint32 `mapstructure:"lookahead_size" yaml:"lookahead_size"`
	BlockCycles   int32  `mapstructure:"block_cycles" yaml:"block_cycles"`

	// Filesystem limits. Only MaxOpenFDs is passed to vfs.New; vfs uses
	// its own fixed MaxDirDepth, and NameMax is not read by vfs.
	MaxOpenFDs  int `mapstructure:"max_open_fds" yaml:"max_open_fds"`
	NameMax     int `mapstructure:"name_max" yaml:"name_max"`
	MaxDirDepth int `mapstructure:"max_dir_depth" yaml:"max_dir_depth"`

	// Keyboard matrix dimensions consumed by nvm.KeymapStore.
	MatrixRows int `mapstructure:"matrix_rows" yaml:"matrix_rows"`
	MatrixCols int `mapstructure:"matrix_cols" yaml:"matrix_cols"`
	LayerCount int `mapstructure:"layer_count" yaml:"layer_count"`

	// Encoder dimensions consumed by nvm.EncoderMapStore.
	EncoderCount      int `mapstructure:"encoder_count" yaml:"encoder_count"`
	EncoderDirections int `mapstructure:"encoder_directions" yaml:"encoder_directions"`

	// EeConfig datablock sizing.
	KbDataSize   uint32 `mapstructure:"kb_data_size" yaml:"kb_data_size"`
	UserDataSize uint32 `mapstructure:"user_data_size" yaml:"user_data_size"`

	// ViaStore custom config sizing.
	ViaCustomConfigSize int `mapstructure:"via_custom_config_size" yaml:"via_custom_config_size"`
}

// Default returns the same values Load falls back to when no config
// file or environment override is present, for callers that want to
// seed a config file rather than read one.
func Default() *DeviceProfile {
	return &DeviceProfile{
		BlockSize:           4096,
		BlockCount:          512,
		ReadSize:            256,
		ProgSize:            256,
		CacheSize:           256,
		LookaheadSize:       128,
		BlockCycles:         500,
		MaxOpenFDs:          6,
		NameMax:             40,
		MaxDirDepth:         3,
		MatrixRows:          5,
		MatrixCols:          14,
		LayerCount:          8,
		EncoderCount:        2,
		EncoderDirections:   2,
		KbDataSize:          0,
		UserDataSize:        0,
		ViaCustomConfigSize: 0,
	}
}

// Save writes profile to path as YAML, for `nvmctl config init`-style
// bootstrapping of an editable nvm-config.yaml.
func Save(path string, profile *DeviceProfile) error {
	data, err := yaml.Marshal(profile)
	if err != nil {
		return fmt.Errorf("config: marshaling device profile: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("config: writing %s: %w", path, err)
	}
	return nil
}

// Load reads nvm-config.yaml from the current directory, ./config,
// $HOME/.qmk-modules, or /etc/qmk-modules (first match wins), falling
// back to defaults for anything unset. Environment variables prefixed
// NVM_ override any key, e.g. NVM_BLOCK_SIZE.
func Load() (*DeviceProfile, error) {
	v := viper.New()
	v.SetConfigName("nvm-config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("$HOME/.qmk-modules")
	v.AddConfigPath("/etc/qmk-modules")

	v.SetDefault("block_size", 4096)
	v.SetDefault("block_count", 512)
	v.SetDefault("read_size", 256)
	v.SetDefault("prog_size", 256)
	v.SetDefault("cache_size", 256)
	v.SetDefault("lookahead_size", 128)
	v.SetDefault("block_cycles", 500)
	v.SetDefault("max_open_fds", 6)
	v.SetDefault("name_max", 40)
	v.SetDefault("max_dir_depth", 3)
	v.SetDefault("matrix_rows", 5)
	v.SetDefault("matrix_cols", 14)
	v.SetDefault("layer_count", 8)
	v.SetDefault("encoder_count", 2)
	v.SetDefault("encoder_directions", 2)
	v.SetDefault("kb_data_size", 0)
	v.SetDefault("user_data_size", 0)
	v.SetDefault("via_custom_config_size", 0)

	v.SetEnvPrefix("NVM")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("config: reading nvm-config: %w", err)
		}
	}

	var profile DeviceProfile
	if err := v.Unmarshal(&profile); err != nil {
		return nil, fmt.Errorf("config: unmarshaling device profile: %w", err)
	}
	return &profile, nil
}
