// Package cmd implements the nvmctl command tree.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tzarc/qmk-modules/blockdevice"
	"github.com/tzarc/qmk-modules/config"
	"github.com/tzarc/qmk-modules/littlefs"
	"github.com/tzarc/qmk-modules/vfs"
)

var (
	backend string
	image   string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "nvmctl",
	Short: "Inspect and drive a littlefs-backed NVM store from the command line",
	Long: `nvmctl mounts the same filesystem and NVM overlay a keyboard's
firmware would, over either an in-memory block device or a host file
standing in for a SPI-NOR chip.

Commands:
  format      erase and reformat the backing device
  ls          list a directory
  cat         print a file's contents
  mkdir       create a directory
  rm          remove a file or directory
  write       write stdin to a file
  keymap      inspect or edit the dynamic keymap store
  macro       inspect or edit the macro store
  eeconfig    inspect or edit the eeconfig store
  config      inspect or bootstrap nvm-config.yaml`,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect or bootstrap nvm-config.yaml",
}

var configInitCmd = &cobra.Command{
	Use:   "init <path>",
	Short: "Write the default device profile to path as YAML",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return config.Save(args[0], config.Default())
	},
}

// Execute runs the command tree, exiting non-zero on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "nvmctl: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&backend, "backend", "mem", "block device backend: mem or file")
	rootCmd.PersistentFlags().StringVar(&image, "image", "nvm.img", "backing file path when --backend=file")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "log every block device transfer")

	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
}

// openFilesystem loads the device profile, constructs the requested
// backend, and returns a mounted vfs.Filesystem ready for use.
func openFilesystem() (*vfs.Filesystem, func(), error) {
	profile, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	blockdevice.Debug = debug

	geom := blockdevice.Geometry{BlockSize: profile.BlockSize, BlockCount: profile.BlockCount}

	var dev littlefs.BlockDevice
	var closer func()
	switch backend {
	case "mem":
		dev = blockdevice.NewMemDevice(geom)
		closer = func() {}
	case "file":
		fd, err := blockdevice.OpenFileDevice(image, geom)
		if err != nil {
			return nil, nil, err
		}
		dev = fd
		closer = func() { fd.Close() }
	default:
		return nil, nil, fmt.Errorf("unknown backend %q (want mem or file)", backend)
	}

	lfsCfg := littlefs.Config{
		ReadSize:      profile.ReadSize,
		ProgSize:      profile.ProgSize,
		BlockSize:     profile.BlockSize,
		BlockCount:    profile.BlockCount,
		CacheSize:     profile.CacheSize,
		LookaheadSize: profile.LookaheadSize,
		BlockCycles:   profile.BlockCycles,
	}
	lfs := littlefs.New(lfsCfg, dev)
	fs := vfs.New(lfs, profile.MaxOpenFDs)
	if err := fs.Mount(); err != nil {
		closer()
		return nil, nil, err
	}
	return fs, func() { fs.Unmount(); closer() }, nil
}
