package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/tzarc/qmk-modules/config"
	"github.com/tzarc/qmk-modules/nvm"
)

func init() {
	rootCmd.AddCommand(keymapCmd, macroCmd, eeconfigCmd)
	keymapCmd.AddCommand(keymapGetCmd, keymapSetCmd, keymapDumpCmd)
	macroCmd.AddCommand(macroGetCmd, macroSetCmd)
	eeconfigCmd.AddCommand(eeconfigGetCmd, eeconfigSetCmd, eeconfigEraseCmd)
}

// zeroDefault stands in for the keyboard's compiled-in raw keymap:
// nvmctl has no access to real firmware defaults, so every key starts
// as keycode 0 (KC_NO) until touched.
func zeroDefault(layer, row, col int) uint16 { return 0 }

var keymapCmd = &cobra.Command{
	Use:   "keymap",
	Short: "Inspect or edit the dynamic keymap store",
}

var keymapGetCmd = &cobra.Command{
	Use:   "get <layer> <row> <col>",
	Short: "Print one keycode",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		profile, err := config.Load()
		if err != nil {
			return err
		}
		fs, closer, err := openFilesystem()
		if err != nil {
			return err
		}
		defer closer()

		store := nvm.NewKeymapStore(fs, profile.LayerCount, profile.MatrixRows, profile.MatrixCols, zeroDefault)
		if err := store.Load(); err != nil {
			return err
		}
		layer, row, col, err := parseLRC(args)
		if err != nil {
			return err
		}
		fmt.Printf("0x%04X\n", store.Read(layer, row, col))
		return nil
	},
}

var keymapSetCmd = &cobra.Command{
	Use:   "set <layer> <row> <col> <keycode>",
	Short: "Set one keycode and persist the layer",
	Args:  cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		profile, err := config.Load()
		if err != nil {
			return err
		}
		fs, closer, err := openFilesystem()
		if err != nil {
			return err
		}
		defer closer()

		store := nvm.NewKeymapStore(fs, profile.LayerCount, profile.MatrixRows, profile.MatrixCols, zeroDefault)
		if err := store.Load(); err != nil {
			return err
		}
		layer, row, col, err := parseLRC(args[:3])
		if err != nil {
			return err
		}
		keycode, err := strconv.ParseUint(args[3], 0, 16)
		if err != nil {
			return fmt.Errorf("invalid keycode %q: %w", args[3], err)
		}
		store.Update(layer, row, col, uint16(keycode))
		return store.Save()
	},
}

var keymapDumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Print every altered keycode across all layers",
	RunE: func(cmd *cobra.Command, args []string) error {
		profile, err := config.Load()
		if err != nil {
			return err
		}
		fs, closer, err := openFilesystem()
		if err != nil {
			return err
		}
		defer closer()

		store := nvm.NewKeymapStore(fs, profile.LayerCount, profile.MatrixRows, profile.MatrixCols, zeroDefault)
		if err := store.Load(); err != nil {
			return err
		}
		for layer := 0; layer < profile.LayerCount; layer++ {
			count := store.AlteredCount(layer)
			if count == 0 {
				continue
			}
			fmt.Printf("layer %d: %d altered\n", layer, count)
			for row := 0; row < profile.MatrixRows; row++ {
				for col := 0; col < profile.MatrixCols; col++ {
					if store.IsAltered(layer, row, col) {
						fmt.Printf("  [%d,%d] = 0x%04X\n", row, col, store.Read(layer, row, col))
					}
				}
			}
		}
		return nil
	},
}

func parseLRC(args []string) (int, int, int, error) {
	vals := make([]int, 3)
	for i, a := range args {
		n, err := strconv.Atoi(a)
		if err != nil {
			return 0, 0, 0, fmt.Errorf("invalid index %q: %w", a, err)
		}
		vals[i] = n
	}
	return vals[0], vals[1], vals[2], nil
}

var macroCmd = &cobra.Command{
	Use:   "macro",
	Short: "Inspect or edit the macro store",
}

var macroGetCmd = &cobra.Command{
	Use:   "get <offset> <length>",
	Short: "Print a byte range of the macro buffer",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		fs, closer, err := openFilesystem()
		if err != nil {
			return err
		}
		defer closer()

		store := nvm.NewMacroStore(fs)
		if err := store.Load(); err != nil {
			return err
		}
		offset, err := strconv.Atoi(args[0])
		if err != nil {
			return err
		}
		length, err := strconv.Atoi(args[1])
		if err != nil {
			return err
		}
		fmt.Printf("%q\n", store.ReadBuffer(offset, length))
		return nil
	},
}

var macroSetCmd = &cobra.Command{
	Use:   "set <offset> <data>",
	Short: "Overwrite the macro buffer at offset and save",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		fs, closer, err := openFilesystem()
		if err != nil {
			return err
		}
		defer closer()

		store := nvm.NewMacroStore(fs)
		if err := store.Load(); err != nil {
			return err
		}
		offset, err := strconv.Atoi(args[0])
		if err != nil {
			return err
		}
		store.UpdateBuffer(offset, []byte(args[1]))
		return store.Save()
	},
}

var eeconfigCmd = &cobra.Command{
	Use:   "eeconfig",
	Short: "Inspect or edit the eeconfig store",
}

var eeconfigGetCmd = &cobra.Command{
	Use:   "get <field>",
	Short: "Print one eeconfig field (magic, debug, default_layer, keymap, handedness, keymap_hash)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		profile, err := config.Load()
		if err != nil {
			return err
		}
		fs, closer, err := openFilesystem()
		if err != nil {
			return err
		}
		defer closer()

		ee := nvm.NewEeConfig(fs, 0, profile.KbDataSize, 0, profile.UserDataSize)
		switch args[0] {
		case "magic":
			fmt.Println(ee.IsEnabled())
		case "debug":
			fmt.Printf("0x%02X\n", ee.ReadDebug())
		case "default_layer":
			fmt.Println(ee.ReadDefaultLayer())
		case "keymap":
			fmt.Printf("0x%04X\n", ee.ReadKeymap())
		case "handedness":
			fmt.Println(ee.ReadHandedness())
		case "keymap_hash":
			fmt.Printf("0x%08X\n", ee.ReadKeymapHash())
		default:
			return fmt.Errorf("unknown field %q", args[0])
		}
		return nil
	},
}

var eeconfigSetCmd = &cobra.Command{
	Use:   "set <field> <value>",
	Short: "Set one eeconfig field",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		profile, err := config.Load()
		if err != nil {
			return err
		}
		fs, closer, err := openFilesystem()
		if err != nil {
			return err
		}
		defer closer()

		ee := nvm.NewEeConfig(fs, 0, profile.KbDataSize, 0, profile.UserDataSize)
		switch args[0] {
		case "magic":
			if args[1] == "on" {
				return ee.Enable()
			}
			return ee.Disable()
		case "debug":
			v, err := strconv.ParseUint(args[1], 0, 8)
			if err != nil {
				return err
			}
			return ee.UpdateDebug(uint8(v))
		case "default_layer":
			v, err := strconv.ParseUint(args[1], 0, 32)
			if err != nil {
				return err
			}
			return ee.UpdateDefaultLayer(uint32(v))
		case "keymap":
			v, err := strconv.ParseUint(args[1], 0, 16)
			if err != nil {
				return err
			}
			return ee.UpdateKeymap(uint16(v))
		case "handedness":
			return ee.UpdateHandedness(args[1] == "true")
		case "keymap_hash":
			v, err := strconv.ParseUint(args[1], 0, 32)
			if err != nil {
				return err
			}
			return ee.UpdateKeymapHash(uint32(v))
		default:
			return fmt.Errorf("unknown field %q", args[0])
		}
	},
}

var eeconfigEraseCmd = &cobra.Command{
	Use:   "erase",
	Short: "Erase the eeconfig store",
	RunE: func(cmd *cobra.Command, args []string) error {
		profile, err := config.Load()
		if err != nil {
			return err
		}
		fs, closer, err := openFilesystem()
		if err != nil {
			return err
		}
		defer closer()

		ee := nvm.NewEeConfig(fs, 0, profile.KbDataSize, 0, profile.UserDataSize)
		return ee.Erase()
	},
}
