package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/tzarc/qmk-modules/vfs"
)

var recursive bool

func init() {
	rootCmd.AddCommand(formatCmd, lsCmd, catCmd, mkdirCmd, rmCmd, writeCmd)
	rmCmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "remove directory contents recursively")
}

var formatCmd = &cobra.Command{
	Use:   "format",
	Short: "Erase and reformat the backing device",
	RunE: func(cmd *cobra.Command, args []string) error {
		fs, closer, err := openFilesystem()
		if err != nil {
			return err
		}
		defer closer()
		return fs.Format()
	},
}

var lsCmd = &cobra.Command{
	Use:   "ls <path>",
	Short: "List a directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fs, closer, err := openFilesystem()
		if err != nil {
			return err
		}
		defer closer()

		fd, err := fs.Opendir(args[0])
		if err != nil {
			return err
		}
		defer fs.Closedir(fd)

		for {
			entry, ok := fs.Readdir(fd)
			if !ok {
				return nil
			}
			marker := " "
			if entry.IsDir {
				marker = "/"
			}
			fmt.Printf("%-40s%s %d\n", entry.Name, marker, entry.Size)
		}
	},
}

var catCmd = &cobra.Command{
	Use:   "cat <path>",
	Short: "Print a file's contents",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fs, closer, err := openFilesystem()
		if err != nil {
			return err
		}
		defer closer()

		fd, err := fs.Open(args[0], vfs.Read)
		if err != nil {
			return err
		}
		defer fs.Close(fd)

		buf := make([]byte, 512)
		for {
			n, err := fs.Read(fd, buf)
			if n > 0 {
				os.Stdout.Write(buf[:n])
			}
			if err != nil {
				return nil
			}
		}
	},
}

var mkdirCmd = &cobra.Command{
	Use:   "mkdir <path>",
	Short: "Create a directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fs, closer, err := openFilesystem()
		if err != nil {
			return err
		}
		defer closer()
		return fs.Mkdir(args[0])
	},
}

var rmCmd = &cobra.Command{
	Use:   "rm <path>",
	Short: "Remove a file or directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fs, closer, err := openFilesystem()
		if err != nil {
			return err
		}
		defer closer()
		if recursive {
			return fs.Rmdir(args[0], true)
		}
		return fs.Delete(args[0])
	},
}

var writeCmd = &cobra.Command{
	Use:   "write <path>",
	Short: "Write stdin to a file, truncating any existing contents",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fs, closer, err := openFilesystem()
		if err != nil {
			return err
		}
		defer closer()

		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return err
		}
		fd, err := fs.Open(args[0], vfs.Write|vfs.Truncate)
		if err != nil {
			return err
		}
		defer fs.Close(fd)
		for written := 0; written < len(data); {
			n, err := fs.Write(fd, data[written:])
			if err != nil {
				return err
			}
			written += n
		}
		return nil
	},
}
