// Command nvmctl drives the vfs/nvm stack against an in-memory or
// file-backed block device, for development and inspection without
// real SPI-NOR hardware attached.
package main

import "github.com/tzarc/qmk-modules/cmd/nvmctl/cmd"

func main() {
	cmd.Execute()
}
