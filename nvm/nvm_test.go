package nvm

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tzarc/qmk-modules/blockdevice"
	"github.com/tzarc/qmk-modules/littlefs"
	"github.com/tzarc/qmk-modules/vfs"
)

func newTestFilesystem(t *testing.T) *vfs.Filesystem {
	t.Helper()
	geom := blockdevice.Geometry{BlockSize: 512, BlockCount: 64}
	dev := blockdevice.NewMemDevice(geom)
	lfsCfg := littlefs.Config{
		ReadSize: 16, ProgSize: 16, BlockSize: 512, BlockCount: 64,
		CacheSize: 16, LookaheadSize: 16, BlockCycles: 500,
	}
	fs := vfs.New(littlefs.New(lfsCfg, dev), vfs.DefaultMaxOpenFDs)
	require.NoError(t, fs.Format())
	return fs
}
