package vfs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tzarc/qmk-modules/blockdevice"
	"github.com/tzarc/qmk-modules/littlefs"
)

func newTestFilesystem(t *testing.T) *Filesystem {
	t.Helper()
	geom := blockdevice.Geometry{BlockSize: 512, BlockCount: 32}
	dev := blockdevice.NewMemDevice(geom)
	lfsCfg := littlefs.Config{
		ReadSize: 16, ProgSize: 16, BlockSize: 512, BlockCount: 32,
		CacheSize: 16, LookaheadSize: 16, BlockCycles: 500,
	}
	fs := New(littlefs.New(lfsCfg, dev), DefaultMaxOpenFDs)
	require.NoError(t, fs.Format())
	return fs
}

func TestMountRefcounting(t *testing.T) {
	fs := newTestFilesystem(t)
	assert.True(t, fs.IsMounted())

	require.NoError(t, fs.Mount())
	require.NoError(t, fs.Mount())
	assert.True(t, fs.IsMounted())

	require.NoError(t, fs.Unmount())
	assert.True(t, fs.IsMounted(), "still one nested reference plus the initial Format mount")

	require.NoError(t, fs.Unmount())
	require.NoError(t, fs.Unmount())
	assert.False(t, fs.IsMounted())
}

func TestMkdirRejectsRoot(t *testing.T) {
	fs := newTestFilesystem(t)
	err := fs.Mkdir("/")
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestMkdirTolerantOfExisting(t *testing.T) {
	fs := newTestFilesystem(t)
	require.NoError(t, fs.Mkdir("layers"))
	require.NoError(t, fs.Mkdir("layers"))
}

func TestWriteReadSeekRoundTrip(t *testing.T) {
	fs := newTestFilesystem(t)

	fd, err := fs.Open("greeting", Write|Truncate)
	require.NoError(t, err)
	n, err := fs.Write(fd, []byte("hello world"))
	require.NoError(t, err)
	assert.Equal(t, 11, n)
	require.NoError(t, fs.Close(fd))

	fd, err = fs.Open("greeting", Read)
	require.NoError(t, err)
	buf := make([]byte, 5)
	n, err = fs.Read(fd, buf)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf[:n]))

	pos, err := fs.Seek(fd, 6, SeekSet)
	require.NoError(t, err)
	assert.EqualValues(t, 6, pos)

	n, err = fs.Read(fd, buf)
	require.NoError(t, err)
	assert.Equal(t, "world", string(buf[:n]))
	assert.True(t, fs.IsEOF(fd))
	require.NoError(t, fs.Close(fd))
}

func TestOpenAfterCloseReturnsValidFD(t *testing.T) {
	fs := newTestFilesystem(t)

	fd1, err := fs.Open("a", Write|Truncate)
	require.NoError(t, err)
	require.NoError(t, fs.Close(fd1))

	fd2, err := fs.Open("b", Write|Truncate)
	require.NoError(t, err)
	defer fs.Close(fd2)

	assert.NotEqual(t, InvalidFD, fd1)
	assert.NotEqual(t, InvalidFD, fd2)
}

func TestFDExhaustion(t *testing.T) {
	fs := newTestFilesystem(t)
	fs.handles = make([]handle, 2)

	fd1, err := fs.Open("a", Write|Truncate)
	require.NoError(t, err)
	fd2, err := fs.Open("b", Write|Truncate)
	require.NoError(t, err)

	_, err = fs.Open("c", Write|Truncate)
	assert.ErrorIs(t, err, ErrFull)

	require.NoError(t, fs.Close(fd1))
	require.NoError(t, fs.Close(fd2))
}

func TestRmdirRecursive(t *testing.T) {
	fs := newTestFilesystem(t)
	require.NoError(t, fs.Mkdir("a"))
	require.NoError(t, fs.Mkdir("a/b"))
	fd, err := fs.Open("a/b/file", Write|Truncate)
	require.NoError(t, err)
	require.NoError(t, fs.Close(fd))

	require.NoError(t, fs.Rmdir("a", true))
	assert.False(t, fs.Exists("a"))
}

func TestOpendirReaddirClosedir(t *testing.T) {
	fs := newTestFilesystem(t)
	require.NoError(t, fs.Mkdir("dir"))
	for _, name := range []string{"dir/one", "dir/two"} {
		fd, err := fs.Open(name, Write|Truncate)
		require.NoError(t, err)
		require.NoError(t, fs.Close(fd))
	}

	dfd, err := fs.Opendir("dir")
	require.NoError(t, err)

	seen := map[string]bool{}
	for {
		entry, ok := fs.Readdir(dfd)
		if !ok {
			break
		}
		seen[entry.Name] = true
	}
	assert.True(t, seen["one"])
	assert.True(t, seen["two"])
	require.NoError(t, fs.Closedir(dfd))
}

func TestDumpInfo(t *testing.T) {
	fs := newTestFilesystem(t)
	info, err := fs.DumpInfo()
	require.NoError(t, err)
	assert.NotZero(t, info.SessionID)
}
