package diskbuffer_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/streamforge/pipeline/internal/diskbuffer"
)

func openOpts(dataDir string) diskbuffer.Options {
	return diskbuffer.Options{
		DataDir:         dataDir,
		MaxBytes:        1 << 20,
		MaxDataFileSize: 1 << 16,
		WhenFull:        diskbuffer.WhenFullBlock,
	}
}

// TestTornTailRecoversAndResumesWriting simulates a crash mid-write: the last
// frame's bytes are truncated short. Reopening must roll forward to a new
// writer id past the last fully-valid record rather than refusing to start.
func TestTornTailRecoversAndResumesWriting(t *testing.T) {
	dataDir := t.TempDir()

	b, err := diskbuffer.Open(openOpts(dataDir))
	require.NoError(t, err)
	_, err = b.WriteRecord([]byte("good-record"))
	require.NoError(t, err)
	_, err = b.WriteRecord([]byte("this-one-gets-torn"))
	require.NoError(t, err)
	require.NoError(t, b.Flush())
	require.NoError(t, b.Close())

	truncateLastBytes(t, dataDir, "buffer-00000001.dat", 5)

	reopened, err := diskbuffer.Open(openOpts(dataDir))
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.ReadNext()
	require.NoError(t, err)
	require.Equal(t, "good-record", string(got))

	_, err = reopened.ReadNext()
	require.ErrorIs(t, err, diskbuffer.ErrEmpty)

	_, err = reopened.WriteRecord([]byte("fresh-after-recovery"))
	require.NoError(t, err)
	require.NoError(t, reopened.Flush())
}

// TestCorruptedSealedFileSkipsForward writes two data files' worth of
// records, corrupts a record in the first (now-sealed) file, and checks that
// ReadNext skips past it instead of surfacing a fatal error, per the
// skip-vs-fatal policy: corruption the writer has already moved past is
// recoverable by definition.
func TestCorruptedSealedFileSkipsForward(t *testing.T) {
	dataDir := t.TempDir()

	b, err := diskbuffer.Open(diskbuffer.Options{
		DataDir:         dataDir,
		MaxBytes:        1 << 20,
		MaxDataFileSize: 40, // small, so a couple of records force a roll
		WhenFull:        diskbuffer.WhenFullBlock,
	})
	require.NoError(t, err)

	_, err = b.WriteRecord([]byte("abc"))
	require.NoError(t, err)
	_, err = b.WriteRecord([]byte("def")) // should force roll to file 2
	require.NoError(t, err)
	require.NoError(t, b.Flush())
	require.NoError(t, b.Close())

	flipByte(t, dataDir, "buffer-00000001.dat", 20)

	reopened, err := diskbuffer.Open(diskbuffer.Options{
		DataDir:         dataDir,
		MaxBytes:        1 << 20,
		MaxDataFileSize: 40,
		WhenFull:        diskbuffer.WhenFullBlock,
	})
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.ReadNext()
	require.NoError(t, err)
	require.Equal(t, "def", string(got))
}

func truncateLastBytes(t *testing.T, dataDir, name string, n int) {
	t.Helper()
	path := filepath.Join(dataDir, name)
	info, err := os.Stat(path)
	require.NoError(t, err)
	require.NoError(t, os.Truncate(path, info.Size()-int64(n)))
}

func flipByte(t *testing.T, dataDir, name string, offset int64) {
	t.Helper()
	path := filepath.Join(dataDir, name)
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	require.NoError(t, err)
	defer f.Close()

	buf := make([]byte, 1)
	_, err = f.ReadAt(buf, offset)
	require.NoError(t, err)
	buf[0] ^= 0xff
	_, err = f.WriteAt(buf, offset)
	require.NoError(t, err)
}
