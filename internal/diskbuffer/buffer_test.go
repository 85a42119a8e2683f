package diskbuffer_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/streamforge/pipeline/internal/diskbuffer"
)

func openTestBuffer(t *testing.T) *diskbuffer.Buffer {
	t.Helper()
	b, err := diskbuffer.Open(diskbuffer.Options{
		DataDir:         t.TempDir(),
		MaxBytes:        1 << 20,
		MaxDataFileSize: 4096,
		WhenFull:        diskbuffer.WhenFullBlock,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestWriteThenReadRoundTrip(t *testing.T) {
	b := openTestBuffer(t)

	_, err := b.WriteRecord([]byte("hello"))
	require.NoError(t, err)
	require.NoError(t, b.Flush())

	got, err := b.ReadNext()
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), got)
}

func TestReadNextEmptyWhenNothingWritten(t *testing.T) {
	b := openTestBuffer(t)

	_, err := b.ReadNext()
	require.ErrorIs(t, err, diskbuffer.ErrEmpty)
}

func TestRecordsReadInFIFOOrder(t *testing.T) {
	b := openTestBuffer(t)

	for _, payload := range []string{"a", "b", "c"} {
		_, err := b.WriteRecord([]byte(payload))
		require.NoError(t, err)
	}
	require.NoError(t, b.Flush())

	for _, want := range []string{"a", "b", "c"} {
		got, err := b.ReadNext()
		require.NoError(t, err)
		require.Equal(t, want, string(got))
	}
}

func TestAcknowledgeAdvancesPastReadRecords(t *testing.T) {
	b := openTestBuffer(t)

	for _, payload := range []string{"a", "b"} {
		_, err := b.WriteRecord([]byte(payload))
		require.NoError(t, err)
	}
	require.NoError(t, b.Flush())

	_, err := b.ReadNext()
	require.NoError(t, err)
	_, err = b.ReadNext()
	require.NoError(t, err)

	require.NoError(t, b.Acknowledge(2))

	_, err = b.ReadNext()
	require.ErrorIs(t, err, diskbuffer.ErrEmpty)
}

func TestAcknowledgeRejectsMoreThanPending(t *testing.T) {
	b := openTestBuffer(t)

	_, err := b.WriteRecord([]byte("a"))
	require.NoError(t, err)
	require.NoError(t, b.Flush())

	_, err = b.ReadNext()
	require.NoError(t, err)

	err = b.Acknowledge(5)
	require.Error(t, err)
}

func TestWriteRollsToNewDataFileAtCapacity(t *testing.T) {
	dataDir := t.TempDir()
	b, err := diskbuffer.Open(diskbuffer.Options{
		DataDir:         dataDir,
		MaxBytes:        1 << 20,
		MaxDataFileSize: 64, // small enough that a handful of records roll over
		WhenFull:        diskbuffer.WhenFullBlock,
	})
	require.NoError(t, err)
	defer b.Close()

	for i := 0; i < 20; i++ {
		_, err := b.WriteRecord([]byte("0123456789"))
		require.NoError(t, err)
	}
	require.NoError(t, b.Flush())

	for i := 0; i < 20; i++ {
		got, err := b.ReadNext()
		require.NoError(t, err)
		require.Equal(t, "0123456789", string(got))
	}
}

func TestWriteRecordTooLargeForDataFile(t *testing.T) {
	b, err := diskbuffer.Open(diskbuffer.Options{
		DataDir:         t.TempDir(),
		MaxBytes:        1 << 20,
		MaxDataFileSize: 16,
		WhenFull:        diskbuffer.WhenFullBlock,
	})
	require.NoError(t, err)
	defer b.Close()

	_, err = b.WriteRecord([]byte("this payload is much too large to ever fit"))
	require.ErrorIs(t, err, diskbuffer.ErrTooLarge)
}

func TestWriteRecordDropsNewestWhenFull(t *testing.T) {
	b, err := diskbuffer.Open(diskbuffer.Options{
		DataDir:         t.TempDir(),
		MaxBytes:        40,
		MaxDataFileSize: 4096,
		WhenFull:        diskbuffer.WhenFullDropNewest,
	})
	require.NoError(t, err)
	defer b.Close()

	var lastErr error
	for i := 0; i < 10; i++ {
		_, lastErr = b.WriteRecord([]byte("0123456789"))
		if lastErr != nil {
			break
		}
	}
	require.ErrorIs(t, lastErr, diskbuffer.ErrBufferFull)
}

func TestRecoversAcrossReopen(t *testing.T) {
	dataDir := t.TempDir()

	b, err := diskbuffer.Open(diskbuffer.Options{
		DataDir:         dataDir,
		MaxBytes:        1 << 20,
		MaxDataFileSize: 4096,
		WhenFull:        diskbuffer.WhenFullBlock,
	})
	require.NoError(t, err)

	for _, payload := range []string{"a", "b", "c"} {
		_, err := b.WriteRecord([]byte(payload))
		require.NoError(t, err)
	}
	require.NoError(t, b.Flush())

	got, err := b.ReadNext()
	require.NoError(t, err)
	require.Equal(t, "a", string(got))
	require.NoError(t, b.Acknowledge(1))
	require.NoError(t, b.Close())

	reopened, err := diskbuffer.Open(diskbuffer.Options{
		DataDir:         dataDir,
		MaxBytes:        1 << 20,
		MaxDataFileSize: 4096,
		WhenFull:        diskbuffer.WhenFullBlock,
	})
	require.NoError(t, err)
	defer reopened.Close()

	got, err = reopened.ReadNext()
	require.NoError(t, err)
	require.Equal(t, "b", string(got))

	got, err = reopened.ReadNext()
	require.NoError(t, err)
	require.Equal(t, "c", string(got))
}

func TestRecoversAndKeepsWritingAfterReopen(t *testing.T) {
	dataDir := t.TempDir()

	b, err := diskbuffer.Open(diskbuffer.Options{
		DataDir:         dataDir,
		MaxBytes:        1 << 20,
		MaxDataFileSize: 4096,
		WhenFull:        diskbuffer.WhenFullBlock,
	})
	require.NoError(t, err)
	_, err = b.WriteRecord([]byte("first"))
	require.NoError(t, err)
	require.NoError(t, b.Flush())
	require.NoError(t, b.Close())

	reopened, err := diskbuffer.Open(diskbuffer.Options{
		DataDir:         dataDir,
		MaxBytes:        1 << 20,
		MaxDataFileSize: 4096,
		WhenFull:        diskbuffer.WhenFullBlock,
	})
	require.NoError(t, err)
	defer reopened.Close()

	_, err = reopened.WriteRecord([]byte("second"))
	require.NoError(t, err)
	require.NoError(t, reopened.Flush())

	got, err := reopened.ReadNext()
	require.NoError(t, err)
	require.Equal(t, "first", string(got))

	got, err = reopened.ReadNext()
	require.NoError(t, err)
	require.Equal(t, "second", string(got))
}
