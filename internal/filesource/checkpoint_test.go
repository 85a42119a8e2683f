package filesource

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCheckpointStore_SaveAndReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "checkpoints.json")

	cs, err := LoadCheckpointStore(path)
	require.NoError(t, err)

	fp := Fingerprint{Kind: FingerprintDevInode, Dev: 7, Ino: 42}
	entry := CheckpointEntry{ByteOffset: 1234, LastModified: time.Unix(1000, 0).UTC(), Path: "/var/log/app.log"}
	cs.Set(fp, entry)
	require.NoError(t, cs.Save())

	reloaded, err := LoadCheckpointStore(path)
	require.NoError(t, err)

	got, ok := reloaded.Get(fp)
	require.True(t, ok)
	require.Equal(t, entry.ByteOffset, got.ByteOffset)
	require.Equal(t, entry.Path, got.Path)
	require.True(t, entry.LastModified.Equal(got.LastModified))
}

func TestCheckpointStore_ChecksumFingerprintRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "checkpoints.json")

	cs, err := LoadCheckpointStore(path)
	require.NoError(t, err)

	fp := Fingerprint{Kind: FingerprintChecksum, Checksum: 0xdeadbeef}
	cs.Set(fp, CheckpointEntry{ByteOffset: 99})
	require.NoError(t, cs.Save())

	reloaded, err := LoadCheckpointStore(path)
	require.NoError(t, err)

	got, ok := reloaded.Get(fp)
	require.True(t, ok)
	require.Equal(t, int64(99), got.ByteOffset)
}

func TestLoadCheckpointStore_MissingFileIsEmpty(t *testing.T) {
	dir := t.TempDir()
	cs, err := LoadCheckpointStore(filepath.Join(dir, "nonexistent.json"))
	require.NoError(t, err)

	_, ok := cs.Get(Fingerprint{Kind: FingerprintDevInode, Dev: 1, Ino: 1})
	require.False(t, ok)
}

func TestCheckpointStore_Forget(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "checkpoints.json")
	cs, err := LoadCheckpointStore(path)
	require.NoError(t, err)

	fp := Fingerprint{Kind: FingerprintDevInode, Dev: 1, Ino: 2}
	cs.Set(fp, CheckpointEntry{ByteOffset: 10})
	cs.Forget(fp)

	_, ok := cs.Get(fp)
	require.False(t, ok)
}
