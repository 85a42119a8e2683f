package filesource

import (
	"bytes"
	"compress/gzip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name string, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func writeGzipFile(t *testing.T, dir, name string, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, err := gz.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func TestChecksumFingerprint_SameContentSameFingerprint(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.log", "line one\nline two\nline three\n")
	b := writeFile(t, dir, "b.log", "line one\nline two\nline three\n")

	cfg := Config{Strategy: FingerprintChecksum, ChecksumLines: 2}

	fpA, err := ComputeFingerprint(a, cfg)
	require.NoError(t, err)
	fpB, err := ComputeFingerprint(b, cfg)
	require.NoError(t, err)

	require.Equal(t, fpA, fpB)
}

func TestChecksumFingerprint_DifferentContentDifferentFingerprint(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.log", "aaaaaaaa\nbbbbbbbb\n")
	b := writeFile(t, dir, "b.log", "cccccccc\ndddddddd\n")

	cfg := Config{Strategy: FingerprintChecksum, ChecksumLines: 2}

	fpA, err := ComputeFingerprint(a, cfg)
	require.NoError(t, err)
	fpB, err := ComputeFingerprint(b, cfg)
	require.NoError(t, err)

	require.NotEqual(t, fpA, fpB)
}

func TestChecksumFingerprint_GzipMatchesRaw(t *testing.T) {
	dir := t.TempDir()
	content := "alpha\nbeta\ngamma\n"
	raw := writeFile(t, dir, "raw.log", content)
	gz := writeGzipFile(t, dir, "gz.log.gz", content)

	cfg := Config{Strategy: FingerprintChecksum, ChecksumLines: 2}

	fpRaw, err := ComputeFingerprint(raw, cfg)
	require.NoError(t, err)
	fpGz, err := ComputeFingerprint(gz, cfg)
	require.NoError(t, err)

	require.Equal(t, fpRaw, fpGz)
}

func TestChecksumFingerprint_WouldBeShortRead(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "short.log", "only one line\n")

	cfg := Config{Strategy: FingerprintChecksum, ChecksumLines: 3}

	_, err := ComputeFingerprint(path, cfg)
	require.ErrorIs(t, err, ErrWouldBeShortRead)
}

func TestChecksumFingerprint_IgnoredHeaderBytes(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.log", "HEADER1\nshared line\nanother shared\n")
	b := writeFile(t, dir, "b.log", "HEADER22\nshared line\nanother shared\n")

	// No header bytes skipped: the differing first lines are hashed, so the
	// two files get different fingerprints.
	cfgUntuned := Config{Strategy: FingerprintChecksum, ChecksumLines: 2, IgnoredHeaderBytes: 0}
	fpA, err := ComputeFingerprint(a, cfgUntuned)
	require.NoError(t, err)
	fpB, err := ComputeFingerprint(b, cfgUntuned)
	require.NoError(t, err)
	require.NotEqual(t, fpA, fpB)

	// Skip past "HEADER1\n" (8 bytes) exactly for file a.
	cfgTuned := Config{Strategy: FingerprintChecksum, ChecksumLines: 2, IgnoredHeaderBytes: 8}
	fpA2, err := ComputeFingerprint(a, cfgTuned)
	require.NoError(t, err)
	require.NotEqual(t, fpA, fpA2)
}

func TestDevInodeFingerprint(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "a.log", "hello\n")

	cfg := Config{Strategy: FingerprintDevInode}
	fp, err := ComputeFingerprint(path, cfg)
	require.NoError(t, err)
	require.Equal(t, FingerprintDevInode, fp.Kind)
	require.NotZero(t, fp.Ino)
}
