package diskbuffer

import (
	"fmt"
	"os"
	"path/filepath"
)

// dataFileName returns "buffer-NNNNNNNN.dat" per spec.md §6.
func dataFileName(fileID uint64) string {
	return fmt.Sprintf("buffer-%08d.dat", fileID)
}

func dataFilePath(dataDir string, fileID uint64) string {
	return filepath.Join(dataDir, dataFileName(fileID))
}

// scannedRecord describes one structurally sound record found while
// scanning a data file from the start.
type scannedRecord struct {
	RecordID uint64
	Offset   int64 // offset of the length prefix
	FrameLen int64 // total frame length (prefix + archive)
	Payload  []byte
	Valid    bool // always true: scanFile stops at the first corrupt frame
}

// scanFile reads every frame in a data file from the start, stopping at the
// first corruption or EOF. It returns the valid records read, whether a
// corruption was hit, and the byte offset of that corruption (or the file
// size, if none).
func scanFile(path string) (records []scannedRecord, corruptAt int64, corruptErr error, err error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, nil, nil
		}
		return nil, 0, nil, err
	}
	defer f.Close()

	var offset int64
	lenBuf := make([]byte, lengthPrefixSize)
	for {
		n, rerr := f.ReadAt(lenBuf, offset)
		if rerr != nil && n < lengthPrefixSize {
			// Clean EOF at a frame boundary, or a short read: either way
			// there's nothing more to parse.
			break
		}

		length := leUint64(lenBuf)
		if length == 0 {
			return records, offset, ErrLengthDelimiterZero, nil
		}

		archive := make([]byte, length)
		n, rerr = f.ReadAt(archive, offset+lengthPrefixSize)
		if rerr != nil || uint64(n) < length {
			return records, offset, ErrStructuralDecodeFailure, nil
		}

		decoded, derr := decodeArchive(archive)
		if derr != nil {
			return records, offset, ErrStructuralDecodeFailure, nil
		}
		if !decoded.verifyChecksum() {
			return records, offset, ErrChecksumMismatch, nil
		}

		records = append(records, scannedRecord{
			RecordID: decoded.RecordID,
			Offset:   offset,
			FrameLen: lengthPrefixSize + int64(length),
			Payload:  decoded.Payload,
			Valid:    true,
		})
		offset += lengthPrefixSize + int64(length)
	}

	return records, offset, nil, nil
}

func leUint64(b []byte) uint64 {
	return uint64(b[0]) | uint64(b[1])<<8 | uint64(b[2])<<16 | uint64(b[3])<<24 |
		uint64(b[4])<<32 | uint64(b[5])<<40 | uint64(b[6])<<48 | uint64(b[7])<<56
}
