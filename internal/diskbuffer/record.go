package diskbuffer

import (
	"encoding/binary"
	"hash/crc32"
)

// On-disk frame, spec.md §4.1:
//
//	length: u64 LE          -- byte length of the archived record that follows
//	archived record:
//	  record_id: u64 LE
//	  checksum:  u32 LE      -- crc32(IEEE) over (record_id bytes || payload)
//	  payload:   remaining bytes
//
// The checksum uses the same hash/crc32 IEEE table the teacher's pkg/leveldb
// CRC helper wraps (CRCStandard), used directly rather than reimplemented.
const (
	lengthPrefixSize = 8
	recordIDSize     = 8
	checksumSize     = 4
	archiveHeaderSize = recordIDSize + checksumSize
)

// encodeFrame returns the full on-disk frame (length prefix + archive) for
// one record.
func encodeFrame(recordID uint64, payload []byte) []byte {
	archiveLen := archiveHeaderSize + len(payload)
	frame := make([]byte, lengthPrefixSize+archiveLen)

	binary.LittleEndian.PutUint64(frame[0:8], uint64(archiveLen))
	binary.LittleEndian.PutUint64(frame[8:16], recordID)

	checksum := computeChecksum(recordID, payload)
	binary.LittleEndian.PutUint32(frame[16:20], checksum)
	copy(frame[lengthPrefixSize+archiveHeaderSize:], payload)

	return frame
}

func computeChecksum(recordID uint64, payload []byte) uint32 {
	var idBytes [8]byte
	binary.LittleEndian.PutUint64(idBytes[:], recordID)

	h := crc32.NewIEEE()
	h.Write(idBytes[:])
	h.Write(payload)
	return h.Sum32()
}

// decodedRecord is a successfully structurally-decoded (but not necessarily
// checksum-valid) archived record.
type decodedRecord struct {
	RecordID uint64
	Checksum uint32
	Payload  []byte
}

// decodeArchive parses the archive bytes (everything after the length
// prefix). It returns ErrStructuralDecodeFailure if the bytes are too short
// to contain a header.
func decodeArchive(archive []byte) (decodedRecord, error) {
	if len(archive) < archiveHeaderSize {
		return decodedRecord{}, ErrStructuralDecodeFailure
	}
	return decodedRecord{
		RecordID: binary.LittleEndian.Uint64(archive[0:8]),
		Checksum: binary.LittleEndian.Uint32(archive[8:12]),
		Payload:  archive[archiveHeaderSize:],
	}, nil
}

// verifyChecksum reports whether the decoded record's stored checksum
// matches its recomputed checksum.
func (d decodedRecord) verifyChecksum() bool {
	return d.Checksum == computeChecksum(d.RecordID, d.Payload)
}
