package diskbuffer

import (
	"encoding/binary"
	"errors"
	"io"
	"os"
	"path/filepath"
)

// ledgerFileName is the fixed name within DataDir, per spec.md §6.
const ledgerFileName = "ledger"

// ledgerMagic guards against mistaking an unrelated file for a ledger.
const ledgerMagic = uint32(0x4c444752) // "LDGR" (little-endian read back)

// Ledger holds the disk buffer's global progress, always fsynced on every
// mutation per spec.md §4.1 and §6.
type Ledger struct {
	NextWriterRecordID  uint64
	NextReaderRecordID  uint64
	CurrentReaderFileID uint64
	CurrentWriterFileID uint64
	TotalBufferSize     uint64
}

// ledgerSize is the fixed on-disk record size: magic + 5 uint64 fields.
const ledgerSize = 4 + 5*8

func newLedger() *Ledger {
	return &Ledger{
		NextWriterRecordID:  1,
		NextReaderRecordID:  1,
		CurrentReaderFileID: 1,
		CurrentWriterFileID: 1,
	}
}

func (l *Ledger) encode() []byte {
	buf := make([]byte, ledgerSize)
	binary.LittleEndian.PutUint32(buf[0:4], ledgerMagic)
	binary.LittleEndian.PutUint64(buf[4:12], l.NextWriterRecordID)
	binary.LittleEndian.PutUint64(buf[12:20], l.NextReaderRecordID)
	binary.LittleEndian.PutUint64(buf[20:28], l.CurrentReaderFileID)
	binary.LittleEndian.PutUint64(buf[28:36], l.CurrentWriterFileID)
	binary.LittleEndian.PutUint64(buf[36:44], l.TotalBufferSize)
	return buf
}

func decodeLedger(buf []byte) (*Ledger, error) {
	if len(buf) < ledgerSize {
		return nil, errors.New("diskbuffer: ledger file truncated")
	}
	if binary.LittleEndian.Uint32(buf[0:4]) != ledgerMagic {
		return nil, errors.New("diskbuffer: ledger magic mismatch")
	}
	return &Ledger{
		NextWriterRecordID:  binary.LittleEndian.Uint64(buf[4:12]),
		NextReaderRecordID:  binary.LittleEndian.Uint64(buf[12:20]),
		CurrentReaderFileID: binary.LittleEndian.Uint64(buf[20:28]),
		CurrentWriterFileID: binary.LittleEndian.Uint64(buf[28:36]),
		TotalBufferSize:     binary.LittleEndian.Uint64(buf[36:44]),
	}, nil
}

// loadLedger reads the ledger from dataDir, or returns a freshly initialized
// one if it doesn't exist yet.
func loadLedger(dataDir string) (*Ledger, error) {
	f, err := os.Open(ledgerPath(dataDir))
	if errors.Is(err, os.ErrNotExist) {
		return newLedger(), nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	buf, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	return decodeLedger(buf)
}

// save writes and fsyncs the ledger, per spec.md's "always fsynced" rule.
// It writes to a temp file and renames, so a crash mid-write never leaves a
// torn ledger behind.
func (l *Ledger) save(dataDir string) error {
	tmp := ledgerPath(dataDir) + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(l.encode()); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, ledgerPath(dataDir))
}

func ledgerPath(dataDir string) string {
	return filepath.Join(dataDir, ledgerFileName)
}
