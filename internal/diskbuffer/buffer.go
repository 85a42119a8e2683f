package diskbuffer

import (
	"fmt"
	"os"
	"sync"
)

// WhenFullPolicy controls what WriteRecord does once TotalBufferSize would
// exceed MaxBytes, per the config surface in spec.md §6.
type WhenFullPolicy int

const (
	WhenFullBlock WhenFullPolicy = iota
	WhenFullDropNewest
)

// Options configures a Buffer, mirroring spec.md §6's disk-buffer config
// object.
type Options struct {
	DataDir         string
	MaxBytes        uint64
	MaxDataFileSize uint64
	WhenFull        WhenFullPolicy
}

type pendingRecord struct {
	id       uint64
	fileID   uint64
	frameLen uint64
}

// Buffer is the durable single-producer/single-consumer buffer from
// spec.md §4.1.
type Buffer struct {
	opts Options

	ledgerMu sync.Mutex
	ledger   *Ledger
	notFull  *sync.Cond

	writerMu     sync.Mutex
	writerFile   *os.File
	writerFileID uint64
	writerOffset int64

	readerMu     sync.Mutex
	readerFile   *os.File
	readerFileID uint64
	readerOffset int64
	pendingAck   []pendingRecord

	closed bool
}

// Open loads or initializes the ledger and performs the startup recovery
// described in spec.md §4.1: reopening the writer's current file, validating
// its tail, and reopening the reader at its last acknowledged position.
func Open(opts Options) (*Buffer, error) {
	if opts.MaxDataFileSize == 0 {
		return nil, fmt.Errorf("diskbuffer: MaxDataFileSize must be > 0")
	}
	if err := os.MkdirAll(opts.DataDir, 0o755); err != nil {
		return nil, err
	}

	ledger, err := loadLedger(opts.DataDir)
	if err != nil {
		return nil, err
	}

	b := &Buffer{opts: opts, ledger: ledger}
	b.notFull = sync.NewCond(&b.ledgerMu)

	if err := b.recoverWriter(); err != nil {
		return nil, err
	}
	if err := b.recoverReader(); err != nil {
		return nil, err
	}
	if err := b.ledger.save(b.opts.DataDir); err != nil {
		return nil, err
	}
	return b, nil
}

// recoverWriter implements spec.md §4.1 step 2 and the "Writer detection of
// torn tails" rules.
func (b *Buffer) recoverWriter() error {
	fileID := b.ledger.CurrentWriterFileID
	path := dataFilePath(b.opts.DataDir, fileID)

	records, corruptAt, corruptErr, err := scanFile(path)
	if err != nil {
		return err
	}

	var highestID uint64
	if len(records) > 0 {
		highestID = records[len(records)-1].RecordID
	}

	expectedHighest := b.ledger.NextWriterRecordID - 1
	lastRecordValid := corruptErr == nil
	idConsistent := lastRecordValid && highestID == expectedHighest

	switch {
	case idConsistent:
		// Clean reopen: keep writing to the existing file at its end.
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
		if err != nil {
			return err
		}
		b.writerFile = f
		b.writerFileID = fileID
		b.writerOffset = corruptAt // scanFile's returned offset == file size when no corruption

	case lastRecordValid && highestID > expectedHighest:
		// A write made it to disk but the ledger bump did not land: advance
		// the ledger to preserve monotonicity; do not reset.
		b.ledger.NextWriterRecordID = highestID + 1
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
		if err != nil {
			return err
		}
		b.writerFile = f
		b.writerFileID = fileID
		b.writerOffset = corruptAt

	default:
		// Either the last record is structurally corrupt/torn, or the
		// on-disk highest id is behind the ledger's: a writer reset. Roll
		// forward to a fresh file; the corrupted tail is abandoned, never
		// rewritten.
		b.ledger.NextWriterRecordID = highestID + 1
		newFileID := fileID + 1
		f, err := os.OpenFile(dataFilePath(b.opts.DataDir, newFileID), os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
		if err != nil {
			return err
		}
		b.writerFile = f
		b.writerFileID = newFileID
		b.writerOffset = 0
		b.ledger.CurrentWriterFileID = newFileID
	}

	return nil
}

// recoverReader implements spec.md §4.1 step 3: scan forward from
// CurrentReaderFileID to find NextReaderRecordID, advancing across fully
// consumed files if the ledger's position is stale.
func (b *Buffer) recoverReader() error {
	fileID := b.ledger.CurrentReaderFileID
	for {
		path := dataFilePath(b.opts.DataDir, fileID)
		records, _, _, err := scanFile(path)
		if err != nil {
			return err
		}

		offset := int64(0)
		found := false
		for _, r := range records {
			if r.RecordID == b.ledger.NextReaderRecordID {
				offset = r.Offset
				found = true
				break
			}
		}

		if found || len(records) == 0 {
			f, err := os.OpenFile(path, os.O_RDONLY|os.O_CREATE, 0o644)
			if err != nil {
				return err
			}
			b.readerFile = f
			b.readerFileID = fileID
			b.readerOffset = offset
			b.ledger.CurrentReaderFileID = fileID
			return nil
		}

		// This file is fully consumed (its highest id is below what we're
		// looking for) and there's a next file to check.
		if fileID >= b.ledger.CurrentWriterFileID {
			// Shouldn't happen in a consistent ledger; fall back to EOF of
			// this file so we don't wedge forever.
			f, err := os.OpenFile(path, os.O_RDONLY|os.O_CREATE, 0o644)
			if err != nil {
				return err
			}
			b.readerFile = f
			b.readerFileID = fileID
			if len(records) > 0 {
				last := records[len(records)-1]
				b.readerOffset = last.Offset + last.FrameLen
			}
			b.ledger.CurrentReaderFileID = fileID
			return nil
		}
		fileID++
	}
}

// WriteRecord appends one record, returning the number of bytes written to
// the data file. It blocks under WhenFullBlock policy once TotalBufferSize
// would exceed MaxBytes, and returns ErrBufferFull under WhenFullDropNewest.
func (b *Buffer) WriteRecord(payload []byte) (uint64, error) {
	b.writerMu.Lock()
	defer b.writerMu.Unlock()

	if b.closed {
		return 0, ErrClosed
	}

	b.ledgerMu.Lock()
	recordID := b.ledger.NextWriterRecordID
	b.ledgerMu.Unlock()

	frame := encodeFrame(recordID, payload)
	frameLen := uint64(len(frame))

	if frameLen > b.opts.MaxDataFileSize {
		return 0, ErrTooLarge
	}

	if err := b.reserveSpace(frameLen); err != nil {
		return 0, err
	}

	if b.writerOffset+int64(frameLen) > int64(b.opts.MaxDataFileSize) {
		if err := b.rollWriter(); err != nil {
			return 0, err
		}
	}

	if _, err := b.writerFile.Write(frame); err != nil {
		return 0, err
	}
	b.writerOffset += int64(frameLen)

	b.ledgerMu.Lock()
	b.ledger.NextWriterRecordID++
	b.ledger.TotalBufferSize += frameLen
	saveErr := b.ledger.save(b.opts.DataDir)
	b.ledgerMu.Unlock()
	if saveErr != nil {
		return 0, saveErr
	}

	return frameLen, nil
}

// reserveSpace enforces MaxBytes backpressure per spec.md §4.1's "Size
// accounting": block or reject once TotalBufferSize would exceed max_bytes.
func (b *Buffer) reserveSpace(frameLen uint64) error {
	b.ledgerMu.Lock()
	defer b.ledgerMu.Unlock()

	for b.opts.MaxBytes > 0 && b.ledger.TotalBufferSize+frameLen > b.opts.MaxBytes {
		if b.opts.WhenFull == WhenFullDropNewest {
			return ErrBufferFull
		}
		if b.closed {
			return ErrClosed
		}
		b.notFull.Wait()
	}
	return nil
}

func (b *Buffer) rollWriter() error {
	newFileID := b.writerFileID + 1
	f, err := os.OpenFile(dataFilePath(b.opts.DataDir, newFileID), os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	if err := b.writerFile.Close(); err != nil {
		f.Close()
		return err
	}

	b.writerFile = f
	b.writerFileID = newFileID
	b.writerOffset = 0

	b.ledgerMu.Lock()
	b.ledger.CurrentWriterFileID = newFileID
	b.ledgerMu.Unlock()
	return nil
}

// Flush makes all prior writes durable and visible to the reader.
func (b *Buffer) Flush() error {
	b.writerMu.Lock()
	defer b.writerMu.Unlock()

	if b.closed {
		return ErrClosed
	}
	if err := b.writerFile.Sync(); err != nil {
		return err
	}

	b.ledgerMu.Lock()
	defer b.ledgerMu.Unlock()
	return b.ledger.save(b.opts.DataDir)
}

// ReadNext returns the next undelivered record, ErrEmpty if none is
// available yet, or a fatal error on unrecoverable corruption.
func (b *Buffer) ReadNext() ([]byte, error) {
	b.readerMu.Lock()
	defer b.readerMu.Unlock()

	if b.closed {
		return nil, ErrClosed
	}

	for {
		lenBuf := make([]byte, lengthPrefixSize)
		n, _ := b.readerFile.ReadAt(lenBuf, b.readerOffset)
		if n < lengthPrefixSize {
			advanced, err := b.tryAdvanceReaderFile()
			if err != nil {
				return nil, err
			}
			if !advanced {
				return nil, ErrEmpty
			}
			continue
		}

		length := leUint64(lenBuf)
		sealed := b.readerFileIsSealed()

		if length == 0 {
			if sealed {
				if _, err := b.tryAdvanceReaderFile(); err != nil {
					return nil, err
				}
				continue
			}
			return nil, &FatalError{Offset: b.readerOffset, Err: ErrLengthDelimiterZero}
		}

		archive := make([]byte, length)
		n, _ = b.readerFile.ReadAt(archive, b.readerOffset+lengthPrefixSize)
		if uint64(n) < length {
			if sealed {
				if _, err := b.tryAdvanceReaderFile(); err != nil {
					return nil, err
				}
				continue
			}
			return nil, ErrEmpty
		}

		decoded, derr := decodeArchive(archive)
		if derr != nil {
			if sealed {
				if _, err := b.tryAdvanceReaderFile(); err != nil {
					return nil, err
				}
				continue
			}
			return nil, &FatalError{Offset: b.readerOffset, Err: ErrStructuralDecodeFailure}
		}
		if !decoded.verifyChecksum() {
			if sealed {
				if _, err := b.tryAdvanceReaderFile(); err != nil {
					return nil, err
				}
				continue
			}
			return nil, &FatalError{Offset: b.readerOffset, Err: ErrChecksumMismatch}
		}

		frameLen := lengthPrefixSize + int64(length)

		b.ledgerMu.Lock()
		alreadyAcked := decoded.RecordID < b.ledger.NextReaderRecordID
		b.ledgerMu.Unlock()
		if alreadyAcked {
			b.readerOffset += frameLen
			continue
		}

		b.pendingAck = append(b.pendingAck, pendingRecord{
			id:       decoded.RecordID,
			fileID:   b.readerFileID,
			frameLen: uint64(frameLen),
		})
		b.readerOffset += frameLen

		return decoded.Payload, nil
	}
}

func (b *Buffer) readerFileIsSealed() bool {
	b.ledgerMu.Lock()
	defer b.ledgerMu.Unlock()
	return b.readerFileID < b.ledger.CurrentWriterFileID
}

// tryAdvanceReaderFile moves the reader to the next data file if the current
// one is sealed (the writer has moved past it). Returns false if there is no
// next file yet.
func (b *Buffer) tryAdvanceReaderFile() (bool, error) {
	if !b.readerFileIsSealed() {
		return false, nil
	}
	nextID := b.readerFileID + 1
	f, err := os.OpenFile(dataFilePath(b.opts.DataDir, nextID), os.O_RDONLY|os.O_CREATE, 0o644)
	if err != nil {
		return false, err
	}
	b.readerFile.Close()
	b.readerFile = f
	b.readerFileID = nextID
	b.readerOffset = 0
	return true, nil
}

// Acknowledge confirms the next n previously-read records will never be
// re-read, advancing the ledger's reader position and reclaiming storage for
// fully-consumed data files.
func (b *Buffer) Acknowledge(n int) error {
	b.readerMu.Lock()
	defer b.readerMu.Unlock()

	if b.closed {
		return ErrClosed
	}
	if n <= 0 {
		return nil
	}
	if n > len(b.pendingAck) {
		return fmt.Errorf("diskbuffer: acknowledge(%d) exceeds %d pending reads", n, len(b.pendingAck))
	}

	acked := b.pendingAck[:n]
	b.pendingAck = append([]pendingRecord(nil), b.pendingAck[n:]...)

	var freed uint64
	lastID := acked[len(acked)-1].id
	lastFileID := acked[len(acked)-1].fileID
	for _, a := range acked {
		freed += a.frameLen
	}

	minReferencedFile := lastFileID
	if len(b.pendingAck) > 0 && b.pendingAck[0].fileID < minReferencedFile {
		minReferencedFile = b.pendingAck[0].fileID
	}
	if b.readerFileID < minReferencedFile {
		minReferencedFile = b.readerFileID
	}

	b.ledgerMu.Lock()
	b.ledger.NextReaderRecordID = lastID + 1
	if freed > b.ledger.TotalBufferSize {
		b.ledger.TotalBufferSize = 0
	} else {
		b.ledger.TotalBufferSize -= freed
	}
	oldReaderFile := b.ledger.CurrentReaderFileID
	b.ledger.CurrentReaderFileID = minReferencedFile
	if err := b.ledger.save(b.opts.DataDir); err != nil {
		b.ledgerMu.Unlock()
		return err
	}
	b.ledgerMu.Unlock()
	b.notFull.Broadcast()

	for id := oldReaderFile; id < minReferencedFile; id++ {
		_ = os.Remove(dataFilePath(b.opts.DataDir, id))
	}

	return nil
}

// Close flushes and closes the buffer's file handles.
func (b *Buffer) Close() error {
	b.writerMu.Lock()
	b.readerMu.Lock()
	defer b.readerMu.Unlock()
	defer b.writerMu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	var firstErr error
	if err := b.writerFile.Sync(); err != nil && firstErr == nil {
		firstErr = err
	}
	b.ledgerMu.Lock()
	if err := b.ledger.save(b.opts.DataDir); err != nil && firstErr == nil {
		firstErr = err
	}
	b.ledgerMu.Unlock()
	b.notFull.Broadcast()

	if err := b.writerFile.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := b.readerFile.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
