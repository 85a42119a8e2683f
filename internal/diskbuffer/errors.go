// Package diskbuffer implements the durable, crash-safe, bounded
// single-producer/single-consumer buffer described in spec.md §4.1 (C1): a
// sequence of fixed-prefix data files plus a single always-fsynced ledger.
//
// The wire format and recovery rules are grounded on the teacher's
// internal/store + pkg/leveldb Store/Reader/Writer shape (Open/Write/Read,
// skip-vs-fatal on corruption, Recover()-style resync), generalized to the
// spec's simpler length-prefixed, record-id+checksum framing and explicit
// multi-file ledger instead of leveldb's 32KiB block/chunk format.
package diskbuffer

import (
	"errors"
	"strconv"
)

// Failure taxonomy, spec.md §4.1 "Failure taxonomy at read time". Each is a
// distinct typed error so callers can distinguish skip-forward-worthy
// corruption from a fatal, operator-visible condition.
var (
	// ErrLengthDelimiterZero: the length prefix of a record was zero bytes.
	ErrLengthDelimiterZero = errors.New("diskbuffer: record length prefix is zero")

	// ErrStructuralDecodeFailure: archived record bytes are malformed.
	ErrStructuralDecodeFailure = errors.New("diskbuffer: archived record is structurally invalid")

	// ErrChecksumMismatch: structural decode succeeded but checksum differs.
	ErrChecksumMismatch = errors.New("diskbuffer: record checksum mismatch")

	// ErrPayloadDecodeFailure: the frame was valid but the caller-supplied
	// payload decoder rejected the payload. Always surfaces to the caller;
	// never treated as skip-forward-worthy, since the frame itself was
	// sound (spec.md §4.1 policy table).
	ErrPayloadDecodeFailure = errors.New("diskbuffer: payload decode failed")

	// ErrEmpty is returned by ReadNext when there is no undelivered record.
	ErrEmpty = errors.New("diskbuffer: no undelivered record")

	// ErrFatal wraps a corruption error that could not be safely skipped
	// (the writer has not moved past it) and must surface to the operator,
	// per spec.md §4.1's skip-vs-fatal policy.
	ErrFatal = errors.New("diskbuffer: fatal corruption, operator intervention required")

	// ErrClosed is returned by operations attempted after Close.
	ErrClosed = errors.New("diskbuffer: buffer is closed")

	// ErrTooLarge is returned by WriteRecord when a single record would
	// never fit under MaxDataFileSize regardless of rolling.
	ErrTooLarge = errors.New("diskbuffer: record larger than max data file size")

	// ErrBufferFull is returned by WriteRecord under WhenFullDropNewest
	// policy once TotalBufferSize would exceed MaxBytes.
	ErrBufferFull = errors.New("diskbuffer: buffer full, dropping newest record")
)

// FatalError carries the underlying skip-vs-fatal corruption error plus the
// byte offset at which it was detected, for operator diagnostics.
type FatalError struct {
	Offset int64
	Err    error
}

func (e *FatalError) Error() string {
	return "diskbuffer: fatal at offset " + strconv.FormatInt(e.Offset, 10) + ": " + e.Err.Error()
}

func (e *FatalError) Unwrap() error { return errors.Join(ErrFatal, e.Err) }
