package filesource

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"io"
)

// compressionAlgorithm describes one supported compression format. The
// table is ordered by ascending magic-byte length so magic-sniffing a short
// file never over-reads, per spec.md §4.2.
type compressionAlgorithm struct {
	name  string
	magic []byte
}

var supportedCompression = []compressionAlgorithm{
	{name: "gzip", magic: []byte{0x1f, 0x8b}},
}

// detectCompression peeks at r's leading bytes and reports which supported
// algorithm, if any, the stream is compressed with. It never consumes bytes
// from r: callers continue reading from the start of the (possibly
// compressed) stream afterward.
func detectCompression(r *bufio.Reader) (*compressionAlgorithm, error) {
	for i := range supportedCompression {
		algo := &supportedCompression[i]
		magic, err := r.Peek(len(algo.magic))
		if err != nil {
			// Not enough bytes yet for this magic; a longer one won't
			// fare better, and a shorter one was already checked.
			continue
		}
		if bytes.Equal(magic, algo.magic) {
			return algo, nil
		}
	}
	return nil, nil
}

// decompressingReader wraps f in a reader that transparently decompresses
// it if its magic bytes indicate a supported compression algorithm.
func decompressingReader(f io.Reader) (*bufio.Reader, error) {
	br := bufio.NewReader(f)

	algo, err := detectCompression(br)
	if err != nil {
		return nil, err
	}
	if algo == nil {
		return br, nil
	}

	switch algo.name {
	case "gzip":
		gz, err := gzip.NewReader(br)
		if err != nil {
			return nil, err
		}
		return bufio.NewReader(gz), nil
	default:
		return br, nil
	}
}
