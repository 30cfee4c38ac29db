package compression

import (
	"bufio"
	"compress/gzip"
	"io"

	"github.com/klauspost/compress/zstd"
)

// DetectStream peeks the leading magic bytes of br without consuming them.
// Unlike DetectType, unrecognized data is reported as TypeNone so that
// plain streams pass through untouched.
func DetectStream(br *bufio.Reader) Type {
	magic, _ := br.Peek(4)
	if len(magic) >= 4 && magic[0] == 0x28 && magic[1] == 0xb5 && magic[2] == 0x2f && magic[3] == 0xfd {
		return TypeZstd
	}
	if len(magic) >= 2 && magic[0] == 0x1f && magic[1] == 0x8b {
		return TypeGzip
	}
	return TypeNone
}

// NewStreamReader returns a reader over the decompressed contents of br,
// choosing the codec by magic bytes. Plain streams are returned unchanged
// with a no-op closer. The returned closer releases decoder state only;
// the caller still owns the underlying source.
func NewStreamReader(br *bufio.Reader) (io.Reader, io.Closer, error) {
	switch DetectStream(br) {
	case TypeZstd:
		zr, err := zstd.NewReader(br)
		if err != nil {
			return nil, nil, err
		}
		return zr, closerFunc(func() error { zr.Close(); return nil }), nil
	case TypeGzip:
		gr, err := gzip.NewReader(br)
		if err != nil {
			return nil, nil, err
		}
		return gr, gr, nil
	default:
		return br, closerFunc(func() error { return nil }), nil
	}
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
