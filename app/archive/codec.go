// Package archive opens dump files for writing and reading, with optional
// stream compression chosen from the file extension.
package archive

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	lz4 "github.com/pierrec/lz4/v4"
)

type Codec uint8

const (
	// Auto picks the codec from the extension, and when reading an unknown
	// extension, from the leading magic bytes.
	Auto Codec = iota
	None
	Gzip
	Zstd
	Snappy
	LZ4
)

var codecNames = map[Codec]string{
	Auto:   "auto",
	None:   "none",
	Gzip:   "gzip",
	Zstd:   "zstd",
	Snappy: "snappy",
	LZ4:    "lz4",
}

func (c Codec) String() string {
	if name, ok := codecNames[c]; ok {
		return name
	}
	return fmt.Sprintf("Codec(%d)", c)
}

func ParseCodec(s string) (Codec, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return Auto, nil
	}

	for c, name := range codecNames {
		if name == s {
			return c, nil
		}
	}
	return Auto, fmt.Errorf("unknown compression %q", s)
}

func (c *Codec) UnmarshalText(text []byte) error {
	v, err := ParseCodec(string(text))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

var extensions = map[string]Codec{
	".gz":   Gzip,
	".gzip": Gzip,
	".zst":  Zstd,
	".zstd": Zstd,
	".sz":   Snappy,
	".lz4":  LZ4,
}

// CodecFor returns the codec implied by the extension of path, or None.
func CodecFor(path string) Codec {
	if c, ok := extensions[strings.ToLower(filepath.Ext(path))]; ok {
		return c
	}
	return None
}

var magic = []struct {
	prefix []byte
	codec  Codec
}{
	{[]byte{0x1f, 0x8b}, Gzip},
	{[]byte{0x28, 0xb5, 0x2f, 0xfd}, Zstd},
	{[]byte("\xff\x06\x00\x00sNaPpY"), Snappy},
	{[]byte{0x04, 0x22, 0x4d, 0x18}, LZ4},
}

// Sniff inspects the start of br without consuming it.
func Sniff(br *bufio.Reader) Codec {
	head, _ := br.Peek(10)

	for _, m := range magic {
		if bytes.HasPrefix(head, m.prefix) {
			return m.codec
		}
	}
	return None
}

// NewWriter wraps w with the compressor for c. Closing the result finishes
// the compressed stream but leaves w open.
func NewWriter(w io.Writer, c Codec) (io.WriteCloser, error) {
	switch c {
	case Auto, None:
		return nopWriteCloser{w}, nil
	case Gzip:
		return gzip.NewWriter(w), nil
	case Zstd:
		return zstd.NewWriter(w)
	case Snappy:
		return snappy.NewBufferedWriter(w), nil
	case LZ4:
		return lz4.NewWriter(w), nil
	}
	return nil, fmt.Errorf("unsupported compression %v", c)
}

// NewReader wraps r with the decompressor for c. Auto sniffs the stream.
func NewReader(r io.Reader, c Codec) (io.ReadCloser, error) {
	if c == Auto {
		br := bufio.NewReader(r)
		c, r = Sniff(br), br
	}

	switch c {
	case None:
		return io.NopCloser(r), nil
	case Gzip:
		return gzip.NewReader(r)
	case Zstd:
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		return dec.IOReadCloser(), nil
	case Snappy:
		return io.NopCloser(snappy.NewReader(r)), nil
	case LZ4:
		return io.NopCloser(lz4.NewReader(r)), nil
	}
	return nil, fmt.Errorf("unsupported compression %v", c)
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
