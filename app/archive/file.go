package archive

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/redisdump/redis-dump-go/app/utils"
)

// Stdio is the path that selects the process streams instead of a file.
const Stdio = "-"

const bufferSize = 64 * 1024

// Create opens path for writing a dump, creating missing parent
// directories. Stdio writes to stdout, which Close leaves open. Auto
// resolves from the extension.
func Create(path string, c Codec, stdout io.Writer) (io.WriteCloser, error) {
	var (
		dst     io.Writer
		closers []io.Closer
	)

	if path == Stdio {
		dst = stdout
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create output directory: %w", err)
		}

		f, err := os.Create(path)
		if err != nil {
			return nil, err
		}
		dst, closers = f, []io.Closer{f}
	}

	if c == Auto {
		c = CodecFor(path)
	}

	buf := bufio.NewWriterSize(dst, bufferSize)

	w, err := NewWriter(buf, c)
	if err != nil {
		closeAll(closers)
		return nil, err
	}

	return &sink{WriteCloser: w, buf: buf, closers: closers}, nil
}

// Open opens a dump for reading. Stdio reads from stdin. Auto resolves from
// the extension, then from the content.
func Open(path string, c Codec, stdin io.Reader) (io.ReadCloser, error) {
	var (
		src     io.Reader
		closers []io.Closer
	)

	if path == Stdio {
		src = stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		src, closers = f, []io.Closer{f}
	}

	if c == Auto {
		if ext := CodecFor(path); ext != None {
			c = ext
		}
	}

	r, err := NewReader(bufio.NewReaderSize(src, bufferSize), c)
	if err != nil {
		closeAll(closers)
		return nil, fmt.Errorf("open %s as %v: %w", path, c, err)
	}

	return &source{ReadCloser: r, closers: closers}, nil
}

type sink struct {
	io.WriteCloser
	buf     *bufio.Writer
	closers []io.Closer
}

// Close finishes the compressed stream, flushes and closes the file.
func (s *sink) Close() error {
	err := s.WriteCloser.Close()
	err = errors.Join(err, utils.Flush(s.buf))
	return errors.Join(err, closeAll(s.closers))
}

type source struct {
	io.ReadCloser
	closers []io.Closer
}

func (s *source) Close() error {
	return errors.Join(s.ReadCloser.Close(), closeAll(s.closers))
}

func closeAll(closers []io.Closer) error {
	var err error
	for _, c := range closers {
		err = errors.Join(err, c.Close())
	}
	return err
}
