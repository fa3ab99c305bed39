package utils

import (
	"bufio"
	"io"
)

type flusher interface {
	Flush() error
}

// Flush pushes buffered bytes of w down to the underlying stream. Writers
// that do not buffer are left alone.
func Flush(w io.Writer) error {
	// If the writer is part of a *bufio.ReadWriter, flush its Writer field
	if rw, ok := w.(*bufio.ReadWriter); ok {
		return rw.Writer.Flush()
	}

	// Buffered writers and stream compressors
	if f, ok := w.(flusher); ok {
		return f.Flush()
	}

	return nil
}
