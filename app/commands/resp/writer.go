package resp

import (
	"bufio"
	"io"
	"strconv"
)

// Writer buffers outgoing values; nothing reaches the wire until Flush.
type Writer struct {
	wr      *bufio.Writer
	scratch []byte
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{wr: bufio.NewWriter(w)}
}

func (w *Writer) WriteValue(v Value) error {
	b, err := v.Marshal()

	if err != nil {
		return err
	}

	_, err = w.wr.Write(b)
	return err
}

// WriteCommand encodes args as an array of bulk strings, the form every
// request to the server takes.
func (w *Writer) WriteCommand(args ...string) error {
	w.scratch = w.scratch[:0]
	w.scratch = append(w.scratch, byte(Array))
	w.scratch = strconv.AppendInt(w.scratch, int64(len(args)), 10)
	w.scratch = append(w.scratch, '\r', '\n')

	if _, err := w.wr.Write(w.scratch); err != nil {
		return err
	}

	for _, arg := range args {
		w.scratch = w.scratch[:0]
		w.scratch = append(w.scratch, byte(BulkString))
		w.scratch = strconv.AppendInt(w.scratch, int64(len(arg)), 10)
		w.scratch = append(w.scratch, '\r', '\n')

		if _, err := w.wr.Write(w.scratch); err != nil {
			return err
		}

		if _, err := w.wr.WriteString(arg); err != nil {
			return err
		}

		if _, err := w.wr.WriteString("\r\n"); err != nil {
			return err
		}
	}

	return nil
}

func (w *Writer) Flush() error {
	return w.wr.Flush()
}
