package resp

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
)

// Reader decodes RESP2 values from a stream. Bulk strings are read by
// their declared length so binary payloads containing CRLF survive.
type Reader struct {
	rd       *bufio.Reader
	consumed int
}

var InvalidDataType = errors.New("invalid Data Type")

var (
	errInvalidBulkString = errors.New("invalid bulk string")
	errInvalidArray      = errors.New("invalid array")
	errInvalidInteger    = errors.New("invalid integer")
	errMissingCRLF       = errors.New("missing CRLF terminator")
)

func NewReader(input io.Reader) *Reader {
	if br, ok := input.(*bufio.Reader); ok {
		return &Reader{rd: br}
	}

	return &Reader{rd: bufio.NewReader(input)}
}

// Buffered reports how many bytes are already read from the underlying
// stream but not yet decoded.
func (r *Reader) Buffered() int {
	return r.rd.Buffered()
}

// ReadValue reads one complete value and reports how many bytes it occupied
// on the wire.
func (r *Reader) ReadValue() (value Value, n int, err error) {
	start := r.consumed
	value, err = r.readValue()
	return value, r.consumed - start, err
}

func (r *Reader) readValue() (Value, error) {
	rpType, err := r.rd.ReadByte()

	if err != nil {
		return nullValue, err
	}

	r.consumed++
	t := DataType(rpType)

	switch t {
	case SimpleString, SimpleError, Boolean:
		return r.readSimpleValue(t)
	case Null:
		if _, err := r.readLine(); err != nil {
			return nullValue, unexpected(err)
		}
		return nullValue, nil
	case Integer:
		return r.readInteger()
	case BulkString:
		return r.readBulkString()
	case Array:
		return r.readArrayValue()
	}

	return nullValue, fmt.Errorf("%w: %q", InvalidDataType, rpType)
}

func (r *Reader) readSimpleValue(typ DataType) (Value, error) {
	line, err := r.readLine()

	if err != nil {
		return nullValue, unexpected(err)
	}

	return Value{
		Type: typ,
		Raw:  line,
	}, nil
}

func (r *Reader) readInteger() (Value, error) {
	line, err := r.readLine()

	if err != nil {
		return nullValue, unexpected(err)
	}

	if _, err := strconv.ParseInt(string(line), 10, 64); err != nil {
		return nullValue, errInvalidInteger
	}

	return Value{
		Type: Integer,
		Raw:  line,
	}, nil
}

func (r *Reader) readBulkString() (Value, error) {
	length, err := r.readInt()

	if err != nil {
		return nullValue, errInvalidBulkString
	}

	if length < 0 {
		return BulkNullStringValue(), nil
	}

	content := make([]byte, length+2)

	if _, err := io.ReadFull(r.rd, content); err != nil {
		return nullValue, unexpected(err)
	}

	r.consumed += len(content)

	if !bytes.HasSuffix(content, []byte("\r\n")) {
		return nullValue, errMissingCRLF
	}

	return Value{
		Type: BulkString,
		Raw:  content[:length],
	}, nil
}

func (r *Reader) readArrayValue() (Value, error) {
	length, err := r.readInt()

	if err != nil {
		return nullValue, errInvalidArray
	}

	if length < 0 {
		return NullArrayValue(), nil
	}

	values := make([]Value, 0, length)

	for i := 0; i < length; i++ {
		value, err := r.readValue()

		if err != nil {
			return nullValue, unexpected(err)
		}

		values = append(values, value)
	}

	return Value{
		Type:   Array,
		Values: values,
	}, nil
}

func (r *Reader) readInt() (int, error) {
	line, err := r.readLine()

	if err != nil {
		return 0, err
	}

	i, err := strconv.ParseInt(string(line), 10, 64)

	if err != nil {
		return 0, err
	}

	return int(i), nil
}

// readLine returns the bytes up to the next CRLF, without the terminator.
func (r *Reader) readLine() ([]byte, error) {
	line, err := r.rd.ReadBytes('\n')
	r.consumed += len(line)

	if err != nil {
		return nil, err
	}

	if len(line) < 2 || line[len(line)-2] != '\r' {
		return nil, errMissingCRLF
	}

	return line[:len(line)-2], nil
}

// unexpected turns a clean EOF in the middle of a value into
// io.ErrUnexpectedEOF so callers can tell truncation from end of stream.
func unexpected(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}
