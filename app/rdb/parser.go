// Package rdb reads RDB snapshot files key by key and converts them into
// records.
package rdb

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/redisdump/redis-dump-go/app/record"
)

const (
	REDIS_RDB_6BITLEN  = 0
	REDIS_RDB_14BITLEN = 1
	REDIS_RDB_32BITLEN = 0x80
	REDIS_RDB_64BITLEN = 0x81
	REDIS_RDB_ENCVAL   = 3
)

const (
	REDIS_RDB_ENC_INT8  = 0
	REDIS_RDB_ENC_INT16 = 1
	REDIS_RDB_ENC_INT32 = 2
	REDIS_RDB_ENC_LZF   = 3
)

// maxLength bounds a single string or collection so a corrupt prefix
// cannot trigger a huge allocation.
const maxLength = 512 << 20

var (
	ErrInvalidFile = errors.New("invalid RDB file")
	ErrUnsupported = errors.New("unsupported RDB content")
)

type Header struct {
	Magic   string
	Version int
}

// Parser walks an RDB stream. Call Next until it returns io.EOF.
type Parser struct {
	reader *bufio.Reader
	state  ParserState

	Header Header
	Aux    map[string]string

	db       int
	expireAt record.Deadline
}

func NewParser(r io.Reader) *Parser {
	return &Parser{
		reader: bufio.NewReader(r),
		state:  &headerState{},
		Aux:    make(map[string]string),
	}
}

// Next returns the next key of the file. It returns io.EOF after the end
// marker and io.ErrUnexpectedEOF when the stream stops before it.
func (p *Parser) Next() (*Entry, error) {
	for p.state != nil {
		next, entry, err := p.state.parse(p)
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			p.state = nil
			return nil, err
		}

		p.state = next

		if entry != nil {
			return entry, nil
		}
	}

	return nil, io.EOF
}

func (p *Parser) readLengthWithEncoding() (length uint64, isEncoding bool, err error) {
	l, err := p.reader.ReadByte()
	if err != nil {
		return 0, false, err
	}

	switch (l & 0xC0) >> 6 {
	case REDIS_RDB_ENCVAL:
		return uint64(l & 0x3F), true, nil
	case REDIS_RDB_6BITLEN:
		return uint64(l & 0x3F), false, nil
	case REDIS_RDB_14BITLEN:
		additional, err := p.reader.ReadByte()
		return uint64(l&0x3F)<<8 | uint64(additional), false, err
	}

	switch l {
	case REDIS_RDB_32BITLEN:
		var d uint32
		err = binary.Read(p.reader, binary.BigEndian, &d)
		return uint64(d), false, err
	case REDIS_RDB_64BITLEN:
		var d uint64
		err = binary.Read(p.reader, binary.BigEndian, &d)
		return d, false, err
	}

	return 0, false, fmt.Errorf("%w: length prefix 0x%02x", ErrInvalidFile, l)
}

func (p *Parser) readLength() (int, error) {
	l, isEncoding, err := p.readLengthWithEncoding()
	if err != nil {
		return 0, err
	}

	if isEncoding || l > maxLength {
		return 0, fmt.Errorf("%w: bad length", ErrInvalidFile)
	}

	return int(l), nil
}

func (p *Parser) readString() (string, error) {
	length, isEncoding, err := p.readLengthWithEncoding()
	if err != nil {
		return "", err
	}

	if isEncoding {
		return p.decodeString(length)
	}

	if length > maxLength {
		return "", fmt.Errorf("%w: string of %d bytes", ErrInvalidFile, length)
	}

	buf := make([]byte, length)
	_, err = io.ReadFull(p.reader, buf)

	return string(buf), err
}

// decodeString reads the special encodings: integers stored as signed
// little-endian values and LZF compressed strings.
func (p *Parser) decodeString(encoding uint64) (string, error) {
	switch encoding {
	case REDIS_RDB_ENC_INT8:
		b, err := p.reader.ReadByte()
		return strconv.Itoa(int(int8(b))), err
	case REDIS_RDB_ENC_INT16:
		var i int16
		err := binary.Read(p.reader, binary.LittleEndian, &i)
		return strconv.Itoa(int(i)), err
	case REDIS_RDB_ENC_INT32:
		var i int32
		err := binary.Read(p.reader, binary.LittleEndian, &i)
		return strconv.Itoa(int(i)), err
	case REDIS_RDB_ENC_LZF:
		return p.readLZF()
	}

	return "", fmt.Errorf("%w: string encoding %d", ErrInvalidFile, encoding)
}

func (p *Parser) readLZF() (string, error) {
	compressed, err := p.readLength()
	if err != nil {
		return "", err
	}

	size, err := p.readLength()
	if err != nil {
		return "", err
	}

	in := make([]byte, compressed)
	if _, err := io.ReadFull(p.reader, in); err != nil {
		return "", err
	}

	out, err := lzfDecompress(in, size)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidFile, err)
	}

	return string(out), nil
}

// readScore reads a type 3 score: a length byte followed by its decimal
// text, with 254 and 255 standing for +inf and -inf. 253 (nan) never
// holds a valid score.
func (p *Parser) readScore() (float64, error) {
	n, err := p.reader.ReadByte()
	if err != nil {
		return 0, err
	}

	switch n {
	case 253:
		return 0, fmt.Errorf("%w: nan score", ErrInvalidFile)
	case 254:
		return math.Inf(1), nil
	case 255:
		return math.Inf(-1), nil
	}

	buf := make([]byte, n)
	if _, err := io.ReadFull(p.reader, buf); err != nil {
		return 0, err
	}

	f, err := strconv.ParseFloat(string(buf), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: score %q", ErrInvalidFile, buf)
	}
	return f, nil
}

func (p *Parser) readBinaryScore() (float64, error) {
	var bits uint64
	if err := binary.Read(p.reader, binary.LittleEndian, &bits); err != nil {
		return 0, err
	}
	return math.Float64frombits(bits), nil
}

func (p *Parser) readKeyValuePair() (property, error) {
	key, err := p.readString()
	if err != nil {
		return property{}, err
	}

	value, err := p.readString()
	if err != nil {
		return property{}, err
	}

	return property{key, value}, nil
}
