package rdb

import (
	"encoding/binary"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/redisdump/redis-dump-go/app/record"
)

type ParserState interface {
	parse(p *Parser) (ParserState, *Entry, error)
}

type property struct {
	Key, Value string
}

const (
	EOF                = 0xFF // End of the RDB file
	SELECTDB           = 0xFE // DB number
	EXPIRETIME_SECONDS = 0xFD // Second expire time
	EXPIRETIME_MS      = 0xFC // Millisecond expire time
	RESIZEDB           = 0xFB // Resize DB
	AUX                = 0xFA // Aux field
	FREQ               = 0xF9 // LFU frequency
	IDLE               = 0xF8 // LRU idle time
	MODULE_AUX         = 0xF7
	FUNCTION2          = 0xF5
	FUNCTION           = 0xF6
)

const (
	TYPE_STRING   = 0
	TYPE_LIST     = 1
	TYPE_SET      = 2
	TYPE_ZSET     = 3
	TYPE_HASH     = 4
	TYPE_ZSET_2   = 5
	TYPE_MODULE   = 6
	TYPE_MODULE_2 = 7
)

const (
	RedisVersion = "redis-ver"  // Redis version
	RedisBits    = "redis-bits" // System architecture (32/64 bits)
	CreationTime = "ctime"      // Creation time of the RDB
	UsedMemory   = "used-mem"   // Used memory
)

type headerState struct{}

func (headerState) parse(p *Parser) (ParserState, *Entry, error) {
	buf := make([]byte, 9)

	if _, err := io.ReadFull(p.reader, buf); err != nil {
		return nil, nil, fmt.Errorf("%w: short header", ErrInvalidFile)
	}

	if string(buf[:5]) != "REDIS" {
		return nil, nil, fmt.Errorf("%w: bad magic %q", ErrInvalidFile, buf[:5])
	}

	v, err := strconv.Atoi(string(buf[5:]))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: bad version %q", ErrInvalidFile, buf[5:])
	}

	p.Header = Header{Magic: string(buf[:5]), Version: v}

	return opcodeState{}, nil, nil
}

// opcodeState reads one opcode and what follows it. Metadata opcodes update
// the parser; a value type yields an Entry.
type opcodeState struct{}

func (opcodeState) parse(p *Parser) (ParserState, *Entry, error) {
	op, err := p.reader.ReadByte()
	if err != nil {
		return nil, nil, err
	}

	switch op {
	case EOF:
		// The checksum after the marker is not verified.
		return nil, nil, nil

	case SELECTDB:
		id, err := p.readLength()
		if err != nil {
			return nil, nil, err
		}
		p.db = id

	case RESIZEDB:
		if _, err := p.readLength(); err != nil {
			return nil, nil, err
		}
		if _, err := p.readLength(); err != nil {
			return nil, nil, err
		}

	case AUX:
		kv, err := p.readKeyValuePair()
		if err != nil {
			return nil, nil, err
		}
		p.Aux[kv.Key] = kv.Value

	case EXPIRETIME_MS:
		var ms int64
		if err := binary.Read(p.reader, binary.LittleEndian, &ms); err != nil {
			return nil, nil, err
		}
		p.expireAt = record.Deadline{Time: time.UnixMilli(ms), Precision: record.Milliseconds}

	case EXPIRETIME_SECONDS:
		var sec int32
		if err := binary.Read(p.reader, binary.LittleEndian, &sec); err != nil {
			return nil, nil, err
		}
		p.expireAt = record.Deadline{Time: time.Unix(int64(sec), 0), Precision: record.Seconds}

	case IDLE:
		if _, err := p.readLength(); err != nil {
			return nil, nil, err
		}

	case FREQ:
		if _, err := p.reader.ReadByte(); err != nil {
			return nil, nil, err
		}

	case MODULE_AUX, FUNCTION, FUNCTION2:
		return nil, nil, fmt.Errorf("%w: opcode 0x%02x", ErrUnsupported, op)

	default:
		entry, err := p.readEntry(op)
		if err != nil {
			return nil, nil, err
		}
		return opcodeState{}, entry, nil
	}

	return opcodeState{}, nil, nil
}
