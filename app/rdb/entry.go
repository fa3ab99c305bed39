package rdb

import (
	"fmt"
	"time"

	"github.com/redisdump/redis-dump-go/app/record"
)

// Entry is one key read from the file.
type Entry struct {
	DB       int
	Key      string
	Value    record.Value
	ExpireAt record.Deadline
}

// Record converts the entry as seen at now. It reports false when the key
// had already expired.
func (e *Entry) Record(now time.Time) (*record.Record, bool) {
	if !e.ExpireAt.IsSet() {
		return &record.Record{Key: e.Key, TTL: record.NoTTL, Value: e.Value}, true
	}

	var ttl record.TTL
	if e.ExpireAt.Precision == record.Seconds {
		ttl = record.SecondsTTL(int64(e.ExpireAt.Time.Sub(now.Truncate(time.Second)) / time.Second))
	} else {
		ttl = record.MillisecondsTTL(e.ExpireAt.Time.Sub(now).Milliseconds())
	}

	if !ttl.IsSet() {
		return nil, false
	}

	return &record.Record{Key: e.Key, TTL: ttl, ExpireAt: e.ExpireAt, Value: e.Value}, true
}

func (p *Parser) readEntry(valueType byte) (*Entry, error) {
	expireAt := p.expireAt
	p.expireAt = record.Deadline{}

	key, err := p.readString()
	if err != nil {
		return nil, err
	}

	value, err := p.readValue(valueType)
	if err != nil {
		return nil, fmt.Errorf("key %q: %w", key, err)
	}

	return &Entry{DB: p.db, Key: key, Value: value, ExpireAt: expireAt}, nil
}

func (p *Parser) readValue(valueType byte) (record.Value, error) {
	switch valueType {
	case TYPE_STRING:
		s, err := p.readString()
		return record.StringValue(s), err

	case TYPE_LIST:
		items, err := p.readStrings()
		return record.ListValue(items), err

	case TYPE_SET:
		items, err := p.readStrings()
		return record.SetValue(items), err

	case TYPE_ZSET, TYPE_ZSET_2:
		n, err := p.readLength()
		if err != nil {
			return nil, err
		}

		members := make(record.SortedSetValue, 0, min(n, 1024))
		for range n {
			name, err := p.readString()
			if err != nil {
				return nil, err
			}

			var score float64
			if valueType == TYPE_ZSET {
				score, err = p.readScore()
			} else {
				score, err = p.readBinaryScore()
			}
			if err != nil {
				return nil, err
			}

			members = append(members, record.Member{Name: name, Score: score})
		}
		return members, nil

	case TYPE_HASH:
		n, err := p.readLength()
		if err != nil {
			return nil, err
		}

		fields := make(record.HashValue, 0, min(n, 1024))
		for range n {
			kv, err := p.readKeyValuePair()
			if err != nil {
				return nil, err
			}
			fields = append(fields, record.Field{Name: kv.Key, Value: kv.Value})
		}
		return fields, nil
	}

	// Modules, ziplists, intsets, listpacks and quicklists.
	return nil, fmt.Errorf("%w: value type %d", ErrUnsupported, valueType)
}

func (p *Parser) readStrings() ([]string, error) {
	n, err := p.readLength()
	if err != nil {
		return nil, err
	}

	items := make([]string, 0, min(n, 1024))
	for range n {
		s, err := p.readString()
		if err != nil {
			return nil, err
		}
		items = append(items, s)
	}

	return items, nil
}
