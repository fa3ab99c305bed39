package record

import (
	"errors"
	"fmt"
	"time"
)

// Record is the captured state of one key: its value, remaining lifetime
// and the absolute deadline derived from that lifetime at capture time.
type Record struct {
	Key      string
	TTL      TTL
	ExpireAt Deadline
	Value    Value
}

// New builds a Record observed at now, deriving ExpireAt from ttl.
func New(key string, value Value, ttl TTL, now time.Time) *Record {
	if !ttl.IsSet() {
		ttl = NoTTL
	}

	return &Record{
		Key:      key,
		TTL:      ttl,
		ExpireAt: ttl.Deadline(now),
		Value:    value,
	}
}

func (r *Record) Type() Type {
	if r.Value == nil {
		return 0
	}
	return r.Value.Type()
}

// Validate checks the invariants every Record must hold before it is
// written or replayed.
func (r *Record) Validate() error {
	if r.Value == nil {
		return errors.New("record has no value")
	}

	if !r.Type().Valid() {
		return fmt.Errorf("%w: %v", ErrUnsupportedType, r.Type())
	}

	if r.TTL.IsSet() != r.ExpireAt.IsSet() {
		return fmt.Errorf("ttl %s and expire_at %s disagree on expiration", r.TTL, r.ExpireAt)
	}

	return nil
}

func (r *Record) String() string {
	if r.Value == nil {
		return fmt.Sprintf("%q <no value>", r.Key)
	}
	return fmt.Sprintf("%s %q ttl=%s expire_at=%s len=%d", r.Type(), r.Key, r.TTL, r.ExpireAt, r.Value.Len())
}
