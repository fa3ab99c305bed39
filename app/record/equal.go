package record

import (
	"slices"
	"time"
)

// Equal reports whether a and b describe the same key state. Strings, lists
// and sorted sets compare in order; sets and hashes compare as collections.
// Lifetimes and deadlines may differ by up to tolerance, which absorbs the
// clock drift between two captures of the same key.
func Equal(a, b *Record, tolerance time.Duration) bool {
	if a == nil || b == nil {
		return a == b
	}

	if a.Key != b.Key || a.Type() != b.Type() {
		return false
	}

	if a.TTL.IsSet() != b.TTL.IsSet() || a.ExpireAt.IsSet() != b.ExpireAt.IsSet() {
		return false
	}

	if a.TTL.IsSet() && !within(a.TTL.Duration-b.TTL.Duration, tolerance) {
		return false
	}

	if a.ExpireAt.IsSet() && !within(a.ExpireAt.Time.Sub(b.ExpireAt.Time), tolerance) {
		return false
	}

	return EqualValues(a.Value, b.Value)
}

func within(d, tolerance time.Duration) bool {
	if d < 0 {
		d = -d
	}
	return d <= tolerance
}

// EqualValues compares two values under the ordering rules of their type.
func EqualValues(a, b Value) bool {
	switch a := a.(type) {
	case StringValue:
		b, ok := b.(StringValue)
		return ok && a == b
	case ListValue:
		b, ok := b.(ListValue)
		return ok && slices.Equal(a, b)
	case SortedSetValue:
		b, ok := b.(SortedSetValue)
		return ok && slices.Equal(a, b)
	case SetValue:
		b, ok := b.(SetValue)
		return ok && sameElements(a, b)
	case HashValue:
		b, ok := b.(HashValue)
		if !ok {
			return false
		}
		am, bm := a.Map(), b.Map()
		if len(am) != len(bm) {
			return false
		}
		for k, v := range am {
			if w, ok := bm[k]; !ok || w != v {
				return false
			}
		}
		return true
	}
	return false
}

func sameElements(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}

	counts := make(map[string]int, len(a))
	for _, s := range a {
		counts[s]++
	}

	for _, s := range b {
		if counts[s] == 0 {
			return false
		}
		counts[s]--
	}

	return true
}
