package record

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Precision says which family of expiration commands a lifetime belongs to:
// whole seconds (TTL, EXPIRE, EXPIREAT) or milliseconds (PTTL, PEXPIRE,
// PEXPIREAT).
type Precision uint8

const (
	Seconds Precision = iota
	Milliseconds
)

func (p Precision) String() string {
	if p == Milliseconds {
		return "milliseconds"
	}
	return "seconds"
}

// TTL is the remaining lifetime of a key. A non-positive Duration means the
// key does not expire.
type TTL struct {
	Duration  time.Duration
	Precision Precision
}

// NoTTL marks a key without expiration.
var NoTTL = TTL{Duration: -1}

func SecondsTTL(n int64) TTL {
	if n <= 0 {
		return NoTTL
	}
	return TTL{Duration: time.Duration(n) * time.Second, Precision: Seconds}
}

func MillisecondsTTL(n int64) TTL {
	if n <= 0 {
		return NoTTL
	}
	return TTL{Duration: time.Duration(n) * time.Millisecond, Precision: Milliseconds}
}

func (t TTL) IsSet() bool {
	return t.Duration > 0
}

// Deadline returns the absolute expiration for a lifetime observed at now.
func (t TTL) Deadline(now time.Time) Deadline {
	if !t.IsSet() {
		return Deadline{}
	}

	if t.Precision == Seconds {
		return Deadline{Time: now.Truncate(time.Second).Add(t.Duration), Precision: Seconds}
	}

	return Deadline{Time: now.Add(t.Duration).Truncate(time.Millisecond), Precision: Milliseconds}
}

func (t TTL) String() string {
	if !t.IsSet() {
		return "-1"
	}

	// A set lifetime never renders as zero, which would read back as none.
	if t.Precision == Seconds {
		return strconv.FormatInt(max(1, int64(t.Duration/time.Second)), 10)
	}

	return formatMillis(max(1, t.Duration.Milliseconds()))
}

// Deadline is an absolute expiration time. The zero value means none.
type Deadline struct {
	Time      time.Time
	Precision Precision
}

func (d Deadline) IsSet() bool {
	return !d.Time.IsZero()
}

func (d Deadline) String() string {
	if !d.IsSet() {
		return "-1"
	}

	if d.Precision == Seconds {
		return strconv.FormatInt(max(1, d.Time.Unix()), 10)
	}

	return formatMillis(max(1, d.Time.UnixMilli()))
}

// formatMillis writes a millisecond count as fractional seconds. The result
// always has a decimal point, which is what marks millisecond precision on
// the wire.
func formatMillis(ms int64) string {
	sec, frac := ms/1000, ms%1000

	if frac == 0 {
		return strconv.FormatInt(sec, 10) + ".0"
	}

	return strings.TrimRight(fmt.Sprintf("%d.%03d", sec, frac), "0")
}

// number is a numeric token from the wire split into whole seconds and
// nanoseconds, with the precision implied by its spelling.
type number struct {
	negative  bool
	whole     int64
	nanos     int64
	precision Precision
}

func (n number) positive() bool {
	return !n.negative && (n.whole > 0 || n.nanos > 0)
}

func (n number) ttl() TTL {
	if !n.positive() {
		return NoTTL
	}
	return TTL{
		Duration:  time.Duration(n.whole)*time.Second + time.Duration(n.nanos),
		Precision: n.precision,
	}
}

func (n number) deadline() Deadline {
	if !n.positive() {
		return Deadline{}
	}
	return Deadline{Time: time.Unix(n.whole, n.nanos), Precision: n.precision}
}

// parseNumber reads an integer or decimal token exactly, without a detour
// through float64, so epoch timestamps keep their millisecond digits.
func parseNumber(text string) (number, error) {
	var n number
	s := text

	switch {
	case strings.HasPrefix(s, "-"):
		n.negative = true
		s = s[1:]
	case strings.HasPrefix(s, "+"):
		s = s[1:]
	}

	if strings.ContainsAny(s, "eE") {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return n, fmt.Errorf("invalid number %q", text)
		}
		n.precision = Milliseconds
		n.whole = int64(f)
		n.nanos = int64((f - float64(n.whole)) * 1e9)
		return n, nil
	}

	whole, frac, fractional := strings.Cut(s, ".")

	if whole == "" && frac == "" {
		return n, fmt.Errorf("invalid number %q", text)
	}

	if whole != "" {
		w, err := strconv.ParseInt(whole, 10, 64)
		if err != nil {
			return n, fmt.Errorf("invalid number %q", text)
		}
		n.whole = w
	}

	if fractional {
		n.precision = Milliseconds

		if len(frac) > 9 {
			frac = frac[:9]
		}

		if frac != "" {
			ns, err := strconv.ParseInt(frac+strings.Repeat("0", 9-len(frac)), 10, 64)
			if err != nil {
				return n, fmt.Errorf("invalid number %q", text)
			}
			n.nanos = ns
		}
	}

	return n, nil
}
