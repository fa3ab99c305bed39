package record

// Value is the payload of a Record. The concrete type decides the Record's
// Type, so a Record cannot carry a shape that disagrees with its type.
type Value interface {
	Type() Type
	// Len is the number of elements (1 for strings).
	Len() int
	isValue()
}

type StringValue string

// ListValue keeps elements in list order.
type ListValue []string

// SetValue members have no meaningful order.
type SetValue []string

type Member struct {
	Name  string
	Score float64
}

// SortedSetValue is ordered by rank, as returned by ZRANGE.
type SortedSetValue []Member

type Field struct {
	Name  string
	Value string
}

// HashValue is compared as a mapping; field order carries no meaning.
type HashValue []Field

func (StringValue) Type() Type    { return String }
func (ListValue) Type() Type      { return List }
func (SetValue) Type() Type       { return Set }
func (SortedSetValue) Type() Type { return SortedSet }
func (HashValue) Type() Type      { return Hash }

func (StringValue) Len() int      { return 1 }
func (v ListValue) Len() int      { return len(v) }
func (v SetValue) Len() int       { return len(v) }
func (v SortedSetValue) Len() int { return len(v) }
func (v HashValue) Len() int      { return len(v) }

func (StringValue) isValue()    {}
func (ListValue) isValue()      {}
func (SetValue) isValue()       {}
func (SortedSetValue) isValue() {}
func (HashValue) isValue()      {}

// Map returns the hash as a Go map; later duplicates win.
func (v HashValue) Map() map[string]string {
	m := make(map[string]string, len(v))
	for _, f := range v {
		m[f.Name] = f.Value
	}
	return m
}
