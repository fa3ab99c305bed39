package record

import "fmt"

// Type is the closed set of key types a Record can hold.
type Type uint8

const (
	String Type = iota + 1
	List
	Set
	SortedSet
	Hash
)

var typeNames = [...]string{
	String:    "string",
	List:      "list",
	Set:       "set",
	SortedSet: "zset",
	Hash:      "hash",
}

// Types lists every supported type in wire-token order.
var Types = []Type{String, List, Set, SortedSet, Hash}

func (t Type) String() string {
	if t == 0 || int(t) >= len(typeNames) {
		return fmt.Sprintf("Type(%d)", uint8(t))
	}
	return typeNames[t]
}

func (t Type) Valid() bool {
	return t >= String && t <= Hash
}

// ParseType maps a store type name ("string", "zset", ...) to a Type.
func ParseType(name string) (Type, error) {
	switch name {
	case "string":
		return String, nil
	case "list":
		return List, nil
	case "set":
		return Set, nil
	case "zset":
		return SortedSet, nil
	case "hash":
		return Hash, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnsupportedType, name)
}
