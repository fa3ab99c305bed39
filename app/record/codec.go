package record

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Marshal renders r as one dump line, without the trailing newline:
//
//	(b'list', b'mylist', -1, -1, [b'a', b'b', b'c'])
func Marshal(r *Record) ([]byte, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}

	var b bytes.Buffer

	b.WriteByte('(')
	appendBytes(&b, r.Type().String())
	b.WriteString(", ")
	appendBytes(&b, r.Key)
	b.WriteString(", ")
	b.WriteString(r.TTL.String())
	b.WriteString(", ")
	b.WriteString(r.ExpireAt.String())
	b.WriteString(", ")
	appendValue(&b, r.Value)
	b.WriteByte(')')

	return b.Bytes(), nil
}

func appendValue(b *bytes.Buffer, v Value) {
	switch v := v.(type) {
	case StringValue:
		appendBytes(b, string(v))
	case ListValue:
		b.WriteByte('[')
		for i, e := range v {
			if i > 0 {
				b.WriteString(", ")
			}
			appendBytes(b, e)
		}
		b.WriteByte(']')
	case SetValue:
		if len(v) == 0 {
			b.WriteString("set()")
			return
		}
		b.WriteByte('{')
		for i, e := range v {
			if i > 0 {
				b.WriteString(", ")
			}
			appendBytes(b, e)
		}
		b.WriteByte('}')
	case SortedSetValue:
		b.WriteByte('[')
		for i, m := range v {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteByte('(')
			appendBytes(b, m.Name)
			b.WriteString(", ")
			b.WriteString(formatScore(m.Score))
			b.WriteByte(')')
		}
		b.WriteByte(']')
	case HashValue:
		b.WriteByte('{')
		for i, f := range v {
			if i > 0 {
				b.WriteString(", ")
			}
			appendBytes(b, f.Name)
			b.WriteString(": ")
			appendBytes(b, f.Value)
		}
		b.WriteByte('}')
	}
}

const hexDigit = "0123456789abcdef"

// appendBytes writes s as a bytes literal the way Python's repr does:
// single quotes unless only a double quote avoids escaping.
func appendBytes(b *bytes.Buffer, s string) {
	quote := byte('\'')
	if strings.IndexByte(s, '\'') >= 0 && strings.IndexByte(s, '"') < 0 {
		quote = '"'
	}

	b.WriteByte('b')
	b.WriteByte(quote)

	for i := 0; i < len(s); i++ {
		c := s[i]

		switch {
		case c == quote || c == '\\':
			b.WriteByte('\\')
			b.WriteByte(c)
		case c == '\t':
			b.WriteString(`\t`)
		case c == '\n':
			b.WriteString(`\n`)
		case c == '\r':
			b.WriteString(`\r`)
		case c < 0x20 || c >= 0x7f:
			b.WriteString(`\x`)
			b.WriteByte(hexDigit[c>>4])
			b.WriteByte(hexDigit[c&0x0f])
		default:
			b.WriteByte(c)
		}
	}

	b.WriteByte(quote)
}

// formatScore writes a float the way a float literal is written on the
// wire: shortest round-trip digits, always with a '.' or exponent, and
// scientific notation outside [1e-4, 1e16).
func formatScore(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	case math.IsNaN(f):
		return "nan"
	}

	if f == 0 {
		if math.Signbit(f) {
			return "-0.0"
		}
		return "0.0"
	}

	sci := strconv.FormatFloat(f, 'e', -1, 64)
	exp, _ := strconv.Atoi(sci[strings.IndexByte(sci, 'e')+1:])

	if exp < -4 || exp >= 16 {
		return sci
	}

	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.ContainsRune(s, '.') {
		s += ".0"
	}
	return s
}

// Unmarshal decodes one dump line. Surrounding whitespace, including the
// line terminator, is ignored. Every failure is a *MalformedError.
func Unmarshal(line []byte) (*Record, error) {
	r, err := decode(bytes.TrimSpace(line))
	if err != nil {
		return nil, &MalformedError{Content: string(bytes.TrimRight(line, "\r\n")), Err: err}
	}
	return r, nil
}

func decode(line []byte) (*Record, error) {
	root, err := parseLiteral(line)
	if err != nil {
		return nil, err
	}

	if root.kind != kindTuple {
		return nil, fmt.Errorf("expected a tuple, got %s", root.kind)
	}

	if len(root.items) != 5 {
		return nil, fmt.Errorf("expected 5 elements, got %d", len(root.items))
	}

	typeNode, keyNode, ttlNode, deadlineNode, valueNode := root.items[0], root.items[1], root.items[2], root.items[3], root.items[4]

	if !typeNode.isText() {
		return nil, fmt.Errorf("type: expected a string, got %s", typeNode.kind)
	}

	typ, err := ParseType(typeNode.text)
	if err != nil {
		return nil, err
	}

	if !keyNode.isText() {
		return nil, fmt.Errorf("key: expected a string, got %s", keyNode.kind)
	}

	ttl, err := decodeNumber("ttl", ttlNode)
	if err != nil {
		return nil, err
	}

	deadline, err := decodeNumber("expire_at", deadlineNode)
	if err != nil {
		return nil, err
	}

	value, err := decodeValue(typ, valueNode)
	if err != nil {
		return nil, err
	}

	r := &Record{
		Key:      keyNode.text,
		TTL:      ttl.ttl(),
		ExpireAt: deadline.deadline(),
		Value:    value,
	}

	if err := r.Validate(); err != nil {
		return nil, err
	}

	return r, nil
}

func decodeNumber(field string, n node) (number, error) {
	if !n.isNumber() {
		return number{}, fmt.Errorf("%s: expected a number, got %s", field, n.kind)
	}

	num, err := parseNumber(n.text)
	if err != nil {
		return number{}, fmt.Errorf("%s: %w", field, err)
	}

	return num, nil
}

var errShape = errors.New("value shape does not match type")

func decodeValue(typ Type, n node) (Value, error) {
	switch typ {
	case String:
		if !n.isText() {
			return nil, fmt.Errorf("%w: %s value is a %s", errShape, typ, n.kind)
		}
		return StringValue(n.text), nil

	case List:
		if n.kind != kindList && n.kind != kindTuple {
			return nil, fmt.Errorf("%w: %s value is a %s", errShape, typ, n.kind)
		}
		elems, err := texts(typ, n.items)
		return ListValue(elems), err

	case Set:
		if n.kind != kindSet && n.kind != kindList && n.kind != kindTuple {
			// "{}" parses as an empty dict.
			if n.kind == kindDict && len(n.items) == 0 {
				return SetValue{}, nil
			}
			return nil, fmt.Errorf("%w: %s value is a %s", errShape, typ, n.kind)
		}
		elems, err := texts(typ, n.items)
		return SetValue(elems), err

	case SortedSet:
		if n.kind != kindList && n.kind != kindTuple {
			return nil, fmt.Errorf("%w: %s value is a %s", errShape, typ, n.kind)
		}
		return decodeMembers(n.items)

	case Hash:
		if n.kind != kindDict {
			return nil, fmt.Errorf("%w: %s value is a %s", errShape, typ, n.kind)
		}
		fields := make(HashValue, 0, len(n.items)/2)
		for i := 0; i+1 < len(n.items); i += 2 {
			k, v := n.items[i], n.items[i+1]
			if !k.isText() || !v.isText() {
				return nil, fmt.Errorf("%w: hash entry %d is not a pair of strings", errShape, i/2)
			}
			fields = append(fields, Field{Name: k.text, Value: v.text})
		}
		return fields, nil
	}

	return nil, fmt.Errorf("%w: %v", ErrUnsupportedType, typ)
}

func texts(typ Type, items []node) ([]string, error) {
	out := make([]string, 0, len(items))

	for i, it := range items {
		if !it.isText() {
			return nil, fmt.Errorf("%w: %s element %d is a %s", errShape, typ, i, it.kind)
		}
		out = append(out, it.text)
	}

	return out, nil
}

func decodeMembers(items []node) (Value, error) {
	out := make(SortedSetValue, 0, len(items))

	for i, it := range items {
		if (it.kind != kindTuple && it.kind != kindList) || len(it.items) != 2 {
			return nil, fmt.Errorf("%w: zset entry %d is not a (member, score) pair", errShape, i)
		}

		name, score := it.items[0], it.items[1]
		if !name.isText() || !score.isNumber() {
			return nil, fmt.Errorf("%w: zset entry %d is not a (member, score) pair", errShape, i)
		}

		f, err := strconv.ParseFloat(score.text, 64)
		if err != nil {
			return nil, fmt.Errorf("zset entry %d: invalid score %q", i, score.text)
		}

		out = append(out, Member{Name: name.text, Score: f})
	}

	return out, nil
}
