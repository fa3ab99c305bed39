package record

import (
	"fmt"
	"strconv"
	"unicode/utf8"
)

// The wire format is the literal notation of the original Python tool: one
// tuple per line built from bytes/str literals, numbers, lists, tuples,
// sets and dicts. The parser below accepts exactly that subset.

type nodeKind uint8

const (
	kindBytes nodeKind = iota + 1
	kindStr
	kindInt
	kindFloat
	kindTuple
	kindList
	kindSet
	kindDict
)

var kindNames = map[nodeKind]string{
	kindBytes: "bytes",
	kindStr:   "str",
	kindInt:   "int",
	kindFloat: "float",
	kindTuple: "tuple",
	kindList:  "list",
	kindSet:   "set",
	kindDict:  "dict",
}

func (k nodeKind) String() string { return kindNames[k] }

type node struct {
	kind nodeKind
	// text is the decoded content of bytes/str literals and the raw token of
	// numbers.
	text string
	// items holds container elements; for dicts keys and values alternate.
	items []node
}

func (n node) isText() bool {
	return n.kind == kindBytes || n.kind == kindStr
}

func (n node) isNumber() bool {
	return n.kind == kindInt || n.kind == kindFloat
}

type literalParser struct {
	src []byte
	pos int
}

func parseLiteral(src []byte) (node, error) {
	p := &literalParser{src: src}

	n, err := p.parseValue()
	if err != nil {
		return node{}, err
	}

	p.skipSpace()

	if p.pos != len(p.src) {
		return node{}, p.errorf("unexpected trailing data")
	}

	return n, nil
}

func (p *literalParser) errorf(format string, args ...any) error {
	return fmt.Errorf("offset %d: %s", p.pos, fmt.Sprintf(format, args...))
}

func (p *literalParser) skipSpace() {
	for p.pos < len(p.src) {
		switch p.src[p.pos] {
		case ' ', '\t', '\r', '\n':
			p.pos++
		default:
			return
		}
	}
}

func (p *literalParser) peek() byte {
	if p.pos < len(p.src) {
		return p.src[p.pos]
	}
	return 0
}

func (p *literalParser) parseValue() (node, error) {
	p.skipSpace()

	if p.pos >= len(p.src) {
		return node{}, p.errorf("unexpected end of input")
	}

	c := p.src[p.pos]

	switch {
	case c == '(':
		p.pos++
		return p.parseSequence(')', kindTuple)
	case c == '[':
		p.pos++
		return p.parseSequence(']', kindList)
	case c == '{':
		p.pos++
		return p.parseBrace()
	case c == '\'' || c == '"':
		s, err := p.parseQuoted(false)
		return node{kind: kindStr, text: s}, err
	case (c == 'b' || c == 'B') && p.pos+1 < len(p.src) && (p.src[p.pos+1] == '\'' || p.src[p.pos+1] == '"'):
		p.pos++
		s, err := p.parseQuoted(true)
		return node{kind: kindBytes, text: s}, err
	case c == '-' || c == '+' || c == '.' || isDigit(c) || c == 'i':
		return p.parseNumber()
	case c == 's':
		return p.parseSetCall()
	}

	return node{}, p.errorf("unexpected character %q", c)
}

// parseSequence reads the elements of a tuple or list up to the closing
// delimiter. A parenthesised single value without a trailing comma is
// just that value, as in Python.
func (p *literalParser) parseSequence(closing byte, kind nodeKind) (node, error) {
	var items []node
	sawComma := false

	for {
		p.skipSpace()

		if p.peek() == closing {
			p.pos++
			break
		}

		item, err := p.parseValue()
		if err != nil {
			return node{}, err
		}
		items = append(items, item)

		p.skipSpace()

		switch p.peek() {
		case ',':
			p.pos++
			sawComma = true
		case closing:
		default:
			return node{}, p.errorf("expected ',' or %q", closing)
		}
	}

	if kind == kindTuple && len(items) == 1 && !sawComma {
		return items[0], nil
	}

	return node{kind: kind, items: items}, nil
}

// parseBrace reads either a set or a dict; "{}" is an empty dict.
func (p *literalParser) parseBrace() (node, error) {
	p.skipSpace()

	if p.peek() == '}' {
		p.pos++
		return node{kind: kindDict}, nil
	}

	first, err := p.parseValue()
	if err != nil {
		return node{}, err
	}

	p.skipSpace()

	if p.peek() != ':' {
		rest, err := p.continueSequence('}', first)
		if err != nil {
			return node{}, err
		}
		return node{kind: kindSet, items: rest}, nil
	}

	items := []node{first}

	for {
		if p.peek() != ':' {
			return node{}, p.errorf("expected ':' in dict")
		}
		p.pos++

		value, err := p.parseValue()
		if err != nil {
			return node{}, err
		}
		items = append(items, value)

		p.skipSpace()

		switch p.peek() {
		case ',':
			p.pos++
		case '}':
			p.pos++
			return node{kind: kindDict, items: items}, nil
		default:
			return node{}, p.errorf("expected ',' or '}' in dict")
		}

		p.skipSpace()

		if p.peek() == '}' {
			p.pos++
			return node{kind: kindDict, items: items}, nil
		}

		key, err := p.parseValue()
		if err != nil {
			return node{}, err
		}
		items = append(items, key)
		p.skipSpace()
	}
}

func (p *literalParser) continueSequence(closing byte, first node) ([]node, error) {
	items := []node{first}

	for {
		p.skipSpace()

		switch p.peek() {
		case closing:
			p.pos++
			return items, nil
		case ',':
			p.pos++
		default:
			return nil, p.errorf("expected ',' or %q", closing)
		}

		p.skipSpace()

		if p.peek() == closing {
			p.pos++
			return items, nil
		}

		item, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
}

// parseSetCall handles "set()" and the "set([...])" spelling.
func (p *literalParser) parseSetCall() (node, error) {
	if !p.consume("set(") {
		return node{}, p.errorf("unexpected identifier")
	}

	p.skipSpace()

	if p.peek() == ')' {
		p.pos++
		return node{kind: kindSet}, nil
	}

	inner, err := p.parseValue()
	if err != nil {
		return node{}, err
	}

	if inner.kind != kindList && inner.kind != kindTuple {
		return node{}, p.errorf("set() expects a list")
	}

	p.skipSpace()

	if p.peek() != ')' {
		return node{}, p.errorf("expected ')'")
	}
	p.pos++

	return node{kind: kindSet, items: inner.items}, nil
}

func (p *literalParser) consume(s string) bool {
	if len(p.src)-p.pos >= len(s) && string(p.src[p.pos:p.pos+len(s)]) == s {
		p.pos += len(s)
		return true
	}
	return false
}

func (p *literalParser) parseNumber() (node, error) {
	start := p.pos

	if c := p.peek(); c == '-' || c == '+' {
		p.pos++
	}

	if p.consume("inf") {
		return node{kind: kindFloat, text: string(p.src[start:p.pos])}, nil
	}

	kind := kindInt
	digits := 0

scan:
	for p.pos < len(p.src) {
		c := p.src[p.pos]

		switch {
		case isDigit(c):
			digits++
		case c == '.':
			kind = kindFloat
		case c == 'e' || c == 'E':
			kind = kindFloat
			if n := p.pos + 1; n < len(p.src) && (p.src[n] == '-' || p.src[n] == '+') {
				p.pos++
			}
		default:
			break scan
		}
		p.pos++
	}

	if digits == 0 {
		return node{}, p.errorf("invalid number")
	}

	return node{kind: kind, text: string(p.src[start:p.pos])}, nil
}

// parseQuoted decodes a single-line quoted literal. Escapes follow Python
// bytes literals; \x and octal escapes always produce raw bytes, which
// also reads dumps written by Python 2 where str was a byte string.
func (p *literalParser) parseQuoted(isBytes bool) (string, error) {
	quote := p.src[p.pos]
	p.pos++

	var b []byte

	for p.pos < len(p.src) {
		c := p.src[p.pos]

		switch c {
		case quote:
			p.pos++
			return string(b), nil
		case '\n':
			return "", p.errorf("unterminated string literal")
		case '\\':
			p.pos++

			if p.pos >= len(p.src) {
				return "", p.errorf("unterminated escape")
			}

			var err error
			b, err = p.appendEscape(b, isBytes)
			if err != nil {
				return "", err
			}
		default:
			b = append(b, c)
			p.pos++
		}
	}

	return "", p.errorf("unterminated string literal")
}

func (p *literalParser) appendEscape(b []byte, isBytes bool) ([]byte, error) {
	c := p.src[p.pos]
	p.pos++

	switch c {
	case '\\', '\'', '"':
		return append(b, c), nil
	case 'a':
		return append(b, '\a'), nil
	case 'b':
		return append(b, '\b'), nil
	case 'f':
		return append(b, '\f'), nil
	case 'n':
		return append(b, '\n'), nil
	case 'r':
		return append(b, '\r'), nil
	case 't':
		return append(b, '\t'), nil
	case 'v':
		return append(b, '\v'), nil
	case '\n':
		return b, nil
	case 'x':
		v, err := p.hexDigits(2)
		if err != nil {
			return nil, err
		}
		return append(b, byte(v)), nil
	case 'u', 'U':
		if isBytes {
			return append(b, '\\', c), nil
		}

		n := 4
		if c == 'U' {
			n = 8
		}

		v, err := p.hexDigits(n)
		if err != nil {
			return nil, err
		}

		if !utf8.ValidRune(rune(v)) {
			return nil, p.errorf("invalid code point %#x", v)
		}

		return utf8.AppendRune(b, rune(v)), nil
	}

	if c >= '0' && c <= '7' {
		v := int(c - '0')

		for i := 0; i < 2 && p.pos < len(p.src) && p.src[p.pos] >= '0' && p.src[p.pos] <= '7'; i++ {
			v = v*8 + int(p.src[p.pos]-'0')
			p.pos++
		}

		return append(b, byte(v)), nil
	}

	// Unknown escapes are kept verbatim, as Python does.
	return append(b, '\\', c), nil
}

func (p *literalParser) hexDigits(n int) (uint64, error) {
	if len(p.src)-p.pos < n {
		return 0, p.errorf("truncated escape")
	}

	v, err := strconv.ParseUint(string(p.src[p.pos:p.pos+n]), 16, 32)
	if err != nil {
		return 0, p.errorf("invalid escape")
	}

	p.pos += n
	return v, nil
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
