package resp

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

type DataType byte

type Value struct {
	IsNil  bool     // To denote a null value
	Raw    []byte   // Raw byte data for strings, integers, and booleans
	Type   DataType // Type of the data (e.g., Integer, BulkString, Boolean, etc.)
	Values []Value  // For arrays, a slice of values (allows recursive definition)
}

const (
	SimpleString DataType = '+'
	SimpleError  DataType = '-'
	Integer      DataType = ':'
	BulkString   DataType = '$'
	Array        DataType = '*'
	Null         DataType = '_'
	Boolean      DataType = '#'
)

const TrueValue = "t"

var nullValue = Value{
	IsNil: true,
	Type:  Null,
}

func StringValue(s string) Value {
	return Value{
		Type: SimpleString,
		Raw:  []byte(s),
	}
}

func IntegerValue(i int64) Value {
	return Value{
		Type: Integer,
		Raw:  []byte(strconv.FormatInt(i, 10)),
	}
}

func BulkStringValue(s string) Value {
	return Value{
		Type: BulkString,
		Raw:  []byte(s),
	}
}

func BulkNullStringValue() Value {
	return Value{
		Type:  BulkString,
		IsNil: true,
	}
}

func ArrayValue(values ...Value) Value {
	return Value{
		Type:   Array,
		Values: values,
	}
}

// NullArrayValue is the "*-1" reply, e.g. an EXEC aborted by WATCH.
func NullArrayValue() Value {
	return Value{
		Type:  Array,
		IsNil: true,
	}
}

func NullValue() Value {
	return nullValue
}

func ErrorValue(s string) Value {
	return Value{
		Type: SimpleError,
		Raw:  []byte(s),
	}
}

func (t DataType) String() string {
	switch t {
	case SimpleString:
		return "SimpleString"
	case SimpleError:
		return "Error"
	case Integer:
		return "Integer"
	case BulkString:
		return "BulkString"
	case Null:
		return "Null"
	case Boolean:
		return "Boolean"
	case Array:
		return "Array"
	default:
		return "Unknown"
	}
}

func (v Value) String() string {
	switch v.Type {
	case Array:
		return fmt.Sprintf("%v", v.Values)
	default:
		return string(v.Raw)
	}
}

// IsError reports whether the value is an error reply.
func (v Value) IsError() bool {
	return v.Type == SimpleError
}

func (v Value) AsInt() (int, error) {
	i, err := v.AsInt64()
	return int(i), err
}

func (v Value) AsInt64() (int64, error) {
	if v.Type != Integer || v.IsNil {
		return 0, errors.New("value not an integer or is nil")
	}
	return strconv.ParseInt(string(v.Raw), 10, 64)
}

func (v Value) AsString() (string, error) {
	switch v.Type {
	case SimpleString, SimpleError, Integer, BulkString:
		if v.IsNil {
			return "", errors.New("value is nil")
		}
		return string(v.Raw), nil
	default:
		return "", errors.New("value not a string")
	}
}

func (v Value) AsBool() (bool, error) {
	if v.Type != Boolean || v.IsNil {
		return false, errors.New("value not a boolean or is nil")
	}

	return strings.EqualFold(string(v.Raw), TrueValue), nil
}

func (v Value) AsArray() ([]Value, error) {
	if v.Type != Array || v.IsNil {
		return nil, errors.New("value not an array or is nil")
	}
	return v.Values, nil
}

// AsStrings converts an array of bulk strings into Go strings.
func (v Value) AsStrings() ([]string, error) {
	values, err := v.AsArray()

	if err != nil {
		return nil, err
	}

	out := make([]string, 0, len(values))

	for i := range values {
		s, err := values[i].AsString()

		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}

		out = append(out, s)
	}

	return out, nil
}

func (v Value) Marshal() ([]byte, error) {
	var b bytes.Buffer

	if err := v.appendTo(&b); err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}

func (v Value) appendTo(b *bytes.Buffer) error {
	switch v.Type {
	case SimpleString, SimpleError, Integer, Boolean:
		b.WriteByte(byte(v.Type))
		b.Write(v.Raw)
		b.WriteString("\r\n")
	case Null:
		b.WriteString("_\r\n")
	case BulkString:
		if v.IsNil {
			b.WriteString("$-1\r\n")
			return nil
		}
		b.WriteByte(byte(BulkString))
		b.WriteString(strconv.Itoa(len(v.Raw)))
		b.WriteString("\r\n")
		b.Write(v.Raw)
		b.WriteString("\r\n")
	case Array:
		if v.IsNil {
			b.WriteString("*-1\r\n")
			return nil
		}
		b.WriteByte(byte(Array))
		b.WriteString(strconv.Itoa(len(v.Values)))
		b.WriteString("\r\n")

		for i := range v.Values {
			if err := v.Values[i].appendTo(b); err != nil {
				return err
			}
		}
	default:
		return errors.New("invalid data type")
	}

	return nil
}
