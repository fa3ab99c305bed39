package record

import (
	"errors"
	"fmt"
)

var (
	ErrUnsupportedType = errors.New("unsupported type")
	ErrMalformedRecord = errors.New("malformed record")
)

const maxContentInError = 120

// MalformedError reports an input line that does not decode into a Record.
// Line is 1-based and zero when the caller did not know it.
type MalformedError struct {
	Line    int
	Content string
	Err     error
}

func (e *MalformedError) Error() string {
	content := e.Content
	if len(content) > maxContentInError {
		content = content[:maxContentInError] + "..."
	}

	if e.Line > 0 {
		return fmt.Sprintf("line %d: %v: %v: %q", e.Line, ErrMalformedRecord, e.Err, content)
	}
	return fmt.Sprintf("%v: %v: %q", ErrMalformedRecord, e.Err, content)
}

func (e *MalformedError) Unwrap() []error {
	return []error{ErrMalformedRecord, e.Err}
}
