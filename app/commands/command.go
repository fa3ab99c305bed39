package commands

import (
	"errors"
	"strings"

	"github.com/redisdump/redis-dump-go/app/commands/resp"
)

// Command is one request: a command name followed by its arguments. Keys
// and values travel as Go strings, which are byte safe.
type Command struct {
	Type string
	Args []string
}

func New(typ string, args ...string) Command {
	return Command{Type: typ, Args: args}
}

// NewCommand decodes a request received on the wire. Requests are either an
// array of bulk strings or, for inline use, a single simple string.
func NewCommand(value resp.Value) (Command, error) {
	if value.Type == resp.Null || value.IsNil {
		return Command{}, errors.New("invalid command")
	}

	if value.Type == resp.Array {
		arr, err := value.AsStrings()

		if err != nil {
			return Command{}, err
		}

		if len(arr) == 0 {
			return Command{}, errors.New("empty command")
		}

		return Command{
			Type: arr[0],
			Args: arr[1:],
		}, nil
	}

	typ, err := value.AsString()

	if err != nil {
		return Command{}, err
	}

	return Command{Type: typ}, nil
}

// Name is the upper-cased command name, for dispatch and logging.
func (c Command) Name() string {
	return strings.ToUpper(c.Type)
}

// Strings returns the full argument vector including the command name.
func (c Command) Strings() []string {
	out := make([]string, 0, len(c.Args)+1)
	out = append(out, c.Type)
	return append(out, c.Args...)
}

func (c Command) Value() resp.Value {
	values := make([]resp.Value, 0, len(c.Args)+1)
	values = append(values, resp.BulkStringValue(c.Type))

	for _, a := range c.Args {
		values = append(values, resp.BulkStringValue(a))
	}

	return resp.ArrayValue(values...)
}

func (c Command) String() string {
	if len(c.Args) == 0 {
		return c.Name()
	}
	return c.Name() + " " + strings.Join(c.Args, " ")
}
