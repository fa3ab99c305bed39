package snapshot

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/redisdump/redis-dump-go/app/client"
	"github.com/redisdump/redis-dump-go/app/commands"
	"github.com/redisdump/redis-dump-go/app/commands/resp"
	"github.com/redisdump/redis-dump-go/app/redistest"
)

func connect(t *testing.T, srv *redistest.Server) *client.Client {
	t.Helper()

	c, err := client.Dial(context.Background(), client.Options{Addr: srv.Addr(), DialTimeout: time.Second})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	return c
}

// mockConn matches calls on the rendered command, e.g. "TYPE k".
type mockConn struct {
	mock.Mock
}

func (m *mockConn) Do(_ context.Context, cmd commands.Command) (resp.Value, error) {
	args := m.Called(cmd.String())
	return args.Get(0).(resp.Value), args.Error(1)
}

func (m *mockConn) Transaction(_ context.Context, watch []string, cmds ...commands.Command) ([]resp.Value, error) {
	names := make([]string, 0, len(cmds))
	for _, c := range cmds {
		names = append(names, c.String())
	}

	args := m.Called(watch, names)

	results, _ := args.Get(0).([]resp.Value)
	return results, args.Error(1)
}

func posInf() float64 { return math.Inf(1) }
