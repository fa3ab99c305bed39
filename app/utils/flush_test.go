package utils

import (
	"bufio"
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlush(t *testing.T) {
	tests := []struct {
		name string
		wrap func(*bytes.Buffer) io.Writer
	}{
		{
			name: "bufio writer",
			wrap: func(b *bytes.Buffer) io.Writer { return bufio.NewWriter(b) },
		},
		{
			name: "bufio read writer",
			wrap: func(b *bytes.Buffer) io.Writer {
				return bufio.NewReadWriter(bufio.NewReader(b), bufio.NewWriter(b))
			},
		},
		{
			name: "unbuffered writer",
			wrap: func(b *bytes.Buffer) io.Writer { return b },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			w := tt.wrap(&buf)

			_, err := w.Write([]byte("+OK\r\n"))
			require.NoError(t, err)

			require.NoError(t, Flush(w))
			assert.Equal(t, "+OK\r\n", buf.String())
		})
	}
}
