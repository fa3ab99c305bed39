package redistest

import (
	"strconv"
	"strings"
	"testing"
)

// Run starts a server on a loopback port and stops it when the test ends.
func Run(tb testing.TB, opts ...Option) *Server {
	tb.Helper()

	s, err := NewServer("tcp", "127.0.0.1:0", opts...)
	if err != nil {
		tb.Fatalf("redistest: listen: %v", err)
	}

	s.Start()
	tb.Cleanup(s.Stop)

	return s
}

func compareVersions(a, b string) int {
	as, bs := strings.Split(a, "."), strings.Split(b, ".")

	for i := 0; i < max(len(as), len(bs)); i++ {
		var x, y int
		if i < len(as) {
			x, _ = strconv.Atoi(as[i])
		}
		if i < len(bs) {
			y, _ = strconv.Atoi(bs[i])
		}

		if x != y {
			if x < y {
				return -1
			}
			return 1
		}
	}

	return 0
}
