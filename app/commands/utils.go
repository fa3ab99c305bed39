package commands

import (
	"math"
	"strconv"
	"strings"
)

func Chunk[Slice ~[]T, T any](s Slice, size int) []Slice {
	var c []Slice

	for i := 0; i < len(s); i += size {
		end := min(size, len(s[i:]))
		c = append(c, s[i:i+end:i+end])
	}

	return c
}

// FormatScore renders a sorted set score the way the server accepts it.
func FormatScore(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "+inf"
	case math.IsInf(f, -1):
		return "-inf"
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// ParseScore accepts the score spellings servers reply with, including
// "inf", "+inf" and "-inf".
func ParseScore(s string) (float64, error) {
	switch strings.ToLower(s) {
	case "inf", "+inf":
		return math.Inf(1), nil
	case "-inf":
		return math.Inf(-1), nil
	}
	return strconv.ParseFloat(s, 64)
}
