package client

import (
	"sort"
	"strconv"
	"strings"
)

// ServerInfo is the parsed text of an INFO reply.
type ServerInfo struct {
	// Sections maps a lower-cased section name to its fields.
	Sections map[string]map[string]string
	Keyspace []KeyspaceStats
}

// KeyspaceStats is one "dbN:keys=..,expires=..,avg_ttl=.." line.
type KeyspaceStats struct {
	DB      int
	Keys    int64
	Expires int64
	AvgTTL  int64
}

func ParseInfo(text string) *ServerInfo {
	info := &ServerInfo{Sections: make(map[string]map[string]string)}
	section := "default"

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")

		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "#") {
			section = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(line, "#")))
			continue
		}

		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}

		if info.Sections[section] == nil {
			info.Sections[section] = make(map[string]string)
		}
		info.Sections[section][key] = value

		if db, ok := parseDBName(key); ok {
			info.Keyspace = append(info.Keyspace, parseKeyspace(db, value))
		}
	}

	sort.Slice(info.Keyspace, func(i, j int) bool {
		return info.Keyspace[i].DB < info.Keyspace[j].DB
	})

	return info
}

func parseDBName(key string) (int, bool) {
	rest, ok := strings.CutPrefix(key, "db")
	if !ok || rest == "" {
		return 0, false
	}

	n, err := strconv.Atoi(rest)
	if err != nil || n < 0 {
		return 0, false
	}

	return n, true
}

func parseKeyspace(db int, value string) KeyspaceStats {
	stats := KeyspaceStats{DB: db}

	for _, pair := range strings.Split(value, ",") {
		k, v, _ := strings.Cut(pair, "=")
		n, _ := strconv.ParseInt(v, 10, 64)

		switch k {
		case "keys":
			stats.Keys = n
		case "expires":
			stats.Expires = n
		case "avg_ttl":
			stats.AvgTTL = n
		}
	}

	return stats
}

// Get looks a field up in any section.
func (i *ServerInfo) Get(field string) (string, bool) {
	for _, fields := range i.Sections {
		if v, ok := fields[field]; ok {
			return v, true
		}
	}
	return "", false
}

func (i *ServerInfo) Version() string {
	v, _ := i.Get("redis_version")
	return v
}

// SupportsPTTL reports whether the server has millisecond lifetimes, which
// arrived in 2.6. An unknown version is assumed to be modern.
func (i *ServerInfo) SupportsPTTL() bool {
	v := i.Version()
	if v == "" {
		return true
	}
	return CompareVersions(v, "2.6.0") >= 0
}

// Databases lists the indices of databases holding keys.
func (i *ServerInfo) Databases() []int {
	dbs := make([]int, 0, len(i.Keyspace))
	for _, ks := range i.Keyspace {
		dbs = append(dbs, ks.DB)
	}
	return dbs
}

// CompareVersions compares dotted numeric versions; missing or non-numeric
// components count as zero.
func CompareVersions(a, b string) int {
	as, bs := strings.Split(a, "."), strings.Split(b, ".")

	for k := 0; k < max(len(as), len(bs)); k++ {
		x, y := versionPart(as, k), versionPart(bs, k)

		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
	}

	return 0
}

func versionPart(parts []string, k int) int {
	if k >= len(parts) {
		return 0
	}
	n, _ := strconv.Atoi(parts[k])
	return n
}
