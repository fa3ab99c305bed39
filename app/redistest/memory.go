package redistest

import (
	"sort"
	"sync"
	"time"
)

const (
	typeString = "string"
	typeList   = "list"
	typeSet    = "set"
	typeZSet   = "zset"
	typeHash   = "hash"
	typeStream = "stream"
)

// entry is one key's value. Only the field matching typ is populated.
type entry struct {
	typ      string
	str      string
	list     []string
	set      map[string]struct{}
	zset     map[string]float64
	hash     map[string]string
	stream   *streamLog
	expireAt time.Time
}

func (e *entry) isExpired(now time.Time) bool {
	return !e.expireAt.IsZero() && !now.Before(e.expireAt)
}

// Memory is a multi-database keyspace with a modification version per key,
// which is what WATCH compares.
type Memory struct {
	mu       sync.Mutex
	dbs      map[int]map[string]*entry
	versions map[int]map[string]uint64
	clock    uint64
	now      func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		dbs:      make(map[int]map[string]*entry),
		versions: make(map[int]map[string]uint64),
		now:      time.Now,
	}
}

func (m *Memory) db(n int) map[string]*entry {
	d, ok := m.dbs[n]
	if !ok {
		d = make(map[string]*entry)
		m.dbs[n] = d
	}
	return d
}

// touch records a modification of key.
func (m *Memory) touch(db int, key string) {
	v, ok := m.versions[db]
	if !ok {
		v = make(map[string]uint64)
		m.versions[db] = v
	}
	m.clock++
	v[key] = m.clock
}

func (m *Memory) version(db int, key string) uint64 {
	m.expire(db, key)
	return m.versions[db][key]
}

// lookup returns the live entry for key, evicting it first when expired.
func (m *Memory) lookup(db int, key string) *entry {
	m.expire(db, key)
	return m.db(db)[key]
}

func (m *Memory) expire(db int, key string) {
	e, ok := m.db(db)[key]
	if ok && e.isExpired(m.now()) {
		delete(m.db(db), key)
		m.touch(db, key)
	}
}

func (m *Memory) put(db int, key string, e *entry) {
	m.db(db)[key] = e
	m.touch(db, key)
}

func (m *Memory) remove(db int, key string) bool {
	if m.lookup(db, key) == nil {
		return false
	}
	delete(m.db(db), key)
	m.touch(db, key)
	return true
}

// keys returns the live keys of db in sorted order.
func (m *Memory) keys(db int) []string {
	d := m.db(db)
	out := make([]string, 0, len(d))

	for k := range d {
		if m.lookup(db, k) != nil {
			out = append(out, k)
		}
	}

	sort.Strings(out)
	return out
}

func (m *Memory) stats(db int) (keys, expires int) {
	for _, k := range m.keys(db) {
		keys++
		if !m.db(db)[k].expireAt.IsZero() {
			expires++
		}
	}
	return keys, expires
}

func (m *Memory) databases() []int {
	out := make([]int, 0, len(m.dbs))
	for n := range m.dbs {
		if len(m.keys(n)) > 0 {
			out = append(out, n)
		}
	}
	sort.Ints(out)
	return out
}

func (m *Memory) flush(db int) {
	for k := range m.db(db) {
		m.touch(db, k)
	}
	m.dbs[db] = make(map[string]*entry)
}
