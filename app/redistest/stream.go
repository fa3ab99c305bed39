package redistest

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

type streamEntry struct {
	id     string
	fields []string
}

type streamNode struct {
	prefix   string
	entry    *streamEntry
	children map[byte]*streamNode
}

// streamLog keeps stream entries in a compressed prefix tree keyed by ID.
// Keys of this type exist so clients can meet a type they do not handle.
type streamLog struct {
	root *streamNode
	last string
	size int
}

// add appends an entry. "*" generates "<ms>-<seq>" after the last ID.
func (s *streamLog) add(id string, fields []string, now time.Time) (string, error) {
	if id == "*" {
		id = s.nextID(now)
	} else if !s.after(id) {
		return "", errors.New("ERR The ID specified in XADD is equal or smaller than the target stream top item")
	}

	e := &streamEntry{id: id, fields: fields}
	s.insert(id, e)
	s.last = id
	s.size++

	return id, nil
}

func (s *streamLog) insert(id string, e *streamEntry) {
	if s.root == nil {
		s.root = &streamNode{children: make(map[byte]*streamNode)}
	}

	node, rest := s.root, id
	for {
		if rest == "" {
			node.entry = e
			return
		}

		child, ok := node.children[rest[0]]
		if !ok {
			node.children[rest[0]] = &streamNode{prefix: rest, entry: e, children: make(map[byte]*streamNode)}
			return
		}

		common := longestCommonPrefix(rest, child.prefix)
		if common != child.prefix {
			// Split the child at the shared part.
			split := &streamNode{prefix: common, children: make(map[byte]*streamNode)}
			child.prefix = child.prefix[len(common):]
			split.children[child.prefix[0]] = child
			node.children[common[0]] = split
			child = split
		}

		node, rest = child, rest[len(common):]
	}
}

func (s *streamLog) get(id string) *streamEntry {
	node, rest := s.root, id

	for node != nil {
		if rest == "" {
			return node.entry
		}

		child, ok := node.children[rest[0]]
		if !ok || !strings.HasPrefix(rest, child.prefix) {
			return nil
		}
		node, rest = child, rest[len(child.prefix):]
	}

	return nil
}

func (s *streamLog) nextID(now time.Time) string {
	ms := now.UnixMilli()

	lastMs, lastSeq, ok := parseStreamID(s.last)
	if ok && lastMs >= ms {
		return fmt.Sprintf("%d-%d", lastMs, lastSeq+1)
	}
	return fmt.Sprintf("%d-0", ms)
}

func (s *streamLog) after(id string) bool {
	ms, seq, ok := parseStreamID(id)
	if !ok || (ms == 0 && seq == 0) {
		return false
	}

	lastMs, lastSeq, hasLast := parseStreamID(s.last)
	if !hasLast {
		return true
	}
	return ms > lastMs || (ms == lastMs && seq > lastSeq)
}

func parseStreamID(id string) (ms, seq int64, ok bool) {
	if id == "" {
		return 0, 0, false
	}

	msText, seqText, found := strings.Cut(id, "-")

	ms, err := strconv.ParseInt(msText, 10, 64)
	if err != nil {
		return 0, 0, false
	}

	if found {
		if seq, err = strconv.ParseInt(seqText, 10, 64); err != nil {
			return 0, 0, false
		}
	}

	return ms, seq, true
}

func longestCommonPrefix(a, b string) string {
	n := min(len(a), len(b))

	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return a[:i]
		}
	}
	return a[:n]
}
