package redistest

import (
	"github.com/redisdump/redis-dump-go/app/commands"
	"github.com/redisdump/redis-dump-go/app/commands/resp"
)

type watchKey struct {
	db  int
	key string
}

// session is the per-connection state: selected database, authentication
// and the MULTI queue with its watched keys.
type session struct {
	db     int
	authed bool

	multi   bool
	dirty   bool
	queue   []commands.Command
	watched map[watchKey]uint64
}

func (sess *session) reset() {
	sess.multi = false
	sess.dirty = false
	sess.queue = nil
	sess.watched = nil
}

// transaction handles MULTI/EXEC/DISCARD/WATCH/UNWATCH and queues commands
// while a MULTI is open. It reports false for commands it leaves to the
// router.
func (s *Server) transaction(sess *session, c commands.Command) (resp.Value, bool) {
	switch c.Name() {
	case "MULTI":
		if sess.multi {
			return resp.ErrorValue("ERR MULTI calls can not be nested"), true
		}
		sess.multi = true
		sess.dirty = false
		sess.queue = nil
		return okReply(), true

	case "EXEC":
		if !sess.multi {
			return resp.ErrorValue("ERR EXEC without MULTI"), true
		}
		return s.commit(sess), true

	case "DISCARD":
		if !sess.multi {
			return resp.ErrorValue("ERR DISCARD without MULTI"), true
		}
		sess.reset()
		return okReply(), true

	case "WATCH":
		if sess.multi {
			return resp.ErrorValue("ERR WATCH inside MULTI is not allowed"), true
		}
		if len(c.Args) == 0 {
			return errArity(c.Type), true
		}
		s.watch(sess, c.Args)
		return okReply(), true

	case "UNWATCH":
		sess.watched = nil
		return okReply(), true
	}

	if !sess.multi {
		return resp.Value{}, false
	}

	spec, known := s.router[c.Name()]

	switch {
	case !known:
		sess.dirty = true
		return errUnknown(c), true
	case !checkArity(spec, c):
		sess.dirty = true
		return errArity(c.Type), true
	}

	sess.queue = append(sess.queue, c)
	return resp.StringValue("QUEUED"), true
}

func (s *Server) watch(sess *session, keys []string) {
	s.Datastore.mu.Lock()
	defer s.Datastore.mu.Unlock()

	if sess.watched == nil {
		sess.watched = make(map[watchKey]uint64)
	}

	for _, k := range keys {
		wk := watchKey{db: sess.db, key: k}
		if _, exists := sess.watched[wk]; !exists {
			sess.watched[wk] = s.Datastore.version(sess.db, k)
		}
	}
}

// commit runs the queued commands atomically, or replies with a null array
// when a watched key changed since WATCH.
func (s *Server) commit(sess *session) resp.Value {
	defer sess.reset()

	if sess.dirty {
		return resp.ErrorValue("EXECABORT Transaction discarded because of previous errors.")
	}

	s.Datastore.mu.Lock()
	defer s.Datastore.mu.Unlock()

	for wk, version := range sess.watched {
		if s.Datastore.version(wk.db, wk.key) != version {
			return resp.NullArrayValue()
		}
	}

	results := make([]resp.Value, 0, len(sess.queue))
	for _, c := range sess.queue {
		results = append(results, s.execute(sess, c))
	}

	return resp.ArrayValue(results...)
}
