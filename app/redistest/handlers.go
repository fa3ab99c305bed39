package redistest

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redisdump/redis-dump-go/app/commands"
	"github.com/redisdump/redis-dump-go/app/commands/resp"
	"github.com/redisdump/redis-dump-go/app/utils"
)

// commandHandler runs with the store lock held.
type commandHandler func(s *Server, sess *session, c commands.Command) resp.Value

type commandSpec struct {
	handler commandHandler
	// arity counts the command name; a negative value is a minimum.
	arity int
	// since is the first server version that knows the command.
	since string
}

func newRouter() map[string]commandSpec {
	return map[string]commandSpec{
		"PING":      {pingHandler, -1, ""},
		"ECHO":      {echoHandler, 2, ""},
		"AUTH":      {authHandler, -2, ""},
		"SELECT":    {selectHandler, 2, ""},
		"INFO":      {infoHandler, -1, ""},
		"DBSIZE":    {dbSizeHandler, 1, ""},
		"FLUSHDB":   {flushDBHandler, -1, ""},
		"FLUSHALL":  {flushAllHandler, -1, ""},
		"KEYS":      {keysHandler, 2, ""},
		"SCAN":      {scanHandler, -2, "2.8.0"},
		"TYPE":      {typeHandler, 2, ""},
		"EXISTS":    {existsHandler, -2, ""},
		"TTL":       {ttlHandler(time.Second), 2, ""},
		"PTTL":      {ttlHandler(time.Millisecond), 2, "2.6.0"},
		"GET":       {getHandler, 2, ""},
		"SET":       {setHandler, -3, ""},
		"DEL":       {delHandler, -2, ""},
		"LRANGE":    {lrangeHandler, 4, ""},
		"RPUSH":     {rpushHandler, -3, ""},
		"SMEMBERS":  {smembersHandler, 2, ""},
		"SADD":      {saddHandler, -3, ""},
		"SCARD":     {scardHandler, 2, ""},
		"ZRANGE":    {zrangeHandler, -4, ""},
		"ZADD":      {zaddHandler, -4, ""},
		"HGETALL":   {hgetallHandler, 2, ""},
		"HGET":      {hgetHandler, 3, ""},
		"HSET":      {hsetHandler, -4, ""},
		"HMSET":     {hsetHandler, -4, ""},
		"XADD":      {xaddHandler, -5, "5.0.0"},
		"XLEN":      {xlenHandler, 2, "5.0.0"},
		"EXPIRE":    {expireHandler(time.Second, false), 3, ""},
		"PEXPIRE":   {expireHandler(time.Millisecond, false), 3, "2.6.0"},
		"EXPIREAT":  {expireHandler(time.Second, true), 3, ""},
		"PEXPIREAT": {expireHandler(time.Millisecond, true), 3, "2.6.0"},
	}
}

const (
	errWrongType  = "WRONGTYPE Operation against a key holding the wrong kind of value"
	errNotInteger = "ERR value is not an integer or out of range"
	errNotFloat   = "ERR value is not a valid float"
	errSyntax     = "ERR syntax error"
)

func errArity(name string) resp.Value {
	return resp.ErrorValue(fmt.Sprintf("ERR wrong number of arguments for '%s' command", strings.ToLower(name)))
}

func errUnknown(c commands.Command) resp.Value {
	return resp.ErrorValue(fmt.Sprintf("ERR unknown command '%s'", c.Type))
}

func checkArity(spec commandSpec, c commands.Command) bool {
	n := len(c.Args) + 1
	if spec.arity < 0 {
		return n >= -spec.arity
	}
	return n == spec.arity
}

func bulkArray(items []string) resp.Value {
	values := make([]resp.Value, len(items))
	for i, s := range items {
		values[i] = resp.BulkStringValue(s)
	}
	return resp.ArrayValue(values...)
}

func okReply() resp.Value { return resp.StringValue("OK") }

func pingHandler(_ *Server, _ *session, c commands.Command) resp.Value {
	if len(c.Args) > 0 {
		return resp.BulkStringValue(c.Args[0])
	}
	return resp.StringValue("PONG")
}

func echoHandler(_ *Server, _ *session, c commands.Command) resp.Value {
	return resp.BulkStringValue(c.Args[0])
}

func authHandler(s *Server, sess *session, c commands.Command) resp.Value {
	if s.password == "" {
		return resp.ErrorValue("ERR AUTH called without any password configured for the default user")
	}

	if len(c.Args) > 2 {
		return errArity(c.Type)
	}

	if c.Args[len(c.Args)-1] != s.password {
		return resp.ErrorValue("WRONGPASS invalid username-password pair or user is disabled.")
	}

	sess.authed = true
	return okReply()
}

func selectHandler(_ *Server, sess *session, c commands.Command) resp.Value {
	n, err := strconv.Atoi(c.Args[0])
	if err != nil {
		return resp.ErrorValue(errNotInteger)
	}

	if n < 0 || n >= databases {
		return resp.ErrorValue("ERR DB index is out of range")
	}

	sess.db = n
	return okReply()
}

func infoHandler(s *Server, _ *session, c commands.Command) resp.Value {
	sections := map[string]bool{}
	for _, a := range c.Args {
		sections[strings.ToLower(a)] = true
	}
	all := len(sections) == 0 || sections["all"] || sections["everything"] || sections["default"]

	var sb strings.Builder

	if all || sections["server"] {
		sb.WriteString("# Server\r\n")
		sb.WriteString("redis_version:" + s.version + "\r\n")
		sb.WriteString("redis_mode:standalone\r\n")
		sb.WriteString("\r\n")
	}

	if all || sections["keyspace"] {
		sb.WriteString("# Keyspace\r\n")
		for _, db := range s.Datastore.databases() {
			keys, expires := s.Datastore.stats(db)
			fmt.Fprintf(&sb, "db%d:keys=%d,expires=%d,avg_ttl=0\r\n", db, keys, expires)
		}
	}

	return resp.BulkStringValue(sb.String())
}

func dbSizeHandler(s *Server, sess *session, _ commands.Command) resp.Value {
	return resp.IntegerValue(int64(len(s.Datastore.keys(sess.db))))
}

func flushDBHandler(s *Server, sess *session, _ commands.Command) resp.Value {
	s.Datastore.flush(sess.db)
	return okReply()
}

func flushAllHandler(s *Server, _ *session, _ commands.Command) resp.Value {
	for db := range s.Datastore.dbs {
		s.Datastore.flush(db)
	}
	return okReply()
}

func keysHandler(s *Server, sess *session, c commands.Command) resp.Value {
	var out []string

	for _, k := range s.Datastore.keys(sess.db) {
		if utils.MatchGlob(c.Args[0], k) {
			out = append(out, k)
		}
	}

	return bulkArray(out)
}

// scanHandler treats the cursor as an offset into the sorted key list.
func scanHandler(s *Server, sess *session, c commands.Command) resp.Value {
	cursor, err := strconv.Atoi(c.Args[0])
	if err != nil || cursor < 0 {
		return resp.ErrorValue("ERR invalid cursor")
	}

	pattern, count := "*", 10

	for i := 1; i < len(c.Args); i += 2 {
		if i+1 >= len(c.Args) {
			return resp.ErrorValue(errSyntax)
		}

		switch strings.ToUpper(c.Args[i]) {
		case "MATCH":
			pattern = c.Args[i+1]
		case "COUNT":
			count, err = strconv.Atoi(c.Args[i+1])
			if err != nil || count < 1 {
				return resp.ErrorValue(errSyntax)
			}
		default:
			return resp.ErrorValue(errSyntax)
		}
	}

	keys := s.Datastore.keys(sess.db)
	end := min(cursor+count, len(keys))

	var out []string
	for i := min(cursor, len(keys)); i < end; i++ {
		if utils.MatchGlob(pattern, keys[i]) {
			out = append(out, keys[i])
		}
	}

	next := "0"
	if end < len(keys) {
		next = strconv.Itoa(end)
	}

	return resp.ArrayValue(resp.BulkStringValue(next), bulkArray(out))
}

func typeHandler(s *Server, sess *session, c commands.Command) resp.Value {
	e := s.Datastore.lookup(sess.db, c.Args[0])
	if e == nil {
		return resp.StringValue("none")
	}
	return resp.StringValue(e.typ)
}

func existsHandler(s *Server, sess *session, c commands.Command) resp.Value {
	var n int64
	for _, k := range c.Args {
		if s.Datastore.lookup(sess.db, k) != nil {
			n++
		}
	}
	return resp.IntegerValue(n)
}

func ttlHandler(unit time.Duration) commandHandler {
	return func(s *Server, sess *session, c commands.Command) resp.Value {
		e := s.Datastore.lookup(sess.db, c.Args[0])

		switch {
		case e == nil:
			return resp.IntegerValue(-2)
		case e.expireAt.IsZero():
			return resp.IntegerValue(-1)
		}

		remaining := e.expireAt.Sub(s.Datastore.now())
		// Whole seconds round to nearest, as the server does.
		return resp.IntegerValue(int64((remaining + unit/2) / unit))
	}
}

func getHandler(s *Server, sess *session, c commands.Command) resp.Value {
	e := s.Datastore.lookup(sess.db, c.Args[0])

	switch {
	case e == nil:
		return resp.BulkNullStringValue()
	case e.typ != typeString:
		return resp.ErrorValue(errWrongType)
	}

	return resp.BulkStringValue(e.str)
}

func setHandler(s *Server, sess *session, c commands.Command) resp.Value {
	opts, err := parseSetOptions(c.Args[2:])
	if err != nil {
		return resp.ErrorValue(errSyntax)
	}

	e := &entry{typ: typeString, str: c.Args[1]}

	if opts.expire > 0 {
		e.expireAt = s.Datastore.now().Add(opts.expire)
	}

	s.Datastore.put(sess.db, c.Args[0], e)
	return okReply()
}

type setOptions struct {
	expire time.Duration
}

func parseSetOptions(args []string) (setOptions, error) {
	var opts setOptions

	for i := 0; i < len(args); i++ {
		unit := time.Second

		switch strings.ToUpper(args[i]) {
		case "PX":
			unit = time.Millisecond
			fallthrough
		case "EX":
			if i+1 >= len(args) {
				return opts, fmt.Errorf("missing expiry")
			}
			n, err := strconv.ParseInt(args[i+1], 10, 64)
			if err != nil || n <= 0 {
				return opts, fmt.Errorf("invalid expiry %q", args[i+1])
			}
			opts.expire = time.Duration(n) * unit
			i++
		default:
			return opts, fmt.Errorf("unknown option %q", args[i])
		}
	}

	return opts, nil
}

func delHandler(s *Server, sess *session, c commands.Command) resp.Value {
	var n int64
	for _, k := range c.Args {
		if s.Datastore.remove(sess.db, k) {
			n++
		}
	}
	return resp.IntegerValue(n)
}

// fetch returns the entry for key if it has type typ. A missing key yields
// (nil, nil); a key of another type yields a WRONGTYPE reply.
func fetch(s *Server, sess *session, key, typ string) (*entry, *resp.Value) {
	e := s.Datastore.lookup(sess.db, key)
	if e == nil {
		return nil, nil
	}

	if e.typ != typ {
		v := resp.ErrorValue(errWrongType)
		return nil, &v
	}

	return e, nil
}

func normalizeRange(startArg, stopArg string, n int) (int, int, bool) {
	start, err1 := strconv.Atoi(startArg)
	stop, err2 := strconv.Atoi(stopArg)

	if err1 != nil || err2 != nil {
		return 0, 0, false
	}

	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	start = max(start, 0)
	stop = min(stop, n-1)

	if start > stop {
		return 0, -1, true
	}

	return start, stop, true
}

func lrangeHandler(s *Server, sess *session, c commands.Command) resp.Value {
	e, errReply := fetch(s, sess, c.Args[0], typeList)
	if errReply != nil {
		return *errReply
	}

	var list []string
	if e != nil {
		list = e.list
	}

	start, stop, valid := normalizeRange(c.Args[1], c.Args[2], len(list))
	if !valid {
		return resp.ErrorValue(errNotInteger)
	}

	if stop < start {
		return resp.ArrayValue()
	}

	return bulkArray(list[start : stop+1])
}

func rpushHandler(s *Server, sess *session, c commands.Command) resp.Value {
	key := c.Args[0]

	e, errReply := fetch(s, sess, key, typeList)
	if errReply != nil {
		return *errReply
	}

	if e == nil {
		e = &entry{typ: typeList}
		s.Datastore.db(sess.db)[key] = e
	}

	e.list = append(e.list, c.Args[1:]...)
	s.Datastore.touch(sess.db, key)

	return resp.IntegerValue(int64(len(e.list)))
}

func smembersHandler(s *Server, sess *session, c commands.Command) resp.Value {
	e, errReply := fetch(s, sess, c.Args[0], typeSet)
	if errReply != nil {
		return *errReply
	}

	if e == nil {
		return resp.ArrayValue()
	}

	members := make([]string, 0, len(e.set))
	for m := range e.set {
		members = append(members, m)
	}
	sort.Strings(members)

	return bulkArray(members)
}

func scardHandler(s *Server, sess *session, c commands.Command) resp.Value {
	e, errReply := fetch(s, sess, c.Args[0], typeSet)
	if errReply != nil {
		return *errReply
	}

	if e == nil {
		return resp.IntegerValue(0)
	}
	return resp.IntegerValue(int64(len(e.set)))
}

func saddHandler(s *Server, sess *session, c commands.Command) resp.Value {
	key := c.Args[0]

	e, errReply := fetch(s, sess, key, typeSet)
	if errReply != nil {
		return *errReply
	}

	if e == nil {
		e = &entry{typ: typeSet, set: make(map[string]struct{})}
		s.Datastore.db(sess.db)[key] = e
	}

	var added int64
	for _, m := range c.Args[1:] {
		if _, exists := e.set[m]; !exists {
			e.set[m] = struct{}{}
			added++
		}
	}
	s.Datastore.touch(sess.db, key)

	return resp.IntegerValue(added)
}

type scoredMember struct {
	member string
	score  float64
}

func sortedMembers(z map[string]float64) []scoredMember {
	out := make([]scoredMember, 0, len(z))
	for m, sc := range z {
		out = append(out, scoredMember{m, sc})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].score != out[j].score {
			return out[i].score < out[j].score
		}
		return out[i].member < out[j].member
	})

	return out
}

func formatScore(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	}
	return commands.FormatScore(f)
}

func zrangeHandler(s *Server, sess *session, c commands.Command) resp.Value {
	withScores := false

	switch {
	case len(c.Args) == 4 && strings.EqualFold(c.Args[3], "WITHSCORES"):
		withScores = true
	case len(c.Args) != 3:
		return resp.ErrorValue(errSyntax)
	}

	e, errReply := fetch(s, sess, c.Args[0], typeZSet)
	if errReply != nil {
		return *errReply
	}

	var members []scoredMember
	if e != nil {
		members = sortedMembers(e.zset)
	}

	start, stop, valid := normalizeRange(c.Args[1], c.Args[2], len(members))
	if !valid {
		return resp.ErrorValue(errNotInteger)
	}

	var out []string
	for i := start; i <= stop; i++ {
		out = append(out, members[i].member)
		if withScores {
			out = append(out, formatScore(members[i].score))
		}
	}

	return bulkArray(out)
}

func zaddHandler(s *Server, sess *session, c commands.Command) resp.Value {
	key, pairs := c.Args[0], c.Args[1:]

	if len(pairs)%2 != 0 {
		return resp.ErrorValue(errSyntax)
	}

	scores := make([]float64, 0, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		f, err := commands.ParseScore(pairs[i])
		if err != nil || math.IsNaN(f) {
			return resp.ErrorValue(errNotFloat)
		}
		scores = append(scores, f)
	}

	e, errReply := fetch(s, sess, key, typeZSet)
	if errReply != nil {
		return *errReply
	}

	if e == nil {
		e = &entry{typ: typeZSet, zset: make(map[string]float64)}
		s.Datastore.db(sess.db)[key] = e
	}

	var added int64
	for i, score := range scores {
		member := pairs[2*i+1]
		if _, exists := e.zset[member]; !exists {
			added++
		}
		e.zset[member] = score
	}
	s.Datastore.touch(sess.db, key)

	return resp.IntegerValue(added)
}

func hgetallHandler(s *Server, sess *session, c commands.Command) resp.Value {
	e, errReply := fetch(s, sess, c.Args[0], typeHash)
	if errReply != nil {
		return *errReply
	}

	if e == nil {
		return resp.ArrayValue()
	}

	fields := make([]string, 0, len(e.hash))
	for f := range e.hash {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	out := make([]string, 0, 2*len(fields))
	for _, f := range fields {
		out = append(out, f, e.hash[f])
	}

	return bulkArray(out)
}

func hgetHandler(s *Server, sess *session, c commands.Command) resp.Value {
	e, errReply := fetch(s, sess, c.Args[0], typeHash)
	if errReply != nil {
		return *errReply
	}

	if e == nil {
		return resp.BulkNullStringValue()
	}

	v, ok := e.hash[c.Args[1]]
	if !ok {
		return resp.BulkNullStringValue()
	}
	return resp.BulkStringValue(v)
}

func hsetHandler(s *Server, sess *session, c commands.Command) resp.Value {
	key, pairs := c.Args[0], c.Args[1:]

	if len(pairs)%2 != 0 {
		return errArity(c.Type)
	}

	e, errReply := fetch(s, sess, key, typeHash)
	if errReply != nil {
		return *errReply
	}

	if e == nil {
		e = &entry{typ: typeHash, hash: make(map[string]string)}
		s.Datastore.db(sess.db)[key] = e
	}

	var added int64
	for i := 0; i < len(pairs); i += 2 {
		if _, exists := e.hash[pairs[i]]; !exists {
			added++
		}
		e.hash[pairs[i]] = pairs[i+1]
	}
	s.Datastore.touch(sess.db, key)

	if c.Name() == "HMSET" {
		return okReply()
	}
	return resp.IntegerValue(added)
}

// expireHandler serves the four expiration commands. A deadline that is
// already past deletes the key.
func expireHandler(unit time.Duration, absolute bool) commandHandler {
	return func(s *Server, sess *session, c commands.Command) resp.Value {
		n, err := strconv.ParseInt(c.Args[1], 10, 64)
		if err != nil {
			return resp.ErrorValue(errNotInteger)
		}

		key := c.Args[0]
		e := s.Datastore.lookup(sess.db, key)
		if e == nil {
			return resp.IntegerValue(0)
		}

		now := s.Datastore.now()
		at := now.Add(time.Duration(n) * unit)

		switch {
		case absolute && unit == time.Second:
			at = time.Unix(n, 0)
		case absolute:
			at = time.UnixMilli(n)
		}

		if !at.After(now) {
			s.Datastore.remove(sess.db, key)
			return resp.IntegerValue(1)
		}

		e.expireAt = at
		s.Datastore.touch(sess.db, key)

		return resp.IntegerValue(1)
	}
}

// xaddHandler supports XADD key id field value [field value ...] without
// the trimming options.
func xaddHandler(s *Server, sess *session, c commands.Command) resp.Value {
	key, id, fields := c.Args[0], c.Args[1], c.Args[2:]

	if len(fields)%2 != 0 {
		return errArity(c.Type)
	}

	e, errReply := fetch(s, sess, key, typeStream)
	if errReply != nil {
		return *errReply
	}

	if e == nil {
		e = &entry{typ: typeStream, stream: &streamLog{}}
		s.Datastore.db(sess.db)[key] = e
	}

	id, err := e.stream.add(id, fields, s.Datastore.now())
	if err != nil {
		return resp.ErrorValue(err.Error())
	}
	s.Datastore.touch(sess.db, key)

	return resp.BulkStringValue(id)
}

func xlenHandler(s *Server, sess *session, c commands.Command) resp.Value {
	e, errReply := fetch(s, sess, c.Args[0], typeStream)
	if errReply != nil {
		return *errReply
	}

	if e == nil {
		return resp.IntegerValue(0)
	}
	return resp.IntegerValue(int64(e.stream.size))
}
