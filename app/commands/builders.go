package commands

import "strconv"

func Ping() Command { return New("PING") }

func Auth(username, password string) Command {
	if username == "" {
		return New("AUTH", password)
	}
	return New("AUTH", username, password)
}

func Select(db int) Command { return New("SELECT", strconv.Itoa(db)) }

func Info(sections ...string) Command { return New("INFO", sections...) }

func Keys(pattern string) Command { return New("KEYS", pattern) }

func Scan(cursor, pattern string, count int) Command {
	return New("SCAN", cursor, "MATCH", pattern, "COUNT", strconv.Itoa(count))
}

func Type(key string) Command { return New("TYPE", key) }

func TTL(key string) Command { return New("TTL", key) }

func PTTL(key string) Command { return New("PTTL", key) }

func Watch(keys ...string) Command { return New("WATCH", keys...) }

func Multi() Command { return New("MULTI") }

func Exec() Command { return New("EXEC") }

func Discard() Command { return New("DISCARD") }

// Value readers, one per supported type.

func Get(key string) Command { return New("GET", key) }

func LRange(key string) Command { return New("LRANGE", key, "0", "-1") }

func SMembers(key string) Command { return New("SMEMBERS", key) }

func ZRangeWithScores(key string) Command {
	return New("ZRANGE", key, "0", "-1", "WITHSCORES")
}

func HGetAll(key string) Command { return New("HGETALL", key) }

// Writers.

func Del(key string) Command { return New("DEL", key) }

func Set(key, value string) Command { return New("SET", key, value) }

func RPush(key string, elements ...string) Command {
	return New("RPUSH", append([]string{key}, elements...)...)
}

func SAdd(key string, members ...string) Command {
	return New("SADD", append([]string{key}, members...)...)
}

// ZAdd takes alternating score, member arguments.
func ZAdd(key string, scoreMembers ...string) Command {
	return New("ZADD", append([]string{key}, scoreMembers...)...)
}

// HSet takes alternating field, value arguments.
func HSet(key string, fieldValues ...string) Command {
	return New("HSET", append([]string{key}, fieldValues...)...)
}

func Expire(key string, seconds int64) Command {
	return New("EXPIRE", key, strconv.FormatInt(seconds, 10))
}

func PExpire(key string, milliseconds int64) Command {
	return New("PEXPIRE", key, strconv.FormatInt(milliseconds, 10))
}

func ExpireAt(key string, unixSeconds int64) Command {
	return New("EXPIREAT", key, strconv.FormatInt(unixSeconds, 10))
}

func PExpireAt(key string, unixMilliseconds int64) Command {
	return New("PEXPIREAT", key, strconv.FormatInt(unixMilliseconds, 10))
}
