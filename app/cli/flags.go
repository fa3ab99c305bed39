package cli

import (
	"errors"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// configKeys is the flag annotation naming the settings a flag overrides.
const configKeys = "config-keys"

// Flag defaults are read back from viper so help shows the effective value.

func (a *app) stringFlag(fs *pflag.FlagSet, name, short, usage string, keys ...string) {
	fs.StringP(name, short, a.v.GetString(keys[0]), usage)
	annotate(fs, name, keys)
}

func (a *app) intFlag(fs *pflag.FlagSet, name, short, usage string, keys ...string) {
	fs.IntP(name, short, a.v.GetInt(keys[0]), usage)
	annotate(fs, name, keys)
}

func (a *app) boolFlag(fs *pflag.FlagSet, name, short, usage string, keys ...string) {
	fs.BoolP(name, short, a.v.GetBool(keys[0]), usage)
	annotate(fs, name, keys)
}

func (a *app) durationFlag(fs *pflag.FlagSet, name, usage string, keys ...string) {
	fs.Duration(name, a.v.GetDuration(keys[0]), usage)
	annotate(fs, name, keys)
}

func annotate(fs *pflag.FlagSet, name string, keys []string) {
	_ = fs.SetAnnotation(name, configKeys, keys)
}

// bindFlags binds every annotated flag of the running command, inherited
// ones included, to its settings.
func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	var errs []error

	fs.VisitAll(func(f *pflag.Flag) {
		for _, key := range f.Annotations[configKeys] {
			if err := v.BindPFlag(key, f); err != nil {
				errs = append(errs, err)
			}
		}
	})

	return errors.Join(errs...)
}

// connectionFlags registers the flags of one connection. The source keeps
// the short flags; the copy target is spelled --dest-host and so on.
func (a *app) connectionFlags(fs *pflag.FlagSet, prefix, key string, short bool) {
	s := func(letter string) string {
		if short {
			return letter
		}
		return ""
	}

	a.stringFlag(fs, prefix+"host", s("H"), "connect to `HOST`", key+".host")
	a.intFlag(fs, prefix+"port", s("P"), "connect to `PORT`", key+".port")
	a.stringFlag(fs, prefix+"socket", s("s"), "connect to unix `SOCKET` instead of host and port", key+".socket")
	a.intFlag(fs, prefix+"db", s("d"), "database index", key+".db")
	a.stringFlag(fs, prefix+"user", "", "authenticate as `USER` (ACL)", key+".username")
	a.stringFlag(fs, prefix+"password", s("w"), "authenticate with `PASSWORD`", key+".password")

	a.boolFlag(fs, prefix+"tls", s("x"), "connect over TLS", key+".tls.enabled")
	a.stringFlag(fs, prefix+"tls-ca", "", "verify the server against CA `FILE`", key+".tls.ca-file")
	a.stringFlag(fs, prefix+"tls-cert", "", "client certificate `FILE`", key+".tls.cert-file")
	a.stringFlag(fs, prefix+"tls-key", "", "client key `FILE`", key+".tls.key-file")
	a.boolFlag(fs, prefix+"tls-skip-verify", "", "do not verify the server certificate", key+".tls.skip-verify")
	a.stringFlag(fs, prefix+"tls-server-name", "", "expected server `NAME` in the certificate", key+".tls.server-name")

	a.durationFlag(fs, prefix+"dial-timeout", "connection timeout", key+".dial-timeout")
	a.durationFlag(fs, prefix+"read-timeout", "timeout for one reply", key+".read-timeout")
	a.durationFlag(fs, prefix+"write-timeout", "timeout for one request", key+".write-timeout")
}

// dumpFlags are shared by dump and copy.
func (a *app) dumpFlags(fs *pflag.FlagSet) {
	a.stringFlag(fs, "pattern", "p", "dump keys matching glob `PATTERN`", "dump.pattern")
	a.stringFlag(fs, "enumeration", "", "list keys with keys or scan", "dump.enumeration")
	a.intFlag(fs, "scan-count", "", "COUNT hint per SCAN call", "dump.scan-count")
	a.intFlag(fs, "retries", "", "attempts per key changed while it was read", "dump.retries")
	a.durationFlag(fs, "retry-backoff", "first pause between attempts", "dump.retry-backoff")
}

// restoreFlags are shared by restore and copy.
func (a *app) restoreFlags(fs *pflag.FlagSet) {
	a.boolFlag(fs, "use-ttl", "t", "restore remaining lifetimes instead of recorded deadlines", "restore.use-ttl")
	a.intFlag(fs, "bulk", "b", "records per pipeline", "restore.bulk")
}
