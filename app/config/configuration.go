// Package config assembles the run configuration from defaults, a config
// file, REDIS_DUMP_* environment variables and command-line flags.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"

	"github.com/redisdump/redis-dump-go/app/archive"
	"github.com/redisdump/redis-dump-go/app/report"
	"github.com/redisdump/redis-dump-go/app/snapshot"
)

const EnvPrefix = "REDIS_DUMP"

type Configuration struct {
	// Source is the server dumped from; restore and dblist use it too.
	Source Connection `mapstructure:"source"`
	// Target is the destination of copy.
	Target  Connection `mapstructure:"target"`
	Dump    Dump       `mapstructure:"dump"`
	Restore Restore    `mapstructure:"restore"`
	Log     Log        `mapstructure:"log"`
}

type Dump struct {
	Pattern      string               `mapstructure:"pattern"`
	Outfile      string               `mapstructure:"outfile"`
	Compression  archive.Codec        `mapstructure:"compression"`
	Enumeration  snapshot.Enumeration `mapstructure:"enumeration"`
	ScanCount    int                  `mapstructure:"scan-count"`
	Retries      int                  `mapstructure:"retries"`
	RetryBackoff time.Duration        `mapstructure:"retry-backoff"`
	OnError      report.Policy        `mapstructure:"on-error"`
	Report       string               `mapstructure:"report"`
}

type Restore struct {
	Infile      string        `mapstructure:"infile"`
	Compression archive.Codec `mapstructure:"compression"`
	UseTTL      bool          `mapstructure:"use-ttl"`
	Bulk        int           `mapstructure:"bulk"`
	OnError     report.Policy `mapstructure:"on-error"`
	Report      string        `mapstructure:"report"`
}

type Log struct {
	Level  zapcore.Level `mapstructure:"level"`
	Format string        `mapstructure:"format"`
}

var defaults = map[string]any{
	"source.host":         "localhost",
	"source.port":         6379,
	"source.socket":       "",
	"source.db":           0,
	"source.username":     "",
	"source.password":     "",
	"source.dial-timeout": 5 * time.Second,
	"source.read-timeout": 30 * time.Second,
	// Writes are pipelined in bulk and can take a while to drain.
	"source.write-timeout": 30 * time.Second,

	"source.tls.enabled":     false,
	"source.tls.ca-file":     "",
	"source.tls.cert-file":   "",
	"source.tls.key-file":    "",
	"source.tls.skip-verify": false,
	"source.tls.server-name": "",

	"dump.pattern":       snapshot.DefaultPattern,
	"dump.outfile":       archive.Stdio,
	"dump.compression":   "auto",
	"dump.enumeration":   "keys",
	"dump.scan-count":    snapshot.DefaultScanCount,
	"dump.retries":       snapshot.DefaultRetries,
	"dump.retry-backoff": snapshot.DefaultBackoff,
	"dump.on-error":      "abort",
	"dump.report":        "",

	"restore.infile":      "",
	"restore.compression": "auto",
	"restore.use-ttl":     false,
	"restore.bulk":        1000,
	"restore.on-error":    "abort",
	"restore.report":      "",

	"log.level":  "info",
	"log.format": "console",
}

// New returns a viper instance with every key defaulted and environment
// lookup enabled, so REDIS_DUMP_SOURCE_HOST overrides source.host.
func New() *viper.Viper {
	v := viper.New()

	for key, value := range defaults {
		v.SetDefault(key, value)
		// The target mirrors the source unless told otherwise.
		if strings.HasPrefix(key, "source.") {
			v.SetDefault("target."+strings.TrimPrefix(key, "source."), value)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	return v
}

// ReadFile merges a config file into v. The format follows the extension.
func ReadFile(v *viper.Viper, path string) error {
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	return nil
}

// Load decodes and validates the configuration held by v.
func Load(v *viper.Viper) (*Configuration, error) {
	var c Configuration

	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.TextUnmarshallerHookFunc(),
		mapstructure.StringToTimeDurationHookFunc(),
	))

	if err := v.Unmarshal(&c, hook); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}

	return &c, nil
}

func (c *Configuration) Validate() error {
	var errs []error

	if err := c.Source.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("source: %w", err))
	}
	if err := c.Target.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("target: %w", err))
	}

	if c.Dump.Pattern == "" {
		errs = append(errs, errors.New("dump.pattern must not be empty"))
	}
	if c.Dump.ScanCount < 1 {
		errs = append(errs, errors.New("dump.scan-count must be positive"))
	}
	if c.Dump.Retries < 1 {
		errs = append(errs, errors.New("dump.retries must be at least 1"))
	}
	if c.Dump.RetryBackoff < 0 {
		errs = append(errs, errors.New("dump.retry-backoff must not be negative"))
	}

	if c.Restore.Bulk < 1 {
		errs = append(errs, errors.New("restore.bulk must be positive"))
	}

	switch c.Log.Format {
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format %q (want console or json)", c.Log.Format))
	}

	return errors.Join(errs...)
}
