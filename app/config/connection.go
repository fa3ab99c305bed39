package config

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/redisdump/redis-dump-go/app/client"
)

type Connection struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Socket   string `mapstructure:"socket"`
	DB       int    `mapstructure:"db"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	TLS      TLS    `mapstructure:"tls"`

	DialTimeout  time.Duration `mapstructure:"dial-timeout"`
	ReadTimeout  time.Duration `mapstructure:"read-timeout"`
	WriteTimeout time.Duration `mapstructure:"write-timeout"`
}

type TLS struct {
	Enabled    bool   `mapstructure:"enabled"`
	CAFile     string `mapstructure:"ca-file"`
	CertFile   string `mapstructure:"cert-file"`
	KeyFile    string `mapstructure:"key-file"`
	SkipVerify bool   `mapstructure:"skip-verify"`
	ServerName string `mapstructure:"server-name"`
}

func (c Connection) Validate() error {
	var errs []error

	if c.Socket == "" {
		if c.Host == "" {
			errs = append(errs, errors.New("host must not be empty"))
		}
		if c.Port < 1 || c.Port > 65535 {
			errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
		}
	}

	if c.DB < 0 {
		errs = append(errs, fmt.Errorf("db %d must not be negative", c.DB))
	}

	if (c.TLS.CertFile == "") != (c.TLS.KeyFile == "") {
		errs = append(errs, errors.New("tls.cert-file and tls.key-file go together"))
	}

	return errors.Join(errs...)
}

// String names the endpoint for logs, e.g. "localhost:6379/0".
func (c Connection) String() string {
	if c.Socket != "" {
		return fmt.Sprintf("unix:%s/%d", c.Socket, c.DB)
	}
	return fmt.Sprintf("%s/%d", net.JoinHostPort(c.Host, strconv.Itoa(c.Port)), c.DB)
}

// ClientOptions translates the connection into dial options. A socket path
// wins over host and port.
func (c Connection) ClientOptions(log *zap.Logger) (client.Options, error) {
	opts := client.Options{
		Network:      "tcp",
		Addr:         net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Username:     c.Username,
		Password:     c.Password,
		DB:           c.DB,
		DialTimeout:  c.DialTimeout,
		ReadTimeout:  c.ReadTimeout,
		WriteTimeout: c.WriteTimeout,
		Logger:       log,
	}

	if c.Socket != "" {
		opts.Network, opts.Addr = "unix", c.Socket
		return opts, nil
	}

	if c.TLS.Enabled {
		cfg, err := c.TLS.Config(c.Host)
		if err != nil {
			return opts, err
		}
		opts.TLS = cfg
	}

	return opts, nil
}

func (t TLS) Config(host string) (*tls.Config, error) {
	cfg := &tls.Config{
		ServerName:         host,
		InsecureSkipVerify: t.SkipVerify, //nolint:gosec // opt-in for self-signed servers
		MinVersion:         tls.VersionTLS12,
	}

	if t.ServerName != "" {
		cfg.ServerName = t.ServerName
	}

	if t.CAFile != "" {
		pem, err := os.ReadFile(t.CAFile)
		if err != nil {
			return nil, fmt.Errorf("tls ca: %w", err)
		}

		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("tls ca: no certificates in %s", t.CAFile)
		}
		cfg.RootCAs = pool
	}

	if t.CertFile != "" {
		cert, err := tls.LoadX509KeyPair(t.CertFile, t.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("tls client certificate: %w", err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	}

	return cfg, nil
}
