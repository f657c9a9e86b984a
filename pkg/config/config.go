// Package config loads the controller's YAML configuration.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/zofgo/zof/pkg/controller"
	"github.com/zofgo/zof/pkg/driver"
	"github.com/zofgo/zof/pkg/taskset"
)

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("invalid config")

// Config is the file format of zof-controller.
//
//	listen:
//	  endpoints: ["6653"]
//	  versions: [4]
//	  options: [FEATURES_REQ]
//	tls:
//	  cert: /etc/zof/cert.pem
//	  cacert: /etc/zof/ca.pem
//	  privkey: /etc/zof/key.pem
//	oftr:
//	  path: /usr/local/bin/oftr
//	  args: []
//	  trace: rpc
//	cancel_timeout: 100ms
//	protocol_log: /var/log/zof/trace.zlog
//	log_level: info
//	metrics_addr: ":9100"
type Config struct {
	Listen        ListenConfig  `yaml:"listen"`
	TLS           TLSConfig     `yaml:"tls"`
	Oftr          OftrConfig    `yaml:"oftr"`
	CancelTimeout time.Duration `yaml:"cancel_timeout"`
	ProtocolLog   string        `yaml:"protocol_log"`
	LogLevel      string        `yaml:"log_level"`
	MetricsAddr   string        `yaml:"metrics_addr"`
}

// ListenConfig selects where and how switches connect.
type ListenConfig struct {
	Endpoints []string `yaml:"endpoints"`
	Versions  []int    `yaml:"versions"`
	Options   []string `yaml:"options"`
}

// TLSConfig names PEM files. TLS is off unless Cert is set.
type TLSConfig struct {
	Cert    string `yaml:"cert"`
	CACert  string `yaml:"cacert"`
	PrivKey string `yaml:"privkey"`
}

// Enabled reports whether a certificate is configured.
func (t TLSConfig) Enabled() bool {
	return t.Cert != ""
}

// OftrConfig locates the oftr executable.
type OftrConfig struct {
	Path  string   `yaml:"path"`
	Args  []string `yaml:"args"`
	Trace string   `yaml:"trace"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	ctrl := controller.DefaultConfig()
	return Config{
		Listen: ListenConfig{
			Endpoints: ctrl.ListenEndpoints,
			Versions:  ctrl.ListenVersions,
			Options:   ctrl.ListenOptions,
		},
		Oftr: OftrConfig{
			Path: driver.DefaultOftrPath,
		},
		CancelTimeout: taskset.DefaultCancelTimeout,
		LogLevel:      "info",
	}
}

// Load reads path over the defaults.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults. Unknown keys are rejected.
func Parse(data []byte) (Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("YAML parse error: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks if the config is valid.
func (c *Config) Validate() error {
	if c.CancelTimeout <= 0 {
		return fmt.Errorf("%w: cancel_timeout must be positive", ErrInvalidConfig)
	}
	if c.Oftr.Path == "" {
		return fmt.Errorf("%w: oftr.path is empty", ErrInvalidConfig)
	}
	for _, ep := range c.Listen.Endpoints {
		if strings.TrimSpace(ep) == "" {
			return fmt.Errorf("%w: empty listen endpoint", ErrInvalidConfig)
		}
	}
	for _, v := range c.Listen.Versions {
		if v < 1 || v > 6 {
			return fmt.Errorf("%w: unsupported OpenFlow version %d", ErrInvalidConfig, v)
		}
	}
	if c.TLS.Enabled() && c.TLS.PrivKey == "" {
		return fmt.Errorf("%w: tls.privkey is required with tls.cert", ErrInvalidConfig)
	}
	if !c.TLS.Enabled() && (c.TLS.CACert != "" || c.TLS.PrivKey != "") {
		return fmt.Errorf("%w: tls.cert is required with tls.cacert or tls.privkey", ErrInvalidConfig)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Level parses log_level.
func (c *Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("%w: log_level %q", ErrInvalidConfig, c.LogLevel)
	}
	return level, nil
}

// Controller builds the controller configuration. TLS files are read here.
func (c *Config) Controller() (controller.Config, error) {
	ctrl := controller.DefaultConfig()
	ctrl.ListenEndpoints = c.Listen.Endpoints
	ctrl.ListenVersions = c.Listen.Versions
	ctrl.ListenOptions = c.Listen.Options
	ctrl.CancelTimeout = c.CancelTimeout
	ctrl.Driver.OftrPath = c.Oftr.Path
	ctrl.Driver.OftrArgs = c.Oftr.Args
	ctrl.Driver.Trace = c.Oftr.Trace

	if c.TLS.Enabled() {
		tls, err := c.TLS.load()
		if err != nil {
			return controller.Config{}, err
		}
		ctrl.TLS = tls
	}
	return ctrl, nil
}

func (t TLSConfig) load() (*controller.TLSIdentity, error) {
	read := func(path string) (string, error) {
		if path == "" {
			return "", nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read tls file: %w", err)
		}
		return string(data), nil
	}

	var (
		id  controller.TLSIdentity
		err error
	)
	if id.Cert, err = read(t.Cert); err != nil {
		return nil, err
	}
	if id.CACert, err = read(t.CACert); err != nil {
		return nil, err
	}
	if id.PrivKey, err = read(t.PrivKey); err != nil {
		return nil, err
	}
	return &id, nil
}
