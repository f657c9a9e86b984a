package controller

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/zofgo/zof/pkg/driver"
	"github.com/zofgo/zof/pkg/taskset"
)

// Errors returned by the controller.
var (
	ErrInvalidConfig  = errors.New("invalid controller config")
	ErrAlreadyStarted = errors.New("controller already started")
	ErrDuplicateApp   = errors.New("app name already registered")
)

// TLSIdentity is PEM material handed to oftr for TLS listeners.
type TLSIdentity struct {
	Cert    string
	CACert  string
	PrivKey string
}

// Config configures a Controller.
type Config struct {
	// ListenEndpoints are the addresses oftr accepts switches on.
	// Empty means the controller does not listen.
	ListenEndpoints []string

	// ListenVersions restricts the OpenFlow versions offered.
	ListenVersions []int

	// ListenOptions are oftr connection options.
	ListenOptions []string

	// TLS, when set, is added as an identity and used by every listener.
	TLS *TLSIdentity

	// CancelTimeout bounds how long shutdown waits for cancelled tasks.
	CancelTimeout time.Duration

	// Driver configures the oftr driver.
	Driver driver.Config

	// Logger is the logger to use. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// DefaultConfig returns the default controller configuration.
func DefaultConfig() Config {
	return Config{
		ListenEndpoints: []string{"6653"},
		ListenVersions:  []int{4},
		ListenOptions:   []string{"FEATURES_REQ"},
		CancelTimeout:   taskset.DefaultCancelTimeout,
		Driver:          driver.DefaultConfig(),
	}
}

// Validate checks if the controller config is valid.
func (c *Config) Validate() error {
	if c.CancelTimeout <= 0 {
		return fmt.Errorf("%w: cancel timeout must be positive", ErrInvalidConfig)
	}
	for _, ep := range c.ListenEndpoints {
		if ep == "" {
			return fmt.Errorf("%w: empty listen endpoint", ErrInvalidConfig)
		}
	}
	for _, v := range c.ListenVersions {
		if v < 1 || v > 6 {
			return fmt.Errorf("%w: unsupported OpenFlow version %d", ErrInvalidConfig, v)
		}
	}
	if c.TLS != nil && (c.TLS.Cert == "" || c.TLS.PrivKey == "") {
		return fmt.Errorf("%w: TLS needs a certificate and private key", ErrInvalidConfig)
	}
	return nil
}
