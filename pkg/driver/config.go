package driver

import (
	"context"
	"io"
	"log/slog"

	"github.com/zofgo/zof/pkg/log"
	"github.com/zofgo/zof/pkg/rpc"
)

// Defaults.
const (
	// DefaultOftrPath is the oftr executable looked up in PATH.
	DefaultOftrPath = "oftr"
)

// Dialer opens the byte stream to oftr. The returned stream is closed by
// Driver.Close.
type Dialer func(ctx context.Context) (io.ReadWriteCloser, error)

// Config configures a Driver.
type Config struct {
	// OftrPath is the oftr executable.
	OftrPath string

	// OftrArgs are passed to oftr after the "jsonrpc" subcommand.
	OftrArgs []string

	// Trace enables oftr's own tracing (e.g. "rpc"). Empty disables it.
	Trace string

	// Dialer replaces the oftr subprocess with an arbitrary stream.
	// Used by tests and by in-process simulators.
	Dialer Dialer

	// ProtocolLogger records every frame and correlated message.
	// If nil, protocol logging is disabled.
	ProtocolLogger log.Logger

	// Xids allocates transaction ids. Share one allocator between every
	// component that issues requests on this driver. If nil, the driver
	// creates its own.
	Xids *rpc.XidAllocator

	// Logger is the operational logger. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// DefaultConfig returns a Config that runs oftr from PATH.
func DefaultConfig() Config {
	return Config{
		OftrPath: DefaultOftrPath,
	}
}

// command returns the oftr argv.
func (c *Config) command() []string {
	path := c.OftrPath
	if path == "" {
		path = DefaultOftrPath
	}
	argv := []string{path, "jsonrpc"}
	if c.Trace != "" {
		argv = append(argv, "--trace="+c.Trace)
	}
	return append(argv, c.OftrArgs...)
}
