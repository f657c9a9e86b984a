// Command zof-controller is a demo OpenFlow controller built on oftr.
//
// It runs a hub app that installs a table-miss flow on every switch and
// floods every PACKET_IN back out of all ports.
//
// Usage:
//
//	zof-controller [flags]
//
// Flags:
//
//	-config string        Configuration file path (YAML)
//	-listen string        Comma-separated listen endpoints (overrides config)
//	-oftr string          oftr executable (overrides config)
//	-log-level string     Log level: debug, info, warn, error
//	-protocol-log string  Write a protocol trace to this .zlog file
//	-metrics-addr string  Serve Prometheus metrics on this address
//	-interactive          Start the interactive shell
//
// Examples:
//
//	# Listen on the default port with oftr from PATH
//	zof-controller
//
//	# Listen on two ports and record a trace
//	zof-controller -listen 6653,6633 -protocol-log trace.zlog
//
//	# Use a config file and an interactive shell
//	zof-controller -config /etc/zof/zof.yaml -interactive
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zofgo/zof/cmd/zof-controller/interactive"
	"github.com/zofgo/zof/pkg/config"
	"github.com/zofgo/zof/pkg/controller"
	"github.com/zofgo/zof/pkg/log"
)

// Flags holds the command line. Empty values leave the config file alone.
type Flags struct {
	ConfigFile  string
	Listen      string
	Oftr        string
	LogLevel    string
	ProtocolLog string
	MetricsAddr string
	Interactive bool
}

var flags Flags

func init() {
	flag.StringVar(&flags.ConfigFile, "config", "", "Configuration file path (YAML)")
	flag.StringVar(&flags.Listen, "listen", "", "Comma-separated listen endpoints (overrides config)")
	flag.StringVar(&flags.Oftr, "oftr", "", "oftr executable (overrides config)")
	flag.StringVar(&flags.LogLevel, "log-level", "", "Log level: debug, info, warn, error")
	flag.StringVar(&flags.ProtocolLog, "protocol-log", "", "Write a protocol trace to this .zlog file")
	flag.StringVar(&flags.MetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	flag.BoolVar(&flags.Interactive, "interactive", false, "Start the interactive shell")
}

func main() {
	flag.Parse()

	cfg, err := loadConfig(flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg, flags.Interactive); err != nil {
		slog.Error("controller failed", "error", err)
		os.Exit(1)
	}
}

// loadConfig reads the config file, if any, and applies flag overrides.
func loadConfig(f Flags) (config.Config, error) {
	cfg := config.Default()
	if f.ConfigFile != "" {
		var err error
		if cfg, err = config.Load(f.ConfigFile); err != nil {
			return config.Config{}, err
		}
	}

	if f.Listen != "" {
		cfg.Listen.Endpoints = splitList(f.Listen)
	}
	if f.Oftr != "" {
		cfg.Oftr.Path = f.Oftr
	}
	if f.LogLevel != "" {
		cfg.LogLevel = f.LogLevel
	}
	if f.ProtocolLog != "" {
		cfg.ProtocolLog = f.ProtocolLog
	}
	if f.MetricsAddr != "" {
		cfg.MetricsAddr = f.MetricsAddr
	}
	return cfg, cfg.Validate()
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func newLogger(w io.Writer, cfg config.Config) (*slog.Logger, error) {
	level, err := cfg.Level()
	if err != nil {
		return nil, err
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})), nil
}

func run(cfg config.Config, withShell bool) error {
	var (
		shell  *interactive.Shell
		logOut io.Writer = os.Stderr
	)
	if withShell {
		var err error
		if shell, err = interactive.New(); err != nil {
			return err
		}
		// Route logs through readline so they don't clobber the prompt.
		logOut = shell.Stdout()
	}

	logger, err := newLogger(logOut, cfg)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	ctrlCfg, err := cfg.Controller()
	if err != nil {
		return err
	}
	ctrlCfg.Logger = logger

	if cfg.ProtocolLog != "" {
		trace, err := log.NewFileLogger(cfg.ProtocolLog)
		if err != nil {
			return fmt.Errorf("protocol log: %w", err)
		}
		defer trace.Close()
		ctrlCfg.Driver.ProtocolLogger = trace
		logger.Info("protocol logging enabled", "path", cfg.ProtocolLog)
	}

	c, err := controller.New(ctrlCfg)
	if err != nil {
		return err
	}
	if _, err := newHub(c); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.MetricsAddr != "" {
		srv := serveMetrics(cfg.MetricsAddr, logger)
		defer shutdown(srv)
	}

	if shell != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithCancel(ctx)
		defer cancel()
		go shell.Run(ctx, c, cancel)
	}

	return c.Run(ctx)
}

func serveMetrics(addr string, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "addr", addr, "error", err)
		}
	}()
	logger.Info("serving metrics", "addr", addr)
	return srv
}

func shutdown(srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
}
