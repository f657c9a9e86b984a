// Package log provides a protocol trace log for the oftr driver.
//
// This package defines the Logger interface and Event types for capturing
// the frames exchanged with the external oftr process at several layers
// (transport, rpc, controller). It is separate from operational logging
// (slog): the trace is a complete machine-readable record of what crossed
// the driver's pipe, useful when debugging switch interactions.
//
// # Basic Usage
//
// Applications configure tracing by giving the driver a Logger:
//
//	// For development: log to console via slog
//	driver.WithProtocolLogger(log.NewSlogAdapter(slog.Default()))
//
//	// For production: write to binary file
//	fl, _ := log.NewFileLogger("/var/log/zof/controller.zlog")
//	driver.WithProtocolLogger(fl)
//
//	// Both: use MultiLogger
//	driver.WithProtocolLogger(log.NewMultiLogger(
//	    log.NewSlogAdapter(slog.Default()),
//	    fl,
//	))
//
// # Event Types
//
//   - Transport: raw frame bytes (FrameEvent)
//   - RPC: decoded request/reply/notification summary (MessageEvent)
//   - Controller: driver and datapath state changes (StateChangeEvent)
//
// Errors at any layer use ErrorEventData.
//
// # File Format
//
// Trace files are a stream of CBOR-encoded events with the .zlog extension.
// The zof-log command views and summarizes them.
package log
