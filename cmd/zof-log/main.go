// Command zof-log views and analyzes OpenFlow protocol trace files.
//
// Trace files are written by zof-controller when started with
// -protocol-log (or protocol_log in its config file).
//
// Usage:
//
//	zof-log <command> [flags] <file.zlog>
//
// Commands:
//
//	view     View trace file in human-readable format
//	export   Export trace file to JSONL or CSV
//	filter   Filter trace file and write to new file
//	stats    Show statistics about the trace file
//
// Examples:
//
//	# View PACKET_IN messages of one switch
//	zof-log view --dpid 00:00:00:00:00:00:00:01 --type PACKET_IN trace.zlog
//
//	# Keep only connection 3
//	zof-log filter --conn-id 3 -o conn3.zlog trace.zlog
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/zofgo/zof/cmd/zof-log/commands"
)

const usage = `zof-log - OpenFlow Protocol Trace Analyzer

Usage:
  zof-log <command> [flags] <file.zlog>

Commands:
  view     View trace file in human-readable format
  export   Export trace file to JSONL or CSV
  filter   Filter trace file and write to new file
  stats    Show statistics about the trace file

Use "zof-log <command> -help" for more information about a command.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "view":
		err = runView(args)
	case "export":
		err = runExport(args)
	case "filter":
		err = runFilter(args)
	case "stats":
		err = runStats(args)
	case "-h", "-help", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newFlagSet returns a flag set whose usage names the command.
func newFlagSet(name, summary string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "zof-log %s - %s\n\nUsage:\n  zof-log %s [flags] <file.zlog>\n\nFlags:\n", name, summary, name)
		fs.PrintDefaults()
	}
	return fs
}

// filterFlags registers the flags shared by view and filter.
func filterFlags(fs *flag.FlagSet) *commands.FilterOptions {
	var opts commands.FilterOptions
	fs.Uint64Var(&opts.ConnID, "conn-id", 0, "Filter by connection ID")
	fs.StringVar(&opts.DatapathID, "dpid", "", "Filter by datapath ID")
	fs.StringVar(&opts.OFType, "type", "", "Filter by OpenFlow message type (e.g. PACKET_IN)")
	fs.StringVar(&opts.TimeStart, "time-start", "", "Filter by start time (RFC3339)")
	fs.StringVar(&opts.TimeEnd, "time-end", "", "Filter by end time (RFC3339)")
	fs.StringVar(&opts.Layer, "layer", "", "Filter by layer (transport, rpc, controller)")
	fs.StringVar(&opts.Direction, "direction", "", "Filter by direction (in, out)")
	fs.StringVar(&opts.Category, "category", "", "Filter by category (message, state, error)")
	return &opts
}

// pathArg parses args and returns the single trace file argument.
func pathArg(fs *flag.FlagSet, args []string) (string, error) {
	if err := fs.Parse(args); err != nil {
		return "", err
	}
	if fs.NArg() < 1 {
		fs.Usage()
		return "", fmt.Errorf("log file path required")
	}
	return fs.Arg(0), nil
}

func runView(args []string) error {
	fs := newFlagSet("view", "View trace file in human-readable format")
	opts := filterFlags(fs)

	path, err := pathArg(fs, args)
	if err != nil {
		return err
	}
	filter, err := opts.Build()
	if err != nil {
		return err
	}
	return commands.RunView(path, filter, os.Stdout)
}

func runExport(args []string) error {
	fs := newFlagSet("export", "Export trace file to JSONL or CSV")
	format := fs.String("format", "jsonl", "Output format (jsonl, csv)")
	output := fs.String("o", "", "Output file (default: stdout)")

	path, err := pathArg(fs, args)
	if err != nil {
		return err
	}

	w := os.Stdout
	if *output != "" {
		f, err := os.Create(*output)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		w = f
	}
	return commands.RunExport(path, *format, w)
}

func runFilter(args []string) error {
	fs := newFlagSet("filter", "Filter trace file and write to new file")
	output := fs.String("o", "", "Output file (required)")
	opts := filterFlags(fs)

	path, err := pathArg(fs, args)
	if err != nil {
		return err
	}
	if *output == "" {
		fs.Usage()
		return fmt.Errorf("output file (-o) required")
	}
	filter, err := opts.Build()
	if err != nil {
		return err
	}

	n, err := commands.RunFilter(path, *output, filter)
	if err != nil {
		return err
	}
	fmt.Printf("Filtered %d events to %s\n", n, *output)
	return nil
}

func runStats(args []string) error {
	fs := newFlagSet("stats", "Show statistics about the trace file")
	path, err := pathArg(fs, args)
	if err != nil {
		return err
	}
	return commands.RunStats(path, os.Stdout)
}
