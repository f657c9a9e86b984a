// Package interactive provides the interactive command-line interface
// for zof-controller.
package interactive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/zofgo/zof/pkg/controller"
	"github.com/zofgo/zof/pkg/datapath"
	"github.com/zofgo/zof/pkg/handler"
)

// requestTimeout bounds shell commands that talk to oftr.
const requestTimeout = 5 * time.Second

// Shell handles interactive mode for zof-controller.
type Shell struct {
	ctrl *controller.Controller
	rl   *readline.Instance
	out  io.Writer
}

// New creates a shell. Its Stdout is usable before Run is called.
func New() (*Shell, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "zof> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	return &Shell{rl: rl, out: rl.Stdout()}, nil
}

// Stdout returns a writer that properly coordinates with the readline input.
// Use this for log output to avoid interfering with the command prompt.
func (s *Shell) Stdout() io.Writer {
	return s.rl.Stdout()
}

// Run reads commands for ctrl until quit, EOF or ctx is done. It calls
// cancel when the user asks to exit.
func (s *Shell) Run(ctx context.Context, ctrl *controller.Controller, cancel context.CancelFunc) {
	defer s.rl.Close()

	s.ctrl = ctrl
	s.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := s.rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			fmt.Fprintln(s.out, "Exiting...")
			cancel()
			return
		}

		if s.Exec(ctx, line) {
			cancel()
			return
		}
	}
}

// Exec runs one command line. It reports whether the shell should exit.
func (s *Shell) Exec(ctx context.Context, line string) bool {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return false
	}
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "help", "?":
		s.printHelp()
	case "status":
		s.cmdStatus()
	case "datapaths", "dp":
		s.cmdDatapaths()
	case "ports", "p":
		s.cmdPorts(args)
	case "apps":
		s.cmdApps()
	case "close":
		s.cmdClose(args)
	case "describe":
		s.cmdDescribe(ctx)
	case "quit", "exit", "q":
		fmt.Fprintln(s.out, "Exiting...")
		return true
	default:
		fmt.Fprintf(s.out, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}
	return false
}

func (s *Shell) printHelp() {
	fmt.Fprintln(s.out, `
zof Controller Commands:
  Datapaths:
    datapaths          - List connected datapaths
    ports <dpid>       - Show the ports of a datapath
    close <dpid>       - Close a datapath's connection

  Controller:
    status             - Show controller and driver status
    apps               - List apps and their handlers
    describe           - Ask oftr for its version

  General:
    help               - Show this help
    quit               - Exit controller`)
}

func (s *Shell) cmdStatus() {
	d := s.ctrl.Driver()
	fmt.Fprintf(s.out, "State:     %s\n", s.ctrl.State())
	fmt.Fprintf(s.out, "Driver:    %s (open: %t)\n", d.ID(), d.IsOpen())
	fmt.Fprintf(s.out, "Pending:   %d\n", d.PendingCount())
	fmt.Fprintf(s.out, "Datapaths: %d\n", s.ctrl.Datapaths().Len())
	fmt.Fprintf(s.out, "Apps:      %d\n", len(s.ctrl.Apps()))
}

func (s *Shell) cmdDatapaths() {
	dps := s.ctrl.Datapaths().All()
	if len(dps) == 0 {
		fmt.Fprintln(s.out, "No datapaths connected")
		return
	}

	fmt.Fprintf(s.out, "\nDatapaths (%d):\n", len(dps))
	fmt.Fprintln(s.out, "-------------------------------------------")
	for _, dp := range dps {
		status := "ready"
		switch {
		case !dp.IsLive():
			status = "closed"
		case !dp.IsReady():
			status = "connecting"
		}
		fmt.Fprintf(s.out, "  %s  conn %-6d %-10s ports %d tasks %d\n",
			dp.ID(), dp.ConnID(), status, len(dp.Ports()), dp.Tasks().Len())
	}
}

// lookup finds a datapath by any form datapath.ParseID accepts.
func (s *Shell) lookup(args []string, usage string) (*datapath.Datapath, bool) {
	if len(args) < 1 {
		fmt.Fprintf(s.out, "Usage: %s\n", usage)
		return nil, false
	}
	dp, ok := s.ctrl.Datapaths().Get(args[0])
	if !ok {
		fmt.Fprintf(s.out, "Unknown datapath: %s\n", args[0])
		return nil, false
	}
	return dp, true
}

func (s *Shell) cmdPorts(args []string) {
	dp, ok := s.lookup(args, "ports <dpid>")
	if !ok {
		return
	}

	ports := dp.Ports()
	if len(ports) == 0 {
		fmt.Fprintf(s.out, "%s has no ports\n", dp)
		return
	}
	fmt.Fprintf(s.out, "\nPorts of %s (%d):\n", dp.ID(), len(ports))
	for _, p := range ports {
		link := "up"
		if !p.Up() {
			link = "down"
		}
		if p.AdminDown() {
			link += " (admin down)"
		}
		fmt.Fprintf(s.out, "  %-10s %-16s %s  %s\n", p.No, p.Name, p.HwAddr, link)
	}
}

func (s *Shell) cmdClose(args []string) {
	dp, ok := s.lookup(args, "close <dpid>")
	if !ok {
		return
	}
	if !dp.IsLive() || !dp.IsReady() {
		fmt.Fprintf(s.out, "%s is not ready\n", dp)
		return
	}
	if err := dp.Close(); err != nil {
		fmt.Fprintf(s.out, "Close failed: %v\n", err)
		return
	}
	fmt.Fprintln(s.out, "OK")
}

func (s *Shell) cmdApps() {
	apps := s.ctrl.Apps()
	if len(apps) == 0 {
		fmt.Fprintln(s.out, "No apps registered")
		return
	}
	for _, app := range apps {
		reg := app.Registry()
		fmt.Fprintf(s.out, "  %s: %d handlers, %d tasks\n", app.Name(), reg.Len(), app.Tasks().Len())
		for _, kind := range []handler.Kind{handler.KindMessage, handler.KindEvent} {
			for _, h := range reg.Handlers(kind) {
				fmt.Fprintf(s.out, "      %s\n", h)
			}
		}
	}
}

func (s *Shell) cmdDescribe(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	desc, err := s.ctrl.Driver().Description(ctx)
	if err != nil {
		fmt.Fprintf(s.out, "Error: %v\n", err)
		return
	}
	fmt.Fprintf(s.out, "oftr %s (api %s), OpenFlow versions %v\n", desc.SwDesc, desc.APIVersion, desc.Versions)
}
