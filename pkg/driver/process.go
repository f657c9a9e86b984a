package driver

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// terminationGracePeriod is the time we wait after SIGTERM before sending SIGKILL.
const terminationGracePeriod = 5 * time.Second

// process is an oftr subprocess presented as an io.ReadWriteCloser.
//
// cmd.Wait closes stdout, so it only runs once Read has seen the end of
// stdout. exited is closed after that.
type process struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
	logger *slog.Logger

	eofOnce sync.Once
	exited  chan struct{}
	waitErr error

	closeOnce sync.Once
	closeErr  error
}

// startProcess starts oftr. The context bounds the start only.
func startProcess(ctx context.Context, argv []string, logger *slog.Logger) (*process, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path, err := exec.LookPath(argv[0])
	if err != nil {
		return nil, fmt.Errorf("find oftr: %w", err)
	}

	// Don't use CommandContext: the process outlives ctx and is
	// terminated by Close.
	cmd := exec.Command(path, argv[1:]...)
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start oftr: %w", err)
	}
	logger.Debug("oftr started", "pid", cmd.Process.Pid, "argv", argv)

	p := &process{
		cmd:     cmd,
		stdin:   stdin,
		stdout:  stdout,
		logger:  logger,
		exited:  make(chan struct{}),
	}
	return p, nil
}

func (p *process) Read(b []byte) (int, error) {
	n, err := p.stdout.Read(b)
	if err != nil {
		p.eofOnce.Do(func() { go p.reap() })
	}
	return n, err
}

func (p *process) Write(b []byte) (int, error) {
	return p.stdin.Write(b)
}

// reap collects oftr's exit status after stdout has been read to the end.
func (p *process) reap() {
	p.waitErr = p.cmd.Wait()
	close(p.exited)
	p.logger.Debug("oftr exited", "pid", p.cmd.Process.Pid, "status", p.cmd.ProcessState.String())
}

// Close closes oftr's stdin and sends SIGTERM, then SIGKILL after the grace
// period. It returns once the reader has drained stdout and the process has
// been reaped, so it must not be called from the goroutine reading p.
func (p *process) Close() error {
	p.closeOnce.Do(func() {
		p.stdin.Close()

		select {
		case <-p.exited:
			p.closeErr = exitError(p.waitErr)
			return
		default:
		}

		if err := p.cmd.Process.Signal(syscall.SIGTERM); err != nil {
			p.logger.Debug("failed to send SIGTERM", "error", err)
		}

		grace := time.NewTimer(terminationGracePeriod)
		defer grace.Stop()

		select {
		case <-p.exited:
		case <-grace.C:
			p.logger.Warn("oftr did not exit after SIGTERM, sending SIGKILL")
			if err := p.cmd.Process.Kill(); err != nil {
				p.logger.Error("failed to send SIGKILL", "error", err)
			}
			<-p.exited
		}
		p.closeErr = exitError(p.waitErr)
	})
	return p.closeErr
}

// exitError ignores the exit status caused by our own SIGTERM.
func exitError(err error) error {
	if exitErr, ok := err.(*exec.ExitError); ok {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
			return nil
		}
	}
	return err
}
