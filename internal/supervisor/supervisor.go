// Package supervisor runs the downstream MCP service as a child process.
//
// The command is started with "sh -c" and the proxy's environment. Its stdout and
// stderr are forwarded line by line to the logger with source=downstream, and its
// exit is reported on Done.
package supervisor

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// maxLineSize bounds a single forwarded output line
const maxLineSize = 1 << 20

// Process is a running downstream command
type Process struct {
	cmd    *exec.Cmd
	logger *slog.Logger

	done chan struct{}
	err  error

	stopOnce sync.Once
}

// Start launches command under "sh -c"
func Start(command string, logger *slog.Logger) (*Process, error) {
	if command == "" {
		return nil, errors.New("downstream command is empty")
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("source", "downstream")

	cmd := exec.Command("sh", "-c", command)
	cmd.Env = os.Environ()
	// A dedicated process group lets Stop reach processes the shell spawned
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open stderr: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start downstream command: %w", err)
	}

	p := &Process{
		cmd:    cmd,
		logger: logger,
		done:   make(chan struct{}),
	}

	logger.Info("Downstream process started", "pid", cmd.Process.Pid)

	var streams sync.WaitGroup
	streams.Add(2)
	go p.forward(&streams, stdout, "stdout")
	go p.forward(&streams, stderr, "stderr")

	go func() {
		// Wait closes the pipes, so every line must be read first
		streams.Wait()
		p.err = cmd.Wait()
		p.logExit()
		close(p.done)
	}()

	return p, nil
}

func (p *Process) forward(wg *sync.WaitGroup, r io.Reader, stream string) {
	defer wg.Done()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		p.logger.Info(scanner.Text(), "stream", stream)
	}
	if err := scanner.Err(); err != nil {
		p.logger.Warn("Stopped reading downstream output", "stream", stream, "error", err)
		// Keep the pipe drained so the child never blocks on a full buffer
		_, _ = io.Copy(io.Discard, r)
	}
}

func (p *Process) logExit() {
	if p.err == nil {
		p.logger.Info("Downstream process exited", "exit_code", 0)
		return
	}
	p.logger.Warn("Downstream process exited", "exit_code", ExitCode(p.err), "error", p.err)
}

// Pid returns the process id of the shell
func (p *Process) Pid() int {
	return p.cmd.Process.Pid
}

// Done is closed once the process has exited and its output has been forwarded
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Err returns the wait result. Only meaningful after Done is closed.
func (p *Process) Err() error {
	<-p.done
	return p.err
}

// Stop sends SIGTERM to the process group and SIGKILL once grace has elapsed.
// It returns after the process has exited. Stopping an exited process is a no-op.
func (p *Process) Stop(grace time.Duration) {
	p.stopOnce.Do(func() {
		select {
		case <-p.done:
			return
		default:
		}

		p.logger.Info("Stopping downstream process", "pid", p.Pid(), "grace", grace)
		p.signal(syscall.SIGTERM)

		timer := time.NewTimer(grace)
		defer timer.Stop()

		select {
		case <-p.done:
		case <-timer.C:
			p.logger.Warn("Downstream process did not exit in time, killing it", "pid", p.Pid())
			p.signal(syscall.SIGKILL)
			<-p.done
		}
	})
	<-p.done
}

func (p *Process) signal(sig syscall.Signal) {
	// Negative pid addresses the whole process group
	if err := syscall.Kill(-p.cmd.Process.Pid, sig); err != nil && !errors.Is(err, syscall.ESRCH) {
		p.logger.Warn("Failed to signal downstream process", "signal", sig.String(), "error", err)
	}
}

// ExitCode derives a process exit code from a wait error
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return 1
}
