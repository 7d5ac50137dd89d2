package service

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/rauhl/conductor/internal/config"
	"github.com/rauhl/conductor/internal/logging"
)

// killReapTimeout bounds the wait for a SIGKILLed process to be reaped.
const killReapTimeout = 2 * time.Second

// Process supervises one external OS process declared in the services list.
//
// Start spawns the command and pipes its output to the logger line by line.
// The process is deliberately not tied to the start context: shutdown is
// driven by explicit signals (Drain sends the configured graceful signal,
// Interrupt sends SIGKILL, Stop escalates from one to the other), never by
// context cancellation killing the child behind the coordinator's back.
type Process struct {
	spec   config.ServiceSpec
	logger *logging.Logger

	mu      sync.Mutex
	cmd     *exec.Cmd
	done    chan struct{} // closed when the waiter observes exit
	exitErr error
	running bool
}

// NewProcess creates a supervisor for the given service spec.
func NewProcess(spec config.ServiceSpec) *Process {
	return &Process{
		spec:   spec,
		logger: logging.GetLogger("service." + spec.Name),
	}
}

// Name returns the service name from the spec.
func (p *Process) Name() string {
	return p.spec.Name
}

// Start spawns the process and begins collecting its output and exit status.
func (p *Process) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return fmt.Errorf("service %s is already running", p.spec.Name)
	}
	if len(p.spec.Command) == 0 {
		return fmt.Errorf("service %s has no command", p.spec.Name)
	}

	cmd := exec.Command(p.spec.Command[0], p.spec.Command[1:]...)
	cmd.Dir = p.spec.WorkDir
	if len(p.spec.Env) > 0 {
		cmd.Env = append(os.Environ(), p.spec.Env...)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", p.spec.Name, err)
	}

	done := make(chan struct{})
	p.cmd = cmd
	p.done = done
	p.exitErr = nil
	p.running = true

	go p.forwardOutput(stdout, "stdout")
	go p.forwardOutput(stderr, "stderr")
	go p.waitForExit(cmd, done)

	p.logger.Info("Started %s (pid %d)", p.spec.Name, cmd.Process.Pid)
	return nil
}

// Drain sends the configured graceful signal and waits up to the spec's
// drain timeout for the process to exit on its own. An already-exited
// process drains trivially.
func (p *Process) Drain(ctx context.Context) error {
	cmd, done, running := p.current()
	if !running {
		return nil
	}

	sig, err := p.spec.Signal()
	if err != nil {
		return err
	}

	p.logger.Info("Sending %s to %s (pid %d)", p.spec.GracefulSignal, p.spec.Name, cmd.Process.Pid)
	if err := p.signal(cmd, sig); err != nil {
		return fmt.Errorf("failed to signal %s: %w", p.spec.Name, err)
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(p.spec.DrainTimeout):
		return fmt.Errorf("%s did not exit within %s after %s",
			p.spec.Name, p.spec.DrainTimeout, p.spec.GracefulSignal)
	}
}

// Interrupt kills the process immediately. Used on the forced shutdown path.
func (p *Process) Interrupt(ctx context.Context) error {
	cmd, _, running := p.current()
	if !running {
		return nil
	}

	p.logger.Warn("Killing %s (pid %d)", p.spec.Name, cmd.Process.Pid)
	if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("failed to kill %s: %w", p.spec.Name, err)
	}
	return nil
}

// Stop makes sure the process is gone: graceful signal, bounded wait, then
// SIGKILL. Safe to call repeatedly and concurrently with an earlier Stop;
// a process that already exited stops trivially.
func (p *Process) Stop(ctx context.Context) error {
	cmd, done, running := p.current()
	if !running {
		return nil
	}

	sig, err := p.spec.Signal()
	if err != nil {
		sig = syscall.SIGTERM
	}
	if err := p.signal(cmd, sig); err != nil {
		p.logger.Warn("Failed to signal %s: %v", p.spec.Name, err)
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		// The caller gave up waiting; do not leave the process behind.
		cmd.Process.Kill()
		return ctx.Err()
	case <-time.After(p.spec.DrainTimeout):
	}

	p.logger.Warn("%s did not exit after %s, killing", p.spec.Name, p.spec.DrainTimeout)
	if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("failed to kill %s: %w", p.spec.Name, err)
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(killReapTimeout):
		return fmt.Errorf("%s still not reaped after SIGKILL", p.spec.Name)
	}
}

// Running reports whether the process spawned and has not been observed to
// exit.
func (p *Process) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// ExitError returns the error recorded by the waiter for the last exit, nil
// for a clean exit or while the process still runs.
func (p *Process) ExitError() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitErr
}

// current snapshots the supervised command under the lock.
func (p *Process) current() (*exec.Cmd, chan struct{}, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running || p.cmd == nil || p.cmd.Process == nil {
		return nil, nil, false
	}
	return p.cmd, p.done, true
}

// signal delivers sig, treating a process that finished in the meantime as
// success.
func (p *Process) signal(cmd *exec.Cmd, sig syscall.Signal) error {
	if err := cmd.Process.Signal(sig); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}

// waitForExit reaps the process and records the result. One waiter exists
// per spawn; Drain and Stop block on the done channel it closes.
func (p *Process) waitForExit(cmd *exec.Cmd, done chan struct{}) {
	err := cmd.Wait()

	p.mu.Lock()
	// Guard against a restart having swapped cmd out already.
	if p.cmd == cmd {
		p.exitErr = err
		p.running = false
	}
	p.mu.Unlock()
	close(done)

	if err != nil {
		p.logger.Warn("%s exited: %v", p.spec.Name, err)
	} else {
		p.logger.Info("%s exited cleanly", p.spec.Name)
	}
}

// forwardOutput copies one output stream to the logger line by line.
func (p *Process) forwardOutput(r io.Reader, stream string) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		p.logger.Info("[%s] %s", stream, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		p.logger.Debug("%s %s closed: %v", p.spec.Name, stream, err)
	}
}
