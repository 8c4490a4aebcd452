// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package supervisor

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/bureau-foundation/gtool/lib/ipc"
	"github.com/bureau-foundation/gtool/lib/schema/fleet"
)

// Process is one spawned worker.
type Process interface {
	// Pid is the OS process ID, which is also its process group ID.
	Pid() int

	// Send writes a message to the worker's stdin.
	Send(message ipc.Message) error

	// Inbound yields the worker's messages in order. It is closed
	// when the worker's stdout reaches EOF or carries an undecodable
	// frame.
	Inbound() <-chan ipc.Message

	// Wait blocks until the process has exited and returns its exit
	// code, or -1 when it was killed by a signal or never reported
	// one.
	Wait() int

	// Kill sends SIGKILL to the worker's process group.
	Kill() error
}

// Spawner starts worker processes.
type Spawner interface {
	Spawn(spec fleet.WorkerSpec) (Process, error)
}

// inboundBufferSize bounds how far a worker can run ahead of its pump.
const inboundBufferSize = 64

// ExecSpawner runs the worker binary as "<binary> run". The child's
// stdin and stdout carry the IPC stream; stderr is appended to
// <dataDir>/workers/<name>/stderr.log.
type ExecSpawner struct {
	binary  string
	dataDir string
	logger  *slog.Logger

	// cmdFactory builds the exec.Cmd for a worker. Tests replace it to
	// run a helper process instead of the worker binary.
	cmdFactory func(name string) *exec.Cmd
}

// NewExecSpawner returns a spawner for the given worker binary.
func NewExecSpawner(binary, dataDir string, logger *slog.Logger) *ExecSpawner {
	spawner := &ExecSpawner{binary: binary, dataDir: dataDir, logger: logger}
	spawner.cmdFactory = func(string) *exec.Cmd {
		return exec.Command(binary, "run")
	}
	return spawner
}

// StderrPath returns the path the named worker's stderr is captured to.
func (s *ExecSpawner) StderrPath(name string) string {
	return filepath.Join(s.dataDir, "workers", name, "stderr.log")
}

// Spawn starts the worker process. Each worker gets its own process
// group (Setpgid) so Kill reaches anything the worker forks.
func (s *ExecSpawner) Spawn(spec fleet.WorkerSpec) (Process, error) {
	cmd := s.cmdFactory(spec.Name)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stderrPath := s.StderrPath(spec.Name)
	if err := os.MkdirAll(filepath.Dir(stderrPath), 0755); err != nil {
		return nil, fmt.Errorf("creating worker log directory: %w", err)
	}
	stderrFile, err := os.OpenFile(stderrPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening worker stderr log: %w", err)
	}
	// The child inherits the descriptor; the parent's copy is not
	// needed once Start returns.
	defer stderrFile.Close()
	cmd.Stderr = stderrFile

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("creating stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("creating stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting %s: %w", s.binary, err)
	}

	process := &execProcess{
		cmd:     cmd,
		channel: ipc.NewChannel(stdout, stdin),
		inbound: make(chan ipc.Message, inboundBufferSize),
		exited:  make(chan struct{}),
		logger:  s.logger.With("worker", spec.Name, "pid", cmd.Process.Pid),
	}
	go process.read()
	return process, nil
}

type execProcess struct {
	cmd     *exec.Cmd
	channel *ipc.Channel
	inbound chan ipc.Message
	logger  *slog.Logger

	exited   chan struct{}
	exitCode int
}

func (p *execProcess) Pid() int                       { return p.cmd.Process.Pid }
func (p *execProcess) Send(message ipc.Message) error { return p.channel.Send(message) }
func (p *execProcess) Inbound() <-chan ipc.Message    { return p.inbound }

func (p *execProcess) Wait() int {
	<-p.exited
	return p.exitCode
}

func (p *execProcess) Kill() error {
	err := unix.Kill(-p.cmd.Process.Pid, unix.SIGKILL)
	if errors.Is(err, unix.ESRCH) {
		return nil
	}
	return err
}

// read pumps stdout into the inbound channel, then reaps the process.
// exec.Cmd.Wait closes the stdout pipe, so it must not run until every
// read has finished.
func (p *execProcess) read() {
	for {
		message, err := p.channel.Receive()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				// A corrupt stream cannot be resynchronized, and a
				// worker blocked writing to it would never exit.
				p.logger.Error("worker stream corrupt, killing worker", "error", err)
				p.Kill()
			}
			break
		}
		p.inbound <- message
	}
	close(p.inbound)

	waitError := p.cmd.Wait()
	exitCode := 0
	if waitError != nil {
		var exitErr *exec.ExitError
		if errors.As(waitError, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
		}
	}
	p.exitCode = exitCode
	p.channel.Close()
	close(p.exited)
	p.logger.Info("worker process exited", "exit_code", exitCode, "error", waitError)
}
