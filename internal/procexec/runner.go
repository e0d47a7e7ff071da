// Package procexec runs external programs with a wall-clock timeout and a
// ceiling on captured output. Archiving, backups and the terminal go
// through the Runner interface so tests can substitute a fake.
package procexec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sync"
	"time"
)

// Command describes one process invocation.
type Command struct {
	Argv      []string
	Dir       string
	Env       []string // appended to the server environment
	Timeout   time.Duration
	MaxOutput int // combined stdout+stderr bytes kept, 0 = unlimited
}

// Output is what a finished process left behind. A non-zero exit, a
// timeout or an output overflow are all reported here, not as errors.
type Output struct {
	Stdout    string
	Stderr    string
	ExitCode  int
	TimedOut  bool
	Truncated bool
	Duration  time.Duration
}

// Success reports whether the process exited 0 on its own.
func (o *Output) Success() bool {
	return o.ExitCode == 0 && !o.TimedOut && !o.Truncated
}

// Combined returns stdout followed by a labelled stderr section.
func (o *Output) Combined() string {
	switch {
	case o.Stderr == "":
		return o.Stdout
	case o.Stdout == "":
		return "STDERR:\n" + o.Stderr
	default:
		return o.Stdout + "\nSTDERR:\n" + o.Stderr
	}
}

// Runner executes a command. It returns an error only when the process
// could not be started or ctx was cancelled by the caller.
type Runner interface {
	Run(ctx context.Context, cmd Command) (*Output, error)
}

// RunnerFunc adapts a function to the Runner interface.
type RunnerFunc func(ctx context.Context, cmd Command) (*Output, error)

func (f RunnerFunc) Run(ctx context.Context, cmd Command) (*Output, error) {
	return f(ctx, cmd)
}

// ExecRunner runs commands with os/exec. On unix the whole process group
// is killed on timeout so shell pipelines do not outlive the request.
type ExecRunner struct {
	// WaitDelay bounds how long Run waits for output pipes after a kill.
	WaitDelay time.Duration
}

// NewExecRunner returns a runner with a two second pipe drain delay.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{WaitDelay: 2 * time.Second}
}

func (r *ExecRunner) Run(ctx context.Context, cmd Command) (*Output, error) {
	if len(cmd.Argv) == 0 {
		return nil, errors.New("procexec: empty argv")
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if cmd.Timeout > 0 {
		var cancelTimeout context.CancelFunc
		runCtx, cancelTimeout = context.WithTimeout(runCtx, cmd.Timeout)
		defer cancelTimeout()
	}

	c := exec.CommandContext(runCtx, cmd.Argv[0], cmd.Argv[1:]...)
	c.Dir = cmd.Dir
	if len(cmd.Env) > 0 {
		c.Env = append(c.Environ(), cmd.Env...)
	}
	c.WaitDelay = r.WaitDelay
	configureProcessGroup(c)

	lim := &outputLimit{max: cmd.MaxOutput, onExceed: cancel}
	stdout := &cappedBuffer{lim: lim}
	stderr := &cappedBuffer{lim: lim}
	c.Stdout = stdout
	c.Stderr = stderr

	start := time.Now()
	err := c.Run()

	out := &Output{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		out.ExitCode = 0
	case errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
		out.TimedOut = true
		out.ExitCode = -1
	case lim.exceeded():
		out.Truncated = true
		out.ExitCode = -1
	case ctx.Err() != nil:
		return out, ctx.Err()
	case errors.As(err, &exitErr):
		out.ExitCode = exitErr.ExitCode()
	default:
		return nil, fmt.Errorf("run %s: %w", cmd.Argv[0], err)
	}
	// A command can overflow and still exit 0 before the kill lands.
	if lim.exceeded() {
		out.Truncated = true
	}
	return out, nil
}

// outputLimit is shared by the stdout and stderr buffers of one process.
type outputLimit struct {
	mu       sync.Mutex
	max      int
	used     int
	over     bool
	onExceed func()
}

// take reserves up to n bytes and returns how many may be kept.
func (l *outputLimit) take(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.max <= 0 {
		return n
	}
	room := l.max - l.used
	if n <= room {
		l.used += n
		return n
	}
	if room < 0 {
		room = 0
	}
	l.used += room
	if !l.over {
		l.over = true
		if l.onExceed != nil {
			go l.onExceed()
		}
	}
	return room
}

func (l *outputLimit) exceeded() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.over
}

// cappedBuffer keeps what the limit allows and silently discards the rest,
// so the copying goroutine never sees a write error.
type cappedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
	lim *outputLimit
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	keep := b.lim.take(len(p))
	b.mu.Lock()
	b.buf.Write(p[:keep])
	b.mu.Unlock()
	return len(p), nil
}

func (b *cappedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
