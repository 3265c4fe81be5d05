package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"Pattas/internal/domain/models"
	applogger "Pattas/pkg/logger"
)

// Config tunes process handling.
type Config struct {
	ReadBuffer int           // max bytes per chunk
	QueueSize  int           // chunks buffered between readers and consumer
	Timeout    time.Duration // 0 = bounded only by the caller's context
	WaitDelay  time.Duration // grace period for pipes after the process is killed
}

// SpawnError reports that the process could not be started at all.
type SpawnError struct {
	Command string
	Err     error
}

func (e *SpawnError) Error() string { return e.Err.Error() }

func (e *SpawnError) Unwrap() error { return e.Err }

// Runner starts the analysis command.
type Runner struct {
	cmd Command
	cfg Config
	log *applogger.Logger
}

func New(cmd Command, cfg Config, l *applogger.Logger) *Runner {
	if cfg.ReadBuffer <= 0 {
		cfg.ReadBuffer = 4096
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.WaitDelay <= 0 {
		cfg.WaitDelay = 5 * time.Second
	}
	if l == nil {
		l = applogger.NewNop()
	}
	return &Runner{cmd: cmd, cfg: cfg, log: l}
}

// Command returns the command this runner starts.
func (r *Runner) Command() Command {
	return r.cmd
}

// Start spawns the command. The process is killed when ctx is done or the
// configured timeout elapses. A returned error is always a *SpawnError.
func (r *Runner) Start(ctx context.Context) (*Process, error) {
	var cancel context.CancelFunc
	if r.cfg.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, r.cfg.Timeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}

	cmd := exec.CommandContext(ctx, r.cmd.Path, r.cmd.Args...)
	cmd.Dir = r.cmd.Dir
	cmd.Env = r.cmd.environ()
	cmd.WaitDelay = r.cfg.WaitDelay
	setProcessGroup(cmd)

	spawnErr := func(err error) (*Process, error) {
		cancel()
		return nil, &SpawnError{Command: r.cmd.String(), Err: err}
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return spawnErr(err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return spawnErr(err)
	}
	if err := cmd.Start(); err != nil {
		return spawnErr(err)
	}

	p := &Process{
		cmd:    cmd,
		ctx:    ctx,
		cancel: cancel,
		chunks: make(chan models.OutputChunk, r.cfg.QueueSize),
		done:   make(chan struct{}),
	}
	go p.closePipesAfter(r.cfg.WaitDelay, stdout, stderr)

	p.readers.Add(2)
	go p.read(stdout, models.Stdout, r.cfg.ReadBuffer)
	go p.read(stderr, models.Stderr, r.cfg.ReadBuffer)
	go func() {
		p.readers.Wait()
		close(p.chunks)
		close(p.done)
	}()

	r.log.Info("analysis process started",
		applogger.String("command", r.cmd.String()),
		applogger.String("dir", r.cmd.Dir),
		applogger.Int("pid", cmd.Process.Pid),
	)
	return p, nil
}

// Process is one running analysis command.
type Process struct {
	cmd     *exec.Cmd
	ctx     context.Context
	cancel  context.CancelFunc
	chunks  chan models.OutputChunk
	readers sync.WaitGroup
	done    chan struct{}

	waitOnce sync.Once
	exitCode int
	waitErr  error
	canceled bool
}

// Chunks yields output in arrival order. Order is preserved within a
// channel; interleaving across channels is whatever the OS delivered. The
// channel closes once both pipes reach EOF.
func (p *Process) Chunks() <-chan models.OutputChunk {
	return p.chunks
}

// Pid returns the OS process id.
func (p *Process) Pid() int {
	return p.cmd.Process.Pid
}

// Wait blocks until both pipes are drained and the process has exited. The
// exit code is -1 when the process was killed by a signal. err is non-nil
// only for failures other than a nonzero exit.
func (p *Process) Wait() (int, error) {
	p.waitOnce.Do(func() {
		<-p.done
		err := p.cmd.Wait()
		ctxErr := p.ctx.Err()
		p.cancel()

		p.exitCode = -1
		if p.cmd.ProcessState != nil {
			p.exitCode = p.cmd.ProcessState.ExitCode()
		}
		p.canceled = ctxErr != nil && p.exitCode != 0

		var exitErr *exec.ExitError
		switch {
		case err == nil, errors.As(err, &exitErr):
		case errors.Is(err, exec.ErrWaitDelay):
			// Exited, but a grandchild kept the pipes open past WaitDelay.
		default:
			p.waitErr = fmt.Errorf("wait: %w", err)
		}
	})
	return p.exitCode, p.waitErr
}

// Canceled reports whether the process was stopped by its context (client
// gone, shutdown or timeout). Valid after Wait.
func (p *Process) Canceled() bool {
	return p.canceled
}

// closePipesAfter unblocks the readers when the process was killed but a
// descendant that escaped the process group still holds the pipes open.
func (p *Process) closePipesAfter(delay time.Duration, pipes ...io.Closer) {
	select {
	case <-p.done:
		return
	case <-p.ctx.Done():
	}

	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-p.done:
	case <-t.C:
		for _, c := range pipes {
			_ = c.Close()
		}
	}
}

func (p *Process) read(r io.Reader, ch models.Channel, size int) {
	defer p.readers.Done()

	for {
		buf := make([]byte, size)
		n, err := r.Read(buf)
		if n > 0 {
			select {
			case p.chunks <- models.OutputChunk{Channel: ch, Data: buf[:n]}:
			case <-p.ctx.Done():
				// Nobody is listening any more; keep draining the pipe.
			}
		}
		if err != nil {
			return
		}
	}
}
