// Package supervisor implements both sides of the listener spawn contract:
// the monitor starts `<listener> <IdentityToken> <handle>` and the
// listener validates exactly those two positional arguments.
package supervisor

import (
	"context"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"codeberg.org/mutker/inputrate/internal/channel"
	"codeberg.org/mutker/inputrate/internal/errors"
	"codeberg.org/mutker/inputrate/internal/logger"
	"go.uber.org/multierr"
)

// IdentityToken is the first argument of every listener invocation.
const IdentityToken = "inputrate-listener::IDENTITY"

const defaultGrace = 2 * time.Second

// Args are the validated arguments of a listener process.
type Args struct {
	Handle string
}

// ParseArgs validates the positional arguments (without the program name)
// a listener was started with.
func ParseArgs(args []string) (Args, error) {
	errFactory := errors.New()

	if len(args) != 2 {
		return Args{}, errFactory.WithData(ErrInvalidArgs, struct {
			Want int
			Got  int
		}{2, len(args)})
	}
	if args[0] != IdentityToken {
		return Args{}, errFactory.WithMessage(ErrInvalidArgs, "unexpected identity token "+strconv.Quote(args[0]))
	}
	if args[1] == "" {
		return Args{}, errFactory.WithMessage(ErrInvalidArgs, "empty handle argument")
	}

	return Args{Handle: args[1]}, nil
}

// Options configures Spawn.
type Options struct {
	// Grace bounds how long Stop waits after interrupting the child
	// before killing it.
	Grace  time.Duration
	Logger logger.Logger
	// Env replaces the environment of the child when set.
	Env []string
}

// Process is a running listener.
type Process struct {
	cmd   *exec.Cmd
	grace time.Duration
	log   logger.Logger

	done     chan struct{}
	waitErr  error
	stopOnce sync.Once
	stopErr  error
}

// Spawn starts the listener at path and hands it the channel handle. The
// local copy of the handle is released once the child has started.
func Spawn(ctx context.Context, path string, handle *channel.Handle, opts Options) (*Process, error) {
	errFactory := errors.New()

	if opts.Grace <= 0 {
		opts.Grace = defaultGrace
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}

	cmd := exec.CommandContext(ctx, path)
	// Cancelling ctx asks the listener to exit and kills it only once the
	// grace period has passed.
	cmd.Cancel = func() error {
		return interrupt(cmd.Process)
	}
	cmd.WaitDelay = opts.Grace
	value, err := handle.Transfer(cmd)
	if err != nil {
		return nil, err
	}
	cmd.Args = append(cmd.Args, IdentityToken, value)
	cmd.Env = opts.Env
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return nil, multierr.Append(errFactory.Wrap(ErrSpawnFailed, err), handle.Release())
	}

	if err := handle.Release(); err != nil {
		opts.Logger.Warn().Err(err).Msg("Failed to release transferred handle")
	}

	p := &Process{
		cmd:   cmd,
		grace: opts.Grace,
		log:   opts.Logger,
		done:  make(chan struct{}),
	}
	go func() {
		p.waitErr = cmd.Wait()
		close(p.done)
	}()

	opts.Logger.Info().Int("pid", cmd.Process.Pid).Str("path", path).Msg("Listener started")

	return p, nil
}

// Pid returns the operating system process id of the listener.
func (p *Process) Pid() int {
	return p.cmd.Process.Pid
}

// Done is closed once the listener has exited.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Err returns the exit error of the listener once it has exited.
func (p *Process) Err() error {
	select {
	case <-p.done:
		return p.waitErr
	default:
		return nil
	}
}

// Stop interrupts the listener, kills it if it is still running after the
// grace period and waits for it to exit. Stop is idempotent.
func (p *Process) Stop() error {
	p.stopOnce.Do(func() {
		select {
		case <-p.done:
			return
		default:
		}

		if err := interrupt(p.cmd.Process); err != nil {
			p.log.Debug().Err(err).Msg("Interrupt failed, killing listener")
		}

		timer := time.NewTimer(p.grace)
		defer timer.Stop()

		select {
		case <-p.done:
			return
		case <-timer.C:
		}

		p.log.Warn().Dur("grace", p.grace).Msg("Listener did not exit, killing it")
		if err := p.cmd.Process.Kill(); err != nil {
			p.stopErr = errors.New().Wrap(ErrStopFailed, err)
		}
		<-p.done
	})

	return p.stopErr
}
