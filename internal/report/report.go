// Package report turns a failure at the top of an executable into a single
// message that is shown to the user and logged before the process exits.
package report

import (
	"fmt"
	"runtime/debug"
	"strings"

	"codeberg.org/mutker/inputrate/internal/errors"
	"codeberg.org/mutker/inputrate/internal/logger"
)

const (
	ExitOK    = 0
	ExitError = 1
	ExitPanic = 2
)

// Guard runs the body of a main function.
type Guard struct {
	Title string
	// Show displays a message; defaults to ShowPlatform.
	Show   func(title, message string) error
	Logger logger.Logger
}

// Run calls fn and returns the process exit code. A returned error or a
// panic is reported through Show and the logger.
func (g Guard) Run(fn func() error) (code int) {
	if g.Show == nil {
		g.Show = ShowPlatform
	}
	if g.Logger == nil {
		g.Logger = logger.With("report")
	}

	defer func() {
		r := recover()
		if r == nil {
			return
		}

		msg := Message(r)
		stack := debug.Stack()
		if p, ok := r.(*Panic); ok {
			stack = p.Stack
		}
		g.report(errors.New().WithMessage(errors.ErrPanic, msg), msg+"\n\n"+string(stack))
		code = ExitPanic
	}()

	if err := fn(); err != nil {
		var appErr errors.Error
		if !errors.As(err, &appErr) {
			appErr = errors.New().Wrap(errors.ErrInternal, err)
		}
		g.report(appErr, err.Error())
		return ExitError
	}

	return ExitOK
}

func (g Guard) report(err errors.Error, detail string) {
	if showErr := g.Show(g.Title, detail); showErr != nil {
		g.Logger.Warn().Err(showErr).Msg("Failed to show report")
	}
	g.Logger.ErrorWithCode(err).Msg(g.Title + " failed")
}

// Panic is a value recovered on a background goroutine, kept so that the
// goroutine joining it can raise it again with the original stack.
type Panic struct {
	Value any
	Stack []byte
}

func (p *Panic) Error() string {
	return Message(p.Value)
}

// Recover stores a panic of the calling goroutine in dst. It must be
// deferred directly:
//
//	defer report.Recover(&s.panicked)
func Recover(dst **Panic) {
	r := recover()
	if r == nil {
		return
	}
	if p, ok := r.(*Panic); ok {
		*dst = p
		return
	}
	*dst = &Panic{Value: r, Stack: debug.Stack()}
}

// Message renders a recovered panic value as one line of text.
func Message(v any) string {
	var msg string
	switch t := v.(type) {
	case error:
		msg = t.Error()
	case string:
		msg = t
	default:
		msg = fmt.Sprint(t)
	}

	msg = strings.TrimSpace(msg)
	if msg == "" {
		return "unknown failure"
	}

	return msg
}
