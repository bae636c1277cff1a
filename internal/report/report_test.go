package report_test

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"
	"testing"

	"codeberg.org/mutker/inputrate/internal/errors"
	"codeberg.org/mutker/inputrate/internal/logger"
	"codeberg.org/mutker/inputrate/internal/relay"
	"codeberg.org/mutker/inputrate/internal/report"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type shown struct {
	title, message string
	calls          int
}

func (s *shown) show(title, message string) error {
	s.title, s.message = title, message
	s.calls++
	return nil
}

func TestGuardOK(t *testing.T) {
	var s shown
	code := report.Guard{Title: "inputrate", Show: s.show, Logger: logger.Nop()}.Run(func() error {
		return nil
	})
	assert.Equal(t, report.ExitOK, code)
	assert.Zero(t, s.calls)
}

func TestGuardError(t *testing.T) {
	var s shown
	code := report.Guard{Title: "inputrate", Show: s.show, Logger: logger.Nop()}.Run(func() error {
		return errors.New().Wrap(errors.ErrInitFailed, io.ErrClosedPipe)
	})
	assert.Equal(t, report.ExitError, code)
	assert.Equal(t, 1, s.calls)
	assert.Equal(t, "inputrate", s.title)
	assert.Contains(t, s.message, "io: read/write on closed pipe")
}

func TestGuardPanic(t *testing.T) {
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	t.Cleanup(func() { logger.SetOutput(io.Discard) })

	var s shown
	code := report.Guard{Title: "inputrate-listener", Show: s.show}.Run(func() error {
		panic("capture thread exploded")
	})

	assert.Equal(t, report.ExitPanic, code)
	assert.Equal(t, 1, s.calls)
	assert.Contains(t, s.message, "capture thread exploded")
	assert.Contains(t, s.message, "goroutine")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, string(errors.ErrPanic), entry["error_code"])
	assert.Equal(t, "capture thread exploded", entry["error_message"])
	assert.Equal(t, "report", entry["component"])
}

type explodingSink struct{}

func (explodingSink) Send(int) error {
	panic("sink exploded")
}

func TestGuardReportsBackgroundPanic(t *testing.T) {
	var s shown
	code := report.Guard{Title: "inputrate-listener", Show: s.show, Logger: logger.Nop()}.Run(func() error {
		sender, err := relay.NewSender[int](explodingSink{}, 1)
		if err != nil {
			return err
		}
		sender.Start()
		if err := sender.Send(1); err != nil {
			return err
		}
		<-sender.Done()
		return sender.Stop()
	})

	assert.Equal(t, report.ExitPanic, code)
	assert.Equal(t, 1, s.calls)
	assert.True(t, strings.HasPrefix(s.message, "sink exploded\n"))
	// The stack is the one of the goroutine that panicked.
	assert.Contains(t, s.message, "explodingSink")
}

func TestRecoverWrapsPanicOnce(t *testing.T) {
	var p *report.Panic
	func() {
		defer report.Recover(&p)
		panic(io.ErrUnexpectedEOF)
	}()
	require.NotNil(t, p)
	assert.Equal(t, io.ErrUnexpectedEOF, p.Value)
	assert.Equal(t, "unexpected EOF", report.Message(p))

	var again *report.Panic
	func() {
		defer report.Recover(&again)
		panic(p)
	}()
	assert.Same(t, p, again)

	var none *report.Panic
	func() {
		defer report.Recover(&none)
	}()
	assert.Nil(t, none)
}

func TestMessage(t *testing.T) {
	assert.Equal(t, "boom", report.Message("boom"))
	assert.Equal(t, "EOF", report.Message(io.EOF))
	assert.Equal(t, "42", report.Message(42))
	assert.Equal(t, "unknown failure", report.Message("  "))
}
