package main

import (
	"context"
	"os"
	"sync"

	"codeberg.org/mutker/inputrate/internal/channel"
	"codeberg.org/mutker/inputrate/internal/config"
	"codeberg.org/mutker/inputrate/internal/errors"
	"codeberg.org/mutker/inputrate/internal/event"
	"codeberg.org/mutker/inputrate/internal/logger"
	"codeberg.org/mutker/inputrate/internal/relay"
	"codeberg.org/mutker/inputrate/internal/source"
	"codeberg.org/mutker/inputrate/internal/supervisor"
	"go.uber.org/multierr"
)

// pipeline delivers captured timestamps to the aggregator.
type pipeline struct {
	receiver *relay.Receiver[event.Timestamp]
	// done is closed when any stage ends on its own; cause explains why.
	done  <-chan struct{}
	cause func() error
	stop  func() error
}

func (p *pipeline) Drain(dst []event.Timestamp) []event.Timestamp {
	return p.receiver.Drain(dst)
}

func (p *pipeline) Stop() error {
	return p.stop()
}

// startSpawned runs capture in a listener process and reads its events
// over a cross-process channel.
func startSpawned(ctx context.Context, cfg *config.Config, log logger.Logger) (*pipeline, error) {
	errFactory := errors.New()

	path, err := cfg.ListenerPath()
	if err != nil {
		return nil, err
	}

	tx, rx, err := channel.New(cfg.Capacity)
	if err != nil {
		return nil, err
	}

	receiver, err := relay.NewReceiver[event.Timestamp](rx, cfg.Capacity, relay.WithLogger(log.With("bridge")))
	if err != nil {
		return nil, multierr.Combine(err, tx.Close(), rx.Close())
	}

	proc, err := supervisor.Spawn(ctx, path, tx.Handle(), supervisor.Options{
		Env:    append(os.Environ(), cfg.Environ()...),
		Logger: log.With("supervisor"),
	})
	if err != nil {
		return nil, multierr.Combine(errFactory.Wrap(errors.ErrInitApp, err), tx.Close(), rx.Close())
	}
	receiver.Start()

	return &pipeline{
		receiver: receiver,
		done:     firstDone(proc.Done(), receiver.Done()),
		cause: func() error {
			if err := proc.Err(); err != nil {
				return errFactory.Wrap(errors.ErrSpawnFailed, err)
			}
			return nil
		},
		stop: func() error {
			// The listener holds the only writing end; once it is gone the
			// bridge read returns.
			return multierr.Combine(proc.Stop(), receiver.Stop())
		},
	}, nil
}

// startInProcess runs capture on a thread of this process and relays its
// events through an in-memory pipe.
func startInProcess(cfg *config.Config, surfaces source.SurfaceFactory, log logger.Logger) (*pipeline, error) {
	pipe := relay.NewPipe[event.Timestamp](cfg.Capacity)

	sender, err := relay.NewSender[event.Timestamp](pipe, cfg.Capacity, relay.WithLogger(log.With("relay")))
	if err != nil {
		return nil, err
	}
	receiver, err := relay.NewReceiver[event.Timestamp](pipe, cfg.Capacity, relay.WithLogger(log.With("bridge")))
	if err != nil {
		return nil, err
	}

	src := source.New(source.Options{
		Class:    cfg.DeviceClass(),
		Sink:     sender,
		Hook:     source.SuppressInput,
		Surfaces: surfaces,
		Logger:   log.With("source"),
	})

	sender.Start()
	receiver.Start()
	if err := src.Start(); err != nil {
		return nil, multierr.Combine(err, sender.Stop(), receiver.Stop())
	}

	return &pipeline{
		receiver: receiver,
		done:     firstDone(src.Done(), sender.Done(), receiver.Done()),
		cause:    func() error { return nil },
		stop: func() error {
			// Upstream first so that everything captured reaches the queue.
			return multierr.Combine(src.Stop(), sender.Stop(), receiver.Stop())
		},
	}, nil
}

// firstDone is closed once any of chans is closed.
func firstDone(chans ...<-chan struct{}) <-chan struct{} {
	out := make(chan struct{})
	var once sync.Once
	for _, c := range chans {
		go func(c <-chan struct{}) {
			<-c
			once.Do(func() { close(out) })
		}(c)
	}

	return out
}
