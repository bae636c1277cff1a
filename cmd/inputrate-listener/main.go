package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"codeberg.org/mutker/inputrate/internal/channel"
	"codeberg.org/mutker/inputrate/internal/config"
	"codeberg.org/mutker/inputrate/internal/errors"
	"codeberg.org/mutker/inputrate/internal/event"
	"codeberg.org/mutker/inputrate/internal/logger"
	"codeberg.org/mutker/inputrate/internal/relay"
	"codeberg.org/mutker/inputrate/internal/report"
	"codeberg.org/mutker/inputrate/internal/source"
	"codeberg.org/mutker/inputrate/internal/supervisor"
	"go.uber.org/multierr"
)

func main() {
	os.Exit(report.Guard{Title: config.ListenerName}.Run(run))
}

func run() error {
	args, err := supervisor.ParseArgs(os.Args[1:])
	if err != nil {
		return err
	}

	// Settings arrive through the environment; the command line belongs to
	// the spawn handshake.
	cfg, err := config.LoadArgs(nil)
	if err != nil {
		return err
	}

	logger.Init(cfg.LogLevelValue(), logger.IsService())
	log := logger.With("listener")

	tx, err := channel.AdoptSender(args.Handle)
	if err != nil {
		return err
	}

	sender, err := relay.NewSender[event.Timestamp](tx, cfg.Capacity, relay.WithLogger(log.With("relay")))
	if err != nil {
		return multierr.Append(err, tx.Close())
	}
	sender.Start()

	src := source.New(source.Options{
		Class:  cfg.DeviceClass(),
		Sink:   sender,
		Logger: log.With("source"),
	})
	if err := src.Start(); err != nil {
		return multierr.Append(err, sender.Stop())
	}

	log.Info().Str("device", cfg.Device).Int("pid", os.Getpid()).Msg("Listening")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleSignals(cancel)

	select {
	case <-ctx.Done():
	case <-src.Done():
	case <-sender.Done():
		log.Info().Msg("Monitor went away")
	}

	srcErr := src.Stop()
	sendErr := sender.Stop()
	stats := sender.Stats()

	log.Info().
		Uint64("captured", src.Captured()).
		Uint64("forwarded", stats.Forwarded).
		Msg("Exiting...")

	// A broken channel means the monitor is gone, which is how a listener
	// normally ends.
	if sender.Err() != nil && errors.HasCode(srcErr, source.ErrSinkFailed) {
		srcErr = nil
	}

	return multierr.Combine(srcErr, sendErr, tx.Close())
}

func handleSignals(cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	logger.Info().Msg("Received termination signal.")
	cancel()
}
