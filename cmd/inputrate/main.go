package main

import (
	"context"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"codeberg.org/mutker/inputrate/internal/config"
	"codeberg.org/mutker/inputrate/internal/errors"
	"codeberg.org/mutker/inputrate/internal/history"
	"codeberg.org/mutker/inputrate/internal/logger"
	"codeberg.org/mutker/inputrate/internal/pid"
	"codeberg.org/mutker/inputrate/internal/rate"
	"codeberg.org/mutker/inputrate/internal/report"
	"github.com/google/uuid"
	"go.uber.org/multierr"
)

func main() {
	os.Exit(report.Guard{Title: "inputrate"}.Run(run))
}

func run() error {
	errFactory := errors.New()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger.Init(cfg.LogLevelValue(), logger.IsService())
	logger.Debug().Msg("Config loaded")

	if err := pid.Write(); err != nil {
		return err
	}
	defer func() {
		if err := pid.Remove(); err != nil {
			logger.Warn().Err(err).Msg("Failed to remove PID file")
		}
	}()

	session := uuid.NewString()
	log := logger.With("monitor")
	log.Info().
		Str("session", session).
		Str("mode", cfg.Mode).
		Str("device", cfg.Device).
		Dur("tick", cfg.Tick).
		Msg("Starting")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleSignals(cancel)

	hc := cfg.HistoryConfig()
	hc.Session = session
	hist, err := history.New(hc, log.With("history"))
	if err != nil {
		return errFactory.Wrap(errors.ErrInitApp, err)
	}

	var p *pipeline
	if cfg.Mode == config.ModeInProcess {
		p, err = startInProcess(cfg, nil, log)
	} else {
		p, err = startSpawned(ctx, cfg, log)
	}
	if err != nil {
		return multierr.Append(err, hist.Close())
	}

	var captureEnded atomic.Bool
	go func() {
		select {
		case <-p.done:
			if ctx.Err() != nil {
				return
			}
			captureEnded.Store(true)
			log.Warn().Msg("Capture ended, shutting down")
			cancel()
		case <-ctx.Done():
		}
	}()

	agg := rate.NewAggregator(p, rate.Options{
		Span:        cfg.Window,
		History:     hist,
		HistoryMode: hc.Mode,
		Logger:      log.With("rate"),
	})

	loop, err := rate.NewLoop(agg, rate.LoopOptions{
		Interval: cfg.Tick,
		OnTick:   reporter(log, cfg.ReportEvery),
	})
	if err != nil {
		return multierr.Combine(err, p.Stop(), hist.Close())
	}

	loopErr := loop.Run(ctx)
	if loopErr != nil {
		loopErr = errFactory.Wrap(errors.ErrMainLoop, loopErr)
	}

	stopErr := p.Stop()
	summarize(log, agg)

	var causeErr error
	if captureEnded.Load() {
		causeErr = p.cause()
	}

	return multierr.Combine(causeErr, loopErr, stopErr, hist.Close())
}

// reporter logs the rate every n ticks.
func reporter(log logger.Logger, n int) func(rate.Snapshot) {
	ticks := 0
	return func(s rate.Snapshot) {
		ticks++
		if ticks%n != 0 {
			return
		}
		log.Info().
			Int("rate", s.Rate).
			Float64("average", s.Average).
			Int("history", s.HistoryLen).
			Msg("Input rate")
	}
}

func summarize(log logger.Logger, agg *rate.Aggregator) {
	samples, err := agg.History()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to read history")
		return
	}

	ev := log.Info().Int("samples", len(samples))
	if n := len(samples); n > 0 {
		ev = ev.Str("last", samples[n-1].String())
	}
	ev.Float64("average", agg.Average()).Msg("Exiting...")
}

func handleSignals(cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	logger.Info().Msg("Received termination signal.")
	cancel()
}
