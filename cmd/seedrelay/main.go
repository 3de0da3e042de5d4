// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/bureau-foundation/seedrelay/lib/checkpoint"
	"github.com/bureau-foundation/seedrelay/lib/clock"
	"github.com/bureau-foundation/seedrelay/lib/config"
	"github.com/bureau-foundation/seedrelay/lib/datalink"
	"github.com/bureau-foundation/seedrelay/lib/metrics"
	"github.com/bureau-foundation/seedrelay/lib/process"
	"github.com/bureau-foundation/seedrelay/lib/relay"
	"github.com/bureau-foundation/seedrelay/lib/seedlink"
	"github.com/bureau-foundation/seedrelay/lib/translate"
	"github.com/bureau-foundation/seedrelay/lib/version"
)

// Exit statuses beyond the default 1.
const exitSinkUnreachable = 2

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), unix.SIGINT, unix.SIGQUIT, unix.SIGTERM)
	signal.Ignore(unix.SIGHUP, unix.SIGPIPE)
	err := run(ctx, os.Args[1:], os.Stderr)
	stop()
	process.Exit(err)
}

func run(ctx context.Context, args []string, stderr io.Writer) error {
	var opts options
	flags := newFlagSet(&opts)
	if err := flags.Parse(args); err != nil {
		printShortUsage(stderr)
		return usageError(err)
	}
	if opts.help {
		printUsage(stderr, flags)
		return nil
	}
	if opts.version {
		version.Print(stderr, program)
		return nil
	}

	cfg, err := loadConfig(flags, &opts)
	if err != nil {
		printShortUsage(stderr)
		return usageError(err)
	}
	return serve(ctx, cfg, stderr)
}

// usageError maps err to exit status 1 under config.ErrConfig.
func usageError(err error) error {
	if !errors.Is(err, config.ErrConfig) {
		err = fmt.Errorf("%w: %w", config.ErrConfig, err)
	}
	return process.WithCode(1, err)
}

// serve wires the sessions, store, and metrics together and runs the
// controller until the stream ends or ctx is cancelled.
func serve(ctx context.Context, cfg *config.Config, stderr io.Writer) error {
	logger := newLogger(stderr, cfg.Log)
	logger.Info(version.Banner(program))

	selectors := strings.Fields(cfg.SeedLink.Selectors)
	var streams []seedlink.StreamSelector
	var err error
	switch {
	case cfg.SeedLink.Streams != "":
		streams, err = seedlink.ParseStreamList(cfg.SeedLink.Streams, selectors)
	case cfg.SeedLink.StreamFile != "":
		streams, err = seedlink.ReadStreamListFile(cfg.SeedLink.StreamFile, selectors)
	}
	if err != nil {
		return usageError(err)
	}
	var begin, end string
	if cfg.SeedLink.TimeWindow != "" {
		if begin, end, err = seedlink.ParseTimeWindow(cfg.SeedLink.TimeWindow); err != nil {
			return usageError(err)
		}
	}

	var store relay.Store
	var initial checkpoint.State
	if cfg.State.Path != "" {
		checkpoints, err := checkpoint.Open(cfg.State.Path, clock.Real(), logger.With("component", "checkpoint"))
		if err != nil {
			logger.Warn("cannot open state file, running without checkpoints",
				"path", cfg.State.Path,
				"error", err,
			)
		} else {
			defer func() {
				if err := checkpoints.Close(); err != nil {
					logger.Error("closing state file", "path", cfg.State.Path, "error", err)
				}
			}()
			initial = loadCheckpoint(checkpoints, cfg.State.Path, logger)
			store = checkpoints
		}
	}

	sourceConfig := seedlink.DefaultConfig(cfg.SeedLink.Address)
	sourceConfig.Selectors = selectors
	sourceConfig.Streams = streams
	sourceConfig.BeginTime = begin
	sourceConfig.EndTime = end
	sourceConfig.Dialup = cfg.SeedLink.Dialup
	sourceConfig.Keepalive = cfg.SeedLink.Keepalive
	sourceConfig.NetworkTimeout = cfg.SeedLink.NetworkTimeout
	sourceConfig.Resume = initial
	source, err := seedlink.NewSession(sourceConfig, logger.With("component", "seedlink"), clock.Real())
	if err != nil {
		return usageError(err)
	}

	translator, err := translate.New(cfg.Relay.Network)
	if err != nil {
		return usageError(err)
	}

	sink, err := datalink.NewSession(cfg.DataLink.Address, datalink.Options{
		ClientID: datalink.ClientID(program),
		Timeout:  cfg.DataLink.Timeout,
		Logger:   logger.With("component", "datalink"),
	})
	if err != nil {
		return usageError(err)
	}

	recorder := metrics.New()
	if cfg.Metrics.Addr != "" {
		listener, err := net.Listen("tcp", cfg.Metrics.Addr)
		if err != nil {
			return fmt.Errorf("metrics endpoint: %w", err)
		}
		metricsContext, cancelMetrics := context.WithCancel(ctx)
		metricsDone := make(chan struct{})
		go func() {
			defer close(metricsDone)
			if err := recorder.Serve(metricsContext, listener, logger.With("component", "metrics")); err != nil {
				logger.Error("metrics endpoint failed", "error", err)
			}
		}()
		defer func() {
			cancelMetrics()
			<-metricsDone
		}()
	}

	controller, err := relay.New(relay.Config{
		Source:             source,
		Sink:               sink,
		Translator:         translator,
		Store:              store,
		CheckpointInterval: cfg.State.Interval,
		Backoff:            cfg.Relay.Backoff,
		RequestAck:         cfg.DataLink.Ack,
		Initial:            initial,
		Clock:              clock.Real(),
		Logger:             logger.With("component", "relay"),
		Metrics:            recorder,
	})
	if err != nil {
		return err
	}

	logger.Info("relay starting",
		"seedlink", source.Address(),
		"datalink", sink.Address(),
		"streams", len(streams),
		"dialup", cfg.SeedLink.Dialup,
		"network_override", cfg.Relay.Network,
	)
	err = controller.Run(ctx)
	switch {
	case errors.Is(err, relay.ErrStartup):
		return process.WithCode(exitSinkUnreachable, err)
	case errors.Is(err, relay.ErrSource):
		logger.Error("SeedLink session failed", "error", err)
		return nil
	}
	return err
}

// loadCheckpoint returns the saved positions, or an empty state when
// none can be read. A missing or unreadable checkpoint never stops the
// relay.
func loadCheckpoint(store checkpoint.Store, path string, logger *slog.Logger) checkpoint.State {
	state, err := store.Load()
	switch {
	case err == nil:
		logger.Info("resuming from checkpoint", "path", path, "streams", state.Len())
		return state
	case errors.Is(err, checkpoint.ErrNotFound):
		logger.Info("no checkpoint found, starting without resume", "path", path)
	default:
		logger.Warn("cannot read checkpoint, starting without resume", "path", path, "error", err)
	}
	return checkpoint.State{}
}
