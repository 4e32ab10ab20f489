package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dirtail/dirtail/internal/config"
	"github.com/dirtail/dirtail/internal/follow"
	"github.com/dirtail/dirtail/internal/metrics"
	"github.com/dirtail/dirtail/internal/observability"
	"github.com/dirtail/dirtail/internal/offset"
	"github.com/dirtail/dirtail/internal/output"
	"github.com/dirtail/dirtail/internal/pattern"
	"github.com/dirtail/dirtail/internal/watch"
)

const version = "0.1.0"

// Exit codes follow the sysexits convention where one applies.
const (
	exitOK      = 0
	exitErr     = 1
	exitNoInput = 66 // directory missing or not a directory
	exitIOErr   = 74 // I/O failure while setting up
)

func main() {
	os.Exit(run())
}

func run() int {
	var cli config.CLI
	kctx := kong.Parse(&cli,
		kong.Name("dirtail"),
		kong.Description("Follow every changing file in a directory, tail -f style, on one multiplexed output stream."),
		kong.UsageOnError(),
	)

	// Record which flags were given explicitly so the config file only
	// fills in what the command line left at its default.
	flagsSet := map[string]bool{}
	for _, p := range kctx.Path {
		if p.Flag != nil {
			flagsSet[p.Flag.Name] = true
		}
	}

	if cli.ConfigFile != "" {
		fc, err := config.LoadFile(cli.ConfigFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "dirtail: %v\n", err)
			return exitIOErr
		}
		if err := cli.Apply(fc, flagsSet); err != nil {
			fmt.Fprintf(os.Stderr, "dirtail: %v\n", err)
			return exitErr
		}
	}
	if err := cli.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "dirtail: %v\n", err)
		return exitErr
	}

	observability.InitLogger(cli.LogLevel)

	fi, err := os.Stat(cli.Dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "dirtail: cannot access %s: %v\n", cli.Dir, err)
		return exitNoInput
	}
	if !fi.IsDir() {
		fmt.Fprintf(os.Stderr, "dirtail: %s is not a directory\n", cli.Dir)
		return exitNoInput
	}

	matcher, err := pattern.Compile(cli.Pattern)
	if err != nil {
		fmt.Fprintf(os.Stderr, "dirtail: invalid pattern: %v\n", err)
		return exitErr
	}

	runID := uuid.New().String()
	log.Info().
		Str("version", version).
		Str("run_id", runID).
		Str("dir", cli.Dir).
		Msg("Starting dirtail")

	shutdownTracer, err := observability.InitTracer(observability.TracerConfig{
		ServiceName:    "dirtail",
		ServiceVersion: version,
		Endpoint:       cli.TracingEndpoint,
		Protocol:       cli.TracingProtocol,
		Enabled:        cli.Tracing,
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to initialize tracer")
	} else {
		defer shutdownTracer(context.Background())
	}

	if cli.MetricsAddr != "" {
		srv, err := metrics.Start(cli.MetricsAddr)
		if err != nil {
			fmt.Fprintf(os.Stderr, "dirtail: failed to serve metrics: %v\n", err)
			return exitIOErr
		}
		defer srv.Stop()
	}

	var store offset.Store
	if cli.StateFile != "" {
		bs, err := offset.NewBoltStore(cli.StateFile, runID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "dirtail: failed to open state file: %v\n", err)
			return exitIOErr
		}
		defer bs.Close()
		store = bs
	}

	follower := follow.New(follow.Options{
		Dir:            cli.Dir,
		Matcher:        matcher,
		Recursive:      cli.Recursive,
		Depth:          cli.Depth,
		InitialLines:   cli.Lines,
		RescanInterval: cli.RescanInterval,
		Subscriber: &watch.Auto{
			Native:   &watch.Notify{Recursive: cli.Recursive, Depth: cli.Depth},
			Fallback: &watch.Poller{Interval: cli.PollInterval, Recursive: cli.Recursive, Depth: cli.Depth},
		},
		Mux:     output.NewMux(os.Stdout, cli.Colorize()),
		Offsets: store,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info().Msg("Received shutdown signal")
		cancel()
	}()

	if err := follower.Run(ctx); err != nil {
		log.Error().Err(err).Msg("Follow failed")
		return exitIOErr
	}

	log.Info().Msg("Stopped")
	return exitOK
}
