// SPDX-License-Identifier: MIT
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"sigscope/cmd"
	"sigscope/internal/engine"
	applog "sigscope/internal/log"
	"sigscope/pkg/build"
)

// main is the entry point for the spectrum analyser.
//
// 1. Startup: build information, command line and configuration, then the
// session is opened (source block, analysis, recorder, publishers).
//
// 2. Run: the engine pulls the source block until end-of-stream or until a
// termination signal cancels the context.
//
// 3. Shutdown: the recording is finalised and every publisher closed.
func main() {
	os.Exit(run())
}

func run() int {
	defer applog.Sync()

	devBuild := build.Initialize()

	options, err := cmd.ParseArgs(os.Args[1:])
	if err != nil {
		applog.Errorf("%v", err)
		return 2
	}
	if options.Command == "" {
		return 0
	}
	cfg := options.Config

	if level, ok := applog.ParseLevel(cfg.LogLevel); ok {
		applog.SetLevel(level)
	}
	if cfg.Debug {
		applog.SetLevel(applog.LevelDebug)
	}
	if devBuild != nil {
		applog.Debugf("Development build: %v", devBuild)
	}

	if options.Command == cmd.CommandInfo {
		if err := cmd.Info(os.Stdout, cfg); err != nil {
			applog.Errorf("%v", err)
			return 1
		}
		return 0
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	e, err := engine.NewEngine(cfg)
	if err != nil {
		applog.Errorf("%v", err)
		return 1
	}

	runErr := e.Run(ctx)
	if err := e.Close(); err != nil {
		applog.Errorf("Error closing session: %v", err)
	}

	stats := e.Stats()
	fmt.Printf("%s: %d samples, %d windows, %d published, %d gated\n",
		cfg.Source.File, stats.Samples, stats.Windows, stats.Published, stats.Gated)

	switch {
	case runErr == nil:
		return 0
	case ctx.Err() != nil:
		applog.Infof("Interrupted")
		return 130
	default:
		applog.Errorf("%v", runErr)
		return 1
	}
}
