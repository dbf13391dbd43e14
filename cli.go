// ABOUTME: CLI mode: run one optimization to completion and print results
// ABOUTME: Signal handling, live config reload and tabwriter result output

package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"go.uber.org/zap"

	"geneva/config"
	"geneva/monitor"
	"geneva/optimizer"
)

// CLIOptions carries the resolved command-line settings for one run.
type CLIOptions struct {
	Algorithm  string
	Backend    string
	Problem    string
	Dim        int
	Seed       uint64
	ConfigPath string
	Visual     bool
}

// RunCLI executes one optimization run end to end.
func RunCLI(cliOpts CLIOptions, opts config.Options, logger *zap.Logger) error {
	rc, err := buildRun(opts, cliOpts.Backend, cliOpts.Problem, cliOpts.Dim, logger)
	if err != nil {
		return err
	}

	defer rc.broker.Shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-stop
		cancel()
	}()

	// Live-reload tunable parameters while the run is in flight.
	if cliOpts.ConfigPath != "" {
		if _, err := os.Stat(cliOpts.ConfigPath); err == nil {
			stopWatch, werr := config.Watch(cliOpts.ConfigPath, rc.shared, logger)
			if werr != nil {
				logger.Warn("config watch unavailable", zap.Error(werr))
			} else {
				defer stopWatch()
			}
		}
	}

	backendDone := rc.startBackend(ctx)

	alg, err := rc.buildAlgorithm(cliOpts.Algorithm, cliOpts.Seed, logger)
	if err != nil {
		return err
	}

	tracker := optimizer.NewTracker()
	loop := optimizer.NewLoop(alg, rc.shared, logger, optimizer.WithTracker(tracker))

	var result *optimizer.Result
	var optErr error

	if cliOpts.Visual {
		optDone := make(chan struct{})

		go func() {
			defer close(optDone)
			result, optErr = loop.Optimize(ctx)
		}()

		if err := monitor.Run(tracker.Updates(), cancel); err != nil {
			logger.Warn("monitor failed", zap.Error(err))
		}

		<-optDone
	} else {
		go drainUpdates(tracker.Updates())
		result, optErr = loop.Optimize(ctx)
	}

	cancel()
	<-backendDone

	if optErr != nil {
		return optErr
	}

	printResult(cliOpts, result)

	return nil
}

// drainUpdates prints occasional progress lines in non-visual mode.
func drainUpdates(updates <-chan optimizer.Update) {
	for u := range updates {
		if u.Iteration%10 == 0 {
			fmt.Printf("iteration %4d  best %.8g  stalls %d\n", u.Iteration, u.BestRaw, u.Stalls)
		}
	}
}

// printResult renders the run outcome as a table.
func printResult(cliOpts CLIOptions, result *optimizer.Result) {
	fmt.Printf("\nHalt: %s after %d iterations\n", result.HaltReason, result.Iterations)
	fmt.Printf("Best fitness: %.10g\n\n", result.BestRaw)

	if result.Best == nil {
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)

	if _, err := fmt.Fprintln(w, "#\tParameter\tValue"); err != nil {
		log.Printf("Warning: failed to write header: %v", err)
	}

	for i, v := range result.Best.Parameters().FloatValues() {
		if _, err := fmt.Fprintf(w, "%d\tx%d\t%.8g\n", i+1, i, v); err != nil {
			log.Printf("Warning: failed to write parameter %d: %v", i, err)
		}
	}

	if err := w.Flush(); err != nil {
		log.Printf("Warning: failed to flush output: %v", err)
	}
}
