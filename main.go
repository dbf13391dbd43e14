// ABOUTME: Entry point for the geneva optimization driver
// ABOUTME: Command-line parsing, profiling, server/client/visual routing

// Package main provides the driver for geneva, a distributed
// evolutionary-computation core with a broker/consumer execution fabric.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"runtime"
	"runtime/pprof"
	"time"

	"go.uber.org/zap"

	"geneva/config"
	"geneva/consumer"
)

func main() {
	os.Exit(run())
}

func run() int {
	algorithm := flag.String("algorithm", "ea", "optimization algorithm: ea, sa, swarm, ps or gd")
	backend := flag.String("consumer", "threads", "execution backend: serial, threads or tcp")
	problem := flag.String("problem", "parabola", "objective function: parabola or rosenbrock")
	dim := flag.Int("dim", 3, "problem dimensionality")
	seed := flag.Uint64("seed", 42, "random seed")
	configPath := flag.String("config", "geneva.toml", "path to the TOML run configuration")
	visual := flag.Bool("visual", false, "run in visual mode with a live progress monitor")
	clientMode := flag.Bool("client", false, "run as a remote TCP worker instead of an optimization server")
	addr := flag.String("addr", "", "server address for client mode (default from config ip:port)")
	maxStints := flag.Int("maxStints", 0, "client mode: stop after this many processed items (0 = unlimited)")
	maxSeconds := flag.Int("maxSeconds", 0, "client mode: stop after this many seconds (0 = unlimited)")
	debug := flag.Bool("debug", false, "enable debug logging")
	cpuprofile := flag.String("cpuprofile", "", "write cpu profile to file")
	memprofile := flag.String("memprofile", "", "write memory profile to file")
	flag.Parse()

	if *cpuprofile != "" {
		stopCPUProfile := setupCPUProfile(*cpuprofile)
		defer stopCPUProfile()
	}

	if *memprofile != "" {
		defer writeMemoryProfile(*memprofile)
	}

	logger, err := buildLogger(*debug)
	if err != nil {
		log.Printf("Failed to build logger: %v", err)

		return 1
	}

	defer func() { _ = logger.Sync() }()

	registerEvaluators()

	opts, err := config.Load(*configPath)
	if err != nil {
		logger.Warn("config load failed, using defaults", zap.Error(err))
	}

	if *clientMode {
		if err := runClient(opts, *addr, *maxStints, *maxSeconds, logger); err != nil {
			logger.Error("client failed", zap.Error(err))

			return 1
		}

		return 0
	}

	cliOpts := CLIOptions{
		Algorithm:  *algorithm,
		Backend:    *backend,
		Problem:    *problem,
		Dim:        *dim,
		Seed:       *seed,
		ConfigPath: *configPath,
		Visual:     *visual,
	}

	if err := RunCLI(cliOpts, opts, logger); err != nil {
		logger.Error("optimization failed", zap.Error(err))

		return 1
	}

	return 0
}

// buildLogger constructs the zap logger for the chosen verbosity.
func buildLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}

	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"stderr"}

	return cfg.Build()
}

// runClient starts a remote TCP worker against the configured server.
func runClient(opts config.Options, addr string, maxStints, maxSeconds int, logger *zap.Logger) error {
	if err := opts.Validate(); err != nil {
		return err
	}

	if addr == "" {
		addr = fmt.Sprintf("%s:%d", opts.IP, opts.Port)
	}

	client := consumer.NewClient(consumer.ClientOptions{
		Addr:        addr,
		Mode:        opts.Mode(),
		MaxStints:   maxStints,
		MaxDuration: time.Duration(maxSeconds) * time.Second,
	}, logger)

	logger.Info("starting remote worker", zap.String("addr", addr))

	return client.Run(context.Background())
}

// setupCPUProfile starts CPU profiling, returns cleanup function
func setupCPUProfile(filename string) func() {
	f, err := os.Create(filename)
	if err != nil {
		log.Fatalf("could not create CPU profile: %v", err)
	}

	if err := pprof.StartCPUProfile(f); err != nil {
		_ = f.Close()
		log.Fatalf("could not start CPU profile: %v", err)
	}

	return func() {
		pprof.StopCPUProfile()

		if err := f.Close(); err != nil {
			log.Printf("Warning: failed to close CPU profile: %v", err)
		}
	}
}

// writeMemoryProfile writes memory profile to file
func writeMemoryProfile(filename string) {
	f, err := os.Create(filename)
	if err != nil {
		log.Printf("could not create memory profile: %v", err)

		return
	}

	defer func() {
		if err := f.Close(); err != nil {
			log.Printf("Warning: failed to close memory profile: %v", err)
		}
	}()

	runtime.GC()

	if err := pprof.WriteHeapProfile(f); err != nil {
		log.Printf("could not write memory profile: %v", err)
	}
}
