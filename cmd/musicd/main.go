// Package main is the entry point for musicd, the headless real-time
// audio-feature daemon. It captures from a microphone front-end (or a
// synthetic tone generator in bench mode), runs the per-hop DSP and
// tempo-tracking pipeline, and serves the resulting snapshots over a
// read-only Unix-socket query protocol.
package main

import (
	"context"
	"fmt"
	"log"
	"math"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/doismell-labs/musicd/internal/capture"
	"github.com/doismell-labs/musicd/internal/config"
	"github.com/doismell-labs/musicd/internal/engine"
	"github.com/doismell-labs/musicd/internal/grid"
	"github.com/doismell-labs/musicd/internal/ipc"
	"github.com/doismell-labs/musicd/internal/types"
)

// Version is set at build time via ldflags.
var Version = "dev"

// daemonFlags holds every command-line tunable.
type daemonFlags struct {
	socketPath  string
	configDir   string
	device      string
	synthetic   bool
	synthHz     float64
	synthAmp    float64
	beatsPerBar int
	gridPollHz  int
	verbose     bool
}

func main() {
	flags := parseFlags()

	if flags.verbose {
		log.Printf("musicd version %s starting...", Version)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Printf("received signal %v, shutting down...", sig)
		cancel()
	}()

	if err := run(ctx, flags); err != nil {
		log.Fatalf("fatal error: %v", err)
	}
}

func parseFlags() *daemonFlags {
	f := &daemonFlags{}

	pflag.StringVar(&f.socketPath, "socket", "", "IPC socket path (default: auto-generated based on UID)")
	pflag.StringVar(&f.configDir, "config", "", "configuration directory (default: ~/.config/musicd)")
	pflag.StringVar(&f.device, "device", "", "path to the raw I2S capture device (a file or FIFO of little-endian int32 slots)")
	pflag.BoolVar(&f.synthetic, "synthetic", false, "use a synthetic sine-tone source instead of a capture device")
	pflag.Float64Var(&f.synthHz, "synthetic-hz", 220, "synthetic source tone frequency in Hz")
	pflag.Float64Var(&f.synthAmp, "synthetic-amplitude", 0.3, "synthetic source tone amplitude (0-1)")
	pflag.IntVar(&f.beatsPerBar, "beats-per-bar", 4, "time signature numerator for the musical grid")
	pflag.IntVar(&f.gridPollHz, "grid-poll-hz", grid.DefaultPollHz, "musical grid consumer poll rate")
	pflag.BoolVarP(&f.verbose, "verbose", "v", false, "enable verbose logging")
	pflag.Parse()

	if f.configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			log.Fatalf("failed to get home directory: %v", err)
		}
		f.configDir = homeDir + "/.config/musicd"
	}

	if f.socketPath == "" {
		f.socketPath = fmt.Sprintf("/tmp/musicd-%d.sock", os.Getuid())
	}

	return f
}

func run(ctx context.Context, flags *daemonFlags) error {
	if err := os.MkdirAll(flags.configDir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	configMgr := config.NewManager(flags.configDir)
	if err := configMgr.Load(); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	cfg := configMgr.Get()

	src, closeSrc, err := openSource(flags)
	if err != nil {
		return fmt.Errorf("failed to open capture source: %w", err)
	}
	if closeSrc != nil {
		defer closeSrc()
	}

	eng := engine.NewEngine(cfg, src)

	gridConsumer := grid.NewConsumer(eng.TempoObservations(), flags.beatsPerBar, flags.gridPollHz)

	server := ipc.NewServer(
		flags.socketPath,
		eng.ControlBus(),
		gridConsumer.Snapshots(),
		eng.Style(),
		eng.Diagnostics(),
		eng.Config(),
	)

	go eng.Run(ctx)
	go gridConsumer.Run(ctx)

	log.Printf("starting IPC server on %s", flags.socketPath)
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("IPC server error: %w", err)
	}

	return nil
}

// openSource builds the engine's capture.Source from flags: either a
// raw device file/FIFO, or a deterministic synthetic tone generator
// for demos and benches where no microphone hardware is attached.
func openSource(flags *daemonFlags) (capture.Source, func() error, error) {
	if flags.synthetic {
		if flags.verbose {
			log.Printf("using synthetic source: %gHz @ amplitude %g", flags.synthHz, flags.synthAmp)
		}
		return syntheticSource(flags.synthHz, flags.synthAmp), nil, nil
	}

	if flags.device == "" {
		return nil, nil, fmt.Errorf("no --device given and --synthetic not set")
	}

	f, err := os.Open(flags.device)
	if err != nil {
		return nil, nil, err
	}
	return capture.NewDeviceSource(f), f.Close, nil
}

// syntheticSource builds a capture.Source that emits raw I2S slot
// words reconstructing a sine tone of the given amplitude (post
// pre-amp fraction) and frequency, inverting capture's conversion
// sequence exactly as the engine's own tests do.
func syntheticSource(freqHz, amplitude float64) *capture.SyntheticSource {
	return capture.NewSyntheticSource(func(i uint64) int32 {
		t := float64(i) / float64(types.SampleRateHz)
		fraction := amplitude * math.Sin(2*math.Pi*freqHz*t)
		centred := fraction / 4.0 * 131072.0
		biased := centred + 360
		shifted := biased - 7000
		return int32(shifted) * (1 << 14)
	})
}
