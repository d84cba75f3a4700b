// Command freshet-combine merges position samples from several
// channels into one, publishing the mean of the valid estimates.
//
// Usage:
//
//	freshet-combine -config combine.toml
//
// The process participates in the pipeline's two-phase startup: it
// retries connecting to its sources until their producers bind, so
// it may be launched before, after, or between them.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/pelletier/go-toml/v2"

	"github.com/freshet-engine/freshet"
	"github.com/freshet-engine/freshet/fpose"
	"github.com/freshet-engine/freshet/fshm"
)

type config struct {
	// Sources are the channels to combine, read in this order.
	Sources []string `toml:"sources"`

	// Sink is the channel the combined estimate is published on.
	Sink string `toml:"sink"`

	// RegistryDir overrides the segment directory.
	RegistryDir string `toml:"registry_dir"`
}

func loadConfig(path string) (config, error) {
	var cfg config

	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config: %w", err)
	}
	if err := toml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if len(cfg.Sources) == 0 {
		return cfg, fmt.Errorf("config %s: at least one source channel is required", path)
	}
	if cfg.Sink == "" {
		return cfg, fmt.Errorf("config %s: a sink channel is required", path)
	}
	return cfg, nil
}

func parseArgs(args []string) (configPath string, err error) {
	fs := flag.NewFlagSet("freshet-combine", flag.ContinueOnError)
	path := fs.String("config", "combine.toml", "path to the TOML config file")
	if err := fs.Parse(args); err != nil {
		return "", err
	}
	return *path, nil
}

func main() {
	log := slog.New(slog.NewTextHandler(os.Stderr, nil))

	configPath, err := parseArgs(os.Args[1:])
	if err != nil {
		os.Exit(2)
	}

	if err := run(log, configPath); err != nil {
		log.Error("Exiting due to error", "err", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger, configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(
		context.Background(), syscall.SIGINT, syscall.SIGTERM,
	)
	defer stop()

	reg := fshm.NewRegistry(cfg.RegistryDir)

	comb := freshet.NewCombiner(reg, fpose.Mean, freshet.CombinerConfig{
		SourceNames: cfg.Sources,
		SinkName:    cfg.Sink,
		Log:         log,
	})
	defer comb.Close()

	if err := comb.Connect(ctx); err != nil {
		return err
	}

	log.Info(
		"Combining position channels",
		"sources", cfg.Sources,
		"sink", cfg.Sink,
		"sample_period", comb.SamplePeriod(),
	)

	if err := comb.Run(ctx); err != nil {
		if ctx.Err() != nil {
			// Interrupted; Run already ended the sink.
			log.Info("Interrupted; ended sink channel")
			return nil
		}
		return err
	}

	log.Info("Upstream ended; shut down in order")
	return nil
}
