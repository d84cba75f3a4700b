// Command freshet-posesim publishes simulated position samples on a
// named channel, standing in for a camera-plus-detector chain when
// testing a pipeline.
//
// Usage:
//
//	freshet-posesim -config posesim.toml
//
// The process runs until interrupted; on SIGINT or SIGTERM it ends
// its channel so downstream consumers shut down in order.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/freshet-engine/freshet"
	"github.com/freshet-engine/freshet/fpose"
	"github.com/freshet-engine/freshet/fpose/fposesim"
	"github.com/freshet-engine/freshet/fshm"
)

type config struct {
	// Channel is the name the sink binds.
	Channel string `toml:"channel"`

	// PeriodSeconds is the declared sample period.
	PeriodSeconds float64 `toml:"sample_period_seconds"`

	// AccelSigma is the random acceleration's standard deviation.
	AccelSigma float64 `toml:"accel_sigma"`

	// Seed fixes the trajectory.
	Seed uint64 `toml:"seed"`

	// Samples caps the run; zero means run until interrupted.
	Samples uint64 `toml:"samples"`

	// RegistryDir overrides the segment directory, mainly for
	// running a whole pipeline against a scratch directory.
	RegistryDir string `toml:"registry_dir"`
}

func loadConfig(path string) (config, error) {
	cfg := config{
		Channel:       "posesim",
		PeriodSeconds: 0.01,
		AccelSigma:    5,
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config: %w", err)
	}
	if err := toml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if cfg.PeriodSeconds <= 0 {
		return cfg, fmt.Errorf("config %s: sample_period_seconds must be positive", path)
	}
	return cfg, nil
}

func parseArgs(args []string) (configPath string, err error) {
	fs := flag.NewFlagSet("freshet-posesim", flag.ContinueOnError)
	path := fs.String("config", "posesim.toml", "path to the TOML config file")
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

	period := time.Duration(cfg.PeriodSeconds * float64(time.Second))

	reg := fshm.NewRegistry(cfg.RegistryDir)
	sink := freshet.NewSink[fpose.Pose2D](reg, cfg.Channel, freshet.SinkConfig{Log: log})
	if err := sink.Bind(period); err != nil {
		return err
	}
	defer sink.Close()

	sim := fposesim.New(fposesim.Config{
		Period:     period,
		AccelSigma: cfg.AccelSigma,
		Seed:       cfg.Seed,
	})

	log.Info(
		"Publishing simulated positions",
		"channel", cfg.Channel,
		"sample_period", period,
	)

	ticker := time.NewTicker(period)
	defer ticker.Stop()

	var published uint64
	for {
		select {
		case <-ctx.Done():
			// SignalEnd happens in sink.Close.
			log.Info("Interrupted; ending channel", "samples", published)
			return nil
		case <-ticker.C:
		}

		if err := sink.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				log.Info("Interrupted; ending channel", "samples", published)
				return nil
			}
			return err
		}
		sim.Step(sink.Retrieve())
		sink.Post()

		published++
		if cfg.Samples > 0 && published >= cfg.Samples {
			log.Info("Sample cap reached; ending channel", "samples", published)
			return nil
		}
	}
}
