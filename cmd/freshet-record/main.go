// Command freshet-record drains a position channel and writes one
// JSON object per sample, to a file or stdout.
//
// Usage:
//
//	freshet-record -config record.toml
//
// A recorder must keep up with its producer: a sample is held only
// for the duration of the copy, so recording never stalls the
// pipeline unless the output device itself cannot keep pace.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/bytedance/sonic"
	"github.com/pelletier/go-toml/v2"

	"github.com/freshet-engine/freshet"
	"github.com/freshet-engine/freshet/fpose"
	"github.com/freshet-engine/freshet/fshm"
)

type config struct {
	// Channel is the position channel to record.
	Channel string `toml:"channel"`

	// Output is the destination path; empty means stdout.
	Output string `toml:"output"`

	// RegistryDir overrides the segment directory.
	RegistryDir string `toml:"registry_dir"`
}

// record is the persisted shape of one sample, the pose plus the
// producer's sequence number.
type record struct {
	Sample uint64 `json:"sample"`

	X  float64 `json:"x"`
	Y  float64 `json:"y"`
	VX float64 `json:"vx"`
	VY float64 `json:"vy"`

	PositionValid bool `json:"position_valid"`
	VelocityValid bool `json:"velocity_valid"`
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
	if cfg.Channel == "" {
		return cfg, fmt.Errorf("config %s: a channel is required", path)
	}
	return cfg, nil
}

func parseArgs(args []string) (configPath string, err error) {
	fs := flag.NewFlagSet("freshet-record", flag.ContinueOnError)
	path := fs.String("config", "record.toml", "path to the TOML config file")
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

	var out io.Writer = os.Stdout
	if cfg.Output != "" {
		f, err := os.Create(cfg.Output)
		if err != nil {
			return fmt.Errorf("creating output: %w", err)
		}
		defer f.Close()
		out = f
	}
	w := bufio.NewWriter(out)
	defer w.Flush()

	reg := fshm.NewRegistry(cfg.RegistryDir)
	src := freshet.NewSource[fpose.Pose2D](reg, cfg.Channel, freshet.SourceConfig{Log: log})
	defer src.Close()

	src.Touch()
	period, err := src.Connect(ctx)
	if err != nil {
		return err
	}

	log.Info(
		"Recording channel",
		"channel", cfg.Channel,
		"sample_period", period,
	)

	var n uint64
	for {
		st, err := src.Wait(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Info("Interrupted", "samples", n)
				return nil
			}
			return err
		}
		if st == freshet.StateEnd {
			log.Info("Channel ended", "samples", n)
			return nil
		}

		rec := record{Sample: src.SampleNumber()}
		pose := src.Clone()
		src.Post()

		rec.X, rec.Y = pose.X, pose.Y
		rec.VX, rec.VY = pose.VX, pose.VY
		rec.PositionValid = pose.PositionValid
		rec.VelocityValid = pose.VelocityValid

		line, err := sonic.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encoding sample %d: %w", rec.Sample, err)
		}
		line = append(line, '\n')
		if _, err := w.Write(line); err != nil {
			return fmt.Errorf("writing sample %d: %w", rec.Sample, err)
		}

		n++
	}
}
