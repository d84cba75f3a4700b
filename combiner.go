package freshet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/freshet-engine/freshet/fshm"
)

// CombineFunc merges one sample from each input channel into out.
// inputs[i] corresponds to the i'th source name given to
// [NewCombiner].
//
// The function runs between the consumer and producer critical
// sections of a cycle, so it must be pure: no I/O, no blocking, no
// retained references to inputs (the slice is reused every cycle).
type CombineFunc[In, Out any] func(inputs []In, out *Out)

// CombinerConfig configures a [Combiner].
type CombinerConfig struct {
	// SourceNames are the channels to consume, in the fixed order
	// the combiner reads them each cycle.
	SourceNames []string

	// SinkName is the channel the combined output is published on.
	SinkName string

	// Log receives connect-phase events, including the sample-rate
	// consistency warning. If nil, slog.Default() is used.
	Log *slog.Logger

	// PeriodTolerance is the relative disagreement allowed between
	// source sample periods before the combiner warns. Zero selects
	// 1e-6.
	PeriodTolerance float64

	// Source carries the connect retry policy down to each source.
	Source SourceConfig
}

// validate panics if the configuration cannot describe a working
// combiner. Following the convention for construction-time
// validation, all problems are reported in one go.
func (c CombinerConfig) validate() {
	var panicErrs error

	if len(c.SourceNames) == 0 {
		panicErrs = errors.Join(
			panicErrs,
			errors.New("CombinerConfig.SourceNames must name at least one channel"),
		)
	}

	if c.SinkName == "" {
		panicErrs = errors.Join(
			panicErrs,
			errors.New("CombinerConfig.SinkName must not be empty"),
		)
	}

	if slices.Contains(c.SourceNames, c.SinkName) {
		panicErrs = errors.Join(
			panicErrs,
			fmt.Errorf(
				"channel %q appears as both a source and the sink; a combiner feeding itself deadlocks",
				c.SinkName,
			),
		)
	}

	for i, name := range c.SourceNames {
		if slices.Index(c.SourceNames, name) != i {
			panicErrs = errors.Join(
				panicErrs,
				fmt.Errorf("channel %q appears more than once in SourceNames", name),
			)
		}
	}

	if c.PeriodTolerance < 0 {
		panicErrs = errors.Join(
			panicErrs,
			errors.New("CombinerConfig.PeriodTolerance must not be negative"),
		)
	}

	if panicErrs != nil {
		panic(panicErrs)
	}
}

// Combiner consumes N channels, applies a pure combination function,
// and produces one channel. It is the fan-in building block of a
// pipeline: a position combiner is a Combiner over position samples,
// a frame compositor a Combiner over frames.
//
// A Combiner is owned by one goroutine.
type Combiner[In, Out any] struct {
	log *slog.Logger

	sources []*Source[In]
	sink    *Sink[Out]
	combine CombineFunc[In, Out]

	tolerance float64

	// inputs and staged are reused across cycles; staged keeps the
	// combination out of the sink's critical section.
	inputs []In
	staged Out

	period    time.Duration
	connected bool
}

// NewCombiner returns a Combiner reading from cfg.SourceNames in
// order and writing to cfg.SinkName. An invalid configuration or a
// nil combine function panics.
func NewCombiner[In, Out any](
	reg *fshm.Registry,
	combine CombineFunc[In, Out],
	cfg CombinerConfig,
) *Combiner[In, Out] {
	cfg.validate()
	if combine == nil {
		panic("BUG: NewCombiner requires a combine function")
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	if cfg.PeriodTolerance == 0 {
		cfg.PeriodTolerance = 1e-6
	}

	log := cfg.Log.With(
		"component", "combiner",
		"sink", cfg.SinkName,
	)

	srcCfg := cfg.Source
	srcCfg.Log = cfg.Log

	sources := make([]*Source[In], len(cfg.SourceNames))
	for i, name := range cfg.SourceNames {
		sources[i] = NewSource[In](reg, name, srcCfg)
	}

	return &Combiner[In, Out]{
		log:       log,
		sources:   sources,
		sink:      NewSink[Out](reg, cfg.SinkName, SinkConfig{Log: cfg.Log}),
		combine:   combine,
		tolerance: cfg.PeriodTolerance,
		inputs:    make([]In, len(sources)),
	}
}

// Connect runs the combiner's side of the two-phase startup: touch
// every source, connect them all (tolerating out-of-order process
// launch), reconcile their declared sample periods, and bind the
// sink with the reconciled period.
//
// If the sources declare inconsistent periods, Connect logs exactly
// one warning and proceeds at the slowest source rate; this is
// advisory, never fatal.
func (c *Combiner[In, Out]) Connect(ctx context.Context) error {
	if c.connected {
		panic("BUG: Combiner.Connect called twice")
	}

	for _, s := range c.sources {
		s.Touch()
	}

	periods := make([]time.Duration, len(c.sources))
	for i, s := range c.sources {
		p, err := s.Connect(ctx)
		if err != nil {
			return fmt.Errorf("connecting combiner source %s: %w", s.Name(), err)
		}
		periods[i] = p
	}

	c.period = reconcilePeriods(periods)
	if !periodsConsistent(periods, c.tolerance) {
		c.log.Warn(
			"Sample periods of sources are inconsistent; forcing synchronization at the slowest source rate",
			"periods", periods,
			"reconciled_period", c.period,
		)
	}

	if err := c.sink.Bind(c.period); err != nil {
		return fmt.Errorf("binding combiner sink: %w", err)
	}

	c.connected = true
	return nil
}

// periodsConsistent reports whether all declared periods agree
// within the relative tolerance.
func periodsConsistent(periods []time.Duration, tol float64) bool {
	max := slices.Max(periods)
	for _, p := range periods {
		if float64(max-p) > tol*float64(max) {
			return false
		}
	}
	return true
}

// reconcilePeriods picks the period the combiner will run at: the
// largest declared period, i.e. the slowest source rate, since the
// cycle cannot complete faster than its slowest input.
func reconcilePeriods(periods []time.Duration) time.Duration {
	return slices.Max(periods)
}

// SamplePeriod returns the reconciled period declared on the sink.
// It is only valid after Connect.
func (c *Combiner[In, Out]) SamplePeriod() time.Duration {
	if !c.connected {
		panic("BUG: Combiner.SamplePeriod before Connect")
	}
	return c.period
}

// Step runs one combiner cycle: read every source in fixed order,
// combine, publish. It returns done=true when an upstream channel
// reported end, without publishing anything for that cycle.
//
// Each source's critical section is confined to the sample copy;
// the combination itself runs with no channel held.
func (c *Combiner[In, Out]) Step(ctx context.Context) (done bool, err error) {
	if !c.connected {
		panic("BUG: Combiner.Step before Connect")
	}

	for i, s := range c.sources {
		st, err := s.Wait(ctx)
		if err != nil {
			return false, err
		}
		if st == StateEnd {
			return true, nil
		}

		c.inputs[i] = s.Clone()
		s.Post()
	}

	c.combine(c.inputs, &c.staged)

	if err := c.sink.Wait(ctx); err != nil {
		return false, err
	}
	*c.sink.Retrieve() = c.staged
	c.sink.Post()

	return false, nil
}

// Run cycles Step until an upstream end, an error, or ctx
// cancellation.
//
// Run propagates termination: whichever way the loop exits, the
// combiner's own sink is ended before Run returns, so downstream
// consumers observe orderly shutdown promptly instead of inferring
// it from a stalled channel.
func (c *Combiner[In, Out]) Run(ctx context.Context) error {
	if !c.connected {
		panic("BUG: Combiner.Run before Connect")
	}
	defer c.sink.SignalEnd()

	for {
		done, err := c.Step(ctx)
		if err != nil {
			return err
		}
		if done {
			c.log.Debug("Upstream channel ended; propagating")
			return nil
		}
	}
}

// Close releases every endpoint the combiner owns. The sink is ended
// if it has not been already.
func (c *Combiner[In, Out]) Close() error {
	var errs error
	for _, s := range c.sources {
		errs = errors.Join(errs, s.Close())
	}
	errs = errors.Join(errs, c.sink.Close())
	return errs
}
