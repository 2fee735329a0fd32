package composition

import (
	"time"

	"github.com/hupe1980/calmesh/core"
	"github.com/hupe1980/calmesh/fanout"
	"github.com/hupe1980/calmesh/logging"
)

// Config defines tuning parameters of one composition engine instance.
type Config struct {
	// MaxParallel is the worker pool ceiling for operations spanning several
	// accounts. It is independent of the number of accounts involved; excess
	// jobs queue.
	MaxParallel int

	// Timeout bounds every fan-out in addition to the caller's deadline.
	// Zero disables the engine-side bound.
	Timeout time.Duration

	// MaxEventResults caps the number of events returned by one batch read.
	// Envelopes beyond the cap carry core.ErrResultTooLarge. Zero disables
	// the cap.
	MaxEventResults int
}

// DefaultConfig provides the configuration used when none is supplied.
var DefaultConfig = Config{
	MaxParallel:     8,
	Timeout:         30 * time.Second,
	MaxEventResults: 10000,
}

// Options configures an Access instance using the functional options pattern.
//
// Example:
//
//	access := composition.New(session, accounts, providers, func(o *composition.Options) {
//	    o.Config.MaxParallel = 4
//	    o.Logger = logger
//	})
type Options struct {
	// Config contains operational parameters. Defaults to DefaultConfig.
	Config Config

	// FreeBusy lists the free/busy providers queried by QueryFreeBusy.
	FreeBusy []core.FreeBusyProvider

	// Logger provides structured logging. Defaults to a no-op logger.
	Logger logging.Logger
}

func (c Config) executor() fanout.Config {
	return fanout.Config{MaxParallel: c.MaxParallel, Timeout: c.Timeout}
}
