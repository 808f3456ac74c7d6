package harvest

import (
	"fmt"
	"time"
)

// IdentityMode selects how a record's dedup key is derived.
type IdentityMode string

const (
	// IdentityExplicit keys on the source-assigned id.
	IdentityExplicit IdentityMode = "explicit"
	// IdentityStructural keys on author+text+date. Distinct reviews that share
	// all three are merged into one.
	IdentityStructural IdentityMode = "structural"
)

// Options are the tunable knobs of a harvesting run.
type Options struct {
	// Target is the requested record count N.
	Target int

	BatchSize       int
	FlushThreshold  int
	StagnationLimit int
	SettleInterval  time.Duration

	// RevealTimeout bounds every driver call. Zero disables the bound.
	RevealTimeout time.Duration
	RevealRetries int

	FlushRetries int
	FlushBackoff time.Duration

	Identity IdentityMode

	// Resume seeds the seen set from the sink's existing output.
	Resume bool
}

// DefaultOptions returns the default policy for a run of target records.
func DefaultOptions(target int) Options {
	return Options{
		Target:          target,
		BatchSize:       20,
		FlushThreshold:  200,
		StagnationLimit: 3,
		SettleInterval:  500 * time.Millisecond,
		RevealTimeout:   5 * time.Second,
		RevealRetries:   3,
		FlushRetries:    3,
		FlushBackoff:    500 * time.Millisecond,
		Identity:        IdentityExplicit,
	}
}

func (o Options) Validate() error {
	switch {
	case o.Target <= 0:
		return fmt.Errorf("target must be positive, got %d", o.Target)
	case o.BatchSize <= 0:
		return fmt.Errorf("batch size must be positive, got %d", o.BatchSize)
	case o.FlushThreshold <= 0:
		return fmt.Errorf("flush threshold must be positive, got %d", o.FlushThreshold)
	case o.StagnationLimit <= 0:
		return fmt.Errorf("stagnation limit must be positive, got %d", o.StagnationLimit)
	case o.SettleInterval < 0 || o.RevealTimeout < 0 || o.FlushBackoff < 0:
		return fmt.Errorf("durations must not be negative")
	case o.RevealRetries < 0 || o.FlushRetries < 0:
		return fmt.Errorf("retry budgets must not be negative")
	}
	switch o.Identity {
	case "", IdentityExplicit, IdentityStructural:
	default:
		return fmt.Errorf("unknown identity mode %q (use 'explicit' or 'structural')", o.Identity)
	}
	return nil
}
