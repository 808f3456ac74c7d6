package harvest

import (
	"log/slog"

	"github.com/qepting91/review-harvester/internal/domain"
)

// State is the process-local state of one run.
type State struct {
	// Cursor is the next ordinal to request. It never decreases.
	Cursor int
	// Seen holds every accepted identity. It is never pruned mid-run.
	Seen             map[string]struct{}
	StagnationStreak int
	// Pending holds accepted records not yet flushed, in ordinal order.
	Pending []domain.Record
}

func NewState() *State {
	return &State{Seen: make(map[string]struct{})}
}

// KeyFunc returns the identity function for mode, for callers outside a run
// such as sink repair and merge.
func KeyFunc(mode IdentityMode) domain.KeyFunc {
	if mode == IdentityStructural {
		return domain.StructuralKey
	}
	return domain.ExplicitKey
}

// Deduplicator admits each identity into a State at most once.
type Deduplicator struct {
	state  *State
	mode   IdentityMode
	logger *slog.Logger
}

func NewDeduplicator(state *State, mode IdentityMode, logger *slog.Logger) *Deduplicator {
	if mode == "" {
		mode = IdentityExplicit
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Deduplicator{state: state, mode: mode, logger: logger}
}

// Identity returns the dedup key for r. In explicit mode a record without an
// id falls back to its structural key.
func (d *Deduplicator) Identity(r domain.Record) string {
	if d.mode == IdentityStructural {
		return domain.StructuralKey(r)
	}
	if r.ID == "" {
		key := domain.StructuralKey(r)
		d.logger.Warn("record has no explicit id, using structural key",
			"kind", domain.KindMalformedRecord,
			"author", r.Author,
			"key", key,
		)
		return key
	}
	return r.ID
}

// Accept reports whether r was admitted. A rejected record has no side effect.
func (d *Deduplicator) Accept(r domain.Record) bool {
	key := d.Identity(r)
	if _, ok := d.state.Seen[key]; ok {
		return false
	}
	d.state.Seen[key] = struct{}{}
	d.state.Pending = append(d.state.Pending, r)
	return true
}

// Seed marks the identities of records as seen without buffering them and
// returns how many were new.
func (d *Deduplicator) Seed(records []domain.Record) int {
	n := 0
	for _, r := range records {
		key := d.Identity(r)
		if _, ok := d.state.Seen[key]; ok {
			continue
		}
		d.state.Seen[key] = struct{}{}
		n++
	}
	return n
}
