package sync

import (
	"time"

	"github.com/plateful/plateful/internal/model"
)

// RecordError pins a sync failure to one record.
type RecordError struct {
	Collection model.Collection
	ID         string
	Op         string
	Err        error
}

// Report summarizes one sync cycle. Every pending record ends the cycle in
// exactly one bucket: pushed, auto-resolved, conflicted, discarded, left for
// retry (NeedsAttention), or errored.
type Report struct {
	StartedAt time.Time
	Duration  time.Duration

	// Pushed counts records the server acknowledged this cycle.
	Pushed int
	// Pulled counts server records applied locally this cycle.
	Pulled int
	// Discarded counts never-synced records deleted before first sync
	// (removed locally, no remote call).
	Discarded int
	// Conflicts counts records parked in the conflict state.
	Conflicts int
	// AutoResolved counts conflicts settled without user action
	// (identical payloads, matching deletes, or a merge strategy).
	AutoResolved int

	// NeedsAttention lists records still pending after retries were
	// exhausted; they will be retried on the next cycle.
	NeedsAttention []RecordError
	// Failed lists records parked in the error state.
	Failed []RecordError
}

func (r *Report) noteAttention(col model.Collection, id, op string, err error) {
	r.NeedsAttention = append(r.NeedsAttention, RecordError{Collection: col, ID: id, Op: op, Err: err})
}

func (r *Report) noteFailure(col model.Collection, id, op string, err error) {
	r.Failed = append(r.Failed, RecordError{Collection: col, ID: id, Op: op, Err: err})
}
