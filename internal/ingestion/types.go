// Package ingestion implements the batch ingestion and job tracker:
// accept-then-process for arbitrarily large enrichment requests, with
// per-item status persisted so callers can poll for completion instead of
// holding a connection open for the whole batch.
package ingestion

import "time"

// ItemStatus is one JobItem's lifecycle state.
type ItemStatus string

const (
	StatusPending    ItemStatus = "pending"
	StatusProcessing ItemStatus = "processing"
	StatusCompleted  ItemStatus = "completed"
	StatusFailed     ItemStatus = "failed"
)

// Item is one material submitted for enrichment.
type Item struct {
	MaterialID string
	Name       string
	Unit       string
}

// JobItem is one Item's tracked progress.
type JobItem struct {
	MaterialID    string
	Status        ItemStatus
	SKU           string
	Similarity    float64
	Error         string
	Attempts      int
	LastAttemptAt time.Time
}

// Job is the aggregate view of a batch request. The
// invariant pending+processing+completed+failed==total holds at every
// observation; transitions are monotonic except processing->pending on
// retry.
type Job struct {
	RequestID           string
	CreatedAt           time.Time
	Total               int
	Pending             int
	Processing          int
	Completed           int
	Failed              int
	EstimatedCompletion time.Time
	Ephemeral           bool // true when job rows live only in cache
}
