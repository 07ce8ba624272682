// Package transfers persists transfer history: one row per finished batch
// plus one row per file outcome, written together in a single transaction.
package transfers

import (
	"context"
	"time"

	"github.com/dmitrijs2005/securedrive/internal/transfer"
)

// BatchRecord is a stored batch summary.
type BatchRecord struct {
	ID             string
	StartedAt      time.Time
	FinishedAt     time.Time
	FilesTotal     int
	FilesCompleted int
	FilesFailed    int
	FilesCancelled int
	BytesUploaded  int64
}

// JobRecord is a stored per-file outcome.
type JobRecord struct {
	ID             string
	BatchID        string
	SourcePath     string
	DisplayName    string
	SizeBytes      int64
	ContainerBytes int64
	RemoteID       string
	Status         string
	FailureStage   string
	Error          string
	StartedAt      time.Time
	FinishedAt     time.Time
}

// Repository describes transfer-history persistence. The write side doubles
// as the orchestrator's ledger.
type Repository interface {
	// RecordBatch stores a finished batch and all its job outcomes.
	RecordBatch(ctx context.Context, summary *transfer.BatchSummary, jobs []transfer.JobSnapshot) error

	// ListBatches returns the most recent batches, newest first.
	ListBatches(ctx context.Context, limit int) ([]*BatchRecord, error)

	// GetBatch returns one batch with its jobs in submit order.
	GetBatch(ctx context.Context, id string) (*BatchRecord, []*JobRecord, error)
}
