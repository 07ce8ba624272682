package transfers

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/securedrive/internal/common"
	"github.com/dmitrijs2005/securedrive/internal/dbx"
	"github.com/dmitrijs2005/securedrive/internal/transfer"
)

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// RecordBatch writes the batch row and every job row in one transaction, so
// history never shows a batch without its jobs.
func (r *SQLiteRepository) RecordBatch(ctx context.Context, summary *transfer.BatchSummary, jobs []transfer.JobSnapshot) error {
	return dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		query := `insert into transfer_batches
			(id, started_at, finished_at, files_total, files_completed, files_failed, files_cancelled, bytes_uploaded)
			values (?, ?, ?, ?, ?, ?, ?, ?)`
		_, err := tx.ExecContext(ctx, query,
			summary.ID, summary.StartedAt, summary.FinishedAt,
			summary.FilesTotal, summary.FilesCompleted, summary.FilesFailed, summary.FilesCancelled,
			summary.BytesUploaded)
		if err != nil {
			return fmt.Errorf("failed to insert batch: %w", err)
		}

		query = `insert into transfer_jobs
			(id, batch_id, source_path, display_name, size_bytes, container_bytes,
			 remote_id, status, failure_stage, error, started_at, finished_at)
			values (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
		for _, j := range jobs {
			_, err := tx.ExecContext(ctx, query,
				j.ID, summary.ID, j.SourcePath, j.DisplayName, j.SizeBytes, j.ContainerBytes,
				j.RemoteID, string(j.Status), string(j.FailureStage), j.Err,
				j.StartedAt, j.FinishedAt)
			if err != nil {
				return fmt.Errorf("failed to insert job %s: %w", j.ID, err)
			}
		}
		return nil
	})
}

func (r *SQLiteRepository) ListBatches(ctx context.Context, limit int) ([]*BatchRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `select id, started_at, finished_at, files_total, files_completed, files_failed, files_cancelled, bytes_uploaded
		from transfer_batches order by started_at desc limit ?`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("error selecting batches: %w", err)
	}
	defer rows.Close()

	var result []*BatchRecord
	for rows.Next() {
		item := &BatchRecord{}
		err := rows.Scan(&item.ID, &item.StartedAt, &item.FinishedAt,
			&item.FilesTotal, &item.FilesCompleted, &item.FilesFailed, &item.FilesCancelled,
			&item.BytesUploaded)
		if err != nil {
			return nil, err
		}
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SQLiteRepository) GetBatch(ctx context.Context, id string) (*BatchRecord, []*JobRecord, error) {
	query := `select id, started_at, finished_at, files_total, files_completed, files_failed, files_cancelled, bytes_uploaded
		from transfer_batches where id=?`
	row := r.db.QueryRowContext(ctx, query, id)

	b := &BatchRecord{}
	err := row.Scan(&b.ID, &b.StartedAt, &b.FinishedAt,
		&b.FilesTotal, &b.FilesCompleted, &b.FilesFailed, &b.FilesCancelled,
		&b.BytesUploaded)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("error selecting batch: %w", err)
	}

	query = `select id, batch_id, source_path, display_name, size_bytes, container_bytes,
		remote_id, status, failure_stage, error, started_at, finished_at
		from transfer_jobs where batch_id=? order by rowid`
	rows, err := r.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, nil, fmt.Errorf("error selecting jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*JobRecord
	for rows.Next() {
		item := &JobRecord{}
		err := rows.Scan(&item.ID, &item.BatchID, &item.SourcePath, &item.DisplayName,
			&item.SizeBytes, &item.ContainerBytes, &item.RemoteID,
			&item.Status, &item.FailureStage, &item.Error,
			&item.StartedAt, &item.FinishedAt)
		if err != nil {
			return nil, nil, err
		}
		jobs = append(jobs, item)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	return b, jobs, nil
}
