package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"

	"github.com/dmitrijs2005/securedrive/internal/common"
)

// Add validates the given paths and queues them for the next batch.
// Nothing is queued if any path is missing or a directory.
func (a *App) Add(ctx context.Context, args []string) error {
	added := make([]string, 0, len(args))
	for _, p := range args {
		abs, err := filepath.Abs(p)
		if err != nil {
			return fmt.Errorf("failed to resolve %s: %w", p, err)
		}
		st, err := os.Stat(abs)
		if err != nil {
			return fmt.Errorf("%w: stat %s: %v", common.ErrIO, abs, err)
		}
		if st.IsDir() {
			return fmt.Errorf("%s is a directory", abs)
		}
		added = append(added, abs)
	}
	a.pending = append(a.pending, added...)
	printlnFn(fmt.Sprintf("Queued %d file(s), %d total. Type 'start' to begin.", len(added), len(a.pending)))
	return nil
}

// Start submits the queued files as a batch and starts the worker.
func (a *App) Start(ctx context.Context) error {
	if len(a.pending) == 0 {
		return errors.New("nothing queued, use 'add <path>' first")
	}
	b, err := a.orch.Submit(ctx, a.pending)
	if err != nil {
		return err
	}
	if err := a.orch.Start(ctx, b); err != nil {
		return err
	}
	a.pending = nil
	a.lastBatch = b
	printlnFn(fmt.Sprintf("Batch %s started: %d file(s), %s.", b.ID(), b.Len(), humanize.IBytes(uint64(b.BytesTotal()))))
	return nil
}

// Pause parks the running batch at the next chunk boundary.
func (a *App) Pause(ctx context.Context) error {
	if err := a.orch.Pause(ctx); err != nil {
		return err
	}
	printlnFn("Paused. The current chunk finishes, then the worker parks.")
	return nil
}

// Resume continues a paused batch.
func (a *App) Resume(ctx context.Context) error {
	if err := a.orch.Resume(ctx); err != nil {
		return err
	}
	printlnFn("Resumed.")
	return nil
}

// CancelBatch stops the running batch. Remaining queued jobs are marked
// cancelled; the in-flight job aborts its current step.
func (a *App) CancelBatch(ctx context.Context) error {
	if err := a.orch.Cancel(ctx); err != nil {
		return err
	}
	printlnFn("Cancel requested.")
	return nil
}

// Status prints a one-line snapshot of the current or last batch.
func (a *App) Status(ctx context.Context) error {
	p, ok := a.orch.Progress()
	if !ok {
		printlnFn(fmt.Sprintf("No batch yet. Queued files: %d.", len(a.pending)))
		return nil
	}
	printlnFn(formatProgress(p))
	return nil
}

// Retry resubmits the failed and cancelled files of the last batch. Staged
// containers left behind by upload failures are reused without re-encryption.
func (a *App) Retry(ctx context.Context) error {
	if a.lastBatch == nil {
		return errors.New("no batch to retry")
	}
	b, err := a.orch.Resubmit(ctx, a.lastBatch)
	if err != nil {
		return err
	}
	if err := a.orch.Start(ctx, b); err != nil {
		return err
	}
	a.lastBatch = b
	printlnFn(fmt.Sprintf("Retrying %d file(s).", b.Len()))
	return nil
}
