package cli

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
)

// List prints the remote containers, newest first.
func (a *App) List(ctx context.Context) error {
	objects, err := a.store.List(ctx)
	if err != nil {
		return err
	}
	if len(objects) == 0 {
		printlnFn("No remote objects.")
		return nil
	}
	for _, o := range objects {
		name := o.Name
		if name == "" {
			name = "-"
		}
		printlnFn(fmt.Sprintf("%-48s  %10s  %s  %s",
			o.Key,
			humanize.IBytes(uint64(o.Size)),
			o.LastModified.Format("2006-01-02 15:04"),
			name))
	}
	return nil
}

// History prints recent batches from the transfer ledger.
func (a *App) History(ctx context.Context) error {
	batches, err := a.ledger.ListBatches(ctx, 20)
	if err != nil {
		return err
	}
	if len(batches) == 0 {
		printlnFn("No transfers recorded yet.")
		return nil
	}
	for _, b := range batches {
		printlnFn(fmt.Sprintf("%s  %s  ok %d/%d  failed %d  cancelled %d  %s uploaded",
			b.ID,
			b.StartedAt.Format("2006-01-02 15:04"),
			b.FilesCompleted, b.FilesTotal, b.FilesFailed, b.FilesCancelled,
			humanize.IBytes(uint64(b.BytesUploaded))))
	}
	return nil
}
