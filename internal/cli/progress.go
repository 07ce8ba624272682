package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/dmitrijs2005/securedrive/internal/transfer"
)

// renderProgress drains the reporter channel and prints one line per
// snapshot until ctx is cancelled.
func (a *App) renderProgress(ctx context.Context) {
	for {
		select {
		case p, ok := <-a.reporter.C():
			if !ok {
				return
			}
			if p.Done {
				printlnFn(fmt.Sprintf("Batch %s finished: %d ok, %d failed, %d cancelled, %s uploaded.",
					p.BatchID, p.FilesCompleted, p.FilesFailed, p.FilesCancelled,
					humanize.IBytes(uint64(p.BytesUploaded))))
			} else {
				printlnFn(formatProgress(p))
			}
		case <-ctx.Done():
			return
		}
	}
}

// formatProgress renders one status line, e.g.
//
//	[1/3] uploading report.pdf.encrypted  1.2 MiB/4.0 MiB  512 KiB/s  ETA 6s
func formatProgress(p transfer.Progress) string {
	var b strings.Builder

	fmt.Fprintf(&b, "[%d/%d]", p.FilesFinished(), p.FilesTotal)
	if p.CurrentFile != "" {
		fmt.Fprintf(&b, " %s %s", p.CurrentState, p.CurrentFile)
	}
	if p.BytesTotal > 0 {
		fmt.Fprintf(&b, "  %s/%s", humanize.IBytes(uint64(p.BytesUploaded)), humanize.IBytes(uint64(p.BytesTotal)))
	}
	if p.Throughput > 0 {
		fmt.Fprintf(&b, "  %s/s", humanize.IBytes(uint64(p.Throughput)))
	}
	if p.ETAKnown {
		fmt.Fprintf(&b, "  ETA %s", p.ETA.Round(time.Second))
	}
	if p.Paused {
		b.WriteString("  [paused]")
	}
	return b.String()
}
