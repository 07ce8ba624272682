package transfer

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/securedrive/internal/logging"
)

// Progress is an immutable snapshot of a running batch. Snapshots are safe
// to hand across goroutines; counters only ever grow while a batch runs.
type Progress struct {
	BatchID string

	FilesTotal     int
	FilesCompleted int
	FilesFailed    int
	FilesCancelled int

	// BytesTotal is the declared container size of the whole batch;
	// BytesUploaded is the cumulative container bytes pushed to the remote.
	BytesTotal    int64
	BytesUploaded int64

	// Current file being worked on, if any.
	CurrentFile  string
	CurrentState Status
	CurrentBytes int64
	CurrentTotal int64

	// Throughput is averaged over the batch runtime and refreshed on the
	// orchestrator's sampling interval. ETAKnown is false until there is
	// enough signal to extrapolate.
	Throughput float64
	ETA        time.Duration
	ETAKnown   bool

	Elapsed time.Duration
	Paused  bool
	Done    bool
}

// FilesFinished returns how many jobs reached a terminal state.
func (p Progress) FilesFinished() int {
	return p.FilesCompleted + p.FilesFailed + p.FilesCancelled
}

// Reporter consumes progress snapshots. Implementations must not retain
// references into the orchestrator; the snapshot is self-contained.
type Reporter interface {
	Report(p Progress)
}

// ChanReporter delivers snapshots over a channel. When the consumer lags,
// the oldest pending snapshot is dropped so the channel always trends
// toward the freshest state.
type ChanReporter struct {
	ch chan Progress
}

// NewChanReporter returns a reporter with the given channel capacity.
func NewChanReporter(buffer int) *ChanReporter {
	if buffer < 1 {
		buffer = 1
	}
	return &ChanReporter{ch: make(chan Progress, buffer)}
}

// Report never blocks the pipeline worker.
func (r *ChanReporter) Report(p Progress) {
	for {
		select {
		case r.ch <- p:
			return
		default:
			select {
			case <-r.ch:
			default:
			}
		}
	}
}

// C returns the receive side of the reporter.
func (r *ChanReporter) C() <-chan Progress {
	return r.ch
}

// LogReporter writes snapshots to a structured logger, for headless runs
// where nothing drains a ChanReporter. Per-chunk snapshots are sampled down
// to one line per interval; file and stage changes and batch completion
// always produce a line.
type LogReporter struct {
	log      logging.Logger
	interval time.Duration

	mu        sync.Mutex
	lastAt    time.Time
	lastFile  string
	lastState Status
}

// NewLogReporter returns a reporter that logs at most one progress line per
// interval. A non-positive interval falls back to five seconds.
func NewLogReporter(log logging.Logger, interval time.Duration) *LogReporter {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &LogReporter{log: log, interval: interval}
}

// Report logs the snapshot if it crosses a file or stage boundary, finishes
// the batch, or enough time has passed since the previous line.
func (r *LogReporter) Report(p Progress) {
	r.mu.Lock()
	defer r.mu.Unlock()

	boundary := p.Done || p.CurrentFile != r.lastFile || p.CurrentState != r.lastState
	if !boundary && time.Since(r.lastAt) < r.interval {
		return
	}
	r.lastAt = time.Now()
	r.lastFile = p.CurrentFile
	r.lastState = p.CurrentState

	args := []any{
		"batch_id", p.BatchID,
		"files_done", p.FilesFinished(),
		"files_total", p.FilesTotal,
		"bytes_uploaded", p.BytesUploaded,
		"bytes_total", p.BytesTotal,
	}
	if p.CurrentFile != "" {
		args = append(args, "current", p.CurrentFile, "state", string(p.CurrentState))
	}
	if p.ETAKnown {
		args = append(args, "eta", p.ETA.Round(time.Second).String())
	}
	if p.Paused {
		args = append(args, "paused", true)
	}

	ctx := context.Background()
	if p.Done {
		r.log.Info(ctx, "batch finished", args...)
		return
	}
	r.log.Debug(ctx, "transfer progress", args...)
}
