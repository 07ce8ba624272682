package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/securedrive/internal/common"
	"github.com/dmitrijs2005/securedrive/internal/container"
	"github.com/dmitrijs2005/securedrive/internal/filex"
	"github.com/dmitrijs2005/securedrive/internal/logging"
)

// ErrNoActiveBatch is returned by controls that need a running batch.
var ErrNoActiveBatch = errors.New("no active batch")

// UploadClient is the remote half of the pipeline. Upload streams a staged
// container to the backend and returns the remote object identifier.
type UploadClient interface {
	Upload(ctx context.Context, name string, r io.Reader, size int64) (string, error)
}

// KeyProvider supplies the batch encryption key.
type KeyProvider interface {
	GetOrCreate(ctx context.Context) ([]byte, error)
}

// Ledger records finished batches. Implementations live in the repositories
// layer; a nil ledger disables recording.
type Ledger interface {
	RecordBatch(ctx context.Context, batch *BatchSummary, jobs []JobSnapshot) error
}

// Config wires an Orchestrator.
type Config struct {
	Keys     KeyProvider
	Codec    *container.Codec
	Uploader UploadClient
	Logger   logging.Logger

	// StagingDir receives encrypted containers before upload.
	StagingDir string

	Ledger   Ledger   // optional
	Reporter Reporter // optional

	// SampleInterval limits how often throughput/ETA are recomputed and
	// snapshots are pushed to the reporter. Defaults to one second.
	SampleInterval time.Duration
}

// Orchestrator runs batches sequentially: one worker encrypts and uploads
// the files of the active batch in submit order. A failing job never stops
// the batch; pause, resume and cancel act cooperatively at chunk and job
// boundaries through a condition-variable gate.
type Orchestrator struct {
	keys     KeyProvider
	codec    *container.Codec
	uploader UploadClient
	ledger   Ledger
	reporter Reporter
	log      logging.Logger

	stagingDir     string
	sampleInterval time.Duration

	mu     sync.Mutex
	active *run
	last   *run
}

// run holds the mutable state of one executing batch.
type run struct {
	batch  *Batch
	gate   *gate
	cancel context.CancelFunc
	done   chan struct{}

	startedAt time.Time

	mu       sync.Mutex
	prog     Progress
	lastCalc time.Time
	lastPub  time.Time
}

// NewOrchestrator validates cfg and returns a ready orchestrator.
func NewOrchestrator(cfg Config) (*Orchestrator, error) {
	switch {
	case cfg.Keys == nil:
		return nil, errors.New("orchestrator: key provider is required")
	case cfg.Codec == nil:
		return nil, errors.New("orchestrator: codec is required")
	case cfg.Uploader == nil:
		return nil, errors.New("orchestrator: upload client is required")
	case cfg.Logger == nil:
		return nil, errors.New("orchestrator: logger is required")
	case cfg.StagingDir == "":
		return nil, errors.New("orchestrator: staging dir is required")
	}

	interval := cfg.SampleInterval
	if interval <= 0 {
		interval = time.Second
	}

	return &Orchestrator{
		keys:           cfg.Keys,
		codec:          cfg.Codec,
		uploader:       cfg.Uploader,
		ledger:         cfg.Ledger,
		reporter:       cfg.Reporter,
		log:            cfg.Logger,
		stagingDir:     cfg.StagingDir,
		sampleInterval: interval,
	}, nil
}

// Submit validates the given paths and builds a pending batch. Every path
// must name an existing regular file; nothing is encrypted yet.
func (o *Orchestrator) Submit(ctx context.Context, paths []string) (*Batch, error) {
	if len(paths) == 0 {
		return nil, errors.New("no files to transfer")
	}

	b := &Batch{id: uuid.NewString(), created: time.Now()}
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", p, err)
		}
		fi, err := os.Stat(abs)
		if err != nil {
			return nil, fmt.Errorf("%w: stat %s: %v", common.ErrIO, p, err)
		}
		if fi.IsDir() {
			return nil, fmt.Errorf("%s is a directory", p)
		}
		j := newJob(b.id, abs, fi.Size())
		b.jobs = append(b.jobs, j)
		b.bytesTotal += j.containerBytes
	}

	o.log.Info(ctx, "batch submitted",
		"batch_id", b.id, "files", len(b.jobs), "bytes_total", b.bytesTotal)
	return b, nil
}

// Resubmit builds a new batch from the failed and cancelled jobs of a
// previous one. The jobs are brand new (fresh IDs, pending state); a staged
// container left behind by a failed upload is adopted so the file does not
// have to be encrypted again.
func (o *Orchestrator) Resubmit(ctx context.Context, prev *Batch) (*Batch, error) {
	if prev == nil {
		return nil, errors.New("no batch to retry")
	}

	b := &Batch{id: uuid.NewString(), created: time.Now()}
	for _, s := range prev.Snapshot() {
		if s.Status != StatusFailed && s.Status != StatusCancelled {
			continue
		}

		staged := s.ContainerPath != "" && container.IsContainer(s.ContainerPath)
		size := s.SizeBytes
		if fi, err := os.Stat(s.SourcePath); err == nil {
			size = fi.Size()
		} else if !staged {
			return nil, fmt.Errorf("%w: stat %s: %v", common.ErrIO, s.SourcePath, err)
		}

		j := newJob(b.id, s.SourcePath, size)
		if staged {
			j.setContainerPath(s.ContainerPath)
		}
		b.jobs = append(b.jobs, j)
		b.bytesTotal += j.containerBytes
	}
	if len(b.jobs) == 0 {
		return nil, errors.New("no failed or cancelled jobs to retry")
	}

	o.log.Info(ctx, "batch resubmitted",
		"batch_id", b.id, "previous", prev.ID(), "files", len(b.jobs))
	return b, nil
}

// Start launches the batch on the single worker. It returns common.ErrBusy
// while another batch is active. Cancellation of ctx cancels the batch.
func (o *Orchestrator) Start(ctx context.Context, b *Batch) error {
	if b == nil || len(b.jobs) == 0 {
		return errors.New("empty batch")
	}

	o.mu.Lock()
	if o.active != nil {
		o.mu.Unlock()
		return common.ErrBusy
	}

	runCtx, cancel := context.WithCancel(ctx)
	r := &run{
		batch:     b,
		gate:      newGate(),
		cancel:    cancel,
		done:      make(chan struct{}),
		startedAt: time.Now(),
	}
	r.prog = Progress{BatchID: b.id, FilesTotal: len(b.jobs), BytesTotal: b.bytesTotal}
	o.active = r
	o.last = r
	o.mu.Unlock()

	if _, err := filex.EnsureDir(o.stagingDir, 0o700); err != nil {
		o.mu.Lock()
		o.active = nil
		o.last = nil
		o.mu.Unlock()
		cancel()
		return err
	}

	go o.runBatch(runCtx, r)
	return nil
}

// Pause suspends the active batch at the next chunk boundary while
// encrypting, and otherwise at the next job boundary. An in-flight
// UploadClient call is never interrupted, so pause latency during an upload
// is bounded by that call's completion. Pausing an already paused batch is
// a no-op.
func (o *Orchestrator) Pause(ctx context.Context) error {
	r := o.activeRun()
	if r == nil {
		return ErrNoActiveBatch
	}
	if r.gate.pause() {
		o.log.Info(ctx, "batch paused", "batch_id", r.batch.id)
		o.publish(r, true)
	}
	return nil
}

// Resume releases a paused batch. Resuming a running batch is a no-op.
func (o *Orchestrator) Resume(ctx context.Context) error {
	r := o.activeRun()
	if r == nil {
		return ErrNoActiveBatch
	}
	if r.gate.resume() {
		o.log.Info(ctx, "batch resumed", "batch_id", r.batch.id)
		o.publish(r, true)
	}
	return nil
}

// Cancel stops the active batch: the in-flight operation is interrupted at
// its next checkpoint (or its context aborts, for uploads), and all
// remaining jobs finish as cancelled. Cancel also wakes a paused batch.
func (o *Orchestrator) Cancel(ctx context.Context) error {
	r := o.activeRun()
	if r == nil {
		return ErrNoActiveBatch
	}
	o.log.Info(ctx, "cancelling batch", "batch_id", r.batch.id)
	r.gate.cancel()
	r.cancel()
	return nil
}

// Busy reports whether a batch is currently active.
func (o *Orchestrator) Busy() bool {
	return o.activeRun() != nil
}

// Progress returns the latest snapshot of the active batch, or the final
// snapshot of the most recently finished one.
func (o *Orchestrator) Progress() (Progress, bool) {
	r := o.lastRun()
	if r == nil {
		return Progress{}, false
	}
	r.mu.Lock()
	p := r.prog
	r.mu.Unlock()
	if !p.Done {
		p.Elapsed = time.Since(r.startedAt)
	}
	p.Paused = r.gate.isPaused()
	return p, true
}

// Wait blocks until the current batch finishes and returns the final job
// snapshots. A batch that already finished returns immediately, so calling
// Wait right after Start never races with a fast batch.
func (o *Orchestrator) Wait(ctx context.Context) ([]JobSnapshot, error) {
	r := o.lastRun()
	if r == nil {
		return nil, ErrNoActiveBatch
	}
	select {
	case <-r.done:
		return r.batch.Snapshot(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (o *Orchestrator) activeRun() *run {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.active
}

func (o *Orchestrator) lastRun() *run {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.last
}

func (o *Orchestrator) runBatch(ctx context.Context, r *run) {
	defer close(r.done)
	defer func() {
		o.mu.Lock()
		o.active = nil
		o.mu.Unlock()
		r.cancel()
	}()

	// External context cancellation behaves exactly like Cancel.
	stop := context.AfterFunc(ctx, func() { r.gate.cancel() })
	defer stop()

	b := r.batch
	o.log.Info(ctx, "batch started", "batch_id", b.id, "files", len(b.jobs))
	o.publish(r, true)

	key, keyErr := o.keys.GetOrCreate(ctx)
	if keyErr != nil {
		o.log.Error(ctx, "cannot obtain encryption key", "batch_id", b.id, "error", keyErr)
	}

	for _, j := range b.jobs {
		if keyErr != nil {
			_ = j.fail(StageEncrypt, keyErr)
			o.jobFinished(ctx, r, j)
			continue
		}
		// Job boundary doubles as a pause point and cancel checkpoint.
		if err := r.gate.wait(); err != nil {
			_ = j.cancel()
			o.jobFinished(ctx, r, j)
			continue
		}
		o.processJob(ctx, r, j, key)
	}

	summary := o.finalize(ctx, r)
	if o.ledger != nil {
		// A fresh context so cancelled batches are still recorded.
		rctx, rcancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := o.ledger.RecordBatch(rctx, summary, b.Snapshot()); err != nil {
			o.log.Error(ctx, "failed to record batch in ledger", "batch_id", b.id, "error", err)
		}
		rcancel()
	}
}

func (o *Orchestrator) processJob(ctx context.Context, r *run, j *Job, key []byte) {
	log := o.log.With("batch_id", j.batchID, "job_id", j.id, "file", j.sourcePath)

	if err := j.markEncrypting(); err != nil {
		_ = j.fail(StageEncrypt, err)
		o.jobFinished(ctx, r, j)
		return
	}
	r.setCurrent(j.displayName, StatusEncrypting, j.sizeBytes)
	o.publish(r, true)

	staged := j.containerPath
	if staged != "" && container.IsContainer(staged) {
		// Adopted from a previous failed upload; skip re-encryption.
		fi, err := os.Stat(staged)
		if err != nil {
			_ = j.fail(StageEncrypt, fmt.Errorf("%w: stat container: %v", common.ErrIO, err))
			o.jobFinished(ctx, r, j)
			return
		}
		if err := j.markEncrypted(staged, fi.Size()); err != nil {
			_ = j.fail(StageEncrypt, err)
			o.jobFinished(ctx, r, j)
			return
		}
		log.Info(ctx, "reusing staged container", "container", staged)
	} else {
		staged = filepath.Join(o.stagingDir, j.id+container.Suffix)

		var consumed int64
		err := filex.WriteAtomic(staged, 0o600, func(w io.Writer) error {
			src, err := os.Open(j.sourcePath)
			if err != nil {
				return err
			}
			defer src.Close()

			mr := &meteredReader{r: src, g: r.gate, onRead: func(n int) {
				j.addBytes(int64(n))
				r.bumpCurrent(int64(n))
				o.publish(r, false)
			}}
			consumed, err = o.codec.Encrypt(w, mr, key)
			return err
		})
		switch {
		case errors.Is(err, common.ErrCancelled):
			_ = j.cancel()
			log.Info(ctx, "job cancelled during encryption")
			o.jobFinished(ctx, r, j)
			return
		case err != nil:
			_ = j.fail(StageEncrypt, classify(StageEncrypt, err))
			log.Error(ctx, "encryption failed", "error", err)
			o.jobFinished(ctx, r, j)
			return
		}
		containerBytes := container.EncryptedSize(consumed)
		if err := j.markEncrypted(staged, containerBytes); err != nil {
			_ = j.fail(StageEncrypt, err)
			o.jobFinished(ctx, r, j)
			return
		}
		log.Debug(ctx, "container staged", "container", staged, "bytes", containerBytes)
	}

	// Stage boundary: honor a pause taken during encryption; a cancel here
	// keeps the completed container for later resubmission.
	if err := r.gate.wait(); err != nil {
		_ = j.cancel()
		log.Info(ctx, "job cancelled before upload")
		o.jobFinished(ctx, r, j)
		return
	}

	if err := j.markUploading(); err != nil {
		_ = j.fail(StageUpload, err)
		o.jobFinished(ctx, r, j)
		return
	}
	snap := j.Snapshot()
	r.setCurrent(j.displayName, StatusUploading, snap.ContainerBytes)
	o.publish(r, true)

	f, err := os.Open(staged)
	if err != nil {
		_ = j.fail(StageUpload, fmt.Errorf("%w: open container: %v", common.ErrIO, err))
		o.jobFinished(ctx, r, j)
		return
	}
	mr := &meteredReader{r: f, onRead: func(n int) {
		j.addBytes(int64(n))
		r.addUploaded(int64(n))
		r.bumpCurrent(int64(n))
		o.publish(r, false)
	}}

	remoteID, err := o.uploader.Upload(ctx, j.displayName, mr, snap.ContainerBytes)
	_ = f.Close()
	if err != nil {
		if r.gate.isCancelled() || errors.Is(err, context.Canceled) {
			_ = j.cancel()
			log.Info(ctx, "job cancelled during upload", "container", staged)
		} else {
			_ = j.fail(StageUpload, classify(StageUpload, err))
			log.Error(ctx, "upload failed, container retained for retry",
				"container", staged, "error", err)
		}
		o.jobFinished(ctx, r, j)
		return
	}

	_ = j.complete(remoteID)
	if err := os.Remove(staged); err != nil {
		log.Warn(ctx, "could not remove staged container", "container", staged, "error", err)
	}
	log.Info(ctx, "file uploaded", "remote_id", remoteID, "bytes", snap.ContainerBytes)
	o.jobFinished(ctx, r, j)
}

// classify wraps uncategorized errors with the failure category of the
// stage they occurred in; already categorized errors pass through.
func classify(stage Stage, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, common.ErrCancelled),
		errors.Is(err, common.ErrIO),
		errors.Is(err, common.ErrTransport),
		errors.Is(err, common.ErrMalformedContainer),
		errors.Is(err, common.ErrPaddingOrKey),
		errors.Is(err, common.ErrKeyNotFound),
		errors.Is(err, common.ErrCorruptKey),
		errors.Is(err, common.ErrInsecureStorage):
		return err
	case stage == StageUpload:
		return fmt.Errorf("%w: %v", common.ErrTransport, err)
	default:
		return fmt.Errorf("%w: %v", common.ErrIO, err)
	}
}

func (o *Orchestrator) jobFinished(ctx context.Context, r *run, j *Job) {
	s := j.Snapshot()

	r.mu.Lock()
	switch s.Status {
	case StatusCompleted:
		r.prog.FilesCompleted++
	case StatusFailed:
		r.prog.FilesFailed++
	case StatusCancelled:
		r.prog.FilesCancelled++
	}
	r.prog.CurrentFile = ""
	r.prog.CurrentState = ""
	r.prog.CurrentBytes = 0
	r.prog.CurrentTotal = 0
	r.mu.Unlock()

	o.log.Debug(ctx, "job finished", "job_id", s.ID, "status", string(s.Status))
	o.publish(r, true)
}

func (o *Orchestrator) finalize(ctx context.Context, r *run) *BatchSummary {
	finished := time.Now()

	r.mu.Lock()
	r.prog.Done = true
	p := r.prog
	r.mu.Unlock()

	o.publish(r, true)

	summary := &BatchSummary{
		ID:             r.batch.id,
		StartedAt:      r.startedAt,
		FinishedAt:     finished,
		FilesTotal:     p.FilesTotal,
		FilesCompleted: p.FilesCompleted,
		FilesFailed:    p.FilesFailed,
		FilesCancelled: p.FilesCancelled,
		BytesUploaded:  p.BytesUploaded,
	}
	o.log.Info(ctx, "batch finished",
		"batch_id", summary.ID,
		"completed", summary.FilesCompleted,
		"failed", summary.FilesFailed,
		"cancelled", summary.FilesCancelled,
		"bytes_uploaded", summary.BytesUploaded,
		"duration", finished.Sub(r.startedAt).String())
	return summary
}

// publish pushes a progress snapshot to the reporter. Unforced publishes
// are rate-limited to the sampling interval; throughput and ETA are
// refreshed on the same cadence using the batch-lifetime average rate.
func (o *Orchestrator) publish(r *run, force bool) {
	now := time.Now()

	r.mu.Lock()
	if !force && now.Sub(r.lastPub) < o.sampleInterval {
		r.mu.Unlock()
		return
	}
	r.lastPub = now

	r.prog.Elapsed = now.Sub(r.startedAt)
	if force || now.Sub(r.lastCalc) >= o.sampleInterval {
		r.lastCalc = now
		if secs := r.prog.Elapsed.Seconds(); secs > 0 && r.prog.BytesUploaded > 0 {
			r.prog.Throughput = float64(r.prog.BytesUploaded) / secs
			remaining := r.prog.BytesTotal - r.prog.BytesUploaded
			if remaining < 0 {
				remaining = 0
			}
			r.prog.ETA = time.Duration(float64(remaining) / r.prog.Throughput * float64(time.Second))
			r.prog.ETAKnown = true
		}
	}
	snapshot := r.prog
	r.mu.Unlock()

	snapshot.Paused = r.gate.isPaused()
	if o.reporter != nil {
		o.reporter.Report(snapshot)
	}
}

func (r *run) setCurrent(name string, st Status, total int64) {
	r.mu.Lock()
	r.prog.CurrentFile = name
	r.prog.CurrentState = st
	r.prog.CurrentBytes = 0
	r.prog.CurrentTotal = total
	r.mu.Unlock()
}

func (r *run) bumpCurrent(n int64) {
	r.mu.Lock()
	r.prog.CurrentBytes += n
	r.mu.Unlock()
}

func (r *run) addUploaded(n int64) {
	r.mu.Lock()
	r.prog.BytesUploaded += n
	r.mu.Unlock()
}
