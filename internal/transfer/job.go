// Package transfer implements the encrypt-then-upload pipeline: jobs with a
// validated lifecycle, batches, progress reporting and a sequential
// orchestrator with cooperative pause, resume and cancellation.
package transfer

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/securedrive/internal/container"
)

// Status is the lifecycle state of a transfer job.
//
// The order is strictly monotonic: pending -> encrypting -> encrypted ->
// uploading -> completed, with failed and cancelled reachable from any
// non-terminal state. A terminal job never changes again; retrying means
// resubmitting the work as a brand-new job.
type Status string

const (
	StatusPending    Status = "pending"
	StatusEncrypting Status = "encrypting"
	StatusEncrypted  Status = "encrypted"
	StatusUploading  Status = "uploading"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// Terminal reports whether a job in this status is finished for good.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Stage names the pipeline step a job failure is attributed to.
type Stage string

const (
	StageEncrypt Stage = "encrypt"
	StageUpload  Stage = "upload"
)

// Job is a single file moving through the pipeline. All state access is
// synchronized; the orchestrator mutates jobs through the transition
// methods and everyone else reads consistent copies via Snapshot.
type Job struct {
	mu sync.Mutex

	id          string
	batchID     string
	sourcePath  string
	displayName string

	sizeBytes      int64
	containerBytes int64
	containerPath  string
	remoteID       string

	status       Status
	failureStage Stage
	err          error

	// bytesDone counts progress within the current stage: plaintext bytes
	// read while encrypting, container bytes pushed while uploading.
	bytesDone int64

	startedAt  time.Time
	finishedAt time.Time
}

// newJob creates a pending job for sourcePath. The declared container size
// is computed up front so batch totals are known before any work starts.
func newJob(batchID, sourcePath string, sizeBytes int64) *Job {
	return &Job{
		id:             uuid.NewString(),
		batchID:        batchID,
		sourcePath:     sourcePath,
		displayName:    filepath.Base(sourcePath) + container.Suffix,
		sizeBytes:      sizeBytes,
		containerBytes: container.EncryptedSize(sizeBytes),
		status:         StatusPending,
	}
}

// ID returns the job identifier.
func (j *Job) ID() string { return j.id }

// Status returns the current lifecycle state.
func (j *Job) Status() Status {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status
}

func (j *Job) invalidTransition(to Status) error {
	return fmt.Errorf("job %s: invalid transition %s -> %s", j.id, j.status, to)
}

// markEncrypting moves a pending job into the encrypting stage.
func (j *Job) markEncrypting() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status != StatusPending {
		return j.invalidTransition(StatusEncrypting)
	}
	j.status = StatusEncrypting
	j.startedAt = time.Now()
	j.bytesDone = 0
	return nil
}

// markEncrypted records the staged container produced for this job.
func (j *Job) markEncrypted(containerPath string, containerBytes int64) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status != StatusEncrypting {
		return j.invalidTransition(StatusEncrypted)
	}
	j.status = StatusEncrypted
	j.containerPath = containerPath
	j.containerBytes = containerBytes
	return nil
}

// markUploading moves an encrypted job into the upload stage and resets the
// per-stage byte counter.
func (j *Job) markUploading() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status != StatusEncrypted {
		return j.invalidTransition(StatusUploading)
	}
	j.status = StatusUploading
	j.bytesDone = 0
	return nil
}

// complete finishes an uploading job with its remote object identifier.
func (j *Job) complete(remoteID string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status != StatusUploading {
		return j.invalidTransition(StatusCompleted)
	}
	j.status = StatusCompleted
	j.remoteID = remoteID
	j.finishedAt = time.Now()
	return nil
}

// fail moves any non-terminal job to failed, recording the stage and cause.
func (j *Job) fail(stage Stage, err error) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status.Terminal() {
		return j.invalidTransition(StatusFailed)
	}
	j.status = StatusFailed
	j.failureStage = stage
	j.err = err
	j.finishedAt = time.Now()
	return nil
}

// cancel moves any non-terminal job to cancelled.
func (j *Job) cancel() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status.Terminal() {
		return j.invalidTransition(StatusCancelled)
	}
	j.status = StatusCancelled
	j.finishedAt = time.Now()
	return nil
}

// addBytes advances the current stage's byte counter.
func (j *Job) addBytes(n int64) {
	j.mu.Lock()
	j.bytesDone += n
	j.mu.Unlock()
}

// setContainerPath pre-stages an existing container, used when a failed
// upload is resubmitted and re-encryption can be skipped.
func (j *Job) setContainerPath(path string) {
	j.mu.Lock()
	j.containerPath = path
	j.mu.Unlock()
}

// JobSnapshot is an immutable copy of a job's state.
type JobSnapshot struct {
	ID             string
	BatchID        string
	SourcePath     string
	DisplayName    string
	SizeBytes      int64
	ContainerBytes int64
	ContainerPath  string
	RemoteID       string
	Status         Status
	FailureStage   Stage
	Err            string
	BytesDone      int64
	StartedAt      time.Time
	FinishedAt     time.Time
}

// Snapshot returns a consistent copy of the job's state.
func (j *Job) Snapshot() JobSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()

	s := JobSnapshot{
		ID:             j.id,
		BatchID:        j.batchID,
		SourcePath:     j.sourcePath,
		DisplayName:    j.displayName,
		SizeBytes:      j.sizeBytes,
		ContainerBytes: j.containerBytes,
		ContainerPath:  j.containerPath,
		RemoteID:       j.remoteID,
		Status:         j.status,
		FailureStage:   j.failureStage,
		BytesDone:      j.bytesDone,
		StartedAt:      j.startedAt,
		FinishedAt:     j.finishedAt,
	}
	if j.err != nil {
		s.Err = j.err.Error()
	}
	return s
}

// Batch is an ordered set of jobs submitted together.
type Batch struct {
	id         string
	created    time.Time
	jobs       []*Job
	bytesTotal int64
}

// ID returns the batch identifier.
func (b *Batch) ID() string { return b.id }

// Len returns the number of jobs in the batch.
func (b *Batch) Len() int { return len(b.jobs) }

// BytesTotal returns the declared container bytes for the whole batch.
func (b *Batch) BytesTotal() int64 { return b.bytesTotal }

// Snapshot returns consistent copies of all job states in submit order.
func (b *Batch) Snapshot() []JobSnapshot {
	out := make([]JobSnapshot, 0, len(b.jobs))
	for _, j := range b.jobs {
		out = append(out, j.Snapshot())
	}
	return out
}

// BatchSummary condenses a finished batch for the ledger.
type BatchSummary struct {
	ID             string
	StartedAt      time.Time
	FinishedAt     time.Time
	FilesTotal     int
	FilesCompleted int
	FilesFailed    int
	FilesCancelled int
	BytesUploaded  int64
}
