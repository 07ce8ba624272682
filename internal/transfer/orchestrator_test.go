package transfer

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/securedrive/internal/common"
	"github.com/dmitrijs2005/securedrive/internal/container"
	"github.com/dmitrijs2005/securedrive/internal/logging"
)

type fakeKeys struct {
	key []byte
	err error
}

func (f *fakeKeys) GetOrCreate(ctx context.Context) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.key, nil
}

// fakeUploader keeps uploaded containers in memory. Individual names can be
// made to fail, or to block until released so tests can catch the worker
// mid-upload.
type fakeUploader struct {
	mu      sync.Mutex
	objects map[string][]byte
	failOn  map[string]error

	blockOn string
	entered chan struct{}
	release chan struct{}
}

func newFakeUploader() *fakeUploader {
	return &fakeUploader{objects: make(map[string][]byte)}
}

func (f *fakeUploader) Upload(ctx context.Context, name string, r io.Reader, size int64) (string, error) {
	f.mu.Lock()
	blocked := f.blockOn == name
	release := f.release
	entered := f.entered
	f.mu.Unlock()

	if blocked {
		close(entered)
		select {
		case <-release:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	if int64(len(data)) != size {
		return "", errors.New("size mismatch")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failOn[name]; err != nil {
		return "", err
	}
	f.objects[name] = data
	return "remote-" + name, nil
}

func (f *fakeUploader) blockNext(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blockOn = name
	f.entered = make(chan struct{})
	f.release = make(chan struct{})
}

func (f *fakeUploader) failNext(name string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOn == nil {
		f.failOn = make(map[string]error)
	}
	f.failOn[name] = err
}

func (f *fakeUploader) clearFailures() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failOn = nil
}

func (f *fakeUploader) object(name string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[name]
	return data, ok
}

func (f *fakeUploader) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.objects)
}

type fakeLedger struct {
	mu      sync.Mutex
	summary *BatchSummary
	jobs    []JobSnapshot
}

func (f *fakeLedger) RecordBatch(ctx context.Context, summary *BatchSummary, jobs []JobSnapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.summary = summary
	f.jobs = jobs
	return nil
}

func (f *fakeLedger) recorded() (*BatchSummary, []JobSnapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.summary, f.jobs
}

type orchEnv struct {
	orch     *Orchestrator
	keys     *fakeKeys
	uploader *fakeUploader
	ledger   *fakeLedger
	reporter *ChanReporter
	key      []byte
	srcDir   string
	staging  string
}

func newOrchEnv(t *testing.T) *orchEnv {
	t.Helper()

	root := t.TempDir()
	env := &orchEnv{
		keys:     &fakeKeys{key: bytes.Repeat([]byte{0x42}, 32)},
		uploader: newFakeUploader(),
		ledger:   &fakeLedger{},
		reporter: NewChanReporter(16),
		key:      bytes.Repeat([]byte{0x42}, 32),
		srcDir:   filepath.Join(root, "src"),
		staging:  filepath.Join(root, "staging"),
	}
	require.NoError(t, os.MkdirAll(env.srcDir, 0o755))

	log := logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	orch, err := NewOrchestrator(Config{
		Keys:           env.keys,
		Codec:          container.New(),
		Uploader:       env.uploader,
		Ledger:         env.ledger,
		Reporter:       env.reporter,
		Logger:         log,
		StagingDir:     env.staging,
		SampleInterval: 10 * time.Millisecond,
	})
	require.NoError(t, err)
	env.orch = orch
	return env
}

func (e *orchEnv) writeSource(t *testing.T, name string, size int) string {
	t.Helper()
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i % 251)
	}
	path := filepath.Join(e.srcDir, name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func (e *orchEnv) decrypt(t *testing.T, containerBytes []byte) []byte {
	t.Helper()
	var out bytes.Buffer
	_, err := container.New().Decrypt(&out, bytes.NewReader(containerBytes), e.key)
	require.NoError(t, err)
	return out.Bytes()
}

func (e *orchEnv) stagingEntries(t *testing.T) []string {
	t.Helper()
	entries, err := os.ReadDir(e.staging)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, en := range entries {
		names = append(names, en.Name())
	}
	return names
}

func TestOrchestratorUploadsEncryptedContainer(t *testing.T) {
	env := newOrchEnv(t)
	src := env.writeSource(t, "report.pdf", 10000)
	ctx := context.Background()

	b, err := env.orch.Submit(ctx, []string{src})
	require.NoError(t, err)
	require.Equal(t, 1, b.Len())
	assert.Equal(t, container.EncryptedSize(10000), b.BytesTotal())

	require.NoError(t, env.orch.Start(ctx, b))
	snaps, err := env.orch.Wait(ctx)
	require.NoError(t, err)
	require.Len(t, snaps, 1)

	s := snaps[0]
	name := "report.pdf" + container.Suffix
	assert.Equal(t, StatusCompleted, s.Status)
	assert.Equal(t, "remote-"+name, s.RemoteID)
	assert.Equal(t, container.EncryptedSize(10000), s.ContainerBytes)
	assert.Equal(t, s.ContainerBytes, s.BytesDone)

	obj, ok := env.uploader.object(name)
	require.True(t, ok, "container was not uploaded")
	want, err := os.ReadFile(src)
	require.NoError(t, err)
	assert.Equal(t, want, env.decrypt(t, obj))

	assert.Empty(t, env.stagingEntries(t), "staging should be clean after success")
	assert.False(t, env.orch.Busy())

	sum, jobs := env.ledger.recorded()
	require.NotNil(t, sum)
	assert.Equal(t, b.ID(), sum.ID)
	assert.Equal(t, 1, sum.FilesCompleted)
	assert.Equal(t, container.EncryptedSize(10000), sum.BytesUploaded)
	assert.Len(t, jobs, 1)
}

func TestOrchestratorContinuesAfterUploadFailure(t *testing.T) {
	env := newOrchEnv(t)
	srcs := []string{
		env.writeSource(t, "one.bin", 2000),
		env.writeSource(t, "two.bin", 3000),
		env.writeSource(t, "three.bin", 4000),
		env.writeSource(t, "four.bin", 1500),
		env.writeSource(t, "five.bin", 2500),
	}
	env.uploader.failNext("three.bin"+container.Suffix, errors.New("503 slow down"))

	ctx := context.Background()
	b, err := env.orch.Submit(ctx, srcs)
	require.NoError(t, err)
	require.NoError(t, env.orch.Start(ctx, b))
	snaps, err := env.orch.Wait(ctx)
	require.NoError(t, err)
	require.Len(t, snaps, 5)

	// jobs after the failed one still run to completion
	for _, i := range []int{0, 1, 3, 4} {
		assert.Equal(t, StatusCompleted, snaps[i].Status, "job %d", i)
		assert.NotEmpty(t, snaps[i].RemoteID, "job %d", i)
	}

	failed := snaps[2]
	assert.Equal(t, StatusFailed, failed.Status)
	assert.Equal(t, StageUpload, failed.FailureStage)
	assert.Contains(t, failed.Err, "503")
	assert.ErrorIs(t, b.jobs[2].err, common.ErrTransport)

	// the failed job keeps its container for a retry, the others are gone
	assert.FileExists(t, failed.ContainerPath)
	assert.Len(t, env.stagingEntries(t), 1)

	sum, _ := env.ledger.recorded()
	require.NotNil(t, sum)
	assert.Equal(t, 4, sum.FilesCompleted)
	assert.Equal(t, 1, sum.FilesFailed)
}

func TestSubmitValidation(t *testing.T) {
	env := newOrchEnv(t)
	ctx := context.Background()

	_, err := env.orch.Submit(ctx, nil)
	assert.Error(t, err)

	_, err = env.orch.Submit(ctx, []string{filepath.Join(env.srcDir, "missing.bin")})
	assert.ErrorIs(t, err, common.ErrIO)

	_, err = env.orch.Submit(ctx, []string{env.srcDir})
	assert.ErrorContains(t, err, "directory")
}

func TestStartWhileBusy(t *testing.T) {
	env := newOrchEnv(t)
	first := env.writeSource(t, "a.bin", 1000)
	second := env.writeSource(t, "b.bin", 1000)
	env.uploader.blockNext("a.bin" + container.Suffix)

	ctx := context.Background()
	b1, err := env.orch.Submit(ctx, []string{first})
	require.NoError(t, err)
	b2, err := env.orch.Submit(ctx, []string{second})
	require.NoError(t, err)

	require.NoError(t, env.orch.Start(ctx, b1))
	<-env.uploader.entered
	assert.True(t, env.orch.Busy())
	assert.ErrorIs(t, env.orch.Start(ctx, b2), common.ErrBusy)

	close(env.uploader.release)
	_, err = env.orch.Wait(ctx)
	require.NoError(t, err)
	assert.False(t, env.orch.Busy())

	// the rejected batch can run once the first one is done
	require.NoError(t, env.orch.Start(ctx, b2))
	snaps, err := env.orch.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, snaps[0].Status)
}

func TestPauseParksWorkerAtJobBoundary(t *testing.T) {
	env := newOrchEnv(t)
	first := env.writeSource(t, "first.bin", 1000)
	second := env.writeSource(t, "second.bin", 1000)
	env.uploader.blockNext("first.bin" + container.Suffix)

	ctx := context.Background()
	b, err := env.orch.Submit(ctx, []string{first, second})
	require.NoError(t, err)
	require.NoError(t, env.orch.Start(ctx, b))

	<-env.uploader.entered
	require.NoError(t, env.orch.Pause(ctx))

	p, ok := env.orch.Progress()
	require.True(t, ok)
	assert.True(t, p.Paused)

	// the in-flight upload is allowed to finish, then the worker parks
	// before touching job two
	close(env.uploader.release)
	require.Eventually(t, func() bool {
		p, _ := env.orch.Progress()
		return p.FilesCompleted == 1
	}, 2*time.Second, 10*time.Millisecond)

	assert.Never(t, func() bool {
		return b.jobs[1].Status() != StatusPending
	}, 200*time.Millisecond, 20*time.Millisecond)

	require.NoError(t, env.orch.Resume(ctx))
	snaps, err := env.orch.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, snaps[0].Status)
	assert.Equal(t, StatusCompleted, snaps[1].Status)
}

func TestCancelStopsBatch(t *testing.T) {
	env := newOrchEnv(t)
	one := env.writeSource(t, "one.bin", 1000)
	two := env.writeSource(t, "two.bin", 1000)
	env.uploader.blockNext("one.bin" + container.Suffix)

	ctx := context.Background()
	b, err := env.orch.Submit(ctx, []string{one, two})
	require.NoError(t, err)
	require.NoError(t, env.orch.Start(ctx, b))

	<-env.uploader.entered
	require.NoError(t, env.orch.Cancel(ctx))

	snaps, err := env.orch.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, snaps[0].Status)
	assert.Equal(t, StatusCancelled, snaps[1].Status)

	// the staged container survives for a retry and no temp litter remains
	assert.FileExists(t, snaps[0].ContainerPath)
	for _, name := range env.stagingEntries(t) {
		assert.False(t, strings.HasPrefix(name, ".tmp-"), "leftover temp file %s", name)
	}
	assert.Zero(t, env.uploader.count())

	sum, _ := env.ledger.recorded()
	require.NotNil(t, sum)
	assert.Equal(t, 2, sum.FilesCancelled)
}

func TestCancelWakesPausedBatch(t *testing.T) {
	env := newOrchEnv(t)
	src := env.writeSource(t, "big.bin", 50000)
	env.uploader.blockNext("big.bin" + container.Suffix)

	ctx := context.Background()
	b, err := env.orch.Submit(ctx, []string{src})
	require.NoError(t, err)
	require.NoError(t, env.orch.Start(ctx, b))

	<-env.uploader.entered
	require.NoError(t, env.orch.Pause(ctx))
	require.NoError(t, env.orch.Cancel(ctx))

	snaps, err := env.orch.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, snaps[0].Status)
}

func TestControlsWithoutBatch(t *testing.T) {
	env := newOrchEnv(t)
	ctx := context.Background()

	assert.ErrorIs(t, env.orch.Pause(ctx), ErrNoActiveBatch)
	assert.ErrorIs(t, env.orch.Resume(ctx), ErrNoActiveBatch)
	assert.ErrorIs(t, env.orch.Cancel(ctx), ErrNoActiveBatch)

	_, err := env.orch.Wait(ctx)
	assert.ErrorIs(t, err, ErrNoActiveBatch)

	_, ok := env.orch.Progress()
	assert.False(t, ok)
}

func TestResubmitReusesStagedContainer(t *testing.T) {
	env := newOrchEnv(t)
	src := env.writeSource(t, "doc.bin", 5000)
	name := "doc.bin" + container.Suffix
	env.uploader.failNext(name, errors.New("bucket unavailable"))

	ctx := context.Background()
	b1, err := env.orch.Submit(ctx, []string{src})
	require.NoError(t, err)
	require.NoError(t, env.orch.Start(ctx, b1))
	snaps, err := env.orch.Wait(ctx)
	require.NoError(t, err)
	require.Equal(t, StatusFailed, snaps[0].Status)
	require.FileExists(t, snaps[0].ContainerPath)

	want, err := os.ReadFile(src)
	require.NoError(t, err)

	// deleting the source proves the retry runs off the staged container
	require.NoError(t, os.Remove(src))
	env.uploader.clearFailures()

	b2, err := env.orch.Resubmit(ctx, b1)
	require.NoError(t, err)
	require.Equal(t, 1, b2.Len())
	require.NoError(t, env.orch.Start(ctx, b2))
	snaps, err = env.orch.Wait(ctx)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, snaps[0].Status)

	obj, ok := env.uploader.object(name)
	require.True(t, ok)
	assert.Equal(t, want, env.decrypt(t, obj))
	assert.Empty(t, env.stagingEntries(t))

	_, err = env.orch.Resubmit(ctx, b2)
	assert.Error(t, err, "nothing left to retry")
}

func TestKeyFailureFailsAllJobs(t *testing.T) {
	env := newOrchEnv(t)
	srcs := []string{
		env.writeSource(t, "a.bin", 100),
		env.writeSource(t, "b.bin", 100),
	}
	env.keys.err = common.ErrInsecureStorage

	ctx := context.Background()
	b, err := env.orch.Submit(ctx, srcs)
	require.NoError(t, err)
	require.NoError(t, env.orch.Start(ctx, b))
	snaps, err := env.orch.Wait(ctx)
	require.NoError(t, err)

	for _, s := range snaps {
		assert.Equal(t, StatusFailed, s.Status)
		assert.Equal(t, StageEncrypt, s.FailureStage)
	}
	assert.ErrorIs(t, b.jobs[0].err, common.ErrInsecureStorage)
	assert.Zero(t, env.uploader.count())

	sum, _ := env.ledger.recorded()
	require.NotNil(t, sum)
	assert.Equal(t, 2, sum.FilesFailed)
}

func TestProgressIsMonotonic(t *testing.T) {
	env := newOrchEnv(t)
	srcs := []string{
		env.writeSource(t, "p1.bin", 30000),
		env.writeSource(t, "p2.bin", 30000),
	}

	ctx := context.Background()
	b, err := env.orch.Submit(ctx, srcs)
	require.NoError(t, err)

	collected := make(chan []Progress, 1)
	go func() {
		var seen []Progress
		for p := range env.reporter.C() {
			seen = append(seen, p)
			if p.Done {
				collected <- seen
				return
			}
		}
	}()

	require.NoError(t, env.orch.Start(ctx, b))
	_, err = env.orch.Wait(ctx)
	require.NoError(t, err)

	var seen []Progress
	select {
	case seen = <-collected:
	case <-time.After(2 * time.Second):
		t.Fatal("no final progress snapshot")
	}

	var lastUploaded int64
	for _, p := range seen {
		assert.Equal(t, b.ID(), p.BatchID)
		assert.GreaterOrEqual(t, p.BytesUploaded, lastUploaded)
		assert.LessOrEqual(t, p.BytesUploaded, p.BytesTotal)
		lastUploaded = p.BytesUploaded
	}

	final := seen[len(seen)-1]
	assert.True(t, final.Done)
	assert.Equal(t, 2, final.FilesCompleted)
	assert.Equal(t, b.BytesTotal(), final.BytesUploaded)
}

func TestNewOrchestratorValidation(t *testing.T) {
	log := logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	valid := Config{
		Keys:       &fakeKeys{key: bytes.Repeat([]byte{1}, 32)},
		Codec:      container.New(),
		Uploader:   newFakeUploader(),
		Logger:     log,
		StagingDir: t.TempDir(),
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"missing keys", func(c *Config) { c.Keys = nil }},
		{"missing codec", func(c *Config) { c.Codec = nil }},
		{"missing uploader", func(c *Config) { c.Uploader = nil }},
		{"missing logger", func(c *Config) { c.Logger = nil }},
		{"missing staging dir", func(c *Config) { c.StagingDir = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			_, err := NewOrchestrator(cfg)
			assert.Error(t, err)
		})
	}

	o, err := NewOrchestrator(valid)
	require.NoError(t, err)
	assert.Equal(t, time.Second, o.sampleInterval)
}
