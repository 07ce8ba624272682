package cli

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"

	"github.com/dmitrijs2005/securedrive/internal/config"
	"github.com/dmitrijs2005/securedrive/internal/container"
	"github.com/dmitrijs2005/securedrive/internal/filex"
	"github.com/dmitrijs2005/securedrive/internal/keystore"
	"github.com/dmitrijs2005/securedrive/internal/logging"
	"github.com/dmitrijs2005/securedrive/internal/remote"
	"github.com/dmitrijs2005/securedrive/internal/repositories"
	"github.com/dmitrijs2005/securedrive/internal/repositories/transfers"
	"github.com/dmitrijs2005/securedrive/internal/transfer"
)

// newRemoteClient is a seam for testing commands that build a storage
// client without touching real AWS configuration.
var newRemoteClient = func(ctx context.Context, cfg remote.Config, log logging.Logger) (remote.Client, error) {
	return remote.NewS3Client(ctx, cfg, log)
}

// orchestrator is the batch-control surface the commands need. The real
// transfer.Orchestrator satisfies it; tests provide a stub.
type orchestrator interface {
	Submit(ctx context.Context, paths []string) (*transfer.Batch, error)
	Resubmit(ctx context.Context, prev *transfer.Batch) (*transfer.Batch, error)
	Start(ctx context.Context, b *transfer.Batch) error
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	Cancel(ctx context.Context) error
	Busy() bool
	Progress() (transfer.Progress, bool)
	Wait(ctx context.Context) ([]transfer.JobSnapshot, error)
}

// App ties the SecureDrive components together behind the REPL commands.
type App struct {
	config   *config.Config
	log      logging.Logger
	keys     *keystore.Store
	codec    *container.Codec
	store    remote.Client
	ledger   transfers.Repository
	orch     orchestrator
	reporter *transfer.ChanReporter
	reader   *bufio.Reader
	db       *sql.DB
	logFile  *os.File

	// pending holds validated paths queued by 'add' until 'start'
	// submits them as a batch.
	pending   []string
	lastBatch *transfer.Batch
}

// NewApp builds the application from configuration: application directory,
// file-backed JSON log, ledger database, remote storage client, key store,
// codec, and the orchestrator on top of them.
func NewApp(c *config.Config) (*App, error) {
	ctx := context.Background()

	if _, err := filex.EnsureDir(c.AppDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create app dir: %w", err)
	}

	// Logs go to a file so the terminal stays free for the REPL.
	logFile, err := os.OpenFile(c.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(logFile, nil)))

	db, err := repositories.InitDatabase(ctx, c.DatabaseDSN)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("error initializing database: %w", err)
	}
	ledger := transfers.NewSQLiteRepository(db)

	store, err := newRemoteClient(ctx, remote.Config{
		Region:       c.S3Region,
		AccessKey:    c.S3AccessKey,
		SecretKey:    c.S3SecretKey,
		BaseEndpoint: c.S3BaseEndpoint,
		Bucket:       c.S3Bucket,
	}, logger)
	if err != nil {
		db.Close()
		logFile.Close()
		return nil, err
	}

	keys := keystore.New(c.AppDir, logger)
	codec := container.NewWithChunkSize(c.ChunkSize)
	reporter := transfer.NewChanReporter(16)

	orch, err := transfer.NewOrchestrator(transfer.Config{
		Keys:           keys,
		Codec:          codec,
		Uploader:       store,
		Logger:         logger,
		StagingDir:     c.StagingDir,
		Ledger:         ledger,
		Reporter:       reporter,
		SampleInterval: c.ProgressInterval,
	})
	if err != nil {
		db.Close()
		logFile.Close()
		return nil, err
	}

	return &App{
		config:   c,
		log:      logger,
		keys:     keys,
		codec:    codec,
		store:    store,
		ledger:   ledger,
		orch:     orch,
		reporter: reporter,
		reader:   bufio.NewReader(os.Stdin),
		db:       db,
		logFile:  logFile,
	}, nil
}

// Run starts the REPL and releases resources when it returns.
func (a *App) Run(ctx context.Context) {
	defer a.Close()
	a.Root(ctx)
}

// Close wipes key material and closes the ledger database and log file.
func (a *App) Close() {
	_ = a.keys.Close()
	if a.db != nil {
		_ = a.db.Close()
	}
	if a.logFile != nil {
		_ = a.logFile.Close()
	}
}
