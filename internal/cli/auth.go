package cli

import (
	"context"
	"os"

	"github.com/dmitrijs2005/securedrive/internal/common"
	"github.com/dmitrijs2005/securedrive/internal/remote"
	"github.com/dmitrijs2005/securedrive/internal/transfer"
)

// Auth prompts for S3 credentials, verifies the bucket is reachable, and
// swaps the storage client for the rest of the session. The orchestrator
// is rebuilt so the next batch uploads with the new credentials.
func (a *App) Auth(ctx context.Context) error {
	if a.orch.Busy() {
		return common.ErrBusy
	}

	accessKey, err := getSimpleText(a.reader, "Enter S3 access key", os.Stdout)
	if err != nil {
		return err
	}
	secret, err := getPassword(os.Stdout, "Enter S3 secret key: ")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(secret)

	store, err := newRemoteClient(ctx, remote.Config{
		Region:       a.config.S3Region,
		AccessKey:    accessKey,
		SecretKey:    string(secret),
		BaseEndpoint: a.config.S3BaseEndpoint,
		Bucket:       a.config.S3Bucket,
	}, a.log)
	if err != nil {
		return err
	}
	if err := store.Verify(ctx); err != nil {
		return err
	}

	orch, err := transfer.NewOrchestrator(transfer.Config{
		Keys:           a.keys,
		Codec:          a.codec,
		Uploader:       store,
		Logger:         a.log,
		StagingDir:     a.config.StagingDir,
		Ledger:         a.ledger,
		Reporter:       a.reporter,
		SampleInterval: a.config.ProgressInterval,
	})
	if err != nil {
		return err
	}

	a.store = store
	a.orch = orch
	a.config.S3AccessKey = accessKey
	a.config.S3SecretKey = string(secret)

	printlnFn("Bucket reachable, credentials active for this session.")
	return nil
}
