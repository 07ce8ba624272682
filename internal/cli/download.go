package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/dmitrijs2005/securedrive/internal/common"
	"github.com/dmitrijs2005/securedrive/internal/filex"
)

// Download fetches a remote container and restores the plaintext at dest.
// The container lands in the staging directory first; the plaintext is
// written atomically, so a wrong key or a broken connection leaves no
// half-written file behind.
func (a *App) Download(ctx context.Context, args []string) error {
	key, dest := args[0], args[1]

	encKey, err := a.keys.Load(ctx)
	if err != nil {
		return err
	}

	if _, err := filex.EnsureDir(a.config.StagingDir, 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(a.config.StagingDir, "download-*")
	if err != nil {
		return fmt.Errorf("%w: create temp file: %v", common.ErrIO, err)
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()

	if _, err := a.store.Download(ctx, key, tmp); err != nil {
		return err
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("%w: rewind temp file: %v", common.ErrIO, err)
	}

	if err := filex.WriteAtomic(dest, 0o600, func(w io.Writer) error {
		_, err := a.codec.Decrypt(w, tmp, encKey)
		return err
	}); err != nil {
		return err
	}

	printlnFn("Restored", dest)
	return nil
}

// Decrypt restores the plaintext of a local container file.
func (a *App) Decrypt(ctx context.Context, args []string) error {
	src, dest := args[0], args[1]

	encKey, err := a.keys.Load(ctx)
	if err != nil {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("%w: open container: %v", common.ErrIO, err)
	}
	defer in.Close()

	if err := filex.WriteAtomic(dest, 0o600, func(w io.Writer) error {
		_, err := a.codec.Decrypt(w, in, encKey)
		return err
	}); err != nil {
		return err
	}

	printlnFn("Decrypted to", dest)
	return nil
}
