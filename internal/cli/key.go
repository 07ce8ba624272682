package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/dmitrijs2005/securedrive/internal/common"
)

// Key handles the key management subcommands: info, regenerate, export,
// and import. Regenerate and import refuse to run while a batch is active
// so the key cannot change under the worker.
func (a *App) Key(ctx context.Context, args []string) error {
	switch args[0] {
	case "info":
		info := a.keys.Info()
		if !info.Exists {
			printlnFn("No key file yet. One is generated on the first upload.")
			return nil
		}
		printlnFn(fmt.Sprintf("AES-256 key at %s, mode %04o, valid: %v, created %s",
			info.Path, info.Mode.Perm(), info.Valid, info.CreatedAt.Format("2006-01-02 15:04:05")))
		return nil

	case "regenerate":
		if a.orch.Busy() {
			return common.ErrBusy
		}
		printlnFn("Regenerating makes every existing container undecryptable.")
		answer, err := getSimpleText(a.reader, "Type 'yes' to continue", os.Stdout)
		if err != nil {
			return err
		}
		if answer != "yes" {
			printlnFn("Aborted.")
			return nil
		}
		if _, err := a.keys.Regenerate(ctx); err != nil {
			return err
		}
		printlnFn("New key generated.")
		return nil

	case "export":
		if len(args) != 2 {
			printlnFn("Usage: key export <path>")
			return nil
		}
		pass, err := getPassword(os.Stdout, "Enter passphrase: ")
		if err != nil {
			return err
		}
		defer common.WipeByteArray(pass)
		if err := a.keys.Export(ctx, args[1], pass); err != nil {
			return err
		}
		printlnFn("Key exported to", args[1])
		return nil

	case "import":
		if len(args) != 2 {
			printlnFn("Usage: key import <path>")
			return nil
		}
		if a.orch.Busy() {
			return common.ErrBusy
		}
		pass, err := getPassword(os.Stdout, "Enter passphrase: ")
		if err != nil {
			return err
		}
		defer common.WipeByteArray(pass)
		if _, err := a.keys.Import(ctx, args[1], pass); err != nil {
			return err
		}
		printlnFn("Key imported and active.")
		return nil

	default:
		printlnFn("Usage: key info|regenerate|export <path>|import <path>")
		return nil
	}
}
