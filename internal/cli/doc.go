// Package cli provides the interactive SecureDrive command-line client.
//
// It wires configuration, the key store, the encrypted-container codec, the
// remote storage client, and the transfer ledger into an interactive REPL
// driving the batch orchestrator. Progress snapshots from a running batch
// are rendered live between prompts.
//
// Key features:
//   - Queue files and run them as an encrypt-then-upload batch
//   - Pause / resume / cancel a running batch, retry a finished one
//   - List, delete, and download remote containers (download restores
//     the plaintext)
//   - Manage the encryption key: info, regenerate, export, import
//   - Switch S3 credentials for the session after verifying the bucket
//
// The REPL is started via App.Root(ctx), which blocks until the user exits.
// See App and runREPL for details.
package cli
