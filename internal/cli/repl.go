package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	Add(ctx context.Context, args []string) error
	Start(ctx context.Context) error
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	CancelBatch(ctx context.Context) error
	Status(ctx context.Context) error
	Retry(ctx context.Context) error
	List(ctx context.Context) error
	Delete(ctx context.Context, args []string) error
	Download(ctx context.Context, args []string) error
	Decrypt(ctx context.Context, args []string) error
	History(ctx context.Context) error
	Key(ctx context.Context, args []string) error
	Auth(ctx context.Context) error
}

// runREPL starts a simple read-eval-print loop for the SecureDrive CLI.
//
// It reads a line from the provided scanner, parses the first token as the
// command, and dispatches to methods on 'a'. Unknown commands and wrong
// argument counts are reported back to the user without reaching a handler.
// The loop exits on scanner EOF or when the user types "exit" or "quit".
//
// Prompt & Commands
//
// The prompt shows the current batch status (from statusFn) and accepts:
//
//	add <path>...          queue files for the next batch
//	start                  encrypt and upload the queued files
//	pause | resume         park / continue the running batch
//	cancel                 stop the running batch
//	status                 one-line progress of the current batch
//	retry                  resubmit failed and cancelled files of the last batch
//	list | l               list remote containers
//	delete <key>           delete one remote container
//	download <key> <dest>  download a container and restore the plaintext
//	decrypt <src> <dest>   decrypt a local container
//	history                recent batches from the ledger
//	key <subcommand>       info | regenerate | export <path> | import <path>
//	auth                   enter and verify S3 credentials
//	help, exit | quit
//
// Errors returned by command handlers are printed to the user; the loop
// itself never stops on a handler error.
func runREPL(ctx context.Context, a execIface, statusFn func() string, scanner *bufio.Scanner) {
	for {
		printlnFn(fmt.Sprintf("sd%s> ", statusFn()))
		if !scanner.Scan() {
			return
		}
		line := scanner.Text()
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd := parts[0]
		args := parts[1:]

		var err error

		switch cmd {
		case "help":
			printHelp()

		case "add":
			if len(args) == 0 {
				printlnFn("Usage: add <path> [path...]")
				continue
			}
			err = a.Add(ctx, args)

		case "start":
			err = a.Start(ctx)

		case "pause":
			err = a.Pause(ctx)

		case "resume":
			err = a.Resume(ctx)

		case "cancel":
			err = a.CancelBatch(ctx)

		case "status":
			err = a.Status(ctx)

		case "retry":
			err = a.Retry(ctx)

		case "l", "list":
			err = a.List(ctx)

		case "delete":
			if len(args) != 1 {
				printlnFn("Usage: delete <key>")
				continue
			}
			err = a.Delete(ctx, args)

		case "download":
			if len(args) != 2 {
				printlnFn("Usage: download <key> <dest>")
				continue
			}
			err = a.Download(ctx, args)

		case "decrypt":
			if len(args) != 2 {
				printlnFn("Usage: decrypt <container> <dest>")
				continue
			}
			err = a.Decrypt(ctx, args)

		case "history":
			err = a.History(ctx)

		case "key":
			if len(args) == 0 {
				printlnFn("Usage: key info|regenerate|export <path>|import <path>")
				continue
			}
			err = a.Key(ctx, args)

		case "auth":
			err = a.Auth(ctx)

		case "exit", "quit":
			printlnFn("Bye!")
			return

		default:
			printlnFn("Unknown command:", cmd)
		}

		if err != nil {
			printlnFn("Error:", err.Error())
		}
	}
}

func printHelp() {
	printlnFn("Available commands:")
	printlnFn("  add <path>...          queue files for the next batch")
	printlnFn("  start                  encrypt and upload the queued files")
	printlnFn("  pause | resume         park / continue the running batch")
	printlnFn("  cancel                 stop the running batch")
	printlnFn("  status                 progress of the current batch")
	printlnFn("  retry                  resubmit failed files of the last batch")
	printlnFn("  list                   list remote containers")
	printlnFn("  delete <key>           delete one remote container")
	printlnFn("  download <key> <dest>  download and restore the plaintext")
	printlnFn("  decrypt <src> <dest>   decrypt a local container")
	printlnFn("  history                recent batches")
	printlnFn("  key info|regenerate|export <path>|import <path>")
	printlnFn("  auth                   enter and verify S3 credentials")
	printlnFn("  exit | quit")
}
