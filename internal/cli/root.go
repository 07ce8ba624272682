package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
)

// getStatus renders the prompt suffix: running/paused batch state or the
// number of queued files.
func (a *App) getStatus() string {
	if a.orch.Busy() {
		if p, ok := a.orch.Progress(); ok && p.Paused {
			return " (paused)"
		}
		return " (running)"
	}
	if n := len(a.pending); n > 0 {
		return fmt.Sprintf(" (%d queued)", n)
	}
	return ""
}

// Root runs the interactive loop on stdin until the user exits. A progress
// renderer drains reporter snapshots in the background so a running batch
// stays visible between prompts.
func (a *App) Root(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	a.log.Info(ctx, "starting securedrive cli", "app_dir", a.config.AppDir)
	printlnFn("Welcome to SecureDrive CLI (type 'help' for commands)")

	go a.renderProgress(ctx)

	scanner := bufio.NewScanner(os.Stdin)
	runREPL(ctx, a, a.getStatus, scanner)
}
