package cli

import "context"

// Delete removes one remote container by key.
func (a *App) Delete(ctx context.Context, args []string) error {
	key := args[0]
	if err := a.store.Delete(ctx, key); err != nil {
		return err
	}
	printlnFn("Deleted", key)
	return nil
}
