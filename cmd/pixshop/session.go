package main

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/manash/pixshop/internal/session"
)

func newSessionCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Inspect or erase the saved edit session",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Show the saved history",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runSessionShow(cmd.Context(), app)
			},
		},
		&cobra.Command{
			Use:   "clear",
			Short: "Erase the saved history",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runSessionClear(cmd.Context(), app)
			},
		},
		&cobra.Command{
			Use:   "export <dir>",
			Short: "Write every image in the history to a directory",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runSessionExport(cmd.Context(), args[0], app)
			},
		},
	)
	return cmd
}

// loadSession opens the slot and restores its history. The caller closes
// the returned slot.
func (app *App) loadSession(ctx context.Context) (*session.Manager, session.Slot, error) {
	slot, err := app.openSlot()
	if err != nil {
		return nil, nil, err
	}
	mgr := session.NewManager(slot)
	mgr.LoadInitial(ctx)
	return mgr, slot, nil
}

func runSessionShow(ctx context.Context, app *App) error {
	mgr, slot, err := app.loadSession(ctx)
	if err != nil {
		return err
	}
	defer slot.Close()

	fmt.Fprintf(app.Out, "Storage: %s\n", app.cfg.Storage.Backend)
	switch s := slot.(type) {
	case *session.FileSlot:
		fmt.Fprintf(app.Out, "File:    %s\n", s.Path(session.SessionKey))
	case *session.SQLiteSlot:
		if t, err := s.UpdatedAt(ctx, session.SessionKey); err == nil {
			fmt.Fprintf(app.Out, "Updated: %s\n", session.FormatTimestamp(t))
		}
	}

	snap := mgr.Snapshot()
	if snap.IsEmpty() {
		fmt.Fprintln(app.Out, "No saved session.")
		return nil
	}

	fmt.Fprintf(app.Out, "Entries: %d (current: %d)\n\n", len(snap.Entries), snap.Cursor+1)
	var total uint64
	for i, a := range snap.Entries {
		marker := "  "
		if i == snap.Cursor {
			marker = "> "
		}
		fmt.Fprintf(app.Out, "%s[%d] %-32s %-10s %8s\n", marker, i+1, a.Name(), a.MimeType(), humanize.Bytes(uint64(a.Size())))
		total += uint64(a.Size())
	}
	fmt.Fprintf(app.Out, "\nTotal size: %s\n", humanize.Bytes(total))
	return nil
}

func runSessionClear(ctx context.Context, app *App) error {
	slot, err := app.openSlot()
	if err != nil {
		return err
	}
	defer slot.Close()

	if err := session.NewManager(slot).Clear(ctx); err != nil {
		return err
	}
	fmt.Fprintln(app.Out, "Session cleared.")
	return nil
}

func runSessionExport(ctx context.Context, dir string, app *App) error {
	mgr, slot, err := app.loadSession(ctx)
	if err != nil {
		return err
	}
	defer slot.Close()

	if !mgr.HasSession() {
		return session.ErrNoSession
	}
	paths, err := app.saver().SaveAll(mgr.Entries(), dir)
	for _, p := range paths {
		fmt.Fprintf(app.Out, "Saved: %s\n", p)
	}
	return err
}
