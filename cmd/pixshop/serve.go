package main

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/manash/pixshop/internal/server"
	"github.com/manash/pixshop/internal/session"
)

func newServeCmd(app *App) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the edit session over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(addr, app)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default: server.addr from config, :8080)")
	return cmd
}

func runServe(addr string, app *App) error {
	ctx, cancel := signalContext()
	defer cancel()

	if addr == "" {
		addr = app.cfg.Server.Addr
	}

	editor, err := app.editor(false)
	if err != nil {
		return err
	}
	slot, err := app.openSlot()
	if err != nil {
		return err
	}
	defer slot.Close()

	mgr := session.NewManager(slot)
	restored := mgr.LoadInitial(ctx)
	log.Info().Int("entries", len(restored.Entries)).Str("storage", app.cfg.Storage.Backend).Msg("session loaded")

	return server.New(mgr, editor, app.ledger()).ListenAndServe(ctx, addr)
}
