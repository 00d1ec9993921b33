package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/manash/pixshop/internal/keys"
	"github.com/manash/pixshop/pkg/models"
)

func newKeysCmd(app *App) *cobra.Command {
	var providerName string

	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage stored API keys",
	}
	cmd.PersistentFlags().StringVar(&providerName, "provider", string(models.ProviderGemini), "provider the key belongs to")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "set [key]",
			Short: "Store an API key (read from stdin when omitted)",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				key := ""
				if len(args) == 1 {
					key = args[0]
				}
				return runKeysSet(providerName, key, app)
			},
		},
		&cobra.Command{
			Use:   "get",
			Short: "Show the stored key, masked",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runKeysGet(providerName, app)
			},
		},
		&cobra.Command{
			Use:   "list",
			Short: "List providers with a stored key",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runKeysList(app)
			},
		},
		&cobra.Command{
			Use:   "delete",
			Short: "Remove the stored key",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runKeysDelete(providerName, app)
			},
		},
	)
	return cmd
}

// readKey prompts for a key without echo when stdin is a terminal and
// reads one line otherwise.
func (app *App) readKey(providerName string) (string, error) {
	if f, ok := app.In.(*os.File); ok && isTerminal(f) {
		fmt.Fprintf(app.Out, "Enter %s API key: ", providerName)
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(app.Out)
		if err != nil {
			return "", fmt.Errorf("failed to read key: %w", err)
		}
		return string(b), nil
	}

	line, err := bufio.NewReader(app.In).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("failed to read key: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func runKeysSet(providerName, key string, app *App) error {
	store, err := app.KeyStore()
	if err != nil {
		return err
	}
	if key == "" {
		if key, err = app.readKey(providerName); err != nil {
			return err
		}
	}
	replaced, err := store.Exists(providerName)
	if err != nil {
		return err
	}
	if err := store.Set(providerName, key); err != nil {
		return err
	}
	verb := "Stored"
	if replaced {
		verb = "Replaced"
	}
	fmt.Fprintf(app.Out, "%s %s key %s in %s\n", verb, providerName, keys.MaskKey(strings.TrimSpace(key)), store.Path())
	return nil
}

func runKeysGet(providerName string, app *App) error {
	store, err := app.KeyStore()
	if err != nil {
		return err
	}
	key, err := store.Get(providerName)
	if err != nil {
		return err
	}
	if key == "" {
		return fmt.Errorf("%w for %s", keys.ErrKeyNotFound, providerName)
	}
	fmt.Fprintf(app.Out, "%s: %s\n", providerName, keys.MaskKey(key))
	return nil
}

func runKeysList(app *App) error {
	store, err := app.KeyStore()
	if err != nil {
		return err
	}
	providers, err := store.List()
	if err != nil {
		return err
	}
	if len(providers) == 0 {
		fmt.Fprintln(app.Out, "No stored keys.")
		return nil
	}
	for _, p := range providers {
		key, err := store.Get(p)
		if err != nil {
			return err
		}
		fmt.Fprintf(app.Out, "%-10s %s\n", p, keys.MaskKey(key))
	}
	return nil
}

func runKeysDelete(providerName string, app *App) error {
	store, err := app.KeyStore()
	if err != nil {
		return err
	}
	if err := store.Delete(providerName); err != nil {
		if errors.Is(err, keys.ErrKeyNotFound) {
			fmt.Fprintf(app.Out, "No stored key for %s.\n", providerName)
			return nil
		}
		return err
	}
	fmt.Fprintf(app.Out, "Deleted %s key.\n", providerName)
	return nil
}
