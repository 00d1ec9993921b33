package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/manash/pixshop/internal/config"
	"github.com/manash/pixshop/internal/cost"
	"github.com/manash/pixshop/internal/display"
	"github.com/manash/pixshop/internal/image"
	"github.com/manash/pixshop/internal/keys"
	"github.com/manash/pixshop/internal/logging"
	"github.com/manash/pixshop/internal/provider"
	"github.com/manash/pixshop/internal/provider/gemini"
	"github.com/manash/pixshop/internal/repl"
	"github.com/manash/pixshop/internal/security"
	"github.com/manash/pixshop/internal/session"
	"github.com/manash/pixshop/pkg/models"
)

var (
	version = "dev"
	commit  = "none"
)

var (
	flagConfig    string
	flagAPIKey    string
	flagYes       bool
	flagDebug     bool
	flagNoDisplay bool
)

type App struct {
	In     io.Reader
	Out    io.Writer
	Err    io.Writer
	GetEnv func(string) string

	KeyStore     func() (*keys.Store, error)
	NewEditor    func(cfg *provider.Config) (provider.Editor, error)
	OpenSlot     func(cfg session.SlotConfig) (session.Slot, error)
	NewSaver     func() *image.Saver
	NewDisplayer func(out io.Writer) *display.Displayer
	// CanDisplay reports whether Out is a terminal that shows inline images.
	CanDisplay func() bool

	cfg *config.Config
}

func DefaultApp() *App {
	return &App{
		In:       os.Stdin,
		Out:      os.Stdout,
		Err:      os.Stderr,
		GetEnv:   os.Getenv,
		KeyStore: keys.NewStore,
		NewEditor: func(cfg *provider.Config) (provider.Editor, error) {
			return gemini.New(cfg, models.DefaultRegistry())
		},
		OpenSlot:     session.OpenSlot,
		NewSaver:     image.NewSaver,
		NewDisplayer: display.New,
		CanDisplay: func() bool {
			return isTerminal(os.Stdout) && display.IsTerminalSupported()
		},
	}
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	app := DefaultApp()
	rootCmd := newRootCmd(app)
	return rootCmd.Execute()
}

func newRootCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pixshop",
		Short: "AI photo editor with undo/redo history",
		Long: `pixshop edits photos with Gemini and keeps a linear edit history you
can step through with undo, redo and reset. The history survives restarts.

Run without arguments for the interactive editor.

Examples:
  pixshop
  pixshop generate "a lighthouse at dusk" -o lighthouse.png
  pixshop batch edits.txt -o out/ -p 4
  pixshop serve --addr :8080`,
		Args:          cobra.NoArgs,
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return app.setup()
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runREPL(cmd, app)
		},
	}

	cmd.SetIn(app.In)
	cmd.SetOut(app.Out)
	cmd.SetErr(app.Err)

	pf := cmd.PersistentFlags()
	pf.StringVar(&flagConfig, "config", "", "config file (default: <config dir>/config.yaml)")
	pf.StringVar(&flagAPIKey, "api-key", "", "Gemini API key (defaults to stored key, then GEMINI_API_KEY or API_KEY)")
	pf.BoolVarP(&flagYes, "yes", "y", false, "answer yes to confirmation prompts")
	pf.BoolVar(&flagDebug, "debug", false, "enable debug logging")
	pf.BoolVar(&flagNoDisplay, "no-display", false, "do not show images inline in the terminal")

	cmd.AddCommand(
		newGenerateCmd(app),
		newSessionCmd(app),
		newServeCmd(app),
		newBatchCmd(app),
		newKeysCmd(app),
		newPricingCmd(app),
	)

	return cmd
}

// setup loads configuration and logging before any command runs.
func (app *App) setup() error {
	if err := logging.Setup(app.Err, "", flagDebug); err != nil {
		return err
	}
	config.LoadDotEnv()

	cfg, err := config.Load(flagConfig)
	if err != nil {
		return err
	}
	if err := logging.Setup(app.Err, cfg.Log.Level, flagDebug); err != nil {
		return err
	}
	if cfg.File != "" {
		log.Debug().Str("file", cfg.File).Msg("config loaded")
	}

	security.AllowHosts(cfg.Security.AllowedHosts...)
	app.cfg = cfg
	return nil
}

func (app *App) resolveKey() (string, string, error) {
	r := &keys.Resolver{GetEnv: app.GetEnv}
	if store, err := app.KeyStore(); err == nil {
		r.Store = store
	}
	return r.Resolve(flagAPIKey, string(models.ProviderGemini))
}

// editor builds the Gemini client. Without a key it returns nil unless
// required is set.
func (app *App) editor(required bool) (provider.Editor, error) {
	key, source, err := app.resolveKey()
	if err != nil {
		if required {
			return nil, err
		}
		log.Warn().Msg("no API key found, AI edits are disabled")
		return nil, nil
	}
	log.Debug().Str("source", source).Msg("using API key")

	e, err := app.NewEditor(app.cfg.ProviderConfig(key))
	if err != nil {
		return nil, fmt.Errorf("failed to create provider: %w", err)
	}
	return e, nil
}

func (app *App) openSlot() (session.Slot, error) {
	slot, err := app.OpenSlot(app.cfg.SlotConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to open session storage: %w", err)
	}
	return slot, nil
}

func (app *App) ledger() *cost.Ledger {
	return cost.NewLedger(nil, cost.Models{
		Image:  app.cfg.Gemini.ImageModel,
		Text:   app.cfg.Gemini.TextModel,
		Imagen: app.cfg.Gemini.ImagenModel,
	})
}

func (app *App) saver() *image.Saver {
	return app.NewSaver().WithStrictURLs(app.cfg.Security.StrictURLs)
}

func (app *App) displayer() *display.Displayer {
	if flagNoDisplay || !app.cfg.Display.Enabled || !app.CanDisplay() {
		return nil
	}
	return app.NewDisplayer(app.Out).WithColumns(app.cfg.Display.Columns)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func runREPL(_ *cobra.Command, app *App) error {
	ctx, cancel := signalContext()
	defer cancel()

	editor, err := app.editor(false)
	if err != nil {
		return err
	}
	slot, err := app.openSlot()
	if err != nil {
		return err
	}
	defer slot.Close()

	r := repl.New(&repl.Config{
		In:          app.In,
		Out:         app.Out,
		Err:         app.Err,
		Editor:      editor,
		SessionMgr:  session.NewManager(slot),
		Displayer:   app.displayer(),
		Saver:       app.saver(),
		Ledger:      app.ledger(),
		AutoConfirm: flagYes || !app.cfg.Confirm,
	})

	if err := r.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func newGenerateCmd(app *App) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "generate <prompt>",
		Short: "Generate one image from text without touching the session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(args[0], output, app)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output filename (default: pixshop-<timestamp>.<ext>)")
	return cmd
}

func runGenerate(prompt, output string, app *App) error {
	ctx, cancel := signalContext()
	defer cancel()

	editor, err := app.editor(true)
	if err != nil {
		return err
	}

	fmt.Fprintf(app.Out, "Generating with %s...\n", app.cfg.Gemini.ImagenModel)
	a, err := editor.GenerateFromText(ctx, prompt)
	if err != nil {
		return fmt.Errorf("generation failed: %w", err)
	}
	charge := app.ledger().Record(models.OpGenerateFromText)

	if output == "" {
		output = image.GenerateFilenameWithTime(a, time.Now())
	}
	if err := app.saver().Save(a, output); err != nil {
		return err
	}

	if d := app.displayer(); d != nil {
		if err := d.Display(a); err != nil {
			fmt.Fprintf(app.Err, "Warning: failed to display: %v\n", err)
		}
	}

	fmt.Fprintf(app.Out, "Saved: %s\n", output)
	fmt.Fprintf(app.Out, "Cost: $%.4f (%s)\n", charge.Amount, charge.Model)
	return nil
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
