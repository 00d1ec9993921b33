package repl

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/manash/pixshop/internal/cost"
	"github.com/manash/pixshop/internal/display"
	"github.com/manash/pixshop/internal/image"
	"github.com/manash/pixshop/internal/provider"
	"github.com/manash/pixshop/internal/session"
	"github.com/manash/pixshop/pkg/models"
)

var ErrNoEditor = errors.New("AI editing needs an API key (run 'pixshop keys set' or set GEMINI_API_KEY)")

type REPL struct {
	in          io.Reader
	out         io.Writer
	err         io.Writer
	scanner     *bufio.Scanner
	editor      provider.Editor
	sessionMgr  *session.Manager
	displayer   *display.Displayer
	saver       *image.Saver
	ledger      *cost.Ledger
	autoConfirm bool
	commands    map[string]Command
	running     bool
}

type Config struct {
	In         io.Reader
	Out        io.Writer
	Err        io.Writer
	Editor     provider.Editor
	SessionMgr *session.Manager
	// Displayer is nil when inline display is off.
	Displayer *display.Displayer
	Saver     *image.Saver
	Ledger    *cost.Ledger
	// AutoConfirm answers yes to every confirmation prompt.
	AutoConfirm bool
}

func New(cfg *Config) *REPL {
	r := &REPL{
		in:          cfg.In,
		out:         cfg.Out,
		err:         cfg.Err,
		editor:      cfg.Editor,
		sessionMgr:  cfg.SessionMgr,
		displayer:   cfg.Displayer,
		saver:       cfg.Saver,
		ledger:      cfg.Ledger,
		autoConfirm: cfg.AutoConfirm,
		commands:    make(map[string]Command),
	}
	if r.saver == nil {
		r.saver = image.NewSaver()
	}
	if r.ledger == nil {
		r.ledger = cost.NewLedger(nil, cost.Models{})
	}
	r.scanner = bufio.NewScanner(r.in)
	r.scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	r.registerCommands()
	return r
}

// Run restores the saved session and reads commands until quit or EOF.
// Commands run one at a time, so no input is read while an AI call is
// outstanding.
func (r *REPL) Run(ctx context.Context) error {
	r.running = true
	r.printWelcome()

	restored := r.sessionMgr.LoadInitial(ctx)
	if !restored.IsEmpty() {
		fmt.Fprintf(r.out, "Restored session: %d image(s), at %d\n", len(restored.Entries), restored.Cursor+1)
	}

	for r.running {
		if err := ctx.Err(); err != nil {
			return err
		}
		r.printPrompt()
		if !r.scanner.Scan() {
			break
		}

		line := strings.TrimSpace(r.scanner.Text())
		if line == "" {
			continue
		}

		if err := r.execute(ctx, line); err != nil {
			log.Debug().Err(err).Str("line", line).Msg("command failed")
			fmt.Fprintf(r.err, "Error: %v\n", err)
		}
	}

	return r.scanner.Err()
}

func (r *REPL) execute(ctx context.Context, line string) error {
	parts := parseCommand(line)
	if len(parts) == 0 {
		return nil
	}

	cmdName := strings.ToLower(parts[0])
	args := parts[1:]

	cmd, ok := r.commands[cmdName]
	if !ok {
		return fmt.Errorf("unknown command: %s (type 'help' for available commands)", cmdName)
	}

	return cmd.Execute(ctx, r, args)
}

func (r *REPL) Stop() {
	r.running = false
}

// confirm asks a yes/no question on the REPL's own input. Anything but y or
// yes is a no.
func (r *REPL) confirm(question string) bool {
	if r.autoConfirm {
		return true
	}
	fmt.Fprintf(r.out, "%s [y/N] ", question)
	if !r.scanner.Scan() {
		fmt.Fprintln(r.out)
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(r.scanner.Text()))
	return answer == "y" || answer == "yes"
}

func (r *REPL) requireEditor() error {
	if r.editor == nil {
		return ErrNoEditor
	}
	return nil
}

func (r *REPL) current() (*models.Artifact, error) {
	a, ok := r.sessionMgr.Current()
	if !ok {
		return nil, fmt.Errorf("%w: use 'upload' or 'generate text' first", session.ErrNoSession)
	}
	return a, nil
}

// checkPersist turns a failed save into a warning. Any other error is
// returned as is.
func (r *REPL) checkPersist(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, session.ErrPersist) {
		fmt.Fprintf(r.err, "Warning: %v\n", err)
		return nil
	}
	return err
}

// commit records a as the new current entry, starting a fresh history when
// startNew is set, then reports and shows it.
func (r *REPL) commit(ctx context.Context, a *models.Artifact, startNew bool) error {
	var err error
	if startNew {
		err = r.sessionMgr.StartNew(ctx, a)
	} else {
		err = r.sessionMgr.Append(ctx, a)
	}
	if err := r.checkPersist(err); err != nil {
		return err
	}
	r.printPosition(a)
	r.show(a)
	return nil
}

func (r *REPL) printPosition(a *models.Artifact) {
	fmt.Fprintf(r.out, "Now at %d/%d: %s\n", r.sessionMgr.Cursor()+1, r.sessionMgr.Len(), a.Name())
}

func (r *REPL) show(a *models.Artifact) {
	if r.displayer == nil || a == nil {
		return
	}
	if err := r.displayer.Display(a); err != nil {
		fmt.Fprintf(r.err, "Warning: failed to display: %v\n", err)
	}
}

func (r *REPL) printWelcome() {
	fmt.Fprintln(r.out, "pixshop interactive mode")
	fmt.Fprintln(r.out, "Type 'help' for available commands, 'quit' to exit.")
	fmt.Fprintln(r.out)
}

func (r *REPL) printPrompt() {
	if a, ok := r.sessionMgr.Current(); ok {
		fmt.Fprintf(r.out, "pixshop [%d/%d %s]> ", r.sessionMgr.Cursor()+1, r.sessionMgr.Len(), a.Name())
		return
	}
	fmt.Fprint(r.out, "pixshop> ")
}

func parseCommand(line string) []string {
	var parts []string
	var current strings.Builder
	inQuotes := false
	quoteChar := rune(0)

	for _, ch := range line {
		switch {
		case ch == '"' || ch == '\'':
			if inQuotes && ch == quoteChar {
				inQuotes = false
				quoteChar = 0
			} else if !inQuotes {
				inQuotes = true
				quoteChar = ch
			} else {
				current.WriteRune(ch)
			}
		case ch == ' ' && !inQuotes:
			if current.Len() > 0 {
				parts = append(parts, current.String())
				current.Reset()
			}
		default:
			current.WriteRune(ch)
		}
	}

	if current.Len() > 0 {
		parts = append(parts, current.String())
	}

	return parts
}
