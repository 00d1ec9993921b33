package display

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/manash/pixshop/internal/imaging"
	"github.com/manash/pixshop/pkg/models"
)

// DefaultColumns bounds inline previews so large photos don't flood the
// terminal.
const DefaultColumns = 60

type Displayer struct {
	out     io.Writer
	columns int
}

func New(out io.Writer) *Displayer {
	return &Displayer{
		out:     out,
		columns: DefaultColumns,
	}
}

// WithColumns sets the preview width in terminal cells. Zero lets the
// terminal pick the natural size.
func (d *Displayer) WithColumns(n int) *Displayer {
	if n < 0 {
		n = 0
	}
	d.columns = n
	return d
}

// Display draws the artifact inline. Kitty only accepts PNG for direct
// transmission, so other formats are converted first.
func (d *Displayer) Display(a *models.Artifact) error {
	if a == nil {
		return fmt.Errorf("image has no data")
	}

	data, err := imaging.ToPNG(a)
	if err != nil {
		return fmt.Errorf("failed to prepare %s for display: %w", a.Name(), err)
	}

	enc := NewKittyEncoder(d.out).WithColumns(d.columns)
	if err := enc.Encode(data); err != nil {
		return fmt.Errorf("failed to encode image: %w", err)
	}

	fmt.Fprintln(d.out)
	return nil
}

// DisplayAll draws each artifact under a one-line caption.
func (d *Displayer) DisplayAll(entries []*models.Artifact) error {
	for i, a := range entries {
		fmt.Fprintf(d.out, "[%d] %s\n", i, a.Name())
		if err := d.Display(a); err != nil {
			return fmt.Errorf("failed to display image %d: %w", i, err)
		}
	}
	return nil
}

func IsTerminalSupported() bool {
	termProgram := strings.ToLower(os.Getenv("TERM_PROGRAM"))
	supportedPrograms := []string{"kitty", "ghostty", "iterm.app", "wezterm"}

	for _, prog := range supportedPrograms {
		if termProgram == prog {
			return true
		}
	}

	if os.Getenv("KITTY_WINDOW_ID") != "" {
		return true
	}

	if os.Getenv("ITERM_SESSION_ID") != "" {
		return true
	}

	term := strings.ToLower(os.Getenv("TERM"))
	return strings.Contains(term, "kitty") || strings.Contains(term, "ghostty")
}
