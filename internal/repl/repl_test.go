package repl

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/manash/pixshop/internal/display"
	"github.com/manash/pixshop/internal/provider"
	"github.com/manash/pixshop/internal/provider/providertest"
	"github.com/manash/pixshop/internal/session"
)

type failingSlot struct {
	*session.MemorySlot
}

func (f failingSlot) Put(context.Context, string, []byte) error {
	return errors.New("quota exceeded")
}

type harness struct {
	repl   *REPL
	out    *bytes.Buffer
	errBuf *bytes.Buffer
	mgr    *session.Manager
	editor *providertest.Editor
}

func newHarness(t *testing.T, input string, opts ...func(*Config)) *harness {
	t.Helper()
	h := &harness{
		out:    &bytes.Buffer{},
		errBuf: &bytes.Buffer{},
		mgr:    session.NewManager(session.NewMemorySlot()),
		editor: providertest.New(),
	}
	cfg := &Config{
		In:          strings.NewReader(input),
		Out:         h.out,
		Err:         h.errBuf,
		Editor:      h.editor,
		SessionMgr:  h.mgr,
		AutoConfirm: true,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	h.mgr = cfg.SessionMgr
	h.repl = New(cfg)
	return h
}

func (h *harness) run(t *testing.T) {
	t.Helper()
	if err := h.repl.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
}

// writePNG writes a w x h PNG into dir and returns its path.
func writePNG(t *testing.T, dir string, w, h int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.RGBA{B: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "photo.png")
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestNew(t *testing.T) {
	h := newHarness(t, "")
	if h.repl == nil {
		t.Fatal("New() returned nil")
	}
	if len(h.repl.commands) == 0 {
		t.Error("New() commands not registered")
	}
	if h.repl.ledger == nil || h.repl.saver == nil {
		t.Error("New() did not default ledger and saver")
	}
}

func TestREPL_CommandsRegistered(t *testing.T) {
	h := newHarness(t, "")

	expectedCommands := []string{
		"upload", "open",
		"generate", "gen", "g",
		"retouch", "edit", "e",
		"filter", "adjust", "background", "bg", "upscale", "style",
		"model3d", "3d",
		"crop", "rotate",
		"undo", "u", "back",
		"redo", "r",
		"reset", "new", "clear",
		"save", "s",
		"show", "display", "view",
		"history", "h", "hist",
		"cost", "$",
		"help", "?",
		"quit", "exit", "q",
	}

	for _, cmd := range expectedCommands {
		if _, ok := h.repl.commands[cmd]; !ok {
			t.Errorf("Command %q not registered", cmd)
		}
	}
}

func TestREPL_Run_Quit(t *testing.T) {
	h := newHarness(t, "quit\n")
	h.run(t)

	if !strings.Contains(h.out.String(), "Goodbye!") {
		t.Error("Run() quit command did not output 'Goodbye!'")
	}
}

func TestREPL_Run_Help(t *testing.T) {
	h := newHarness(t, "help\nquit\n")
	h.run(t)

	output := h.out.String()
	if !strings.Contains(output, "Available commands") {
		t.Error("Run() help did not show available commands")
	}
	for _, name := range []string{"upload", "retouch", "undo", "model3d"} {
		if !strings.Contains(output, name) {
			t.Errorf("Run() help did not list %s", name)
		}
	}
}

func TestREPL_Run_UnknownCommand(t *testing.T) {
	h := newHarness(t, "unknowncommand\nquit\n")
	h.run(t)

	if !strings.Contains(h.errBuf.String(), "Error: unknown command: unknowncommand") {
		t.Errorf("stderr = %q", h.errBuf.String())
	}
}

func TestREPL_Run_EmptyLine(t *testing.T) {
	h := newHarness(t, "\n\n\nquit\n")
	h.run(t)
}

func TestREPL_Run_RestoresSession(t *testing.T) {
	slot := session.NewMemorySlot()
	first := newHarness(t, "upload "+writePNG(t, t.TempDir(), 4, 4)+"\nquit\n", func(c *Config) {
		c.SessionMgr = session.NewManager(slot)
	})
	first.run(t)

	second := newHarness(t, "quit\n", func(c *Config) {
		c.SessionMgr = session.NewManager(slot)
	})
	second.run(t)

	if !strings.Contains(second.out.String(), "Restored session: 1 image(s), at 1") {
		t.Errorf("output = %q", second.out.String())
	}
	if second.mgr.Len() != 1 {
		t.Errorf("Len() = %d, want 1", second.mgr.Len())
	}
}

func TestREPL_Stop(t *testing.T) {
	h := newHarness(t, "")

	h.repl.running = true
	h.repl.Stop()

	if h.repl.running {
		t.Error("Stop() did not stop the REPL")
	}
}

func TestUploadAndEdit(t *testing.T) {
	path := writePNG(t, t.TempDir(), 8, 8)
	h := newHarness(t, "upload "+path+"\nfilter sepia tone\nadjust warmer\nhistory\nquit\n")
	h.run(t)

	if h.mgr.Len() != 3 || h.mgr.Cursor() != 2 {
		t.Fatalf("Len() = %d, Cursor() = %d, want 3, 2", h.mgr.Len(), h.mgr.Cursor())
	}
	calls := h.editor.Calls()
	if len(calls) != 2 {
		t.Fatalf("editor calls = %d, want 2", len(calls))
	}
	if calls[0].Input != "photo.png" || calls[0].Prompt != "sepia tone" {
		t.Errorf("first call = %+v", calls[0])
	}

	output := h.out.String()
	if !strings.Contains(output, "Now at 3/3") {
		t.Error("missing position after edit")
	}
	if !strings.Contains(output, "History (3 entries)") {
		t.Error("history header missing")
	}
	if !strings.Contains(output, "> [3]") {
		t.Error("history did not mark the current entry")
	}
}

func TestUndoRedo_Confirmation(t *testing.T) {
	path := writePNG(t, t.TempDir(), 8, 8)

	tests := []struct {
		name       string
		input      string
		auto       bool
		wantCursor int
		wantOut    string
	}{
		{
			name:       "confirmed",
			input:      "undo\ny\n",
			wantCursor: 0,
			wantOut:    "Are you sure you want to undo the last edit? [y/N]",
		},
		{
			name:       "declined",
			input:      "undo\nn\n",
			wantCursor: 1,
			wantOut:    "Cancelled.",
		},
		{
			name:       "eof declines",
			input:      "undo\n",
			wantCursor: 1,
		},
		{
			name:       "auto confirm",
			input:      "undo\nredo\n",
			auto:       true,
			wantCursor: 1,
		},
		{
			name:       "redo confirmed",
			input:      "undo\nyes\nredo\nY\n",
			wantCursor: 1,
			wantOut:    "redo the last edit?",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.input, func(c *Config) {
				c.AutoConfirm = tt.auto
			})
			for _, line := range []string{"upload " + path, "rotate cw"} {
				if err := h.repl.execute(context.Background(), line); err != nil {
					t.Fatal(err)
				}
			}
			h.run(t)

			if got := h.mgr.Cursor(); got != tt.wantCursor {
				t.Errorf("Cursor() = %d, want %d", got, tt.wantCursor)
			}
			if h.mgr.Len() != 2 {
				t.Errorf("Len() = %d, want 2", h.mgr.Len())
			}
			if tt.wantOut != "" && !strings.Contains(h.out.String(), tt.wantOut) {
				t.Errorf("output missing %q:\n%s", tt.wantOut, h.out.String())
			}
		})
	}
}

func TestUndo_NothingToUndo(t *testing.T) {
	h := newHarness(t, "undo\nredo\nquit\n")
	h.run(t)

	errOut := h.errBuf.String()
	if !strings.Contains(errOut, "Error: nothing to undo") || !strings.Contains(errOut, "Error: nothing to redo") {
		t.Errorf("stderr = %q", errOut)
	}
}

func TestAppendAfterUndoDropsRedo(t *testing.T) {
	path := writePNG(t, t.TempDir(), 8, 8)
	h := newHarness(t, "upload "+path+"\nrotate cw\nrotate 180\nundo\nupscale\nquit\n")
	h.run(t)

	if h.mgr.Len() != 3 || h.mgr.Cursor() != 2 {
		t.Errorf("Len() = %d, Cursor() = %d, want 3, 2", h.mgr.Len(), h.mgr.Cursor())
	}
	if h.mgr.CanRedo() {
		t.Error("CanRedo() = true after append")
	}
}

func TestResetAndNew(t *testing.T) {
	path := writePNG(t, t.TempDir(), 8, 8)
	h := newHarness(t, "upload "+path+"\ncrop 0 0 4 4\nreset\n")
	h.run(t)

	if h.mgr.Cursor() != 0 || !h.mgr.CanRedo() {
		t.Errorf("after reset Cursor() = %d, CanRedo() = %v", h.mgr.Cursor(), h.mgr.CanRedo())
	}

	if err := h.repl.execute(context.Background(), "new"); err != nil {
		t.Fatal(err)
	}
	if h.mgr.HasSession() {
		t.Error("new did not clear the session")
	}
}

func TestAIFailureLeavesHistory(t *testing.T) {
	path := writePNG(t, t.TempDir(), 8, 8)
	h := newHarness(t, "upload "+path+"\nfilter noir\nquit\n")
	h.editor.Err = provider.ErrRequestBlocked
	h.run(t)

	if h.mgr.Len() != 1 {
		t.Errorf("Len() = %d, want 1", h.mgr.Len())
	}
	if !strings.Contains(h.errBuf.String(), "Error: filter failed: request was blocked") {
		t.Errorf("stderr = %q", h.errBuf.String())
	}
}

func TestGenerateText_StartsNewSession(t *testing.T) {
	path := writePNG(t, t.TempDir(), 8, 8)
	h := newHarness(t, "upload "+path+"\nrotate cw\ngenerate text a lighthouse at dusk\nquit\n")
	h.run(t)

	if h.mgr.Len() != 1 || h.mgr.Cursor() != 0 {
		t.Errorf("Len() = %d, Cursor() = %d, want 1, 0", h.mgr.Len(), h.mgr.Cursor())
	}
	calls := h.editor.Calls()
	if len(calls) != 1 || calls[0].Prompt != "a lighthouse at dusk" {
		t.Errorf("calls = %+v", calls)
	}
}

func TestRetouch(t *testing.T) {
	path := writePNG(t, t.TempDir(), 8, 8)
	h := newHarness(t, "upload "+path+"\nretouch 20 2 remove it\nretouch a b fix\nretouch 3 4 remove the bird\nquit\n")
	h.run(t)

	errOut := h.errBuf.String()
	if !strings.Contains(errOut, "hotspot must be inside the image: (20, 2) outside 8x8") {
		t.Errorf("stderr = %q", errOut)
	}
	if !strings.Contains(errOut, "coordinates must be integers") {
		t.Errorf("stderr = %q", errOut)
	}
	calls := h.editor.Calls()
	if len(calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(calls))
	}
	if calls[0].Hotspot == nil || calls[0].Hotspot.X != 3 || calls[0].Hotspot.Y != 4 {
		t.Errorf("hotspot = %+v", calls[0].Hotspot)
	}
}

func TestStyle(t *testing.T) {
	dir := t.TempDir()
	path := writePNG(t, dir, 8, 8)
	h := newHarness(t, "upload "+path+"\nstyle "+path+"\nquit\n")
	h.run(t)

	if h.mgr.Len() != 2 {
		t.Errorf("Len() = %d, want 2", h.mgr.Len())
	}
}

func TestNoEditor(t *testing.T) {
	path := writePNG(t, t.TempDir(), 8, 8)
	h := newHarness(t, "upload "+path+"\nupscale\nquit\n", func(c *Config) {
		c.Editor = nil
	})
	h.run(t)

	if !strings.Contains(h.errBuf.String(), "AI editing needs an API key") {
		t.Errorf("stderr = %q", h.errBuf.String())
	}
	if h.mgr.Len() != 1 {
		t.Errorf("Len() = %d, want 1", h.mgr.Len())
	}
}

func TestCommandsNeedSession(t *testing.T) {
	for _, line := range []string{"filter x", "background", "crop 0 0 1 1", "rotate cw", "save", "generate image x", "model3d"} {
		t.Run(line, func(t *testing.T) {
			h := newHarness(t, "")
			err := h.repl.execute(context.Background(), line)
			if !errors.Is(err, session.ErrNoSession) {
				t.Errorf("execute(%q) error = %v, want ErrNoSession", line, err)
			}
		})
	}
}

func TestUsageErrors(t *testing.T) {
	for _, line := range []string{"upload", "generate", "generate video cat", "filter", "crop 1 2", "rotate 45", "retouch 1 2"} {
		t.Run(line, func(t *testing.T) {
			h := newHarness(t, "")
			err := h.repl.execute(context.Background(), line)
			if err == nil || !strings.Contains(err.Error(), "usage") {
				t.Errorf("execute(%q) error = %v, want usage error", line, err)
			}
		})
	}
}

func TestSaveAndModel3D(t *testing.T) {
	dir := t.TempDir()
	path := writePNG(t, t.TempDir(), 8, 8)
	t.Chdir(dir)

	h := newHarness(t, "upload "+path+"\nsave out.png\nsave\nmodel3d mesh.obj\nsave ../escape.png\ncost\nquit\n")
	h.run(t)

	for _, name := range []string{"out.png", "photo.png", "mesh.obj"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("%s not written: %v", name, err)
		}
	}
	if !strings.Contains(h.errBuf.String(), "invalid output path") {
		t.Errorf("stderr = %q", h.errBuf.String())
	}
	if h.mgr.Len() != 1 {
		t.Errorf("model3d changed history: Len() = %d", h.mgr.Len())
	}

	output := h.out.String()
	if !strings.Contains(output, "3 vertices, 1 faces") {
		t.Error("model3d summary missing")
	}
	if !strings.Contains(output, "model3d") || !strings.Contains(output, "Total: $") {
		t.Errorf("cost output missing:\n%s", output)
	}
}

func TestShow(t *testing.T) {
	path := writePNG(t, t.TempDir(), 8, 8)
	screen := &bytes.Buffer{}
	h := newHarness(t, "upload "+path+"\nshow original\nquit\n", func(c *Config) {
		c.Displayer = display.New(screen)
	})
	h.run(t)

	if got := strings.Count(screen.String(), "\x1b_G"); got < 2 {
		t.Errorf("expected an image on upload and on show, got %d", got)
	}

	h = newHarness(t, "show\nquit\n")
	h.run(t)
	if !strings.Contains(h.errBuf.String(), "inline display is disabled") {
		t.Errorf("stderr = %q", h.errBuf.String())
	}
}

func TestShowAll(t *testing.T) {
	path := writePNG(t, t.TempDir(), 8, 4)
	screen := &bytes.Buffer{}
	h := newHarness(t, "upload "+path+"\nrotate cw\nshow all\nquit\n", func(c *Config) {
		c.Displayer = display.New(screen)
	})
	h.run(t)

	out := screen.String()
	if !strings.Contains(out, "[0] photo.png") || !strings.Contains(out, "[1] rotated-") {
		t.Errorf("captions missing from %q", out)
	}
	if got := strings.Count(out, "\x1b_G"); got != 4 {
		t.Errorf("got %d images, want 4", got)
	}
}

func TestCost_Empty(t *testing.T) {
	h := newHarness(t, "cost\nquit\n")
	h.run(t)
	if !strings.Contains(h.out.String(), "No costs recorded yet.") {
		t.Errorf("output = %q", h.out.String())
	}
}

func TestHistoryCommand_Empty(t *testing.T) {
	h := newHarness(t, "history\nquit\n")
	h.run(t)
	if !strings.Contains(h.out.String(), "No history yet") {
		t.Errorf("output = %q", h.out.String())
	}
}

func TestPersistFailureIsWarning(t *testing.T) {
	path := writePNG(t, t.TempDir(), 8, 8)
	h := newHarness(t, "upload "+path+"\nquit\n", func(c *Config) {
		c.SessionMgr = session.NewManager(failingSlot{session.NewMemorySlot()})
	})
	h.run(t)

	if h.mgr.Len() != 1 {
		t.Errorf("Len() = %d, want 1", h.mgr.Len())
	}
	if !strings.Contains(h.errBuf.String(), "Warning: failed to persist session: quota exceeded") {
		t.Errorf("stderr = %q", h.errBuf.String())
	}
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{
			name:  "simple command",
			input: "filter sepia",
			want:  []string{"filter", "sepia"},
		},
		{
			name:  "double quotes",
			input: `filter "hello world"`,
			want:  []string{"filter", "hello world"},
		},
		{
			name:  "single quotes",
			input: `upload '/tmp/my photo.png'`,
			want:  []string{"upload", "/tmp/my photo.png"},
		},
		{
			name:  "multiple arguments",
			input: "retouch 10 20 remove",
			want:  []string{"retouch", "10", "20", "remove"},
		},
		{
			name:  "empty input",
			input: "",
			want:  nil,
		},
		{
			name:  "whitespace only",
			input: "   ",
			want:  nil,
		},
		{
			name:  "multiple spaces",
			input: "crop    1    2",
			want:  []string{"crop", "1", "2"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseCommand(tt.input)
			if len(got) != len(tt.want) {
				t.Errorf("parseCommand() = %v, want %v", got, tt.want)
				return
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("parseCommand()[%d] = %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		maxLen int
		want   string
	}{
		{
			name:   "short string",
			input:  "hello",
			maxLen: 10,
			want:   "hello",
		},
		{
			name:   "exact length",
			input:  "hello",
			maxLen: 5,
			want:   "hello",
		},
		{
			name:   "needs truncation",
			input:  "hello world",
			maxLen: 8,
			want:   "hello...",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncate(tt.input, tt.maxLen)
			if got != tt.want {
				t.Errorf("truncate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCommand_Interface(t *testing.T) {
	for _, cmd := range allCommands() {
		t.Run(cmd.Name(), func(t *testing.T) {
			if cmd.Name() == "" {
				t.Error("Name() returned empty string")
			}
			if cmd.Description() == "" {
				t.Error("Description() returned empty string")
			}
			if cmd.Usage() == "" {
				t.Error("Usage() returned empty string")
			}
		})
	}
}
