package main

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
	pximage "github.com/manash/pixshop/internal/image"
	"github.com/manash/pixshop/internal/keys"
	"github.com/manash/pixshop/internal/provider"
	"github.com/manash/pixshop/internal/provider/providertest"
	"github.com/manash/pixshop/internal/session"
	"github.com/manash/pixshop/pkg/models"
)

// resetFlags resets all global flags to their default values.
func resetFlags() {
	flagConfig = ""
	flagAPIKey = ""
	flagYes = false
	flagDebug = false
	flagNoDisplay = false
}

type testApp struct {
	*App
	out    *bytes.Buffer
	errOut *bytes.Buffer
	editor *providertest.Editor
	slot   *session.MemorySlot
	store  *keys.Store
}

// newTestApp creates an App with a fake editor, an in-memory session slot
// and a key store in a temp dir. Config is read from an empty temp dir.
func newTestApp(t *testing.T, input string) *testApp {
	t.Helper()
	resetFlags()
	t.Setenv("PIXSHOP_CONFIG_DIR", t.TempDir())

	ta := &testApp{
		out:    &bytes.Buffer{},
		errOut: &bytes.Buffer{},
		editor: providertest.New(),
		slot:   session.NewMemorySlot(),
		store:  keys.NewStoreAt(t.TempDir()),
	}
	ta.App = &App{
		In:  strings.NewReader(input),
		Out: ta.out,
		Err: ta.errOut,
		GetEnv: func(string) string {
			return ""
		},
		KeyStore: func() (*keys.Store, error) {
			return ta.store, nil
		},
		NewEditor: func(cfg *provider.Config) (provider.Editor, error) {
			return ta.editor, nil
		},
		OpenSlot: func(session.SlotConfig) (session.Slot, error) {
			return ta.slot, nil
		},
		NewSaver:     pximage.NewSaver,
		NewDisplayer: display.New,
		CanDisplay: func() bool {
			return false
		},
	}
	return ta
}

func (ta *testApp) run(args ...string) error {
	cmd := newRootCmd(ta.App)
	cmd.SetArgs(args)
	return cmd.Execute()
}

// seed stores n entries in the slot, leaving the cursor on the last one.
func (ta *testApp) seed(t *testing.T, n int) {
	t.Helper()
	ctx := context.Background()
	mgr := session.NewManager(ta.slot)
	for i := 0; i < n; i++ {
		a, err := models.NewArtifact("step.png", models.MimePNG, []byte{byte(i + 1), 2, 3})
		if err != nil {
			t.Fatal(err)
		}
		if i == 0 {
			err = mgr.StartNew(ctx, a)
		} else {
			err = mgr.Append(ctx, a)
		}
		if err != nil {
			t.Fatal(err)
		}
	}
}

func writePNG(t *testing.T, dir string) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
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

func TestDefaultApp(t *testing.T) {
	app := DefaultApp()

	if app.In == nil || app.Out == nil || app.Err == nil {
		t.Error("DefaultApp() has nil streams")
	}
	if app.GetEnv == nil {
		t.Error("DefaultApp() GetEnv is nil")
	}
	if app.KeyStore == nil {
		t.Error("DefaultApp() KeyStore is nil")
	}
	if app.NewEditor == nil {
		t.Error("DefaultApp() NewEditor is nil")
	}
	if app.OpenSlot == nil {
		t.Error("DefaultApp() OpenSlot is nil")
	}
	if app.NewSaver == nil {
		t.Error("DefaultApp() NewSaver is nil")
	}
	if app.NewDisplayer == nil {
		t.Error("DefaultApp() NewDisplayer is nil")
	}
	if app.CanDisplay == nil {
		t.Error("DefaultApp() CanDisplay is nil")
	}
}

func TestApp_DefaultNewEditor(t *testing.T) {
	app := DefaultApp()
	e, err := app.NewEditor(&provider.Config{APIKey: "test-key", TimeoutSec: 5})
	if err != nil {
		t.Fatalf("NewEditor() error = %v", err)
	}
	if e.Name() != models.ProviderGemini {
		t.Errorf("NewEditor() name = %s, want gemini", e.Name())
	}
}

func TestNewRootCmd(t *testing.T) {
	ta := newTestApp(t, "")
	cmd := newRootCmd(ta.App)

	if cmd.Use != "pixshop" {
		t.Errorf("Use = %s, want 'pixshop'", cmd.Use)
	}

	for _, name := range []string{"config", "api-key", "yes", "debug", "no-display"} {
		if cmd.PersistentFlags().Lookup(name) == nil {
			t.Errorf("flag --%s not found", name)
		}
	}

	subs := map[string]bool{}
	for _, c := range cmd.Commands() {
		subs[c.Name()] = true
	}
	for _, name := range []string{"generate", "session", "serve", "batch", "keys"} {
		if !subs[name] {
			t.Errorf("subcommand %s not found", name)
		}
	}
}

func TestRootCmd_Version(t *testing.T) {
	ta := newTestApp(t, "")
	if err := ta.run("--version"); err != nil {
		t.Fatalf("--version error = %v", err)
	}
	if !strings.Contains(ta.out.String(), version) {
		t.Errorf("output = %q, want version %q", ta.out.String(), version)
	}
}

func TestRootCmd_RejectsArgs(t *testing.T) {
	ta := newTestApp(t, "")
	if err := ta.run("stray"); err == nil {
		t.Error("expected error for positional argument")
	}
}

func TestRootCmd_BadConfig(t *testing.T) {
	ta := newTestApp(t, "")
	if err := ta.run("--config", filepath.Join(t.TempDir(), "missing.yaml"), "session", "show"); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestRunREPL_WithoutKey(t *testing.T) {
	ta := newTestApp(t, "help\nquit\n")
	if err := ta.run(); err != nil {
		t.Fatalf("run() error = %v", err)
	}

	out := ta.out.String()
	if !strings.Contains(out, "pixshop interactive mode") {
		t.Errorf("output missing welcome: %q", out)
	}
	if !strings.Contains(out, "Goodbye!") {
		t.Errorf("output missing goodbye: %q", out)
	}
	if !strings.Contains(ta.errOut.String(), "AI edits are disabled") {
		t.Errorf("stderr = %q, want disabled warning", ta.errOut.String())
	}
}

func TestRunREPL_RestoresSession(t *testing.T) {
	ta := newTestApp(t, "quit\n")
	ta.seed(t, 2)

	if err := ta.run("--api-key", "k"); err != nil {
		t.Fatalf("run() error = %v", err)
	}
	if !strings.Contains(ta.out.String(), "Restored session: 2 image(s), at 2") {
		t.Errorf("output = %q", ta.out.String())
	}
}

func TestRunREPL_EditAndUndo(t *testing.T) {
	dir := t.TempDir()
	photo := writePNG(t, dir)
	ta := newTestApp(t, "upload "+photo+"\nfilter sepia\nundo\nquit\n")

	if err := ta.run("--api-key", "k", "--yes"); err != nil {
		t.Fatalf("run() error = %v", err)
	}
	if got := len(ta.editor.Calls()); got != 1 {
		t.Errorf("editor calls = %d, want 1", got)
	}

	mgr := session.NewManager(ta.slot)
	mgr.LoadInitial(context.Background())
	if mgr.Len() != 2 || mgr.Cursor() != 0 {
		t.Errorf("saved session len=%d cursor=%d, want 2 and 0", mgr.Len(), mgr.Cursor())
	}
}

func TestRunGenerate_NoAPIKey(t *testing.T) {
	ta := newTestApp(t, "")
	err := ta.run("generate", "a cat")
	if err == nil || !strings.Contains(err.Error(), "API key required") {
		t.Errorf("error = %v, want API key required", err)
	}
	if len(ta.editor.Calls()) != 0 {
		t.Error("editor should not be called without a key")
	}
}

func TestRunGenerate_APIKeyFromEnv(t *testing.T) {
	ta := newTestApp(t, "")
	ta.GetEnv = func(name string) string {
		if name == "GEMINI_API_KEY" {
			return "env-key"
		}
		return ""
	}
	output := filepath.Join(t.TempDir(), "cat.png")

	if err := ta.run("generate", "a cat", "-o", output); err != nil {
		t.Fatalf("generate error = %v", err)
	}
	if _, err := os.Stat(output); err != nil {
		t.Errorf("output not written: %v", err)
	}
}

func TestRunGenerate_Success(t *testing.T) {
	ta := newTestApp(t, "")
	output := filepath.Join(t.TempDir(), "cat.png")

	if err := ta.run("--api-key", "k", "generate", "a cat", "-o", output); err != nil {
		t.Fatalf("generate error = %v", err)
	}

	calls := ta.editor.Calls()
	if len(calls) != 1 || calls[0].Operation != models.OpGenerateFromText || calls[0].Prompt != "a cat" {
		t.Errorf("calls = %+v", calls)
	}
	out := ta.out.String()
	if !strings.Contains(out, "Saved: "+output) {
		t.Errorf("output missing saved path: %q", out)
	}
	if !strings.Contains(out, "Cost: $") {
		t.Errorf("output missing cost: %q", out)
	}

	// generate never touches the session
	if _, err := ta.slot.Get(context.Background(), session.SessionKey); !errors.Is(err, session.ErrSlotEmpty) {
		t.Errorf("slot Get() error = %v, want ErrSlotEmpty", err)
	}
}

func TestRunGenerate_ProviderError(t *testing.T) {
	ta := newTestApp(t, "")
	ta.editor.Err = provider.ErrRequestBlocked

	err := ta.run("--api-key", "k", "generate", "a cat", "-o", filepath.Join(t.TempDir(), "x.png"))
	if !errors.Is(err, provider.ErrRequestBlocked) {
		t.Errorf("error = %v, want ErrRequestBlocked", err)
	}
}

func TestRunGenerate_RequiresPrompt(t *testing.T) {
	ta := newTestApp(t, "")
	if err := ta.run("--api-key", "k", "generate"); err == nil {
		t.Error("expected error without prompt")
	}
}

func TestSessionShow_Empty(t *testing.T) {
	ta := newTestApp(t, "")
	if err := ta.run("session", "show"); err != nil {
		t.Fatalf("session show error = %v", err)
	}
	out := ta.out.String()
	if !strings.Contains(out, "Storage: file") {
		t.Errorf("output missing storage: %q", out)
	}
	if !strings.Contains(out, "No saved session.") {
		t.Errorf("output = %q", out)
	}
}

func TestSessionShow_Entries(t *testing.T) {
	ta := newTestApp(t, "")
	ta.seed(t, 3)

	if err := ta.run("session", "show"); err != nil {
		t.Fatalf("session show error = %v", err)
	}
	out := ta.out.String()
	for _, want := range []string{"Entries: 3 (current: 3)", "> [3]", "  [1]", "Total size: 9 B"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q: %q", want, out)
		}
	}
}

func TestSessionClear(t *testing.T) {
	ta := newTestApp(t, "")
	ta.seed(t, 2)

	if err := ta.run("session", "clear"); err != nil {
		t.Fatalf("session clear error = %v", err)
	}
	if !strings.Contains(ta.out.String(), "Session cleared.") {
		t.Errorf("output = %q", ta.out.String())
	}
	if _, err := ta.slot.Get(context.Background(), session.SessionKey); !errors.Is(err, session.ErrSlotEmpty) {
		t.Errorf("slot Get() error = %v, want ErrSlotEmpty", err)
	}
}

func TestSessionExport(t *testing.T) {
	ta := newTestApp(t, "")
	ta.seed(t, 2)
	dir := filepath.Join(t.TempDir(), "export")

	if err := ta.run("session", "export", dir); err != nil {
		t.Fatalf("session export error = %v", err)
	}
	files, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 2 {
		t.Errorf("exported %d files, want 2", len(files))
	}
	if strings.Count(ta.out.String(), "Saved: ") != 2 {
		t.Errorf("output = %q", ta.out.String())
	}
}

func TestSessionExport_NoSession(t *testing.T) {
	ta := newTestApp(t, "")
	err := ta.run("session", "export", t.TempDir())
	if !errors.Is(err, session.ErrNoSession) {
		t.Errorf("error = %v, want ErrNoSession", err)
	}
}

func writeItems(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "items.txt")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRunBatch(t *testing.T) {
	dir := t.TempDir()
	photo := writePNG(t, dir)
	items := writeItems(t, dir, "# edits\nfilter | sepia | "+photo+"\nupscale | | "+photo+"\n")
	outDir := filepath.Join(dir, "out")
	ta := newTestApp(t, "")
	ta.seed(t, 1)

	if err := ta.run("--api-key", "k", "batch", items, "-o", outDir, "-p", "1"); err != nil {
		t.Fatalf("batch error = %v", err)
	}

	for _, name := range []string{"001-filter-sepia.png", "002-upscale.png"} {
		if _, err := os.Stat(filepath.Join(outDir, name)); err != nil {
			t.Errorf("missing %s: %v", name, err)
		}
	}
	if !strings.Contains(ta.out.String(), "Successful: 2/2 items") {
		t.Errorf("output = %q", ta.out.String())
	}

	// batch leaves the interactive session alone
	mgr := session.NewManager(ta.slot)
	mgr.LoadInitial(context.Background())
	if mgr.Len() != 1 {
		t.Errorf("session len = %d, want 1", mgr.Len())
	}
}

func TestRunBatch_StopOnError(t *testing.T) {
	dir := t.TempDir()
	photo := writePNG(t, dir)
	items := writeItems(t, dir, "filter | sepia | "+photo+"\nupscale | | "+photo+"\n")
	ta := newTestApp(t, "")
	ta.editor.Err = provider.ErrNoImageReturned

	err := ta.run("--api-key", "k", "batch", items, "-o", filepath.Join(dir, "out"), "-p", "1", "--stop-on-error")
	if !errors.Is(err, provider.ErrNoImageReturned) {
		t.Errorf("error = %v, want ErrNoImageReturned", err)
	}
	if !strings.Contains(ta.out.String(), "Skipped: 1") {
		t.Errorf("output = %q", ta.out.String())
	}
}

func TestRunBatch_Errors(t *testing.T) {
	dir := t.TempDir()
	photo := writePNG(t, dir)
	items := writeItems(t, dir, "filter | sepia | "+photo+"\n")

	tests := []struct {
		name string
		args []string
	}{
		{"no api key", []string{"batch", items}},
		{"zero parallel", []string{"--api-key", "k", "batch", items, "-p", "0"}},
		{"missing file", []string{"--api-key", "k", "batch", filepath.Join(dir, "nope.txt")}},
		{"no file argument", []string{"--api-key", "k", "batch"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ta := newTestApp(t, "")
			if err := ta.run(tt.args...); err == nil {
				t.Error("expected error")
			}
			if len(ta.editor.Calls()) != 0 {
				t.Error("editor should not be called")
			}
		})
	}
}

func TestServeCmd_Flags(t *testing.T) {
	ta := newTestApp(t, "")
	cmd := newServeCmd(ta.App)
	if cmd.Flags().Lookup("addr") == nil {
		t.Error("flag --addr not found")
	}
	if err := ta.run("serve", "extra"); err == nil {
		t.Error("expected error for positional argument")
	}
}

func TestKeys_SetGetListDelete(t *testing.T) {
	ta := newTestApp(t, "")

	if err := ta.run("keys", "set", "abcd1234efgh5678"); err != nil {
		t.Fatalf("keys set error = %v", err)
	}
	if got, _ := ta.store.Get("gemini"); got != "abcd1234efgh5678" {
		t.Errorf("stored key = %q", got)
	}
	if strings.Contains(ta.out.String(), "abcd1234efgh5678") {
		t.Error("keys set printed the full key")
	}

	ta.out.Reset()
	if err := ta.run("keys", "set", "abcd1234efgh5678"); err != nil {
		t.Fatalf("second keys set error = %v", err)
	}
	if !strings.HasPrefix(ta.out.String(), "Replaced gemini key") {
		t.Errorf("second keys set output = %q", ta.out.String())
	}

	ta.out.Reset()
	if err := ta.run("keys", "get"); err != nil {
		t.Fatalf("keys get error = %v", err)
	}
	if !strings.Contains(ta.out.String(), keys.MaskKey("abcd1234efgh5678")) {
		t.Errorf("keys get output = %q", ta.out.String())
	}

	ta.out.Reset()
	if err := ta.run("keys", "list"); err != nil {
		t.Fatalf("keys list error = %v", err)
	}
	if !strings.Contains(ta.out.String(), "gemini") {
		t.Errorf("keys list output = %q", ta.out.String())
	}

	ta.out.Reset()
	if err := ta.run("keys", "delete"); err != nil {
		t.Fatalf("keys delete error = %v", err)
	}
	if !strings.Contains(ta.out.String(), "Deleted gemini key.") {
		t.Errorf("keys delete output = %q", ta.out.String())
	}

	ta.out.Reset()
	if err := ta.run("keys", "delete"); err != nil {
		t.Fatalf("second keys delete error = %v", err)
	}
	if !strings.Contains(ta.out.String(), "No stored key") {
		t.Errorf("second delete output = %q", ta.out.String())
	}

	if err := ta.run("keys", "get"); !errors.Is(err, keys.ErrKeyNotFound) {
		t.Errorf("keys get after delete error = %v, want ErrKeyNotFound", err)
	}
}

func TestKeys_SetFromInput(t *testing.T) {
	ta := newTestApp(t, "  piped-key-0001  \n")

	if err := ta.run("keys", "set", "--provider", "other"); err != nil {
		t.Fatalf("keys set error = %v", err)
	}
	if got, _ := ta.store.Get("other"); got != "piped-key-0001" {
		t.Errorf("stored key = %q, want piped-key-0001", got)
	}
}

func TestKeys_SetEmptyInput(t *testing.T) {
	ta := newTestApp(t, "")
	if err := ta.run("keys", "set"); err == nil {
		t.Error("expected error for empty input")
	}
}

func TestKeys_ListEmpty(t *testing.T) {
	ta := newTestApp(t, "")
	if err := ta.run("keys", "list"); err != nil {
		t.Fatalf("keys list error = %v", err)
	}
	if !strings.Contains(ta.out.String(), "No stored keys.") {
		t.Errorf("output = %q", ta.out.String())
	}
}

func TestStoredKeyUsedForGenerate(t *testing.T) {
	ta := newTestApp(t, "")
	if err := ta.store.Set("gemini", "stored-key-123"); err != nil {
		t.Fatal(err)
	}
	var gotKey string
	ta.NewEditor = func(cfg *provider.Config) (provider.Editor, error) {
		gotKey = cfg.APIKey
		return ta.editor, nil
	}

	if err := ta.run("generate", "a cat", "-o", filepath.Join(t.TempDir(), "cat.png")); err != nil {
		t.Fatalf("generate error = %v", err)
	}
	if gotKey != "stored-key-123" {
		t.Errorf("editor key = %q, want stored-key-123", gotKey)
	}
}

func TestPricing_SetShowReset(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("USERPROFILE", home)
	ta := newTestApp(t, "")

	if err := ta.run("pricing", "set", "imagen-4.0-generate-001", "0.05"); err != nil {
		t.Fatalf("pricing set error = %v", err)
	}

	ta.out.Reset()
	if err := ta.run("pricing"); err != nil {
		t.Fatalf("pricing error = %v", err)
	}
	out := ta.out.String()
	if !strings.Contains(out, "Overrides") || !strings.Contains(out, "$0.0500") {
		t.Errorf("pricing output = %q", out)
	}

	ta.out.Reset()
	if err := ta.run("pricing", "reset"); err != nil {
		t.Fatalf("pricing reset error = %v", err)
	}
	ta.out.Reset()
	if err := ta.run("pricing"); err != nil {
		t.Fatalf("pricing error = %v", err)
	}
	if !strings.Contains(ta.out.String(), "No overrides set.") {
		t.Errorf("pricing output after reset = %q", ta.out.String())
	}
}

func TestPricing_SetInvalid(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	ta := newTestApp(t, "")

	if err := ta.run("pricing", "set", "m", "cheap"); err == nil {
		t.Error("expected error for non-numeric price")
	}
	if err := ta.run("pricing", "set", "--", "m", "-1"); err == nil {
		t.Error("expected error for negative price")
	}
}
