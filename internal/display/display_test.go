package display

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"strings"
	"testing"

	"github.com/manash/pixshop/pkg/models"
)

func encodedImage(t *testing.T, mime string) *models.Artifact {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.NRGBA{G: 255, A: 255})

	var buf bytes.Buffer
	var err error
	if mime == models.MimeJPEG {
		err = jpeg.Encode(&buf, img, nil)
	} else {
		err = png.Encode(&buf, img)
	}
	if err != nil {
		t.Fatalf("encode error: %v", err)
	}
	a, err := models.NewArtifact("preview."+models.ExtensionFor(mime), mime, buf.Bytes())
	if err != nil {
		t.Fatalf("NewArtifact() error: %v", err)
	}
	return a
}

func TestDisplayer_Display_PNG(t *testing.T) {
	var buf bytes.Buffer
	a := encodedImage(t, models.MimePNG)

	if err := New(&buf).Display(a); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	output := buf.String()
	if !strings.Contains(output, "\x1b_G") {
		t.Error("output should contain Kitty escape sequence")
	}
	if !strings.Contains(output, base64.StdEncoding.EncodeToString(a.Bytes())) {
		t.Error("PNG data should be transmitted unchanged")
	}
	if !strings.Contains(output, "c=60") {
		t.Error("output should use the default column width")
	}
}

func TestDisplayer_Display_ConvertsJPEG(t *testing.T) {
	var buf bytes.Buffer
	a := encodedImage(t, models.MimeJPEG)

	if err := New(&buf).WithColumns(0).Display(a); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	output := buf.String()
	if strings.Contains(output, base64.StdEncoding.EncodeToString(a.Bytes())) {
		t.Error("JPEG data should be converted before transmission")
	}
	if strings.Contains(output, "c=") {
		t.Error("zero columns should omit the placement width")
	}
}

func TestDisplayer_Display_Nil(t *testing.T) {
	var buf bytes.Buffer
	if err := New(&buf).Display(nil); err == nil {
		t.Error("expected error for nil artifact")
	}
}

func TestDisplayer_Display_Undecodable(t *testing.T) {
	var buf bytes.Buffer
	a, _ := models.NewArtifact("bad.jpeg", models.MimeJPEG, []byte("not really a jpeg"))

	if err := New(&buf).Display(a); err == nil {
		t.Error("expected error for undecodable image")
	}
	if buf.Len() != 0 {
		t.Error("nothing should be written when conversion fails")
	}
}

func TestDisplayer_DisplayAll(t *testing.T) {
	var buf bytes.Buffer
	entries := []*models.Artifact{encodedImage(t, models.MimePNG), encodedImage(t, models.MimeJPEG)}

	if err := New(&buf).DisplayAll(entries); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	output := buf.String()
	if escCount := strings.Count(output, "\x1b_G"); escCount != 2 {
		t.Errorf("expected 2 escape sequences, got %d", escCount)
	}
	if !strings.Contains(output, "[0] preview.png") || !strings.Contains(output, "[1] preview.jpeg") {
		t.Errorf("missing captions in %q", output)
	}
}

func TestDisplayer_DisplayAll_Empty(t *testing.T) {
	var buf bytes.Buffer
	if err := New(&buf).DisplayAll(nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if buf.Len() != 0 {
		t.Error("expected no output for empty history")
	}
}

func TestIsTerminalSupported(t *testing.T) {
	tests := []struct {
		name     string
		envVars  map[string]string
		expected bool
	}{
		{
			name:     "no env vars",
			envVars:  map[string]string{},
			expected: false,
		},
		{
			name:     "kitty terminal program",
			envVars:  map[string]string{"TERM_PROGRAM": "kitty"},
			expected: true,
		},
		{
			name:     "ghostty terminal program",
			envVars:  map[string]string{"TERM_PROGRAM": "ghostty"},
			expected: true,
		},
		{
			name:     "iterm terminal program",
			envVars:  map[string]string{"TERM_PROGRAM": "iTerm.app"},
			expected: true,
		},
		{
			name:     "wezterm terminal program",
			envVars:  map[string]string{"TERM_PROGRAM": "WezTerm"},
			expected: true,
		},
		{
			name:     "kitty window id",
			envVars:  map[string]string{"KITTY_WINDOW_ID": "123"},
			expected: true,
		},
		{
			name:     "iterm session id",
			envVars:  map[string]string{"ITERM_SESSION_ID": "abc"},
			expected: true,
		},
		{
			name:     "term contains kitty",
			envVars:  map[string]string{"TERM": "xterm-kitty"},
			expected: true,
		},
		{
			name:     "term contains ghostty",
			envVars:  map[string]string{"TERM": "ghostty"},
			expected: true,
		},
		{
			name:     "unsupported terminal",
			envVars:  map[string]string{"TERM_PROGRAM": "gnome-terminal"},
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Unsetenv("TERM_PROGRAM")
			os.Unsetenv("KITTY_WINDOW_ID")
			os.Unsetenv("ITERM_SESSION_ID")
			os.Unsetenv("TERM")

			for k, v := range tt.envVars {
				os.Setenv(k, v)
			}

			result := IsTerminalSupported()
			if result != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, result)
			}
		})
	}
}
