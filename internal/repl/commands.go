package repl

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/manash/pixshop/internal/image"
	"github.com/manash/pixshop/internal/imaging"
	"github.com/manash/pixshop/internal/provider"
	"github.com/manash/pixshop/internal/security"
	"github.com/manash/pixshop/internal/session"
	"github.com/manash/pixshop/pkg/models"
)

type Command interface {
	Name() string
	Aliases() []string
	Description() string
	Usage() string
	Execute(ctx context.Context, r *REPL, args []string) error
}

func allCommands() []Command {
	return []Command{
		&UploadCommand{},
		&GenerateCommand{},
		&RetouchCommand{},
		&editCommand{
			name: "filter", usage: "filter <prompt>", op: models.OpFilter,
			description: "Apply a stylistic filter to the whole image",
		},
		&editCommand{
			name: "adjust", usage: "adjust <prompt>", op: models.OpAdjust,
			description: "Apply a photorealistic global adjustment",
		},
		&editCommand{
			name: "background", aliases: []string{"bg"}, usage: "background", op: models.OpRemoveBackground,
			description: "Remove the background, leaving the subject on transparency",
		},
		&editCommand{
			name: "upscale", usage: "upscale", op: models.OpUpscale,
			description: "Increase resolution and detail",
		},
		&StyleCommand{},
		&Model3DCommand{},
		&CropCommand{},
		&RotateCommand{},
		&UndoCommand{},
		&RedoCommand{},
		&ResetCommand{},
		&NewCommand{},
		&SaveCommand{},
		&ShowCommand{},
		&HistoryCommand{},
		&CostCommand{},
		&HelpCommand{},
		&QuitCommand{},
	}
}

func (r *REPL) registerCommands() {
	for _, cmd := range allCommands() {
		r.commands[cmd.Name()] = cmd
		for _, alias := range cmd.Aliases() {
			r.commands[alias] = cmd
		}
	}
}

// applyEdit runs an AI operation and records the result. A failed call
// leaves the history as it was.
func (r *REPL) applyEdit(ctx context.Context, req provider.Request, startNew bool) error {
	fmt.Fprintf(r.out, "Working (%s)...\n", req.Operation)
	result, err := provider.Apply(ctx, r.editor, req)
	if err != nil {
		return fmt.Errorf("%s failed: %w", req.Operation, err)
	}
	charge := r.ledger.Record(req.Operation)
	if err := r.commit(ctx, result, startNew); err != nil {
		return err
	}
	fmt.Fprintf(r.out, "Cost: $%.4f (%s)\n", charge.Amount, charge.Model)
	return nil
}

// UploadCommand starts a new session from a file or URL
type UploadCommand struct{}

func (c *UploadCommand) Name() string      { return "upload" }
func (c *UploadCommand) Aliases() []string { return []string{"open", "o"} }
func (c *UploadCommand) Description() string {
	return "Start a new session from an image file or https URL"
}
func (c *UploadCommand) Usage() string { return "upload <path|url>" }

func (c *UploadCommand) Execute(ctx context.Context, r *REPL, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: %s", c.Usage())
	}
	a, err := r.saver.Load(ctx, args[0])
	if err != nil {
		return fmt.Errorf("upload failed: %w", err)
	}
	return r.commit(ctx, a, true)
}

// GenerateCommand creates an image from text, or reimagines the current one
type GenerateCommand struct{}

func (c *GenerateCommand) Name() string      { return "generate" }
func (c *GenerateCommand) Aliases() []string { return []string{"gen", "g"} }
func (c *GenerateCommand) Description() string {
	return "Generate from text (new session) or from the current image"
}
func (c *GenerateCommand) Usage() string { return "generate <text|image> <prompt>" }

func (c *GenerateCommand) Execute(ctx context.Context, r *REPL, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: %s", c.Usage())
	}
	if err := r.requireEditor(); err != nil {
		return err
	}
	prompt := strings.Join(args[1:], " ")

	switch strings.ToLower(args[0]) {
	case "text":
		return r.applyEdit(ctx, provider.Request{Operation: models.OpGenerateFromText, Prompt: prompt}, true)
	case "image":
		cur, err := r.current()
		if err != nil {
			return err
		}
		return r.applyEdit(ctx, provider.Request{Operation: models.OpGenerateFromImage, Prompt: prompt, Image: cur}, false)
	default:
		return fmt.Errorf("usage: %s", c.Usage())
	}
}

// RetouchCommand edits one point of the current image
type RetouchCommand struct{}

func (c *RetouchCommand) Name() string      { return "retouch" }
func (c *RetouchCommand) Aliases() []string { return []string{"edit", "e"} }
func (c *RetouchCommand) Description() string {
	return "Edit around a pixel of the current image"
}
func (c *RetouchCommand) Usage() string { return "retouch <x> <y> <prompt>" }

func (c *RetouchCommand) Execute(ctx context.Context, r *REPL, args []string) error {
	if len(args) < 3 {
		return fmt.Errorf("usage: %s", c.Usage())
	}
	if err := r.requireEditor(); err != nil {
		return err
	}
	x, errX := strconv.Atoi(args[0])
	y, errY := strconv.Atoi(args[1])
	if errX != nil || errY != nil {
		return fmt.Errorf("%w: coordinates must be integers", models.ErrInvalidHotspot)
	}
	cur, err := r.current()
	if err != nil {
		return err
	}
	spot := models.Hotspot{X: x, Y: y}
	if err := imaging.CheckHotspot(cur, spot); err != nil {
		return err
	}
	return r.applyEdit(ctx, provider.Request{
		Operation: models.OpRetouch,
		Prompt:    strings.Join(args[2:], " "),
		Image:     cur,
		Hotspot:   &spot,
	}, false)
}

// editCommand is a whole-image AI edit of the current entry.
type editCommand struct {
	name        string
	aliases     []string
	description string
	usage       string
	op          models.Operation
}

func (c *editCommand) Name() string        { return c.name }
func (c *editCommand) Aliases() []string   { return c.aliases }
func (c *editCommand) Description() string { return c.description }
func (c *editCommand) Usage() string       { return c.usage }

func (c *editCommand) Execute(ctx context.Context, r *REPL, args []string) error {
	prompt := strings.Join(args, " ")
	if c.op.NeedsPrompt() && strings.TrimSpace(prompt) == "" {
		return fmt.Errorf("usage: %s", c.usage)
	}
	if err := r.requireEditor(); err != nil {
		return err
	}
	cur, err := r.current()
	if err != nil {
		return err
	}
	return r.applyEdit(ctx, provider.Request{Operation: c.op, Prompt: prompt, Image: cur}, false)
}

// StyleCommand repaints the current image in the style of another
type StyleCommand struct{}

func (c *StyleCommand) Name() string        { return "style" }
func (c *StyleCommand) Aliases() []string   { return nil }
func (c *StyleCommand) Description() string { return "Transfer the style of another image" }
func (c *StyleCommand) Usage() string       { return "style <image-path|url>" }

func (c *StyleCommand) Execute(ctx context.Context, r *REPL, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: %s", c.Usage())
	}
	if err := r.requireEditor(); err != nil {
		return err
	}
	cur, err := r.current()
	if err != nil {
		return err
	}
	style, err := r.saver.Load(ctx, args[0])
	if err != nil {
		return fmt.Errorf("failed to load style image: %w", err)
	}
	return r.applyEdit(ctx, provider.Request{Operation: models.OpStyleTransfer, Image: cur, Style: style}, false)
}

// Model3DCommand writes an OBJ mesh of the current image
type Model3DCommand struct{}

func (c *Model3DCommand) Name() string        { return "model3d" }
func (c *Model3DCommand) Aliases() []string   { return []string{"3d"} }
func (c *Model3DCommand) Description() string { return "Export a 3D mesh (.obj) of the current image" }
func (c *Model3DCommand) Usage() string       { return "model3d [file.obj]" }

func (c *Model3DCommand) Execute(ctx context.Context, r *REPL, args []string) error {
	if len(args) > 1 {
		return fmt.Errorf("usage: %s", c.Usage())
	}
	if err := r.requireEditor(); err != nil {
		return err
	}
	cur, err := r.current()
	if err != nil {
		return err
	}

	name := "model.obj"
	if len(args) == 1 {
		name = args[0]
	}
	path, err := security.ResolveOutputPath("", name)
	if err != nil {
		return err
	}

	fmt.Fprintln(r.out, "Working (model3d)...")
	mesh, err := r.editor.Generate3DModel(ctx, cur)
	if err != nil {
		return fmt.Errorf("model3d failed: %w", err)
	}
	charge := r.ledger.RecordMesh(mesh)
	if err := r.saver.SaveMesh(mesh, path); err != nil {
		return err
	}
	fmt.Fprintf(r.out, "Saved: %s (%d vertices, %d faces)\n", path, mesh.VertexCount(), mesh.FaceCount())
	fmt.Fprintf(r.out, "Cost: $%.4f (%s)\n", charge.Amount, charge.Model)
	return nil
}

// CropCommand cuts a rectangle out of the current image
type CropCommand struct{}

func (c *CropCommand) Name() string        { return "crop" }
func (c *CropCommand) Aliases() []string   { return nil }
func (c *CropCommand) Description() string { return "Crop the current image (native pixels)" }
func (c *CropCommand) Usage() string       { return "crop <x> <y> <width> <height>" }

func (c *CropCommand) Execute(ctx context.Context, r *REPL, args []string) error {
	if len(args) != 4 {
		return fmt.Errorf("usage: %s", c.Usage())
	}
	vals := make([]int, 4)
	for i, s := range args {
		v, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("usage: %s", c.Usage())
		}
		vals[i] = v
	}
	cur, err := r.current()
	if err != nil {
		return err
	}
	out, err := imaging.Crop(cur, imaging.Rect{X: vals[0], Y: vals[1], Width: vals[2], Height: vals[3]})
	if err != nil {
		return err
	}
	return r.commit(ctx, out, false)
}

// RotateCommand turns the current image by a quarter or half turn
type RotateCommand struct{}

func (c *RotateCommand) Name() string        { return "rotate" }
func (c *RotateCommand) Aliases() []string   { return nil }
func (c *RotateCommand) Description() string { return "Rotate the current image" }
func (c *RotateCommand) Usage() string       { return "rotate <cw|ccw|180>" }

func (c *RotateCommand) Execute(ctx context.Context, r *REPL, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: %s", c.Usage())
	}
	var degrees int
	switch strings.ToLower(args[0]) {
	case "cw", "90":
		degrees = 90
	case "ccw", "-90", "270":
		degrees = -90
	case "180":
		degrees = 180
	default:
		return fmt.Errorf("usage: %s", c.Usage())
	}
	cur, err := r.current()
	if err != nil {
		return err
	}
	out, err := imaging.Rotate(cur, degrees)
	if err != nil {
		return err
	}
	return r.commit(ctx, out, false)
}

// UndoCommand moves back one entry
type UndoCommand struct{}

func (c *UndoCommand) Name() string        { return "undo" }
func (c *UndoCommand) Aliases() []string   { return []string{"u", "back"} }
func (c *UndoCommand) Description() string { return "Step back to the previous image" }
func (c *UndoCommand) Usage() string       { return "undo" }

func (c *UndoCommand) Execute(ctx context.Context, r *REPL, _ []string) error {
	if !r.sessionMgr.CanUndo() {
		return session.ErrNothingToUndo
	}
	if !r.confirm("Are you sure you want to undo the last edit?") {
		fmt.Fprintln(r.out, "Cancelled.")
		return nil
	}
	a, err := r.sessionMgr.Undo(ctx)
	if err := r.checkPersist(err); err != nil {
		return err
	}
	r.printPosition(a)
	r.show(a)
	return nil
}

// RedoCommand moves forward one entry
type RedoCommand struct{}

func (c *RedoCommand) Name() string        { return "redo" }
func (c *RedoCommand) Aliases() []string   { return []string{"r"} }
func (c *RedoCommand) Description() string { return "Step forward to the next image" }
func (c *RedoCommand) Usage() string       { return "redo" }

func (c *RedoCommand) Execute(ctx context.Context, r *REPL, _ []string) error {
	if !r.sessionMgr.CanRedo() {
		return session.ErrNothingToRedo
	}
	if !r.confirm("Are you sure you want to redo the last edit?") {
		fmt.Fprintln(r.out, "Cancelled.")
		return nil
	}
	a, err := r.sessionMgr.Redo(ctx)
	if err := r.checkPersist(err); err != nil {
		return err
	}
	r.printPosition(a)
	r.show(a)
	return nil
}

// ResetCommand returns to the original image
type ResetCommand struct{}

func (c *ResetCommand) Name() string      { return "reset" }
func (c *ResetCommand) Aliases() []string { return nil }
func (c *ResetCommand) Description() string {
	return "Go back to the original image (edits stay redoable)"
}
func (c *ResetCommand) Usage() string { return "reset" }

func (c *ResetCommand) Execute(ctx context.Context, r *REPL, _ []string) error {
	a, err := r.sessionMgr.ResetToOriginal(ctx)
	if err := r.checkPersist(err); err != nil {
		return err
	}
	r.printPosition(a)
	r.show(a)
	return nil
}

// NewCommand discards the session
type NewCommand struct{}

func (c *NewCommand) Name() string        { return "new" }
func (c *NewCommand) Aliases() []string   { return []string{"clear"} }
func (c *NewCommand) Description() string { return "Discard the session and start over" }
func (c *NewCommand) Usage() string       { return "new" }

func (c *NewCommand) Execute(ctx context.Context, r *REPL, _ []string) error {
	if err := r.sessionMgr.Clear(ctx); err != nil {
		return err
	}
	fmt.Fprintln(r.out, "Session cleared. Use 'upload' or 'generate text' to begin.")
	return nil
}

// SaveCommand saves the current image to a specified path
type SaveCommand struct{}

func (c *SaveCommand) Name() string        { return "save" }
func (c *SaveCommand) Aliases() []string   { return []string{"s", "download"} }
func (c *SaveCommand) Description() string { return "Save current image to a file" }
func (c *SaveCommand) Usage() string       { return "save [filename]" }

func (c *SaveCommand) Execute(_ context.Context, r *REPL, args []string) error {
	cur, err := r.current()
	if err != nil {
		return err
	}

	name := image.GenerateFilename(cur)
	if len(args) > 0 {
		name = args[0]
	}
	destPath, err := security.ResolveOutputPath("", name)
	if err != nil {
		return err
	}

	if err := r.saver.Save(cur, destPath); err != nil {
		return err
	}

	fmt.Fprintf(r.out, "Saved: %s\n", destPath)
	return nil
}

// ShowCommand displays the current image
type ShowCommand struct{}

func (c *ShowCommand) Name() string        { return "show" }
func (c *ShowCommand) Aliases() []string   { return []string{"display", "view"} }
func (c *ShowCommand) Description() string { return "Display the current, original or every image" }
func (c *ShowCommand) Usage() string       { return "show [original|all]" }

func (c *ShowCommand) Execute(_ context.Context, r *REPL, args []string) error {
	if r.displayer == nil {
		return fmt.Errorf("inline display is disabled")
	}
	a, err := r.current()
	if err != nil {
		return err
	}
	if len(args) > 0 {
		switch strings.ToLower(args[0]) {
		case "original":
			a, _ = r.sessionMgr.Original()
		case "all":
			return r.displayer.DisplayAll(r.sessionMgr.Entries())
		default:
			return fmt.Errorf("usage: %s", c.Usage())
		}
	}
	return r.displayer.Display(a)
}

// QuitCommand exits the REPL
type QuitCommand struct{}

func (c *QuitCommand) Name() string        { return "quit" }
func (c *QuitCommand) Aliases() []string   { return []string{"exit", "q"} }
func (c *QuitCommand) Description() string { return "Exit interactive mode" }
func (c *QuitCommand) Usage() string       { return "quit" }

func (c *QuitCommand) Execute(_ context.Context, r *REPL, _ []string) error {
	fmt.Fprintln(r.out, "Goodbye!")
	r.Stop()
	return nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
