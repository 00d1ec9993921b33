package batch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/manash/pixshop/internal/cost"
	"github.com/manash/pixshop/internal/image"
	"github.com/manash/pixshop/internal/provider"
	"github.com/manash/pixshop/internal/security"
	"github.com/manash/pixshop/pkg/models"
)

// ErrSkipped marks items that never ran because an earlier item failed
// with StopOnError set.
var ErrSkipped = errors.New("skipped after earlier failure")

type Result struct {
	Index     int
	Operation models.Operation
	Prompt    string
	Path      string
	Cost      float64
	Error     error
	Duration  time.Duration
}

type Options struct {
	OutputDir   string
	Parallel    int
	StopOnError bool
	// RunID prefixes the log lines of one run. Generated when empty.
	RunID string
}

// Processor applies batch items with bounded parallelism. It never touches
// the interactive session history.
type Processor struct {
	editor provider.Editor
	saver  *image.Saver
	ledger *cost.Ledger
	out    io.Writer
	err    io.Writer
	outMu  sync.Mutex
}

func NewProcessor(editor provider.Editor, saver *image.Saver, ledger *cost.Ledger, out, errOut io.Writer) *Processor {
	if ledger == nil {
		ledger = cost.NewLedger(nil, cost.Models{})
	}
	return &Processor{
		editor: editor,
		saver:  saver,
		ledger: ledger,
		out:    out,
		err:    errOut,
	}
}

func (p *Processor) printf(format string, args ...interface{}) {
	p.outMu.Lock()
	fmt.Fprintf(p.out, format, args...)
	p.outMu.Unlock()
}

func (p *Processor) errorf(format string, args ...interface{}) {
	p.outMu.Lock()
	fmt.Fprintf(p.err, format, args...)
	p.outMu.Unlock()
}

// Run processes every item. Results are returned in item order. With
// StopOnError the first failure cancels the items still waiting and Run
// returns that failure.
func (p *Processor) Run(ctx context.Context, items []Item, opts *Options) ([]Result, error) {
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}
	parallel := opts.Parallel
	if parallel < 1 {
		parallel = 1
	}

	logger := log.With().Str("run", opts.RunID).Int("items", len(items)).Int("parallel", parallel).Logger()
	logger.Debug().Msg("batch started")

	results := make([]Result, len(items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)

	total := len(items)
	for i, item := range items {
		results[i] = Result{Index: item.Index, Operation: item.Operation, Prompt: item.Prompt, Error: ErrSkipped}
		if opts.StopOnError && gctx.Err() != nil {
			continue
		}

		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return nil
			}
			results[i] = p.processItem(gctx, item, opts, i+1, total)
			if results[i].Error != nil && opts.StopOnError {
				return fmt.Errorf("item %d: %w", item.Index, results[i].Error)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		logger.Warn().Err(err).Msg("batch stopped")
		return results, fmt.Errorf("batch stopped due to error: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return results, err
	}

	logger.Debug().Msg("batch finished")
	return results, nil
}

func (p *Processor) processItem(ctx context.Context, item Item, opts *Options, current, total int) Result {
	start := time.Now()
	result := Result{
		Index:     item.Index,
		Operation: item.Operation,
		Prompt:    item.Prompt,
	}

	fail := func(err error) Result {
		result.Error = err
		result.Duration = time.Since(start)
		p.errorf("       Error: %v\n", err)
		return result
	}

	p.printf("[%d/%d] %s: %q...\n", current, total, item.Operation, truncate(item.Prompt, 50))

	req := provider.Request{Operation: item.Operation, Prompt: item.Prompt, Hotspot: item.Hotspot}
	if item.Image != "" {
		img, err := p.saver.Load(ctx, item.Image)
		if err != nil {
			return fail(fmt.Errorf("load failed: %w", err))
		}
		req.Image = img
	}
	if item.Style != "" {
		style, err := p.saver.Load(ctx, item.Style)
		if err != nil {
			return fail(fmt.Errorf("load style failed: %w", err))
		}
		req.Style = style
	}

	base := filepath.Join(opts.OutputDir, generateFilename(item))

	if item.Operation == models.OpModel3D {
		mesh, err := p.editor.Generate3DModel(ctx, req.Image)
		if err != nil {
			return fail(fmt.Errorf("generation failed: %w", err))
		}
		result.Path = base + ".obj"
		if err := p.saver.SaveMesh(mesh, result.Path); err != nil {
			return fail(fmt.Errorf("save failed: %w", err))
		}
		result.Cost = p.ledger.RecordMesh(mesh).Amount
	} else {
		art, err := provider.Apply(ctx, p.editor, req)
		if err != nil {
			return fail(fmt.Errorf("generation failed: %w", err))
		}
		result.Path = base + "." + art.Extension()
		if err := p.saver.Save(art, result.Path); err != nil {
			return fail(fmt.Errorf("save failed: %w", err))
		}
		result.Cost = p.ledger.Record(item.Operation).Amount
	}

	result.Duration = time.Since(start)
	p.printf("       Saved: %s ($%.4f)\n", result.Path, result.Cost)
	return result
}

// generateFilename builds "NNN-operation-prompt-words" without extension.
func generateFilename(item Item) string {
	name := fmt.Sprintf("%03d-%s", item.Index, item.Operation)
	if item.Prompt != "" {
		name += "-" + sanitizePrompt(item.Prompt)
	}
	return name
}

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9\s-]`)

func sanitizePrompt(prompt string) string {
	sanitized := unsafeChars.ReplaceAllString(prompt, "")
	sanitized = strings.ToLower(sanitized)
	sanitized = strings.Join(strings.Fields(sanitized), "-")
	sanitized = strings.TrimLeft(sanitized, "-")

	if len(sanitized) > 40 {
		sanitized = sanitized[:40]
	}
	sanitized = strings.TrimSuffix(sanitized, "-")

	if sanitized == "" {
		sanitized = "image"
	}

	if security.IsReservedName(sanitized) {
		sanitized += "-img"
	}

	return sanitized
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func (p *Processor) PrintSummary(results []Result) {
	var successful, failed, skipped int
	var totalCost float64
	var errs []Result

	for _, r := range results {
		switch {
		case errors.Is(r.Error, ErrSkipped):
			skipped++
		case r.Error != nil:
			failed++
			errs = append(errs, r)
		default:
			successful++
			totalCost += r.Cost
		}
	}

	fmt.Fprintln(p.out)
	fmt.Fprintln(p.out, "Summary:")
	fmt.Fprintf(p.out, "  Successful: %d/%d items\n", successful, len(results))
	if failed > 0 {
		fmt.Fprintf(p.out, "  Failed: %d (see errors below)\n", failed)
	}
	if skipped > 0 {
		fmt.Fprintf(p.out, "  Skipped: %d\n", skipped)
	}
	fmt.Fprintf(p.out, "  Estimated cost: $%.4f\n", totalCost)

	if len(errs) > 0 {
		fmt.Fprintln(p.out)
		fmt.Fprintln(p.out, "Errors:")
		for _, e := range errs {
			fmt.Fprintf(p.out, "  [%d] %s %q: %v\n", e.Index, e.Operation, truncate(e.Prompt, 40), e.Error)
		}
	}
}
