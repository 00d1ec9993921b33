package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/manash/pixshop/internal/batch"
)

func newBatchCmd(app *App) *cobra.Command {
	var (
		output      string
		parallel    int
		stopOnError bool
	)

	cmd := &cobra.Command{
		Use:   "batch <items-file>",
		Short: "Apply independent edits listed in a .txt or .json file",
		Long: `Apply independent edits listed in a file. Results are written to the
output directory; the interactive session is not touched.

Text format, one item per line:
  operation | prompt | image [| extra]

extra is "x,y" for retouch and the style image for style. Lines starting
with # are comments.

JSON format:
  [{"operation": "filter", "prompt": "sepia", "image": "in.png"}]`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("parallel") {
				parallel = app.cfg.Batch.Parallel
			}
			return runBatch(args[0], &batch.Options{
				OutputDir:   output,
				Parallel:    parallel,
				StopOnError: stopOnError,
			}, app)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", ".", "output directory")
	cmd.Flags().IntVarP(&parallel, "parallel", "p", 2, "number of items processed at once")
	cmd.Flags().BoolVar(&stopOnError, "stop-on-error", false, "stop at the first failed item")
	return cmd
}

func runBatch(path string, opts *batch.Options, app *App) error {
	ctx, cancel := signalContext()
	defer cancel()

	if opts.Parallel < 1 {
		return fmt.Errorf("invalid --parallel %d: must be at least 1", opts.Parallel)
	}

	items, err := batch.ParseFile(path)
	if err != nil {
		return err
	}

	editor, err := app.editor(true)
	if err != nil {
		return err
	}

	fmt.Fprintf(app.Out, "Processing %d item(s) with parallelism %d...\n", len(items), opts.Parallel)
	p := batch.NewProcessor(editor, app.saver(), app.ledger(), app.Out, app.Err)
	results, err := p.Run(ctx, items, opts)
	p.PrintSummary(results)
	return err
}
