package main

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/manash/pixshop/internal/cost"
	"github.com/manash/pixshop/pkg/models"
)

func newPricingCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pricing",
		Short: "Show or override per-image prices used for cost estimates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPricingShow(app)
		},
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "set <model> <usd-per-image>",
			Short: "Override the price of one model",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runPricingSet(args[0], args[1], app)
			},
		},
		&cobra.Command{
			Use:   "reset",
			Short: "Drop every override",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				if err := cost.DeletePricing(); err != nil {
					return err
				}
				fmt.Fprintln(app.Out, "Pricing overrides removed.")
				return nil
			},
		},
	)
	return cmd
}

func runPricingShow(app *App) error {
	calc := cost.NewCalculator()
	for _, model := range models.DefaultRegistry().ImageModels() {
		marker := " "
		if model == app.cfg.Gemini.ImageModel || model == app.cfg.Gemini.ImagenModel {
			marker = "*"
		}
		info := calc.Calculate(models.ProviderGemini, model, 1)
		fmt.Fprintf(app.Out, "%s %-32s $%.4f per image\n", marker, model, info.PerImage)
	}
	fmt.Fprintln(app.Out, "(* = configured)")

	pricing, err := cost.LoadPricing()
	if err != nil {
		return err
	}
	if pricing == nil || len(pricing.Image) == 0 {
		fmt.Fprintln(app.Out, "\nNo overrides set.")
		return nil
	}
	fmt.Fprintf(app.Out, "\nOverrides (updated %s):\n", pricing.UpdatedAt.Format("2006-01-02 15:04"))
	names := make([]string, 0, len(pricing.Image))
	for model := range pricing.Image {
		names = append(names, model)
	}
	sort.Strings(names)
	for _, model := range names {
		fmt.Fprintf(app.Out, "  %-30s $%.4f\n", model, pricing.Image[model])
	}
	return nil
}

func runPricingSet(model, raw string, app *App) error {
	price, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("invalid price %q: %w", raw, err)
	}
	if err := cost.SetPrice(model, price); err != nil {
		return err
	}
	fmt.Fprintf(app.Out, "Price for %s set to $%.4f per image.\n", model, price)
	return nil
}
