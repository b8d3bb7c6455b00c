package cli

import (
	"errors"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"pricewatch/internal/app"
	"pricewatch/internal/tracking"
)

var (
	simulateURL      string
	simulateTitle    string
	simulateInitial  float64
	simulateObserved float64
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "Send a price-drop alert for a synthetic item through the configured channels",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulateInitial <= 0 || simulateObserved <= 0 {
			return errors.New("--initial and --observed must be greater than 0")
		}
		mode, value, err := parseTarget()
		if err != nil {
			return err
		}
		return getApp().SimulateAlert(cmd.Context(), app.SimulateOptions{
			URL:      simulateURL,
			Title:    simulateTitle,
			Mode:     mode,
			Value:    value,
			Initial:  decimal.NewFromFloat(simulateInitial),
			Observed: decimal.NewFromFloat(simulateObserved),
		})
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateURL, "url", "https://www.amazon.in/dp/EXAMPLE", "Product URL shown in the alert")
	simulateCmd.Flags().StringVar(&simulateTitle, "title", "Test product", "Product title shown in the alert")
	simulateCmd.Flags().Float64Var(&simulateInitial, "initial", 0, "Initial price")
	simulateCmd.Flags().Float64Var(&simulateObserved, "observed", 0, "Observed price")
	simulateCmd.Flags().StringVar(&targetMode, "mode", string(tracking.ModeFixed), "Target mode: fixed or percentage")
	simulateCmd.Flags().StringVar(&targetValue, "value", "", "Target price (fixed) or discount percent (percentage)")
	_ = simulateCmd.MarkFlagRequired("value")
}
