package cli

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"pricewatch/internal/tracking"
)

var (
	targetMode  string
	targetValue string
)

func parseTarget() (tracking.Mode, decimal.Decimal, error) {
	mode, err := tracking.ParseMode(targetMode)
	if err != nil {
		return "", decimal.Decimal{}, err
	}
	value, err := decimal.NewFromString(targetValue)
	if err != nil {
		return "", decimal.Decimal{}, fmt.Errorf("invalid --value %q: %w", targetValue, err)
	}
	return mode, value, nil
}

var trackCmd = &cobra.Command{
	Use:   "track <url>",
	Short: "Start tracking a product",
	Example: `  pricewatch track https://www.amazon.in/dp/B0CHX1W1XY --mode fixed --value 24999
  pricewatch track https://www.flipkart.com/p/itm123 --mode percentage --value 15`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mode, value, err := parseTarget()
		if err != nil {
			return err
		}
		return getApp().Track(cmd.Context(), args[0], mode, value, cmd.OutOrStdout())
	},
}

var retargetCmd = &cobra.Command{
	Use:   "retarget <id>",
	Short: "Change an item's target mode or value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mode, value, err := parseTarget()
		if err != nil {
			return err
		}
		return getApp().Retarget(cmd.Context(), args[0], mode, value, cmd.OutOrStdout())
	},
}

var removeCmd = &cobra.Command{
	Use:     "remove <id>",
	Aliases: []string{"rm"},
	Short:   "Stop tracking an item",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Remove(cmd.Context(), args[0], cmd.OutOrStdout())
	},
}

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List tracked items",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().List(cmd.Context(), cmd.OutOrStdout())
	},
}

var extractCmd = &cobra.Command{
	Use:   "extract <url>",
	Short: "Scrape a product page once and print title and price",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Extract(cmd.Context(), args[0], cmd.OutOrStdout())
	},
}

var sitesCmd = &cobra.Command{
	Use:   "sites",
	Short: "List supported retailers",
	Run: func(cmd *cobra.Command, args []string) {
		getApp().Sites(cmd.OutOrStdout())
	},
}

func init() {
	for _, c := range []*cobra.Command{trackCmd, retargetCmd} {
		c.Flags().StringVar(&targetMode, "mode", "fixed", "Target mode: fixed or percentage")
		c.Flags().StringVar(&targetValue, "value", "", "Target price (fixed) or discount percent (percentage)")
		_ = c.MarkFlagRequired("value")
	}
}
