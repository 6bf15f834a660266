package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/frahmantamala/payapp/internal"
	"github.com/frahmantamala/payapp/internal/core/money"
	"github.com/frahmantamala/payapp/pkg/logger"
)

var ratesCmd = &cobra.Command{
	Use:   "rates",
	Short: "Currency conversion commands",
}

var ratesFile string

var convertRatesCmd = &cobra.Command{
	Use:   "convert [from] [to] [amount]",
	Short: "Convert an amount with the configured rate provider",
	Long: `Convert an amount between two currencies using the provider from config.yml.
Without a readable config the built-in rate table is used.`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		lg := logger.LoggerWrapper()

		cfg, err := loadConfig(configPath)
		if err != nil {
			lg.Warn("using built-in rate table", "error", err)
			cfg = &internal.Config{}
		}
		if ratesFile != "" {
			cfg.Conversion.Provider = "static"
			cfg.Conversion.RatesFile = ratesFile
		}

		svc, err := newConversionService(cfg, nil, lg)
		if err != nil {
			return err
		}

		amount, err := money.ParseAmount(args[2])
		if err != nil {
			return err
		}
		result, err := svc.Convert(context.Background(),
			money.NormalizeCurrency(args[0]), money.NormalizeCurrency(args[1]), amount)
		if err != nil {
			return err
		}

		fmt.Fprintf(os.Stdout, "%s = %s (rate %s)\n",
			money.Format(result.Amount, result.From),
			money.Format(result.Converted, result.To),
			result.Rate.String())
		return nil
	},
}

func init() {
	convertRatesCmd.Flags().StringVar(&ratesFile, "rates-file", "", "YAML rate table (overrides config)")

	ratesCmd.AddCommand(convertRatesCmd)
	rootCmd.AddCommand(ratesCmd)
}
