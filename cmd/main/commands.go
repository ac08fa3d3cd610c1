package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"imss/harvester/internal/container"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var verbose bool

var contractCmd = &cobra.Command{
	Use:     "contract <id>",
	Short:   "Fetch a single contract and print it as JSON",
	Example: "  harvester contract 1234567",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(verbose)
		if err != nil {
			return err
		}

		return withApp(cfg, func(ctx context.Context, app *container.Container) error {
			record, err := app.Service.FetchContract(ctx, args[0])
			if err != nil {
				return err
			}

			encoder := json.NewEncoder(os.Stdout)
			encoder.SetIndent("", "    ")
			return encoder.Encode(record)
		})
	},
}

var retryCmd = &cobra.Command{
	Use:   "retry",
	Short: "Retry the leaves and contracts queued by earlier runs (needs redis.enabled)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(verbose)
		if err != nil {
			return err
		}

		return withApp(cfg, func(ctx context.Context, app *container.Container) error {
			result, err := app.Service.Retry(ctx)
			if err != nil {
				return err
			}

			log.Infof("🔁 Retry pass done: %d processed, %d recovered, %d requeued",
				result.Processed, result.Recovered, result.Requeued)
			return nil
		})
	},
}

var periodsCmd = &cobra.Command{
	Use:   "periods",
	Short: "List the periods the portal serves",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(verbose)
		if err != nil {
			return err
		}

		return withApp(cfg, func(ctx context.Context, app *container.Container) error {
			periods, err := app.Service.ListPeriods(ctx)
			if err != nil {
				return err
			}

			for _, p := range periods {
				fmt.Fprintln(os.Stdout, p)
			}
			return nil
		})
	},
}

func init() {
	for _, cmd := range []*cobra.Command{contractCmd, retryCmd, periodsCmd} {
		cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
		rootCmd.AddCommand(cmd)
	}
}
