package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"imss/harvester/internal/config"
	"imss/harvester/internal/container"
	"imss/harvester/internal/domain"
	"imss/harvester/internal/report"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var runFlags struct {
	years       []string
	startFrom   []string
	output      string
	verbose     bool
	continueRun bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Harvest contracts for one or more periods",
	Example: `  # Harvest every period the portal lists, printing the trees as JSON
  harvester run

  # Harvest 2019 and 2020 into ./output/<year>.json
  harvester run -y 2019 -y 2020 -o file

  # Resume 2019 from category 3, subcategory 45
  harvester run -y 2019 -o file -s 3 -s 45

  # Pick up where an interrupted run stopped (needs redis.enabled)
  harvester run -o file --continue`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(runFlags.verbose)
		if err != nil {
			return err
		}
		applyRunFlags(cmd, cfg)

		return withApp(cfg, func(ctx context.Context, app *container.Container) error {
			return runHarvest(ctx, app, cfg)
		})
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringSliceVarP(&runFlags.years, "years", "y", nil, "periods to harvest (default: every period the portal lists)")
	runCmd.Flags().StringSliceVarP(&runFlags.startFrom, "start-from", "s", nil, "category [subcategory [rubro]] ids to resume from")
	runCmd.Flags().StringVarP(&runFlags.output, "output", "o", "", "output mode: stdout or file")
	runCmd.Flags().BoolVarP(&runFlags.verbose, "verbose", "v", false, "log progress for every leaf and contract")
	runCmd.Flags().BoolVar(&runFlags.continueRun, "continue", false, "resume from the last leaf recorded in redis")
}

// applyRunFlags overrides the harvest section with the flags that were set
func applyRunFlags(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("years") {
		cfg.Harvest.Years = runFlags.years
	}
	if cmd.Flags().Changed("start-from") {
		cfg.Harvest.StartFrom = runFlags.startFrom
	}
	if cmd.Flags().Changed("output") {
		cfg.Harvest.Output = runFlags.output
	}
}

func runHarvest(ctx context.Context, app *container.Container, cfg *config.Config) error {
	runCfg := cfg.RunConfig(runFlags.continueRun)

	result, runErr := app.Service.Run(ctx, runCfg)
	if result == nil {
		return runErr
	}

	if err := emit(result, runCfg.Output, cfg.Harvest.OutputDir); err != nil {
		return errors.Join(runErr, err)
	}

	report.RenderTable(os.Stderr, result)

	return runErr
}

// emit writes the per-period summaries in file mode or the full trees to stdout
func emit(result *domain.RunResult, mode domain.OutputMode, outputDir string) error {
	if mode == domain.OutputStdout {
		periods := make([]*domain.Period, 0, len(result.Periods))
		for _, p := range result.Periods {
			periods = append(periods, p.Period)
		}
		return report.WriteTrees(os.Stdout, periods)
	}

	for _, p := range result.Periods {
		path, err := report.WriteSummary(outputDir, p.Period)
		if err != nil {
			return fmt.Errorf("failed to write summary: %w", err)
		}
		log.Infof("📝 Summary for %s written to %s", p.Period.ID, path)
	}
	return nil
}
