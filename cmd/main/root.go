package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"imss/harvester/internal/config"
	"imss/harvester/internal/container"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "harvester",
	Short: "Incremental harvester for the IMSS procurement portal",
	Long: `harvester walks the period / category / subcategory / rubro tree of
compras.imss.gob.mx and captures every contract it has not captured before.

Contracts are appended to one JSON-lines log per period, so an interrupted
run can simply be started again.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// loadConfig reads the configuration and sets up logging from it
func loadConfig(verbose bool) (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	if verbose {
		cfg.Harvest.Verbose = true
	}

	if err := configureLogging(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func configureLogging(cfg *config.Config) error {
	level, err := log.ParseLevel(cfg.Log.Level)
	if err != nil {
		return fmt.Errorf("invalid log.level: %w", err)
	}
	if cfg.Harvest.Verbose && level < log.DebugLevel {
		level = log.DebugLevel
	}
	log.SetLevel(level)
	log.SetOutput(os.Stderr)

	switch cfg.Log.Format {
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	default:
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	return nil
}

// withApp builds the container for one command and stops it on SIGINT/SIGTERM
func withApp(cfg *config.Config, fn func(ctx context.Context, app *container.Container) error) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := container.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize container: %w", err)
	}
	defer app.Close()

	return fn(ctx, app)
}
