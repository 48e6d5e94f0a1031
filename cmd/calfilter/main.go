package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"calfilter/internal/config"
	appLog "calfilter/internal/log"
)

var version = "0.1.0-dev"

// app carries what the persistent pre-run prepared for subcommands.
type app struct {
	configPath string
	logLevel   string
	cfg        *config.Config
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	appLog.Sync()
}

func newRootCommand() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:     "calfilter",
		Short:   "Categorize calendar feeds and derive filtered calendars",
		Version: version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&a.configPath, "config", "c", "./calfilter.yaml", "Path to config file")
	pf.StringVar(&a.logLevel, "log-level", "", "Log level override (debug, info, warn, error)")

	root.AddCommand(
		newServeCommand(a),
		newCategoriesCommand(a),
		newCompileCommand(a),
	)
	return root
}

// init loads .env, then the YAML config, then environment overrides, and
// configures logging from the result.
func (a *app) init() error {
	_ = loadDotenv(".env", "../.env")

	cfg, err := config.Load(a.configPath)
	if err != nil {
		return fmt.Errorf("load config %s: %w", a.configPath, err)
	}
	cfg.ApplyEnv()
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
		cfg.Normalize()
	}

	appLog.Configure(appLog.ParseLevel(cfg.Log.Level), cfg.Log.Format)
	a.cfg = cfg
	return nil
}

// loadDotenv loads the first of paths that exists. A file that exists but
// cannot be loaded is logged and its error returned.
func loadDotenv(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			appLog.Warn("dotenv load failed", "path", p, "err", err)
			return err
		}
		return nil
	}
	return nil
}
