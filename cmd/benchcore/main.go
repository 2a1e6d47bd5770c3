// Command benchcore runs the lab inventory consistency engine: an HTTP command
// adapter with a periodic task sweep, plus one-shot sweep, backup and restore
// commands.
package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"

	"benchcore/internal/config"
	"benchcore/internal/logging"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var exitFunc = os.Exit

func main() {
	exitFunc(cli(os.Args[1:], os.Stdout, os.Stderr))
}

type globalFlags struct {
	configPath string
	envFile    string
}

func cli(args []string, stdout, stderr io.Writer) int {
	root := newRootCmd(stdout, stderr)
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintf(stderr, "benchcore: %v\n", err)
		return 1
	}
	return 0
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	flags := &globalFlags{}
	root := &cobra.Command{
		Use:           "benchcore",
		Short:         "Resource and sample lifecycle consistency engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "path to a config file (yaml, json or toml)")
	root.PersistentFlags().StringVar(&flags.envFile, "env-file", ".env", "dotenv file loaded before configuration")

	root.AddCommand(
		newServeCmd(flags),
		newSweepCmd(flags),
		newBackupCmd(flags),
		newRestoreCmd(flags),
	)
	return root
}

// loadSettings reads the dotenv file, when present, then the configuration and
// builds the logger.
func loadSettings(flags *globalFlags, stderr io.Writer) (config.Config, *slog.Logger, error) {
	if flags.envFile != "" {
		if err := godotenv.Load(flags.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return config.Config{}, nil, fmt.Errorf("load %s: %w", flags.envFile, err)
		}
	}
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return config.Config{}, nil, err
	}
	logger, err := logging.New(stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger, nil
}
