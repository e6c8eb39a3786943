package cli

import (
	"errors"
	"fmt"

	"github.com/doveaia/forkguard/config"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	version = "dev"

	configPath string
	logLevel   string

	// cfg is resolved in PersistentPreRunE for every subcommand.
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "forkguard",
	Short: "Decide whether this process may fork parallel workers",
	Long: `forkguard classifies the current process as a daemon or an interactive
process and derives how many fork workers it may safely spawn.

A process is treated as a daemon when it has been re-parented to init, when it
leads its own session, or when its standard output is not a terminal. Daemons
are limited to a single worker. Interactive processes use MAX_FORK_WORKERS or,
failing that, the number of CPUs they may run on.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file (default: nearest .forkguard/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: panic, fatal, error, warn, info, debug, trace")

	rootCmd.AddCommand(detectCmd)
	rootCmd.AddCommand(limitsCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

// SetVersion sets the version reported by the version command.
func SetVersion(v string) {
	version = v
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig resolves configuration: --config, then the nearest project
// config, then defaults. --log-level overrides the configured level.
func loadConfig(cmd *cobra.Command, args []string) error {
	var err error
	switch {
	case configPath != "":
		cfg, err = config.LoadFile(configPath)
		if err != nil {
			return err
		}
	default:
		cfg = config.DefaultConfig()
		root, findErr := config.FindProjectRoot()
		if findErr != nil && !errors.Is(findErr, config.ErrNotFound) {
			return findErr
		}
		if findErr == nil {
			if cfg, err = config.Load(root); err != nil {
				return err
			}
		}
	}

	return applyLogLevel(cmd, cfg.LogLevel())
}

// applyLogLevel sets the logrus level, --log-level taking precedence over level.
func applyLogLevel(cmd *cobra.Command, level logrus.Level) error {
	if logLevel != "" {
		parsed, err := logrus.ParseLevel(logLevel)
		if err != nil {
			return fmt.Errorf("invalid --log-level: %w", err)
		}
		level = parsed
	}
	logrus.SetLevel(level)
	logrus.SetOutput(cmd.ErrOrStderr())
	return nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the forkguard version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "forkguard %s\n", version)
	},
}
