package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/kebairia/sitebackup/internal/config"
	"github.com/kebairia/sitebackup/internal/operations"
)

var (
	configFile  string
	envFile     string
	projectRoot string
	silent      bool
	logLevel    string

	// rootCmd is the base command for sitebackup.
	rootCmd = &cobra.Command{
		Use:   "sitebackup",
		Short: "CLI tool for site backups",
		Long: `sitebackup takes a verified snapshot of a CMS project: its MySQL database,
the configured content directories and its configuration files, then
removes archives and logs older than the retention period.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

// Execute runs the root command and exits with the status for the outcome.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		printFailure(os.Stderr, err)
	}
	os.Exit(operations.ExitCode(err))
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configFile, "config", "c", "", "path to YAML config file")
	flags.StringVar(&envFile, "env-file", "", "dotenv file with DB_* settings (default <project>/.env)")
	flags.StringVarP(&projectRoot, "project", "p", "", "project root directory")
	flags.BoolVarP(&silent, "silent", "s", false, "run without confirmation prompts")
	flags.StringVar(&logLevel, "log-level", "", "log level: debug, info, warn or error")

	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(scheduleCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig resolves and validates the configuration named by the flags.
// Without a terminal on stdin nobody can answer a prompt, so the run is silent.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(config.Options{
		ConfigFile:  configFile,
		EnvFile:     envFile,
		ProjectRoot: projectRoot,
		Silent:      silent,
	})
	if err != nil {
		return cfg, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if fd := os.Stdin.Fd(); !isatty.IsTerminal(fd) && !isatty.IsCygwinTerminal(fd) {
		cfg.Mode = config.ModeSilent
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func configError(err error) error {
	return fmt.Errorf("%w: %v", config.ErrValidateConfig, err)
}
