package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kebairia/sitebackup/internal/config"
	"github.com/kebairia/sitebackup/internal/logger"
	"github.com/kebairia/sitebackup/internal/operations"
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Back up the project database and files",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Interactive() {
			printPlan(cmd.OutOrStdout(), cfg)
			ok, err := confirm(cmd.InOrStdin(), cmd.OutOrStdout(), "Proceed?")
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), "Backup cancelled.")
				return nil
			}
		}
		_, err = runBackup(cmd.Context(), cfg, time.Now(), cmd.OutOrStdout())
		return err
	},
}

// runBackup performs one run with its own transcript.
func runBackup(ctx context.Context, cfg config.Config, now time.Time, out io.Writer) (operations.Result, error) {
	run := operations.NewRun(cfg, now)

	opts := logger.Options{Level: cfg.Log.Level}
	if cfg.Log.File {
		opts.File = run.LogPath()
	}
	log, err := logger.New(opts)
	if err != nil {
		return operations.Result{RunID: run.ID, State: operations.StateFailed}, configError(err)
	}
	defer func() {
		if err := log.Sync(); err != nil {
			fmt.Fprintf(os.Stderr, "close transcript: %v\n", err)
		}
	}()

	res, err := operations.Execute(ctx, cfg, run, log)
	if err != nil {
		return res, err
	}
	printSuccess(out, res)
	return res, nil
}

func printPlan(w io.Writer, cfg config.Config) {
	fmt.Fprintf(w, "Project:     %s (%s)\n", cfg.Project.Name, cfg.Project.Root)
	fmt.Fprintf(w, "Database:    %s on %s:%s\n", cfg.Database.Name, cfg.Database.Host, cfg.Database.Port)
	fmt.Fprintf(w, "Directories: %s\n", strings.Join(cfg.Backup.Directories, ", "))
	files := make([]string, 0, len(cfg.Backup.Files))
	for _, f := range cfg.Backup.Files {
		files = append(files, f.Source)
	}
	fmt.Fprintf(w, "Files:       %s\n", strings.Join(files, ", "))
	fmt.Fprintf(w, "Destination: %s (%s)\n", cfg.Backup.Directory, cfg.Backup.Compression)
	fmt.Fprintf(w, "Retention:   %d days\n", cfg.Retention.Days)
}
