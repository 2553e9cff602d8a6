package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/kebairia/sitebackup/internal/config"
	"github.com/kebairia/sitebackup/internal/logger"
)

var cronSpec string

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run backups on a cron schedule until interrupted",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		schedule, err := cron.ParseStandard(cronSpec)
		if err != nil {
			return configError(fmt.Errorf("parse --cron %q: %w", cronSpec, err))
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		cfg.Mode = config.ModeSilent

		log, err := logger.New(logger.Options{Level: cfg.Log.Level})
		if err != nil {
			return configError(err)
		}
		defer log.Sync()

		ctx := cmd.Context()
		c := cron.New(cron.WithChain(
			cron.Recover(cronLogger{log}),
			cron.SkipIfStillRunning(cronLogger{log}),
		))
		c.Schedule(schedule, cron.FuncJob(func() {
			if _, err := runBackup(ctx, cfg, time.Now(), cmd.OutOrStdout()); err != nil {
				printFailure(os.Stderr, err)
			}
		}))

		log.Info("scheduler started", "cron", cronSpec, "next", schedule.Next(time.Now()).Format(time.RFC3339))
		c.Start()
		<-ctx.Done()
		log.Info("scheduler stopping, waiting for a running backup")
		<-c.Stop().Done()
		return nil
	},
}

func init() {
	scheduleCmd.Flags().StringVar(&cronSpec, "cron", "0 2 * * *", "standard 5-field cron expression")
}

// cronLogger adapts logger.Logger to cron.Logger.
type cronLogger struct {
	log logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error(msg, append(keysAndValues, "error", err.Error())...)
}
