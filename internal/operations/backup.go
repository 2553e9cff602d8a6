package operations

import (
	"context"
	"fmt"

	"github.com/juju/clock"

	"github.com/kebairia/sitebackup/internal/archive"
	"github.com/kebairia/sitebackup/internal/config"
	"github.com/kebairia/sitebackup/internal/database"
	"github.com/kebairia/sitebackup/internal/logger"
	"github.com/kebairia/sitebackup/internal/retention"
	"github.com/kebairia/sitebackup/internal/staging"
	"github.com/kebairia/sitebackup/internal/vault"
)

// NewRunner wires the production stages for run from a validated cfg.
func NewRunner(cfg config.Config, run Run, log logger.Logger) (*Runner, error) {
	codec, err := archive.CodecFor(cfg.Backup.Compression)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrValidateConfig, err)
	}

	var dbOpts []database.MySQLOption
	if cfg.VaultEnabled() {
		dbOpts = append(dbOpts, database.WithCredentialSource(vaultCredentials(cfg.Vault)))
	}

	return &Runner{
		Backup:    run,
		Stager:    staging.NewManager(run.BackupsRoot, log),
		Dumper:    database.NewMySQL(cfg, log, dbOpts...),
		Archiver:  archive.NewArchiver(cfg.Archive.Timeout, log),
		Finalizer: archive.NewFinalizer(codec, cfg.Archive.Timeout, log),
		Sweeper:   retention.NewSweeper(clock.WallClock, log),
		Lock: func(backupsRoot string, cancel <-chan struct{}) (Releaser, error) {
			return AcquireRunLock(backupsRoot, cfg.Lock.Wait, cancel)
		},
		Preflight:   cfg.Database.Preflight,
		ArchiveName: archive.ArchiveName(run.ProjectName, run.ID, codec),
		Logger:      log,
	}, nil
}

// Execute performs one backup run.
func Execute(ctx context.Context, cfg config.Config, run Run, log logger.Logger) (Result, error) {
	runner, err := NewRunner(cfg, run, log)
	if err != nil {
		return Result{RunID: run.ID, State: StateFailed}, err
	}
	return runner.Run(ctx)
}

// vaultCredentials reads the database user from Vault once per run, so the
// preflight ping and the dump use the same lease.
func vaultCredentials(vc config.VaultConfig) database.CredentialSource {
	var cached *database.Credentials
	return func(ctx context.Context) (database.Credentials, error) {
		if cached != nil {
			return *cached, nil
		}
		opts := []vault.Option{vault.WithAddress(vc.Address)}
		if vc.Token != "" {
			opts = append(opts, vault.WithToken(vc.Token))
		}
		if vc.RoleID != "" && vc.ApproleName != "" {
			opts = append(opts, vault.WithAppRole(vc.RoleID, vc.ApproleName))
		}
		client, err := vault.NewClient(ctx, opts...)
		if err != nil {
			return database.Credentials{}, err
		}
		secret, err := client.ReadCredentials(ctx, vc.CredentialsPath)
		if err != nil {
			return database.Credentials{}, err
		}
		cached = &database.Credentials{User: secret.Username, Password: secret.Password}
		return *cached, nil
	}
}
