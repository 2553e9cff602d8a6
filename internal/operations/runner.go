package operations

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/kebairia/sitebackup/internal/archive"
	"github.com/kebairia/sitebackup/internal/config"
	"github.com/kebairia/sitebackup/internal/logger"
	"github.com/kebairia/sitebackup/internal/retention"
	"github.com/kebairia/sitebackup/internal/staging"
)

// Stager creates the per-run staging tree.
type Stager interface {
	Create(runID string) (staging.Tree, error)
}

// Dumper exports the project database.
type Dumper interface {
	GetName() string
	GetEngine() string
	Ping(ctx context.Context) error
	Dump(ctx context.Context, dest string) error
}

// FileArchiver stores project directories and mandatory files.
type FileArchiver interface {
	ArchiveDirectories(ctx context.Context, projectRoot string, dirs []string, destDir, runID string) ([]archive.DirectoryResult, error)
	CopyProjectFiles(projectRoot, stagingRoot string, files []config.FileSpec) error
}

// Finalizer compresses, verifies and removes the staging tree.
type Finalizer interface {
	Compress(ctx context.Context, tree staging.Tree, dest string) error
	Verify(dest string) ([]string, error)
	Cleanup(tree staging.Tree) error
}

// Sweeper applies age based retention to one directory.
type Sweeper interface {
	Sweep(ctx context.Context, root, pattern string, days int) (retention.Report, error)
}

// Locker acquires the lock guarding a backups directory.
type Locker func(backupsRoot string, cancel <-chan struct{}) (Releaser, error)

// Result is the terminal outcome of a run.
type Result struct {
	RunID       string
	State       State
	FailedStage Stage
	StagingRoot string
	Archive     string
	ArchiveSize int64
	Entries     []string
	Directories []archive.DirectoryResult
	Retention   []retention.Report
	StartedAt   time.Time
	FinishedAt  time.Time
}

// Runner drives one run through its stages in order and stops at the first
// failure. Nothing is retried.
type Runner struct {
	Backup      Run
	Stager      Stager
	Dumper      Dumper
	Archiver    FileArchiver
	Finalizer   Finalizer
	Sweeper     Sweeper
	Lock        Locker
	Preflight   bool
	ArchiveName string
	Logger      logger.Logger
}

// Run executes the pipeline. On failure the returned error is a *StageError
// and Result.State is StateFailed.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	res := Result{RunID: r.Backup.ID, State: StateInit, StartedAt: r.Backup.StartedAt}
	log := r.Logger.With("run", r.Backup.ID, "correlation_id", r.Backup.CorrelationID)

	fail := func(stage Stage, err error) (Result, error) {
		res.State = StateFailed
		res.FailedStage = stage
		res.FinishedAt = time.Now()
		log.Error("backup failed", "stage", string(stage), "error", err.Error())
		return res, &StageError{Stage: stage, Err: err}
	}
	advance := func(next State) {
		log.Info("stage completed", "state", next.String())
		res.State = next
	}
	// stage runs fn unless the run was cancelled in the meantime.
	stage := func(fn func() error) error {
		if err := ctx.Err(); err != nil {
			return context.Cause(ctx)
		}
		return fn()
	}

	log.Info("backup run started", "project", r.Backup.ProjectName, "root", r.Backup.ProjectRoot)

	if r.Lock != nil {
		releaser, err := r.Lock(r.Backup.BackupsRoot, ctx.Done())
		if err != nil {
			return fail(StageLock, err)
		}
		defer releaser.Release()
	}

	var tree staging.Tree
	err := stage(func() (err error) {
		tree, err = r.Stager.Create(r.Backup.ID)
		return err
	})
	if err != nil {
		return fail(StageStaging, err)
	}
	res.StagingRoot = tree.Root
	advance(StateStagingReady)

	dumpPath := filepath.Join(tree.DB, r.Backup.DumpName())
	err = stage(func() error {
		if r.Preflight {
			if err := r.Dumper.Ping(ctx); err != nil {
				return err
			}
		}
		return r.Dumper.Dump(ctx, dumpPath)
	})
	if err != nil {
		return fail(StageDatabase, err)
	}
	advance(StateDbDumped)

	err = stage(func() (err error) {
		res.Directories, err = r.Archiver.ArchiveDirectories(ctx, r.Backup.ProjectRoot, r.Backup.Directories, tree.Files, r.Backup.ID)
		if err != nil {
			return err
		}
		if err := r.Archiver.CopyProjectFiles(r.Backup.ProjectRoot, tree.Root, r.Backup.Files); err != nil {
			return err
		}
		return r.writeMetadata(tree, dumpPath, res.Directories)
	})
	if err != nil {
		return fail(StageFiles, err)
	}
	advance(StateFilesArchived)

	archivePath := filepath.Join(r.Backup.BackupsRoot, r.ArchiveName)
	err = stage(func() (err error) {
		if err := r.Finalizer.Compress(ctx, tree, archivePath); err != nil {
			return err
		}
		res.Entries, err = r.Finalizer.Verify(archivePath)
		if err != nil {
			// The archive is unusable; the staging tree stays for inspection.
			if rmErr := os.Remove(archivePath); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
				log.Warn("could not remove invalid archive", "path", archivePath, "error", rmErr.Error())
			}
			return err
		}
		res.Archive = archivePath
		if info, statErr := os.Stat(archivePath); statErr == nil {
			res.ArchiveSize = info.Size()
		}
		return r.Finalizer.Cleanup(tree)
	})
	if err != nil {
		return fail(StageFinalize, err)
	}
	res.StagingRoot = ""
	advance(StateFinalized)

	err = stage(func() error {
		for _, target := range []struct{ root, pattern string }{
			{r.Backup.BackupsRoot, retention.ArchivePattern},
			{r.Backup.LogsRoot(), retention.LogPattern},
		} {
			report, err := r.Sweeper.Sweep(ctx, target.root, target.pattern, r.Backup.RetentionDays)
			res.Retention = append(res.Retention, report)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fail(StageRetention, err)
	}
	advance(StateRetentionApplied)

	res.State = StateDone
	res.FinishedAt = time.Now()
	log.Info("backup run completed",
		"archive", res.Archive,
		"size", humanize.Bytes(uint64(res.ArchiveSize)),
		"duration", res.FinishedAt.Sub(res.StartedAt).Round(time.Millisecond).String(),
	)
	return res, nil
}

func (r *Runner) writeMetadata(tree staging.Tree, dumpPath string, dirs []archive.DirectoryResult) error {
	record := Metadata{
		RunID:         r.Backup.ID,
		CorrelationID: r.Backup.CorrelationID,
		Project:       r.Backup.ProjectName,
		Engine:        r.Dumper.GetEngine(),
		Database:      r.Dumper.GetName(),
		DumpFile:      filepath.Join(filepath.Base(tree.DB), filepath.Base(dumpPath)),
		Directories:   dirs,
		StartedAt:     r.Backup.StartedAt,
		WrittenAt:     time.Now(),
	}
	if info, err := os.Stat(dumpPath); err == nil {
		record.DumpSizeBytes = info.Size()
	}
	for _, f := range r.Backup.Files {
		record.Files = append(record.Files, f.Target)
	}
	if err := record.Write(tree.Root); err != nil {
		return fmt.Errorf("write run metadata: %w", err)
	}
	return nil
}
