package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/kebairia/sitebackup/internal/config"
	"github.com/kebairia/sitebackup/internal/logger"
)

var (
	ErrArchive     = errors.New("directory archive failed")
	ErrCopy        = errors.New("file copy failed")
	ErrCompression = errors.New("compression failed")
	ErrIntegrity   = errors.New("archive integrity check failed")
	ErrTimeout     = errors.New("operation timed out")
)

// DirectoryResult records what happened to one configured directory.
type DirectoryResult struct {
	Directory string `json:"directory"`
	Archive   string `json:"archive,omitempty"`
	Skipped   bool   `json:"skipped,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// Archiver stores the project's directories and mandatory files in a staging tree.
type Archiver struct {
	Timeout time.Duration
	Logger  logger.Logger
}

// NewArchiver returns an Archiver bounding each directory by timeout.
func NewArchiver(timeout time.Duration, log logger.Logger) *Archiver {
	return &Archiver{Timeout: timeout, Logger: log}
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeoutCause(ctx, d, ErrTimeout)
}

// ArchiveDirectories writes one gzip tarball per directory of dirs, in order,
// into destDir. Directories missing from projectRoot are skipped with a
// warning; any failure on a directory that exists aborts with ErrArchive.
func (a *Archiver) ArchiveDirectories(
	ctx context.Context,
	projectRoot string,
	dirs []string,
	destDir string,
	runID string,
) ([]DirectoryResult, error) {
	results := make([]DirectoryResult, 0, len(dirs))
	for _, dir := range dirs {
		src := filepath.Join(projectRoot, dir)
		info, err := os.Stat(src)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			a.Logger.Warn("skipping missing directory", "directory", dir)
			results = append(results, DirectoryResult{Directory: dir, Skipped: true, Reason: "not found"})
			continue
		case err != nil:
			return results, fmt.Errorf("%w: stat %s: %w", ErrArchive, dir, err)
		case !info.IsDir():
			a.Logger.Warn("skipping path that is not a directory", "directory", dir)
			results = append(results, DirectoryResult{Directory: dir, Skipped: true, Reason: "not a directory"})
			continue
		}

		dest := filepath.Join(destDir, DirectoryArchiveName(dir, runID))
		if err := a.archiveDirectory(ctx, src, dest); err != nil {
			return results, fmt.Errorf("%w: %s: %w", ErrArchive, dir, err)
		}
		a.Logger.Info("directory archived", "directory", dir, "archive", filepath.Base(dest))
		results = append(results, DirectoryResult{Directory: dir, Archive: filepath.Base(dest)})
	}
	return results, nil
}

func (a *Archiver) archiveDirectory(ctx context.Context, src, dest string) error {
	ctx, cancel := withTimeout(ctx, a.Timeout)
	defer cancel()

	// Archive what a symlinked directory points at, as `tar -C dir .` would.
	resolved, err := filepath.EvalSymlinks(src)
	if err != nil {
		return err
	}
	return writeArchive(ctx, dest, resolved, "", Gzip, a.Logger)
}

// CopyProjectFiles copies each mandatory file verbatim from projectRoot into
// stagingRoot under its target name. A missing file is an ErrCopy.
func (a *Archiver) CopyProjectFiles(projectRoot, stagingRoot string, files []config.FileSpec) error {
	for _, f := range files {
		src := filepath.Join(projectRoot, f.Source)
		dest := filepath.Join(stagingRoot, f.Target)
		if err := copyFile(src, dest); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrCopy, f.Source, err)
		}
		a.Logger.Info("file copied", "file", f.Source, "target", f.Target)
	}
	return nil
}

func copyFile(src, dest string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%s is not a regular file", src)
	}

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_EXCL, info.Mode().Perm())
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	_, err = io.Copy(out, in)
	return err
}
