package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/kebairia/sitebackup/internal/logger"
	"github.com/kebairia/sitebackup/internal/staging"
)

// Finalizer turns a staging tree into the run's single archive.
type Finalizer struct {
	Codec   Codec
	Timeout time.Duration
	Logger  logger.Logger
}

// NewFinalizer returns a Finalizer using codec.
func NewFinalizer(codec Codec, timeout time.Duration, log logger.Logger) *Finalizer {
	return &Finalizer{Codec: codec, Timeout: timeout, Logger: log}
}

// Compress archives the whole staging tree into dest. Entries are rooted at
// the staging directory's own name. A failed compression leaves nothing at dest.
func (f *Finalizer) Compress(ctx context.Context, tree staging.Tree, dest string) error {
	ctx, cancel := withTimeout(ctx, f.Timeout)
	defer cancel()

	start := time.Now()
	if err := writeArchive(ctx, dest, tree.Root, filepath.Base(tree.Root), f.Codec, f.Logger); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrCompression, dest, err)
	}

	var size string
	if info, err := os.Stat(dest); err == nil {
		size = humanize.Bytes(uint64(info.Size()))
	}
	f.Logger.Info("archive written",
		"path", dest,
		"compression", f.Codec.Name(),
		"size", size,
		"duration", time.Since(start).String(),
	)
	return nil
}

// Verify lists the archive at dest without extracting it and returns the
// entry names. It proves the container is well formed, nothing more.
func (f *Finalizer) Verify(dest string) ([]string, error) {
	info, err := os.Stat(dest)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIntegrity, err)
	}
	if info.Size() == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrIntegrity, dest)
	}

	names, err := listArchive(dest, f.Codec)
	if err != nil {
		return nil, fmt.Errorf("%w: list %s: %w", ErrIntegrity, dest, err)
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: %s has no entries", ErrIntegrity, dest)
	}
	f.Logger.Info("archive verified", "path", dest, "entries", len(names))
	return names, nil
}

// Cleanup removes the staging tree. Callers invoke it only after Verify succeeded.
func (f *Finalizer) Cleanup(tree staging.Tree) error {
	if err := os.RemoveAll(tree.Root); err != nil {
		return fmt.Errorf("%w: remove staging tree %q: %v", staging.ErrFilesystem, tree.Root, err)
	}
	f.Logger.Info("staging tree removed", "path", tree.Root)
	return nil
}
