package retention

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/juju/clock"

	"github.com/kebairia/sitebackup/internal/logger"
)

var (
	ErrSweep            = errors.New("retention sweep failed")
	ErrInvalidRetention = errors.New("retention days must be positive")
)

const (
	// ArchivePattern matches final archives of any project and codec.
	ArchivePattern = "backup-*.tar.*"
	// LogPattern matches run transcripts.
	LogPattern = "backup-*.log"

	day = 24 * time.Hour
)

// Report summarises one sweep.
type Report struct {
	Root    string   `json:"root"`
	Scanned int      `json:"scanned"`
	Deleted []string `json:"deleted,omitempty"`
	Kept    int      `json:"kept"`
}

// Sweeper deletes files by age.
type Sweeper struct {
	Clock  clock.Clock
	Logger logger.Logger
}

// NewSweeper returns a Sweeper reading time from clk.
func NewSweeper(clk clock.Clock, log logger.Logger) *Sweeper {
	if clk == nil {
		clk = clock.WallClock
	}
	return &Sweeper{Clock: clk, Logger: log}
}

// Sweep removes the regular files directly under root that match pattern and
// were last modified strictly before now minus days. A file exactly at the
// threshold is kept. A missing root is not an error.
func (s *Sweeper) Sweep(ctx context.Context, root, pattern string, days int) (Report, error) {
	report := Report{Root: root}
	if days < 1 {
		return report, fmt.Errorf("%w: got %d", ErrInvalidRetention, days)
	}
	if _, err := filepath.Match(pattern, ""); err != nil {
		return report, fmt.Errorf("%w: pattern %q: %v", ErrSweep, pattern, err)
	}

	entries, err := os.ReadDir(root)
	if errors.Is(err, fs.ErrNotExist) {
		return report, nil
	}
	if err != nil {
		return report, fmt.Errorf("%w: read %s: %w", ErrSweep, root, err)
	}

	cutoff := s.Clock.Now().Add(-time.Duration(days) * day)
	var errs []error
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return report, fmt.Errorf("%w: %w", ErrSweep, err)
		}
		if !entry.Type().IsRegular() {
			continue
		}
		if ok, _ := filepath.Match(pattern, entry.Name()); !ok {
			continue
		}
		report.Scanned++

		info, err := entry.Info()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !info.ModTime().Before(cutoff) {
			report.Kept++
			continue
		}

		p := filepath.Join(root, entry.Name())
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
			continue
		}
		report.Deleted = append(report.Deleted, entry.Name())
		s.Logger.Info("expired file removed", "path", p, "modified", info.ModTime().Format(time.RFC3339))
	}

	if len(errs) > 0 {
		return report, fmt.Errorf("%w: %s: %w", ErrSweep, root, errors.Join(errs...))
	}
	s.Logger.Info("retention applied",
		"root", root,
		"days", days,
		"deleted", len(report.Deleted),
		"kept", report.Kept,
	)
	return report, nil
}
