package retention

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kebairia/sitebackup/internal/logger"
)

var now = time.Date(2025, 3, 15, 2, 0, 0, 0, time.UTC)

func touch(t *testing.T, dir, name string, modified time.Time) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(name), 0o644))
	require.NoError(t, os.Chtimes(p, modified, modified))
	return p
}

func TestSweep_AgeBoundary(t *testing.T) {
	root := t.TempDir()
	threshold := now.Add(-14 * day)

	old := touch(t, root, "backup-site-old.tar.gz", threshold.Add(-time.Second))
	exact := touch(t, root, "backup-site-exact.tar.gz", threshold)
	fresh := touch(t, root, "backup-site-fresh.tar.gz", threshold.Add(time.Second))
	today := touch(t, root, "backup-site-today.tar.zst", now)
	ancient := touch(t, root, "backup-other-ancient.tar.lz4", now.Add(-400*day))

	s := NewSweeper(testclock.NewClock(now), logger.Nop())
	report, err := s.Sweep(context.Background(), root, ArchivePattern, 14)
	require.NoError(t, err)

	assert.NoFileExists(t, old)
	assert.NoFileExists(t, ancient)
	assert.FileExists(t, exact)
	assert.FileExists(t, fresh)
	assert.FileExists(t, today)
	assert.Equal(t, 5, report.Scanned)
	assert.Equal(t, 3, report.Kept)
	assert.ElementsMatch(t, []string{"backup-site-old.tar.gz", "backup-other-ancient.tar.lz4"}, report.Deleted)
}

func TestSweep_OnlyMatchingRegularFiles(t *testing.T) {
	root := t.TempDir()
	longAgo := now.Add(-90 * day)

	unrelated := touch(t, root, "notes.txt", longAgo)
	staged := filepath.Join(root, "2024-01-01_00-00-00")
	require.NoError(t, os.Mkdir(staged, 0o755))
	require.NoError(t, os.Chtimes(staged, longAgo, longAgo))
	log := touch(t, root, "backup-2024-01-01_00-00-00.log", longAgo)

	s := NewSweeper(testclock.NewClock(now), logger.Nop())
	report, err := s.Sweep(context.Background(), root, ArchivePattern, 1)
	require.NoError(t, err)

	assert.Zero(t, report.Scanned)
	assert.FileExists(t, unrelated)
	assert.DirExists(t, staged)
	assert.FileExists(t, log)

	report, err = s.Sweep(context.Background(), root, LogPattern, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"backup-2024-01-01_00-00-00.log"}, report.Deleted)
	assert.NoFileExists(t, log)
}

func TestSweep_MissingRootIsNoop(t *testing.T) {
	s := NewSweeper(testclock.NewClock(now), logger.Nop())
	report, err := s.Sweep(context.Background(), filepath.Join(t.TempDir(), "logs"), LogPattern, 14)
	require.NoError(t, err)
	assert.Zero(t, report.Scanned)
}

func TestSweep_RejectsNonPositiveDays(t *testing.T) {
	root := t.TempDir()
	p := touch(t, root, "backup-site-x.tar.gz", now)
	s := NewSweeper(testclock.NewClock(now), logger.Nop())

	for _, days := range []int{0, -1} {
		_, err := s.Sweep(context.Background(), root, ArchivePattern, days)
		assert.ErrorIs(t, err, ErrInvalidRetention)
	}
	assert.FileExists(t, p)
}

func TestSweep_BadPattern(t *testing.T) {
	s := NewSweeper(testclock.NewClock(now), logger.Nop())
	_, err := s.Sweep(context.Background(), t.TempDir(), "[", 14)
	assert.ErrorIs(t, err, ErrSweep)
}
