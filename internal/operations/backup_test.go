package operations

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kebairia/sitebackup/internal/archive"
	"github.com/kebairia/sitebackup/internal/config"
	"github.com/kebairia/sitebackup/internal/logger"
)

const fakeMysqldump = `#!/bin/sh
if [ -n "$FAKE_DUMP_FAIL" ]; then
  echo "mysqldump: Got error: 1045: Access denied for user 'site'@'localhost'" >&2
  exit 2
fi
for arg in "$@"; do
  case "$arg" in
    --result-file=*) echo "CREATE TABLE pages (id int);" > "${arg#--result-file=}" ;;
  esac
done
`

var runStart = time.Date(2024, 5, 1, 2, 0, 0, 0, time.Local)

func writeProjectFile(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

// newProject lays out a site with every default directory except templates.
func newProject(t *testing.T) (config.Config, Run) {
	t.Helper()
	root := t.TempDir()
	writeProjectFile(t, root, ".env", "DB_HOST=127.0.0.1\nDB_PORT=3306\nDB_DATABASE=site\nDB_USERNAME=site\nDB_PASSWORD=s3cr3t\n")
	writeProjectFile(t, root, "composer.json", "{\"name\": \"acme/site\"}\n")
	writeProjectFile(t, root, "config/app.yml", "debug: false\n")
	writeProjectFile(t, root, "modules/blog/module.php", "<?php\n")
	writeProjectFile(t, root, "web/sites/default/index.html", "<html></html>\n")
	writeProjectFile(t, root, "public/uploads/logo.png", "png")

	bin := filepath.Join(t.TempDir(), "mysqldump")
	require.NoError(t, os.WriteFile(bin, []byte(fakeMysqldump), 0o755))

	cfg, err := config.Load(config.Options{ProjectRoot: root, Silent: true})
	require.NoError(t, err)
	cfg.Database.DumpBinary = bin
	cfg.Database.Preflight = false
	cfg.Database.CredentialsDir = t.TempDir()
	require.NoError(t, cfg.Validate())

	return cfg, NewRun(cfg, runStart)
}

func age(t *testing.T, p string, d time.Duration) {
	t.Helper()
	old := time.Now().Add(-d)
	require.NoError(t, os.Chtimes(p, old, old))
}

func TestExecute_FullBackup(t *testing.T) {
	cfg, run := newProject(t)

	// Leftovers from earlier runs.
	require.NoError(t, os.MkdirAll(run.LogsRoot(), 0o755))
	expired := filepath.Join(run.BackupsRoot, "backup-site-2024-03-01_02-00-00.tar.gz")
	recent := filepath.Join(run.BackupsRoot, "backup-site-2024-04-30_02-00-00.tar.gz")
	expiredLog := filepath.Join(run.LogsRoot(), "backup-2024-03-01_02-00-00.log")
	unrelated := filepath.Join(run.BackupsRoot, "notes.txt")
	for _, p := range []string{expired, recent, expiredLog, unrelated} {
		require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))
	}
	age(t, expired, 30*24*time.Hour)
	age(t, expiredLog, 30*24*time.Hour)
	age(t, unrelated, 30*24*time.Hour)
	age(t, recent, 24*time.Hour)

	res, err := Execute(context.Background(), cfg, run, logger.Nop())
	require.NoError(t, err)
	assert.Equal(t, StateDone, res.State)
	assert.Equal(t, ExitOK, ExitCode(err))

	want := filepath.Join(run.BackupsRoot, archive.ArchiveName(cfg.Project.Name, run.ID, archive.Gzip))
	assert.Equal(t, want, res.Archive)
	assert.FileExists(t, want)
	assert.NoDirExists(t, run.StagingRoot())

	id := run.ID
	assert.Subset(t, res.Entries, []string{
		id + "/",
		id + "/db/db-" + id + ".sql",
		id + "/files/config-" + id + ".tar.gz",
		id + "/files/modules-" + id + ".tar.gz",
		id + "/files/web_sites-" + id + ".tar.gz",
		id + "/files/public_uploads-" + id + ".tar.gz",
		id + "/env.conf",
		id + "/composer.json",
		id + "/" + MetadataFilename,
	})
	assert.NotContains(t, res.Entries, id+"/files/templates-"+id+".tar.gz")

	require.Len(t, res.Directories, 5)
	assert.Equal(t, "templates", res.Directories[2].Directory)
	assert.True(t, res.Directories[2].Skipped)

	assert.NoFileExists(t, expired)
	assert.NoFileExists(t, expiredLog)
	assert.FileExists(t, recent)
	assert.FileExists(t, unrelated)
}

func TestExecute_DumpFailureStopsRun(t *testing.T) {
	cfg, run := newProject(t)
	t.Setenv("FAKE_DUMP_FAIL", "1")

	res, err := Execute(context.Background(), cfg, run, logger.Nop())
	require.Error(t, err)
	assert.Equal(t, ExitDump, ExitCode(err))
	assert.Contains(t, err.Error(), "Access denied")
	assert.NotContains(t, err.Error(), "s3cr3t")

	assert.Equal(t, StateFailed, res.State)
	assert.Equal(t, StageDatabase, res.FailedStage)
	assert.DirExists(t, run.StagingRoot())
	assert.NoFileExists(t, filepath.Join(run.BackupsRoot, archive.ArchiveName(cfg.Project.Name, run.ID, archive.Gzip)))

	dumps, err := os.ReadDir(filepath.Join(run.StagingRoot(), "db"))
	require.NoError(t, err)
	assert.Empty(t, dumps)
	files, err := os.ReadDir(filepath.Join(run.StagingRoot(), "files"))
	require.NoError(t, err)
	assert.Empty(t, files)

	left, err := os.ReadDir(cfg.Database.CredentialsDir)
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestExecute_RerunWithSameIDFails(t *testing.T) {
	cfg, run := newProject(t)
	require.NoError(t, os.MkdirAll(run.StagingRoot(), 0o750))

	res, err := Execute(context.Background(), cfg, run, logger.Nop())
	require.Error(t, err)
	assert.Equal(t, ExitFilesystem, ExitCode(err))
	assert.Equal(t, StageStaging, res.FailedStage)
}

func TestExecute_ZstdArchive(t *testing.T) {
	cfg, run := newProject(t)
	cfg.Backup.Compression = "zstd"

	res, err := Execute(context.Background(), cfg, run, logger.Nop())
	require.NoError(t, err)
	assert.Equal(t, ".zst", filepath.Ext(res.Archive))
}

func TestNewRunner_UnknownCodec(t *testing.T) {
	cfg, run := newProject(t)
	cfg.Backup.Compression = "brotli"

	_, err := NewRunner(cfg, run, logger.Nop())
	require.ErrorIs(t, err, config.ErrValidateConfig)
	assert.Equal(t, ExitConfig, ExitCode(err))
}
