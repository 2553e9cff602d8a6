package operations

import (
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/kebairia/sitebackup/internal/config"
)

// Run describes one invocation of the pipeline.
type Run struct {
	ID            string
	CorrelationID string
	StartedAt     time.Time
	ProjectRoot   string
	ProjectName   string
	BackupsRoot   string
	Directories   []string
	Files         []config.FileSpec
	RetentionDays int
}

// NewRun derives a run from cfg, identified by the start time.
func NewRun(cfg config.Config, now time.Time) Run {
	return Run{
		ID:            now.Format(cfg.Backup.TimestampFormat),
		CorrelationID: uuid.NewString(),
		StartedAt:     now,
		ProjectRoot:   cfg.Project.Root,
		ProjectName:   cfg.Project.Name,
		BackupsRoot:   cfg.Backup.Directory,
		Directories:   append([]string(nil), cfg.Backup.Directories...),
		Files:         append([]config.FileSpec(nil), cfg.Backup.Files...),
		RetentionDays: cfg.Retention.Days,
	}
}

// StagingRoot is where this run's staging tree lives.
func (r Run) StagingRoot() string {
	return filepath.Join(r.BackupsRoot, r.ID)
}

// LogsRoot holds run transcripts.
func (r Run) LogsRoot() string {
	return filepath.Join(r.BackupsRoot, "logs")
}

// LogPath is this run's transcript.
func (r Run) LogPath() string {
	return filepath.Join(r.LogsRoot(), "backup-"+r.ID+".log")
}

// DumpName is the SQL file name inside the staging db/ directory.
func (r Run) DumpName() string {
	return "db-" + r.ID + ".sql"
}
