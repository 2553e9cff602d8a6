package operations

import (
	"context"
	"errors"
	"fmt"

	"github.com/kebairia/sitebackup/internal/archive"
	"github.com/kebairia/sitebackup/internal/config"
	"github.com/kebairia/sitebackup/internal/database"
	"github.com/kebairia/sitebackup/internal/retention"
	"github.com/kebairia/sitebackup/internal/staging"
)

// State is a position in the run's linear lifecycle.
type State int

const (
	StateInit State = iota
	StateStagingReady
	StateDbDumped
	StateFilesArchived
	StateFinalized
	StateRetentionApplied
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateStagingReady:
		return "staging-ready"
	case StateDbDumped:
		return "db-dumped"
	case StateFilesArchived:
		return "files-archived"
	case StateFinalized:
		return "finalized"
	case StateRetentionApplied:
		return "retention-applied"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Stage names the step that moves a run to its next state.
type Stage string

const (
	StageLock      Stage = "lock"
	StageStaging   Stage = "staging"
	StageDatabase  Stage = "database dump"
	StageFiles     Stage = "file archive"
	StageFinalize  Stage = "finalize"
	StageRetention Stage = "retention"
)

// StageError reports which stage stopped the run.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %q failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// ErrLocked indicates another run holds the lock for the same backups directory.
var ErrLocked = errors.New("another backup run is in progress")

// Process exit codes, one per failure kind.
const (
	ExitOK          = 0
	ExitFailure     = 1
	ExitConfig      = 2
	ExitLocked      = 3
	ExitFilesystem  = 4
	ExitDump        = 5
	ExitArchive     = 6
	ExitCopy        = 7
	ExitCompression = 8
	ExitIntegrity   = 9
	ExitRetention   = 10
	ExitInterrupted = 130
)

var exitCodes = []struct {
	target error
	code   int
}{
	{context.Canceled, ExitInterrupted},
	{config.ErrLoadConfig, ExitConfig},
	{config.ErrValidateConfig, ExitConfig},
	{ErrLocked, ExitLocked},
	{database.ErrDump, ExitDump},
	{archive.ErrArchive, ExitArchive},
	{archive.ErrCopy, ExitCopy},
	{archive.ErrCompression, ExitCompression},
	{archive.ErrIntegrity, ExitIntegrity},
	{retention.ErrSweep, ExitRetention},
	{retention.ErrInvalidRetention, ExitRetention},
	{staging.ErrFilesystem, ExitFilesystem},
}

// ExitCode maps err to the process exit status for its failure kind.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	for _, ec := range exitCodes {
		if errors.Is(err, ec.target) {
			return ec.code
		}
	}
	return ExitFailure
}
