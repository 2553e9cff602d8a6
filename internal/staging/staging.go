package staging

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kebairia/sitebackup/internal/logger"
)

// ErrFilesystem indicates that the staging tree could not be created or verified.
var ErrFilesystem = errors.New("filesystem error")

const (
	filesDir = "files"
	dbDir    = "db"
)

// Tree is the per-run working directory: Root holds loose files, Files the
// per-directory tarballs and DB the database dump.
type Tree struct {
	Root  string
	Files string
	DB    string
}

// Manager creates staging trees under a backups root.
type Manager struct {
	BackupsRoot string
	Logger      logger.Logger
}

// NewManager returns a Manager rooted at backupsRoot.
func NewManager(backupsRoot string, log logger.Logger) *Manager {
	return &Manager{BackupsRoot: backupsRoot, Logger: log}
}

// Create makes <BackupsRoot>/<runID> with its files/ and db/ children and
// verifies every directory afterwards. A directory already present for runID
// is an error, so two runs never share one tree.
func (m *Manager) Create(runID string) (Tree, error) {
	if err := os.MkdirAll(m.BackupsRoot, 0o755); err != nil {
		return Tree{}, fmt.Errorf("%w: create backups root %q: %v", ErrFilesystem, m.BackupsRoot, err)
	}
	if err := verifyDir(m.BackupsRoot); err != nil {
		return Tree{}, err
	}

	tree := Tree{Root: filepath.Join(m.BackupsRoot, runID)}
	tree.Files = filepath.Join(tree.Root, filesDir)
	tree.DB = filepath.Join(tree.Root, dbDir)

	if err := os.Mkdir(tree.Root, 0o750); err != nil {
		return Tree{}, fmt.Errorf("%w: create staging directory %q: %v", ErrFilesystem, tree.Root, err)
	}
	for _, dir := range []string{tree.Files, tree.DB} {
		if err := os.Mkdir(dir, 0o750); err != nil {
			return Tree{}, fmt.Errorf("%w: create staging directory %q: %v", ErrFilesystem, dir, err)
		}
	}
	for _, dir := range []string{tree.Root, tree.Files, tree.DB} {
		if err := verifyDir(dir); err != nil {
			return Tree{}, err
		}
	}

	m.Logger.Info("staging tree created", "path", tree.Root)
	return tree, nil
}

func verifyDir(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: verify %q: %v", ErrFilesystem, path, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %q is not a directory", ErrFilesystem, path)
	}
	return nil
}
