package operations

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kebairia/sitebackup/internal/archive"
	"github.com/kebairia/sitebackup/internal/staging"
)

const MetadataFilename = "metadata.json"

// Metadata describes the contents of one run's archive.
type Metadata struct {
	RunID         string                    `json:"run_id"`
	CorrelationID string                    `json:"correlation_id"`
	Project       string                    `json:"project"`
	Engine        string                    `json:"engine"`
	Database      string                    `json:"database"`
	DumpFile      string                    `json:"dump_file"`
	DumpSizeBytes int64                     `json:"dump_size_bytes"`
	Directories   []archive.DirectoryResult `json:"directories"`
	Files         []string                  `json:"files"`
	StartedAt     time.Time                 `json:"started_at"`
	WrittenAt     time.Time                 `json:"written_at"`
}

// Write stores the metadata as indented JSON in dirPath.
func (m *Metadata) Write(dirPath string) error {
	filePath := filepath.Join(dirPath, MetadataFilename)

	jsonFile, err := os.OpenFile(filePath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return fmt.Errorf("%w: create metadata file %q: %v", staging.ErrFilesystem, filePath, err)
	}
	defer jsonFile.Close()

	encoder := json.NewEncoder(jsonFile)
	encoder.SetIndent("", "  ")

	if err := encoder.Encode(m); err != nil {
		return fmt.Errorf("%w: encode metadata JSON: %v", staging.ErrFilesystem, err)
	}
	return nil
}

// LoadMetadata reads a metadata file written by Write.
func LoadMetadata(filePath string) (Metadata, error) {
	var m Metadata
	jsonFile, err := os.Open(filePath)
	if err != nil {
		return m, fmt.Errorf("couldn't open metadata file %q: %w", filePath, err)
	}
	defer jsonFile.Close()

	if err := json.NewDecoder(jsonFile).Decode(&m); err != nil {
		return m, fmt.Errorf("decode metadata JSON: %w", err)
	}
	return m, nil
}
