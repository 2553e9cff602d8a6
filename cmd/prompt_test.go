package cmd

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kebairia/sitebackup/internal/archive"
	"github.com/kebairia/sitebackup/internal/operations"
)

func TestConfirm(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{"  yes  \n", true},
		{"n\n", false},
		{"\n", false},
		{"", false},
		{"yep\n", false},
		{"y", true},
	}
	for _, tt := range tests {
		t.Run(strings.TrimSpace(tt.input), func(t *testing.T) {
			var out bytes.Buffer
			got, err := confirm(strings.NewReader(tt.input), &out, "Proceed?")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, "Proceed? [y/N]: ", out.String())
		})
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("tty gone") }

func TestConfirmReadError(t *testing.T) {
	_, err := confirm(failingReader{}, &bytes.Buffer{}, "Proceed?")
	require.Error(t, err)
}

func TestPrintFailureNamesStage(t *testing.T) {
	color.NoColor = true
	var out bytes.Buffer
	err := &operations.StageError{Stage: operations.StageFinalize, Err: archive.ErrIntegrity}

	printFailure(&out, err)
	assert.Equal(t, "FAILED finalize stage: archive integrity check failed (exit 9)\n", out.String())
}

func TestPrintSuccess(t *testing.T) {
	color.NoColor = true
	var out bytes.Buffer
	printSuccess(&out, operations.Result{
		RunID:       "2024-05-01_02-00-00",
		Archive:     "/srv/site/backups/backup-site-2024-05-01_02-00-00.tar.gz",
		ArchiveSize: 2048,
		Entries:     []string{"a", "b"},
	})
	assert.Equal(t,
		"OK backup 2024-05-01_02-00-00 written to /srv/site/backups/backup-site-2024-05-01_02-00-00.tar.gz (2.0 kB, 2 entries)\n",
		out.String())
}
