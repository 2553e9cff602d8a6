package archive

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kebairia/sitebackup/internal/logger"
	"github.com/kebairia/sitebackup/internal/staging"
)

func newTree(t *testing.T) (staging.Tree, string) {
	t.Helper()
	backups := t.TempDir()
	tree, err := staging.NewManager(backups, logger.Nop()).Create(runID)
	require.NoError(t, err)

	writeFile(t, filepath.Join(tree.DB, "db-"+runID+".sql"), "-- MySQL dump\n")
	writeFile(t, filepath.Join(tree.Files, "config-"+runID+".tar.gz"), "not really a tarball")
	writeFile(t, filepath.Join(tree.Root, "env.conf"), "DB_HOST=db\n")
	writeFile(t, filepath.Join(tree.Root, "composer.json"), "{}\n")
	return tree, backups
}

// stagedPaths lists the tree the way the final archive is expected to.
func stagedPaths(t *testing.T, tree staging.Tree) []string {
	t.Helper()
	base := filepath.Dir(tree.Root)
	var paths []string
	err := filepath.WalkDir(tree.Root, func(p string, d fs.DirEntry, err error) error {
		require.NoError(t, err)
		rel, err := filepath.Rel(base, p)
		require.NoError(t, err)
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			rel += "/"
		}
		paths = append(paths, rel)
		return nil
	})
	require.NoError(t, err)
	return paths
}

func TestFinalizer_CompressVerifyRoundTrip(t *testing.T) {
	for _, codec := range []Codec{Gzip, Zstd, LZ4} {
		t.Run(codec.Name(), func(t *testing.T) {
			tree, backups := newTree(t)
			f := NewFinalizer(codec, 0, logger.Nop())
			dest := filepath.Join(backups, ArchiveName("site", runID, codec))

			require.NoError(t, f.Compress(context.Background(), tree, dest))
			info, err := os.Stat(dest)
			require.NoError(t, err)
			assert.Positive(t, info.Size())
			assert.NoFileExists(t, dest+".partial")

			names, err := f.Verify(dest)
			require.NoError(t, err)
			assert.Equal(t, stagedPaths(t, tree), names)
			assert.Contains(t, names, runID+"/db/db-"+runID+".sql")
			assert.Contains(t, names, runID+"/env.conf")
		})
	}
}

func TestFinalizer_VerifyRejectsCorruptArchives(t *testing.T) {
	tree, backups := newTree(t)
	f := NewFinalizer(Gzip, 0, logger.Nop())
	good := filepath.Join(backups, ArchiveName("site", runID, Gzip))
	require.NoError(t, f.Compress(context.Background(), tree, good))
	data, err := os.ReadFile(good)
	require.NoError(t, err)

	cases := map[string][]byte{
		"empty":     {},
		"garbage":   []byte("this is not a gzip stream at all"),
		"truncated": data[:len(data)/2],
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			p := filepath.Join(t.TempDir(), name+".tar.gz")
			require.NoError(t, os.WriteFile(p, content, 0o644))

			_, err := f.Verify(p)
			assert.ErrorIs(t, err, ErrIntegrity)
		})
	}

	t.Run("missing", func(t *testing.T) {
		_, err := f.Verify(filepath.Join(t.TempDir(), "nope.tar.gz"))
		assert.ErrorIs(t, err, ErrIntegrity)
	})
}

func TestFinalizer_CompressFailureLeavesNothing(t *testing.T) {
	tree, backups := newTree(t)
	f := NewFinalizer(Gzip, 0, logger.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	dest := filepath.Join(backups, ArchiveName("site", runID, Gzip))
	err := f.Compress(ctx, tree, dest)
	require.ErrorIs(t, err, ErrCompression)
	assert.NoFileExists(t, dest)
	assert.NoFileExists(t, dest+".partial")
	assert.DirExists(t, tree.Root)
}

func TestFinalizer_CompressIntoMissingDirectory(t *testing.T) {
	tree, _ := newTree(t)
	err := NewFinalizer(Gzip, 0, logger.Nop()).Compress(context.Background(), tree,
		filepath.Join(t.TempDir(), "missing", "backup.tar.gz"))
	assert.ErrorIs(t, err, ErrCompression)
}

func TestFinalizer_Cleanup(t *testing.T) {
	tree, backups := newTree(t)
	require.NoError(t, NewFinalizer(Gzip, 0, logger.Nop()).Cleanup(tree))
	assert.NoDirExists(t, tree.Root)
	assert.DirExists(t, backups)
}

func TestCodecFor(t *testing.T) {
	for _, name := range []string{"gzip", "zstd", "lz4"} {
		c, err := CodecFor(name)
		require.NoError(t, err)
		assert.Equal(t, name, c.Name())
	}
	_, err := CodecFor("rar")
	assert.Error(t, err)
}
