package archive

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/kebairia/sitebackup/internal/logger"
)

// writeTree streams the contents of srcDir into tw. Entry names are relative
// to srcDir, placed under prefix when prefix is not empty; srcDir itself is
// only recorded as an entry when a prefix names it. Regular files,
// directories and symlinks are stored, anything else is skipped.
func writeTree(ctx context.Context, tw *tar.Writer, srcDir, prefix string, log logger.Logger) error {
	return filepath.WalkDir(srcDir, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return context.Cause(ctx)
		}

		rel, err := filepath.Rel(srcDir, p)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)
		if name == "." {
			if prefix == "" {
				return nil
			}
			name = prefix
		} else if prefix != "" {
			name = path.Join(prefix, name)
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		var link string
		switch mode := info.Mode(); {
		case mode.IsRegular(), mode.IsDir():
		case mode&fs.ModeSymlink != 0:
			if link, err = os.Readlink(p); err != nil {
				return err
			}
		default:
			log.Debug("skipping special file", "path", p, "mode", mode.String())
			return nil
		}

		hdr, err := tar.FileInfoHeader(info, link)
		if err != nil {
			return fmt.Errorf("header for %s: %w", p, err)
		}
		hdr.Name = name
		if info.IsDir() {
			hdr.Name += "/"
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return fmt.Errorf("write header for %s: %w", p, err)
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		return copyFileInto(tw, p)
	})
}

func copyFileInto(w io.Writer, p string) error {
	f, err := os.Open(p)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("copy %s: %w", p, err)
	}
	return nil
}

// writeArchive creates dest from srcDir using codec. The archive is written
// to dest+".partial" and renamed only after every writer closed cleanly, so
// dest never holds a truncated archive.
func writeArchive(ctx context.Context, dest, srcDir, prefix string, codec Codec, log logger.Logger) (err error) {
	partial := dest + ".partial"
	f, err := os.OpenFile(partial, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			f.Close()
			os.Remove(partial)
		}
	}()

	cw, err := codec.NewWriter(f)
	if err != nil {
		return err
	}
	tw := tar.NewWriter(cw)

	if err = writeTree(ctx, tw, srcDir, prefix, log); err != nil {
		return err
	}
	if err = tw.Close(); err != nil {
		return fmt.Errorf("close tar stream: %w", err)
	}
	if err = cw.Close(); err != nil {
		return fmt.Errorf("close %s stream: %w", codec.Name(), err)
	}
	if err = f.Sync(); err != nil {
		return err
	}
	if err = f.Close(); err != nil {
		return err
	}
	return os.Rename(partial, dest)
}

// listArchive reads every header of the archive at p without extracting
// anything and drains the compressed stream so its trailer is checked too.
func listArchive(p string, codec Codec) ([]string, error) {
	f, err := os.Open(p)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cr, err := codec.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer cr.Close()

	var names []string
	tr := tar.NewReader(cr)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return names, err
		}
		names = append(names, hdr.Name)
	}
	if _, err := io.Copy(io.Discard, cr); err != nil {
		return names, err
	}
	return names, nil
}
