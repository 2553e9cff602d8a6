package archive

import (
	"fmt"
	"path/filepath"
	"strings"
)

// filler replaces path separators in per-directory archive names.
const filler = "_"

var (
	nameEncoder = strings.NewReplacer("%", "%25", "_", "%5F")
	nameDecoder = strings.NewReplacer("%5F", "_", "%25", "%")
)

// EncodeName turns a relative directory such as "web/sites" into a flat file
// name ("web_sites"). Literal '%' and '_' are percent-escaped first, so
// "a_b" and "a/b" map to different names and DecodeName can invert it.
func EncodeName(dir string) string {
	dir = filepath.ToSlash(filepath.Clean(dir))
	parts := strings.Split(dir, "/")
	for i, p := range parts {
		parts[i] = nameEncoder.Replace(p)
	}
	return strings.Join(parts, filler)
}

// DecodeName reverses EncodeName, returning a slash separated path.
func DecodeName(name string) (string, error) {
	parts := strings.Split(name, filler)
	for i, p := range parts {
		if strings.Count(p, "%") != strings.Count(p, "%25")+strings.Count(p, "%5F") {
			return "", fmt.Errorf("invalid escape in archive name %q", name)
		}
		parts[i] = nameDecoder.Replace(p)
	}
	return strings.Join(parts, "/"), nil
}

// DirectoryArchiveName is the tarball name for dir in run runID.
func DirectoryArchiveName(dir, runID string) string {
	return EncodeName(dir) + "-" + runID + Gzip.Extension()
}

// ArchiveName is the final archive name for a project run.
func ArchiveName(project, runID string, codec Codec) string {
	return "backup-" + project + "-" + runID + codec.Extension()
}
