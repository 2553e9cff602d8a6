package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

var (
	compressions = map[string]bool{"gzip": true, "zstd": true, "lz4": true}
	flavors      = map[string]bool{"mysql": true, "mariadb": true}
	modes        = map[string]bool{ModeInteractive: true, ModeSilent: true}
)

// Validate checks every field required by the pipeline. It reports all
// problems at once so a misconfigured project can be fixed in one pass.
func (c Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if c.Project.Root == "" {
		add("project.root is required")
	} else if info, err := os.Stat(c.Project.Root); err != nil || !info.IsDir() {
		add("project.root %q is not a directory", c.Project.Root)
	}
	if c.Project.Name == "" {
		add("project.name could not be derived")
	}
	if c.Backup.Directory == "" {
		add("backup.directory is required")
	}
	if c.Backup.TimestampFormat == "" {
		add("backup.timestamp_format is required")
	} else if strings.ContainsAny(c.Backup.TimestampFormat, `/\`) {
		add("backup.timestamp_format must not contain path separators")
	}
	if !compressions[c.Backup.Compression] {
		add("backup.compression %q is not one of gzip, zstd, lz4", c.Backup.Compression)
	}
	for _, dir := range c.Backup.Directories {
		if dir == "" || filepath.IsAbs(dir) || !filepath.IsLocal(dir) {
			add("backup.directories entry %q must be a relative path inside the project", dir)
		}
	}
	if len(c.Backup.Files) == 0 {
		add("backup.files must name at least one file")
	}
	for _, f := range c.Backup.Files {
		if f.Source == "" || !filepath.IsLocal(f.Source) {
			add("backup.files source %q must be a relative path inside the project", f.Source)
		}
		if f.Target == "" || strings.ContainsAny(f.Target, `/\`) {
			add("backup.files target %q must be a plain file name", f.Target)
		}
	}
	if c.Retention.Days < 1 {
		add("retention.days must be a positive number of days, got %d", c.Retention.Days)
	}

	if c.Database.Host == "" {
		add("database.host is required")
	}
	if port, err := strconv.Atoi(c.Database.Port); err != nil || port < 1 || port > 65535 {
		add("database.port %q is not a valid port", c.Database.Port)
	}
	if c.Database.Name == "" {
		add("database.name is required")
	}
	if !c.VaultEnabled() {
		if c.Database.User == "" {
			add("database.user is required")
		}
		if c.Database.Password == "" {
			add("database.password is required")
		}
	}
	if c.Database.DumpBinary == "" {
		add("database.dump_binary is required")
	}
	if !flavors[c.Database.Flavor] {
		add("database.flavor %q is not one of mysql, mariadb", c.Database.Flavor)
	}
	if c.Database.Timeout < 0 || c.Archive.Timeout < 0 {
		add("timeouts must not be negative")
	}
	if c.Lock.Wait <= 0 {
		add("lock.wait must be positive")
	}
	if !modes[c.Mode] {
		add("mode %q is not one of interactive, silent", c.Mode)
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrValidateConfig, strings.Join(problems, "; "))
	}
	return nil
}
