package database

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
)

// CredentialFile is a MySQL option file holding one set of credentials.
// It is readable by the owning user only and lives for a single dump.
type CredentialFile struct {
	path string
}

// OpenCredentials writes creds to a new 0600 option file in dir (the system
// temp directory when dir is empty). The caller must Close it.
func OpenCredentials(dir string, creds Credentials) (*CredentialFile, error) {
	f, err := os.CreateTemp(dir, "sitebackup-*.cnf")
	if err != nil {
		return nil, fmt.Errorf("create credentials file: %w", err)
	}
	cf := &CredentialFile{path: f.Name()}

	if err := f.Chmod(0o600); err != nil {
		f.Close()
		cf.Close()
		return nil, fmt.Errorf("restrict credentials file: %w", err)
	}
	if _, err := f.WriteString(optionFile(creds)); err != nil {
		f.Close()
		cf.Close()
		return nil, fmt.Errorf("write credentials file: %w", err)
	}
	if err := f.Close(); err != nil {
		cf.Close()
		return nil, fmt.Errorf("close credentials file: %w", err)
	}
	return cf, nil
}

// Path returns the option file location, for --defaults-extra-file.
func (c *CredentialFile) Path() string {
	return c.path
}

// Close removes the option file. It is safe to call more than once.
func (c *CredentialFile) Close() error {
	if c == nil || c.path == "" {
		return nil
	}
	err := os.Remove(c.path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove credentials file: %w", err)
	}
	c.path = ""
	return nil
}

// WithCredentials materialises creds for the duration of fn only. The file
// is removed on every return path of fn, including panics.
func WithCredentials(dir string, creds Credentials, fn func(path string) error) (err error) {
	cf, err := OpenCredentials(dir, creds)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := cf.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(cf.Path())
}

func optionFile(c Credentials) string {
	var b strings.Builder
	b.WriteString("[client]\n")
	b.WriteString("host=" + quoteOption(c.Host) + "\n")
	b.WriteString("port=" + quoteOption(c.Port) + "\n")
	b.WriteString("user=" + quoteOption(c.User) + "\n")
	b.WriteString("password=" + quoteOption(c.Password) + "\n")
	return b.String()
}

// quoteOption double-quotes a value so '#', ';' and spaces survive the
// option file parser.
func quoteOption(v string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)
	return `"` + r.Replace(v) + `"`
}
