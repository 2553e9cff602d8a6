package database

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-sql-driver/mysql"

	"github.com/kebairia/sitebackup/internal/config"
	"github.com/kebairia/sitebackup/internal/logger"
)

const (
	mysqlEngine = "mysql"

	FlavorMySQL   = "mysql"
	FlavorMariaDB = "mariadb"

	stderrTail = 512
)

// CredentialSource resolves credentials at the moment they are needed.
type CredentialSource func(ctx context.Context) (Credentials, error)

// MySQLOption lets you override default settings on a MySQL.
type MySQLOption func(*MySQL)

// MySQL exports a MySQL or MariaDB database with mysqldump.
type MySQL struct {
	Database       string
	Host           string
	Port           string
	Binary         string
	Flavor         string
	CredentialsDir string
	Timeout        time.Duration
	Logger         logger.Logger

	credentials CredentialSource
	openDB      func(dsn string) (*sql.DB, error)
}

// NewMySQL returns a MySQL configured from cfg plus any overrides.
func NewMySQL(cfg config.Config, log logger.Logger, opts ...MySQLOption) *MySQL {
	db := cfg.Database
	m := &MySQL{
		Database:       db.Name,
		Host:           db.Host,
		Port:           db.Port,
		Binary:         db.DumpBinary,
		Flavor:         db.Flavor,
		CredentialsDir: db.CredentialsDir,
		Timeout:        db.Timeout,
		Logger:         log,
		credentials:    StaticCredentials(db.User, db.Password),
		openDB: func(dsn string) (*sql.DB, error) {
			return sql.Open("mysql", dsn)
		},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// StaticCredentials returns a source that always yields user and password.
func StaticCredentials(user, password string) CredentialSource {
	return func(context.Context) (Credentials, error) {
		return Credentials{User: user, Password: password}, nil
	}
}

// WithCredentialSource replaces where the user and password come from.
func WithCredentialSource(src CredentialSource) MySQLOption {
	return func(m *MySQL) {
		if src != nil {
			m.credentials = src
		}
	}
}

// WithDumpBinary overrides the mysqldump executable.
func WithDumpBinary(path string) MySQLOption {
	return func(m *MySQL) {
		if path != "" {
			m.Binary = path
		}
	}
}

// WithOpenDB overrides how the preflight connection is opened.
func WithOpenDB(open func(dsn string) (*sql.DB, error)) MySQLOption {
	return func(m *MySQL) {
		if open != nil {
			m.openDB = open
		}
	}
}

func (m *MySQL) resolveCredentials(ctx context.Context) (Credentials, error) {
	creds, err := m.credentials(ctx)
	if err != nil {
		return Credentials{}, fmt.Errorf("%w: resolve credentials: %w", ErrDump, err)
	}
	creds.Host = m.Host
	creds.Port = m.Port
	return creds, nil
}

// withTimeout bounds ctx by m.Timeout when one is configured.
func (m *MySQL) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeoutCause(ctx, m.Timeout, ErrTimeout)
}

// Ping checks that the server accepts the credentials before any dump is
// attempted. The DSN is built in-process and never reaches a command line.
func (m *MySQL) Ping(ctx context.Context) error {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	creds, err := m.resolveCredentials(ctx)
	if err != nil {
		return err
	}

	dsn := mysql.NewConfig()
	dsn.User = creds.User
	dsn.Passwd = creds.Password
	dsn.Net = "tcp"
	dsn.Addr = net.JoinHostPort(creds.Host, creds.Port)
	dsn.DBName = m.Database
	dsn.Timeout = 10 * time.Second

	db, err := m.openDB(dsn.FormatDSN())
	if err != nil {
		return fmt.Errorf("%w: open connection to %s: %w", ErrDump, creds, err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: database unreachable at %s: %w", ErrDump, creds, err)
	}
	m.Logger.Debug("database reachable", "database", m.Database, "host", creds.Host)
	return nil
}

func (m *MySQL) dumpArgs(credentialsPath, dest string) []string {
	// --defaults-extra-file must come first for mysqldump to honour it.
	args := []string{
		"--defaults-extra-file=" + credentialsPath,
		"--single-transaction",
		"--skip-lock-tables",
		"--routines",
		"--triggers",
	}
	if m.Flavor != FlavorMariaDB {
		args = append(args, "--set-gtid-purged=OFF")
	}
	return append(args, "--result-file="+dest, m.Database)
}

// Dump writes one consistent SQL snapshot of the database to dest. The
// credentials exist on disk only while mysqldump runs.
func (m *MySQL) Dump(ctx context.Context, dest string) error {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	creds, err := m.resolveCredentials(ctx)
	if err != nil {
		return err
	}

	m.Logger.Info("backup started",
		"database", m.Database,
		"engine", mysqlEngine,
		"path", dest,
	)
	start := time.Now()

	err = WithCredentials(m.CredentialsDir, creds, func(cnf string) error {
		var stderr bytes.Buffer
		cmd := exec.CommandContext(ctx, m.Binary, m.dumpArgs(cnf, dest)...)
		cmd.Stdout = io.Discard
		cmd.Stderr = &stderr

		if err := cmd.Run(); err != nil {
			if cause := context.Cause(ctx); cause != nil {
				err = fmt.Errorf("%w (%v)", cause, err)
			}
			return fmt.Errorf("%w: %s: %w%s", ErrDump, m.Binary, err, tail(stderr.Bytes()))
		}
		return nil
	})
	if err != nil {
		if !errors.Is(err, ErrDump) {
			err = fmt.Errorf("%w: %w", ErrDump, err)
		}
		return err
	}

	var size string
	if info, statErr := os.Stat(dest); statErr == nil {
		size = humanize.Bytes(uint64(info.Size()))
	}
	m.Logger.Info("backup completed",
		"database", m.Database,
		"size", size,
		"duration", time.Since(start).String(),
	)
	return nil
}

func tail(b []byte) string {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return ""
	}
	if len(b) > stderrTail {
		b = b[len(b)-stderrTail:]
	}
	return ": " + string(b)
}

// GetName returns database name.
func (m *MySQL) GetName() string { return m.Database }

// GetEngine returns engine name.
func (m *MySQL) GetEngine() string { return mysqlEngine }
