package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ErrLoadConfig indicates a failure to read or parse the configuration sources.
var ErrLoadConfig = errors.New("config load failed")

// ErrValidateConfig indicates that the loaded configuration is invalid.
var ErrValidateConfig = errors.New("configuration validation failed")

const (
	ModeInteractive = "interactive"
	ModeSilent      = "silent"

	envPrefix = "SITEBACKUP"
)

// Config represents the fully resolved configuration of one backup run.
// It is produced once by Load, checked by Validate and never mutated afterwards.
type Config struct {
	Mode      string          `mapstructure:"mode"      yaml:"mode"`
	Project   ProjectConfig   `mapstructure:"project"   yaml:"project"`
	Backup    BackupConfig    `mapstructure:"backup"    yaml:"backup"`
	Archive   ArchiveConfig   `mapstructure:"archive"   yaml:"archive"`
	Retention RetentionConfig `mapstructure:"retention" yaml:"retention"`
	Database  DatabaseConfig  `mapstructure:"database"  yaml:"database"`
	Vault     VaultConfig     `mapstructure:"vault"     yaml:"vault"`
	Lock      LockConfig      `mapstructure:"lock"      yaml:"lock"`
	Log       LogConfig       `mapstructure:"log"       yaml:"log"`
}

// ProjectConfig locates the project being backed up.
type ProjectConfig struct {
	Root string `mapstructure:"root" yaml:"root"`
	Name string `mapstructure:"name" yaml:"name,omitempty"`
}

// BackupConfig contains global backup options.
type BackupConfig struct {
	Directory       string     `mapstructure:"directory"        yaml:"directory"`
	TimestampFormat string     `mapstructure:"timestamp_format" yaml:"timestamp_format"`
	Directories     []string   `mapstructure:"directories"      yaml:"directories"`
	Files           []FileSpec `mapstructure:"files"            yaml:"files"`
	Compression     string     `mapstructure:"compression"      yaml:"compression"`
}

// FileSpec names a mandatory project file and the name it takes in the staging tree.
type FileSpec struct {
	Source string `mapstructure:"source" yaml:"source"`
	Target string `mapstructure:"target" yaml:"target"`
}

// ArchiveConfig bounds the archiving steps.
type ArchiveConfig struct {
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// RetentionConfig specifies the age after which archives and logs are removed.
type RetentionConfig struct {
	Days int `mapstructure:"days" yaml:"days"`
}

// DatabaseConfig holds the MySQL connection and dump settings.
type DatabaseConfig struct {
	Host           string        `mapstructure:"host"            yaml:"host"`
	Port           string        `mapstructure:"port"            yaml:"port"`
	Name           string        `mapstructure:"name"            yaml:"name"`
	User           string        `mapstructure:"user"            yaml:"user"`
	Password       string        `mapstructure:"password"        yaml:"password"`
	DumpBinary     string        `mapstructure:"dump_binary"     yaml:"dump_binary"`
	Flavor         string        `mapstructure:"flavor"          yaml:"flavor"`
	Timeout        time.Duration `mapstructure:"timeout"         yaml:"timeout"`
	Preflight      bool          `mapstructure:"preflight"       yaml:"preflight"`
	CredentialsDir string        `mapstructure:"credentials_dir" yaml:"credentials_dir,omitempty"`
}

// VaultConfig holds connection settings for HashiCorp Vault. When Address and
// CredentialsPath are both set the database user and password are read from Vault.
type VaultConfig struct {
	Address         string `mapstructure:"address"          yaml:"address,omitempty"`
	Token           string `mapstructure:"token"            yaml:"token,omitempty"`
	RoleID          string `mapstructure:"role_id"          yaml:"role_id,omitempty"`
	ApproleName     string `mapstructure:"approle_name"     yaml:"approle_name,omitempty"`
	CredentialsPath string `mapstructure:"credentials_path" yaml:"credentials_path,omitempty"`
}

// LockConfig controls the run lock scoped to the backups directory.
type LockConfig struct {
	Wait time.Duration `mapstructure:"wait" yaml:"wait"`
}

// LogConfig controls logging.
type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
	File  bool   `mapstructure:"file"  yaml:"file"`
}

// Options tells Load where to find configuration.
type Options struct {
	// ConfigFile is an optional YAML file.
	ConfigFile string
	// EnvFile is a dotenv file; defaults to <project root>/.env when that exists.
	EnvFile string
	// ProjectRoot overrides project.root.
	ProjectRoot string
	// Silent forces silent mode.
	Silent bool
}

// dotenvKeys maps the project's dotenv variables onto configuration keys.
var dotenvKeys = map[string]string{
	"db_host":        "database.host",
	"db_port":        "database.port",
	"db_database":    "database.name",
	"db_username":    "database.user",
	"db_password":    "database.password",
	"backup_path":    "backup.directory",
	"backup_dirs":    "backup.directories",
	"retention_days": "retention.days",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", ModeInteractive)
	v.SetDefault("project.root", "")
	v.SetDefault("project.name", "")
	v.SetDefault("backup.directory", "")
	v.SetDefault("backup.timestamp_format", "2006-01-02_15-04-05")
	v.SetDefault("backup.directories", []string{"config", "modules", "templates", "web/sites", "public/uploads"})
	v.SetDefault("backup.files", []map[string]string{
		{"source": ".env", "target": "env.conf"},
		{"source": "composer.json", "target": "composer.json"},
	})
	v.SetDefault("backup.compression", "gzip")
	v.SetDefault("archive.timeout", time.Hour)
	v.SetDefault("retention.days", 14)
	v.SetDefault("database.host", "127.0.0.1")
	v.SetDefault("database.port", "3306")
	v.SetDefault("database.name", "")
	v.SetDefault("database.user", "")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dump_binary", "mysqldump")
	v.SetDefault("database.flavor", "mysql")
	v.SetDefault("database.timeout", 30*time.Minute)
	v.SetDefault("database.preflight", true)
	v.SetDefault("database.credentials_dir", "")
	v.SetDefault("vault.address", "")
	v.SetDefault("vault.token", "")
	v.SetDefault("vault.role_id", "")
	v.SetDefault("vault.approle_name", "")
	v.SetDefault("vault.credentials_path", "")
	v.SetDefault("lock.wait", 2*time.Second)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", true)
}

// Load reads the configuration from the optional YAML file, the project's
// dotenv file and SITEBACKUP_* environment variables, in increasing order of
// precedence for the YAML file and environment, and returns the resolved Config.
func Load(opts Options) (Config, error) {
	var cfg Config

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read base configuration
	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return cfg, fmt.Errorf("%w: read config %s: %v", ErrLoadConfig, opts.ConfigFile, err)
		}
	}

	if opts.ProjectRoot != "" {
		v.Set("project.root", opts.ProjectRoot)
	}

	envFile, explicit := opts.EnvFile, opts.EnvFile != ""
	if !explicit && v.GetString("project.root") != "" {
		envFile = filepath.Join(v.GetString("project.root"), ".env")
	}
	if envFile != "" {
		if err := mergeDotenv(v, envFile, explicit); err != nil {
			return cfg, err
		}
	}

	if err := v.UnmarshalExact(&cfg); err != nil {
		return cfg, fmt.Errorf("%w: unmarshal config: %v", ErrLoadConfig, err)
	}
	if opts.Silent {
		cfg.Mode = ModeSilent
	}

	return cfg.resolve()
}

// mergeDotenv applies recognised dotenv variables as defaults, so the YAML
// file and the environment still take precedence over them.
func mergeDotenv(v *viper.Viper, path string, explicit bool) error {
	if _, err := os.Stat(path); err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("%w: stat env file %s: %v", ErrLoadConfig, path, err)
	}

	env := viper.New()
	env.SetConfigFile(path)
	env.SetConfigType("env")
	if err := env.ReadInConfig(); err != nil {
		return fmt.Errorf("%w: read env file %s: %v", ErrLoadConfig, path, err)
	}

	for envKey, key := range dotenvKeys {
		if !env.IsSet(envKey) {
			continue
		}
		raw := env.GetString(envKey)
		if key == "backup.directories" {
			v.SetDefault(key, splitList(raw))
			continue
		}
		v.SetDefault(key, raw)
	}
	return nil
}

func splitList(raw string) []string {
	return strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	})
}

// resolve fills derived values: absolute project root, project name and
// the backups directory.
func (c Config) resolve() (Config, error) {
	if c.Project.Root != "" {
		abs, err := filepath.Abs(c.Project.Root)
		if err != nil {
			return c, fmt.Errorf("%w: resolve project root %q: %v", ErrLoadConfig, c.Project.Root, err)
		}
		c.Project.Root = abs
		if c.Project.Name == "" {
			c.Project.Name = filepath.Base(abs)
		}
		if c.Backup.Directory == "" {
			c.Backup.Directory = filepath.Join(abs, "backups")
		}
	}
	if c.Backup.Directory != "" {
		abs, err := filepath.Abs(c.Backup.Directory)
		if err != nil {
			return c, fmt.Errorf("%w: resolve backup directory %q: %v", ErrLoadConfig, c.Backup.Directory, err)
		}
		c.Backup.Directory = abs
	}
	return c, nil
}

// LogsDirectory is where run transcripts are written.
func (c Config) LogsDirectory() string {
	return filepath.Join(c.Backup.Directory, "logs")
}

// Interactive reports whether confirmation prompts should be shown.
func (c Config) Interactive() bool {
	return c.Mode != ModeSilent
}

// VaultEnabled reports whether database credentials come from Vault.
func (c Config) VaultEnabled() bool {
	return c.Vault.Address != "" && c.Vault.CredentialsPath != ""
}
