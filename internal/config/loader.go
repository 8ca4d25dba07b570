package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// ErrLoadConfig indicates a failure to read or parse the YAML configuration.
var ErrLoadConfig = errors.New("config load failed")

// ErrValidateConfig indicates that the loaded configuration is invalid.
var ErrValidateConfig = errors.New("configuration validation failed")

// EnvPrefix prefixes every environment override, e.g. CLOUDBAK_BACKUP_FOLDER.
const EnvPrefix = "CLOUDBAK"

// Config represents the top-level YAML configuration file.
type Config struct {
	Site     string `mapstructure:"site"     yaml:"site"`
	BaseURL  string `mapstructure:"base_url" yaml:"base_url,omitempty"`
	Username string `mapstructure:"username" yaml:"username"`
	Token    string `mapstructure:"token"    yaml:"token,omitempty"`

	Backup   BackupConfig   `mapstructure:"backup"   yaml:"backup"`
	Poll     PollConfig     `mapstructure:"poll"     yaml:"poll"`
	Download DownloadConfig `mapstructure:"download" yaml:"download"`
	Records  RecordsConfig  `mapstructure:"records"  yaml:"records"`
	Vault    VaultConfig    `mapstructure:"vault"    yaml:"vault"`
	Log      LogConfig      `mapstructure:"log"      yaml:"log"`
}

// BackupConfig contains global backup options.
type BackupConfig struct {
	Folder        string `mapstructure:"folder"         yaml:"folder"`
	Attachments   bool   `mapstructure:"attachments"    yaml:"attachments"`
	Bucket        string `mapstructure:"bucket"         yaml:"bucket,omitempty"`
	StateDir      string `mapstructure:"state_dir"      yaml:"state_dir"`
	VerifyArchive bool   `mapstructure:"verify_archive" yaml:"verify_archive"`
}

// PollConfig tunes how often job progress is requested.
type PollConfig struct {
	WikiInterval    time.Duration   `mapstructure:"wiki_interval"    yaml:"wiki_interval"`
	TrackerSchedule []time.Duration `mapstructure:"tracker_schedule" yaml:"tracker_schedule"`
	RequestTimeout  time.Duration   `mapstructure:"request_timeout"  yaml:"request_timeout"`
}

// DownloadConfig tunes the artifact download.
type DownloadConfig struct {
	ChunkSize int           `mapstructure:"chunk_size" yaml:"chunk_size"`
	Timeout   time.Duration `mapstructure:"timeout"    yaml:"timeout,omitempty"` // 0 means no limit
}

// RecordsConfig names the last known location file of each service.
type RecordsConfig struct {
	Confluence string `mapstructure:"confluence" yaml:"confluence"`
	Jira       string `mapstructure:"jira"       yaml:"jira"`
}

// VaultConfig holds connection settings for HashiCorp Vault.
type VaultConfig struct {
	Address     string `mapstructure:"address"      yaml:"address,omitempty"`
	SecretPath  string `mapstructure:"secret_path"  yaml:"secret_path,omitempty"`
	ApproleID   string `mapstructure:"approle_id"   yaml:"approle_id,omitempty"`
	ApproleName string `mapstructure:"approle_name" yaml:"approle_name,omitempty"`
}

// LogConfig selects the log level and an optional log file.
type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
	File  string `mapstructure:"file"  yaml:"file,omitempty"`
}

// flagKeys maps command line flags to configuration keys.
var flagKeys = map[string]string{
	"site":             "site",
	"base-url":         "base_url",
	"user":             "username",
	"token":            "token",
	"folder":           "backup.folder",
	"with-attachments": "backup.attachments",
	"bucket":           "backup.bucket",
	"state-dir":        "backup.state_dir",
	"log-file":         "log.file",
	"log-level":        "log.level",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("site", "")
	v.SetDefault("base_url", "")
	v.SetDefault("username", "")
	v.SetDefault("token", "")

	v.SetDefault("backup.folder", "")
	v.SetDefault("backup.attachments", false)
	v.SetDefault("backup.bucket", "")
	v.SetDefault("backup.state_dir", ".")
	v.SetDefault("backup.verify_archive", true)

	v.SetDefault("poll.wiki_interval", 10*time.Second)
	v.SetDefault("poll.tracker_schedule", []time.Duration{
		10 * time.Second, 20 * time.Second, 30 * time.Second, 60 * time.Second,
	})
	v.SetDefault("poll.request_timeout", 60*time.Second)

	v.SetDefault("download.chunk_size", 64*1024)
	v.SetDefault("download.timeout", time.Duration(0))

	v.SetDefault("records.confluence", "last_backup_file_url_confluence.txt")
	v.SetDefault("records.jira", "last_backup_file_url_jira.txt")

	v.SetDefault("vault.address", "")
	v.SetDefault("vault.secret_path", "")
	v.SetDefault("vault.approle_id", "")
	v.SetDefault("vault.approle_name", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
}

// Load builds the configuration from defaults, the optional YAML file at path, CLOUDBAK_*
// environment variables and finally the flags the user set, in increasing priority.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("%w: read config %s: %v", ErrLoadConfig, path, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for name, key := range flagKeys {
			f := flags.Lookup(name)
			if f == nil {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("%w: bind flag %s: %v", ErrLoadConfig, name, err)
			}
		}
	}

	var cfg Config
	if err := v.UnmarshalExact(&cfg); err != nil {
		return nil, fmt.Errorf("%w: unmarshal config: %v", ErrLoadConfig, err)
	}
	cfg.normalize()
	return &cfg, nil
}

// normalize accepts a full host name as site and cleans up paths.
func (c *Config) normalize() {
	site := strings.TrimSpace(c.Site)
	site = strings.TrimPrefix(site, "https://")
	site = strings.TrimPrefix(site, "http://")
	site = strings.TrimSuffix(site, "/")
	c.Site = strings.TrimSuffix(site, ".atlassian.net")

	if c.Backup.Folder != "" {
		c.Backup.Folder = filepath.Clean(c.Backup.Folder)
	}
	if c.Backup.StateDir != "" {
		c.Backup.StateDir = filepath.Clean(c.Backup.StateDir)
	}
}

// UsesVault reports whether credentials should be read from Vault.
func (c *Config) UsesVault() bool {
	return c.Vault.SecretPath != ""
}

// Validate reports every problem found in the configuration at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Backup.Folder == "" {
		errs = append(errs, errors.New("backup folder is required"))
	}
	if c.Site == "" && c.BaseURL == "" {
		errs = append(errs, errors.New("site or base_url is required"))
	}
	if !c.UsesVault() {
		if c.Username == "" {
			errs = append(errs, errors.New("username is required"))
		}
		if c.Token == "" {
			errs = append(errs, errors.New("token is required"))
		}
	}
	if c.Poll.WikiInterval <= 0 {
		errs = append(errs, errors.New("poll.wiki_interval must be positive"))
	}
	if len(c.Poll.TrackerSchedule) == 0 {
		errs = append(errs, errors.New("poll.tracker_schedule must not be empty"))
	}
	for _, d := range c.Poll.TrackerSchedule {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("poll.tracker_schedule: %s is not positive", d))
			break
		}
	}
	if c.Download.ChunkSize <= 0 {
		errs = append(errs, errors.New("download.chunk_size must be positive"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrValidateConfig, errors.Join(errs...))
	}
	return nil
}
