package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the transferbox daemon configuration.
type Config struct {
	Server Server `yaml:"server"`
	Paths  Paths  `yaml:"paths"`
	SMTP   SMTP   `yaml:"smtp"`
	Limits Limits `yaml:"limits"`
	Jobs   Jobs   `yaml:"jobs"`
}

// Server holds network listener settings.
type Server struct {
	HealthPort int    `yaml:"health_port"`
	BaseURL    string `yaml:"base_url"` // external URL used in notification links
}

// Paths holds filesystem paths for data and attachment content.
type Paths struct {
	Data        string `yaml:"data"`
	Database    string `yaml:"database"`
	ContentRoot string `yaml:"content_root"`
}

// SMTP holds outgoing mail settings.
type SMTP struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
	FromName string `yaml:"from_name"`
}

// Limits holds size and retention limits. The values are injected into the
// area store at construction; there is no process-global limit state.
type Limits struct {
	MaxUploadKB         int64 `yaml:"max_upload_kb"`          // global ceiling for per-area limits
	PersonalBoxUploadKB int64 `yaml:"personal_box_upload_kb"` // forced limit for personal boxes
	DebounceMinutes     int   `yaml:"debounce_minutes"`       // quiet period before audit digests go out
	AuditRetentionDays  int   `yaml:"audit_retention_days"`
}

// Jobs holds cron expressions for the periodic jobs and the holiday dates
// (2006-01-02) on which pre-deletion warnings are suppressed.
type Jobs struct {
	AuditFlush  string   `yaml:"audit_flush"`
	Retention   string   `yaml:"retention"`
	PreDeletion string   `yaml:"pre_deletion"`
	SanityCheck string   `yaml:"sanity_check"`
	Holidays    []string `yaml:"holidays"`
}

// DebounceWindow returns the audit debounce window as a duration.
func (l Limits) DebounceWindow() time.Duration {
	return time.Duration(l.DebounceMinutes) * time.Minute
}

// AuditRetention returns the audit purge horizon as a duration.
func (l Limits) AuditRetention() time.Duration {
	return time.Duration(l.AuditRetentionDays) * 24 * time.Hour
}

// Load reads and parses a YAML config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := Default()

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	return cfg, nil
}

// Default returns a config populated with default values.
func Default() *Config {
	return &Config{
		Server: Server{
			HealthPort: 8712,
			BaseURL:    "http://localhost:8712",
		},
		Paths: Paths{
			Data:        "./data",
			Database:    "./data/transferbox.db",
			ContentRoot: "./data/attachments",
		},
		SMTP: SMTP{
			Host:     "localhost",
			Port:     25,
			From:     "noreply@localhost",
			FromName: "Data Transfer",
		},
		Limits: Limits{
			MaxUploadKB:         2097152, // 2 GB expressed in KB
			PersonalBoxUploadKB: 102400,  // 100 MB
			DebounceMinutes:     10,
			AuditRetentionDays:  30,
		},
		Jobs: Jobs{
			AuditFlush:  "*/5 * * * *",
			Retention:   "20 * * * *",
			PreDeletion: "30 5 * * *",
			SanityCheck: "45 3 * * *",
		},
	}
}
