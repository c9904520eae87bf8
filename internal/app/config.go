package app

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ilyakaznacheev/cleanenv"
)

// Config is the root bot configuration.
// Priority: ENV > YAML > defaults (env-default tags).
type Config struct {
	Bot       BotConfig       `yaml:"bot"`
	Database  DatabaseConfig  `yaml:"database"`
	Batch     BatchConfig     `yaml:"batch"`
	Campaign  CampaignConfig  `yaml:"campaign"`
	HTTP      HTTPConfig      `yaml:"http"`
	Audit     AuditConfig     `yaml:"audit"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
}

type BotConfig struct {
	Token    string  `yaml:"token"     env:"PNLBOT_BOT_TOKEN" validate:"required"`
	APIURL   string  `yaml:"api_url"   env:"PNLBOT_BOT_API_URL"`
	ChatID   int64   `yaml:"chat_id"   env:"PNLBOT_CHAT_ID"`
	TopicID  int     `yaml:"topic_id"  env:"PNLBOT_TOPIC_ID"`
	AdminIDs []int64 `yaml:"admin_ids" env:"PNLBOT_ADMIN_IDS" env-separator:","`
}

// DatabaseConfig selects the gorm dialector. SQLite uses Path, Postgres uses DSN.
type DatabaseConfig struct {
	Driver          string        `yaml:"driver"            env:"PNLBOT_DB_DRIVER"            env-default:"sqlite" validate:"oneof=sqlite postgres"`
	Path            string        `yaml:"path"              env:"PNLBOT_DB_PATH"`
	DSN             string        `yaml:"dsn"               env:"DATABASE_URL"`
	MaxOpenConns    int           `yaml:"max_open_conns"    env:"PNLBOT_DB_MAX_OPEN_CONNS"    env-default:"10" validate:"gte=0"`
	MaxIdleConns    int           `yaml:"max_idle_conns"    env:"PNLBOT_DB_MAX_IDLE_CONNS"    env-default:"5" validate:"gte=0"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"PNLBOT_DB_CONN_MAX_LIFETIME" env-default:"2h"`
}

// BatchConfig holds the forwarded-photo batch cadence.
type BatchConfig struct {
	QuietPeriod  time.Duration `yaml:"quiet_period"  env:"PNLBOT_BATCH_QUIET_PERIOD"  env-default:"12s" validate:"gt=0"`
	EditEvery    int           `yaml:"edit_every"    env:"PNLBOT_BATCH_EDIT_EVERY"    env-default:"10" validate:"gt=0"`
	EditInterval time.Duration `yaml:"edit_interval" env:"PNLBOT_BATCH_EDIT_INTERVAL" env-default:"3s" validate:"gt=0"`
	SummaryTop   int           `yaml:"summary_top"   env:"PNLBOT_BATCH_SUMMARY_TOP"   env-default:"5" validate:"gte=0"`
}

// CampaignConfig describes the challenge. Start and End (RFC3339) bound the
// topic photos that count; a zero value leaves that side open.
type CampaignConfig struct {
	Title     string    `yaml:"title"      env:"PNLBOT_CAMPAIGN_TITLE" env-default:"PnL Flex Challenge"`
	PublicTop int       `yaml:"public_top" env:"PNLBOT_PUBLIC_TOP"     env-default:"10" validate:"gt=0,lte=100"`
	Start     time.Time `yaml:"start"      env:"PNLBOT_CAMPAIGN_START"`
	End       time.Time `yaml:"end"        env:"PNLBOT_CAMPAIGN_END"`
}

// InWindow reports whether t falls inside the campaign period.
func (c CampaignConfig) InWindow(t time.Time) bool {
	if !c.Start.IsZero() && t.Before(c.Start) {
		return false
	}
	if !c.End.IsZero() && t.After(c.End) {
		return false
	}
	return true
}

// HTTPConfig enables the read-only API when Addr is set.
type HTTPConfig struct {
	Addr string `yaml:"addr" env:"PNLBOT_HTTP_ADDR"`
}

// AuditConfig switches the admin audit log to MongoDB when MongoURI is set.
type AuditConfig struct {
	MongoURI string `yaml:"mongo_uri" env:"PNLBOT_MONGO_URI"`
	MongoDB  string `yaml:"mongo_db"  env:"PNLBOT_MONGO_DB" env-default:"pnlbot"`
}

type SchedulerConfig struct {
	BackupEnabled bool `yaml:"backup_enabled" env:"PNLBOT_BACKUP_ENABLED" env-default:"true"`
}

// LoadConfig reads configFilePath (or CONFIG_PATH) and applies env overrides.
// A missing default file is not an error: env + defaults are used instead.
func LoadConfig() (*Config, error) {
	var cfg Config

	path := os.Getenv("CONFIG_PATH")
	explicitPath := path != ""
	if !explicitPath {
		path = configFilePath
	}

	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	} else if explicitPath {
		return nil, fmt.Errorf("config: file %s: %w", path, err)
	} else {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("config: read env: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}
	return &cfg, nil
}

var configValidator = validator.New(validator.WithRequiredStructEnabled())

// Validate normalizes the config, checks field constraints from the validate
// tags and then the rules that span several fields.
func (c *Config) Validate() error {
	c.Bot.Token = strings.TrimSpace(c.Bot.Token)
	c.Database.Driver = strings.ToLower(strings.TrimSpace(c.Database.Driver))

	if err := configValidator.Struct(c); err != nil {
		return err
	}
	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			c.Database.Path = dbFilePath
		}
	case "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for postgres")
		}
	}
	if !c.Campaign.Start.IsZero() && !c.Campaign.End.IsZero() && !c.Campaign.End.After(c.Campaign.Start) {
		return fmt.Errorf("campaign.end must be after campaign.start")
	}
	return nil
}

// DefaultBatchConfig matches the cadence the bot was tuned with (~180 item bursts).
func DefaultBatchConfig() BatchConfig {
	return BatchConfig{
		QuietPeriod:  12 * time.Second,
		EditEvery:    10,
		EditInterval: 3 * time.Second,
		SummaryTop:   5,
	}
}

func (c *Config) IsAdmin(userID int64) bool {
	for _, id := range c.Bot.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}
