package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfigFromFile(t *testing.T) {
	path := writeConfig(t, `
bot:
  token: "123:abc"
  chat_id: -100
  topic_id: 5
  admin_ids: [1, 2]
batch:
  quiet_period: "5s"
  edit_every: 4
`)
	t.Setenv("CONFIG_PATH", path)

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "123:abc", cfg.Bot.Token)
	assert.Equal(t, int64(-100), cfg.Bot.ChatID)
	assert.Equal(t, 5, cfg.Bot.TopicID)
	assert.Equal(t, []int64{1, 2}, cfg.Bot.AdminIDs)
	assert.True(t, cfg.IsAdmin(2))
	assert.False(t, cfg.IsAdmin(3))

	assert.Equal(t, 5*time.Second, cfg.Batch.QuietPeriod)
	assert.Equal(t, 4, cfg.Batch.EditEvery)
	assert.Equal(t, 3*time.Second, cfg.Batch.EditInterval)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, dbFilePath, cfg.Database.Path)
	assert.Equal(t, 10, cfg.Campaign.PublicTop)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	path := writeConfig(t, "bot:\n  token: \"from-file\"\n")
	t.Setenv("CONFIG_PATH", path)
	t.Setenv("PNLBOT_BOT_TOKEN", "from-env")
	t.Setenv("PNLBOT_PUBLIC_TOP", "5")
	t.Setenv("PNLBOT_ADMIN_IDS", "10,20")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Bot.Token)
	assert.Equal(t, 5, cfg.Campaign.PublicTop)
	assert.Equal(t, []int64{10, 20}, cfg.Bot.AdminIDs)
}

func TestLoadConfigMissingExplicitFile(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "nope.yaml"))
	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Bot:      BotConfig{Token: "t"},
			Database: DatabaseConfig{Driver: "sqlite"},
			Batch:    DefaultBatchConfig(),
			Campaign: CampaignConfig{PublicTop: 10},
		}
	}

	cfg := valid()
	require.NoError(t, cfg.Validate())

	cases := map[string]func(c *Config){
		"no token":          func(c *Config) { c.Bot.Token = " " },
		"unknown driver":    func(c *Config) { c.Database.Driver = "mysql" },
		"postgres sans dsn": func(c *Config) { c.Database.Driver = "postgres" },
		"zero quiet period": func(c *Config) { c.Batch.QuietPeriod = 0 },
		"zero edit every":   func(c *Config) { c.Batch.EditEvery = 0 },
		"zero public top":   func(c *Config) { c.Campaign.PublicTop = 0 },
		"huge public top":   func(c *Config) { c.Campaign.PublicTop = 500 },
		"negative summary":  func(c *Config) { c.Batch.SummaryTop = -1 },
		"end before start": func(c *Config) {
			c.Campaign.Start = time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
			c.Campaign.End = c.Campaign.Start.Add(-time.Hour)
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := valid()
			mutate(&c)
			assert.Error(t, c.Validate())
		})
	}

	pg := valid()
	pg.Database = DatabaseConfig{Driver: " Postgres ", DSN: "postgres://x"}
	require.NoError(t, pg.Validate())
	assert.Equal(t, "postgres", pg.Database.Driver)
}

func TestCampaignWindow(t *testing.T) {
	path := writeConfig(t, `
bot:
  token: "t"
campaign:
  start: 2026-01-15T00:01:00+05:30
  end: 2026-02-11T23:59:59+05:30
`)
	t.Setenv("CONFIG_PATH", path)
	cfg, err := LoadConfig()
	require.NoError(t, err)

	c := cfg.Campaign
	require.False(t, c.Start.IsZero())
	assert.False(t, c.InWindow(c.Start.Add(-time.Second)))
	assert.True(t, c.InWindow(c.Start))
	assert.True(t, c.InWindow(c.End))
	assert.False(t, c.InWindow(c.End.Add(time.Second)))

	open := CampaignConfig{}
	assert.True(t, open.InWindow(time.Now()))
}
