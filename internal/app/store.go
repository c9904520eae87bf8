package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

var (
	ErrParticipantNotFound = errors.New("participant not found")
	ErrInvalidWeek         = errors.New("week number must be 1 or greater")
	ErrNoBackup            = errors.New("no backup data for week")
)

// Setting keys.
const (
	settingShowPoints           = "show_points"
	settingNextCode             = "next_code_number"
	settingTotalSubmissions     = "since_reset_total_submissions"
	settingDuplicates           = "since_reset_duplicates"
	settingManualAdjustments    = "since_reset_manual_adjustments"
	settingResetAt              = "reset_at"
	settingCurrentWeek          = "current_week"
	settingWeekLabel            = "week_label"
	settingAutopostEnabled      = "autopost_enabled"
	settingAutopostTime         = "autopost_time"
	settingAutopostLastRun      = "autopost_last_run"
	settingBackupLastRun        = "backup_last_run"
	defaultAutopostTime         = "20:00"
	defaultSettingsCounterValue = "0"
)

// ==========================================
// LEADERBOARD MANAGER
// ==========================================

// LeaderboardManager owns the database handle. All correctness-relevant writes go
// through single statements or transactions backed by unique constraints.
type LeaderboardManager struct {
	DB     *gorm.DB
	Driver string
	Path   string
}

// OpenDatabase builds the gorm handle for the configured driver.
func OpenDatabase(cfg DatabaseConfig) (*gorm.DB, error) {
	gcfg := &gorm.Config{
		Logger:      logger.Default.LogMode(logger.Silent),
		PrepareStmt: true,
	}

	var (
		db  *gorm.DB
		err error
	)
	switch cfg.Driver {
	case "postgres":
		db, err = gorm.Open(postgres.Open(cfg.DSN), gcfg)
	default:
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
		dsn := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(10000)&_pragma=foreign_keys(1)", cfg.Path)
		db, err = gorm.Open(sqlite.Open(dsn), gcfg)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Driver, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if cfg.Driver == "postgres" {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	} else {
		// SQLite has a single writer; one connection keeps transactions from
		// tripping over each other with SQLITE_BUSY.
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	return db, nil
}

func NewLeaderboardManager(ctx context.Context, cfg DatabaseConfig) (*LeaderboardManager, error) {
	db, err := OpenDatabase(cfg)
	if err != nil {
		return nil, err
	}
	lm := &LeaderboardManager{DB: db, Driver: cfg.Driver, Path: cfg.Path}
	if err := lm.Migrate(ctx); err != nil {
		_ = lm.Close()
		return nil, err
	}
	return lm, nil
}

func (lm *LeaderboardManager) Migrate(ctx context.Context) error {
	db := lm.DB.WithContext(ctx)
	if err := db.AutoMigrate(
		&Participant{},
		&Submission{},
		&Adjustment{},
		&Setting{},
		&Winner{},
		&DeletedSubmission{},
		&DeletedAdjustment{},
		&ModAction{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	if err := lm.initializeSettings(ctx); err != nil {
		return fmt.Errorf("initialize settings: %w", err)
	}
	log.Printf("🔌 DB ready (%s).", lm.Driver)
	return nil
}

func defaultSettings() map[string]string {
	return map[string]string{
		settingShowPoints:        "true",
		settingNextCode:          "1",
		settingTotalSubmissions:  defaultSettingsCounterValue,
		settingDuplicates:        defaultSettingsCounterValue,
		settingManualAdjustments: defaultSettingsCounterValue,
		settingResetAt:           time.Now().Format(time.RFC3339),
		settingCurrentWeek:       "1",
		settingWeekLabel:         "Week 1",
		settingAutopostEnabled:   "false",
		settingAutopostTime:      defaultAutopostTime,
	}
}

func (lm *LeaderboardManager) initializeSettings(ctx context.Context) error {
	var rows []Setting
	for k, v := range defaultSettings() {
		rows = append(rows, Setting{Key: k, Value: v})
	}
	return lm.DB.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&rows).Error
}

func (lm *LeaderboardManager) Close() error {
	if lm == nil || lm.DB == nil {
		return nil
	}
	sqlDB, err := lm.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (lm *LeaderboardManager) IsSQLite() bool {
	return lm.Driver != "postgres"
}

// ==========================================
// SETTINGS
// ==========================================

func getSettingTx(tx *gorm.DB, key, def string) (string, error) {
	var s Setting
	err := tx.Where("key = ?", key).Take(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return def, nil
	}
	if err != nil {
		return def, err
	}
	return s.Value, nil
}

func setSettingTx(tx *gorm.DB, key, value string) error {
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value"}),
	}).Create(&Setting{Key: key, Value: value}).Error
}

// incrementSettingTx bumps a numeric setting in place, in a single statement.
func incrementSettingTx(tx *gorm.DB, key string) error {
	return tx.Exec("UPDATE settings SET value = CAST(CAST(value AS INTEGER) + 1 AS TEXT) WHERE key = ?", key).Error
}

func getIntSettingTx(tx *gorm.DB, key string, def int) (int, error) {
	raw, err := getSettingTx(tx, key, strconv.Itoa(def))
	if err != nil {
		return def, err
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return def, nil
	}
	return n, nil
}

func (lm *LeaderboardManager) GetSetting(ctx context.Context, key, def string) (string, error) {
	return getSettingTx(lm.DB.WithContext(ctx), key, def)
}

func (lm *LeaderboardManager) SetSetting(ctx context.Context, key, value string) error {
	return setSettingTx(lm.DB.WithContext(ctx), key, value)
}

func (lm *LeaderboardManager) ShowPoints(ctx context.Context) bool {
	v, err := lm.GetSetting(ctx, settingShowPoints, "true")
	if err != nil {
		log.Printf("⚠️ cannot read %s: %v", settingShowPoints, err)
		return true
	}
	return strings.EqualFold(v, "true")
}

func (lm *LeaderboardManager) SetShowPoints(ctx context.Context, show bool) error {
	return lm.SetSetting(ctx, settingShowPoints, strconv.FormatBool(show))
}
