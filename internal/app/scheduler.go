package app

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	tele "gopkg.in/telebot.v3"
)

const dayLayout = "2006-01-02"

// Scheduler posts the daily leaderboard into the campaign topic and sends a
// weekly database backup to the admins.
type Scheduler struct {
	bot *tele.Bot
	lm  *LeaderboardManager
	cfg *Config
}

func NewScheduler(bot *tele.Bot, lm *LeaderboardManager, cfg *Config) *Scheduler {
	return &Scheduler{bot: bot, lm: lm, cfg: cfg}
}

func (s *Scheduler) Run(ctx context.Context) {
	log.Println("⏰ Scheduler started")

	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.checkAutopost(ctx, now)
			if s.cfg.Scheduler.BackupEnabled {
				s.checkBackup(ctx, now)
			}
		}
	}
}

// ==========================================
// AUTOPOST
// ==========================================

type AutopostSettings struct {
	Enabled bool
	Time    string
	LastRun string
}

func (lm *LeaderboardManager) AutopostSettings(ctx context.Context) (AutopostSettings, error) {
	db := lm.DB.WithContext(ctx)
	enabled, err := getSettingTx(db, settingAutopostEnabled, "false")
	if err != nil {
		return AutopostSettings{}, err
	}
	at, err := getSettingTx(db, settingAutopostTime, defaultAutopostTime)
	if err != nil {
		return AutopostSettings{}, err
	}
	last, err := getSettingTx(db, settingAutopostLastRun, "")
	if err != nil {
		return AutopostSettings{}, err
	}
	return AutopostSettings{Enabled: strings.EqualFold(enabled, "true"), Time: at, LastRun: last}, nil
}

// parseClock validates an "HH:MM" string.
func parseClock(raw string) (time.Time, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, fmt.Errorf("time must be HH:MM (got %q)", raw)
	}
	return t, nil
}

// autopostDue reports whether today's post is owed: the target time has
// passed and nothing was posted today yet.
func autopostDue(now time.Time, st AutopostSettings) bool {
	if !st.Enabled {
		return false
	}
	if st.LastRun == now.Format(dayLayout) {
		return false
	}
	target, err := parseClock(st.Time)
	if err != nil {
		return false
	}
	at := time.Date(now.Year(), now.Month(), now.Day(), target.Hour(), target.Minute(), 0, 0, now.Location())
	return !now.Before(at)
}

func (s *Scheduler) checkAutopost(ctx context.Context, now time.Time) {
	st, err := s.lm.AutopostSettings(ctx)
	if err != nil {
		log.Printf("❌ cannot read autopost settings: %v", err)
		return
	}
	if !autopostDue(now, st) {
		return
	}
	if s.cfg.Bot.ChatID == 0 {
		log.Println("⚠️ autopost enabled but bot.chat_id is not set")
		return
	}

	top, err := s.lm.Top(ctx, s.cfg.Campaign.PublicTop)
	if err != nil {
		log.Printf("❌ autopost: leaderboard query failed: %v", err)
		return
	}
	text := formatPublicBoard(s.cfg.Campaign.Title, s.cfg.Campaign.PublicTop, top, s.lm.ShowPoints(ctx))
	chat := &tele.Chat{ID: s.cfg.Bot.ChatID}
	err = sendWithRetry(ctx, 3, 500*time.Millisecond, func() error {
		_, e := s.bot.Send(chat, text, &tele.SendOptions{ThreadID: s.cfg.Bot.TopicID})
		return e
	})
	if err != nil {
		log.Printf("❌ autopost failed: %v", err)
		return
	}
	if err := s.lm.SetSetting(ctx, settingAutopostLastRun, now.Format(dayLayout)); err != nil {
		log.Printf("⚠️ cannot store autopost last run: %v", err)
	}
	log.Println("✅ Daily leaderboard posted.")
}

// ==========================================
// BACKUP
// ==========================================

// backupDue fires once per week on Sunday from 03:00.
func backupDue(now time.Time, lastRun string) bool {
	if now.Weekday() != time.Sunday || now.Hour() < 3 {
		return false
	}
	return lastRun != now.Format(dayLayout)
}

func (s *Scheduler) checkBackup(ctx context.Context, now time.Time) {
	if !s.lm.IsSQLite() {
		return
	}
	last, err := s.lm.GetSetting(ctx, settingBackupLastRun, "")
	if err != nil {
		log.Printf("⚠️ cannot read backup last run: %v", err)
		return
	}
	if !backupDue(now, last) {
		return
	}
	log.Println("💾 Weekly backup...")
	PerformBackup(ctx, s.bot, s.lm, s.cfg.Bot.AdminIDs)
	if err := s.lm.SetSetting(ctx, settingBackupLastRun, now.Format(dayLayout)); err != nil {
		log.Printf("⚠️ cannot store backup last run: %v", err)
	}
}

// BackupTo writes a consistent copy of the SQLite database to path.
func (lm *LeaderboardManager) BackupTo(ctx context.Context, path string) error {
	if !lm.IsSQLite() {
		return fmt.Errorf("backup is only supported for sqlite")
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return lm.DB.WithContext(ctx).Exec("VACUUM INTO ?", path).Error
}

// PerformBackup snapshots the database and sends it to every admin.
func PerformBackup(ctx context.Context, bot *tele.Bot, lm *LeaderboardManager, adminIDs []int64) {
	if len(adminIDs) == 0 {
		log.Println("⚠️ No admins to send the backup to.")
		return
	}
	if err := lm.BackupTo(ctx, dbBackupFilePath); err != nil {
		log.Printf("❌ backup failed: %v", err)
		return
	}

	for _, adminID := range adminIDs {
		file := &tele.Document{
			File:     tele.FromDisk(dbBackupFilePath),
			Caption:  fmt.Sprintf("💾 Database backup\n📅 %s", time.Now().Format("02.01.2006 15:04")),
			FileName: "leaderboard_backup.db",
		}
		if _, err := bot.Send(&tele.User{ID: adminID}, file); err != nil {
			log.Printf("⚠️ cannot send backup to admin %d: %v", adminID, err)
		} else {
			log.Printf("✅ Backup sent to admin %d", adminID)
		}
	}
}
