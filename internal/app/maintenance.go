package app

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ==========================================
// PARTICIPANT REMOVAL
// ==========================================

// DeleteParticipant removes a participant with all their submissions,
// adjustments and winner rows.
func (lm *LeaderboardManager) DeleteParticipant(ctx context.Context, code string) (*Participant, error) {
	var p Participant
	err := lm.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("code = ?", code).Take(&p).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrParticipantNotFound
			}
			return err
		}
		for _, model := range []interface{}{&Submission{}, &Adjustment{}, &Winner{}} {
			if err := tx.Where("participant_id = ?", p.ID).Delete(model).Error; err != nil {
				return err
			}
		}
		return tx.Delete(&Participant{}, p.ID).Error
	})
	if err != nil {
		if errors.Is(err, ErrParticipantNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("delete participant %s: %w", code, err)
	}
	return &p, nil
}

// ==========================================
// WEEK DATA REMOVAL / UNDO
// ==========================================

type WeekDataResult struct {
	Submissions int64
	Adjustments int64
}

// DeleteWeekData moves one week's submissions and adjustments into the backup
// tables and recalculates totals. A previous backup of the same week is replaced.
func (lm *LeaderboardManager) DeleteWeekData(ctx context.Context, week int, adminID int64) (WeekDataResult, error) {
	var res WeekDataResult
	if week < 1 {
		return res, ErrInvalidWeek
	}
	err := lm.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("week_number = ?", week).Delete(&DeletedSubmission{}).Error; err != nil {
			return err
		}
		if err := tx.Where("week_number = ?", week).Delete(&DeletedAdjustment{}).Error; err != nil {
			return err
		}

		var subs []Submission
		if err := tx.Where("week_number = ?", week).Find(&subs).Error; err != nil {
			return err
		}
		var adjs []Adjustment
		if err := tx.Where("week_number = ?", week).Find(&adjs).Error; err != nil {
			return err
		}

		if len(subs) > 0 {
			backup := make([]DeletedSubmission, 0, len(subs))
			for _, s := range subs {
				backup = append(backup, DeletedSubmission{
					OriginalID:        s.ID,
					ParticipantID:     s.ParticipantID,
					PhotoFileID:       s.PhotoFileID,
					Source:            s.Source,
					TgMessageID:       s.TgMessageID,
					WeekNumber:        s.WeekNumber,
					OriginalCreatedAt: s.CreatedAt,
					DeletedByAdmin:    adminID,
				})
			}
			if err := tx.CreateInBatches(&backup, 200).Error; err != nil {
				return err
			}
		}
		if len(adjs) > 0 {
			backup := make([]DeletedAdjustment, 0, len(adjs))
			for _, a := range adjs {
				backup = append(backup, DeletedAdjustment{
					OriginalID:        a.ID,
					ParticipantID:     a.ParticipantID,
					Delta:             a.Delta,
					AdminTgUserID:     a.AdminTgUserID,
					Note:              a.Note,
					WeekNumber:        a.WeekNumber,
					OriginalCreatedAt: a.CreatedAt,
					DeletedByAdmin:    adminID,
				})
			}
			if err := tx.CreateInBatches(&backup, 200).Error; err != nil {
				return err
			}
		}

		del := tx.Where("week_number = ?", week).Delete(&Submission{})
		if del.Error != nil {
			return del.Error
		}
		res.Submissions = del.RowsAffected
		del = tx.Where("week_number = ?", week).Delete(&Adjustment{})
		if del.Error != nil {
			return del.Error
		}
		res.Adjustments = del.RowsAffected
		return recalculateTx(tx)
	})
	if err != nil {
		return WeekDataResult{}, fmt.Errorf("delete week %d: %w", week, err)
	}
	return res, nil
}

// RestoreWeekData puts a deleted week back. Submissions that were re-recorded
// in the meantime are skipped by the unique index.
func (lm *LeaderboardManager) RestoreWeekData(ctx context.Context, week int) (WeekDataResult, error) {
	var res WeekDataResult
	if week < 1 {
		return res, ErrInvalidWeek
	}
	err := lm.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var subs []DeletedSubmission
		if err := tx.Where("week_number = ?", week).Find(&subs).Error; err != nil {
			return err
		}
		var adjs []DeletedAdjustment
		if err := tx.Where("week_number = ?", week).Find(&adjs).Error; err != nil {
			return err
		}
		if len(subs) == 0 && len(adjs) == 0 {
			return ErrNoBackup
		}

		for _, s := range subs {
			row := Submission{
				ParticipantID: s.ParticipantID,
				PhotoFileID:   s.PhotoFileID,
				Source:        s.Source,
				TgMessageID:   s.TgMessageID,
				WeekNumber:    s.WeekNumber,
				CreatedAt:     s.OriginalCreatedAt,
			}
			ins := tx.Omit(clause.Associations).Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
			if ins.Error != nil {
				return ins.Error
			}
			res.Submissions += ins.RowsAffected
		}
		for _, a := range adjs {
			row := Adjustment{
				ParticipantID: a.ParticipantID,
				Delta:         a.Delta,
				AdminTgUserID: a.AdminTgUserID,
				Note:          a.Note,
				WeekNumber:    a.WeekNumber,
				CreatedAt:     a.OriginalCreatedAt,
			}
			if err := tx.Omit(clause.Associations).Create(&row).Error; err != nil {
				return err
			}
			res.Adjustments++
		}

		if err := tx.Where("week_number = ?", week).Delete(&DeletedSubmission{}).Error; err != nil {
			return err
		}
		if err := tx.Where("week_number = ?", week).Delete(&DeletedAdjustment{}).Error; err != nil {
			return err
		}
		return recalculateTx(tx)
	})
	if err != nil {
		if errors.Is(err, ErrNoBackup) {
			return WeekDataResult{}, err
		}
		return WeekDataResult{}, fmt.Errorf("restore week %d: %w", week, err)
	}
	return res, nil
}

// ==========================================
// RECALCULATION / RESET
// ==========================================

const recalcPointsExpr = `(SELECT COUNT(*) FROM submissions s WHERE s.participant_id = participants.id)
 + COALESCE((SELECT SUM(a.delta) FROM adjustments a WHERE a.participant_id = participants.id AND a.week_number IS NULL), 0)`

func recalculateTx(tx *gorm.DB) error {
	return tx.Exec("UPDATE participants SET points = CASE WHEN " + recalcPointsExpr +
		" < 0 THEN 0 ELSE " + recalcPointsExpr + " END").Error
}

// Recalculate rebuilds every cumulative total from submissions and cumulative adjustments.
func (lm *LeaderboardManager) Recalculate(ctx context.Context) error {
	if err := recalculateTx(lm.DB.WithContext(ctx)); err != nil {
		return fmt.Errorf("recalculate points: %w", err)
	}
	return nil
}

// ResetAll wipes participants and their history and restarts counters and codes.
func (lm *LeaderboardManager) ResetAll(ctx context.Context) error {
	err := lm.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, table := range []string{"winners", "submissions", "adjustments", "deleted_submissions", "deleted_adjustments", "participants"} {
			if err := tx.Exec("DELETE FROM " + table).Error; err != nil {
				return fmt.Errorf("clear %s: %w", table, err)
			}
		}
		for k, v := range map[string]string{
			settingNextCode:          "1",
			settingTotalSubmissions:  "0",
			settingDuplicates:        "0",
			settingManualAdjustments: "0",
			settingCurrentWeek:       "1",
			settingWeekLabel:         defaultWeekLabel(1),
			settingResetAt:           time.Now().Format(time.RFC3339),
		} {
			if err := setSettingTx(tx, k, v); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	return nil
}

// ==========================================
// HEALTH
// ==========================================

type DBHealth struct {
	Driver       string
	Latency      time.Duration
	Participants int64
	Submissions  int64
	Adjustments  int64
	RollbackOK   bool
}

var errHealthRollback = errors.New("health check rollback")

// HealthCheck pings the database, counts rows and verifies that a rolled back
// write leaves no trace.
func (lm *LeaderboardManager) HealthCheck(ctx context.Context) (DBHealth, error) {
	h := DBHealth{Driver: lm.Driver}
	sqlDB, err := lm.DB.DB()
	if err != nil {
		return h, err
	}
	start := time.Now()
	if err := sqlDB.PingContext(ctx); err != nil {
		return h, fmt.Errorf("ping: %w", err)
	}
	h.Latency = time.Since(start)

	db := lm.DB.WithContext(ctx)
	if err := db.Model(&Participant{}).Count(&h.Participants).Error; err != nil {
		return h, err
	}
	if err := db.Model(&Submission{}).Count(&h.Submissions).Error; err != nil {
		return h, err
	}
	if err := db.Model(&Adjustment{}).Count(&h.Adjustments).Error; err != nil {
		return h, err
	}

	ok, err := lm.TestTransaction(ctx)
	if err != nil {
		return h, err
	}
	h.RollbackOK = ok
	return h, nil
}

// TestTransaction writes a probe row inside a transaction that is always
// rolled back, then checks the row is gone.
func (lm *LeaderboardManager) TestTransaction(ctx context.Context) (bool, error) {
	key := "__healthcheck_" + strconv.FormatInt(time.Now().UnixNano(), 10)
	err := lm.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&Setting{Key: key, Value: "probe"}).Error; err != nil {
			return err
		}
		return errHealthRollback
	})
	if err != nil && !errors.Is(err, errHealthRollback) {
		return false, fmt.Errorf("probe transaction: %w", err)
	}
	var n int64
	if err := lm.DB.WithContext(ctx).Model(&Setting{}).Where("key = ?", key).Count(&n).Error; err != nil {
		return false, err
	}
	return n == 0, nil
}
