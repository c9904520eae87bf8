package app

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RecordResult is the outcome of a successful Record call.
type RecordResult int

const (
	Recorded RecordResult = iota + 1
	Duplicate
)

func (r RecordResult) String() string {
	switch r {
	case Recorded:
		return "recorded"
	case Duplicate:
		return "duplicate"
	}
	return "unknown"
}

var errEmptyFingerprint = errors.New("empty photo fingerprint")

// Record stores one photo for a participant. The insert relies on the
// (participant_id, photo_file_id) unique index: a conflict is a Duplicate, not an error.
func (lm *LeaderboardManager) Record(ctx context.Context, participantID uint, fingerprint, source string, messageID *int64) (RecordResult, error) {
	if fingerprint == "" {
		return 0, errEmptyFingerprint
	}

	var result RecordResult
	err := lm.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		week, err := getIntSettingTx(tx, settingCurrentWeek, 1)
		if err != nil {
			return err
		}

		sub := Submission{
			ParticipantID: participantID,
			PhotoFileID:   fingerprint,
			Source:        source,
			TgMessageID:   messageID,
			WeekNumber:    week,
		}
		res := tx.Omit(clause.Associations).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "participant_id"}, {Name: "photo_file_id"}},
			DoNothing: true,
		}).Create(&sub)
		if res.Error != nil {
			return res.Error
		}

		if res.RowsAffected == 0 {
			result = Duplicate
			return incrementSettingTx(tx, settingDuplicates)
		}

		if err := tx.Model(&Participant{}).Where("id = ?", participantID).
			UpdateColumn("points", gorm.Expr("points + 1")).Error; err != nil {
			return err
		}
		result = Recorded
		return incrementSettingTx(tx, settingTotalSubmissions)
	})
	if err != nil {
		return 0, fmt.Errorf("record submission: %w", err)
	}
	return result, nil
}

// RecordFromOrigin resolves the origin to a participant and records the photo.
func (lm *LeaderboardManager) RecordFromOrigin(ctx context.Context, o Origin, fingerprint, source string, messageID *int64) (RecordResult, error) {
	ident, err := identityFor(o)
	if err != nil {
		return 0, err
	}
	pid, err := lm.ResolveOrCreate(ctx, ident)
	if err != nil {
		return 0, err
	}
	return lm.Record(ctx, pid, fingerprint, source, messageID)
}
