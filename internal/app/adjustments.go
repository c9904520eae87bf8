package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AdjustmentRequest is a manual point change issued by an admin.
// Week nil applies to the cumulative total; otherwise only that week's board changes.
type AdjustmentRequest struct {
	Code    string
	Delta   int
	AdminID int64
	Note    string
	Week    *int
}

// AddAdjustment writes the adjustment and returns the participant after the change.
// Cumulative totals never drop below zero.
func (lm *LeaderboardManager) AddAdjustment(ctx context.Context, req AdjustmentRequest) (*Participant, error) {
	if req.Week != nil && *req.Week < 1 {
		return nil, ErrInvalidWeek
	}

	var p Participant
	err := lm.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("code = ?", req.Code).Take(&p).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrParticipantNotFound
			}
			return err
		}

		adj := Adjustment{
			ParticipantID: p.ID,
			Delta:         req.Delta,
			AdminTgUserID: req.AdminID,
			WeekNumber:    req.Week,
		}
		if note := strings.TrimSpace(req.Note); note != "" {
			adj.Note = &note
		}
		if err := tx.Omit(clause.Associations).Create(&adj).Error; err != nil {
			return err
		}

		if req.Week == nil {
			if err := tx.Model(&Participant{}).Where("id = ?", p.ID).UpdateColumn("points",
				gorm.Expr("CASE WHEN points + ? < 0 THEN 0 ELSE points + ? END", req.Delta, req.Delta)).Error; err != nil {
				return err
			}
		}
		if err := incrementSettingTx(tx, settingManualAdjustments); err != nil {
			return err
		}
		return tx.Where("id = ?", p.ID).Take(&p).Error
	})
	if err != nil {
		if errors.Is(err, ErrParticipantNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("adjust %s: %w", req.Code, err)
	}
	return &p, nil
}
