package app

import "time"

// Submission sources.
const (
	SourceTopic   = "topic"
	SourceForward = "forward"
	SourceManual  = "manual"
)

// Participant is one leaderboard row. IdentityKey is "tg:<id>" or "name:<normalized name>".
type Participant struct {
	ID          uint   `gorm:"primaryKey"`
	Code        string `gorm:"uniqueIndex;not null"`
	IdentityKey string `gorm:"uniqueIndex;not null"`
	TgUserID    *int64 `gorm:"index"`
	Username    *string
	DisplayName string    `gorm:"not null"`
	Points      int       `gorm:"not null;default:0;index"`
	FirstSeen   time.Time `gorm:"not null"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Submission is a counted photo. (ParticipantID, PhotoFileID) is the duplicate key.
type Submission struct {
	ID            uint   `gorm:"primaryKey"`
	ParticipantID uint   `gorm:"not null;uniqueIndex:idx_submission_unique,priority:1"`
	PhotoFileID   string `gorm:"not null;uniqueIndex:idx_submission_unique,priority:2;index"`
	Source        string `gorm:"not null"`
	TgMessageID   *int64
	WeekNumber    int       `gorm:"not null;default:1;index"`
	CreatedAt     time.Time `gorm:"autoCreateTime"`

	Participant Participant `gorm:"constraint:OnDelete:CASCADE"`
}

// Adjustment is a manual point change. WeekNumber nil means a cumulative adjustment.
type Adjustment struct {
	ID            uint  `gorm:"primaryKey"`
	ParticipantID uint  `gorm:"not null;index"`
	Delta         int   `gorm:"not null"`
	AdminTgUserID int64 `gorm:"not null"`
	Note          *string
	WeekNumber    *int      `gorm:"index"`
	CreatedAt     time.Time `gorm:"autoCreateTime"`

	Participant Participant `gorm:"constraint:OnDelete:CASCADE"`
}

// Setting is a key-value row; counters are stored as decimal strings.
type Setting struct {
	Key   string `gorm:"primaryKey"`
	Value string `gorm:"not null"`
}

type Winner struct {
	Week          int       `gorm:"primaryKey;autoIncrement:false"`
	Rank          int       `gorm:"primaryKey;autoIncrement:false"`
	ParticipantID uint      `gorm:"not null"`
	PointsAtTime  int       `gorm:"not null"`
	CreatedAt     time.Time `gorm:"autoCreateTime"`

	Participant Participant `gorm:"constraint:OnDelete:CASCADE"`
}

// DeletedSubmission backs up a submission removed by week deletion.
type DeletedSubmission struct {
	ID                uint   `gorm:"primaryKey"`
	OriginalID        uint   `gorm:"not null"`
	ParticipantID     uint   `gorm:"not null"`
	PhotoFileID       string `gorm:"not null"`
	Source            string `gorm:"not null"`
	TgMessageID       *int64
	WeekNumber        int       `gorm:"not null;index"`
	OriginalCreatedAt time.Time `gorm:"not null"`
	DeletedAt         time.Time `gorm:"autoCreateTime"`
	DeletedByAdmin    int64     `gorm:"not null"`
}

type DeletedAdjustment struct {
	ID                uint  `gorm:"primaryKey"`
	OriginalID        uint  `gorm:"not null"`
	ParticipantID     uint  `gorm:"not null"`
	Delta             int   `gorm:"not null"`
	AdminTgUserID     int64 `gorm:"not null"`
	Note              *string
	WeekNumber        *int      `gorm:"index"`
	OriginalCreatedAt time.Time `gorm:"not null"`
	DeletedAt         time.Time `gorm:"autoCreateTime"`
	DeletedByAdmin    int64     `gorm:"not null"`
}

// ModAction is an admin audit entry, stored in SQL or MongoDB.
type ModAction struct {
	ID        string    `gorm:"type:text;primaryKey" bson:"_id,omitempty"`
	UserID    int64     `gorm:"index" bson:"user_id"`
	Action    string    `bson:"action"`
	TargetID  string    `bson:"target_id"`
	Details   string    `gorm:"type:text" bson:"details"`
	CreatedAt time.Time `gorm:"autoCreateTime;index" bson:"created_at"`
}

// Standing is a computed leaderboard line (cumulative or weekly).
type Standing struct {
	ID          uint    `json:"-"`
	Code        string  `json:"code"`
	DisplayName string  `json:"display_name"`
	TgUserID    *int64  `json:"tg_user_id,omitempty"`
	Username    *string `json:"username,omitempty"`
	Points      int     `json:"points"`
}

type WinnerEntry struct {
	Rank         int    `json:"rank"`
	Code         string `json:"code"`
	DisplayName  string `json:"display_name"`
	PointsAtTime int    `json:"points"`
}
