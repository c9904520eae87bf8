package app

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ==========================================
// STANDINGS
// ==========================================

// Top returns the cumulative leaderboard. n <= 0 means no limit.
func (lm *LeaderboardManager) Top(ctx context.Context, n int) ([]Standing, error) {
	var out []Standing
	q := lm.DB.WithContext(ctx).Model(&Participant{}).
		Select("id, code, display_name, tg_user_id, username, points").
		Where("points > 0").
		Order("points DESC, first_seen ASC, id ASC")
	if n > 0 {
		q = q.Limit(n)
	}
	if err := q.Scan(&out).Error; err != nil {
		return nil, fmt.Errorf("top participants: %w", err)
	}
	return out, nil
}

const weeklyStandingsSQL = `
SELECT p.id, p.code, p.display_name, p.tg_user_id, p.username,
       COALESCE(s.cnt, 0) + COALESCE(a.total, 0) AS points
FROM participants p
LEFT JOIN (
    SELECT participant_id, COUNT(*) AS cnt
    FROM submissions WHERE week_number = ? GROUP BY participant_id
) s ON s.participant_id = p.id
LEFT JOIN (
    SELECT participant_id, SUM(delta) AS total
    FROM adjustments WHERE week_number = ? GROUP BY participant_id
) a ON a.participant_id = p.id
WHERE COALESCE(s.cnt, 0) + COALESCE(a.total, 0) > 0
ORDER BY points DESC, p.first_seen ASC, p.id ASC`

// WeeklyTop ranks participants by submissions and week-scoped adjustments of one week.
func (lm *LeaderboardManager) WeeklyTop(ctx context.Context, week, n int) ([]Standing, error) {
	if week < 1 {
		return nil, ErrInvalidWeek
	}
	query := weeklyStandingsSQL
	args := []interface{}{week, week}
	if n > 0 {
		query += " LIMIT ?"
		args = append(args, n)
	}
	var out []Standing
	if err := lm.DB.WithContext(ctx).Raw(query, args...).Scan(&out).Error; err != nil {
		return nil, fmt.Errorf("weekly top (week %d): %w", week, err)
	}
	return out, nil
}

// Standings picks the weekly board when week > 0, the cumulative one otherwise.
func (lm *LeaderboardManager) Standings(ctx context.Context, week, n int) ([]Standing, error) {
	if week > 0 {
		return lm.WeeklyTop(ctx, week, n)
	}
	return lm.Top(ctx, n)
}

// AllParticipants lists everyone, including zero-point rows, in leaderboard order.
func (lm *LeaderboardManager) AllParticipants(ctx context.Context) ([]Participant, error) {
	var out []Participant
	err := lm.DB.WithContext(ctx).
		Order("points DESC, first_seen ASC, id ASC").
		Find(&out).Error
	return out, err
}

// ==========================================
// WEEKS
// ==========================================

type WeekInfo struct {
	Number int
	Label  string
}

func (lm *LeaderboardManager) CurrentWeek(ctx context.Context) (WeekInfo, error) {
	db := lm.DB.WithContext(ctx)
	n, err := getIntSettingTx(db, settingCurrentWeek, 1)
	if err != nil {
		return WeekInfo{}, err
	}
	label, err := getSettingTx(db, settingWeekLabel, "")
	if err != nil {
		return WeekInfo{}, err
	}
	if label == "" {
		label = defaultWeekLabel(n)
	}
	return WeekInfo{Number: n, Label: label}, nil
}

func defaultWeekLabel(n int) string {
	return "Week " + strconv.Itoa(n)
}

// SetCurrentWeek switches the week new submissions are stamped with.
func (lm *LeaderboardManager) SetCurrentWeek(ctx context.Context, n int, label string) (WeekInfo, error) {
	if n < 1 {
		return WeekInfo{}, ErrInvalidWeek
	}
	label = strings.TrimSpace(label)
	if label == "" {
		label = defaultWeekLabel(n)
	}
	err := lm.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := setSettingTx(tx, settingCurrentWeek, strconv.Itoa(n)); err != nil {
			return err
		}
		return setSettingTx(tx, settingWeekLabel, label)
	})
	if err != nil {
		return WeekInfo{}, fmt.Errorf("set week %d: %w", n, err)
	}
	return WeekInfo{Number: n, Label: label}, nil
}

// StartNewWeek advances current_week by one.
func (lm *LeaderboardManager) StartNewWeek(ctx context.Context, label string) (WeekInfo, error) {
	cur, err := lm.CurrentWeek(ctx)
	if err != nil {
		return WeekInfo{}, err
	}
	return lm.SetCurrentWeek(ctx, cur.Number+1, label)
}

// ==========================================
// WINNERS
// ==========================================

// SelectWinners snapshots the weekly top n as the winners of that week,
// replacing any earlier snapshot.
func (lm *LeaderboardManager) SelectWinners(ctx context.Context, week, n int) ([]WinnerEntry, error) {
	top, err := lm.WeeklyTop(ctx, week, n)
	if err != nil {
		return nil, err
	}
	err = lm.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("week = ?", week).Delete(&Winner{}).Error; err != nil {
			return err
		}
		if len(top) == 0 {
			return nil
		}
		rows := make([]Winner, 0, len(top))
		for i, s := range top {
			rows = append(rows, Winner{Week: week, Rank: i + 1, ParticipantID: s.ID, PointsAtTime: s.Points})
		}
		return tx.Omit(clause.Associations).Create(&rows).Error
	})
	if err != nil {
		return nil, fmt.Errorf("save winners (week %d): %w", week, err)
	}
	return lm.Winners(ctx, week)
}

func (lm *LeaderboardManager) Winners(ctx context.Context, week int) ([]WinnerEntry, error) {
	if week < 1 {
		return nil, ErrInvalidWeek
	}
	var out []WinnerEntry
	err := lm.DB.WithContext(ctx).Table("winners w").
		Select("w.rank, p.code, p.display_name, w.points_at_time").
		Joins("JOIN participants p ON p.id = w.participant_id").
		Where("w.week = ?", week).
		Order("w.rank ASC").
		Scan(&out).Error
	if err != nil {
		return nil, fmt.Errorf("winners (week %d): %w", week, err)
	}
	return out, nil
}

// ==========================================
// STATS
// ==========================================

type Stats struct {
	Participants       int64
	ActiveParticipants int64
	Submissions        int64
	Duplicates         int64
	ManualAdjustments  int64
	ThisWeek           int64
	BySource           map[string]int64
	Week               WeekInfo
	ResetAt            time.Time
	ShowPoints         bool
}

func (lm *LeaderboardManager) Stats(ctx context.Context) (Stats, error) {
	db := lm.DB.WithContext(ctx)
	st := Stats{BySource: map[string]int64{}}

	if err := db.Model(&Participant{}).Count(&st.Participants).Error; err != nil {
		return st, err
	}
	if err := db.Model(&Participant{}).Where("points > 0").Count(&st.ActiveParticipants).Error; err != nil {
		return st, err
	}

	for key, dst := range map[string]*int64{
		settingTotalSubmissions:  &st.Submissions,
		settingDuplicates:        &st.Duplicates,
		settingManualAdjustments: &st.ManualAdjustments,
	} {
		n, err := getIntSettingTx(db, key, 0)
		if err != nil {
			return st, err
		}
		*dst = int64(n)
	}

	week, err := lm.CurrentWeek(ctx)
	if err != nil {
		return st, err
	}
	st.Week = week
	if err := db.Model(&Submission{}).Where("week_number = ?", week.Number).Count(&st.ThisWeek).Error; err != nil {
		return st, err
	}

	var rows []struct {
		Source string
		Total  int64
	}
	if err := db.Model(&Submission{}).Select("source, COUNT(*) AS total").Group("source").Scan(&rows).Error; err != nil {
		return st, err
	}
	for _, r := range rows {
		st.BySource[r.Source] = r.Total
	}

	if raw, err := getSettingTx(db, settingResetAt, ""); err == nil && raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			st.ResetAt = t
		}
	}
	st.ShowPoints = lm.ShowPoints(ctx)
	return st, nil
}

// ==========================================
// ENGAGEMENT
// ==========================================

type Engagement struct {
	Participants    int64
	Submissions     int64
	AvgPosts        float64
	MostActive      *Standing
	MostActivePosts int64
	NewThisWeek     int64
	Week            WeekInfo
}

// Engagement summarizes activity: the participant with the most counted
// photos, posts per participant and first-time posters of the current week.
func (lm *LeaderboardManager) Engagement(ctx context.Context) (Engagement, error) {
	db := lm.DB.WithContext(ctx)
	var e Engagement

	week, err := lm.CurrentWeek(ctx)
	if err != nil {
		return e, err
	}
	e.Week = week

	if err := db.Model(&Participant{}).Count(&e.Participants).Error; err != nil {
		return e, fmt.Errorf("engagement participants: %w", err)
	}
	if err := db.Model(&Submission{}).Count(&e.Submissions).Error; err != nil {
		return e, fmt.Errorf("engagement submissions: %w", err)
	}
	if e.Participants > 0 {
		e.AvgPosts = float64(e.Submissions) / float64(e.Participants)
	}

	var top []struct {
		ParticipantID uint
		Posts         int64
	}
	if err := db.Model(&Submission{}).
		Select("participant_id, COUNT(*) AS posts").
		Group("participant_id").
		Order("posts DESC, participant_id ASC").
		Limit(1).
		Scan(&top).Error; err != nil {
		return e, fmt.Errorf("engagement most active: %w", err)
	}
	if len(top) == 1 {
		var s Standing
		if err := db.Model(&Participant{}).
			Select("id, code, display_name, tg_user_id, username, points").
			Where("id = ?", top[0].ParticipantID).
			Take(&s).Error; err != nil {
			return e, fmt.Errorf("engagement most active: %w", err)
		}
		e.MostActive = &s
		e.MostActivePosts = top[0].Posts
	}

	firsts := db.Model(&Submission{}).
		Select("participant_id").
		Group("participant_id").
		Having("MIN(week_number) = ?", week.Number)
	if err := db.Table("(?) AS firsts", firsts).Count(&e.NewThisWeek).Error; err != nil {
		return e, fmt.Errorf("engagement new participants: %w", err)
	}
	return e, nil
}
