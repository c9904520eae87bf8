package app

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// exportCSV writes every participant with their totals to a temp file and
// returns its path. The caller removes the file after sending it.
func exportCSV(ctx context.Context, lm *LeaderboardManager) (string, error) {
	participants, err := lm.AllParticipants(ctx)
	if err != nil {
		return "", err
	}

	type counts struct {
		ParticipantID uint
		Total         int64
	}
	var subCounts []counts
	if err := lm.DB.WithContext(ctx).Model(&Submission{}).
		Select("participant_id, COUNT(*) AS total").
		Group("participant_id").
		Scan(&subCounts).Error; err != nil {
		return "", err
	}
	bySubmissions := make(map[uint]int64, len(subCounts))
	for _, c := range subCounts {
		bySubmissions[c.ParticipantID] = c.Total
	}

	name := fmt.Sprintf("leaderboard_%s_%s.csv", time.Now().Format("20060102"), uuid.NewString()[:8])
	file, err := os.Create(filepath.Join(dirTmp, name))
	if err != nil {
		file, err = os.CreateTemp("", "leaderboard_*.csv")
		if err != nil {
			return "", err
		}
	}

	writer := csv.NewWriter(file)
	_ = writer.Write([]string{"rank", "code", "display_name", "username", "tg_user_id", "points", "submissions", "first_seen"})
	for i, p := range participants {
		username := ""
		if p.Username != nil {
			username = *p.Username
		}
		userID := ""
		if p.TgUserID != nil {
			userID = strconv.FormatInt(*p.TgUserID, 10)
		}
		_ = writer.Write([]string{
			strconv.Itoa(i + 1),
			p.Code,
			p.DisplayName,
			username,
			userID,
			strconv.Itoa(p.Points),
			strconv.FormatInt(bySubmissions[p.ID], 10),
			p.FirstSeen.Format(time.RFC3339),
		})
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		file.Close()
		os.Remove(file.Name())
		return "", err
	}
	if err := file.Close(); err != nil {
		os.Remove(file.Name())
		return "", err
	}
	return file.Name(), nil
}
