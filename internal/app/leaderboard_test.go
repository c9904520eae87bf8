package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recordN(t *testing.T, lm *LeaderboardManager, p *Participant, prefix string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		res, err := lm.Record(context.Background(), p.ID, prefix+string(rune('a'+i)), SourceTopic, nil)
		require.NoError(t, err)
		require.Equal(t, Recorded, res)
	}
}

func codes(standings []Standing) []string {
	out := make([]string, 0, len(standings))
	for _, s := range standings {
		out = append(out, s.Code)
	}
	return out
}

func TestTopOrdering(t *testing.T) {
	lm := newTestManager(t)
	ctx := context.Background()

	a := addParticipant(t, lm, 1, "a")
	b := addParticipant(t, lm, 2, "b")
	c := addParticipant(t, lm, 3, "c")
	addParticipant(t, lm, 4, "zero")

	// Make first_seen strictly increasing so the tie-break is deterministic.
	base := time.Now().Add(-time.Hour)
	for i, p := range []*Participant{a, b, c} {
		require.NoError(t, lm.DB.Model(&Participant{}).Where("id = ?", p.ID).
			Update("first_seen", base.Add(time.Duration(i)*time.Minute)).Error)
	}

	recordN(t, lm, a, "a", 2)
	recordN(t, lm, b, "b", 3)
	recordN(t, lm, c, "c", 2)

	top, err := lm.Top(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"#02", "#01", "#03"}, codes(top))
	assert.Equal(t, 3, top[0].Points)

	top, err = lm.Top(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, top, 2)
}

func TestWeeklyTop(t *testing.T) {
	lm := newTestManager(t)
	ctx := context.Background()
	a := addParticipant(t, lm, 1, "a")
	b := addParticipant(t, lm, 2, "b")

	recordN(t, lm, a, "w1-", 3)
	_, err := lm.StartNewWeek(ctx, "")
	require.NoError(t, err)
	recordN(t, lm, b, "w2-", 1)

	week2 := 2
	_, err = lm.AddAdjustment(ctx, AdjustmentRequest{Code: a.Code, Delta: 2, AdminID: 1, Week: &week2})
	require.NoError(t, err)

	w1, err := lm.WeeklyTop(ctx, 1, 0)
	require.NoError(t, err)
	require.Len(t, w1, 1)
	assert.Equal(t, a.Code, w1[0].Code)
	assert.Equal(t, 3, w1[0].Points)

	w2, err := lm.WeeklyTop(ctx, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{a.Code, b.Code}, codes(w2))
	assert.Equal(t, 2, w2[0].Points)

	_, err = lm.WeeklyTop(ctx, 0, 0)
	assert.ErrorIs(t, err, ErrInvalidWeek)

	all, err := lm.Standings(ctx, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{a.Code, b.Code}, codes(all))
	assert.Equal(t, 3, all[0].Points, "weekly adjustments leave the total untouched")
}

func TestWeeks(t *testing.T) {
	lm := newTestManager(t)
	ctx := context.Background()

	w, err := lm.StartNewWeek(ctx, "Launch week")
	require.NoError(t, err)
	assert.Equal(t, WeekInfo{Number: 2, Label: "Launch week"}, w)

	w, err = lm.SetCurrentWeek(ctx, 5, "  ")
	require.NoError(t, err)
	assert.Equal(t, WeekInfo{Number: 5, Label: "Week 5"}, w)

	cur, err := lm.CurrentWeek(ctx)
	require.NoError(t, err)
	assert.Equal(t, w, cur)

	_, err = lm.SetCurrentWeek(ctx, 0, "")
	assert.ErrorIs(t, err, ErrInvalidWeek)
}

func TestSelectWinnersReplacesSnapshot(t *testing.T) {
	lm := newTestManager(t)
	ctx := context.Background()
	a := addParticipant(t, lm, 1, "a")
	b := addParticipant(t, lm, 2, "b")

	recordN(t, lm, a, "a", 1)
	recordN(t, lm, b, "b", 2)

	winners, err := lm.SelectWinners(ctx, 1, 1)
	require.NoError(t, err)
	require.Len(t, winners, 1)
	assert.Equal(t, WinnerEntry{Rank: 1, Code: b.Code, DisplayName: "@b", PointsAtTime: 2}, winners[0])

	winners, err = lm.SelectWinners(ctx, 1, 5)
	require.NoError(t, err)
	require.Len(t, winners, 2)
	assert.Equal(t, a.Code, winners[1].Code)

	saved, err := lm.Winners(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, winners, saved)

	none, err := lm.Winners(ctx, 9)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestStats(t *testing.T) {
	lm := newTestManager(t)
	ctx := context.Background()
	a := addParticipant(t, lm, 1, "a")
	addParticipant(t, lm, 2, "b")

	recordN(t, lm, a, "a", 2)
	_, err := lm.Record(ctx, a.ID, "aa", SourceForward, nil)
	require.NoError(t, err)

	st, err := lm.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), st.Participants)
	assert.Equal(t, int64(1), st.ActiveParticipants)
	assert.Equal(t, int64(2), st.Submissions)
	assert.Equal(t, int64(1), st.Duplicates)
	assert.Equal(t, int64(2), st.ThisWeek)
	assert.Equal(t, 1, st.Week.Number)
	assert.True(t, st.ShowPoints)
	assert.False(t, st.ResetAt.IsZero())
}

func TestEngagement(t *testing.T) {
	lm := newTestManager(t)
	ctx := context.Background()

	empty, err := lm.Engagement(ctx)
	require.NoError(t, err)
	assert.Nil(t, empty.MostActive)
	assert.Zero(t, empty.AvgPosts)

	a := addParticipant(t, lm, 1, "a")
	b := addParticipant(t, lm, 2, "b")
	recordN(t, lm, a, "a", 3)
	recordN(t, lm, b, "b", 1)

	_, err = lm.StartNewWeek(ctx, "")
	require.NoError(t, err)
	c := addParticipant(t, lm, 3, "c")
	recordN(t, lm, c, "c", 1)
	recordN(t, lm, b, "b2", 1)

	e, err := lm.Engagement(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), e.Participants)
	assert.Equal(t, int64(6), e.Submissions)
	assert.InDelta(t, 2.0, e.AvgPosts, 0.001)
	require.NotNil(t, e.MostActive)
	assert.Equal(t, a.Code, e.MostActive.Code)
	assert.Equal(t, int64(3), e.MostActivePosts)
	assert.Equal(t, 2, e.Week.Number)
	assert.Equal(t, int64(1), e.NewThisWeek)

	text := formatEngagement(e)
	assert.Contains(t, text, "🔥 Most active: #01 @a (3 posts)")
	assert.Contains(t, text, "Avg posts per participant: 2.0")
	assert.Contains(t, text, "New in Week 2: 1")
}
