package app

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

func standingName(s Standing) string {
	if name := strings.TrimSpace(s.DisplayName); name != "" {
		return name
	}
	return "Unknown"
}

// formatPublicBoard renders the group leaderboard: 🏅 for the first five, numbers after.
func formatPublicBoard(title string, limit int, top []Standing, showPoints bool) string {
	if len(top) == 0 {
		return "📊 No submissions yet!"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "🏆 %s - Top %d\n", title, limit)
	for i, s := range top {
		b.WriteString("\n")
		if i < 5 {
			b.WriteString("🏅 ")
		} else {
			b.WriteString(strconv.Itoa(i+1) + ". ")
		}
		b.WriteString(standingName(s))
		if showPoints {
			fmt.Fprintf(&b, " - %d pts", s.Points)
		}
	}
	return b.String()
}

func formatAdminBoard(standings []Standing, week int, showPoints bool) string {
	scope := "All Time"
	if week > 0 {
		scope = "Week " + strconv.Itoa(week)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "🔐 Admin Board - %s\n", scope)
	if len(standings) == 0 {
		b.WriteString("\n📊 No submissions yet!")
	}
	for i, s := range standings {
		fmt.Fprintf(&b, "\n%d. %s %s - %d pts", i+1, s.Code, standingName(s), s.Points)
		if s.TgUserID != nil {
			fmt.Fprintf(&b, " (ID: %d)", *s.TgUserID)
		}
	}
	b.WriteString("\n\n⚙️ Points display: ")
	if showPoints {
		b.WriteString("ON ✅")
	} else {
		b.WriteString("OFF ❌")
	}
	return b.String()
}

func formatStats(st Stats) string {
	var b strings.Builder
	b.WriteString("📈 Stats since reset\n\n")
	fmt.Fprintf(&b, "👥 Participants: %d (active %d)\n", st.Participants, st.ActiveParticipants)
	fmt.Fprintf(&b, "📸 Submissions: %d\n", st.Submissions)
	fmt.Fprintf(&b, "♻️ Duplicates rejected: %d\n", st.Duplicates)
	fmt.Fprintf(&b, "✏️ Manual adjustments: %d\n", st.ManualAdjustments)
	fmt.Fprintf(&b, "🗓 %s (#%d): %d submissions\n", st.Week.Label, st.Week.Number, st.ThisWeek)

	if len(st.BySource) > 0 {
		sources := make([]string, 0, len(st.BySource))
		for src := range st.BySource {
			sources = append(sources, src)
		}
		sort.Strings(sources)
		parts := make([]string, 0, len(sources))
		for _, src := range sources {
			parts = append(parts, fmt.Sprintf("%s %d", src, st.BySource[src]))
		}
		fmt.Fprintf(&b, "🔎 By source: %s\n", strings.Join(parts, ", "))
	}
	if !st.ResetAt.IsZero() {
		fmt.Fprintf(&b, "⏱ Since: %s\n", st.ResetAt.Format("2006-01-02 15:04"))
	}
	if st.ShowPoints {
		b.WriteString("⚙️ Points display: ON ✅")
	} else {
		b.WriteString("⚙️ Points display: OFF ❌")
	}
	return b.String()
}

func formatEngagement(e Engagement) string {
	var b strings.Builder
	b.WriteString("📊 Engagement\n\n")
	fmt.Fprintf(&b, "👥 Participants: %d\n", e.Participants)
	fmt.Fprintf(&b, "📸 Counted photos: %d\n", e.Submissions)
	fmt.Fprintf(&b, "🆕 New in %s: %d\n", e.Week.Label, e.NewThisWeek)
	if e.MostActive != nil {
		fmt.Fprintf(&b, "🔥 Most active: %s %s (%d posts)\n", e.MostActive.Code, standingName(*e.MostActive), e.MostActivePosts)
	}
	fmt.Fprintf(&b, "📈 Avg posts per participant: %.1f", e.AvgPosts)
	return b.String()
}

func formatWinners(week int, winners []WinnerEntry) string {
	if len(winners) == 0 {
		return fmt.Sprintf("🏁 No winners saved for week %d.", week)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "🏁 Winners - Week %d\n", week)
	for _, w := range winners {
		fmt.Fprintf(&b, "\n%s %s %s - %d pts", rankMark(w.Rank), w.Code, w.DisplayName, w.PointsAtTime)
	}
	return b.String()
}

func rankMark(rank int) string {
	switch rank {
	case 1:
		return "🥇"
	case 2:
		return "🥈"
	case 3:
		return "🥉"
	}
	return strconv.Itoa(rank) + "."
}

func formatBatchProgress(t BatchTally, done bool) string {
	head := "📥 Processing forwarded photos..."
	if done {
		head = "📥 All forwarded photos processed."
	}
	return fmt.Sprintf("%s\n\nReceived: %d\n✅ Recorded: %d\n♻️ Duplicates: %d\n⚠️ Failed: %d",
		head, t.Received, t.Recorded, t.Duplicate, t.Failed)
}

func formatBatchSummary(t BatchTally, top []Standing, elapsed time.Duration) string {
	var b strings.Builder
	fmt.Fprintf(&b, "✅ Batch complete in %s\n\n", formatDuration(elapsed))
	fmt.Fprintf(&b, "Received: %d\nRecorded: %d\nDuplicates: %d\nFailed: %d", t.Received, t.Recorded, t.Duplicate, t.Failed)
	if len(top) > 0 {
		fmt.Fprintf(&b, "\n\n🏆 Top %d now:", len(top))
		for i, s := range top {
			fmt.Fprintf(&b, "\n%d. %s %s - %d pts", i+1, s.Code, standingName(s), s.Points)
		}
	}
	return b.String()
}

func formatBatchStatus(active []BatchStatus, now time.Time) string {
	if len(active) == 0 {
		return "📦 No active batches."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "📦 Active batches: %d", len(active))
	for _, st := range active {
		fmt.Fprintf(&b, "\n\n👤 %d (%s)\nqueued %d, received %d, recorded %d, duplicates %d, failed %d",
			st.ActorID, formatDuration(now.Sub(st.StartedAt)), st.Pending,
			st.Tally.Received, st.Tally.Recorded, st.Tally.Duplicate, st.Tally.Failed)
	}
	return b.String()
}

func formatDBHealth(h DBHealth) string {
	rollback := "OK ✅"
	if !h.RollbackOK {
		rollback = "FAILED ❌"
	}
	return fmt.Sprintf("🩺 Database: %s\nPing: %s\nParticipants: %d\nSubmissions: %d\nAdjustments: %d\nRollback test: %s",
		h.Driver, h.Latency.Round(time.Microsecond), h.Participants, h.Submissions, h.Adjustments, rollback)
}

// normalizeParticipantCode accepts "7", "07", "#7" or "#07" and returns the stored form.
func normalizeParticipantCode(raw string) string {
	code := strings.TrimPrefix(strings.TrimSpace(raw), "#")
	if code == "" {
		return ""
	}
	if n, err := strconv.Atoi(code); err == nil && n >= 0 {
		return formatCode(n)
	}
	return "#" + code
}
