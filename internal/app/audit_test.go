package app

import (
	"context"
	"encoding/csv"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditLogSQL(t *testing.T) {
	lm := newTestManager(t)
	ctx := context.Background()
	repo := NewSQLAuditRepository(lm.DB)
	require.NoError(t, repo.Init(ctx))
	audit := NewAuditLog(repo)

	audit.logModAction(ctx, 1, "adjust", "#01", "+3 total")
	audit.logModAction(ctx, 2, "  ", "", "")

	entries, err := audit.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	actions := []string{entries[0].Action, entries[1].Action}
	assert.ElementsMatch(t, []string{"adjust", "unknown"}, actions)
	for _, e := range entries {
		assert.NotEmpty(t, e.ID)
		assert.False(t, e.CreatedAt.IsZero())
	}

	text := formatModLog(entries)
	assert.Contains(t, text, "adjust #01: +3 total")
	assert.Equal(t, "🗒 Audit log is empty.", formatModLog(nil))
}

func TestAuditLogNilRepo(t *testing.T) {
	var audit *AuditLog
	assert.NotPanics(t, func() { audit.logModAction(context.Background(), 1, "x", "", "") })
	entries, err := audit.Recent(context.Background(), 5)
	assert.NoError(t, err)
	assert.Nil(t, entries)
}

func TestExportCSV(t *testing.T) {
	lm := newTestManager(t)
	a := addParticipant(t, lm, 1, "a")
	b := addParticipant(t, lm, 2, "b")
	recordN(t, lm, a, "a", 1)
	recordN(t, lm, b, "b", 2)

	path, err := exportCSV(context.Background(), lm)
	require.NoError(t, err)
	defer os.Remove(path)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)

	require.Len(t, rows, 3)
	assert.Equal(t, []string{"rank", "code", "display_name", "username", "tg_user_id", "points", "submissions", "first_seen"}, rows[0])
	assert.Equal(t, []string{"1", "#02", "@b", "b", "2", "2", "2"}, rows[1][:7])
	assert.Equal(t, []string{"2", "#01", "@a", "a", "1", "1", "1"}, rows[2][:7])
}
