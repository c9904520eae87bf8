package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func apiGet(t *testing.T, r *gin.Engine, path string, out interface{}) int {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	r.ServeHTTP(w, req)
	if out != nil && w.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), out))
	}
	return w.Code
}

func newTestAPI(t *testing.T) (*gin.Engine, *LeaderboardManager) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	lm := newTestManager(t)
	a := addParticipant(t, lm, 1, "a")
	b := addParticipant(t, lm, 2, "b")
	recordN(t, lm, a, "a", 1)
	recordN(t, lm, b, "b", 2)
	return newAPIRouter(lm, nil, 10), lm
}

func TestAPIHealth(t *testing.T) {
	r, _ := newTestAPI(t)
	var info healthInfo
	assert.Equal(t, http.StatusOK, apiGet(t, r, "/health", &info))
	assert.Equal(t, "ok", info.Status)
	assert.Equal(t, "ok", info.Database)
}

func TestAPILeaderboard(t *testing.T) {
	r, lm := newTestAPI(t)

	var resp leaderboardResponse
	require.Equal(t, http.StatusOK, apiGet(t, r, "/api/leaderboard", &resp))
	require.Len(t, resp.Standings, 2)
	assert.True(t, resp.ShowPoints)
	assert.Equal(t, "#02", resp.Standings[0].Code)
	require.NotNil(t, resp.Standings[0].Points)
	assert.Equal(t, 2, *resp.Standings[0].Points)

	require.NoError(t, lm.SetShowPoints(context.Background(), false))
	resp = leaderboardResponse{}
	require.Equal(t, http.StatusOK, apiGet(t, r, "/api/leaderboard?limit=1&week=1", &resp))
	require.Len(t, resp.Standings, 1)
	assert.Equal(t, 1, resp.Week)
	assert.Nil(t, resp.Standings[0].Points)

	assert.Equal(t, http.StatusBadRequest, apiGet(t, r, "/api/leaderboard?limit=0", nil))
	assert.Equal(t, http.StatusBadRequest, apiGet(t, r, "/api/leaderboard?limit=101", nil))
	assert.Equal(t, http.StatusBadRequest, apiGet(t, r, "/api/leaderboard?week=x", nil))
}

func TestAPIWinners(t *testing.T) {
	r, lm := newTestAPI(t)

	var empty []WinnerEntry
	require.Equal(t, http.StatusOK, apiGet(t, r, "/api/winners/1", &empty))
	assert.Empty(t, empty)

	_, err := lm.SelectWinners(context.Background(), 1, 3)
	require.NoError(t, err)

	var winners []WinnerEntry
	require.Equal(t, http.StatusOK, apiGet(t, r, "/api/winners/1", &winners))
	require.Len(t, winners, 2)
	assert.Equal(t, 1, winners[0].Rank)
	assert.Equal(t, "#02", winners[0].Code)

	assert.Equal(t, http.StatusBadRequest, apiGet(t, r, "/api/winners/0", nil))
}

func TestAPIStats(t *testing.T) {
	r, _ := newTestAPI(t)
	var st statsResponse
	require.Equal(t, http.StatusOK, apiGet(t, r, "/api/stats", &st))
	assert.Equal(t, int64(2), st.Participants)
	assert.Equal(t, int64(3), st.Submissions)
	assert.Equal(t, int64(3), st.BySource[SourceTopic])
	assert.Equal(t, 1, st.CurrentWeek)
}
