package app

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

type healthInfo struct {
	Status        string `json:"status"`
	Database      string `json:"database"`
	Uptime        string `json:"uptime"`
	Goroutines    int    `json:"goroutines"`
	Alloc         string `json:"alloc"`
	Sys           string `json:"sys"`
	ActiveBatches int    `json:"active_batches"`
	Time          string `json:"time"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type publicStanding struct {
	Rank        int    `json:"rank"`
	Code        string `json:"code"`
	DisplayName string `json:"display_name"`
	Points      *int   `json:"points,omitempty"`
}

type leaderboardResponse struct {
	Week       int              `json:"week,omitempty"`
	ShowPoints bool             `json:"show_points"`
	Standings  []publicStanding `json:"standings"`
}

type statsResponse struct {
	Participants       int64            `json:"participants"`
	ActiveParticipants int64            `json:"active_participants"`
	Submissions        int64            `json:"submissions"`
	Duplicates         int64            `json:"duplicates"`
	ManualAdjustments  int64            `json:"manual_adjustments"`
	CurrentWeek        int              `json:"current_week"`
	WeekLabel          string           `json:"week_label"`
	ThisWeek           int64            `json:"this_week"`
	BySource           map[string]int64 `json:"by_source"`
}

// apiServer exposes read-only leaderboard data and the health probe.
type apiServer struct {
	lm         *LeaderboardManager
	queue      *BatchQueue
	defaultTop int
}

func newAPIRouter(lm *LeaderboardManager, queue *BatchQueue, defaultTop int) *gin.Engine {
	s := &apiServer{lm: lm, queue: queue, defaultTop: defaultTop}

	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/health", s.health)

	api := r.Group("/api")
	api.GET("/leaderboard", s.leaderboard)
	api.GET("/winners/:week", s.winners)
	api.GET("/stats", s.stats)
	return r
}

func startAPIServer(addr string, lm *LeaderboardManager, queue *BatchQueue, defaultTop int) *http.Server {
	gin.SetMode(gin.ReleaseMode)
	server := &http.Server{
		Addr:              addr,
		Handler:           newAPIRouter(lm, queue, defaultTop),
		ReadHeaderTimeout: 5 * time.Second,
	}
	safeGo("api-server", func() {
		log.Printf("✅ API server started at %s", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("⚠️ API server stopped: %v", err)
		}
	})
	return server
}

func stopAPIServer(ctx context.Context, server *http.Server) {
	if server == nil {
		return
	}
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("⚠️ API server shutdown: %v", err)
	}
}

func (s *apiServer) health(c *gin.Context) {
	gor, alloc, _, sys := runtimeStats()
	info := healthInfo{
		Status:     "ok",
		Database:   "ok",
		Uptime:     formatDuration(time.Since(appStartedAt)),
		Goroutines: gor,
		Alloc:      formatBytes(alloc),
		Sys:        formatBytes(sys),
		Time:       time.Now().Format(time.RFC3339),
	}
	if s.queue != nil {
		info.ActiveBatches = len(s.queue.Active())
	}

	status := http.StatusOK
	sqlDB, err := s.lm.DB.DB()
	if err == nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		err = sqlDB.PingContext(ctx)
		cancel()
	}
	if err != nil {
		info.Status = "degraded"
		info.Database = err.Error()
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, info)
}

func (s *apiServer) leaderboard(c *gin.Context) {
	limit := s.defaultTop
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 100 {
			c.JSON(http.StatusBadRequest, errorResponse{Error: "limit must be between 1 and 100"})
			return
		}
		limit = n
	}
	week := 0
	if raw := c.Query("week"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, errorResponse{Error: ErrInvalidWeek.Error()})
			return
		}
		week = n
	}

	ctx := c.Request.Context()
	standings, err := s.lm.Standings(ctx, week, limit)
	if err != nil {
		log.Printf("⚠️ api leaderboard: %v", err)
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "leaderboard unavailable"})
		return
	}
	show := s.lm.ShowPoints(ctx)
	out := make([]publicStanding, 0, len(standings))
	for i, st := range standings {
		entry := publicStanding{Rank: i + 1, Code: st.Code, DisplayName: standingName(st)}
		if show {
			points := st.Points
			entry.Points = &points
		}
		out = append(out, entry)
	}
	c.JSON(http.StatusOK, leaderboardResponse{Week: week, ShowPoints: show, Standings: out})
}

func (s *apiServer) winners(c *gin.Context) {
	week, err := strconv.Atoi(c.Param("week"))
	if err != nil || week < 1 {
		c.JSON(http.StatusBadRequest, errorResponse{Error: ErrInvalidWeek.Error()})
		return
	}
	winners, err := s.lm.Winners(c.Request.Context(), week)
	if err != nil {
		log.Printf("⚠️ api winners: %v", err)
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "winners unavailable"})
		return
	}
	if winners == nil {
		winners = []WinnerEntry{}
	}
	c.JSON(http.StatusOK, winners)
}

func (s *apiServer) stats(c *gin.Context) {
	st, err := s.lm.Stats(c.Request.Context())
	if err != nil {
		log.Printf("⚠️ api stats: %v", err)
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "stats unavailable"})
		return
	}
	c.JSON(http.StatusOK, statsResponse{
		Participants:       st.Participants,
		ActiveParticipants: st.ActiveParticipants,
		Submissions:        st.Submissions,
		Duplicates:         st.Duplicates,
		ManualAdjustments:  st.ManualAdjustments,
		CurrentWeek:        st.Week.Number,
		WeekLabel:          st.Week.Label,
		ThisWeek:           st.ThisWeek,
		BySource:           st.BySource,
	})
}
