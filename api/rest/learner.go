package rest

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	mw "github.com/kasuganosora/progression/middleware"
	"github.com/kasuganosora/progression/progression/engine"
)

// LearnerHandler serves the per-learner read APIs. Routes under /me take
// the learner from the token, the rest from the :id path parameter.
type LearnerHandler struct {
	eng *engine.Engine
}

func NewLearnerHandler(eng *engine.Engine) *LearnerHandler {
	return &LearnerHandler{eng: eng}
}

func learnerOf(c *gin.Context) string {
	if id := c.Param("id"); id != "" {
		return id
	}
	return mw.GetLearnerID(c)
}

func queryInt(c *gin.Context, key string, def int) int {
	if v, err := strconv.Atoi(c.Query(key)); err == nil {
		return v
	}
	return def
}

// GET /api/learners/:id/stats, GET /api/me/stats
func (h *LearnerHandler) Stats(c *gin.Context) {
	s, err := h.eng.GetStats(c.Request.Context(), learnerOf(c))
	if err != nil {
		writeReadError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

// GET /api/learners/:id/badges, GET /api/me/badges
func (h *LearnerHandler) Badges(c *gin.Context) {
	views, err := h.eng.GetBadges(c.Request.Context(), learnerOf(c))
	if err != nil {
		writeReadError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"badges": views})
}

// GET /api/learners/:id/missions, GET /api/me/missions
func (h *LearnerHandler) Missions(c *gin.Context) {
	views, err := h.eng.GetMissions(c.Request.Context(), learnerOf(c))
	if err != nil {
		writeReadError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"missions": views})
}

// GET /api/learners/:id/xp-history?page=&limit=
func (h *LearnerHandler) XPHistory(c *gin.Context) {
	page, err := h.eng.GetXPHistory(c.Request.Context(), learnerOf(c), queryInt(c, "page", 1), queryInt(c, "limit", 20))
	if err != nil {
		writeReadError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

type syncLearnerRequest struct {
	DisplayName  string    `json:"display_name" binding:"max=128"`
	RegisteredAt time.Time `json:"registered_at"`
}

// Sync mirrors a learner from the user service.
// PUT /api/internal/learners/:id
func (h *LearnerHandler) Sync(c *gin.Context) {
	var req syncLearnerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	l, err := h.eng.SyncLearner(c.Request.Context(), c.Param("id"), req.DisplayName, req.RegisteredAt)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, l)
}

// LeaderboardHandler serves the ranked read model.
type LeaderboardHandler struct {
	eng *engine.Engine
}

func NewLeaderboardHandler(eng *engine.Engine) *LeaderboardHandler {
	return &LeaderboardHandler{eng: eng}
}

// Top returns the first entries of the leaderboard.
// GET /api/leaderboard?limit=20
func (h *LeaderboardHandler) Top(c *gin.Context) {
	entries, err := h.eng.GetLeaderboard(c.Request.Context(), queryInt(c, "limit", 20))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"leaderboard": entries})
}
