package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/progression/model"
	"github.com/kasuganosora/progression/progression/engine"
	"github.com/kasuganosora/progression/scheduler"
)

// AdminHandler handles admin-only REST endpoints.
// Routes are protected by the admin key and the optional IP allow-list.
type AdminHandler struct {
	eng   *engine.Engine
	sched *scheduler.Scheduler
}

func NewAdminHandler(eng *engine.Engine, sched *scheduler.Scheduler) *AdminHandler {
	return &AdminHandler{eng: eng, sched: sched}
}

type correctionRequest struct {
	Delta int64  `json:"delta"`
	Note  string `json:"note" binding:"required,max=128"`
}

// CorrectXP applies an administrative XP correction.
// POST /api/admin/learners/:id/xp-correction
func (h *AdminHandler) CorrectXP(c *gin.Context) {
	var req correctionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	res, err := h.eng.CorrectXP(c.Request.Context(), c.Param("id"), req.Delta, req.Note)
	if err != nil {
		writeReadError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type resetRequest struct {
	Type model.MissionType `json:"type" binding:"required"`
}

// ResetMissions starts the new cycle for one mission type.
// POST /api/admin/missions/reset
func (h *AdminHandler) ResetMissions(c *gin.Context) {
	var req resetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	n, err := h.eng.ResetMissions(c.Request.Context(), req.Type)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"type": req.Type, "reset": n})
}

// SettleMissions retries pending mission rewards.
// POST /api/admin/missions/settle
func (h *AdminHandler) SettleMissions(c *gin.Context) {
	out, err := h.eng.SettleMissions(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"completed": len(out.Completed), "pending": out.Pending})
}

// RefreshLeaderboard rebuilds the snapshot now.
// POST /api/admin/leaderboard/refresh
func (h *AdminHandler) RefreshLeaderboard(c *gin.Context) {
	snap, err := h.eng.RefreshLeaderboard(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"refreshed": len(snap.Entries), "generated_at": snap.GeneratedAt})
}

// Events lists the newest intake journal rows.
// GET /api/admin/events?learner_id=&limit=
func (h *AdminHandler) Events(c *gin.Context) {
	rows, err := h.eng.RecentEvents(c.Request.Context(), c.Query("learner_id"), queryInt(c, "limit", 50))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": rows})
}

// Scheduler lists the registered jobs.
// GET /api/admin/scheduler
func (h *AdminHandler) Scheduler(c *gin.Context) {
	if h.sched == nil {
		c.JSON(http.StatusOK, gin.H{"jobs": []scheduler.JobInfo{}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": h.sched.Jobs()})
}

// RunJob triggers a registered job immediately.
// POST /api/admin/scheduler/:name/run
func (h *AdminHandler) RunJob(c *gin.Context) {
	if h.sched == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "scheduler not running"})
		return
	}
	if err := h.sched.RunNow(c.Param("name")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"started": c.Param("name")})
}

// RemoveJob unschedules a registered job until the next restart.
// DELETE /api/admin/scheduler/:name
func (h *AdminHandler) RemoveJob(c *gin.Context) {
	if h.sched == nil || !h.sched.Remove(c.Param("name")) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no job named " + c.Param("name")})
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": c.Param("name")})
}
