package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
	mw "github.com/kasuganosora/progression/middleware"
	"github.com/kasuganosora/progression/progression/engine"
	"github.com/kasuganosora/progression/progression/intake"
)

// EventHandler accepts progression events from collaborator services.
type EventHandler struct {
	eng *engine.Engine
}

func NewEventHandler(eng *engine.Engine) *EventHandler {
	return &EventHandler{eng: eng}
}

// Submit runs one event through the engine.
// POST /api/events
func (h *EventHandler) Submit(c *gin.Context) {
	var ev intake.Event
	if err := c.ShouldBindJSON(&ev); err != nil {
		badRequest(c, err)
		return
	}
	res, err := h.eng.Submit(c.Request.Context(), ev, engine.Meta{
		TraceID: mw.GetTraceID(c),
		IP:      c.ClientIP(),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
