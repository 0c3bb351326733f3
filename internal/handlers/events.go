package handlers

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"pulse/internal/triggers"
)

const maxEventBytes = 1 << 20

// EventHandler accepts document and account events pushed over HTTP.
type EventHandler struct {
	dispatcher *triggers.Dispatcher
}

func NewEventHandler(d *triggers.Dispatcher) *EventHandler {
	return &EventHandler{dispatcher: d}
}

// Document takes create, update and delete events.
func (h *EventHandler) Document(c *gin.Context) {
	h.ingest(c, false)
}

// Account takes identity provider events.
func (h *EventHandler) Account(c *gin.Context) {
	h.ingest(c, true)
}

func (h *EventHandler) ingest(c *gin.Context, account bool) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxEventBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not read body"})
		return
	}
	e, err := triggers.DecodeEvent(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	isAccount := e.Kind == triggers.KindAccountCreate || e.Kind == triggers.KindAccountDelete
	if isAccount != account {
		c.JSON(http.StatusBadRequest, gin.H{"error": "event kind " + string(e.Kind) + " is not accepted here"})
		return
	}
	started, err := h.dispatcher.Dispatch(c.Request.Context(), e)
	if err != nil {
		slog.Error("failed to dispatch event", "event_id", e.ID, "err", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": e.ID, "handlers": started})
}
