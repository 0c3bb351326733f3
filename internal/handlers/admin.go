package handlers

import (
	"fmt"
	"log/slog"

	"github.com/gin-gonic/gin"

	"pulse/internal/services"
)

type AdminHandler struct {
	ranking    *services.RankingService
	inactivity *services.InactivityService
}

func NewAdminHandler(svc *services.Services) *AdminHandler {
	return &AdminHandler{ranking: svc.Ranking, inactivity: svc.Inactivity}
}

// RecomputeEachPostScore rescans the score of every post.
func (h *AdminHandler) RecomputeEachPostScore(c *gin.Context) {
	jobResponse(c, h.ranking.RecomputeEachPostScore(c.Request.Context()).Message())
}

func (h *AdminHandler) RecomputeEachTopicScore(c *gin.Context) {
	jobResponse(c, h.ranking.RecomputeEachTopicScore(c.Request.Context()).Message())
}

func (h *AdminHandler) RecomputeEachUserScore(c *gin.Context) {
	jobResponse(c, h.ranking.RecomputeEachUserScore(c.Request.Context()).Message())
}

// SweepInactiveUsers marks users without a recent session inactive and
// clears their feeds.
func (h *AdminHandler) SweepInactiveUsers(c *gin.Context) {
	res, err := h.inactivity.Sweep(c.Request.Context())
	if err != nil {
		slog.Error("inactivity sweep failed", "err", err)
		jobResponse(c, fmt.Sprintf("sweep-inactive-users finished with errors: %v", err))
		return
	}
	jobResponse(c, res.Message())
}
