package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tailorlink/tailorlink-backend/internal/http/handlers/common"
	"github.com/tailorlink/tailorlink-backend/internal/service"
)

// CronHandler triggers the auto-approval batch over HTTP. The route sits
// behind the cron bearer-secret middleware.
type CronHandler struct {
	autoApproval *service.AutoApprovalService
}

func NewCronHandler(autoApproval *service.AutoApprovalService) *CronHandler {
	return &CronHandler{autoApproval: autoApproval}
}

// AutoApproveMilestones handles GET and POST /api/cron/auto-approve-milestones.
func (h *CronHandler) AutoApproveMilestones(c *gin.Context) {
	started := time.Now()

	summary, err := h.autoApproval.RunBatch(c.Request.Context(), started)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"summary":         summary,
		"executionTimeMs": time.Since(started).Milliseconds(),
	})
}
