package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tailorlink/tailorlink-backend/internal/http/handlers/common"
	"github.com/tailorlink/tailorlink-backend/internal/models"
	"github.com/tailorlink/tailorlink-backend/internal/pkg/apperror"
	"github.com/tailorlink/tailorlink-backend/internal/service"
)

// MilestoneHandler exposes the interactive milestone decision endpoint.
type MilestoneHandler struct {
	milestones *service.MilestoneService
}

func NewMilestoneHandler(milestones *service.MilestoneService) *MilestoneHandler {
	return &MilestoneHandler{milestones: milestones}
}

type submitMilestoneRequest struct {
	Stage models.EscrowStage `json:"stage" binding:"required"`
}

// Submit handles POST /api/orders/:id/milestones. The tailor marks the work
// behind an escrow stage as done, opening the approval window.
func (h *MilestoneHandler) Submit(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c)
		return
	}

	orderID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondValidation(c, "invalid order id")
		return
	}

	var req submitMilestoneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondValidation(c, "invalid request body: "+err.Error())
		return
	}

	m, err := h.milestones.Submit(c.Request.Context(), orderID, userID, req.Stage)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"milestone": m})
}

type approveMilestoneRequest struct {
	Action models.ApprovalStatus `json:"action" binding:"required"`
}

// Approve handles POST /api/milestones/:id/approve. The body carries the
// customer's decision, APPROVED or REJECTED.
func (h *MilestoneHandler) Approve(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c)
		return
	}

	milestoneID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondValidation(c, "invalid milestone id")
		return
	}

	var req approveMilestoneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondValidation(c, "invalid request body: "+err.Error())
		return
	}

	m, err := h.milestones.Approve(c.Request.Context(), milestoneID, userID, req.Action)
	if err != nil {
		// The decision may have committed even when the payout failed; the
		// envelope carries the milestone alongside the error in that case.
		if apperror.IsExternalService(err) && m != nil {
			c.JSON(http.StatusBadGateway, gin.H{
				"milestone": m,
				"error": common.ErrorBody{
					Code:    "EXTERNAL_SERVICE_ERROR",
					Message: "payment disbursement failed, the approval is recorded",
				},
			})
			return
		}
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"milestone": m})
}
