package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tailorlink/tailorlink-backend/internal/http/handlers/common"
	"github.com/tailorlink/tailorlink-backend/internal/models"
	"github.com/tailorlink/tailorlink-backend/internal/pkg/apperror"
	"github.com/tailorlink/tailorlink-backend/internal/service"
)

// DisputeHandler exposes dispute creation, lookup and admin resolution.
type DisputeHandler struct {
	disputes *service.DisputeService
}

func NewDisputeHandler(disputes *service.DisputeService) *DisputeHandler {
	return &DisputeHandler{disputes: disputes}
}

type createDisputeRequest struct {
	OrderID uuid.UUID `json:"order_id" binding:"required"`
	Reason  string    `json:"reason" binding:"required"`
}

// Create handles POST /api/disputes.
func (h *DisputeHandler) Create(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c)
		return
	}

	var req createDisputeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondValidation(c, "invalid request body: "+err.Error())
		return
	}

	d, err := h.disputes.Create(c.Request.Context(), req.OrderID, userID, req.Reason)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"dispute": d})
}

// List handles GET /api/disputes, returning the caller's own disputes.
func (h *DisputeHandler) List(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c)
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	items, err := h.disputes.ListUserDisputes(c.Request.Context(), userID, limit, offset)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"disputes": items})
}

// Get handles GET /api/disputes/:id.
func (h *DisputeHandler) Get(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c)
		return
	}
	role, _ := common.CurrentUserRole(c)

	disputeID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondValidation(c, "invalid dispute id")
		return
	}

	d, err := h.disputes.Get(c.Request.Context(), disputeID, userID, role)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"dispute": d})
}

type resolveDisputeRequest struct {
	ResolutionType models.ResolutionType `json:"resolution_type" binding:"required"`
	RefundAmount   *decimal.Decimal      `json:"refund_amount"`
	ReasonCode     string                `json:"reason_code" binding:"required"`
	AdminNotes     *string               `json:"admin_notes"`
}

// Resolve handles POST /api/disputes/:id/resolve.
func (h *DisputeHandler) Resolve(c *gin.Context) {
	adminID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c)
		return
	}
	role, _ := common.CurrentUserRole(c)

	disputeID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondValidation(c, "invalid dispute id")
		return
	}

	var req resolveDisputeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondValidation(c, "invalid request body: "+err.Error())
		return
	}

	d, err := h.disputes.Resolve(c.Request.Context(), disputeID, adminID, role, service.ResolveInput{
		ResolutionType: req.ResolutionType,
		RefundAmount:   req.RefundAmount,
		ReasonCode:     req.ReasonCode,
		AdminNotes:     req.AdminNotes,
	})
	if err != nil {
		// The resolution may have committed with only the refund payout
		// failing; include the resolved dispute so the admin can retry the
		// payout instead of the whole resolution.
		if apperror.IsExternalService(err) && d != nil {
			c.JSON(http.StatusBadGateway, gin.H{
				"dispute": d,
				"error": common.ErrorBody{
					Code:    "EXTERNAL_SERVICE_ERROR",
					Message: "refund payout failed, the resolution is recorded",
				},
			})
			return
		}
		common.RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"dispute": d})
}
