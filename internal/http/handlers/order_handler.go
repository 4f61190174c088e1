package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tailorlink/tailorlink-backend/internal/http/handlers/common"
	"github.com/tailorlink/tailorlink-backend/internal/models"
	"github.com/tailorlink/tailorlink-backend/internal/pkg/apperror"
	"github.com/tailorlink/tailorlink-backend/internal/repository"
	"github.com/tailorlink/tailorlink-backend/internal/service"
)

// OrderHandler serves the per-order escrow status view.
type OrderHandler struct {
	orders     *repository.OrderRepository
	milestones *repository.MilestoneRepository
	payments   *repository.PaymentRepository
	escrow     *service.EscrowCalculator
}

func NewOrderHandler(
	orders *repository.OrderRepository,
	milestones *repository.MilestoneRepository,
	payments *repository.PaymentRepository,
	escrow *service.EscrowCalculator,
) *OrderHandler {
	return &OrderHandler{
		orders:     orders,
		milestones: milestones,
		payments:   payments,
		escrow:     escrow,
	}
}

// orderEscrowView aggregates everything escrow-related about one order.
type orderEscrowView struct {
	Order        *models.Order              `json:"order"`
	Breakdown    *models.EscrowBreakdown    `json:"breakdown"`
	Milestones   []models.Milestone         `json:"milestones"`
	Transactions []models.EscrowTransaction `json:"transactions"`
}

// EscrowStatus handles GET /api/orders/:id/escrow.
func (h *OrderHandler) EscrowStatus(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c)
		return
	}
	role, _ := common.CurrentUserRole(c)

	orderID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondValidation(c, "invalid order id")
		return
	}

	ctx := c.Request.Context()
	o, err := h.orders.GetByID(ctx, orderID)
	if errors.Is(err, repository.ErrOrderNotFound) {
		common.RespondAppError(c, apperror.ErrOrderNotFound)
		return
	}
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	if role != models.RoleAdmin && !o.IsParticipant(userID) {
		common.RespondAppError(c, apperror.ErrForbidden)
		return
	}

	// DRAFT orders may predate amount validation; a breakdown that cannot be
	// computed is reported as absent, not as a request failure.
	breakdown, err := h.escrow.Breakdown(o.TotalAmount)
	if err != nil {
		breakdown = nil
	}

	milestones, err := h.milestones.ListByOrder(ctx, orderID)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}
	transactions, err := h.payments.ListTransactionsByOrder(ctx, orderID)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, orderEscrowView{
		Order:        o,
		Breakdown:    breakdown,
		Milestones:   milestones,
		Transactions: transactions,
	})
}
