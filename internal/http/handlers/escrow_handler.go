package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tailorlink/tailorlink-backend/internal/http/handlers/common"
	"github.com/tailorlink/tailorlink-backend/internal/service"
)

// EscrowHandler serves the escrow breakdown and payment initiation endpoints.
type EscrowHandler struct {
	payments       *service.PaymentService
	escrow         *service.EscrowCalculator
	paymentMethods []string
}

func NewEscrowHandler(payments *service.PaymentService, escrow *service.EscrowCalculator, paymentMethods []string) *EscrowHandler {
	return &EscrowHandler{
		payments:       payments,
		escrow:         escrow,
		paymentMethods: paymentMethods,
	}
}

// Breakdown handles GET /api/escrow/breakdown?totalAmount=.
func (h *EscrowHandler) Breakdown(c *gin.Context) {
	raw := c.Query("totalAmount")
	if raw == "" {
		common.RespondValidation(c, "totalAmount query parameter is required")
		return
	}

	total, err := decimal.NewFromString(raw)
	if err != nil {
		common.RespondValidation(c, "totalAmount must be a decimal number")
		return
	}

	breakdown, err := h.escrow.Breakdown(total)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	minAmount, maxAmount := h.escrow.Bounds()
	c.JSON(http.StatusOK, gin.H{
		"breakdown":       breakdown,
		"min_amount":      minAmount,
		"max_amount":      maxAmount,
		"payment_methods": h.paymentMethods,
	})
}

type initiateEscrowRequest struct {
	OrderID       uuid.UUID       `json:"order_id" binding:"required"`
	TotalAmount   decimal.Decimal `json:"total_amount" binding:"required"`
	CustomerPhone string          `json:"customer_phone" binding:"required"`
}

// Initiate handles POST /api/payments/escrow/initiate.
func (h *EscrowHandler) Initiate(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c)
		return
	}

	var req initiateEscrowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondValidation(c, "invalid request body: "+err.Error())
		return
	}

	result, err := h.payments.InitiateEscrow(c.Request.Context(), req.OrderID, userID, req.TotalAmount, req.CustomerPhone)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"payment_intent_id": result.PaymentIntentID,
		"deposit_amount":    result.DepositAmount,
		"payment_url":       result.PaymentURL,
		"order_status":      result.OrderStatus,
		"breakdown":         result.Breakdown,
	})
}
