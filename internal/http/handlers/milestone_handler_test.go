package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/tailorlink/tailorlink-backend/internal/http/middleware"
)

func TestMilestoneHandler_Approve_Unauthorized(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handler := &MilestoneHandler{milestones: nil}
	r.POST("/milestones/:id/approve", handler.Approve)

	req, _ := http.NewRequest("POST", "/milestones/"+uuid.NewString()+"/approve",
		strings.NewReader(`{"action":"APPROVED"}`))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestMilestoneHandler_Approve_InvalidMilestoneID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handler := &MilestoneHandler{milestones: nil}
	r.POST("/milestones/:id/approve", middleware.UUIDValidator("id"), handler.Approve)

	req, _ := http.NewRequest("POST", "/milestones/not-a-uuid/approve",
		strings.NewReader(`{"action":"APPROVED"}`))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDisputeHandler_Resolve_Unauthorized(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handler := &DisputeHandler{disputes: nil}
	r.POST("/disputes/:id/resolve", handler.Resolve)

	req, _ := http.NewRequest("POST", "/disputes/"+uuid.NewString()+"/resolve",
		strings.NewReader(`{"resolution_type":"NO_REFUND","reason_code":"x"}`))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
