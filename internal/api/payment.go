package api

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/ashureev/sonnik/internal/domain"
)

type paymentRequest struct {
	Plan string `json:"plan"`
}

// CreatePayment returns checkout data for a catalog plan. No gateway is involved.
func (h *Handler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	var req paymentRequest
	if !decode(w, r, &req) {
		return
	}

	plan, ok := domain.LookupPlan(strings.ToLower(strings.TrimSpace(req.Plan)))
	if !ok {
		Error(w, http.StatusBadRequest, "Unknown plan, choose basic or premium")
		return
	}

	orderID := uuid.NewString()
	slog.Info("Payment created", "plan", plan.Code, "order_id", orderID)

	JSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"order_id":     orderID,
		"payment_url":  "#",
		"payment_data": plan,
	})
}
