package api

import (
	"net/http"

	"github.com/ashureev/sonnik/internal/identity"
)

type registerRequest struct {
	Phone     string `json:"phone"`
	Name      string `json:"name"`
	BirthDate string `json:"birth_date"`
	Password  string `json:"password"`
}

type loginRequest struct {
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

// Register creates an account.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Phone == "" || req.Name == "" || req.BirthDate == "" || req.Password == "" {
		Error(w, http.StatusBadRequest, "All fields are required")
		return
	}

	user, err := h.identity.Register(r.Context(), identity.Registration{
		Phone:     req.Phone,
		Name:      req.Name,
		BirthDate: req.BirthDate,
		Password:  req.Password,
	})
	if err != nil {
		Fail(w, r, err, "Registration failed")
		return
	}

	JSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Registration successful!",
		"user_id": user.ID,
	})
}

// Login authenticates by phone and password.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Phone == "" || req.Password == "" {
		Error(w, http.StatusBadRequest, "Phone number and password are required")
		return
	}

	user, err := h.identity.Authenticate(r.Context(), req.Phone, req.Password)
	if err != nil {
		Fail(w, r, err, "Login failed")
		return
	}

	JSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Login successful!",
		"user":    user.Public(),
	})
}

// Logout is stateless; clients drop their stored user data.
func (h *Handler) Logout(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, map[string]any{"success": true})
}

// UserInfo returns the public profile for user_data.
func (h *Handler) UserInfo(w http.ResponseWriter, r *http.Request) {
	ref, ok := userRefFromRequest(w, r)
	if !ok {
		return
	}
	user, err := h.identity.Resolve(r.Context(), ref)
	if err != nil {
		Fail(w, r, err, "Failed to load user info")
		return
	}

	JSON(w, http.StatusOK, map[string]any{
		"success": true,
		"user":    user.Public(),
	})
}
