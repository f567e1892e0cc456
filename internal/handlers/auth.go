package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dvvvvv411/meta-backend-sub001/internal/auth"
	"github.com/dvvvvv411/meta-backend-sub001/internal/middleware"
	"github.com/dvvvvv411/meta-backend-sub001/internal/money"
	"github.com/dvvvvv411/meta-backend-sub001/internal/validator"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if err := validator.ValidateEmail(req.Email); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	profile, err := h.profiles.GetByEmail(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			respondError(w, http.StatusUnauthorized, "invalid_credentials")
			return
		}
		respondError(w, http.StatusInternalServerError, "login_failed")
		return
	}
	if !auth.CheckPassword(profile.PasswordHash, req.Password) {
		respondError(w, http.StatusUnauthorized, "invalid_credentials")
		return
	}
	token, err := auth.GenerateToken(h.cfg.JWTSecret, profile.ID, h.cfg.TokenTTL)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to generate token")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"token": token,
		"user": map[string]any{
			"id":          profile.ID,
			"email":       profile.Email,
			"role":        profile.Role,
			"balance_eur": money.FormatMinor(profile.BalanceEUR),
		},
	})
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	profile, err := h.profiles.GetByID(r.Context(), userID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load profile")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"id":          profile.ID,
		"email":       profile.Email,
		"role":        profile.Role,
		"balance_eur": money.FormatMinor(profile.BalanceEUR),
		"created_at":  profile.CreatedAt,
	})
}
