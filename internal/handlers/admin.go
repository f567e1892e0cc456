package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dvvvvv411/meta-backend-sub001/internal/auth"
	"github.com/dvvvvv411/meta-backend-sub001/internal/middleware"
	"github.com/dvvvvv411/meta-backend-sub001/internal/models"
	"github.com/dvvvvv411/meta-backend-sub001/internal/money"
	"github.com/dvvvvv411/meta-backend-sub001/internal/store"
	"github.com/dvvvvv411/meta-backend-sub001/internal/validator"
	"github.com/dvvvvv411/meta-backend-sub001/internal/websocket"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

type createUserRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

// CreateUser provisions a dashboard account. Self-service signup does not
// exist; an admin creates advertiser accounts and hands out credentials.
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req createUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if err := validator.ValidateEmail(req.Email); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := validator.ValidatePassword(req.Password); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	role := req.Role
	if role == "" {
		role = "advertiser"
	}
	if role != "admin" && role != "advertiser" {
		respondError(w, http.StatusBadRequest, "invalid role")
		return
	}
	passwordHash, err := auth.HashPassword(req.Password)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to secure password")
		return
	}
	userID := uuid.NewString()
	err = h.txRunner.WithTx(r.Context(), func(tx *sqlx.Tx) error {
		if err := h.profiles.Create(r.Context(), tx, userID, req.Email, passwordHash, role); err != nil {
			return err
		}
		data, _ := json.Marshal(map[string]string{
			"email": req.Email,
			"role":  role,
		})
		return h.audit.Log(r.Context(), tx, actorID, "user_created", "profile", userID, string(data))
	})
	if err != nil {
		if isUniqueViolation(err) {
			respondError(w, http.StatusConflict, "email already registered")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to create user")
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{
		"id":    userID,
		"email": req.Email,
		"role":  role,
	})
}

type adjustBalanceRequest struct {
	UserID string `json:"user_id"`
	Amount string `json:"amount"`
	Reason string `json:"reason"`
}

// AdjustBalance applies a manual admin correction: a positive EUR amount
// is recorded as a refund, a negative one as a withdrawal. The amount
// arrives as a decimal string so no float ever touches the ledger.
func (h *Handler) AdjustBalance(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req adjustBalanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	delta, err := money.ParseMinor(req.Amount)
	if err != nil || delta == 0 {
		respondError(w, http.StatusBadRequest, "invalid amount")
		return
	}
	if _, err := h.profiles.GetByID(r.Context(), req.UserID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			respondError(w, http.StatusNotFound, "user not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "unable to load profile")
		return
	}

	txType := models.TypeRefund
	amount := delta
	if delta < 0 {
		txType = models.TypeWithdrawal
		amount = -delta
	}
	transactionID := uuid.NewString()
	err = h.txRunner.WithTx(r.Context(), func(tx *sqlx.Tx) error {
		rows, err := h.profiles.AdjustBalance(r.Context(), tx, req.UserID, delta)
		if err != nil {
			return err
		}
		if rows == 0 {
			return sql.ErrNoRows
		}
		if err := h.transactions.Create(r.Context(), tx, store.TransactionInput{
			ID:          transactionID,
			UserID:      req.UserID,
			Type:        txType,
			Amount:      amount,
			GrossAmount: amount,
			Currency:    "EUR",
			Status:      models.StatusCompleted,
		}); err != nil {
			return err
		}
		data, _ := json.Marshal(map[string]string{
			"amount": money.FormatMinor(delta),
			"reason": req.Reason,
		})
		return h.audit.Log(r.Context(), tx, actorID, "balance_adjusted", "profile", req.UserID, string(data))
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			respondError(w, http.StatusNotFound, "user not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to adjust balance")
		return
	}

	response := map[string]any{
		"transaction_id": transactionID,
		"user_id":        req.UserID,
		"amount":         money.FormatMinor(delta),
	}
	if profile, err := h.profiles.GetByID(r.Context(), req.UserID); err == nil {
		response["balance_eur"] = money.FormatMinor(profile.BalanceEUR)
		h.hub.BroadcastBalance(req.UserID, websocket.BalanceUpdate{
			BalanceEUR: money.FormatMinor(profile.BalanceEUR),
			Currency:   "EUR",
		})
	}
	respondJSON(w, http.StatusOK, response)
}

// 23505 unique_violation
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
