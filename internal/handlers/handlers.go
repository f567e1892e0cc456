package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/dvvvvv411/meta-backend-sub001/internal/config"
	"github.com/dvvvvv411/meta-backend-sub001/internal/db"
	"github.com/dvvvvv411/meta-backend-sub001/internal/models"
	"github.com/dvvvvv411/meta-backend-sub001/internal/money"
	"github.com/dvvvvv411/meta-backend-sub001/internal/websocket"

	"go.uber.org/zap"
)

type Handler struct {
	cfg          config.Config
	txRunner     db.TxRunner
	profiles     ProfileStore
	transactions TransactionStore
	audit        AuditStore
	payments     PaymentService
	hub          *websocket.Hub
	log          *zap.Logger
}

func New(cfg config.Config, txRunner db.TxRunner, profiles ProfileStore, transactions TransactionStore, audit AuditStore, payments PaymentService, hub *websocket.Hub, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		cfg:          cfg,
		txRunner:     txRunner,
		profiles:     profiles,
		transactions: transactions,
		audit:        audit,
		payments:     payments,
		hub:          hub,
		log:          log,
	}
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func parseInt(raw string, fallback int) int {
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

func transactionToMap(row models.Transaction) map[string]any {
	return map[string]any{
		"id":             row.ID,
		"user_id":        row.UserID,
		"type":           row.Type,
		"status":         row.Status,
		"amount":         money.FormatMinor(row.Amount),
		"gross_amount":   money.FormatMinor(row.GrossAmount),
		"fee_amount":     money.FormatMinor(row.FeeAmount),
		"currency":       row.Currency,
		"coin_type":      row.CoinType,
		"network":        row.Network,
		"payment_status": row.PaymentStatus,
		"nowpayments_id": row.NowPaymentsID,
		"pay_address":    row.PayAddress,
		"pay_amount":     row.PayAmount,
		"pay_currency":   row.PayCurrency,
		"expires_at":     row.ExpiresAt,
		"tx_hash":        row.TxHash,
		"confirmations":  row.Confirmations,
		"created_at":     row.CreatedAt,
		"updated_at":     row.UpdatedAt,
	}
}
