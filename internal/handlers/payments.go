package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/dvvvvv411/meta-backend-sub001/internal/middleware"
	"github.com/dvvvvv411/meta-backend-sub001/internal/money"
	"github.com/dvvvvv411/meta-backend-sub001/internal/nowpayments"
	"github.com/dvvvvv411/meta-backend-sub001/internal/services"
	"github.com/dvvvvv411/meta-backend-sub001/internal/validator"

	"go.uber.org/zap"
)

const maxWebhookBody = 1 << 20

type createPaymentRequest struct {
	AmountEUR   float64 `json:"amount_eur"`
	PayCurrency string  `json:"pay_currency"`
	PaymentType string  `json:"payment_type"`
}

func (h *Handler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req createPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	amountMinor, err := money.MinorFromFloat(req.AmountEUR)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_amount")
		return
	}
	payCurrency := strings.ToLower(strings.TrimSpace(req.PayCurrency))
	if err := validator.ValidatePayCurrency(payCurrency); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	result, err := h.payments.CreateDeposit(r.Context(), services.CreateDepositRequest{
		UserID:      userID,
		AmountMinor: amountMinor,
		PayCurrency: payCurrency,
		PaymentType: req.PaymentType,
	})
	if err != nil {
		h.respondCreateDepositError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"transaction_id": result.TransactionID,
		"payment_id":     result.PaymentID,
		"pay_address":    result.PayAddress,
		"pay_amount":     result.PayAmount,
		"pay_currency":   result.PayCurrency,
		"payment_status": result.PaymentStatus,
		"expires_at":     result.ExpiresAt,
		"amount_eur":     money.FormatMinor(result.AmountMinor),
		"net_amount":     money.FormatMinor(result.NetMinor),
		"fee_amount":     money.FormatMinor(result.FeeMinor),
	})
}

func (h *Handler) respondCreateDepositError(w http.ResponseWriter, err error) {
	var minimumErr *services.MinimumAmountError
	var apiErr *nowpayments.APIError
	switch {
	case errors.Is(err, services.ErrInvalidAmount):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, services.ErrUnsupportedCurrency):
		respondError(w, http.StatusBadRequest, "unsupported_currency")
	case errors.Is(err, services.ErrInvalidPaymentType):
		respondError(w, http.StatusBadRequest, "unsupported_payment_type")
	case errors.As(err, &minimumErr):
		respondError(w, http.StatusBadRequest, minimumErr.Error())
	case errors.Is(err, nowpayments.ErrAmountTooSmall):
		respondError(w, http.StatusBadRequest, "amount below the minimum for this currency")
	case errors.As(err, &apiErr):
		// Surface the provider's own message; the UI shows it verbatim.
		respondError(w, http.StatusBadRequest, apiErr.Message)
	default:
		h.log.Error("create payment failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "payment_creation_failed")
	}
}

func (h *Handler) Currencies(w http.ResponseWriter, r *http.Request) {
	if _, ok := middleware.UserIDFromContext(r.Context()); !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	currencies, err := h.payments.SupportedCurrencies(r.Context())
	if err != nil {
		h.log.Warn("currency listing failed", zap.Error(err))
		respondError(w, http.StatusBadRequest, "provider_unavailable")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"currencies": currencies})
}

type paymentStatusRequest struct {
	PaymentID string `json:"payment_id"`
}

func (h *Handler) PaymentStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req paymentStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PaymentID == "" {
		respondError(w, http.StatusBadRequest, "payment_id is required")
		return
	}
	result, err := h.payments.PollStatus(r.Context(), userID, req.PaymentID)
	if err != nil {
		var apiErr *nowpayments.APIError
		switch {
		case errors.Is(err, services.ErrTransactionNotFound):
			respondError(w, http.StatusNotFound, "transaction_not_found")
		case errors.As(err, &apiErr):
			respondError(w, http.StatusBadRequest, "provider_unavailable")
		default:
			h.log.Error("payment status poll failed", zap.String("payment_id", req.PaymentID), zap.Error(err))
			respondError(w, http.StatusInternalServerError, "status_check_failed")
		}
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"payment_id":     result.PaymentID,
		"payment_status": result.PaymentStatus,
		"pay_address":    result.PayAddress,
		"pay_amount":     result.PayAmount,
		"actually_paid":  result.ActuallyPaid,
		"confirmations":  result.Confirmations,
	})
}

// Webhook receives NOWPayments IPN callbacks. Every non-2xx response makes
// the provider retry the delivery later, so store failures map to 5xx and
// everything terminal (bad signature, unknown payment) to 4xx.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		respondError(w, http.StatusBadRequest, "unreadable body")
		return
	}
	signature := r.Header.Get("x-nowpayments-sig")
	if err := h.payments.HandleWebhook(r.Context(), body, signature); err != nil {
		switch {
		case errors.Is(err, nowpayments.ErrMissingSignature), errors.Is(err, nowpayments.ErrBadSignature):
			h.log.Warn("webhook rejected", zap.Error(err))
			respondError(w, http.StatusUnauthorized, "invalid signature")
		case errors.Is(err, services.ErrMalformedPayload):
			respondError(w, http.StatusBadRequest, "malformed payload")
		case errors.Is(err, services.ErrTransactionNotFound):
			respondError(w, http.StatusNotFound, "unknown payment_id")
		default:
			h.log.Error("webhook processing failed", zap.Error(err))
			respondError(w, http.StatusInternalServerError, "webhook_processing_failed")
		}
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}
