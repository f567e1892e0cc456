package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dvvvvv411/meta-backend-sub001/internal/db"
	"github.com/dvvvvv411/meta-backend-sub001/internal/models"
	"github.com/dvvvvv411/meta-backend-sub001/internal/money"
	"github.com/dvvvvv411/meta-backend-sub001/internal/nowpayments"
	"github.com/dvvvvv411/meta-backend-sub001/internal/store"
	"github.com/dvvvvv411/meta-backend-sub001/internal/websocket"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	ErrInvalidAmount       = errors.New("amount must be between 10 and 10000 EUR")
	ErrUnsupportedCurrency = errors.New("unsupported pay currency")
	ErrInvalidPaymentType  = errors.New("unsupported payment type")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrMalformedPayload    = errors.New("malformed provider payload")
)

// MinimumAmountError rejects a deposit below the currency-specific floor
// reported by the provider. The floor is part of the message so the UI
// can show it.
type MinimumAmountError struct {
	PayCurrency string
	MinimumEUR  string
}

func (e *MinimumAmountError) Error() string {
	return fmt.Sprintf("minimum deposit for %s is %s EUR", e.PayCurrency, e.MinimumEUR)
}

// Deposit bounds in EUR minor units.
const (
	minDepositMinor = 10_00
	maxDepositMinor = 10_000_00
)

var depositFeeRate = decimal.New(2, -2) // 2%

// SupportedPayCurrencies is the allow-list of coins the dashboard offers.
var SupportedPayCurrencies = []string{"btc", "eth", "usdttrc20", "usdterc20", "usdtbsc", "usdc"}

var supportedPayCurrencySet = func() map[string]struct{} {
	set := make(map[string]struct{}, len(SupportedPayCurrencies))
	for _, currency := range SupportedPayCurrencies {
		set[currency] = struct{}{}
	}
	return set
}()

type ProfileStore interface {
	GetByID(ctx context.Context, userID string) (models.Profile, error)
	AdjustBalance(ctx context.Context, tx store.Execer, userID string, delta int64) (int64, error)
}

type TransactionStore interface {
	Create(ctx context.Context, tx store.Execer, input store.TransactionInput) error
	GetByProviderID(ctx context.Context, providerID string) (models.Transaction, error)
	GetByProviderIDForUser(ctx context.Context, providerID, userID string) (models.Transaction, error)
	UpdateProviderState(ctx context.Context, tx store.Execer, providerID, status, paymentStatus string, txHash *string, confirmations int) (int64, error)
	MarkCompleted(ctx context.Context, tx store.Execer, providerID, paymentStatus string, txHash *string, confirmations int) (int64, error)
}

type AuditStore interface {
	Log(ctx context.Context, tx store.Execer, actorID, action, entityType, entityID, data string) error
}

type Provider interface {
	Currencies(ctx context.Context) ([]string, error)
	MinAmountFor(ctx context.Context, payCurrency, fiatCurrency string) (nowpayments.MinAmount, error)
	CreatePayment(ctx context.Context, req nowpayments.CreatePaymentRequest) (nowpayments.Payment, error)
	PaymentStatus(ctx context.Context, paymentID string) (nowpayments.Payment, error)
}

type BalanceHub interface {
	BroadcastBalance(userID string, update websocket.BalanceUpdate)
	BroadcastPayment(userID string, update websocket.PaymentUpdate)
}

type PaymentServiceConfig struct {
	IPNSecret     string
	AllowUnsigned bool
	CallbackURL   string
}

type PaymentService struct {
	txRunner     db.TxRunner
	profiles     ProfileStore
	transactions TransactionStore
	audit        AuditStore
	provider     Provider
	hub          BalanceHub
	cfg          PaymentServiceConfig
	log          *zap.Logger
}

func NewPaymentService(txRunner db.TxRunner, profiles ProfileStore, transactions TransactionStore, audit AuditStore, provider Provider, hub BalanceHub, cfg PaymentServiceConfig, log *zap.Logger) *PaymentService {
	if log == nil {
		log = zap.NewNop()
	}
	return &PaymentService{
		txRunner:     txRunner,
		profiles:     profiles,
		transactions: transactions,
		audit:        audit,
		provider:     provider,
		hub:          hub,
		cfg:          cfg,
		log:          log,
	}
}

// DepositFee returns the platform fee in minor units: 2% bank-rounded to
// the cent for deposits, zero for rental top-ups.
func DepositFee(amountMinor int64, paymentType string) int64 {
	if paymentType == models.TypeRental {
		return 0
	}
	return decimal.NewFromInt(amountMinor).Mul(depositFeeRate).RoundBank(0).IntPart()
}

// MapProviderStatus maps the provider's payment_status vocabulary onto the
// internal lifecycle state. Unknown statuses stay pending: a status we do
// not recognize must never credit or fail a transaction.
func MapProviderStatus(paymentStatus string) string {
	switch strings.ToLower(paymentStatus) {
	case "finished", "confirmed":
		return models.StatusCompleted
	case "failed", "expired", "refunded":
		return models.StatusFailed
	default:
		return models.StatusPending
	}
}

type CreateDepositRequest struct {
	UserID      string
	AmountMinor int64
	PayCurrency string
	PaymentType string
}

type CreateDepositResult struct {
	TransactionID string
	PaymentID     string
	PayAddress    string
	PayAmount     string
	PayCurrency   string
	PaymentStatus string
	ExpiresAt     *time.Time
	AmountMinor   int64
	NetMinor      int64
	FeeMinor      int64
}

func (s *PaymentService) CreateDeposit(ctx context.Context, req CreateDepositRequest) (CreateDepositResult, error) {
	if req.AmountMinor < minDepositMinor || req.AmountMinor > maxDepositMinor {
		return CreateDepositResult{}, ErrInvalidAmount
	}
	payCurrency := strings.ToLower(strings.TrimSpace(req.PayCurrency))
	if _, ok := supportedPayCurrencySet[payCurrency]; !ok {
		return CreateDepositResult{}, ErrUnsupportedCurrency
	}
	paymentType := req.PaymentType
	if paymentType == "" {
		paymentType = models.TypeDeposit
	}
	if paymentType != models.TypeDeposit && paymentType != models.TypeRental {
		return CreateDepositResult{}, ErrInvalidPaymentType
	}

	minAmount, err := s.provider.MinAmountFor(ctx, payCurrency, "eur")
	if err != nil {
		return CreateDepositResult{}, err
	}
	if floor, ok := minAmountFloorMinor(minAmount); ok && req.AmountMinor < floor {
		return CreateDepositResult{}, &MinimumAmountError{
			PayCurrency: payCurrency,
			MinimumEUR:  money.FormatMinor(floor),
		}
	}

	payment, err := s.provider.CreatePayment(ctx, nowpayments.CreatePaymentRequest{
		PriceAmount:      money.Float(req.AmountMinor),
		PriceCurrency:    "eur",
		PayCurrency:      payCurrency,
		IPNCallbackURL:   s.cfg.CallbackURL,
		OrderID:          fmt.Sprintf("%s_%d", req.UserID, time.Now().Unix()),
		OrderDescription: "Advertising account deposit",
	})
	if err != nil {
		return CreateDepositResult{}, err
	}
	providerID := payment.PaymentID.String()
	if providerID == "" {
		return CreateDepositResult{}, fmt.Errorf("%w: create-payment response missing payment_id", ErrMalformedPayload)
	}

	feeMinor := DepositFee(req.AmountMinor, paymentType)
	netMinor := req.AmountMinor - feeMinor
	paymentStatus := payment.PaymentStatus
	if paymentStatus == "" {
		paymentStatus = "waiting"
	}
	expiresAt := parseProviderTime(payment.ExpirationDate)
	payAddress := payment.PayAddress
	payAmount := payment.PayAmount.String()

	transactionID := uuid.NewString()
	err = s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.transactions.Create(ctx, tx, store.TransactionInput{
			ID:            transactionID,
			UserID:        req.UserID,
			Type:          paymentType,
			Amount:        netMinor,
			GrossAmount:   req.AmountMinor,
			FeeAmount:     feeMinor,
			Currency:      "EUR",
			CoinType:      &payCurrency,
			Network:       optionalString(payment.Network),
			Status:        models.StatusPending,
			PaymentStatus: &paymentStatus,
			NowPaymentsID: &providerID,
			PayAddress:    optionalString(payAddress),
			PayAmount:     optionalString(payAmount),
			PayCurrency:   &payCurrency,
			ExpiresAt:     expiresAt,
		}); err != nil {
			return err
		}
		data, _ := json.Marshal(map[string]string{
			"payment_id": providerID,
			"amount_eur": money.FormatMinor(req.AmountMinor),
			"fee_eur":    money.FormatMinor(feeMinor),
		})
		return s.audit.Log(ctx, tx, req.UserID, "deposit_created", "transaction", transactionID, string(data))
	})
	if err != nil {
		return CreateDepositResult{}, err
	}

	s.log.Info("deposit created",
		zap.String("transaction_id", transactionID),
		zap.String("payment_id", providerID),
		zap.String("pay_currency", payCurrency),
		zap.Int64("amount_minor", req.AmountMinor))

	return CreateDepositResult{
		TransactionID: transactionID,
		PaymentID:     providerID,
		PayAddress:    payAddress,
		PayAmount:     payAmount,
		PayCurrency:   payCurrency,
		PaymentStatus: paymentStatus,
		ExpiresAt:     expiresAt,
		AmountMinor:   req.AmountMinor,
		NetMinor:      netMinor,
		FeeMinor:      feeMinor,
	}, nil
}

// HandleWebhook processes one IPN callback. Signature verification is
// mandatory unless AllowUnsigned is set; missing and mismatching
// signatures are both rejected before any lookup happens.
func (s *PaymentService) HandleWebhook(ctx context.Context, body []byte, signature string) error {
	if signature == "" && s.cfg.AllowUnsigned {
		s.log.Warn("accepting unsigned webhook (test mode)")
	} else if err := nowpayments.VerifySignature(body, signature, s.cfg.IPNSecret); err != nil {
		return err
	}

	var payload nowpayments.Payment
	if err := json.Unmarshal(body, &payload); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	providerID := payload.PaymentID.String()
	if providerID == "" || payload.PaymentStatus == "" {
		return ErrMalformedPayload
	}

	transaction, err := s.transactions.GetByProviderID(ctx, providerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrTransactionNotFound
		}
		return err
	}
	return s.reconcile(ctx, transaction, payload)
}

type PollStatusResult struct {
	PaymentID     string
	PaymentStatus string
	PayAddress    string
	PayAmount     string
	ActuallyPaid  string
	Confirmations int
}

// PollStatus is the pull-based mirror of the webhook path: the dashboard
// calls it while waiting for the IPN. It reuses the same reconcile step,
// so whichever path observes a terminal status first wins and the credit
// still happens exactly once.
func (s *PaymentService) PollStatus(ctx context.Context, userID, paymentID string) (PollStatusResult, error) {
	transaction, err := s.transactions.GetByProviderIDForUser(ctx, paymentID, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return PollStatusResult{}, ErrTransactionNotFound
		}
		return PollStatusResult{}, err
	}
	payment, err := s.provider.PaymentStatus(ctx, paymentID)
	if err != nil {
		return PollStatusResult{}, err
	}
	if err := s.reconcile(ctx, transaction, payment); err != nil {
		return PollStatusResult{}, err
	}
	payAddress := payment.PayAddress
	if payAddress == "" && transaction.PayAddress != nil {
		payAddress = *transaction.PayAddress
	}
	payAmount := payment.PayAmount.String()
	if payAmount == "" && transaction.PayAmount != nil {
		payAmount = *transaction.PayAmount
	}
	confirmations := transaction.Confirmations
	if payment.Confirmations > confirmations {
		confirmations = payment.Confirmations
	}
	return PollStatusResult{
		PaymentID:     paymentID,
		PaymentStatus: payment.PaymentStatus,
		PayAddress:    payAddress,
		PayAmount:     payAmount,
		ActuallyPaid:  payment.ActuallyPaid.String(),
		Confirmations: confirmations,
	}, nil
}

func (s *PaymentService) SupportedCurrencies(ctx context.Context) ([]string, error) {
	available, err := s.provider.Currencies(ctx)
	if err != nil {
		return nil, err
	}
	availableSet := make(map[string]struct{}, len(available))
	for _, currency := range available {
		availableSet[strings.ToLower(currency)] = struct{}{}
	}
	currencies := make([]string, 0, len(SupportedPayCurrencies))
	for _, currency := range SupportedPayCurrencies {
		if _, ok := availableSet[currency]; ok {
			currencies = append(currencies, currency)
		}
	}
	return currencies, nil
}

// reconcile applies one provider-reported state to the ledger. It is the
// single place that credits balances; both the webhook and the poll path
// end up here. The credit is guarded by the conditional MarkCompleted
// update, so redelivered webhooks and webhook/poll races collapse to one
// increment.
func (s *PaymentService) reconcile(ctx context.Context, transaction models.Transaction, payment nowpayments.Payment) error {
	providerID := payment.PaymentID.String()
	if providerID == "" && transaction.NowPaymentsID != nil {
		providerID = *transaction.NowPaymentsID
	}
	newStatus := MapProviderStatus(payment.PaymentStatus)
	txHash := optionalString(payment.PayinHash)

	switch newStatus {
	case models.StatusCompleted:
		credited := false
		err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
			credited = false
			rows, err := s.transactions.MarkCompleted(ctx, tx, providerID, payment.PaymentStatus, txHash, payment.Confirmations)
			if err != nil {
				return err
			}
			if rows == 0 {
				// Already completed by an earlier delivery or the
				// concurrent path; nothing left to do.
				return nil
			}
			if _, err := s.profiles.AdjustBalance(ctx, tx, transaction.UserID, transaction.Amount); err != nil {
				return err
			}
			credited = true
			data, _ := json.Marshal(map[string]string{
				"payment_id":   providerID,
				"credited_eur": money.FormatMinor(transaction.Amount),
			})
			return s.audit.Log(ctx, tx, transaction.UserID, "deposit_credited", "transaction", transaction.ID, string(data))
		})
		if err != nil {
			return err
		}
		if credited {
			s.log.Info("deposit credited",
				zap.String("transaction_id", transaction.ID),
				zap.String("payment_id", providerID),
				zap.Int64("amount_minor", transaction.Amount))
			s.notifyCompleted(ctx, transaction, providerID, payment.PaymentStatus)
		}
		return nil
	default:
		var updated int64
		err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
			rows, err := s.transactions.UpdateProviderState(ctx, tx, providerID, newStatus, payment.PaymentStatus, txHash, payment.Confirmations)
			if err != nil {
				return err
			}
			updated = rows
			if rows > 0 && newStatus == models.StatusFailed {
				data, _ := json.Marshal(map[string]string{
					"payment_id":     providerID,
					"payment_status": payment.PaymentStatus,
				})
				return s.audit.Log(ctx, tx, transaction.UserID, "deposit_failed", "transaction", transaction.ID, string(data))
			}
			return nil
		})
		if err != nil {
			return err
		}
		if updated > 0 {
			s.hub.BroadcastPayment(transaction.UserID, websocket.PaymentUpdate{
				TransactionID: transaction.ID,
				PaymentID:     providerID,
				Status:        newStatus,
				PaymentStatus: payment.PaymentStatus,
			})
		}
		return nil
	}
}

func (s *PaymentService) notifyCompleted(ctx context.Context, transaction models.Transaction, providerID, paymentStatus string) {
	s.hub.BroadcastPayment(transaction.UserID, websocket.PaymentUpdate{
		TransactionID: transaction.ID,
		PaymentID:     providerID,
		Status:        models.StatusCompleted,
		PaymentStatus: paymentStatus,
	})
	profile, err := s.profiles.GetByID(ctx, transaction.UserID)
	if err != nil {
		s.log.Warn("balance push skipped", zap.String("user_id", transaction.UserID), zap.Error(err))
		return
	}
	s.hub.BroadcastBalance(transaction.UserID, websocket.BalanceUpdate{
		BalanceEUR: money.FormatMinor(profile.BalanceEUR),
		Currency:   "EUR",
	})
}

func minAmountFloorMinor(minAmount nowpayments.MinAmount) (int64, bool) {
	raw := minAmount.FiatEquivalent.String()
	if raw == "" {
		return 0, false
	}
	floor, err := decimal.NewFromString(raw)
	if err != nil {
		return 0, false
	}
	// Ceil so a deposit equal to a fractional-cent floor is never rejected
	// by the provider after passing our check.
	return floor.Mul(decimal.NewFromInt(100)).Ceil().IntPart(), true
}

func parseProviderTime(raw string) *time.Time {
	if raw == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05.000"} {
		if parsed, err := time.Parse(layout, raw); err == nil {
			return &parsed
		}
	}
	return nil
}

func optionalString(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
