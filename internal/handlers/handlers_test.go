package handlers

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/dvvvvv411/meta-backend-sub001/internal/auth"
	"github.com/dvvvvv411/meta-backend-sub001/internal/config"
	"github.com/dvvvvv411/meta-backend-sub001/internal/models"
	"github.com/dvvvvv411/meta-backend-sub001/internal/nowpayments"
	"github.com/dvvvvv411/meta-backend-sub001/internal/services"
	"github.com/dvvvvv411/meta-backend-sub001/internal/store"
	"github.com/dvvvvv411/meta-backend-sub001/internal/websocket"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const (
	testJWTSecret = "handler-test-secret"
	testIPNSecret = "handler-ipn-secret"
)

// apiStore backs the whole handler stack in memory. It implements the
// profile, transaction and audit store interfaces of both the handlers
// and the services package, so one instance serves a full request path.
type apiStore struct {
	mu           sync.Mutex
	profiles     map[string]models.Profile
	rows         []*models.Transaction
	transactions map[string]*models.Transaction
	auditEntries []map[string]any
}

func newAPIStore() *apiStore {
	return &apiStore{
		profiles:     make(map[string]models.Profile),
		transactions: make(map[string]*models.Transaction),
	}
}

func (s *apiStore) addProfile(t *testing.T, id, email, role, password string, balanceMinor int64) {
	t.Helper()
	hash, err := auth.HashPassword(password)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[id] = models.Profile{
		ID:           id,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		BalanceEUR:   balanceMinor,
		CreatedAt:    time.Now(),
	}
}

func (s *apiStore) GetByID(ctx context.Context, userID string) (models.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	profile, ok := s.profiles[userID]
	if !ok {
		return models.Profile{}, sql.ErrNoRows
	}
	return profile, nil
}

func (s *apiStore) GetByEmail(ctx context.Context, email string) (models.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, profile := range s.profiles {
		if profile.Email == email {
			return profile, nil
		}
	}
	return models.Profile{}, sql.ErrNoRows
}

func (s *apiStore) IsAdmin(ctx context.Context, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	profile, ok := s.profiles[userID]
	if !ok {
		return false, sql.ErrNoRows
	}
	return profile.Role == "admin", nil
}

func (s *apiStore) AdjustBalance(ctx context.Context, tx store.Execer, userID string, delta int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	profile, ok := s.profiles[userID]
	if !ok {
		return 0, nil
	}
	profile.BalanceEUR += delta
	s.profiles[userID] = profile
	return 1, nil
}

func (s *apiStore) balanceOf(userID string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.profiles[userID].BalanceEUR
}

func (s *apiStore) Create(ctx context.Context, tx store.Execer, input store.TransactionInput) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row := &models.Transaction{
		ID:            input.ID,
		UserID:        input.UserID,
		Type:          input.Type,
		Amount:        input.Amount,
		GrossAmount:   input.GrossAmount,
		FeeAmount:     input.FeeAmount,
		Currency:      input.Currency,
		CoinType:      input.CoinType,
		Network:       input.Network,
		Status:        input.Status,
		PaymentStatus: input.PaymentStatus,
		NowPaymentsID: input.NowPaymentsID,
		PayAddress:    input.PayAddress,
		PayAmount:     input.PayAmount,
		PayCurrency:   input.PayCurrency,
		ExpiresAt:     input.ExpiresAt,
		CreatedAt:     time.Now(),
	}
	s.rows = append(s.rows, row)
	if input.NowPaymentsID != nil {
		s.transactions[*input.NowPaymentsID] = row
	}
	return nil
}

func (s *apiStore) GetByProviderID(ctx context.Context, providerID string) (models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.transactions[providerID]
	if !ok {
		return models.Transaction{}, sql.ErrNoRows
	}
	return *row, nil
}

func (s *apiStore) GetByProviderIDForUser(ctx context.Context, providerID, userID string) (models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.transactions[providerID]
	if !ok || row.UserID != userID {
		return models.Transaction{}, sql.ErrNoRows
	}
	return *row, nil
}

func (s *apiStore) UpdateProviderState(ctx context.Context, tx store.Execer, providerID, status, paymentStatus string, txHash *string, confirmations int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.transactions[providerID]
	if !ok || row.Status == models.StatusCompleted {
		return 0, nil
	}
	row.Status = status
	row.PaymentStatus = &paymentStatus
	if txHash != nil {
		row.TxHash = txHash
	}
	if confirmations > row.Confirmations {
		row.Confirmations = confirmations
	}
	return 1, nil
}

func (s *apiStore) MarkCompleted(ctx context.Context, tx store.Execer, providerID, paymentStatus string, txHash *string, confirmations int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.transactions[providerID]
	if !ok || row.Status == models.StatusCompleted {
		return 0, nil
	}
	row.Status = models.StatusCompleted
	row.PaymentStatus = &paymentStatus
	if txHash != nil {
		row.TxHash = txHash
	}
	if confirmations > row.Confirmations {
		row.Confirmations = confirmations
	}
	return 1, nil
}

func (s *apiStore) ListByUser(ctx context.Context, userID, txType string, limit, offset int) ([]models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var rows []models.Transaction
	for _, row := range s.rows {
		if row.UserID != userID {
			continue
		}
		if txType != "" && row.Type != txType {
			continue
		}
		rows = append(rows, *row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].CreatedAt.After(rows[j].CreatedAt) })
	return rows, nil
}

func (s *apiStore) ListAll(ctx context.Context, limit, offset int) ([]models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var rows []models.Transaction
	for _, row := range s.rows {
		rows = append(rows, *row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].CreatedAt.After(rows[j].CreatedAt) })
	return rows, nil
}

func (s *apiStore) Log(ctx context.Context, tx store.Execer, actorID, action, entityType, entityID, data string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.auditEntries = append(s.auditEntries, map[string]any{
		"actor_id":    actorID,
		"action":      action,
		"entity_type": entityType,
		"entity_id":   entityID,
		"data":        data,
	})
	return nil
}

func (s *apiStore) List(ctx context.Context, limit, offset int) ([]map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]map[string]any(nil), s.auditEntries...), nil
}

// profileTable exposes the profile surface of apiStore under its own type,
// since the profile and transaction stores both name their insert Create.
type profileTable struct{ s *apiStore }

func (p profileTable) Create(ctx context.Context, tx store.Execer, id, email, passwordHash, role string) error {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	for _, profile := range p.s.profiles {
		if profile.Email == email {
			return &pq.Error{Code: "23505"}
		}
	}
	p.s.profiles[id] = models.Profile{
		ID:           id,
		Email:        email,
		PasswordHash: passwordHash,
		Role:         role,
		CreatedAt:    time.Now(),
	}
	return nil
}

func (p profileTable) GetByID(ctx context.Context, userID string) (models.Profile, error) {
	return p.s.GetByID(ctx, userID)
}

func (p profileTable) GetByEmail(ctx context.Context, email string) (models.Profile, error) {
	return p.s.GetByEmail(ctx, email)
}

func (p profileTable) IsAdmin(ctx context.Context, userID string) (bool, error) {
	return p.s.IsAdmin(ctx, userID)
}

func (p profileTable) AdjustBalance(ctx context.Context, tx store.Execer, userID string, delta int64) (int64, error) {
	return p.s.AdjustBalance(ctx, tx, userID, delta)
}

type passthroughTxRunner struct{}

func (passthroughTxRunner) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	return fn(nil)
}

type stubProvider struct {
	currenciesFn    func(ctx context.Context) ([]string, error)
	minAmountFn     func(ctx context.Context, payCurrency, fiatCurrency string) (nowpayments.MinAmount, error)
	createPaymentFn func(ctx context.Context, req nowpayments.CreatePaymentRequest) (nowpayments.Payment, error)
	paymentStatusFn func(ctx context.Context, paymentID string) (nowpayments.Payment, error)
}

func (f stubProvider) Currencies(ctx context.Context) ([]string, error) {
	if f.currenciesFn == nil {
		return []string{"btc", "eth", "usdttrc20"}, nil
	}
	return f.currenciesFn(ctx)
}

func (f stubProvider) MinAmountFor(ctx context.Context, payCurrency, fiatCurrency string) (nowpayments.MinAmount, error) {
	if f.minAmountFn == nil {
		return nowpayments.MinAmount{FiatEquivalent: json.Number("5.00")}, nil
	}
	return f.minAmountFn(ctx, payCurrency, fiatCurrency)
}

func (f stubProvider) CreatePayment(ctx context.Context, req nowpayments.CreatePaymentRequest) (nowpayments.Payment, error) {
	if f.createPaymentFn == nil {
		return nowpayments.Payment{
			PaymentID:     json.Number("5550001"),
			PaymentStatus: "waiting",
			PayAddress:    "bc1qdeposit",
			PayAmount:     json.Number("0.0042"),
			PayCurrency:   req.PayCurrency,
		}, nil
	}
	return f.createPaymentFn(ctx, req)
}

func (f stubProvider) PaymentStatus(ctx context.Context, paymentID string) (nowpayments.Payment, error) {
	if f.paymentStatusFn == nil {
		return nowpayments.Payment{PaymentID: json.Number(paymentID), PaymentStatus: "waiting"}, nil
	}
	return f.paymentStatusFn(ctx, paymentID)
}

func newTestServer(t *testing.T, state *apiStore, provider stubProvider) http.Handler {
	t.Helper()
	cfg := config.Config{
		AppEnv:         "test",
		JWTSecret:      testJWTSecret,
		TokenTTL:       time.Hour,
		AllowedOrigins: "*",
		PublicBaseURL:  "https://example.com",
		NowPayments: config.NowPaymentsConfig{
			APIKey:    "test-key",
			IPNSecret: testIPNSecret,
		},
	}
	profiles := profileTable{s: state}
	payments := services.NewPaymentService(
		passthroughTxRunner{},
		profiles,
		state,
		state,
		provider,
		websocket.NewHub(),
		services.PaymentServiceConfig{
			IPNSecret:   testIPNSecret,
			CallbackURL: cfg.PublicBaseURL + "/nowpayments-webhook",
		},
		nil,
	)
	return New(cfg, passthroughTxRunner{}, profiles, state, state, payments, websocket.NewHub(), nil).Routes()
}

func bearerToken(t *testing.T, userID string) string {
	t.Helper()
	token, err := auth.GenerateToken(testJWTSecret, userID, time.Hour)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	return "Bearer " + token
}

func decodeBody(t *testing.T, body []byte, into any) {
	t.Helper()
	if err := json.Unmarshal(body, into); err != nil {
		t.Fatalf("decode response %q: %v", body, err)
	}
}
