package handlers

import (
	"context"

	"github.com/dvvvvv411/meta-backend-sub001/internal/models"
	"github.com/dvvvvv411/meta-backend-sub001/internal/services"
	"github.com/dvvvvv411/meta-backend-sub001/internal/store"
)

type ProfileStore interface {
	Create(ctx context.Context, tx store.Execer, id, email, passwordHash, role string) error
	GetByID(ctx context.Context, userID string) (models.Profile, error)
	GetByEmail(ctx context.Context, email string) (models.Profile, error)
	AdjustBalance(ctx context.Context, tx store.Execer, userID string, delta int64) (int64, error)
	IsAdmin(ctx context.Context, userID string) (bool, error)
}

type TransactionStore interface {
	Create(ctx context.Context, tx store.Execer, input store.TransactionInput) error
	ListByUser(ctx context.Context, userID, txType string, limit, offset int) ([]models.Transaction, error)
	ListAll(ctx context.Context, limit, offset int) ([]models.Transaction, error)
}

type AuditStore interface {
	Log(ctx context.Context, tx store.Execer, actorID, action, entityType, entityID, data string) error
	List(ctx context.Context, limit, offset int) ([]map[string]any, error)
}

type PaymentService interface {
	CreateDeposit(ctx context.Context, req services.CreateDepositRequest) (services.CreateDepositResult, error)
	HandleWebhook(ctx context.Context, body []byte, signature string) error
	PollStatus(ctx context.Context, userID, paymentID string) (services.PollStatusResult, error)
	SupportedCurrencies(ctx context.Context) ([]string, error)
}
