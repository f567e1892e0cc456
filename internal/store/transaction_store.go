package store

import (
	"context"
	"time"

	"github.com/dvvvvv411/meta-backend-sub001/internal/models"
)

type TransactionStore struct {
	db DB
}

func NewTransactionStore(db DB) *TransactionStore {
	return &TransactionStore{db: db}
}

type TransactionInput struct {
	ID            string
	UserID        string
	Type          string
	Amount        int64
	GrossAmount   int64
	FeeAmount     int64
	Currency      string
	CoinType      *string
	Network       *string
	Status        string
	PaymentStatus *string
	NowPaymentsID *string
	PayAddress    *string
	PayAmount     *string
	PayCurrency   *string
	ExpiresAt     *time.Time
}

func (s *TransactionStore) Create(ctx context.Context, tx Execer, input TransactionInput) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO transactions (id, user_id, type, amount, gross_amount, fee_amount, currency,
		                          coin_type, network, status, payment_status, nowpayments_id,
		                          pay_address, pay_amount, pay_currency, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`,
		input.ID, input.UserID, input.Type, input.Amount, input.GrossAmount, input.FeeAmount,
		input.Currency, input.CoinType, input.Network, input.Status, input.PaymentStatus,
		input.NowPaymentsID, input.PayAddress, input.PayAmount, input.PayCurrency, input.ExpiresAt,
	)
	return err
}

const transactionColumns = `
	id, user_id, type, amount, gross_amount, fee_amount, currency,
	coin_type, network, status, payment_status, nowpayments_id,
	pay_address, pay_amount, pay_currency, expires_at, tx_hash,
	confirmations, created_at, updated_at
`

// GetByProviderID looks a transaction up by its NOWPayments payment id,
// the join key between provider callbacks and internal rows.
func (s *TransactionStore) GetByProviderID(ctx context.Context, providerID string) (models.Transaction, error) {
	var row models.Transaction
	err := s.db.GetContext(ctx, &row, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE nowpayments_id = $1
	`, providerID)
	if err != nil {
		return models.Transaction{}, err
	}
	return row, nil
}

func (s *TransactionStore) GetByProviderIDForUser(ctx context.Context, providerID, userID string) (models.Transaction, error) {
	var row models.Transaction
	err := s.db.GetContext(ctx, &row, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE nowpayments_id = $1 AND user_id = $2
	`, providerID, userID)
	if err != nil {
		return models.Transaction{}, err
	}
	return row, nil
}

// UpdateProviderState persists a non-crediting status transition. The
// status guard keeps a late or reordered callback from downgrading a
// completed transaction. Failed is not guarded: the provider does report
// activity on expired payments when the user sends late, and such a row
// must be able to move back to pending and still complete.
func (s *TransactionStore) UpdateProviderState(ctx context.Context, tx Execer, providerID, status, paymentStatus string, txHash *string, confirmations int) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE transactions
		SET status = $2,
		    payment_status = $3,
		    tx_hash = COALESCE($4, tx_hash),
		    confirmations = GREATEST(confirmations, $5),
		    updated_at = NOW()
		WHERE nowpayments_id = $1 AND status <> 'completed'
	`, providerID, status, paymentStatus, txHash, confirmations)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// MarkCompleted flips a transaction to completed. The WHERE clause is the
// idempotency guard: exactly one caller ever sees RowsAffected == 1, and
// only that caller may credit the balance.
func (s *TransactionStore) MarkCompleted(ctx context.Context, tx Execer, providerID, paymentStatus string, txHash *string, confirmations int) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE transactions
		SET status = 'completed',
		    payment_status = $2,
		    tx_hash = COALESCE($3, tx_hash),
		    confirmations = GREATEST(confirmations, $4),
		    updated_at = NOW()
		WHERE nowpayments_id = $1 AND status <> 'completed'
	`, providerID, paymentStatus, txHash, confirmations)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *TransactionStore) ListByUser(ctx context.Context, userID, txType string, limit, offset int) ([]models.Transaction, error) {
	var rows []models.Transaction
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE user_id = $1
	`
	args := []any{userID}
	if txType != "" {
		query += ` AND type = $2 ORDER BY created_at DESC LIMIT $3 OFFSET $4`
		args = append(args, txType, limit, offset)
	} else {
		query += ` ORDER BY created_at DESC LIMIT $2 OFFSET $3`
		args = append(args, limit, offset)
	}
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *TransactionStore) ListAll(ctx context.Context, limit, offset int) ([]models.Transaction, error) {
	var rows []models.Transaction
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+transactionColumns+`
		FROM transactions
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
