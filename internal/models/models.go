package models

import "time"

// Profile is a dashboard identity (admin or advertiser). BalanceEUR is the
// spendable balance in EUR minor units; the sum of completed deposit and
// refund transaction amounts minus completed withdrawals must equal it.
type Profile struct {
	ID           string    `db:"id" json:"id"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	Role         string    `db:"role" json:"role"`
	BalanceEUR   int64     `db:"balance_eur" json:"balance_eur"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// Transaction statuses. Status is the internal lifecycle state; the raw
// provider vocabulary is retained verbatim in PaymentStatus for audit.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Transaction types.
const (
	TypeDeposit    = "deposit"
	TypeRental     = "rental"
	TypeWithdrawal = "withdrawal"
	TypeRefund     = "refund"
)

type Transaction struct {
	ID            string     `db:"id" json:"id"`
	UserID        string     `db:"user_id" json:"user_id"`
	Type          string     `db:"type" json:"type"`
	Amount        int64      `db:"amount" json:"amount"`
	GrossAmount   int64      `db:"gross_amount" json:"gross_amount"`
	FeeAmount     int64      `db:"fee_amount" json:"fee_amount"`
	Currency      string     `db:"currency" json:"currency"`
	CoinType      *string    `db:"coin_type" json:"coin_type,omitempty"`
	Network       *string    `db:"network" json:"network,omitempty"`
	Status        string     `db:"status" json:"status"`
	PaymentStatus *string    `db:"payment_status" json:"payment_status,omitempty"`
	NowPaymentsID *string    `db:"nowpayments_id" json:"nowpayments_id,omitempty"`
	PayAddress    *string    `db:"pay_address" json:"pay_address,omitempty"`
	PayAmount     *string    `db:"pay_amount" json:"pay_amount,omitempty"`
	PayCurrency   *string    `db:"pay_currency" json:"pay_currency,omitempty"`
	ExpiresAt     *time.Time `db:"expires_at" json:"expires_at,omitempty"`
	TxHash        *string    `db:"tx_hash" json:"tx_hash,omitempty"`
	Confirmations int        `db:"confirmations" json:"confirmations"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}
