package models

import "time"

// CreditTransactionType distinguishes debits from credits in the audit log
type CreditTransactionType string

const (
	CreditTxDebit  CreditTransactionType = "debit"
	CreditTxCredit CreditTransactionType = "credit"
)

// Reference types recorded on credit transactions
const (
	CreditRefDripSMS = "drip_sms"
	CreditRefSMS     = "sms"
)

// UserCredits is the single balance row per user. All mutations happen inside
// a storage transaction holding the row lock.
type UserCredits struct {
	UserID     int64     `json:"user_id" db:"user_id"`
	Balance    int64     `json:"balance" db:"balance"`
	TotalSpent int64     `json:"total_spent" db:"total_spent"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

// CreditTransaction is an immutable audit row. The sum of Amount per user
// equals the current balance at quiescence.
type CreditTransaction struct {
	ID            int64                 `json:"id" db:"id"`
	UserID        int64                 `json:"user_id" db:"user_id"`
	Type          CreditTransactionType `json:"type" db:"type"`
	Amount        int64                 `json:"amount" db:"amount"`
	BalanceAfter  int64                 `json:"balance_after" db:"balance_after"`
	Description   string                `json:"description" db:"description"`
	ReferenceType string                `json:"reference_type" db:"reference_type"`
	ReferenceID   int64                 `json:"reference_id" db:"reference_id"`
	CreatedAt     time.Time             `json:"created_at" db:"created_at"`
}
