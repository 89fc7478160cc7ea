package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// TransactionType represents the kind of balance movement
type TransactionType string

const (
	TransactionTypeDeposit    TransactionType = "deposit"
	TransactionTypeWithdrawal TransactionType = "withdrawal"
	TransactionTypeStake      TransactionType = "stake"
	TransactionTypeWin        TransactionType = "win"
	TransactionTypeRefund     TransactionType = "refund"
)

// Valid reports whether t is a known transaction type
func (t TransactionType) Valid() bool {
	switch t {
	case TransactionTypeDeposit, TransactionTypeWithdrawal, TransactionTypeStake, TransactionTypeWin, TransactionTypeRefund:
		return true
	}
	return false
}

// TransactionStatus represents the processing state of a transaction
type TransactionStatus string

const (
	TransactionStatusPending    TransactionStatus = "pending"
	TransactionStatusProcessing TransactionStatus = "processing"
	TransactionStatusCompleted  TransactionStatus = "completed"
	TransactionStatusFailed     TransactionStatus = "failed"
	TransactionStatusRejected   TransactionStatus = "rejected"
)

// Valid reports whether s is a known transaction status
func (s TransactionStatus) Valid() bool {
	switch s {
	case TransactionStatusPending, TransactionStatusProcessing, TransactionStatusCompleted, TransactionStatusFailed, TransactionStatusRejected:
		return true
	}
	return false
}

// BankDetails is the payout destination of a withdrawal
type BankDetails struct {
	AccountNumber string `bson:"accountNumber" json:"accountNumber"`
	BankCode      string `bson:"bankCode" json:"bankCode"`
	AccountName   string `bson:"accountName" json:"accountName"`
}

// Transaction is an immutable record of a balance movement. Reference is globally
// unique and doubles as the idempotency key of the operation that produced it.
type Transaction struct {
	ID               primitive.ObjectID  `bson:"_id,omitempty" json:"id,omitempty"`
	UserID           string              `bson:"userId" json:"userId"`
	Type             TransactionType     `bson:"type" json:"type"`
	Amount           int64               `bson:"amount" json:"amount"`
	Status           TransactionStatus   `bson:"status" json:"status"`
	Reference        string              `bson:"reference" json:"reference"`
	BalanceBefore    int64               `bson:"balanceBefore" json:"balanceBefore"`
	BalanceAfter     int64               `bson:"balanceAfter" json:"balanceAfter"`
	Fee              int64               `bson:"fee,omitempty" json:"fee,omitempty"`
	TransferFee      int64               `bson:"transferFee,omitempty" json:"transferFee,omitempty"`
	NetAmount        int64               `bson:"netAmount,omitempty" json:"netAmount,omitempty"`
	PollID           *primitive.ObjectID `bson:"pollId,omitempty" json:"pollId,omitempty"`
	StakeID          *primitive.ObjectID `bson:"stakeId,omitempty" json:"stakeId,omitempty"`
	BankDetails      *BankDetails        `bson:"bankDetails,omitempty" json:"bankDetails,omitempty"`
	GatewayReference string              `bson:"gatewayReference,omitempty" json:"gatewayReference,omitempty"`
	AuthorizationURL string              `bson:"authorizationUrl,omitempty" json:"authorizationUrl,omitempty"`
	FailureReason    string              `bson:"failureReason,omitempty" json:"failureReason,omitempty"`
	ReviewedBy       string              `bson:"reviewedBy,omitempty" json:"reviewedBy,omitempty"`
	CompletedAt      *time.Time          `bson:"completedAt,omitempty" json:"completedAt,omitempty"`
	CreatedAt        time.Time           `bson:"createdAt" json:"createdAt"`
	UpdatedAt        time.Time           `bson:"updatedAt" json:"updatedAt"`
}

// TransactionUpdate is a conditional status change applied by the repository.
// Zero-valued optional fields are left untouched.
type TransactionUpdate struct {
	Status           TransactionStatus
	BalanceBefore    *int64
	BalanceAfter     *int64
	GatewayReference string
	AuthorizationURL string
	FailureReason    string
	ReviewedBy       string
	CompletedAt      *time.Time
}

// TransactionFilter narrows transaction listings
type TransactionFilter struct {
	UserID        string
	Type          TransactionType
	Status        TransactionStatus
	Statuses      []TransactionStatus
	CreatedBefore *time.Time
}

// TransactionSummary aggregates completed transactions of one type
type TransactionSummary struct {
	Type   TransactionType `bson:"_id" json:"type"`
	Count  int64           `bson:"count" json:"count"`
	Amount int64           `bson:"amount" json:"amount"`
	Fees   int64           `bson:"fees" json:"fees"`
}

// DepositRequest is the payload accepted by POST /wallet/deposit
type DepositRequest struct {
	Amount      int64  `json:"amount" binding:"required,gt=0"`
	Email       string `json:"email" binding:"required,email"`
	PhoneNumber string `json:"phoneNumber"`
	Name        string `json:"name"`
}

// DepositInitiation is returned after a deposit has been opened with the gateway
type DepositInitiation struct {
	Transaction      *Transaction `json:"transaction"`
	Reference        string       `json:"reference"`
	AuthorizationURL string       `json:"authorizationUrl"`
}

// WithdrawRequest is the payload accepted by POST /wallet/withdraw
type WithdrawRequest struct {
	Amount        int64  `json:"amount" binding:"required,gt=0"`
	AccountNumber string `json:"accountNumber" binding:"required,numeric,len=10"`
	BankCode      string `json:"bankCode" binding:"required"`
	AccountName   string `json:"accountName" binding:"required"`
}

// CalculateWithdrawalRequest is the payload accepted by POST /wallet/calculate-withdrawal
type CalculateWithdrawalRequest struct {
	Amount int64 `json:"amount" binding:"required,gt=0"`
}

// WithdrawalBreakdown describes how a requested withdrawal splits into fees and payout.
// The requested amount is the total debit; fees are taken out of it.
type WithdrawalBreakdown struct {
	Amount           int64 `json:"amount"`
	PlatformFee      int64 `json:"platformFee"`
	TransferFee      int64 `json:"transferFee"`
	NetAmount        int64 `json:"netAmount"`
	TotalDebit       int64 `json:"totalDebit"`
	AvailableBalance int64 `json:"availableBalance"`
	CanWithdraw      bool  `json:"canWithdraw"`
}

// RejectWithdrawalRequest is the payload accepted by PUT /admin/transactions/:id/reject
type RejectWithdrawalRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// ReconcileReport summarises a reconciliation sweep over stale gateway transactions
type ReconcileReport struct {
	Checked   int      `json:"checked"`
	Completed int      `json:"completed"`
	Failed    int      `json:"failed"`
	Unchanged int      `json:"unchanged"`
	Errors    []string `json:"errors,omitempty"`
}
