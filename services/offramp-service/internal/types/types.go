package types

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/rahataid/rahat-offramp/pkg/session"
)

type CreateSessionRequest struct {
	Provider      string          `json:"provider" validate:"required"`
	Amount        decimal.Decimal `json:"amount"`
	SenderAddress string          `json:"senderAddress" validate:"required,eth_addr"`
	PhoneNumber   string          `json:"phoneNumber,omitempty"`
}

type ResumeSessionRequest struct {
	Query string `json:"query" validate:"required"`
}

// CreateSessionResponse carries the bearer token for every later call on
// the session. The token is not stored and cannot be fetched again.
type CreateSessionResponse struct {
	Session   *session.Session `json:"session"`
	Token     string           `json:"token,omitempty"`
	ExpiresAt *time.Time       `json:"expiresAt,omitempty"`
}

type LookupRecipientRequest struct {
	PhoneNumber string `json:"phoneNumber" validate:"required"`
}

type TransferRequest struct {
	// From is the connected wallet address; it must equal the request's
	// sender address.
	From string `json:"from" validate:"required,eth_addr"`
}

type ExternalTransferRequest struct {
	TxHash string `json:"txHash" validate:"required"`
	From   string `json:"from" validate:"required,eth_addr"`
}

type RetryRequest struct {
	From string `json:"from,omitempty" validate:"omitempty,eth_addr"`
}

type Transition struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"sessionId"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type Attempt struct {
	SessionID    string          `json:"sessionId"`
	ProviderUUID string          `json:"providerUuid"`
	RequestID    string          `json:"requestId"`
	Token        string          `json:"token"`
	Amount       decimal.Decimal `json:"amount"`
	TxHash       string          `json:"txHash,omitempty"`
	ReferenceID  string          `json:"referenceId,omitempty"`
	State        string          `json:"state"`
	LastStatus   string          `json:"lastStatus,omitempty"`
	LastError    string          `json:"lastError,omitempty"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

// SessionHistory is the ledger view of one session. Attempt is nil until the
// session has been recorded.
type SessionHistory struct {
	Attempt     *Attempt     `json:"attempt,omitempty"`
	Transitions []Transition `json:"transitions"`
}
