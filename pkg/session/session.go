// Package session holds the explicit state of one offramp attempt and the
// stores that keep it between requests.
package session

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rahataid/rahat-offramp/pkg/offramp"
)

type State string

const (
	StateIdle              State = "idle"
	StateWalletResolved    State = "wallet_resolved"
	StateTransferPending   State = "transfer_pending"
	StateTransferConfirmed State = "transfer_confirmed"
	StateTransferFailed    State = "transfer_failed"
	StateExecutionPending  State = "execution_pending"
	StateExecutionComplete State = "execution_complete"
	StateExecutionFailed   State = "execution_failed"
	StateCancelled         State = "cancelled"
)

var states = map[State]bool{
	StateIdle:              true,
	StateWalletResolved:    true,
	StateTransferPending:   true,
	StateTransferConfirmed: true,
	StateTransferFailed:    true,
	StateExecutionPending:  true,
	StateExecutionComplete: true,
	StateExecutionFailed:   true,
	StateCancelled:         true,
}

func (s State) Valid() bool { return states[s] }

func (s State) IsTerminal() bool {
	return s == StateExecutionComplete || s == StateCancelled
}

func (s State) IsFailed() bool {
	return s == StateTransferFailed || s == StateExecutionFailed
}

type Session struct {
	ID            string          `json:"id"`
	State         State           `json:"state"`
	ProviderUUID  string          `json:"providerUuid"`
	ProviderSlug  string          `json:"provider"`
	Chain         string          `json:"chain"`
	ChainID       int64           `json:"chainId"`
	Token         string          `json:"token"`
	Amount        decimal.Decimal `json:"amount"`
	SenderAddress string          `json:"senderAddress"`

	RequestID     string         `json:"requestId,omitempty"`
	RequestUUID   string         `json:"requestUuid,omitempty"`
	EscrowAddress string         `json:"escrowAddress,omitempty"`
	OnchainStatus offramp.Status `json:"onchainStatus,omitempty"`

	Phone       string                  `json:"phoneNumber,omitempty"`
	CountryCode string                  `json:"countryCode,omitempty"`
	Recipient   *offramp.RecipientWallet `json:"recipient,omitempty"`
	FiatWallet  *offramp.FiatWallet      `json:"fiatWallet,omitempty"`

	TxHash          string                      `json:"txHash,omitempty"`
	Receipt         *offramp.TransactionReceipt `json:"receipt,omitempty"`
	ReferenceID     string                      `json:"referenceId,omitempty"`
	LastStatus      offramp.Status              `json:"lastStatus,omitempty"`
	LastError       string                      `json:"lastError,omitempty"`
	ExecuteAttempts int                         `json:"executeAttempts"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func New(providerUUID, providerSlug string) *Session {
	now := time.Now().UTC()
	return &Session{
		ID:           uuid.New().String(),
		State:        StateIdle,
		ProviderUUID: providerUUID,
		ProviderSlug: providerSlug,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Clone returns a deep copy so stores never share pointers with callers.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	if s.Recipient != nil {
		r := *s.Recipient
		c.Recipient = &r
	}
	if s.FiatWallet != nil {
		w := *s.FiatWallet
		c.FiatWallet = &w
	}
	if s.Receipt != nil {
		r := *s.Receipt
		c.Receipt = &r
	}
	return &c
}
