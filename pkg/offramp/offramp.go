// Package offramp holds the types shared by every stage of the crypto to
// mobile-money offramp flow.
package offramp

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending    Status = "PENDING"
	StatusInitiated  Status = "INITIATED"
	StatusProcessing Status = "PROCESSING"
	StatusSuccessful Status = "SUCCESSFUL"
	StatusCancelled  Status = "CANCELLED"
	StatusFailed     Status = "FAILED"
)

// IsTerminal reports whether no further status change is expected.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusSuccessful, StatusCancelled, StatusFailed:
		return true
	}
	return false
}

// ParseStatus normalises backend status strings; unknown values map to PENDING.
func ParseStatus(s string) Status {
	switch st := Status(strings.ToUpper(strings.TrimSpace(s))); st {
	case StatusPending, StatusInitiated, StatusProcessing, StatusSuccessful, StatusCancelled, StatusFailed:
		return st
	case "COMPLETED", "SUCCESS":
		return StatusSuccessful
	}
	return StatusPending
}

type ProviderKind string

const (
	KindMobileMoney ProviderKind = "mobile_money"
	KindBank        ProviderKind = "bank"
	KindUnknown     ProviderKind = "unknown"
)

// Capabilities describes what the flow must collect for a provider.
type Capabilities struct {
	Kind              ProviderKind `json:"kind"`
	Enabled           bool         `json:"enabled"`
	Chains            []int64      `json:"chains,omitempty"`
	Tokens            []string     `json:"tokens,omitempty"`
	RequiredFields    []string     `json:"requiredFields,omitempty"`
	WalletLookup      bool         `json:"walletLookup"`
	FiatWalletMatch   bool         `json:"fiatWalletMatch"`
	SupportedNetworks []string     `json:"supportedNetworks,omitempty"`
}

type Provider struct {
	UUID         string       `json:"uuid"`
	Name         string       `json:"name"`
	Slug         string       `json:"slug"`
	Description  string       `json:"description,omitempty"`
	Currencies   []string     `json:"currencies,omitempty"`
	Fee          string       `json:"fee,omitempty"`
	Capabilities Capabilities `json:"capabilities"`
}

func (p Provider) Kind() ProviderKind {
	if p.Capabilities.Kind == "" {
		return KindUnknown
	}
	return p.Capabilities.Kind
}

// Request is a pending offramp created on the backend.
type Request struct {
	ID            int64           `json:"id,omitempty"`
	UUID          string          `json:"uuid,omitempty"`
	RequestID     string          `json:"requestId"`
	ProviderUUID  string          `json:"providerUuid"`
	Chain         string          `json:"chain"`
	Token         string          `json:"token"`
	Amount        decimal.Decimal `json:"amount"`
	SenderAddress string          `json:"senderAddress"`
	EscrowAddress string          `json:"escrowAddress"`
	Status        Status          `json:"status"`
	OnchainStatus Status          `json:"onchainStatus,omitempty"`
	CreatedAt     time.Time       `json:"createdAt,omitempty"`
}

// RecipientWallet is the mobile-money wallet registered with a provider.
type RecipientWallet struct {
	AccountName string `json:"account_name"`
	Network     string `json:"network"`
	PhoneNumber string `json:"phone_number"`
	CountryCode string `json:"country_code"`
	CustomerKey string `json:"customer_key"`
}

// FiatWallet is a provider-side wallet that pays out in one currency.
type FiatWallet struct {
	ID       string `json:"id"`
	Name     string `json:"name,omitempty"`
	Type     string `json:"type,omitempty"`
	Currency string `json:"currency"`
	Status   string `json:"status,omitempty"`
}

type ReceiptStatus string

const (
	ReceiptConfirmed ReceiptStatus = "confirmed"
	ReceiptReverted  ReceiptStatus = "reverted"
)

type TransactionReceipt struct {
	TxHash      string        `json:"txHash"`
	Status      ReceiptStatus `json:"status"`
	BlockNumber uint64        `json:"blockNumber"`
}

type Rate struct {
	From  string          `json:"from,omitempty"`
	To    string          `json:"to,omitempty"`
	Value decimal.Decimal `json:"value,omitempty"`
}

// StatusSnapshot is one reading of the provider's offramp status.
type StatusSnapshot struct {
	Status        Status          `json:"status"`
	OnchainStatus Status          `json:"onchainStatus,omitempty"`
	ReferenceID   string          `json:"referenceId"`
	CryptoAmount  decimal.Decimal `json:"cryptoAmount"`
	FiatAmount    decimal.Decimal `json:"fiatAmount"`
	Rate          *Rate           `json:"rate,omitempty"`
	EscrowAddress string          `json:"escrowAddress,omitempty"`
	SenderAddress string          `json:"senderAddress,omitempty"`
	UpdatedAt     time.Time       `json:"updatedAt,omitempty"`
}

type MobileMoneyReceiver struct {
	NetworkProvider string `json:"networkProvider"`
	PhoneNumber     string `json:"phoneNumber"`
	AccountName     string `json:"accountName"`
}

// ExecuteData is the provider-specific body of an execution submission.
type ExecuteData struct {
	MobileMoneyReceiver MobileMoneyReceiver `json:"mobileMoneyReceiver"`
	Currency            string              `json:"currency"`
	Chain               string              `json:"chain"`
	Token               string              `json:"token"`
	CryptoAmount        decimal.Decimal     `json:"cryptoAmount"`
	SenderAddress       string              `json:"senderAddress"`
	WalletID            string              `json:"wallet_id"`
	RequestID           string              `json:"request_id"`
	CustomerKey         string              `json:"customer_key"`
	TransactionHash     string              `json:"transactionHash"`
}

// ExecutePayload carries exactly one transaction hash for the requested amount.
type ExecutePayload struct {
	ProviderUUID string      `json:"providerUuid"`
	RequestUUID  string      `json:"requestUuid"`
	Data         ExecuteData `json:"data"`
}

type ExecuteResult struct {
	ReferenceID string `json:"referenceId"`
	Status      Status `json:"status"`
}

// Slug derives the URL identifier of a provider from its display name.
func Slug(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), ""))
}
