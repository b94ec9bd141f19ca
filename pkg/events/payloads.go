package events

import "time"

// SessionTransitionPayload is the payload for session.transition.v1 events
type SessionTransitionPayload struct {
	SessionID    string    `json:"session_id"`
	From         string    `json:"from"`
	To           string    `json:"to"`
	ProviderUUID string    `json:"provider_uuid"`
	RequestID    string    `json:"request_id,omitempty"`
	TxHash       string    `json:"tx_hash,omitempty"`
	ReferenceID  string    `json:"reference_id,omitempty"`
	Error        string    `json:"error,omitempty"`
	At           time.Time `json:"at"`
}

// TransferSubmittedPayload is the payload for transfer.submitted.v1 events
type TransferSubmittedPayload struct {
	SessionID     string `json:"session_id"`
	RequestID     string `json:"request_id"`
	TxHash        string `json:"tx_hash"`
	Token         string `json:"token"`
	Amount        string `json:"amount"`
	SenderAddress string `json:"sender_address"`
	EscrowAddress string `json:"escrow_address"`
	External      bool   `json:"external"`
}

// StatusChangedPayload is the payload for status.changed.v1 events
type StatusChangedPayload struct {
	SessionID    string `json:"session_id,omitempty"`
	ProviderUUID string `json:"provider_uuid"`
	ReferenceID  string `json:"reference_id"`
	Status       string `json:"status"`
	FiatAmount   string `json:"fiat_amount,omitempty"`
	CryptoAmount string `json:"crypto_amount,omitempty"`
}
