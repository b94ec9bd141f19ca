package session

import (
	"net/url"
	"strings"

	"github.com/shopspring/decimal"

	apperrors "github.com/rahataid/rahat-offramp/pkg/errors"
)

const (
	keyProvider     = "provider"
	keyProviderUUID = "providerUuid"
	keyChain        = "chain"
	keyToken        = "token"
	keyAmount       = "amount"
	keyRequestID    = "requestId"
	keyPhone        = "phone_number"
	keyTxHash       = "txHash"
	keyReferenceID  = "referenceId"
	keyState        = "state"
)

// ToQuery encodes the resumable part of the session as URL query parameters,
// the same keys a browser client carries between pages.
func (s *Session) ToQuery() url.Values {
	q := url.Values{}
	set := func(k, v string) {
		if v != "" {
			q.Set(k, v)
		}
	}
	set(keyProvider, s.ProviderSlug)
	set(keyProviderUUID, s.ProviderUUID)
	set(keyChain, s.Chain)
	set(keyToken, s.Token)
	if !s.Amount.IsZero() {
		q.Set(keyAmount, s.Amount.String())
	}
	set(keyRequestID, s.RequestID)
	set(keyPhone, s.Phone)
	set(keyTxHash, s.TxHash)
	set(keyReferenceID, s.ReferenceID)
	set(keyState, string(s.State))
	return q
}

// FromQuery rebuilds a session skeleton from query parameters. The caller
// is expected to refresh the request and wallets from the backend.
func FromQuery(q url.Values) (*Session, error) {
	providerUUID := strings.TrimSpace(q.Get(keyProviderUUID))
	slug := strings.TrimSpace(q.Get(keyProvider))
	if providerUUID == "" && slug == "" {
		return nil, apperrors.ErrValidation.WithMessage("provider or providerUuid is required")
	}

	s := New(providerUUID, slug)
	s.Chain = q.Get(keyChain)
	s.Token = strings.ToUpper(q.Get(keyToken))
	s.RequestID = q.Get(keyRequestID)
	s.Phone = strings.ReplaceAll(q.Get(keyPhone), " ", "")
	s.TxHash = q.Get(keyTxHash)
	s.ReferenceID = q.Get(keyReferenceID)

	if raw := q.Get(keyAmount); raw != "" {
		amount, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, apperrors.ErrInvalidAmount.WithDetails(raw)
		}
		s.Amount = amount
	}

	if raw := q.Get(keyState); raw != "" {
		st := State(raw)
		if !st.Valid() {
			return nil, apperrors.ErrValidation.WithMessagef("unknown session state %q", raw)
		}
		s.State = st
	}

	return s, nil
}
