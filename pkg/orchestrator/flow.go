package orchestrator

import (
	"context"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/rahataid/rahat-offramp/pkg/backend"
	"github.com/rahataid/rahat-offramp/pkg/chain"
	"github.com/rahataid/rahat-offramp/pkg/currency"
	apperrors "github.com/rahataid/rahat-offramp/pkg/errors"
	"github.com/rahataid/rahat-offramp/pkg/fiatwallet"
	"github.com/rahataid/rahat-offramp/pkg/logger"
	"github.com/rahataid/rahat-offramp/pkg/offramp"
	"github.com/rahataid/rahat-offramp/pkg/provider"
	"github.com/rahataid/rahat-offramp/pkg/recipient"
	"github.com/rahataid/rahat-offramp/pkg/session"
	"github.com/rahataid/rahat-offramp/pkg/telemetry"
)

type StartInput struct {
	// Provider is a slug or a UUID.
	Provider      string          `json:"provider"`
	Amount        decimal.Decimal `json:"amount"`
	SenderAddress string          `json:"senderAddress"`
	Phone         string          `json:"phoneNumber,omitempty"`
}

// ResolveProvider finds a provider the flow can drive, loading the catalog
// on first use.
func (o *Orchestrator) ResolveProvider(ctx context.Context, id string) (offramp.Provider, error) {
	if !o.catalog.Loaded() {
		if err := o.catalog.Load(ctx, o.api); err != nil {
			return offramp.Provider{}, err
		}
	}

	p, err := o.catalog.Resolve(id)
	if err != nil {
		return offramp.Provider{}, err
	}

	caps := p.Capabilities
	if p.Kind() != offramp.KindMobileMoney || !caps.Enabled {
		return offramp.Provider{}, apperrors.ErrProviderUnsupported.WithDetails(map[string]string{
			"provider": p.Slug,
			"kind":     string(p.Kind()),
		})
	}
	if !provider.SupportsToken(caps, o.cfg.Token) {
		return offramp.Provider{}, apperrors.ErrUnsupportedToken.WithMessagef("%s does not accept %s", p.Name, o.cfg.Token)
	}
	if !provider.SupportsChain(caps, o.cfg.ChainID) {
		return offramp.Provider{}, apperrors.ErrProviderUnsupported.WithMessagef("%s does not support chain %s", p.Name, o.cfg.Chain)
	}
	return p, nil
}

// Start resolves the provider, binds the configured network and token and
// creates the pending request on the backend.
func (o *Orchestrator) Start(ctx context.Context, in StartInput) (*session.Session, error) {
	ctx, span := telemetry.StartSpan(ctx, "offramp.start")
	defer span.End()

	if !in.Amount.IsPositive() {
		return nil, apperrors.ErrInvalidAmount.WithDetails(in.Amount.String())
	}
	if !chain.IsHexAddress(in.SenderAddress) {
		return nil, apperrors.ErrValidation.WithMessage("sender address must be a 0x-prefixed 20 byte hex address")
	}
	if _, err := o.cfg.Tokens.Lookup(o.cfg.Token); err != nil {
		return nil, err
	}

	p, err := o.ResolveProvider(ctx, in.Provider)
	if err != nil {
		telemetry.RecordError(ctx, err)
		return nil, err
	}

	req, err := o.api.CreateRequest(ctx, backend.CreateRequestInput{
		ProviderUUID:  p.UUID,
		Chain:         o.cfg.Chain,
		Token:         o.cfg.Token,
		Amount:        in.Amount,
		SenderAddress: in.SenderAddress,
	})
	if err != nil {
		telemetry.RecordError(ctx, err)
		return nil, err
	}

	s := session.New(p.UUID, p.Slug)
	s.Chain = o.cfg.Chain
	s.ChainID = o.cfg.ChainID
	s.Token = o.cfg.Token
	s.Amount = in.Amount
	s.SenderAddress = in.SenderAddress
	s.Phone = currency.StripSpaces(in.Phone)
	applyRequest(s, req)

	s.State = ""
	if err := o.transition(ctx, s, session.StateIdle, nil); err != nil {
		return nil, err
	}
	return s, nil
}

// Resume rebuilds a session from its URL query encoding and refreshes the
// request from the backend. A request has at most one live session: when the
// store already holds one it is returned, unless the query carries further
// progress (a tx hash, a reference or a backend cancellation), which then
// replaces it under the same id.
func (o *Orchestrator) Resume(ctx context.Context, q url.Values) (*session.Session, error) {
	s, replaced, err := o.resume(ctx, q)
	if err != nil {
		return nil, err
	}
	switch {
	case s.State == session.StateExecutionComplete:
		o.startPoller(ctx, s)
	case replaced && s.State == session.StateCancelled:
		o.pollers.Stop(s.ID)
	}
	return s, nil
}

func (o *Orchestrator) resume(ctx context.Context, q url.Values) (*session.Session, bool, error) {
	s, err := session.FromQuery(q)
	if err != nil {
		return nil, false, err
	}
	if s.RequestID == "" {
		return nil, false, apperrors.ErrValidation.WithMessage("requestId is required to resume")
	}

	unlockRequest := o.lock("request:" + s.RequestID)
	defer unlockRequest()

	id := s.ProviderUUID
	if id == "" {
		id = s.ProviderSlug
	}
	p, err := o.ResolveProvider(ctx, id)
	if err != nil {
		return nil, false, err
	}
	s.ProviderUUID = p.UUID
	s.ProviderSlug = p.Slug
	s.ChainID = o.cfg.ChainID
	if s.Chain == "" {
		s.Chain = o.cfg.Chain
	}
	if s.Token == "" {
		s.Token = o.cfg.Token
	}

	req, err := o.api.GetRequest(ctx, s.RequestID)
	if err != nil {
		return nil, false, err
	}
	applyRequest(s, req)

	switch {
	case s.ReferenceID != "":
		s.State = session.StateExecutionComplete
	case s.TxHash != "":
		s.State = session.StateTransferPending
	default:
		s.State = session.StateIdle
	}
	if req.OnchainStatus == offramp.StatusCancelled || req.Status == offramp.StatusCancelled {
		s.State = session.StateCancelled
	}

	existing, err := o.liveSession(ctx, s.RequestID)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		if progress(existing) >= progress(s) {
			return existing, false, nil
		}
		unlock := o.lock(existing.ID)
		defer unlock()
		s.ID = existing.ID
		s.CreatedAt = existing.CreatedAt
		s.Recipient = existing.Recipient
		s.FiatWallet = existing.FiatWallet
		if existing.CountryCode != "" {
			s.CountryCode = existing.CountryCode
		}
	}

	// Wallets are not part of the query. A sent transfer still has to be
	// executed, so its recipient and fiat wallet are matched again here.
	if s.State == session.StateTransferPending && (s.Recipient == nil || s.FiatWallet == nil) {
		if s.Phone == "" && s.Recipient == nil {
			return nil, false, apperrors.ErrWalletNotFound.WithMessage("phone_number is required to resume a sent transfer")
		}
		if err := o.bindWallets(ctx, s); err != nil {
			return nil, false, err
		}
	}

	if err := o.save(ctx, s); err != nil {
		return nil, false, err
	}
	return s, existing != nil, nil
}

// liveSession returns the most recently updated session for requestID that
// has not been cancelled, or nil.
func (o *Orchestrator) liveSession(ctx context.Context, requestID string) (*session.Session, error) {
	all, err := o.store.List(ctx)
	if err != nil {
		return nil, err
	}
	var found *session.Session
	for _, s := range all {
		if s.RequestID != requestID || s.State == session.StateCancelled {
			continue
		}
		if found == nil || s.UpdatedAt.After(found.UpdatedAt) {
			found = s
		}
	}
	return found, nil
}

// progress orders what a session knows about its request.
func progress(s *session.Session) int {
	switch {
	case s.State == session.StateCancelled:
		return 3
	case s.ReferenceID != "":
		return 2
	case s.TxHash != "":
		return 1
	}
	return 0
}

func applyRequest(s *session.Session, req *offramp.Request) {
	s.RequestID = req.RequestID
	s.RequestUUID = req.UUID
	if s.RequestUUID == "" {
		s.RequestUUID = req.RequestID
	}
	s.EscrowAddress = strings.TrimSpace(req.EscrowAddress)
	s.OnchainStatus = req.OnchainStatus
	if req.SenderAddress != "" {
		s.SenderAddress = req.SenderAddress
	}
	if !req.Amount.IsZero() {
		s.Amount = req.Amount
	}
}

// LookupRecipient searches for the mobile-money wallet registered to phone.
// A missing wallet yields a creation draft, not an error.
func (o *Orchestrator) LookupRecipient(ctx context.Context, id, phone string) (recipient.LookupResult, error) {
	unlock := o.lock(id)
	defer unlock()

	s, err := o.load(ctx, id)
	if err != nil {
		return recipient.LookupResult{}, err
	}
	if err := requireState(s, session.StateIdle); err != nil {
		return recipient.LookupResult{}, err
	}

	if phone == "" {
		phone = s.Phone
	}
	res, err := o.recipients.Lookup(ctx, s.ProviderUUID, phone)
	if err != nil {
		return res, err
	}

	s.Phone = currency.StripSpaces(phone)
	if res.Found() {
		setRecipient(s, res.Wallet)
	} else {
		s.Recipient = nil
		s.CountryCode = res.Draft.CountryCode
	}
	return res, o.save(ctx, s)
}

// CreateRecipient registers a wallet; the result becomes the session's
// recipient without a second lookup.
func (o *Orchestrator) CreateRecipient(ctx context.Context, id string, in recipient.CreateInput) (*offramp.RecipientWallet, error) {
	unlock := o.lock(id)
	defer unlock()

	s, err := o.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := requireState(s, session.StateIdle); err != nil {
		return nil, err
	}

	w, err := o.recipients.Create(ctx, s.ProviderUUID, in)
	if err != nil {
		return nil, err
	}
	setRecipient(s, w)
	if s.CountryCode == "" {
		s.CountryCode = strings.ToUpper(in.CountryCode)
	}
	return w, o.save(ctx, s)
}

func setRecipient(s *session.Session, w *offramp.RecipientWallet) {
	s.Recipient = w
	if w.PhoneNumber != "" {
		s.Phone = currency.StripSpaces(w.PhoneNumber)
	}
	if w.CountryCode != "" {
		s.CountryCode = strings.ToUpper(w.CountryCode)
	} else if country, _, ok := currency.SplitPhone(s.Phone); ok {
		s.CountryCode = country.Code
	}
}

// ResolveWallets completes recipient lookup and then matches the fiat wallet
// for the recipient's currency, moving idle to wallet_resolved.
func (o *Orchestrator) ResolveWallets(ctx context.Context, id string) (*session.Session, error) {
	ctx, span := telemetry.StartSessionSpan(ctx, "resolve_wallets", id)
	defer span.End()

	unlock := o.lock(id)
	defer unlock()

	s, err := o.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := requireState(s, session.StateIdle); err != nil {
		return nil, err
	}

	if err := o.bindWallets(ctx, s); err != nil {
		telemetry.RecordError(ctx, err)
		s.LastError = err.Error()
		if saveErr := o.save(ctx, s); saveErr != nil {
			logger.WithContext(ctx).Warn().Err(saveErr).Str("session_id", s.ID).Msg("Failed to save session")
		}
		return nil, err
	}

	if err := o.transition(ctx, s, session.StateWalletResolved, nil); err != nil {
		return nil, err
	}
	return s, nil
}

// bindWallets attaches the recipient, looked up by phone when missing, and
// the provider fiat wallet in the recipient's currency.
func (o *Orchestrator) bindWallets(ctx context.Context, s *session.Session) error {
	if s.Recipient == nil {
		if s.Phone == "" {
			return apperrors.ErrInvalidPhone.WithMessage("recipient phone number is required")
		}
		res, err := o.recipients.Lookup(ctx, s.ProviderUUID, s.Phone)
		if err != nil {
			return err
		}
		if !res.Found() {
			return apperrors.ErrWalletNotFound.WithDetails(res.Draft)
		}
		setRecipient(s, res.Wallet)
	}

	if s.CountryCode == "" {
		return apperrors.ErrUnsupportedCountry.WithMessagef("cannot infer country from %s", s.Phone)
	}

	fw, err := fiatwallet.Resolve(ctx, o.api, s.ProviderUUID, s.CountryCode)
	if err != nil {
		return err
	}
	s.FiatWallet = &fw
	return nil
}
