package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/rahataid/rahat-offramp/cmd/offramp/internal/output"
	apperrors "github.com/rahataid/rahat-offramp/pkg/errors"
	"github.com/rahataid/rahat-offramp/pkg/offramp"
	"github.com/rahataid/rahat-offramp/pkg/orchestrator"
	"github.com/rahataid/rahat-offramp/pkg/recipient"
	"github.com/rahataid/rahat-offramp/pkg/session"
)

type flowOptions struct {
	phone string
	yes   bool
	watch bool
}

var (
	// errStopped ends the flow without an error once the session is saved.
	errStopped = errors.New("stopped")
	errDone    = errors.New("done")
)

// runFlow drives a session from whatever state it is in to execution.
// Every step is persisted, so an interrupted run continues with
// 'offramp resume'.
func runFlow(ctx context.Context, orch *orchestrator.Orchestrator, id string, opts flowOptions) error {
	if opts.phone == "" {
		if s, err := orch.Get(ctx, id); err == nil {
			opts.phone = s.Phone
		}
	}

	for {
		s, err := orch.Get(ctx, id)
		if err != nil {
			return err
		}

		err = step(ctx, orch, s, &opts)
		switch {
		case errors.Is(err, errStopped):
			output.Info("Session saved. Continue with 'offramp resume " + id + "'")
			return nil
		case errors.Is(err, errDone):
			return nil
		case err != nil:
			if !canRecover(ctx, orch, id) {
				return err
			}
			PrintError(err)
		}
	}
}

// canRecover reports whether the next step asks the user something, so
// looping again cannot spin on the same failure.
func canRecover(ctx context.Context, orch *orchestrator.Orchestrator, id string) bool {
	if !interactive() || ctx.Err() != nil {
		return false
	}
	s, err := orch.Get(ctx, id)
	if err != nil {
		return false
	}
	switch {
	case s.State.IsFailed():
		return true
	case s.State == session.StateIdle:
		return s.Recipient == nil
	}
	return false
}

func step(ctx context.Context, orch *orchestrator.Orchestrator, s *session.Session, opts *flowOptions) error {
	switch s.State {
	case session.StateIdle:
		if s.Recipient == nil {
			if err := chooseRecipient(ctx, orch, s, opts); err != nil {
				return err
			}
		}
		output.Info("Matching provider wallet...")
		resolved, err := orch.ResolveWallets(ctx, s.ID)
		if err != nil {
			return err
		}
		output.Success(fmt.Sprintf("Payout wallet %s (%s)", resolved.FiatWallet.ID, resolved.FiatWallet.Currency))
		return nil

	case session.StateWalletResolved:
		if !opts.yes {
			ok, err := confirm(ctx, fmt.Sprintf("Send %s to escrow %s?", s.Amount.String()+" "+s.Token, s.EscrowAddress))
			if err != nil {
				return err
			}
			if !ok {
				return errStopped
			}
		}
		pending, err := orch.SubmitTransfer(ctx, s.ID, s.SenderAddress)
		if err != nil {
			return err
		}
		output.Success("Transfer submitted: " + pending.TxHash)
		return nil

	case session.StateTransferPending:
		output.Info("Waiting for transfer receipt " + s.TxHash + "...")
		confirmed, err := orch.AwaitReceipt(ctx, s.ID)
		if err != nil {
			return err
		}
		if confirmed.State == session.StateTransferConfirmed {
			output.Success(fmt.Sprintf("Transfer confirmed in block %d", confirmed.Receipt.BlockNumber))
		}
		return nil

	case session.StateTransferConfirmed:
		output.Info("Submitting for payout...")
		executed, err := orch.Execute(ctx, s.ID)
		if err != nil {
			return err
		}
		output.Success("Payout submitted, reference " + executed.ReferenceID)
		return nil

	case session.StateTransferFailed, session.StateExecutionFailed:
		output.Warning(fmt.Sprintf("Session is %s: %s", s.State, s.LastError))
		if !opts.yes {
			ok, err := confirm(ctx, "Retry now?")
			if err != nil {
				return err
			}
			if !ok {
				return errStopped
			}
		}
		_, err := orch.Retry(ctx, s.ID, s.SenderAddress)
		return err

	case session.StateExecutionPending:
		// the process died between submission and reply; resubmitting
		// could pay out twice
		return apperrors.ErrInvalidState.WithMessage("execution outcome unknown, check the request on the backend before retrying")

	case session.StateExecutionComplete:
		printSession(s)
		if opts.watch {
			if err := watchSession(ctx, orch, s.ID); err != nil {
				return err
			}
		}
		return errDone

	case session.StateCancelled:
		return apperrors.ErrRequestCancelled.WithDetails(s.RequestID)
	}
	return apperrors.ErrInvalidState.WithMessagef("unknown state %s", s.State)
}

func chooseRecipient(ctx context.Context, orch *orchestrator.Orchestrator, s *session.Session, opts *flowOptions) error {
	// only the first attempt uses the given number, a failed one asks again
	phone, err := valueOrPrompt(ctx, opts.phone, "Recipient phone number")
	opts.phone = ""
	if err != nil {
		return err
	}

	res, err := orch.LookupRecipient(ctx, s.ID, phone)
	if err != nil {
		return err
	}
	if res.Found() {
		w := res.Wallet
		output.Success(fmt.Sprintf("Found %s wallet for %s (%s)", w.Network, w.AccountName, w.PhoneNumber))
		return nil
	}

	d := res.Draft
	output.Warning("No wallet registered for " + d.PhoneNumber)
	if !interactive() {
		return apperrors.ErrWalletNotFound.WithDetails(d.PhoneNumber)
	}

	in := recipient.CreateInput{
		CountryCode: d.CountryCode,
		DialCode:    d.DialCode,
		PhoneNumber: d.PhoneNumber,
		Network:     d.Network,
	}
	if in.AccountName, err = prompt(ctx, "Account holder name"); err != nil {
		return err
	}
	if in.Network, err = promptDefault(ctx, "Network", d.Network); err != nil {
		return err
	}
	if in.CountryCode, err = promptDefault(ctx, "Country code", d.CountryCode); err != nil {
		return err
	}
	in.Network = strings.ToUpper(in.Network)

	w, err := orch.CreateRecipient(ctx, s.ID, in)
	if err != nil {
		return err
	}
	output.Success(fmt.Sprintf("Registered %s wallet for %s", w.Network, w.AccountName))
	return nil
}

func printSession(s *session.Session) {
	if getFormat() == "json" {
		_ = output.JSON(s)
		return
	}

	var phone, network, fiat string
	if s.Recipient != nil {
		phone, network = s.Recipient.PhoneNumber, s.Recipient.Network
	}
	if s.FiatWallet != nil {
		fiat = s.FiatWallet.ID + " (" + s.FiatWallet.Currency + ")"
	}

	output.KeyValue([][]string{
		{"Session", s.ID},
		{"State", output.FormatStatus(string(s.State))},
		{"Provider", s.ProviderSlug},
		{"Amount", output.Amount(s.Amount, s.Token)},
		{"Chain", s.Chain},
		{"Request", s.RequestID},
		{"Escrow", s.EscrowAddress},
		{"Recipient", phone},
		{"Network", network},
		{"Payout wallet", fiat},
		{"Transaction", s.TxHash},
		{"Reference", s.ReferenceID},
		{"Status", output.FormatStatus(string(s.LastStatus))},
		{"Last error", s.LastError},
	})
}

// watchSession prints each new provider status until it is final.
func watchSession(ctx context.Context, orch *orchestrator.Orchestrator, id string) error {
	interval := viper.GetDuration("poll_interval")
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval / 2)
	defer ticker.Stop()

	var last offramp.Status
	for {
		snap, err := orch.Status(ctx, id)
		if err != nil {
			return err
		}
		if snap.Status != nil && snap.Status.Status != last {
			last = snap.Status.Status
			printStatus(*snap.Status)
		}
		if snap.Terminal() {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func printStatus(st offramp.StatusSnapshot) {
	if getFormat() == "json" {
		_ = output.JSON(st)
		return
	}
	line := fmt.Sprintf("%s  %s", time.Now().Format("15:04:05"), output.FormatStatus(string(st.Status)))
	if st.FiatAmount.IsPositive() {
		line += "  " + output.Amount(st.FiatAmount, rateTarget(st.Rate))
	}
	fmt.Fprintln(output.Stdout, line)
}

func rateTarget(r *offramp.Rate) string {
	if r == nil {
		return ""
	}
	return r.To
}
