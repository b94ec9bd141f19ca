package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	apperrors "github.com/rahataid/rahat-offramp/pkg/errors"
	"github.com/rahataid/rahat-offramp/pkg/metrics"
	"github.com/rahataid/rahat-offramp/pkg/session"
	"github.com/rahataid/rahat-offramp/services/offramp-service/internal/types"
)

// AttemptRepository is the durable ledger of offramp sessions. The live
// session state stays in the session store; rows here are append-mostly
// history for support and reconciliation.
type AttemptRepository struct {
	db *pgxpool.Pool
}

func NewAttemptRepository(db *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{db: db}
}

// RecordTransition upserts the attempt row and appends one transition in a
// single transaction.
func (r *AttemptRepository) RecordTransition(ctx context.Context, s *session.Session, from session.State) error {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("record_transition", time.Since(start)) }()

	fiatWalletID := ""
	if s.FiatWallet != nil {
		fiatWalletID = s.FiatWallet.ID
	}

	return pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO offramp_attempts (
				session_id, provider_uuid, provider_slug, request_id, chain, token, amount,
				sender_address, escrow_address, phone_number, fiat_wallet_id, tx_hash,
				reference_id, state, last_status, last_error, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, NOW())
			ON CONFLICT (session_id) DO UPDATE SET
				request_id     = EXCLUDED.request_id,
				escrow_address = EXCLUDED.escrow_address,
				phone_number   = EXCLUDED.phone_number,
				fiat_wallet_id = EXCLUDED.fiat_wallet_id,
				tx_hash        = EXCLUDED.tx_hash,
				reference_id   = EXCLUDED.reference_id,
				state          = EXCLUDED.state,
				last_status    = EXCLUDED.last_status,
				last_error     = EXCLUDED.last_error,
				updated_at     = NOW()
		`, s.ID, s.ProviderUUID, s.ProviderSlug, s.RequestID, s.Chain, s.Token, s.Amount,
			s.SenderAddress, s.EscrowAddress, s.Phone, fiatWalletID, s.TxHash,
			s.ReferenceID, string(s.State), string(s.LastStatus), s.LastError, s.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to upsert attempt: %w", err)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO offramp_transitions (session_id, from_state, to_state, error)
			VALUES ($1, $2, $3, $4)
		`, s.ID, string(from), string(s.State), s.LastError)
		if err != nil {
			return fmt.Errorf("failed to insert transition: %w", err)
		}
		return nil
	})
}

func (r *AttemptRepository) GetAttempt(ctx context.Context, sessionID string) (*types.Attempt, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("get_attempt", time.Since(start)) }()

	var a types.Attempt
	err := r.db.QueryRow(ctx, `
		SELECT session_id, provider_uuid, request_id, token, amount, tx_hash,
		       reference_id, state, last_status, last_error, updated_at
		FROM offramp_attempts WHERE session_id = $1
	`, sessionID).Scan(
		&a.SessionID, &a.ProviderUUID, &a.RequestID, &a.Token, &a.Amount, &a.TxHash,
		&a.ReferenceID, &a.State, &a.LastStatus, &a.LastError, &a.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get attempt: %w", err)
	}
	return &a, nil
}

// ListTransitions returns the history of one session, oldest first.
func (r *AttemptRepository) ListTransitions(ctx context.Context, sessionID string) ([]types.Transition, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("list_transitions", time.Since(start)) }()

	rows, err := r.db.Query(ctx, `
		SELECT id, session_id, from_state, to_state, error, created_at
		FROM offramp_transitions
		WHERE session_id = $1
		ORDER BY id
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list transitions: %w", err)
	}
	defer rows.Close()

	var out []types.Transition
	for rows.Next() {
		var t types.Transition
		if err := rows.Scan(&t.ID, &t.SessionID, &t.From, &t.To, &t.Error, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan transition: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
