/**
 * @description
 * This file provides the PostgreSQL implementation of the repository contracts.
 * It contains all SQL touching the transfers, members, and idempotency_keys
 * tables. Two correctness properties live here rather than in application code:
 *
 *   - the one-pending-transfer-per-member invariant is a partial unique index
 *     (transfers_one_pending_per_user ON transfers(user_id) WHERE status =
 *     'pending'); a duplicate insert surfaces as ErrPendingTransferExists.
 *   - every state transition is a conditional UPDATE guarded on the current
 *     status; losing a race surfaces as ErrTransferStatusConflict.
 *
 * @dependencies
 * - context, encoding/json, errors, time: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver.
 * - internal/domain: Domain models scanned from rows.
 */

package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pitchside/membership-service/internal/domain"
)

const uniqueViolationCode = "23505"

// PostgresRepository is the concrete PostgreSQL-backed repository.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const transferColumns = `
	id, token, user_id, plan, amount, currency, status, is_first_time_payment,
	confirmed_by_user, verified_by_admin, admin_id, admin_notes, confirmed_at,
	verified_at, subscription_end_date, expiry_date, created_at, updated_at`

func scanTransfer(row pgx.Row) (*domain.Transfer, error) {
	var t domain.Transfer
	err := row.Scan(
		&t.ID, &t.Token, &t.UserID, &t.Plan, &t.Amount, &t.Currency, &t.Status,
		&t.IsFirstTimePayment, &t.ConfirmedByUser, &t.VerifiedByAdmin, &t.AdminID,
		&t.AdminNotes, &t.ConfirmedAt, &t.VerifiedAt, &t.SubscriptionEndDate,
		&t.ExpiryDate, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func collectTransfers(rows pgx.Rows) ([]domain.Transfer, error) {
	defer rows.Close()
	var transfers []domain.Transfer
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, err
		}
		transfers = append(transfers, *t)
	}
	return transfers, rows.Err()
}

// CreatePendingTransfer inserts a new pending transfer. The partial unique
// index on (user_id) WHERE status = 'pending' rejects a second pending row for
// the same member; that violation is reported as ErrPendingTransferExists so
// the caller can return the existing transfer instead.
func (r *PostgresRepository) CreatePendingTransfer(ctx context.Context, transfer *domain.Transfer) error {
	query := `
		INSERT INTO transfers (
			id, token, user_id, plan, amount, currency, status,
			is_first_time_payment, expiry_date
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at`
	err := r.db.QueryRow(ctx, query,
		transfer.ID, transfer.Token, transfer.UserID, transfer.Plan,
		transfer.Amount, transfer.Currency, transfer.Status,
		transfer.IsFirstTimePayment, transfer.ExpiryDate,
	).Scan(&transfer.CreatedAt, &transfer.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode && pgErr.ConstraintName == "transfers_one_pending_per_user" {
			return ErrPendingTransferExists
		}
		return err
	}
	return nil
}

// FindTransferByID retrieves a transfer by its internal id.
func (r *PostgresRepository) FindTransferByID(ctx context.Context, id uuid.UUID) (*domain.Transfer, error) {
	query := `SELECT ` + transferColumns + ` FROM transfers WHERE id = $1`
	t, err := scanTransfer(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTransferNotFound
		}
		return nil, err
	}
	return t, nil
}

// FindTransferByToken retrieves a transfer by its member-facing token.
func (r *PostgresRepository) FindTransferByToken(ctx context.Context, token string) (*domain.Transfer, error) {
	query := `SELECT ` + transferColumns + ` FROM transfers WHERE token = $1`
	t, err := scanTransfer(r.db.QueryRow(ctx, query, token))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTransferNotFound
		}
		return nil, err
	}
	return t, nil
}

// FindPendingTransferByUser retrieves the member's open pending transfer, if any.
func (r *PostgresRepository) FindPendingTransferByUser(ctx context.Context, userID uuid.UUID) (*domain.Transfer, error) {
	query := `SELECT ` + transferColumns + ` FROM transfers WHERE user_id = $1 AND status = 'pending'`
	t, err := scanTransfer(r.db.QueryRow(ctx, query, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTransferNotFound
		}
		return nil, err
	}
	return t, nil
}

// FindExpiredPendingTransfers returns every pending transfer whose deadline
// passed before asOf. Used by the reconciliation job's expiry pass.
func (r *PostgresRepository) FindExpiredPendingTransfers(ctx context.Context, asOf time.Time) ([]domain.Transfer, error) {
	query := `
		SELECT ` + transferColumns + `
		FROM transfers
		WHERE status = 'pending' AND expiry_date < $1
		ORDER BY expiry_date ASC`
	rows, err := r.db.Query(ctx, query, asOf)
	if err != nil {
		return nil, err
	}
	return collectTransfers(rows)
}

// ListTransfersByUser returns a member's transfer history, newest first.
func (r *PostgresRepository) ListTransfersByUser(ctx context.Context, userID uuid.UUID) ([]domain.Transfer, error) {
	query := `SELECT ` + transferColumns + ` FROM transfers WHERE user_id = $1 ORDER BY created_at DESC`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	return collectTransfers(rows)
}

// ListTransfersByStatus returns transfers for the staff panel, optionally
// filtered by status, newest first.
func (r *PostgresRepository) ListTransfersByStatus(ctx context.Context, status *domain.TransferStatus) ([]domain.Transfer, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if status != nil {
		query := `SELECT ` + transferColumns + ` FROM transfers WHERE status = $1 ORDER BY created_at DESC`
		rows, err = r.db.Query(ctx, query, *status)
	} else {
		query := `SELECT ` + transferColumns + ` FROM transfers ORDER BY created_at DESC`
		rows, err = r.db.Query(ctx, query)
	}
	if err != nil {
		return nil, err
	}
	return collectTransfers(rows)
}

// ListTransfersAwaitingVerification returns confirmed transfers with the
// oldest confirmations first, so staff work the queue in arrival order.
func (r *PostgresRepository) ListTransfersAwaitingVerification(ctx context.Context) ([]domain.Transfer, error) {
	query := `
		SELECT ` + transferColumns + `
		FROM transfers
		WHERE status = 'confirmed'
		ORDER BY confirmed_at ASC`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	return collectTransfers(rows)
}

// MarkTransferConfirmed transitions pending -> confirmed.
func (r *PostgresRepository) MarkTransferConfirmed(ctx context.Context, id uuid.UUID, confirmedAt time.Time) error {
	query := `
		UPDATE transfers
		SET status = 'confirmed', confirmed_by_user = TRUE, confirmed_at = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'pending'`
	return r.guardedTransition(ctx, query, id, confirmedAt)
}

// MarkTransferExpired transitions pending -> expired. Both the reconciliation
// job and the lazy expiry path call this; whichever runs second sees a
// conflict and backs off.
func (r *PostgresRepository) MarkTransferExpired(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE transfers
		SET status = 'expired', updated_at = NOW()
		WHERE id = $1 AND status = 'pending'`
	return r.guardedTransition(ctx, query, id)
}

// MarkTransferVerified transitions confirmed -> verified and clears the
// request deadline; a verified transfer carries no expiry date.
func (r *PostgresRepository) MarkTransferVerified(ctx context.Context, id uuid.UUID, adminID uuid.UUID, notes *string, verifiedAt time.Time, subscriptionEndDate time.Time) error {
	query := `
		UPDATE transfers
		SET status = 'verified', verified_by_admin = TRUE, admin_id = $2,
			admin_notes = $3, verified_at = $4, subscription_end_date = $5,
			expiry_date = NULL, updated_at = NOW()
		WHERE id = $1 AND status = 'confirmed'`
	return r.guardedTransition(ctx, query, id, adminID, notes, verifiedAt, subscriptionEndDate)
}

// MarkTransferRejected transitions confirmed -> rejected.
func (r *PostgresRepository) MarkTransferRejected(ctx context.Context, id uuid.UUID, adminID uuid.UUID, notes *string, verifiedAt time.Time) error {
	query := `
		UPDATE transfers
		SET status = 'rejected', verified_by_admin = FALSE, admin_id = $2,
			admin_notes = $3, verified_at = $4, updated_at = NOW()
		WHERE id = $1 AND status = 'confirmed'`
	return r.guardedTransition(ctx, query, id, adminID, notes, verifiedAt)
}

func (r *PostgresRepository) guardedTransition(ctx context.Context, query string, id uuid.UUID, args ...any) error {
	tag, err := r.db.Exec(ctx, query, append([]any{id}, args...)...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		// Distinguish a vanished row from a lost race.
		var exists bool
		if checkErr := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM transfers WHERE id = $1)`, id).Scan(&exists); checkErr != nil {
			return checkErr
		}
		if !exists {
			return ErrTransferNotFound
		}
		return ErrTransferStatusConflict
	}
	return nil
}

const memberColumns = `
	id, full_name, phone_number, is_temporary, active_plan,
	current_subscription_end_date, subscription_counter, renewal_reminder_count`

func scanMember(row pgx.Row) (*domain.Member, error) {
	var m domain.Member
	err := row.Scan(
		&m.ID, &m.FullName, &m.PhoneNumber, &m.IsTemporary, &m.ActivePlan,
		&m.CurrentSubscriptionEndDate, &m.SubscriptionCounter, &m.RenewalReminderCount,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func collectMembers(rows pgx.Rows) ([]domain.Member, error) {
	defer rows.Close()
	var members []domain.Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		members = append(members, *m)
	}
	return members, rows.Err()
}

// FindMemberByID retrieves the payment-relevant slice of a member record.
func (r *PostgresRepository) FindMemberByID(ctx context.Context, id uuid.UUID) (*domain.Member, error) {
	query := `SELECT ` + memberColumns + ` FROM members WHERE id = $1`
	m, err := scanMember(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMemberNotFound
		}
		return nil, err
	}
	return m, nil
}

// UpdateMemberSubscription grants a plan atomically: sets the plan and end
// date, clears the temporary flag, bumps the subscription counter, and resets
// the renewal-reminder counter for the new cycle.
func (r *PostgresRepository) UpdateMemberSubscription(ctx context.Context, id uuid.UUID, plan domain.SubscriptionPlan, endDate time.Time) error {
	query := `
		UPDATE members
		SET active_plan = $2, current_subscription_end_date = $3,
			is_temporary = FALSE, subscription_counter = subscription_counter + 1,
			renewal_reminder_count = 0, updated_at = NOW()
		WHERE id = $1`
	tag, err := r.db.Exec(ctx, query, id, plan, endDate)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrMemberNotFound
	}
	return nil
}

// RemoveMember deletes a member record. Used only for temporary accounts whose
// first payment was rejected or expired.
func (r *PostgresRepository) RemoveMember(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM members WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrMemberNotFound
	}
	return nil
}

// FindMembersExpiringBetween returns members with an active plan whose
// subscription ends inside [start, end).
func (r *PostgresRepository) FindMembersExpiringBetween(ctx context.Context, start, end time.Time) ([]domain.Member, error) {
	query := `
		SELECT ` + memberColumns + `
		FROM members
		WHERE active_plan IS NOT NULL
		  AND current_subscription_end_date >= $1
		  AND current_subscription_end_date < $2`
	rows, err := r.db.Query(ctx, query, start, end)
	if err != nil {
		return nil, err
	}
	return collectMembers(rows)
}

// FindMembersExpiredSince returns members with an active plan whose
// subscription ended inside [since, until).
func (r *PostgresRepository) FindMembersExpiredSince(ctx context.Context, since, until time.Time) ([]domain.Member, error) {
	query := `
		SELECT ` + memberColumns + `
		FROM members
		WHERE active_plan IS NOT NULL
		  AND current_subscription_end_date >= $1
		  AND current_subscription_end_date < $2`
	rows, err := r.db.Query(ctx, query, since, until)
	if err != nil {
		return nil, err
	}
	return collectMembers(rows)
}

// IncrementRenewalReminderCount bumps the per-member post-expiry reminder
// counter that gates the spam cap.
func (r *PostgresRepository) IncrementRenewalReminderCount(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE members
		SET renewal_reminder_count = renewal_reminder_count + 1, updated_at = NOW()
		WHERE id = $1`
	tag, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrMemberNotFound
	}
	return nil
}

const idempotencyColumns = `id, key, operation, response_data, is_processed, created_at`

func scanIdempotencyKey(row pgx.Row) (*domain.IdempotencyKey, error) {
	var rec domain.IdempotencyKey
	err := row.Scan(&rec.ID, &rec.Key, &rec.Operation, &rec.ResponseData, &rec.IsProcessed, &rec.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// RegisterIdempotencyKey inserts an unprocessed ledger row for a new logical
// attempt. A duplicate (key, operation) pair reports ErrIdempotencyKeyExists.
func (r *PostgresRepository) RegisterIdempotencyKey(ctx context.Context, key, operation string) (*domain.IdempotencyKey, error) {
	query := `
		INSERT INTO idempotency_keys (key, operation, is_processed)
		VALUES ($1, $2, FALSE)
		RETURNING ` + idempotencyColumns
	rec, err := scanIdempotencyKey(r.db.QueryRow(ctx, query, key, operation))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return nil, ErrIdempotencyKeyExists
		}
		return nil, err
	}
	return rec, nil
}

// ReleaseIdempotencyKey deletes an unprocessed registration so a retry of the
// same key can run the operation again. Processed rows survive: deleting one
// would discard a cached result a concurrent caller may be replaying.
func (r *PostgresRepository) ReleaseIdempotencyKey(ctx context.Context, key, operation string) error {
	_, err := r.db.Exec(ctx,
		`DELETE FROM idempotency_keys WHERE key = $1 AND operation = $2 AND is_processed = FALSE`,
		key, operation)
	return err
}

// FindProcessedIdempotencyKey returns the ledger row only once its result has
// been cached. In-flight (unprocessed) rows are reported as not found so
// callers never replay a partial result.
func (r *PostgresRepository) FindProcessedIdempotencyKey(ctx context.Context, key, operation string) (*domain.IdempotencyKey, error) {
	query := `
		SELECT ` + idempotencyColumns + `
		FROM idempotency_keys
		WHERE key = $1 AND operation = $2 AND is_processed = TRUE`
	rec, err := scanIdempotencyKey(r.db.QueryRow(ctx, query, key, operation))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrIdempotencyKeyNotFound
		}
		return nil, err
	}
	return rec, nil
}

// SaveIdempotencyResult upserts the cached result and flips the row to
// processed. Concurrent attempts with the same key race safely: the unique
// index serializes them and both end up observing one completed row.
func (r *PostgresRepository) SaveIdempotencyResult(ctx context.Context, key, operation string, responseData json.RawMessage) (*domain.IdempotencyKey, error) {
	query := `
		INSERT INTO idempotency_keys (key, operation, response_data, is_processed)
		VALUES ($1, $2, $3, TRUE)
		ON CONFLICT (key, operation)
		DO UPDATE SET response_data = EXCLUDED.response_data, is_processed = TRUE
		RETURNING ` + idempotencyColumns
	return scanIdempotencyKey(r.db.QueryRow(ctx, query, key, operation, responseData))
}

// DeleteIdempotencyKeysBefore purges ledger rows older than the cutoff.
// Storage hygiene only; safe to run concurrently with normal traffic.
func (r *PostgresRepository) DeleteIdempotencyKeysBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM idempotency_keys WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
