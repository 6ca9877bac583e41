/**
 * @description
 * This file defines the data-access contracts consumed by the payment core. The
 * interfaces are split by capability — transfers, the member directory, and the
 * idempotency ledger — so business logic can be tested against small stubs and
 * the concrete engine can be swapped without touching the state machine.
 *
 * @dependencies
 * - context, encoding/json, errors, time: Standard Go libraries.
 * - github.com/google/uuid: For identifiers.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/pitchside/membership-service/internal/domain"
)

var (
	ErrTransferNotFound       = errors.New("transfer not found")
	ErrMemberNotFound         = errors.New("member not found")
	ErrPendingTransferExists  = errors.New("member already has a pending transfer")
	ErrTransferStatusConflict = errors.New("transfer is no longer in the expected status")
	ErrIdempotencyKeyExists   = errors.New("idempotency key already registered")
	ErrIdempotencyKeyNotFound = errors.New("idempotency key not found")
)

// TransferRepository is the durable store of transfer records.
//
// CreatePendingTransfer must enforce the one-pending-transfer-per-member
// invariant at the storage level (a partial unique index on user_id WHERE
// status = 'pending') and report ErrPendingTransferExists when violated, so
// that two concurrent creations cannot both insert.
//
// The Mark* methods apply exactly one state transition each, guarded on the
// current status. When the guard no longer matches (a concurrent caller won
// the race) they report ErrTransferStatusConflict and change nothing.
type TransferRepository interface {
	CreatePendingTransfer(ctx context.Context, transfer *domain.Transfer) error
	FindTransferByID(ctx context.Context, id uuid.UUID) (*domain.Transfer, error)
	FindTransferByToken(ctx context.Context, token string) (*domain.Transfer, error)
	FindPendingTransferByUser(ctx context.Context, userID uuid.UUID) (*domain.Transfer, error)
	FindExpiredPendingTransfers(ctx context.Context, asOf time.Time) ([]domain.Transfer, error)
	ListTransfersByUser(ctx context.Context, userID uuid.UUID) ([]domain.Transfer, error)
	ListTransfersByStatus(ctx context.Context, status *domain.TransferStatus) ([]domain.Transfer, error)
	ListTransfersAwaitingVerification(ctx context.Context) ([]domain.Transfer, error)

	MarkTransferConfirmed(ctx context.Context, id uuid.UUID, confirmedAt time.Time) error
	MarkTransferExpired(ctx context.Context, id uuid.UUID) error
	MarkTransferVerified(ctx context.Context, id uuid.UUID, adminID uuid.UUID, notes *string, verifiedAt time.Time, subscriptionEndDate time.Time) error
	MarkTransferRejected(ctx context.Context, id uuid.UUID, adminID uuid.UUID, notes *string, verifiedAt time.Time) error
}

// MemberDirectory provides the read/update access to member records that the
// payment core needs: identity matching, subscription grants, temporary-account
// cleanup, and the renewal-reminder queries used by the reconciliation job.
type MemberDirectory interface {
	FindMemberByID(ctx context.Context, id uuid.UUID) (*domain.Member, error)

	// UpdateMemberSubscription grants the plan in one statement: it sets the
	// active plan and end date, clears the temporary flag, increments the
	// subscription counter, and resets the renewal-reminder counter.
	UpdateMemberSubscription(ctx context.Context, id uuid.UUID, plan domain.SubscriptionPlan, endDate time.Time) error

	RemoveMember(ctx context.Context, id uuid.UUID) error
	FindMembersExpiringBetween(ctx context.Context, start, end time.Time) ([]domain.Member, error)
	FindMembersExpiredSince(ctx context.Context, since, until time.Time) ([]domain.Member, error)
	IncrementRenewalReminderCount(ctx context.Context, id uuid.UUID) error
}

// IdempotencyRepository persists the idempotency-key ledger. Registration and
// result upserts must race safely: a unique (key, operation) index resolves
// concurrent writers in the database, and the loser observes the winner's row.
type IdempotencyRepository interface {
	RegisterIdempotencyKey(ctx context.Context, key, operation string) (*domain.IdempotencyKey, error)

	// ReleaseIdempotencyKey removes an unprocessed registration so the key can
	// be retried after the guarded operation failed. Processed rows are left
	// untouched.
	ReleaseIdempotencyKey(ctx context.Context, key, operation string) error

	FindProcessedIdempotencyKey(ctx context.Context, key, operation string) (*domain.IdempotencyKey, error)
	SaveIdempotencyResult(ctx context.Context, key, operation string, responseData json.RawMessage) (*domain.IdempotencyKey, error)
	DeleteIdempotencyKeysBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Repository aggregates every capability the PostgreSQL implementation offers.
type Repository interface {
	TransferRepository
	MemberDirectory
	IdempotencyRepository
}
