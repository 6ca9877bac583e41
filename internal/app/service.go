/**
 * @description
 * This file contains the transfer state machine, the core business logic of the
 * membership-service. The `Service` struct validates and applies every legal
 * transition of a transfer (create, confirm, verify, lazy expiry), computing
 * amounts, tokens, and deadlines along the way.
 *
 * Ordering rule throughout: the repository update for a transition commits
 * before the corresponding notification or event is sent, and a failed side
 * effect is logged without rolling the transition back. The member's active
 * plan is granted in exactly one place — the approval branch of VerifyTransfer.
 * Granting it earlier (at creation or confirmation) is a defect.
 *
 * @dependencies
 * - context, errors, fmt, log/slog, strings, time: Standard Go libraries.
 * - github.com/google/uuid: For transfer ids and tokens.
 * - internal/config, internal/domain, internal/store: Configuration, models, data access.
 * - pkg/rabbitmq: Lifecycle event publishing.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pitchside/membership-service/internal/config"
	"github.com/pitchside/membership-service/internal/domain"
	"github.com/pitchside/membership-service/internal/store"
	"github.com/pitchside/membership-service/pkg/rabbitmq"
)

// Service implements the transfer payment lifecycle.
type Service struct {
	transfers     store.TransferRepository
	members       store.MemberDirectory
	notifications *Notifications
	events        rabbitmq.Publisher
	cfg           config.Config
	logger        *slog.Logger
}

// NewService creates a new transfer service instance.
func NewService(
	transfers store.TransferRepository,
	members store.MemberDirectory,
	notifications *Notifications,
	events rabbitmq.Publisher,
	cfg config.Config,
	logger *slog.Logger,
) *Service {
	return &Service{
		transfers:     transfers,
		members:       members,
		notifications: notifications,
		events:        events,
		cfg:           cfg,
		logger:        logger,
	}
}

// CreateTransferInput carries the member's request for a new payment cycle.
// FullName and PhoneNumber form an optional identity hint: when present, both
// must match the member record or nothing is created.
type CreateTransferInput struct {
	Plan        domain.SubscriptionPlan
	Amount      int64
	FullName    string
	PhoneNumber string
}

// CreateTransfer opens a new payment-request cycle for the member, or returns
// the member's existing pending transfer unchanged — same token, same id, no
// duplicate notification.
func (s *Service) CreateTransfer(ctx context.Context, userID uuid.UUID, input CreateTransferInput) (*domain.Transfer, error) {
	if !input.Plan.IsValid() {
		return nil, fmt.Errorf("unknown subscription plan %q", input.Plan)
	}

	member, err := s.members.FindMemberByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find member %s: %w", userID, err)
	}

	// Identity hint check. Client state has previously leaked one member's
	// data into another member's session; a mismatch here must fail loudly
	// rather than attach a payment to the wrong account.
	if input.FullName != "" && input.PhoneNumber != "" {
		nameMatches := strings.EqualFold(strings.TrimSpace(member.FullName), strings.TrimSpace(input.FullName))
		phoneMatches := strings.TrimSpace(member.PhoneNumber) == strings.TrimSpace(input.PhoneNumber)
		if !nameMatches || !phoneMatches {
			return nil, ErrIdentityConflict
		}
	}

	if existing, err := s.transfers.FindPendingTransferByUser(ctx, userID); err == nil {
		return existing, nil
	} else if !errors.Is(err, store.ErrTransferNotFound) {
		return nil, fmt.Errorf("failed to check for pending transfer: %w", err)
	}

	now := time.Now().UTC()
	expiryDate := now.Add(time.Duration(s.cfg.TransferExpiryHours) * time.Hour)
	isFirstTimePayment := member.SubscriptionCounter == 0

	transfer := &domain.Transfer{
		ID:                 uuid.New(),
		Token:              uuid.NewString(),
		UserID:             userID,
		Plan:               input.Plan,
		Amount:             s.normalizeAmount(input.Amount, isFirstTimePayment),
		Currency:           s.cfg.Currency,
		Status:             domain.TransferStatusPending,
		IsFirstTimePayment: isFirstTimePayment,
		ExpiryDate:         &expiryDate,
	}

	if err := s.transfers.CreatePendingTransfer(ctx, transfer); err != nil {
		if errors.Is(err, store.ErrPendingTransferExists) {
			// A concurrent creation won the partial-index race; hand back its row.
			existing, findErr := s.transfers.FindPendingTransferByUser(ctx, userID)
			if findErr != nil {
				return nil, fmt.Errorf("failed to load concurrently created transfer: %w", findErr)
			}
			return existing, nil
		}
		return nil, fmt.Errorf("failed to create transfer: %w", err)
	}

	if err := s.notifications.SendTransferInstructions(ctx, member.PhoneNumber, transfer.Token, transfer.Amount, transfer.Plan); err != nil {
		s.logger.Error("failed to send transfer instructions", "transfer_id", transfer.ID, "error", err)
	}
	s.publishLifecycleEvent(ctx, transfer)

	return transfer, nil
}

// normalizeAmount raises an under-paying requested amount to the configured
// tier. The client-supplied amount is a hint only; first-time and renewal
// payments each have a fixed floor.
func (s *Service) normalizeAmount(requested int64, isFirstTimePayment bool) int64 {
	if isFirstTimePayment {
		if requested < s.cfg.FirstTimePaymentMinimum {
			return s.cfg.FirstTimePaymentAmount
		}
		return requested
	}
	if requested < s.cfg.RenewalPaymentMinimum {
		return s.cfg.RenewalPaymentAmount
	}
	return requested
}

// GetTransferByToken looks a transfer up by its member-facing token, lazily
// expiring a pending transfer whose deadline has passed. The expired transfer
// is still returned; only confirmation turns a passed deadline into an error.
func (s *Service) GetTransferByToken(ctx context.Context, token string) (*domain.Transfer, error) {
	transfer, err := s.transfers.FindTransferByToken(ctx, token)
	if err != nil {
		return nil, err
	}

	if transfer.IsExpiredAt(time.Now().UTC()) {
		if err := s.expireTransfer(ctx, transfer); err != nil {
			return nil, err
		}
	}

	return transfer, nil
}

// expireTransfer applies pending -> expired, tolerating a concurrent caller
// having already moved the row. The in-memory copy is refreshed either way.
func (s *Service) expireTransfer(ctx context.Context, transfer *domain.Transfer) error {
	err := s.transfers.MarkTransferExpired(ctx, transfer.ID)
	switch {
	case err == nil:
		transfer.Status = domain.TransferStatusExpired
		s.publishLifecycleEvent(ctx, transfer)
		return nil
	case errors.Is(err, store.ErrTransferStatusConflict):
		fresh, findErr := s.transfers.FindTransferByID(ctx, transfer.ID)
		if findErr != nil {
			return findErr
		}
		*transfer = *fresh
		return nil
	default:
		return fmt.Errorf("failed to expire transfer %s: %w", transfer.ID, err)
	}
}

// ConfirmTransfer records that the member claims to have completed the bank
// transfer, moving pending -> confirmed and alerting staff. Confirming after
// the deadline persists the expiry and fails with ErrTransferExpired.
func (s *Service) ConfirmTransfer(ctx context.Context, token string) (*domain.Transfer, error) {
	transfer, err := s.transfers.FindTransferByToken(ctx, token)
	if err != nil {
		return nil, err
	}

	if transfer.Status != domain.TransferStatusPending {
		return nil, &InvalidStatusError{Action: "confirm", Status: transfer.Status}
	}

	now := time.Now().UTC()
	if transfer.IsExpiredAt(now) {
		if err := s.expireTransfer(ctx, transfer); err != nil {
			return nil, err
		}
		return nil, ErrTransferExpired
	}

	if err := s.transfers.MarkTransferConfirmed(ctx, transfer.ID, now); err != nil {
		if errors.Is(err, store.ErrTransferStatusConflict) {
			// Lost the race against the scheduler's expiry pass or another
			// confirmation; report against the row's current status.
			fresh, findErr := s.transfers.FindTransferByID(ctx, transfer.ID)
			if findErr != nil {
				return nil, findErr
			}
			if fresh.Status == domain.TransferStatusExpired {
				return nil, ErrTransferExpired
			}
			return nil, &InvalidStatusError{Action: "confirm", Status: fresh.Status}
		}
		return nil, fmt.Errorf("failed to confirm transfer %s: %w", transfer.ID, err)
	}

	transfer.Status = domain.TransferStatusConfirmed
	transfer.ConfirmedByUser = true
	transfer.ConfirmedAt = &now

	memberName := transfer.UserID.String()
	if member, err := s.members.FindMemberByID(ctx, transfer.UserID); err == nil {
		memberName = member.FullName
	} else {
		s.logger.Warn("could not resolve member name for admin notification", "user_id", transfer.UserID, "error", err)
	}
	s.notifications.NotifyAdminsAboutPayment(ctx, transfer.ID, memberName, transfer.Amount, transfer.Plan)
	s.publishLifecycleEvent(ctx, transfer)

	return transfer, nil
}

// VerifyTransfer applies the staff decision on a confirmed transfer.
//
// Approval moves confirmed -> verified, sets the subscription end date two
// calendar months out, clears the request deadline, and grants the plan in the
// member directory. Rejection moves confirmed -> rejected, notifies the member
// with the reason, and cleans up a temporary first-time member account.
func (s *Service) VerifyTransfer(ctx context.Context, transferID, adminID uuid.UUID, isApproved bool, notes *string) (*domain.Transfer, error) {
	transfer, err := s.transfers.FindTransferByID(ctx, transferID)
	if err != nil {
		return nil, err
	}

	member, err := s.members.FindMemberByID(ctx, transfer.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find member %s for transfer %s: %w", transfer.UserID, transferID, err)
	}

	if transfer.Status != domain.TransferStatusConfirmed {
		return nil, &InvalidStatusError{Action: "verify", Status: transfer.Status}
	}

	now := time.Now().UTC()

	if !isApproved {
		return s.rejectTransfer(ctx, transfer, member, adminID, notes, now)
	}
	return s.approveTransfer(ctx, transfer, member, adminID, notes, now)
}

func (s *Service) approveTransfer(ctx context.Context, transfer *domain.Transfer, member *domain.Member, adminID uuid.UUID, notes *string, now time.Time) (*domain.Transfer, error) {
	endDate := now.AddDate(0, 2, 0)

	if err := s.transfers.MarkTransferVerified(ctx, transfer.ID, adminID, notes, now, endDate); err != nil {
		if errors.Is(err, store.ErrTransferStatusConflict) {
			fresh, findErr := s.transfers.FindTransferByID(ctx, transfer.ID)
			if findErr != nil {
				return nil, findErr
			}
			return nil, &InvalidStatusError{Action: "verify", Status: fresh.Status}
		}
		return nil, fmt.Errorf("failed to verify transfer %s: %w", transfer.ID, err)
	}

	transfer.Status = domain.TransferStatusVerified
	transfer.VerifiedByAdmin = true
	transfer.AdminID = &adminID
	transfer.AdminNotes = notes
	transfer.VerifiedAt = &now
	transfer.SubscriptionEndDate = &endDate
	transfer.ExpiryDate = nil

	// The one and only plan grant in the lifecycle.
	if err := s.members.UpdateMemberSubscription(ctx, member.ID, transfer.Plan, endDate); err != nil {
		s.logger.Error("transfer verified but subscription grant failed; will need manual reconciliation",
			"transfer_id", transfer.ID, "user_id", member.ID, "error", err)
	}

	if err := s.notifications.SendPaymentApprovalNotification(ctx, member.PhoneNumber, transfer.Plan, transfer.Amount, endDate); err != nil {
		s.logger.Error("failed to send payment approval notification", "transfer_id", transfer.ID, "error", err)
	}
	s.publishLifecycleEvent(ctx, transfer)

	return transfer, nil
}

func (s *Service) rejectTransfer(ctx context.Context, transfer *domain.Transfer, member *domain.Member, adminID uuid.UUID, notes *string, now time.Time) (*domain.Transfer, error) {
	if err := s.transfers.MarkTransferRejected(ctx, transfer.ID, adminID, notes, now); err != nil {
		if errors.Is(err, store.ErrTransferStatusConflict) {
			fresh, findErr := s.transfers.FindTransferByID(ctx, transfer.ID)
			if findErr != nil {
				return nil, findErr
			}
			return nil, &InvalidStatusError{Action: "verify", Status: fresh.Status}
		}
		return nil, fmt.Errorf("failed to reject transfer %s: %w", transfer.ID, err)
	}

	transfer.Status = domain.TransferStatusRejected
	transfer.VerifiedByAdmin = false
	transfer.AdminID = &adminID
	transfer.AdminNotes = notes
	transfer.VerifiedAt = &now

	reason := "Payment could not be verified"
	if notes != nil && strings.TrimSpace(*notes) != "" {
		reason = *notes
	}
	if err := s.notifications.SendPaymentRejectionNotification(ctx, member.PhoneNumber, transfer.Plan, transfer.Amount, reason); err != nil {
		s.logger.Error("failed to send payment rejection notification", "transfer_id", transfer.ID, "error", err)
	}

	// A temporary account only existed pending this first payment; remove it
	// best-effort now that the payment is rejected.
	if transfer.IsFirstTimePayment && member.IsTemporary {
		if err := s.members.RemoveMember(ctx, member.ID); err != nil {
			s.logger.Error("failed to delete temporary member after rejection", "user_id", member.ID, "error", err)
		}
	}
	s.publishLifecycleEvent(ctx, transfer)

	return transfer, nil
}

// ListMemberTransfers returns the member's transfer history, newest first.
func (s *Service) ListMemberTransfers(ctx context.Context, userID uuid.UUID) ([]domain.Transfer, error) {
	if _, err := s.members.FindMemberByID(ctx, userID); err != nil {
		return nil, fmt.Errorf("failed to find member %s: %w", userID, err)
	}
	return s.transfers.ListTransfersByUser(ctx, userID)
}

// ListTransfersForAdmin returns transfers for the staff panel, optionally
// filtered by status.
func (s *Service) ListTransfersForAdmin(ctx context.Context, status *domain.TransferStatus) ([]domain.Transfer, error) {
	return s.transfers.ListTransfersByStatus(ctx, status)
}

// ListTransfersAwaitingVerification returns the confirmed-transfer queue,
// oldest confirmation first.
func (s *Service) ListTransfersAwaitingVerification(ctx context.Context) ([]domain.Transfer, error) {
	return s.transfers.ListTransfersAwaitingVerification(ctx)
}

func (s *Service) publishLifecycleEvent(ctx context.Context, transfer *domain.Transfer) {
	if s.events == nil {
		return
	}
	event := rabbitmq.TransferLifecycleEvent{
		TransferID: transfer.ID,
		UserID:     transfer.UserID,
		Status:     string(transfer.Status),
		Plan:       string(transfer.Plan),
		Amount:     transfer.Amount,
		Timestamp:  time.Now().UTC(),
	}
	if err := s.events.PublishTransferLifecycleEvent(ctx, event); err != nil {
		s.logger.Warn("failed to publish transfer lifecycle event",
			"transfer_id", transfer.ID, "status", transfer.Status, "error", err)
	}
}
