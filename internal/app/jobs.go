/**
 * @description
 * Reconciliation job implementations. The daily run performs three independent,
 * fail-isolated passes — expiring stale pending transfers, pre-expiry renewal
 * reminders, and capped post-expiry reminders — plus idempotency-ledger
 * housekeeping. Each pass returns explicit per-item outcomes so batch behavior
 * is testable directly rather than only observable through logs; one item's
 * failure never aborts the rest of its pass.
 *
 * @dependencies
 * - context, errors, log/slog, time: Standard Go libraries.
 * - github.com/google/uuid: For identifiers in outcomes.
 * - internal/config, internal/domain, internal/store: Settings, models, data access.
 */

package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/pitchside/membership-service/internal/config"
	"github.com/pitchside/membership-service/internal/domain"
	"github.com/pitchside/membership-service/internal/store"
)

// notifyTimeout bounds each outbound notification inside a pass so one slow
// gateway call cannot stall the remaining items.
const notifyTimeout = 10 * time.Second

// ExpiryOutcome reports what happened to one stale pending transfer.
type ExpiryOutcome struct {
	TransferID    uuid.UUID
	MemberRemoved bool
	Err           error
}

// ReminderOutcome reports what happened for one member in a reminder pass.
type ReminderOutcome struct {
	MemberID uuid.UUID
	Sent     bool
	Err      error
}

// Jobs contains the logic for all scheduled reconciliation tasks.
type Jobs struct {
	transfers     store.TransferRepository
	members       store.MemberDirectory
	notifications *Notifications
	idempotency   *IdempotencyService
	logger        *slog.Logger
	config        config.Config
}

// NewJobs creates a new reconciliation job runner.
func NewJobs(
	transfers store.TransferRepository,
	members store.MemberDirectory,
	notifications *Notifications,
	idempotency *IdempotencyService,
	logger *slog.Logger,
	cfg config.Config,
) *Jobs {
	return &Jobs{
		transfers:     transfers,
		members:       members,
		notifications: notifications,
		idempotency:   idempotency,
		logger:        logger,
		config:        cfg,
	}
}

// RunReconciliation is the cron entry point. The passes share nothing and run
// in sequence; a failing pass logs and the next still runs.
func (j *Jobs) RunReconciliation() {
	j.logger.Info("starting reconciliation run")
	ctx := context.Background()

	expiries := j.ExpireStalePendingTransfers(ctx)
	j.logOutcomes("expire_stale_transfers", len(expiries), countExpiryErrors(expiries))

	pre := j.SendPreExpiryReminders(ctx)
	j.logOutcomes("pre_expiry_reminders", len(pre), countReminderErrors(pre))

	post := j.SendPostExpiryReminders(ctx)
	j.logOutcomes("post_expiry_reminders", len(post), countReminderErrors(post))

	if _, err := j.idempotency.Cleanup(ctx, j.config.IdempotencyRetentionDays); err != nil {
		j.logger.Error("idempotency ledger cleanup failed", "error", err)
	}

	j.logger.Info("reconciliation run finished")
}

func (j *Jobs) logOutcomes(pass string, total, failed int) {
	if failed > 0 {
		j.logger.Error("reconciliation pass completed with failures", "pass", pass, "total", total, "failed", failed)
		return
	}
	j.logger.Info("reconciliation pass completed", "pass", pass, "total", total)
}

func countExpiryErrors(outcomes []ExpiryOutcome) int {
	failed := 0
	for _, o := range outcomes {
		if o.Err != nil {
			failed++
		}
	}
	return failed
}

func countReminderErrors(outcomes []ReminderOutcome) int {
	failed := 0
	for _, o := range outcomes {
		if o.Err != nil {
			failed++
		}
	}
	return failed
}

// ExpireStalePendingTransfers finds every pending transfer whose deadline has
// passed, transitions it to expired, notifies the member, and removes
// temporary first-time member accounts. Each transfer is processed
// independently.
func (j *Jobs) ExpireStalePendingTransfers(ctx context.Context) []ExpiryOutcome {
	now := time.Now().UTC()
	stale, err := j.transfers.FindExpiredPendingTransfers(ctx, now)
	if err != nil {
		j.logger.Error("failed to query expired pending transfers", "error", err)
		return nil
	}

	outcomes := make([]ExpiryOutcome, 0, len(stale))
	for i := range stale {
		outcomes = append(outcomes, j.expireOne(ctx, &stale[i]))
	}
	return outcomes
}

func (j *Jobs) expireOne(ctx context.Context, transfer *domain.Transfer) ExpiryOutcome {
	outcome := ExpiryOutcome{TransferID: transfer.ID}

	if err := j.transfers.MarkTransferExpired(ctx, transfer.ID); err != nil {
		// A concurrent confirm or lazy lookup moved the row first; nothing
		// left for this pass to do.
		if errors.Is(err, store.ErrTransferStatusConflict) {
			return outcome
		}
		outcome.Err = err
		j.logger.Error("failed to expire stale transfer", "transfer_id", transfer.ID, "error", err)
		return outcome
	}

	member, err := j.members.FindMemberByID(ctx, transfer.UserID)
	if err != nil {
		outcome.Err = err
		j.logger.Error("expired transfer but could not load member for notification",
			"transfer_id", transfer.ID, "user_id", transfer.UserID, "error", err)
		return outcome
	}

	notifyCtx, cancel := context.WithTimeout(ctx, notifyTimeout)
	err = j.notifications.SendTransferExpiryNotification(notifyCtx, member.PhoneNumber, transfer.Amount, transfer.Plan)
	cancel()
	if err != nil {
		outcome.Err = err
		j.logger.Error("failed to send expiry notification", "transfer_id", transfer.ID, "error", err)
	}

	if transfer.IsFirstTimePayment && member.IsTemporary {
		if err := j.members.RemoveMember(ctx, member.ID); err != nil {
			j.logger.Error("failed to delete temporary member after expiry", "user_id", member.ID, "error", err)
		} else {
			outcome.MemberRemoved = true
		}
	}

	return outcome
}

// SendPreExpiryReminders notifies members whose subscription ends inside the
// calendar-day window exactly the configured number of days out, one reminder
// per qualifying member per run.
func (j *Jobs) SendPreExpiryReminders(ctx context.Context) []ReminderOutcome {
	now := time.Now().UTC()
	windowEnd := now.AddDate(0, 0, j.config.PreExpiryReminderLeadDays)
	windowStart := windowEnd.AddDate(0, 0, -1)

	members, err := j.members.FindMembersExpiringBetween(ctx, windowStart, windowEnd)
	if err != nil {
		j.logger.Error("failed to query members with expiring subscriptions", "error", err)
		return nil
	}

	outcomes := make([]ReminderOutcome, 0, len(members))
	for _, member := range members {
		outcome := ReminderOutcome{MemberID: member.ID}
		if member.ActivePlan == nil || member.CurrentSubscriptionEndDate == nil {
			outcomes = append(outcomes, outcome)
			continue
		}

		notifyCtx, cancel := context.WithTimeout(ctx, notifyTimeout)
		err := j.notifications.SendSubscriptionRenewalReminder(notifyCtx, member.PhoneNumber, *member.ActivePlan, *member.CurrentSubscriptionEndDate)
		cancel()
		if err != nil {
			outcome.Err = err
			j.logger.Error("failed to send renewal reminder", "user_id", member.ID, "error", err)
		} else {
			outcome.Sent = true
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes
}

// SendPostExpiryReminders nudges members whose subscription lapsed within the
// lookback window. To avoid spamming, a member is only reminded on alternating
// days since expiry, and never more than the configured cap across the whole
// lapse; the per-member counter increments on each send.
func (j *Jobs) SendPostExpiryReminders(ctx context.Context) []ReminderOutcome {
	now := time.Now().UTC()
	lookbackStart := now.AddDate(0, 0, -j.config.PostExpiryLookbackDays)

	members, err := j.members.FindMembersExpiredSince(ctx, lookbackStart, now)
	if err != nil {
		j.logger.Error("failed to query members with lapsed subscriptions", "error", err)
		return nil
	}

	outcomes := make([]ReminderOutcome, 0, len(members))
	for _, member := range members {
		outcome := ReminderOutcome{MemberID: member.ID}
		if member.ActivePlan == nil || member.CurrentSubscriptionEndDate == nil {
			outcomes = append(outcomes, outcome)
			continue
		}

		daysSinceExpiry := int(now.Sub(*member.CurrentSubscriptionEndDate).Hours() / 24)
		if daysSinceExpiry%2 != 0 {
			outcomes = append(outcomes, outcome)
			continue
		}
		if member.RenewalReminderCount >= j.config.PostExpiryReminderCap {
			outcomes = append(outcomes, outcome)
			continue
		}

		notifyCtx, cancel := context.WithTimeout(ctx, notifyTimeout)
		err := j.notifications.SendPostExpiryRenewalReminder(notifyCtx, member.PhoneNumber, *member.ActivePlan, *member.CurrentSubscriptionEndDate)
		cancel()
		if err != nil {
			outcome.Err = err
			j.logger.Error("failed to send post-expiry reminder", "user_id", member.ID, "error", err)
			outcomes = append(outcomes, outcome)
			continue
		}

		outcome.Sent = true
		if err := j.members.IncrementRenewalReminderCount(ctx, member.ID); err != nil {
			outcome.Err = err
			j.logger.Error("sent post-expiry reminder but failed to record it; member may be reminded again",
				"user_id", member.ID, "error", err)
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes
}
