/**
 * @description
 * This file builds and dispatches every SMS this service sends: payment
 * instructions, staff alerts, expiry notices, verification outcomes, and the
 * renewal reminders. Message delivery is never on a request's critical path:
 * callers log a failed send and move on, because a lost SMS is recoverable and
 * a rolled-back state transition is not.
 *
 * @dependencies
 * - context, fmt, log/slog, time: Standard Go libraries.
 * - internal/domain: For plan and transfer types.
 */

package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/pitchside/membership-service/internal/domain"
)

// Notifier sends a text message to a phone number. The concrete SMS gateway
// client in pkg/smsclient implements this.
type Notifier interface {
	Send(ctx context.Context, phoneNumber, message string) error
}

// Notifications composes the service's SMS messages and fans staff alerts out
// to every configured admin number.
type Notifications struct {
	notifier    Notifier
	adminPhones []string
	logger      *slog.Logger
}

// NewNotifications creates the notification dispatcher.
func NewNotifications(notifier Notifier, adminPhones []string, logger *slog.Logger) *Notifications {
	return &Notifications{
		notifier:    notifier,
		adminPhones: adminPhones,
		logger:      logger,
	}
}

func formatEndDate(endDate time.Time) string {
	return endDate.Format("January 2, 2006")
}

// SendTransferInstructions tells the member how to complete a freshly created
// payment request.
func (n *Notifications) SendTransferInstructions(ctx context.Context, phone, token string, amount int64, plan domain.SubscriptionPlan) error {
	message := fmt.Sprintf(
		"Your payment request for %s plan ($%d) has been created. Please complete the e-transfer within 48 hours and confirm on the website. Token: %s",
		plan, amount, token,
	)
	return n.notifier.Send(ctx, phone, message)
}

// NotifyAdminsAboutPayment alerts every configured staff number that a member
// confirmed a payment. Individual delivery failures are logged and do not stop
// the fan-out.
func (n *Notifications) NotifyAdminsAboutPayment(ctx context.Context, transferID uuid.UUID, memberName string, amount int64, plan domain.SubscriptionPlan) {
	if len(n.adminPhones) == 0 {
		n.logger.Warn("no admin phone numbers configured for payment notifications")
		return
	}

	message := fmt.Sprintf(
		"New payment confirmation:\n\nID: %s\nMember: %s\nAmount: $%d\nPlan: %s\n\nPlease verify the payment in the admin panel.",
		transferID, memberName, amount, plan,
	)
	for _, phone := range n.adminPhones {
		if err := n.notifier.Send(ctx, phone, message); err != nil {
			n.logger.Error("failed to notify admin about payment confirmation",
				"transfer_id", transferID, "admin_phone", phone, "error", err)
		}
	}
}

// SendTransferExpiryNotification tells the member their payment window closed.
func (n *Notifications) SendTransferExpiryNotification(ctx context.Context, phone string, amount int64, plan domain.SubscriptionPlan) error {
	message := fmt.Sprintf(
		"Your payment request for %s plan ($%d) has expired. Please create a new payment request if you still wish to subscribe.",
		plan, amount,
	)
	return n.notifier.Send(ctx, phone, message)
}

// SendPaymentApprovalNotification tells the member their subscription is active.
func (n *Notifications) SendPaymentApprovalNotification(ctx context.Context, phone string, plan domain.SubscriptionPlan, amount int64, endDate time.Time) error {
	message := fmt.Sprintf(
		"Your payment of $%d for %s plan has been approved! Your subscription is active until %s. Thank you for choosing our academy.",
		amount, plan, formatEndDate(endDate),
	)
	return n.notifier.Send(ctx, phone, message)
}

// SendPaymentRejectionNotification tells the member their payment could not be
// verified, including the staff-supplied reason.
func (n *Notifications) SendPaymentRejectionNotification(ctx context.Context, phone string, plan domain.SubscriptionPlan, amount int64, reason string) error {
	message := fmt.Sprintf(
		"Your payment of $%d for %s plan could not be verified. Reason: %s. Please contact support for assistance.",
		amount, plan, reason,
	)
	return n.notifier.Send(ctx, phone, message)
}

// SendSubscriptionRenewalReminder warns a member their subscription ends soon.
func (n *Notifications) SendSubscriptionRenewalReminder(ctx context.Context, phone string, plan domain.SubscriptionPlan, endDate time.Time) error {
	message := fmt.Sprintf(
		"Reminder: Your %s subscription is expiring on %s. Please renew your subscription to continue training with us.",
		plan, formatEndDate(endDate),
	)
	return n.notifier.Send(ctx, phone, message)
}

// SendPostExpiryRenewalReminder nudges a member whose subscription already ended.
func (n *Notifications) SendPostExpiryRenewalReminder(ctx context.Context, phone string, plan domain.SubscriptionPlan, endDate time.Time) error {
	message := fmt.Sprintf(
		"Your %s subscription expired on %s. Please renew within the next few days to avoid losing your spot. Contact support for assistance.",
		plan, formatEndDate(endDate),
	)
	return n.notifier.Send(ctx, phone, message)
}
