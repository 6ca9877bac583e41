/**
 * @description
 * This file defines the Transfer domain model and its associated enums. A Transfer
 * represents one bank-transfer payment cycle: a member requests a subscription,
 * pays out-of-band, confirms the payment, and a staff member verifies it.
 *
 * @dependencies
 * - time: Standard Go library.
 * - github.com/google/uuid: For transfer and member identifiers.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// TransferStatus enumerates the states of the transfer lifecycle.
// Transitions are monotonic: pending -> {confirmed, expired},
// confirmed -> {verified, rejected}. Verified, rejected, and expired
// are terminal for the cycle.
type TransferStatus string

const (
	TransferStatusPending   TransferStatus = "pending"
	TransferStatusConfirmed TransferStatus = "confirmed" // member confirmed they made the payment
	TransferStatusVerified  TransferStatus = "verified"  // staff verified the payment
	TransferStatusRejected  TransferStatus = "rejected"  // staff rejected the payment
	TransferStatusExpired   TransferStatus = "expired"   // payment request expired unconfirmed
)

// SubscriptionPlan enumerates the academy's age-group membership tiers.
type SubscriptionPlan string

const (
	PlanU5U8   SubscriptionPlan = "U5_U8"
	PlanU9U12  SubscriptionPlan = "U9_U12"
	PlanU13U14 SubscriptionPlan = "U13_U14"
	PlanU15U18 SubscriptionPlan = "U15_U18"
)

// IsValid reports whether the plan is one of the known membership tiers.
func (p SubscriptionPlan) IsValid() bool {
	switch p {
	case PlanU5U8, PlanU9U12, PlanU13U14, PlanU15U18:
		return true
	}
	return false
}

// Transfer is one payment-request cycle for a member's subscription.
// The Token is a separate unguessable identifier used for member-facing
// lookup so that public links cannot enumerate internal ids.
type Transfer struct {
	ID                  uuid.UUID        `json:"id"`
	Token               string           `json:"token"`
	UserID              uuid.UUID        `json:"user_id"`
	Plan                SubscriptionPlan `json:"plan"`
	Amount              int64            `json:"amount"`
	Currency            string           `json:"currency"`
	Status              TransferStatus   `json:"status"`
	IsFirstTimePayment  bool             `json:"is_first_time_payment"`
	ConfirmedByUser     bool             `json:"confirmed_by_user"`
	VerifiedByAdmin     bool             `json:"verified_by_admin"`
	AdminID             *uuid.UUID       `json:"admin_id,omitempty"`
	AdminNotes          *string          `json:"admin_notes,omitempty"`
	ConfirmedAt         *time.Time       `json:"confirmed_at,omitempty"`
	VerifiedAt          *time.Time       `json:"verified_at,omitempty"`
	SubscriptionEndDate *time.Time       `json:"subscription_end_date,omitempty"`
	ExpiryDate          *time.Time       `json:"expiry_date,omitempty"`
	CreatedAt           time.Time        `json:"created_at"`
	UpdatedAt           time.Time        `json:"updated_at"`
}

// IsExpiredAt reports whether a pending transfer's deadline has passed.
// Non-pending transfers carry no deadline and never report expired.
func (t *Transfer) IsExpiredAt(now time.Time) bool {
	return t.Status == TransferStatusPending && t.ExpiryDate != nil && now.After(*t.ExpiryDate)
}
