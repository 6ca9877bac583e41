/**
 * @description
 * This file defines the minimal view of a member that the payment core consumes
 * from the member directory. Full profile CRUD lives outside this service; only
 * the fields needed for identity verification, subscription grants, and renewal
 * reminders appear here.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// Member is the slice of a member record this service reads and updates.
// A temporary member was created provisionally during registration and is
// deleted again if their first payment is rejected or expires.
type Member struct {
	ID                         uuid.UUID         `json:"id"`
	FullName                   string            `json:"full_name"`
	PhoneNumber                string            `json:"phone_number"`
	IsTemporary                bool              `json:"is_temporary"`
	ActivePlan                 *SubscriptionPlan `json:"active_plan,omitempty"`
	CurrentSubscriptionEndDate *time.Time        `json:"current_subscription_end_date,omitempty"`
	SubscriptionCounter        int               `json:"subscription_counter"`
	RenewalReminderCount       int               `json:"renewal_reminder_count"`
}
