/**
 * @description
 * Typed failures surfaced by the transfer state machine. Validation failures
 * (identity conflict, expired deadline, illegal transition) are returned to the
 * caller synchronously; side-effect failures after a committed transition are
 * logged instead and never reach these types.
 */

package app

import (
	"errors"
	"fmt"

	"github.com/pitchside/membership-service/internal/domain"
)

var (
	// ErrIdentityConflict means the supplied identity hint did not match the
	// member record. Nothing is created in this case.
	ErrIdentityConflict = errors.New("member information does not match our records")

	// ErrTransferExpired means the transfer's 48-hour payment window has
	// passed. Distinct from not-found so the caller can render different
	// guidance.
	ErrTransferExpired = errors.New("transfer request has expired")

	// ErrRateLimited means the member has created too many transfer requests
	// inside the rate-limit window.
	ErrRateLimited = errors.New("too many transfer requests, please try again later")
)

// InvalidStatusError reports a transition attempted from the wrong state,
// naming the transfer's current status.
type InvalidStatusError struct {
	Action string
	Status domain.TransferStatus
}

func (e *InvalidStatusError) Error() string {
	return fmt.Sprintf("cannot %s transfer with status: %s", e.Action, e.Status)
}
