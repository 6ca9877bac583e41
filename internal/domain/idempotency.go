/**
 * @description
 * This file defines the idempotency-key record used to make retried operations
 * safe. One record exists per (key, operation) pair; the cached response is
 * replayed to any retry that arrives after the first attempt completed.
 */

package domain

import (
	"encoding/json"
	"time"
)

// IdempotencyKey records whether an operation identified by a caller-supplied
// key has already completed, and caches its serialized result for replays.
type IdempotencyKey struct {
	ID           int64           `json:"id"`
	Key          string          `json:"key"`
	Operation    string          `json:"operation"`
	ResponseData json.RawMessage `json:"response_data,omitempty"`
	IsProcessed  bool            `json:"is_processed"`
	CreatedAt    time.Time       `json:"created_at"`
}
