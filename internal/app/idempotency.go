/**
 * @description
 * This file implements the idempotency-key ledger that makes client retries of
 * non-idempotent operations safe. A caller registers a key before performing a
 * guarded operation, saves the serialized result once it completes, and any
 * replay of the same key short-circuits to the cached result instead of
 * re-invoking the side effect.
 *
 * @dependencies
 * - context, encoding/json, fmt, log/slog, time: Standard Go libraries.
 * - github.com/google/uuid: For key generation.
 * - internal/domain, internal/store: Ledger model and persistence.
 */

package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/pitchside/membership-service/internal/domain"
	"github.com/pitchside/membership-service/internal/store"
)

// IdempotencyService wraps the ledger repository with the operations callers
// use to guard retried requests.
type IdempotencyService struct {
	repo   store.IdempotencyRepository
	logger *slog.Logger
}

// NewIdempotencyService creates a new ledger service.
func NewIdempotencyService(repo store.IdempotencyRepository, logger *slog.Logger) *IdempotencyService {
	return &IdempotencyService{repo: repo, logger: logger}
}

// GenerateKey mints a fresh idempotency key for callers that want the server
// to scope an attempt.
func (s *IdempotencyService) GenerateKey() string {
	return uuid.NewString()
}

// RegisterKey records the start of a new logical attempt. A duplicate
// (key, operation) registration reports store.ErrIdempotencyKeyExists; the
// caller should then fetch the cached result instead of re-running the
// operation.
func (s *IdempotencyService) RegisterKey(ctx context.Context, key, operation string) (*domain.IdempotencyKey, error) {
	record, err := s.repo.RegisterIdempotencyKey(ctx, key, operation)
	if err != nil {
		return nil, err
	}
	return record, nil
}

// ReleaseKey frees a registration whose guarded operation failed before
// producing a result, so the client can retry with the same key instead of
// being stuck behind a dead attempt. A key whose result was already saved is
// left in place.
func (s *IdempotencyService) ReleaseKey(ctx context.Context, key, operation string) error {
	return s.repo.ReleaseIdempotencyKey(ctx, key, operation)
}

// FindCompleted returns the cached record only when the guarded operation has
// finished. An in-flight record is reported as store.ErrIdempotencyKeyNotFound
// so a racing caller never replays a partial result.
func (s *IdempotencyService) FindCompleted(ctx context.Context, key, operation string) (*domain.IdempotencyKey, error) {
	return s.repo.FindProcessedIdempotencyKey(ctx, key, operation)
}

// SaveResult caches the operation's result and marks the attempt processed.
// Concurrent savers with the same key resolve in the database; the loser
// observes a completed record and reuses it.
func (s *IdempotencyService) SaveResult(ctx context.Context, key, operation string, result any) (*domain.IdempotencyKey, error) {
	payload, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize idempotency result: %w", err)
	}
	return s.repo.SaveIdempotencyResult(ctx, key, operation, payload)
}

// Cleanup purges ledger rows older than the retention window. Not
// safety-critical; failures are logged by the scheduler pass that calls it.
func (s *IdempotencyService) Cleanup(ctx context.Context, retentionDays int) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)
	deleted, err := s.repo.DeleteIdempotencyKeysBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		s.logger.Info("purged old idempotency keys", "deleted", deleted, "retention_days", retentionDays)
	}
	return deleted, nil
}
