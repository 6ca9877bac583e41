package app

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pitchside/membership-service/internal/domain"
	"github.com/pitchside/membership-service/internal/store"
)

// memIdempotencyRepo is an in-memory IdempotencyRepository keyed on
// (key, operation), matching the unique index in PostgreSQL.
type memIdempotencyRepo struct {
	mu      sync.Mutex
	nextID  int64
	records map[[2]string]*domain.IdempotencyKey
}

func newMemIdempotencyRepo() *memIdempotencyRepo {
	return &memIdempotencyRepo{records: make(map[[2]string]*domain.IdempotencyKey)}
}

func (r *memIdempotencyRepo) RegisterIdempotencyKey(ctx context.Context, key, operation string) (*domain.IdempotencyKey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := [2]string{key, operation}
	if _, ok := r.records[k]; ok {
		return nil, store.ErrIdempotencyKeyExists
	}
	r.nextID++
	record := &domain.IdempotencyKey{
		ID:        r.nextID,
		Key:       key,
		Operation: operation,
		CreatedAt: time.Now().UTC(),
	}
	r.records[k] = record
	copied := *record
	return &copied, nil
}

func (r *memIdempotencyRepo) ReleaseIdempotencyKey(ctx context.Context, key, operation string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := [2]string{key, operation}
	if record, ok := r.records[k]; ok && !record.IsProcessed {
		delete(r.records, k)
	}
	return nil
}

func (r *memIdempotencyRepo) FindProcessedIdempotencyKey(ctx context.Context, key, operation string) (*domain.IdempotencyKey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.records[[2]string{key, operation}]
	if !ok || !record.IsProcessed {
		return nil, store.ErrIdempotencyKeyNotFound
	}
	copied := *record
	return &copied, nil
}

func (r *memIdempotencyRepo) SaveIdempotencyResult(ctx context.Context, key, operation string, responseData json.RawMessage) (*domain.IdempotencyKey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := [2]string{key, operation}
	record, ok := r.records[k]
	if !ok {
		r.nextID++
		record = &domain.IdempotencyKey{
			ID:        r.nextID,
			Key:       key,
			Operation: operation,
			CreatedAt: time.Now().UTC(),
		}
		r.records[k] = record
	}
	record.ResponseData = responseData
	record.IsProcessed = true
	copied := *record
	return &copied, nil
}

func (r *memIdempotencyRepo) DeleteIdempotencyKeysBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var deleted int64
	for k, record := range r.records {
		if record.CreatedAt.Before(cutoff) {
			delete(r.records, k)
			deleted++
		}
	}
	return deleted, nil
}

func TestIdempotencyRegisterAndReplay(t *testing.T) {
	svc := NewIdempotencyService(newMemIdempotencyRepo(), testLogger())
	ctx := context.Background()
	key := svc.GenerateKey()

	if _, err := svc.RegisterKey(ctx, key, "transfer_create"); err != nil {
		t.Fatalf("RegisterKey returned error: %v", err)
	}

	// An in-flight attempt must not replay.
	if _, err := svc.FindCompleted(ctx, key, "transfer_create"); !errors.Is(err, store.ErrIdempotencyKeyNotFound) {
		t.Fatalf("expected ErrIdempotencyKeyNotFound before completion, got %v", err)
	}

	// A duplicate registration is rejected rather than restarted.
	if _, err := svc.RegisterKey(ctx, key, "transfer_create"); !errors.Is(err, store.ErrIdempotencyKeyExists) {
		t.Fatalf("expected ErrIdempotencyKeyExists, got %v", err)
	}

	result := map[string]string{"id": "abc-123"}
	if _, err := svc.SaveResult(ctx, key, "transfer_create", result); err != nil {
		t.Fatalf("SaveResult returned error: %v", err)
	}

	cached, err := svc.FindCompleted(ctx, key, "transfer_create")
	if err != nil {
		t.Fatalf("FindCompleted returned error: %v", err)
	}
	var replayed map[string]string
	if err := json.Unmarshal(cached.ResponseData, &replayed); err != nil {
		t.Fatalf("failed to decode cached result: %v", err)
	}
	if replayed["id"] != "abc-123" {
		t.Errorf("expected cached result to round-trip, got %v", replayed)
	}
}

func TestIdempotencyReleaseAllowsRetry(t *testing.T) {
	svc := NewIdempotencyService(newMemIdempotencyRepo(), testLogger())
	ctx := context.Background()
	key := svc.GenerateKey()

	if _, err := svc.RegisterKey(ctx, key, "transfer_create"); err != nil {
		t.Fatalf("RegisterKey returned error: %v", err)
	}

	// The guarded operation failed; releasing the key lets a retry register it
	// again instead of being blocked behind the dead attempt.
	if err := svc.ReleaseKey(ctx, key, "transfer_create"); err != nil {
		t.Fatalf("ReleaseKey returned error: %v", err)
	}
	if _, err := svc.RegisterKey(ctx, key, "transfer_create"); err != nil {
		t.Fatalf("expected re-registration after release, got %v", err)
	}

	// Once a result is saved, release must not discard it.
	if _, err := svc.SaveResult(ctx, key, "transfer_create", map[string]string{"id": "kept"}); err != nil {
		t.Fatalf("SaveResult returned error: %v", err)
	}
	if err := svc.ReleaseKey(ctx, key, "transfer_create"); err != nil {
		t.Fatalf("ReleaseKey returned error: %v", err)
	}
	if _, err := svc.FindCompleted(ctx, key, "transfer_create"); err != nil {
		t.Fatalf("expected the completed record to survive release, got %v", err)
	}
}

func TestIdempotencyKeysAreScopedByOperation(t *testing.T) {
	svc := NewIdempotencyService(newMemIdempotencyRepo(), testLogger())
	ctx := context.Background()
	key := svc.GenerateKey()

	if _, err := svc.RegisterKey(ctx, key, "transfer_create"); err != nil {
		t.Fatalf("RegisterKey returned error: %v", err)
	}
	if _, err := svc.RegisterKey(ctx, key, "other_operation"); err != nil {
		t.Fatalf("expected the same key under a different operation to register, got %v", err)
	}
}

func TestIdempotencyCleanup(t *testing.T) {
	repo := newMemIdempotencyRepo()
	svc := NewIdempotencyService(repo, testLogger())
	ctx := context.Background()

	old, err := svc.RegisterKey(ctx, "old-key", "transfer_create")
	if err != nil {
		t.Fatalf("RegisterKey returned error: %v", err)
	}
	repo.mu.Lock()
	repo.records[[2]string{old.Key, old.Operation}].CreatedAt = time.Now().UTC().AddDate(0, 0, -40)
	repo.mu.Unlock()

	if _, err := svc.RegisterKey(ctx, "fresh-key", "transfer_create"); err != nil {
		t.Fatalf("RegisterKey returned error: %v", err)
	}

	deleted, err := svc.Cleanup(ctx, 30)
	if err != nil {
		t.Fatalf("Cleanup returned error: %v", err)
	}
	if deleted != 1 {
		t.Errorf("expected 1 key purged, got %d", deleted)
	}
	if _, err := svc.RegisterKey(ctx, "fresh-key", "transfer_create"); !errors.Is(err, store.ErrIdempotencyKeyExists) {
		t.Error("expected the fresh key to survive cleanup")
	}
}
