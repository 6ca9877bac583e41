package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pitchside/membership-service/internal/config"
	"github.com/pitchside/membership-service/internal/domain"
	"github.com/pitchside/membership-service/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() config.Config {
	return config.Config{
		Currency:                  "usd",
		FirstTimePaymentAmount:    425,
		FirstTimePaymentMinimum:   400,
		RenewalPaymentAmount:      350,
		RenewalPaymentMinimum:     300,
		TransferExpiryHours:       48,
		IdempotencyRetentionDays:  30,
		PreExpiryReminderLeadDays: 2,
		PostExpiryLookbackDays:    10,
		PostExpiryReminderCap:     5,
	}
}

// memTransferRepo is an in-memory TransferRepository with the same guard
// semantics as the PostgreSQL implementation.
type memTransferRepo struct {
	mu        sync.Mutex
	transfers map[uuid.UUID]*domain.Transfer
}

func newMemTransferRepo() *memTransferRepo {
	return &memTransferRepo{transfers: make(map[uuid.UUID]*domain.Transfer)}
}

func (r *memTransferRepo) CreatePendingTransfer(ctx context.Context, transfer *domain.Transfer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.transfers {
		if t.UserID == transfer.UserID && t.Status == domain.TransferStatusPending {
			return store.ErrPendingTransferExists
		}
	}
	now := time.Now().UTC()
	transfer.CreatedAt = now
	transfer.UpdatedAt = now
	copied := *transfer
	r.transfers[transfer.ID] = &copied
	return nil
}

func (r *memTransferRepo) FindTransferByID(ctx context.Context, id uuid.UUID) (*domain.Transfer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.transfers[id]
	if !ok {
		return nil, store.ErrTransferNotFound
	}
	copied := *t
	return &copied, nil
}

func (r *memTransferRepo) FindTransferByToken(ctx context.Context, token string) (*domain.Transfer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.transfers {
		if t.Token == token {
			copied := *t
			return &copied, nil
		}
	}
	return nil, store.ErrTransferNotFound
}

func (r *memTransferRepo) FindPendingTransferByUser(ctx context.Context, userID uuid.UUID) (*domain.Transfer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.transfers {
		if t.UserID == userID && t.Status == domain.TransferStatusPending {
			copied := *t
			return &copied, nil
		}
	}
	return nil, store.ErrTransferNotFound
}

func (r *memTransferRepo) FindExpiredPendingTransfers(ctx context.Context, asOf time.Time) ([]domain.Transfer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var stale []domain.Transfer
	for _, t := range r.transfers {
		if t.Status == domain.TransferStatusPending && t.ExpiryDate != nil && asOf.After(*t.ExpiryDate) {
			stale = append(stale, *t)
		}
	}
	return stale, nil
}

func (r *memTransferRepo) ListTransfersByUser(ctx context.Context, userID uuid.UUID) ([]domain.Transfer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Transfer
	for _, t := range r.transfers {
		if t.UserID == userID {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (r *memTransferRepo) ListTransfersByStatus(ctx context.Context, status *domain.TransferStatus) ([]domain.Transfer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Transfer
	for _, t := range r.transfers {
		if status == nil || t.Status == *status {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (r *memTransferRepo) ListTransfersAwaitingVerification(ctx context.Context) ([]domain.Transfer, error) {
	confirmed := domain.TransferStatusConfirmed
	return r.ListTransfersByStatus(ctx, &confirmed)
}

func (r *memTransferRepo) transition(id uuid.UUID, from domain.TransferStatus, apply func(*domain.Transfer)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.transfers[id]
	if !ok {
		return store.ErrTransferNotFound
	}
	if t.Status != from {
		return store.ErrTransferStatusConflict
	}
	apply(t)
	t.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *memTransferRepo) MarkTransferConfirmed(ctx context.Context, id uuid.UUID, confirmedAt time.Time) error {
	return r.transition(id, domain.TransferStatusPending, func(t *domain.Transfer) {
		t.Status = domain.TransferStatusConfirmed
		t.ConfirmedByUser = true
		t.ConfirmedAt = &confirmedAt
	})
}

func (r *memTransferRepo) MarkTransferExpired(ctx context.Context, id uuid.UUID) error {
	return r.transition(id, domain.TransferStatusPending, func(t *domain.Transfer) {
		t.Status = domain.TransferStatusExpired
	})
}

func (r *memTransferRepo) MarkTransferVerified(ctx context.Context, id uuid.UUID, adminID uuid.UUID, notes *string, verifiedAt time.Time, subscriptionEndDate time.Time) error {
	return r.transition(id, domain.TransferStatusConfirmed, func(t *domain.Transfer) {
		t.Status = domain.TransferStatusVerified
		t.VerifiedByAdmin = true
		t.AdminID = &adminID
		t.AdminNotes = notes
		t.VerifiedAt = &verifiedAt
		t.SubscriptionEndDate = &subscriptionEndDate
		t.ExpiryDate = nil
	})
}

func (r *memTransferRepo) MarkTransferRejected(ctx context.Context, id uuid.UUID, adminID uuid.UUID, notes *string, verifiedAt time.Time) error {
	return r.transition(id, domain.TransferStatusConfirmed, func(t *domain.Transfer) {
		t.Status = domain.TransferStatusRejected
		t.AdminID = &adminID
		t.AdminNotes = notes
		t.VerifiedAt = &verifiedAt
	})
}

// memMemberDirectory is an in-memory MemberDirectory that records grants and
// removals.
type memMemberDirectory struct {
	mu      sync.Mutex
	members map[uuid.UUID]*domain.Member
	removed []uuid.UUID
}

func newMemMemberDirectory(members ...*domain.Member) *memMemberDirectory {
	d := &memMemberDirectory{members: make(map[uuid.UUID]*domain.Member)}
	for _, m := range members {
		d.members[m.ID] = m
	}
	return d
}

func (d *memMemberDirectory) FindMemberByID(ctx context.Context, id uuid.UUID) (*domain.Member, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	m, ok := d.members[id]
	if !ok {
		return nil, store.ErrMemberNotFound
	}
	copied := *m
	return &copied, nil
}

func (d *memMemberDirectory) UpdateMemberSubscription(ctx context.Context, id uuid.UUID, plan domain.SubscriptionPlan, endDate time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	m, ok := d.members[id]
	if !ok {
		return store.ErrMemberNotFound
	}
	m.ActivePlan = &plan
	m.CurrentSubscriptionEndDate = &endDate
	m.IsTemporary = false
	m.SubscriptionCounter++
	m.RenewalReminderCount = 0
	return nil
}

func (d *memMemberDirectory) RemoveMember(ctx context.Context, id uuid.UUID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.members[id]; !ok {
		return store.ErrMemberNotFound
	}
	delete(d.members, id)
	d.removed = append(d.removed, id)
	return nil
}

func (d *memMemberDirectory) FindMembersExpiringBetween(ctx context.Context, start, end time.Time) ([]domain.Member, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []domain.Member
	for _, m := range d.members {
		if m.CurrentSubscriptionEndDate == nil {
			continue
		}
		if m.CurrentSubscriptionEndDate.After(start) && m.CurrentSubscriptionEndDate.Before(end) {
			out = append(out, *m)
		}
	}
	return out, nil
}

func (d *memMemberDirectory) FindMembersExpiredSince(ctx context.Context, since, until time.Time) ([]domain.Member, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []domain.Member
	for _, m := range d.members {
		if m.CurrentSubscriptionEndDate == nil {
			continue
		}
		if m.CurrentSubscriptionEndDate.After(since) && m.CurrentSubscriptionEndDate.Before(until) {
			out = append(out, *m)
		}
	}
	return out, nil
}

func (d *memMemberDirectory) IncrementRenewalReminderCount(ctx context.Context, id uuid.UUID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	m, ok := d.members[id]
	if !ok {
		return store.ErrMemberNotFound
	}
	m.RenewalReminderCount++
	return nil
}

type sentMessage struct {
	phone   string
	message string
}

// recordingNotifier captures every SMS. Sends to a phone listed in failPhones
// report errSendFailed.
type recordingNotifier struct {
	mu         sync.Mutex
	sent       []sentMessage
	failPhones map[string]bool
}

var errSendFailed = errors.New("sms gateway unavailable")

func (n *recordingNotifier) Send(ctx context.Context, phoneNumber, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.failPhones[phoneNumber] {
		return errSendFailed
	}
	n.sent = append(n.sent, sentMessage{phone: phoneNumber, message: message})
	return nil
}

func (n *recordingNotifier) sentTo(phone string) []sentMessage {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []sentMessage
	for _, m := range n.sent {
		if m.phone == phone {
			out = append(out, m)
		}
	}
	return out
}

type serviceFixture struct {
	service   *Service
	transfers *memTransferRepo
	members   *memMemberDirectory
	notifier  *recordingNotifier
}

func newServiceFixture(t *testing.T, adminPhones []string, members ...*domain.Member) *serviceFixture {
	t.Helper()
	transfers := newMemTransferRepo()
	directory := newMemMemberDirectory(members...)
	notifier := &recordingNotifier{failPhones: make(map[string]bool)}
	notifications := NewNotifications(notifier, adminPhones, testLogger())
	service := NewService(transfers, directory, notifications, nil, testConfig(), testLogger())
	return &serviceFixture{
		service:   service,
		transfers: transfers,
		members:   directory,
		notifier:  notifier,
	}
}

func newMember(counter int, temporary bool) *domain.Member {
	return &domain.Member{
		ID:                  uuid.New(),
		FullName:            "Jordan Avery",
		PhoneNumber:         "+15550001111",
		IsTemporary:         temporary,
		SubscriptionCounter: counter,
	}
}

func TestCreateTransferFirstTimeNormalizesAmount(t *testing.T) {
	member := newMember(0, true)
	f := newServiceFixture(t, nil, member)

	transfer, err := f.service.CreateTransfer(context.Background(), member.ID, CreateTransferInput{
		Plan:   domain.PlanU9U12,
		Amount: 50,
	})
	if err != nil {
		t.Fatalf("CreateTransfer returned error: %v", err)
	}

	if transfer.Amount != 425 {
		t.Errorf("expected first-time amount normalized to 425, got %d", transfer.Amount)
	}
	if !transfer.IsFirstTimePayment {
		t.Error("expected transfer to be marked as first-time payment")
	}
	if transfer.Status != domain.TransferStatusPending {
		t.Errorf("expected status pending, got %s", transfer.Status)
	}
	if transfer.Token == "" {
		t.Error("expected a non-empty token")
	}
	if transfer.ExpiryDate == nil {
		t.Fatal("expected an expiry date")
	}
	untilExpiry := time.Until(*transfer.ExpiryDate)
	if untilExpiry < 47*time.Hour || untilExpiry > 49*time.Hour {
		t.Errorf("expected expiry roughly 48h out, got %v", untilExpiry)
	}

	instructions := f.notifier.sentTo(member.PhoneNumber)
	if len(instructions) != 1 {
		t.Fatalf("expected exactly one instruction SMS, got %d", len(instructions))
	}
	if !strings.Contains(instructions[0].message, transfer.Token) {
		t.Error("expected instruction SMS to contain the transfer token")
	}
}

func TestCreateTransferRenewalAmounts(t *testing.T) {
	member := newMember(3, false)
	f := newServiceFixture(t, nil, member)

	transfer, err := f.service.CreateTransfer(context.Background(), member.ID, CreateTransferInput{
		Plan:   domain.PlanU13U14,
		Amount: 1,
	})
	if err != nil {
		t.Fatalf("CreateTransfer returned error: %v", err)
	}
	if transfer.Amount != 350 {
		t.Errorf("expected renewal amount normalized to 350, got %d", transfer.Amount)
	}
	if transfer.IsFirstTimePayment {
		t.Error("expected renewal not to be marked first-time")
	}
}

func TestCreateTransferKeepsAmountAboveMinimum(t *testing.T) {
	member := newMember(1, false)
	f := newServiceFixture(t, nil, member)

	transfer, err := f.service.CreateTransfer(context.Background(), member.ID, CreateTransferInput{
		Plan:   domain.PlanU15U18,
		Amount: 500,
	})
	if err != nil {
		t.Fatalf("CreateTransfer returned error: %v", err)
	}
	if transfer.Amount != 500 {
		t.Errorf("expected requested amount above the minimum to pass through, got %d", transfer.Amount)
	}
}

func TestCreateTransferReturnsExistingPending(t *testing.T) {
	member := newMember(0, false)
	f := newServiceFixture(t, nil, member)

	first, err := f.service.CreateTransfer(context.Background(), member.ID, CreateTransferInput{
		Plan:   domain.PlanU5U8,
		Amount: 425,
	})
	if err != nil {
		t.Fatalf("first CreateTransfer returned error: %v", err)
	}

	second, err := f.service.CreateTransfer(context.Background(), member.ID, CreateTransferInput{
		Plan:   domain.PlanU5U8,
		Amount: 425,
	})
	if err != nil {
		t.Fatalf("second CreateTransfer returned error: %v", err)
	}

	if second.ID != first.ID || second.Token != first.Token {
		t.Error("expected second create to return the existing pending transfer")
	}
	if got := len(f.notifier.sentTo(member.PhoneNumber)); got != 1 {
		t.Errorf("expected exactly one instruction SMS across both creates, got %d", got)
	}
}

func TestCreateTransferIdentityMismatch(t *testing.T) {
	member := newMember(0, false)
	f := newServiceFixture(t, nil, member)

	_, err := f.service.CreateTransfer(context.Background(), member.ID, CreateTransferInput{
		Plan:        domain.PlanU5U8,
		Amount:      425,
		FullName:    member.FullName,
		PhoneNumber: "+15559998888",
	})
	if !errors.Is(err, ErrIdentityConflict) {
		t.Fatalf("expected ErrIdentityConflict, got %v", err)
	}

	if len(f.transfers.transfers) != 0 {
		t.Error("expected no transfer to be created on identity mismatch")
	}
	if len(f.notifier.sent) != 0 {
		t.Error("expected no SMS on identity mismatch")
	}
}

func TestCreateTransferIdentityMatchIsCaseInsensitive(t *testing.T) {
	member := newMember(0, false)
	f := newServiceFixture(t, nil, member)

	_, err := f.service.CreateTransfer(context.Background(), member.ID, CreateTransferInput{
		Plan:        domain.PlanU5U8,
		Amount:      425,
		FullName:    "  jordan avery ",
		PhoneNumber: member.PhoneNumber,
	})
	if err != nil {
		t.Fatalf("expected case-insensitive name match to succeed, got %v", err)
	}
}

func TestCreateTransferUnknownMember(t *testing.T) {
	f := newServiceFixture(t, nil)

	_, err := f.service.CreateTransfer(context.Background(), uuid.New(), CreateTransferInput{
		Plan:   domain.PlanU5U8,
		Amount: 425,
	})
	if !errors.Is(err, store.ErrMemberNotFound) {
		t.Fatalf("expected ErrMemberNotFound, got %v", err)
	}
}

func TestCreateTransferUnknownPlan(t *testing.T) {
	member := newMember(0, false)
	f := newServiceFixture(t, nil, member)

	_, err := f.service.CreateTransfer(context.Background(), member.ID, CreateTransferInput{
		Plan:   domain.SubscriptionPlan("U99"),
		Amount: 425,
	})
	if err == nil {
		t.Fatal("expected an error for an unknown plan")
	}
}

func TestGetTransferByTokenLazilyExpires(t *testing.T) {
	member := newMember(0, false)
	f := newServiceFixture(t, nil, member)

	transfer := seedPendingTransfer(t, f, member, -time.Hour)

	got, err := f.service.GetTransferByToken(context.Background(), transfer.Token)
	if err != nil {
		t.Fatalf("GetTransferByToken returned error: %v", err)
	}
	if got.Status != domain.TransferStatusExpired {
		t.Errorf("expected lazily expired status, got %s", got.Status)
	}

	stored, err := f.transfers.FindTransferByID(context.Background(), transfer.ID)
	if err != nil {
		t.Fatalf("FindTransferByID returned error: %v", err)
	}
	if stored.Status != domain.TransferStatusExpired {
		t.Errorf("expected stored status expired, got %s", stored.Status)
	}
}

func TestConfirmTransfer(t *testing.T) {
	member := newMember(0, false)
	adminPhones := []string{"+15557770001", "+15557770002"}
	f := newServiceFixture(t, adminPhones, member)

	transfer := seedPendingTransfer(t, f, member, 24*time.Hour)

	confirmed, err := f.service.ConfirmTransfer(context.Background(), transfer.Token)
	if err != nil {
		t.Fatalf("ConfirmTransfer returned error: %v", err)
	}
	if confirmed.Status != domain.TransferStatusConfirmed {
		t.Errorf("expected status confirmed, got %s", confirmed.Status)
	}
	if !confirmed.ConfirmedByUser || confirmed.ConfirmedAt == nil {
		t.Error("expected confirmation fields to be set")
	}

	for _, phone := range adminPhones {
		alerts := f.notifier.sentTo(phone)
		if len(alerts) != 1 {
			t.Fatalf("expected one staff alert to %s, got %d", phone, len(alerts))
		}
		if !strings.Contains(alerts[0].message, member.FullName) {
			t.Error("expected staff alert to name the member")
		}
	}
}

func TestConfirmTransferAfterDeadline(t *testing.T) {
	member := newMember(0, false)
	f := newServiceFixture(t, nil, member)

	transfer := seedPendingTransfer(t, f, member, -time.Hour)

	_, err := f.service.ConfirmTransfer(context.Background(), transfer.Token)
	if !errors.Is(err, ErrTransferExpired) {
		t.Fatalf("expected ErrTransferExpired, got %v", err)
	}

	stored, err := f.transfers.FindTransferByID(context.Background(), transfer.ID)
	if err != nil {
		t.Fatalf("FindTransferByID returned error: %v", err)
	}
	if stored.Status != domain.TransferStatusExpired {
		t.Errorf("expected late confirmation to persist the expiry, got %s", stored.Status)
	}
}

func TestConfirmTransferTwice(t *testing.T) {
	member := newMember(0, false)
	f := newServiceFixture(t, nil, member)

	transfer := seedPendingTransfer(t, f, member, 24*time.Hour)
	if _, err := f.service.ConfirmTransfer(context.Background(), transfer.Token); err != nil {
		t.Fatalf("first ConfirmTransfer returned error: %v", err)
	}

	_, err := f.service.ConfirmTransfer(context.Background(), transfer.Token)
	var statusErr *InvalidStatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected InvalidStatusError, got %v", err)
	}
	if statusErr.Status != domain.TransferStatusConfirmed {
		t.Errorf("expected error to carry status confirmed, got %s", statusErr.Status)
	}
}

func TestVerifyTransferApproval(t *testing.T) {
	member := newMember(0, true)
	f := newServiceFixture(t, nil, member)
	adminID := uuid.New()

	transfer := seedPendingTransfer(t, f, member, 24*time.Hour)
	if _, err := f.service.ConfirmTransfer(context.Background(), transfer.Token); err != nil {
		t.Fatalf("ConfirmTransfer returned error: %v", err)
	}

	before := time.Now().UTC()
	verified, err := f.service.VerifyTransfer(context.Background(), transfer.ID, adminID, true, nil)
	if err != nil {
		t.Fatalf("VerifyTransfer returned error: %v", err)
	}

	if verified.Status != domain.TransferStatusVerified {
		t.Errorf("expected status verified, got %s", verified.Status)
	}
	if verified.SubscriptionEndDate == nil {
		t.Fatal("expected a subscription end date")
	}
	expectedEnd := before.AddDate(0, 2, 0)
	if diff := verified.SubscriptionEndDate.Sub(expectedEnd); diff < -time.Minute || diff > time.Minute {
		t.Errorf("expected end date two calendar months out, got %v (off by %v)", verified.SubscriptionEndDate, diff)
	}
	if verified.ExpiryDate != nil {
		t.Error("expected the request deadline to be cleared on approval")
	}

	granted, err := f.members.FindMemberByID(context.Background(), member.ID)
	if err != nil {
		t.Fatalf("FindMemberByID returned error: %v", err)
	}
	if granted.ActivePlan == nil || *granted.ActivePlan != transfer.Plan {
		t.Error("expected the plan to be granted on approval")
	}
	if granted.IsTemporary {
		t.Error("expected the temporary flag to clear on approval")
	}
	if granted.SubscriptionCounter != 1 {
		t.Errorf("expected subscription counter 1, got %d", granted.SubscriptionCounter)
	}

	approvals := f.notifier.sentTo(member.PhoneNumber)
	if len(approvals) < 1 || !strings.Contains(approvals[len(approvals)-1].message, "approved") {
		t.Error("expected an approval SMS")
	}
}

func TestVerifyTransferRejectionRemovesTemporaryMember(t *testing.T) {
	member := newMember(0, true)
	f := newServiceFixture(t, nil, member)
	adminID := uuid.New()
	notes := "Amount did not match any incoming transfer"

	transfer := seedPendingTransfer(t, f, member, 24*time.Hour)
	if _, err := f.service.ConfirmTransfer(context.Background(), transfer.Token); err != nil {
		t.Fatalf("ConfirmTransfer returned error: %v", err)
	}

	rejected, err := f.service.VerifyTransfer(context.Background(), transfer.ID, adminID, false, &notes)
	if err != nil {
		t.Fatalf("VerifyTransfer returned error: %v", err)
	}
	if rejected.Status != domain.TransferStatusRejected {
		t.Errorf("expected status rejected, got %s", rejected.Status)
	}

	if len(f.members.removed) != 1 || f.members.removed[0] != member.ID {
		t.Error("expected the temporary member to be removed on rejection")
	}

	rejections := f.notifier.sentTo(member.PhoneNumber)
	if len(rejections) < 1 || !strings.Contains(rejections[len(rejections)-1].message, notes) {
		t.Error("expected a rejection SMS carrying the staff reason")
	}
}

func TestVerifyTransferRequiresConfirmedStatus(t *testing.T) {
	member := newMember(0, false)
	f := newServiceFixture(t, nil, member)

	transfer := seedPendingTransfer(t, f, member, 24*time.Hour)

	_, err := f.service.VerifyTransfer(context.Background(), transfer.ID, uuid.New(), true, nil)
	var statusErr *InvalidStatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected InvalidStatusError, got %v", err)
	}

	granted, findErr := f.members.FindMemberByID(context.Background(), member.ID)
	if findErr != nil {
		t.Fatalf("FindMemberByID returned error: %v", findErr)
	}
	if granted.ActivePlan != nil {
		t.Error("expected no plan grant before verification")
	}
}

// seedPendingTransfer creates a pending transfer directly in the repository
// with the deadline the given duration from now.
func seedPendingTransfer(t *testing.T, f *serviceFixture, member *domain.Member, untilExpiry time.Duration) *domain.Transfer {
	t.Helper()
	expiry := time.Now().UTC().Add(untilExpiry)
	transfer := &domain.Transfer{
		ID:                 uuid.New(),
		Token:              uuid.NewString(),
		UserID:             member.ID,
		Plan:               domain.PlanU9U12,
		Amount:             425,
		Currency:           "usd",
		Status:             domain.TransferStatusPending,
		IsFirstTimePayment: member.SubscriptionCounter == 0,
		ExpiryDate:         &expiry,
	}
	if err := f.transfers.CreatePendingTransfer(context.Background(), transfer); err != nil {
		t.Fatalf("failed to seed pending transfer: %v", err)
	}
	return transfer
}
