package bookkeeping

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/ledgerflow/backend/internal/domain/bookkeeping"
	"github.com/ledgerflow/backend/internal/domain/guardrail"
	"github.com/ledgerflow/backend/internal/domain/integration"
)

type fakePolicies struct {
	policy   *guardrail.Policy
	profiles map[string]bookkeeping.CounterpartyProfile
	locked   bool
}

func (f *fakePolicies) FindPolicy(context.Context, uuid.UUID, uuid.UUID) (*guardrail.Policy, error) {
	return f.policy, nil
}

func (f *fakePolicies) SavePolicy(_ context.Context, _, _ uuid.UUID, p guardrail.Policy) error {
	f.policy = &p
	return nil
}

func (f *fakePolicies) Counterparty(_ context.Context, _ uuid.UUID, name string) (bookkeeping.CounterpartyProfile, error) {
	return f.profiles[name], nil
}

func (f *fakePolicies) IsPeriodLocked(context.Context, uuid.UUID, time.Time) (bool, error) {
	return f.locked, nil
}

type fakeReviews struct {
	mu    sync.Mutex
	items map[uuid.UUID]bookkeeping.ReviewItem
}

func newFakeReviews() *fakeReviews {
	return &fakeReviews{items: map[uuid.UUID]bookkeeping.ReviewItem{}}
}

func (f *fakeReviews) Enqueue(_ context.Context, item *bookkeeping.ReviewItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.items {
		if existing.Event.ID == item.Event.ID && existing.Open() {
			return bookkeeping.ErrReviewExists
		}
	}
	f.items[item.ID] = *item
	return nil
}

func (f *fakeReviews) FindOpenByEvent(_ context.Context, eventID uuid.UUID) (*bookkeeping.ReviewItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, item := range f.items {
		if item.Event.ID == eventID && item.Open() {
			return &item, nil
		}
	}
	return nil, bookkeeping.ErrReviewNotFound
}

func (f *fakeReviews) FindByID(_ context.Context, id uuid.UUID) (*bookkeeping.ReviewItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[id]
	if !ok {
		return nil, bookkeeping.ErrReviewNotFound
	}
	return &item, nil
}

func (f *fakeReviews) Save(_ context.Context, item *bookkeeping.ReviewItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cur, ok := f.items[item.ID]
	if !ok {
		return bookkeeping.ErrReviewNotFound
	}
	if cur.Version != item.Version {
		return bookkeeping.ErrReviewConflict
	}
	item.Version++
	f.items[item.ID] = *item
	return nil
}

func (f *fakeReviews) ListPending(_ context.Context, userID uuid.UUID, limit int) ([]*bookkeeping.ReviewItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*bookkeeping.ReviewItem
	for _, item := range f.items {
		if item.Event.UserID == userID && item.Status == bookkeeping.ReviewPending && len(out) < limit {
			item := item
			out = append(out, &item)
		}
	}
	return out, nil
}

type fakeTransmissions struct {
	mu      sync.Mutex
	claimed map[string]bool
	refs    map[string]string
}

func newFakeTransmissions() *fakeTransmissions {
	return &fakeTransmissions{claimed: map[string]bool{}, refs: map[string]string{}}
}

func (f *fakeTransmissions) Claim(_ context.Context, id string, _ time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.claimed[id] {
		return false, nil
	}
	f.claimed[id] = true
	return true, nil
}

func (f *fakeTransmissions) Complete(_ context.Context, id, ref string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refs[id] = ref
	return nil
}

func (f *fakeTransmissions) Release(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.claimed, id)
	return nil
}

func (f *fakeTransmissions) VoucherRef(_ context.Context, id string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ref, ok := f.refs[id]
	return ref, ok, nil
}

type fakeAudit struct {
	mu      sync.Mutex
	records []*bookkeeping.AuditRecord
}

func (f *fakeAudit) Append(_ context.Context, rec *bookkeeping.AuditRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, rec)
	return nil
}

func (f *fakeAudit) ListByEvent(_ context.Context, eventID uuid.UUID) ([]*bookkeeping.AuditRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*bookkeeping.AuditRecord
	for _, r := range f.records {
		if r.EventID == eventID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeAudit) outcomes() []bookkeeping.AuditOutcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]bookkeeping.AuditOutcome, len(f.records))
	for i, r := range f.records {
		out[i] = r.Outcome
	}
	return out
}

// MockPlatform is a mock implementation of integration.AccountingPlatform
type MockPlatform struct {
	mock.Mock
}

func (m *MockPlatform) CreateVoucher(ctx context.Context, key integration.CredentialKey, v integration.VoucherRequest) (*integration.VoucherReceipt, error) {
	args := m.Called(ctx, key, v)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integration.VoucherReceipt), args.Error(1)
}

func (m *MockPlatform) GetVoucher(ctx context.Context, key integration.CredentialKey, series string, number int) (*integration.VoucherRequest, error) {
	args := m.Called(ctx, key, series, number)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integration.VoucherRequest), args.Error(1)
}

func (m *MockPlatform) GetCustomers(ctx context.Context, key integration.CredentialKey) ([]integration.Customer, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]integration.Customer), args.Error(1)
}

func (m *MockPlatform) GetAccounts(ctx context.Context, key integration.CredentialKey, year int) ([]integration.RemoteAccount, error) {
	args := m.Called(ctx, key, year)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]integration.RemoteAccount), args.Error(1)
}

func (m *MockPlatform) CreateInvoice(ctx context.Context, key integration.CredentialKey, inv integration.InvoiceRequest) (*integration.InvoiceReceipt, error) {
	args := m.Called(ctx, key, inv)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integration.InvoiceReceipt), args.Error(1)
}

func (m *MockPlatform) ExportSIE(ctx context.Context, key integration.CredentialKey, year int) ([]byte, error) {
	args := m.Called(ctx, key, year)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

type memoryArchive struct {
	objects map[string][]byte
	types   map[string]string
}

func newMemoryArchive() *memoryArchive {
	return &memoryArchive{objects: map[string][]byte{}, types: map[string]string{}}
}

func (a *memoryArchive) Put(_ context.Context, key string, content []byte, contentType string) (string, error) {
	a.objects[key] = content
	a.types[key] = contentType
	return "mem://" + key, nil
}

func (a *memoryArchive) Get(_ context.Context, key string) ([]byte, error) {
	return a.objects[key], nil
}
