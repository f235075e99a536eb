package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/channel-UCJcHjib4Hs6nikJXoImc-QA/woocommerce-gateway-amazon-pay/internal/client"
	"github.com/channel-UCJcHjib4Hs6nikJXoImc-QA/woocommerce-gateway-amazon-pay/internal/domain/reference"
	"github.com/channel-UCJcHjib4Hs6nikJXoImc-QA/woocommerce-gateway-amazon-pay/internal/gate"
	"github.com/channel-UCJcHjib4Hs6nikJXoImc-QA/woocommerce-gateway-amazon-pay/internal/observer"
)

// --- Metadata Repository Mock ---

// MockMetadataRepository is an in-memory implementation of
// store.MetadataRepository.
type MockMetadataRepository struct {
	mu   sync.Mutex
	meta map[string]map[string][]string

	GetFunc func(ctx context.Context, orderID, key string) (string, error)
	SetFunc func(ctx context.Context, orderID, key, value string) error
	AddFunc func(ctx context.Context, orderID, key, value string) error
}

func NewMockMetadataRepository() *MockMetadataRepository {
	return &MockMetadataRepository{meta: make(map[string]map[string][]string)}
}

func (m *MockMetadataRepository) Get(ctx context.Context, orderID, key string) (string, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, orderID, key)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	values := m.meta[orderID][key]
	if len(values) == 0 {
		return "", nil
	}
	return values[0], nil
}

func (m *MockMetadataRepository) Set(ctx context.Context, orderID, key, value string) error {
	if m.SetFunc != nil {
		return m.SetFunc(ctx, orderID, key, value)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.meta[orderID] == nil {
		m.meta[orderID] = make(map[string][]string)
	}
	m.meta[orderID][key] = []string{value}
	return nil
}

func (m *MockMetadataRepository) Add(ctx context.Context, orderID, key, value string) error {
	if m.AddFunc != nil {
		return m.AddFunc(ctx, orderID, key, value)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.meta[orderID] == nil {
		m.meta[orderID] = make(map[string][]string)
	}
	for _, v := range m.meta[orderID][key] {
		if v == value {
			return nil
		}
	}
	m.meta[orderID][key] = append(m.meta[orderID][key], value)
	return nil
}

func (m *MockMetadataRepository) GetAll(ctx context.Context, orderID, key string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	values := m.meta[orderID][key]
	out := make([]string, len(values))
	copy(out, values)
	return out, nil
}

// --- Provider Client Mock ---

// MockClient is a mock implementation of client.Client. Calls record
// the idempotency tokens they were given.
type MockClient struct {
	mu      sync.Mutex
	variant gate.Variant
	Tokens  []string

	CreateReferenceFunc     func(ctx context.Context, req client.CreateReferenceRequest) (*client.ReferenceResult, error)
	AuthorizeFunc           func(ctx context.Context, referenceID string, amount reference.Amount, token string) (*client.AuthorizationResult, error)
	CaptureFunc             func(ctx context.Context, authorizationID string, amount reference.Amount, token string) (*client.CaptureResult, error)
	RefundFunc              func(ctx context.Context, captureID string, amount reference.Amount, token string) (*client.RefundResult, error)
	GetReferenceDetailsFunc func(ctx context.Context, referenceID string) (*client.ReferenceSnapshot, error)
}

func NewMockClient(variant gate.Variant) *MockClient {
	return &MockClient{variant: variant}
}

func (m *MockClient) Variant() gate.Variant { return m.variant }

func (m *MockClient) recordToken(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Tokens = append(m.Tokens, token)
}

func (m *MockClient) CreateReference(ctx context.Context, req client.CreateReferenceRequest) (*client.ReferenceResult, error) {
	if m.CreateReferenceFunc != nil {
		return m.CreateReferenceFunc(ctx, req)
	}
	return &client.ReferenceResult{
		ReferenceID: "S01-TEST-" + req.OrderID,
		State:       reference.StateOpen,
		ObservedAt:  time.Now(),
	}, nil
}

func (m *MockClient) Authorize(ctx context.Context, referenceID string, amount reference.Amount, token string) (*client.AuthorizationResult, error) {
	m.recordToken(token)
	if m.AuthorizeFunc != nil {
		return m.AuthorizeFunc(ctx, referenceID, amount, token)
	}
	return &client.AuthorizationResult{
		AuthorizationID: referenceID + "-A1",
		State:           reference.StateOpen,
		Amount:          amount,
		ObservedAt:      time.Now(),
	}, nil
}

func (m *MockClient) Capture(ctx context.Context, authorizationID string, amount reference.Amount, token string) (*client.CaptureResult, error) {
	m.recordToken(token)
	if m.CaptureFunc != nil {
		return m.CaptureFunc(ctx, authorizationID, amount, token)
	}
	return &client.CaptureResult{
		CaptureID:  authorizationID + "-C1",
		State:      reference.StateCompleted,
		ObservedAt: time.Now(),
	}, nil
}

func (m *MockClient) Refund(ctx context.Context, captureID string, amount reference.Amount, token string) (*client.RefundResult, error) {
	m.recordToken(token)
	if m.RefundFunc != nil {
		return m.RefundFunc(ctx, captureID, amount, token)
	}
	return &client.RefundResult{
		RefundID:   captureID + "-R1",
		State:      reference.StateCompleted,
		ObservedAt: time.Now(),
	}, nil
}

func (m *MockClient) GetReferenceDetails(ctx context.Context, referenceID string) (*client.ReferenceSnapshot, error) {
	if m.GetReferenceDetailsFunc != nil {
		return m.GetReferenceDetailsFunc(ctx, referenceID)
	}
	return &client.ReferenceSnapshot{
		ReferenceID:    referenceID,
		ReferenceState: reference.StateOpen,
		ObservedAt:     time.Now(),
	}, nil
}

// --- Order Locks Mock ---

// MockOrderLocks serializes per-order critical sections with local
// mutexes, mirroring the distributed lock's contract.
type MockOrderLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex

	AcquireFunc func(ctx context.Context, orderID string) (func(), error)
}

func NewMockOrderLocks() *MockOrderLocks {
	return &MockOrderLocks{locks: make(map[string]*sync.Mutex)}
}

func (m *MockOrderLocks) Acquire(ctx context.Context, orderID string) (func(), error) {
	if m.AcquireFunc != nil {
		return m.AcquireFunc(ctx, orderID)
	}
	m.mu.Lock()
	l, ok := m.locks[orderID]
	if !ok {
		l = &sync.Mutex{}
		m.locks[orderID] = l
	}
	m.mu.Unlock()
	l.Lock()
	return l.Unlock, nil
}

// --- Notification Dedup Mock ---

// MockDedup is an in-memory implementation of the notification
// seen-set.
type MockDedup struct {
	mu   sync.Mutex
	seen map[string]bool

	SeenFunc func(ctx context.Context, token string) (bool, error)
}

func NewMockDedup() *MockDedup {
	return &MockDedup{seen: make(map[string]bool)}
}

func (m *MockDedup) Seen(ctx context.Context, token string) (bool, error) {
	if m.SeenFunc != nil {
		return m.SeenFunc(ctx, token)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.seen[token] {
		return true, nil
	}
	m.seen[token] = true
	return false, nil
}

func (m *MockDedup) Forget(ctx context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.seen, token)
	return nil
}

// --- Order Updater Mock ---

// StatusCall records one order side effect.
type StatusCall struct {
	OrderID string
	Status  string
	Detail  string
}

// MockOrderUpdater records order status side effects.
type MockOrderUpdater struct {
	mu    sync.Mutex
	Calls []StatusCall

	FailWith error
}

func NewMockOrderUpdater() *MockOrderUpdater {
	return &MockOrderUpdater{}
}

func (m *MockOrderUpdater) record(orderID, status, detail string) error {
	if m.FailWith != nil {
		return m.FailWith
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, StatusCall{OrderID: orderID, Status: status, Detail: detail})
	return nil
}

func (m *MockOrderUpdater) MarkProcessing(ctx context.Context, orderID string) error {
	return m.record(orderID, "processing", "")
}

func (m *MockOrderUpdater) MarkCompleted(ctx context.Context, orderID string) error {
	return m.record(orderID, "completed", "")
}

func (m *MockOrderUpdater) MarkFailed(ctx context.Context, orderID, reason string) error {
	return m.record(orderID, "failed", reason)
}

func (m *MockOrderUpdater) AddRefundRecord(ctx context.Context, orderID, refundID string) error {
	return m.record(orderID, "refunded", refundID)
}

// CallsFor returns the recorded side effects for one order.
func (m *MockOrderUpdater) CallsFor(orderID string) []StatusCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []StatusCall
	for _, c := range m.Calls {
		if c.OrderID == orderID {
			out = append(out, c)
		}
	}
	return out
}

// --- Event Publisher Mock ---

// MockEventPublisher records published reference events.
type MockEventPublisher struct {
	mu     sync.Mutex
	Events []observer.Event
}

func NewMockEventPublisher() *MockEventPublisher {
	return &MockEventPublisher{}
}

func (m *MockEventPublisher) PublishReferenceEvent(ctx context.Context, orderID, entity, entityID, state, source string, observedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, observer.Event{
		OrderID:    orderID,
		Kind:       reference.EntityKind(entity),
		EntityID:   entityID,
		State:      reference.State(state),
		Source:     observer.Source(source),
		ObservedAt: observedAt,
	})
	return nil
}

// --- Merchant Store Mock ---

// MockMerchantStore is a fixed-flag implementation of
// gate.MerchantStore.
type MockMerchantStore struct {
	MigratedFlag bool
	Err          error
}

func (m *MockMerchantStore) Migrated(ctx context.Context) (bool, error) {
	return m.MigratedFlag, m.Err
}
