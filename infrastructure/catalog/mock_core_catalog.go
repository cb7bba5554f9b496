package catalog

import (
	"context"
	"sync"
	"time"

	"github.com/ahrav/go-bomcheck/internal/domain"
	"github.com/ahrav/go-bomcheck/internal/ports"
)

// MockCoreCatalog is a configurable CoreCatalog for middleware tests.
type MockCoreCatalog struct {
	mu sync.Mutex

	ID            string
	Offers        []domain.CatalogOffer
	Error         error
	ResponseDelay time.Duration

	// Errors, when non-empty, is consumed one entry per call before Error
	// applies. A nil entry means that call succeeds.
	Errors []error

	CallCount    int
	LastRequest  LookupRequest
	LastContext  context.Context
	CallRequests []LookupRequest
}

// NewMockCoreCatalog creates a mock that returns offers for every call.
func NewMockCoreCatalog(id string, offers ...domain.CatalogOffer) *MockCoreCatalog {
	return &MockCoreCatalog{ID: id, Offers: offers}
}

// DoLookup implements CoreCatalog. The delay is served without holding the
// mock's lock so concurrent callers overlap.
func (m *MockCoreCatalog) DoLookup(ctx context.Context, req LookupRequest) ([]domain.CatalogOffer, error) {
	m.mu.Lock()
	m.CallCount++
	m.LastRequest = req
	m.LastContext = ctx
	m.CallRequests = append(m.CallRequests, req)
	delay := m.ResponseDelay

	err := m.Error
	if len(m.Errors) > 0 {
		err = m.Errors[0]
		m.Errors = m.Errors[1:]
	}
	offers := append([]domain.CatalogOffer(nil), m.Offers...)
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if err != nil {
		return nil, err
	}
	return offers, nil
}

// ProviderID implements CoreCatalog.
func (m *MockCoreCatalog) ProviderID() string {
	if m.ID == "" {
		return "mock"
	}
	return m.ID
}

// GetCallCount returns the number of DoLookup calls.
func (m *MockCoreCatalog) GetCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CallCount
}

// MockCacheStore is an in-process ports.CacheStore that records traffic.
type MockCacheStore struct {
	mu   sync.Mutex
	data map[string][]byte
	Sets int
	Gets int
}

var _ ports.CacheStore = (*MockCacheStore)(nil)

// NewMockCacheStore creates an empty mock store.
func NewMockCacheStore() *MockCacheStore {
	return &MockCacheStore{data: make(map[string][]byte)}
}

func (s *MockCacheStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Gets++
	v, ok := s.data[key]
	return v, ok, nil
}

func (s *MockCacheStore) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Sets++
	s.data[key] = value
	return nil
}

func (s *MockCacheStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

func (s *MockCacheStore) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = make(map[string][]byte)
	return nil
}

// Keys returns the stored keys.
func (s *MockCacheStore) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	return keys
}

// Put stores raw bytes, used to plant corrupt entries.
func (s *MockCacheStore) Put(key string, value []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
}
