package ports_test

import (
	"context"
	"sort"
	"testing"

	"github.com/aretw0/autotron/pkg/domain"
	"github.com/aretw0/autotron/pkg/ports"
	"github.com/stretchr/testify/assert"
)

// MockStore is a minimal map-backed GraphStore used to exercise the contract itself.
type MockStore struct {
	data map[string][]byte
}

func NewMockStore() *MockStore {
	return &MockStore{data: make(map[string][]byte)}
}

func (m *MockStore) Save(ctx context.Context, name string, doc *domain.Document) error {
	raw, err := doc.Marshal()
	if err != nil {
		return err
	}
	m.data[name] = raw
	return nil
}

func (m *MockStore) Load(ctx context.Context, name string) (*domain.Document, error) {
	raw, ok := m.data[name]
	if !ok {
		return nil, domain.ErrGraphNotFound
	}
	return domain.ParseDocument(raw)
}

func (m *MockStore) Delete(ctx context.Context, name string) error {
	delete(m.data, name)
	return nil
}

func (m *MockStore) List(ctx context.Context) ([]string, error) {
	names := make([]string, 0, len(m.data))
	for name := range m.data {
		if name == ports.LastActiveName {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func TestMockStore_Contract(t *testing.T) {
	ports.RunGraphStoreContract(t, NewMockStore())
}

type wrapped struct {
	ports.GraphStore
}

func (w wrapped) Unwrap() ports.GraphStore { return w.GraphStore }

type watchingStore struct {
	*MockStore
}

func (watchingStore) Watch(ctx context.Context) (<-chan string, error) { return nil, nil }

func TestCapability(t *testing.T) {
	inner := watchingStore{NewMockStore()}
	store := wrapped{wrapped{inner}}

	w, ok := ports.Capability[ports.Watchable](store)
	assert.True(t, ok)
	assert.Equal(t, inner, w)

	_, ok = ports.Capability[ports.Locker](store)
	assert.False(t, ok)

	_, ok = ports.Capability[ports.Watchable](NewMockStore())
	assert.False(t, ok)
}
