package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/mohitjoer/customer-support-voice-agent/internal/models"
)

// MemoryStore keeps orders in a map. It backs tests and single-node demos.
type MemoryStore struct {
	mu     sync.RWMutex
	orders map[string]*models.Order
}

// NewMemoryStore creates a memory store holding copies of the given orders
func NewMemoryStore(orders ...models.Order) *MemoryStore {
	ms := &MemoryStore{orders: make(map[string]*models.Order, len(orders))}
	for i := range orders {
		ms.orders[orders[i].OrderID] = orders[i].Clone()
	}
	return ms
}

// Get returns a copy of the order stored under key
func (ms *MemoryStore) Get(ctx context.Context, key string) (*models.Order, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	order, ok := ms.orders[key]
	if !ok || key == "" {
		return nil, ErrOrderNotFound
	}
	return order.Clone(), nil
}

// Update applies mutate to a copy and swaps it in only if mutate succeeds
func (ms *MemoryStore) Update(ctx context.Context, key string, mutate Mutator) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	current, ok := ms.orders[key]
	if !ok || key == "" {
		return ErrOrderNotFound
	}

	next := current.Clone()
	if err := mutate(next); err != nil {
		return err
	}
	next.OrderID = current.OrderID
	ms.orders[key] = next
	return nil
}

// LoadOrders reads a JSON seed file. Both a list of orders and an object keyed by order id are accepted.
func LoadOrders(path string) ([]models.Order, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}

	var list []models.Order
	if err := json.Unmarshal(data, &list); err == nil {
		return list, nil
	}

	var byID map[string]models.Order
	if err := json.Unmarshal(data, &byID); err != nil {
		return nil, fmt.Errorf("failed to decode seed file %s: %w", path, err)
	}

	list = make([]models.Order, 0, len(byID))
	for id, order := range byID {
		if order.OrderID == "" {
			order.OrderID = id
		}
		list = append(list, order)
	}
	return list, nil
}
