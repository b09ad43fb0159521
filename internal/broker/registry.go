package broker

import (
	"sync"

	"options-terminal/internal/errors"
)

// Registry maps broker instance ids to their live connections. Instances are
// registered at startup and when a connection is (re)established; lookups are
// concurrent with registration.
type Registry struct {
	mu      sync.RWMutex
	brokers map[string]Broker
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{brokers: make(map[string]Broker)}
}

// Register adds or replaces the connection for an instance.
func (r *Registry) Register(instanceID string, b Broker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.brokers[instanceID] = b
}

// Unregister removes an instance's connection.
func (r *Registry) Unregister(instanceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.brokers, instanceID)
}

// Get returns the connection for an instance.
func (r *Registry) Get(instanceID string) (Broker, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.brokers[instanceID]
	if !ok {
		return nil, errors.NewNotFoundError("instance", instanceID, errors.ErrInstanceNotFound)
	}
	return b, nil
}

// IDs returns the ids of all registered instances.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.brokers))
	for id := range r.brokers {
		ids = append(ids, id)
	}
	return ids
}
