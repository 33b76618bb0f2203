package iocache

import (
	"fmt"

	"github.com/smittestopp/smittestoppbackend/internal/contract"
	"github.com/smittestopp/smittestoppbackend/schema"
)

// ManagerImpl bundles the feature cache and run tracking stores, which
// normally share a backend and connection string.
type ManagerImpl struct {
	features contract.CacheStore
	runs     contract.RunStore
}

var _ contract.CacheManager = &ManagerImpl{} // Compile-time check

// NewManager opens both stores on the backend.
func NewManager(backend schema.DatabaseBackend, connStr string) (*ManagerImpl, error) {
	features, err := NewCacheStore(backend, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize feature cache: %w", err)
	}
	runs, err := NewRunStore(backend, connStr)
	if err != nil {
		_ = features.Close()
		return nil, fmt.Errorf("failed to initialize run store: %w", err)
	}
	return &ManagerImpl{features: features, runs: runs}, nil
}

// GetFeatureStore returns the feature cache store.
func (m *ManagerImpl) GetFeatureStore() contract.CacheStore { return m.features }

// GetRunStore returns the run tracking store.
func (m *ManagerImpl) GetRunStore() contract.RunStore { return m.runs }

// Close closes both stores.
func (m *ManagerImpl) Close() error {
	var firstErr error
	if err := m.features.Close(); err != nil {
		firstErr = err
	}
	if err := m.runs.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
