// Package contract provides interfaces and shared utilities for internal architecture.
package contract

import (
	"context"
	"time"

	"github.com/smittestopp/smittestoppbackend/internal/geo"
	"github.com/smittestopp/smittestoppbackend/schema"
)

// DataSource defines the raw device data operations the pipeline needs.
// This allows the core analysis logic to be tested without a real database.
type DataSource interface {
	// --- GPS ---

	// GetTrajectory returns the GPS samples of one device inside the
	// half-open window [from, to), ordered by time.
	GetTrajectory(ctx context.Context, device schema.DeviceID, from, to time.Time) ([]schema.Sample, error)

	// GetWithinBoundingBox returns the samples of every other device that
	// reported a position inside the box during the window, grouped by
	// device and ordered by time. The excluded device is the patient.
	GetWithinBoundingBox(ctx context.Context, box geo.BoundingBox, from, to time.Time, exclude schema.DeviceID) (map[schema.DeviceID][]schema.Sample, error)

	// --- Bluetooth ---

	// GetBluetoothPairings returns the raw pairing observations involving
	// the device in either direction during the window, ordered by time.
	GetBluetoothPairings(ctx context.Context, device schema.DeviceID, from, to time.Time) ([]schema.BTSighting, error)

	// --- Device registry ---

	// GetDeviceInfo returns registration metadata for a device.
	// Implementations return ErrNoData for unknown devices.
	GetDeviceInfo(ctx context.Context, device schema.DeviceID) (*schema.DeviceInfo, error)

	// Close closes the underlying connection.
	Close() error
}

// FeatureService resolves map features around query points.
// Implementations must return one candidate slice per input point,
// preserving order.
type FeatureService interface {
	QueryPoints(ctx context.Context, points []schema.FeaturePoint, queryTypes []string) ([][]schema.Feature, error)
}

// CacheManager defines the interface for managing cache stores.
// This allows the cache layer to be mocked for testing.
type CacheManager interface {
	GetFeatureStore() CacheStore
	GetRunStore() RunStore
}

// CacheStore defines the interface for cache data storage.
// This allows mocking the store for testing.
type CacheStore interface {
	Get(key string) ([]byte, int, int64, error)
	Set(key string, value []byte, version int, timestamp int64) error
	Clear() error
	GetStatus() (schema.CacheStatus, error)
	Close() error
}

// RunStore defines the interface for tracking analysis runs.
type RunStore interface {
	// BeginRun creates a new analysis run and returns its unique ID
	BeginRun(req schema.AnalysisRequest, startTime time.Time) (int64, error)

	// EndRun updates the analysis run with completion data
	EndRun(runID int64, endTime time.Time, peers, contacts, failures int) error

	// GetStatus returns status information about the run store
	GetStatus() (schema.RunStatus, error)

	// Close closes the underlying connection
	Close() error
}
