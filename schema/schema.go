package schema

import (
	"strings"
	"time"
)

// Sample is one GPS fix reported by a device. Times are Unix seconds UTC.
type Sample struct {
	Time      int64
	Lat       float64
	Lon       float64
	Accuracy  float64 // horizontal accuracy in meters
	Transport TransportMode
	Speed     float64 // meters per second, 0 when unknown
}

// BTSighting is one raw Bluetooth pairing observation between two devices.
type BTSighting struct {
	DeviceID       DeviceID
	PairedDeviceID DeviceID
	Time           int64 // Unix seconds UTC
	RSSI           float64
	TxPower        float64
	Platform       Platform
}

// DeviceInfo describes a registered device for report versioning.
type DeviceInfo struct {
	DeviceID   DeviceID
	Platform   Platform
	Model      string
	AppVersion string
}

// AnalysisRequest identifies one analysis job: a patient device and the
// half-open time window to analyze. A zero window defaults to the last
// AnalysisDurationDays days.
type AnalysisRequest struct {
	DeviceID DeviceID
	TimeFrom time.Time
	TimeTo   time.Time
	Daily    bool // emit the per-day report instead of the per-peer one
	Testing  bool // bypass report inclusion rules
}

// NormalizedDeviceID lowercases an identifier the way registration does.
func NormalizedDeviceID(raw string) DeviceID {
	return DeviceID(strings.ToLower(strings.TrimSpace(raw)))
}

// AnalysisRun records one finished pipeline execution for tracking
// and parquet export.
type AnalysisRun struct {
	RunID        string
	DeviceID     DeviceID
	TimeFrom     time.Time
	TimeTo       time.Time
	StartedAt    time.Time
	DurationMS   int64
	PeerCount    int
	ContactCount int
	ErrorCount   int
}
