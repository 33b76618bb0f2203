package schema

// Custom string types for type safety.
type (
	// DeviceID identifies a registered device. Always lowercase.
	DeviceID string

	// Platform represents the mobile platform a device runs on.
	Platform string

	// TransportMode represents the reported mode of transport for a sample.
	TransportMode string

	// ContactType distinguishes how a contact was detected.
	ContactType string

	// RiskCategory is the categorical outcome of risk scoring.
	RiskCategory string

	// OutputMode represents the format of the report output.
	OutputMode string

	// DatabaseBackend represents the database backend for caching.
	DatabaseBackend string
)

// All platforms supported.
const (
	IOSPlatform     Platform = "ios"
	AndroidPlatform Platform = "android"
)

// Transport modes reported by devices. UnknownTransport marks samples
// without a transport annotation.
const (
	StillTransport           TransportMode = "still"
	OnFootTransport          TransportMode = "on_foot"
	VehicleTransport         TransportMode = "vehicle"
	PublicTransportTransport TransportMode = "public_transport"
	UnknownTransport         TransportMode = "N/A"
)

// All contact types supported.
const (
	GPSContactType ContactType = "gps"
	BTContactType  ContactType = "bt"
	AnyContactType ContactType = "" // no filtering by type
)

// Risk categories, strongest first. The two trailing categories flag
// encounters with insufficient evidence of either kind.
const (
	HighRisk     RiskCategory = "high"
	MediumRisk   RiskCategory = "medium"
	LowRisk      RiskCategory = "low"
	NoRisk       RiskCategory = "no"
	BTBelow15Min RiskCategory = "bt_below_15_min"
	GPSOnlyRisk  RiskCategory = "gps_only"
)

// GradedRiskCategories orders the graded categories by decreasing severity.
// Integer category values index into this list.
var GradedRiskCategories = []RiskCategory{HighRisk, MediumRisk, LowRisk, NoRisk}

// RiskCategoryFromIndex maps an integer category to its name.
// Out-of-range values degrade to NoRisk.
func RiskCategoryFromIndex(i int) RiskCategory {
	if i < 0 || i >= len(GradedRiskCategories) {
		return NoRisk
	}
	return GradedRiskCategories[i]
}

// All output modes supported.
const (
	TextOut    OutputMode = "text" // default
	JSONOut    OutputMode = "json"
	ParquetOut OutputMode = "parquet"
)

// All cache backends supported.
const (
	SQLiteBackend     DatabaseBackend = "sqlite" // default
	MySQLBackend      DatabaseBackend = "mysql"
	PostgreSQLBackend DatabaseBackend = "postgresql"
	NoneBackend       DatabaseBackend = "none"
)

// ValidOutputModes lists all valid output modes.
var ValidOutputModes = map[OutputMode]struct{}{
	TextOut:    {},
	JSONOut:    {},
	ParquetOut: {},
}

// ValidCacheBackends lists all valid cache backends.
var ValidCacheBackends = map[DatabaseBackend]struct{}{
	SQLiteBackend:     {},
	MySQLBackend:      {},
	PostgreSQLBackend: {},
	NoneBackend:       {},
}
