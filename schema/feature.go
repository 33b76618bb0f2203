package schema

// FeaturePoint is one location queried against the map feature service.
type FeaturePoint struct {
	Lat    float64
	Lon    float64
	Radius float64 // search radius in meters
}

// Feature is one map element returned by the feature service.
type Feature struct {
	ID   int64             `json:"id"`
	Kind string            `json:"type"` // node, way or relation
	Lat  float64           `json:"lat,omitempty"`
	Lon  float64           `json:"lon,omitempty"`
	Tags map[string]string `json:"tags,omitempty"`
}

// Name returns the display name of the feature, falling back to its
// numeric identifier.
func (f Feature) Name() string {
	if name, ok := f.Tags["name"]; ok && name != "" {
		return name
	}
	return ""
}

// CacheStatus describes the state of a cache store.
type CacheStatus struct {
	Backend   DatabaseBackend
	Entries   int64
	SizeBytes int64
	OldestSet int64 // Unix seconds of the oldest entry, 0 when empty
}

// RunStatus describes the state of the analysis run tracking store.
type RunStatus struct {
	Backend   DatabaseBackend
	Runs      int64
	LastRunAt int64 // Unix seconds of the most recent run, 0 when empty
}
