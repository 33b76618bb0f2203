package schema

import "sort"

// ContactListSummary aggregates one list of contacts for reporting.
// Durations are in seconds, distances in meters.
type ContactListSummary struct {
	CumulativeDuration          float64            `json:"cumulative_duration"`
	CumulativeRiskScore         float64            `json:"cumulative_risk_score"`
	NumberOfContacts            int                `json:"number_of_contacts"`
	MedianDistance              float64            `json:"median_distance"`
	CumulativeDurationInside    float64            `json:"cumulative_duration_inside"`
	CumulativeDurationOutside   float64            `json:"cumulative_duration_outside"`
	CumulativeDurationUncertain float64            `json:"cumulative_uncertain_duration"`
	PointsOfInterest            map[string]float64 `json:"points_of_interest,omitempty"`
	RiskCategory                RiskCategory       `json:"risk_cat"`
	BTVeryCloseDuration         float64            `json:"bt_very_close_duration"`
	BTCloseDuration             float64            `json:"bt_close_duration"`
	BTRelativelyCloseDuration   float64            `json:"bt_relatively_close_duration"`
	ContactDetails              []ContactDetailRow `json:"contact_details,omitempty"`

	// DaysInContact is only set on the cumulative sections of a daily
	// report.
	DaysInContact int `json:"days_in_contact,omitempty"`
}

// ContactDetailRow describes a single contact inside a summary.
// Times are Unix seconds UTC; Bluetooth phase durations stay zero for
// GPS contacts.
type ContactDetailRow struct {
	Type                     ContactType        `json:"type"`
	TimeFrom                 int64              `json:"time_from"`
	TimeTo                   int64              `json:"time_to"`
	Duration                 float64            `json:"duration"`
	AverageDistance          float64            `json:"average_distance"`
	MedianDistance           float64            `json:"median_distance"`
	AverageAccuracy          float64            `json:"average_accuracy"`
	RiskScore                float64            `json:"risk_score"`
	DurationInside           float64            `json:"duration_inside"`
	DurationOutside          float64            `json:"duration_outside"`
	UncertainDuration        float64            `json:"uncertain_duration"`
	POIs                     map[string]float64 `json:"pois,omitempty"`
	MostCommonTransportModes []TransportMode    `json:"most_common_transport_modes,omitempty"`
	VeryCloseDuration        float64            `json:"very_close_duration,omitempty"`
	CloseDuration            float64            `json:"close_duration,omitempty"`
	RelativelyCloseDuration  float64            `json:"relatively_close_duration,omitempty"`
}

// PeerReport is the per-peer section of an individual risk report.
// The embedded summary covers all contacts with that peer; the typed
// sections appear only when contacts of that kind exist.
type PeerReport struct {
	ContactListSummary
	GPSContacts *ContactListSummary `json:"gps_contacts,omitempty"`
	BTContacts  *ContactListSummary `json:"bt_contacts,omitempty"`
}

// Report maps every reportable peer to its contact summary.
type Report struct {
	Contacts    map[DeviceID]PeerReport `json:"contacts"`
	VersionInfo VersionInfo             `json:"version_info"`
}

// CumulativeSection groups the all/gps/bt summaries of one slice of time.
type CumulativeSection struct {
	AllContacts ContactListSummary  `json:"all_contacts"`
	GPSContacts *ContactListSummary `json:"gps_contacts,omitempty"`
	BTContacts  *ContactListSummary `json:"bt_contacts,omitempty"`
}

// DailyPeerReport is the per-peer section of a daily risk report.
// Daily keys are dates formatted as 2006-01-02.
type DailyPeerReport struct {
	Cumulative    CumulativeSection            `json:"cumulative"`
	Daily         map[string]CumulativeSection `json:"daily"`
	DaysInContact int                          `json:"days_in_contact"`
}

// SortedDates returns the daily keys in ascending order.
func (r DailyPeerReport) SortedDates() []string {
	dates := make([]string, 0, len(r.Daily))
	for date := range r.Daily {
		dates = append(dates, date)
	}
	sort.Strings(dates)
	return dates
}

// DailyReport maps every reportable peer to its day-by-day breakdown.
type DailyReport struct {
	Contacts    map[DeviceID]DailyPeerReport `json:"contacts"`
	VersionInfo VersionInfo                  `json:"version_info"`
}

// VersionInfo records what produced a report.
type VersionInfo struct {
	Pipeline string      `json:"pipeline"`
	Device   *DeviceInfo `json:"device,omitempty"`
}
