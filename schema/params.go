package schema

// FilterOptions tunes the windowed distance estimator.
type FilterOptions struct {
	DistThresh    float64 // timesteps with a lower-bound distance above this are dropped (meters)
	WeightDistMax float64 // accuracy at/above this gets the minimum weight (meters)
	WeightDistMin float64 // accuracy below this gets full weight (meters)
	WeightMinVal  float64 // floor for accuracy weights
	FilterSize    float64 // convolution window size (seconds)
}

// POIOptions tunes point-of-interest resolution.
type POIOptions struct {
	InsideTransportModes []TransportMode // modes assumed to be inside a vehicle
	WalkingModes         []TransportMode // modes for which POIs are searched

	// AccuracyRadiusFactor scales the pair accuracy into a search radius,
	// indexed by how many of the two parties are in a walking mode and
	// whether either is in transport. Order: walking/walking,
	// walking/unknown, unknown/unknown, transport involved.
	AccuracyRadiusFactor [4]float64

	TransportFiltrationDuration float64 // seconds below which isolated transport flips are smoothed
	POIFiltrationDuration       float64 // seconds below which infrequent POIs are suspicious
	POIFiltrationFrequency      int     // frequency at/below which short POIs are suspicious

	TypesOfAmenities []string // feature query types issued per contact point

	ProportionThreshold   float64 // share of inside time a POI must hold to survive filtering
	DurationThreshold     float64 // seconds a POI must hold together with the proportion rule
	LongDurationThreshold float64 // seconds that let a POI survive on duration alone
	KeepUncertain         bool    // keep the uncertain bucket in filtered POI output
}

// AnalysisParams is the immutable parameter set of the analysis pipeline.
// Durations are in seconds and distances in meters unless noted.
type AnalysisParams struct {
	AnalysisDurationDays int     // days in the past covered by a default analysis window
	MaxInterpolationGapH float64 // maximum gap bridged by interpolation (hours)
	AllowedJump          float64 // maximum distance bridged by interpolation
	OutlierThreshold     float64 // GPS samples with accuracy above this are discarded

	GlueBelowDuration float64 // GPS contacts closer than this are glued together
	MinDuration       float64 // GPS contacts shorter than this are discarded

	GPSInterpolationForBT float64 // grid step when enriching BT contacts with GPS
	BTOutlierThreshold    float64 // BT episodes longer than this are discarded
	BTGlueBelowDuration   float64 // BT episodes closer than this are glued together
	BTMinDuration         float64 // BT episodes shorter than this are discarded

	SlackTime float64 // trajectory slack around a contact window

	Filter FilterOptions
	POIs   POIOptions
}

// DefaultParams returns the production parameter set.
func DefaultParams() AnalysisParams {
	return AnalysisParams{
		AnalysisDurationDays:  7,
		MaxInterpolationGapH:  1,
		AllowedJump:           1000,
		OutlierThreshold:      50,
		GlueBelowDuration:     3 * 60,
		MinDuration:           5 * 60,
		GPSInterpolationForBT: 300,
		BTOutlierThreshold:    1000,
		BTGlueBelowDuration:   0,
		BTMinDuration:         1,
		SlackTime:             30 * 60,
		Filter: FilterOptions{
			DistThresh:    10,
			WeightDistMax: 100,
			WeightDistMin: 10,
			WeightMinVal:  0.05,
			FilterSize:    2,
		},
		POIs: POIOptions{
			InsideTransportModes:        []TransportMode{PublicTransportTransport, VehicleTransport},
			WalkingModes:                []TransportMode{StillTransport, OnFootTransport},
			AccuracyRadiusFactor:        [4]float64{1.1, 0.9, 0.65, 0.0},
			TransportFiltrationDuration: 60,
			POIFiltrationDuration:       60,
			POIFiltrationFrequency:      1,
			TypesOfAmenities: []string{
				"all_buildings", "amenity_all", "public_transport",
				"offices", "shop_generalstores",
			},
			ProportionThreshold:   0.2,
			DurationThreshold:     60,
			LongDurationThreshold: 300,
			KeepUncertain:         false,
		},
	}
}

// Building categories used when grouping detected points of interest.
const (
	CategoryBarsAndRestaurants = "bars_and_restaurants"
	CategoryEducation          = "education_facility"
	CategorySchool             = "school"
	CategoryUniversity         = "university"
	CategoryKindergarten       = "kindergarten"
	CategoryHealthcare         = "healthcare_facility"
	CategoryHospital           = "hospital"
	CategoryNursingHome        = "nursing_home"
	CategoryArtsAndCulture     = "arts_entertainment_culture"
	CategorySport              = "sport_facility"
	CategoryShop               = "shop"
	CategoryReligious          = "religious_building"
	CategoryResidential        = "residential"
	CategoryOtherBuildings     = "other_buildings"
	CategoryOffice             = "office_building"
	CategoryTransportStop      = "public_transport_stop"
	CategoryUncertain          = "uncertain"
	CategoryNA                 = "N/A"
)

// BuildingCategories groups raw amenity/building tag values into report
// categories. Nursing homes include social facilities and community centres,
// which often label them in Norway.
var BuildingCategories = buildCategoryIndex(map[string][]string{
	CategoryBarsAndRestaurants: {
		"bar", "bbq", "biergarten", "cafe", "drinking_water", "fast_food",
		"food_court", "ice_cream", "pub", "restaurant",
	},
	CategoryEducation: {
		"driving_school", "language_school", "library", "toy_library", "music_school",
	},
	CategorySchool:       {"school"},
	CategoryUniversity:   {"university", "college"},
	CategoryKindergarten: {"kindergarten"},
	CategoryHealthcare: {
		"baby_hatch", "dentist", "doctors", "pharmacy", "veterinary",
	},
	CategoryHospital:    {"hospital", "clinic"},
	CategoryNursingHome: {"nursing_home", "social_facility", "community_centre"},
	CategoryArtsAndCulture: {
		"cinema", "casino", "arts_centre", "studio", "planetarium", "nightclub",
		"gambling", "public_bookcase", "stripclub", "theatre",
	},
	CategorySport: {
		"grandstand", "pavilion", "riding_hall", "sports_hall", "stadium",
	},
	CategoryShop: {
		"commercial", "industrial", "kiosk", "retail", "supermarket",
		"warehouse", "charging_station", "bicycle_rental",
	},
	CategoryReligious: {
		"cathedral", "chapel", "church", "mosque", "religious", "shrine",
		"synagogue", "temple",
	},
	CategoryResidential: {
		"apartments", "bungalow", "cabin", "detached", "dormitory", "farm",
		"ger", "hotel", "house", "houseboat", "residential",
		"semidetached_house", "static_caravan", "terrace", "shed",
	},
})

func buildCategoryIndex(groups map[string][]string) map[string]string {
	index := make(map[string]string)
	for category, tags := range groups {
		for _, tag := range tags {
			index[tag] = category
		}
	}
	return index
}
