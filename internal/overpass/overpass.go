// Package overpass queries OpenStreetMap features through an Overpass
// endpoint. Queries for whole trajectories are combined into one
// request per containing box and the responses matched back onto the
// individual points.
package overpass

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/smittestopp/smittestoppbackend/internal/contract"
	"github.com/smittestopp/smittestoppbackend/internal/geo"
	"github.com/smittestopp/smittestoppbackend/schema"
)

const (
	connectTimeout  = 5 * time.Second
	readTimeout     = 20 * time.Second
	maxRetries      = 5
	initialInterval = 200 * time.Millisecond
	maxRetryAfter   = 30 * time.Second

	// Point sets beyond these limits are split into sub-queries.
	maxBatchPoints   = 100
	maxBatchSquareKm = 10.0

	cacheVersion = 1
)

// QueryType selects one family of map features.
type QueryType struct {
	Name     string
	Tag      string
	Values   []string // empty means any value
	Elements []string // node, way, relation
}

// queryTypes mirrors the feature families the analysis queries for.
var queryTypes = map[string]QueryType{
	"all_buildings": {Name: "all_buildings", Tag: "building",
		Elements: []string{"way"}},
	"amenity_all": {Name: "amenity_all", Tag: "amenity",
		Elements: []string{"node", "way", "relation"}},
	"public_transport": {Name: "public_transport", Tag: "public_transport",
		Values:   []string{"platform", "stop_position"},
		Elements: []string{"node", "way", "relation"}},
	"offices": {Name: "offices", Tag: "office",
		Elements: []string{"node"}},
	"shop_generalstores": {Name: "shop_generalstores", Tag: "shop",
		Values:   []string{"department_store", "general", "kiosk", "mall", "supermarket", "wholesale"},
		Elements: []string{"node"}},
	"shops_all": {Name: "shops_all", Tag: "shop",
		Elements: []string{"node"}},
	"education": {Name: "education", Tag: "amenity",
		Values:   []string{"college", "driving_school", "kindergarten", "language_school", "library", "music_school", "school", "university"},
		Elements: []string{"node", "way", "relation"}},
	"healthcare": {Name: "healthcare", Tag: "amenity",
		Values:   []string{"clinic", "dentist", "doctors", "hospital", "nursing_home", "pharmacy", "social_facility"},
		Elements: []string{"node", "way", "relation"}},
	"bars_and_restaurants": {Name: "bars_and_restaurants", Tag: "amenity",
		Values:   []string{"bar", "bbq", "biergarten", "cafe", "drinking_water", "fast_food", "food_court", "ice_cream", "pub", "restaurant"},
		Elements: []string{"node", "way"}},
	"residential": {Name: "residential", Tag: "building",
		Values:   []string{"apartments", "bungalow", "cabin", "detached", "dormitory", "farm", "ger", "hotel", "house", "houseboat", "residential", "semidetached_house", "static_caravan", "terrace", "shed"},
		Elements: []string{"node", "way", "relation"}},
}

// selector renders the Overpass tag clause.
func (q QueryType) selector() string {
	if len(q.Values) == 0 {
		return fmt.Sprintf("[%s]", q.Tag)
	}
	return fmt.Sprintf("[%s~\"%s\"]", q.Tag, strings.Join(q.Values, "|"))
}

// Matches reports whether the element belongs to this feature family.
// Tagged "yes" always counts: many mapped buildings carry no subtype.
func (q QueryType) Matches(tags map[string]string) bool {
	value, ok := tags[q.Tag]
	if !ok {
		return false
	}
	if len(q.Values) == 0 || value == "yes" {
		return true
	}
	for _, v := range q.Values {
		if value == v {
			return true
		}
	}
	return false
}

// Client implements contract.FeatureService against an Overpass
// endpoint, with optional response caching.
type Client struct {
	endpoint string
	http     *http.Client
	cache    contract.CacheStore
	workers  int
}

// NewClient returns a client for the endpoint. A nil cache disables
// response caching.
func NewClient(endpoint string, cache contract.CacheStore, workers int) *Client {
	if workers < 1 {
		workers = 1
	}
	return &Client{
		endpoint: endpoint,
		http: &http.Client{
			Timeout: readTimeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{Timeout: connectTimeout}).DialContext,
			},
		},
		cache:   cache,
		workers: workers,
	}
}

// overpassResponse is the JSON body of an Overpass reply.
type overpassResponse struct {
	Elements []overpassElement `json:"elements"`
}

type overpassElement struct {
	Type   string  `json:"type"`
	ID     int64   `json:"id"`
	Lat    float64 `json:"lat"`
	Lon    float64 `json:"lon"`
	Center *struct {
		Lat float64 `json:"lat"`
		Lon float64 `json:"lon"`
	} `json:"center"`
	Bounds *struct {
		MinLat float64 `json:"minlat"`
		MinLon float64 `json:"minlon"`
		MaxLat float64 `json:"maxlat"`
		MaxLon float64 `json:"maxlon"`
	} `json:"bounds"`
	Tags map[string]string `json:"tags"`
}

// inBox reports whether the element falls inside the box: by its bounds
// when present, otherwise by its position.
func (e overpassElement) inBox(box geo.BoundingBox) bool {
	if e.Bounds != nil {
		other := geo.BoundingBox{
			MinLat: e.Bounds.MinLat, MinLon: e.Bounds.MinLon,
			MaxLat: e.Bounds.MaxLat, MaxLon: e.Bounds.MaxLon,
		}
		return box.Overlaps(other) || other.Overlaps(box)
	}
	lat, lon := e.Lat, e.Lon
	if e.Center != nil {
		lat, lon = e.Center.Lat, e.Center.Lon
	}
	return box.Contains(lat, lon)
}

func (e overpassElement) feature() schema.Feature {
	lat, lon := e.Lat, e.Lon
	if e.Center != nil {
		lat, lon = e.Center.Lat, e.Center.Lon
	}
	return schema.Feature{ID: e.ID, Kind: e.Type, Lat: lat, Lon: lon, Tags: e.Tags}
}

// QueryPoints resolves the feature candidates around every point. The
// result has one slice per input point, in order.
func (c *Client) QueryPoints(ctx context.Context, points []schema.FeaturePoint, typeNames []string) ([][]schema.Feature, error) {
	if len(points) == 0 {
		return nil, nil
	}
	types := make([]QueryType, 0, len(typeNames))
	for _, name := range typeNames {
		qt, ok := queryTypes[name]
		if !ok {
			return nil, fmt.Errorf("unknown feature query type %q", name)
		}
		types = append(types, qt)
	}

	boxes := make([]geo.BoundingBox, len(points))
	containing := geo.NewBoundingBox(points[0].Lat, points[0].Lon, points[0].Radius)
	for i, p := range points {
		boxes[i] = geo.NewBoundingBox(p.Lat, p.Lon, p.Radius)
		containing = containing.Combine(boxes[i])
	}

	if len(points) <= maxBatchPoints && containing.SquareKm() <= maxBatchSquareKm {
		return c.queryBatch(ctx, boxes, containing, types)
	}

	// Too many points or too large an area for one request: split into
	// sub-batches queried concurrently, reassembled in order.
	splits := max(2, min(len(points)/2, len(points)/50))
	contract.Logger.Debug().
		Int("points", len(points)).
		Float64("sqkm", containing.SquareKm()).
		Int("splits", splits).
		Msg("splitting feature query")

	type chunk struct{ lo, hi int }
	chunks := make([]chunk, 0, splits)
	size := (len(points) + splits - 1) / splits
	for lo := 0; lo < len(points); lo += size {
		chunks = append(chunks, chunk{lo: lo, hi: min(lo+size, len(points))})
	}

	results := make([][][]schema.Feature, len(chunks))
	errs := make([]error, len(chunks))
	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < c.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				sub := boxes[chunks[i].lo:chunks[i].hi]
				subContaining := sub[0]
				for _, b := range sub[1:] {
					subContaining = subContaining.Combine(b)
				}
				results[i], errs[i] = c.queryBatch(ctx, sub, subContaining, types)
			}
		}()
	}
	for i := range chunks {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	out := make([][]schema.Feature, 0, len(points))
	for i := range chunks {
		if errs[i] != nil {
			return nil, errs[i]
		}
		out = append(out, results[i]...)
	}
	return out, nil
}

// queryBatch issues one request covering the containing box and matches
// the returned elements back onto the per-point boxes.
func (c *Client) queryBatch(ctx context.Context, boxes []geo.BoundingBox, containing geo.BoundingBox, types []QueryType) ([][]schema.Feature, error) {
	var clauses strings.Builder
	for _, qt := range types {
		for _, element := range qt.Elements {
			fmt.Fprintf(&clauses, "%s%s;", element, qt.selector())
		}
	}
	query := fmt.Sprintf("[out:json][bbox:%s];(%s);out body geom;", containing.Query(), clauses.String())

	body, err := c.fetch(ctx, query)
	if err != nil {
		return nil, err
	}
	var response overpassResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("decoding overpass response: %w", err)
	}

	out := make([][]schema.Feature, len(boxes))
	for i, box := range boxes {
		seen := make(map[int64]bool)
		for _, element := range response.Elements {
			if seen[element.ID] || !element.inBox(box) {
				continue
			}
			for _, qt := range types {
				if qt.Matches(element.Tags) {
					out[i] = append(out[i], element.feature())
					seen[element.ID] = true
					break
				}
			}
		}
	}
	return out, nil
}

// retryableStatus reports transient failures worth retrying. Overpass
// rate limits with 429 and sheds load with 503.
func retryableStatus(code int) bool {
	switch code {
	case http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout,
		http.StatusTooManyRequests:
		return true
	}
	return false
}

// retryAfter parses the Retry-After header, either delay seconds or an
// HTTP date, capped at maxRetryAfter. Zero means no usable header.
func retryAfter(resp *http.Response) time.Duration {
	header := resp.Header.Get("Retry-After")
	if header == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(header); err == nil && seconds > 0 {
		return min(time.Duration(seconds)*time.Second, maxRetryAfter)
	}
	if at, err := http.ParseTime(header); err == nil {
		if wait := time.Until(at); wait > 0 {
			return min(wait, maxRetryAfter)
		}
	}
	return 0
}

// fetch issues the query with caching and bounded retries.
func (c *Client) fetch(ctx context.Context, query string) ([]byte, error) {
	key := cacheKey(query)
	if c.cache != nil {
		if cached, version, _, err := c.cache.Get(key); err == nil && version == cacheVersion {
			return cached, nil
		}
	}

	requestURL := c.endpoint + "?data=" + url.QueryEscape(query)
	var body []byte
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		started := time.Now()
		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if retryableStatus(resp.StatusCode) {
			if wait := retryAfter(resp); wait > 0 {
				contract.Logger.Debug().
					Dur("wait", wait).
					Str("status", resp.Status).
					Msg("overpass asked to back off")
				select {
				case <-ctx.Done():
					return backoff.Permanent(ctx.Err())
				case <-time.After(wait):
				}
			}
			return fmt.Errorf("overpass returned %s", resp.Status)
		}
		if resp.StatusCode != http.StatusOK {
			return backoff.Permanent(fmt.Errorf("overpass returned %s", resp.Status))
		}
		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		contract.Logger.Debug().
			Dur("elapsed", time.Since(started)).
			Int("bytes", len(body)).
			Msg("overpass query done")
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(
		backoff.NewExponentialBackOff(backoff.WithInitialInterval(initialInterval)),
		maxRetries), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, fmt.Errorf("querying overpass: %w", err)
	}

	if c.cache != nil {
		if err := c.cache.Set(key, body, cacheVersion, time.Now().Unix()); err != nil {
			contract.Logger.Warn().Err(err).Msg("caching overpass response failed")
		}
	}
	return body, nil
}

// cacheKey hashes the query so cache entries stay short and opaque.
func cacheKey(query string) string {
	sum := sha1.Sum([]byte(query))
	return "overpass:" + hex.EncodeToString(sum[:])
}
