package core

import (
	"encoding/json"
	"strings"

	"github.com/smittestopp/smittestoppbackend/schema"
)

// Selector picks keys at one level of a nested JSON document.
type Selector struct {
	all     bool
	exclude map[string]bool
	keys    map[string]bool
	match   func(string) bool
}

// SelectAll keeps every key at this level.
func SelectAll() Selector {
	return Selector{all: true}
}

// SelectKeys keeps exactly the named keys.
func SelectKeys(keys ...string) Selector {
	set := make(map[string]bool, len(keys))
	for _, k := range keys {
		set[k] = true
	}
	return Selector{keys: set}
}

// SelectNot keeps every key except the named ones.
func SelectNot(keys ...string) Selector {
	set := make(map[string]bool, len(keys))
	for _, k := range keys {
		set[k] = true
	}
	return Selector{all: true, exclude: set}
}

// SelectMatch keeps keys accepted by the predicate.
func SelectMatch(match func(string) bool) Selector {
	return Selector{match: match}
}

func (s Selector) matches(key string) bool {
	if s.all {
		return !s.exclude[key]
	}
	if s.keys[key] {
		return true
	}
	return s.match != nil && s.match(key)
}

// Rule is one path of selectors from the document root to the values it
// keeps.
type Rule []Selector

// FilterNested copies the values matched by any rule into a fresh
// document. Rules longer than the document depth select nothing there.
func FilterNested(doc map[string]any, rules []Rule) map[string]any {
	out := make(map[string]any)
	for _, rule := range rules {
		applyRule(doc, rule, out)
	}
	return out
}

func applyRule(src map[string]any, rule Rule, dst map[string]any) {
	if len(rule) == 0 {
		return
	}
	sel := rule[0]
	for key, value := range src {
		if !sel.matches(key) {
			continue
		}
		if len(rule) == 1 {
			dst[key] = value
			continue
		}
		sub, ok := value.(map[string]any)
		if !ok {
			continue
		}
		nested, ok := dst[key].(map[string]any)
		if !ok {
			nested = make(map[string]any)
		}
		applyRule(sub, rule[1:], nested)
		if len(nested) > 0 {
			dst[key] = nested
		}
	}
}

func isBTDuration(key string) bool {
	return strings.HasPrefix(key, "bt_") && strings.HasSuffix(key, "_duration")
}

// DeliveryRules whitelists the daily report fields the health authority
// receives. Everything else stays internal.
var DeliveryRules = []Rule{
	{SelectAll(), SelectKeys("cumulative"), SelectKeys("all_contacts"),
		SelectKeys("points_of_interest", "number_of_contacts", "risk_cat", "days_in_contact")},
	{SelectAll(), SelectKeys("cumulative"), SelectKeys("bt_contacts", "gps_contacts"),
		SelectKeys("cumulative_duration", "cumulative_risk_score", "days_in_contact")},
	{SelectAll(), SelectKeys("cumulative"), SelectKeys("bt_contacts"), SelectMatch(isBTDuration)},
	{SelectAll(), SelectKeys("daily"), SelectAll(), SelectKeys("all_contacts"),
		SelectKeys("points_of_interest")},
	{SelectAll(), SelectKeys("daily"), SelectAll(), SelectKeys("bt_contacts", "gps_contacts"),
		SelectKeys("cumulative_duration", "number_of_contacts")},
	{SelectAll(), SelectKeys("daily"), SelectAll(), SelectKeys("bt_contacts"), SelectMatch(isBTDuration)},
}

// FilterDailyReport reduces a daily report to the delivery whitelist.
// The version info survives untouched.
func FilterDailyReport(report *schema.DailyReport) (map[string]any, error) {
	raw, err := json.Marshal(report)
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	if contacts, ok := doc["contacts"].(map[string]any); ok {
		doc["contacts"] = FilterNested(contacts, DeliveryRules)
	}
	return doc, nil
}
