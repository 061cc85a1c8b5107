// Package filter provides the declarative predicate clients use to request
// stored events and register for live matches.
//
// A filter constrains events on ids, authors, kinds, single-letter tag
// values, and a created_at window. Absent fields impose no constraint.
// Fields conjunct; values within one field disjunct. Tag constraints
// conjunct across distinct tag names and disjunct within one name.
package filter

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/murmur/internal/event"
)

// Filter is a single declarative predicate over events.
//
// Tags maps a single-letter tag name (without the wire "#" prefix) to the
// set of accepted values for that name.
type Filter struct {
	IDs     []string
	Authors []string
	Kinds   []int
	Tags    map[string][]string
	Since   *int64
	Until   *int64
	Limit   int
}

// Validate checks structural sanity: tag names must be single ASCII
// letters and limit must be non-negative.
func (f *Filter) Validate() error {
	for name := range f.Tags {
		if !indexableTagName(name) {
			return fmt.Errorf("tag filter %q: name must be a single letter", name)
		}
	}
	if f.Limit < 0 {
		return fmt.Errorf("limit must be non-negative, got %d", f.Limit)
	}
	return nil
}

// Matches reports whether the event satisfies every constraint the filter
// declares.
func (f *Filter) Matches(e *event.Event) bool {
	if len(f.IDs) > 0 && !containsString(f.IDs, e.ID) {
		return false
	}
	if len(f.Authors) > 0 && !containsString(f.Authors, e.PubKey) {
		return false
	}
	if len(f.Kinds) > 0 && !containsInt(f.Kinds, e.Kind) {
		return false
	}
	if f.Since != nil && e.CreatedAt < *f.Since {
		return false
	}
	if f.Until != nil && e.CreatedAt > *f.Until {
		return false
	}
	for name, accepted := range f.Tags {
		if !hasTagValue(e, name, accepted) {
			return false
		}
	}
	return true
}

// MatchesAny reports whether any filter in the list matches the event.
// An empty list matches nothing.
func MatchesAny(filters []Filter, e *event.Event) bool {
	for i := range filters {
		if filters[i].Matches(e) {
			return true
		}
	}
	return false
}

// hasTagValue reports whether the event carries at least one tag with the
// given name whose value is in the accepted set.
func hasTagValue(e *event.Event, name string, accepted []string) bool {
	for _, tag := range e.Tags {
		if len(tag) >= 2 && tag[0] == name && containsString(accepted, tag[1]) {
			return true
		}
	}
	return false
}

func indexableTagName(name string) bool {
	if len(name) != 1 {
		return false
	}
	c := name[0]
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

func containsInt(haystack []int, needle int) bool {
	for _, n := range haystack {
		if n == needle {
			return true
		}
	}
	return false
}

// wireFilter is the fixed-key part of the JSON form. Tag constraints use
// dynamic "#x" keys and are handled separately.
type wireFilter struct {
	IDs     []string `json:"ids,omitempty"`
	Authors []string `json:"authors,omitempty"`
	Kinds   []int    `json:"kinds,omitempty"`
	Since   *int64   `json:"since,omitempty"`
	Until   *int64   `json:"until,omitempty"`
	Limit   int      `json:"limit,omitempty"`
}

// UnmarshalJSON decodes the wire form, collecting "#x" keys into Tags.
// Unknown non-tag keys are ignored so newer clients degrade gracefully.
func (f *Filter) UnmarshalJSON(data []byte) error {
	var w wireFilter
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("decode filter: %w", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode filter: %w", err)
	}

	var tags map[string][]string
	for key, val := range raw {
		if len(key) < 2 || key[0] != '#' {
			continue
		}
		var values []string
		if err := json.Unmarshal(val, &values); err != nil {
			return fmt.Errorf("decode filter tag %q: %w", key, err)
		}
		if tags == nil {
			tags = make(map[string][]string)
		}
		tags[key[1:]] = values
	}

	*f = Filter{
		IDs:     w.IDs,
		Authors: w.Authors,
		Kinds:   w.Kinds,
		Tags:    tags,
		Since:   w.Since,
		Until:   w.Until,
		Limit:   w.Limit,
	}
	return nil
}

// MarshalJSON encodes the wire form, emitting Tags as "#x" keys.
func (f Filter) MarshalJSON() ([]byte, error) {
	out := make(map[string]any)
	if len(f.IDs) > 0 {
		out["ids"] = f.IDs
	}
	if len(f.Authors) > 0 {
		out["authors"] = f.Authors
	}
	if len(f.Kinds) > 0 {
		out["kinds"] = f.Kinds
	}
	if f.Since != nil {
		out["since"] = *f.Since
	}
	if f.Until != nil {
		out["until"] = *f.Until
	}
	if f.Limit > 0 {
		out["limit"] = f.Limit
	}
	for name, values := range f.Tags {
		out["#"+name] = values
	}
	return json.Marshal(out)
}
