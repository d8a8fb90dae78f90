package event

import (
	"encoding/json"
	"sort"
	"strings"
)

// Filter is a subscription selector (spec.md §3/§4.10). All populated
// selectors are ANDed together; values within a list selector are ORed.
// Tags holds the dynamic "#x" selectors keyed by the single letter x
// (e.g. Tags["e"] for #e, Tags["p"] for #p); any letter a-z/A-Z is legal
// and round-trips, including an explicitly empty list.
type Filter struct {
	IDs     []string
	Authors []string
	Kinds   []int
	Tags    map[string][]string
	Since   *int64
	Until   *int64
	Limit   *int
}

// Matches reports whether e satisfies every populated selector in f.
func (f Filter) Matches(e *Event) bool {
	if len(f.IDs) > 0 && !containsString(f.IDs, e.ID) {
		return false
	}
	if len(f.Authors) > 0 && !containsString(f.Authors, e.PubKey.Hex()) {
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
	for letter, want := range f.Tags {
		if len(want) == 0 {
			continue
		}
		if !eventHasTagValue(e.Tags, letter, want) {
			return false
		}
	}
	return true
}

func containsString(haystack []string, v string) bool {
	for _, h := range haystack {
		if h == v {
			return true
		}
	}
	return false
}

func containsInt(haystack []int, v int) bool {
	for _, h := range haystack {
		if h == v {
			return true
		}
	}
	return false
}

func eventHasTagValue(tags Tags, letter string, want []string) bool {
	for _, tag := range tags {
		if len(tag) < 2 || tag[0] != letter {
			continue
		}
		if containsString(want, tag[1]) {
			return true
		}
	}
	return false
}

// Equal compares two filters by value, including the dynamic tag map.
func (f Filter) Equal(other Filter) bool {
	a, _ := json.Marshal(f)
	b, _ := json.Marshal(other)
	return string(a) == string(b)
}

// MarshalJSON renders the wire encoding: known selectors plus a flattened set
// of "#x" keys for the dynamic tag map, matching NIP-01's field names
// (spec.md §4.7/§6). Absent selectors are omitted entirely, never
// emitted as null.
func (f Filter) MarshalJSON() ([]byte, error) {
	m := make(map[string]interface{}, 4+len(f.Tags))
	if len(f.IDs) > 0 {
		m["ids"] = f.IDs
	}
	if len(f.Authors) > 0 {
		m["authors"] = f.Authors
	}
	if len(f.Kinds) > 0 {
		m["kinds"] = f.Kinds
	}
	if f.Since != nil {
		m["since"] = *f.Since
	}
	if f.Until != nil {
		m["until"] = *f.Until
	}
	if f.Limit != nil {
		m["limit"] = *f.Limit
	}
	letters := make([]string, 0, len(f.Tags))
	for letter := range f.Tags {
		letters = append(letters, letter)
	}
	sort.Strings(letters)
	for _, letter := range letters {
		m["#"+letter] = f.Tags[letter]
	}
	return json.Marshal(m)
}

func (f *Filter) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*f = Filter{}
	for key, value := range raw {
		switch key {
		case "ids":
			if err := json.Unmarshal(value, &f.IDs); err != nil {
				return err
			}
		case "authors":
			if err := json.Unmarshal(value, &f.Authors); err != nil {
				return err
			}
		case "kinds":
			if err := json.Unmarshal(value, &f.Kinds); err != nil {
				return err
			}
		case "since":
			var v int64
			if err := json.Unmarshal(value, &v); err != nil {
				return err
			}
			f.Since = &v
		case "until":
			var v int64
			if err := json.Unmarshal(value, &v); err != nil {
				return err
			}
			f.Until = &v
		case "limit":
			var v int
			if err := json.Unmarshal(value, &v); err != nil {
				return err
			}
			f.Limit = &v
		default:
			if !strings.HasPrefix(key, "#") || len(key) != 2 {
				continue
			}
			var v []string
			if err := json.Unmarshal(value, &v); err != nil {
				return err
			}
			if f.Tags == nil {
				f.Tags = make(map[string][]string)
			}
			f.Tags[key[1:]] = v
		}
	}
	return nil
}
