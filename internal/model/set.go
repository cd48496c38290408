package model

import (
	"encoding/json"
	"sort"
)

// StringSet is an unordered set of strings with a deterministic JSON form.
// The zero value is an empty set ready to use.
type StringSet struct {
	m map[string]struct{}
}

// NewStringSet returns a set holding the non-empty values.
func NewStringSet(values ...string) StringSet {
	var s StringSet
	for _, v := range values {
		s.Add(v)
	}
	return s
}

// Add inserts v. Empty strings are ignored.
func (s *StringSet) Add(v string) {
	if v == "" {
		return
	}
	if s.m == nil {
		s.m = make(map[string]struct{})
	}
	s.m[v] = struct{}{}
}

// Has reports whether v is in the set.
func (s StringSet) Has(v string) bool {
	_, ok := s.m[v]
	return ok
}

// Len returns the number of elements.
func (s StringSet) Len() int {
	return len(s.m)
}

// Sorted returns the elements in ascending order.
func (s StringSet) Sorted() []string {
	out := make([]string, 0, len(s.m))
	for v := range s.m {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// Union returns a new set holding the elements of all given sets.
func Union(sets ...StringSet) StringSet {
	var out StringSet
	for _, s := range sets {
		for v := range s.m {
			out.Add(v)
		}
	}
	return out
}

// Clone returns an independent copy of s.
func (s StringSet) Clone() StringSet {
	return Union(s)
}

// MarshalJSON writes the set as a sorted array.
func (s StringSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

// UnmarshalJSON reads an array of strings.
func (s *StringSet) UnmarshalJSON(data []byte) error {
	var values []string
	if err := json.Unmarshal(data, &values); err != nil {
		return err
	}
	*s = NewStringSet(values...)
	return nil
}
