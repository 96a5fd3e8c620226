package textproc

import (
	"encoding/json"
	"sort"
)

// Set is an unordered collection of distinct strings.
type Set map[string]struct{}

// NewSet builds a set from the given items.
func NewSet(items ...string) Set {
	s := make(Set, len(items))
	for _, item := range items {
		s[item] = struct{}{}
	}
	return s
}

func (s Set) Add(item string) {
	s[item] = struct{}{}
}

func (s Set) Has(item string) bool {
	_, ok := s[item]
	return ok
}

func (s Set) Len() int {
	return len(s)
}

// IntersectionSize counts the items present in both sets.
func (s Set) IntersectionSize(other Set) int {
	small, large := s, other
	if len(small) > len(large) {
		small, large = large, small
	}
	n := 0
	for item := range small {
		if large.Has(item) {
			n++
		}
	}
	return n
}

// UnionSize counts the distinct items across both sets.
func (s Set) UnionSize(other Set) int {
	return len(s) + len(other) - s.IntersectionSize(other)
}

// Sorted returns the items in lexical order.
func (s Set) Sorted() []string {
	out := make([]string, 0, len(s))
	for item := range s {
		out = append(out, item)
	}
	sort.Strings(out)
	return out
}

// MarshalJSON renders the set as a sorted array so output is stable.
func (s Set) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

func (s *Set) UnmarshalJSON(data []byte) error {
	var items []string
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	*s = NewSet(items...)
	return nil
}
