package peers

import "sort"

// IDSet is an unordered set of peer IDs.
type IDSet map[ID]struct{}

// NewIDSet returns a set containing ids.
func NewIDSet(ids ...ID) IDSet {
	s := make(IDSet, len(ids))
	s.Add(ids...)
	return s
}

// Add inserts ids into the set.
func (s IDSet) Add(ids ...ID) {
	for _, id := range ids {
		s[id] = struct{}{}
	}
}

// Remove deletes ids from the set.
func (s IDSet) Remove(ids ...ID) {
	for _, id := range ids {
		delete(s, id)
	}
}

// Contains reports whether id belongs to the set.
func (s IDSet) Contains(id ID) bool {
	_, ok := s[id]
	return ok
}

// Slice returns the members sorted by their raw bytes.
func (s IDSet) Slice() []ID {
	ids := make([]ID, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Clone returns a copy of the set.
func (s IDSet) Clone() IDSet {
	c := make(IDSet, len(s))
	for id := range s {
		c[id] = struct{}{}
	}
	return c
}
