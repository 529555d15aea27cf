package ir

import "errors"

// MaxEntries is the hard capacity of a directory table and of the
// known-entry mirror.
const MaxEntries = 256

// ErrEntrySetFull is returned by EntrySet.Append when the set is at capacity.
var ErrEntrySetFull = errors.New("entry set is full")

// EntrySet is the bounded, insertion-ordered mirror of entries added through
// a wrapper record. The backing store is a fixed array with an explicit
// length, so it can never hold more than MaxEntries addresses.
//
// The zero value is an empty set ready for use.
type EntrySet struct {
	entries [MaxEntries]Address
	n       int
}

// NewEntrySet returns a set holding entries in order. Duplicates are
// collapsed; it fails if more than MaxEntries distinct entries are given.
func NewEntrySet(entries []Address) (*EntrySet, error) {
	s := &EntrySet{}
	for _, e := range entries {
		if s.Contains(e) {
			continue
		}
		if err := s.Append(e); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Len returns the number of entries.
func (s *EntrySet) Len() int {
	if s == nil {
		return 0
	}
	return s.n
}

// Remaining returns how many more entries fit.
func (s *EntrySet) Remaining() int {
	return MaxEntries - s.Len()
}

// Contains reports whether a is in the set.
func (s *EntrySet) Contains(a Address) bool {
	if s == nil {
		return false
	}
	for i := 0; i < s.n; i++ {
		if s.entries[i] == a {
			return true
		}
	}
	return false
}

// Append adds a to the end of the set. It does not check for duplicates.
func (s *EntrySet) Append(a Address) error {
	if s.n >= MaxEntries {
		return ErrEntrySetFull
	}
	s.entries[s.n] = a
	s.n++
	return nil
}

// Entries returns a copy of the entries in insertion order.
func (s *EntrySet) Entries() []Address {
	if s == nil {
		return nil
	}
	out := make([]Address, s.n)
	copy(out, s.entries[:s.n])
	return out
}

// Clone returns an independent copy.
func (s *EntrySet) Clone() *EntrySet {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}
