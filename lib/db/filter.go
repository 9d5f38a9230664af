package db

import (
	"bytes"

	"github.com/syndtr/goleveldb/leveldb/util"
)

// FilterOptions describes a range over the ordered key space.
//
// Gt and Lt are exclusive bounds, Gte and Lte inclusive bounds. A nil or empty bound
// means the range is unbounded on that side. If both the exclusive and the inclusive
// bound of one side are set, the exclusive bound wins.
// Reverse iterates from the upper end of the range, Limit > 0 caps the number of results.
//
// A nil *FilterOptions selects the whole key space.
type FilterOptions struct {
	Gt      []byte `json:"gt,omitempty"`
	Gte     []byte `json:"gte,omitempty"`
	Lt      []byte `json:"lt,omitempty"`
	Lte     []byte `json:"lte,omitempty"`
	Reverse bool   `json:"reverse,omitempty"`
	Limit   int    `json:"limit,omitempty"`
}

// PrefixFilter returns the options selecting exactly the keys starting with prefix.
func PrefixFilter(prefix []byte) *FilterOptions {
	r := util.BytesPrefix(prefix)
	return &FilterOptions{Gte: r.Start, Lt: r.Limit}
}

// Bounds translates the options into the half open interval [lower, upper).
// A nil bound means the interval is open on that side.
func (o *FilterOptions) Bounds() (lower, upper []byte) {
	if o == nil {
		return nil, nil
	}

	switch {
	case len(o.Gt) > 0:
		lower = successor(o.Gt)
	case len(o.Gte) > 0:
		lower = clone(o.Gte)
	}

	switch {
	case len(o.Lt) > 0:
		upper = clone(o.Lt)
	case len(o.Lte) > 0:
		upper = successor(o.Lte)
	}

	return lower, upper
}

// Empty reports whether the range can not contain any key.
func (o *FilterOptions) Empty() bool {
	lower, upper := o.Bounds()
	return lower != nil && upper != nil && bytes.Compare(lower, upper) >= 0
}

// Contains reports whether key lies inside the range (ignoring Limit).
func (o *FilterOptions) Contains(key []byte) bool {
	lower, upper := o.Bounds()
	if lower != nil && bytes.Compare(key, lower) < 0 {
		return false
	}
	if upper != nil && bytes.Compare(key, upper) >= 0 {
		return false
	}
	return true
}

func (o *FilterOptions) limit() int {
	if o == nil || o.Limit < 0 {
		return 0
	}
	return o.Limit
}

func (o *FilterOptions) reverse() bool {
	return o != nil && o.Reverse
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// successor returns the smallest key that is strictly greater than key.
func successor(key []byte) []byte {
	next := make([]byte, len(key)+1)
	copy(next, key)
	return next
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	c := make([]byte, len(b))
	copy(c, b)
	return c
}
