package graph

import (
	"cmp"
	"slices"
)

// Diff is the outcome of reconciling an old set against a new one.
type Diff[K cmp.Ordered] struct {
	ToAdd    []K
	ToRemove []K
	ToKeep   []K
}

// Empty reports whether the sets were identical.
func (d Diff[K]) Empty() bool {
	return len(d.ToAdd) == 0 && len(d.ToRemove) == 0
}

// Reconcile compares two sets and returns what to add, remove and keep.
// Duplicates in either input are ignored; every output is sorted.
func Reconcile[K cmp.Ordered](old, next []K) Diff[K] {
	inOld := make(map[K]bool, len(old))
	for _, k := range old {
		inOld[k] = true
	}
	inNext := make(map[K]bool, len(next))
	for _, k := range next {
		inNext[k] = true
	}

	var d Diff[K]
	for k := range inNext {
		if inOld[k] {
			d.ToKeep = append(d.ToKeep, k)
		} else {
			d.ToAdd = append(d.ToAdd, k)
		}
	}
	for k := range inOld {
		if !inNext[k] {
			d.ToRemove = append(d.ToRemove, k)
		}
	}
	slices.Sort(d.ToAdd)
	slices.Sort(d.ToRemove)
	slices.Sort(d.ToKeep)
	return d
}
