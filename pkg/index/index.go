// Package index provides the spatial indexes that group map elements into
// leaves or cells of nearby elements. Elements sharing no leaf cannot
// overlap, so only pairs within a leaf need a narrow-phase test.
//
// Both indexes hold handles only; the dataset owning the elements must
// outlive the index. Insertion is single-threaded. Reading leaves after
// construction is safe from multiple goroutines.
package index

import (
	"github.com/paulmach/orb"

	"github.com/NERVsystems/osmtopology/pkg/mapdata"
)

// Item is what an index needs to know about an element
type Item struct {
	Handle  mapdata.Handle
	Bounds  orb.Bound
	Anchors []orb.Point
	// Heavy marks ways and areas. Only heavy items count towards the
	// tree's split threshold.
	Heavy bool
}

// ItemFor returns the index item for an element of a dataset
func ItemFor(h mapdata.Handle, e mapdata.Element) Item {
	return Item{
		Handle:  h,
		Bounds:  e.Bounds(),
		Anchors: e.Anchors(),
		Heavy:   e.Kind() != mapdata.KindNode,
	}
}

// Leaf is a group of elements that may overlap each other
type Leaf interface {
	Handles() []mapdata.Handle
	Len() int
}

// SpatialIndex groups items into leaves
type SpatialIndex interface {
	Insert(it Item)
	// Leaves returns every leaf in a deterministic order
	Leaves() []Leaf
	// Probe returns the leaves an item with the given bounds would be
	// placed in, without inserting anything
	Probe(b orb.Bound) []Leaf
	Stats() Stats
}

// Stats summarises the shape of an index
type Stats struct {
	Leaves         int `json:"leaves"`
	NonEmptyLeaves int `json:"nonEmptyLeaves"`
	MaxLeafSize    int `json:"maxLeafSize"`
	// References counts handles over all leaves, duplicates included
	References int `json:"references"`
	Depth      int `json:"depth"`
}

func statsFor(leaves []Leaf, depth int) Stats {
	s := Stats{Leaves: len(leaves), Depth: depth}
	for _, l := range leaves {
		n := l.Len()
		if n > 0 {
			s.NonEmptyLeaves++
		}
		if n > s.MaxLeafSize {
			s.MaxLeafSize = n
		}
		s.References += n
	}
	return s
}
