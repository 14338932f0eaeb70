package mapdata

import (
	"fmt"

	"github.com/paulmach/orb"
)

// OverlapID addresses an overlap inside its Dataset
type OverlapID int

// Dataset is the arena of one conversion run. It owns every element and
// the side table of confirmed overlaps; indexes and overlaps refer to
// elements only through handles.
//
// A Dataset is not safe for concurrent mutation. Concurrent reads are fine
// once all elements and overlaps have been added.
type Dataset struct {
	elements  []Element
	bounds    orb.Bound
	boundsSet bool

	overlaps  []Overlap
	byElement [][]OverlapID
}

// NewDataset creates an empty dataset
func NewDataset() *Dataset {
	return &Dataset{}
}

// Add appends an element and returns its handle
func (d *Dataset) Add(e Element) Handle {
	d.elements = append(d.elements, e)
	d.byElement = append(d.byElement, nil)
	return Handle(len(d.elements) - 1)
}

// Len returns the number of elements
func (d *Dataset) Len() int {
	return len(d.elements)
}

// Element returns the element behind a handle
func (d *Dataset) Element(h Handle) Element {
	d.checkHandle(h)
	return d.elements[h]
}

// Handles returns all element handles in insertion order
func (d *Dataset) Handles() []Handle {
	out := make([]Handle, len(d.elements))
	for i := range out {
		out[i] = Handle(i)
	}
	return out
}

// SetBounds overrides the data boundary, e.g. with the bounds declared by
// the input file or the requested region
func (d *Dataset) SetBounds(b orb.Bound) {
	d.bounds = b
	d.boundsSet = true
}

// Bounds returns the data boundary: the explicit bounds if set, extended
// by every element's bounding box
func (d *Dataset) Bounds() orb.Bound {
	b := d.bounds
	first := !d.boundsSet
	for _, e := range d.elements {
		if first {
			b = e.Bounds()
			first = false
			continue
		}
		b = b.Union(e.Bounds())
	}
	return b
}

// AddOverlap records a confirmed overlap for both of its participants
func (d *Dataset) AddOverlap(o Overlap) OverlapID {
	d.checkHandle(o.A)
	d.checkHandle(o.B)

	id := OverlapID(len(d.overlaps))
	d.overlaps = append(d.overlaps, o)
	d.byElement[o.A] = append(d.byElement[o.A], id)
	if o.B != o.A {
		d.byElement[o.B] = append(d.byElement[o.B], id)
	}
	return id
}

// Overlap returns a single overlap by id
func (d *Dataset) Overlap(id OverlapID) Overlap {
	return d.overlaps[id]
}

// Overlaps returns all overlaps the element participates in, in the order
// they were recorded
func (d *Dataset) Overlaps(h Handle) []Overlap {
	d.checkHandle(h)
	ids := d.byElement[h]
	out := make([]Overlap, len(ids))
	for i, id := range ids {
		out[i] = d.overlaps[id]
	}
	return out
}

// OverlapCount returns the number of recorded overlaps
func (d *Dataset) OverlapCount() int {
	return len(d.overlaps)
}

// AllOverlaps returns every recorded overlap
func (d *Dataset) AllOverlaps() []Overlap {
	out := make([]Overlap, len(d.overlaps))
	copy(out, d.overlaps)
	return out
}

// CopyElements returns a new dataset sharing this dataset's elements and
// bounds but none of its overlaps. Handles stay valid across the copy.
func (d *Dataset) CopyElements() *Dataset {
	c := &Dataset{
		elements:  make([]Element, len(d.elements)),
		bounds:    d.bounds,
		boundsSet: d.boundsSet,
		byElement: make([][]OverlapID, len(d.elements)),
	}
	copy(c.elements, d.elements)
	return c
}

func (d *Dataset) checkHandle(h Handle) {
	if h < 0 || int(h) >= len(d.elements) {
		panic(fmt.Sprintf("mapdata: handle %d out of range [0, %d)", h, len(d.elements)))
	}
}
