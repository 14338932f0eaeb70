package index

import (
	"github.com/paulmach/orb"

	"github.com/NERVsystems/osmtopology/pkg/mapdata"
)

// Default grid sizing: cells are 1/50 of the extent, over bounds padded by 1%
const (
	DefaultGridDivisions = 50
	DefaultGridPadding   = 0.01
)

// Grid is a uniform grid of cells. An item is placed in every cell its
// bounding box overlaps; coordinates outside the grid bounds are clamped
// into the border cells.
type Grid struct {
	bounds               orb.Bound
	countX, countZ       int
	cellSizeX, cellSizeZ float64
	cells                [][]*cell
}

type cell struct {
	handles []mapdata.Handle
}

func (c *cell) Handles() []mapdata.Handle { return c.handles }

func (c *cell) Len() int { return len(c.handles) }

// NewGrid creates a grid of countX by countZ cells covering bounds
func NewGrid(bounds orb.Bound, countX, countZ int) *Grid {
	countX = max(countX, 1)
	countZ = max(countZ, 1)

	cells := make([][]*cell, countX)
	for x := range cells {
		cells[x] = make([]*cell, countZ)
	}
	return &Grid{
		bounds:    bounds,
		countX:    countX,
		countZ:    countZ,
		cellSizeX: (bounds.Max[0] - bounds.Min[0]) / float64(countX),
		cellSizeZ: (bounds.Max[1] - bounds.Min[1]) / float64(countZ),
		cells:     cells,
	}
}

// NewGridWithCellSize creates a grid whose cells are at most sizeX by sizeZ
func NewGridWithCellSize(bounds orb.Bound, sizeX, sizeZ float64) *Grid {
	return NewGrid(bounds, cellCount(bounds.Max[0]-bounds.Min[0], sizeX), cellCount(bounds.Max[1]-bounds.Min[1], sizeZ))
}

func cellCount(extent, size float64) int {
	if size <= 0 {
		return 1
	}
	return int(extent/size) + 1
}

// DefaultGridFor creates a grid over bounds padded by 1% on every side,
// with cells of roughly 1/50 of the extent
func DefaultGridFor(bounds orb.Bound) *Grid {
	padX := (bounds.Max[0] - bounds.Min[0]) * DefaultGridPadding
	padZ := (bounds.Max[1] - bounds.Min[1]) * DefaultGridPadding
	padded := orb.Bound{
		Min: orb.Point{bounds.Min[0] - padX, bounds.Min[1] - padZ},
		Max: orb.Point{bounds.Max[0] + padX, bounds.Max[1] + padZ},
	}
	return NewGridWithCellSize(padded,
		(padded.Max[0]-padded.Min[0])/DefaultGridDivisions,
		(padded.Max[1]-padded.Min[1])/DefaultGridDivisions)
}

// Size returns the number of cells along X and Z
func (g *Grid) Size() (int, int) {
	return g.countX, g.countZ
}

// CellFor returns the coordinates of the cell containing the point
func (g *Grid) CellFor(x, z float64) (int, int) {
	return cellIndex(x-g.bounds.Min[0], g.cellSizeX, g.countX),
		cellIndex(z-g.bounds.Min[1], g.cellSizeZ, g.countZ)
}

func cellIndex(offset, size float64, count int) int {
	if size <= 0 {
		return 0
	}
	i := offset / size
	if i <= 0 {
		return 0
	}
	if i >= float64(count-1) {
		return count - 1
	}
	return int(i)
}

// Insert adds the item to every cell its bounding box overlaps
func (g *Grid) Insert(it Item) {
	minX, minZ := g.CellFor(it.Bounds.Min[0], it.Bounds.Min[1])
	maxX, maxZ := g.CellFor(it.Bounds.Max[0], it.Bounds.Max[1])
	for x := minX; x <= maxX; x++ {
		for z := minZ; z <= maxZ; z++ {
			c := g.cells[x][z]
			if c == nil {
				c = &cell{}
				g.cells[x][z] = c
			}
			c.handles = append(c.handles, it.Handle)
		}
	}
}

// Probe returns the non-empty cells that an item with the given bounds
// would be placed in. It does not modify the grid.
func (g *Grid) Probe(b orb.Bound) []Leaf {
	minX, minZ := g.CellFor(b.Min[0], b.Min[1])
	maxX, maxZ := g.CellFor(b.Max[0], b.Max[1])

	var out []Leaf
	for x := minX; x <= maxX; x++ {
		for z := minZ; z <= maxZ; z++ {
			if c := g.cells[x][z]; c != nil {
				out = append(out, c)
			}
		}
	}
	return out
}

// InsertAndProbe returns the non-empty cells the item would be placed in,
// then inserts it. The returned cells never contain the item itself.
func (g *Grid) InsertAndProbe(it Item) []Leaf {
	probed := g.Probe(it.Bounds)
	// snapshot so the returned leaves do not see the insertion
	out := make([]Leaf, len(probed))
	for i, l := range probed {
		c := l.(*cell)
		out[i] = &cell{handles: c.handles[:len(c.handles):len(c.handles)]}
	}
	g.Insert(it)
	return out
}

// Leaves returns the non-empty cells, x-major
func (g *Grid) Leaves() []Leaf {
	var out []Leaf
	for x := range g.cells {
		for _, c := range g.cells[x] {
			if c != nil {
				out = append(out, c)
			}
		}
	}
	return out
}

// Stats summarises the current occupation of the grid
func (g *Grid) Stats() Stats {
	return statsFor(g.Leaves(), 0)
}
