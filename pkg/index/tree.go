package index

import (
	"fmt"

	"github.com/paulmach/orb"

	"github.com/NERVsystems/osmtopology/pkg/mapdata"
)

// Default tree parameters
const (
	DefaultSplitThreshold = 11
	DefaultMinShrink      = 5
)

// TreeOptions tune the leaf split heuristic of a Tree
type TreeOptions struct {
	// SplitThreshold is the number of ways and areas in a leaf at which
	// a split is attempted
	SplitThreshold int
	// MinShrink is how much smaller than the leaf both halves of a split
	// must be for the split to be kept
	MinShrink int
}

// DefaultTreeOptions returns the standard split heuristic
func DefaultTreeOptions() TreeOptions {
	return TreeOptions{
		SplitThreshold: DefaultSplitThreshold,
		MinShrink:      DefaultMinShrink,
	}
}

// Tree is an adaptive 2D tree. Inner nodes split space along X or Z;
// leaves split once they hold too many ways and areas, as long as the
// split actually makes them smaller.
type Tree struct {
	root *innerNode
	opts TreeOptions
}

// NewTree creates a tree whose root splits bounds along X at its midpoint
func NewTree(bounds orb.Bound, opts TreeOptions) *Tree {
	if opts.SplitThreshold <= 0 {
		opts.SplitThreshold = DefaultSplitThreshold
	}
	if opts.MinShrink <= 0 {
		opts.MinShrink = DefaultMinShrink
	}
	return &Tree{
		root: newInnerNode(true, (bounds.Min[0]+bounds.Max[0])/2),
		opts: opts,
	}
}

type treeNode interface {
	add(t *Tree, it Item, suppressSplits bool)
	collectLeaves(leaves []Leaf) []Leaf
	probe(b orb.Bound, leaves []Leaf) []Leaf
	depth() int
}

type innerNode struct {
	splitAlongX bool
	split       float64
	lower       treeNode
	upper       treeNode
}

func newInnerNode(splitAlongX bool, split float64) *innerNode {
	n := &innerNode{splitAlongX: splitAlongX, split: split}
	n.lower = &treeLeaf{parent: n}
	n.upper = &treeLeaf{parent: n}
	return n
}

func (n *innerNode) coord(p orb.Point) float64 {
	if n.splitAlongX {
		return p[0]
	}
	return p[1]
}

func (n *innerNode) add(t *Tree, it Item, suppressSplits bool) {
	var toLower, toUpper bool
	for _, a := range it.Anchors {
		v := n.coord(a)
		toLower = toLower || v <= n.split
		toUpper = toUpper || v >= n.split
	}

	// a split may replace the child while we are adding to it, so
	// the upper child is read only after the lower one is done
	if toLower {
		n.lower.add(t, it, suppressSplits)
	}
	if toUpper {
		n.upper.add(t, it, suppressSplits)
	}
}

// trySplitLeaf replaces leaf by an inner node if that makes both halves
// sufficiently smaller than the leaf
func (n *innerNode) trySplitLeaf(t *Tree, leaf *treeLeaf) {
	splitAlongX := !n.splitAlongX

	var sum float64
	var count int
	for _, it := range leaf.items {
		for _, a := range it.Anchors {
			if splitAlongX {
				sum += a[0]
			} else {
				sum += a[1]
			}
			count++
		}
	}
	if count == 0 {
		return
	}

	candidate := newInnerNode(splitAlongX, sum/float64(count))
	for _, it := range leaf.items {
		candidate.add(t, it, true)
	}

	limit := len(leaf.items) - t.opts.MinShrink
	if candidate.lower.(*treeLeaf).Len() >= limit || candidate.upper.(*treeLeaf).Len() >= limit {
		return
	}

	var node treeNode = leaf
	switch node {
	case n.lower:
		n.lower = candidate
	case n.upper:
		n.upper = candidate
	default:
		panic(fmt.Sprintf("index: leaf with %d items is not a child of its parent", len(leaf.items)))
	}
}

func (n *innerNode) collectLeaves(leaves []Leaf) []Leaf {
	leaves = n.lower.collectLeaves(leaves)
	return n.upper.collectLeaves(leaves)
}

func (n *innerNode) probe(b orb.Bound, leaves []Leaf) []Leaf {
	if n.coord(b.Min) <= n.split {
		leaves = n.lower.probe(b, leaves)
	}
	if n.coord(b.Max) >= n.split {
		leaves = n.upper.probe(b, leaves)
	}
	return leaves
}

func (n *innerNode) depth() int {
	return 1 + max(n.lower.depth(), n.upper.depth())
}

type treeLeaf struct {
	parent *innerNode
	items  []Item
	heavy  int
}

func (l *treeLeaf) add(t *Tree, it Item, suppressSplits bool) {
	l.items = append(l.items, it)
	if it.Heavy {
		l.heavy++
	}
	if !suppressSplits && l.heavy >= t.opts.SplitThreshold {
		l.parent.trySplitLeaf(t, l)
	}
}

func (l *treeLeaf) collectLeaves(leaves []Leaf) []Leaf {
	return append(leaves, l)
}

func (l *treeLeaf) probe(_ orb.Bound, leaves []Leaf) []Leaf {
	return append(leaves, l)
}

func (l *treeLeaf) depth() int { return 0 }

// Handles returns the handles in the leaf in insertion order
func (l *treeLeaf) Handles() []mapdata.Handle {
	out := make([]mapdata.Handle, len(l.items))
	for i, it := range l.items {
		out[i] = it.Handle
	}
	return out
}

// Len returns the number of items in the leaf
func (l *treeLeaf) Len() int { return len(l.items) }

// Insert adds an item to every leaf whose region contains one of its anchors
func (t *Tree) Insert(it Item) {
	if len(it.Anchors) == 0 {
		panic(fmt.Sprintf("index: item %d has no anchors", it.Handle))
	}
	t.root.add(t, it, false)
}

// Leaves returns all leaves depth-first, lower child before upper child.
// Leaves left empty by a split are included.
func (t *Tree) Leaves() []Leaf {
	return t.root.collectLeaves(nil)
}

// Probe returns the leaves whose region overlaps the bounds
func (t *Tree) Probe(b orb.Bound) []Leaf {
	return t.root.probe(b, nil)
}

// Depth returns the number of inner nodes on the longest path from the root
func (t *Tree) Depth() int {
	return t.root.depth()
}

// Stats summarises the current shape of the tree
func (t *Tree) Stats() Stats {
	return statsFor(t.Leaves(), t.Depth())
}
