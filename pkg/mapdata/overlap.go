package mapdata

import (
	"errors"
	"fmt"
	"slices"

	"github.com/paulmach/orb"
)

// ErrNotParticipant is the panic cause when an overlap is asked about an
// element that is neither of its two participants
var ErrNotParticipant = errors.New("element does not participate in overlap")

// OverlapKind classifies the spatial relation of two elements
type OverlapKind uint8

// Overlap kinds
const (
	Intersect OverlapKind = iota + 1
	Contain
	ShareSegment
)

// OverlapKinds lists every kind in a stable order
var OverlapKinds = []OverlapKind{Intersect, Contain, ShareSegment}

func (k OverlapKind) String() string {
	switch k {
	case Intersect:
		return "INTERSECT"
	case Contain:
		return "CONTAIN"
	case ShareSegment:
		return "SHARE_SEGMENT"
	default:
		return fmt.Sprintf("OverlapKind(%d)", uint8(k))
	}
}

// MarshalText implements encoding.TextMarshaler
func (k OverlapKind) MarshalText() ([]byte, error) {
	switch k {
	case Intersect, Contain, ShareSegment:
		return []byte(k.String()), nil
	default:
		return nil, fmt.Errorf("invalid overlap kind %d", uint8(k))
	}
}

// UnmarshalText implements encoding.TextUnmarshaler
func (k *OverlapKind) UnmarshalText(text []byte) error {
	for _, c := range OverlapKinds {
		if c.String() == string(text) {
			*k = c
			return nil
		}
	}
	return fmt.Errorf("unknown overlap kind %q", text)
}

// Overlap is a confirmed relation between two elements. For Contain the
// container is A and the contained element is B. An overlap never changes
// after it has been created.
type Overlap struct {
	A, B Handle
	Kind OverlapKind

	positions []orb.Point
	wayArea   *WayArea
	wayWay    *WayWay
}

// NewOverlap creates an overlap carrying only intersection positions, as
// used for area-area and node-area relations
func NewOverlap(a, b Handle, kind OverlapKind, positions []orb.Point) Overlap {
	return Overlap{A: a, B: b, Kind: kind, positions: positions}
}

// NewWayAreaOverlap creates a way-area overlap with its geometric payload
func NewWayAreaOverlap(way, area Handle, payload *WayArea) Overlap {
	return Overlap{
		A:         way,
		B:         area,
		Kind:      payload.kind,
		positions: payload.positions,
		wayArea:   payload,
	}
}

// NewWayWayOverlap creates a way-way overlap with its geometric payload
func NewWayWayOverlap(a, b Handle, payload *WayWay) Overlap {
	return Overlap{
		A:         a,
		B:         b,
		Kind:      payload.kind,
		positions: payload.positions,
		wayWay:    payload,
	}
}

// Other returns the participant that is not h. Asking with a handle that
// is not part of the overlap is a programming error and panics.
func (o Overlap) Other(h Handle) Handle {
	switch h {
	case o.A:
		return o.B
	case o.B:
		return o.A
	}
	panic(fmt.Errorf("%w: handle %d asked about %s overlap between %d and %d",
		ErrNotParticipant, h, o.Kind, o.A, o.B))
}

// Involves reports whether h is one of the two participants
func (o Overlap) Involves(h Handle) bool {
	return o.A == h || o.B == h
}

// Positions returns a copy of the intersection positions of the overlap
func (o Overlap) Positions() []orb.Point {
	return slices.Clone(o.positions)
}

// WayArea returns the way-area payload, or nil for other overlaps
func (o Overlap) WayArea() *WayArea {
	return o.wayArea
}

// WayWay returns the way-way payload, or nil for other overlaps
func (o Overlap) WayWay() *WayWay {
	return o.wayWay
}

// Pair returns the order-independent key of the participants
func (o Overlap) Pair() PairKey {
	return MakePairKey(o.A, o.B)
}

// PairKey identifies an unordered pair of elements
type PairKey struct {
	Low, High Handle
}

// MakePairKey returns the key of the unordered pair {a, b}
func MakePairKey(a, b Handle) PairKey {
	if b < a {
		a, b = b, a
	}
	return PairKey{Low: a, High: b}
}
