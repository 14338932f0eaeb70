package topology

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/paulmach/orb"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/NERVsystems/osmtopology/pkg/index"
	"github.com/NERVsystems/osmtopology/pkg/mapdata"
	"github.com/NERVsystems/osmtopology/pkg/monitoring"
)

func newBuilder(t *testing.T, opts Options) *Builder {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = discardLogger()
	}
	b, err := NewBuilder(opts)
	if err != nil {
		t.Fatalf("NewBuilder failed: %v", err)
	}
	return b
}

type overlapKey struct {
	pair mapdata.PairKey
	kind mapdata.OverlapKind
}

func overlapSet(ds *mapdata.Dataset) map[overlapKey]int {
	set := make(map[overlapKey]int)
	for _, o := range ds.AllOverlaps() {
		set[overlapKey{o.Pair(), o.Kind}]++
	}
	return set
}

// randomDataset scatters nodes, short ways and small rectangles over a
// 1000x1000 square
func randomDataset(t *testing.T, seed int64, n int) *mapdata.Dataset {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	ds := mapdata.NewDataset()
	ds.SetBounds(orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{1000, 1000}})

	pt := func() orb.Point { return orb.Point{rng.Float64() * 1000, rng.Float64() * 1000} }
	near := func(p orb.Point, r float64) orb.Point {
		return orb.Point{p[0] + (rng.Float64()*2-1)*r, p[1] + (rng.Float64()*2-1)*r}
	}

	for i := 0; i < n; i++ {
		id := fmt.Sprintf("element/%d", i)
		switch i % 3 {
		case 0:
			ds.Add(mapdata.NewNode(id, pt(), nil))
		case 1:
			start := pt()
			chain := []orb.Point{start, near(start, 60), near(start, 60)}
			addWay(t, ds, id, chain...)
		case 2:
			c := pt()
			w, h := 10+rng.Float64()*80, 10+rng.Float64()*80
			addArea(t, ds, id, square(c[0], c[1], c[0]+w, c[1]+h))
		}
	}
	return ds
}

func TestParseIndexKind(t *testing.T) {
	tests := []struct {
		in      string
		want    IndexKind
		wantErr bool
	}{
		{"tree", IndexTree, false},
		{"GRID", IndexGrid, false},
		{" grid ", IndexGrid, false},
		{"", IndexTree, false},
		{"quadtree", "", true},
	}

	for _, tt := range tests {
		got, err := ParseIndexKind(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseIndexKind(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if tt.wantErr && !errors.Is(err, ErrUnknownIndex) {
			t.Errorf("ParseIndexKind(%q) expected ErrUnknownIndex, got %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseIndexKind(%q) = %q, expected %q", tt.in, got, tt.want)
		}
	}

	if _, err := NewBuilder(Options{Index: "rtree"}); !errors.Is(err, ErrUnknownIndex) {
		t.Errorf("expected NewBuilder to reject an unknown index, got %v", err)
	}
}

func TestBuildSmallScene(t *testing.T) {
	for _, kind := range []IndexKind{IndexTree, IndexGrid} {
		t.Run(string(kind), func(t *testing.T) {
			ds := mapdata.NewDataset()
			park := addArea(t, ds, "way/1", square(0, 0, 10, 10))
			road := addWay(t, ds, "way/2", orb.Point{-5, 5}, orb.Point{15, 5})
			fountain := addNode(ds, "node/1", 5, 5)
			addNode(ds, "node/2", 50, 50)
			path := addWay(t, ds, "way/3", orb.Point{2, 2}, orb.Point{8, 8})

			before := testutil.ToFloat64(monitoring.TopologyOverlapsTotal.WithLabelValues("CONTAIN"))

			res, err := newBuilder(t, Options{Index: kind}).Build(context.Background(), ds)
			if err != nil {
				t.Fatalf("Build failed: %v", err)
			}

			if res.Elements != 5 {
				t.Errorf("expected 5 elements, got %d", res.Elements)
			}
			if res.Failures != 0 {
				t.Errorf("expected no failures, got %d", res.Failures)
			}
			// road x park, path x park, fountain in park, road x path
			if res.Overlaps != 4 {
				t.Errorf("expected 4 overlaps, got %d: %v", res.Overlaps, overlapSet(ds))
			}
			if res.ByKind[mapdata.Contain] != 2 || res.ByKind[mapdata.Intersect] != 2 {
				t.Errorf("unexpected overlap kinds %v", res.ByKind)
			}

			set := overlapSet(ds)
			expect := []overlapKey{
				{mapdata.MakePairKey(road, park), mapdata.Intersect},
				{mapdata.MakePairKey(path, park), mapdata.Contain},
				{mapdata.MakePairKey(fountain, park), mapdata.Contain},
				{mapdata.MakePairKey(road, path), mapdata.Intersect},
			}
			for _, k := range expect {
				if set[k] != 1 {
					t.Errorf("expected exactly one %s overlap for %v, got %d", k.kind, k.pair, set[k])
				}
			}

			if got := len(ds.Overlaps(park)); got != 3 {
				t.Errorf("expected the park to have 3 overlaps, got %d", got)
			}
			for _, o := range ds.Overlaps(fountain) {
				if o.Other(fountain) != park {
					t.Errorf("unexpected overlap partner %d for the fountain", o.Other(fountain))
				}
			}

			if got := testutil.ToFloat64(monitoring.TopologyOverlapsTotal.WithLabelValues("CONTAIN")) - before; got != 2 {
				t.Errorf("expected 2 CONTAIN overlaps recorded, got %v", got)
			}
		})
	}
}

func TestNewBuilderGridSize(t *testing.T) {
	tests := []struct {
		name    string
		x, z    int
		wantErr bool
	}{
		{name: "sized from the data", x: 0, z: 0},
		{name: "fixed", x: 4, z: 2},
		{name: "only x", x: 4, z: 0, wantErr: true},
		{name: "only z", x: 0, z: 4, wantErr: true},
		{name: "negative", x: -1, z: 4, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewBuilder(Options{Index: IndexGrid, GridCellsX: tt.x, GridCellsZ: tt.z, Logger: discardLogger()})
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewBuilder error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && !errors.Is(err, ErrInvalidGrid) {
				t.Errorf("expected ErrInvalidGrid, got %v", err)
			}
		})
	}
}

func TestBuildAttachesEveryOverlapOfAPair(t *testing.T) {
	for _, kind := range []IndexKind{IndexTree, IndexGrid} {
		t.Run(string(kind), func(t *testing.T) {
			ds := mapdata.NewDataset()
			park := addArea(t, ds, "way/1", square(0, 0, 10, 10))
			// runs along the south edge, then cuts north through the park
			road := addWay(t, ds, "way/2", orb.Point{0, 0}, orb.Point{10, 0}, orb.Point{5, 5}, orb.Point{5, 15})

			res, err := newBuilder(t, Options{Index: kind}).Build(context.Background(), ds)
			if err != nil {
				t.Fatalf("Build failed: %v", err)
			}
			if res.Classified != 1 || res.Overlaps != 2 {
				t.Fatalf("expected 1 classified pair with 2 overlaps, got %d and %d", res.Classified, res.Overlaps)
			}
			if res.ByKind[mapdata.ShareSegment] != 1 || res.ByKind[mapdata.Intersect] != 1 {
				t.Errorf("unexpected overlap kinds %v", res.ByKind)
			}
			if got := len(ds.Overlaps(road)); got != 2 {
				t.Errorf("expected the road to have 2 overlaps, got %d", got)
			}
			for _, o := range ds.Overlaps(road) {
				if o.Other(road) != park {
					t.Errorf("unexpected overlap partner %d", o.Other(road))
				}
			}
		})
	}
}

func TestBuildClassifiesEachPairOnce(t *testing.T) {
	ds := mapdata.NewDataset()
	addArea(t, ds, "way/1", square(0, 0, 10, 10))
	addWay(t, ds, "way/2", orb.Point{-5, 5}, orb.Point{15, 5})

	b := newBuilder(t, Options{Index: IndexGrid, GridCellsX: 4, GridCellsZ: 4})
	res, err := b.Build(context.Background(), ds)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	// the pair shares three cells of row 2
	if res.CandidatePairs != 1 {
		t.Errorf("expected 1 candidate pair, got %d", res.CandidatePairs)
	}
	if res.DuplicatePairs != 2 {
		t.Errorf("expected 2 duplicate pairs, got %d", res.DuplicatePairs)
	}
	if res.Overlaps != 1 || ds.OverlapCount() != 1 {
		t.Errorf("expected a single overlap, got %d", ds.OverlapCount())
	}
}

func TestBuildMatchesBruteForce(t *testing.T) {
	ds := randomDataset(t, 7, 600)

	want := mapdata.NewDataset()
	for _, h := range ds.Handles() {
		want.Add(ds.Element(h))
	}
	handles := ds.Handles()
	for i := range handles {
		for j := i + 1; j < len(handles); j++ {
			for _, o := range classifyPair(t, ds, handles[i], handles[j]) {
				want.AddOverlap(o)
			}
		}
	}
	wantSet := overlapSet(want)
	if len(wantSet) == 0 {
		t.Fatal("random scene produced no overlaps")
	}

	for _, opts := range []Options{
		{Index: IndexTree},
		{Index: IndexTree, Tree: index.TreeOptions{SplitThreshold: 3, MinShrink: 1}},
		{Index: IndexGrid},
		{Index: IndexGrid, GridCellsX: 7, GridCellsZ: 3},
	} {
		t.Run(fmt.Sprintf("%s/%v/%dx%d", opts.Index, opts.Tree, opts.GridCellsX, opts.GridCellsZ), func(t *testing.T) {
			got := ds.CopyElements()
			res, err := newBuilder(t, opts).Build(context.Background(), got)
			if err != nil {
				t.Fatalf("Build failed: %v", err)
			}
			if res.Failures != 0 {
				t.Errorf("expected no failures, got %d", res.Failures)
			}

			gotSet := overlapSet(got)
			for k, n := range gotSet {
				if n != 1 {
					t.Errorf("overlap %v recorded %d times", k, n)
				}
				if wantSet[k] == 0 {
					t.Errorf("unexpected overlap %v", k)
				}
			}
			for k := range wantSet {
				if gotSet[k] == 0 {
					t.Errorf("missing overlap %v", k)
				}
			}
		})
	}
}

func TestBuildIsDeterministic(t *testing.T) {
	ds := randomDataset(t, 99, 450)

	var runs [][]mapdata.Overlap
	for _, workers := range []int{1, 8, 8} {
		copied := ds.CopyElements()
		if _, err := newBuilder(t, Options{Index: IndexTree, Workers: workers}).Build(context.Background(), copied); err != nil {
			t.Fatalf("Build failed: %v", err)
		}
		runs = append(runs, copied.AllOverlaps())
	}

	for r := 1; r < len(runs); r++ {
		if len(runs[r]) != len(runs[0]) {
			t.Fatalf("run %d recorded %d overlaps, run 0 recorded %d", r, len(runs[r]), len(runs[0]))
		}
		for i := range runs[0] {
			a, b := runs[0][i], runs[r][i]
			if a.A != b.A || a.B != b.B || a.Kind != b.Kind {
				t.Fatalf("run %d differs at overlap %d: %s(%d,%d) vs %s(%d,%d)",
					r, i, a.Kind, a.A, a.B, b.Kind, b.A, b.B)
			}
		}
	}
}

func TestBuildSkipsBrokenElements(t *testing.T) {
	ds := mapdata.NewDataset()
	park := addArea(t, ds, "way/1", square(0, 0, 10, 10))
	ds.Add(mapdata.Element{ID: "broken"})
	fountain := addNode(ds, "node/1", 5, 5)

	res, err := newBuilder(t, Options{}).Build(context.Background(), ds)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if res.Failures != 1 {
		t.Errorf("expected 1 failure, got %d", res.Failures)
	}
	if res.Overlaps != 1 {
		t.Fatalf("expected the remaining overlap to be found, got %d", res.Overlaps)
	}
	o := ds.AllOverlaps()[0]
	if o.A != park || o.B != fountain || o.Kind != mapdata.Contain {
		t.Errorf("unexpected overlap %s(%d,%d)", o.Kind, o.A, o.B)
	}
}

func TestBuildCancelled(t *testing.T) {
	ds := randomDataset(t, 3, 90)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newBuilder(t, Options{}).Build(ctx, ds)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if ds.OverlapCount() != 0 {
		t.Errorf("expected no overlaps after cancellation, got %d", ds.OverlapCount())
	}
}
