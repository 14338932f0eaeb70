// Package topology finds the overlaps between the elements of a dataset.
//
// A Builder places all elements into a spatial index, enumerates the
// element pairs sharing a leaf, classifies each pair with the narrow-phase
// tests in Classify and records the confirmed overlaps in the dataset.
package topology

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/NERVsystems/osmtopology/pkg/index"
	"github.com/NERVsystems/osmtopology/pkg/mapdata"
	"github.com/NERVsystems/osmtopology/pkg/monitoring"
	"github.com/NERVsystems/osmtopology/pkg/tracing"
)

// IndexKind selects the spatial index used to find candidate pairs
type IndexKind string

// Available indexes
const (
	IndexTree IndexKind = "tree"
	IndexGrid IndexKind = "grid"
)

// ErrUnknownIndex is returned for an index name that is neither tree nor grid
var ErrUnknownIndex = errors.New("unknown spatial index")

// ErrInvalidGrid is returned when only one grid dimension is fixed
var ErrInvalidGrid = errors.New("invalid grid size")

// ParseIndexKind parses an index name, case-insensitively
func ParseIndexKind(s string) (IndexKind, error) {
	switch k := IndexKind(strings.ToLower(strings.TrimSpace(s))); k {
	case IndexTree, IndexGrid:
		return k, nil
	case "":
		return IndexTree, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownIndex, s)
	}
}

// Options configure a Builder
type Options struct {
	Index IndexKind
	Tree  index.TreeOptions
	// GridCellsX and GridCellsZ fix the grid size. When both are zero
	// the grid is sized from the data bounds.
	GridCellsX int
	GridCellsZ int
	// Workers bounds the number of concurrent classifications.
	// Defaults to GOMAXPROCS.
	Workers int
	Logger  *slog.Logger
}

// Result summarises one topology build
type Result struct {
	Index          IndexKind                   `json:"index"`
	Elements       int                         `json:"elements"`
	IndexStats     index.Stats                 `json:"indexStats"`
	CandidatePairs int                         `json:"candidatePairs"`
	DuplicatePairs int                         `json:"duplicatePairs"`
	Classified     int                         `json:"classified"`
	Overlaps       int                         `json:"overlaps"`
	ByKind         map[mapdata.OverlapKind]int `json:"byKind"`
	Failures       int                         `json:"failures"`
	Duration       time.Duration               `json:"duration"`
}

// Builder computes the topology of datasets
type Builder struct {
	opts   Options
	logger *slog.Logger
}

// NewBuilder creates a builder
func NewBuilder(opts Options) (*Builder, error) {
	kind, err := ParseIndexKind(string(opts.Index))
	if err != nil {
		return nil, err
	}
	opts.Index = kind

	if opts.GridCellsX < 0 || opts.GridCellsZ < 0 || (opts.GridCellsX == 0) != (opts.GridCellsZ == 0) {
		return nil, fmt.Errorf("%w: %d x %d cells, set both or neither", ErrInvalidGrid, opts.GridCellsX, opts.GridCellsZ)
	}

	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Builder{
		opts:   opts,
		logger: logger.With("component", "topology", "index", string(kind)),
	}, nil
}

func (b *Builder) newIndex(ds *mapdata.Dataset) index.SpatialIndex {
	bounds := ds.Bounds()
	if b.opts.Index == IndexGrid {
		if b.opts.GridCellsX > 0 {
			return index.NewGrid(bounds, b.opts.GridCellsX, b.opts.GridCellsZ)
		}
		return index.DefaultGridFor(bounds)
	}
	return index.NewTree(bounds, b.opts.Tree)
}

type classification struct {
	overlaps []mapdata.Overlap
	ok       bool
}

// Build indexes all elements of ds, classifies every pair of elements that
// share a leaf and adds the confirmed overlaps to ds. Each distinct pair is
// classified once even if it shares several leaves. Overlaps are added in
// a deterministic order that does not depend on scheduling.
//
// A pair whose classification fails is logged and skipped. Build returns an
// error only when ctx is done, in which case ds is left without any of the
// overlaps of this build.
func (b *Builder) Build(ctx context.Context, ds *mapdata.Dataset) (res Result, err error) {
	start := time.Now()
	ctx, span := tracing.StartSpan(ctx, "topology.build",
		trace.WithAttributes(attribute.String(tracing.AttrTopologyIndex, string(b.opts.Index))))
	defer func() {
		monitoring.RecordTopologyBuild(string(b.opts.Index), time.Since(start), err == nil)
		tracing.EndSpan(span, err)
	}()

	res = Result{
		Index:    b.opts.Index,
		Elements: ds.Len(),
		ByKind:   make(map[mapdata.OverlapKind]int),
	}

	idx := b.newIndex(ds)
	describe := func(h mapdata.Handle) string { return ds.Element(h).Describe() }
	failures, err := Iterate(ctx, b.logger, "index", ds.Handles(), describe, func(h mapdata.Handle) error {
		idx.Insert(index.ItemFor(h, ds.Element(h)))
		return nil
	})
	res.Failures += failures
	if err != nil {
		return res, err
	}

	leaves := idx.Leaves()
	res.IndexStats = idx.Stats()
	monitoring.UpdateIndexShape(string(b.opts.Index), res.IndexStats.NonEmptyLeaves, res.IndexStats.MaxLeafSize)

	candidates, duplicates, err := candidatePairs(ctx, leaves)
	if err != nil {
		return res, err
	}
	res.CandidatePairs = len(candidates)
	res.DuplicatePairs = duplicates
	monitoring.RecordCandidatePairs(string(b.opts.Index), len(candidates), duplicates)

	results, err := b.classifyAll(ctx, ds, candidates)
	if err != nil {
		return res, err
	}

	for _, r := range results {
		if !r.ok {
			res.Failures++
			continue
		}
		res.Classified++
		for _, o := range r.overlaps {
			ds.AddOverlap(o)
			res.Overlaps++
			res.ByKind[o.Kind]++
			monitoring.RecordOverlap(o.Kind.String())
		}
	}

	res.Duration = time.Since(start)
	tracing.SetAttributes(ctx, tracing.TopologyAttributes(string(b.opts.Index),
		res.Elements, res.IndexStats.NonEmptyLeaves, res.CandidatePairs, res.Overlaps, res.Failures)...)

	b.logger.Info("topology built",
		"elements", res.Elements,
		"leaves", res.IndexStats.NonEmptyLeaves,
		"max_leaf_size", res.IndexStats.MaxLeafSize,
		"candidate_pairs", res.CandidatePairs,
		"duplicate_pairs", res.DuplicatePairs,
		"overlaps", res.Overlaps,
		"failures", res.Failures,
		"duration", res.Duration)

	return res, nil
}

// candidatePairs enumerates the distinct unordered pairs of elements
// sharing a leaf, in leaf order, and counts the repeats it dropped
func candidatePairs(ctx context.Context, leaves []index.Leaf) ([]mapdata.PairKey, int, error) {
	seen := make(map[mapdata.PairKey]struct{})
	var (
		pairs      []mapdata.PairKey
		duplicates int
	)
	for _, leaf := range leaves {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}
		handles := leaf.Handles()
		for i := 0; i < len(handles); i++ {
			for j := i + 1; j < len(handles); j++ {
				if handles[i] == handles[j] {
					continue
				}
				key := mapdata.MakePairKey(handles[i], handles[j])
				if _, ok := seen[key]; ok {
					duplicates++
					continue
				}
				seen[key] = struct{}{}
				pairs = append(pairs, key)
			}
		}
	}
	return pairs, duplicates, nil
}

// classifyAll classifies the pairs on a bounded worker pool. Result i
// belongs to pair i.
func (b *Builder) classifyAll(ctx context.Context, ds *mapdata.Dataset, pairs []mapdata.PairKey) ([]classification, error) {
	results := make([]classification, len(pairs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.opts.Workers)

	for i, pair := range pairs {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			describe := func() string {
				return ds.Element(pair.Low).Describe() + " / " + ds.Element(pair.High).Describe()
			}
			results[i].ok = Try(b.logger, "classify", describe, func() error {
				overlaps, err := Classify(ds, pair.Low, pair.High)
				if err != nil {
					return err
				}
				results[i].overlaps = overlaps
				return nil
			})
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}
