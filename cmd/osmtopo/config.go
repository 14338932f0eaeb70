package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/NERVsystems/osmtopology/pkg/geo"
	"github.com/NERVsystems/osmtopology/pkg/index"
	"github.com/NERVsystems/osmtopology/pkg/topology"
)

// parseBBox parses "minLat,minLon,maxLat,maxLon"
func parseBBox(s string) (geo.BoundingBox, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return geo.BoundingBox{}, fmt.Errorf("bbox must be minLat,minLon,maxLat,maxLon, got %q", s)
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return geo.BoundingBox{}, fmt.Errorf("invalid bbox coordinate %q: %w", p, err)
		}
		v[i] = f
	}
	bbox := geo.BoundingBox{MinLat: v[0], MinLon: v[1], MaxLat: v[2], MaxLon: v[3]}
	if err := bbox.Validate(); err != nil {
		return geo.BoundingBox{}, err
	}
	return bbox, nil
}

// parseGridCells parses "X,Z" or "N" (square); empty means automatic sizing
func parseGridCells(s string) (int, int, error) {
	if strings.TrimSpace(s) == "" {
		return 0, 0, nil
	}
	parts := strings.Split(s, ",")
	if len(parts) > 2 {
		return 0, 0, fmt.Errorf("grid cells must be N or X,Z, got %q", s)
	}
	counts := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n <= 0 {
			return 0, 0, fmt.Errorf("invalid grid cell count %q", p)
		}
		counts[i] = n
	}
	if len(counts) == 1 {
		return counts[0], counts[0], nil
	}
	return counts[0], counts[1], nil
}

// builderOptions collects the topology options from the command line
func builderOptions(indexName string, splitThreshold, minShrink int, gridCells string, workers int) (topology.Options, error) {
	kind, err := topology.ParseIndexKind(indexName)
	if err != nil {
		return topology.Options{}, err
	}
	cellsX, cellsZ, err := parseGridCells(gridCells)
	if err != nil {
		return topology.Options{}, err
	}

	tree := index.DefaultTreeOptions()
	if splitThreshold > 0 {
		tree.SplitThreshold = splitThreshold
	}
	if minShrink > 0 {
		tree.MinShrink = minShrink
	}

	return topology.Options{
		Index:      kind,
		Tree:       tree,
		GridCellsX: cellsX,
		GridCellsZ: cellsZ,
		Workers:    workers,
	}, nil
}
