package loader

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/paulmach/osm"
	"github.com/paulmach/osm/osmpbf"
)

// ReadFile reads an OSM XML (.osm, .xml) or PBF (.pbf) file
func ReadFile(ctx context.Context, path string) (*osm.OSM, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open map file: %w", err)
	}
	defer f.Close()

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".osm", ".xml":
		return ReadXML(f)
	case ".pbf":
		return ReadPBF(ctx, f)
	default:
		return nil, fmt.Errorf("unsupported map file extension %q", ext)
	}
}

// ReadXML decodes an OSM XML document
func ReadXML(r io.Reader) (*osm.OSM, error) {
	o := &osm.OSM{}
	if err := xml.NewDecoder(r).Decode(o); err != nil {
		return nil, fmt.Errorf("decode osm xml: %w", err)
	}
	return o, nil
}

// ReadPBF decodes every node, way and relation of a PBF stream
func ReadPBF(ctx context.Context, r io.Reader) (*osm.OSM, error) {
	scanner := osmpbf.New(ctx, r, runtime.GOMAXPROCS(0))
	defer scanner.Close()

	o := &osm.OSM{}
	for scanner.Scan() {
		switch v := scanner.Object().(type) {
		case *osm.Node:
			o.Nodes = append(o.Nodes, v)
		case *osm.Way:
			o.Ways = append(o.Ways, v)
		case *osm.Relation:
			o.Relations = append(o.Relations, v)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan osm pbf: %w", err)
	}
	return o, nil
}
