// Package rigkit opens My Virtual Rig (.mvr) scenes and General Device Type
// Format (.gdtf) fixture types and builds a normalized scene graph from
// them.
//
// A typical host integration opens a scene, walks it with its own Consumer
// and closes it when done:
//
//	scene, err := rigkit.Open(ctx, "show.mvr", rigkit.Options{})
//	if err != nil {
//		return err
//	}
//	defer scene.Close()
//	for _, d := range scene.Diagnostics() {
//		log.Println(d)
//	}
//	return scene.Walk(ctx, myConsumer)
package rigkit

import (
	"context"
	"fmt"

	"github.com/agentic-research/rigkit/api"
	"github.com/agentic-research/rigkit/internal/archive"
	"github.com/agentic-research/rigkit/internal/graph"
	"github.com/agentic-research/rigkit/internal/ingest"
)

// Aliases for host integrations.
type (
	Options     = ingest.Options
	Scene       = graph.SceneGraph
	Node        = api.Node
	FixtureType = api.FixtureType
	FixtureInfo = api.FixtureInfo
	GeometryRef = api.GeometryRef
	Mesh        = api.Mesh
	Consumer    = api.Consumer
	Diagnostic  = api.Diagnostic
	Diagnostics = api.Diagnostics
	Error       = api.Error
)

// Error kinds, for use with errors.Is.
var (
	ErrFormat    = api.ErrFormat
	ErrSchema    = api.ErrSchema
	ErrVersion   = api.ErrVersion
	ErrReference = api.ErrReference
	ErrValue     = api.ErrValue
	ErrGeometry  = api.ErrGeometry
	ErrNotFound  = api.ErrNotFound
)

// Open parses the .mvr file at path and builds its scene graph. The scene
// owns the archive; Close releases it.
func Open(ctx context.Context, path string, opts Options) (*Scene, error) {
	res, err := ingest.NewEngine(opts).Open(ctx, path)
	if err != nil {
		return nil, err
	}
	return sceneOf(res)
}

// OpenBytes is Open for an in-memory archive. name labels the archive in
// diagnostics.
func OpenBytes(ctx context.Context, name string, data []byte, opts Options) (*Scene, error) {
	res, err := ingest.NewEngine(opts).OpenBytes(ctx, name, data)
	if err != nil {
		return nil, err
	}
	return sceneOf(res)
}

// OpenFixtureType parses the .gdtf file at path. The archive is released
// before returning; the fixture type keeps no reference to it.
func OpenFixtureType(ctx context.Context, path string, opts Options) (*FixtureType, error) {
	res, err := ingest.NewEngine(opts).Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer res.Close()
	if res.Format != archive.FormatGDTF {
		return nil, &api.Error{Kind: api.ErrFormat, Op: "open fixture type", Path: path,
			Err: fmt.Errorf("%s archive, want gdtf", res.Format)}
	}
	return res.Type, nil
}

func sceneOf(res *ingest.Result) (*Scene, error) {
	if res.Format != archive.FormatMVR {
		_ = res.Close()
		return nil, &api.Error{Kind: api.ErrFormat, Op: "open scene", Path: res.Path,
			Err: fmt.Errorf("%s archive, want mvr", res.Format)}
	}
	return res.Scene, nil
}
