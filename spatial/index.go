package spatial

import (
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/golang/geo/r3"
)

const (
	ErrTypeInvalidBounds = "invalid-bounds"
	ErrTypeOutOfRange    = "out-of-range"
)

type NodeInfo struct {
	Bounds      Bounds `json:"bounds"`
	Depth       int    `json:"depth"`
	ObjectCount int    `json:"object_count"`
}

type ObjectInfo struct {
	Bounds Bounds `json:"bounds"`
	Depth  int    `json:"depth"`
}

// DebugInfo lists every node region and every stored object of an index, for
// visualization overlays.
type DebugInfo struct {
	Kind        string       `json:"kind"`
	NodeCount   int          `json:"node_count"`
	ObjectCount int          `json:"object_count"`
	MaxDepth    int          `json:"max_depth"`
	Nodes       []NodeInfo   `json:"nodes"`
	Objects     []ObjectInfo `json:"objects"`
}

// Index is a spatial index over the bounds of objects identified by T.
//
// Implementations are not safe for concurrent use.
type Index[T comparable] interface {
	// Inserts obj with the given bounds. Inserting an object that is already
	// tracked moves it. Returns an error with type ErrTypeInvalidBounds when
	// bounds are not finite or have a non-positive extent.
	Insert(obj T, bounds Bounds) error

	// Removes obj. Returns false when obj is not tracked.
	Remove(obj T) bool

	// Replaces the bounds of a tracked object. Untracked objects are ignored
	// and reported with false.
	Update(obj T, bounds Bounds) (bool, error)

	// Returns the objects whose bounds intersect region.
	QueryRegion(region Bounds) []T

	// Returns the objects whose bounds intersect the sphere at point.
	QueryRadius(point r3.Vector, radius float64) []T

	// Returns the bounds stored for obj.
	Bounds(obj T) (Bounds, bool)

	// Returns the number of tracked objects.
	Len() int

	// debug stuff:
	DebugInfo() DebugInfo
}

func validateBounds(b Bounds) error {
	if b.IsValid() {
		return nil
	}
	return errors.New("bounds must be finite with a positive extent on every axis").
		WithType(ErrTypeInvalidBounds).
		WithTag("center", b.Center).
		WithTag("extents", b.Extents)
}
