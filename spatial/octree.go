package spatial

import (
	"math"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/golang/geo/r3"
)

// Loose Octree Spatial Partition
//
// A dynamic octree implementing the Index interface. The particularities are:
//   - each node region is inflated by a looseness factor, so objects moving
//     around a node boundary do not bounce between siblings.
//   - nodes subdivide lazily: a leaf keeps up to NodeCapacity objects and only
//     splits when one more arrives, unless its children would be smaller than
//     MinNodeSize.
//   - an object is stored in the deepest existing node whose loose region
//     contains its bounds. Nodes that no longer hold more than NodeCapacity
//     objects merge their children back.
//   - the root grows toward objects inserted outside of it and shrinks back
//     when the far side empties.

const (
	DefaultNodeCapacity = 8
	DefaultLooseness    = 1.2
	DefaultMinNodeSize  = 1

	maxGrowAttempts = 20
)

type OctreeOptions struct {
	// The base length of the root node.
	WorldSize float64

	// The center of the root node.
	Center r3.Vector

	// Nodes are not split when their children would be smaller than this.
	MinNodeSize float64

	// Multiplier applied to node regions. Clamped to [1, 2].
	Looseness float64

	// The number of objects a leaf holds before it splits.
	NodeCapacity int

	// Forces Update to remove and reinsert, even when the object would land in
	// the same node.
	DisableInPlaceUpdate bool

	// Keeps the root at its grown size when the objects that made it grow are
	// removed.
	DisableShrink bool
}

type Octree[T comparable] struct {
	root          *octreeNode[T]
	initialSize   float64
	initialCenter r3.Vector
	minNodeSize   float64
	looseness     float64
	capacity      int
	inPlaceUpdate bool
	shrink        bool
	locations     map[T]*octreeNode[T]
}

func NewOctree[T comparable](opts OctreeOptions) *Octree[T] {
	if opts.MinNodeSize <= 0 {
		opts.MinNodeSize = DefaultMinNodeSize
	}
	if opts.WorldSize < opts.MinNodeSize {
		opts.WorldSize = opts.MinNodeSize
	}
	if opts.Looseness == 0 {
		opts.Looseness = DefaultLooseness
	}
	opts.Looseness = clamp(opts.Looseness, 1, 2)
	if opts.NodeCapacity <= 0 {
		opts.NodeCapacity = DefaultNodeCapacity
	}

	tree := &Octree[T]{
		initialSize:   opts.WorldSize,
		initialCenter: opts.Center,
		minNodeSize:   opts.MinNodeSize,
		looseness:     opts.Looseness,
		capacity:      opts.NodeCapacity,
		inPlaceUpdate: !opts.DisableInPlaceUpdate,
		shrink:        !opts.DisableShrink,
		locations:     make(map[T]*octreeNode[T]),
	}
	tree.root = newOctreeNode(tree, nil, -1, opts.WorldSize, opts.Center)
	return tree
}

func (t *Octree[T]) Insert(obj T, b Bounds) error {
	if err := validateBounds(b); err != nil {
		return err
	}

	if _, ok := t.locations[obj]; ok {
		_, err := t.Update(obj, b)
		return err
	}

	if err := t.insert(obj, b); err != nil {
		t.shrinkRoot()
		return err
	}
	return nil
}

// insert grows the root until it encapsulates b and adds the entry. The root
// is left grown when b is out of range.
func (t *Octree[T]) insert(obj T, b Bounds) error {
	for i := 0; !t.root.bounds.Encapsulates(b); i++ {
		if i >= maxGrowAttempts {
			return errors.New("bounds are too far from the octree root").
				WithType(ErrTypeOutOfRange).
				WithTag("center", b.Center).
				WithTag("root_center", t.root.center).
				WithTag("root_length", t.root.baseLength)
		}
		t.grow(b.Center.Sub(t.root.center))
	}

	t.root.subAdd(octreeEntry[T]{obj: obj, bounds: b})
	return nil
}

func (t *Octree[T]) Remove(obj T) bool {
	if !t.remove(obj) {
		return false
	}

	t.shrinkRoot()
	return true
}

// remove drops the entry of obj and merges the nodes it leaves sparse. The
// root is not shrunk.
func (t *Octree[T]) remove(obj T) bool {
	n, ok := t.locations[obj]
	if !ok {
		return false
	}

	n.removeEntry(obj)
	delete(t.locations, obj)

	for p := n; p != nil; p = p.parent {
		if p.shouldMerge() {
			p.merge()
		}
	}
	return true
}

func (t *Octree[T]) Update(obj T, b Bounds) (bool, error) {
	n, ok := t.locations[obj]
	if !ok {
		return false, nil
	}

	if err := validateBounds(b); err != nil {
		return false, err
	}

	if t.inPlaceUpdate && n.keeps(b) {
		n.setEntryBounds(obj, b)
		return true, nil
	}

	old, _ := n.entryBounds(obj)
	t.remove(obj)
	defer t.shrinkRoot()

	if err := t.insert(obj, b); err != nil {
		// The root only grew since the removal, so the old bounds still fit.
		if restoreErr := t.insert(obj, old); restoreErr != nil {
			return false, errors.New("restoring object bounds failed").
				WithType(ErrTypeOutOfRange).
				WithTag("bounds", old).
				Wrap(restoreErr)
		}
		return false, err
	}
	return true, nil
}

func (t *Octree[T]) QueryRegion(region Bounds) []T {
	var result []T
	if !isFinite(region.Center) || !isFinite(region.Extents) {
		return result
	}

	t.root.collect(&result, region.Intersects)
	return result
}

func (t *Octree[T]) QueryRadius(point r3.Vector, radius float64) []T {
	var result []T
	if radius < 0 || !isFinite(point) || math.IsNaN(radius) {
		return result
	}

	t.root.collect(&result, func(b Bounds) bool {
		return b.IntersectsSphere(point, radius)
	})
	return result
}

func (t *Octree[T]) Bounds(obj T) (Bounds, bool) {
	n, ok := t.locations[obj]
	if !ok {
		return Bounds{}, false
	}
	return n.entryBounds(obj)
}

func (t *Octree[T]) Len() int {
	return len(t.locations)
}

// NodeCount returns the number of nodes in the tree, root included.
func (t *Octree[T]) NodeCount() int {
	count := 0
	t.root.walk(0, func(n *octreeNode[T], depth int) {
		count++
	})
	return count
}

// RootBounds returns the loose region of the root node.
func (t *Octree[T]) RootBounds() Bounds {
	return t.root.bounds
}

func (t *Octree[T]) DebugInfo() DebugInfo {
	info := DebugInfo{
		Kind:        "octree",
		ObjectCount: len(t.locations),
	}

	t.root.walk(0, func(n *octreeNode[T], depth int) {
		info.NodeCount++
		if depth > info.MaxDepth {
			info.MaxDepth = depth
		}

		info.Nodes = append(info.Nodes, NodeInfo{
			Bounds:      n.bounds,
			Depth:       depth,
			ObjectCount: len(n.objects),
		})
		for _, e := range n.objects {
			info.Objects = append(info.Objects, ObjectInfo{
				Bounds: e.bounds,
				Depth:  depth,
			})
		}
	})

	return info
}

// grow doubles the root toward direction. The current root becomes one of the
// octants of the new root.
func (t *Octree[T]) grow(direction r3.Vector) {
	sign := func(v float64) float64 {
		if v >= 0 {
			return 1
		}
		return -1
	}

	old := t.root
	half := old.baseLength / 2
	newCenter := old.center.Add(r3.Vector{
		X: sign(direction.X) * half,
		Y: sign(direction.Y) * half,
		Z: sign(direction.Z) * half,
	})

	root := newOctreeNode(t, nil, -1, old.baseLength*2, newCenter)
	if !old.isEmpty() {
		oldOctant := root.octant(old.center)

		var children [8]*octreeNode[T]
		for i := range children {
			if i == oldOctant {
				old.parent = root
				old.octantIndex = i
				children[i] = old
				continue
			}
			children[i] = newOctreeNode(t, root, i, old.baseLength, root.childCenter(i))
		}
		root.children = &children
	}

	t.root = root
}

// shrinkRoot hands the root role to the only occupied octant as long as the
// root is larger than the initial world size. It does nothing when shrinking
// is disabled.
func (t *Octree[T]) shrinkRoot() {
	if !t.shrink {
		return
	}

	for t.root.baseLength > t.initialSize {
		if t.root.isEmpty() {
			t.root = newOctreeNode(t, nil, -1, t.initialSize, t.initialCenter)
			return
		}

		if len(t.root.objects) != 0 || t.root.children == nil {
			return
		}

		var only *octreeNode[T]
		for _, c := range t.root.children {
			if c.isEmpty() {
				continue
			}
			if only != nil {
				return
			}
			only = c
		}

		only.parent = nil
		only.octantIndex = -1
		t.root = only
	}
}
