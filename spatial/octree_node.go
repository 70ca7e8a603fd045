package spatial

import (
	"github.com/golang/geo/r3"
)

type octreeEntry[T comparable] struct {
	obj    T
	bounds Bounds
}

type octreeNode[T comparable] struct {
	tree        *Octree[T]
	parent      *octreeNode[T]
	octantIndex int // index in parent.children, -1 for the root
	center      r3.Vector
	baseLength  float64
	bounds      Bounds // loose bounds
	children    *[8]*octreeNode[T]
	objects     []octreeEntry[T]
}

func newOctreeNode[T comparable](tree *Octree[T], parent *octreeNode[T], octantIndex int, baseLength float64, center r3.Vector) *octreeNode[T] {
	return &octreeNode[T]{
		tree:        tree,
		parent:      parent,
		octantIndex: octantIndex,
		center:      center,
		baseLength:  baseLength,
		bounds:      CubeBounds(center, baseLength*tree.looseness/2),
	}
}

// octant returns the index of the child whose region holds p. Bit 0 is set
// for +x, bit 1 for +y and bit 2 for +z.
func (n *octreeNode[T]) octant(p r3.Vector) int {
	i := 0
	if p.X > n.center.X {
		i |= 1
	}
	if p.Y > n.center.Y {
		i |= 2
	}
	if p.Z > n.center.Z {
		i |= 4
	}
	return i
}

func (n *octreeNode[T]) childCenter(i int) r3.Vector {
	quarter := n.baseLength / 4
	offset := func(bit int) float64 {
		if i&bit != 0 {
			return quarter
		}
		return -quarter
	}
	return n.center.Add(r3.Vector{X: offset(1), Y: offset(2), Z: offset(4)})
}

// fittingChild returns the child that fully contains b, or nil when b
// straddles the children or the node is a leaf.
func (n *octreeNode[T]) fittingChild(b Bounds) *octreeNode[T] {
	if n.children == nil {
		return nil
	}

	child := n.children[n.octant(b.Center)]
	if !child.bounds.Encapsulates(b) {
		return nil
	}
	return child
}

func (n *octreeNode[T]) subAdd(e octreeEntry[T]) {
	if n.children == nil {
		if len(n.objects) < n.tree.capacity || n.baseLength/2 < n.tree.minNodeSize {
			n.store(e)
			return
		}
		n.split()
	}

	if child := n.fittingChild(e.bounds); child != nil {
		child.subAdd(e)
		return
	}
	n.store(e)
}

func (n *octreeNode[T]) store(e octreeEntry[T]) {
	n.objects = append(n.objects, e)
	n.tree.locations[e.obj] = n
}

func (n *octreeNode[T]) split() {
	half := n.baseLength / 2

	var children [8]*octreeNode[T]
	for i := range children {
		children[i] = newOctreeNode(n.tree, n, i, half, n.childCenter(i))
	}
	n.children = &children

	objects := n.objects
	n.objects = nil
	for _, e := range objects {
		if child := n.fittingChild(e.bounds); child != nil {
			child.subAdd(e)
			continue
		}
		n.store(e)
	}
}

func (n *octreeNode[T]) shouldMerge() bool {
	if n.children == nil {
		return false
	}

	count := len(n.objects)
	for _, c := range n.children {
		if c.children != nil {
			return false
		}
		count += len(c.objects)
	}
	return count <= n.tree.capacity
}

func (n *octreeNode[T]) merge() {
	for _, c := range n.children {
		for _, e := range c.objects {
			n.store(e)
		}
	}
	n.children = nil
}

func (n *octreeNode[T]) isEmpty() bool {
	if len(n.objects) != 0 {
		return false
	}

	if n.children != nil {
		for _, c := range n.children {
			if !c.isEmpty() {
				return false
			}
		}
	}
	return true
}

// keeps reports whether a fresh insertion of b would land in n again.
func (n *octreeNode[T]) keeps(b Bounds) bool {
	if !n.bounds.Encapsulates(b) || n.fittingChild(b) != nil {
		return false
	}

	for c := n; c.parent != nil; c = c.parent {
		if c.parent.octant(b.Center) != c.octantIndex {
			return false
		}
	}
	return true
}

func (n *octreeNode[T]) indexOf(obj T) int {
	for i, e := range n.objects {
		if e.obj == obj {
			return i
		}
	}
	return -1
}

func (n *octreeNode[T]) entryBounds(obj T) (Bounds, bool) {
	i := n.indexOf(obj)
	if i < 0 {
		return Bounds{}, false
	}
	return n.objects[i].bounds, true
}

func (n *octreeNode[T]) setEntryBounds(obj T, b Bounds) {
	if i := n.indexOf(obj); i >= 0 {
		n.objects[i].bounds = b
	}
}

// removeEntry detaches obj while keeping the insertion order of the other
// objects.
func (n *octreeNode[T]) removeEntry(obj T) {
	i := n.indexOf(obj)
	if i < 0 {
		return
	}

	copy(n.objects[i:], n.objects[i+1:])
	n.objects[len(n.objects)-1] = octreeEntry[T]{}
	n.objects = n.objects[:len(n.objects)-1]
}

func (n *octreeNode[T]) collect(result *[]T, test func(Bounds) bool) {
	if !test(n.bounds) {
		return
	}

	for _, e := range n.objects {
		if test(e.bounds) {
			*result = append(*result, e.obj)
		}
	}

	if n.children != nil {
		for _, c := range n.children {
			c.collect(result, test)
		}
	}
}

func (n *octreeNode[T]) walk(depth int, fn func(*octreeNode[T], int)) {
	fn(n, depth)

	if n.children != nil {
		for _, c := range n.children {
			c.walk(depth+1, fn)
		}
	}
}
