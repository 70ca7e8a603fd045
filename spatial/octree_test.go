package spatial

import (
	"math"
	"testing"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/require"
)

func TestOctreeCreation(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		tree := NewOctree[int](OctreeOptions{})
		require.Equal(t, DefaultNodeCapacity, tree.capacity)
		require.Equal(t, float64(DefaultMinNodeSize), tree.minNodeSize)
		require.Equal(t, DefaultLooseness, tree.looseness)
		require.Equal(t, float64(DefaultMinNodeSize), tree.initialSize)
		require.True(t, tree.inPlaceUpdate)
		require.True(t, tree.shrink)
		require.Equal(t, 1, tree.NodeCount())
		require.Zero(t, tree.Len())
	})

	t.Run("looseness is clamped", func(t *testing.T) {
		require.Equal(t, float64(2), NewOctree[int](OctreeOptions{Looseness: 5}).looseness)
		require.Equal(t, float64(1), NewOctree[int](OctreeOptions{Looseness: 0.5}).looseness)
	})

	t.Run("root bounds are loose", func(t *testing.T) {
		tree := NewOctree[int](OctreeOptions{
			WorldSize: 10,
			Center:    r3.Vector{X: 1},
			Looseness: 2,
		})
		require.Equal(t, CubeBounds(r3.Vector{X: 1}, 10), tree.RootBounds())
	})
}

func octantCenters(distance float64) []r3.Vector {
	var centers []r3.Vector
	for i := 0; i < 8; i++ {
		sign := func(bit int) float64 {
			if i&bit != 0 {
				return distance
			}
			return -distance
		}
		centers = append(centers, r3.Vector{X: sign(1), Y: sign(2), Z: sign(4)})
	}
	return centers
}

func TestOctreeSubdivision(t *testing.T) {
	tree := NewOctree[int](OctreeOptions{WorldSize: 16})

	for i, c := range octantCenters(4) {
		require.NoError(t, tree.Insert(i, CubeBounds(c, 0.5)))
	}
	require.Equal(t, 1, tree.NodeCount())

	// one more object than the capacity splits the root
	require.NoError(t, tree.Insert(8, CubeBounds(r3.Vector{X: 4, Y: 4, Z: 4.5}, 0.5)))
	require.Equal(t, 9, tree.NodeCount())

	info := tree.DebugInfo()
	require.Equal(t, "octree", info.Kind)
	require.Equal(t, 9, info.NodeCount)
	require.Equal(t, 9, info.ObjectCount)
	require.Equal(t, 1, info.MaxDepth)
	require.Len(t, info.Objects, 9)
	for _, o := range info.Objects {
		require.Equal(t, 1, o.Depth)
	}

	t.Run("straddling object stays in the parent", func(t *testing.T) {
		require.NoError(t, tree.Insert(9, CubeBounds(r3.Vector{}, 2)))
		require.Same(t, tree.root, tree.locations[9])
	})

	t.Run("removing everything merges back", func(t *testing.T) {
		for i := 0; i <= 9; i++ {
			require.True(t, tree.Remove(i))
		}
		require.Equal(t, 1, tree.NodeCount())
		require.Zero(t, tree.Len())
		require.Empty(t, tree.locations)
	})
}

func TestOctreeMergeAfterRemoval(t *testing.T) {
	tree := NewOctree[int](OctreeOptions{WorldSize: 16})

	for i, c := range octantCenters(4) {
		require.NoError(t, tree.Insert(i, CubeBounds(c, 0.5)))
	}
	require.NoError(t, tree.Insert(8, CubeBounds(r3.Vector{X: -4, Y: -4, Z: -4.5}, 0.5)))
	require.Equal(t, 9, tree.NodeCount())

	require.True(t, tree.Remove(8))
	require.Equal(t, 1, tree.NodeCount())
	require.Equal(t, 8, tree.Len())

	for i := range octantCenters(4) {
		require.Same(t, tree.root, tree.locations[i])
	}
}

func TestOctreeMinNodeSize(t *testing.T) {
	tree := NewOctree[int](OctreeOptions{
		WorldSize:    4,
		MinNodeSize:  4,
		NodeCapacity: 1,
	})

	for i := 0; i < 20; i++ {
		require.NoError(t, tree.Insert(i, CubeBounds(r3.Vector{X: 1, Y: 1, Z: 1}, 0.1)))
	}
	require.Equal(t, 1, tree.NodeCount())
	require.Len(t, tree.QueryRadius(r3.Vector{X: 1, Y: 1, Z: 1}, 0.1), 20)
}

func TestOctreeGrowAndShrink(t *testing.T) {
	tree := NewOctree[int](OctreeOptions{WorldSize: 10})
	initial := tree.RootBounds()

	require.NoError(t, tree.Insert(1, CubeBounds(r3.Vector{}, 0.5)))
	require.NoError(t, tree.Insert(2, CubeBounds(r3.Vector{X: 30}, 0.5)))

	require.True(t, tree.RootBounds().Encapsulates(CubeBounds(r3.Vector{X: 30}, 0.5)))
	require.Equal(t, float64(40), tree.root.baseLength)
	require.ElementsMatch(t, []int{1, 2}, tree.QueryRegion(CubeBounds(r3.Vector{X: 15}, 16)))

	t.Run("root shrinks back to the remaining octant", func(t *testing.T) {
		require.True(t, tree.Remove(2))
		require.Equal(t, initial, tree.RootBounds())
		require.Equal(t, []int{1}, tree.QueryRadius(r3.Vector{}, 0.1))
	})

	t.Run("empty root resets", func(t *testing.T) {
		require.NoError(t, tree.Insert(3, CubeBounds(r3.Vector{Y: -50}, 0.5)))
		require.NotEqual(t, initial, tree.RootBounds())

		require.True(t, tree.Remove(3))
		require.True(t, tree.Remove(1))
		require.Equal(t, initial, tree.RootBounds())
		require.Equal(t, 1, tree.NodeCount())
	})

	t.Run("shrink can be disabled", func(t *testing.T) {
		tree := NewOctree[int](OctreeOptions{
			WorldSize:     10,
			DisableShrink: true,
		})
		require.NoError(t, tree.Insert(1, CubeBounds(r3.Vector{X: 30}, 0.5)))
		require.True(t, tree.Remove(1))
		require.NotEqual(t, initial, tree.RootBounds())
	})
}

func TestOctreeOutOfRange(t *testing.T) {
	tree := NewOctree[int](OctreeOptions{WorldSize: 1})
	initial := tree.RootBounds()

	err := tree.Insert(1, CubeBounds(r3.Vector{X: 1e12}, 1))
	require.Error(t, err)
	require.Equal(t, ErrTypeOutOfRange, errors.Type(err))
	require.Zero(t, tree.Len())
	require.Equal(t, initial, tree.RootBounds())

	t.Run("failed move keeps the object", func(t *testing.T) {
		b := CubeBounds(r3.Vector{}, 0.25)
		require.NoError(t, tree.Insert(2, b))

		ok, err := tree.Update(2, CubeBounds(r3.Vector{Z: -1e12}, 1))
		require.Error(t, err)
		require.False(t, ok)

		stored, found := tree.Bounds(2)
		require.True(t, found)
		require.Equal(t, b, stored)
		require.Equal(t, []int{2}, tree.QueryRadius(r3.Vector{}, 0.1))
	})

	t.Run("failed move of an object far from the others keeps it", func(t *testing.T) {
		tree := NewOctree[int](OctreeOptions{WorldSize: 1})
		far := CubeBounds(r3.Vector{X: math.Pow(2, 34)}, 0.25)

		require.NoError(t, tree.Insert(1, CubeBounds(r3.Vector{}, 0.25)))
		require.NoError(t, tree.Insert(3, CubeBounds(r3.Vector{X: math.Pow(2, 17)}, 0.25)))
		require.NoError(t, tree.Insert(2, far))
		require.True(t, tree.Remove(3))

		ok, err := tree.Update(2, CubeBounds(r3.Vector{X: -1e30}, 0.25))
		require.Error(t, err)
		require.Equal(t, ErrTypeOutOfRange, errors.Type(err))
		require.False(t, ok)

		stored, found := tree.Bounds(2)
		require.True(t, found)
		require.Equal(t, far, stored)
		require.Equal(t, 2, tree.Len())
		require.Equal(t, []int{2}, tree.QueryRadius(far.Center, 0.1))
		require.True(t, tree.RootBounds().Encapsulates(far))

		require.True(t, tree.Remove(2))
		require.Equal(t, []int{1}, tree.QueryRadius(r3.Vector{}, 0.1))
	})
}

func TestOctreeInPlaceUpdate(t *testing.T) {
	tree := NewOctree[int](OctreeOptions{WorldSize: 16})

	for i, c := range octantCenters(4) {
		require.NoError(t, tree.Insert(i, CubeBounds(c, 0.5)))
	}
	require.NoError(t, tree.Insert(8, CubeBounds(r3.Vector{X: 4, Y: 4, Z: 4.5}, 0.5)))

	node := tree.locations[8]
	require.NotSame(t, tree.root, node)

	t.Run("object staying in its node keeps it", func(t *testing.T) {
		ok, err := tree.Update(8, CubeBounds(r3.Vector{X: 4.2, Y: 4, Z: 4.5}, 0.5))
		require.NoError(t, err)
		require.True(t, ok)
		require.Same(t, node, tree.locations[8])
		require.Equal(t, 9, tree.NodeCount())
	})

	t.Run("object crossing octants moves", func(t *testing.T) {
		ok, err := tree.Update(8, CubeBounds(r3.Vector{X: -4, Y: 4, Z: 4.5}, 0.5))
		require.NoError(t, err)
		require.True(t, ok)
		require.NotSame(t, node, tree.locations[8])
		require.Equal(t, []int{8}, tree.QueryRadius(r3.Vector{X: -4, Y: 4, Z: 4.5}, 0.1))
	})
}

func TestOctreeDebugInfoListsEveryObject(t *testing.T) {
	tree := NewOctree[int](OctreeOptions{
		WorldSize:    8,
		NodeCapacity: 2,
	})

	for i := 0; i < 12; i++ {
		c := r3.Vector{X: float64(i%3) - 1.5, Y: float64(i%4) - 1.5, Z: float64(i%2) - 0.5}
		require.NoError(t, tree.Insert(i, CubeBounds(c, 0.2)))
	}

	info := tree.DebugInfo()
	require.Equal(t, 12, info.ObjectCount)
	require.Len(t, info.Objects, 12)
	require.Equal(t, tree.NodeCount(), info.NodeCount)
	require.Len(t, info.Nodes, info.NodeCount)

	count := 0
	for _, n := range info.Nodes {
		count += n.ObjectCount
	}
	require.Equal(t, 12, count)
}
