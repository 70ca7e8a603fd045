package spatial

import (
	"math"
	"math/rand"
	"testing"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/require"
)

func testIndexes() map[string]func() Index[int] {
	return map[string]func() Index[int]{
		"octree": func() Index[int] {
			return NewOctree[int](OctreeOptions{WorldSize: 16})
		},
		"octree without in place updates": func() Index[int] {
			return NewOctree[int](OctreeOptions{
				WorldSize:            16,
				DisableInPlaceUpdate: true,
			})
		},
		"octree with small nodes": func() Index[int] {
			return NewOctree[int](OctreeOptions{
				WorldSize:    4,
				MinNodeSize:  0.25,
				NodeCapacity: 2,
				Looseness:    1.5,
			})
		},
		"grid": func() Index[int] {
			return NewGrid[int](2)
		},
	}
}

type bruteForce map[int]Bounds

func (bf bruteForce) queryRegion(region Bounds) []int {
	var res []int
	for obj, b := range bf {
		if b.Intersects(region) {
			res = append(res, obj)
		}
	}
	return res
}

func (bf bruteForce) queryRadius(p r3.Vector, radius float64) []int {
	var res []int
	for obj, b := range bf {
		if b.IntersectsSphere(p, radius) {
			res = append(res, obj)
		}
	}
	return res
}

func randomBounds(rnd *rand.Rand, spread float64) Bounds {
	center := r3.Vector{
		X: (rnd.Float64()*2 - 1) * spread,
		Y: (rnd.Float64()*2 - 1) * spread,
		Z: (rnd.Float64()*2 - 1) * spread,
	}
	size := r3.Vector{
		X: 0.2 + rnd.Float64()*3,
		Y: 0.2 + rnd.Float64()*3,
		Z: 0.2 + rnd.Float64()*3,
	}
	return NewBounds(center, size)
}

func TestIndexMatchesBruteForce(t *testing.T) {
	for name, newIndex := range testIndexes() {
		t.Run(name, func(t *testing.T) {
			rnd := rand.New(rand.NewSource(42))
			idx := newIndex()
			expected := bruteForce{}

			for i := 0; i < 400; i++ {
				b := randomBounds(rnd, 40)
				require.NoError(t, idx.Insert(i, b))
				expected[i] = b
			}

			for i := 0; i < 150; i++ {
				obj := rnd.Intn(400)
				b := randomBounds(rnd, 40)

				ok, err := idx.Update(obj, b)
				require.NoError(t, err)
				if _, tracked := expected[obj]; tracked {
					require.True(t, ok)
					expected[obj] = b
				} else {
					require.False(t, ok)
				}

				if i%2 == 0 {
					toRemove := rnd.Intn(400)
					_, tracked := expected[toRemove]
					require.Equal(t, tracked, idx.Remove(toRemove))
					delete(expected, toRemove)
				}
			}

			require.Equal(t, len(expected), idx.Len())
			for obj, b := range expected {
				stored, ok := idx.Bounds(obj)
				require.True(t, ok)
				require.Equal(t, b, stored)
			}

			for i := 0; i < 60; i++ {
				region := randomBounds(rnd, 45)
				region.Extents = region.Extents.Mul(4)
				require.ElementsMatch(t, expected.queryRegion(region), idx.QueryRegion(region))

				p := randomBounds(rnd, 45).Center
				radius := rnd.Float64() * 15
				require.ElementsMatch(t, expected.queryRadius(p, radius), idx.QueryRadius(p, radius))
			}
		})
	}
}

func TestIndexInsertRemove(t *testing.T) {
	for name, newIndex := range testIndexes() {
		t.Run(name, func(t *testing.T) {
			idx := newIndex()
			b := CubeBounds(r3.Vector{X: 1, Y: 2, Z: 3}, 0.5)

			require.NoError(t, idx.Insert(7, b))
			require.Equal(t, 1, idx.Len())
			require.Equal(t, []int{7}, idx.QueryRegion(b))

			require.True(t, idx.Remove(7))
			require.Zero(t, idx.Len())
			require.Empty(t, idx.QueryRegion(b))

			_, ok := idx.Bounds(7)
			require.False(t, ok)

			// removing twice is harmless
			require.False(t, idx.Remove(7))
			require.False(t, idx.Remove(42))
		})
	}
}

func TestIndexInsertTrackedObjectMovesIt(t *testing.T) {
	for name, newIndex := range testIndexes() {
		t.Run(name, func(t *testing.T) {
			idx := newIndex()
			first := CubeBounds(r3.Vector{}, 0.5)
			second := CubeBounds(r3.Vector{X: 30}, 0.5)

			require.NoError(t, idx.Insert(1, first))
			require.NoError(t, idx.Insert(1, second))

			require.Equal(t, 1, idx.Len())
			require.Empty(t, idx.QueryRegion(first))
			require.Equal(t, []int{1}, idx.QueryRegion(second))
		})
	}
}

func TestIndexInvalidBounds(t *testing.T) {
	invalid := map[string]Bounds{
		"zero extents":     CubeBounds(r3.Vector{}, 0),
		"negative extents": CubeBounds(r3.Vector{}, -1),
		"nan center":       CubeBounds(r3.Vector{X: math.NaN()}, 1),
		"infinite extents": CubeBounds(r3.Vector{}, math.Inf(1)),
	}

	for name, newIndex := range testIndexes() {
		for boundsName, b := range invalid {
			t.Run(name+" "+boundsName, func(t *testing.T) {
				idx := newIndex()

				err := idx.Insert(1, b)
				require.Error(t, err)
				require.True(t, errors.IsType(err, ErrTypeInvalidBounds))
				require.Zero(t, idx.Len())

				valid := CubeBounds(r3.Vector{}, 1)
				require.NoError(t, idx.Insert(1, valid))

				ok, err := idx.Update(1, b)
				require.Error(t, err)
				require.True(t, errors.IsType(err, ErrTypeInvalidBounds))
				require.False(t, ok)

				stored, found := idx.Bounds(1)
				require.True(t, found)
				require.Equal(t, valid, stored)
			})
		}
	}
}

func TestIndexUpdate(t *testing.T) {
	for name, newIndex := range testIndexes() {
		t.Run(name, func(t *testing.T) {
			idx := newIndex()

			t.Run("untracked object is ignored", func(t *testing.T) {
				ok, err := idx.Update(3, CubeBounds(r3.Vector{}, 1))
				require.NoError(t, err)
				require.False(t, ok)
				require.Zero(t, idx.Len())
			})

			t.Run("small move", func(t *testing.T) {
				require.NoError(t, idx.Insert(1, CubeBounds(r3.Vector{}, 0.5)))

				moved := CubeBounds(r3.Vector{X: 0.1}, 0.5)
				ok, err := idx.Update(1, moved)
				require.NoError(t, err)
				require.True(t, ok)

				b, _ := idx.Bounds(1)
				require.Equal(t, moved, b)
				require.Equal(t, []int{1}, idx.QueryRadius(r3.Vector{X: 0.55}, 0.01))
			})

			t.Run("large move", func(t *testing.T) {
				moved := CubeBounds(r3.Vector{X: -25, Z: 12}, 0.5)
				ok, err := idx.Update(1, moved)
				require.NoError(t, err)
				require.True(t, ok)

				require.Empty(t, idx.QueryRadius(r3.Vector{}, 1))
				require.Equal(t, []int{1}, idx.QueryRadius(moved.Center, 0.1))
				require.Equal(t, 1, idx.Len())
			})
		})
	}
}

func TestIndexQueryRadius(t *testing.T) {
	for name, newIndex := range testIndexes() {
		t.Run(name, func(t *testing.T) {
			idx := newIndex()
			require.NoError(t, idx.Insert(1, CubeBounds(r3.Vector{X: 3}, 0.5)))

			require.Empty(t, idx.QueryRadius(r3.Vector{}, 2.4))
			require.Equal(t, []int{1}, idx.QueryRadius(r3.Vector{}, 2.5))
			require.Empty(t, idx.QueryRadius(r3.Vector{}, -1))

			// the sphere test is exact, a box around the sphere would match
			require.Empty(t, idx.QueryRadius(r3.Vector{X: 1.5, Y: 1.5, Z: 1.5}, 1.2))
		})
	}
}

func TestIndexQueryOrderIsInsertionOrder(t *testing.T) {
	for name, newIndex := range testIndexes() {
		t.Run(name, func(t *testing.T) {
			idx := newIndex()
			for i := 1; i <= 3; i++ {
				require.NoError(t, idx.Insert(i, CubeBounds(r3.Vector{}, 0.25)))
			}

			for i := 0; i < 5; i++ {
				require.Equal(t, []int{1, 2, 3}, idx.QueryRadius(r3.Vector{}, 1))
			}
		})
	}
}

func TestIndexEmptyQueries(t *testing.T) {
	for name, newIndex := range testIndexes() {
		t.Run(name, func(t *testing.T) {
			idx := newIndex()
			require.Empty(t, idx.QueryRegion(CubeBounds(r3.Vector{}, 100)))
			require.Empty(t, idx.QueryRadius(r3.Vector{}, 100))
			require.Empty(t, idx.QueryRadius(r3.Vector{X: math.NaN()}, 1))
		})
	}
}
