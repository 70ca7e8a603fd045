package spatial

import (
	"math"
	"sort"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/golang/geo/r3"
)

// Regular Grid Spatial Partition
//
// An uniformly sub-divided grid implementing the Index interface. The
// particularities are:
//   - the grid has a cell size that defines how large a cell is. For example,
//     a cell size of 1 will make each cell hold a 1x1x1 meter subdivision of
//     the scene.
//   - cells are allocated on demand, so the grid has no fixed extent.
//   - an object is referenced by every cell its bounds overlap. Objects that
//     would cover more than MaxCellsPerObject cells are rejected.

const (
	DefaultCellSize   = 1
	MaxCellsPerObject = 4096

	maxCellCoord = 1 << 19
)

type cellKey struct {
	x, y, z int
}

type cellRange struct {
	from, to cellKey
}

func (r cellRange) count() int {
	return (r.to.x - r.from.x + 1) * (r.to.y - r.from.y + 1) * (r.to.z - r.from.z + 1)
}

func (r cellRange) each(fn func(cellKey)) {
	for x := r.from.x; x <= r.to.x; x++ {
		for y := r.from.y; y <= r.to.y; y++ {
			for z := r.from.z; z <= r.to.z; z++ {
				fn(cellKey{x, y, z})
			}
		}
	}
}

type gridEntry[T comparable] struct {
	obj    T
	bounds Bounds
	seq    uint64
	cells  cellRange
}

type Grid[T comparable] struct {
	CellSize float64

	seq     uint64
	cells   map[cellKey][]*gridEntry[T]
	entries map[T]*gridEntry[T]
}

func NewGrid[T comparable](cellSize float64) *Grid[T] {
	if cellSize <= 0 || math.IsNaN(cellSize) || math.IsInf(cellSize, 0) {
		cellSize = DefaultCellSize
	}

	return &Grid[T]{
		CellSize: cellSize,
		cells:    make(map[cellKey][]*gridEntry[T]),
		entries:  make(map[T]*gridEntry[T]),
	}
}

func (grid *Grid[T]) Insert(obj T, b Bounds) error {
	if err := validateBounds(b); err != nil {
		return err
	}

	if _, ok := grid.entries[obj]; ok {
		_, err := grid.Update(obj, b)
		return err
	}

	cells, err := grid.cellsOf(b)
	if err != nil {
		return err
	}

	grid.seq++
	grid.add(&gridEntry[T]{
		obj:    obj,
		bounds: b,
		seq:    grid.seq,
		cells:  cells,
	})
	return nil
}

func (grid *Grid[T]) Remove(obj T) bool {
	e, ok := grid.entries[obj]
	if !ok {
		return false
	}

	grid.remove(e)
	return true
}

func (grid *Grid[T]) Update(obj T, b Bounds) (bool, error) {
	e, ok := grid.entries[obj]
	if !ok {
		return false, nil
	}

	if err := validateBounds(b); err != nil {
		return false, err
	}

	cells, err := grid.cellsOf(b)
	if err != nil {
		return false, err
	}

	if cells == e.cells {
		e.bounds = b
		return true, nil
	}

	// The sequence number is kept so that query order stays the insertion
	// order.
	grid.remove(e)
	grid.add(&gridEntry[T]{
		obj:    obj,
		bounds: b,
		seq:    e.seq,
		cells:  cells,
	})
	return true, nil
}

func (grid *Grid[T]) QueryRegion(region Bounds) []T {
	if !isFinite(region.Center) || !isFinite(region.Extents) {
		return nil
	}
	return grid.query(region, region.Intersects)
}

func (grid *Grid[T]) QueryRadius(point r3.Vector, radius float64) []T {
	if radius < 0 || !isFinite(point) || math.IsNaN(radius) || math.IsInf(radius, 0) {
		return nil
	}

	return grid.query(CubeBounds(point, radius), func(b Bounds) bool {
		return b.IntersectsSphere(point, radius)
	})
}

func (grid *Grid[T]) Bounds(obj T) (Bounds, bool) {
	e, ok := grid.entries[obj]
	if !ok {
		return Bounds{}, false
	}
	return e.bounds, true
}

func (grid *Grid[T]) Len() int {
	return len(grid.entries)
}

// NodeCount returns the number of occupied cells.
func (grid *Grid[T]) NodeCount() int {
	return len(grid.cells)
}

func (grid *Grid[T]) DebugInfo() DebugInfo {
	keys := make([]cellKey, 0, len(grid.cells))
	for k := range grid.cells {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.x != b.x {
			return a.x < b.x
		}
		if a.y != b.y {
			return a.y < b.y
		}
		return a.z < b.z
	})

	info := DebugInfo{
		Kind:        "grid",
		NodeCount:   len(keys),
		ObjectCount: len(grid.entries),
		Nodes:       make([]NodeInfo, len(keys)),
	}
	for i, k := range keys {
		info.Nodes[i] = NodeInfo{
			Bounds:      grid.cellBounds(k),
			ObjectCount: len(grid.cells[k]),
		}
	}

	for _, e := range grid.sortedEntries() {
		info.Objects = append(info.Objects, ObjectInfo{Bounds: e.bounds})
	}
	return info
}

func (grid *Grid[T]) add(e *gridEntry[T]) {
	e.cells.each(func(k cellKey) {
		grid.cells[k] = append(grid.cells[k], e)
	})
	grid.entries[e.obj] = e
}

func (grid *Grid[T]) remove(e *gridEntry[T]) {
	e.cells.each(func(k cellKey) {
		grid.removeFromCell(e, k)
	})
	delete(grid.entries, e.obj)
}

func (grid *Grid[T]) removeFromCell(toRemove *gridEntry[T], k cellKey) {
	cell := grid.cells[k]
	for i, e := range cell {
		if e != toRemove {
			continue
		}

		cell[i] = cell[len(cell)-1]
		cell[len(cell)-1] = nil
		cell = cell[:len(cell)-1]
		break
	}

	if len(cell) == 0 {
		delete(grid.cells, k)
		return
	}
	grid.cells[k] = cell
}

func (grid *Grid[T]) query(region Bounds, test func(Bounds) bool) []T {
	seen := make(map[*gridEntry[T]]struct{})
	var hits []*gridEntry[T]

	visit := func(e *gridEntry[T]) {
		if _, ok := seen[e]; ok {
			return
		}
		seen[e] = struct{}{}

		if test(e.bounds) {
			hits = append(hits, e)
		}
	}

	cells := grid.rangeOf(region)
	if cells.count() > len(grid.cells) {
		// Walking occupied cells is cheaper than walking the region.
		for _, cell := range grid.cells {
			for _, e := range cell {
				visit(e)
			}
		}
	} else {
		cells.each(func(k cellKey) {
			for _, e := range grid.cells[k] {
				visit(e)
			}
		})
	}

	sort.Slice(hits, func(i, j int) bool {
		return hits[i].seq < hits[j].seq
	})

	var result []T
	for _, e := range hits {
		result = append(result, e.obj)
	}
	return result
}

func (grid *Grid[T]) sortedEntries() []*gridEntry[T] {
	entries := make([]*gridEntry[T], 0, len(grid.entries))
	for _, e := range grid.entries {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].seq < entries[j].seq
	})
	return entries
}

func (grid *Grid[T]) cellsOf(b Bounds) (cellRange, error) {
	cells := grid.rangeOf(b)
	if cells.count() > MaxCellsPerObject {
		return cellRange{}, errors.New("bounds cover too many grid cells").
			WithType(ErrTypeOutOfRange).
			WithTag("extents", b.Extents).
			WithTag("cell_size", grid.CellSize)
	}
	return cells, nil
}

// NOTE: the cells limits are in the range [0..1[ meaning, for a cell size of 1,
// the "unit 1" is in "cell index" 1.
func (grid *Grid[T]) rangeOf(b Bounds) cellRange {
	return cellRange{
		from: grid.cellOf(b.Min()),
		to:   grid.cellOf(b.Max()),
	}
}

func (grid *Grid[T]) cellOf(p r3.Vector) cellKey {
	return cellKey{
		x: grid.coord(p.X),
		y: grid.coord(p.Y),
		z: grid.coord(p.Z),
	}
}

func (grid *Grid[T]) coord(v float64) int {
	c := math.Floor(v / grid.CellSize)
	return int(clamp(c, -maxCellCoord, maxCellCoord))
}

func (grid *Grid[T]) cellBounds(k cellKey) Bounds {
	min := r3.Vector{
		X: float64(k.x) * grid.CellSize,
		Y: float64(k.y) * grid.CellSize,
		Z: float64(k.z) * grid.CellSize,
	}
	return NewBoundsFromMinMax(min, min.Add(r3.Vector{X: grid.CellSize, Y: grid.CellSize, Z: grid.CellSize}))
}
