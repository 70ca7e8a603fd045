package scene

import (
	"math"
	"sync"

	"github.com/aukilabs/sowilo/spatial"
	"github.com/golang/geo/r3"
)

type ObjectID uint32

// Object is a tracked scene object. Size is the full size of its world
// aligned bounding box. A zero size means the object only has a position.
type Object struct {
	ID       ObjectID
	Name     string
	Category string
	Color    string

	mutex     sync.RWMutex
	transform Transform
}

// Transform is where an object is. Rotation holds euler angles in degrees and
// does not change the bounds, which are already world aligned.
type Transform struct {
	Position r3.Vector
	Rotation r3.Vector
	Size     r3.Vector
}

func (o *Object) SetTransform(v Transform) {
	o.mutex.Lock()
	defer o.mutex.Unlock()

	o.transform = v
}

func (o *Object) Transform() Transform {
	o.mutex.RLock()
	defer o.mutex.RUnlock()

	return o.transform
}

func (o *Object) setPlacement(position, size r3.Vector) {
	o.mutex.Lock()
	defer o.mutex.Unlock()

	o.transform.Position = position
	o.transform.Size = size
}

// Bounds returns the bounds to index the object with. sized is false when
// the object has no usable size, in which case the bounds are a tiny box
// around its position. valid is false when the size could not be used
// because it is negative or not finite.
func (t Transform) Bounds() (b spatial.Bounds, sized bool, valid bool) {
	size := t.Size
	if size == (r3.Vector{}) {
		return spatial.PointBounds(t.Position), false, true
	}

	for _, v := range [3]float64{size.X, size.Y, size.Z} {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return spatial.PointBounds(t.Position), false, false
		}
	}

	// Flat objects such as walls or floors keep a minimal thickness.
	extents := size.Mul(0.5)
	extents.X = math.Max(extents.X, spatial.MinExtent)
	extents.Y = math.Max(extents.Y, spatial.MinExtent)
	extents.Z = math.Max(extents.Z, spatial.MinExtent)

	return spatial.Bounds{
		Center:  t.Position,
		Extents: extents,
	}, true, true
}
