package spatial

import (
	"math"

	"github.com/golang/geo/r3"
)

// MinExtent is the half extent given to bounds built around a single point.
const MinExtent = 0.001

func EqualWithEpsilon(a float64, b float64, epsilon float64) bool {
	return math.Abs(a-b) <= epsilon
}

func InRangeWithEpsilon(value float64, min float64, max float64, epsilon float64) bool {
	return value+epsilon >= min && value-epsilon <= max
}

func VectorEqualWithEpsilon(a r3.Vector, b r3.Vector, epsilon float64) bool {
	return EqualWithEpsilon(a.X, b.X, epsilon) &&
		EqualWithEpsilon(a.Y, b.Y, epsilon) &&
		EqualWithEpsilon(a.Z, b.Z, epsilon)
}

func isFinite(v r3.Vector) bool {
	for _, c := range [3]float64{v.X, v.Y, v.Z} {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}

func clamp(v float64, min float64, max float64) float64 {
	return math.Max(min, math.Min(v, max))
}

// Bounds is an axis-aligned box.
type Bounds struct {
	Center  r3.Vector
	Extents r3.Vector // Half-Extents!
}

// NewBounds returns bounds centered on center with the given full size.
func NewBounds(center r3.Vector, size r3.Vector) Bounds {
	return Bounds{
		Center:  center,
		Extents: size.Mul(0.5),
	}
}

func NewBoundsFromMinMax(min r3.Vector, max r3.Vector) Bounds {
	return Bounds{
		Center:  min.Add(max).Mul(0.5),
		Extents: max.Sub(min).Mul(0.5),
	}
}

// PointBounds returns the smallest valid bounds around p. Use it for objects
// that only have a position.
func PointBounds(p r3.Vector) Bounds {
	return CubeBounds(p, MinExtent)
}

func CubeBounds(center r3.Vector, halfSize float64) Bounds {
	return Bounds{
		Center:  center,
		Extents: r3.Vector{X: halfSize, Y: halfSize, Z: halfSize},
	}
}

func (b Bounds) Min() r3.Vector {
	return b.Center.Sub(b.Extents)
}

func (b Bounds) Max() r3.Vector {
	return b.Center.Add(b.Extents)
}

func (b Bounds) Size() r3.Vector {
	return b.Extents.Mul(2)
}

func (b Bounds) Volume() float64 {
	s := b.Size()
	return s.X * s.Y * s.Z
}

// IsValid reports whether b is finite and has a positive extent on every
// axis.
func (b Bounds) IsValid() bool {
	return isFinite(b.Center) &&
		isFinite(b.Extents) &&
		b.Extents.X > 0 &&
		b.Extents.Y > 0 &&
		b.Extents.Z > 0
}

func (b Bounds) Contains(p r3.Vector) bool {
	min := b.Min()
	max := b.Max()
	return p.X >= min.X && p.X <= max.X &&
		p.Y >= min.Y && p.Y <= max.Y &&
		p.Z >= min.Z && p.Z <= max.Z
}

// Encapsulates reports whether other lies entirely inside b.
func (b Bounds) Encapsulates(other Bounds) bool {
	return b.Contains(other.Min()) && b.Contains(other.Max())
}

// Intersects reports whether b and other overlap. Touching faces count as an
// overlap.
func (b Bounds) Intersects(other Bounds) bool {
	minA := b.Min()
	maxA := b.Max()
	minB := other.Min()
	maxB := other.Max()

	if minA.X > maxB.X || maxA.X < minB.X {
		return false
	}
	if minA.Y > maxB.Y || maxA.Y < minB.Y {
		return false
	}
	if minA.Z > maxB.Z || maxA.Z < minB.Z {
		return false
	}

	// overlap on all axes -> must overlap
	return true
}

// ClosestPoint returns the point of b closest to p. It returns p when p is
// inside b.
func (b Bounds) ClosestPoint(p r3.Vector) r3.Vector {
	min := b.Min()
	max := b.Max()
	return r3.Vector{
		X: clamp(p.X, min.X, max.X),
		Y: clamp(p.Y, min.Y, max.Y),
		Z: clamp(p.Z, min.Z, max.Z),
	}
}

func (b Bounds) SqrDistance(p r3.Vector) float64 {
	return b.ClosestPoint(p).Sub(p).Norm2()
}

func (b Bounds) IntersectsSphere(center r3.Vector, radius float64) bool {
	if radius < 0 {
		return false
	}
	return b.SqrDistance(center) <= radius*radius
}

// Encapsulate returns the smallest bounds containing both b and other.
func (b Bounds) Encapsulate(other Bounds) Bounds {
	minA := b.Min()
	maxA := b.Max()
	minB := other.Min()
	maxB := other.Max()

	return NewBoundsFromMinMax(
		r3.Vector{X: math.Min(minA.X, minB.X), Y: math.Min(minA.Y, minB.Y), Z: math.Min(minA.Z, minB.Z)},
		r3.Vector{X: math.Max(maxA.X, maxB.X), Y: math.Max(maxA.Y, maxB.Y), Z: math.Max(maxA.Z, maxB.Z)},
	)
}
