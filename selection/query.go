package selection

import (
	"math"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/sowilo/spatial"
	"github.com/golang/geo/r3"
	"github.com/golang/geo/s1"
)

const ErrTypeInvalidQuery = "invalid-query"

// Aim picks the point of a candidate used to measure its angle and distance
// from the query origin.
type Aim int

const (
	// The point of the candidate bounds closest to the origin.
	AimClosestPoint Aim = iota

	// The center of the candidate bounds.
	AimCenter
)

func (a Aim) String() string {
	switch a {
	case AimClosestPoint:
		return "closest-point"
	case AimCenter:
		return "center"
	default:
		return "unknown"
	}
}

// Query describes a view cone. A zero HalfAngle disables the angular filter,
// which is what ray strategies such as Alignment expect.
type Query struct {
	Origin      r3.Vector
	Forward     r3.Vector
	HalfAngle   s1.Angle
	MaxDistance float64

	// The radius of the coarse index query. Defaults to MaxDistance when not
	// positive.
	SearchRadius float64

	Aim Aim
}

// ConeQuery returns a query for a cone opening halfAngle around forward.
func ConeQuery(origin, forward r3.Vector, halfAngle s1.Angle, maxDistance float64) Query {
	return Query{
		Origin:      origin,
		Forward:     forward,
		HalfAngle:   halfAngle,
		MaxDistance: maxDistance,
	}
}

// RayQuery returns a query without angular filter.
func RayQuery(origin, forward r3.Vector, maxDistance float64) Query {
	return Query{
		Origin:      origin,
		Forward:     forward,
		MaxDistance: maxDistance,
		Aim:         AimCenter,
	}
}

func (q Query) Validate() error {
	switch {
	case !isFinite(q.Origin):
		return errors.New("origin is not finite").
			WithType(ErrTypeInvalidQuery).
			WithTag("origin", q.Origin)

	case !isFinite(q.Forward) || q.Forward.Norm2() == 0:
		return errors.New("forward must be a finite non-zero vector").
			WithType(ErrTypeInvalidQuery).
			WithTag("forward", q.Forward)

	case math.IsNaN(q.HalfAngle.Radians()) || q.HalfAngle < 0 || q.HalfAngle > s1.Angle(math.Pi):
		return errors.New("half angle must be in [0, 180] degrees").
			WithType(ErrTypeInvalidQuery).
			WithTag("half_angle", q.HalfAngle.Degrees())

	case math.IsNaN(q.MaxDistance) || math.IsInf(q.MaxDistance, 0) || q.MaxDistance < 0:
		return errors.New("max distance must be a finite positive number").
			WithType(ErrTypeInvalidQuery).
			WithTag("max_distance", q.MaxDistance)

	case math.IsNaN(q.SearchRadius) || math.IsInf(q.SearchRadius, 0):
		return errors.New("search radius is not finite").
			WithType(ErrTypeInvalidQuery).
			WithTag("search_radius", q.SearchRadius)

	default:
		return nil
	}
}

func (q Query) searchRadius() float64 {
	if q.SearchRadius > 0 {
		return q.SearchRadius
	}
	return q.MaxDistance
}

// Source is where candidates come from. Every spatial.Index satisfies it.
type Source[T comparable] interface {
	QueryRadius(point r3.Vector, radius float64) []T
	Bounds(obj T) (spatial.Bounds, bool)
}

// Sizer is implemented by sources that know which objects have no real
// size. Such objects are excluded by size weighted strategies.
type Sizer[T comparable] interface {
	Sized(obj T) bool
}

func isFinite(v r3.Vector) bool {
	return !math.IsNaN(v.X) && !math.IsInf(v.X, 0) &&
		!math.IsNaN(v.Y) && !math.IsInf(v.Y, 0) &&
		!math.IsNaN(v.Z) && !math.IsInf(v.Z, 0)
}
