package selection

import (
	"github.com/aukilabs/sowilo/spatial"
	"github.com/golang/geo/r3"
	"github.com/golang/geo/s1"
)

// Target is the geometry of a candidate as seen from the query origin.
// Distance and Angle are measured to the aimed point and drive the cone
// filter. CenterDistance and CenterAngle are measured to the bounds center,
// the object position.
type Target struct {
	Bounds spatial.Bounds

	// The aimed point, see Aim.
	Point r3.Vector

	Distance       float64
	Angle          s1.Angle
	CenterDistance float64
	CenterAngle    s1.Angle
	Sized          bool
}

type Candidate[T comparable] struct {
	Object T
	Target
}

// Candidates returns the objects of src that lie within the query cone, in
// the order src returned them. Objects whose center is farther than
// MaxDistance are left out, whatever their size. An invalid query returns an
// error with type ErrTypeInvalidQuery.
func Candidates[T comparable](src Source[T], q Query) ([]Candidate[T], error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	objects := src.QueryRadius(q.Origin, q.searchRadius())
	if len(objects) == 0 {
		return nil, nil
	}

	sizer, _ := src.(Sizer[T])

	var candidates []Candidate[T]
	for _, obj := range objects {
		b, ok := src.Bounds(obj)
		if !ok {
			continue
		}

		target := newTarget(q, b)
		if target.CenterDistance > q.MaxDistance {
			continue
		}
		if q.HalfAngle > 0 && target.Angle > q.HalfAngle {
			continue
		}

		target.Sized = sizer == nil || sizer.Sized(obj)
		candidates = append(candidates, Candidate[T]{
			Object: obj,
			Target: target,
		})
	}
	return candidates, nil
}

func newTarget(q Query, b spatial.Bounds) Target {
	point := b.Center
	if q.Aim == AimClosestPoint {
		point = b.ClosestPoint(q.Origin)
	}

	t := Target{
		Bounds: b,
		Point:  point,
	}
	t.Distance, t.Angle = look(q, point)
	t.CenterDistance, t.CenterAngle = look(q, b.Center)

	// An origin inside the bounds looks straight at them.
	if b.Contains(q.Origin) {
		t.Angle = 0
	}
	return t
}

func look(q Query, point r3.Vector) (float64, s1.Angle) {
	toPoint := point.Sub(q.Origin)
	distance := toPoint.Norm()
	if distance == 0 {
		return 0, 0
	}
	return distance, q.Forward.Angle(toPoint)
}
