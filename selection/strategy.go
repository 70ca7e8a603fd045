package selection

import (
	"math"

	"github.com/aukilabs/sowilo/spatial"
	"github.com/golang/geo/r3"
)

const (
	StrategyPresence     = "presence"
	StrategyVolumeInCone = "volume-in-cone"
	StrategyAlignment    = "alignment"
)

// Strategy scores a candidate. Candidates reported with false are not
// selectable.
type Strategy interface {
	Name() string
	Score(t Target, q Query) (float64, bool)
}

// Result is the outcome of a selection. Found is false when no candidate
// qualified, which is the common case and not an error.
type Result[T comparable] struct {
	Object T
	Score  float64
	Found  bool
}

// Best returns the candidate with the highest score. Ties go to the candidate
// that came first.
func Best[T comparable](src Source[T], q Query, s Strategy) (Result[T], error) {
	candidates, err := Candidates(src, q)
	if err != nil {
		return Result[T]{}, err
	}

	var best Result[T]
	for _, c := range candidates {
		score, ok := s.Score(c.Target, q)
		if !ok || math.IsNaN(score) {
			continue
		}

		if !best.Found || score > best.Score {
			best = Result[T]{
				Object: c.Object,
				Score:  score,
				Found:  true,
			}
		}
	}
	return best, nil
}

// SizeMeasure returns a size for bounds. It must grow with the bounds.
type SizeMeasure func(spatial.Bounds) float64

// ExtentsMagnitude is the length of the half extents.
func ExtentsMagnitude(b spatial.Bounds) float64 {
	return b.Extents.Norm()
}

// Presence favors candidates that are centered in view, large and close:
//
//	score = (1 - angle/halfAngle) * size * 1/(1 + distance)
//
// The angle and distance are measured to the candidate center. Unsized
// candidates and candidates whose center is on or outside the cone edge are
// not selectable.
type Presence struct {
	// Defaults to ExtentsMagnitude.
	Size SizeMeasure
}

func (p Presence) Name() string {
	return StrategyPresence
}

func (p Presence) Score(t Target, q Query) (float64, bool) {
	if !t.Sized || q.HalfAngle <= 0 {
		return 0, false
	}

	size := p.Size
	if size == nil {
		size = ExtentsMagnitude
	}

	if t.CenterDistance > q.MaxDistance || t.CenterAngle > q.HalfAngle {
		return 0, false
	}

	angleScore := 1 - t.CenterAngle.Radians()/q.HalfAngle.Radians()
	sizeScore := size(t.Bounds)
	distanceScore := 1 / (1 + t.CenterDistance)

	score := angleScore * sizeScore * distanceScore
	return score, score > 0
}

const DefaultVolumeSamples = 4

// VolumeInCone favors the candidate with the largest volume inside the cone.
// The volume is estimated by testing a lattice of Samples^3 points spread
// over the candidate bounds.
type VolumeInCone struct {
	Samples int
}

func (v VolumeInCone) Name() string {
	return StrategyVolumeInCone
}

func (v VolumeInCone) Score(t Target, q Query) (float64, bool) {
	if !t.Sized || q.HalfAngle <= 0 {
		return 0, false
	}

	samples := v.Samples
	if samples <= 0 {
		samples = DefaultVolumeSamples
	}

	forward := q.Forward.Normalize()
	cos := math.Cos(q.HalfAngle.Radians())
	min := t.Bounds.Min()
	size := t.Bounds.Size()
	step := 1 / float64(samples)

	inside := 0
	for i := 0; i < samples; i++ {
		for j := 0; j < samples; j++ {
			for k := 0; k < samples; k++ {
				p := r3.Vector{
					X: min.X + (float64(i)+0.5)*step*size.X,
					Y: min.Y + (float64(j)+0.5)*step*size.Y,
					Z: min.Z + (float64(k)+0.5)*step*size.Z,
				}
				if inCone(p, q.Origin, forward, cos, q.MaxDistance) {
					inside++
				}
			}
		}
	}

	total := samples * samples * samples
	score := float64(inside) / float64(total) * t.Bounds.Volume()
	return score, score > 0
}

func inCone(p, origin, forward r3.Vector, cos, maxDistance float64) bool {
	toPoint := p.Sub(origin)
	distance := toPoint.Norm()
	if distance == 0 {
		return true
	}
	if distance > maxDistance {
		return false
	}
	return forward.Dot(toPoint) >= distance*cos
}

const DefaultMinDot = 0.8

// Alignment is the ray mode: the candidate whose center is the most aligned
// with the forward direction wins, size does not matter.
type Alignment struct {
	// Candidates below this dot product are ignored. The zero value accepts
	// every candidate in front of the origin, StrategyFromName uses
	// DefaultMinDot.
	MinDot float64
}

func (a Alignment) Name() string {
	return StrategyAlignment
}

func (a Alignment) Score(t Target, q Query) (float64, bool) {
	toCenter := t.Bounds.Center.Sub(q.Origin)
	if toCenter.Norm2() == 0 {
		return 1, true
	}

	dot := q.Forward.Normalize().Dot(toCenter.Normalize())
	return dot, dot >= a.MinDot
}

// StrategyFromName returns the strategy registered under name.
func StrategyFromName(name string) (Strategy, bool) {
	switch name {
	case StrategyPresence:
		return Presence{}, true
	case StrategyVolumeInCone:
		return VolumeInCone{}, true
	case StrategyAlignment:
		return Alignment{MinDot: DefaultMinDot}, true
	default:
		return nil, false
	}
}
