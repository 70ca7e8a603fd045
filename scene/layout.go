package scene

import (
	"io"
	"math"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/sowilo/spatial"
	"github.com/golang/geo/r3"
	"github.com/segmentio/encoding/json"
)

const ErrTypeInvalidLayout = "invalid-layout"

// Layout is a room description exported by the capture app.
type Layout struct {
	RoomDimensions spatial.Vec3   `json:"roomDimensions"`
	Objects        []LayoutObject `json:"objects"`
}

type LayoutObject struct {
	Name       string       `json:"name"`
	Category   string       `json:"category,omitempty"`
	Position   spatial.Vec3 `json:"position"`
	Rotation   spatial.Vec3 `json:"rotation"`
	Dimensions spatial.Vec3 `json:"dimensions"`
	Color      string       `json:"color,omitempty"`
}

func DecodeLayout(r io.Reader) (Layout, error) {
	var l Layout
	if err := json.NewDecoder(r).Decode(&l); err != nil {
		return Layout{}, errors.New("decoding layout failed").
			WithType(ErrTypeInvalidLayout).
			Wrap(err)
	}
	return l, nil
}

// Bounds returns the room, centered on the origin.
func (l Layout) Bounds() spatial.Bounds {
	return spatial.NewBounds(r3.Vector{}, l.RoomDimensions.Vector().Abs())
}

// Contains reports whether p lies inside the room, faces included. Rooms
// without dimensions contain everything.
func (l Layout) Contains(p r3.Vector) bool {
	if l.RoomDimensions == (spatial.Vec3{}) {
		return true
	}

	min := l.Bounds().Min()
	max := l.Bounds().Max()
	return spatial.InRangeWithEpsilon(p.X, min.X, max.X, spatial.MinExtent) &&
		spatial.InRangeWithEpsilon(p.Y, min.Y, max.Y, spatial.MinExtent) &&
		spatial.InRangeWithEpsilon(p.Z, min.Z, max.Z, spatial.MinExtent)
}

// WorldSize returns the edge length of a cube centered on the origin that
// holds the room and every object of the layout. Objects with a non finite
// placement are ignored.
func (l Layout) WorldSize() float64 {
	b := l.Bounds()
	for _, o := range l.Objects {
		p := o.Position.Vector()
		d := o.Dimensions.Vector().Abs()
		if !isFinite(p) || !isFinite(d) {
			continue
		}
		b = b.Encapsulate(spatial.NewBounds(p, d))
	}

	min := b.Min()
	max := b.Max()
	size := 0.0
	for _, v := range [6]float64{min.X, min.Y, min.Z, max.X, max.Y, max.Z} {
		size = math.Max(size, 2*math.Abs(v))
	}
	return size
}

func (o LayoutObject) Object() *Object {
	obj := &Object{
		Name:     o.Name,
		Category: o.Category,
		Color:    o.Color,
	}

	obj.SetTransform(Transform{
		Position: o.Position.Vector(),
		Rotation: o.Rotation.Vector(),
		Size:     o.Dimensions.Vector(),
	})
	return obj
}

// Load registers the objects of a layout and returns their IDs in layout
// order. Objects that cannot be registered are skipped.
func (s *Scene) Load(l Layout) []ObjectID {
	ids := make([]ObjectID, 0, len(l.Objects))
	for _, o := range l.Objects {
		if !l.Contains(o.Position.Vector()) {
			logs.WithTag("scene", s.ID).
				WithTag("name", o.Name).
				WithTag("position", o.Position).
				Warn("object is outside of the room")
		}

		id, err := s.Register(o.Object())
		if err != nil {
			logs.WithTag("scene", s.ID).
				WithTag("name", o.Name).
				Warn(err)
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

// LoadLayout decodes a layout and registers its objects.
func (s *Scene) LoadLayout(r io.Reader) ([]ObjectID, error) {
	l, err := DecodeLayout(r)
	if err != nil {
		return nil, err
	}
	return s.Load(l), nil
}
