package spatial

import "github.com/golang/geo/r3"

// Vec3 is the JSON form of a vector, as exported by scene editors.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func Vec3From(v r3.Vector) Vec3 {
	return Vec3{X: v.X, Y: v.Y, Z: v.Z}
}

func (v Vec3) Vector() r3.Vector {
	return r3.Vector{X: v.X, Y: v.Y, Z: v.Z}
}
