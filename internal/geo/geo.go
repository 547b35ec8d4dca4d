// Package geo converts host coordinate strings to vectors and geometry.
package geo

import (
	"errors"
	"strconv"
	"strings"

	"github.com/persistarrows/extension/pkg/core"
	geom "github.com/peterstace/simplefeatures/geom"
)

// Host worlds are local cartesian frames. Points are stored as XYZ geometry
// without an SRID.

// ErrInvalidCoordinates is returned when the coordinates are invalid
var ErrInvalidCoordinates = errors.New("invalid coordinates provided")

// Vec3FromString parses "x,y" or "x,y,z" (optionally wrapped in brackets)
// into a vector. A missing z is zero.
func Vec3FromString(coords string) (core.Vec3, error) {
	coords = strings.TrimSpace(coords)
	coords = strings.TrimPrefix(coords, "[")
	coords = strings.TrimSuffix(coords, "]")

	parts := strings.Split(coords, ",")
	if len(parts) < 2 || len(parts) > 3 {
		return core.Vec3{}, ErrInvalidCoordinates
	}

	var vals [3]float64
	for i, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return core.Vec3{}, ErrInvalidCoordinates
		}
		vals[i] = v
	}
	return core.Vec3{X: vals[0], Y: vals[1], Z: vals[2]}, nil
}

// PointFromVec3 builds an XYZ point from a vector.
func PointFromVec3(v core.Vec3) geom.Point {
	return geom.NewPoint(geom.Coordinates{
		XY:   geom.XY{X: v.X, Y: v.Y},
		Z:    v.Z,
		Type: geom.DimXYZ,
	})
}

// Vec3FromPoint reads a vector back from a point. Empty points yield the
// zero vector.
func Vec3FromPoint(p geom.Point) core.Vec3 {
	c, ok := p.Coordinates()
	if !ok {
		return core.Vec3{}
	}
	return core.Vec3{X: c.X, Y: c.Y, Z: c.Z}
}
