// Package tile holds tile addressing for maps-express. Coordinates follow the
// usual XYZ scheme; the orb maptile type does the math.
package tile

import (
	"fmt"

	"github.com/paulmach/orb/maptile"
)

// MaxZoom is the deepest zoom level the server addresses.
const MaxZoom = 22

// ID addresses a single tile.
type ID struct {
	T maptile.Tile
}

func New(x, y uint32, z uint32) ID {
	return ID{T: maptile.New(x, y, maptile.Zoom(z))}
}

func (id ID) X() uint32 { return id.T.X }
func (id ID) Y() uint32 { return id.T.Y }
func (id ID) Z() uint32 { return uint32(id.T.Z) }

// Valid reports whether the coordinates address an existing tile.
func (id ID) Valid() bool {
	if id.T.Z > MaxZoom {
		return false
	}
	side := uint32(1) << id.T.Z
	return id.T.X < side && id.T.Y < side
}

// Contains reports whether child lies inside id at a deeper or equal zoom.
func (id ID) Contains(child ID) bool {
	if child.T.Z < id.T.Z {
		return false
	}
	shift := child.T.Z - id.T.Z
	return child.T.X>>shift == id.T.X && child.T.Y>>shift == id.T.Y
}

func (id ID) String() string {
	return fmt.Sprintf("%d/%d/%d", id.Z(), id.X(), id.Y())
}

// Metatile is a block of W×H tiles rendered together. The zero value is not
// meaningful; use Single for the 1×1 default.
type Metatile struct {
	Width  uint
	Height uint
}

func Single() Metatile {
	return Metatile{Width: 1, Height: 1}
}
