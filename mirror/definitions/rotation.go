package definitions

import (
	"fmt"

	"github.com/samber/lo"
)

// Rotation is the requested orientation of the helper's virtual surface, in degrees.
type Rotation int

const (
	Rotation0   Rotation = 0
	Rotation90  Rotation = 90
	Rotation180 Rotation = 180
	Rotation270 Rotation = 270
)

var rotations = []Rotation{Rotation0, Rotation90, Rotation180, Rotation270}

func ParseRotation(degrees int) (Rotation, error) {
	r := Rotation(degrees)
	if !lo.Contains(rotations, r) {
		return Rotation0, fmt.Errorf("invalid rotation %d: must be one of 0, 90, 180, 270", degrees)
	}
	return r, nil
}

// VirtualSize returns the surface size for a physical display of w x h
// at this rotation. Quarter turns swap the axes.
func (r Rotation) VirtualSize(w, h int) (int, int) {
	if r == Rotation90 || r == Rotation270 {
		return h, w
	}
	return w, h
}

func (r Rotation) String() string {
	return fmt.Sprintf("%d°", int(r))
}
