// Package augment produces lossless geometric variants of square patches.
//
// Every variant is a permutation of the source pixels: each output pixel is
// copied from exactly one input pixel, so no interpolation takes place and
// applying the inverse direction restores the original bit for bit.
package augment

import (
	"fmt"

	"poreprep/internal/models"
)

// Direction names where the top edge of the original patch ends up.
type Direction int

const (
	Identity Direction = iota
	Left               // rotated 90 degrees counter-clockwise
	Right              // rotated 90 degrees clockwise
	Down               // rotated 180 degrees
)

// Directions lists the variants in output order
var Directions = [...]Direction{Identity, Left, Right, Down}

func (d Direction) String() string {
	switch d {
	case Identity:
		return "identity"
	case Left:
		return "left"
	case Right:
		return "right"
	case Down:
		return "down"
	default:
		return fmt.Sprintf("Direction(%d)", int(d))
	}
}

// matrix maps (x, y) to (a*x + b*y, c*x + d*y) in image coordinates
type matrix struct {
	a, b, c, d int
}

var matrices = map[Direction]matrix{
	Identity: {1, 0, 0, 1},
	Left:     {0, 1, -1, 0},
	Right:    {0, -1, 1, 0},
	Down:     {-1, 0, 0, -1},
}

// Matrix returns the 2x2 integer transform of d in row-major order
func (d Direction) Matrix() [4]int {
	m := matrices[d]
	return [4]int{m.a, m.b, m.c, m.d}
}

// Inverse returns the direction that undoes d
func Inverse(d Direction) Direction {
	switch d {
	case Left:
		return Right
	case Right:
		return Left
	default:
		return d
	}
}

// Apply returns the d-variant of p. The source is left untouched.
func Apply(p *models.Patch, d Direction) *models.Patch {
	m, ok := matrices[d]
	if !ok {
		panic(fmt.Sprintf("augment: unknown direction %d", int(d)))
	}

	n := p.Size
	out := models.NewPatch(n)
	last := n - 1

	// Rows with a negative coefficient are shifted back into [0, n).
	tx, ty := 0, 0
	if m.a < 0 || m.b < 0 {
		tx = last
	}
	if m.c < 0 || m.d < 0 {
		ty = last
	}

	for y := 0; y < n; y++ {
		for x := 0; x < n; x++ {
			dx := m.a*x + m.b*y + tx
			dy := m.c*x + m.d*y + ty
			out.Set(dx, dy, p.At(x, y))
		}
	}
	return out
}

// Variants returns the four variants of p in Directions order. The first
// element is a copy of p.
func Variants(p *models.Patch) []*models.Patch {
	out := make([]*models.Patch, len(Directions))
	for i, d := range Directions {
		if d == Identity {
			out[i] = p.Clone()
			continue
		}
		out[i] = Apply(p, d)
	}
	return out
}
