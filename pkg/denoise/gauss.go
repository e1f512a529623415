// Package denoise implements the Gaussian blur applied to patches before
// augmentation.
package denoise

import (
	"fmt"
	"math"

	"poreprep/internal/models"
)

// RadiusFactor converts sigma into a kernel radius. 2.57 sigma covers 99% of
// the Gaussian mass.
const RadiusFactor = 2.57

// MaxSigma bounds the kernel to a radius of 257 pixels. Larger values would
// only add weight to clamped edge samples of any realistic patch.
const MaxSigma = 100.0

// Kernel is a precomputed (2r+1)^2 table of Gaussian weights.
type Kernel struct {
	Sigma   float64
	Radius  int
	weights []float64
}

// CheckSigma reports whether sigma can build a kernel. Zero is accepted and
// means the filter is off.
func CheckSigma(sigma float64) error {
	switch {
	case math.IsNaN(sigma) || math.IsInf(sigma, 0):
		return fmt.Errorf("must be finite, got %g", sigma)
	case sigma < 0:
		return fmt.Errorf("must be >= 0, got %g", sigma)
	case sigma > MaxSigma:
		return fmt.Errorf("must be <= %g, got %g", MaxSigma, sigma)
	}
	return nil
}

// NewKernel builds the weight table for sigma, which must be positive and
// pass CheckSigma.
func NewKernel(sigma float64) (*Kernel, error) {
	if err := CheckSigma(sigma); err != nil {
		return nil, err
	}
	if sigma == 0 {
		return nil, fmt.Errorf("must be > 0 to build a kernel")
	}

	r := int(math.Ceil(sigma * RadiusFactor))
	side := 2*r + 1
	k := &Kernel{
		Sigma:   sigma,
		Radius:  r,
		weights: make([]float64, side*side),
	}

	twoSigma2 := 2 * sigma * sigma
	norm := 1 / (math.Pi * twoSigma2)
	for dy := -r; dy <= r; dy++ {
		for dx := -r; dx <= r; dx++ {
			d2 := float64(dx*dx + dy*dy)
			k.weights[(dy+r)*side+(dx+r)] = norm * math.Exp(-d2/twoSigma2)
		}
	}
	return k, nil
}

// Weight returns the weight for the offset (dx, dy)
func (k *Kernel) Weight(dx, dy int) float64 {
	side := 2*k.Radius + 1
	return k.weights[(dy+k.Radius)*side+(dx+k.Radius)]
}

// Blur returns a blurred copy of p. A zero sigma disables the filter and p
// itself is returned.
func Blur(p *models.Patch, sigma float64) (*models.Patch, error) {
	if sigma == 0 {
		return p, nil
	}
	k, err := NewKernel(sigma)
	if err != nil {
		return nil, err
	}
	return k.Apply(p), nil
}

// Apply convolves p with the kernel. Samples outside the patch are clamped
// to the nearest edge pixel and every output is divided by the weights it
// actually used, so a truncated kernel keeps values in range.
func (k *Kernel) Apply(p *models.Patch) *models.Patch {
	n := p.Size
	out := models.NewPatch(n)
	r := k.Radius

	for y := 0; y < n; y++ {
		for x := 0; x < n; x++ {
			var acc, wsum float64
			for dy := -r; dy <= r; dy++ {
				sy := clamp(y+dy, n)
				for dx := -r; dx <= r; dx++ {
					sx := clamp(x+dx, n)
					w := k.Weight(dx, dy)
					acc += w * float64(p.At(sx, sy))
					wsum += w
				}
			}
			if wsum > 0 {
				out.Set(x, y, float32(acc/wsum))
			}
		}
	}
	return out
}

// clamp pulls i into [0, n)
func clamp(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}
