package models

// LabelMask is an object-identity raster. Each pixel stores the id of the
// object it belongs to; 0 is background.
type LabelMask struct {
	// Width and Height are the raster dimensions in pixels
	Width, Height int

	// Pix holds the label ids in row-major order
	Pix []uint16
}

// NewLabelMask allocates an all-background mask
func NewLabelMask(width, height int) *LabelMask {
	return &LabelMask{
		Width:  width,
		Height: height,
		Pix:    make([]uint16, width*height),
	}
}

// At returns the label id at (x, y)
func (m *LabelMask) At(x, y int) uint16 {
	return m.Pix[y*m.Width+x]
}

// Set stores a label id at (x, y)
func (m *LabelMask) Set(x, y int, label uint16) {
	m.Pix[y*m.Width+x] = label
}

// MaxLabel returns the largest label id in the mask, which is also the
// number of objects the pipeline will consider.
func (m *LabelMask) MaxLabel() int {
	var max uint16
	for _, v := range m.Pix {
		if v > max {
			max = v
		}
	}
	return int(max)
}

// RawIntensity is the grayscale raster the patches are cut from.
type RawIntensity struct {
	// Width and Height are the raster dimensions in pixels
	Width, Height int

	// Pix holds the samples in row-major order
	Pix []float32
}

// NewRawIntensity allocates a zeroed intensity raster
func NewRawIntensity(width, height int) *RawIntensity {
	return &RawIntensity{
		Width:  width,
		Height: height,
		Pix:    make([]float32, width*height),
	}
}

// At returns the sample at (x, y)
func (r *RawIntensity) At(x, y int) float32 {
	return r.Pix[y*r.Width+x]
}

// Set stores a sample at (x, y)
func (r *RawIntensity) Set(x, y int, v float32) {
	r.Pix[y*r.Width+x] = v
}

// InBounds reports whether (x, y) addresses a pixel of the raster
func (r *RawIntensity) InBounds(x, y int) bool {
	return x >= 0 && y >= 0 && x < r.Width && y < r.Height
}

// Extent is the axis-aligned bounding box of one label's pixels.
//
// Width and Height are max-min, not max-min+1, so a single pixel object
// reports 0x0. Labels that never occur keep the initial minimums (the mask
// width and height) and report 0x0 with Pixels == 0.
type Extent struct {
	Width  int
	Height int
	MinX   int
	MinY   int
	Label  int

	// Pixels is the number of mask pixels carrying Label
	Pixels int
}

// Empty reports whether the label was absent from the mask
func (e Extent) Empty() bool {
	return e.Pixels == 0
}

// Side returns the larger of the two dimensions
func (e Extent) Side() int {
	if e.Width > e.Height {
		return e.Width
	}
	return e.Height
}

// Patch is a square float buffer holding one object.
type Patch struct {
	// Size is the side length in pixels
	Size int

	// Pix holds Size*Size samples in row-major order
	Pix []float32
}

// NewPatch allocates a zeroed size x size patch
func NewPatch(size int) *Patch {
	return &Patch{
		Size: size,
		Pix:  make([]float32, size*size),
	}
}

// At returns the sample at (x, y)
func (p *Patch) At(x, y int) float32 {
	return p.Pix[y*p.Size+x]
}

// Set stores a sample at (x, y)
func (p *Patch) Set(x, y int, v float32) {
	p.Pix[y*p.Size+x] = v
}

// Clone returns a deep copy
func (p *Patch) Clone() *Patch {
	c := NewPatch(p.Size)
	copy(c.Pix, p.Pix)
	return c
}

// Equal reports whether two patches hold identical samples
func (p *Patch) Equal(o *Patch) bool {
	if o == nil || p.Size != o.Size {
		return false
	}
	for i := range p.Pix {
		if p.Pix[i] != o.Pix[i] {
			return false
		}
	}
	return true
}
