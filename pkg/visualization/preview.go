package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"

	"golang.org/x/image/draw"
	"gonum.org/v1/gonum/floats"

	"poreprep/internal/models"
)

// Previewer renders patches as 16-bit grayscale PNGs for visual checks of a
// run. Patches are tiny compared to the source raster, so they are upscaled
// with nearest-neighbour sampling to keep individual pixels visible.
type Previewer struct {
	// dir is where previews are written
	dir string

	// scale is the integer upscale factor
	scale int
}

// NewPreviewer creates a previewer writing into dir
func NewPreviewer(dir string, scale int) *Previewer {
	if scale < 1 {
		scale = 1
	}
	return &Previewer{dir: dir, scale: scale}
}

// RenderPatch maps the patch value range onto 16-bit gray and scales it up.
// A constant patch renders black.
func RenderPatch(p *models.Patch, scale int) (image.Image, error) {
	if p.Size < 1 {
		return nil, fmt.Errorf("patch has no pixels")
	}
	if scale < 1 {
		return nil, fmt.Errorf("scale must be positive, got %d", scale)
	}

	values := make([]float64, len(p.Pix))
	for i, v := range p.Pix {
		values[i] = float64(v)
	}
	lo, hi := floats.Min(values), floats.Max(values)
	span := hi - lo

	img := image.NewGray16(image.Rect(0, 0, p.Size, p.Size))
	for y := 0; y < p.Size; y++ {
		for x := 0; x < p.Size; x++ {
			var level float64
			if span > 0 {
				level = (values[y*p.Size+x] - lo) / span
			}
			value := uint16(math.Max(0, math.Min(65535, level*65535)))
			img.SetGray16(x, y, color.Gray16{Y: value})
		}
	}

	if scale == 1 {
		return img, nil
	}

	dst := image.NewGray16(image.Rect(0, 0, p.Size*scale, p.Size*scale))
	draw.NearestNeighbor.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return dst, nil
}

// SavePreview saves an image as PNG
func SavePreview(img image.Image, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}

	if err := png.Encode(file, img); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// Save renders p and writes it to the previewer directory as name
func (v *Previewer) Save(p *models.Patch, name string) error {
	img, err := RenderPatch(p, v.scale)
	if err != nil {
		return fmt.Errorf("failed to render preview %s: %w", name, err)
	}
	if err := SavePreview(img, filepath.Join(v.dir, name)); err != nil {
		return fmt.Errorf("failed to save preview %s: %w", name, err)
	}
	return nil
}

// PreviewName returns the preview file name for the count-th output file
func PreviewName(count int) string {
	return fmt.Sprintf("image_%06d.png", count)
}
