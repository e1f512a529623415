package fits

import (
	"fmt"
	"os"

	"github.com/astrogo/fitsio"

	"poreprep/internal/models"
)

// Image is a decoded FITS primary image in memory row order.
type Image struct {
	Width, Height int
	Pix           []float32

	// Normalisation is the NORMALIS card, empty when absent
	Normalisation string
}

// ReadImage decodes the primary HDU of a 2-D FITS file and undoes the
// vertical flip applied by WriteImage.
func ReadImage(path string) (*Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()

	f, err := fitsio.Open(file)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	defer f.Close()

	hdu, ok := f.HDU(0).(fitsio.Image)
	if !ok {
		return nil, fmt.Errorf("%s: primary HDU is not an image", path)
	}

	hdr := hdu.Header()
	axes := hdr.Axes()
	if len(axes) != 2 {
		return nil, fmt.Errorf("%s: expected 2 axes, got %d", path, len(axes))
	}
	if hdr.Bitpix() != -32 {
		return nil, fmt.Errorf("%s: expected BITPIX -32, got %d", path, hdr.Bitpix())
	}

	width, height := axes[0], axes[1]
	pix := make([]float32, width*height)
	if err := hdu.Read(&pix); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	img := &Image{
		Width:  width,
		Height: height,
		Pix:    flipRows(pix, width, height),
	}
	if card := hdr.Get(KeyNormalisation); card != nil {
		if s, ok := card.Value.(string); ok {
			img.Normalisation = s
		}
	}
	return img, nil
}

// ReadPatch reads a file written by WritePatch
func ReadPatch(path string) (*models.Patch, error) {
	img, err := ReadImage(path)
	if err != nil {
		return nil, err
	}
	if img.Width != img.Height {
		return nil, fmt.Errorf("%s: patch is not square (%dx%d)", path, img.Width, img.Height)
	}
	return &models.Patch{Size: img.Width, Pix: img.Pix}, nil
}
