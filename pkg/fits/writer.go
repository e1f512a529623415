// Package fits persists patches as single-HDU FITS images.
//
// Stored rows run bottom-up: row 0 of the file is the last row of the
// in-memory patch, which is the orientation FITS viewers expect.
package fits

import (
	"fmt"
	"os"

	"github.com/astrogo/fitsio"

	"poreprep/internal/models"
)

// Header keywords written on every patch. FITS keywords are limited to 8
// characters.
const (
	KeyNormalisation = "NORMALIS"
	KeyWidth         = "WIDTH"
	KeyHeight        = "HEIGHT"

	// NormalisationNone marks a patch whose intensities were not rescaled
	NormalisationNone = "NONE"
)

// Filename returns the sequential name of the count-th output file
func Filename(count int) string {
	return fmt.Sprintf("image_%06d.fits", count)
}

// WritePatch writes p to path as a 32-bit float image
func WritePatch(path string, p *models.Patch) error {
	return WriteImage(path, p.Size, p.Size, p.Pix)
}

// WriteImage writes a width x height row-major buffer to path, flipping
// it vertically on the way out.
func WriteImage(path string, width, height int, pix []float32) error {
	if len(pix) != width*height {
		return fmt.Errorf("buffer holds %d samples, want %dx%d", len(pix), width, height)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}

	if err := encode(file, width, height, pix); err != nil {
		file.Close()
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}

	return file.Close()
}

func encode(file *os.File, width, height int, pix []float32) error {
	f, err := fitsio.Create(file)
	if err != nil {
		return err
	}
	defer f.Close()

	img := fitsio.NewImage(-32, []int{width, height})
	defer img.Close()

	err = img.Header().Append(
		fitsio.Card{Name: KeyNormalisation, Value: NormalisationNone},
		fitsio.Card{Name: KeyWidth, Value: width},
		fitsio.Card{Name: KeyHeight, Value: height},
	)
	if err != nil {
		return err
	}

	if err := img.Write(flipRows(pix, width, height)); err != nil {
		return err
	}

	return f.Write(img)
}

// flipRows returns a copy of pix with the row order reversed
func flipRows(pix []float32, width, height int) []float32 {
	out := make([]float32, len(pix))
	for y := 0; y < height; y++ {
		copy(out[y*width:(y+1)*width], pix[(height-y-1)*width:(height-y)*width])
	}
	return out
}
