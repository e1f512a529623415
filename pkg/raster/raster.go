// Package raster loads the label mask and raw intensity inputs and checks
// that they describe the same grid.
package raster

import (
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	_ "golang.org/x/image/tiff"

	"poreprep/internal/models"
	"poreprep/pkg/fits"
)

// DecodeError reports an input raster that cannot be used: unreadable, of
// the wrong sample type, or of the wrong shape. It is raised before any
// worker starts.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("decode: %v", e.Err)
	}
	return fmt.Sprintf("decode %s: %v", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// LoadMask reads a single-channel 16-bit TIFF label mask.
func LoadMask(path string) (*models.LabelMask, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}
	defer file.Close()

	img, format, err := image.Decode(file)
	if err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}

	gray, ok := img.(*image.Gray16)
	if !ok {
		return nil, &DecodeError{Path: path, Err: fmt.Errorf("expected 16-bit gray %s, got %T", format, img)}
	}
	return maskFromGray16(gray), nil
}

func maskFromGray16(img *image.Gray16) *models.LabelMask {
	b := img.Bounds()
	mask := models.NewLabelMask(b.Dx(), b.Dy())
	for y := 0; y < mask.Height; y++ {
		for x := 0; x < mask.Width; x++ {
			mask.Set(x, y, img.Gray16At(b.Min.X+x, b.Min.Y+y).Y)
		}
	}
	return mask
}

// LoadRaw reads the raw intensity raster. FITS files are read as written by
// package fits; TIFF files must hold 32-bit IEEE float samples, or 16-bit
// gray samples which are widened without rescaling.
func LoadRaw(path string) (*models.RawIntensity, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".fits", ".fit", ".fts":
		img, err := fits.ReadImage(path)
		if err != nil {
			return nil, &DecodeError{Path: path, Err: err}
		}
		return &models.RawIntensity{Width: img.Width, Height: img.Height, Pix: img.Pix}, nil
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}
	defer file.Close()

	raw, err := readFloatTIFF(file)
	if err == nil {
		return raw, nil
	}
	if !errors.Is(err, errNotFloat) {
		return nil, &DecodeError{Path: path, Err: err}
	}

	if _, err := file.Seek(0, 0); err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}
	img, _, err := image.Decode(file)
	if err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}
	gray, ok := img.(*image.Gray16)
	if !ok {
		return nil, &DecodeError{Path: path, Err: fmt.Errorf("expected 32-bit float or 16-bit gray samples, got %T", img)}
	}
	return rawFromGray16(gray), nil
}

func rawFromGray16(img *image.Gray16) *models.RawIntensity {
	b := img.Bounds()
	raw := models.NewRawIntensity(b.Dx(), b.Dy())
	for y := 0; y < raw.Height; y++ {
		for x := 0; x < raw.Width; x++ {
			raw.Set(x, y, float32(img.Gray16At(b.Min.X+x, b.Min.Y+y).Y))
		}
	}
	return raw
}

// CheckShape verifies both rasters are width x height. A zero width or
// height skips the configured size check, but the two rasters must always
// agree with each other.
func CheckShape(mask *models.LabelMask, raw *models.RawIntensity, width, height int) error {
	if mask.Width != raw.Width || mask.Height != raw.Height {
		return &DecodeError{Err: fmt.Errorf("mask is %dx%d but raw image is %dx%d",
			mask.Width, mask.Height, raw.Width, raw.Height)}
	}
	if len(mask.Pix) != mask.Width*mask.Height || len(raw.Pix) != raw.Width*raw.Height {
		return &DecodeError{Err: fmt.Errorf("pixel buffers do not match their dimensions")}
	}
	if width > 0 && mask.Width != width {
		return &DecodeError{Err: fmt.Errorf("expected width %d, got %d", width, mask.Width)}
	}
	if height > 0 && mask.Height != height {
		return &DecodeError{Err: fmt.Errorf("expected height %d, got %d", height, mask.Height)}
	}
	return nil
}
