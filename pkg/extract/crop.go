package extract

import (
	"poreprep/internal/models"
)

// ExtractPatch cuts the object described by ext out of raw into a zeroed
// size x size patch, anchored at the top-left corner. It copies Height rows
// by Width columns, so the last row and column of the object are left out.
// A zero dimension still copies one row or column, which keeps thin and
// single-pixel objects. Source pixels outside the raster are skipped.
// Intensities are copied as-is.
func ExtractPatch(raw *models.RawIntensity, ext models.Extent, size int) *models.Patch {
	if size < 1 {
		size = 1
	}
	p := models.NewPatch(size)
	if ext.Empty() {
		return p
	}

	rows := min(max(ext.Height, 1), size)
	cols := min(max(ext.Width, 1), size)
	for y := 0; y < rows; y++ {
		sy := y + ext.MinY
		for x := 0; x < cols; x++ {
			sx := x + ext.MinX
			if !raw.InBounds(sx, sy) {
				continue
			}
			p.Set(x, y, raw.At(sx, sy))
		}
	}
	return p
}
