package extract

import (
	"poreprep/internal/models"
)

// bounds accumulates the running min/max of one label
type bounds struct {
	minX, minY, maxX, maxY int
	pixels                 int
}

func newBounds(mask *models.LabelMask) bounds {
	return bounds{minX: mask.Width, minY: mask.Height}
}

func (b *bounds) add(x, y int) {
	if x < b.minX {
		b.minX = x
	}
	if x > b.maxX {
		b.maxX = x
	}
	if y < b.minY {
		b.minY = y
	}
	if y > b.maxY {
		b.maxY = y
	}
	b.pixels++
}

// extent converts the bounds into an Extent. Absent labels keep the
// degenerate minimums and report a 0x0 size instead of a negative one.
func (b bounds) extent(label int) models.Extent {
	e := models.Extent{
		MinX:   b.minX,
		MinY:   b.minY,
		Label:  label,
		Pixels: b.pixels,
	}
	if b.pixels > 0 {
		e.Width = b.maxX - b.minX
		e.Height = b.maxY - b.minY
	}
	return e
}

// FindExtents returns the bounding box of every label in [start, end), in
// ascending label order. Each label costs a full scan of the mask.
func FindExtents(mask *models.LabelMask, start, end int) []models.Extent {
	if end <= start {
		return nil
	}
	extents := make([]models.Extent, 0, end-start)

	for label := start; label < end; label++ {
		b := newBounds(mask)
		for y := 0; y < mask.Height; y++ {
			row := mask.Pix[y*mask.Width : (y+1)*mask.Width]
			for x, v := range row {
				if int(v) == label {
					b.add(x, y)
				}
			}
		}
		extents = append(extents, b.extent(label))
	}

	return extents
}

// ScanExtents computes the same result as FindExtents in one pass over the
// mask, keeping running bounds for every label in range.
func ScanExtents(mask *models.LabelMask, start, end int) []models.Extent {
	if end <= start {
		return nil
	}
	acc := make([]bounds, end-start)
	for i := range acc {
		acc[i] = newBounds(mask)
	}

	for y := 0; y < mask.Height; y++ {
		row := mask.Pix[y*mask.Width : (y+1)*mask.Width]
		for x, v := range row {
			label := int(v)
			if label >= start && label < end {
				acc[label-start].add(x, y)
			}
		}
	}

	extents := make([]models.Extent, len(acc))
	for i, b := range acc {
		extents[i] = b.extent(start + i)
	}
	return extents
}
