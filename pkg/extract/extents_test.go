package extract

import (
	"math/rand"
	"reflect"
	"testing"

	"poreprep/internal/models"
)

// createTestMask builds a mask from rows of label ids
func createTestMask(rows [][]uint16) *models.LabelMask {
	mask := models.NewLabelMask(len(rows[0]), len(rows))
	for y, row := range rows {
		for x, v := range row {
			mask.Set(x, y, v)
		}
	}
	return mask
}

func TestFindExtents(t *testing.T) {
	mask := createTestMask([][]uint16{
		{0, 0, 0, 0, 0},
		{0, 1, 1, 0, 3},
		{0, 1, 0, 0, 3},
		{0, 0, 0, 0, 3},
	})

	got := FindExtents(mask, 1, 4)
	want := []models.Extent{
		{Label: 1, MinX: 1, MinY: 1, Width: 1, Height: 1, Pixels: 3},
		{Label: 2, MinX: 5, MinY: 4, Width: 0, Height: 0, Pixels: 0},
		{Label: 3, MinX: 4, MinY: 1, Width: 0, Height: 2, Pixels: 3},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("FindExtents = %+v, want %+v", got, want)
	}
	if !got[1].Empty() {
		t.Error("Expected absent label to be empty")
	}
}

func TestFindExtentsSinglePixel(t *testing.T) {
	mask := models.NewLabelMask(6, 6)
	mask.Set(4, 2, 1)

	got := FindExtents(mask, 1, 2)
	if len(got) != 1 {
		t.Fatalf("Expected one extent, got %d", len(got))
	}
	e := got[0]
	if e.Width != 0 || e.Height != 0 || e.MinX != 4 || e.MinY != 2 {
		t.Errorf("Unexpected extent for single pixel: %+v", e)
	}
}

func TestFindExtentsEmptyRange(t *testing.T) {
	mask := createTestMask([][]uint16{{1, 2}})
	if got := FindExtents(mask, 3, 3); len(got) != 0 {
		t.Errorf("Expected no extents for empty range, got %d", len(got))
	}
	if got := ScanExtents(mask, 3, 3); len(got) != 0 {
		t.Errorf("Expected no extents for empty range, got %d", len(got))
	}
}

// TestExtentsContainLabelPixels checks that every pixel of a label lies
// inside its box and that the box is tight
func TestExtentsContainLabelPixels(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	mask := models.NewLabelMask(40, 30)
	for i := range mask.Pix {
		if rng.Intn(4) == 0 {
			mask.Pix[i] = uint16(1 + rng.Intn(9))
		}
	}

	for _, e := range FindExtents(mask, 1, mask.MaxLabel()+1) {
		if e.Empty() {
			continue
		}
		touchX, touchY := false, false
		for y := 0; y < mask.Height; y++ {
			for x := 0; x < mask.Width; x++ {
				if int(mask.At(x, y)) != e.Label {
					continue
				}
				if x < e.MinX || x > e.MinX+e.Width || y < e.MinY || y > e.MinY+e.Height {
					t.Fatalf("Label %d pixel (%d,%d) outside %+v", e.Label, x, y, e)
				}
				touchX = touchX || x == e.MinX
				touchY = touchY || y == e.MinY
			}
		}
		if !touchX || !touchY {
			t.Errorf("Box of label %d is not tight: %+v", e.Label, e)
		}
	}
}

func TestScanExtentsMatchesFindExtents(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	mask := models.NewLabelMask(64, 48)
	for i := range mask.Pix {
		mask.Pix[i] = uint16(rng.Intn(20))
	}

	ranges := [][2]int{{1, 20}, {1, 5}, {5, 12}, {19, 20}, {18, 25}}
	for _, r := range ranges {
		brute := FindExtents(mask, r[0], r[1])
		scan := ScanExtents(mask, r[0], r[1])
		if !reflect.DeepEqual(brute, scan) {
			t.Errorf("Range %v: ScanExtents = %+v, FindExtents = %+v", r, scan, brute)
		}
	}
}
