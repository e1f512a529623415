package extract

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"poreprep/internal/models"
	"poreprep/pkg/augment"
	"poreprep/pkg/config"
	"poreprep/pkg/fits"
)

func listFiles(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("Failed to read %s: %v", dir, err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}

// TestRunSingleObject is the smallest complete run: one label covering two
// diagonal pixels, one worker, no blur
func TestRunSingleObject(t *testing.T) {
	mask := models.NewLabelMask(4, 4)
	mask.Set(1, 1, 1)
	mask.Set(2, 2, 1)
	raw := createTestRaw(4, 4)

	dir := t.TempDir()
	ex := NewExtractor(&Params{OutputDir: dir, NumThreads: 1, Width: 4, Height: 4})

	result, err := ex.Run(mask, raw)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if result.TotalObjects != 1 || result.PatchSize != 1 || result.FilesWritten != 4 {
		t.Fatalf("Unexpected result: %+v", result)
	}

	want := []string{"image_000004.fits", "image_000005.fits", "image_000006.fits", "image_000007.fits"}
	got := listFiles(t, dir)
	if len(got) != len(want) {
		t.Fatalf("Expected files %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Expected files %v, got %v", want, got)
		}
	}

	for _, name := range want {
		p, err := fits.ReadPatch(filepath.Join(dir, name))
		if err != nil {
			t.Fatalf("Failed to read %s: %v", name, err)
		}
		if p.Size != 1 || p.Pix[0] != raw.At(1, 1) {
			t.Errorf("%s: expected 1x1 patch holding %v, got %+v", name, raw.At(1, 1), p)
		}
	}
}

func TestRunMultipleWorkers(t *testing.T) {
	// Labels 1..5 in a 12x12 mask; label 3 spans 4x3 pixels
	mask := models.NewLabelMask(12, 12)
	mask.Set(0, 0, 1)
	mask.Set(5, 0, 2)
	mask.Set(6, 1, 2)
	for y := 4; y < 7; y++ {
		for x := 2; x < 6; x++ {
			mask.Set(x, y, 3)
		}
	}
	mask.Set(10, 10, 5)
	raw := createTestRaw(12, 12)

	dir := t.TempDir()
	ex := NewExtractor(&Params{OutputDir: dir, NumThreads: 3, SinglePass: true})

	var reports [3]int
	ex.SetProgressCallback(func(phase, completed, total int) {
		reports[phase]++
		if total != 3 {
			t.Errorf("Expected total 3, got %d", total)
		}
	})

	result, err := ex.Run(mask, raw)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if reports[PhaseExtents] != 3 || reports[PhasePatches] != 3 {
		t.Errorf("Expected 3 reports per phase, got %v", reports)
	}
	if result.PatchSize != 3 {
		t.Fatalf("Expected patch size 3, got %d", result.PatchSize)
	}
	if result.FilesWritten != 5*VariantsPerLabel {
		t.Fatalf("Expected %d files, got %d", 5*VariantsPerLabel, result.FilesWritten)
	}
	if !result.Extents[3].Empty() {
		t.Errorf("Expected label 4 to be absent, got %+v", result.Extents[3])
	}

	files := listFiles(t, dir)
	if len(files) != result.FilesWritten {
		t.Fatalf("Expected %d files on disk, got %d", result.FilesWritten, len(files))
	}

	for i, rec := range result.Records {
		if rec.Count != (rec.Label)*VariantsPerLabel+i%VariantsPerLabel {
			t.Errorf("Record %d of label %d has count %d", i, rec.Label, rec.Count)
		}
		if rec.Filename != fits.Filename(rec.Count) {
			t.Errorf("Record %d filename %s", i, rec.Filename)
		}
	}

	// The identity variant of label 3 holds its top-left 3x2 pixels; the
	// bottom row of the 3x3 patch stays zero
	p, err := fits.ReadPatch(filepath.Join(dir, fits.Filename(3*VariantsPerLabel)))
	if err != nil {
		t.Fatalf("ReadPatch failed: %v", err)
	}
	if p.At(0, 0) != raw.At(2, 4) || p.At(2, 1) != raw.At(4, 5) {
		t.Errorf("Unexpected identity patch %v", p.Pix)
	}
	if p.At(0, 2) != 0 || p.At(2, 2) != 0 {
		t.Errorf("Expected zero bottom row, got %v", p.Pix)
	}

	// The remaining variants are rotations of it
	for i, d := range augment.Directions[1:] {
		v, err := fits.ReadPatch(filepath.Join(dir, fits.Filename(3*VariantsPerLabel+i+1)))
		if err != nil {
			t.Fatalf("ReadPatch failed: %v", err)
		}
		if !augment.Apply(v, augment.Inverse(d)).Equal(p) {
			t.Errorf("Variant %s does not invert back to the identity patch", d)
		}
	}
}

func TestRunWithBlurAndPreviews(t *testing.T) {
	mask := models.NewLabelMask(6, 6)
	for y := 1; y < 4; y++ {
		for x := 1; x < 4; x++ {
			mask.Set(x, y, 1)
		}
	}
	raw := models.NewRawIntensity(6, 6)
	for i := range raw.Pix {
		raw.Pix[i] = 2
	}

	dir := t.TempDir()
	previews := filepath.Join(dir, "previews")
	ex := NewExtractor(&Params{
		OutputDir:    filepath.Join(dir, "out"),
		NumThreads:   2,
		GaussSigma:   1.0,
		PreviewDir:   previews,
		PreviewScale: 2,
	})

	result, err := ex.Run(mask, raw)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	// A constant patch survives the blur unchanged
	rec := result.Records[0]
	if rec.Mean != 2 || rec.StdDev != 0 {
		t.Errorf("Expected mean 2 and stddev 0, got %v and %v", rec.Mean, rec.StdDev)
	}

	names := listFiles(t, previews)
	if len(names) != 1 || names[0] != "image_000004.png" {
		t.Errorf("Expected a single identity preview, got %v", names)
	}
}

func TestRunEmptyMask(t *testing.T) {
	dir := t.TempDir()
	ex := NewExtractor(&Params{OutputDir: dir, NumThreads: 4})

	result, err := ex.Run(models.NewLabelMask(3, 3), models.NewRawIntensity(3, 3))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.TotalObjects != 0 || result.FilesWritten != 0 {
		t.Errorf("Expected nothing written, got %+v", result)
	}
	if files := listFiles(t, dir); len(files) != 0 {
		t.Errorf("Expected empty output dir, got %v", files)
	}
}

func TestRunMoreWorkersThanLabels(t *testing.T) {
	mask := models.NewLabelMask(5, 5)
	mask.Set(0, 0, 1)
	mask.Set(4, 4, 2)

	dir := t.TempDir()
	ex := NewExtractor(&Params{OutputDir: dir, NumThreads: 6})
	result, err := ex.Run(mask, createTestRaw(5, 5))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.FilesWritten != 8 {
		t.Errorf("Expected 8 files, got %d", result.FilesWritten)
	}
}

func TestRunCapsWorkersAtLabelCount(t *testing.T) {
	mask := models.NewLabelMask(4, 4)
	mask.Set(0, 0, 1)
	mask.Set(3, 3, 2)

	dir := t.TempDir()
	ex := NewExtractor(&Params{OutputDir: dir, NumThreads: 1_000_000})

	reports := 0
	ex.SetProgressCallback(func(phase, completed, total int) {
		reports++
	})

	result, err := ex.Run(mask, createTestRaw(4, 4))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(result.Partitions) != 2 {
		t.Errorf("Expected 2 partitions, got %d", len(result.Partitions))
	}
	if reports != 4 {
		t.Errorf("Expected 4 progress reports, got %d", reports)
	}
	if result.FilesWritten != 2*VariantsPerLabel {
		t.Errorf("Expected %d files, got %d", 2*VariantsPerLabel, result.FilesWritten)
	}
}

// TestShrunkFinalPartitionDropsHighestLabel documents why phase 2 reuses
// the phase 1 partitions: writing with a final range that ends one short
// never produces the files of label N, while every other label is written.
func TestShrunkFinalPartitionDropsHighestLabel(t *testing.T) {
	const total = 7
	mask := models.NewLabelMask(8, 8)
	for label := 1; label <= total; label++ {
		mask.Set(label, label, uint16(label))
	}
	raw := createTestRaw(8, 8)
	extents := FindExtents(mask, 1, total+1)

	dir := t.TempDir()
	ex := NewExtractor(&Params{OutputDir: dir, NumThreads: 3})

	parts := Partitions(total, 3)
	parts[len(parts)-1].End--
	for _, p := range parts {
		if _, err := ex.writePartition(raw, extents, 1, p); err != nil {
			t.Fatalf("writePartition(%v) failed: %v", p, err)
		}
	}

	for label := 1; label <= total; label++ {
		for v := 0; v < VariantsPerLabel; v++ {
			name := fits.Filename(label*VariantsPerLabel + v)
			_, err := os.Stat(filepath.Join(dir, name))
			if label == total && !os.IsNotExist(err) {
				t.Errorf("Expected %s of label %d to be missing, got %v", name, label, err)
			}
			if label < total && err != nil {
				t.Errorf("Expected %s of label %d: %v", name, label, err)
			}
		}
	}
}

func TestRunRejectsInvalidParams(t *testing.T) {
	mask := models.NewLabelMask(2, 2)
	raw := models.NewRawIntensity(2, 2)

	tests := []struct {
		name   string
		params Params
	}{
		{"zero threads", Params{OutputDir: t.TempDir(), NumThreads: 0}},
		{"negative sigma", Params{OutputDir: t.TempDir(), NumThreads: 1, GaussSigma: -1}},
		{"infinite sigma", Params{OutputDir: t.TempDir(), NumThreads: 1, GaussSigma: math.Inf(1)}},
		{"nan sigma", Params{OutputDir: t.TempDir(), NumThreads: 1, GaussSigma: math.NaN()}},
		{"huge sigma", Params{OutputDir: t.TempDir(), NumThreads: 1, GaussSigma: 1e9}},
		{"no output", Params{NumThreads: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewExtractor(&tt.params).Run(mask, raw)
			var cerr *config.ConfigError
			if !errors.As(err, &cerr) {
				t.Errorf("Expected ConfigError, got %v", err)
			}
		})
	}
}

func TestRunRejectsShapeMismatch(t *testing.T) {
	ex := NewExtractor(&Params{OutputDir: t.TempDir(), NumThreads: 1})
	if _, err := ex.Run(models.NewLabelMask(3, 3), models.NewRawIntensity(3, 4)); err == nil {
		t.Error("Expected error for mismatched rasters")
	}
}

func TestProcessMissingInput(t *testing.T) {
	dir := t.TempDir()
	ex := NewExtractor(&Params{
		RawPath:    filepath.Join(dir, "missing.tif"),
		MaskPath:   filepath.Join(dir, "missing_mask.tif"),
		OutputDir:  dir,
		NumThreads: 1,
	})
	if _, err := ex.Process(); err == nil {
		t.Error("Expected error for missing input")
	}
}
