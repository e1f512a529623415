// Package extract implements the two-phase pore extraction pipeline.
//
// Phase 1 partitions the label ids across a fixed number of workers, each
// computing the bounding boxes of its labels. After every worker has
// reported, the boxes are merged and reduced to one global patch size.
// Phase 2 reuses the same partitions: each worker crops, optionally blurs,
// augments and writes the patches of its labels. Output file names are
// derived from label ids, so workers never share a counter or a lock.
package extract

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"poreprep/internal/models"
	"poreprep/pkg/augment"
	"poreprep/pkg/config"
	"poreprep/pkg/denoise"
	"poreprep/pkg/fits"
	"poreprep/pkg/raster"
	"poreprep/pkg/visualization"
)

// VariantsPerLabel is the number of files written for every label
const VariantsPerLabel = len(augment.Directions)

// Phases reported to the progress callback
const (
	PhaseExtents = 1
	PhasePatches = 2
)

// Params holds the extraction parameters.
type Params struct {
	// RawPath and MaskPath locate the input rasters. They are only used by
	// Process; Run takes decoded rasters.
	RawPath  string
	MaskPath string

	// OutputDir receives the patch files
	OutputDir string

	// NumThreads is the number of partitions and workers per phase. Runs
	// with fewer labels than threads use one worker per label.
	NumThreads int

	// GaussSigma enables the Gaussian denoiser when greater than zero
	GaussSigma float64

	// Width and Height are the dimensions both rasters must have. Zero
	// skips the check.
	Width  int
	Height int

	// SinglePass selects ScanExtents instead of FindExtents
	SinglePass bool

	// PreviewDir, when set, receives a PNG of each identity patch
	PreviewDir string

	// PreviewScale is the preview upscale factor
	PreviewScale int
}

// PatchRecord describes one written file
type PatchRecord struct {
	Label    int
	Variant  augment.Direction
	Count    int
	Filename string
	Extent   models.Extent

	// Mean and StdDev are taken over the patch after denoising. They are
	// identical for every variant of a label.
	Mean   float64
	StdDev float64
}

// Result summarizes a completed run
type Result struct {
	TotalObjects int
	PatchSize    int
	Partitions   []Partition
	Extents      []models.Extent
	FilesWritten int
	Records      []PatchRecord
}

// ProgressCallback is called after each partition reports in a phase
type ProgressCallback func(phase, completed, total int)

// Extractor runs the pipeline for one pair of rasters.
type Extractor struct {
	params   *Params
	kernel   *denoise.Kernel
	preview  *visualization.Previewer
	progress ProgressCallback
}

// NewExtractor creates a new extractor with the provided parameters
func NewExtractor(params *Params) *Extractor {
	return &Extractor{params: params}
}

// SetProgressCallback sets the function notified of partition completions
func (e *Extractor) SetProgressCallback(callback ProgressCallback) {
	e.progress = callback
}

// Process loads both rasters, checks their shape and runs the pipeline.
func (e *Extractor) Process() (*Result, error) {
	log := Logger()

	log.Info("loading raw image", "path", e.params.RawPath)
	raw, err := raster.LoadRaw(e.params.RawPath)
	if err != nil {
		return nil, err
	}

	log.Info("loading label mask", "path", e.params.MaskPath)
	mask, err := raster.LoadMask(e.params.MaskPath)
	if err != nil {
		return nil, err
	}

	return e.Run(mask, raw)
}

// Run executes both phases on decoded rasters. The rasters are shared
// read-only with every worker and must not be modified until Run returns.
func (e *Extractor) Run(mask *models.LabelMask, raw *models.RawIntensity) (*Result, error) {
	log := Logger()

	if err := e.validate(); err != nil {
		return nil, err
	}
	if err := raster.CheckShape(mask, raw, e.params.Width, e.params.Height); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(e.params.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	if e.params.PreviewDir != "" {
		if err := os.MkdirAll(e.params.PreviewDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create preview directory: %w", err)
		}
		e.preview = visualization.NewPreviewer(e.params.PreviewDir, e.params.PreviewScale)
	}
	if e.params.GaussSigma > 0 {
		kernel, err := denoise.NewKernel(e.params.GaussSigma)
		if err != nil {
			return nil, &config.ConfigError{Field: "gauss sigma", Err: err}
		}
		e.kernel = kernel
		log.Info("denoising enabled", "sigma", e.params.GaussSigma, "radius", e.kernel.Radius)
	}

	total := mask.MaxLabel()
	workers := e.params.NumThreads
	if limit := max(total, 1); workers > limit {
		log.Debug("more threads than labels", "threads", workers, "workers", limit)
		workers = limit
	}
	parts := Partitions(total, workers)
	result := &Result{TotalObjects: total, Partitions: parts}
	log.Info("objects found", "count", total, "threads", e.params.NumThreads, "workers", workers)

	if total == 0 {
		log.Warn("mask holds no labels, nothing to extract")
		return result, nil
	}

	// Phase 1: bounding boxes
	start := time.Now()
	find := FindExtents
	if e.params.SinglePass {
		find = ScanExtents
	}
	lists, err := runPartitions(parts, func(p Partition) ([]models.Extent, error) {
		log.Debug("finding extents", "partition", p.Index, "start", p.Start, "end", p.End)
		return find(mask, p.Start, p.End), nil
	}, e.reporter(PhaseExtents))
	if err != nil {
		return nil, err
	}

	result.Extents = MergeExtents(lists)
	if len(result.Extents) != total {
		return nil, fmt.Errorf("partitions produced %d extents for %d labels", len(result.Extents), total)
	}
	// Runs of single-pixel objects still get 1x1 patches
	result.PatchSize = max(GlobalPatchSize(result.Extents), 1)
	log.Info("extents complete", "patch_size", result.PatchSize, "elapsed", time.Since(start))

	// Phase 2: patches
	start = time.Now()
	outputs, err := runPartitions(parts, func(p Partition) ([]PatchRecord, error) {
		return e.writePartition(raw, result.Extents, result.PatchSize, p)
	}, e.reporter(PhasePatches))
	if err != nil {
		return nil, err
	}

	for _, records := range outputs {
		result.Records = append(result.Records, records...)
	}
	sort.Slice(result.Records, func(i, j int) bool {
		return result.Records[i].Count < result.Records[j].Count
	})
	result.FilesWritten = len(result.Records)
	log.Info("patches complete", "files", result.FilesWritten, "elapsed", time.Since(start))

	return result, nil
}

func (e *Extractor) validate() error {
	if e.params.NumThreads < 1 {
		return &config.ConfigError{Field: "thread count", Err: fmt.Errorf("must be >= 1, got %d", e.params.NumThreads)}
	}
	if err := denoise.CheckSigma(e.params.GaussSigma); err != nil {
		return &config.ConfigError{Field: "gauss sigma", Err: err}
	}
	if e.params.OutputDir == "" {
		return &config.ConfigError{Field: "output dir", Err: fmt.Errorf("must not be empty")}
	}
	return nil
}

func (e *Extractor) reporter(phase int) func(completed, total int) {
	return func(completed, total int) {
		Logger().Debug("partition reported", "phase", phase, "completed", completed, "total", total)
		if e.progress != nil {
			e.progress(phase, completed, total)
		}
	}
}

// writePartition produces the files of every label in p. extents is the
// merged list, indexed by label-1.
func (e *Extractor) writePartition(raw *models.RawIntensity, extents []models.Extent, size int, p Partition) ([]PatchRecord, error) {
	records := make([]PatchRecord, 0, p.Len()*VariantsPerLabel)
	count := p.FileOffset()

	for label := p.Start; label < p.End; label++ {
		ext := extents[label-1]

		patch := ExtractPatch(raw, ext, size)
		if e.kernel != nil {
			patch = e.kernel.Apply(patch)
		}
		mean, std := patchStats(patch)

		for i, variant := range augment.Variants(patch) {
			name := fits.Filename(count)
			if err := fits.WritePatch(filepath.Join(e.params.OutputDir, name), variant); err != nil {
				return records, fmt.Errorf("label %d: %w", label, err)
			}

			if i == 0 && e.preview != nil {
				if err := e.preview.Save(variant, visualization.PreviewName(count)); err != nil {
					return records, fmt.Errorf("label %d: %w", label, err)
				}
			}

			records = append(records, PatchRecord{
				Label:    label,
				Variant:  augment.Directions[i],
				Count:    count,
				Filename: name,
				Extent:   ext,
				Mean:     mean,
				StdDev:   std,
			})
			count++
		}
	}

	return records, nil
}

func patchStats(p *models.Patch) (mean, std float64) {
	values := make([]float64, len(p.Pix))
	for i, v := range p.Pix {
		values[i] = float64(v)
	}
	if len(values) < 2 {
		return values[0], 0
	}
	return stat.MeanStdDev(values, nil)
}
