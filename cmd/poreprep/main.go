package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"poreprep/pkg/catalog"
	"poreprep/pkg/config"
	"poreprep/pkg/extract"
)

// Version is the application version.
const Version = "0.1.0"

var (
	configPath string
	dbURL      string

	outputDir  string
	width      int
	height     int
	previewDir string
	singlePass bool
	verbose    bool
	noProgress bool
)

var rootCmd = &cobra.Command{
	Use:   "poreprep <raw-path> <mask-path> <thread-count> [<gauss-sigma>]",
	Short: "Cut labelled objects out of a raster into augmented FITS patches",
	Long: `poreprep reads a raw intensity image and a 16-bit label mask, finds the
bounding box of every labelled object, and writes each object as a square
FITS patch in four orientations, ready for training.`,
	Version:       Version,
	Args:          cobra.RangeArgs(3, 4),
	SilenceErrors: true,
	RunE:          runExtract,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "poreprep.yaml", "YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&dbURL, "db", "", "PostgreSQL connection string for the run catalog")

	f := rootCmd.Flags()
	f.StringVarP(&outputDir, "output", "o", ".", "Directory for the FITS patches")
	f.IntVar(&width, "width", 1280, "Expected raster width (0 disables the check)")
	f.IntVar(&height, "height", 1280, "Expected raster height (0 disables the check)")
	f.StringVar(&previewDir, "preview-dir", "", "Write PNG previews of identity patches to this directory")
	f.BoolVar(&singlePass, "single-pass", false, "Find all extents in one pass over the mask")
	f.BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	f.BoolVar(&noProgress, "no-progress", false, "Hide the progress bar")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads the config file and applies explicitly set flags on top
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("output") {
		cfg.Output.Dir = outputDir
	}
	if flags.Changed("width") {
		cfg.Processing.Width = width
	}
	if flags.Changed("height") {
		cfg.Processing.Height = height
	}
	if flags.Changed("preview-dir") {
		cfg.Output.PreviewDir = previewDir
	}
	if flags.Changed("single-pass") {
		cfg.Processing.SinglePass = singlePass
	}
	if flags.Changed("verbose") {
		cfg.Output.Verbose = verbose
	}
	if flags.Changed("no-progress") {
		cfg.Output.Progress = !noProgress
	}
	if flags.Changed("db") {
		cfg.Catalog.URL = dbURL
	}
	return cfg, nil
}

// applyArgs parses the positional thread count and optional sigma
func applyArgs(cfg *config.Config, args []string) error {
	threads, err := strconv.Atoi(args[2])
	if err != nil {
		return &config.ConfigError{Field: "thread count", Err: err}
	}
	cfg.Processing.NumThreads = threads

	cfg.Processing.GaussSigma = 0
	if len(args) == 4 {
		sigma, err := strconv.ParseFloat(args[3], 64)
		if err != nil {
			return &config.ConfigError{Field: "gauss sigma", Err: err}
		}
		cfg.Processing.GaussSigma = sigma
	}
	return cfg.Validate()
}

func setupLogging(cfg *config.Config) {
	level := slog.LevelInfo
	if cfg.Output.Verbose {
		level = slog.LevelDebug
	}
	extract.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// phaseBars shows one bar per phase, advanced once per partition
func phaseBars() extract.ProgressCallback {
	names := map[int]string{
		extract.PhaseExtents: "Finding extents",
		extract.PhasePatches: "Writing patches",
	}
	var bar *progressbar.ProgressBar
	return func(phase, completed, total int) {
		if completed == 1 {
			bar = progressbar.NewOptions(total,
				progressbar.OptionSetDescription(names[phase]),
				progressbar.OptionSetWriter(os.Stderr),
				progressbar.OptionShowCount(),
				progressbar.OptionOnCompletion(func() {
					fmt.Fprintln(os.Stderr)
				}),
			)
		}
		bar.Add(1)
	}
}

func runExtract(cmd *cobra.Command, args []string) error {
	// Arguments are valid from here on, later failures are not usage errors
	cmd.SilenceUsage = true

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := applyArgs(cfg, args); err != nil {
		return err
	}
	setupLogging(cfg)

	params := &extract.Params{
		RawPath:      args[0],
		MaskPath:     args[1],
		OutputDir:    cfg.Output.Dir,
		NumThreads:   cfg.Processing.NumThreads,
		GaussSigma:   cfg.Processing.GaussSigma,
		Width:        cfg.Processing.Width,
		Height:       cfg.Processing.Height,
		SinglePass:   cfg.Processing.SinglePass,
		PreviewDir:   cfg.Output.PreviewDir,
		PreviewScale: cfg.Output.PreviewScale,
	}

	extractor := extract.NewExtractor(params)
	if cfg.Output.Progress {
		extractor.SetProgressCallback(phaseBars())
	}

	startTime := time.Now()
	result, err := extractor.Process()
	if err != nil {
		return fmt.Errorf("extraction failed: %w", err)
	}
	elapsed := time.Since(startTime)

	out, _ := filepath.Abs(params.OutputDir)
	fmt.Printf("\nExtraction completed in %.2f seconds\n", elapsed.Seconds())
	fmt.Printf("- Objects:    %d\n", result.TotalObjects)
	fmt.Printf("- Patch size: %dx%d\n", result.PatchSize, result.PatchSize)
	fmt.Printf("- Files:      %d in %s\n", result.FilesWritten, out)
	fmt.Printf("- Threads:    %d\n", params.NumThreads)
	if params.GaussSigma > 0 {
		fmt.Printf("- Denoised with sigma %.2f\n", params.GaussSigma)
	}

	if cfg.Catalog.URL == "" {
		return nil
	}

	db, err := catalog.New(cmd.Context(), cfg.Catalog.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to catalog: %w", err)
	}
	// The command context may already be cancelled
	defer db.Close(context.Background())

	id, err := db.RecordRun(cmd.Context(), catalog.NewRun(params, result), result.Records)
	if err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}
	fmt.Printf("- Recorded as run %d\n", id)
	return nil
}
