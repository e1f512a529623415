// Package catalog records extraction runs and their patches in PostgreSQL.
package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"poreprep/pkg/extract"
)

// Catalog manages the PostgreSQL connection.
type Catalog struct {
	conn *pgx.Conn
}

// Run is one recorded invocation of the pipeline
type Run struct {
	ID        int64
	RawPath   string
	MaskPath  string
	OutputDir string
	PatchSize int
	Sigma     float64
	Threads   int
	Objects   int
	Files     int
	CreatedAt time.Time
}

var patchColumns = []string{
	"run_id", "label_id", "variant", "filename",
	"min_x", "min_y", "width", "height", "pixels",
	"mean", "stddev",
}

// New connects to the database and creates the tables when missing.
func New(ctx context.Context, connString string) (*Catalog, error) {
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return nil, err
	}

	if err := initSchema(ctx, conn); err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("failed to initialize catalog schema: %w", err)
	}

	return &Catalog{conn: conn}, nil
}

func initSchema(ctx context.Context, conn *pgx.Conn) error {
	query := `
		CREATE TABLE IF NOT EXISTS runs (
			id BIGSERIAL PRIMARY KEY,
			raw_path TEXT NOT NULL,
			mask_path TEXT NOT NULL,
			output_dir TEXT NOT NULL,
			patch_size INT NOT NULL,
			sigma DOUBLE PRECISION NOT NULL,
			threads INT NOT NULL,
			objects INT NOT NULL,
			files INT NOT NULL,
			created_at TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS patches (
			run_id BIGINT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			label_id INT NOT NULL,
			variant TEXT NOT NULL,
			filename TEXT NOT NULL,
			min_x INT NOT NULL,
			min_y INT NOT NULL,
			width INT NOT NULL,
			height INT NOT NULL,
			pixels INT NOT NULL,
			mean DOUBLE PRECISION NOT NULL,
			stddev DOUBLE PRECISION NOT NULL,
			PRIMARY KEY (run_id, filename)
		);
		CREATE INDEX IF NOT EXISTS patches_label_idx ON patches (run_id, label_id);
	`
	_, err := conn.Exec(ctx, query)
	return err
}

// Close terminates the database connection.
func (c *Catalog) Close(ctx context.Context) {
	c.conn.Close(ctx)
}

// NewRun describes a finished extraction for recording
func NewRun(params *extract.Params, result *extract.Result) Run {
	return Run{
		RawPath:   params.RawPath,
		MaskPath:  params.MaskPath,
		OutputDir: params.OutputDir,
		PatchSize: result.PatchSize,
		Sigma:     params.GaussSigma,
		Threads:   params.NumThreads,
		Objects:   result.TotalObjects,
		Files:     result.FilesWritten,
	}
}

// patchRows converts the written files into COPY rows for one run
func patchRows(runID int64, records []extract.PatchRecord) [][]any {
	rows := make([][]any, len(records))
	for i, r := range records {
		rows[i] = []any{
			runID, r.Label, r.Variant.String(), r.Filename,
			r.Extent.MinX, r.Extent.MinY, r.Extent.Width, r.Extent.Height, r.Extent.Pixels,
			r.Mean, r.StdDev,
		}
	}
	return rows
}

// RecordRun stores the run and all of its patches in one transaction and
// returns the new run id.
func (c *Catalog) RecordRun(ctx context.Context, run Run, records []extract.PatchRecord) (int64, error) {
	tx, err := c.conn.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	var id int64
	err = tx.QueryRow(ctx, `
		INSERT INTO runs (raw_path, mask_path, output_dir, patch_size, sigma, threads, objects, files)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`, run.RawPath, run.MaskPath, run.OutputDir, run.PatchSize, run.Sigma, run.Threads, run.Objects, run.Files).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert run: %w", err)
	}

	if len(records) > 0 {
		n, err := tx.CopyFrom(ctx, pgx.Identifier{"patches"}, patchColumns, pgx.CopyFromRows(patchRows(id, records)))
		if err != nil {
			return 0, fmt.Errorf("failed to copy patches: %w", err)
		}
		if int(n) != len(records) {
			return 0, fmt.Errorf("copied %d of %d patches", n, len(records))
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return id, nil
}

// ListRuns returns the recorded runs, newest first.
func (c *Catalog) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := c.conn.Query(ctx, `
		SELECT id, raw_path, mask_path, output_dir, patch_size, sigma, threads, objects, files, created_at
		FROM runs
		ORDER BY id DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.RawPath, &r.MaskPath, &r.OutputDir, &r.PatchSize, &r.Sigma, &r.Threads, &r.Objects, &r.Files, &r.CreatedAt); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// CountPatches returns the number of patches recorded for a run
func (c *Catalog) CountPatches(ctx context.Context, runID int64) (int, error) {
	var n int
	err := c.conn.QueryRow(ctx, "SELECT COUNT(*) FROM patches WHERE run_id = $1", runID).Scan(&n)
	return n, err
}

// DeleteRun removes a run and its patches. Files on disk are untouched.
func (c *Catalog) DeleteRun(ctx context.Context, runID int64) error {
	tag, err := c.conn.Exec(ctx, "DELETE FROM runs WHERE id = $1", runID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
