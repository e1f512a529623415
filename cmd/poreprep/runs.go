package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"poreprep/pkg/catalog"
	"poreprep/pkg/config"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List the runs recorded in the catalog",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		url := dbURL
		if url == "" {
			cfg, err := config.LoadConfig(configPath)
			if err != nil {
				return err
			}
			url = cfg.Catalog.URL
		}
		if url == "" {
			return &config.ConfigError{Field: "catalog url", Err: fmt.Errorf("set --db or catalog.url")}
		}

		db, err := catalog.New(cmd.Context(), url)
		if err != nil {
			return fmt.Errorf("failed to connect to catalog: %w", err)
		}
		defer db.Close(context.Background())

		runs, err := db.ListRuns(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to list runs: %w", err)
		}

		out := cmd.OutOrStdout()
		if len(runs) == 0 {
			fmt.Fprintln(out, "No runs recorded.")
			return nil
		}

		w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "ID\tRAW\tMASK\tOBJECTS\tFILES\tPATCH\tSIGMA\tCREATED")
		fmt.Fprintln(w, "--\t---\t----\t-------\t-----\t-----\t-----\t-------")
		for _, r := range runs {
			fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%d\t%d\t%.2f\t%s\n",
				r.ID, r.RawPath, r.MaskPath, r.Objects, r.Files, r.PatchSize, r.Sigma,
				r.CreatedAt.Local().Format("2006-01-02 15:04"))
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(runsCmd)
}
