package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"poreprep/pkg/fits"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <file.fits>",
	Short: "Print the size, header and value range of a patch file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		img, err := fits.ReadImage(args[0])
		if err != nil {
			return err
		}

		values := make([]float64, len(img.Pix))
		for i, v := range img.Pix {
			values[i] = float64(v)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "File:          %s\n", args[0])
		fmt.Fprintf(out, "Size:          %dx%d\n", img.Width, img.Height)
		fmt.Fprintf(out, "Normalisation: %s\n", img.Normalisation)
		if len(values) > 0 {
			mean, std := stat.MeanStdDev(values, nil)
			fmt.Fprintf(out, "Range:         %g .. %g\n", floats.Min(values), floats.Max(values))
			fmt.Fprintf(out, "Mean:          %g (stddev %g)\n", mean, std)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(inspectCmd)
}
