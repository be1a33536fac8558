package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mind-engage/pbpd/internal/predict"
)

func newBatchCmd() *cobra.Command {
	var outPath string
	cmd := &cobra.Command{
		Use:   "batch <in.csv>",
		Short: "Predict PBPD for every row of a CSV file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup(cmd)
			if err != nil {
				return err
			}
			defer log.Sync() //nolint:errcheck
			reg, err := buildRegistry(cfg, log)
			if err != nil {
				return err
			}
			svc := predict.NewService(reg, predict.WithLogger(log))

			in, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer in.Close()
			b, err := svc.PredictBatch(cmd.Context(), filepath.Base(args[0]), in)
			if err != nil {
				return err
			}
			for _, rowErr := range b.Errors() {
				log.Warn("row skipped", zap.Int("row", rowErr.Row), zap.Error(rowErr.Err))
			}

			var out io.Writer = cmd.OutOrStdout()
			if outPath != "" {
				f, err := os.Create(outPath)
				if err != nil {
					return err
				}
				defer f.Close()
				out = f
			}
			if err := b.WriteCSV(out); err != nil {
				return err
			}
			sum := b.Summary()
			fmt.Fprintf(cmd.ErrOrStderr(), "batch prediction complete: %d rows, %d predicted, %d failed\n",
				sum.Total, sum.Predicted, sum.Failed)
			return nil
		},
	}
	cmd.Flags().StringVarP(&outPath, "output", "o", "", "write the augmented CSV here instead of stdout")
	return cmd
}
