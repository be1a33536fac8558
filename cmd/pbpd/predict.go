package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/mind-engage/pbpd/internal/powder"
	"github.com/mind-engage/pbpd/internal/predict"
	"github.com/mind-engage/pbpd/internal/report"
)

func newPredictCmd() *cobra.Command {
	var (
		req     = predict.Request{Material: "auto", Sample: powder.DefaultSample()}
		pdfPath string
		asJSON  bool
	)
	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Predict PBPD for one powder sample",
		RunE: func(cmd *cobra.Command, _ []string) error {
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

			res, err := svc.PredictSample(cmd.Context(), req)
			if err != nil {
				return err
			}
			if pdfPath != "" {
				if err := writePDF(pdfPath, res); err != nil {
					return err
				}
			}
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}
			printResult(out, res)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&req.Material, "material", req.Material, `"auto", ti, ss or al`)
	f.Float64Var(&req.D10, "d10", req.D10, "D10 (µm)")
	f.Float64Var(&req.D50, "d50", req.D50, "D50 (µm)")
	f.Float64Var(&req.D90, "d90", req.D90, "D90 (µm)")
	f.Float64Var(&req.D23, "d23", req.D23, "D[2,3] (µm)")
	f.Float64Var(&req.D34, "d34", req.D34, "D[3,4] (µm)")
	f.Float64Var(&req.TapDensity, "tap-density", req.TapDensity, "tap density (g/cm³)")
	f.Float64Var(&req.HausnerRatio, "hr", req.HausnerRatio, "Hausner ratio")
	f.Float64Var(&req.LayerThickness, "layer-thickness", req.LayerThickness, "effective layer thickness (µm)")
	f.Float64Var(&req.BulkDensity, "bulk-density", req.BulkDensity, "bulk density for auto detection (g/cm³)")
	f.StringVar(&pdfPath, "pdf", "", "also write a PDF report to this path")
	f.BoolVar(&asJSON, "json", false, "print the full result as JSON")
	return cmd
}

func printResult(w io.Writer, res predict.Result) {
	fmt.Fprintf(w, "Material Group:  %s (%s)\n", res.Group.Code(), res.Group.Name())
	fmt.Fprintf(w, "Confidence:      %s\n", res.Confidence)
	fmt.Fprintf(w, "Span:            %.3f\n", res.Metrics.Span)
	fmt.Fprintf(w, "R23:             %.3f\n", res.Metrics.R23)
	fmt.Fprintf(w, "R34:             %.3f\n", res.Metrics.R34)
	for _, warn := range res.Warnings {
		fmt.Fprintf(w, "warning: %s\n", warn.Message)
	}
	fmt.Fprintf(w, "Predicted PBPD:  %.2f%%\n", res.Prediction)
}

func writePDF(path string, res predict.Result) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := report.Render(f, res); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
