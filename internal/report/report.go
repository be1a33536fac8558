// Package report renders a single prediction as a one-page PDF.
package report

import (
	"bytes"
	"fmt"
	"io"
	"strconv"

	"github.com/go-pdf/fpdf"

	"github.com/mind-engage/pbpd/internal/predict"
)

const (
	ContentType = "application/pdf"
	FileName    = "pbpd_prediction_report.pdf"

	timeLayout = "2006-01-02 15:04:05"
	lineWidth  = 190
	lineHeight = 10
)

// Render writes the PDF report for res to w.
func Render(w io.Writer, res predict.Result) error {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetCatalogSort(true)
	pdf.SetTitle("PBPD Prediction Report", false)
	pdf.SetCreationDate(res.Timestamp)
	pdf.SetModificationDate(res.Timestamp)
	// core fonts are cp1252; µ and ³ need translating
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	line := func(s string) {
		pdf.CellFormat(lineWidth, lineHeight, tr(s), "", 1, "L", false, 0, "")
	}

	pdf.AddPage()
	pdf.SetFont("Arial", "", 12)
	pdf.CellFormat(lineWidth, lineHeight, "PBPD Prediction Report", "", 1, "C", false, 0, "")
	pdf.Ln(5)
	line("Material Group: " + res.Group.Code())
	line("Confidence Level: " + res.Confidence)
	line("Timestamp: " + res.Timestamp.Format(timeLayout))
	pdf.Ln(5)

	s, m := res.Sample, res.Metrics
	line("Inputs:")
	line("D10: " + num(s.D10) + " µm")
	line("D50: " + num(s.D50) + " µm")
	line("D90: " + num(s.D90) + " µm")
	line(fmt.Sprintf("Span: %.3f", m.Span))
	line("D[2,3]: " + num(s.D23) + " µm")
	line("D[3,4]: " + num(s.D34) + " µm")
	line(fmt.Sprintf("R23: %.3f", m.R23))
	line(fmt.Sprintf("R34: %.3f", m.R34))
	line("Tap Density: " + num(s.TapDensity) + " g/cm³")
	line("Hausner Ratio: " + num(s.HausnerRatio))
	line("Layer Thickness: " + num(s.LayerThickness) + " µm")

	if len(res.Warnings) > 0 {
		pdf.Ln(5)
		line("Warnings:")
		for _, w := range res.Warnings {
			line("- " + w.Message)
		}
	}

	pdf.Ln(5)
	pdf.SetFont("Arial", "B", 12)
	line(fmt.Sprintf("Predicted PBPD: %.2f%%", res.Prediction))

	return pdf.Output(w)
}

// Bytes renders the report into memory.
func Bytes(res predict.Result) ([]byte, error) {
	var buf bytes.Buffer
	if err := Render(&buf, res); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func num(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
