package predict

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"go.uber.org/zap"

	auth "github.com/mind-engage/pbpd/internal/auth/middleware"
	"github.com/mind-engage/pbpd/internal/history"
	"github.com/mind-engage/pbpd/internal/metrics"
	"github.com/mind-engage/pbpd/internal/powder"
)

// Input columns of a batch file.
const (
	ColD10            = "D10_µm"
	ColD50            = "D50_µm"
	ColD90            = "D90_µm"
	ColD23            = "D[2,3]"
	ColD34            = "D[3,4]"
	ColTapDensity     = "Tap_Density_g/cm³"
	ColHR             = "HR"
	ColLayerThickness = "Effective_Layer_Thickness_µm"
	ColMaterial       = "Material"
)

// Output columns appended to each row.
const (
	ColSpan       = "Span"
	ColR23        = "R23"
	ColR34        = "R34"
	ColPrediction = "Predicted_PBPD_%"
)

// RequiredColumns must all be present in a batch header.
var RequiredColumns = []string{
	ColD10, ColD50, ColD90, ColD23, ColD34,
	ColTapDensity, ColHR, ColLayerThickness, ColMaterial,
}

var outputColumns = []string{ColSpan, ColR23, ColR34, ColPrediction}

var (
	ErrMissingColumns = errors.New("missing required columns in CSV")
	ErrParse          = errors.New("unparsable value")
)

type MissingColumnsError struct {
	Columns []string
}

func (e *MissingColumnsError) Error() string {
	return fmt.Sprintf("%s: %s", ErrMissingColumns, strings.Join(e.Columns, ", "))
}

func (e *MissingColumnsError) Is(target error) bool { return target == ErrMissingColumns }

// RowError ties a per-row failure to its 0-based data row index.
type RowError struct {
	Row   int
	Group powder.Group
	Err   error
}

func (e *RowError) Error() string {
	if e.Group != "" {
		return fmt.Sprintf("row %d (%s): %v", e.Row, e.Group.Code(), e.Err)
	}
	return fmt.Sprintf("row %d: %v", e.Row, e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }

// Row is one processed data row. Metrics is nil when derivation failed;
// Prediction is nil whenever Err is set.
type Row struct {
	Index      int
	Record     []string
	Material   string
	Group      powder.Group
	Sample     powder.Sample
	Metrics    *powder.Metrics
	Warnings   []powder.Warning
	Prediction *float64
	Err        *RowError
}

type Summary struct {
	Total     int            `json:"total"`
	Predicted int            `json:"predicted"`
	Failed    int            `json:"failed"`
	ByGroup   map[string]int `json:"by_group"`
}

// Batch is a processed CSV. Rows are in input order.
type Batch struct {
	ID       string
	Filename string
	Header   []string
	Rows     []Row
}

// PredictBatch reads a CSV with RequiredColumns and predicts every row.
// A missing column fails before any row is processed. Row failures are
// recorded on the row and never stop the batch.
func (s *Service) PredictBatch(ctx context.Context, filename string, r io.Reader) (*Batch, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true

	hdr, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, &MissingColumnsError{Columns: RequiredColumns}
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	if len(hdr) > 0 {
		hdr[0] = strings.TrimPrefix(hdr[0], "\ufeff")
	}
	idx := map[string]int{}
	for i, h := range hdr {
		h = strings.TrimSpace(h)
		hdr[i] = h
		if _, dup := idx[h]; !dup {
			idx[h] = i
		}
	}
	var missing []string
	for _, c := range RequiredColumns {
		if _, ok := idx[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return nil, &MissingColumnsError{Columns: missing}
	}

	b := &Batch{ID: s.newID(), Filename: filename, Header: hdr}
	for i := 0; ; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv row %d: %w", i, err)
		}
		row := s.predictRow(ctx, i, rec, len(hdr), idx)
		b.Rows = append(b.Rows, row)

		outcome := metrics.OutcomeOK
		var value float64
		if row.Err != nil {
			outcome = Outcome(row.Err)
		} else {
			value = *row.Prediction
		}
		s.metrics.BatchRow(string(row.Group), outcome, value)
	}
	s.metrics.Batch()

	sum := b.Summary()
	s.log.Info("batch processed",
		zap.String("batch_id", b.ID),
		zap.String("filename", filename),
		zap.Int("rows", sum.Total),
		zap.Int("predicted", sum.Predicted),
		zap.Int("failed", sum.Failed))
	s.recordBatch(ctx, b, sum)
	return b, nil
}

func (s *Service) predictRow(ctx context.Context, i int, rec []string, width int, idx map[string]int) Row {
	row := Row{Index: i, Record: rec}
	fail := func(err error) Row {
		row.Err = &RowError{Row: i, Group: row.Group, Err: err}
		return row
	}
	if len(rec) > width {
		return fail(fmt.Errorf("%w: row has %d fields, header has %d", ErrParse, len(rec), width))
	}

	row.Material = cell(rec, idx[ColMaterial])
	sample, err := parseSample(rec, idx)
	if err != nil {
		return fail(err)
	}
	row.Sample = sample

	m, err := powder.Derive(sample)
	if err != nil {
		return fail(err)
	}
	row.Metrics = &m
	row.Warnings = powder.Check(sample, m)

	g, err := powder.ClassifyMaterial(row.Material)
	if err != nil {
		return fail(err)
	}
	row.Group = g

	f, err := powder.BuildFeatures(g, m, sample)
	if err != nil {
		return fail(err)
	}
	p, err := s.invoke(ctx, g, f)
	if err != nil {
		return fail(err)
	}
	row.Prediction = &p
	return row
}

func cell(rec []string, i int) string {
	if i < len(rec) {
		return strings.TrimSpace(rec[i])
	}
	return ""
}

func parseSample(rec []string, idx map[string]int) (powder.Sample, error) {
	var s powder.Sample
	fields := []struct {
		col string
		dst *float64
	}{
		{ColD10, &s.D10},
		{ColD50, &s.D50},
		{ColD90, &s.D90},
		{ColD23, &s.D23},
		{ColD34, &s.D34},
		{ColTapDensity, &s.TapDensity},
		{ColHR, &s.HausnerRatio},
		{ColLayerThickness, &s.LayerThickness},
	}
	var errs []error
	for _, f := range fields {
		raw := cell(rec, idx[f.col])
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%w: %s=%q", ErrParse, f.col, raw))
			continue
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			errs = append(errs, fmt.Errorf("%w: %s=%q is not a finite number", ErrParse, f.col, raw))
			continue
		}
		*f.dst = v
	}
	return s, errors.Join(errs...)
}

func (s *Service) recordBatch(ctx context.Context, b *Batch, sum Summary) {
	if s.history == nil {
		return
	}
	subject := auth.SubjectFromContext(ctx)
	recs := make([]history.Record, 0, len(b.Rows))
	for _, row := range b.Rows {
		var err error
		if row.Err != nil {
			err = row.Err
		}
		rec := historyRecord(s.newID(), row.Material, row.Group, row.Sample, row.Warnings, err)
		rec.RowIndex = row.Index
		rec.Subject = subject
		rec.Prediction = row.Prediction
		recs = append(recs, rec)
	}
	hb := history.Batch{
		ID:        b.ID,
		Filename:  b.Filename,
		Total:     sum.Total,
		Predicted: sum.Predicted,
		Failed:    sum.Failed,
		CreatedAt: s.now(),
	}
	if err := s.history.AppendBatch(ctx, hb, recs); err != nil {
		s.log.Warn("history batch append failed", zap.String("batch_id", b.ID), zap.Error(err))
	}
}

func (b *Batch) Summary() Summary {
	sum := Summary{Total: len(b.Rows), ByGroup: map[string]int{}}
	for _, r := range b.Rows {
		if r.Prediction != nil {
			sum.Predicted++
			sum.ByGroup[string(r.Group)]++
		} else {
			sum.Failed++
		}
	}
	return sum
}

// Errors returns the per-row failures in row order.
func (b *Batch) Errors() []*RowError {
	var out []*RowError
	for _, r := range b.Rows {
		if r.Err != nil {
			out = append(out, r.Err)
		}
	}
	return out
}

// WriteCSV writes the input rows augmented with Span, R23, R34 and
// Predicted_PBPD_%. Output columns already present in the input are
// overwritten in place; missing values are written as empty cells. Cells
// beyond the header width are not written; such rows carry a RowError.
func (b *Batch) WriteCSV(w io.Writer) error {
	hdr := append([]string(nil), b.Header...)
	pos := map[string]int{}
	for _, c := range outputColumns {
		found := -1
		for i, h := range hdr {
			if h == c {
				found = i
				break
			}
		}
		if found < 0 {
			hdr = append(hdr, c)
			found = len(hdr) - 1
		}
		pos[c] = found
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(hdr); err != nil {
		return err
	}
	for _, r := range b.Rows {
		out := make([]string, len(hdr))
		copy(out, r.Record[:min(len(r.Record), len(b.Header))])
		out[pos[ColSpan]], out[pos[ColR23]], out[pos[ColR34]] = "", "", ""
		if r.Metrics != nil {
			out[pos[ColSpan]] = formatFloat(r.Metrics.Span)
			out[pos[ColR23]] = formatFloat(r.Metrics.R23)
			out[pos[ColR34]] = formatFloat(r.Metrics.R34)
		}
		out[pos[ColPrediction]] = ""
		if r.Prediction != nil {
			out[pos[ColPrediction]] = formatFloat(*r.Prediction)
		}
		if err := cw.Write(out); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatFloat(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

// PreviewRow is the JSON view of one batch row.
type PreviewRow struct {
	Row        int      `json:"row"`
	Material   string   `json:"material"`
	Group      string   `json:"group,omitempty"`
	Span       *float64 `json:"span"`
	R23        *float64 `json:"r23"`
	R34        *float64 `json:"r34"`
	Prediction *float64 `json:"predicted_pbpd"`
	Warnings   []string `json:"warnings,omitempty"`
	Error      string   `json:"error,omitempty"`
}

func (b *Batch) Preview() []PreviewRow {
	out := make([]PreviewRow, 0, len(b.Rows))
	for _, r := range b.Rows {
		p := PreviewRow{
			Row:        r.Index,
			Material:   r.Material,
			Group:      string(r.Group),
			Prediction: r.Prediction,
		}
		if r.Metrics != nil {
			m := *r.Metrics
			p.Span, p.R23, p.R34 = &m.Span, &m.R23, &m.R34
		}
		for _, w := range r.Warnings {
			p.Warnings = append(p.Warnings, w.Message)
		}
		if r.Err != nil {
			p.Error = r.Err.Error()
		}
		out = append(out, p)
	}
	return out
}
