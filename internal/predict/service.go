// Package predict runs the single-sample and batch PBPD prediction flows on
// top of the powder feature derivation and a model registry.
package predict

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	auth "github.com/mind-engage/pbpd/internal/auth/middleware"
	"github.com/mind-engage/pbpd/internal/history"
	"github.com/mind-engage/pbpd/internal/metrics"
	"github.com/mind-engage/pbpd/internal/model"
	"github.com/mind-engage/pbpd/internal/powder"
)

// Recorder persists prediction history. history.SQLStore satisfies it.
type Recorder interface {
	Append(ctx context.Context, r history.Record) error
	AppendBatch(ctx context.Context, b history.Batch, rows []history.Record) error
}

// Request is one interactive submission. Material is "auto" (or empty) to
// detect the group from bulk density, otherwise an explicit group.
type Request struct {
	Material string `json:"material"`
	powder.Sample
}

// Result is everything a report needs about one prediction.
type Result struct {
	ID           string           `json:"id"`
	Timestamp    time.Time        `json:"timestamp"`
	Material     string           `json:"material"`
	Group        powder.Group     `json:"group"`
	Confidence   string           `json:"confidence"`
	Sample       powder.Sample    `json:"sample"`
	Metrics      powder.Metrics   `json:"metrics"`
	Warnings     []powder.Warning `json:"warnings"`
	FeatureNames []string         `json:"feature_names"`
	Features     powder.Features  `json:"features"`
	Prediction   float64          `json:"prediction"`
}

type Service struct {
	models  model.Registry
	history Recorder
	metrics *metrics.Metrics
	log     *zap.Logger
	now     func() time.Time
	newID   func() string
}

type Option func(*Service)

func WithHistory(r Recorder) Option          { return func(s *Service) { s.history = r } }
func WithMetrics(m *metrics.Metrics) Option  { return func(s *Service) { s.metrics = m } }
func WithLogger(l *zap.Logger) Option        { return func(s *Service) { s.log = l } }
func WithClock(now func() time.Time) Option  { return func(s *Service) { s.now = now } }
func WithIDGenerator(f func() string) Option { return func(s *Service) { s.newID = f } }

func NewService(models model.Registry, opts ...Option) *Service {
	s := &Service{
		models: models,
		log:    zap.NewNop(),
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Models exposes the registry the service routes to.
func (s *Service) Models() model.Registry { return s.models }

// PredictSample runs the interactive flow. Warnings never block; any error
// aborts this one prediction.
//
// Input validation runs first, so a zero D50 or layer thickness is an
// ErrInput here. ErrComputation is left for values that pass validation but
// overflow during derivation. Batch rows skip validation and report zero
// denominators as ErrComputation.
func (s *Service) PredictSample(ctx context.Context, req Request) (Result, error) {
	res := Result{
		ID:        s.newID(),
		Timestamp: s.now(),
		Material:  req.Material,
		Sample:    req.Sample,
	}
	err := s.predictSample(ctx, req, &res)

	outcome := Outcome(err)
	s.metrics.Prediction(string(res.Group), outcome, res.Prediction)
	for _, w := range res.Warnings {
		s.metrics.Warning(string(w.Code))
	}
	s.record(ctx, res, err)

	if err != nil {
		s.log.Info("prediction failed",
			zap.String("id", res.ID),
			zap.String("material", req.Material),
			zap.String("group", string(res.Group)),
			zap.String("outcome", outcome),
			zap.Error(err))
		return res, err
	}
	s.log.Debug("prediction",
		zap.String("id", res.ID),
		zap.String("group", string(res.Group)),
		zap.Float64("pbpd", res.Prediction),
		zap.Int("warnings", len(res.Warnings)))
	return res, nil
}

func (s *Service) predictSample(ctx context.Context, req Request, res *Result) error {
	if err := req.Sample.Validate(); err != nil {
		return err
	}
	g, err := powder.ResolveMaterial(req.Material, req.BulkDensity)
	if err != nil {
		return err
	}
	res.Group = g
	res.Confidence = powder.Confidence(g)

	m, err := powder.Derive(req.Sample)
	if err != nil {
		return err
	}
	res.Metrics = m
	res.Warnings = powder.Check(req.Sample, m)

	f, err := powder.BuildFeatures(g, m, req.Sample)
	if err != nil {
		return err
	}
	res.Features = f
	res.FeatureNames = powder.FeatureNames(g)

	p, err := s.invoke(ctx, g, f)
	if err != nil {
		return err
	}
	res.Prediction = p
	return nil
}

// invoke looks up g's model and runs it.
func (s *Service) invoke(ctx context.Context, g powder.Group, f powder.Features) (float64, error) {
	mdl, err := s.models.Lookup(g)
	if err != nil {
		return 0, err
	}
	p, err := mdl.Predict(ctx, f)
	if err != nil {
		if errors.Is(err, model.ErrModelNotFound) {
			return 0, err
		}
		return 0, fmt.Errorf("model %s: %w", g.Code(), err)
	}
	return p, nil
}

func (s *Service) record(ctx context.Context, res Result, predErr error) {
	if s.history == nil {
		return
	}
	rec := historyRecord(res.ID, res.Material, res.Group, res.Sample, res.Warnings, predErr)
	rec.Source = history.SourceSingle
	rec.RowIndex = -1
	rec.Subject = auth.SubjectFromContext(ctx)
	rec.CreatedAt = res.Timestamp
	if predErr == nil {
		v := res.Prediction
		rec.Prediction = &v
	}
	if err := s.history.Append(ctx, rec); err != nil {
		s.log.Warn("history append failed", zap.String("id", res.ID), zap.Error(err))
	}
}

func historyRecord(id, material string, g powder.Group, sample powder.Sample, ws []powder.Warning, err error) history.Record {
	inputs, _ := json.Marshal(sample)
	rec := history.Record{
		ID:       id,
		Material: material,
		Group:    string(g),
		Inputs:   inputs,
		Warnings: make([]string, 0, len(ws)),
	}
	if g != "" {
		rec.Confidence = powder.Confidence(g)
	}
	for _, w := range ws {
		rec.Warnings = append(rec.Warnings, w.Message)
	}
	if err != nil {
		rec.Error = err.Error()
	}
	return rec
}

// Outcome classifies err into a metrics outcome label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeOK
	case errors.Is(err, powder.ErrInput), errors.Is(err, ErrParse):
		return metrics.OutcomeInputError
	case errors.Is(err, powder.ErrRouting):
		return metrics.OutcomeRoutingError
	case errors.Is(err, powder.ErrComputation):
		return metrics.OutcomeComputeError
	case errors.Is(err, model.ErrModelNotFound):
		return metrics.OutcomeModelMissing
	default:
		return metrics.OutcomeModelError
	}
}
