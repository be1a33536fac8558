package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/mind-engage/pbpd/internal/model"
	"github.com/mind-engage/pbpd/internal/powder"
	"github.com/mind-engage/pbpd/internal/predict"
	"github.com/mind-engage/pbpd/internal/report"
	"github.com/mind-engage/pbpd/internal/storage"
)

const maxPredictBody = 1 << 20

func decodeRequest(w http.ResponseWriter, r *http.Request) (predict.Request, bool) {
	var req predict.Request
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxPredictBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "bad json: " + err.Error(), Outcome: "input_error"})
		return req, false
	}
	return req, true
}

// POST /api/predict
func PredictHandler(svc *predict.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := decodeRequest(w, r)
		if !ok {
			return
		}
		res, err := svc.PredictSample(r.Context(), req)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// POST /api/predict/report -> application/pdf. The PDF is also stored under
// reports/{id}.pdf; a storage failure is logged and does not fail the request.
func PredictReportHandler(svc *predict.Service, bs storage.BlobStore, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := decodeRequest(w, r)
		if !ok {
			return
		}
		res, err := svc.PredictSample(r.Context(), req)
		if err != nil {
			writeError(w, err)
			return
		}
		pdf, err := report.Bytes(res)
		if err != nil {
			http.Error(w, "render report: "+err.Error(), http.StatusInternalServerError)
			return
		}
		if bs != nil {
			if _, err := bs.Put(storage.ReportKey(res.ID), bytes.NewReader(pdf)); err != nil {
				log.Warn("store report failed", zap.String("id", res.ID), zap.Error(err))
			} else {
				w.Header().Set("Location", "/api/reports/"+res.ID)
			}
		}
		w.Header().Set("Content-Type", report.ContentType)
		w.Header().Set("Content-Disposition", `attachment; filename="`+report.FileName+`"`)
		w.Header().Set("Content-Length", strconv.Itoa(len(pdf)))
		w.Header().Set("X-Prediction-ID", res.ID)
		w.Header().Set("X-Predicted-PBPD", strconv.FormatFloat(res.Prediction, 'f', 2, 64))
		_, _ = w.Write(pdf)
	}
}

type materialInfo struct {
	Group      powder.Group `json:"group"`
	Code       string       `json:"code"`
	Name       string       `json:"name"`
	Confidence string       `json:"confidence"`
	Features   []string     `json:"features"`
	Available  bool         `json:"model_available"`
}

// GET /api/materials
func MaterialsHandler(reg model.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		avail := model.Available(reg)
		out := make([]materialInfo, 0, len(powder.Groups()))
		for _, g := range powder.Groups() {
			out = append(out, materialInfo{
				Group:      g,
				Code:       g.Code(),
				Name:       g.Name(),
				Confidence: powder.Confidence(g),
				Features:   powder.FeatureNames(g),
				Available:  avail[g],
			})
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"choices":   []string{"Auto (via density)", "Ti", "SS", "Al"},
			"materials": out,
		})
	}
}
