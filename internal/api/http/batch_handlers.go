package http

import (
	"bytes"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/mind-engage/pbpd/internal/predict"
	"github.com/mind-engage/pbpd/internal/storage"
)

const (
	maxBatchBody  = 32 << 20
	batchFileName = "pbpd_predictions.csv"
)

type batchResponse struct {
	BatchID  string               `json:"batch_id"`
	Filename string               `json:"filename,omitempty"`
	Summary  predict.Summary      `json:"summary"`
	Rows     []predict.PreviewRow `json:"rows"`
	Download string               `json:"download,omitempty"`
}

// POST /api/batch
// Accepts multipart file= or a raw text/csv body. Responds with the augmented
// CSV, or a JSON preview with ?format=json.
func BatchHandler(svc *predict.Service, bs storage.BlobStore, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBatchBody)

		var (
			in       io.Reader
			filename string
		)
		if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
			f, hdr, err := r.FormFile("file")
			if err != nil {
				http.Error(w, "file required", http.StatusBadRequest)
				return
			}
			defer f.Close()
			in, filename = f, hdr.Filename
		} else {
			in = r.Body
		}

		b, err := svc.PredictBatch(r.Context(), filename, in)
		if err != nil {
			writeError(w, err)
			return
		}

		var out bytes.Buffer
		if err := b.WriteCSV(&out); err != nil {
			http.Error(w, "write csv: "+err.Error(), http.StatusInternalServerError)
			return
		}
		download := ""
		if bs != nil {
			if _, err := bs.Put(storage.BatchKey(b.ID), bytes.NewReader(out.Bytes())); err != nil {
				log.Warn("store batch failed", zap.String("batch_id", b.ID), zap.Error(err))
			} else {
				download = "/api/batches/" + b.ID
			}
		}

		w.Header().Set("X-Batch-ID", b.ID)
		if r.URL.Query().Get("format") == "json" {
			writeJSON(w, http.StatusOK, batchResponse{
				BatchID:  b.ID,
				Filename: b.Filename,
				Summary:  b.Summary(),
				Rows:     b.Preview(),
				Download: download,
			})
			return
		}
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="`+batchFileName+`"`)
		_, _ = w.Write(out.Bytes())
	}
}
