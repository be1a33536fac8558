package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/pbpd/internal/history"
)

// HistoryReader is the read side of the prediction history.
type HistoryReader interface {
	List(ctx context.Context, opts history.ListOpts) ([]history.Record, error)
	Get(ctx context.Context, id string) (history.Record, error)
	GetBatch(ctx context.Context, id string) (history.Batch, error)
}

// GET /api/history?source=&group=&limit=&offset=
func ListHistoryHandler(h HistoryReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		opts := history.ListOpts{
			Source: history.Source(q.Get("source")),
			Group:  q.Get("group"),
		}
		var err error
		if v := q.Get("limit"); v != "" {
			if opts.Limit, err = strconv.Atoi(v); err != nil || opts.Limit < 0 {
				http.Error(w, "bad limit", http.StatusBadRequest)
				return
			}
		}
		if v := q.Get("offset"); v != "" {
			if opts.Offset, err = strconv.Atoi(v); err != nil || opts.Offset < 0 {
				http.Error(w, "bad offset", http.StatusBadRequest)
				return
			}
		}
		recs, err := h.List(r.Context(), opts)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, recs)
	}
}

// GET /api/history/{id}
func GetHistoryHandler(h HistoryReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, err := h.Get(r.Context(), chi.URLParam(r, "id"))
		if errors.Is(err, history.ErrNotFound) {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}
}

// GET /api/history/batches/{id}
func GetBatchHandler(h HistoryReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b, err := h.GetBatch(r.Context(), chi.URLParam(r, "id"))
		if errors.Is(err, history.ErrNotFound) {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, b)
	}
}
