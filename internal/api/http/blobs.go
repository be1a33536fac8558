package http

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/pbpd/internal/storage"
)

// BlobHandler serves the stored artifact at key(id), where id is the {id}
// URL parameter.
func BlobHandler(bs storage.BlobStore, key func(id string) string, contentType string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		rc, err := bs.Get(key(id))
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrInvalidKey) {
				http.Error(w, "not found", http.StatusNotFound)
				return
			}
			http.Error(w, "store error: "+err.Error(), http.StatusInternalServerError)
			return
		}
		defer rc.Close()
		w.Header().Set("Content-Type", contentType)
		_, _ = io.Copy(w, rc)
	}
}

// MountArtifacts mounts GET /reports/{id} and GET /batches/{id}.
func MountArtifacts(r chi.Router, bs storage.BlobStore) {
	r.Get("/reports/{id}", BlobHandler(bs, storage.ReportKey, "application/pdf"))
	r.Get("/batches/{id}", BlobHandler(bs, storage.BatchKey, "text/csv; charset=utf-8"))
}
