package storage

import (
	"errors"
	"io"
)

var (
	ErrNotFound   = errors.New("blob not found")
	ErrInvalidKey = errors.New("invalid blob key")
)

// BlobStore holds exported artifacts (PDF reports, batch CSVs).
type BlobStore interface {
	Put(key string, r io.Reader) (string, error) // returns canonical key
	Get(key string) (io.ReadCloser, error)
}

// ReportKey is where a single-prediction PDF is stored.
func ReportKey(id string) string { return "reports/" + id + ".pdf" }

// BatchKey is where an augmented batch CSV is stored.
func BatchKey(id string) string { return "batches/" + id + ".csv" }
