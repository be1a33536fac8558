package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/mind-engage/pbpd/internal/model"
	"github.com/mind-engage/pbpd/internal/powder"
	"github.com/mind-engage/pbpd/internal/predict"
)

type errorBody struct {
	Error   string `json:"error"`
	Outcome string `json:"outcome,omitempty"`
}

// statusFor maps the prediction error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, powder.ErrInput),
		errors.Is(err, predict.ErrParse),
		errors.Is(err, predict.ErrMissingColumns):
		return http.StatusBadRequest
	case errors.Is(err, powder.ErrRouting),
		errors.Is(err, powder.ErrComputation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, model.ErrModelNotFound):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func userMessage(err error) string {
	var mc *predict.MissingColumnsError
	if errors.As(err, &mc) {
		return "Missing required columns in CSV: " + strings.Join(mc.Columns, ", ")
	}
	return err.Error()
}

// writeJSON answers 500 if v cannot be encoded; status is written only after
// a successful encode.
func writeJSON(w http.ResponseWriter, status int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		http.Error(w, "encode response: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), errorBody{Error: userMessage(err), Outcome: predict.Outcome(err)})
}
