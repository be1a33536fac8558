package model

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2/clientcredentials"

	"github.com/mind-engage/pbpd/internal/powder"
)

// RemoteConfig points at an HTTP model server exposing
// POST {BaseURL}/predict/{group}.
type RemoteConfig struct {
	BaseURL string
	Timeout time.Duration

	// Optional OAuth2 client-credentials for the model server.
	TokenURL     string
	ClientID     string
	ClientSecret string
}

// Remote is a Registry backed by a model server. Every routable group
// resolves to a client; the server answers 404 for groups it has no model for.
type Remote struct {
	base string
	http *http.Client
}

func NewRemote(cfg RemoteConfig) *Remote {
	h := &http.Client{}
	if cfg.TokenURL != "" {
		cc := clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
		}
		h = cc.Client(context.Background())
	}
	if cfg.Timeout > 0 {
		h.Timeout = cfg.Timeout
	}
	return &Remote{base: strings.TrimSuffix(cfg.BaseURL, "/"), http: h}
}

func (r *Remote) Lookup(g powder.Group) (Predictor, error) {
	if !g.Valid() {
		return nil, &NotFoundError{Group: g}
	}
	return &remoteModel{client: r, group: g}, nil
}

type remoteModel struct {
	client *Remote
	group  powder.Group
}

func (m *remoteModel) Predict(ctx context.Context, f powder.Features) (float64, error) {
	body, _ := json.Marshal(map[string]any{
		"features": []float64(f),
		"names":    powder.FeatureNames(m.group),
	})
	url := m.client.base + "/predict/" + string(m.group)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := m.client.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("predict %s: %w", m.group.Code(), err)
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotFound {
		return 0, &NotFoundError{Group: m.group}
	}
	if res.StatusCode/100 != 2 {
		return 0, fmt.Errorf("predict %s: %s", m.group.Code(), res.Status)
	}
	var out struct {
		Prediction *float64 `json:"prediction"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("predict %s: decode: %w", m.group.Code(), err)
	}
	if out.Prediction == nil {
		return 0, fmt.Errorf("predict %s: response has no prediction", m.group.Code())
	}
	return *out.Prediction, nil
}
