package http_test

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"math"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	api "github.com/mind-engage/pbpd/internal/api/http"
	auth "github.com/mind-engage/pbpd/internal/auth/middleware"
	"github.com/mind-engage/pbpd/internal/db"
	"github.com/mind-engage/pbpd/internal/history"
	"github.com/mind-engage/pbpd/internal/metrics"
	"github.com/mind-engage/pbpd/internal/model"
	"github.com/mind-engage/pbpd/internal/powder"
	"github.com/mind-engage/pbpd/internal/predict"
	"github.com/mind-engage/pbpd/internal/rbac"
	"github.com/mind-engage/pbpd/internal/storage"
)

type env struct {
	router http.Handler
	deps   api.Deps
}

func newEnv(t *testing.T, withAuth bool) *env {
	t.Helper()
	dir := t.TempDir()

	dbh, err := db.Open(context.Background(), db.DriverSQLite, "file:"+filepath.Join(dir, "pbpd.db"))
	require.NoError(t, err)
	t.Cleanup(func() { dbh.Close() })
	hist := history.NewSQLStore(dbh)

	bs, err := storage.NewFSStore(filepath.Join(dir, "blobs"))
	require.NoError(t, err)

	// titanium and stainless only; aluminum stays unregistered
	reg := model.NewMapRegistry()
	reg.Register(powder.GroupTitanium, &model.Linear{
		Group: powder.GroupTitanium, Coefficients: []float64{10, 0, 1}, Intercept: 50,
	})
	reg.Register(powder.GroupStainlessSteel, &model.Linear{
		Group: powder.GroupStainlessSteel, Coefficients: []float64{0, 0, 0, 0, 0}, Intercept: 58,
	})

	m := metrics.New()
	svc := predict.NewService(reg, predict.WithHistory(hist), predict.WithMetrics(m))
	d := api.Deps{
		Service: svc,
		Blobs:   bs,
		History: hist,
		Metrics: m,
		Ready:   dbh.PingContext,
	}
	if withAuth {
		hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
		require.NoError(t, err)
		d.Auth = auth.NewAuthService("test-secret")
		d.Credentials = auth.Credentials{User: "admin", PassHash: string(hash)}
	}
	return &env{router: api.NewRouter(d), deps: d}
}

func (e *env) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func predictBody(material string, mutate func(*powder.Sample)) string {
	s := powder.DefaultSample()
	if mutate != nil {
		mutate(&s)
	}
	b, _ := json.Marshal(predict.Request{Material: material, Sample: s})
	return string(b)
}

func postJSON(path, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) (msg, outcome string) {
	t.Helper()
	var body struct {
		Error   string `json:"error"`
		Outcome string `json:"outcome"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body.Error, body.Outcome
}

func TestPredict(t *testing.T) {
	e := newEnv(t, false)

	rec := e.do(postJSON("/api/predict", predictBody("Auto (via density)", nil)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res predict.Result
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&res))
	assert.Equal(t, powder.GroupTitanium, res.Group)
	assert.Equal(t, "High", res.Confidence)
	// 50 + 10*R23(0.5) + Tap(5.0)
	assert.InDelta(t, 60.0, res.Prediction, 1e-9)
	assert.NotEmpty(t, res.ID)
}

func TestPredictErrorStatus(t *testing.T) {
	e := newEnv(t, false)

	tests := []struct {
		name    string
		body    string
		status  int
		outcome string
		msg     string
	}{
		{"unknown material", predictBody("copper", nil), http.StatusUnprocessableEntity, "routing_error", ""},
		{"model missing", predictBody("Al", nil), http.StatusServiceUnavailable, "model_not_found",
			"Model for 'AL' not found. Make sure the model file exists."},
		{"auto routes to missing al", predictBody("auto", func(s *powder.Sample) { s.BulkDensity = 2.7 }),
			http.StatusServiceUnavailable, "model_not_found", ""},
		{"invalid input", predictBody("ti", func(s *powder.Sample) { s.D50 = 0 }), http.StatusBadRequest, "input_error", ""},
		{"span overflows", predictBody("ti", func(s *powder.Sample) { s.D90, s.D50 = math.MaxFloat64, 1e-300 }),
			http.StatusUnprocessableEntity, "computation_error", ""},
		{"bad json", `{"material":`, http.StatusBadRequest, "input_error", ""},
		{"unknown field", `{"material":"ti","d11":3}`, http.StatusBadRequest, "input_error", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := e.do(postJSON("/api/predict", tt.body))
			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			msg, outcome := decodeError(t, rec)
			assert.Equal(t, tt.outcome, outcome)
			if tt.msg != "" {
				assert.Equal(t, tt.msg, msg)
			}
		})
	}
}

func TestPredictReportStoredAndServed(t *testing.T) {
	e := newEnv(t, false)

	rec := e.do(postJSON("/api/predict/report", predictBody("SS", nil)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Equal(t, "58.00", rec.Header().Get("X-Predicted-PBPD"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")))

	loc := rec.Header().Get("Location")
	require.NotEmpty(t, loc)
	got := e.do(httptest.NewRequest(http.MethodGet, loc, nil))
	require.Equal(t, http.StatusOK, got.Code)
	assert.Equal(t, rec.Body.Bytes(), got.Body.Bytes())

	missing := e.do(httptest.NewRequest(http.MethodGet, "/api/reports/nope", nil))
	assert.Equal(t, http.StatusNotFound, missing.Code)
}

const batchCSV = "D10_µm,D50_µm,D90_µm,\"D[2,3]\",\"D[3,4]\",Tap_Density_g/cm³,HR,Effective_Layer_Thickness_µm,Material\n" +
	"15,35,55,30,42,5.0,1.2,60,SS316L\n" +
	"15,35,55,30,42,4.4,1.2,60,Ti-6Al-4V\n" +
	"15,35,55,30,42,2.7,1.2,60,unknown_alloy\n"

func TestBatchCSV(t *testing.T) {
	e := newEnv(t, false)

	req := httptest.NewRequest(http.MethodPost, "/api/batch", strings.NewReader(batchCSV))
	req.Header.Set("Content-Type", "text/csv")
	rec := e.do(req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "pbpd_predictions.csv")

	recs, err := csv.NewReader(rec.Body).ReadAll()
	require.NoError(t, err)
	require.Len(t, recs, 4)
	last := len(recs[0]) - 1
	assert.Equal(t, "Predicted_PBPD_%", recs[0][last])
	assert.Equal(t, "58", recs[1][last])
	assert.Equal(t, "59.4", recs[2][last])
	assert.Equal(t, "", recs[3][last])

	id := rec.Header().Get("X-Batch-ID")
	require.NotEmpty(t, id)
	stored := e.do(httptest.NewRequest(http.MethodGet, "/api/batches/"+id, nil))
	require.Equal(t, http.StatusOK, stored.Code)

	summary := e.do(httptest.NewRequest(http.MethodGet, "/api/history/batches/"+id, nil))
	require.Equal(t, http.StatusOK, summary.Code)
	var b history.Batch
	require.NoError(t, json.NewDecoder(summary.Body).Decode(&b))
	assert.Equal(t, 3, b.Total)
	assert.Equal(t, 1, b.Failed)
}

func TestBatchMultipartJSON(t *testing.T) {
	e := newEnv(t, false)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "powders.csv")
	require.NoError(t, err)
	_, err = fw.Write([]byte(batchCSV))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/batch?format=json", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := e.do(req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var out struct {
		BatchID  string               `json:"batch_id"`
		Filename string               `json:"filename"`
		Summary  predict.Summary      `json:"summary"`
		Rows     []predict.PreviewRow `json:"rows"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	assert.Equal(t, "powders.csv", out.Filename)
	assert.Equal(t, 3, out.Summary.Total)
	assert.Equal(t, 2, out.Summary.Predicted)
	require.Len(t, out.Rows, 3)
	assert.Equal(t, "unknown_alloy", out.Rows[2].Material)
	assert.Nil(t, out.Rows[2].Prediction)
	assert.NotEmpty(t, out.Rows[2].Error)
}

func TestBatchNonFiniteCellsJSON(t *testing.T) {
	e := newEnv(t, false)

	in := "D10_µm,D50_µm,D90_µm,\"D[2,3]\",\"D[3,4]\",Tap_Density_g/cm³,HR,Effective_Layer_Thickness_µm,Material\n" +
		"15,35,55,30,42,NaN,1.2,60,Ti64\n" +
		"15,35,55,30,42,5.0,Inf,60,Ti64\n" +
		"15,35,55,30,42,5.0,1.2,60,Ti64\n"
	req := httptest.NewRequest(http.MethodPost, "/api/batch?format=json", strings.NewReader(in))
	req.Header.Set("Content-Type", "text/csv")
	rec := e.do(req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var out struct {
		Summary predict.Summary      `json:"summary"`
		Rows    []predict.PreviewRow `json:"rows"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	assert.Equal(t, 2, out.Summary.Failed)
	require.Len(t, out.Rows, 3)
	assert.Contains(t, out.Rows[0].Error, "Tap_Density")
	assert.Contains(t, out.Rows[1].Error, "HR")
	assert.NotNil(t, out.Rows[2].Prediction)
}

func TestBatchMissingColumns(t *testing.T) {
	e := newEnv(t, false)

	req := httptest.NewRequest(http.MethodPost, "/api/batch", strings.NewReader("Material,HR\nTi,1.2\n"))
	req.Header.Set("Content-Type", "text/csv")
	rec := e.do(req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	msg, _ := decodeError(t, rec)
	assert.True(t, strings.HasPrefix(msg, "Missing required columns in CSV: D10_µm"), msg)
}

func TestMaterialsAndHistory(t *testing.T) {
	e := newEnv(t, false)

	rec := e.do(httptest.NewRequest(http.MethodGet, "/api/materials", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var mats struct {
		Materials []struct {
			Code      string   `json:"code"`
			Features  []string `json:"features"`
			Available bool     `json:"model_available"`
		} `json:"materials"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&mats))
	require.Len(t, mats.Materials, 3)
	assert.Equal(t, "TI", mats.Materials[0].Code)
	assert.True(t, mats.Materials[0].Available)
	assert.False(t, mats.Materials[2].Available)
	assert.Equal(t, []string{"R34", "Span", "Tap_Density"}, mats.Materials[2].Features)

	e.do(postJSON("/api/predict", predictBody("ti", nil)))
	e.do(postJSON("/api/predict", predictBody("copper", nil)))

	rec = e.do(httptest.NewRequest(http.MethodGet, "/api/history?source=single", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var recs []history.Record
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&recs))
	require.Len(t, recs, 2)
	assert.Equal(t, "anonymous", recs[0].Subject)

	one := e.do(httptest.NewRequest(http.MethodGet, "/api/history/"+recs[0].ID, nil))
	assert.Equal(t, http.StatusOK, one.Code)

	bad := e.do(httptest.NewRequest(http.MethodGet, "/api/history?limit=x", nil))
	assert.Equal(t, http.StatusBadRequest, bad.Code)
}

func TestAuthAndRBAC(t *testing.T) {
	e := newEnv(t, true)

	rec := e.do(httptest.NewRequest(http.MethodGet, "/api/history", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = e.do(postJSON("/auth/login", `{"username":"admin","password":"s3cret"}`))
	require.Equal(t, http.StatusOK, rec.Code)
	var tok struct {
		AccessToken string `json:"access_token"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&tok))

	req := httptest.NewRequest(http.MethodGet, "/api/history", nil)
	req.Header.Set("Authorization", "Bearer "+tok.AccessToken)
	assert.Equal(t, http.StatusOK, e.do(req).Code)

	operator, err := e.deps.Auth.IssueJWT("lab-1", rbac.RoleOperator)
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/api/history", nil)
	req.Header.Set("Authorization", "Bearer "+operator)
	assert.Equal(t, http.StatusForbidden, e.do(req).Code)

	req = postJSON("/api/predict", predictBody("ti", nil))
	req.Header.Set("Authorization", "Bearer "+operator)
	assert.Equal(t, http.StatusOK, e.do(req).Code)

	req = httptest.NewRequest(http.MethodGet, "/api/history", nil)
	req.Header.Set("Authorization", "Bearer "+tok.AccessToken)
	rec = e.do(req)
	require.Equal(t, http.StatusOK, rec.Code)
	var recs []history.Record
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&recs))
	require.Len(t, recs, 1)
	assert.Equal(t, "lab-1", recs[0].Subject)

	// materials stay public
	assert.Equal(t, http.StatusOK, e.do(httptest.NewRequest(http.MethodGet, "/api/materials", nil)).Code)
}

func TestHealthAndMetrics(t *testing.T) {
	e := newEnv(t, false)

	assert.Equal(t, http.StatusOK, e.do(httptest.NewRequest(http.MethodGet, "/healthz", nil)).Code)
	assert.Equal(t, http.StatusOK, e.do(httptest.NewRequest(http.MethodGet, "/readyz", nil)).Code)

	e.do(postJSON("/api/predict", predictBody("ti", nil)))
	rec := e.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `pbpd_predictions_total{group="ti",outcome="ok"} 1`)
}
