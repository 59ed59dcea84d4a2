package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/ethpandaops/releasekpi/pkg/config"
	"github.com/ethpandaops/releasekpi/pkg/kpi"
	"github.com/ethpandaops/releasekpi/pkg/snapshot"
)

func newTestStore(t *testing.T) snapshot.Store {
	t.Helper()

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	s := snapshot.NewStore(log, &config.DatabaseConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteDatabaseConfig{Path: ":memory:"},
	}, nil)
	require.NoError(t, s.Start(context.Background()))

	t.Cleanup(func() { _ = s.Stop() })

	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, "PAY", "R1_PROD", []kpi.Record{
		{Key: kpi.KeyReleaseCoverage, Value: 10, Percent: true},
		{Key: kpi.KeyPlannedScope, Value: 100},
	}))
	require.NoError(t, s.Upsert(ctx, "PAY", "R2_PROD", []kpi.Record{
		{Key: kpi.KeyReleaseCoverage, Value: 90, Percent: true},
	}))

	return s
}

func newTestServer(t *testing.T, cfg *config.APIConfig) *server {
	t.Helper()

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	srv := NewServer(log, cfg, newTestStore(t), PanelDefaults{
		Keys:        []string{kpi.KeyReleaseCoverage, kpi.KeyPlannedScope},
		MaxReleases: 0,
	}).(*server)

	t.Cleanup(func() { _ = srv.Stop() })

	return srv
}

func do(t *testing.T, h http.Handler, target string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, target, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	return rec
}

func TestHandlers(t *testing.T) {
	h := newTestServer(t, &config.APIConfig{}).Handler()

	t.Run("health", func(t *testing.T) {
		rec := do(t, h, "/api/v1/health", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	})

	t.Run("releases newest first", func(t *testing.T) {
		rec := do(t, h, "/api/v1/projects/PAY/releases", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp releasesResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, []string{"R2_PROD", "R1_PROD"}, resp.Releases)
	})

	t.Run("releases of unknown project", func(t *testing.T) {
		rec := do(t, h, "/api/v1/projects/NOPE/releases", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"project":"NOPE","releases":[]}`, rec.Body.String())
	})

	t.Run("last", func(t *testing.T) {
		rec := do(t, h, "/api/v1/projects/PAY/kpis/releaseCoverage/last", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var record kpi.Record
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &record))
		assert.Equal(t, 90.0, record.Value)
		assert.Equal(t, "R2_PROD", record.Release)
	})

	t.Run("last not found", func(t *testing.T) {
		rec := do(t, h, "/api/v1/projects/PAY/kpis/nope/last", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("trend", func(t *testing.T) {
		rec := do(t, h, "/api/v1/projects/PAY/kpis/releaseCoverage/trend", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp recordsResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Len(t, resp.Records, 2)
		assert.Equal(t, 10.0, resp.Records[0].Value)
		assert.Equal(t, 90.0, resp.Records[1].Value)
	})

	t.Run("panel with defaults", func(t *testing.T) {
		rec := do(t, h, "/api/v1/projects/PAY/panel", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp recordsResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Len(t, resp.Records, 3)
		assert.Equal(t, "R2_PROD", resp.Records[0].Release)
		assert.Equal(t, kpi.KeyReleaseCoverage, resp.Records[1].Key)
		assert.Equal(t, kpi.KeyPlannedScope, resp.Records[2].Key)
	})

	t.Run("panel with explicit keys and limit", func(t *testing.T) {
		rec := do(t, h,
			"/api/v1/projects/PAY/panel?keys=plannedScope,releaseCoverage&max_releases=1", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp recordsResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Len(t, resp.Records, 1)
		assert.Equal(t, "R2_PROD", resp.Records[0].Release)
	})

	t.Run("panel with bad limit", func(t *testing.T) {
		rec := do(t, h, "/api/v1/projects/PAY/panel?max_releases=x", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestRequireToken(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)

	h := newTestServer(t, &config.APIConfig{
		Auth: config.APIAuthConfig{
			Tokens: []config.APIToken{{Name: "dashboard", Hash: string(hash)}},
		},
	}).Handler()

	tests := []struct {
		name   string
		header map[string]string
		want   int
	}{
		{name: "missing", want: http.StatusUnauthorized},
		{name: "wrong scheme", header: map[string]string{"Authorization": "Basic s3cret"}, want: http.StatusUnauthorized},
		{name: "wrong token", header: map[string]string{"Authorization": "Bearer nope"}, want: http.StatusUnauthorized},
		{name: "valid", header: map[string]string{"Authorization": "Bearer s3cret"}, want: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, "/api/v1/projects/PAY/releases", tt.header)
			assert.Equal(t, tt.want, rec.Code)
		})
	}

	t.Run("health stays public", func(t *testing.T) {
		rec := do(t, h, "/api/v1/health", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestRateLimit(t *testing.T) {
	srv := newTestServer(t, &config.APIConfig{
		Server: config.APIServerConfig{
			RateLimit: config.RateLimitConfig{Enabled: true, RequestsPerMinute: 2},
		},
	})
	h := srv.Handler()

	for i := 0; i < 2; i++ {
		rec := do(t, h, "/api/v1/projects/PAY/releases", nil)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := do(t, h, "/api/v1/projects/PAY/releases", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	// Another client has its own bucket.
	rec = do(t, h, "/api/v1/projects/PAY/releases",
		map[string]string{"X-Forwarded-For": "10.0.0.9, 10.0.0.1"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSplitKeys(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"},
		splitKeys([]string{"a, b", "", "b,c,", " a "}))
	assert.Nil(t, splitKeys(nil))
}

func TestExtractIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:1234"
	assert.Equal(t, "192.0.2.1", extractIP(req))

	req.Header.Set("X-Forwarded-For", " 10.0.0.9 , 10.0.0.1")
	assert.Equal(t, "10.0.0.9", extractIP(req))
}
