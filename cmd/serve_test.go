package main

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caliber-analytics/caliber-cli/internal/config"
	"github.com/caliber-analytics/caliber-cli/internal/model"
	"github.com/caliber-analytics/caliber-cli/internal/store"
)

func setupServeTest(t *testing.T) store.Store {
	t.Helper()
	cfg = &config.Config{
		Scoring: config.ScoringConfig{
			GoodThreshold:             70,
			ModerateThreshold:         40,
			WhitelistPercentile:       0.75,
			BlacklistPercentile:       0.25,
			TradeDeskImpressionFloor:  250,
			MobileAppImpressionFloor:  10,
			PulsePointImpressionFloor: 250,
			PulsePointImpressionShare: 0.0005,
			OutlierZThreshold:         4.5,
			MaxOutlierFraction:        0.20,
			MinOutlierValues:          10,
			VendorGuidanceMinVendors:  10,
			VendorGuidanceMinRows:     5,
		},
		Server: config.ServerConfig{
			Port:             8080,
			UploadRatePerSec: 100,
			UploadBurst:      100,
			MaxUploadBytes:   64 << 20,
		},
	}

	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "serve.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func TestServeHealth(t *testing.T) {
	st := setupServeTest(t)
	srv := httptest.NewServer(newRouter(st))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}

func TestServeScoreUpload(t *testing.T) {
	st := setupServeTest(t)
	srv := httptest.NewServer(newRouter(st))
	defer srv.Close()

	report := "Domain,Total Spend,Impressions,eCPM,CTR,Conversions\n"
	for _, line := range []string{
		"a.com,10,10000,1.00,1.0%,5",
		"b.com,20,10000,2.00,2.0%,9",
		"c.com,15,10000,1.50,0.5%,2",
	} {
		report += line + "\n"
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("report", "march.csv")
	require.NoError(t, err)
	_, err = part.Write([]byte(report))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp, err := http.Post(srv.URL+"/score?goal=action", mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var decoded struct {
		Summary model.PipelineSummary `json:"summary"`
		Rows    []*model.InventoryRow `json:"rows"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	assert.Equal(t, model.SourcePulsePoint, decoded.Summary.Source)
	assert.Equal(t, model.GoalAction, decoded.Summary.Goal)
	assert.Len(t, decoded.Rows, 3)

	// The run lands in history under the uploaded filename.
	runs, err := st.ListRuns(context.Background(), store.RunFilter{})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "march.csv", runs[0].InputPath)
	assert.Equal(t, model.RunStatusComplete, runs[0].Status)
}

func TestServeScoreUnknownSource(t *testing.T) {
	st := setupServeTest(t)
	srv := httptest.NewServer(newRouter(st))
	defer srv.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("report", "mystery.csv")
	require.NoError(t, err)
	_, err = part.Write([]byte("Foo,Bar\n1,2\n"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp, err := http.Post(srv.URL+"/score", mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServeScoreUploadMissingFile(t *testing.T) {
	st := setupServeTest(t)
	srv := httptest.NewServer(newRouter(st))
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/score", "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServeRunNotFound(t *testing.T) {
	st := setupServeTest(t)
	srv := httptest.NewServer(newRouter(st))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/runs/nope")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRequestOptions(t *testing.T) {
	t.Parallel()

	t.Run("defaults", func(t *testing.T) {
		t.Parallel()
		r := httptest.NewRequest(http.MethodPost, "/score", nil)
		opts, err := requestOptions(r)
		require.NoError(t, err)
		assert.Equal(t, model.GoalAwareness, opts.Goal)
		assert.Equal(t, model.LevelDomain, opts.AnalysisLevel)
		assert.False(t, opts.CTRSensitive)
	})

	t.Run("explicit", func(t *testing.T) {
		t.Parallel()
		r := httptest.NewRequest(http.MethodPost, "/score?goal=action&level=supply_vendor&ctr_sensitive=true", nil)
		opts, err := requestOptions(r)
		require.NoError(t, err)
		assert.Equal(t, model.GoalAction, opts.Goal)
		assert.Equal(t, model.LevelSupplyVendor, opts.AnalysisLevel)
		assert.True(t, opts.CTRSensitive)
	})

	t.Run("invalid goal", func(t *testing.T) {
		t.Parallel()
		r := httptest.NewRequest(http.MethodPost, "/score?goal=branding", nil)
		_, err := requestOptions(r)
		assert.Error(t, err)
	})
}

func TestSpoolUpload(t *testing.T) {
	t.Parallel()

	path, cleanup, err := spoolUpload(strings.NewReader("a,b\n1,2\n"), "report.csv")
	require.NoError(t, err)
	assert.Equal(t, ".csv", filepath.Ext(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "a,b\n1,2\n", string(data))

	cleanup()
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}
