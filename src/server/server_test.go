package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"insight-stream/src/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -----------------------------------------------------------------------------

func doRequest(s *DashboardServer, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	s.engine.ServeHTTP(w, req)
	return w
}

// -----------------------------------------------------------------------------

func TestAPI_Health(t *testing.T) {
	s := newTestHub(t)

	w := doRequest(s, http.MethodGet, "/api/health")
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

// -----------------------------------------------------------------------------

func TestAPI_Snapshot(t *testing.T) {
	s := newTestHub(t)

	// Unknown kind.
	w := doRequest(s, http.MethodGet, "/api/snapshots/weather")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Known kind, nothing computed yet.
	w = doRequest(s, http.MethodGet, "/api/snapshots/sales_overview")
	assert.Equal(t, http.StatusNotFound, w.Code)

	// After a broadcast the snapshot is served.
	s.Publish(snapshotAt(models.KindSalesOverview, 123))
	require.Eventually(t, func() bool {
		return s.LatestSnapshot(models.KindSalesOverview) != nil
	}, time.Second, 5*time.Millisecond)

	w = doRequest(s, http.MethodGet, "/api/snapshots/sales_overview")
	require.Equal(t, http.StatusOK, w.Code)

	var snap models.MSnapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	assert.Equal(t, models.KindSalesOverview, snap.Kind)
	assert.Equal(t, int64(123), snap.ComputedAt)
}

// -----------------------------------------------------------------------------

func TestAPI_History(t *testing.T) {
	s := newTestHub(t)

	for i := int64(1); i <= 2; i++ {
		s.Publish(snapshotAt(models.KindProductInsights, i*100))
	}
	require.Eventually(t, func() bool {
		latest := s.LatestSnapshot(models.KindProductInsights)
		return latest != nil && latest.ComputedAt == 200
	}, time.Second, 5*time.Millisecond)

	w := doRequest(s, http.MethodGet, "/api/history/product_insights")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Kind      models.MSnapshotKind `json:"kind"`
		Snapshots []*models.MSnapshot  `json:"snapshots"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, models.KindProductInsights, body.Kind)
	require.Len(t, body.Snapshots, 2)
	assert.Equal(t, int64(100), body.Snapshots[0].ComputedAt)
}

// -----------------------------------------------------------------------------

func TestAPI_Refresh(t *testing.T) {
	s := newTestHub(t)

	// Not wired yet.
	w := doRequest(s, http.MethodPost, "/api/refresh/sales_overview")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	s.OnDemand = func(ctx context.Context, kind models.MSnapshotKind) (*models.MSnapshot, error) {
		return snapshotAt(kind, 555), nil
	}

	w = doRequest(s, http.MethodPost, "/api/refresh/sales_overview")
	require.Equal(t, http.StatusOK, w.Code)

	var snap models.MSnapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	assert.Equal(t, int64(555), snap.ComputedAt)

	// Failure surfaces to the single requester as 502.
	s.OnDemand = func(ctx context.Context, kind models.MSnapshotKind) (*models.MSnapshot, error) {
		return nil, errors.New("store down")
	}
	w = doRequest(s, http.MethodPost, "/api/refresh/sales_overview")
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

// -----------------------------------------------------------------------------

func TestAPI_Forecast(t *testing.T) {
	s := newTestHub(t)

	w := doRequest(s, http.MethodGet, "/api/forecast/sales_overview")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code, "analytics not wired")

	var gotHorizon int
	s.ForecastFunc = func(ctx context.Context, kind models.MSnapshotKind, horizonDays int) (*models.MForecast, error) {
		gotHorizon = horizonDays
		return &models.MForecast{Kind: kind, HorizonDays: horizonDays}, nil
	}

	w = doRequest(s, http.MethodGet, "/api/forecast/sales_overview")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 7, gotHorizon, "default horizon")

	w = doRequest(s, http.MethodGet, "/api/forecast/sales_overview?horizon_days=14")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 14, gotHorizon)
}

// -----------------------------------------------------------------------------

func TestAPI_Metrics(t *testing.T) {
	s := newTestHub(t)

	s.MetricsFunc = func() models.MProcessingMetrics {
		return models.MProcessingMetrics{
			ComputeTimeSeconds: 0.25,
			KindsProcessed:     3,
			Subscribers:        s.SubscriberCount(),
			CacheHits:          10,
			CacheMisses:        2,
		}
	}

	w := doRequest(s, http.MethodGet, "/api/metrics")
	require.Equal(t, http.StatusOK, w.Code)

	var m models.MProcessingMetrics
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &m))
	assert.Equal(t, 3, m.KindsProcessed)
	assert.Equal(t, int64(10), m.CacheHits)
}
