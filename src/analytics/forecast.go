package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"insight-stream/src/dedup"
	"insight-stream/src/interfaces"
	"insight-stream/src/logger"
	"insight-stream/src/models"
)

// -----------------------------------------------------------------------------
// ForecastClient
//
// Calls the external analytics/AI service for metric projections. Every call
// goes through the dedup cache keyed by operation plus normalized parameters,
// so concurrent identical requests from several dashboard clients collapse
// into one upstream call. Upstream errors propagate unmodified to all waiters.
// -----------------------------------------------------------------------------

type ForecastClient struct {
	Config  *models.MConfig
	Network interfaces.INetworkManager
	Cache   *dedup.Cache[*models.MForecast]
	Logger  *logger.Logger
}

// -----------------------------------------------------------------------------

func NewForecastClient(
	cfg *models.MConfig,
	netMgr interfaces.INetworkManager,
	cache *dedup.Cache[*models.MForecast],
	log *logger.Logger,
) *ForecastClient {
	return &ForecastClient{
		Config:  cfg,
		Network: netMgr,
		Cache:   cache,
		Logger:  log,
	}
}

// -----------------------------------------------------------------------------

// Forecast asks the analytics service for a projection of the kind over the
// next horizonDays days.
func (f *ForecastClient) Forecast(ctx context.Context, kind models.MSnapshotKind, horizonDays int) (*models.MForecast, error) {
	if !f.Config.Analytics.Enabled {
		return nil, fmt.Errorf("analytics is disabled")
	}
	if !kind.Valid() {
		return nil, fmt.Errorf("unknown snapshot kind %q", kind)
	}
	if horizonDays <= 0 {
		horizonDays = 7
	}

	key := ForecastKey(kind, horizonDays)
	return f.Cache.Resolve(ctx, key, func(ctx context.Context) (*models.MForecast, error) {
		return f.fetch(ctx, kind, horizonDays)
	})
}

// -----------------------------------------------------------------------------

func (f *ForecastClient) fetch(ctx context.Context, kind models.MSnapshotKind, horizonDays int) (*models.MForecast, error) {
	url := f.Config.Analytics.BaseURL + "/v1/forecast"
	if f.Config.Analytics.APIKey != "" {
		url += "?api_key=" + f.Config.Analytics.APIKey
	}

	body := map[string]interface{}{
		"kind":         string(kind),
		"horizon_days": horizonDays,
	}

	respBody, err := f.Network.PostJSON(ctx, url, body)
	if err != nil {
		return nil, err
	}

	var forecast models.MForecast
	if err := json.Unmarshal(respBody, &forecast); err != nil {
		return nil, fmt.Errorf("failed to decode forecast response: %w", err)
	}

	if forecast.GeneratedAt == 0 {
		forecast.GeneratedAt = time.Now().UnixMilli()
	}
	forecast.Kind = kind
	forecast.HorizonDays = horizonDays

	return &forecast, nil
}

// -----------------------------------------------------------------------------

// ForecastKey is the dedup fingerprint: operation name plus normalized
// parameters.
func ForecastKey(kind models.MSnapshotKind, horizonDays int) string {
	return "forecast:" + string(kind) + ":" + strconv.Itoa(horizonDays)
}
