package models

import "github.com/shopspring/decimal"

// -----------------------------------------------------------------------------
// Forecast result returned by the external analytics/AI service.
// -----------------------------------------------------------------------------

type MForecastPoint struct {
	Day   string          `json:"day"`
	Value decimal.Decimal `json:"value"`
}

type MForecast struct {
	Kind        MSnapshotKind    `json:"kind"`
	HorizonDays int              `json:"horizon_days"`
	Points      []MForecastPoint `json:"points"`
	Model       string           `json:"model"`
	GeneratedAt int64            `json:"generated_at"`
}
