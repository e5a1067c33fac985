package interfaces

import (
	"context"

	"insight-stream/src/models"
)

// -----------------------------------------------------------------------------
// IForecaster is the outbound analytics/AI collaborator. Implementations must
// route every call through the dedup cache so concurrent identical requests
// collapse into one upstream call.
// -----------------------------------------------------------------------------

type IForecaster interface {

	// -----------------------------------------------------------------------------

	// Forecast asks the analytics service for a projection of the given
	// metric kind over the next horizonDays days.
	Forecast(ctx context.Context, kind models.MSnapshotKind, horizonDays int) (*models.MForecast, error)
}
