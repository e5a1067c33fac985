package interfaces

import (
	"context"

	"insight-stream/src/models"
)

// -----------------------------------------------------------------------------
// IAggregateStore defines the read-only query contract over the transactional
// data the dashboard CRUD application owns. All queries return rows ordered
// ascending by their group key so consumers can diff snapshots cheaply.
// -----------------------------------------------------------------------------

type IAggregateStore interface {

	// -----------------------------------------------------------------------------

	// Initialize opens the connection and, for the embedded dev driver,
	// seeds the schema.
	Initialize() error

	// -----------------------------------------------------------------------------

	// RevenueByDay sums order revenue per day over the window, chronological.
	RevenueByDay(ctx context.Context, w models.MWindow) ([]models.MRevenueByDayRow, error)

	// -----------------------------------------------------------------------------

	// ProductSales sums units and revenue per product over the window,
	// ordered by revenue descending then product id for a stable tail.
	ProductSales(ctx context.Context, w models.MWindow, limit int) ([]models.MProductSalesRow, error)

	// -----------------------------------------------------------------------------

	// CustomerActivity counts new and returning customers per day, chronological.
	CustomerActivity(ctx context.Context, w models.MWindow) ([]models.MCustomerActivityRow, error)

	// -----------------------------------------------------------------------------

	// Ping verifies connectivity.
	Ping(ctx context.Context) error

	// -----------------------------------------------------------------------------

	// Close the database connection
	Close() error
}
