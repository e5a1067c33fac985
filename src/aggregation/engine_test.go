package aggregation

import (
	"context"
	"errors"
	"testing"
	"time"

	"insight-stream/src/helpers"
	"insight-stream/src/logger"
	"insight-stream/src/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -----------------------------------------------------------------------------
// Stub Store
// -----------------------------------------------------------------------------

type stubStore struct {
	revenueRows  []models.MRevenueByDayRow
	productRows  []models.MProductSalesRow
	customerRows []models.MCustomerActivityRow
	err          error
}

func (s *stubStore) Initialize() error { return nil }

func (s *stubStore) RevenueByDay(ctx context.Context, w models.MWindow) ([]models.MRevenueByDayRow, error) {
	return s.revenueRows, s.err
}

func (s *stubStore) ProductSales(ctx context.Context, w models.MWindow, limit int) ([]models.MProductSalesRow, error) {
	return s.productRows, s.err
}

func (s *stubStore) CustomerActivity(ctx context.Context, w models.MWindow) ([]models.MCustomerActivityRow, error) {
	return s.customerRows, s.err
}

func (s *stubStore) Ping(ctx context.Context) error { return nil }
func (s *stubStore) Close() error                   { return nil }

// -----------------------------------------------------------------------------

func newTestEngine(store *stubStore) *Engine {
	cfg := &models.MConfig{
		LogLevel: "ERROR",
		Storage: models.MStorageConfig{
			QueryTimeoutSeconds: 5,
			WindowDays:          7,
		},
	}
	return NewEngine(cfg, store, logger.NewLogger("ERROR", "test"))
}

// -----------------------------------------------------------------------------
// Tests
// -----------------------------------------------------------------------------

// TestEngine_SalesOverview_ExactDecimals verifies monetary sums stay exact:
// cents accumulate as decimals and rounding happens only at payload assembly.
func TestEngine_SalesOverview_ExactDecimals(t *testing.T) {
	store := &stubStore{
		revenueRows: []models.MRevenueByDayRow{
			{Day: "2026-08-01", RevenueCents: 1005, Orders: 3},
			{Day: "2026-08-02", RevenueCents: 2195, Orders: 4},
		},
	}
	e := newTestEngine(store)

	snap, err := e.Compute(context.Background(), models.KindSalesOverview)
	require.NoError(t, err)

	payload, ok := snap.Payload.(*models.MSalesOverviewPayload)
	require.True(t, ok)

	// 10.05 + 21.95 = 32.00 exactly, no float drift.
	assert.True(t, payload.TotalRevenue.Equal(decimal.RequireFromString("32")),
		"total revenue %s != 32", payload.TotalRevenue)
	assert.Equal(t, int64(7), payload.TotalOrders)

	// 32.00 / 7 orders = 4.5714..., rounded to 4.57 at assembly.
	assert.True(t, payload.AvgOrderValue.Equal(decimal.RequireFromString("4.57")),
		"avg order value %s != 4.57", payload.AvgOrderValue)

	// Chronological order preserved from the store.
	require.Len(t, payload.Days, 2)
	assert.Equal(t, "2026-08-01", payload.Days[0].Day)
	assert.True(t, payload.Days[0].Revenue.Equal(decimal.RequireFromString("10.05")))
}

// -----------------------------------------------------------------------------

// TestEngine_SalesOverview_FloatTrap uses the classic 0.1 + 0.2 amounts that
// break binary floats.
func TestEngine_SalesOverview_FloatTrap(t *testing.T) {
	store := &stubStore{
		revenueRows: []models.MRevenueByDayRow{
			{Day: "2026-08-01", RevenueCents: 10, Orders: 1},
			{Day: "2026-08-02", RevenueCents: 20, Orders: 1},
		},
	}
	e := newTestEngine(store)

	snap, err := e.Compute(context.Background(), models.KindSalesOverview)
	require.NoError(t, err)

	payload := snap.Payload.(*models.MSalesOverviewPayload)
	assert.True(t, payload.TotalRevenue.Equal(decimal.RequireFromString("0.3")),
		"0.10 + 0.20 must equal exactly 0.3, got %s", payload.TotalRevenue)
}

// -----------------------------------------------------------------------------

func TestEngine_SalesOverview_Empty(t *testing.T) {
	e := newTestEngine(&stubStore{})

	snap, err := e.Compute(context.Background(), models.KindSalesOverview)
	require.NoError(t, err)

	payload := snap.Payload.(*models.MSalesOverviewPayload)
	assert.True(t, payload.TotalRevenue.IsZero())
	assert.True(t, payload.AvgOrderValue.IsZero(), "no orders must not divide by zero")
	assert.Empty(t, payload.Days)
}

// -----------------------------------------------------------------------------

// TestEngine_ProductInsights_Shares verifies revenue shares are exact
// percentages of the listed products.
func TestEngine_ProductInsights_Shares(t *testing.T) {
	store := &stubStore{
		productRows: []models.MProductSalesRow{
			{ProductID: "p1", Name: "Widget", Units: 30, RevenueCents: 7500},
			{ProductID: "p2", Name: "Gadget", Units: 10, RevenueCents: 2500},
		},
	}
	e := newTestEngine(store)

	snap, err := e.Compute(context.Background(), models.KindProductInsights)
	require.NoError(t, err)

	payload := snap.Payload.(*models.MProductInsightsPayload)
	require.Len(t, payload.Products, 2)

	assert.True(t, payload.Products[0].RevenueShare.Equal(decimal.RequireFromString("75")),
		"share %s != 75", payload.Products[0].RevenueShare)
	assert.True(t, payload.Products[1].RevenueShare.Equal(decimal.RequireFromString("25")))

	// Store ordering (revenue descending) survives assembly.
	assert.Equal(t, "p1", payload.Products[0].ProductID)
}

// -----------------------------------------------------------------------------

func TestEngine_ProductInsights_ZeroRevenue(t *testing.T) {
	store := &stubStore{
		productRows: []models.MProductSalesRow{
			{ProductID: "p1", Name: "Freebie", Units: 5, RevenueCents: 0},
		},
	}
	e := newTestEngine(store)

	snap, err := e.Compute(context.Background(), models.KindProductInsights)
	require.NoError(t, err)

	payload := snap.Payload.(*models.MProductInsightsPayload)
	require.Len(t, payload.Products, 1)
	assert.True(t, payload.Products[0].RevenueShare.IsZero())
}

// -----------------------------------------------------------------------------

func TestEngine_CustomerBehavior_Totals(t *testing.T) {
	store := &stubStore{
		customerRows: []models.MCustomerActivityRow{
			{Day: "2026-08-01", NewCustomers: 3, ReturningCustomers: 1},
			{Day: "2026-08-02", NewCustomers: 2, ReturningCustomers: 4},
		},
	}
	e := newTestEngine(store)

	snap, err := e.Compute(context.Background(), models.KindCustomerBehavior)
	require.NoError(t, err)

	payload := snap.Payload.(*models.MCustomerBehaviorPayload)
	assert.Equal(t, int64(5), payload.TotalNew)
	assert.Equal(t, int64(5), payload.TotalReturning)
	require.Len(t, payload.Days, 2)
	assert.Equal(t, "2026-08-01", payload.Days[0].Day)
}

// -----------------------------------------------------------------------------

// TestEngine_QueryErrorWrapped verifies store failures surface as
// UpstreamQueryError with the cause preserved.
func TestEngine_QueryErrorWrapped(t *testing.T) {
	cause := errors.New("connection refused")
	e := newTestEngine(&stubStore{err: cause})

	snap, err := e.Compute(context.Background(), models.KindSalesOverview)
	require.Error(t, err)
	assert.Nil(t, snap)

	var qe *helpers.UpstreamQueryError
	assert.ErrorAs(t, err, &qe)
	assert.ErrorIs(t, err, cause)
}

// -----------------------------------------------------------------------------

func TestEngine_UnknownKind(t *testing.T) {
	e := newTestEngine(&stubStore{})

	_, err := e.Compute(context.Background(), models.MSnapshotKind("bogus"))
	require.Error(t, err)
}

// -----------------------------------------------------------------------------

func TestEngine_ComputedAtIsCurrent(t *testing.T) {
	e := newTestEngine(&stubStore{})

	before := time.Now().UnixMilli()
	snap, err := e.Compute(context.Background(), models.KindSalesOverview)
	require.NoError(t, err)
	after := time.Now().UnixMilli()

	assert.GreaterOrEqual(t, snap.ComputedAt, before)
	assert.LessOrEqual(t, snap.ComputedAt, after)
}
