package aggregation

import (
	"context"
	"fmt"
	"time"

	"insight-stream/src/helpers"
	"insight-stream/src/interfaces"
	"insight-stream/src/logger"
	"insight-stream/src/models"

	"github.com/shopspring/decimal"
)

// How many products the insights payload carries.
const topProductsLimit = 10

// -----------------------------------------------------------------------------
// Aggregation Engine
//
// Compute is a pure function of the store state at call time: it runs the
// grouped/windowed queries for one snapshot kind, accumulates monetary sums
// as exact decimals and assembles the presentation payload. It never retries;
// a failed query surfaces as an UpstreamQueryError and the next scheduled
// tick tries again.
// -----------------------------------------------------------------------------

type Engine struct {
	Config *models.MConfig
	Store  interfaces.IAggregateStore
	Logger *logger.Logger
}

// -----------------------------------------------------------------------------

func NewEngine(cfg *models.MConfig, store interfaces.IAggregateStore, log *logger.Logger) *Engine {
	return &Engine{
		Config: cfg,
		Store:  store,
		Logger: log,
	}
}

// -----------------------------------------------------------------------------

// Compute builds a fresh snapshot for the kind. Every store query runs under
// the configured query timeout.
func (e *Engine) Compute(ctx context.Context, kind models.MSnapshotKind) (*models.MSnapshot, error) {
	timeout := time.Duration(e.Config.Storage.QueryTimeoutSeconds) * time.Second
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	window := models.LastNDays(e.Config.Storage.WindowDays)

	var payload interface{}
	var err error

	switch kind {
	case models.KindSalesOverview:
		payload, err = e.salesOverview(ctx, window)
	case models.KindProductInsights:
		payload, err = e.productInsights(ctx, window)
	case models.KindCustomerBehavior:
		payload, err = e.customerBehavior(ctx, window)
	default:
		return nil, helpers.NewUpstreamQueryError("compute", fmt.Errorf("unknown snapshot kind %q", kind))
	}

	if err != nil {
		return nil, helpers.NewUpstreamQueryError(string(kind), err)
	}

	return &models.MSnapshot{
		Kind:       kind,
		ComputedAt: time.Now().UnixMilli(),
		Payload:    payload,
	}, nil
}

// -----------------------------------------------------------------------------

// salesOverview sums per-day revenue over the window. Amounts arrive as
// integer cents and accumulate as exact decimals; rounding happens only here,
// at payload assembly.
func (e *Engine) salesOverview(ctx context.Context, w models.MWindow) (*models.MSalesOverviewPayload, error) {
	rows, err := e.Store.RevenueByDay(ctx, w)
	if err != nil {
		return nil, err
	}

	total := decimal.Zero
	var totalOrders int64
	days := make([]models.MSalesDay, 0, len(rows))

	for _, r := range rows {
		revenue := decimal.New(r.RevenueCents, -2)
		total = total.Add(revenue)
		totalOrders += r.Orders
		days = append(days, models.MSalesDay{
			Day:     r.Day,
			Revenue: revenue,
			Orders:  r.Orders,
		})
	}

	avg := decimal.Zero
	if totalOrders > 0 {
		avg = total.DivRound(decimal.NewFromInt(totalOrders), 2)
	}

	return &models.MSalesOverviewPayload{
		WindowDays:    w.Days(),
		Days:          days,
		TotalRevenue:  total,
		TotalOrders:   totalOrders,
		AvgOrderValue: avg,
	}, nil
}

// -----------------------------------------------------------------------------

func (e *Engine) productInsights(ctx context.Context, w models.MWindow) (*models.MProductInsightsPayload, error) {
	rows, err := e.Store.ProductSales(ctx, w, topProductsLimit)
	if err != nil {
		return nil, err
	}

	total := decimal.Zero
	for _, r := range rows {
		total = total.Add(decimal.New(r.RevenueCents, -2))
	}

	products := make([]models.MProductInsight, 0, len(rows))
	for _, r := range rows {
		revenue := decimal.New(r.RevenueCents, -2)

		share := decimal.Zero
		if total.IsPositive() {
			share = revenue.Mul(decimal.NewFromInt(100)).DivRound(total, 2)
		}

		products = append(products, models.MProductInsight{
			ProductID:    r.ProductID,
			Name:         r.Name,
			Units:        r.Units,
			Revenue:      revenue,
			RevenueShare: share,
		})
	}

	return &models.MProductInsightsPayload{
		WindowDays: w.Days(),
		Products:   products,
	}, nil
}

// -----------------------------------------------------------------------------

func (e *Engine) customerBehavior(ctx context.Context, w models.MWindow) (*models.MCustomerBehaviorPayload, error) {
	rows, err := e.Store.CustomerActivity(ctx, w)
	if err != nil {
		return nil, err
	}

	var totalNew, totalReturning int64
	days := make([]models.MCustomerDay, 0, len(rows))

	for _, r := range rows {
		totalNew += r.NewCustomers
		totalReturning += r.ReturningCustomers
		days = append(days, models.MCustomerDay{
			Day:                r.Day,
			NewCustomers:       r.NewCustomers,
			ReturningCustomers: r.ReturningCustomers,
		})
	}

	return &models.MCustomerBehaviorPayload{
		WindowDays:     w.Days(),
		Days:           days,
		TotalNew:       totalNew,
		TotalReturning: totalReturning,
	}, nil
}
