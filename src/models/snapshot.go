package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// -----------------------------------------------------------------------------
// Snapshot Kinds
// -----------------------------------------------------------------------------

// MSnapshotKind identifies one of the tracked dashboard metric families.
type MSnapshotKind string

const (
	KindSalesOverview    MSnapshotKind = "sales_overview"
	KindProductInsights  MSnapshotKind = "product_insights"
	KindCustomerBehavior MSnapshotKind = "customer_behavior"
)

// -----------------------------------------------------------------------------

// AllKinds returns every kind the scheduler tracks by default.
func AllKinds() []MSnapshotKind {
	return []MSnapshotKind{KindSalesOverview, KindProductInsights, KindCustomerBehavior}
}

// -----------------------------------------------------------------------------

// Valid reports whether the kind is one of the known metric families.
func (k MSnapshotKind) Valid() bool {
	switch k {
	case KindSalesOverview, KindProductInsights, KindCustomerBehavior:
		return true
	}
	return false
}

// -----------------------------------------------------------------------------
// MSnapshot
// -----------------------------------------------------------------------------

// MSnapshot is one immutable, timestamped aggregation result for a kind.
// It is produced by the aggregation engine, published through the hub and
// never mutated; a newer snapshot of the same kind supersedes it.
type MSnapshot struct {
	Kind       MSnapshotKind `json:"kind"`
	ComputedAt int64         `json:"computed_at"` // unix milliseconds
	Payload    interface{}   `json:"payload"`
}

// -----------------------------------------------------------------------------

// MPush is the wire envelope the hub sends to subscribers.
// Type is "INITIAL" for the welcome push and "UPDATE" for broadcasts.
type MPush struct {
	Type     string     `json:"type"`
	Snapshot *MSnapshot `json:"snapshot"`
}

// -----------------------------------------------------------------------------
// Aggregation Window
// -----------------------------------------------------------------------------

// MWindow is the half-open time range [Start, End) an aggregation query covers.
type MWindow struct {
	Start time.Time
	End   time.Time
}

// -----------------------------------------------------------------------------

// LastNDays builds a window covering the n days up to now (UTC).
func LastNDays(n int) MWindow {
	end := time.Now().UTC()
	return MWindow{Start: end.AddDate(0, 0, -n), End: end}
}

// -----------------------------------------------------------------------------

// Days returns the rounded-up length of the window in days.
func (w MWindow) Days() int {
	d := w.End.Sub(w.Start)
	days := int(d / (24 * time.Hour))
	if d%(24*time.Hour) > 0 {
		days++
	}
	return days
}

// -----------------------------------------------------------------------------
// Store Rows (raw query output, ordered ascending by group key)
// -----------------------------------------------------------------------------

// MRevenueByDayRow is one day of summed order revenue.
// Monetary amounts travel as integer cents until presentation.
type MRevenueByDayRow struct {
	Day          string `json:"day"` // YYYY-MM-DD
	RevenueCents int64  `json:"revenue_cents"`
	Orders       int64  `json:"orders"`
}

// MProductSalesRow is the summed sales of one product over a window.
type MProductSalesRow struct {
	ProductID    string `json:"product_id"`
	Name         string `json:"name"`
	Units        int64  `json:"units"`
	RevenueCents int64  `json:"revenue_cents"`
}

// MCustomerActivityRow is one day of customer counts.
type MCustomerActivityRow struct {
	Day                string `json:"day"`
	NewCustomers       int64  `json:"new_customers"`
	ReturningCustomers int64  `json:"returning_customers"`
}

// -----------------------------------------------------------------------------
// Snapshot Payloads (presentation values, rounded at assembly)
// -----------------------------------------------------------------------------

type MSalesDay struct {
	Day     string          `json:"day"`
	Revenue decimal.Decimal `json:"revenue"`
	Orders  int64           `json:"orders"`
}

type MSalesOverviewPayload struct {
	WindowDays    int             `json:"window_days"`
	Days          []MSalesDay     `json:"days"`
	TotalRevenue  decimal.Decimal `json:"total_revenue"`
	TotalOrders   int64           `json:"total_orders"`
	AvgOrderValue decimal.Decimal `json:"avg_order_value"`
}

// -----------------------------------------------------------------------------

type MProductInsight struct {
	ProductID    string          `json:"product_id"`
	Name         string          `json:"name"`
	Units        int64           `json:"units"`
	Revenue      decimal.Decimal `json:"revenue"`
	RevenueShare decimal.Decimal `json:"revenue_share"` // percent, 2dp
}

type MProductInsightsPayload struct {
	WindowDays int               `json:"window_days"`
	Products   []MProductInsight `json:"products"`
}

// -----------------------------------------------------------------------------

type MCustomerDay struct {
	Day                string `json:"day"`
	NewCustomers       int64  `json:"new_customers"`
	ReturningCustomers int64  `json:"returning_customers"`
}

type MCustomerBehaviorPayload struct {
	WindowDays     int            `json:"window_days"`
	Days           []MCustomerDay `json:"days"`
	TotalNew       int64          `json:"total_new"`
	TotalReturning int64          `json:"total_returning"`
}
