package storage

import (
	"context"
	"database/sql"

	"insight-stream/src/helpers"
	"insight-stream/src/logger"
	"insight-stream/src/models"

	_ "github.com/lib/pq"
)

// -----------------------------------------------------------------------------

// PostgresStore is the production aggregate store driver. The dashboard CRUD
// application owns the schema; this driver only reads, so Initialize limits
// itself to connectivity and pool setup.
type PostgresStore struct {
	Config *models.MConfig
	DB     *sql.DB
	Logger *logger.Logger
}

// -----------------------------------------------------------------------------

func NewPostgresStore(cfg *models.MConfig, log *logger.Logger) (*PostgresStore, error) {
	return &PostgresStore{
		Config: cfg,
		Logger: log,
	}, nil
}

// -----------------------------------------------------------------------------

func (d *PostgresStore) Initialize() error {
	dsn := d.Config.Storage.DBConnectionString
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return err
	}

	if err := db.Ping(); err != nil {
		return err
	}

	// Read-only workload with short bursts on every tick.
	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)

	d.DB = db
	d.Logger.Info("PostgresStore initialized successfully")
	return nil
}

// -----------------------------------------------------------------------------

func (d *PostgresStore) RevenueByDay(ctx context.Context, w models.MWindow) ([]models.MRevenueByDayRow, error) {
	query := `
		SELECT to_char(to_timestamp(created_at) AT TIME ZONE 'UTC', 'YYYY-MM-DD') AS day,
		       COALESCE(SUM(total_cents), 0),
		       COUNT(*)
		FROM orders
		WHERE created_at >= $1 AND created_at < $2
		GROUP BY day
		ORDER BY day ASC;
	`

	rows, err := d.DB.QueryContext(ctx, query, w.Start.Unix(), w.End.Unix())
	if err != nil {
		return nil, helpers.WrapStoreError("revenue by day", err)
	}
	defer rows.Close()

	var result []models.MRevenueByDayRow
	for rows.Next() {
		var r models.MRevenueByDayRow
		if err := rows.Scan(&r.Day, &r.RevenueCents, &r.Orders); err != nil {
			return nil, helpers.WrapStoreError("revenue by day scan", err)
		}
		result = append(result, r)
	}

	return result, helpers.WrapStoreError("revenue by day", rows.Err())
}

// -----------------------------------------------------------------------------

func (d *PostgresStore) ProductSales(ctx context.Context, w models.MWindow, limit int) ([]models.MProductSalesRow, error) {
	query := `
		SELECT oi.product_id,
		       COALESCE(p.name, oi.product_id),
		       COALESCE(SUM(oi.quantity), 0),
		       COALESCE(SUM(oi.quantity * oi.unit_price_cents), 0) AS revenue
		FROM order_items oi
		JOIN orders o ON o.id = oi.order_id
		LEFT JOIN products p ON p.id = oi.product_id
		WHERE o.created_at >= $1 AND o.created_at < $2
		GROUP BY oi.product_id, p.name
		ORDER BY revenue DESC, oi.product_id ASC
		LIMIT $3;
	`

	rows, err := d.DB.QueryContext(ctx, query, w.Start.Unix(), w.End.Unix(), limit)
	if err != nil {
		return nil, helpers.WrapStoreError("product sales", err)
	}
	defer rows.Close()

	var result []models.MProductSalesRow
	for rows.Next() {
		var r models.MProductSalesRow
		if err := rows.Scan(&r.ProductID, &r.Name, &r.Units, &r.RevenueCents); err != nil {
			return nil, helpers.WrapStoreError("product sales scan", err)
		}
		result = append(result, r)
	}

	return result, helpers.WrapStoreError("product sales", rows.Err())
}

// -----------------------------------------------------------------------------

func (d *PostgresStore) CustomerActivity(ctx context.Context, w models.MWindow) ([]models.MCustomerActivityRow, error) {
	query := `
		WITH firsts AS (
			SELECT customer_id, MIN(created_at) AS first_at
			FROM orders
			GROUP BY customer_id
		)
		SELECT to_char(to_timestamp(o.created_at) AT TIME ZONE 'UTC', 'YYYY-MM-DD') AS day,
		       COUNT(DISTINCT o.customer_id) FILTER (WHERE o.created_at = f.first_at),
		       COUNT(DISTINCT o.customer_id) FILTER (WHERE o.created_at > f.first_at)
		FROM orders o
		JOIN firsts f ON f.customer_id = o.customer_id
		WHERE o.created_at >= $1 AND o.created_at < $2
		GROUP BY day
		ORDER BY day ASC;
	`

	rows, err := d.DB.QueryContext(ctx, query, w.Start.Unix(), w.End.Unix())
	if err != nil {
		return nil, helpers.WrapStoreError("customer activity", err)
	}
	defer rows.Close()

	var result []models.MCustomerActivityRow
	for rows.Next() {
		var r models.MCustomerActivityRow
		if err := rows.Scan(&r.Day, &r.NewCustomers, &r.ReturningCustomers); err != nil {
			return nil, helpers.WrapStoreError("customer activity scan", err)
		}
		result = append(result, r)
	}

	return result, helpers.WrapStoreError("customer activity", rows.Err())
}

// -----------------------------------------------------------------------------

func (d *PostgresStore) Ping(ctx context.Context) error {
	return helpers.WrapStoreError("ping", d.DB.PingContext(ctx))
}

// -----------------------------------------------------------------------------

func (d *PostgresStore) Close() error {
	if d.DB != nil {
		return d.DB.Close()
	}
	return nil
}
