package storage

import (
	"context"
	"database/sql"
	"fmt"

	"insight-stream/src/helpers"
	"insight-stream/src/logger"
	"insight-stream/src/models"

	_ "modernc.org/sqlite"
)

// -----------------------------------------------------------------------------

// SQLiteStore is the embedded aggregate store driver. It is the default for
// development and single-node deployments; the dashboard CRUD application
// shares the same file, so Initialize only creates missing tables and never
// drops data.
type SQLiteStore struct {
	Config *models.MConfig
	DB     *sql.DB
	Logger *logger.Logger
}

// -----------------------------------------------------------------------------

func NewSQLiteStore(cfg *models.MConfig, log *logger.Logger) (*SQLiteStore, error) {
	return &SQLiteStore{
		Config: cfg,
		Logger: log,
	}, nil
}

// -----------------------------------------------------------------------------

func (d *SQLiteStore) Initialize() error {
	dsn := d.Config.Storage.DBPath

	// Open DB
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return err
	}

	if err := db.Ping(); err != nil {
		return err
	}

	d.DB = db

	// PRAGMA optimizations
	if _, err := db.Exec("PRAGMA journal_mode = WAL;"); err != nil {
		d.Logger.Warning("Failed to set WAL mode: %v", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL;"); err != nil {
		d.Logger.Warning("Failed to set synchronous mode: %v", err)
	}

	return d.ensureTables()
}

// -----------------------------------------------------------------------------

func (d *SQLiteStore) ensureTables() error {
	// Timestamps are unix seconds, monetary amounts integer cents.
	statements := []string{
		`CREATE TABLE IF NOT EXISTS customers (
			id TEXT PRIMARY KEY,
			name TEXT,
			created_at INTEGER
		);`,
		`CREATE TABLE IF NOT EXISTS products (
			id TEXT PRIMARY KEY,
			name TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS orders (
			id TEXT PRIMARY KEY,
			customer_id TEXT,
			total_cents INTEGER,
			created_at INTEGER
		);`,
		`CREATE TABLE IF NOT EXISTS order_items (
			order_id TEXT,
			product_id TEXT,
			quantity INTEGER,
			unit_price_cents INTEGER,
			PRIMARY KEY (order_id, product_id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_orders_created_at ON orders (created_at);`,
	}

	for _, stmt := range statements {
		if _, err := d.DB.Exec(stmt); err != nil {
			return fmt.Errorf("failed to ensure schema: %w", err)
		}
	}

	return nil
}

// -----------------------------------------------------------------------------

func (d *SQLiteStore) RevenueByDay(ctx context.Context, w models.MWindow) ([]models.MRevenueByDayRow, error) {
	query := `
		SELECT strftime('%Y-%m-%d', created_at, 'unixepoch') AS day,
		       COALESCE(SUM(total_cents), 0),
		       COUNT(*)
		FROM orders
		WHERE created_at >= ? AND created_at < ?
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

func (d *SQLiteStore) ProductSales(ctx context.Context, w models.MWindow, limit int) ([]models.MProductSalesRow, error) {
	query := `
		SELECT oi.product_id,
		       COALESCE(p.name, oi.product_id),
		       COALESCE(SUM(oi.quantity), 0),
		       COALESCE(SUM(oi.quantity * oi.unit_price_cents), 0) AS revenue
		FROM order_items oi
		JOIN orders o ON o.id = oi.order_id
		LEFT JOIN products p ON p.id = oi.product_id
		WHERE o.created_at >= ? AND o.created_at < ?
		GROUP BY oi.product_id, p.name
		ORDER BY revenue DESC, oi.product_id ASC
		LIMIT ?;
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

func (d *SQLiteStore) CustomerActivity(ctx context.Context, w models.MWindow) ([]models.MCustomerActivityRow, error) {
	// A customer counts as new on the day of their first order ever.
	query := `
		WITH firsts AS (
			SELECT customer_id, MIN(created_at) AS first_at
			FROM orders
			GROUP BY customer_id
		)
		SELECT strftime('%Y-%m-%d', o.created_at, 'unixepoch') AS day,
		       COUNT(DISTINCT CASE WHEN o.created_at = f.first_at THEN o.customer_id END),
		       COUNT(DISTINCT CASE WHEN o.created_at > f.first_at THEN o.customer_id END)
		FROM orders o
		JOIN firsts f ON f.customer_id = o.customer_id
		WHERE o.created_at >= ? AND o.created_at < ?
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

func (d *SQLiteStore) Ping(ctx context.Context) error {
	return helpers.WrapStoreError("ping", d.DB.PingContext(ctx))
}

// -----------------------------------------------------------------------------

func (d *SQLiteStore) Close() error {
	if d.DB != nil {
		return d.DB.Close()
	}
	return nil
}
