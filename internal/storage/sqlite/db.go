// Package sqlite provides SQLite-backed implementations of order.Store and
// transitionlog.Repository sharing one database file.
//
// WAL mode is enabled on Open so that readers never block writers: workers
// save orders while the HTTP handlers read them.
package sqlite

import (
	"database/sql"
	"fmt"

	// Pure-Go driver, no CGO needed in the container image.
	_ "modernc.org/sqlite"
)

// schema is executed once on startup.
const schema = `
CREATE TABLE IF NOT EXISTS orders (
    id                      TEXT PRIMARY KEY,
    customer_id             TEXT NOT NULL,
    product_id              TEXT NOT NULL,
    quantity                INTEGER NOT NULL,

    -- Money is stored as decimal TEXT to keep cents exact.
    amount                  TEXT NOT NULL,

    ship_street             TEXT NOT NULL DEFAULT '',
    ship_city               TEXT NOT NULL DEFAULT '',
    ship_state              TEXT NOT NULL DEFAULT '',
    ship_zip                TEXT NOT NULL DEFAULT '',
    ship_country            TEXT NOT NULL DEFAULT '',

    status                  TEXT NOT NULL,

    fraud_score             REAL NOT NULL DEFAULT 0,
    fraud_recommendation    TEXT NOT NULL DEFAULT '',
    tax_amount              TEXT NOT NULL DEFAULT '0',
    shipping_cost           TEXT NOT NULL DEFAULT '0',
    tracking_number         TEXT NOT NULL DEFAULT '',
    total_amount            TEXT NOT NULL DEFAULT '0',
    payment_transaction_id  TEXT NOT NULL DEFAULT '',
    payment_status          TEXT NOT NULL DEFAULT '',
    cancel_reason           TEXT NOT NULL DEFAULT '',

    created_at              TEXT NOT NULL,
    updated_at              TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_orders_customer ON orders(customer_id, created_at);

-- Append-only: one row per status transition.
CREATE TABLE IF NOT EXISTS order_transitions (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    order_id    TEXT NOT NULL,
    from_status TEXT NOT NULL,
    to_status   TEXT NOT NULL,
    step        TEXT NOT NULL DEFAULT '',
    detail      TEXT,
    trace_id    TEXT NOT NULL DEFAULT '',
    span_id     TEXT NOT NULL DEFAULT '',
    at          TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_order_transitions_order ON order_transitions(order_id, id);
CREATE INDEX IF NOT EXISTS idx_order_transitions_trace ON order_transitions(trace_id);
`

// DB owns the connection shared by Orders and Transitions.
type DB struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies the schema.
//
//	db, err := sqlite.Open("./data/orders.db")
func Open(path string) (*DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %q: %w", path, err)
	}

	// Single writer connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: apply schema: %w", err)
	}

	return &DB{db: db}, nil
}

func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) Orders() *Orders {
	return &Orders{db: d.db}
}

func (d *DB) Transitions() *Transitions {
	return &Transitions{db: d.db}
}
