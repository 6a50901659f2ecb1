package migrations

import (
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Run creates the database schema for the driver behind db.
func Run(db *sqlx.DB) error {
	schema := sqliteSchema
	if db.DriverName() == "pgx" {
		schema = postgresSchema
	}
	for i, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migration %d failed: %w", i, err)
		}
	}
	return nil
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS pharmacies (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        name TEXT NOT NULL UNIQUE,
        email TEXT NOT NULL UNIQUE,
        phone TEXT NOT NULL UNIQUE,
        address TEXT NOT NULL DEFAULT '',
        hours TEXT NOT NULL DEFAULT '',
        all_night BOOLEAN NOT NULL DEFAULT 0,
        latitude REAL NOT NULL DEFAULT 0,
        longitude REAL NOT NULL DEFAULT 0,
        creator_id INTEGER,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP
    );`,
	`CREATE TABLE IF NOT EXISTS users (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        name TEXT NOT NULL,
        email TEXT NOT NULL UNIQUE,
        password TEXT NOT NULL,
        role TEXT NOT NULL,
        pharmacy_id INTEGER REFERENCES pharmacies(id) ON DELETE CASCADE,
        creator_id INTEGER REFERENCES users(id) ON DELETE SET NULL,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP
    );`,
	`CREATE TABLE IF NOT EXISTS categories (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        name TEXT NOT NULL UNIQUE,
        description TEXT NOT NULL DEFAULT '',
        image TEXT
    );`,
	`CREATE TABLE IF NOT EXISTS catalog_entries (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        name TEXT NOT NULL UNIQUE,
        description TEXT NOT NULL DEFAULT '',
        reference_price REAL NOT NULL DEFAULT 0,
        category_id INTEGER REFERENCES categories(id) ON DELETE SET NULL,
        image TEXT
    );`,
	`CREATE TABLE IF NOT EXISTS listings (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        catalog_entry_id INTEGER NOT NULL REFERENCES catalog_entries(id) ON DELETE CASCADE,
        pharmacy_id INTEGER NOT NULL REFERENCES pharmacies(id) ON DELETE CASCADE,
        price REAL NOT NULL,
        amount INTEGER NOT NULL CHECK (amount >= 0),
        reserved INTEGER NOT NULL DEFAULT 0,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
        updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
        UNIQUE(catalog_entry_id, pharmacy_id)
    );`,
	`CREATE TABLE IF NOT EXISTS sales (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        receipt TEXT NOT NULL,
        listing_id INTEGER NOT NULL REFERENCES listings(id),
        quantity INTEGER NOT NULL CHECK (quantity > 0),
        price REAL NOT NULL,
        cashier_id INTEGER NOT NULL REFERENCES users(id),
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP
    );`,
	`CREATE TABLE IF NOT EXISTS orders (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        receipt TEXT NOT NULL,
        listing_id INTEGER NOT NULL REFERENCES listings(id),
        quantity INTEGER NOT NULL CHECK (quantity > 0),
        price REAL NOT NULL,
        customer_id INTEGER NOT NULL REFERENCES users(id),
        fulfilled BOOLEAN NOT NULL DEFAULT 0,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP
    );`,
	`CREATE INDEX IF NOT EXISTS idx_sales_receipt ON sales(receipt);`,
	`CREATE INDEX IF NOT EXISTS idx_orders_receipt ON orders(receipt);`,
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS pharmacies (
        id BIGSERIAL PRIMARY KEY,
        name TEXT NOT NULL UNIQUE,
        email TEXT NOT NULL UNIQUE,
        phone TEXT NOT NULL UNIQUE,
        address TEXT NOT NULL DEFAULT '',
        hours TEXT NOT NULL DEFAULT '',
        all_night BOOLEAN NOT NULL DEFAULT FALSE,
        latitude DOUBLE PRECISION NOT NULL DEFAULT 0,
        longitude DOUBLE PRECISION NOT NULL DEFAULT 0,
        creator_id BIGINT,
        created_at TIMESTAMPTZ DEFAULT NOW()
    );`,
	`CREATE TABLE IF NOT EXISTS users (
        id BIGSERIAL PRIMARY KEY,
        name TEXT NOT NULL,
        email TEXT NOT NULL UNIQUE,
        password TEXT NOT NULL,
        role TEXT NOT NULL,
        pharmacy_id BIGINT REFERENCES pharmacies(id) ON DELETE CASCADE,
        creator_id BIGINT REFERENCES users(id) ON DELETE SET NULL,
        created_at TIMESTAMPTZ DEFAULT NOW()
    );`,
	`CREATE TABLE IF NOT EXISTS categories (
        id BIGSERIAL PRIMARY KEY,
        name TEXT NOT NULL UNIQUE,
        description TEXT NOT NULL DEFAULT '',
        image TEXT
    );`,
	`CREATE TABLE IF NOT EXISTS catalog_entries (
        id BIGSERIAL PRIMARY KEY,
        name TEXT NOT NULL UNIQUE,
        description TEXT NOT NULL DEFAULT '',
        reference_price NUMERIC(12,2) NOT NULL DEFAULT 0,
        category_id BIGINT REFERENCES categories(id) ON DELETE SET NULL,
        image TEXT
    );`,
	`CREATE TABLE IF NOT EXISTS listings (
        id BIGSERIAL PRIMARY KEY,
        catalog_entry_id BIGINT NOT NULL REFERENCES catalog_entries(id) ON DELETE CASCADE,
        pharmacy_id BIGINT NOT NULL REFERENCES pharmacies(id) ON DELETE CASCADE,
        price NUMERIC(12,2) NOT NULL,
        amount BIGINT NOT NULL CHECK (amount >= 0),
        reserved BIGINT NOT NULL DEFAULT 0,
        created_at TIMESTAMPTZ DEFAULT NOW(),
        updated_at TIMESTAMPTZ DEFAULT NOW(),
        UNIQUE(catalog_entry_id, pharmacy_id)
    );`,
	`CREATE TABLE IF NOT EXISTS sales (
        id BIGSERIAL PRIMARY KEY,
        receipt TEXT NOT NULL,
        listing_id BIGINT NOT NULL REFERENCES listings(id),
        quantity BIGINT NOT NULL CHECK (quantity > 0),
        price NUMERIC(12,2) NOT NULL,
        cashier_id BIGINT NOT NULL REFERENCES users(id),
        created_at TIMESTAMPTZ DEFAULT NOW()
    );`,
	`CREATE TABLE IF NOT EXISTS orders (
        id BIGSERIAL PRIMARY KEY,
        receipt TEXT NOT NULL,
        listing_id BIGINT NOT NULL REFERENCES listings(id),
        quantity BIGINT NOT NULL CHECK (quantity > 0),
        price NUMERIC(12,2) NOT NULL,
        customer_id BIGINT NOT NULL REFERENCES users(id),
        fulfilled BOOLEAN NOT NULL DEFAULT FALSE,
        created_at TIMESTAMPTZ DEFAULT NOW()
    );`,
	`CREATE INDEX IF NOT EXISTS idx_sales_receipt ON sales(receipt);`,
	`CREATE INDEX IF NOT EXISTS idx_orders_receipt ON orders(receipt);`,
	`CREATE INDEX IF NOT EXISTS idx_listings_in_stock ON listings(pharmacy_id) WHERE amount > 0;`,
}
