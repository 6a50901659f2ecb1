// Package seed loads the shared drug catalog from a CSV export.
package seed

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Expected header: name,category,description,reference_price,image
const (
	colName = iota
	colCategory
	colDescription
	colReferencePrice
	colImage
	columns
)

// LoadCatalogFile ingests the CSV at path. Rows whose name already exists are skipped.
func LoadCatalogFile(ctx context.Context, db *sqlx.DB, path string, log *zap.Logger) (int, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open catalog %s: %w", path, err)
	}
	defer file.Close()
	return LoadCatalog(ctx, db, file, log)
}

// LoadCatalog reads catalog rows from r in one transaction and returns how many were inserted.
// Malformed rows are logged and skipped.
func LoadCatalog(ctx context.Context, db *sqlx.DB, r io.Reader, log *zap.Logger) (int, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	// Skip header
	if _, err := reader.Read(); err != nil {
		return 0, fmt.Errorf("read catalog header: %w", err)
	}

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin catalog seed: %w", err)
	}
	defer tx.Rollback()

	categoryStmt, err := tx.PreparexContext(ctx, tx.Rebind(`INSERT INTO categories (name) VALUES (?) ON CONFLICT (name) DO NOTHING`))
	if err != nil {
		return 0, fmt.Errorf("prepare category insert: %w", err)
	}
	defer categoryStmt.Close()
	entryStmt, err := tx.PreparexContext(ctx, tx.Rebind(`INSERT INTO catalog_entries (name, description, reference_price, category_id, image)
                VALUES (?, ?, ?, (SELECT id FROM categories WHERE name = ?), ?)
                ON CONFLICT (name) DO NOTHING`))
	if err != nil {
		return 0, fmt.Errorf("prepare catalog insert: %w", err)
	}
	defer entryStmt.Close()

	rows := 0
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			log.Warn("unable to read catalog row", zap.Int("line", line), zap.Error(err))
			continue
		}
		if len(record) < columns {
			continue
		}
		name := strings.TrimSpace(record[colName])
		if name == "" {
			continue
		}
		price, err := decimal.NewFromString(strings.TrimSpace(record[colReferencePrice]))
		if err != nil || price.IsNegative() {
			log.Warn("invalid reference price", zap.Int("line", line), zap.String("name", name))
			continue
		}

		var category *string
		if c := strings.TrimSpace(record[colCategory]); c != "" {
			category = &c
			if _, err := categoryStmt.ExecContext(ctx, c); err != nil {
				return rows, fmt.Errorf("insert category %s: %w", c, err)
			}
		}
		var image *string
		if img := strings.TrimSpace(record[colImage]); img != "" {
			image = &img
		}

		res, err := entryStmt.ExecContext(ctx, name, strings.TrimSpace(record[colDescription]), price.Round(2), category, image)
		if err != nil {
			return rows, fmt.Errorf("insert catalog entry %s: %w", name, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			rows++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit catalog seed: %w", err)
	}
	log.Info("seeded drug catalog", zap.Int("rows", rows))
	return rows, nil
}
