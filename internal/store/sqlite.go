package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/catalog-enrich/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// One connection serializes writers from concurrent enrichment tasks.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS products (
	id                  TEXT PRIMARY KEY,
	batch_id            TEXT NOT NULL DEFAULT '',
	supplier_sku        TEXT NOT NULL DEFAULT '',
	manufacturer_sku    TEXT UNIQUE,
	manufacturer        TEXT NOT NULL DEFAULT '',
	name                TEXT NOT NULL DEFAULT '',
	category            TEXT NOT NULL DEFAULT '',
	description         TEXT NOT NULL DEFAULT '',
	price               REAL,
	scraped_name        TEXT NOT NULL DEFAULT '',
	scraped_description TEXT NOT NULL DEFAULT '',
	scraped_url         TEXT NOT NULL DEFAULT '',
	scraped_images      TEXT NOT NULL DEFAULT '[]',
	image_metadata      TEXT NOT NULL DEFAULT '[]',
	confidence_score    INTEGER NOT NULL DEFAULT 0 CHECK (confidence_score BETWEEN 0 AND 100),
	last_attempt_id     TEXT NOT NULL DEFAULT '',
	status              TEXT NOT NULL DEFAULT 'draft',
	processing_notes    TEXT NOT NULL DEFAULT '',
	requires_review     INTEGER NOT NULL DEFAULT 0,
	review_notes        TEXT NOT NULL DEFAULT '',
	created_at          DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at          DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_products_batch_status ON products(batch_id, status);

CREATE TABLE IF NOT EXISTS scraping_attempts (
	id                 TEXT PRIMARY KEY,
	product_id         TEXT NOT NULL REFERENCES products(id),
	attempt_number     INTEGER NOT NULL,
	method             TEXT NOT NULL,
	status             TEXT NOT NULL,
	search_url         TEXT NOT NULL DEFAULT '',
	product_url        TEXT NOT NULL DEFAULT '',
	confidence_score   INTEGER NOT NULL DEFAULT 0,
	raw_response       TEXT,
	error_message      TEXT NOT NULL DEFAULT '',
	credits_used       INTEGER NOT NULL DEFAULT 0,
	processing_time_ms INTEGER NOT NULL DEFAULT 0,
	created_at         DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE (product_id, attempt_number)
);

CREATE INDEX IF NOT EXISTS idx_scraping_attempts_product ON scraping_attempts(product_id);
`

const productColumns = `id, batch_id, supplier_sku, manufacturer_sku, manufacturer, name, category, description, price,
	scraped_name, scraped_description, scraped_url, scraped_images, image_metadata, confidence_score,
	last_attempt_id, status, processing_notes, requires_review, review_notes, created_at, updated_at`

const attemptColumns = `id, product_id, attempt_number, method, status, search_url, product_url, confidence_score,
	raw_response, error_message, credits_used, processing_time_ms, created_at`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) HealthCheck(ctx context.Context) model.HealthStatus {
	start := time.Now()
	status := model.HealthStatus{
		Service: "database",
		Status:  model.HealthHealthy,
		Details: map[string]any{"driver": "sqlite"},
	}
	if err := s.db.PingContext(ctx); err != nil {
		status.Status = model.HealthUnhealthy
		status.Error = err.Error()
	}
	status.ResponseTimeMS = time.Since(start).Milliseconds()
	return status
}

func (s *SQLiteStore) GetProductByID(ctx context.Context, id string) (*model.Product, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = ?`, id)
	p, err := scanSQLiteProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return p, dbErr("get", "products", err)
}

func (s *SQLiteStore) GetProductByManufacturerSKU(ctx context.Context, sku string) (*model.Product, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE manufacturer_sku = ?`, sku)
	p, err := scanSQLiteProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return p, dbErr("get by manufacturer sku", "products", err)
}

func (s *SQLiteStore) GetProducts(ctx context.Context, filter ProductFilter) ([]model.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE 1=1`
	var args []any

	if filter.BatchID != "" {
		query += ` AND batch_id = ?`
		args = append(args, filter.BatchID)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at, id`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, dbErr("list", "products", err)
	}
	defer rows.Close()

	var products []model.Product
	for rows.Next() {
		p, err := scanSQLiteProduct(rows)
		if err != nil {
			return nil, dbErr("list", "products", err)
		}
		products = append(products, *p)
	}
	return products, dbErr("list", "products", rows.Err())
}

func (s *SQLiteStore) CreateProduct(ctx context.Context, p model.Product) (*model.Product, error) {
	p = newProduct(p)
	images, meta, err := encodeImages(p.ScrapedImages, p.ImageMetadata)
	if err != nil {
		return nil, dbErr("create", "products", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO products (`+productColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.BatchID, p.SupplierSKU, nullString(p.ManufacturerSKU), p.Manufacturer, p.Name, p.Category, p.Description, p.Price,
		p.ScrapedName, p.ScrapedDescription, p.ScrapedURL, images, meta, clampConfidence(p.ConfidenceScore),
		p.LastAttemptID, string(p.Status), p.ProcessingNotes, p.RequiresReview, p.ReviewNotes, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: products.manufacturer_sku") {
			return nil, &DuplicateSKUError{SKU: p.ManufacturerSKU, Err: err}
		}
		return nil, dbErr("create", "products", err)
	}
	return &p, nil
}

func (s *SQLiteStore) UpdateProductEnrichment(ctx context.Context, id string, u EnrichmentUpdate) error {
	now := time.Now().UTC()
	var (
		res sql.Result
		err error
	)
	if u.Scraped == nil {
		res, err = s.db.ExecContext(ctx,
			`UPDATE products SET confidence_score = ?, status = ?, last_attempt_id = ?, processing_notes = ?, updated_at = ? WHERE id = ?`,
			clampConfidence(u.ConfidenceScore), string(u.Status), u.LastAttemptID, u.ProcessingNotes, now, id,
		)
	} else {
		images, meta, encErr := encodeImages(u.Scraped.Images, u.Scraped.ImageMetadata)
		if encErr != nil {
			return dbErr("update enrichment", "products", encErr)
		}
		res, err = s.db.ExecContext(ctx,
			`UPDATE products SET scraped_name = ?, scraped_description = ?, scraped_url = ?, scraped_images = ?, image_metadata = ?,
				confidence_score = ?, status = ?, last_attempt_id = ?, processing_notes = ?, updated_at = ? WHERE id = ?`,
			u.Scraped.Name, u.Scraped.Description, u.Scraped.URL, images, meta,
			clampConfidence(u.ConfidenceScore), string(u.Status), u.LastAttemptID, u.ProcessingNotes, now, id,
		)
	}
	if err != nil {
		return dbErr("update enrichment", "products", err)
	}
	return checkRowsAffected(res, "update enrichment", id)
}

func (s *SQLiteStore) UpdateProductStatus(ctx context.Context, id string, status model.ProductStatus, notes string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE products SET status = ?, processing_notes = ?, updated_at = ? WHERE id = ?`,
		string(status), notes, time.Now().UTC(), id,
	)
	if err != nil {
		return dbErr("update status", "products", err)
	}
	return checkRowsAffected(res, "update status", id)
}

func (s *SQLiteStore) UpdateProductReviewStatus(ctx context.Context, id string, requiresReview bool, notes string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE products SET requires_review = ?, review_notes = ?, updated_at = ? WHERE id = ?`,
		requiresReview, notes, time.Now().UTC(), id,
	)
	if err != nil {
		return dbErr("update review status", "products", err)
	}
	return checkRowsAffected(res, "update review status", id)
}

func (s *SQLiteStore) CreateScrapingAttempt(ctx context.Context, a model.ScrapingAttempt) (*model.ScrapingAttempt, error) {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	a.CreatedAt = time.Now().UTC()
	a.ConfidenceScore = clampConfidence(a.ConfidenceScore)

	var raw *string
	if len(a.RawResponse) > 0 {
		raw = nullString(string(a.RawResponse))
	}

	err := s.db.QueryRowContext(ctx,
		`INSERT INTO scraping_attempts (`+attemptColumns+`)
		SELECT ?, ?, COALESCE(MAX(attempt_number), 0) + 1, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?
		FROM scraping_attempts WHERE product_id = ?
		RETURNING attempt_number`,
		a.ID, a.ProductID, string(a.Method), string(a.Status), a.SearchURL, a.ProductURL, a.ConfidenceScore,
		raw, a.ErrorMessage, a.CreditsUsed, a.ProcessingTimeMS, a.CreatedAt, a.ProductID,
	).Scan(&a.AttemptNumber)
	if err != nil {
		return nil, dbErr("create", "scraping_attempts", err)
	}
	return &a, nil
}

func (s *SQLiteStore) ListScrapingAttempts(ctx context.Context, productID string) ([]model.ScrapingAttempt, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+attemptColumns+` FROM scraping_attempts WHERE product_id = ? ORDER BY attempt_number`,
		productID,
	)
	if err != nil {
		return nil, dbErr("list", "scraping_attempts", err)
	}
	defer rows.Close()

	var attempts []model.ScrapingAttempt
	for rows.Next() {
		var a model.ScrapingAttempt
		var raw sql.NullString
		if err := rows.Scan(&a.ID, &a.ProductID, &a.AttemptNumber, &a.Method, &a.Status, &a.SearchURL, &a.ProductURL,
			&a.ConfidenceScore, &raw, &a.ErrorMessage, &a.CreditsUsed, &a.ProcessingTimeMS, &a.CreatedAt); err != nil {
			return nil, dbErr("list", "scraping_attempts", err)
		}
		if raw.Valid {
			a.RawResponse = []byte(raw.String)
		}
		attempts = append(attempts, a)
	}
	return attempts, dbErr("list", "scraping_attempts", rows.Err())
}

func checkRowsAffected(res sql.Result, op, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return dbErr(op, "products", eris.Wrap(err, "rows affected"))
	}
	if n == 0 {
		return dbErr(op, "products", eris.Wrapf(ErrNotFound, "product %s", id))
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSQLiteProduct(row scannable) (*model.Product, error) {
	var (
		p      model.Product
		mfgSKU sql.NullString
		price  sql.NullFloat64
		images string
		meta   string
		review bool
		status string
	)
	err := row.Scan(&p.ID, &p.BatchID, &p.SupplierSKU, &mfgSKU, &p.Manufacturer, &p.Name, &p.Category, &p.Description, &price,
		&p.ScrapedName, &p.ScrapedDescription, &p.ScrapedURL, &images, &meta, &p.ConfidenceScore,
		&p.LastAttemptID, &status, &p.ProcessingNotes, &review, &p.ReviewNotes, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.ManufacturerSKU = mfgSKU.String
	if price.Valid {
		p.Price = &price.Float64
	}
	p.Status = model.ProductStatus(status)
	p.RequiresReview = review
	if err := decodeImages(&p, []byte(images), []byte(meta)); err != nil {
		return nil, err
	}
	return &p, nil
}
