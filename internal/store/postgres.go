package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/catalog-enrich/internal/db"
	"github.com/sells-group/catalog-enrich/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// pgUniqueViolation is the SQLSTATE for unique_violation.
const pgUniqueViolation = "23505"

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS products (
	id                  TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	batch_id            TEXT NOT NULL DEFAULT '',
	supplier_sku        TEXT NOT NULL DEFAULT '',
	manufacturer_sku    TEXT UNIQUE,
	manufacturer        TEXT NOT NULL DEFAULT '',
	name                TEXT NOT NULL DEFAULT '',
	category            TEXT NOT NULL DEFAULT '',
	description         TEXT NOT NULL DEFAULT '',
	price               DOUBLE PRECISION,
	scraped_name        TEXT NOT NULL DEFAULT '',
	scraped_description TEXT NOT NULL DEFAULT '',
	scraped_url         TEXT NOT NULL DEFAULT '',
	scraped_images      JSONB NOT NULL DEFAULT '[]',
	image_metadata      JSONB NOT NULL DEFAULT '[]',
	confidence_score    INTEGER NOT NULL DEFAULT 0 CHECK (confidence_score BETWEEN 0 AND 100),
	last_attempt_id     TEXT NOT NULL DEFAULT '',
	status              TEXT NOT NULL DEFAULT 'draft',
	processing_notes    TEXT NOT NULL DEFAULT '',
	requires_review     BOOLEAN NOT NULL DEFAULT false,
	review_notes        TEXT NOT NULL DEFAULT '',
	created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at          TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_products_batch_status ON products(batch_id, status);

CREATE TABLE IF NOT EXISTS scraping_attempts (
	id                 TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	product_id         TEXT NOT NULL REFERENCES products(id),
	attempt_number     INTEGER NOT NULL,
	method             TEXT NOT NULL,
	status             TEXT NOT NULL,
	search_url         TEXT NOT NULL DEFAULT '',
	product_url        TEXT NOT NULL DEFAULT '',
	confidence_score   INTEGER NOT NULL DEFAULT 0,
	raw_response       JSONB,
	error_message      TEXT NOT NULL DEFAULT '',
	credits_used       INTEGER NOT NULL DEFAULT 0,
	processing_time_ms BIGINT NOT NULL DEFAULT 0,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (product_id, attempt_number)
);

CREATE INDEX IF NOT EXISTS idx_scraping_attempts_product ON scraping_attempts(product_id);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) HealthCheck(ctx context.Context) model.HealthStatus {
	start := time.Now()
	status := model.HealthStatus{
		Service: "database",
		Status:  model.HealthHealthy,
		Details: map[string]any{"driver": "postgres"},
	}
	if err := s.Ping(ctx); err != nil {
		status.Status = model.HealthUnhealthy
		status.Error = err.Error()
	}
	status.ResponseTimeMS = time.Since(start).Milliseconds()
	return status
}

func (s *PostgresStore) GetProductByID(ctx context.Context, id string) (*model.Product, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id)
	p, err := scanPostgresProduct(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return p, dbErr("get", "products", err)
}

func (s *PostgresStore) GetProductByManufacturerSKU(ctx context.Context, sku string) (*model.Product, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE manufacturer_sku = $1`, sku)
	p, err := scanPostgresProduct(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return p, dbErr("get by manufacturer sku", "products", err)
}

func (s *PostgresStore) GetProducts(ctx context.Context, filter ProductFilter) ([]model.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE 1=1`
	var args []any

	if filter.BatchID != "" {
		args = append(args, filter.BatchID)
		query += fmt.Sprintf(` AND batch_id = $%d`, len(args))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += fmt.Sprintf(` AND status = $%d`, len(args))
	}
	query += ` ORDER BY created_at, id`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, dbErr("list", "products", err)
	}
	defer rows.Close()

	var products []model.Product
	for rows.Next() {
		p, err := scanPostgresProduct(rows)
		if err != nil {
			return nil, dbErr("list", "products", err)
		}
		products = append(products, *p)
	}
	return products, dbErr("list", "products", rows.Err())
}

func (s *PostgresStore) CreateProduct(ctx context.Context, p model.Product) (*model.Product, error) {
	p = newProduct(p)
	images, meta, err := encodeImages(p.ScrapedImages, p.ImageMetadata)
	if err != nil {
		return nil, dbErr("create", "products", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO products (`+productColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)`,
		p.ID, p.BatchID, p.SupplierSKU, nullString(p.ManufacturerSKU), p.Manufacturer, p.Name, p.Category, p.Description, p.Price,
		p.ScrapedName, p.ScrapedDescription, p.ScrapedURL, images, meta, clampConfidence(p.ConfidenceScore),
		p.LastAttemptID, string(p.Status), p.ProcessingNotes, p.RequiresReview, p.ReviewNotes, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return nil, &DuplicateSKUError{SKU: p.ManufacturerSKU, Err: err}
		}
		return nil, dbErr("create", "products", err)
	}
	return &p, nil
}

func (s *PostgresStore) UpdateProductEnrichment(ctx context.Context, id string, u EnrichmentUpdate) error {
	now := time.Now().UTC()
	var (
		tag pgconn.CommandTag
		err error
	)
	if u.Scraped == nil {
		tag, err = s.pool.Exec(ctx,
			`UPDATE products SET confidence_score = $1, status = $2, last_attempt_id = $3, processing_notes = $4, updated_at = $5 WHERE id = $6`,
			clampConfidence(u.ConfidenceScore), string(u.Status), u.LastAttemptID, u.ProcessingNotes, now, id,
		)
	} else {
		images, meta, encErr := encodeImages(u.Scraped.Images, u.Scraped.ImageMetadata)
		if encErr != nil {
			return dbErr("update enrichment", "products", encErr)
		}
		tag, err = s.pool.Exec(ctx,
			`UPDATE products SET scraped_name = $1, scraped_description = $2, scraped_url = $3, scraped_images = $4, image_metadata = $5,
				confidence_score = $6, status = $7, last_attempt_id = $8, processing_notes = $9, updated_at = $10 WHERE id = $11`,
			u.Scraped.Name, u.Scraped.Description, u.Scraped.URL, images, meta,
			clampConfidence(u.ConfidenceScore), string(u.Status), u.LastAttemptID, u.ProcessingNotes, now, id,
		)
	}
	if err != nil {
		return dbErr("update enrichment", "products", err)
	}
	return checkTag(tag, "update enrichment", id)
}

func (s *PostgresStore) UpdateProductStatus(ctx context.Context, id string, status model.ProductStatus, notes string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE products SET status = $1, processing_notes = $2, updated_at = $3 WHERE id = $4`,
		string(status), notes, time.Now().UTC(), id,
	)
	if err != nil {
		return dbErr("update status", "products", err)
	}
	return checkTag(tag, "update status", id)
}

func (s *PostgresStore) UpdateProductReviewStatus(ctx context.Context, id string, requiresReview bool, notes string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE products SET requires_review = $1, review_notes = $2, updated_at = $3 WHERE id = $4`,
		requiresReview, notes, time.Now().UTC(), id,
	)
	if err != nil {
		return dbErr("update review status", "products", err)
	}
	return checkTag(tag, "update review status", id)
}

func (s *PostgresStore) CreateScrapingAttempt(ctx context.Context, a model.ScrapingAttempt) (*model.ScrapingAttempt, error) {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	a.CreatedAt = time.Now().UTC()
	a.ConfidenceScore = clampConfidence(a.ConfidenceScore)

	var raw []byte
	if len(a.RawResponse) > 0 {
		raw = a.RawResponse
	}

	err := s.pool.QueryRow(ctx,
		`INSERT INTO scraping_attempts (`+attemptColumns+`)
		SELECT $1, $2, COALESCE(MAX(attempt_number), 0) + 1, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12
		FROM scraping_attempts WHERE product_id = $2
		RETURNING attempt_number`,
		a.ID, a.ProductID, string(a.Method), string(a.Status), a.SearchURL, a.ProductURL, a.ConfidenceScore,
		raw, a.ErrorMessage, a.CreditsUsed, a.ProcessingTimeMS, a.CreatedAt,
	).Scan(&a.AttemptNumber)
	if err != nil {
		return nil, dbErr("create", "scraping_attempts", err)
	}
	return &a, nil
}

func (s *PostgresStore) ListScrapingAttempts(ctx context.Context, productID string) ([]model.ScrapingAttempt, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+attemptColumns+` FROM scraping_attempts WHERE product_id = $1 ORDER BY attempt_number`,
		productID,
	)
	if err != nil {
		return nil, dbErr("list", "scraping_attempts", err)
	}
	defer rows.Close()

	var attempts []model.ScrapingAttempt
	for rows.Next() {
		var (
			a              model.ScrapingAttempt
			method, status string
			raw            []byte
		)
		if err := rows.Scan(&a.ID, &a.ProductID, &a.AttemptNumber, &method, &status, &a.SearchURL, &a.ProductURL,
			&a.ConfidenceScore, &raw, &a.ErrorMessage, &a.CreditsUsed, &a.ProcessingTimeMS, &a.CreatedAt); err != nil {
			return nil, dbErr("list", "scraping_attempts", err)
		}
		a.Method = model.AttemptMethod(method)
		a.Status = model.AttemptStatus(status)
		if len(raw) > 0 {
			a.RawResponse = raw
		}
		attempts = append(attempts, a)
	}
	return attempts, dbErr("list", "scraping_attempts", rows.Err())
}

func checkTag(tag pgconn.CommandTag, op, id string) error {
	if tag.RowsAffected() == 0 {
		return dbErr(op, "products", eris.Wrapf(ErrNotFound, "product %s", id))
	}
	return nil
}

func scanPostgresProduct(row pgx.Row) (*model.Product, error) {
	var (
		p      model.Product
		mfgSKU *string
		images []byte
		meta   []byte
		status string
	)
	err := row.Scan(&p.ID, &p.BatchID, &p.SupplierSKU, &mfgSKU, &p.Manufacturer, &p.Name, &p.Category, &p.Description, &p.Price,
		&p.ScrapedName, &p.ScrapedDescription, &p.ScrapedURL, &images, &meta, &p.ConfidenceScore,
		&p.LastAttemptID, &status, &p.ProcessingNotes, &p.RequiresReview, &p.ReviewNotes, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if mfgSKU != nil {
		p.ManufacturerSKU = *mfgSKU
	}
	p.Status = model.ProductStatus(status)
	if err := decodeImages(&p, images, meta); err != nil {
		return nil, err
	}
	return &p, nil
}

