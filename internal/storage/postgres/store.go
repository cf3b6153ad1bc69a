// Package postgres mirrors the reconciled property catalog into PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/R3E-Network/property_registry/internal/codec"
	"github.com/R3E-Network/property_registry/internal/domain/property"
)

// ErrNotFound is returned when no mirrored property has the requested slug.
var ErrNotFound = errors.New("postgres: property not found")

// MirroredProperty is one row of the properties table.
type MirroredProperty struct {
	Slug                string       `db:"slug"`
	Title               string       `db:"title"`
	City                string       `db:"city"`
	Status              string       `db:"status"`
	Available           int64        `db:"available"`
	Total               int64        `db:"total"`
	ApyBps              int64        `db:"apy_bps"`
	TokenPriceUsdCents  int64        `db:"token_price_usd_cents"`
	BlueprintURL        string       `db:"blueprint_url"`
	RenderURL           string       `db:"render_url"`
	TokenizedURL        string       `db:"tokenized_url"`
	Lat                 float64      `db:"lat"`
	Lng                 float64      `db:"lng"`
	Geohash             string       `db:"geohash"`
	Source              string       `db:"source"`
	ImageVerified       bool         `db:"image_verified"`
	LastImageVerifiedAt sql.NullTime `db:"last_image_verified_at"`
	LastSyncedAt        time.Time    `db:"last_synced_at"`
	LastBlockSynced     int64        `db:"last_block_synced"`
}

// FromProperty builds a row for p as observed from source.
func FromProperty(p property.Property, source string) MirroredProperty {
	return MirroredProperty{
		Slug:               p.Key(),
		Title:              p.Title,
		City:               p.City,
		Status:             string(p.Status),
		Available:          p.Available,
		Total:              p.Total,
		ApyBps:             int64(codec.PercentStringToBps(p.APY)),
		TokenPriceUsdCents: int64(codec.UsdStringToCents(p.TokenPrice)),
		BlueprintURL:       p.Blueprint,
		RenderURL:          p.Render,
		TokenizedURL:       p.Tokenized,
		Lat:                p.LatLng.Lat(),
		Lng:                p.LatLng.Lng(),
		Geohash:            p.Geohash(),
		Source:             source,
	}
}

// Property converts the row back into the display entity.
func (m MirroredProperty) Property() property.Property {
	return property.Property{
		Slug:       m.Slug,
		Title:      m.Title,
		City:       m.City,
		Status:     property.ParseStatus(m.Status),
		Available:  m.Available,
		Total:      m.Total,
		APY:        codec.BpsToPercentString(uint64(m.ApyBps)),
		TokenPrice: codec.UsdCentsToString(uint64(m.TokenPriceUsdCents)),
		Blueprint:  m.BlueprintURL,
		Render:     m.RenderURL,
		Tokenized:  m.TokenizedURL,
		LatLng:     property.LatLng{m.Lat, m.Lng},
	}
}

// Store reads and writes the properties table.
type Store struct {
	db *sqlx.DB
}

// New creates a Store using the provided database handle.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Open connects to the database at dsn.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	db.SetMaxOpenConns(5)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// DB exposes the underlying handle, e.g. for migrations.
func (s *Store) DB() *sql.DB { return s.db.DB }

// Close closes the database handle.
func (s *Store) Close() error { return s.db.Close() }

const upsertProperty = `
	INSERT INTO properties (
		slug, title, city, status, available, total, apy_bps, token_price_usd_cents,
		blueprint_url, render_url, tokenized_url, lat, lng, geohash, source,
		image_verified, last_image_verified_at, last_synced_at, last_block_synced
	) VALUES (
		:slug, :title, :city, :status, :available, :total, :apy_bps, :token_price_usd_cents,
		:blueprint_url, :render_url, :tokenized_url, :lat, :lng, :geohash, :source,
		:image_verified, :last_image_verified_at, :last_synced_at, :last_block_synced
	)
	ON CONFLICT (slug) DO UPDATE SET
		title = EXCLUDED.title,
		city = EXCLUDED.city,
		status = EXCLUDED.status,
		available = EXCLUDED.available,
		total = EXCLUDED.total,
		apy_bps = EXCLUDED.apy_bps,
		token_price_usd_cents = EXCLUDED.token_price_usd_cents,
		blueprint_url = EXCLUDED.blueprint_url,
		render_url = EXCLUDED.render_url,
		tokenized_url = EXCLUDED.tokenized_url,
		lat = EXCLUDED.lat,
		lng = EXCLUDED.lng,
		geohash = EXCLUDED.geohash,
		source = EXCLUDED.source,
		image_verified = EXCLUDED.image_verified,
		last_image_verified_at = COALESCE(EXCLUDED.last_image_verified_at, properties.last_image_verified_at),
		last_synced_at = EXCLUDED.last_synced_at,
		last_block_synced = EXCLUDED.last_block_synced`

// UpsertProperties writes rows in one transaction, keyed by slug.
func (s *Store) UpsertProperties(ctx context.Context, rows []MirroredProperty) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, row := range rows {
		if _, err := tx.NamedExecContext(ctx, upsertProperty, row); err != nil {
			return fmt.Errorf("upsert %s: %w", row.Slug, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

const selectColumns = `
	slug, title, city, status, available, total, apy_bps, token_price_usd_cents,
	blueprint_url, render_url, tokenized_url, lat, lng, geohash, source,
	image_verified, last_image_verified_at, last_synced_at, last_block_synced`

// ListProperties returns every mirrored row ordered by slug.
func (s *Store) ListProperties(ctx context.Context) ([]MirroredProperty, error) {
	var rows []MirroredProperty
	if err := s.db.SelectContext(ctx, &rows, `SELECT `+selectColumns+` FROM properties ORDER BY slug`); err != nil {
		return nil, fmt.Errorf("list properties: %w", err)
	}
	return rows, nil
}

// ListNear returns rows whose geohash starts with prefix.
func (s *Store) ListNear(ctx context.Context, prefix string) ([]MirroredProperty, error) {
	var rows []MirroredProperty
	err := s.db.SelectContext(ctx, &rows,
		`SELECT `+selectColumns+` FROM properties WHERE geohash LIKE $1 ORDER BY slug`, prefix+"%")
	if err != nil {
		return nil, fmt.Errorf("list near %s: %w", prefix, err)
	}
	return rows, nil
}

// GetProperty returns the row for slug.
func (s *Store) GetProperty(ctx context.Context, slug string) (MirroredProperty, error) {
	var row MirroredProperty
	err := s.db.GetContext(ctx, &row, `SELECT `+selectColumns+` FROM properties WHERE slug = $1`, slug)
	if errors.Is(err, sql.ErrNoRows) {
		return MirroredProperty{}, ErrNotFound
	}
	if err != nil {
		return MirroredProperty{}, fmt.Errorf("get property %s: %w", slug, err)
	}
	return row, nil
}

// LastBlockSynced returns the highest block any row was synced at.
func (s *Store) LastBlockSynced(ctx context.Context) (int64, error) {
	var block sql.NullInt64
	if err := s.db.GetContext(ctx, &block, `SELECT MAX(last_block_synced) FROM properties`); err != nil {
		return 0, fmt.Errorf("last block synced: %w", err)
	}
	return block.Int64, nil
}
