package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/jmoiron/sqlx"
	"github.com/openmined/assetsync/internal/assets"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS assets (
	key TEXT PRIMARY KEY,
	content_type TEXT NOT NULL,
	max_age INTEGER,
	headers TEXT,
	is_aliased INTEGER,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS asset_encodings (
	key TEXT NOT NULL,
	encoding TEXT NOT NULL,
	sha256 TEXT NOT NULL,
	length INTEGER NOT NULL,
	PRIMARY KEY (key, encoding)
);

CREATE INDEX IF NOT EXISTS idx_asset_encodings_sha256 ON asset_encodings(sha256);
`

type assetRow struct {
	Key         string         `db:"key"`
	ContentType string         `db:"content_type"`
	MaxAge      sql.NullInt64  `db:"max_age"`
	Headers     sql.NullString `db:"headers"`
	IsAliased   sql.NullBool   `db:"is_aliased"`
	UpdatedAt   string         `db:"updated_at"`
}

type encodingRow struct {
	Key      string `db:"key"`
	Encoding string `db:"encoding"`
	SHA256   string `db:"sha256"`
	Length   int64  `db:"length"`
}

// assetIndex persists committed assets in sqlite
type assetIndex struct {
	db *sqlx.DB
}

func newAssetIndex(db *sqlx.DB) (*assetIndex, error) {
	if _, err := db.Exec(schemaSQL); err != nil {
		return nil, fmt.Errorf("failed to initialize index: %w", err)
	}
	return &assetIndex{db: db}, nil
}

func (idx *assetIndex) Keys(ctx context.Context) ([]string, error) {
	keys := []string{}
	if err := idx.db.SelectContext(ctx, &keys, "SELECT key FROM assets ORDER BY key"); err != nil {
		return nil, fmt.Errorf("failed to list assets: %w", err)
	}
	return keys, nil
}

// Get returns the asset under key or assets.ErrAssetNotFound
func (idx *assetIndex) Get(ctx context.Context, key string) (*Asset, error) {
	return getAsset(ctx, idx.db, key)
}

// Hashes returns every content hash referenced by a committed asset
func (idx *assetIndex) Hashes(ctx context.Context) (map[assets.Hash]struct{}, error) {
	var values []string
	if err := idx.db.SelectContext(ctx, &values, "SELECT DISTINCT sha256 FROM asset_encodings"); err != nil {
		return nil, fmt.Errorf("failed to list hashes: %w", err)
	}
	out := make(map[assets.Hash]struct{}, len(values))
	for _, v := range values {
		var h assets.Hash
		if err := h.UnmarshalText([]byte(v)); err != nil {
			return nil, fmt.Errorf("corrupt hash %q: %w", v, err)
		}
		out[h] = struct{}{}
	}
	return out, nil
}

// Apply writes the final state of every touched key in one transaction.
// A nil asset deletes the key.
func (idx *assetIndex) Apply(ctx context.Context, changes map[string]*Asset) error {
	tx, err := idx.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339)
	for key, asset := range changes {
		if _, err := tx.ExecContext(ctx, "DELETE FROM asset_encodings WHERE key = ?", key); err != nil {
			return fmt.Errorf("failed to clear encodings of %s: %w", key, err)
		}
		if asset == nil {
			if _, err := tx.ExecContext(ctx, "DELETE FROM assets WHERE key = ?", key); err != nil {
				return fmt.Errorf("failed to delete %s: %w", key, err)
			}
			continue
		}

		row, err := toAssetRow(asset, now)
		if err != nil {
			return err
		}
		if _, err := tx.NamedExecContext(ctx,
			`INSERT OR REPLACE INTO assets (key, content_type, max_age, headers, is_aliased, updated_at)
			VALUES (:key, :content_type, :max_age, :headers, :is_aliased, :updated_at)`, row); err != nil {
			return fmt.Errorf("failed to write %s: %w", key, err)
		}
		for name, enc := range asset.Encodings {
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO asset_encodings (key, encoding, sha256, length) VALUES (?, ?, ?, ?)",
				key, name, enc.SHA256.String(), enc.Length); err != nil {
				return fmt.Errorf("failed to write encoding %s of %s: %w", name, key, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func getAsset(ctx context.Context, q sqlx.QueryerContext, key string) (*Asset, error) {
	var row assetRow
	err := sqlx.GetContext(ctx, q, &row,
		"SELECT key, content_type, max_age, headers, is_aliased, updated_at FROM assets WHERE key = ?", key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, assets.ErrAssetNotFound
	} else if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", key, err)
	}

	var encs []encodingRow
	if err := sqlx.SelectContext(ctx, q, &encs,
		"SELECT key, encoding, sha256, length FROM asset_encodings WHERE key = ?", key); err != nil {
		return nil, fmt.Errorf("failed to get encodings of %s: %w", key, err)
	}

	return fromRows(&row, encs)
}

func toAssetRow(a *Asset, now string) (*assetRow, error) {
	row := &assetRow{Key: a.Key, ContentType: a.Properties.ContentType, UpdatedAt: now}
	if a.Properties.MaxAge != nil {
		row.MaxAge = sql.NullInt64{Int64: int64(*a.Properties.MaxAge), Valid: true}
	}
	if a.Properties.IsAliased != nil {
		row.IsAliased = sql.NullBool{Bool: *a.Properties.IsAliased, Valid: true}
	}
	if a.Properties.Headers != nil {
		raw, err := json.Marshal(a.Properties.Headers)
		if err != nil {
			return nil, fmt.Errorf("failed to encode headers of %s: %w", a.Key, err)
		}
		row.Headers = sql.NullString{String: string(raw), Valid: true}
	}
	return row, nil
}

func fromRows(row *assetRow, encs []encodingRow) (*Asset, error) {
	a := &Asset{
		Key:        row.Key,
		Properties: assets.Properties{ContentType: row.ContentType},
		Encodings:  make(map[string]EncodingInfo, len(encs)),
	}
	if row.MaxAge.Valid {
		v := uint64(row.MaxAge.Int64)
		a.Properties.MaxAge = &v
	}
	if row.IsAliased.Valid {
		v := row.IsAliased.Bool
		a.Properties.IsAliased = &v
	}
	if row.Headers.Valid {
		if err := json.Unmarshal([]byte(row.Headers.String), &a.Properties.Headers); err != nil {
			return nil, fmt.Errorf("corrupt headers of %s: %w", row.Key, err)
		}
	}
	for _, e := range encs {
		var h assets.Hash
		if err := h.UnmarshalText([]byte(e.SHA256)); err != nil {
			return nil, fmt.Errorf("corrupt hash of %s/%s: %w", row.Key, e.Encoding, err)
		}
		a.Encodings[e.Encoding] = EncodingInfo{SHA256: h, Length: e.Length}
	}
	return a, nil
}
