// Package store keeps the extraction cache in Postgres.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"

	"menulens/api/internal/menu/types"
)

const extractTable = "menu_extractions"

const schema = `
create table if not exists menu_extractions (
  cache_key   text primary key,
  engine      text not null,
  model       text not null,
  result_json jsonb not null,
  item_count  integer not null default 0,
  created_at  timestamptz not null default now()
);
create index if not exists menu_extractions_created_at_idx on menu_extractions (created_at);`

// ExtractRepo caches extractor output by pipeline.CacheKey.
type ExtractRepo struct {
	DB     *sql.DB
	MaxAge time.Duration

	psql sq.StatementBuilderType
	now  func() time.Time
}

// NewExtractRepo wires a sql.DB opened with the pgx driver. maxAge <= 0
// keeps entries forever.
func NewExtractRepo(db *sql.DB, maxAge time.Duration) *ExtractRepo {
	return &ExtractRepo{
		DB:     db,
		MaxAge: maxAge,
		psql:   sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
		now:    time.Now,
	}
}

func (r *ExtractRepo) EnsureSchema(ctx context.Context) error {
	if r.DB == nil {
		return nil
	}
	if _, err := r.DB.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (r *ExtractRepo) selectQuery(key string) (string, []any, error) {
	q := r.psql.
		Select("result_json").
		From(extractTable).
		Where(sq.Eq{"cache_key": key})
	if r.MaxAge > 0 {
		q = q.Where(sq.Gt{"created_at": r.now().Add(-r.MaxAge)})
	}
	return q.Limit(1).ToSql()
}

// Get returns the cached extraction. A miss, an expired row or a corrupt
// row all report ok=false without an error.
func (r *ExtractRepo) Get(ctx context.Context, key string) (types.Extraction, bool, error) {
	if r.DB == nil {
		return types.Extraction{}, false, nil
	}
	query, args, err := r.selectQuery(key)
	if err != nil {
		return types.Extraction{}, false, fmt.Errorf("build select: %w", err)
	}
	var js []byte
	if err := r.DB.QueryRowContext(ctx, query, args...).Scan(&js); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Extraction{}, false, nil
		}
		return types.Extraction{}, false, fmt.Errorf("select extraction: %w", err)
	}
	var ex types.Extraction
	if err := json.Unmarshal(js, &ex); err != nil {
		return types.Extraction{}, false, nil
	}
	return ex, true, nil
}

func (r *ExtractRepo) upsertQuery(key, engine, model string, ex types.Extraction) (string, []any, error) {
	js, err := json.Marshal(ex)
	if err != nil {
		return "", nil, err
	}
	return r.psql.
		Insert(extractTable).
		Columns("cache_key", "engine", "model", "result_json", "item_count").
		Values(key, engine, model, string(js), len(ex.Items)).
		Suffix(`on conflict (cache_key) do update
set result_json = excluded.result_json,
    item_count = excluded.item_count,
    created_at = now()`).
		ToSql()
}

// Put upserts the extraction. engine and model are stored for
// housekeeping; they are already part of key.
func (r *ExtractRepo) Put(ctx context.Context, key string, ex types.Extraction) error {
	if r.DB == nil {
		return nil
	}
	engine, model := keyParts(key)
	query, args, err := r.upsertQuery(key, engine, model, ex)
	if err != nil {
		return fmt.Errorf("build upsert: %w", err)
	}
	if _, err := r.DB.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert extraction: %w", err)
	}
	return nil
}

// PurgeOlderThan deletes old cache rows.
func (r *ExtractRepo) PurgeOlderThan(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, errors.New("olderThan must be > 0")
	}
	if r.DB == nil {
		return 0, nil
	}
	query, args, err := r.psql.
		Delete(extractTable).
		Where(sq.Lt{"created_at": r.now().Add(-olderThan)}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build delete: %w", err)
	}
	res, err := r.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("purge extractions: %w", err)
	}
	aff, _ := res.RowsAffected()
	return aff, nil
}

// keyParts reads engine and model back out of a key built as
// hash:lang:engine:model.
func keyParts(key string) (engine, model string) {
	parts := strings.SplitN(key, ":", 4)
	if len(parts) != 4 {
		return "", ""
	}
	return parts[2], parts[3]
}
