package fetch

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	_ "modernc.org/sqlite"
)

const cacheSchema = `
create table if not exists page (
	url text primary key,
	body blob not null,
	fetched_at integer not null
);`

// PageCache keeps the bodies of pages that are known not to change in a sqlite
// database, keyed by URL.
type PageCache struct {
	db *sql.DB
}

// OpenPageCache opens (or creates) the sqlite file at path.
func OpenPageCache(path string) (*PageCache, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	cache, err := NewPageCache(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return cache, nil
}

func NewPageCache(db *sql.DB) (*PageCache, error) {
	_, err := db.Exec(cacheSchema)
	if err != nil {
		return nil, err
	}
	return &PageCache{db: db}, nil
}

func (c *PageCache) Get(ctx context.Context, url string) ([]byte, bool, error) {
	ctx, span := tracer.Start(ctx, "cache:get")
	defer span.End()
	span.SetAttributes(attribute.String("custom.cache_key", url))

	var body []byte
	err := c.db.QueryRowContext(ctx, "select body from page where url = ?", url).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		span.SetAttributes(attribute.Bool("custom.cache_hit", false))
		return nil, false, nil
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to read cached page")
		return nil, false, err
	}
	span.SetAttributes(attribute.Bool("custom.cache_hit", true))
	return body, true, nil
}

func (c *PageCache) Put(ctx context.Context, url string, body []byte) error {
	ctx, span := tracer.Start(ctx, "cache:put")
	defer span.End()

	_, err := c.db.ExecContext(
		ctx,
		`insert into page (url, body, fetched_at) values (?, ?, ?)
		on conflict (url) do update set body = excluded.body, fetched_at = excluded.fetched_at`,
		url, body, time.Now().Unix(),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to write cached page")
	}
	return err
}

func (c *PageCache) Close() error {
	return c.db.Close()
}
