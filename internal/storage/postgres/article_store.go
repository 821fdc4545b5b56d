// Package postgres persists merged article records into Postgres.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/JakeFAU/news-harvester/internal/assemble"
	"github.com/JakeFAU/news-harvester/internal/harvest"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// DefaultBatchSize bounds the rows of one INSERT statement.
const DefaultBatchSize = 500

// Columns written per article, in argument order.
var Columns = []string{"news_id", "label", "period", "published", "title", "content", "status"}

// Config controls the Postgres connection pool used for article rows.
type Config struct {
	DSN             string
	Table           string
	BatchSize       int
	MaxConns        int32
	MaxConnLifetime time.Duration
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// Loader reads the records of a merged artifact.
type Loader interface {
	Load(ctx context.Context, res assemble.Result) ([]harvest.ArticleRecord, error)
}

// ArticleStore writes article rows into Postgres. Rows already present are
// left untouched so re-delivering a period is harmless.
type ArticleStore struct {
	pool      execCloser
	table     string
	batchSize int
	loader    Loader
	logger    *zap.Logger
}

// NewArticleStore creates a Postgres-backed ArticleStore using the provided config.
func NewArticleStore(ctx context.Context, cfg Config, loader Loader, logger *zap.Logger) (*ArticleStore, error) {
	if cfg.DSN == "" {
		return nil, errors.New("sinks.postgres_dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store, err := NewArticleStoreWithPool(pool, cfg.Table, cfg.BatchSize, loader, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

// NewArticleStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewArticleStoreWithPool(pool execCloser, table string, batchSize int, loader Loader, logger *zap.Logger) (*ArticleStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	if loader == nil {
		return nil, errors.New("loader is required")
	}
	if table == "" {
		table = "articles"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ArticleStore{
		pool:      pool,
		table:     table,
		batchSize: batchSize,
		loader:    loader,
		logger:    logger.Named("postgres"),
	}, nil
}

// Close releases the underlying pool resources.
func (s *ArticleStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Name implements the period sink contract.
func (s *ArticleStore) Name() string {
	return "postgres"
}

// Deliver loads the merged artifact and inserts its records.
func (s *ArticleStore) Deliver(ctx context.Context, res assemble.Result) error {
	records, err := s.loader.Load(ctx, res)
	if err != nil {
		return fmt.Errorf("load %s: %w", res.Path, err)
	}
	inserted, err := s.StoreArticles(ctx, res.Label, res.Month, records)
	if err != nil {
		return err
	}
	s.logger.Info("articles stored",
		zap.String("label", res.Label),
		zap.Int("records", len(records)),
		zap.Int64("inserted", inserted),
	)
	return nil
}

// StoreArticles inserts records in batches and returns the number of new rows.
func (s *ArticleStore) StoreArticles(
	ctx context.Context,
	label string,
	period time.Time,
	records []harvest.ArticleRecord,
) (int64, error) {
	if s == nil || s.pool == nil {
		return 0, errors.New("article store is not configured")
	}
	var inserted int64
	for start := 0; start < len(records); start += s.batchSize {
		end := min(start+s.batchSize, len(records))
		query, args, err := s.insert(label, period, records[start:end])
		if err != nil {
			return inserted, err
		}
		tag, err := s.pool.Exec(ctx, query, args...)
		if err != nil {
			return inserted, fmt.Errorf("insert articles: %w", err)
		}
		inserted += tag.RowsAffected()
	}
	return inserted, nil
}

func (s *ArticleStore) insert(label string, period time.Time, batch []harvest.ArticleRecord) (string, []any, error) {
	b := sq.StatementBuilder.PlaceholderFormat(sq.Dollar).
		Insert(s.table).
		Columns(Columns...).
		Suffix("ON CONFLICT (news_id) DO NOTHING")
	month := period.Format("2006-01")
	for _, rec := range batch {
		b = b.Values(rec.NewsID, label, month, rec.Date, rec.Title, rec.Content, rec.Status)
	}
	query, args, err := b.ToSql()
	if err != nil {
		return "", nil, fmt.Errorf("build insert: %w", err)
	}
	return query, args, nil
}
