package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/news-harvester/internal/assemble"
	"github.com/JakeFAU/news-harvester/internal/harvest"
)

type staticLoader struct {
	records []harvest.ArticleRecord
	err     error
}

func (l staticLoader) Load(context.Context, assemble.Result) ([]harvest.ArticleRecord, error) {
	return l.records, l.err
}

var january = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func record(id string) harvest.ArticleRecord {
	return harvest.ArticleRecord{Date: "2024-01-02", Title: "t" + id, Content: "c" + id, NewsID: id, Status: 200}
}

func rowArgs(label string, rec harvest.ArticleRecord) []any {
	return []any{rec.NewsID, label, "2024-01", rec.Date, rec.Title, rec.Content, rec.Status}
}

func TestDeliverInsertsInBatches(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	recs := []harvest.ArticleRecord{record("1"), record("2"), record("3")}
	store, err := NewArticleStoreWithPool(mock, "articles", 2, staticLoader{records: recs}, nil)
	require.NoError(t, err)

	first := append(rowArgs("kbs", recs[0]), rowArgs("kbs", recs[1])...)
	mock.ExpectExec(`INSERT INTO articles \(news_id,label,period,published,title,content,status\) VALUES .* ON CONFLICT \(news_id\) DO NOTHING`).
		WithArgs(first...).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectExec("INSERT INTO articles").
		WithArgs(rowArgs("kbs", recs[2])...).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	require.NoError(t, store.Deliver(context.Background(), assemble.Result{Label: "kbs", Month: january}))
	require.NoError(t, mock.ExpectationsWereMet())
	assert.Equal(t, "postgres", store.Name())
}

func TestStoreArticlesPropagatesExecErrors(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewArticleStoreWithPool(mock, "", 0, staticLoader{}, nil)
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO articles").WillReturnError(errors.New("relation does not exist"))
	n, err := store.StoreArticles(context.Background(), "kbs", january, []harvest.ArticleRecord{record("1")})
	require.Error(t, err)
	assert.Zero(t, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreArticlesEmptyIsNoop(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewArticleStoreWithPool(mock, "articles", 10, staticLoader{}, nil)
	require.NoError(t, err)
	n, err := store.StoreArticles(context.Background(), "kbs", january, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeliverPropagatesLoadErrors(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewArticleStoreWithPool(mock, "articles", 10, staticLoader{err: errors.New("gone")}, nil)
	require.NoError(t, err)
	require.Error(t, store.Deliver(context.Background(), assemble.Result{Path: "x"}))
}

func TestConstructorValidation(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewArticleStoreWithPool(nil, "articles", 0, staticLoader{}, nil)
	require.Error(t, err)
	_, err = NewArticleStoreWithPool(mock, "articles", 0, nil, nil)
	require.Error(t, err)
	_, err = NewArticleStoreWithPool(mock, "drop table;", 0, staticLoader{}, nil)
	require.Error(t, err)
	_, err = NewArticleStore(context.Background(), Config{}, staticLoader{}, nil)
	require.Error(t, err)
}
