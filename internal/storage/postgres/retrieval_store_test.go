package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/storefront-review-crawler/internal/crawler"
)

func TestStoreRetrievalInsertsRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewRetrievalStoreWithPool(mock, "")
	require.NoError(t, err)

	rec := crawler.RetrievalRecord{
		ID:           "r-1",
		AppID:        "app-1",
		URL:          "https://cafebazaar.ir/app/com.focus",
		Hash:         "abc123",
		BlobURI:      "gs://bucket/snapshots/app-1-abc123.html",
		Expansions:   4,
		CommentCount: 57,
		DurationMs:   12500,
		RetrievedAt:  time.Unix(1700000000, 0).UTC(),
	}

	mock.ExpectExec("INSERT INTO render_retrievals").
		WithArgs(rec.ID, rec.AppID, rec.URL, rec.Hash, rec.BlobURI, rec.Expansions, rec.CommentCount, rec.DurationMs, rec.RetrievedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.StoreRetrieval(context.Background(), rec))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreRetrievalPropagatesExecError(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewRetrievalStoreWithPool(mock, "audits")
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO audits").WillReturnError(errors.New("connection reset"))
	err = store.StoreRetrieval(context.Background(), crawler.RetrievalRecord{ID: "x"})
	require.ErrorContains(t, err, "insert retrieval")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreRetrievalValidation(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewRetrievalStoreWithPool(mock, "audits")
	require.NoError(t, err)
	require.Error(t, store.StoreRetrieval(context.Background(), crawler.RetrievalRecord{}))

	var nilStore *RetrievalStore
	require.Error(t, nilStore.StoreRetrieval(context.Background(), crawler.RetrievalRecord{ID: "x"}))
	nilStore.Close()
}

func TestEnsureSchema(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewRetrievalStoreWithPool(mock, "audits")
	require.NoError(t, err)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS audits").WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	require.NoError(t, store.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewRetrievalStoreValidation(t *testing.T) {
	t.Parallel()

	_, err := NewRetrievalStoreWithPool(nil, "x")
	require.Error(t, err)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	_, err = NewRetrievalStoreWithPool(mock, "bad;name")
	require.Error(t, err)

	_, err = NewRetrievalStore(context.Background(), RetrievalStoreConfig{})
	require.Error(t, err)
	_, err = NewRetrievalStore(context.Background(), RetrievalStoreConfig{DSN: "postgres://u@localhost/db", Table: "1bad"})
	require.Error(t, err)
}
