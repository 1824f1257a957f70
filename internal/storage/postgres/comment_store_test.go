package postgres

import (
	"context"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"
)

func newMockCommentStore(t *testing.T) (pgxmock.PgxPoolIface, *CommentStore) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	store, err := NewCommentStore(mock)
	require.NoError(t, err)
	return mock, store
}

func TestCommentStoreURLs(t *testing.T) {
	t.Parallel()

	mock, store := newMockCommentStore(t)

	rows := pgxmock.NewRows([]string{"url"}).
		AddRow("https://example.com/articles/a").
		AddRow("https://example.com/articles/b")
	mock.ExpectQuery("SELECT DISTINCT url FROM article_comments").WillReturnRows(rows)

	urls, err := store.URLs(context.Background())
	require.NoError(t, err)
	require.Len(t, urls, 2)
	require.True(t, urls["https://example.com/articles/a"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCommentStoreAppendChunks(t *testing.T) {
	t.Parallel()

	mock, store := newMockCommentStore(t)

	// 23 comments split into chunks of 10, 10, and 3, continuing after the
	// URL's existing chunks.
	comments := make([]string, 23)
	for i := range comments {
		comments[i] = "コメント"
	}

	url := "https://example.com/articles/a"
	mock.ExpectQuery(`SELECT COALESCE\(MAX\(chunk_index\) \+ 1, 0\)`).
		WithArgs(url).
		WillReturnRows(pgxmock.NewRows([]string{"coalesce"}).AddRow(2))

	mock.ExpectExec("INSERT INTO article_comments").
		WithArgs(url, 2, comments[0:10]).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO article_comments").
		WithArgs(url, 3, comments[10:20]).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO article_comments").
		WithArgs(url, 4, comments[20:23]).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.Append(context.Background(), url, comments))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCommentStoreAppendEmptyNoop(t *testing.T) {
	t.Parallel()

	mock, store := newMockCommentStore(t)

	require.NoError(t, store.Append(context.Background(), "https://example.com/articles/a", nil))
	require.NoError(t, mock.ExpectationsWereMet())
}
