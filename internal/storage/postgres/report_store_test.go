package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/wikititles-crawler/internal/crawler"
)

func TestSaveReportInsertsRows(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewWithPool(mock, "namespace_counts")
	require.NoError(t, err)

	finished := time.Unix(1700000000, 0).UTC()
	report := crawler.Report{
		RunID:      "run-1",
		Site:       "https://www.mediawiki.org/w/api.php?origin=*",
		FinishedAt: finished,
		Results: []crawler.ProcessingResult{
			{Namespace: 0, Amount: 200},
			{Namespace: 1, Amount: 10000},
		},
		Failures: []crawler.Failure{{Namespace: 2, Kind: crawler.FailureCrash, Err: "boom"}},
	}

	mock.ExpectExec("INSERT INTO namespace_counts").
		WithArgs("run-1", report.Site, 0, 200, "ok", "", finished).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO namespace_counts").
		WithArgs("run-1", report.Site, 1, 10000, "ok", "", finished).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO namespace_counts").
		WithArgs("run-1", report.Site, 2, 0, "failed", "boom", finished).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	uri, err := store.SaveReport(context.Background(), report)
	require.NoError(t, err)
	require.Equal(t, "postgres://namespace_counts/run-1", uri)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveReportPropagatesExecError(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewWithPool(mock, "")
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO namespace_counts").
		WillReturnError(errors.New("relation does not exist"))

	_, err = store.SaveReport(context.Background(), crawler.Report{
		RunID:   "run-2",
		Results: []crawler.ProcessingResult{{Namespace: 0, Amount: 1}},
	})
	require.ErrorContains(t, err, "insert namespace 0")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveReportRequiresRunID(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewWithPool(mock, "")
	require.NoError(t, err)

	_, err = store.SaveReport(context.Background(), crawler.Report{})
	require.Error(t, err)
}

func TestNewWithPoolValidation(t *testing.T) {
	t.Parallel()

	_, err := NewWithPool(nil, "t")
	require.Error(t, err)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	_, err = NewWithPool(mock, "bad;table")
	require.Error(t, err)
}

func TestNewRequiresDSN(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), Config{})
	require.Error(t, err)
}
