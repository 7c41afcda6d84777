package rawstore

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"signalgate/internal/record"
)

func TestInsertBatchEmptyIsNoop(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := newWithConn(mock)
	require.NoError(t, s.InsertBatch(context.Background(), nil))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertBatchSingleRecord(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := newWithConn(mock)
	now := time.Now()
	r := record.TelemetryRecord{
		RequestID: "req-1", Path: "/api/users", Method: "GET",
		StatusCode: 200, LatencyMs: 42, ClientID: "client01", Timestamp: now,
	}

	mock.ExpectExec(`INSERT INTO telemetry_records`).
		WithArgs(r.RequestID, r.Path, r.Method, r.StatusCode, r.LatencyMs, r.ClientID,
			r.UpstreamService, r.RouteID, r.ErrorType, r.UserAgent, r.IPAddress, r.Timestamp).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.InsertBatch(context.Background(), []record.TelemetryRecord{r}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCountSince(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := newWithConn(mock)
	since := time.Now().Add(-time.Minute)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM telemetry_records`).
		WithArgs(since).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(7)))

	count, err := s.CountSince(context.Background(), since)
	require.NoError(t, err)
	require.Equal(t, int64(7), count)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTopEndpoints(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := newWithConn(mock)
	since := time.Now().Add(-time.Hour)

	mock.ExpectQuery(`SELECT path, method, COUNT\(\*\)`).
		WithArgs(since, 2).
		WillReturnRows(pgxmock.NewRows([]string{"path", "method", "request_count"}).
			AddRow("/api/users", "GET", int64(100)).
			AddRow("/api/orders", "POST", int64(50)))

	got, err := s.TopEndpoints(context.Background(), since, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "/api/users", got[0].Path)
	require.Equal(t, int64(100), got[0].RequestCount)
}
