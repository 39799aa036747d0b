package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"orderbridge/internal/model"
)

func TestPostgresSaveOutcome(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("INSERT INTO routing_outcomes").
		WithArgs("o-1", true, "FO-1", nil, nil, nil, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	p := NewPostgresWithDB(mock)
	out := model.RoutingOutcome{OrderID: "o-1", Success: true, ProviderOrderID: "FO-1", CompletedAt: time.Now()}
	require.NoError(t, p.SaveOutcome(context.Background(), out))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresListOutcomesSeqCursor(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	p := NewPostgresWithDB(mock)
	ctx := context.Background()

	// two attempts of the same order: cursor must still advance past both
	p1, _ := json.Marshal(model.RoutingOutcome{OrderID: "o-1", Success: false})
	p2, _ := json.Marshal(model.RoutingOutcome{OrderID: "o-1", Success: true})

	mock.ExpectQuery("SELECT seq, payload FROM routing_outcomes").
		WithArgs(int64(0), 2).
		WillReturnRows(pgxmock.NewRows([]string{"seq", "payload"}).
			AddRow(int64(1), p1).AddRow(int64(2), p2))

	out, next, err := p.ListOutcomes(ctx, "", 1)
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.False(t, out[0].Success)
	require.Equal(t, "1", next)

	mock.ExpectQuery("SELECT seq, payload FROM routing_outcomes").
		WithArgs(int64(1), 2).
		WillReturnRows(pgxmock.NewRows([]string{"seq", "payload"}).
			AddRow(int64(2), p2))

	out, next, err = p.ListOutcomes(ctx, next, 1)
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.True(t, out[0].Success)
	require.Empty(t, next)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresMarkTrackingSynced(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("UPDATE tracking_records").
		WithArgs("o-1", "1Z", "UPS").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	p := NewPostgresWithDB(mock)
	require.NoError(t, p.MarkTrackingSynced(context.Background(), "o-1", "1Z", "UPS"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresMarkTrackingSyncedNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("UPDATE tracking_records").
		WithArgs("nope", "1Z", "UPS").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	p := NewPostgresWithDB(mock)
	require.ErrorIs(t, p.MarkTrackingSynced(context.Background(), "nope", "1Z", "UPS"), ErrNotFound)
}

func TestPostgresGetTrackingRecordNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT source_order_id").
		WithArgs("nope").
		WillReturnError(context.Canceled)

	p := NewPostgresWithDB(mock)
	_, err = p.GetTrackingRecord(context.Background(), "nope")
	require.Error(t, err)
}

func TestPostgresListUnsynced(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Now()
	rows := pgxmock.NewRows([]string{
		"source_order_id", "package_id", "provider_order_id", "sync_attempts",
		"last_attempt_at", "synced", "tracking_number", "carrier_name", "last_error",
		"created_at", "updated_at",
	}).AddRow("o-1", "pkg-1", "FO-1", 2, now, false, "", "", "timeout", now, now)

	mock.ExpectQuery("SELECT source_order_id").WithArgs(50).WillReturnRows(rows)

	p := NewPostgresWithDB(mock)
	recs, err := p.ListUnsyncedTrackingRecords(context.Background(), 50)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, "o-1", recs[0].SourceOrderID)
	require.Equal(t, 2, recs[0].SyncAttempts)
	require.Equal(t, "timeout", recs[0].LastError)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRecordTrackingFailure(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("UPDATE tracking_records").
		WithArgs("o-1", "push rejected").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	p := NewPostgresWithDB(mock)
	require.NoError(t, p.RecordTrackingFailure(context.Background(), "o-1", "push rejected"))
	require.NoError(t, mock.ExpectationsWereMet())
}
