package pipeline

import (
	"context"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guardianai/llmguard/internal/telemetry"
)

func TestRecordStoreSave(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	record := telemetry.Record{
		TraceID:      "trace-store",
		SpanID:       "span-store",
		Timestamp:    time.Now().UTC(),
		Model:        "gemini-pro",
		ServiceName:  "demo-app",
		Environment:  "development",
		InputTokens:  10,
		OutputTokens: 20,
		LatencyMS:    150,
		CostUSD:      0.0003,
		Status:       "success",
	}
	result := ProcessingResult{AlertsGenerated: 1}

	mock.ExpectExec("INSERT INTO telemetry_records").
		WithArgs(
			"trace-store", "span-store", record.Timestamp, "gemini-pro", "demo-app",
			"development", 10, 20, 150.0, 0.0003, "success", 0, 0, 1,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	store := NewRecordStore(mock)
	require.NoError(t, store.Save(context.Background(), record, result))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordStoreRecentTraceIDs(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT trace_id FROM telemetry_records").
		WithArgs(2).
		WillReturnRows(pgxmock.NewRows([]string{"trace_id"}).AddRow("t-2").AddRow("t-1"))

	store := NewRecordStore(mock)
	ids, err := store.RecentTraceIDs(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"t-2", "t-1"}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}
