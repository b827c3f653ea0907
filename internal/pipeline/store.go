package pipeline

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/guardianai/llmguard/internal/telemetry"
)

type db interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// RecordStore persists processed telemetry records so the dashboard and the
// webhook context lookup can read recent traffic.
type RecordStore struct {
	db db
}

// NewRecordStore initializes a store backed by pgx.
func NewRecordStore(db db) *RecordStore {
	if db == nil {
		panic("pipeline: db required")
	}
	return &RecordStore{db: db}
}

// Save upserts one record with its processing outcome counts.
func (s *RecordStore) Save(ctx context.Context, record telemetry.Record, result ProcessingResult) error {
	query := `
		INSERT INTO telemetry_records (trace_id, span_id, recorded_at, model, service_name,
			environment, input_tokens, output_tokens, latency_ms, cost_usd, status,
			threat_count, anomaly_count, alerts_generated)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (trace_id) DO NOTHING
	`
	if _, err := s.db.Exec(ctx, query,
		record.TraceID,
		record.SpanID,
		record.Timestamp,
		record.Model,
		record.ServiceName,
		record.Environment,
		record.InputTokens,
		record.OutputTokens,
		record.LatencyMS,
		record.CostUSD,
		record.Status,
		len(result.Threats),
		len(result.Anomalies),
		result.AlertsGenerated,
	); err != nil {
		return fmt.Errorf("pipeline: record insert failed: %w", err)
	}
	return nil
}

// RecentTraceIDs returns the trace ids of the newest records, newest first.
func (s *RecordStore) RecentTraceIDs(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.Query(ctx,
		`SELECT trace_id FROM telemetry_records ORDER BY recorded_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("pipeline: recent traces query failed: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("pipeline: recent traces scan failed: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pipeline: recent traces query failed: %w", err)
	}
	return ids, nil
}
