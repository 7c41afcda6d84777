package rawstore

import (
	"context"
	"fmt"
	"strings"

	"signalgate/internal/record"
)

const insertCols = 12

// InsertBatch writes records as a single multi-row INSERT, ignoring rows
// whose request_id already exists (duplicate delivery from an at-least-once
// emitter retry) via ON CONFLICT (request_id) DO NOTHING.
func (s *Store) InsertBatch(ctx context.Context, records []record.TelemetryRecord) error {
	if len(records) == 0 {
		return nil
	}

	placeholders := make([]string, len(records))
	args := make([]any, 0, len(records)*insertCols)

	for i, r := range records {
		placeholders[i] = placeholderRow(i*insertCols+1, insertCols)
		args = append(args,
			r.RequestID, r.Path, r.Method, r.StatusCode, r.LatencyMs, r.ClientID,
			r.UpstreamService, r.RouteID, r.ErrorType, r.UserAgent, r.IPAddress,
			r.Timestamp,
		)
	}

	query := `INSERT INTO telemetry_records
		(request_id, path, method, status_code, latency_ms, client_id,
		 upstream_service, route_id, error_type, user_agent, ip_address, recorded_at)
		VALUES ` + strings.Join(placeholders, ", ") + `
		ON CONFLICT (request_id) DO NOTHING`

	_, err := s.conn.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("insert telemetry batch: %w", err)
	}
	return nil
}
