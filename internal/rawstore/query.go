package rawstore

import (
	"context"
	"fmt"
	"time"
)

// EndpointVolume is one row of the top-endpoints query.
type EndpointVolume struct {
	Path         string `json:"path"`
	Method       string `json:"method"`
	RequestCount int64  `json:"requestCount"`
}

// CountSince returns the number of records recorded at or after since,
// backing the RPS query when the caller wants a raw-store figure
// independent of the in-memory engine's sliding window.
func (s *Store) CountSince(ctx context.Context, since time.Time) (int64, error) {
	var count int64
	err := s.conn.QueryRow(ctx,
		`SELECT COUNT(*) FROM telemetry_records WHERE recorded_at >= $1`, since,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count telemetry since %s: %w", since, err)
	}
	return count, nil
}

// TopEndpoints returns the limit highest-volume (path, method) pairs
// recorded at or after since.
func (s *Store) TopEndpoints(ctx context.Context, since time.Time, limit int) ([]EndpointVolume, error) {
	rows, err := s.conn.Query(ctx,
		`SELECT path, method, COUNT(*) AS request_count
		 FROM telemetry_records
		 WHERE recorded_at >= $1
		 GROUP BY path, method
		 ORDER BY request_count DESC
		 LIMIT $2`, since, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("top endpoints query: %w", err)
	}
	defer rows.Close()

	var out []EndpointVolume
	for rows.Next() {
		var v EndpointVolume
		if err := rows.Scan(&v.Path, &v.Method, &v.RequestCount); err != nil {
			return nil, fmt.Errorf("scan top endpoint row: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
