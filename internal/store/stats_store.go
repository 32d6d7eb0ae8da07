package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Stats summarizes the persisted bill corpus for the operator dashboard.
type Stats struct {
	TotalBills  int            `json:"total_bills"`
	WithContent int            `json:"with_content"`
	ByType      map[string]int `json:"by_type"`
	ByStatus    map[string]int `json:"by_status"`
	LastUpdated *time.Time     `json:"last_updated,omitempty"`
}

// StatsStore computes aggregate metrics over the bills table.
type StatsStore struct {
	db *sql.DB
}

// NewStatsStore creates a new StatsStore.
func NewStatsStore(db *sql.DB) *StatsStore {
	return &StatsStore{db: db}
}

// Collect gathers the current corpus statistics.
func (s *StatsStore) Collect(ctx context.Context) (*Stats, error) {
	stats := &Stats{
		ByType:   make(map[string]int),
		ByStatus: make(map[string]int),
	}

	var lastUpdated sql.NullTime
	summaryQuery := `
		SELECT COUNT(*),
		       COUNT(content),
		       MAX(updated_at)
		FROM bills
	`
	err := s.db.QueryRowContext(ctx, summaryQuery).Scan(
		&stats.TotalBills,
		&stats.WithContent,
		&lastUpdated,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to collect bill summary: %w", err)
	}
	stats.LastUpdated = timePtr(lastUpdated)

	typeQuery := `SELECT bill_type, COUNT(*) FROM bills GROUP BY bill_type`
	rows, err := s.db.QueryContext(ctx, typeQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to count bills by type: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var billType string
		var count int
		if err := rows.Scan(&billType, &count); err != nil {
			return nil, fmt.Errorf("failed to scan type count: %w", err)
		}
		stats.ByType[billType] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to count bills by type: %w", err)
	}

	statusQuery := `SELECT status, COUNT(*) FROM bills GROUP BY status`
	statusRows, err := s.db.QueryContext(ctx, statusQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to count bills by status: %w", err)
	}
	defer statusRows.Close()
	for statusRows.Next() {
		var status string
		var count int
		if err := statusRows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan status count: %w", err)
		}
		stats.ByStatus[status] = count
	}
	return stats, statusRows.Err()
}
