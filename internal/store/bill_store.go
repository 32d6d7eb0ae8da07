package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jhunt/legisync/internal/model"
	"github.com/lib/pq"
)

// UpsertResult reports whether an upsert created a new row or refreshed an
// existing one.
type UpsertResult string

const (
	UpsertCreated UpsertResult = "created"
	UpsertUpdated UpsertResult = "updated"
)

// BillStore handles database operations for bill records.
type BillStore struct {
	db *sql.DB
}

// NewBillStore creates a new BillStore.
func NewBillStore(db *sql.DB) *BillStore {
	return &BillStore{db: db}
}

// Upsert inserts or updates a bill keyed by its natural bill_id. Re-running
// with identical data is safe and reports UpsertUpdated. The xmax trick
// distinguishes a fresh insert from a conflict update in one round trip.
func (s *BillStore) Upsert(ctx context.Context, b *model.Bill) (UpsertResult, error) {
	query := `
		INSERT INTO bills (bill_id, bill_type, bill_number, description, content,
		                   authors, coauthors, sponsors, cosponsors, subjects,
		                   status, last_action, last_action_date, last_update_ftp,
		                   committee_name, committee_status, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, now())
		ON CONFLICT (bill_id) DO UPDATE SET
			description      = EXCLUDED.description,
			content          = EXCLUDED.content,
			authors          = EXCLUDED.authors,
			coauthors        = EXCLUDED.coauthors,
			sponsors         = EXCLUDED.sponsors,
			cosponsors       = EXCLUDED.cosponsors,
			subjects         = EXCLUDED.subjects,
			status           = EXCLUDED.status,
			last_action      = EXCLUDED.last_action,
			last_action_date = EXCLUDED.last_action_date,
			last_update_ftp  = EXCLUDED.last_update_ftp,
			committee_name   = EXCLUDED.committee_name,
			committee_status = EXCLUDED.committee_status,
			updated_at       = now()
		RETURNING id, (xmax = 0) AS inserted
	`

	var inserted bool
	err := s.db.QueryRowContext(ctx, query,
		b.BillID,
		b.BillType,
		b.BillNumber,
		b.Description,
		nullString(b.Content),
		pq.Array(emptyIfNil(b.Authors)),
		pq.Array(emptyIfNil(b.Coauthors)),
		pq.Array(emptyIfNil(b.Sponsors)),
		pq.Array(emptyIfNil(b.Cosponsors)),
		pq.Array(emptyIfNil(b.Subjects)),
		b.Status,
		b.LastAction,
		nullTime(b.LastActionDate),
		nullTime(b.LastUpdateFTP),
		nullString(b.CommitteeName),
		nullString(b.CommitteeStatus),
	).Scan(&b.ID, &inserted)

	if err != nil {
		return "", fmt.Errorf("failed to upsert bill %s: %w", b.BillID, err)
	}
	if inserted {
		return UpsertCreated, nil
	}
	return UpsertUpdated, nil
}

// GetByBillID retrieves one bill by natural key; nil when absent.
func (s *BillStore) GetByBillID(ctx context.Context, billID string) (*model.Bill, error) {
	query := `
		SELECT id, bill_id, bill_type, bill_number, description, content,
		       authors, coauthors, sponsors, cosponsors, subjects,
		       status, last_action, last_action_date, last_update_ftp,
		       committee_name, committee_status, created_at, updated_at
		FROM bills
		WHERE bill_id = $1
	`

	var b model.Bill
	var content, committeeName, committeeStatus sql.NullString
	var lastActionDate, lastUpdateFTP sql.NullTime

	err := s.db.QueryRowContext(ctx, query, billID).Scan(
		&b.ID,
		&b.BillID,
		&b.BillType,
		&b.BillNumber,
		&b.Description,
		&content,
		pq.Array(&b.Authors),
		pq.Array(&b.Coauthors),
		pq.Array(&b.Sponsors),
		pq.Array(&b.Cosponsors),
		pq.Array(&b.Subjects),
		&b.Status,
		&b.LastAction,
		&lastActionDate,
		&lastUpdateFTP,
		&committeeName,
		&committeeStatus,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get bill %s: %w", billID, err)
	}

	b.Content = stringPtr(content)
	b.CommitteeName = stringPtr(committeeName)
	b.CommitteeStatus = stringPtr(committeeStatus)
	b.LastActionDate = timePtr(lastActionDate)
	b.LastUpdateFTP = timePtr(lastUpdateFTP)
	return &b, nil
}

// MaxBillNumber returns the highest persisted bill number for a type, 0 if
// none.
func (s *BillStore) MaxBillNumber(ctx context.Context, billType string) (int, error) {
	var max int
	query := `SELECT COALESCE(MAX(bill_number), 0) FROM bills WHERE bill_type = $1`
	if err := s.db.QueryRowContext(ctx, query, billType).Scan(&max); err != nil {
		return 0, fmt.Errorf("failed to get max bill number for %s: %w", billType, err)
	}
	return max, nil
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func stringPtr(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	return &s.String
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	return &t.Time
}
