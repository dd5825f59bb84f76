package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/Shoffly/dealer-visits/internal/models"
)

const (
	confirmNotesSeparator = "\n--- Confirmation Notes ---\n"
	cancelNotesSeparator  = "\n--- Cancelled by %s ---\n"
)

const visitColumns = `id, car_name, request_id, dealer_name, dealer_phone_number,
                 visit_date, time_slot, car_location, agent_name, status, notes,
                 opened_by, opened_at, confirmed_by, confirmed_at, created_at, updated_at`

func (db *DB) InsertVisit(ctx context.Context, visit *models.Visit) error {
	query := `INSERT INTO visits (
                id, car_name, request_id, dealer_name, dealer_phone_number,
                visit_date, time_slot, car_location, agent_name, status, notes,
                opened_by, opened_at, created_at
            ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := db.ExecContext(ctx, query,
		visit.ID,
		visit.CarName,
		nullString(visit.RequestID),
		visit.DealerName,
		visit.DealerPhoneNumber,
		visit.VisitDate.Format("2006-01-02"),
		visit.TimeSlot,
		visit.CarLocation,
		visit.AgentName,
		visit.Status,
		nullString(visit.Notes),
		visit.OpenedBy,
		visit.OpenedAt,
		visit.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert visit: %w", err)
	}
	return nil
}

// ConfirmVisit flips an open visit to confirmed in a single conditional
// update. The status predicate makes the check-and-set atomic: a racing
// confirm or cancel sees zero affected rows. The optional note is appended
// under a labelled separator inside the same statement.
func (db *DB) ConfirmVisit(ctx context.Context, id, confirmedBy, note string, at time.Time) (int64, error) {
	query := `UPDATE visits SET
                status = 'confirmed',
                confirmed_by = ?,
                confirmed_at = ?,
                updated_at = ?,
                notes = CASE
                    WHEN ? = '' THEN notes
                    WHEN notes IS NULL OR notes = '' THEN ?
                    ELSE notes || ?
                END
              WHERE id = ? AND status = 'open'`

	block := confirmNotesSeparator + note
	result, err := db.ExecContext(ctx, query,
		confirmedBy, at, at,
		note, strings.TrimPrefix(block, "\n"), block,
		id,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to confirm visit: %w", err)
	}
	return result.RowsAffected()
}

// CancelVisit flips an open or confirmed visit to cancelled. Same atomicity
// contract as ConfirmVisit; cancelled rows stay out of reach for both.
func (db *DB) CancelVisit(ctx context.Context, id, cancelledBy, reason string, at time.Time) (int64, error) {
	query := `UPDATE visits SET
                status = 'cancelled',
                updated_at = ?,
                notes = CASE
                    WHEN ? = '' THEN notes
                    WHEN notes IS NULL OR notes = '' THEN ?
                    ELSE notes || ?
                END
              WHERE id = ? AND status IN ('open', 'confirmed')`

	block := fmt.Sprintf(cancelNotesSeparator, cancelledBy) + reason

	result, err := db.ExecContext(ctx, query,
		at,
		reason, strings.TrimPrefix(block, "\n"), block,
		id,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to cancel visit: %w", err)
	}
	return result.RowsAffected()
}

func (db *DB) GetVisit(ctx context.Context, id string) (*models.Visit, error) {
	query := `SELECT ` + visitColumns + ` FROM visits WHERE id = ?`

	visit, err := scanVisit(db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get visit: %w", err)
	}
	return visit, nil
}

// GetVisitsByStatus returns visits in any of the given statuses, most recently
// opened first.
func (db *DB) GetVisitsByStatus(ctx context.Context, statuses ...string) ([]*models.Visit, error) {
	if len(statuses) == 0 {
		return nil, fmt.Errorf("at least one status is required")
	}

	placeholders := strings.Repeat("?, ", len(statuses)-1) + "?"
	query := `SELECT ` + visitColumns + ` FROM visits
              WHERE status IN (` + placeholders + `)
              ORDER BY opened_at DESC`

	args := make([]interface{}, len(statuses))
	for i, s := range statuses {
		args[i] = s
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query visits by status: %w", err)
	}
	defer rows.Close()

	var visits []*models.Visit
	for rows.Next() {
		visit, err := scanVisit(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan visit: %w", err)
		}
		visits = append(visits, visit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read visits: %w", err)
	}
	return visits, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanVisit(row rowScanner) (*models.Visit, error) {
	var (
		v           models.Visit
		requestID   sql.NullString
		notes       sql.NullString
		confirmedBy sql.NullString
		confirmedAt sql.NullTime
		updatedAt   sql.NullTime
	)

	err := row.Scan(
		&v.ID, &v.CarName, &requestID, &v.DealerName, &v.DealerPhoneNumber,
		&v.VisitDate, &v.TimeSlot, &v.CarLocation, &v.AgentName, &v.Status, &notes,
		&v.OpenedBy, &v.OpenedAt, &confirmedBy, &confirmedAt, &v.CreatedAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	v.RequestID = requestID.String
	v.Notes = notes.String
	v.ConfirmedBy = confirmedBy.String
	if confirmedAt.Valid {
		t := confirmedAt.Time
		v.ConfirmedAt = &t
	}
	if updatedAt.Valid {
		t := updatedAt.Time
		v.UpdatedAt = &t
	}
	return &v, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
