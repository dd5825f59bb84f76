package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Shoffly/dealer-visits/internal/models"
)

// GetCarLocations returns the wholesale fleet snapshot for the given day.
func (db *DB) GetCarLocations(ctx context.Context, day time.Time) ([]models.CarStatus, error) {
	query := `SELECT car_name, location_stage_name, allocation_category, current_status, date_key
              FROM car_status
              WHERE allocation_category = 'Wholesale' AND date(date_key) = ?
              ORDER BY car_name`

	rows, err := db.QueryContext(ctx, query, day.Format("2006-01-02"))
	if err != nil {
		return nil, fmt.Errorf("failed to get car locations: %w", err)
	}
	defer rows.Close()

	var cars []models.CarStatus
	for rows.Next() {
		var c models.CarStatus
		if err := rows.Scan(&c.CarName, &c.Location, &c.Allocation, &c.CurrentState, &c.DateKey); err != nil {
			return nil, fmt.Errorf("failed to scan car status: %w", err)
		}
		cars = append(cars, c)
	}
	return cars, rows.Err()
}

// GetCarLocation resolves a single car's current location for the visit
// snapshot. Missing cars are not an error; ok is false.
func (db *DB) GetCarLocation(ctx context.Context, carName string, day time.Time) (string, bool, error) {
	query := `SELECT location_stage_name FROM car_status
              WHERE car_name = ? AND date(date_key) = ?`

	var location string
	err := db.QueryRowContext(ctx, query, carName, day.Format("2006-01-02")).Scan(&location)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get car location: %w", err)
	}
	return location, true, nil
}

// GetCarNames lists cars eligible for a visit: wholesale allocation, currently
// published or being sold.
func (db *DB) GetCarNames(ctx context.Context, day time.Time) ([]string, error) {
	query := `SELECT DISTINCT car_name FROM car_status
              WHERE allocation_category = 'Wholesale'
              AND current_status IN ('Published', 'Being Sold')
              AND date(date_key) = ?
              ORDER BY car_name`

	rows, err := db.QueryContext(ctx, query, day.Format("2006-01-02"))
	if err != nil {
		return nil, fmt.Errorf("failed to get car names: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan car name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (db *DB) GetDealers(ctx context.Context) ([]models.Dealer, error) {
	query := `SELECT dealer_code, dealer_name, phone FROM dealers ORDER BY dealer_name`

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get dealers: %w", err)
	}
	defer rows.Close()

	var dealers []models.Dealer
	for rows.Next() {
		var (
			d     models.Dealer
			phone sql.NullString
		)
		if err := rows.Scan(&d.Code, &d.Name, &phone); err != nil {
			return nil, fmt.Errorf("failed to scan dealer: %w", err)
		}
		d.Phone = phone.String
		dealers = append(dealers, d)
	}
	return dealers, rows.Err()
}

// GetMovementQueue returns in-progress movement requests, newest first.
func (db *DB) GetMovementQueue(ctx context.Context) ([]models.MovementRequest, error) {
	query := `SELECT request_id, dealer_name, car_name, request_type, request_status,
                     buy_now_type, failure_reason, contacted_user, contacted_at, created_at
              FROM movement_requests
              WHERE request_status = 'Inprogress'
              ORDER BY created_at DESC`

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get movement queue: %w", err)
	}
	defer rows.Close()

	var requests []models.MovementRequest
	for rows.Next() {
		var (
			m             models.MovementRequest
			requestType   sql.NullString
			buyNowType    sql.NullString
			failureReason sql.NullString
			contactedUser sql.NullString
			contactedAt   sql.NullTime
		)
		err := rows.Scan(
			&m.RequestID, &m.DealerName, &m.CarName, &requestType, &m.RequestStatus,
			&buyNowType, &failureReason, &contactedUser, &contactedAt, &m.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan movement request: %w", err)
		}
		m.RequestType = requestType.String
		m.BuyNowType = buyNowType.String
		m.FailureReason = failureReason.String
		m.ContactedUser = contactedUser.String
		if contactedAt.Valid {
			t := contactedAt.Time
			m.ContactedAt = &t
		}
		requests = append(requests, m)
	}
	return requests, rows.Err()
}

// UpsertCarStatus writes one fleet snapshot row. Used by the warehouse feed.
func (db *DB) UpsertCarStatus(ctx context.Context, c models.CarStatus) error {
	query := `INSERT INTO car_status (car_name, location_stage_name, allocation_category, current_status, date_key)
              VALUES (?, ?, ?, ?, ?)
              ON CONFLICT(car_name, date_key) DO UPDATE SET
                  location_stage_name = excluded.location_stage_name,
                  allocation_category = excluded.allocation_category,
                  current_status = excluded.current_status`

	_, err := db.ExecContext(ctx, query,
		c.CarName, c.Location, c.Allocation, c.CurrentState, c.DateKey.Format("2006-01-02"))
	if err != nil {
		return fmt.Errorf("failed to upsert car status: %w", err)
	}
	return nil
}

// UpsertMovementRequest writes one movement queue row. Used by the warehouse feed.
func (db *DB) UpsertMovementRequest(ctx context.Context, m models.MovementRequest) error {
	query := `INSERT INTO movement_requests (request_id, dealer_name, car_name, request_type,
                  request_status, buy_now_type, failure_reason, contacted_user, contacted_at, created_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
              ON CONFLICT(request_id) DO UPDATE SET
                  request_status = excluded.request_status,
                  failure_reason = excluded.failure_reason,
                  contacted_user = excluded.contacted_user,
                  contacted_at = excluded.contacted_at`

	var contactedAt interface{}
	if m.ContactedAt != nil {
		contactedAt = *m.ContactedAt
	}

	_, err := db.ExecContext(ctx, query,
		m.RequestID, m.DealerName, m.CarName, nullString(m.RequestType),
		m.RequestStatus, nullString(m.BuyNowType), nullString(m.FailureReason),
		nullString(m.ContactedUser), contactedAt, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert movement request: %w", err)
	}
	return nil
}
