package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lightquark/maptracker/internal/database"
	"github.com/lightquark/maptracker/internal/models"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var (
	// ErrNotFound is returned when no location matches the requested id
	ErrNotFound = errors.New("location not found")
	// ErrDuplicateID is returned when an inserted record reuses a stored id
	ErrDuplicateID = errors.New("duplicate location id")
)

const locationColumns = `id, latitude, longitude, timestamp, altitude, msl_altitude,
		accuracy, speed, foreground, precision`

// LocationRepository handles database operations for location records
type LocationRepository struct {
	db *sql.DB
}

// NewLocationRepository creates a new location repository
func NewLocationRepository(db *sql.DB) *LocationRepository {
	return &LocationRepository{db: db}
}

// InsertBatch inserts all records in one transaction. Either every record
// is stored or none is.
func (r *LocationRepository) InsertBatch(records []models.LocationRecord) error {
	if len(records) == 0 {
		return nil
	}

	return database.Transaction(r.db, func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`INSERT INTO locations (` + locationColumns + `)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer stmt.Close()

		for _, rec := range records {
			_, err := stmt.Exec(
				rec.ID.String(), rec.Latitude, rec.Longitude, rec.TimestampMillis(),
				rec.Altitude, rec.MSLAltitude, rec.Accuracy, rec.Speed,
				rec.Foreground, rec.Precision,
			)
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: %s", ErrDuplicateID, rec.ID)
			}
			if err != nil {
				return fmt.Errorf("failed to insert location %s: %w", rec.ID, err)
			}
		}
		return nil
	})
}

// Update replaces the stored record with the same id. Returns ErrNotFound if
// no such record exists.
func (r *LocationRepository) Update(rec models.LocationRecord) error {
	query := `UPDATE locations
		SET latitude = ?, longitude = ?, timestamp = ?, altitude = ?, msl_altitude = ?,
		    accuracy = ?, speed = ?, foreground = ?, precision = ?
		WHERE id = ?`

	res, err := r.db.Exec(query,
		rec.Latitude, rec.Longitude, rec.TimestampMillis(), rec.Altitude, rec.MSLAltitude,
		rec.Accuracy, rec.Speed, rec.Foreground, rec.Precision, rec.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to update location %s: %w", rec.ID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Recent returns up to limit records ordered by timestamp, newest first
func (r *LocationRepository) Recent(limit int) ([]models.LocationRecord, error) {
	rows, err := r.db.Query(`SELECT `+locationColumns+`
		FROM locations
		ORDER BY timestamp DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query locations: %w", err)
	}
	defer rows.Close()

	records := make([]models.LocationRecord, 0, limit)
	for rows.Next() {
		rec, err := scanLocation(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate locations: %w", err)
	}

	return records, nil
}

// GetByID retrieves a single record
func (r *LocationRepository) GetByID(id uuid.UUID) (models.LocationRecord, error) {
	row := r.db.QueryRow(`SELECT `+locationColumns+` FROM locations WHERE id = ?`, id.String())
	rec, err := scanLocation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.LocationRecord{}, ErrNotFound
	}
	return rec, err
}

// Count returns the number of stored records
func (r *LocationRepository) Count() (int64, error) {
	var total int64
	if err := r.db.QueryRow(`SELECT COUNT(*) FROM locations`).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to count locations: %w", err)
	}
	return total, nil
}

// DeleteAll removes every record
func (r *LocationRepository) DeleteAll() error {
	if _, err := r.db.Exec(`DELETE FROM locations`); err != nil {
		return fmt.Errorf("failed to clear locations: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	switch sqliteErr.Code() {
	case sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_UNIQUE:
		return true
	}
	return false
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLocation(row rowScanner) (models.LocationRecord, error) {
	var (
		rec      models.LocationRecord
		id       string
		tsMillis int64
	)
	err := row.Scan(
		&id, &rec.Latitude, &rec.Longitude, &tsMillis, &rec.Altitude, &rec.MSLAltitude,
		&rec.Accuracy, &rec.Speed, &rec.Foreground, &rec.Precision,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return rec, err
		}
		return rec, fmt.Errorf("failed to scan location: %w", err)
	}

	rec.ID, err = uuid.Parse(id)
	if err != nil {
		return rec, fmt.Errorf("invalid location id %q: %w", id, err)
	}
	rec.Timestamp = time.UnixMilli(tsMillis).UTC()
	return rec, nil
}
