package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/neomorfeo/rehome/internal/domain"
	"github.com/pressly/goose/v3"

	_ "modernc.org/sqlite" // Register SQLite driver.
)

//go:embed migrations/*.sql
var migrations embed.FS

// Compile-time check: Store implements domain.Store.
var _ domain.Store = (*Store)(nil)

// Store implements domain.Store using SQLite.
type Store struct {
	db *sql.DB
}

// New opens a SQLite database, runs migrations, and returns a ready store.
func New(dataSourceName string) (*Store, error) {
	db, err := sql.Open("sqlite", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// One connection serializes writers (no SQLITE_BUSY) and keeps
	// ":memory:" databases from splitting across pooled connections.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}

	// Enable foreign keys (off by default in SQLite).
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	store, err := NewFromDB(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// NewFromDB wraps an existing database connection, runs migrations, and returns a ready store.
// Use this when the *sql.DB has been pre-configured (e.g., with otelsql instrumentation).
func NewFromDB(db *sql.DB) (*Store, error) {
	if err := runMigrations(db); err != nil {
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection for use by other adapters (e.g., river).
func (s *Store) DB() *sql.DB {
	return s.db
}

func runMigrations(db *sql.DB) error {
	goose.SetBaseFS(migrations)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("setting goose dialect: %w", err)
	}

	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	return nil
}

// timeFormat is fixed-width so stored timestamps sort lexicographically.
const timeFormat = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeFormat)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(timeFormat, s)
}

const listingColumns = `id, owner_id, name, species, breed, sex, age_months, description, location,
	moderation_status, moderation_note, moderator_id, moderated_at,
	availability_status, adopter_id, adopted_at, version, created_at, updated_at`

const applicationColumns = `id, listing_id, applicant_id, status, message, applied_at, decided_at, decider_id`

func (s *Store) CreateListing(ctx context.Context, l domain.Listing) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO listings (`+listingColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.OwnerID, l.Name, l.Species, l.Breed, l.Sex, l.AgeMonths, l.Description, l.Location,
		string(l.ModerationStatus), l.ModerationNote, l.ModeratorID, formatTime(l.ModeratedAt),
		string(l.AvailabilityStatus), l.AdopterID, formatTime(l.AdoptedAt), l.Version,
		formatTime(l.CreatedAt), formatTime(l.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return &domain.ConflictError{ListingID: l.ID, Reason: "listing already exists"}
		}
		return fmt.Errorf("inserting listing: %w", err)
	}
	return nil
}

func (s *Store) GetListing(ctx context.Context, id string) (domain.Listing, error) {
	l, err := scanListing(s.db.QueryRowContext(ctx,
		`SELECT `+listingColumns+` FROM listings WHERE id = ?`, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Listing{}, domain.ErrListingNotFound
	}
	return l, err
}

func (s *Store) ListListings(ctx context.Context, filter domain.ListingFilter) ([]domain.Listing, error) {
	query := `SELECT ` + listingColumns + ` FROM listings`
	var where []string
	var args []any

	if filter.OwnerID != "" {
		where = append(where, `owner_id = ?`)
		args = append(args, filter.OwnerID)
	}
	if filter.Moderation != nil {
		where = append(where, `moderation_status = ?`)
		args = append(args, string(*filter.Moderation))
	}
	if filter.Availability != nil {
		where = append(where, `availability_status = ?`)
		args = append(args, string(*filter.Availability))
	}
	if filter.Species != "" {
		where = append(where, `species = ?`)
		args = append(args, filter.Species)
	}
	if filter.Location != "" {
		where = append(where, `location = ? COLLATE NOCASE`)
		args = append(args, filter.Location)
	}

	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, ` AND `)
	}

	if filter.OldestFirst {
		query += ` ORDER BY created_at ASC, id ASC`
	} else {
		query += ` ORDER BY created_at DESC, id ASC`
	}

	// SQLite requires LIMIT before OFFSET; -1 means unbounded.
	if filter.Limit > 0 || filter.Offset > 0 {
		limit := -1
		if filter.Limit > 0 {
			limit = filter.Limit
		}
		query += ` LIMIT ? OFFSET ?`
		args = append(args, limit, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing listings: %w", err)
	}
	defer rows.Close()

	listings := []domain.Listing{}
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, err
		}
		listings = append(listings, l)
	}

	return listings, rows.Err()
}

func (s *Store) DeleteListing(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning delete: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	// Delete children explicitly as well, so the cascade does not depend on
	// the connection having foreign keys enabled.
	if _, err := tx.ExecContext(ctx, `DELETE FROM applications WHERE listing_id = ?`, id); err != nil {
		return fmt.Errorf("deleting applications: %w", err)
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM listings WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting listing: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return domain.ErrListingNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing delete: %w", err)
	}
	return nil
}

func (s *Store) GetApplication(ctx context.Context, listingID, applicationID string) (domain.Application, error) {
	a, err := scanApplication(s.db.QueryRowContext(ctx,
		`SELECT `+applicationColumns+` FROM applications WHERE id = ? AND listing_id = ?`,
		applicationID, listingID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Application{}, domain.ErrApplicationNotFound
	}
	return a, err
}

func (s *Store) ListApplications(ctx context.Context, filter domain.ApplicationFilter) ([]domain.Application, error) {
	query := `SELECT ` + applicationColumns + ` FROM applications`
	var where []string
	var args []any

	if filter.ListingID != "" {
		where = append(where, `listing_id = ?`)
		args = append(args, filter.ListingID)
	}
	if filter.ApplicantID != "" {
		where = append(where, `applicant_id = ?`)
		args = append(args, filter.ApplicantID)
	}
	if filter.ActiveOnly {
		where = append(where, `status IN ('pending', 'reviewing')`)
	}
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, ` AND `)
	}
	query += ` ORDER BY applied_at ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing applications: %w", err)
	}
	defer rows.Close()

	apps := []domain.Application{}
	for rows.Next() {
		a, err := scanApplication(rows)
		if err != nil {
			return nil, err
		}
		apps = append(apps, a)
	}

	return apps, rows.Err()
}

// Commit writes the listing and its application rows in one transaction,
// guarded by a compare-and-swap on the listing version.
func (s *Store) Commit(ctx context.Context, m domain.Mutation) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning commit: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	l := m.Listing
	result, err := tx.ExecContext(ctx,
		`UPDATE listings SET
			name = ?, species = ?, breed = ?, sex = ?, age_months = ?, description = ?, location = ?,
			moderation_status = ?, moderation_note = ?, moderator_id = ?, moderated_at = ?,
			availability_status = ?, adopter_id = ?, adopted_at = ?,
			version = ?, updated_at = ?
		 WHERE id = ? AND version = ?`,
		l.Name, l.Species, l.Breed, l.Sex, l.AgeMonths, l.Description, l.Location,
		string(l.ModerationStatus), l.ModerationNote, l.ModeratorID, formatTime(l.ModeratedAt),
		string(l.AvailabilityStatus), l.AdopterID, formatTime(l.AdoptedAt),
		l.Version, formatTime(l.UpdatedAt),
		l.ID, m.ExpectedVersion,
	)
	if err != nil {
		return fmt.Errorf("updating listing: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM listings WHERE id = ?`, l.ID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrListingNotFound
		}
		if err != nil {
			return fmt.Errorf("checking listing: %w", err)
		}
		return domain.ErrVersionConflict
	}

	for _, a := range m.Insert {
		if a.ListingID != l.ID {
			return &domain.ConflictError{ListingID: l.ID, Reason: "application belongs to another listing"}
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO applications (`+applicationColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			a.ID, a.ListingID, a.ApplicantID, string(a.Status), a.Message,
			formatTime(a.AppliedAt), formatTime(a.DecidedAt), a.DeciderID,
		)
		if err != nil {
			return applicationWriteError(err, l.ID, a)
		}
	}

	for _, a := range m.Update {
		result, err := tx.ExecContext(ctx,
			`UPDATE applications SET status = ?, message = ?, decided_at = ?, decider_id = ?
			 WHERE id = ? AND listing_id = ?`,
			string(a.Status), a.Message, formatTime(a.DecidedAt), a.DeciderID,
			a.ID, l.ID,
		)
		if err != nil {
			return applicationWriteError(err, l.ID, a)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("checking rows affected: %w", err)
		}
		if rows == 0 {
			return domain.ErrApplicationNotFound
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing mutation: %w", err)
	}
	return nil
}

func applicationWriteError(err error, listingID string, a domain.Application) error {
	switch {
	case isUniqueViolation(err) && strings.Contains(err.Error(), "applicant_id"):
		return &domain.DuplicateError{ListingID: listingID, ApplicantID: a.ApplicantID}
	case isUniqueViolation(err) && strings.Contains(err.Error(), "applications.id"):
		return &domain.ConflictError{ListingID: listingID, Reason: "application already exists"}
	case isUniqueViolation(err):
		return &domain.ConflictError{ListingID: listingID, Reason: "listing already has an approved application"}
	}
	return fmt.Errorf("writing application %s: %w", a.ID, err)
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanListing(row scanner) (domain.Listing, error) {
	var l domain.Listing
	var moderation, availability, moderatedAt, adoptedAt, createdAt, updatedAt string

	err := row.Scan(
		&l.ID, &l.OwnerID, &l.Name, &l.Species, &l.Breed, &l.Sex, &l.AgeMonths, &l.Description, &l.Location,
		&moderation, &l.ModerationNote, &l.ModeratorID, &moderatedAt,
		&availability, &l.AdopterID, &adoptedAt, &l.Version, &createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Listing{}, err
		}
		return domain.Listing{}, fmt.Errorf("scanning listing: %w", err)
	}

	l.ModerationStatus = domain.ModerationStatus(moderation)
	l.AvailabilityStatus = domain.AvailabilityStatus(availability)

	for _, f := range []struct {
		dst *time.Time
		src string
	}{
		{&l.ModeratedAt, moderatedAt},
		{&l.AdoptedAt, adoptedAt},
		{&l.CreatedAt, createdAt},
		{&l.UpdatedAt, updatedAt},
	} {
		if *f.dst, err = parseTime(f.src); err != nil {
			return domain.Listing{}, fmt.Errorf("parsing listing %s timestamp: %w", l.ID, err)
		}
	}

	return l, nil
}

func scanApplication(row scanner) (domain.Application, error) {
	var a domain.Application
	var status, appliedAt, decidedAt string

	err := row.Scan(&a.ID, &a.ListingID, &a.ApplicantID, &status, &a.Message, &appliedAt, &decidedAt, &a.DeciderID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Application{}, err
		}
		return domain.Application{}, fmt.Errorf("scanning application: %w", err)
	}

	a.Status = domain.ApplicationStatus(status)
	if a.AppliedAt, err = parseTime(appliedAt); err != nil {
		return domain.Application{}, fmt.Errorf("parsing application %s applied_at: %w", a.ID, err)
	}
	if a.DecidedAt, err = parseTime(decidedAt); err != nil {
		return domain.Application{}, fmt.Errorf("parsing application %s decided_at: %w", a.ID, err)
	}

	return a, nil
}

// isUniqueViolation checks if a SQLite error is a UNIQUE constraint violation.
func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
