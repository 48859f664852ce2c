// Package postgres implements the storage interfaces backed by PostgreSQL.
// Every lifecycle transition is a single conditional UPDATE whose WHERE clause
// carries the state guard, so concurrent sweeps and user actions serialize in
// the database rather than in application locks.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/hotprop/listing-engine/internal/app/domain/listing"
	"github.com/hotprop/listing-engine/internal/app/domain/notification"
	"github.com/hotprop/listing-engine/internal/app/storage"
)

// Store implements the storage interfaces over a database handle.
type Store struct {
	db *sql.DB
}

var _ storage.ListingStore = (*Store)(nil)
var _ storage.NotificationStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// EnsureSchema creates the engine's tables when they do not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS listings (
			id                           TEXT NOT NULL,
			kind                         TEXT NOT NULL,
			owner_id                     TEXT NOT NULL,
			title                        TEXT NOT NULL DEFAULT '',
			is_active                    BOOLEAN NOT NULL DEFAULT TRUE,
			last_validated               TIMESTAMPTZ NOT NULL,
			last_validation_reminder     TIMESTAMPTZ,
			validation_token             TEXT,
			validation_expires           TIMESTAMPTZ,
			validation_response_received BOOLEAN NOT NULL DEFAULT FALSE,
			created_at                   TIMESTAMPTZ NOT NULL,
			updated_at                   TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (kind, id)
		);
		CREATE UNIQUE INDEX IF NOT EXISTS listings_validation_token_idx
			ON listings (validation_token) WHERE validation_token IS NOT NULL;
		CREATE INDEX IF NOT EXISTS listings_owner_idx ON listings (owner_id);

		CREATE TABLE IF NOT EXISTS notifications (
			id         TEXT PRIMARY KEY,
			user_id    TEXT NOT NULL,
			type       TEXT NOT NULL,
			title      TEXT NOT NULL DEFAULT '',
			content    TEXT NOT NULL DEFAULT '',
			related_id TEXT,
			is_read    BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS notifications_user_idx ON notifications (user_id, created_at);
	`)
	return err
}

const listingColumns = `id, kind, owner_id, title, is_active, last_validated,
	last_validation_reminder, validation_token, validation_expires,
	validation_response_received, created_at, updated_at`

func scanListing(row interface{ Scan(...any) error }) (listing.Listing, error) {
	var (
		l        listing.Listing
		kind     string
		reminder sql.NullTime
		token    sql.NullString
		expires  sql.NullTime
	)
	err := row.Scan(&l.ID, &kind, &l.OwnerID, &l.Title, &l.IsActive, &l.LastValidated,
		&reminder, &token, &expires, &l.ValidationResponseReceived, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return listing.Listing{}, err
	}
	l.Kind = listing.Kind(kind)
	if reminder.Valid {
		t := reminder.Time
		l.LastValidationReminder = &t
	}
	if token.Valid {
		v := token.String
		l.ValidationToken = &v
	}
	if expires.Valid {
		t := expires.Time
		l.ValidationExpires = &t
	}
	return l, nil
}

// --- ListingStore -----------------------------------------------------------

func (s *Store) CreateListing(ctx context.Context, l listing.Listing) (listing.Listing, error) {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	l.CreatedAt = now
	l.UpdatedAt = now
	l.IsActive = true
	if l.LastValidated.IsZero() {
		l.LastValidated = now
	}
	l.ValidationToken = nil
	l.ValidationExpires = nil
	l.ValidationResponseReceived = false

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO listings (id, kind, owner_id, title, is_active, last_validated, created_at, updated_at)
		VALUES ($1, $2, $3, $4, TRUE, $5, $6, $7)
	`, l.ID, string(l.Kind), l.OwnerID, l.Title, l.LastValidated, l.CreatedAt, l.UpdatedAt)
	if err != nil {
		return listing.Listing{}, err
	}
	return l, nil
}

func (s *Store) GetListing(ctx context.Context, id string, kind listing.Kind) (listing.Listing, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+listingColumns+`
		FROM listings
		WHERE id = $1 AND kind = $2
	`, id, string(kind))

	l, err := scanListing(row)
	if errors.Is(err, sql.ErrNoRows) {
		return listing.Listing{}, storage.ErrNotFound
	}
	return l, err
}

func (s *Store) GetListingByToken(ctx context.Context, token string, kind listing.Kind) (listing.Listing, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+listingColumns+`
		FROM listings
		WHERE validation_token = $1 AND kind = $2
	`, token, string(kind))

	l, err := scanListing(row)
	if errors.Is(err, sql.ErrNoRows) {
		return listing.Listing{}, storage.ErrNotFound
	}
	return l, err
}

func (s *Store) ListListings(ctx context.Context, ownerID string) ([]listing.Listing, error) {
	query := `SELECT ` + listingColumns + ` FROM listings`
	args := []any{}
	if ownerID != "" {
		query += ` WHERE owner_id = $1`
		args = append(args, ownerID)
	}
	query += ` ORDER BY created_at`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []listing.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, l)
	}
	return result, rows.Err()
}

func (s *Store) DeleteListing(ctx context.Context, id string, kind listing.Kind) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM listings WHERE id = $1 AND kind = $2
	`, id, string(kind))
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// classify turns a zero-row conditional update into ErrNotFound or
// ErrNotApplied depending on whether the listing exists at all.
func (s *Store) classify(ctx context.Context, id string, kind listing.Kind) error {
	if _, err := s.GetListing(ctx, id, kind); err != nil {
		return err
	}
	return storage.ErrNotApplied
}

func (s *Store) MarkChallenged(ctx context.Context, id string, kind listing.Kind, token string, expires, now time.Time) (listing.Listing, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE listings
		SET validation_token = $3,
		    validation_expires = $4,
		    validation_response_received = FALSE,
		    last_validation_reminder = $5,
		    updated_at = $5
		WHERE id = $1 AND kind = $2 AND is_active AND validation_token IS NULL
		RETURNING `+listingColumns+`
	`, id, string(kind), token, expires.UTC(), now.UTC())

	l, err := scanListing(row)
	if errors.Is(err, sql.ErrNoRows) {
		return listing.Listing{}, s.classify(ctx, id, kind)
	}
	return l, err
}

func (s *Store) MarkConfirmed(ctx context.Context, token string, kind listing.Kind, now time.Time) (listing.Listing, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE listings
		SET validation_token = NULL,
		    validation_expires = NULL,
		    validation_response_received = TRUE,
		    last_validation_reminder = NULL,
		    last_validated = $3,
		    updated_at = $3
		WHERE validation_token = $1 AND kind = $2 AND validation_expires > $3
		RETURNING `+listingColumns+`
	`, token, string(kind), now.UTC())

	l, err := scanListing(row)
	if errors.Is(err, sql.ErrNoRows) {
		if _, lookupErr := s.GetListingByToken(ctx, token, kind); lookupErr != nil {
			return listing.Listing{}, lookupErr
		}
		return listing.Listing{}, storage.ErrNotApplied
	}
	return l, err
}

func (s *Store) MarkDeactivated(ctx context.Context, id string, kind listing.Kind, now time.Time) (listing.Listing, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE listings
		SET is_active = FALSE,
		    validation_token = NULL,
		    validation_expires = NULL,
		    updated_at = $3
		WHERE id = $1 AND kind = $2 AND is_active AND validation_expires < $3
		RETURNING `+listingColumns+`
	`, id, string(kind), now.UTC())

	l, err := scanListing(row)
	if errors.Is(err, sql.ErrNoRows) {
		return listing.Listing{}, s.classify(ctx, id, kind)
	}
	return l, err
}

func (s *Store) MarkReactivated(ctx context.Context, id string, kind listing.Kind, now time.Time) (listing.Listing, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE listings
		SET is_active = TRUE,
		    validation_token = NULL,
		    validation_expires = NULL,
		    validation_response_received = TRUE,
		    last_validation_reminder = NULL,
		    last_validated = $3,
		    updated_at = $3
		WHERE id = $1 AND kind = $2 AND NOT is_active
		RETURNING `+listingColumns+`
	`, id, string(kind), now.UTC())

	l, err := scanListing(row)
	if errors.Is(err, sql.ErrNoRows) {
		return listing.Listing{}, s.classify(ctx, id, kind)
	}
	return l, err
}

// --- NotificationStore ------------------------------------------------------

func (s *Store) CreateNotification(ctx context.Context, n notification.Notification) (notification.Notification, error) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (id, user_id, type, title, content, related_id, is_read, created_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8)
	`, n.ID, n.UserID, string(n.Type), n.Title, n.Content, n.RelatedID, n.IsRead, n.CreatedAt)
	if err != nil {
		return notification.Notification{}, err
	}
	return n, nil
}

func (s *Store) ListNotifications(ctx context.Context, userID string) ([]notification.Notification, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, type, title, content, COALESCE(related_id, ''), is_read, created_at
		FROM notifications
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []notification.Notification
	for rows.Next() {
		var (
			n   notification.Notification
			typ string
		)
		if err := rows.Scan(&n.ID, &n.UserID, &typ, &n.Title, &n.Content, &n.RelatedID, &n.IsRead, &n.CreatedAt); err != nil {
			return nil, err
		}
		n.Type = notification.Type(typ)
		result = append(result, n)
	}
	return result, rows.Err()
}

func (s *Store) MarkNotificationRead(ctx context.Context, id, userID string) (notification.Notification, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE notifications
		SET is_read = TRUE
		WHERE id = $1 AND user_id = $2
		RETURNING id, user_id, type, title, content, COALESCE(related_id, ''), is_read, created_at
	`, id, userID)

	var (
		n   notification.Notification
		typ string
	)
	err := row.Scan(&n.ID, &n.UserID, &typ, &n.Title, &n.Content, &n.RelatedID, &n.IsRead, &n.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return notification.Notification{}, storage.ErrNotFound
	}
	if err != nil {
		return notification.Notification{}, err
	}
	n.Type = notification.Type(typ)
	return n, nil
}
