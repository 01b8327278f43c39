/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements reservation.Store using SQLite. In production, the same
  patterns apply to PostgreSQL - only minor SQL dialect differences.

APPEND-MOSTLY ENFORCEMENT:
  A committed reservation's time window is never updated:
  - No UPDATE statements touch start_time or end_time
  - The only UPDATEs flip lifecycle flags (cancelled, shortened, missed)
    and wire the descendant pointer, each guarded to succeed at most once
  - No DELETE statements on the reservations table

KEY TABLES:
  reservations: Immutable history of every window ever committed
  outages:      Scheduled downtime windows (item- or resource-scoped)

TIMESTAMP ENCODING:
  Timestamps live in TEXT columns and are compared lexically in SQL, so
  they are stored in a fixed-width UTC layout (fraction zero-padded).
  Variable-width encodings do not sort chronologically: RFC3339Nano
  renders "10:00:00Z" after "10:00:00.000000001Z".

INDEXES:
  - idx_reservations_item_window: Conflict detection (hot path)
  - idx_reservations_user_item:   Per-user limit queries
  - idx_outages_item:             Outage overlap checks

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. In production with PostgreSQL,
  database-level concurrency control handles this instead.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/reservations.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  ledger := reservation.NewLedger(store)

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - reservation/store.go: Interface definition
  - reservation/ledger.go: Higher-level query surface using Store
  - reservation/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/warp/reservation-engine/reservation"
)

// Store implements reservation.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Reservations (append-mostly history; windows never change)
	CREATE TABLE IF NOT EXISTS reservations (
		id TEXT PRIMARY KEY,
		item_id TEXT NOT NULL,
		item_kind TEXT NOT NULL,
		user_id TEXT NOT NULL,
		creator_id TEXT NOT NULL,
		project TEXT,
		title TEXT,
		start_time TEXT NOT NULL,
		end_time TEXT NOT NULL,
		created_at TEXT NOT NULL,
		cancelled BOOLEAN NOT NULL DEFAULT FALSE,
		cancelled_by TEXT,
		cancelled_at TEXT,
		cancel_reason TEXT,
		missed BOOLEAN NOT NULL DEFAULT FALSE,
		shortened BOOLEAN NOT NULL DEFAULT FALSE,
		descendant_id TEXT
	);

	-- Conflict detection (hot path)
	CREATE INDEX IF NOT EXISTS idx_reservations_item_window
		ON reservations(item_id, start_time, end_time);

	-- Per-user limit queries
	CREATE INDEX IF NOT EXISTS idx_reservations_user_item
		ON reservations(user_id, item_id, start_time);

	-- Outages
	CREATE TABLE IF NOT EXISTS outages (
		id TEXT PRIMARY KEY,
		item_id TEXT,
		resource_id TEXT,
		start_time TEXT NOT NULL,
		end_time TEXT NOT NULL,
		title TEXT,
		category TEXT,
		creator_id TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_outages_item
		ON outages(item_id, start_time, end_time);
	CREATE INDEX IF NOT EXISTS idx_outages_resource
		ON outages(resource_id, start_time, end_time);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// RESERVATIONS
// =============================================================================

const reservationColumns = `id, item_id, item_kind, user_id, creator_id, project, title,
	start_time, end_time, created_at, cancelled, cancelled_by, cancelled_at,
	cancel_reason, missed, shortened, descendant_id`

// Insert persists a new reservation record.
func (s *Store) Insert(ctx context.Context, r reservation.Reservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO reservations
		(` + reservationColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		r.ID,
		r.Item,
		r.Kind,
		r.User,
		r.Creator,
		r.Project,
		r.Title,
		encodeTime(r.Start),
		encodeTime(r.End),
		encodeTime(r.CreationTime),
		r.Cancelled,
		nullString(string(r.CancelledBy)),
		nullTime(r.CancellationTime),
		nullString(r.CancelReason),
		r.Missed,
		r.Shortened,
		nullString(string(r.Descendant)),
	)
	if err != nil {
		return fmt.Errorf("failed to insert reservation: %w", err)
	}
	return nil
}

// Get returns a reservation by ID.
func (s *Store) Get(ctx context.Context, id reservation.ReservationID) (reservation.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE id = ?`
	rs, err := s.queryReservations(ctx, query, id)
	if err != nil {
		return reservation.Reservation{}, err
	}
	if len(rs) == 0 {
		return reservation.Reservation{}, reservation.ErrReservationNotFound
	}
	return rs[0], nil
}

// SetCancelled flips the cancelled flag. Guarded so a record can only be
// cancelled once; the window columns are never touched.
func (s *Store) SetCancelled(ctx context.Context, id reservation.ReservationID, by reservation.UserID, at time.Time, reason string, descendant reservation.ReservationID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		UPDATE reservations
		SET cancelled = TRUE, cancelled_by = ?, cancelled_at = ?, cancel_reason = ?,
		    descendant_id = COALESCE(NULLIF(?, ''), descendant_id)
		WHERE id = ? AND cancelled = FALSE
	`
	result, err := s.db.ExecContext(ctx, query,
		by, encodeTime(at), reason, descendant, id)
	if err != nil {
		return fmt.Errorf("failed to cancel reservation: %w", err)
	}
	return s.checkFlagged(ctx, result, id, reservation.ErrAlreadyCancelled)
}

// SetShortened flips the shortened flag and wires the descendant.
func (s *Store) SetShortened(ctx context.Context, id reservation.ReservationID, descendant reservation.ReservationID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		UPDATE reservations
		SET shortened = TRUE, descendant_id = ?
		WHERE id = ? AND shortened = FALSE AND descendant_id IS NULL
	`
	result, err := s.db.ExecContext(ctx, query, descendant, id)
	if err != nil {
		return fmt.Errorf("failed to shorten reservation: %w", err)
	}
	return s.checkFlagged(ctx, result, id, reservation.ErrAlreadyLinked)
}

// SetMissed flips the missed flag.
func (s *Store) SetMissed(ctx context.Context, id reservation.ReservationID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `UPDATE reservations SET missed = TRUE WHERE id = ?`
	result, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to mark reservation missed: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return reservation.ErrReservationNotFound
	}
	return nil
}

// checkFlagged turns a zero-row lifecycle update into the right error:
// the record either does not exist or was already flagged.
func (s *Store) checkFlagged(ctx context.Context, result sql.Result, id reservation.ReservationID, alreadyErr error) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected > 0 {
		return nil
	}
	var exists bool
	row := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM reservations WHERE id = ?)`, id)
	if err := row.Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return reservation.ErrReservationNotFound
	}
	return alreadyErr
}

// ForItems returns every reservation on any of the items whose window
// overlaps the given window.
func (s *Store) ForItems(ctx context.Context, items []reservation.ItemID, window reservation.Window) ([]reservation.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(items) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(items)), ", ")
	query := `
		SELECT ` + reservationColumns + `
		FROM reservations
		WHERE item_id IN (` + placeholders + `)
		  AND end_time > ? AND start_time < ?
		ORDER BY start_time ASC
	`
	args := make([]any, 0, len(items)+2)
	for _, item := range items {
		args = append(args, item)
	}
	args = append(args, encodeTime(window.Start), encodeTime(window.End))
	return s.queryReservations(ctx, query, args...)
}

// ForUser returns the user's reservations on the item overlapping the window.
func (s *Store) ForUser(ctx context.Context, user reservation.UserID, item reservation.ItemID, window reservation.Window) ([]reservation.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT ` + reservationColumns + `
		FROM reservations
		WHERE user_id = ? AND item_id = ?
		  AND end_time > ? AND start_time < ?
		ORDER BY start_time ASC
	`
	return s.queryReservations(ctx, query, user, item,
		encodeTime(window.Start), encodeTime(window.End))
}

// FutureForUser returns the user's reservations on the item starting at or
// after the instant.
func (s *Store) FutureForUser(ctx context.Context, user reservation.UserID, item reservation.ItemID, after time.Time) ([]reservation.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT ` + reservationColumns + `
		FROM reservations
		WHERE user_id = ? AND item_id = ? AND start_time >= ?
		ORDER BY start_time ASC
	`
	return s.queryReservations(ctx, query, user, item, encodeTime(after))
}

// EndedBefore returns active reservations on the item that ended at or
// before the cutoff.
func (s *Store) EndedBefore(ctx context.Context, item reservation.ItemID, cutoff time.Time) ([]reservation.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT ` + reservationColumns + `
		FROM reservations
		WHERE item_id = ? AND end_time <= ?
		  AND cancelled = FALSE AND missed = FALSE AND shortened = FALSE
		ORDER BY start_time ASC
	`
	return s.queryReservations(ctx, query, item, encodeTime(cutoff))
}

func (s *Store) queryReservations(ctx context.Context, query string, args ...any) ([]reservation.Reservation, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query reservations: %w", err)
	}
	defer rows.Close()

	var out []reservation.Reservation
	for rows.Next() {
		var (
			r                                  reservation.Reservation
			start, end, created                string
			cancelledBy, cancelledAt           sql.NullString
			project, title, reason, descendant sql.NullString
		)
		err := rows.Scan(
			&r.ID, &r.Item, &r.Kind, &r.User, &r.Creator, &project, &title,
			&start, &end, &created, &r.Cancelled, &cancelledBy, &cancelledAt,
			&reason, &r.Missed, &r.Shortened, &descendant,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reservation: %w", err)
		}
		if r.Start, err = time.Parse(time.RFC3339Nano, start); err != nil {
			return nil, err
		}
		if r.End, err = time.Parse(time.RFC3339Nano, end); err != nil {
			return nil, err
		}
		if r.CreationTime, err = time.Parse(time.RFC3339Nano, created); err != nil {
			return nil, err
		}
		r.Project = project.String
		r.Title = title.String
		r.CancelReason = reason.String
		r.CancelledBy = reservation.UserID(cancelledBy.String)
		r.Descendant = reservation.ReservationID(descendant.String)
		if cancelledAt.Valid {
			at, err := time.Parse(time.RFC3339Nano, cancelledAt.String)
			if err != nil {
				return nil, err
			}
			r.CancellationTime = &at
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// =============================================================================
// OUTAGES
// =============================================================================

// InsertOutage persists a scheduled outage.
func (s *Store) InsertOutage(ctx context.Context, o reservation.ScheduledOutage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO outages
		(id, item_id, resource_id, start_time, end_time, title, category, creator_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		o.ID,
		nullString(string(o.Item)),
		nullString(string(o.Resource)),
		encodeTime(o.Start),
		encodeTime(o.End),
		o.Title,
		o.Category,
		o.Creator,
		encodeTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("failed to insert outage: %w", err)
	}
	return nil
}

// OutagesFor returns outages overlapping the window targeting the item or
// any of the listed resources.
func (s *Store) OutagesFor(ctx context.Context, item reservation.ItemID, resources []reservation.ResourceID, window reservation.Window) ([]reservation.ScheduledOutage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, item_id, resource_id, start_time, end_time, title, category, creator_id
		FROM outages
		WHERE end_time > ? AND start_time < ? AND (item_id = ?
	`
	args := []any{encodeTime(window.Start), encodeTime(window.End), item}
	if len(resources) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(resources)), ", ")
		query += ` OR resource_id IN (` + placeholders + `)`
		for _, res := range resources {
			args = append(args, res)
		}
	}
	query += `) ORDER BY start_time ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query outages: %w", err)
	}
	defer rows.Close()

	var out []reservation.ScheduledOutage
	for rows.Next() {
		var (
			o             reservation.ScheduledOutage
			itemID, resID sql.NullString
			title, cat    sql.NullString
			creator       sql.NullString
			start, end    string
		)
		if err := rows.Scan(&o.ID, &itemID, &resID, &start, &end, &title, &cat, &creator); err != nil {
			return nil, fmt.Errorf("failed to scan outage: %w", err)
		}
		if o.Start, err = time.Parse(time.RFC3339Nano, start); err != nil {
			return nil, err
		}
		if o.End, err = time.Parse(time.RFC3339Nano, end); err != nil {
			return nil, err
		}
		o.Item = reservation.ItemID(itemID.String)
		o.Resource = reservation.ResourceID(resID.String)
		o.Title = title.String
		o.Category = cat.String
		o.Creator = reservation.UserID(creator.String)
		out = append(out, o)
	}
	return out, rows.Err()
}

// DeleteOutage removes an outage.
func (s *Store) DeleteOutage(ctx context.Context, id reservation.OutageID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.ExecContext(ctx, `DELETE FROM outages WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete outage: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return reservation.ErrOutageNotFound
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

// timeLayout is fixed-width (UTC only, fraction zero-padded) so the
// lexical ordering SQLite applies to TEXT columns matches chronological
// order. RFC3339Nano trims trailing fraction zeros, which sorts a
// whole-second timestamp after any fractional one in the same second.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func encodeTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return encodeTime(*t)
}
