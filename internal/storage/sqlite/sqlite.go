// Package sqlite provides a SQLite-backed implementation of the
// storage.Storage and storage.PlaceCache interfaces using database/sql.
//
// Attendees are kept as a JSON array in a TEXT column of the class row,
// mirroring the document shape the API exposes.
//
// CONCURRENCY
// ───────────
// The DSN asks the driver to open every transaction with BEGIN IMMEDIATE
// (_txlock=immediate), which takes the database write lock up front. The
// duplicate check and the write in AppendAttendee therefore run under one
// lock and cannot interleave with another append. The pool is limited to a
// single connection so writers queue in database/sql instead of failing
// with SQLITE_BUSY.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/aanand-mishra/attendance-api/internal/config"
	"github.com/aanand-mishra/attendance-api/internal/platform/obs"
	"github.com/aanand-mishra/attendance-api/internal/storage"
	"github.com/aanand-mishra/attendance-api/internal/types"

	// Blank import: side-effect only (registers the "sqlite3" driver).
	_ "github.com/mattn/go-sqlite3"
)

// createdAtLayout is fixed-width so that ORDER BY created_at on the TEXT
// column sorts chronologically.
const createdAtLayout = "2006-01-02T15:04:05.000000000Z07:00"

const classColumns = `id, course_id, course_title, course_code, date, time,
	location, location_name, note, lecturer_id, qr_code, attendees, created_at`

// SQLite is the concrete implementation of storage.Storage.
// A single *sql.DB is safe for concurrent use by multiple goroutines.
type SQLite struct {
	Db *sql.DB
}

// New opens the SQLite database at cfg.Storage.Path, creates the schema if
// needed and returns a ready-to-use *SQLite.
func New(cfg *config.Config) (*SQLite, error) {
	return Open(cfg.Storage.Path)
}

// Open is New for callers that only have a path (tests, tools).
func Open(path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlite.New: create dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_txlock=immediate&_busy_timeout=5000&_journal_mode=WAL", path)

	// sql.Open does NOT open a real connection yet; the first query does.
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite.New: open db: %w", err)
	}
	db.SetMaxOpenConns(1)

	// CREATE ... IF NOT EXISTS is idempotent, safe to run on every startup.
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS classes (
			id            TEXT PRIMARY KEY,
			course_id     TEXT NOT NULL DEFAULT '',
			course_title  TEXT NOT NULL,
			course_code   TEXT NOT NULL,
			date          TEXT NOT NULL,
			time          TEXT NOT NULL,
			location      TEXT NOT NULL DEFAULT '',
			location_name TEXT NOT NULL DEFAULT '',
			note          TEXT NOT NULL DEFAULT '',
			lecturer_id   TEXT NOT NULL DEFAULT '',
			qr_code       TEXT NOT NULL DEFAULT '',
			attendees     TEXT NOT NULL DEFAULT '[]',
			created_at    TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_classes_course_id   ON classes (course_id);
		CREATE INDEX IF NOT EXISTS idx_classes_course_code ON classes (course_code, created_at);
		CREATE INDEX IF NOT EXISTS idx_classes_lecturer    ON classes (lecturer_id, created_at);

		CREATE TABLE IF NOT EXISTS geocode_cache (
			key        TEXT PRIMARY KEY,
			name       TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite.New: create tables: %w", err)
	}

	return &SQLite{Db: db}, nil
}

func (s *SQLite) Close() error {
	return s.Db.Close()
}

// ─────────────────────────────────────────────────────────────────────────────
// CreateClass inserts a new class row. The attendee list always starts
// empty regardless of rec.Attendees.
// ─────────────────────────────────────────────────────────────────────────────
func (s *SQLite) CreateClass(ctx context.Context, rec types.ClassRecord) (_ types.ClassRecord, err error) {
	defer obs.Time(ctx, "classes.sqlite.CreateClass")(&err)

	if rec.ID == "" {
		return types.ClassRecord{}, errors.New("CreateClass: id must not be empty")
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.Attendees = []types.AttendeeEntry{}

	stmt, err := s.Db.PrepareContext(ctx, `
		INSERT INTO classes (`+classColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, '[]', ?)
	`)
	if err != nil {
		return types.ClassRecord{}, fmt.Errorf("CreateClass: prepare: %w", err)
	}
	defer stmt.Close()

	_, err = stmt.ExecContext(ctx,
		rec.ID, rec.CourseID, rec.CourseTitle, rec.CourseCode, rec.Date, rec.Time,
		rec.Location, rec.LocationName, rec.Note, rec.LecturerID, rec.QRCode,
		rec.CreatedAt.Format(createdAtLayout),
	)
	if err != nil {
		return types.ClassRecord{}, fmt.Errorf("CreateClass: exec: %w", err)
	}

	return rec, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// GetClass resolves a class the way attendance links address it:
//
//  1. course_id = courseID
//  2. id        = courseID
//  3. newest row with course_code = courseCode
//
// A step is tried only when the previous one matched nothing; any other
// error stops the search.
// ─────────────────────────────────────────────────────────────────────────────
func (s *SQLite) GetClass(ctx context.Context, courseID, courseCode string) (_ types.ClassRecord, err error) {
	defer obs.Time(ctx, "classes.sqlite.GetClass")(&err)

	type step struct {
		where string
		arg   string
	}
	var steps []step
	if courseID != "" {
		steps = append(steps,
			step{"course_id = ?", courseID},
			step{"id = ?", courseID},
		)
	}
	if courseCode != "" {
		steps = append(steps, step{"course_code = ?", courseCode})
	}

	for _, st := range steps {
		row := s.Db.QueryRowContext(ctx,
			"SELECT "+classColumns+" FROM classes WHERE "+st.where+" ORDER BY created_at DESC LIMIT 1",
			st.arg,
		)
		rec, err := scanClass(row)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return types.ClassRecord{}, fmt.Errorf("GetClass: %s: %w", st.where, err)
		}
		return rec, nil
	}

	return types.ClassRecord{}, storage.ErrNotFound
}

// ListClasses returns classes newest first, optionally for one lecturer.
func (s *SQLite) ListClasses(ctx context.Context, lecturerID string) (_ []types.ClassRecord, err error) {
	defer obs.Time(ctx, "classes.sqlite.ListClasses")(&err)

	q := "SELECT " + classColumns + " FROM classes"
	var args []any
	if lecturerID != "" {
		q += " WHERE lecturer_id = ?"
		args = append(args, lecturerID)
	}
	q += " ORDER BY created_at DESC"

	rows, err := s.Db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("ListClasses: query: %w", err)
	}
	defer rows.Close()

	classes := make([]types.ClassRecord, 0)
	for rows.Next() {
		rec, err := scanClass(rows)
		if err != nil {
			return nil, fmt.Errorf("ListClasses: scan row: %w", err)
		}
		classes = append(classes, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListClasses: rows iteration: %w", err)
	}

	return classes, nil
}

// GetAttendees returns the attendee list of one class.
func (s *SQLite) GetAttendees(ctx context.Context, classID string) (_ []types.AttendeeEntry, err error) {
	defer obs.Time(ctx, "classes.sqlite.GetAttendees")(&err)

	var raw string
	err = s.Db.QueryRowContext(ctx, "SELECT attendees FROM classes WHERE id = ?", classID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("GetAttendees: scan: %w", err)
	}

	return decodeAttendees(raw)
}

// ─────────────────────────────────────────────────────────────────────────────
// AppendAttendee reads the list, rejects a duplicate matric number and
// writes the extended list, all inside one IMMEDIATE transaction.
//
// Every statement goes through tx: with a single pooled connection a query
// on s.Db here would wait for the connection tx is holding.
// ─────────────────────────────────────────────────────────────────────────────
func (s *SQLite) AppendAttendee(ctx context.Context, classID string, entry types.AttendeeEntry) (_ []types.AttendeeEntry, err error) {
	defer obs.Time(ctx, "classes.sqlite.AppendAttendee")(&err)

	tx, err := s.Db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("AppendAttendee: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var raw string
	err = tx.QueryRowContext(ctx, "SELECT attendees FROM classes WHERE id = ?", classID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("AppendAttendee: read attendees: %w", err)
	}

	attendees, err := decodeAttendees(raw)
	if err != nil {
		return nil, fmt.Errorf("AppendAttendee: %w", err)
	}

	if types.ContainsMatric(attendees, entry.MatricNo) {
		return nil, storage.ErrDuplicate
	}

	attendees = append(attendees, entry)
	encoded, err := json.Marshal(attendees)
	if err != nil {
		return nil, fmt.Errorf("AppendAttendee: encode attendees: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "UPDATE classes SET attendees = ? WHERE id = ?", string(encoded), classID); err != nil {
		return nil, fmt.Errorf("AppendAttendee: update: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("AppendAttendee: commit: %w", err)
	}

	return attendees, nil
}

// GetPlace implements storage.PlaceCache.
func (s *SQLite) GetPlace(ctx context.Context, key string) (string, bool, error) {
	var name string
	err := s.Db.QueryRowContext(ctx, "SELECT name FROM geocode_cache WHERE key = ?", key).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get geocode cache: %w", err)
	}
	return name, true, nil
}

// PutPlace implements storage.PlaceCache.
func (s *SQLite) PutPlace(ctx context.Context, key, name string) error {
	_, err := s.Db.ExecContext(ctx,
		"INSERT OR REPLACE INTO geocode_cache (key, name, updated_at) VALUES (?, ?, ?)",
		key, name, time.Now().UTC().Format(createdAtLayout),
	)
	if err != nil {
		return fmt.Errorf("insert geocode cache: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanClass(row rowScanner) (types.ClassRecord, error) {
	var (
		rec       types.ClassRecord
		attendees string
		createdAt string
	)

	err := row.Scan(
		&rec.ID, &rec.CourseID, &rec.CourseTitle, &rec.CourseCode, &rec.Date, &rec.Time,
		&rec.Location, &rec.LocationName, &rec.Note, &rec.LecturerID, &rec.QRCode,
		&attendees, &createdAt,
	)
	if err != nil {
		return types.ClassRecord{}, err
	}

	if rec.Attendees, err = decodeAttendees(attendees); err != nil {
		return types.ClassRecord{}, err
	}
	if rec.CreatedAt, err = time.Parse(createdAtLayout, createdAt); err != nil {
		return types.ClassRecord{}, fmt.Errorf("parse created_at %q: %w", createdAt, err)
	}

	return rec, nil
}

func decodeAttendees(raw string) ([]types.AttendeeEntry, error) {
	attendees := make([]types.AttendeeEntry, 0)
	if raw == "" {
		return attendees, nil
	}
	if err := json.Unmarshal([]byte(raw), &attendees); err != nil {
		return nil, fmt.Errorf("decode attendees: %w", err)
	}
	if attendees == nil {
		attendees = make([]types.AttendeeEntry, 0)
	}
	return attendees, nil
}
