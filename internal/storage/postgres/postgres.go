// Package postgres implements storage.Storage and storage.PlaceCache on
// PostgreSQL through a pgx connection pool.
//
// Attendees live in a jsonb column. AppendAttendee is a single conditional
// UPDATE: the containment test and the append are evaluated by the server
// under the row lock, so concurrent appends of the same matric number
// cannot both succeed.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aanand-mishra/attendance-api/internal/config"
	"github.com/aanand-mishra/attendance-api/internal/platform/obs"
	"github.com/aanand-mishra/attendance-api/internal/storage"
	"github.com/aanand-mishra/attendance-api/internal/types"
)

const classColumns = `id, course_id, course_title, course_code, date, time,
	location, location_name, note, lecturer_id, qr_code, attendees, created_at`

const schema = `
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
	attendees     JSONB NOT NULL DEFAULT '[]'::jsonb,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_classes_course_id   ON classes (course_id);
CREATE INDEX IF NOT EXISTS idx_classes_course_code ON classes (course_code, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_classes_lecturer    ON classes (lecturer_id, created_at DESC);

CREATE TABLE IF NOT EXISTS geocode_cache (
	key        TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// Postgres is the pgx-backed storage.
type Postgres struct {
	Pool *pgxpool.Pool
}

// New connects to cfg.Storage.DSN, verifies the connection and applies
// the schema.
func New(ctx context.Context, cfg *config.Config) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, cfg.Storage.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres.New: open pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres.New: verify connection: %w", err)
	}

	p := &Postgres{Pool: pool}
	if err := p.InitSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return p, nil
}

// InitSchema creates the tables and indexes if they do not exist.
func (p *Postgres) InitSchema(ctx context.Context) error {
	if _, err := p.Pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("postgres.InitSchema: %w", err)
	}
	return nil
}

func (p *Postgres) Close() error {
	p.Pool.Close()
	return nil
}

func (p *Postgres) CreateClass(ctx context.Context, rec types.ClassRecord) (_ types.ClassRecord, err error) {
	defer obs.Time(ctx, "classes.postgres.CreateClass")(&err)

	if rec.ID == "" {
		return types.ClassRecord{}, errors.New("CreateClass: id must not be empty")
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.Attendees = []types.AttendeeEntry{}

	_, err = p.Pool.Exec(ctx, `
		INSERT INTO classes (`+classColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, '[]'::jsonb, $12)`,
		rec.ID, rec.CourseID, rec.CourseTitle, rec.CourseCode, rec.Date, rec.Time,
		rec.Location, rec.LocationName, rec.Note, rec.LecturerID, rec.QRCode,
		rec.CreatedAt,
	)
	if err != nil {
		return types.ClassRecord{}, fmt.Errorf("CreateClass: insert: %w", err)
	}

	return rec, nil
}

// GetClass tries course_id, then id, then the newest course_code match.
func (p *Postgres) GetClass(ctx context.Context, courseID, courseCode string) (_ types.ClassRecord, err error) {
	defer obs.Time(ctx, "classes.postgres.GetClass")(&err)

	type step struct {
		where string
		arg   string
	}
	var steps []step
	if courseID != "" {
		steps = append(steps,
			step{"course_id = $1", courseID},
			step{"id = $1", courseID},
		)
	}
	if courseCode != "" {
		steps = append(steps, step{"course_code = $1", courseCode})
	}

	for _, st := range steps {
		row := p.Pool.QueryRow(ctx,
			"SELECT "+classColumns+" FROM classes WHERE "+st.where+" ORDER BY created_at DESC LIMIT 1",
			st.arg,
		)
		rec, err := scanClass(row)
		if errors.Is(err, pgx.ErrNoRows) {
			continue
		}
		if err != nil {
			return types.ClassRecord{}, fmt.Errorf("GetClass: %s: %w", st.where, err)
		}
		return rec, nil
	}

	return types.ClassRecord{}, storage.ErrNotFound
}

func (p *Postgres) ListClasses(ctx context.Context, lecturerID string) (_ []types.ClassRecord, err error) {
	defer obs.Time(ctx, "classes.postgres.ListClasses")(&err)

	q := "SELECT " + classColumns + " FROM classes"
	var args []any
	if lecturerID != "" {
		q += " WHERE lecturer_id = $1"
		args = append(args, lecturerID)
	}
	q += " ORDER BY created_at DESC"

	rows, err := p.Pool.Query(ctx, q, args...)
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

func (p *Postgres) GetAttendees(ctx context.Context, classID string) (_ []types.AttendeeEntry, err error) {
	defer obs.Time(ctx, "classes.postgres.GetAttendees")(&err)

	var raw []byte
	err = p.Pool.QueryRow(ctx, "SELECT attendees FROM classes WHERE id = $1", classID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("GetAttendees: scan: %w", err)
	}

	return decodeAttendees(raw)
}

// AppendAttendee appends entry unless attendees already contains an
// object with the same matric_no. Zero updated rows means either the class
// is missing or the entry is a duplicate; a follow-up existence check tells
// which.
func (p *Postgres) AppendAttendee(ctx context.Context, classID string, entry types.AttendeeEntry) (_ []types.AttendeeEntry, err error) {
	defer obs.Time(ctx, "classes.postgres.AppendAttendee")(&err)

	encoded, err := json.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("AppendAttendee: encode entry: %w", err)
	}

	var raw []byte
	err = p.Pool.QueryRow(ctx, `
		UPDATE classes
		SET attendees = attendees || jsonb_build_array($2::jsonb)
		WHERE id = $1
		  AND NOT EXISTS (
		      SELECT 1 FROM jsonb_array_elements(attendees) AS a
		      WHERE upper(btrim(a->>'matric_no', E' \t\r\n')) = $3::text)
		RETURNING attendees`,
		classID, string(encoded), types.NormalizeMatric(entry.MatricNo),
	).Scan(&raw)

	if errors.Is(err, pgx.ErrNoRows) {
		var exists bool
		if err := p.Pool.QueryRow(ctx,
			"SELECT EXISTS(SELECT 1 FROM classes WHERE id = $1)", classID,
		).Scan(&exists); err != nil {
			return nil, fmt.Errorf("AppendAttendee: check class: %w", err)
		}
		if !exists {
			return nil, storage.ErrNotFound
		}
		return nil, storage.ErrDuplicate
	}
	if err != nil {
		return nil, fmt.Errorf("AppendAttendee: update: %w", err)
	}

	return decodeAttendees(raw)
}

// GetPlace implements storage.PlaceCache.
func (p *Postgres) GetPlace(ctx context.Context, key string) (string, bool, error) {
	var name string
	err := p.Pool.QueryRow(ctx, "SELECT name FROM geocode_cache WHERE key = $1", key).Scan(&name)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get geocode cache: %w", err)
	}
	return name, true, nil
}

// PutPlace implements storage.PlaceCache.
func (p *Postgres) PutPlace(ctx context.Context, key, name string) error {
	_, err := p.Pool.Exec(ctx, `
		INSERT INTO geocode_cache (key, name, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE
		SET name = EXCLUDED.name,
			updated_at = EXCLUDED.updated_at`,
		key, name,
	)
	if err != nil {
		return fmt.Errorf("insert geocode cache: %w", err)
	}
	return nil
}

func scanClass(row pgx.Row) (types.ClassRecord, error) {
	var (
		rec       types.ClassRecord
		attendees []byte
	)

	err := row.Scan(
		&rec.ID, &rec.CourseID, &rec.CourseTitle, &rec.CourseCode, &rec.Date, &rec.Time,
		&rec.Location, &rec.LocationName, &rec.Note, &rec.LecturerID, &rec.QRCode,
		&attendees, &rec.CreatedAt,
	)
	if err != nil {
		return types.ClassRecord{}, err
	}

	if rec.Attendees, err = decodeAttendees(attendees); err != nil {
		return types.ClassRecord{}, err
	}
	rec.CreatedAt = rec.CreatedAt.UTC()

	return rec, nil
}

func decodeAttendees(raw []byte) ([]types.AttendeeEntry, error) {
	attendees := make([]types.AttendeeEntry, 0)
	if len(raw) == 0 {
		return attendees, nil
	}
	if err := json.Unmarshal(raw, &attendees); err != nil {
		return nil, fmt.Errorf("decode attendees: %w", err)
	}
	if attendees == nil {
		attendees = make([]types.AttendeeEntry, 0)
	}
	return attendees, nil
}
