package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Store wraps SQLite access for the call and recording archive. The archive
// is a secondary index; the flat files stay authoritative.
type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS calls (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            call_id INTEGER,
            timestamp TEXT,
            phone TEXT,
            name TEXT,
            emergency_type TEXT,
            latitude REAL,
            longitude REAL,
            recording_id TEXT,
            payload_json TEXT,
            archived_at TIMESTAMP
        );`,
		`CREATE INDEX IF NOT EXISTS idx_calls_call_id ON calls(call_id);`,
		`CREATE TABLE IF NOT EXISTS recordings (
            recording_id TEXT PRIMARY KEY,
            started_at TEXT,
            stopped_at TEXT,
            duration INTEGER,
            path TEXT,
            indexed_at TIMESTAMP
        );`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Call is an archived emergency call row.
type Call struct {
	ID            int64     `json:"id"`
	CallID        int       `json:"call_id"`
	Timestamp     string    `json:"timestamp"`
	Phone         *string   `json:"phone"`
	Name          *string   `json:"name"`
	EmergencyType *string   `json:"emergency_type"`
	Latitude      *float64  `json:"latitude"`
	Longitude     *float64  `json:"longitude"`
	RecordingID   *string   `json:"recording_id"`
	PayloadJSON   string    `json:"payload_json"`
	ArchivedAt    time.Time `json:"archived_at"`
}

// Recording is an indexed recording file.
type Recording struct {
	RecordingID string    `json:"recording_id"`
	StartedAt   string    `json:"started_at"`
	StoppedAt   *string   `json:"stopped_at"`
	Duration    *int      `json:"duration"`
	Path        string    `json:"path"`
	IndexedAt   time.Time `json:"indexed_at"`
}

func (s *Store) InsertCall(ctx context.Context, c *Call) (*Call, error) {
	res, err := s.db.ExecContext(ctx, `INSERT INTO calls(call_id, timestamp, phone, name, emergency_type, latitude, longitude, recording_id, payload_json, archived_at)
        VALUES(?,?,?,?,?,?,?,?,?,?)`,
		c.CallID, c.Timestamp, c.Phone, c.Name, c.EmergencyType, c.Latitude, c.Longitude, c.RecordingID, c.PayloadJSON, c.ArchivedAt)
	if err != nil {
		return nil, err
	}
	id, _ := res.LastInsertId()
	c.ID = id
	return c, nil
}

// UpsertRecording indexes a recording, replacing any earlier row for the id.
func (s *Store) UpsertRecording(ctx context.Context, r *Recording) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO recordings(recording_id, started_at, stopped_at, duration, path, indexed_at)
        VALUES(?, ?, ?, ?, ?, ?)
        ON CONFLICT(recording_id) DO UPDATE SET started_at=excluded.started_at, stopped_at=excluded.stopped_at, duration=excluded.duration, path=excluded.path, indexed_at=excluded.indexed_at`,
		r.RecordingID, r.StartedAt, r.StoppedAt, r.Duration, r.Path, r.IndexedAt)
	return err
}

func (s *Store) ListCalls(ctx context.Context, limit int) ([]Call, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, call_id, timestamp, phone, name, emergency_type, latitude, longitude, recording_id, payload_json, archived_at FROM calls ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var calls []Call
	for rows.Next() {
		var c Call
		var phone, name, etype, recID sql.NullString
		var lat, lon sql.NullFloat64
		if err := rows.Scan(&c.ID, &c.CallID, &c.Timestamp, &phone, &name, &etype, &lat, &lon, &recID, &c.PayloadJSON, &c.ArchivedAt); err != nil {
			return nil, err
		}
		c.Phone = nullString(phone)
		c.Name = nullString(name)
		c.EmergencyType = nullString(etype)
		c.RecordingID = nullString(recID)
		if lat.Valid {
			c.Latitude = &lat.Float64
		}
		if lon.Valid {
			c.Longitude = &lon.Float64
		}
		calls = append(calls, c)
	}
	return calls, rows.Err()
}

func (s *Store) ListRecordings(ctx context.Context, limit int) ([]Recording, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT recording_id, started_at, stopped_at, duration, path, indexed_at FROM recordings ORDER BY indexed_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var recs []Recording
	for rows.Next() {
		var r Recording
		var stopped sql.NullString
		var duration sql.NullInt64
		if err := rows.Scan(&r.RecordingID, &r.StartedAt, &stopped, &duration, &r.Path, &r.IndexedAt); err != nil {
			return nil, err
		}
		r.StoppedAt = nullString(stopped)
		if duration.Valid {
			d := int(duration.Int64)
			r.Duration = &d
		}
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

// Counts returns the number of archived calls and indexed recordings.
func (s *Store) Counts(ctx context.Context) (calls int, recordings int, err error) {
	if err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM calls`).Scan(&calls); err != nil {
		return 0, 0, err
	}
	if err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM recordings`).Scan(&recordings); err != nil {
		return 0, 0, err
	}
	return calls, recordings, nil
}

// Health returns err if DB not reachable.
func (s *Store) Health(ctx context.Context) error {
	row := s.db.QueryRowContext(ctx, `SELECT 1`)
	var v int
	if err := row.Scan(&v); err != nil {
		return fmt.Errorf("db health: %w", err)
	}
	return nil
}

func nullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}
