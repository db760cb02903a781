// Package sqlite provides a SQLite-backed implementation of the
// storage.Storage interface using database/sql.
//
// Ids are SQLite row ids rendered as decimal strings, matching the
// string ids of the /student contract.
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aanand-mishra/student-crud/internal/config"
	"github.com/aanand-mishra/student-crud/internal/storage"
	"github.com/aanand-mishra/student-crud/internal/types"

	// registers the "sqlite3" driver
	_ "github.com/mattn/go-sqlite3"
)

// SQLite is the concrete implementation of storage.Storage.
type SQLite struct {
	Db  *sql.DB
	now func() time.Time
}

var _ storage.Storage = (*SQLite)(nil)

// New opens the database at cfg.StoragePath and creates the students
// table if it does not already exist.
func New(cfg *config.Config) (*SQLite, error) {
	return Open(cfg.StoragePath)
}

// Open opens the database at path and creates the students table if it
// does not already exist.
func Open(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite.Open: open db: %w", err)
	}
	// a single connection serialises writers and keeps ":memory:" databases shared
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS students (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			name       TEXT NOT NULL,
			email      TEXT NOT NULL,
			address    TEXT NOT NULL,
			birthdate  TEXT NOT NULL,
			avatar     TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite.Open: create table: %w", err)
	}

	return &SQLite{Db: db, now: time.Now}, nil
}

// Close releases the database handle.
func (s *SQLite) Close() error {
	return s.Db.Close()
}

// CreateStudent inserts a new row into the students table.
func (s *SQLite) CreateStudent(fields types.Fields) (types.Record, error) {
	createdAt := fields.CreatedAt
	if createdAt == "" {
		createdAt = s.now().UTC().Format(time.RFC3339Nano)
	}

	stmt, err := s.Db.Prepare(
		"INSERT INTO students (name, email, address, birthdate, avatar, created_at) VALUES (?, ?, ?, ?, ?, ?)",
	)
	if err != nil {
		return types.Record{}, fmt.Errorf("CreateStudent: prepare: %w", err)
	}
	defer stmt.Close()

	result, err := stmt.Exec(fields.Name, fields.Email, fields.Address, fields.Birthdate, fields.Avatar, createdAt)
	if err != nil {
		return types.Record{}, fmt.Errorf("CreateStudent: exec: %w", err)
	}

	lastID, err := result.LastInsertId()
	if err != nil {
		return types.Record{}, fmt.Errorf("CreateStudent: last insert id: %w", err)
	}

	return types.Record{
		ID:        strconv.FormatInt(lastID, 10),
		Name:      fields.Name,
		Email:     fields.Email,
		Address:   fields.Address,
		Birthdate: fields.Birthdate,
		Avatar:    fields.Avatar,
		CreatedAt: createdAt,
	}, nil
}

// GetStudentByID fetches exactly one student row matched by primary key.
func (s *SQLite) GetStudentByID(id string) (types.Record, error) {
	rowID, ok := parseID(id)
	if !ok {
		return types.Record{}, storage.ErrNotFound
	}

	stmt, err := s.Db.Prepare(
		"SELECT id, name, email, address, birthdate, avatar, created_at FROM students WHERE id = ? LIMIT 1",
	)
	if err != nil {
		return types.Record{}, fmt.Errorf("GetStudentByID: prepare: %w", err)
	}
	defer stmt.Close()

	student, err := scanRecord(stmt.QueryRow(rowID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Record{}, storage.ErrNotFound
		}
		return types.Record{}, fmt.Errorf("GetStudentByID: scan: %w", err)
	}
	return student, nil
}

// GetStudents returns all student rows in insertion order.
func (s *SQLite) GetStudents() ([]types.Record, error) {
	stmt, err := s.Db.Prepare(
		"SELECT id, name, email, address, birthdate, avatar, created_at FROM students ORDER BY id",
	)
	if err != nil {
		return nil, fmt.Errorf("GetStudents: prepare: %w", err)
	}
	defer stmt.Close()

	rows, err := stmt.Query()
	if err != nil {
		return nil, fmt.Errorf("GetStudents: query: %w", err)
	}
	defer rows.Close()

	students := make([]types.Record, 0)
	for rows.Next() {
		student, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("GetStudents: scan row: %w", err)
		}
		students = append(students, student)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("GetStudents: rows iteration: %w", err)
	}

	return students, nil
}

// UpdateStudentByID replaces a student's editable fields and returns the
// stored record. id and created_at are never changed.
func (s *SQLite) UpdateStudentByID(id string, fields types.Fields) (types.Record, error) {
	rowID, ok := parseID(id)
	if !ok {
		return types.Record{}, storage.ErrNotFound
	}

	stmt, err := s.Db.Prepare(
		"UPDATE students SET name = ?, email = ?, address = ?, birthdate = ?, avatar = ? WHERE id = ?",
	)
	if err != nil {
		return types.Record{}, fmt.Errorf("UpdateStudentByID: prepare: %w", err)
	}
	defer stmt.Close()

	result, err := stmt.Exec(fields.Name, fields.Email, fields.Address, fields.Birthdate, fields.Avatar, rowID)
	if err != nil {
		return types.Record{}, fmt.Errorf("UpdateStudentByID: exec: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return types.Record{}, storage.ErrNotFound
	}

	return s.GetStudentByID(id)
}

// DeleteStudentByID removes a student row by primary key.
func (s *SQLite) DeleteStudentByID(id string) error {
	rowID, ok := parseID(id)
	if !ok {
		return storage.ErrNotFound
	}

	stmt, err := s.Db.Prepare("DELETE FROM students WHERE id = ?")
	if err != nil {
		return fmt.Errorf("DeleteStudentByID: prepare: %w", err)
	}
	defer stmt.Close()

	result, err := stmt.Exec(rowID)
	if err != nil {
		return fmt.Errorf("DeleteStudentByID: exec: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("DeleteStudentByID: rows affected: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (types.Record, error) {
	var (
		rec   types.Record
		rowID int64
	)
	if err := row.Scan(
		&rowID,
		&rec.Name,
		&rec.Email,
		&rec.Address,
		&rec.Birthdate,
		&rec.Avatar,
		&rec.CreatedAt,
	); err != nil {
		return types.Record{}, err
	}
	rec.ID = strconv.FormatInt(rowID, 10)
	return rec, nil
}

func parseID(id string) (int64, bool) {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}
