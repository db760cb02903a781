// Package storage defines the Storage interface that backs the reference
// /student endpoint. Handlers depend only on this interface, so tests can
// substitute another implementation.
package storage

import (
	"errors"

	"github.com/aanand-mishra/student-crud/internal/types"
)

// ErrNotFound is returned when no student has the requested id.
var ErrNotFound = errors.New("student not found")

// Storage is the database contract.
type Storage interface {
	// CreateStudent inserts a record and returns it with its assigned id.
	// CreatedAt is kept when set and assigned otherwise.
	CreateStudent(fields types.Fields) (types.Record, error)

	// GetStudentByID fetches one student; ErrNotFound if absent.
	GetStudentByID(id string) (types.Record, error)

	// GetStudents returns every student in insertion order.
	// Returns an empty slice (not nil) if there are none.
	GetStudents() ([]types.Record, error)

	// UpdateStudentByID replaces the editable fields of a student and
	// returns the stored record; ErrNotFound if absent.
	UpdateStudentByID(id string, fields types.Fields) (types.Record, error)

	// DeleteStudentByID removes a student; ErrNotFound if absent.
	DeleteStudentByID(id string) error
}
