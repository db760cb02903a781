// Package student contains the HTTP handlers of the /student collection.
//
// Each exported function is a factory: it receives the storage once at
// startup and returns the handler invoked on every request.
//
//	router.HandleFunc("POST /student", student.New(storage))
package student

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/aanand-mishra/student-crud/internal/storage"
	"github.com/aanand-mishra/student-crud/internal/types"
	"github.com/aanand-mishra/student-crud/internal/utils/response"
)

// RequestIDHeader is logged with every request when the client sends it.
const RequestIDHeader = "X-Request-ID"

var validate = types.NewValidator()

// Register adds the /student routes to router:
//
//	GET    /student        list all students
//	POST   /student        create a student
//	GET    /student/{id}   get one student
//	PUT    /student/{id}   replace a student's editable fields
//	DELETE /student/{id}   delete a student
func Register(router *http.ServeMux, storage storage.Storage) {
	router.HandleFunc("GET /student", GetList(storage))
	router.HandleFunc("POST /student", New(storage))
	router.HandleFunc("GET /student/{id}", GetByID(storage))
	router.HandleFunc("PUT /student/{id}", Update(storage))
	router.HandleFunc("DELETE /student/{id}", Delete(storage))
}

// New handles POST /student and answers 201 with the created record.
//
//	400 Bad Request  empty body, malformed JSON, or a required field missing
//	500 Internal     database error
func New(storage storage.Storage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := requestLogger(r)
		log.Info("creating a student")

		fields, ok := decodeFields(w, r)
		if !ok {
			return
		}

		student, err := storage.CreateStudent(fields)
		if err != nil {
			log.Error("error creating student", slog.String("error", err.Error()))
			response.WriteJSON(w, http.StatusInternalServerError, response.GeneralError(err))
			return
		}

		log.Info("student created", slog.String("id", student.ID))
		response.WriteJSON(w, http.StatusCreated, student)
	}
}

// GetByID handles GET /student/{id}.
func GetByID(storage storage.Storage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		log := requestLogger(r).With(slog.String("id", id))
		log.Info("getting a student")

		student, err := storage.GetStudentByID(id)
		if err != nil {
			writeStorageError(w, log, "error getting student", err)
			return
		}

		response.WriteJSON(w, http.StatusOK, student)
	}
}

// GetList handles GET /student. An empty collection is [] rather than null.
func GetList(storage storage.Storage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := requestLogger(r)
		log.Info("getting all students")

		students, err := storage.GetStudents()
		if err != nil {
			log.Error("error getting students", slog.String("error", err.Error()))
			response.WriteJSON(w, http.StatusInternalServerError, response.GeneralError(err))
			return
		}

		response.WriteJSON(w, http.StatusOK, students)
	}
}

// Update handles PUT /student/{id}, replacing all editable fields, and
// answers with the stored record.
//
//	400 Bad Request  empty body, malformed JSON, or a required field missing
//	404 Not Found    no student with that id
//	500 Internal     database error
func Update(storage storage.Storage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		log := requestLogger(r).With(slog.String("id", id))
		log.Info("updating a student")

		fields, ok := decodeFields(w, r)
		if !ok {
			return
		}

		updated, err := storage.UpdateStudentByID(id, fields)
		if err != nil {
			writeStorageError(w, log, "error updating student", err)
			return
		}

		log.Info("student updated")
		response.WriteJSON(w, http.StatusOK, updated)
	}
}

// Delete handles DELETE /student/{id} and answers 204 No Content.
// A second delete of the same id answers 404.
func Delete(storage storage.Storage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		log := requestLogger(r).With(slog.String("id", id))
		log.Info("deleting a student")

		if err := storage.DeleteStudentByID(id); err != nil {
			writeStorageError(w, log, "error deleting student", err)
			return
		}

		log.Info("student deleted")
		w.WriteHeader(http.StatusNoContent)
	}
}

// decodeFields reads and validates a create/update body. It writes the
// 400 response itself and reports false when the body is unusable.
func decodeFields(w http.ResponseWriter, r *http.Request) (types.Fields, bool) {
	var fields types.Fields
	err := json.NewDecoder(r.Body).Decode(&fields)
	if errors.Is(err, io.EOF) {
		response.WriteJSON(w, http.StatusBadRequest,
			response.GeneralError(errors.New("request body is empty")))
		return types.Fields{}, false
	}
	if err != nil {
		response.WriteJSON(w, http.StatusBadRequest, response.GeneralError(err))
		return types.Fields{}, false
	}

	if err := validate.Struct(fields); err != nil {
		var validateErrs validator.ValidationErrors
		if errors.As(err, &validateErrs) {
			response.WriteJSON(w, http.StatusBadRequest, response.ValidationError(validateErrs))
		} else {
			response.WriteJSON(w, http.StatusBadRequest, response.GeneralError(err))
		}
		return types.Fields{}, false
	}
	return fields, true
}

func writeStorageError(w http.ResponseWriter, log *slog.Logger, msg string, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		response.WriteJSON(w, http.StatusNotFound, response.GeneralError(err))
		return
	}
	log.Error(msg, slog.String("error", err.Error()))
	response.WriteJSON(w, http.StatusInternalServerError, response.GeneralError(err))
}

func requestLogger(r *http.Request) *slog.Logger {
	if id := r.Header.Get(RequestIDHeader); id != "" {
		return slog.With(slog.String("request_id", id))
	}
	return slog.Default()
}
