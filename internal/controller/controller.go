// Package controller holds the student form and list state.
//
// The controller is either Idle (submitting creates a record) or Editing
// a record id (submitting updates that record). Every mutation goes
// through the injected query cache, so the rendered list always equals
// the last snapshot fetched from the record store.
package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/aanand-mishra/student-crud/internal/querycache"
	"github.com/aanand-mishra/student-crud/internal/recordstore"
	"github.com/aanand-mishra/student-crud/internal/types"
)

// StudentsKey is the query key of the student collection snapshot.
const StudentsKey = "students"

var (
	// ErrIncomplete is returned by Submit when a required field is empty.
	// No request is sent in that case.
	ErrIncomplete = errors.New("controller: name, email, address and birthdate are required")
	// ErrUnknownRecord is returned by BeginEdit for an id absent from the
	// current snapshot.
	ErrUnknownRecord = errors.New("controller: record not in current list")
	// ErrUnknownField is returned by SetField for a name that is not editable.
	ErrUnknownField = errors.New("controller: unknown field")
	// ErrSubmitting is returned by Submit while an earlier submit is in flight.
	ErrSubmitting = errors.New("controller: submit already in progress")
)

// Mode is the edit state of the controller.
type Mode int

const (
	ModeIdle Mode = iota
	ModeEditing
)

func (m Mode) String() string {
	if m == ModeEditing {
		return "editing"
	}
	return "idle"
}

// View is everything needed to render the student page.
type View struct {
	Status    querycache.Status
	Records   []types.Record
	Err       error
	Draft     types.Fields
	EditingID string
	// Pending is the number of mutations in flight.
	Pending int
}

// Mode reports whether the view is editing a record.
func (v View) Mode() Mode {
	if v.EditingID != "" {
		return ModeEditing
	}
	return ModeIdle
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the controller's logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.log = l
		}
	}
}

// WithClock overrides the clock used to stamp createdAt on new records.
func WithClock(fn func() time.Time) Option {
	return func(c *Controller) {
		if fn != nil {
			c.now = fn
		}
	}
}

// Controller owns the edit draft and dispatches create, update and delete
// through the query cache.
type Controller struct {
	cache    *querycache.Cache[[]types.Record]
	store    recordstore.Store
	log      *slog.Logger
	now      func() time.Time
	validate *validator.Validate

	mu         sync.Mutex
	draft      types.Fields
	editingID  string
	submitting bool
	// version changes whenever the draft or the editing target does, so a
	// completing submit can tell whether the form moved on meanwhile.
	version uint64
}

// New returns an Idle controller with an empty draft.
func New(cache *querycache.Cache[[]types.Record], store recordstore.Store, opts ...Option) *Controller {
	c := &Controller{
		cache:    cache,
		store:    store,
		log:      slog.Default(),
		now:      time.Now,
		validate: types.NewValidator(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Controller) list(ctx context.Context) ([]types.Record, error) {
	return c.store.List(ctx)
}

// View reads the student snapshot (starting a fetch if needed) and
// combines it with the form state.
func (c *Controller) View() View {
	res := c.cache.Read(StudentsKey, c.list)
	return c.view(res)
}

// Load blocks until the student snapshot is settled and returns the view.
func (c *Controller) Load(ctx context.Context) (View, error) {
	res, err := c.cache.Await(ctx, StudentsKey, c.list)
	if err != nil {
		return c.view(res), err
	}
	return c.view(res), nil
}

// Retry refetches the student snapshot after a failed load.
func (c *Controller) Retry() <-chan struct{} {
	c.cache.Read(StudentsKey, c.list)
	return c.cache.Refetch(StudentsKey)
}

func (c *Controller) view(res querycache.Result[[]types.Record]) View {
	v := View{
		Status:  res.Status,
		Err:     res.Err,
		Pending: c.cache.Pending(),
	}
	if res.Status == querycache.StatusSuccess {
		v.Records = res.Data
	}

	c.mu.Lock()
	v.Draft = c.draft
	v.EditingID = c.editingID
	c.mu.Unlock()
	return v
}

// SetField changes one field of the draft.
func (c *Controller) SetField(name, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.draft.Set(name, value) {
		return fmt.Errorf("%w: %q", ErrUnknownField, name)
	}
	c.version++
	return nil
}

// SetDraft replaces the whole draft, keeping the editing target.
func (c *Controller) SetDraft(f types.Fields) {
	c.mu.Lock()
	defer c.mu.Unlock()
	f.CreatedAt = ""
	c.draft = f
	c.version++
}

// BeginEdit switches to editing id, loading the draft from the record's
// cached fields. Unsaved changes to a previous draft are discarded.
func (c *Controller) BeginEdit(id string) error {
	res := c.cache.Read(StudentsKey, c.list)
	if !res.HasData {
		return fmt.Errorf("%w: %s", ErrUnknownRecord, id)
	}
	for _, rec := range res.Data {
		if rec.ID != id {
			continue
		}
		c.mu.Lock()
		c.draft = rec.Fields()
		c.editingID = id
		c.version++
		c.mu.Unlock()
		c.log.Debug("editing student", slog.String("id", id))
		return nil
	}
	return fmt.Errorf("%w: %s", ErrUnknownRecord, id)
}

// Cancel returns to Idle and clears the draft.
func (c *Controller) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetLocked()
}

// Submit creates a record from the draft when Idle, or updates the record
// being edited, and returns the record the server stored. On success the
// controller returns to Idle with an empty draft, unless the form was
// changed while the request was in flight. A NotFound on update also
// returns to Idle, since the target is gone. Any other failure keeps the
// draft so it can be resubmitted.
func (c *Controller) Submit(ctx context.Context) (types.Record, error) {
	c.mu.Lock()
	if c.submitting {
		c.mu.Unlock()
		return types.Record{}, ErrSubmitting
	}
	draft := c.draft
	id := c.editingID
	version := c.version

	if missing := c.missingFields(draft); len(missing) > 0 {
		c.mu.Unlock()
		return types.Record{}, fmt.Errorf("%w: missing %s", ErrIncomplete, strings.Join(missing, ", "))
	}
	c.submitting = true
	c.mu.Unlock()

	var (
		rec types.Record
		err error
	)
	if id == "" {
		draft.CreatedAt = c.now().UTC().Format("2006-01-02T15:04:05.000Z07:00")
		rec, err = querycache.Mutate(ctx, c.cache, func(ctx context.Context) (types.Record, error) {
			return c.store.Create(ctx, draft)
		}, StudentsKey)
	} else {
		rec, err = querycache.Mutate(ctx, c.cache, func(ctx context.Context) (types.Record, error) {
			return c.store.Update(ctx, id, draft)
		}, StudentsKey)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.submitting = false

	switch {
	case err == nil:
		if id == "" {
			c.log.Info("student created", slog.String("id", rec.ID))
		} else {
			c.log.Info("student updated", slog.String("id", id))
		}
		if c.version == version {
			c.resetLocked()
		}
		return rec, nil
	case id != "" && errors.Is(err, recordstore.ErrNotFound):
		c.log.Warn("edited student no longer exists", slog.String("id", id))
		if c.editingID == id {
			c.resetLocked()
		}
		return types.Record{}, fmt.Errorf("update %s: %w", id, err)
	case id == "":
		c.log.Error("create failed", slog.String("error", err.Error()))
		return types.Record{}, fmt.Errorf("create: %w", err)
	default:
		c.log.Error("update failed", slog.String("id", id), slog.String("error", err.Error()))
		return types.Record{}, fmt.Errorf("update %s: %w", id, err)
	}
}

// Delete removes the record with the given id. If it is the record being
// edited, the controller returns to Idle and the draft is cleared; this
// also happens when the record was already gone.
func (c *Controller) Delete(ctx context.Context, id string) error {
	_, err := querycache.Mutate(ctx, c.cache, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.store.Delete(ctx, id)
	}, StudentsKey)
	if err != nil && !errors.Is(err, recordstore.ErrNotFound) {
		c.log.Error("delete failed", slog.String("id", id), slog.String("error", err.Error()))
		return fmt.Errorf("delete %s: %w", id, err)
	}

	c.mu.Lock()
	if c.editingID == id {
		c.resetLocked()
	}
	c.mu.Unlock()

	if err != nil {
		return fmt.Errorf("delete %s: %w", id, err)
	}
	c.log.Info("student deleted", slog.String("id", id))
	return nil
}

func (c *Controller) resetLocked() {
	c.draft = types.Fields{}
	c.editingID = ""
	c.version++
}

// missingFields lists the JSON names of empty required fields.
func (c *Controller) missingFields(f types.Fields) []string {
	err := c.validate.Struct(f)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []string{err.Error()}
	}
	missing := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		missing = append(missing, fe.Field())
	}
	return missing
}
