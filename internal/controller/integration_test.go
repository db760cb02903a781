package controller_test

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aanand-mishra/student-crud/internal/controller"
	"github.com/aanand-mishra/student-crud/internal/http/handlers/student"
	"github.com/aanand-mishra/student-crud/internal/querycache"
	"github.com/aanand-mishra/student-crud/internal/recordstore"
	"github.com/aanand-mishra/student-crud/internal/storage/sqlite"
	"github.com/aanand-mishra/student-crud/internal/types"
)

// newStack runs the /student handlers over a fresh SQLite file and returns
// a controller wired to it through the real HTTP client.
func newStack(t *testing.T) (*controller.Controller, *recordstore.Client) {
	t.Helper()

	db, err := sqlite.Open(filepath.Join(t.TempDir(), "students.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	router := http.NewServeMux()
	student.Register(router, db)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	client, err := recordstore.New(srv.URL)
	require.NoError(t, err)

	cache := querycache.New[[]types.Record](context.Background())
	t.Cleanup(cache.Close)
	return controller.New(cache, client), client
}

func TestStack_CreateEditDelete(t *testing.T) {
	ctx := context.Background()
	c, client := newStack(t)

	v := load(t, c)
	require.Equal(t, querycache.StatusSuccess, v.Status)
	require.Empty(t, v.Records)

	c.SetDraft(bo)
	created, err := c.Submit(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)
	require.NotEmpty(t, created.CreatedAt)

	v = c.View()
	require.Len(t, v.Records, 1)
	require.Equal(t, "Bo", v.Records[0].Name)

	require.NoError(t, c.BeginEdit(created.ID))
	require.NoError(t, c.SetField(types.FieldAvatar, "https://example.com/bo.png"))
	_, err = c.Submit(ctx)
	require.NoError(t, err)

	v = c.View()
	require.Equal(t, controller.ModeIdle, v.Mode())
	require.Equal(t, "https://example.com/bo.png", v.Records[0].Avatar)
	require.Equal(t, created.CreatedAt, v.Records[0].CreatedAt)

	var buf bytes.Buffer
	require.NoError(t, controller.Render(&buf, v))
	require.Contains(t, buf.String(), "Bo")
	require.Contains(t, buf.String(), "[Submit]")

	// another client deletes the record while it is being edited
	require.NoError(t, c.BeginEdit(created.ID))
	require.NoError(t, client.Delete(ctx, created.ID))

	_, err = c.Submit(ctx)
	require.ErrorIs(t, err, recordstore.ErrNotFound)
	require.Equal(t, controller.ModeIdle, c.View().Mode())

	// a repeated delete is NotFound
	require.ErrorIs(t, c.Delete(ctx, created.ID), recordstore.ErrNotFound)
}

func TestStack_ServerRejectsIncompleteBody(t *testing.T) {
	_, client := newStack(t)

	_, err := client.Create(context.Background(), types.Fields{Name: "only a name"})
	require.ErrorIs(t, err, recordstore.ErrValidation)
}
