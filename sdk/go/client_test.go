package shelterclient_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shelter/internal/config"
	"shelter/internal/db"
	"shelter/internal/engine"
	"shelter/internal/migrate"
	"shelter/internal/server"
	shelterclient "shelter/sdk/go"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn))
	e := engine.New(conn, config.Default())
	_, err = e.BootstrapAdmin(context.Background(), "admin")
	require.NoError(t, err)

	handler, err := server.New(server.Config{
		Engine:   e,
		BasePath: "/v1",
		Auth:     server.AuthConfig{JWTSecret: "sdk-secret", AllowDevLogin: true},
	})
	require.NoError(t, err)
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestClientAdoptionRoundTrip(t *testing.T) {
	srv := newServer(t)
	ctx := context.Background()

	admin := shelterclient.New(srv.URL)
	require.NoError(t, admin.Login(ctx, "admin"))
	animal, err := admin.CreateAnimal(ctx, shelterclient.Animal{Name: "Барсик", Species: "Кот", HealthStatus: "Здоров"})
	require.NoError(t, err)
	assert.Equal(t, "in_shelter", animal.Status)

	anna := shelterclient.New(srv.URL)
	_, err = anna.Register(ctx, "anna", true, false, "кошка")
	require.NoError(t, err)
	require.NoError(t, anna.Login(ctx, "anna"))
	me, err := anna.Me(ctx)
	require.NoError(t, err)
	assert.Equal(t, "adopter", me.User.Role)

	ad, err := anna.CreateAdoption(ctx, animal.ID)
	require.NoError(t, err)
	assert.Equal(t, "pending", ad.Status)

	approved, err := admin.Approve(ctx, ad.ID)
	require.NoError(t, err)
	assert.Equal(t, "approved", approved.Status)

	returnable, err := anna.Returnable(ctx)
	require.NoError(t, err)
	require.Len(t, returnable, 1)

	ret, err := anna.ReturnAnimal(ctx, ad.ID, "аллергия")
	require.NoError(t, err)
	assert.Equal(t, ad.ID, ret.AdoptionID)

	_, err = anna.ReturnAnimal(ctx, ad.ID, "снова")
	var apiErr *shelterclient.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusConflict, apiErr.StatusCode)
	assert.Equal(t, "invalid_state", apiErr.Code)

	got, err := anna.GetAdoption(ctx, ad.ID)
	require.NoError(t, err)
	assert.Equal(t, "returned", got.Status)
	require.NotNil(t, got.HasReturn)
	assert.True(t, *got.HasReturn)

	back, err := admin.GetAnimal(ctx, animal.ID)
	require.NoError(t, err)
	assert.Equal(t, "in_shelter", back.Status)

	events, err := admin.Events(ctx, 100)
	require.NoError(t, err)
	assert.NotEmpty(t, events)
}

func TestClientPaginatesAdoptions(t *testing.T) {
	srv := newServer(t)
	ctx := context.Background()
	admin := shelterclient.New(srv.URL)
	require.NoError(t, admin.Login(ctx, "admin"))
	anna, err := admin.CreateUser(ctx, "anna", "adopter")
	require.NoError(t, err)

	for _, name := range []string{"Мурка", "Шарик", "Рыжик"} {
		a, err := admin.CreateAnimal(ctx, shelterclient.Animal{Name: name, Species: "Кот", HealthStatus: "Здоров"})
		require.NoError(t, err)
		_, err = admin.CreateAdoptionFor(ctx, anna.ID, a.ID)
		require.NoError(t, err)
	}

	seen := map[string]bool{}
	q := shelterclient.AdoptionQuery{Limit: 2}
	for {
		page, err := admin.ListAdoptions(ctx, q)
		require.NoError(t, err)
		for _, ad := range page.Items {
			seen[ad.ID] = true
		}
		if page.NextCursor == "" {
			break
		}
		q.Cursor = page.NextCursor
	}
	assert.Len(t, seen, 3)
}

func TestClientAPIKeyAndErrors(t *testing.T) {
	srv := newServer(t)
	ctx := context.Background()
	admin := shelterclient.New(srv.URL)
	require.NoError(t, admin.Login(ctx, "admin"))
	vera, err := admin.CreateUser(ctx, "vera", "volunteer")
	require.NoError(t, err)
	key, err := admin.IssueAPIKey(ctx, vera.ID, "kiosk")
	require.NoError(t, err)
	require.NotEmpty(t, key.Key)

	volunteer := shelterclient.New(srv.URL)
	volunteer.APIKey = key.Key
	me, err := volunteer.Me(ctx)
	require.NoError(t, err)
	assert.Equal(t, "vera", me.User.Username)

	_, err = volunteer.CreateUser(ctx, "mallory", "admin")
	var apiErr *shelterclient.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)

	anon := shelterclient.New(srv.URL)
	animals, err := anon.ListAnimals(ctx, "", "")
	require.NoError(t, err)
	assert.Empty(t, animals)
	_, err = anon.Me(ctx)
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
}
