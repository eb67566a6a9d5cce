package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shelter/internal/config"
	"shelter/internal/db"
	"shelter/internal/domain"
	"shelter/internal/engine"
	"shelter/internal/engine/auth"
	"shelter/internal/metrics"
	"shelter/internal/migrate"
)

const testSecret = "test-secret"

type testServer struct {
	URL    string
	Engine engine.Engine
	Auth   AuthConfig
	client *http.Client
	close  func()

	Admin     auth.Actor
	Volunteer auth.Actor
	Anna      auth.Actor
	Boris     auth.Actor
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func (s *testServer) api(p string) string { return s.URL + "/v1" + p }

// as returns bearer headers for the actor.
func (s *testServer) as(t *testing.T, a auth.Actor) map[string]string {
	t.Helper()
	token, err := SignToken(s.Auth, a.ID, time.Now())
	require.NoError(t, err)
	return map[string]string{"Authorization": "Bearer " + token}
}

func (s *testServer) animal(t *testing.T, name string) domain.Animal {
	t.Helper()
	a, err := s.Engine.CreateAnimal(context.Background(), s.Admin, engine.AnimalInput{Name: name, Species: "Кот", HealthStatus: "Здоров"})
	require.NoError(t, err)
	return a
}

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	require.NoError(t, migrate.Migrate(conn))
	cfg := config.Default()
	e := engine.New(conn, cfg)
	m := metrics.NewPrometheus()
	e.Metrics = m
	ctx := context.Background()

	admin, err := e.BootstrapAdmin(ctx, "admin")
	require.NoError(t, err)
	adminActor := auth.Actor{ID: admin.ID, Role: admin.Role}
	user := func(name, role string) auth.Actor {
		u, err := e.CreateUser(ctx, adminActor, engine.UserInput{Username: name, Role: role})
		require.NoError(t, err)
		return auth.Actor{ID: u.ID, Role: u.Role}
	}

	authCfg := AuthConfig{JWTSecret: testSecret, JWTIssuer: "shelter", AllowDevLogin: true}
	handler, err := New(Config{Engine: e, BasePath: "/v1", Auth: authCfg, Metrics: m.Handler()})
	require.NoError(t, err)
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Engine: e,
		Auth:   authCfg,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
		Admin:     adminActor,
		Volunteer: user("vera", domain.RoleVolunteer),
		Anna:      user("anna", domain.RoleAdopter),
		Boris:     user("boris", domain.RoleAdopter),
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res, data
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(data, &v), string(data))
	return v
}

func errorCode(t *testing.T, data []byte) string {
	t.Helper()
	env := decode[struct {
		Error apiErrorBody `json:"error"`
	}](t, data)
	return env.Error.Code
}

func TestHealthAndAuthRequired(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, _ := doJSON(t, srv.Client(), http.MethodGet, srv.api("/health"), nil, nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)

	res, body := doJSON(t, srv.Client(), http.MethodGet, srv.api("/adoptions"), nil, nil)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.Equal(t, "unauthorized", errorCode(t, body))

	res, body = doJSON(t, srv.Client(), http.MethodGet, srv.api("/adoptions"), nil, map[string]string{"Authorization": "Bearer garbage"})
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.Equal(t, "invalid_credentials", errorCode(t, body))

	res, _ = doJSON(t, srv.Client(), http.MethodGet, srv.api("/adoptions"), nil, map[string]string{"X-Api-Key": "shk_unknown"})
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
}

func TestAdoptionLifecycleOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	barsik := srv.animal(t, "Барсик")
	c := srv.Client()

	res, body := doJSON(t, c, http.MethodPost, srv.api("/adoptions"), map[string]any{"animal_id": barsik.ID}, srv.as(t, srv.Anna))
	require.Equal(t, http.StatusCreated, res.StatusCode, string(body))
	annaReq := decode[AdoptionResponse](t, body)
	assert.Equal(t, domain.AdoptionPending, annaReq.Status)
	assert.Equal(t, srv.Anna.ID, annaReq.UserID)

	res, body = doJSON(t, c, http.MethodPost, srv.api("/adoptions"), map[string]any{"animal_id": barsik.ID}, srv.as(t, srv.Boris))
	require.Equal(t, http.StatusCreated, res.StatusCode, string(body))
	borisReq := decode[AdoptionResponse](t, body)

	res, body = doJSON(t, c, http.MethodPut, srv.api("/adoptions/"+annaReq.ID), map[string]any{"status": "approved"}, srv.as(t, srv.Volunteer))
	assert.Equal(t, http.StatusForbidden, res.StatusCode)
	assert.Equal(t, "forbidden", errorCode(t, body))

	res, body = doJSON(t, c, http.MethodPut, srv.api("/adoptions/"+annaReq.ID), map[string]any{"status": "approved"}, srv.as(t, srv.Admin))
	require.Equal(t, http.StatusOK, res.StatusCode, string(body))
	assert.Equal(t, domain.AdoptionApproved, decode[AdoptionResponse](t, body).Status)

	res, body = doJSON(t, c, http.MethodGet, srv.api("/adoptions/"+borisReq.ID), nil, srv.as(t, srv.Boris))
	require.Equal(t, http.StatusOK, res.StatusCode, string(body))
	cascaded := decode[AdoptionResponse](t, body)
	assert.Equal(t, domain.AdoptionRejected, cascaded.Status)
	assert.Equal(t, config.Default().Lifecycle.CascadeRejectionReason, cascaded.RejectionReason)

	res, body = doJSON(t, c, http.MethodGet, srv.api("/animals/"+barsik.ID), nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, domain.AnimalAdopted, decode[domain.Animal](t, body).Status)

	res, body = doJSON(t, c, http.MethodGet, srv.api("/adoptions/returnable"), nil, srv.as(t, srv.Anna))
	require.Equal(t, http.StatusOK, res.StatusCode)
	returnable := decode[[]AdoptionResponse](t, body)
	require.Len(t, returnable, 1)
	assert.Equal(t, annaReq.ID, returnable[0].ID)

	res, body = doJSON(t, c, http.MethodPost, srv.api("/adoptions/"+annaReq.ID+"/return"), map[string]any{"reason": "Аллергия"}, srv.as(t, srv.Boris))
	assert.Equal(t, http.StatusForbidden, res.StatusCode, string(body))

	res, body = doJSON(t, c, http.MethodPost, srv.api("/adoptions/"+annaReq.ID+"/return"), map[string]any{"reason": "Аллергия"}, srv.as(t, srv.Anna))
	require.Equal(t, http.StatusCreated, res.StatusCode, string(body))
	ret := decode[ReturnResponse](t, body)
	assert.Equal(t, annaReq.ID, ret.AdoptionID)
	assert.Nil(t, ret.ProcessedBy)

	res, body = doJSON(t, c, http.MethodGet, srv.api("/adoptions/"+annaReq.ID), nil, srv.as(t, srv.Anna))
	require.Equal(t, http.StatusOK, res.StatusCode)
	after := decode[AdoptionResponse](t, body)
	assert.Equal(t, domain.AdoptionReturned, after.Status)
	require.NotNil(t, after.HasReturn)
	assert.True(t, *after.HasReturn)

	res, _ = doJSON(t, c, http.MethodPost, srv.api("/adoptions/"+annaReq.ID+"/return"), map[string]any{"reason": "Снова"}, srv.as(t, srv.Anna))
	assert.Equal(t, http.StatusConflict, res.StatusCode)

	res, body = doJSON(t, c, http.MethodGet, srv.api("/animals/"+barsik.ID), nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, domain.AnimalInShelter, decode[domain.Animal](t, body).Status)

	res, body = doJSON(t, c, http.MethodGet, srv.api("/returns"), nil, srv.as(t, srv.Boris))
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Empty(t, decode[[]ReturnResponse](t, body))
}

func TestErrorStatuses(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	barsik := srv.animal(t, "Барсик")
	c := srv.Client()

	res, body := doJSON(t, c, http.MethodPost, srv.api("/adoptions"), map[string]any{"animal_id": "missing"}, srv.as(t, srv.Anna))
	assert.Equal(t, http.StatusNotFound, res.StatusCode, string(body))

	res, body = doJSON(t, c, http.MethodPost, srv.api("/adoptions"), map[string]any{"animal_id": barsik.ID}, srv.as(t, srv.Anna))
	require.Equal(t, http.StatusCreated, res.StatusCode, string(body))
	annaReq := decode[AdoptionResponse](t, body)

	res, body = doJSON(t, c, http.MethodPost, srv.api("/adoptions"), map[string]any{"animal_id": barsik.ID}, srv.as(t, srv.Anna))
	assert.Equal(t, http.StatusConflict, res.StatusCode)
	assert.Equal(t, "conflict", errorCode(t, body))

	res, body = doJSON(t, c, http.MethodPut, srv.api("/adoptions/"+annaReq.ID), map[string]any{"status": "rejected"}, srv.as(t, srv.Admin))
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Equal(t, "validation_failed", errorCode(t, body))

	res, _ = doJSON(t, c, http.MethodPut, srv.api("/adoptions/"+annaReq.ID), map[string]any{"status": "sold"}, srv.as(t, srv.Admin))
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	res, _ = doJSON(t, c, http.MethodGet, srv.api("/adoptions/"+annaReq.ID), nil, srv.as(t, srv.Boris))
	assert.Equal(t, http.StatusNotFound, res.StatusCode)

	res, _ = doJSON(t, c, http.MethodPost, srv.api("/adoptions"), map[string]any{"animal_id": barsik.ID}, srv.as(t, srv.Volunteer))
	assert.Equal(t, http.StatusForbidden, res.StatusCode)

	res, _ = doJSON(t, c, http.MethodPut, srv.api("/adoptions/"+annaReq.ID), map[string]any{"status": "approved"}, srv.as(t, srv.Admin))
	require.Equal(t, http.StatusOK, res.StatusCode)

	res, body = doJSON(t, c, http.MethodPost, srv.api("/adoptions"), map[string]any{"animal_id": barsik.ID}, srv.as(t, srv.Boris))
	assert.Equal(t, http.StatusConflict, res.StatusCode)
	assert.Equal(t, "invalid_state", errorCode(t, body))

	res, body = doJSON(t, c, http.MethodPut, srv.api("/adoptions/"+annaReq.ID), map[string]any{"status": "pending"}, srv.as(t, srv.Admin))
	assert.Equal(t, http.StatusConflict, res.StatusCode)
	assert.Equal(t, "invalid_state", errorCode(t, body))

	res, _ = doJSON(t, c, http.MethodDelete, srv.api("/animals/"+barsik.ID), nil, srv.as(t, srv.Admin))
	assert.Equal(t, http.StatusConflict, res.StatusCode)

	res, _ = doJSON(t, c, http.MethodGet, srv.api("/adoptions?cursor=broken"), nil, srv.as(t, srv.Admin))
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestAdminFilesOnBehalfAndProcessesReturn(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	murka := srv.animal(t, "Мурка")
	c := srv.Client()

	res, body := doJSON(t, c, http.MethodPost, srv.api("/adoptions"), map[string]any{"animal_id": murka.ID, "user_id": srv.Boris.ID}, srv.as(t, srv.Admin))
	require.Equal(t, http.StatusCreated, res.StatusCode, string(body))
	req := decode[AdoptionResponse](t, body)
	assert.Equal(t, srv.Boris.ID, req.UserID)

	res, _ = doJSON(t, c, http.MethodPost, srv.api("/adoptions"), map[string]any{"animal_id": murka.ID, "user_id": srv.Anna.ID}, srv.as(t, srv.Boris))
	assert.Equal(t, http.StatusForbidden, res.StatusCode)

	res, _ = doJSON(t, c, http.MethodPut, srv.api("/adoptions/"+req.ID), map[string]any{"status": "approved"}, srv.as(t, srv.Admin))
	require.Equal(t, http.StatusOK, res.StatusCode)

	res, _ = doJSON(t, c, http.MethodPost, srv.api("/returns"), map[string]any{"adoption_id": req.ID, "reason": "Переезд"}, srv.as(t, srv.Boris))
	assert.Equal(t, http.StatusForbidden, res.StatusCode)

	res, body = doJSON(t, c, http.MethodPost, srv.api("/returns"), map[string]any{"adoption_id": req.ID, "reason": "Переезд"}, srv.as(t, srv.Admin))
	require.Equal(t, http.StatusCreated, res.StatusCode, string(body))
	ret := decode[ReturnResponse](t, body)
	require.NotNil(t, ret.ProcessedBy)
	assert.Equal(t, srv.Admin.ID, *ret.ProcessedBy)

	res, body = doJSON(t, c, http.MethodGet, srv.api("/returns/"+ret.ID), nil, srv.as(t, srv.Boris))
	require.Equal(t, http.StatusOK, res.StatusCode, string(body))

	res, _ = doJSON(t, c, http.MethodGet, srv.api("/returns/"+ret.ID), nil, srv.as(t, srv.Anna))
	assert.Equal(t, http.StatusNotFound, res.StatusCode)

	res, _ = doJSON(t, c, http.MethodDelete, srv.api("/returns/"+ret.ID), nil, srv.as(t, srv.Admin))
	assert.Equal(t, http.StatusNoContent, res.StatusCode)

	res, _ = doJSON(t, c, http.MethodDelete, srv.api("/adoptions/"+req.ID), nil, srv.as(t, srv.Admin))
	assert.Equal(t, http.StatusNoContent, res.StatusCode)
	res, _ = doJSON(t, c, http.MethodGet, srv.api("/adoptions/"+req.ID), nil, srv.as(t, srv.Admin))
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestAnimalDirectory(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	c := srv.Client()
	animal := map[string]any{"name": "Шарик", "species": "Собака", "health_status": "Здоров", "age_years": 2}

	res, _ := doJSON(t, c, http.MethodPost, srv.api("/animals"), animal, nil)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

	res, _ = doJSON(t, c, http.MethodPost, srv.api("/animals"), animal, srv.as(t, srv.Anna))
	assert.Equal(t, http.StatusForbidden, res.StatusCode)

	res, body := doJSON(t, c, http.MethodPost, srv.api("/animals"), animal, srv.as(t, srv.Volunteer))
	require.Equal(t, http.StatusCreated, res.StatusCode, string(body))
	sharik := decode[domain.Animal](t, body)
	assert.Equal(t, domain.AnimalInShelter, sharik.Status)
	srv.animal(t, "Барсик")

	res, body = doJSON(t, c, http.MethodGet, srv.api("/animals?species="+url.QueryEscape("Собака")), nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	dogs := decode[[]domain.Animal](t, body)
	require.Len(t, dogs, 1)
	assert.Equal(t, sharik.ID, dogs[0].ID)

	animal["description"] = "Любит гулять"
	res, body = doJSON(t, c, http.MethodPut, srv.api("/animals/"+sharik.ID), animal, srv.as(t, srv.Volunteer))
	require.Equal(t, http.StatusOK, res.StatusCode, string(body))
	assert.Equal(t, "Любит гулять", decode[domain.Animal](t, body).Description)

	delete(animal, "description")
	animal["health_status"] = ""
	res, _ = doJSON(t, c, http.MethodPut, srv.api("/animals/"+sharik.ID), animal, srv.as(t, srv.Volunteer))
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	res, _ = doJSON(t, c, http.MethodDelete, srv.api("/animals/"+sharik.ID), nil, srv.as(t, srv.Volunteer))
	assert.Equal(t, http.StatusNoContent, res.StatusCode)
	res, _ = doJSON(t, c, http.MethodGet, srv.api("/animals/"+sharik.ID), nil, nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestAdoptionPagination(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	c := srv.Client()
	for i := 0; i < 3; i++ {
		a := srv.animal(t, fmt.Sprintf("Кот %d", i))
		res, body := doJSON(t, c, http.MethodPost, srv.api("/adoptions"), map[string]any{"animal_id": a.ID}, srv.as(t, srv.Anna))
		require.Equal(t, http.StatusCreated, res.StatusCode, string(body))
	}

	res, body := doJSON(t, c, http.MethodGet, srv.api("/adoptions?limit=2"), nil, srv.as(t, srv.Admin))
	require.Equal(t, http.StatusOK, res.StatusCode, string(body))
	page := decode[paginatedAdoptions](t, body)
	require.Len(t, page.Items, 2)
	require.NotEmpty(t, page.NextCursor)

	res, body = doJSON(t, c, http.MethodGet, srv.api("/adoptions?limit=2&cursor="+page.NextCursor), nil, srv.as(t, srv.Admin))
	require.Equal(t, http.StatusOK, res.StatusCode, string(body))
	next := decode[paginatedAdoptions](t, body)
	require.Len(t, next.Items, 1)
	assert.Empty(t, next.NextCursor)
	for _, it := range page.Items {
		assert.NotEqual(t, it.ID, next.Items[0].ID)
	}

	res, body = doJSON(t, c, http.MethodGet, srv.api("/adoptions"), nil, srv.as(t, srv.Boris))
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Empty(t, decode[paginatedAdoptions](t, body).Items)
}

func TestUsersKeysAndLogin(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	c := srv.Client()

	res, body := doJSON(t, c, http.MethodPost, srv.api("/auth/register"), map[string]any{"username": "galya", "has_experience": true}, nil)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(body))
	galya := decode[domain.User](t, body)
	assert.Equal(t, domain.RoleAdopter, galya.Role)

	res, _ = doJSON(t, c, http.MethodPost, srv.api("/auth/register"), map[string]any{"username": "galya"}, nil)
	assert.Equal(t, http.StatusConflict, res.StatusCode)

	res, body = doJSON(t, c, http.MethodPost, srv.api("/auth/dev/login"), map[string]any{"username": "galya"}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(body))
	token := decode[DevLoginResponse](t, body).Token

	res, body = doJSON(t, c, http.MethodGet, srv.api("/me"), nil, map[string]string{"Authorization": "Bearer " + token})
	require.Equal(t, http.StatusOK, res.StatusCode, string(body))
	me := decode[MeResponse](t, body)
	assert.Equal(t, galya.ID, me.User.ID)
	assert.Equal(t, "jwt", me.Source)

	res, body = doJSON(t, c, http.MethodPost, srv.api("/users/"+galya.ID+"/api-keys"), map[string]any{"name": "cli"}, map[string]string{"Authorization": "Bearer " + token})
	require.Equal(t, http.StatusCreated, res.StatusCode, string(body))
	key := decode[APIKeyResponse](t, body)
	assert.True(t, strings.HasPrefix(key.Key, "shk_"))

	res, body = doJSON(t, c, http.MethodGet, srv.api("/me"), nil, map[string]string{"X-Api-Key": key.Key})
	require.Equal(t, http.StatusOK, res.StatusCode, string(body))
	assert.Equal(t, "api_key", decode[MeResponse](t, body).Source)

	res, body = doJSON(t, c, http.MethodGet, srv.api("/users"), nil, map[string]string{"X-Api-Key": key.Key})
	require.Equal(t, http.StatusOK, res.StatusCode)
	visible := decode[[]domain.User](t, body)
	require.Len(t, visible, 1)
	assert.Equal(t, galya.ID, visible[0].ID)

	res, body = doJSON(t, c, http.MethodGet, srv.api("/users/"+galya.ID+"/api-keys"), nil, map[string]string{"X-Api-Key": key.Key})
	require.Equal(t, http.StatusOK, res.StatusCode, string(body))
	listed := decode[[]APIKeyResponse](t, body)
	require.Len(t, listed, 1)
	assert.Equal(t, key.ID, listed[0].ID)
	assert.Empty(t, listed[0].Key)

	res, _ = doJSON(t, c, http.MethodDelete, srv.api("/users/"+galya.ID+"/api-keys/"+key.ID), nil, srv.as(t, srv.Boris))
	assert.Equal(t, http.StatusForbidden, res.StatusCode)
	res, _ = doJSON(t, c, http.MethodDelete, srv.api("/users/"+srv.Boris.ID+"/api-keys/"+key.ID), nil, srv.as(t, srv.Boris))
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	res, body = doJSON(t, c, http.MethodPost, srv.api("/users/"+galya.ID+"/api-keys"), map[string]any{"name": "spare"}, map[string]string{"Authorization": "Bearer " + token})
	require.Equal(t, http.StatusCreated, res.StatusCode, string(body))
	spare := decode[APIKeyResponse](t, body)
	res, _ = doJSON(t, c, http.MethodDelete, srv.api("/users/"+galya.ID+"/api-keys/"+spare.ID), nil, map[string]string{"Authorization": "Bearer " + token})
	assert.Equal(t, http.StatusNoContent, res.StatusCode)
	res, _ = doJSON(t, c, http.MethodGet, srv.api("/me"), nil, map[string]string{"X-Api-Key": spare.Key})
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

	res, _ = doJSON(t, c, http.MethodGet, srv.api("/users/"+srv.Anna.ID), nil, srv.as(t, srv.Boris))
	assert.Equal(t, http.StatusForbidden, res.StatusCode)

	res, body = doJSON(t, c, http.MethodPost, srv.api("/users"), map[string]any{"username": "petya", "role": "volunteer"}, srv.as(t, srv.Admin))
	require.Equal(t, http.StatusCreated, res.StatusCode, string(body))
	assert.Equal(t, domain.RoleVolunteer, decode[domain.User](t, body).Role)

	res, _ = doJSON(t, c, http.MethodDelete, srv.api("/users/"+srv.Admin.ID), nil, srv.as(t, srv.Admin))
	assert.Equal(t, http.StatusConflict, res.StatusCode)

	res, _ = doJSON(t, c, http.MethodDelete, srv.api("/users/"+galya.ID), nil, srv.as(t, srv.Admin))
	assert.Equal(t, http.StatusNoContent, res.StatusCode)

	res, _ = doJSON(t, c, http.MethodGet, srv.api("/me"), nil, map[string]string{"Authorization": "Bearer " + token})
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
}

func TestDevLoginDisabled(t *testing.T) {
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, migrate.Migrate(conn))
	e := engine.New(conn, config.Default())
	_, err = e.BootstrapAdmin(context.Background(), "admin")
	require.NoError(t, err)

	handler, err := New(Config{Engine: e, Auth: AuthConfig{JWTSecret: testSecret}})
	require.NoError(t, err)
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	defer srv.Shutdown(context.Background())

	res, _ := doJSON(t, &http.Client{}, http.MethodPost, "http://"+ln.Addr().String()+"/v1/auth/dev/login", map[string]any{"username": "admin"}, nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestEventsMetricsAndDocs(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	barsik := srv.animal(t, "Барсик")
	c := srv.Client()

	res, body := doJSON(t, c, http.MethodPost, srv.api("/adoptions"), map[string]any{"animal_id": barsik.ID}, srv.as(t, srv.Anna))
	require.Equal(t, http.StatusCreated, res.StatusCode, string(body))
	req := decode[AdoptionResponse](t, body)
	res, _ = doJSON(t, c, http.MethodPut, srv.api("/adoptions/"+req.ID), map[string]any{"status": "approved"}, srv.as(t, srv.Admin))
	require.Equal(t, http.StatusOK, res.StatusCode)

	res, _ = doJSON(t, c, http.MethodGet, srv.api("/events"), nil, srv.as(t, srv.Volunteer))
	assert.Equal(t, http.StatusForbidden, res.StatusCode)

	res, body = doJSON(t, c, http.MethodGet, srv.api("/events?entity_kind=adoption&entity_id="+req.ID), nil, srv.as(t, srv.Admin))
	require.Equal(t, http.StatusOK, res.StatusCode, string(body))
	evts := decode[paginatedEvents](t, body)
	require.Len(t, evts.Items, 2)
	assert.Equal(t, "adoption.approved", evts.Items[0].Type)

	res, body = doJSON(t, c, http.MethodGet, srv.api("/events?entity_kind=adoption&entity_id="+req.ID+"&limit=1"), nil, srv.as(t, srv.Admin))
	require.Equal(t, http.StatusOK, res.StatusCode)
	first := decode[paginatedEvents](t, body)
	require.Len(t, first.Items, 1)
	require.NotEmpty(t, first.NextCursor)

	res, body = doJSON(t, c, http.MethodGet, srv.URL+"/metrics", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, string(body), `shelter_adoption_transitions_total{from="pending",to="approved"} 1`)

	res, body = doJSON(t, c, http.MethodGet, srv.api("/openapi.json"), nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, string(body), "bearerAuth")

	res, body = doJSON(t, c, http.MethodGet, srv.URL+"/docs", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, string(body), "/v1/openapi.json")
}

func TestOpenAPIDocumentServedConcurrently(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	const n = 8
	bodies := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := srv.Client().Get(srv.api("/openapi.json"))
			if err != nil {
				return
			}
			defer res.Body.Close()
			b, _ := io.ReadAll(res.Body)
			bodies[i] = string(b)
		}(i)
	}
	wg.Wait()
	for i := 0; i < n; i++ {
		require.Contains(t, bodies[i], "bearerAuth")
		assert.Equal(t, bodies[0], bodies[i])
	}
}
