package repo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shelter/internal/db"
	"shelter/internal/domain"
	"shelter/internal/migrate"
)

const ts = "2024-03-01T10:00:00Z"

func newTestRepo(t *testing.T) Repo {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn))
	return Repo{DB: conn}
}

func seed(t *testing.T, r Repo) {
	t.Helper()
	ctx := context.Background()
	for _, u := range []domain.User{
		{ID: "u-admin", Username: "admin", Role: domain.RoleAdmin, CreatedAt: ts},
		{ID: "u-anna", Username: "anna", Role: domain.RoleAdopter, HasExperience: true, CreatedAt: ts},
		{ID: "u-boris", Username: "boris", Role: domain.RoleAdopter, CreatedAt: ts},
	} {
		require.NoError(t, r.InsertUser(ctx, nil, u))
	}
	require.NoError(t, r.InsertAnimal(ctx, nil, domain.Animal{ID: "a-1", Name: "Барсик", Species: "Кот", HealthStatus: "Здоров", Status: domain.AnimalInShelter, CreatedAt: ts}))
	require.NoError(t, r.InsertAnimal(ctx, nil, domain.Animal{ID: "a-2", Name: "Шарик", Species: "Собака", HealthStatus: "Здоров", Status: domain.AnimalInShelter, CreatedAt: ts}))
}

func TestUsersRoundTripAndConflict(t *testing.T) {
	r := newTestRepo(t)
	seed(t, r)
	ctx := context.Background()

	u, err := r.GetUserByUsername(ctx, "anna")
	require.NoError(t, err)
	assert.Equal(t, "u-anna", u.ID)
	assert.True(t, u.HasExperience)
	assert.False(t, u.HasOtherPets)

	err = r.InsertUser(ctx, nil, domain.User{ID: "u-x", Username: "anna", Role: domain.RoleAdopter, CreatedAt: ts})
	assert.ErrorIs(t, err, ErrConflict)

	_, err = r.GetUser(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	n, err := r.CountAdmins(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestListAnimalsFilters(t *testing.T) {
	r := newTestRepo(t)
	seed(t, r)
	ctx := context.Background()

	cats, err := r.ListAnimals(ctx, AnimalFilters{Species: "Кот"})
	require.NoError(t, err)
	require.Len(t, cats, 1)
	assert.Equal(t, "a-1", cats[0].ID)

	all, err := r.ListAnimals(ctx, AnimalFilters{Status: domain.AnimalInShelter})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestSwapAnimalStatusOnlyFromExpected(t *testing.T) {
	r := newTestRepo(t)
	seed(t, r)
	ctx := context.Background()

	ok, err := r.SwapAnimalStatus(ctx, nil, "a-1", domain.AnimalInShelter, domain.AnimalAdopted)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.SwapAnimalStatus(ctx, nil, "a-1", domain.AnimalInShelter, domain.AnimalAdopted)
	require.NoError(t, err)
	assert.False(t, ok, "second swap must observe the changed status")

	a, err := r.GetAnimal(ctx, "a-1")
	require.NoError(t, err)
	assert.Equal(t, domain.AnimalAdopted, a.Status)
}

func TestRejectPendingSiblings(t *testing.T) {
	r := newTestRepo(t)
	seed(t, r)
	ctx := context.Background()

	require.NoError(t, r.InsertAdoption(ctx, nil, domain.Adoption{ID: "ad-1", UserID: "u-anna", AnimalID: "a-1", Status: domain.AdoptionPending, SubmittedAt: ts}))
	require.NoError(t, r.InsertAdoption(ctx, nil, domain.Adoption{ID: "ad-2", UserID: "u-boris", AnimalID: "a-1", Status: domain.AdoptionPending, SubmittedAt: ts}))
	require.NoError(t, r.InsertAdoption(ctx, nil, domain.Adoption{ID: "ad-3", UserID: "u-boris", AnimalID: "a-2", Status: domain.AdoptionPending, SubmittedAt: ts}))

	tx, err := r.BeginTx(ctx)
	require.NoError(t, err)
	defer tx.Rollback()
	ids, err := r.RejectPendingSiblings(ctx, tx, "a-1", "ad-1", "taken")
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	assert.Equal(t, []string{"ad-2"}, ids)

	ad2, err := r.GetAdoption(ctx, "ad-2")
	require.NoError(t, err)
	assert.Equal(t, domain.AdoptionRejected, ad2.Status)
	assert.Equal(t, "taken", ad2.RejectionReason)

	ad1, err := r.GetAdoption(ctx, "ad-1")
	require.NoError(t, err)
	assert.Equal(t, domain.AdoptionPending, ad1.Status)

	ad3, err := r.GetAdoption(ctx, "ad-3")
	require.NoError(t, err)
	assert.Equal(t, domain.AdoptionPending, ad3.Status, "other animals are untouched")
}

func TestDuplicateAdoptionPairIsConflict(t *testing.T) {
	r := newTestRepo(t)
	seed(t, r)
	ctx := context.Background()

	require.NoError(t, r.InsertAdoption(ctx, nil, domain.Adoption{ID: "ad-1", UserID: "u-anna", AnimalID: "a-1", Status: domain.AdoptionPending, SubmittedAt: ts}))
	err := r.InsertAdoption(ctx, nil, domain.Adoption{ID: "ad-2", UserID: "u-anna", AnimalID: "a-1", Status: domain.AdoptionPending, SubmittedAt: ts})
	assert.ErrorIs(t, err, ErrConflict)

	exists, err := r.AdoptionExists(ctx, nil, "u-anna", "a-1")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestReturnsVisibilityAndReturnable(t *testing.T) {
	r := newTestRepo(t)
	seed(t, r)
	ctx := context.Background()

	require.NoError(t, r.InsertAdoption(ctx, nil, domain.Adoption{ID: "ad-1", UserID: "u-anna", AnimalID: "a-1", Status: domain.AdoptionApproved, SubmittedAt: ts}))
	require.NoError(t, r.InsertAdoption(ctx, nil, domain.Adoption{ID: "ad-2", UserID: "u-boris", AnimalID: "a-2", Status: domain.AdoptionApproved, SubmittedAt: ts}))

	returnable, err := r.ReturnableAdoptions(ctx, "u-anna")
	require.NoError(t, err)
	require.Len(t, returnable, 1)

	admin := "u-admin"
	require.NoError(t, r.InsertReturn(ctx, nil, domain.Return{ID: "r-1", AdoptionID: "ad-1", Reason: "allergy", ReturnedAt: ts}))
	require.NoError(t, r.InsertReturn(ctx, nil, domain.Return{ID: "r-2", AdoptionID: "ad-2", Reason: "moving", ReturnedAt: ts, ProcessedBy: &admin}))

	err = r.InsertReturn(ctx, nil, domain.Return{ID: "r-3", AdoptionID: "ad-1", Reason: "again", ReturnedAt: ts})
	assert.ErrorIs(t, err, ErrConflict)

	returnable, err = r.ReturnableAdoptions(ctx, "u-anna")
	require.NoError(t, err)
	assert.Empty(t, returnable)

	own, err := r.ListReturns(ctx, ReturnFilters{UserID: "u-anna"})
	require.NoError(t, err)
	require.Len(t, own, 1)
	assert.Nil(t, own[0].ProcessedBy)

	all, err := r.ListReturns(ctx, ReturnFilters{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	r2, err := r.GetReturnByAdoption(ctx, nil, "ad-2")
	require.NoError(t, err)
	require.NotNil(t, r2.ProcessedBy)
	assert.Equal(t, "u-admin", *r2.ProcessedBy)
}

func TestListAdoptionsCursor(t *testing.T) {
	r := newTestRepo(t)
	seed(t, r)
	ctx := context.Background()

	require.NoError(t, r.InsertAdoption(ctx, nil, domain.Adoption{ID: "ad-1", UserID: "u-anna", AnimalID: "a-1", Status: domain.AdoptionPending, SubmittedAt: "2024-03-01T10:00:00Z"}))
	require.NoError(t, r.InsertAdoption(ctx, nil, domain.Adoption{ID: "ad-2", UserID: "u-anna", AnimalID: "a-2", Status: domain.AdoptionPending, SubmittedAt: "2024-03-02T10:00:00Z"}))

	page, err := r.ListAdoptions(ctx, AdoptionFilters{UserID: "u-anna", Limit: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "ad-2", page[0].ID)

	page, err = r.ListAdoptions(ctx, AdoptionFilters{UserID: "u-anna", Limit: 1, CursorSubmittedAt: page[0].SubmittedAt, CursorID: page[0].ID})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "ad-1", page[0].ID)
}
