package main

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shelter/internal/app"
	"shelter/internal/domain"
	"shelter/internal/repo"
)

var setupOnce sync.Once

func run(t *testing.T, args ...string) error {
	t.Helper()
	setupOnce.Do(func() {
		addPersistentFlags()
		registerCommands()
	})
	rootCmd.SetArgs(args)
	return rootCmd.ExecuteContext(context.Background())
}

func TestCLIAdoptionLifecycle(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, run(t, "-w", dir, "config", "init"))
	require.Error(t, run(t, "-w", dir, "config", "init"), "existing config is kept without --force")
	require.NoError(t, run(t, "-w", dir, "config", "validate"))

	require.NoError(t, run(t, "-w", dir, "user", "bootstrap", "admin"))
	require.Error(t, run(t, "-w", dir, "user", "bootstrap", "other"))
	require.NoError(t, run(t, "-w", dir, "--as", "admin", "user", "create", "--username", "anna"))
	require.NoError(t, run(t, "-w", dir, "--as", "admin", "animal", "add", "--name", "Барсик", "--species", "Кот", "--health", "Здоров"))

	a, err := app.Open(context.Background(), app.Options{Workspace: dir})
	require.NoError(t, err)
	animals, err := a.Engine.ListAnimals(context.Background(), "", "")
	require.NoError(t, err)
	a.Close()
	require.Len(t, animals, 1)
	animalID := animals[0].ID

	require.Error(t, run(t, "-w", dir, "--as", "admin", "adoption", "create", "--animal", animalID), "staff cannot file for themselves")
	require.NoError(t, run(t, "-w", dir, "--as", "anna", "adoption", "create", "--animal", animalID))

	a, err = app.Open(context.Background(), app.Options{Workspace: dir})
	require.NoError(t, err)
	ads, err := a.Engine.Repo.ListAdoptions(context.Background(), repo.AdoptionFilters{})
	a.Close()
	require.NoError(t, err)
	require.Len(t, ads, 1)

	require.Error(t, run(t, "-w", dir, "--as", "anna", "adoption", "approve", ads[0].ID))
	require.NoError(t, run(t, "-w", dir, "--as", "admin", "adoption", "approve", ads[0].ID))
	require.NoError(t, run(t, "-w", dir, "--as", "anna", "return", "create", "--adoption", ads[0].ID, "--reason", "переезд"))
	require.NoError(t, run(t, "-w", dir, "--as", "admin", "--json", "log", "tail", "--n", "5"))

	a, err = app.Open(context.Background(), app.Options{Workspace: dir})
	require.NoError(t, err)
	defer a.Close()
	animal, err := a.Engine.GetAnimal(context.Background(), animalID)
	require.NoError(t, err)
	assert.Equal(t, domain.AnimalInShelter, animal.Status)
	ad, err := a.Engine.Repo.GetAdoption(context.Background(), ads[0].ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AdoptionReturned, ad.Status)
}

func TestCLIRequiresActor(t *testing.T) {
	dir := t.TempDir()
	require.Error(t, run(t, "-w", dir, "--as", "", "adoption", "list"))
	require.Error(t, run(t, "-w", dir, "--as", "ghost", "adoption", "list"))
}
