package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"shelter/internal/domain"
	"shelter/internal/engine/auth"
	"shelter/internal/events"
	"shelter/internal/repo"
)

// AnimalInput holds the editable fields of an animal. Status is not among
// them: only adoption transitions change it.
type AnimalInput struct {
	Name         string
	Species      string
	Breed        string
	AgeYears     int
	AgeMonths    int
	HealthStatus string
	Description  string
}

func (in AnimalInput) validate() error {
	var missing []string
	if strings.TrimSpace(in.Name) == "" {
		missing = append(missing, "name")
	}
	if strings.TrimSpace(in.Species) == "" {
		missing = append(missing, "species")
	}
	if strings.TrimSpace(in.HealthStatus) == "" {
		missing = append(missing, "health_status")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s required", ErrValidation, strings.Join(missing, ", "))
	}
	if in.AgeYears < 0 || in.AgeMonths < 0 || in.AgeMonths > 11 {
		return fmt.Errorf("%w: age must be non-negative with months in 0..11", ErrValidation)
	}
	return nil
}

func (in AnimalInput) apply(a *domain.Animal) {
	a.Name = strings.TrimSpace(in.Name)
	a.Species = strings.TrimSpace(in.Species)
	a.Breed = strings.TrimSpace(in.Breed)
	a.AgeYears = in.AgeYears
	a.AgeMonths = in.AgeMonths
	a.HealthStatus = strings.TrimSpace(in.HealthStatus)
	a.Description = in.Description
}

func (e Engine) CreateAnimal(ctx context.Context, actor auth.Actor, in AnimalInput) (a domain.Animal, err error) {
	defer e.observe(auth.OpCreateAnimal, actor, &err)
	if err := e.authorize(auth.OpCreateAnimal, actor); err != nil {
		return domain.Animal{}, err
	}
	if err := in.validate(); err != nil {
		return domain.Animal{}, err
	}
	a = domain.Animal{ID: uuid.NewString(), Status: domain.AnimalInShelter, CreatedAt: e.timestamp()}
	in.apply(&a)

	tx, err := e.Repo.BeginTx(ctx)
	if err != nil {
		return domain.Animal{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertAnimal(ctx, tx, a); err != nil {
		return domain.Animal{}, fmt.Errorf("insert animal: %w", err)
	}
	if err := e.Events.Append(ctx, tx, events.AnimalCreated, "animal", a.ID, actor.ID, events.EventPayload{
		"name": a.Name, "species": a.Species,
	}); err != nil {
		return domain.Animal{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Animal{}, err
	}
	return a, nil
}

// UpdateAnimal rewrites the descriptive fields of an animal.
func (e Engine) UpdateAnimal(ctx context.Context, actor auth.Actor, animalID string, in AnimalInput) (a domain.Animal, err error) {
	defer e.observe(auth.OpUpdateAnimal, actor, &err)
	if err := e.authorize(auth.OpUpdateAnimal, actor); err != nil {
		return domain.Animal{}, err
	}
	if err := in.validate(); err != nil {
		return domain.Animal{}, err
	}
	tx, err := e.Repo.BeginTx(ctx)
	if err != nil {
		return domain.Animal{}, err
	}
	defer tx.Rollback()
	a, err = e.Repo.LockAnimal(ctx, tx, animalID)
	if err != nil {
		return domain.Animal{}, notFound("animal", animalID, err)
	}
	in.apply(&a)
	if err := e.Repo.UpdateAnimalProfile(ctx, tx, a); err != nil {
		return domain.Animal{}, notFound("animal", animalID, err)
	}
	if err := e.Events.Append(ctx, tx, events.AnimalUpdated, "animal", a.ID, actor.ID, nil); err != nil {
		return domain.Animal{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Animal{}, err
	}
	return a, nil
}

// DeleteAnimal removes an animal and its requests. It is refused while the
// animal has an approved adoption.
func (e Engine) DeleteAnimal(ctx context.Context, actor auth.Actor, animalID string) (err error) {
	defer e.observe(auth.OpDeleteAnimal, actor, &err)
	if err := e.authorize(auth.OpDeleteAnimal, actor); err != nil {
		return err
	}
	tx, err := e.Repo.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	a, err := e.Repo.LockAnimal(ctx, tx, animalID)
	if err != nil {
		return notFound("animal", animalID, err)
	}
	n, err := e.Repo.CountApprovedForAnimal(ctx, tx, animalID)
	if err != nil {
		return err
	}
	if n > 0 || a.Status == domain.AnimalAdopted {
		return fmt.Errorf("%w: animal %s has an approved adoption", ErrInvalidState, animalID)
	}
	if err := e.Repo.DeleteAnimal(ctx, tx, animalID); err != nil {
		return notFound("animal", animalID, err)
	}
	if err := e.Events.Append(ctx, tx, events.AnimalDeleted, "animal", animalID, actor.ID, events.EventPayload{"name": a.Name}); err != nil {
		return err
	}
	return tx.Commit()
}

// GetAnimal and ListAnimals are public reads.
func (e Engine) GetAnimal(ctx context.Context, animalID string) (domain.Animal, error) {
	a, err := e.Repo.GetAnimal(ctx, animalID)
	if err != nil {
		return domain.Animal{}, notFound("animal", animalID, err)
	}
	return a, nil
}

func (e Engine) ListAnimals(ctx context.Context, species, status string) ([]domain.Animal, error) {
	if status != "" && status != domain.AnimalInShelter && status != domain.AnimalAdopted {
		return nil, fmt.Errorf("%w: unknown animal status %q", ErrValidation, status)
	}
	return e.Repo.ListAnimals(ctx, repo.AnimalFilters{Species: species, Status: status})
}
