package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"shelter/internal/domain"
	"shelter/internal/engine/auth"
	"shelter/internal/events"
	"shelter/internal/repo"
)

// CreateAdoption files a self-service request by the actor for an animal.
func (e Engine) CreateAdoption(ctx context.Context, actor auth.Actor, animalID string) (a domain.Adoption, err error) {
	defer e.observe(auth.OpCreateAdoption, actor, &err)
	if err := e.authorize(auth.OpCreateAdoption, actor); err != nil {
		return domain.Adoption{}, err
	}
	return e.createAdoption(ctx, actor, actor.ID, animalID)
}

// CreateAdoptionFor files a request on behalf of an adopter. Only
// administrators may use it.
func (e Engine) CreateAdoptionFor(ctx context.Context, actor auth.Actor, userID, animalID string) (a domain.Adoption, err error) {
	defer e.observe(auth.OpCreateAdoptionFor, actor, &err)
	if err := e.authorize(auth.OpCreateAdoptionFor, actor); err != nil {
		return domain.Adoption{}, err
	}
	if strings.TrimSpace(userID) == "" {
		return domain.Adoption{}, fmt.Errorf("%w: user_id is required", ErrValidation)
	}
	u, err := e.Repo.GetUser(ctx, userID)
	if err != nil {
		return domain.Adoption{}, notFound("user", userID, err)
	}
	if u.Role != domain.RoleAdopter {
		return domain.Adoption{}, fmt.Errorf("%w: user %s is not an adopter", ErrValidation, userID)
	}
	return e.createAdoption(ctx, actor, userID, animalID)
}

func (e Engine) createAdoption(ctx context.Context, actor auth.Actor, userID, animalID string) (domain.Adoption, error) {
	if strings.TrimSpace(animalID) == "" {
		return domain.Adoption{}, fmt.Errorf("%w: animal_id is required", ErrValidation)
	}
	tx, err := e.Repo.BeginTx(ctx)
	if err != nil {
		return domain.Adoption{}, err
	}
	defer tx.Rollback()

	animal, err := e.Repo.LockAnimal(ctx, tx, animalID)
	if err != nil {
		return domain.Adoption{}, notFound("animal", animalID, err)
	}
	exists, err := e.Repo.AdoptionExists(ctx, tx, userID, animalID)
	if err != nil {
		return domain.Adoption{}, err
	}
	if exists {
		return domain.Adoption{}, fmt.Errorf("%w: an adoption request for this animal already exists", ErrConflict)
	}
	if animal.Status != domain.AnimalInShelter {
		return domain.Adoption{}, fmt.Errorf("%w: animal %s is %s", ErrInvalidState, animalID, animal.Status)
	}
	a := domain.Adoption{
		ID:          uuid.NewString(),
		UserID:      userID,
		AnimalID:    animalID,
		Status:      domain.AdoptionPending,
		SubmittedAt: e.timestamp(),
	}
	if err := e.Repo.InsertAdoption(ctx, tx, a); err != nil {
		if errors.Is(err, repo.ErrConflict) {
			return domain.Adoption{}, fmt.Errorf("%w: an adoption request for this animal already exists", ErrConflict)
		}
		return domain.Adoption{}, fmt.Errorf("insert adoption: %w", err)
	}
	if err := e.Events.Append(ctx, tx, events.AdoptionCreated, "adoption", a.ID, actor.ID, events.EventPayload{
		"user_id": userID, "animal_id": animalID,
	}); err != nil {
		return domain.Adoption{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Adoption{}, err
	}
	e.log().Info("adoption created", "adoption_id", a.ID, "animal_id", animalID, "user_id", userID, "actor_id", actor.ID)
	return a, nil
}

// Approve approves a pending request, marks the animal adopted and rejects
// every other pending request for the same animal, all in one transaction.
// A request whose animal was already taken fails with ErrInvalidState.
func (e Engine) Approve(ctx context.Context, actor auth.Actor, adoptionID string) (a domain.Adoption, err error) {
	defer e.observe(auth.OpApprove, actor, &err)
	if err := e.authorize(auth.OpApprove, actor); err != nil {
		return domain.Adoption{}, err
	}
	return e.approve(ctx, actor, adoptionID)
}

func (e Engine) approve(ctx context.Context, actor auth.Actor, adoptionID string) (domain.Adoption, error) {
	tx, err := e.Repo.BeginTx(ctx)
	if err != nil {
		return domain.Adoption{}, err
	}
	defer tx.Rollback()

	a, err := e.Repo.LockAdoption(ctx, tx, adoptionID)
	if err != nil {
		return domain.Adoption{}, notFound("adoption", adoptionID, err)
	}
	from := a.Status
	to, err := e.statusChart().next(from, evApprove)
	if err != nil {
		return a, fmt.Errorf("approve adoption %s: %w", a.ID, err)
	}
	swapped, err := e.Repo.SwapAnimalStatus(ctx, tx, a.AnimalID, domain.AnimalInShelter, domain.AnimalAdopted)
	if err != nil {
		return a, fmt.Errorf("mark animal adopted: %w", err)
	}
	if !swapped {
		return a, fmt.Errorf("%w: animal %s is no longer in the shelter", ErrInvalidState, a.AnimalID)
	}
	if err := e.Repo.UpdateAdoptionStatus(ctx, tx, a.ID, to, ""); err != nil {
		return a, err
	}
	reason := e.cascadeReason()
	siblings, err := e.Repo.RejectPendingSiblings(ctx, tx, a.AnimalID, a.ID, reason)
	if err != nil {
		return a, fmt.Errorf("reject competing requests: %w", err)
	}
	if err := e.Events.Append(ctx, tx, events.AdoptionApproved, "adoption", a.ID, actor.ID, events.EventPayload{
		"from": from, "to": to, "animal_id": a.AnimalID, "auto_rejected": len(siblings),
	}); err != nil {
		return a, err
	}
	if err := e.Events.Append(ctx, tx, events.AnimalStatusChanged, "animal", a.AnimalID, actor.ID, events.EventPayload{
		"from": domain.AnimalInShelter, "to": domain.AnimalAdopted, "adoption_id": a.ID,
	}); err != nil {
		return a, err
	}
	for _, id := range siblings {
		if err := e.Events.Append(ctx, tx, events.AdoptionAutoRejected, "adoption", id, actor.ID, events.EventPayload{
			"approved_adoption_id": a.ID, "reason": reason,
		}); err != nil {
			return a, err
		}
	}
	if err := tx.Commit(); err != nil {
		return a, err
	}
	a.Status = to
	a.RejectionReason = ""

	rec := e.recorder()
	rec.Transition(from, to)
	rec.AnimalStatus(domain.AnimalAdopted)
	if len(siblings) > 0 {
		rec.CascadeRejected(len(siblings))
		for range siblings {
			rec.Transition(domain.AdoptionPending, domain.AdoptionRejected)
		}
	}
	e.log().Info("adoption approved", "adoption_id", a.ID, "animal_id", a.AnimalID, "actor_id", actor.ID,
		"from", from, "to", to, "auto_rejected", len(siblings))
	return a, nil
}

// Reject rejects a pending request or reverts an approved one. Reverting puts
// the animal back in the shelter; requests rejected by the earlier approval
// stay rejected. Rejecting an already rejected request only replaces its
// reason.
func (e Engine) Reject(ctx context.Context, actor auth.Actor, adoptionID, reason string) (a domain.Adoption, err error) {
	defer e.observe(auth.OpReject, actor, &err)
	if err := e.authorize(auth.OpReject, actor); err != nil {
		return domain.Adoption{}, err
	}
	return e.reject(ctx, actor, adoptionID, reason)
}

func (e Engine) reject(ctx context.Context, actor auth.Actor, adoptionID, reason string) (domain.Adoption, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return domain.Adoption{}, fmt.Errorf("%w: rejection reason is required", ErrValidation)
	}
	tx, err := e.Repo.BeginTx(ctx)
	if err != nil {
		return domain.Adoption{}, err
	}
	defer tx.Rollback()

	a, err := e.Repo.LockAdoption(ctx, tx, adoptionID)
	if err != nil {
		return domain.Adoption{}, notFound("adoption", adoptionID, err)
	}
	from := a.Status
	to, err := e.statusChart().next(from, evReject)
	if err != nil {
		return a, fmt.Errorf("reject adoption %s: %w", a.ID, err)
	}
	if from == domain.AdoptionRejected && a.RejectionReason == reason {
		return a, nil
	}
	if err := e.Repo.UpdateAdoptionStatus(ctx, tx, a.ID, to, reason); err != nil {
		return a, err
	}
	evtType := events.AdoptionRejected
	released := false
	if from == domain.AdoptionApproved {
		evtType = events.AdoptionReverted
		released, err = e.releaseAnimal(ctx, tx, actor, a)
		if err != nil {
			return a, err
		}
	}
	if err := e.Events.Append(ctx, tx, evtType, "adoption", a.ID, actor.ID, events.EventPayload{
		"from": from, "to": to, "reason": reason,
	}); err != nil {
		return a, err
	}
	if err := tx.Commit(); err != nil {
		return a, err
	}
	a.Status = to
	a.RejectionReason = reason
	if from != to {
		e.recorder().Transition(from, to)
	}
	if released {
		e.recorder().AnimalStatus(domain.AnimalInShelter)
	}
	e.log().Info("adoption rejected", "adoption_id", a.ID, "animal_id", a.AnimalID, "actor_id", actor.ID, "from", from, "to", to)
	return a, nil
}

// releaseAnimal moves the adoption's animal back to in_shelter and records
// the change. It reports whether the animal was adopted before.
func (e Engine) releaseAnimal(ctx context.Context, tx *sql.Tx, actor auth.Actor, a domain.Adoption) (bool, error) {
	swapped, err := e.Repo.SwapAnimalStatus(ctx, tx, a.AnimalID, domain.AnimalAdopted, domain.AnimalInShelter)
	if err != nil {
		return false, fmt.Errorf("return animal to shelter: %w", err)
	}
	if !swapped {
		e.log().Warn("animal was not adopted while its adoption was approved", "animal_id", a.AnimalID, "adoption_id", a.ID)
		return false, nil
	}
	if err := e.Events.Append(ctx, tx, events.AnimalStatusChanged, "animal", a.AnimalID, actor.ID, events.EventPayload{
		"from": domain.AnimalAdopted, "to": domain.AnimalInShelter, "adoption_id": a.ID,
	}); err != nil {
		return false, err
	}
	return true, nil
}

// UpdateStatus is the generic status edit used by the JSON API and the list
// page quick change. It routes to Approve or Reject; setting the current
// status again changes nothing. Requests cannot be moved back to pending, and
// returns go through CreateReturn or ProcessReturn.
func (e Engine) UpdateStatus(ctx context.Context, actor auth.Actor, adoptionID, newStatus, reason string) (a domain.Adoption, err error) {
	defer e.observe(auth.OpUpdateStatus, actor, &err)
	if err := e.authorize(auth.OpUpdateStatus, actor); err != nil {
		return domain.Adoption{}, err
	}
	if !domain.ValidAdoptionStatus(newStatus) {
		return domain.Adoption{}, fmt.Errorf("%w: unknown status %q", ErrValidation, newStatus)
	}
	a, err = e.Repo.GetAdoption(ctx, adoptionID)
	if err != nil {
		return domain.Adoption{}, notFound("adoption", adoptionID, err)
	}
	if a.Status == newStatus && (newStatus != domain.AdoptionRejected || strings.TrimSpace(reason) == "") {
		return a, nil
	}
	switch newStatus {
	case domain.AdoptionApproved:
		return e.approve(ctx, actor, adoptionID)
	case domain.AdoptionRejected:
		return e.reject(ctx, actor, adoptionID, reason)
	default:
		return a, fmt.Errorf("%w: cannot set adoption status to %s", ErrInvalidState, newStatus)
	}
}

// DeleteAdoption hard-deletes a request and its return. Deleting an approved
// request puts the animal back in the shelter.
func (e Engine) DeleteAdoption(ctx context.Context, actor auth.Actor, adoptionID string) (err error) {
	defer e.observe(auth.OpDeleteAdoption, actor, &err)
	if err := e.authorize(auth.OpDeleteAdoption, actor); err != nil {
		return err
	}
	tx, err := e.Repo.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	a, err := e.Repo.LockAdoption(ctx, tx, adoptionID)
	if err != nil {
		return notFound("adoption", adoptionID, err)
	}
	released := false
	if a.Status == domain.AdoptionApproved {
		if released, err = e.releaseAnimal(ctx, tx, actor, a); err != nil {
			return err
		}
	}
	if err := e.Repo.DeleteAdoption(ctx, tx, a.ID); err != nil {
		return notFound("adoption", adoptionID, err)
	}
	if err := e.Events.Append(ctx, tx, events.AdoptionDeleted, "adoption", a.ID, actor.ID, events.EventPayload{
		"status": a.Status, "animal_id": a.AnimalID, "user_id": a.UserID,
	}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	if released {
		e.recorder().AnimalStatus(domain.AnimalInShelter)
	}
	e.log().Info("adoption deleted", "adoption_id", a.ID, "animal_id", a.AnimalID, "actor_id", actor.ID)
	return nil
}

// AdoptionFilter narrows ListAdoptions. Adopters always see only their own
// requests whatever UserID says.
type AdoptionFilter struct {
	UserID            string
	AnimalID          string
	Status            string
	Limit             int
	CursorSubmittedAt string
	CursorID          string
}

func (e Engine) GetAdoption(ctx context.Context, actor auth.Actor, adoptionID string) (domain.Adoption, error) {
	if err := e.authorize(auth.OpReadAdoptions, actor); err != nil {
		return domain.Adoption{}, err
	}
	a, err := e.Repo.GetAdoption(ctx, adoptionID)
	if err != nil {
		return domain.Adoption{}, notFound("adoption", adoptionID, err)
	}
	if !actor.IsStaff() && a.UserID != actor.ID {
		return domain.Adoption{}, fmt.Errorf("adoption %s: %w", adoptionID, ErrNotFound)
	}
	return a, nil
}

func (e Engine) ListAdoptions(ctx context.Context, actor auth.Actor, f AdoptionFilter) ([]domain.Adoption, error) {
	if err := e.authorize(auth.OpReadAdoptions, actor); err != nil {
		return nil, err
	}
	if f.Status != "" && !domain.ValidAdoptionStatus(f.Status) {
		return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, f.Status)
	}
	if !actor.IsStaff() {
		f.UserID = actor.ID
	}
	return e.Repo.ListAdoptions(ctx, repo.AdoptionFilters{
		UserID:            f.UserID,
		AnimalID:          f.AnimalID,
		Status:            f.Status,
		Limit:             f.Limit,
		CursorSubmittedAt: f.CursorSubmittedAt,
		CursorID:          f.CursorID,
	})
}

// ReturnableAdoptions lists the actor's own approved requests that have no
// return yet.
func (e Engine) ReturnableAdoptions(ctx context.Context, actor auth.Actor) ([]domain.Adoption, error) {
	if err := e.authorize(auth.OpReadAdoptions, actor); err != nil {
		return nil, err
	}
	return e.Repo.ReturnableAdoptions(ctx, actor.ID)
}
