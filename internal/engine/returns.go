package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"shelter/internal/domain"
	"shelter/internal/engine/auth"
	"shelter/internal/events"
	"shelter/internal/repo"
)

// CreateReturn is the self-service return. Only the original requester may
// call it, whatever their role.
func (e Engine) CreateReturn(ctx context.Context, actor auth.Actor, adoptionID, reason string) (r domain.Return, err error) {
	defer e.observe(auth.OpCreateReturn, actor, &err)
	if err := e.authorize(auth.OpCreateReturn, actor); err != nil {
		return domain.Return{}, err
	}
	return e.recordReturn(ctx, actor, auth.OpCreateReturn, adoptionID, reason, true)
}

// ProcessReturn is the administrator-mediated return. It has no owner check
// and records the administrator as the processing actor.
func (e Engine) ProcessReturn(ctx context.Context, actor auth.Actor, adoptionID, reason string) (r domain.Return, err error) {
	defer e.observe(auth.OpProcessReturn, actor, &err)
	if err := e.authorize(auth.OpProcessReturn, actor); err != nil {
		return domain.Return{}, err
	}
	return e.recordReturn(ctx, actor, auth.OpProcessReturn, adoptionID, reason, false)
}

func (e Engine) recordReturn(ctx context.Context, actor auth.Actor, op auth.Operation, adoptionID, reason string, ownerOnly bool) (domain.Return, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return domain.Return{}, fmt.Errorf("%w: return reason is required", ErrValidation)
	}
	tx, err := e.Repo.BeginTx(ctx)
	if err != nil {
		return domain.Return{}, err
	}
	defer tx.Rollback()

	a, err := e.Repo.LockAdoption(ctx, tx, adoptionID)
	if err != nil {
		return domain.Return{}, notFound("adoption", adoptionID, err)
	}
	if ownerOnly {
		if err := auth.RequireOwner(op, actor, a.UserID); err != nil {
			return domain.Return{}, err
		}
	}
	to, err := e.statusChart().next(a.Status, evReturn)
	if err != nil {
		return domain.Return{}, fmt.Errorf("return adoption %s: %w", a.ID, err)
	}
	has, err := e.Repo.HasReturn(ctx, tx, a.ID)
	if err != nil {
		return domain.Return{}, err
	}
	if has {
		return domain.Return{}, fmt.Errorf("%w: adoption %s already has a return", ErrInvalidState, a.ID)
	}
	ret := domain.Return{
		ID:         uuid.NewString(),
		AdoptionID: a.ID,
		Reason:     reason,
		ReturnedAt: e.timestamp(),
	}
	if !ownerOnly {
		processedBy := actor.ID
		ret.ProcessedBy = &processedBy
	}
	if err := e.Repo.InsertReturn(ctx, tx, ret); err != nil {
		if errors.Is(err, repo.ErrConflict) {
			return domain.Return{}, fmt.Errorf("%w: adoption %s already has a return", ErrInvalidState, a.ID)
		}
		return domain.Return{}, fmt.Errorf("insert return: %w", err)
	}
	if err := e.Repo.UpdateAdoptionStatus(ctx, tx, a.ID, to, a.RejectionReason); err != nil {
		return domain.Return{}, err
	}
	released, err := e.releaseAnimal(ctx, tx, actor, a)
	if err != nil {
		return domain.Return{}, err
	}
	if err := e.Events.Append(ctx, tx, events.ReturnCreated, "return", ret.ID, actor.ID, events.EventPayload{
		"adoption_id": a.ID, "self_service": ownerOnly,
	}); err != nil {
		return domain.Return{}, err
	}
	if err := e.Events.Append(ctx, tx, events.AdoptionReturned, "adoption", a.ID, actor.ID, events.EventPayload{
		"from": a.Status, "to": to, "return_id": ret.ID,
	}); err != nil {
		return domain.Return{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Return{}, err
	}
	e.recorder().Transition(a.Status, to)
	if released {
		e.recorder().AnimalStatus(domain.AnimalInShelter)
	}
	e.log().Info("adoption returned", "adoption_id", a.ID, "animal_id", a.AnimalID, "return_id", ret.ID,
		"actor_id", actor.ID, "from", a.Status, "to", to, "self_service", ownerOnly)
	return ret, nil
}

// DeleteReturn hard-deletes a return record. The adoption keeps its status.
func (e Engine) DeleteReturn(ctx context.Context, actor auth.Actor, returnID string) (err error) {
	defer e.observe(auth.OpDeleteReturn, actor, &err)
	if err := e.authorize(auth.OpDeleteReturn, actor); err != nil {
		return err
	}
	tx, err := e.Repo.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteReturn(ctx, tx, returnID); err != nil {
		return notFound("return", returnID, err)
	}
	if err := e.Events.Append(ctx, tx, events.ReturnDeleted, "return", returnID, actor.ID, nil); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	e.log().Info("return deleted", "return_id", returnID, "actor_id", actor.ID)
	return nil
}

func (e Engine) GetReturn(ctx context.Context, actor auth.Actor, returnID string) (domain.Return, error) {
	if err := e.authorize(auth.OpReadReturns, actor); err != nil {
		return domain.Return{}, err
	}
	ret, err := e.Repo.GetReturn(ctx, returnID)
	if err != nil {
		return domain.Return{}, notFound("return", returnID, err)
	}
	if !actor.IsStaff() {
		a, err := e.Repo.GetAdoption(ctx, ret.AdoptionID)
		if err != nil || a.UserID != actor.ID {
			return domain.Return{}, fmt.Errorf("return %s: %w", returnID, ErrNotFound)
		}
	}
	return ret, nil
}

func (e Engine) ListReturns(ctx context.Context, actor auth.Actor) ([]domain.Return, error) {
	if err := e.authorize(auth.OpReadReturns, actor); err != nil {
		return nil, err
	}
	var f repo.ReturnFilters
	if !actor.IsStaff() {
		f.UserID = actor.ID
	}
	return e.Repo.ListReturns(ctx, f)
}

// HasReturn reports whether a return was recorded for the adoption.
func (e Engine) HasReturn(ctx context.Context, actor auth.Actor, adoptionID string) (bool, error) {
	if _, err := e.GetAdoption(ctx, actor, adoptionID); err != nil {
		return false, err
	}
	return e.Repo.HasReturn(ctx, nil, adoptionID)
}
