package engine

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"shelter/internal/domain"
	"shelter/internal/engine/auth"
	"shelter/internal/events"
	"shelter/internal/repo"
)

// UserInput describes a new account. The questionnaire fields only matter
// for adopters.
type UserInput struct {
	Username      string
	Role          string
	HasExperience bool
	HasOtherPets  bool
	ReadyForPet   string
}

const systemActor = "system"

// CreateUser adds an account with any role. Administrators only.
func (e Engine) CreateUser(ctx context.Context, actor auth.Actor, in UserInput) (u domain.User, err error) {
	defer e.observe(auth.OpCreateUser, actor, &err)
	if err := e.authorize(auth.OpCreateUser, actor); err != nil {
		return domain.User{}, err
	}
	return e.insertUser(ctx, actor.ID, in)
}

// Register creates an adopter account for self-registration.
func (e Engine) Register(ctx context.Context, in UserInput) (domain.User, error) {
	in.Role = domain.RoleAdopter
	return e.insertUser(ctx, systemActor, in)
}

// BootstrapAdmin creates the first administrator. It returns ErrConflict once
// any administrator exists.
func (e Engine) BootstrapAdmin(ctx context.Context, username string) (domain.User, error) {
	n, err := e.Repo.CountAdmins(ctx)
	if err != nil {
		return domain.User{}, err
	}
	if n > 0 {
		return domain.User{}, fmt.Errorf("%w: an administrator already exists", ErrConflict)
	}
	return e.insertUser(ctx, systemActor, UserInput{Username: username, Role: domain.RoleAdmin})
}

func (e Engine) insertUser(ctx context.Context, actorID string, in UserInput) (domain.User, error) {
	username := strings.TrimSpace(in.Username)
	if username == "" {
		return domain.User{}, fmt.Errorf("%w: username is required", ErrValidation)
	}
	if !domain.ValidRole(in.Role) {
		return domain.User{}, fmt.Errorf("%w: role must be admin, volunteer or adopter", ErrValidation)
	}
	u := domain.User{
		ID:            uuid.NewString(),
		Username:      username,
		Role:          in.Role,
		HasExperience: in.HasExperience,
		HasOtherPets:  in.HasOtherPets,
		ReadyForPet:   strings.TrimSpace(in.ReadyForPet),
		CreatedAt:     e.timestamp(),
	}
	tx, err := e.Repo.BeginTx(ctx)
	if err != nil {
		return domain.User{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertUser(ctx, tx, u); err != nil {
		if errors.Is(err, repo.ErrConflict) {
			return domain.User{}, fmt.Errorf("%w: username %s is taken", ErrConflict, username)
		}
		return domain.User{}, fmt.Errorf("insert user: %w", err)
	}
	if err := e.Events.Append(ctx, tx, events.UserCreated, "user", u.ID, actorID, events.EventPayload{
		"username": u.Username, "role": u.Role,
	}); err != nil {
		return domain.User{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.User{}, err
	}
	return u, nil
}

// GetUser returns the actor's own account, or any account for administrators.
func (e Engine) GetUser(ctx context.Context, actor auth.Actor, userID string) (domain.User, error) {
	if actor.Role != domain.RoleAdmin && actor.ID != userID {
		return domain.User{}, auth.ForbiddenError{Operation: auth.OpReadUser, Role: actor.Role, Reason: "only administrators may view other accounts"}
	}
	u, err := e.Repo.GetUser(ctx, userID)
	if err != nil {
		return domain.User{}, notFound("user", userID, err)
	}
	return u, nil
}

// ListUsers returns every account for administrators and only the caller
// otherwise.
func (e Engine) ListUsers(ctx context.Context, actor auth.Actor) ([]domain.User, error) {
	if actor.Role == domain.RoleAdmin {
		return e.Repo.ListUsers(ctx)
	}
	u, err := e.GetUser(ctx, actor, actor.ID)
	if err != nil {
		return nil, err
	}
	return []domain.User{u}, nil
}

func (e Engine) DeleteUser(ctx context.Context, actor auth.Actor, userID string) (err error) {
	defer e.observe(auth.OpDeleteUser, actor, &err)
	if err := e.authorize(auth.OpDeleteUser, actor); err != nil {
		return err
	}
	if userID == actor.ID {
		return fmt.Errorf("%w: administrators cannot delete themselves", ErrInvalidState)
	}
	tx, err := e.Repo.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	// The user's adoptions go with the account; animals they hold return
	// to the shelter first.
	approved, err := e.Repo.LockApprovedByUser(ctx, tx, userID)
	if err != nil {
		return err
	}
	var released []domain.Adoption
	for _, a := range approved {
		ok, err := e.releaseAnimal(ctx, tx, actor, a)
		if err != nil {
			return err
		}
		if ok {
			released = append(released, a)
		}
	}
	if err := e.Repo.DeleteUser(ctx, tx, userID); err != nil {
		return notFound("user", userID, err)
	}
	if err := e.Events.Append(ctx, tx, events.UserDeleted, "user", userID, actor.ID, events.EventPayload{
		"released_animals": len(released),
	}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	for _, a := range released {
		e.recorder().AnimalStatus(domain.AnimalInShelter)
		e.log().Info("animal released with deleted user", "adoption_id", a.ID, "animal_id", a.AnimalID, "actor_id", actor.ID, "user_id", userID)
	}
	e.log().Info("user deleted", "user_id", userID, "actor_id", actor.ID)
	return nil
}

// IssueAPIKey creates a key for the user and returns its plaintext once.
// Users may issue keys for themselves; administrators for anyone.
func (e Engine) IssueAPIKey(ctx context.Context, actor auth.Actor, userID, name string) (domain.APIKey, string, error) {
	if userID == "" {
		userID = actor.ID
	}
	if err := manageKeys(actor, userID); err != nil {
		return domain.APIKey{}, "", err
	}
	if _, err := e.Repo.GetUser(ctx, userID); err != nil {
		return domain.APIKey{}, "", notFound("user", userID, err)
	}
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return domain.APIKey{}, "", err
	}
	plain := "shk_" + hex.EncodeToString(buf)
	key := domain.APIKey{
		ID:        uuid.NewString(),
		UserID:    userID,
		Name:      strings.TrimSpace(name),
		KeyHash:   repo.HashAPIKey(plain),
		CreatedAt: e.timestamp(),
	}
	tx, err := e.Repo.BeginTx(ctx)
	if err != nil {
		return domain.APIKey{}, "", err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertAPIKey(ctx, tx, key); err != nil {
		return domain.APIKey{}, "", fmt.Errorf("insert api key: %w", err)
	}
	if err := e.Events.Append(ctx, tx, events.APIKeyIssued, "user", userID, actor.ID, events.EventPayload{"key_id": key.ID, "name": key.Name}); err != nil {
		return domain.APIKey{}, "", err
	}
	if err := tx.Commit(); err != nil {
		return domain.APIKey{}, "", err
	}
	return key, plain, nil
}

func manageKeys(actor auth.Actor, userID string) error {
	if actor.Role != domain.RoleAdmin && actor.ID != userID {
		return auth.ForbiddenError{Operation: auth.OpIssueAPIKey, Role: actor.Role, Reason: "only administrators may manage keys of others"}
	}
	return nil
}

// ListAPIKeys returns the keys of userID with their hashes blanked.
func (e Engine) ListAPIKeys(ctx context.Context, actor auth.Actor, userID string) ([]domain.APIKey, error) {
	if userID == "" {
		userID = actor.ID
	}
	if err := manageKeys(actor, userID); err != nil {
		return nil, err
	}
	if _, err := e.Repo.GetUser(ctx, userID); err != nil {
		return nil, notFound("user", userID, err)
	}
	keys, err := e.Repo.ListAPIKeys(ctx, userID)
	if err != nil {
		return nil, err
	}
	for i := range keys {
		keys[i].KeyHash = ""
	}
	return keys, nil
}

// RevokeAPIKey deletes one of userID's keys. A key that belongs to someone
// else is reported as not found.
func (e Engine) RevokeAPIKey(ctx context.Context, actor auth.Actor, userID, keyID string) error {
	if userID == "" {
		userID = actor.ID
	}
	if err := manageKeys(actor, userID); err != nil {
		return err
	}
	keys, err := e.Repo.ListAPIKeys(ctx, userID)
	if err != nil {
		return err
	}
	owned := false
	for _, k := range keys {
		if k.ID == keyID {
			owned = true
			break
		}
	}
	if !owned {
		return fmt.Errorf("api key %s: %w", keyID, ErrNotFound)
	}
	tx, err := e.Repo.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteAPIKey(ctx, tx, keyID); err != nil {
		return notFound("api key", keyID, err)
	}
	if err := e.Events.Append(ctx, tx, events.APIKeyRevoked, "user", userID, actor.ID, events.EventPayload{"key_id": keyID}); err != nil {
		return err
	}
	return tx.Commit()
}

// ActorForAPIKey resolves a plaintext API key to its owner.
func (e Engine) ActorForAPIKey(ctx context.Context, plain string) (auth.Actor, error) {
	key, err := e.Repo.GetAPIKeyByHash(ctx, repo.HashAPIKey(plain))
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return auth.Actor{}, fmt.Errorf("api key: %w", ErrNotFound)
		}
		return auth.Actor{}, err
	}
	return e.ResolveActor(ctx, key.UserID)
}

// ListEvents returns audit log entries newest first. Administrators only.
func (e Engine) ListEvents(ctx context.Context, actor auth.Actor, f repo.EventFilters) ([]domain.Event, error) {
	if err := e.authorize(auth.OpReadEvents, actor); err != nil {
		return nil, err
	}
	return e.Repo.LatestEvents(ctx, f)
}
