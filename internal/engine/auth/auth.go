package auth

import (
	"errors"
	"fmt"
	"slices"

	"shelter/internal/domain"
)

// ErrForbidden is matched by every ForbiddenError via errors.Is.
var ErrForbidden = errors.New("forbidden")

// Operation names a gated engine entry point.
type Operation string

const (
	OpCreateAdoption    Operation = "adoption.create"
	OpCreateAdoptionFor Operation = "adoption.create_for"
	OpApprove           Operation = "adoption.approve"
	OpReject            Operation = "adoption.reject"
	OpUpdateStatus      Operation = "adoption.update_status"
	OpDeleteAdoption    Operation = "adoption.delete"
	OpReadAdoptions     Operation = "adoption.read"
	OpCreateReturn      Operation = "return.create"
	OpProcessReturn     Operation = "return.process"
	OpDeleteReturn      Operation = "return.delete"
	OpReadReturns       Operation = "return.read"
	OpCreateAnimal      Operation = "animal.create"
	OpUpdateAnimal      Operation = "animal.update"
	OpDeleteAnimal      Operation = "animal.delete"
	OpCreateUser        Operation = "user.create"
	OpDeleteUser        Operation = "user.delete"
	OpReadEvents        Operation = "event.read"

	// Identity-checked only; not in the policy table.
	OpReadUser    Operation = "user.read"
	OpIssueAPIKey Operation = "api_key.issue"
)

// Actor is the authenticated caller as resolved by a front-end.
type Actor struct {
	ID   string
	Role string
}

func (a Actor) IsStaff() bool {
	return a.Role == domain.RoleAdmin || a.Role == domain.RoleVolunteer
}

// ForbiddenError indicates the actor's role or identity does not permit the operation.
type ForbiddenError struct {
	Operation Operation
	Role      string
	Reason    string
}

func (e ForbiddenError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s: %s", e.Operation, e.Reason)
	}
	return fmt.Sprintf("role %q may not perform %s", e.Role, e.Operation)
}

func (e ForbiddenError) Is(target error) bool {
	return target == ErrForbidden
}

// Policy maps each operation to the roles allowed to call it.
type Policy map[Operation][]string

var (
	admins  = []string{domain.RoleAdmin}
	staff   = []string{domain.RoleAdmin, domain.RoleVolunteer}
	anyRole = []string{domain.RoleAdmin, domain.RoleVolunteer, domain.RoleAdopter}
)

// DefaultPolicy is the shelter's three-tier role table. Ownership checks for
// returns are layered on top by the engine.
func DefaultPolicy() Policy {
	return Policy{
		OpCreateAdoption:    {domain.RoleAdopter},
		OpCreateAdoptionFor: admins,
		OpApprove:           admins,
		OpReject:            admins,
		OpUpdateStatus:      admins,
		OpDeleteAdoption:    admins,
		OpReadAdoptions:     anyRole,
		OpCreateReturn:      anyRole,
		OpProcessReturn:     admins,
		OpDeleteReturn:      admins,
		OpReadReturns:       anyRole,
		OpCreateAnimal:      staff,
		OpUpdateAnimal:      staff,
		OpDeleteAnimal:      staff,
		OpCreateUser:        admins,
		OpDeleteUser:        admins,
		OpReadEvents:        admins,
	}
}

// Check returns a ForbiddenError unless the actor's role is listed for op.
// Unknown operations are denied.
func (p Policy) Check(op Operation, actor Actor) error {
	if actor.ID == "" {
		return ForbiddenError{Operation: op, Reason: "authenticated actor required"}
	}
	if slices.Contains(p[op], actor.Role) {
		return nil
	}
	return ForbiddenError{Operation: op, Role: actor.Role}
}

// RequireOwner enforces the owner-only rule regardless of role.
func RequireOwner(op Operation, actor Actor, ownerID string) error {
	if actor.ID == "" || actor.ID != ownerID {
		return ForbiddenError{Operation: op, Role: actor.Role, Reason: "only the requester may do this"}
	}
	return nil
}
