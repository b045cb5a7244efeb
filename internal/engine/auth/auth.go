// Package auth resolves actors and their role tier for the host engine.
package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"

	"careline/internal/domain"
	"careline/internal/repo"
)

// Permissions granted by role. Higher tiers inherit everything below them.
const (
	PermCaseEvaluate   = "case.evaluate"
	PermCapacityCheck  = "capacity.check"
	PermOverrideOpen   = "override.open"
	PermOverrideReview = "override.review"
	PermReleaseCheck   = "release.check"
	PermEventsRead     = "events.read"
	PermRosterManage   = "roster.manage"
	PermPolicyWrite    = "policy.write"
)

var rolePermissions = map[domain.ActorRole][]string{
	domain.RoleCaseworker: {PermCaseEvaluate, PermCapacityCheck, PermOverrideOpen, PermReleaseCheck, PermEventsRead},
	domain.RoleSupervisor: {PermOverrideReview, PermRosterManage},
	domain.RoleDirector:   {PermPolicyWrite},
}

// ForbiddenError indicates missing permission.
type ForbiddenError struct {
	Permission string
	Role       domain.ActorRole
}

func (e ForbiddenError) Error() string {
	if e.Role == "" {
		return fmt.Sprintf("permission %s required", e.Permission)
	}
	return fmt.Sprintf("permission %s required (actor is %s)", e.Permission, e.Role)
}

// UnknownActorError reports an actor id that is not on the roster.
type UnknownActorError struct {
	ActorID string
}

func (e UnknownActorError) Error() string {
	return fmt.Sprintf("unknown actor %q", e.ActorID)
}

// Permissions lists everything a role may do, lowest tier first.
func Permissions(role domain.ActorRole) []string {
	var out []string
	for _, r := range []domain.ActorRole{domain.RoleCaseworker, domain.RoleSupervisor, domain.RoleDirector} {
		if role.AtLeast(r) {
			out = append(out, rolePermissions[r]...)
		}
	}
	return out
}

// HasPermission reports whether role grants perm.
func HasPermission(role domain.ActorRole, perm string) bool {
	return slices.Contains(Permissions(role), perm)
}

// Service looks actors up on the roster.
type Service struct {
	Repo repo.Repo
}

// Actor resolves an actor id to its rostered role.
func (s Service) Actor(ctx context.Context, tx *sql.Tx, actorID string) (domain.Actor, error) {
	if actorID == "" {
		return domain.Actor{}, domain.Invalid("actor_id", "required")
	}
	rec, err := s.Repo.GetActor(ctx, tx, actorID)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.Actor{}, UnknownActorError{ActorID: actorID}
	}
	if err != nil {
		return domain.Actor{}, err
	}
	return rec.Actor(), nil
}

// Require resolves the actor and checks it holds perm.
func (s Service) Require(ctx context.Context, tx *sql.Tx, actorID, perm string) (domain.Actor, error) {
	a, err := s.Actor(ctx, tx, actorID)
	if err != nil {
		return a, err
	}
	if !HasPermission(a.Role, perm) {
		return a, ForbiddenError{Permission: perm, Role: a.Role}
	}
	return a, nil
}
