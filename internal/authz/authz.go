// Package authz is the single authorization capability evaluated before every
// state-mutating operation. Services compose a Rule with each transition
// instead of duplicating role checks inline.
package authz

import (
	"context"

	id "landregistry/pkg/domain"
	dErrors "landregistry/pkg/domain-errors"
	"landregistry/pkg/requestcontext"
)

// OwnershipRule constrains the caller's relationship to the entity's owner.
type OwnershipRule int

const (
	// AnyActor places no ownership constraint.
	AnyActor OwnershipRule = iota
	// OwnerOnly requires the caller to be the entity's owner.
	OwnerOnly
	// NotOwner forbids the entity's owner, regardless of role. This is the
	// self-approval guard: approval authority is strictly disjoint from
	// applicant identity, even for admins.
	NotOwner
)

// Rule is one guard: which roles may proceed and how the caller must relate
// to the entity's owner. An empty role set admits any authenticated actor.
type Rule struct {
	Roles     []id.Role
	Ownership OwnershipRule
}

// Convenience rules shared across workflows.
var (
	// Reviewer admits land officers and admins.
	Reviewer = Rule{Roles: []id.Role{id.RoleLandOfficer, id.RoleAdmin}}

	// ReviewerNotOwner admits officers and admins but never the entity's
	// own owner.
	ReviewerNotOwner = Rule{
		Roles:     []id.Role{id.RoleLandOfficer, id.RoleAdmin},
		Ownership: NotOwner,
	}

	// AdminOnly admits admins alone (transfer completion, dispute
	// assignment).
	AdminOnly = Rule{Roles: []id.Role{id.RoleAdmin}}

	// Owner admits only the entity's owner, whatever their role.
	Owner = Rule{Ownership: OwnerOnly}

	// Authenticated admits any actor with a resolved identity.
	Authenticated = Rule{}
)

// Caller is the identity the guard evaluated, returned so services can stamp
// audit entries without re-reading the context.
type Caller struct {
	ActorID id.ActorID
	Role    id.Role
}

// Require evaluates a rule against the calling actor. ownerID is the owning
// actor of the entity under mutation; pass the zero ActorID when the rule has
// no ownership component.
//
// Errors: CodeUnauthorized when no identity is present; CodeForbidden when
// the role or ownership constraint fails. Guard failures are never downgraded.
func Require(ctx context.Context, rule Rule, ownerID id.ActorID) (Caller, error) {
	actorID := requestcontext.ActorID(ctx)
	role := requestcontext.Role(ctx)
	if actorID.IsNil() || !role.IsValid() {
		return Caller{}, dErrors.New(dErrors.CodeUnauthorized, "caller identity not resolved")
	}

	if len(rule.Roles) > 0 {
		allowed := false
		for _, r := range rule.Roles {
			if role == r {
				allowed = true
				break
			}
		}
		if !allowed {
			return Caller{}, dErrors.New(dErrors.CodeForbidden, "role not permitted for this operation")
		}
	}

	switch rule.Ownership {
	case OwnerOnly:
		if actorID != ownerID {
			return Caller{}, dErrors.New(dErrors.CodeForbidden, "only the owner may perform this operation")
		}
	case NotOwner:
		if actorID == ownerID {
			return Caller{}, dErrors.New(dErrors.CodeForbidden, "owners may not review their own submissions")
		}
	}

	return Caller{ActorID: actorID, Role: role}, nil
}
