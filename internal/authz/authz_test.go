package authz

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "landregistry/pkg/domain"
	dErrors "landregistry/pkg/domain-errors"
	"landregistry/pkg/requestcontext"
)

func actorCtx(actorID id.ActorID, role id.Role) context.Context {
	return requestcontext.WithActor(context.Background(), actorID, role)
}

func TestRequire(t *testing.T) {
	owner := id.NewActorID()
	officer := id.NewActorID()

	t.Run("unauthenticated caller rejected", func(t *testing.T) {
		_, err := Require(context.Background(), Authenticated, id.ActorID{})
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	t.Run("role outside the set rejected", func(t *testing.T) {
		_, err := Require(actorCtx(officer, id.RoleCitizen), Reviewer, id.ActorID{})
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	t.Run("officer passes reviewer rule", func(t *testing.T) {
		caller, err := Require(actorCtx(officer, id.RoleLandOfficer), Reviewer, id.ActorID{})
		require.NoError(t, err)
		assert.Equal(t, officer, caller.ActorID)
		assert.Equal(t, id.RoleLandOfficer, caller.Role)
	})

	t.Run("owner-only rejects non-owner", func(t *testing.T) {
		_, err := Require(actorCtx(officer, id.RoleCitizen), Owner, owner)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	t.Run("owner-only admits owner", func(t *testing.T) {
		_, err := Require(actorCtx(owner, id.RoleCitizen), Owner, owner)
		assert.NoError(t, err)
	})

	t.Run("self-review guard rejects owner regardless of role", func(t *testing.T) {
		for _, role := range []id.Role{id.RoleCitizen, id.RoleLandOfficer, id.RoleAdmin} {
			_, err := Require(actorCtx(owner, role), ReviewerNotOwner, owner)
			require.Error(t, err, "role %s", role)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden), "role %s", role)
		}
	})

	t.Run("admin-only rejects land officer", func(t *testing.T) {
		_, err := Require(actorCtx(officer, id.RoleLandOfficer), AdminOnly, id.ActorID{})
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
	})
}
