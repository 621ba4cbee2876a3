// Package provision implements the one-time role promotion used to bootstrap
// the first officer or admin account. The operation is gated by a single-use
// token supplied through configuration; after one successful promotion the
// token is dead for the lifetime of the process.
package provision

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"landregistry/internal/authz"
	id "landregistry/pkg/domain"
	dErrors "landregistry/pkg/domain-errors"
	"landregistry/pkg/platform/audit"
	"landregistry/pkg/requestcontext"
)

// Service performs audited, single-use role promotion.
type Service struct {
	mu         sync.Mutex
	token      string
	consumed   bool
	signingKey []byte
	tokenTTL   time.Duration
	auditor    *audit.Emitter
	logger     *slog.Logger
}

// New creates the provisioning service. An empty token disables promotion.
func New(token, signingKey string, auditor *audit.Emitter, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		token:      token,
		signingKey: []byte(signingKey),
		tokenTTL:   24 * time.Hour,
		auditor:    auditor,
		logger:     logger,
	}
}

// PromoteInput carries the provisioning token and the requested role.
type PromoteInput struct {
	Token string `json:"token"`
	Role  string `json:"role"`
}

// Credential is the promoted identity and a token asserting it.
type Credential struct {
	ActorID id.ActorID `json:"actor_id"`
	Role    id.Role    `json:"role"`
	Token   string     `json:"token"`
}

// Promote elevates the calling account to land_officer or admin. The
// provisioning token is compared in constant time and consumed on first
// success; concurrent callers race for one promotion.
func (s *Service) Promote(ctx context.Context, in PromoteInput) (*Credential, error) {
	caller, err := authz.Require(ctx, authz.Authenticated, id.ActorID{})
	if err != nil {
		return nil, err
	}

	role, err := id.ParseRole(in.Role)
	if err != nil {
		return nil, err
	}
	if !role.IsOfficerOrAdmin() {
		return nil, dErrors.New(dErrors.CodeValidation, "provisioning grants land_officer or admin only")
	}

	s.mu.Lock()
	switch {
	case s.token == "":
		s.mu.Unlock()
		return nil, dErrors.New(dErrors.CodeForbidden, "provisioning is disabled")
	case s.consumed:
		s.mu.Unlock()
		return nil, dErrors.New(dErrors.CodeConflict, "provisioning token already used")
	case subtle.ConstantTimeCompare([]byte(s.token), []byte(in.Token)) != 1:
		s.mu.Unlock()
		return nil, dErrors.New(dErrors.CodeForbidden, "invalid provisioning token")
	}
	s.consumed = true
	s.mu.Unlock()

	now := requestcontext.Now(ctx)
	signed, err := s.issue(caller.ActorID, role, now)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "issue promoted credential")
	}

	s.auditor.Emit(ctx, audit.Event{
		Timestamp:  now,
		EntityType: audit.EntityActor,
		EntityID:   caller.ActorID.String(),
		Action:     audit.ActionActorProvisioned,
		FromStatus: string(caller.Role),
		ToStatus:   string(role),
		ActorID:    caller.ActorID,
		ActorRole:  caller.Role,
		RequestID:  requestcontext.RequestID(ctx),
	})

	s.logger.InfoContext(ctx, "actor provisioned",
		"actor_id", caller.ActorID.String(), "role", role)
	return &Credential{ActorID: caller.ActorID, Role: role, Token: signed}, nil
}

func (s *Service) issue(actorID id.ActorID, role id.Role, now time.Time) (string, error) {
	claims := jwt.MapClaims{
		"sub":  actorID.String(),
		"role": string(role),
		"iat":  now.Unix(),
		"exp":  now.Add(s.tokenTTL).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signingKey)
}
