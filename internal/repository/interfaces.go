package repository

import (
	"context"
	"errors"

	"github.com/smallbiznis/authbox/internal/domain"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("repository: not found")
	// ErrAlreadyLinked is returned when a token has already been redeemed.
	ErrAlreadyLinked = errors.New("repository: token already linked")
)

// OrganizationRepository exposes tenant lookups.
type OrganizationRepository interface {
	GetByID(ctx context.Context, id string) (domain.Organization, error)
	GetByDomainPrefix(ctx context.Context, prefix string) (domain.Organization, error)
	Create(ctx context.Context, org domain.Organization) error
}

// ClientRepository exposes client registrations.
type ClientRepository interface {
	GetByID(ctx context.Context, id string) (domain.OauthClient, error)
	Create(ctx context.Context, client domain.OauthClient) error
}

// ScopeRepository exposes scopes and their client assignments.
type ScopeRepository interface {
	ListByClientID(ctx context.Context, clientID string) ([]domain.OauthScope, error)
	GetByScope(ctx context.Context, orgID, scope string) (domain.OauthScope, error)
	Create(ctx context.Context, scope domain.OauthScope) error
	AssignToClient(ctx context.Context, clientID, scopeID string) error
}

// UserRepository exposes end users.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (domain.OauthUser, error)
	GetByUsername(ctx context.Context, orgID, username string) (domain.OauthUser, error)
	Create(ctx context.Context, user domain.OauthUser) error
}

// TokenRepository persists token rows addressed by hash.
type TokenRepository interface {
	Insert(ctx context.Context, token domain.OauthToken) error
	GetByID(ctx context.Context, id string) (domain.OauthToken, error)
	GetByHash(ctx context.Context, hash string) (domain.OauthToken, error)
	// LinkToken sets linkedTokenId on an unredeemed token. Exactly one of any
	// number of concurrent callers succeeds; the rest get ErrAlreadyLinked.
	LinkToken(ctx context.Context, id, linkedTokenID string) error
}

// AccessLogRepository appends audit entries.
type AccessLogRepository interface {
	Insert(ctx context.Context, entry domain.AccessLog) error
	ListByRequestID(ctx context.Context, requestID string) ([]domain.AccessLog, error)
}
