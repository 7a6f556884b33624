package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/smallbiznis/authbox/internal/domain"
)

var (
	_ OrganizationRepository = (*MemoryOrganizationRepo)(nil)
	_ ClientRepository       = (*MemoryClientRepo)(nil)
	_ ScopeRepository        = (*MemoryScopeRepo)(nil)
	_ UserRepository         = (*MemoryUserRepo)(nil)
	_ TokenRepository        = (*MemoryTokenRepo)(nil)
	_ AccessLogRepository    = (*MemoryAccessLogRepo)(nil)
)

// MemoryOrganizationRepo keeps organizations in process memory.
type MemoryOrganizationRepo struct {
	mu   sync.RWMutex
	byID map[string]domain.Organization
}

func NewMemoryOrganizationRepo() *MemoryOrganizationRepo {
	return &MemoryOrganizationRepo{byID: map[string]domain.Organization{}}
}

func (r *MemoryOrganizationRepo) GetByID(_ context.Context, id string) (domain.Organization, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	org, ok := r.byID[id]
	if !ok {
		return domain.Organization{}, ErrNotFound
	}
	return org, nil
}

func (r *MemoryOrganizationRepo) GetByDomainPrefix(_ context.Context, prefix string) (domain.Organization, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, org := range r.byID {
		if org.DomainPrefix == prefix {
			return org, nil
		}
	}
	return domain.Organization{}, ErrNotFound
}

func (r *MemoryOrganizationRepo) Create(_ context.Context, org domain.Organization) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.byID {
		if existing.ID == org.ID || existing.DomainPrefix == org.DomainPrefix {
			return fmt.Errorf("create organization: duplicate %q", org.DomainPrefix)
		}
	}
	r.byID[org.ID] = org
	return nil
}

// MemoryClientRepo keeps clients in process memory.
type MemoryClientRepo struct {
	mu   sync.RWMutex
	byID map[string]domain.OauthClient
}

func NewMemoryClientRepo() *MemoryClientRepo {
	return &MemoryClientRepo{byID: map[string]domain.OauthClient{}}
}

func (r *MemoryClientRepo) GetByID(_ context.Context, id string) (domain.OauthClient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	client, ok := r.byID[id]
	if !ok {
		return domain.OauthClient{}, ErrNotFound
	}
	client.GrantTypes = append([]domain.GrantType(nil), client.GrantTypes...)
	client.RedirectURLs = append([]string(nil), client.RedirectURLs...)
	return client, nil
}

func (r *MemoryClientRepo) Create(_ context.Context, client domain.OauthClient) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[client.ID]; ok {
		return fmt.Errorf("create oauth client: duplicate %q", client.ID)
	}
	r.byID[client.ID] = client
	return nil
}

// MemoryScopeRepo keeps scopes and client assignments in process memory.
type MemoryScopeRepo struct {
	mu       sync.RWMutex
	byID     map[string]domain.OauthScope
	byClient map[string][]string
}

func NewMemoryScopeRepo() *MemoryScopeRepo {
	return &MemoryScopeRepo{byID: map[string]domain.OauthScope{}, byClient: map[string][]string{}}
}

func (r *MemoryScopeRepo) ListByClientID(_ context.Context, clientID string) ([]domain.OauthScope, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var res []domain.OauthScope
	for _, id := range r.byClient[clientID] {
		res = append(res, r.byID[id])
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Scope < res[j].Scope })
	return res, nil
}

func (r *MemoryScopeRepo) GetByScope(_ context.Context, orgID, scope string) (domain.OauthScope, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.byID {
		if s.OrganizationID == orgID && s.Scope == scope {
			return s, nil
		}
	}
	return domain.OauthScope{}, ErrNotFound
}

func (r *MemoryScopeRepo) Create(_ context.Context, scope domain.OauthScope) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.byID {
		if s.ID == scope.ID || (s.OrganizationID == scope.OrganizationID && s.Scope == scope.Scope) {
			return fmt.Errorf("create oauth scope: duplicate %q", scope.Scope)
		}
	}
	r.byID[scope.ID] = scope
	return nil
}

func (r *MemoryScopeRepo) AssignToClient(_ context.Context, clientID, scopeID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[scopeID]; !ok {
		return fmt.Errorf("assign oauth scope: %w", ErrNotFound)
	}
	for _, id := range r.byClient[clientID] {
		if id == scopeID {
			return nil
		}
	}
	r.byClient[clientID] = append(r.byClient[clientID], scopeID)
	return nil
}

// MemoryUserRepo keeps users in process memory.
type MemoryUserRepo struct {
	mu   sync.RWMutex
	byID map[string]domain.OauthUser
}

func NewMemoryUserRepo() *MemoryUserRepo {
	return &MemoryUserRepo{byID: map[string]domain.OauthUser{}}
}

func (r *MemoryUserRepo) GetByID(_ context.Context, id string) (domain.OauthUser, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	user, ok := r.byID[id]
	if !ok {
		return domain.OauthUser{}, ErrNotFound
	}
	return user, nil
}

func (r *MemoryUserRepo) GetByUsername(_ context.Context, orgID, username string) (domain.OauthUser, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.byID {
		if u.OrganizationID == orgID && u.Username == username {
			return u, nil
		}
	}
	return domain.OauthUser{}, ErrNotFound
}

func (r *MemoryUserRepo) Create(_ context.Context, user domain.OauthUser) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.byID {
		if u.ID == user.ID || (u.OrganizationID == user.OrganizationID && u.Username == user.Username) {
			return fmt.Errorf("create user: duplicate %q", user.Username)
		}
	}
	r.byID[user.ID] = user
	return nil
}

// MemoryTokenRepo keeps tokens in process memory.
type MemoryTokenRepo struct {
	mu     sync.Mutex
	byID   map[string]domain.OauthToken
	byHash map[string]string
}

func NewMemoryTokenRepo() *MemoryTokenRepo {
	return &MemoryTokenRepo{byID: map[string]domain.OauthToken{}, byHash: map[string]string{}}
}

func (r *MemoryTokenRepo) Insert(_ context.Context, token domain.OauthToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[token.ID]; ok {
		return fmt.Errorf("insert oauth token: duplicate id %q", token.ID)
	}
	if _, ok := r.byHash[token.Hash]; ok {
		return fmt.Errorf("insert oauth token: duplicate hash")
	}
	token.Scopes = append([]string(nil), token.Scopes...)
	r.byID[token.ID] = token
	r.byHash[token.Hash] = token.ID
	return nil
}

func (r *MemoryTokenRepo) GetByID(_ context.Context, id string) (domain.OauthToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	token, ok := r.byID[id]
	if !ok {
		return domain.OauthToken{}, ErrNotFound
	}
	token.Scopes = append([]string(nil), token.Scopes...)
	return token, nil
}

func (r *MemoryTokenRepo) GetByHash(ctx context.Context, hash string) (domain.OauthToken, error) {
	r.mu.Lock()
	id, ok := r.byHash[hash]
	r.mu.Unlock()
	if !ok {
		return domain.OauthToken{}, ErrNotFound
	}
	return r.GetByID(ctx, id)
}

func (r *MemoryTokenRepo) LinkToken(_ context.Context, id, linkedTokenID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	token, ok := r.byID[id]
	if !ok {
		return fmt.Errorf("link oauth token: %w", ErrNotFound)
	}
	if token.LinkedTokenID != "" {
		return ErrAlreadyLinked
	}
	token.LinkedTokenID = linkedTokenID
	r.byID[id] = token
	return nil
}

// MemoryAccessLogRepo keeps access log entries in insertion order.
type MemoryAccessLogRepo struct {
	mu      sync.RWMutex
	entries []domain.AccessLog
}

func NewMemoryAccessLogRepo() *MemoryAccessLogRepo {
	return &MemoryAccessLogRepo{}
}

func (r *MemoryAccessLogRepo) Insert(_ context.Context, entry domain.AccessLog) error {
	r.mu.Lock()
	r.entries = append(r.entries, entry)
	r.mu.Unlock()
	return nil
}

func (r *MemoryAccessLogRepo) ListByRequestID(_ context.Context, requestID string) ([]domain.AccessLog, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var res []domain.AccessLog
	for _, e := range r.entries {
		if e.RequestID == requestID {
			res = append(res, e)
		}
	}
	return res, nil
}

// Len returns the number of stored entries.
func (r *MemoryAccessLogRepo) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
