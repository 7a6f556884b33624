package cache

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/smallbiznis/authbox/internal/domain"
	"github.com/smallbiznis/authbox/internal/repository"
)

// Read-through decorators over the repositories. Lookups consult the store
// first and fill it on a miss; misses for absent rows are not cached. Every
// mutation evicts the keys it can affect. Store failures degrade to a direct
// repository call.

type readThrough struct {
	store  Store
	ttl    time.Duration
	logger *zap.Logger
}

func (c readThrough) load(ctx context.Context, key string, dst any) bool {
	found, err := c.store.Get(ctx, key, dst)
	if err != nil {
		c.logger.Warn("cache read failed", zap.String("key", key), zap.Error(err))
		return false
	}
	return found
}

func (c readThrough) save(ctx context.Context, key string, value any) {
	if err := c.store.Set(ctx, key, value, c.ttl); err != nil {
		c.logger.Warn("cache write failed", zap.String("key", key), zap.Error(err))
	}
}

func (c readThrough) evict(ctx context.Context, keys ...string) {
	if err := c.store.Delete(ctx, keys...); err != nil {
		c.logger.Warn("cache evict failed", zap.Strings("keys", keys), zap.Error(err))
	}
}

// Organizations caches organizations by id and domain prefix.
type Organizations struct {
	readThrough
	next repository.OrganizationRepository
}

var _ repository.OrganizationRepository = (*Organizations)(nil)

func NewOrganizations(next repository.OrganizationRepository, store Store, ttl time.Duration, logger *zap.Logger) *Organizations {
	return &Organizations{readThrough: readThrough{store: store, ttl: ttl, logger: logger}, next: next}
}

func (o *Organizations) GetByID(ctx context.Context, id string) (domain.Organization, error) {
	key := "org:id:" + id
	var org domain.Organization
	if o.load(ctx, key, &org) {
		return org, nil
	}
	org, err := o.next.GetByID(ctx, id)
	if err != nil {
		return domain.Organization{}, err
	}
	o.save(ctx, key, org)
	return org, nil
}

func (o *Organizations) GetByDomainPrefix(ctx context.Context, prefix string) (domain.Organization, error) {
	key := "org:prefix:" + prefix
	var org domain.Organization
	if o.load(ctx, key, &org) {
		return org, nil
	}
	org, err := o.next.GetByDomainPrefix(ctx, prefix)
	if err != nil {
		return domain.Organization{}, err
	}
	o.save(ctx, key, org)
	return org, nil
}

func (o *Organizations) Create(ctx context.Context, org domain.Organization) error {
	if err := o.next.Create(ctx, org); err != nil {
		return err
	}
	o.evict(ctx, "org:id:"+org.ID, "org:prefix:"+org.DomainPrefix)
	return nil
}

// Clients caches clients by id.
type Clients struct {
	readThrough
	next repository.ClientRepository
}

var _ repository.ClientRepository = (*Clients)(nil)

func NewClients(next repository.ClientRepository, store Store, ttl time.Duration, logger *zap.Logger) *Clients {
	return &Clients{readThrough: readThrough{store: store, ttl: ttl, logger: logger}, next: next}
}

func (c *Clients) GetByID(ctx context.Context, id string) (domain.OauthClient, error) {
	key := "client:id:" + id
	var client domain.OauthClient
	if c.load(ctx, key, &client) {
		return client, nil
	}
	client, err := c.next.GetByID(ctx, id)
	if err != nil {
		return domain.OauthClient{}, err
	}
	c.save(ctx, key, client)
	return client, nil
}

func (c *Clients) Create(ctx context.Context, client domain.OauthClient) error {
	if err := c.next.Create(ctx, client); err != nil {
		return err
	}
	c.evict(ctx, "client:id:"+client.ID)
	return nil
}

// Scopes caches the scope list of each client.
type Scopes struct {
	readThrough
	next repository.ScopeRepository
}

var _ repository.ScopeRepository = (*Scopes)(nil)

func NewScopes(next repository.ScopeRepository, store Store, ttl time.Duration, logger *zap.Logger) *Scopes {
	return &Scopes{readThrough: readThrough{store: store, ttl: ttl, logger: logger}, next: next}
}

func (s *Scopes) ListByClientID(ctx context.Context, clientID string) ([]domain.OauthScope, error) {
	key := "scope:client:" + clientID
	var scopes []domain.OauthScope
	if s.load(ctx, key, &scopes) {
		return scopes, nil
	}
	scopes, err := s.next.ListByClientID(ctx, clientID)
	if err != nil {
		return nil, err
	}
	s.save(ctx, key, scopes)
	return scopes, nil
}

func (s *Scopes) GetByScope(ctx context.Context, orgID, scope string) (domain.OauthScope, error) {
	return s.next.GetByScope(ctx, orgID, scope)
}

func (s *Scopes) Create(ctx context.Context, scope domain.OauthScope) error {
	return s.next.Create(ctx, scope)
}

func (s *Scopes) AssignToClient(ctx context.Context, clientID, scopeID string) error {
	if err := s.next.AssignToClient(ctx, clientID, scopeID); err != nil {
		return err
	}
	s.evict(ctx, "scope:client:"+clientID)
	return nil
}

// Users caches users by id and by (organization, username).
type Users struct {
	readThrough
	next repository.UserRepository
}

var _ repository.UserRepository = (*Users)(nil)

func NewUsers(next repository.UserRepository, store Store, ttl time.Duration, logger *zap.Logger) *Users {
	return &Users{readThrough: readThrough{store: store, ttl: ttl, logger: logger}, next: next}
}

func (u *Users) GetByID(ctx context.Context, id string) (domain.OauthUser, error) {
	key := "user:id:" + id
	var user domain.OauthUser
	if u.load(ctx, key, &user) {
		return user, nil
	}
	user, err := u.next.GetByID(ctx, id)
	if err != nil {
		return domain.OauthUser{}, err
	}
	u.save(ctx, key, user)
	return user, nil
}

func (u *Users) GetByUsername(ctx context.Context, orgID, username string) (domain.OauthUser, error) {
	key := "user:name:" + orgID + ":" + username
	var user domain.OauthUser
	if u.load(ctx, key, &user) {
		return user, nil
	}
	user, err := u.next.GetByUsername(ctx, orgID, username)
	if err != nil {
		return domain.OauthUser{}, err
	}
	u.save(ctx, key, user)
	return user, nil
}

func (u *Users) Create(ctx context.Context, user domain.OauthUser) error {
	if err := u.next.Create(ctx, user); err != nil {
		return err
	}
	u.evict(ctx, "user:id:"+user.ID, "user:name:"+user.OrganizationID+":"+user.Username)
	return nil
}

// Tokens caches token rows by id and hash. LinkToken always reaches the
// repository, whose conditional update decides redemption races.
type Tokens struct {
	readThrough
	next repository.TokenRepository
}

var _ repository.TokenRepository = (*Tokens)(nil)

func NewTokens(next repository.TokenRepository, store Store, ttl time.Duration, logger *zap.Logger) *Tokens {
	return &Tokens{readThrough: readThrough{store: store, ttl: ttl, logger: logger}, next: next}
}

func (t *Tokens) Insert(ctx context.Context, token domain.OauthToken) error {
	return t.next.Insert(ctx, token)
}

func (t *Tokens) GetByID(ctx context.Context, id string) (domain.OauthToken, error) {
	key := "token:id:" + id
	var token domain.OauthToken
	if t.load(ctx, key, &token) {
		return token, nil
	}
	token, err := t.next.GetByID(ctx, id)
	if err != nil {
		return domain.OauthToken{}, err
	}
	t.save(ctx, key, token)
	return token, nil
}

func (t *Tokens) GetByHash(ctx context.Context, hash string) (domain.OauthToken, error) {
	key := "token:hash:" + hash
	var token domain.OauthToken
	if t.load(ctx, key, &token) {
		return token, nil
	}
	token, err := t.next.GetByHash(ctx, hash)
	if err != nil {
		return domain.OauthToken{}, err
	}
	t.save(ctx, key, token)
	return token, nil
}

func (t *Tokens) LinkToken(ctx context.Context, id, linkedTokenID string) error {
	err := t.next.LinkToken(ctx, id, linkedTokenID)
	keys := []string{"token:id:" + id}
	if token, lookupErr := t.next.GetByID(ctx, id); lookupErr == nil {
		keys = append(keys, "token:hash:"+token.Hash)
	}
	t.evict(ctx, keys...)
	return err
}
