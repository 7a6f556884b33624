package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/smallbiznis/authbox/internal/domain"
)

// Compile-time interface assertions.
var (
	_ OrganizationRepository = (*PostgresOrganizationRepo)(nil)
	_ ClientRepository       = (*PostgresClientRepo)(nil)
	_ ScopeRepository        = (*PostgresScopeRepo)(nil)
	_ UserRepository         = (*PostgresUserRepo)(nil)
	_ TokenRepository        = (*PostgresTokenRepo)(nil)
	_ AccessLogRepository    = (*PostgresAccessLogRepo)(nil)
)

// PostgresOrganizationRepo implements OrganizationRepository.
type PostgresOrganizationRepo struct {
	db *pgxpool.Pool
}

func NewPostgresOrganizationRepo(pool *pgxpool.Pool) *PostgresOrganizationRepo {
	return &PostgresOrganizationRepo{db: pool}
}

const selectOrganizationSQL = `SELECT id, name, domain_prefix, enabled, create_time FROM organization`

func (r *PostgresOrganizationRepo) GetByID(ctx context.Context, id string) (domain.Organization, error) {
	org, err := scanOrganization(r.db.QueryRow(ctx, selectOrganizationSQL+` WHERE id = $1`, id))
	if err != nil {
		return domain.Organization{}, fmt.Errorf("get organization: %w", err)
	}
	return org, nil
}

func (r *PostgresOrganizationRepo) GetByDomainPrefix(ctx context.Context, prefix string) (domain.Organization, error) {
	org, err := scanOrganization(r.db.QueryRow(ctx, selectOrganizationSQL+` WHERE domain_prefix = $1`, prefix))
	if err != nil {
		return domain.Organization{}, fmt.Errorf("get organization by domain prefix: %w", err)
	}
	return org, nil
}

func (r *PostgresOrganizationRepo) Create(ctx context.Context, org domain.Organization) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO organization (id, name, domain_prefix, enabled, create_time) VALUES ($1, $2, $3, $4, $5)`,
		org.ID, org.Name, org.DomainPrefix, org.Enabled, orNow(org.CreateTime),
	)
	if err != nil {
		return fmt.Errorf("create organization: %w", err)
	}
	return nil
}

func scanOrganization(row pgx.Row) (domain.Organization, error) {
	var org domain.Organization
	if err := row.Scan(&org.ID, &org.Name, &org.DomainPrefix, &org.Enabled, &org.CreateTime); err != nil {
		return domain.Organization{}, mapNoRows(err)
	}
	return org, nil
}

// PostgresClientRepo implements ClientRepository.
type PostgresClientRepo struct {
	db *pgxpool.Pool
}

func NewPostgresClientRepo(pool *pgxpool.Pool) *PostgresClientRepo {
	return &PostgresClientRepo{db: pool}
}

func (r *PostgresClientRepo) GetByID(ctx context.Context, id string) (domain.OauthClient, error) {
	const query = `
SELECT id, organization_id, secret, description, grant_types, redirect_urls, enabled, token_format,
       expiration_seconds, refresh_expiration_seconds, private_key, public_key, create_time
FROM oauth_client
WHERE id = $1`

	var (
		client         domain.OauthClient
		grantTypes     []string
		tokenFormat    string
		expiration     int64
		refreshExpires int64
	)
	if err := r.db.QueryRow(ctx, query, id).Scan(
		&client.ID,
		&client.OrganizationID,
		&client.Secret,
		&client.Description,
		&grantTypes,
		&client.RedirectURLs,
		&client.Enabled,
		&tokenFormat,
		&expiration,
		&refreshExpires,
		&client.PrivateKey,
		&client.PublicKey,
		&client.CreateTime,
	); err != nil {
		return domain.OauthClient{}, fmt.Errorf("get oauth client: %w", mapNoRows(err))
	}

	client.GrantTypes = make([]domain.GrantType, 0, len(grantTypes))
	for _, g := range grantTypes {
		client.GrantTypes = append(client.GrantTypes, domain.GrantType(g))
	}
	client.TokenFormat = domain.TokenFormat(tokenFormat)
	client.Expiration = time.Duration(expiration) * time.Second
	client.RefreshExpiration = time.Duration(refreshExpires) * time.Second
	return client, nil
}

func (r *PostgresClientRepo) Create(ctx context.Context, client domain.OauthClient) error {
	const query = `
INSERT INTO oauth_client (id, organization_id, secret, description, grant_types, redirect_urls, enabled, token_format,
                          expiration_seconds, refresh_expiration_seconds, private_key, public_key, create_time)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	grantTypes := make([]string, 0, len(client.GrantTypes))
	for _, g := range client.GrantTypes {
		grantTypes = append(grantTypes, string(g))
	}
	_, err := r.db.Exec(ctx, query,
		client.ID,
		client.OrganizationID,
		client.Secret,
		client.Description,
		grantTypes,
		nonNil(client.RedirectURLs),
		client.Enabled,
		string(client.TokenFormat),
		int64(client.Expiration/time.Second),
		int64(client.RefreshExpiration/time.Second),
		client.PrivateKey,
		client.PublicKey,
		orNow(client.CreateTime),
	)
	if err != nil {
		return fmt.Errorf("create oauth client: %w", err)
	}
	return nil
}

// PostgresScopeRepo implements ScopeRepository.
type PostgresScopeRepo struct {
	db *pgxpool.Pool
}

func NewPostgresScopeRepo(pool *pgxpool.Pool) *PostgresScopeRepo {
	return &PostgresScopeRepo{db: pool}
}

func (r *PostgresScopeRepo) ListByClientID(ctx context.Context, clientID string) ([]domain.OauthScope, error) {
	const query = `
SELECT s.id, s.organization_id, s.scope, s.description, s.create_time
FROM oauth_scope s
JOIN oauth_client_scope cs ON cs.scope_id = s.id
WHERE cs.client_id = $1
ORDER BY s.scope`

	rows, err := r.db.Query(ctx, query, clientID)
	if err != nil {
		return nil, fmt.Errorf("list client scopes: %w", err)
	}
	defer rows.Close()

	var res []domain.OauthScope
	for rows.Next() {
		var s domain.OauthScope
		if err := rows.Scan(&s.ID, &s.OrganizationID, &s.Scope, &s.Description, &s.CreateTime); err != nil {
			return nil, fmt.Errorf("scan client scope: %w", err)
		}
		res = append(res, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list client scopes: %w", err)
	}
	return res, nil
}

func (r *PostgresScopeRepo) GetByScope(ctx context.Context, orgID, scope string) (domain.OauthScope, error) {
	var s domain.OauthScope
	err := r.db.QueryRow(ctx,
		`SELECT id, organization_id, scope, description, create_time FROM oauth_scope WHERE organization_id = $1 AND scope = $2`,
		orgID, scope,
	).Scan(&s.ID, &s.OrganizationID, &s.Scope, &s.Description, &s.CreateTime)
	if err != nil {
		return domain.OauthScope{}, fmt.Errorf("get oauth scope: %w", mapNoRows(err))
	}
	return s, nil
}

func (r *PostgresScopeRepo) Create(ctx context.Context, scope domain.OauthScope) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO oauth_scope (id, organization_id, scope, description, create_time) VALUES ($1, $2, $3, $4, $5)`,
		scope.ID, scope.OrganizationID, scope.Scope, scope.Description, orNow(scope.CreateTime),
	)
	if err != nil {
		return fmt.Errorf("create oauth scope: %w", err)
	}
	return nil
}

func (r *PostgresScopeRepo) AssignToClient(ctx context.Context, clientID, scopeID string) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO oauth_client_scope (client_id, scope_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		clientID, scopeID,
	)
	if err != nil {
		return fmt.Errorf("assign oauth scope: %w", err)
	}
	return nil
}

// PostgresUserRepo implements UserRepository.
type PostgresUserRepo struct {
	db *pgxpool.Pool
}

func NewPostgresUserRepo(pool *pgxpool.Pool) *PostgresUserRepo {
	return &PostgresUserRepo{db: pool}
}

const selectUserSQL = `SELECT id, organization_id, username, password, enabled, metadata, secret, using_2fa, create_time, last_updated FROM oauth_user`

func (r *PostgresUserRepo) GetByID(ctx context.Context, id string) (domain.OauthUser, error) {
	user, err := scanUser(r.db.QueryRow(ctx, selectUserSQL+` WHERE id = $1`, id))
	if err != nil {
		return domain.OauthUser{}, fmt.Errorf("get user by id: %w", err)
	}
	return user, nil
}

func (r *PostgresUserRepo) GetByUsername(ctx context.Context, orgID, username string) (domain.OauthUser, error) {
	user, err := scanUser(r.db.QueryRow(ctx, selectUserSQL+` WHERE organization_id = $1 AND username = $2`, orgID, username))
	if err != nil {
		return domain.OauthUser{}, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

const insertUserSQL = `INSERT INTO oauth_user (id, organization_id, username, password, enabled, metadata, secret, using_2fa, create_time, last_updated)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

func (r *PostgresUserRepo) Create(ctx context.Context, user domain.OauthUser) error {
	now := orNow(user.CreateTime)
	_, err := r.db.Exec(ctx, insertUserSQL,
		user.ID,
		user.OrganizationID,
		user.Username,
		user.Password,
		user.Enabled,
		user.Metadata,
		user.Secret,
		user.Using2FA,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func scanUser(row pgx.Row) (domain.OauthUser, error) {
	var u domain.OauthUser
	if err := row.Scan(
		&u.ID,
		&u.OrganizationID,
		&u.Username,
		&u.Password,
		&u.Enabled,
		&u.Metadata,
		&u.Secret,
		&u.Using2FA,
		&u.CreateTime,
		&u.LastUpdated,
	); err != nil {
		return domain.OauthUser{}, mapNoRows(err)
	}
	return u, nil
}

// PostgresTokenRepo implements TokenRepository.
type PostgresTokenRepo struct {
	db *pgxpool.Pool
}

func NewPostgresTokenRepo(pool *pgxpool.Pool) *PostgresTokenRepo {
	return &PostgresTokenRepo{db: pool}
}

const selectTokenSQL = `
SELECT id, create_time, hash, organization_id, client_id, expiration, scopes, COALESCE(oauth_user_id, ''),
       token_type, ip, user_agent, request_id, COALESCE(linked_token_id, '')
FROM oauth_token`

func (r *PostgresTokenRepo) Insert(ctx context.Context, token domain.OauthToken) error {
	const query = `
INSERT INTO oauth_token (id, create_time, hash, organization_id, client_id, expiration, scopes, oauth_user_id,
                         token_type, ip, user_agent, request_id, linked_token_id)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err := r.db.Exec(ctx, query,
		token.ID,
		token.CreateTime,
		token.Hash,
		token.OrganizationID,
		token.ClientID,
		token.Expiration,
		nonNil(token.Scopes),
		nullable(token.UserID),
		string(token.TokenType),
		token.IP,
		token.UserAgent,
		token.RequestID,
		nullable(token.LinkedTokenID),
	)
	if err != nil {
		return fmt.Errorf("insert oauth token: %w", err)
	}
	return nil
}

func (r *PostgresTokenRepo) GetByID(ctx context.Context, id string) (domain.OauthToken, error) {
	token, err := scanToken(r.db.QueryRow(ctx, selectTokenSQL+` WHERE id = $1`, id))
	if err != nil {
		return domain.OauthToken{}, fmt.Errorf("get oauth token: %w", err)
	}
	return token, nil
}

func (r *PostgresTokenRepo) GetByHash(ctx context.Context, hash string) (domain.OauthToken, error) {
	token, err := scanToken(r.db.QueryRow(ctx, selectTokenSQL+` WHERE hash = $1`, hash))
	if err != nil {
		return domain.OauthToken{}, fmt.Errorf("get oauth token by hash: %w", err)
	}
	return token, nil
}

func (r *PostgresTokenRepo) LinkToken(ctx context.Context, id, linkedTokenID string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE oauth_token SET linked_token_id = $2 WHERE id = $1 AND linked_token_id IS NULL`,
		id, linkedTokenID,
	)
	if err != nil {
		return fmt.Errorf("link oauth token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM oauth_token WHERE id = $1)`, id).Scan(&exists); err != nil {
			return fmt.Errorf("link oauth token: %w", err)
		}
		if !exists {
			return fmt.Errorf("link oauth token: %w", ErrNotFound)
		}
		return ErrAlreadyLinked
	}
	return nil
}

func scanToken(row pgx.Row) (domain.OauthToken, error) {
	var (
		t         domain.OauthToken
		tokenType string
	)
	if err := row.Scan(
		&t.ID,
		&t.CreateTime,
		&t.Hash,
		&t.OrganizationID,
		&t.ClientID,
		&t.Expiration,
		&t.Scopes,
		&t.UserID,
		&tokenType,
		&t.IP,
		&t.UserAgent,
		&t.RequestID,
		&t.LinkedTokenID,
	); err != nil {
		return domain.OauthToken{}, mapNoRows(err)
	}
	t.TokenType = domain.TokenType(tokenType)
	return t, nil
}

// PostgresAccessLogRepo implements AccessLogRepository.
type PostgresAccessLogRepo struct {
	db *pgxpool.Pool
}

func NewPostgresAccessLogRepo(pool *pgxpool.Pool) *PostgresAccessLogRepo {
	return &PostgresAccessLogRepo{db: pool}
}

func (r *PostgresAccessLogRepo) Insert(ctx context.Context, entry domain.AccessLog) error {
	const query = `
INSERT INTO access_log (id, create_time, organization_id, token_id, client_id, request_id, source, duration_ms,
                        message, error, status_code, ip, user_agent)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err := r.db.Exec(ctx, query,
		entry.ID,
		entry.CreateTime,
		nullable(entry.OrganizationID),
		entry.TokenID,
		entry.ClientID,
		entry.RequestID,
		string(entry.Source),
		entry.Duration.Milliseconds(),
		entry.Message,
		entry.Error,
		entry.StatusCode,
		entry.IP,
		entry.UserAgent,
	)
	if err != nil {
		return fmt.Errorf("insert access log: %w", err)
	}
	return nil
}

func (r *PostgresAccessLogRepo) ListByRequestID(ctx context.Context, requestID string) ([]domain.AccessLog, error) {
	const query = `
SELECT id, create_time, COALESCE(organization_id, ''), token_id, client_id, request_id, source, duration_ms,
       message, error, status_code, ip, user_agent
FROM access_log
WHERE request_id = $1
ORDER BY create_time, id`

	rows, err := r.db.Query(ctx, query, requestID)
	if err != nil {
		return nil, fmt.Errorf("list access log: %w", err)
	}
	defer rows.Close()

	var res []domain.AccessLog
	for rows.Next() {
		var (
			e          domain.AccessLog
			source     string
			durationMS int64
		)
		if err := rows.Scan(&e.ID, &e.CreateTime, &e.OrganizationID, &e.TokenID, &e.ClientID, &e.RequestID,
			&source, &durationMS, &e.Message, &e.Error, &e.StatusCode, &e.IP, &e.UserAgent); err != nil {
			return nil, fmt.Errorf("scan access log: %w", err)
		}
		e.Source = domain.AccessLogSource(source)
		e.Duration = time.Duration(durationMS) * time.Millisecond
		res = append(res, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list access log: %w", err)
	}
	return res, nil
}

func mapNoRows(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

func orNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}
