package domain

import "time"

// Organization is a tenant, addressed by the subdomain prefix of the request host.
type Organization struct {
	ID           string
	Name         string
	DomainPrefix string
	Enabled      bool
	CreateTime   time.Time
}

// OauthScope is a scope an organization has defined. Clients reference scopes
// through a join, never by embedding them.
type OauthScope struct {
	ID             string
	OrganizationID string
	Scope          string
	Description    string
	CreateTime     time.Time
}
