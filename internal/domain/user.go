package domain

import (
	"encoding/json"
	"time"
)

// OauthUser represents an end user that can authenticate within an organization.
type OauthUser struct {
	ID             string
	OrganizationID string
	Username       string
	Password       string
	Enabled        bool
	Metadata       string
	Secret         string
	Using2FA       bool
	CreateTime     time.Time
	LastUpdated    time.Time
}

// MetadataValue decodes the stored metadata as JSON, falling back to the raw
// string when it does not parse. Empty metadata yields nil.
func (u OauthUser) MetadataValue() any {
	if u.Metadata == "" {
		return nil
	}
	var v any
	if err := json.Unmarshal([]byte(u.Metadata), &v); err != nil {
		return u.Metadata
	}
	return v
}
