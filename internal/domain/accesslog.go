package domain

import "time"

type AccessLogSource string

const (
	SourceOauth2Server        AccessLogSource = "Oauth2Server"
	SourceWebManagementPortal AccessLogSource = "WebManagementPortal"
)

// AccessLog is an append-only audit entry.
type AccessLog struct {
	ID             string
	CreateTime     time.Time
	OrganizationID string
	TokenID        string
	ClientID       string
	RequestID      string
	Source         AccessLogSource
	Duration       time.Duration
	Message        string
	Error          string
	StatusCode     int
	IP             string
	UserAgent      string
}
