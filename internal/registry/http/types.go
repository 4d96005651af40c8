package http

import "time"

type LoginRequest struct {
	Address string `json:"address"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type CSRFResponse struct {
	Token string `json:"csrf_token"`
}

type ProfileResponse struct {
	Address string `json:"address"`
	Viewer  string `json:"viewer,omitempty"`
}

type MeResponse struct {
	Address   string `json:"address"`
	ProfileID string `json:"profile_id,omitempty"`
	IsAdmin   bool   `json:"is_admin,omitempty"`
}

type UpdateMeRequest struct {
	DisplayName string `json:"display_name"`
}

type APIKeyResponse struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	OwnerAddress string     `json:"owner_address"`
	Permissions  []string   `json:"permissions,omitempty"`
	IsActive     bool       `json:"is_active"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	LastUsedAt   *time.Time `json:"last_used_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

type MintAPIKeyRequest struct {
	Name         string   `json:"name"`
	OwnerAddress string   `json:"owner_address"`
	Permissions  []string `json:"permissions,omitempty"`
	ExpiresAt    int64    `json:"expires_at,omitempty"` // unix seconds, 0 = never
}

type MintAPIKeyResponse struct {
	Key       APIKeyResponse `json:"key"`
	Plaintext string         `json:"plaintext"` // shown exactly once
}

type HealthResponse struct {
	Status  string        `json:"status"`
	Uptime  string        `json:"uptime"`
	Version string        `json:"version"`
	Checks  *HealthChecks `json:"checks,omitempty"`
}

type HealthChecks struct {
	Database string `json:"database"`
	Cache    string `json:"cache"`
}
