package api

import (
	"time"

	"github.com/starford/quire/internal/frontmatter"
)

// LoginRequest is the request body for POST /api/auth/login.
type LoginRequest struct {
	Username string `json:"username" example:"admin" validate:"required"`
	Password string `json:"password" example:"changeme" validate:"required"`
}

// LoginResponse is returned after a successful login.
type LoginResponse struct {
	Token     string    `json:"token" validate:"required"`
	Username  string    `json:"username" example:"admin" validate:"required"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// VerifyResponse reports the owner of a valid token.
type VerifyResponse struct {
	Valid    bool   `json:"valid" example:"true"`
	Username string `json:"username" example:"admin"`
}

// PageResponse is the full page returned by GET /api/pages/{path}.
type PageResponse struct {
	Path         string                `json:"path" example:"projects/ideas" validate:"required"`
	Markdown     string                `json:"markdown" example:"# Ideas"`
	HTML         string                `json:"html" example:"<h1>Ideas</h1>"`
	Metadata     *frontmatter.Metadata `json:"metadata"`
	LastModified time.Time             `json:"lastModified"`
}

// SavePageRequest is the request body for POST/PUT /api/pages/{path}.
// Content must be present; it may be empty.
type SavePageRequest struct {
	Content  *string               `json:"content" example:"# Ideas" validate:"required"`
	Metadata *frontmatter.Metadata `json:"metadata"`
}

// SavePageResponse is returned after a page is written.
type SavePageResponse struct {
	Path         string    `json:"path" example:"projects/ideas" validate:"required"`
	Message      string    `json:"message" example:"Page saved successfully"`
	LastModified time.Time `json:"lastModified"`
}

// MessageResponse carries a human readable confirmation.
type MessageResponse struct {
	Message string `json:"message" example:"Page deleted successfully"`
}

// HealthResponse is returned by GET /api/health.
type HealthResponse struct {
	Status    string    `json:"status" example:"healthy"`
	Timestamp time.Time `json:"timestamp"`
	Uptime    float64   `json:"uptime" example:"12.5"`
	Version   string    `json:"version" example:"1.0.0"`
}
