// Package protocol defines the document store API request/response types.
package protocol

import (
	"time"

	"github.com/lemesvini/codeLog/internal/files"
)

// ErrorResponse is returned on API errors.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Details string `json:"details,omitempty"`
}

// FilesResponse is returned by GET /api/v1/files
type FilesResponse struct {
	Files []files.Record `json:"files"`
}

// InsertResponse is returned by POST /api/v1/files
type InsertResponse struct {
	ID string `json:"id"`
}

// LoginRequest is the body for POST /api/v1/auth/token
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse carries the bearer token for the signed-in user.
type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      UserInfo  `json:"user"`
}

// UserInfo identifies the owner a token acts for.
type UserInfo struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// HealthResponse is returned by GET /health
type HealthResponse struct {
	Status  string `json:"status"`
	Backend string `json:"backend"`
}
