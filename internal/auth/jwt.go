// Package auth provides password login and JWT bearer authentication for
// the document store API.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/lemesvini/codeLog/internal/logging"
	"github.com/lemesvini/codeLog/internal/metrics"
	"github.com/lemesvini/codeLog/internal/protocol"
)

const (
	issuer   = "codelog"
	tokenTTL = 30 * 24 * time.Hour
)

type contextKey string

const claimsContextKey contextKey = "claims"

// ErrUserNotFound is returned by a UserStore for unknown usernames.
var ErrUserNotFound = errors.New("user not found")

// User is a stored account. ID is the owner of the user's collection.
type User struct {
	ID           string
	Username     string
	PasswordHash string
}

// UserStore persists accounts.
type UserStore interface {
	LookupUser(ctx context.Context, username string) (*User, error)
	CreateUser(ctx context.Context, username, passwordHash string) (string, error)
	CountUsers(ctx context.Context) (int, error)
}

// Claims holds JWT token claims. The subject is the owner id.
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Auth issues and validates tokens.
type Auth struct {
	users  UserStore
	secret []byte
	now    func() time.Time
}

// New creates an Auth backed by users.
func New(users UserStore, jwtSecret string) *Auth {
	return &Auth{
		users:  users,
		secret: []byte(jwtSecret),
		now:    time.Now,
	}
}

// Middleware rejects requests without a valid bearer token and stores the
// token's claims in the request context.
func (a *Auth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenStr := extractToken(r)
		if tokenStr == "" {
			sendAuthError(w, http.StatusUnauthorized, "missing authentication token")
			return
		}

		claims, err := a.validateToken(tokenStr)
		if err != nil {
			sendAuthError(w, http.StatusUnauthorized, "invalid token: "+err.Error())
			return
		}

		ctx := context.WithValue(r.Context(), claimsContextKey, claims)
		ctx = logging.WithOwner(ctx, claims.Subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetClaims extracts claims from the request context.
func GetClaims(ctx context.Context) *Claims {
	claims, _ := ctx.Value(claimsContextKey).(*Claims)
	return claims
}

// Owner returns the authenticated owner id from ctx.
func Owner(ctx context.Context) (string, bool) {
	c := GetClaims(ctx)
	if c == nil || c.Subject == "" {
		return "", false
	}
	return c.Subject, true
}

// HandleLogin handles POST /api/v1/auth/token
func (a *Auth) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req protocol.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendAuthError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Username == "" || req.Password == "" {
		sendAuthError(w, http.StatusBadRequest, "username and password required")
		return
	}

	user, err := a.users.LookupUser(r.Context(), req.Username)
	if errors.Is(err, ErrUserNotFound) {
		metrics.RecordAuthAttempt(false)
		sendAuthError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if err != nil {
		logging.WithContext(r.Context()).Error("user lookup failed", zap.Error(err))
		sendAuthError(w, http.StatusInternalServerError, "database error")
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		metrics.RecordAuthAttempt(false)
		sendAuthError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	tokenStr, expires, err := a.IssueToken(user.ID, user.Username)
	if err != nil {
		sendAuthError(w, http.StatusInternalServerError, "failed to generate token")
		return
	}
	metrics.RecordAuthAttempt(true)
	logging.WithContext(r.Context()).Info("login", zap.String("username", user.Username))

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(protocol.LoginResponse{
		Token:     tokenStr,
		ExpiresAt: expires,
		User:      protocol.UserInfo{ID: user.ID, Username: user.Username},
	})
}

// IssueToken signs a token for owner.
func (a *Auth) IssueToken(owner, username string) (string, time.Time, error) {
	now := a.now()
	expires := now.Add(tokenTTL)
	claims := &Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   owner,
			ExpiresAt: jwt.NewNumericDate(expires),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := token.SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return s, expires, nil
}

// CreateUser hashes password and stores a new account.
func (a *Auth) CreateUser(ctx context.Context, username, password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	id, err := a.users.CreateUser(ctx, username, string(hashed))
	if err != nil {
		return "", fmt.Errorf("create user: %w", err)
	}
	return id, nil
}

// EnsureDefaultAdmin creates an "admin" account if no users exist. An
// empty password falls back to "admin".
func (a *Auth) EnsureDefaultAdmin(ctx context.Context, password string) error {
	count, err := a.users.CountUsers(ctx)
	if err != nil {
		return fmt.Errorf("count users: %w", err)
	}
	if count > 0 {
		return nil
	}

	if password == "" {
		password = "admin"
		logging.Warn("no users found, creating default admin (admin/admin); change the password immediately")
	} else {
		logging.Info("no users found, creating default admin")
	}
	_, err = a.CreateUser(ctx, "admin", password)
	return err
}

func (a *Auth) validateToken(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	}, jwt.WithIssuer(issuer), jwt.WithTimeFunc(a.now))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("token has no subject")
	}
	return claims, nil
}

func extractToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return ""
}

func sendAuthError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(protocol.ErrorResponse{
		Error: message,
		Code:  code,
	})
}
