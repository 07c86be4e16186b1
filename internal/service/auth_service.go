package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stemsi/quizcheck-backend/internal/config"
	"github.com/stemsi/quizcheck-backend/internal/model"
	"golang.org/x/crypto/bcrypt"
)

// Common auth errors.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrSessionInvalidated = errors.New("session invalidated")
)

// Claims extends JWT standard claims with app-specific fields.
type Claims struct {
	jwt.RegisteredClaims
	UserID   int    `json:"user_id"`
	Username string `json:"username"`
	IsAdmin  bool   `json:"is_admin"`
}

// Actor returns the identity the services authorize against.
func (c *Claims) Actor() Actor {
	return Actor{UserID: c.UserID, IsAdmin: c.IsAdmin}
}

// AuthService handles accounts, JWT issuing and session management.
type AuthService struct {
	cfg      *config.Config
	users    UserStore
	sessions SessionStore
}

// NewAuthService creates a new AuthService.
func NewAuthService(cfg *config.Config, users UserStore, sessions SessionStore) *AuthService {
	return &AuthService{cfg: cfg, users: users, sessions: sessions}
}

// HashPassword hashes a password with the configured bcrypt cost.
func (s *AuthService) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cfg.BcryptCost)
	return string(hash), err
}

// CheckPassword compares a plaintext password against a bcrypt hash.
func (s *AuthService) CheckPassword(hash, password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}

// Register creates a regular account. A taken username wraps
// model.ErrConflict.
func (s *AuthService) Register(ctx context.Context, req model.RegisterRequest) (*model.User, error) {
	return s.createUser(ctx, req.Username, req.Email, req.Password, false)
}

// CreateAdmin creates an account with the admin flag set.
func (s *AuthService) CreateAdmin(ctx context.Context, username, email, password string) (*model.User, error) {
	return s.createUser(ctx, username, email, password, true)
}

func (s *AuthService) createUser(ctx context.Context, username, email, password string, isAdmin bool) (*model.User, error) {
	hash, err := s.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u := &model.User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		IsAdmin:      isAdmin,
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// Login verifies credentials and issues a token. A new login replaces any
// previous session of the user.
func (s *AuthService) Login(ctx context.Context, req model.LoginRequest) (string, *model.User, error) {
	u, err := s.users.GetByUsername(ctx, req.Username)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, err
	}
	if err := s.CheckPassword(u.PasswordHash, req.Password); err != nil {
		return "", nil, err
	}
	token, err := s.GenerateToken(ctx, u)
	if err != nil {
		return "", nil, err
	}
	return token, u, nil
}

// GenerateToken creates a JWT for u and registers its id as the active
// session.
func (s *AuthService) GenerateToken(ctx context.Context, u *model.User) (string, error) {
	jti := uuid.New().String()
	now := time.Now()

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   strconv.Itoa(u.ID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.JWTExpiry)),
		},
		UserID:   u.ID,
		Username: u.Username,
		IsAdmin:  u.IsAdmin,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}

	// Session lives exactly as long as the token.
	if err := s.sessions.Save(ctx, u.ID, jti, s.cfg.JWTExpiry); err != nil {
		return "", fmt.Errorf("store session: %w", err)
	}
	return signed, nil
}

// ValidateToken parses and validates a JWT, returning the claims.
func (s *AuthService) ValidateToken(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.cfg.JWTSecret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}

// ValidateSession checks that jti is the user's active session.
func (s *AuthService) ValidateSession(ctx context.Context, userID int, jti string) error {
	active, err := s.sessions.Active(ctx, userID)
	if err != nil {
		return fmt.Errorf("check session: %w", err)
	}
	if active == "" || active != jti {
		return ErrSessionInvalidated
	}
	return nil
}

// Logout revokes the user's active session.
func (s *AuthService) Logout(ctx context.Context, userID int) error {
	return s.sessions.Revoke(ctx, userID)
}

// Me returns the account behind the token.
func (s *AuthService) Me(ctx context.Context, userID int) (*model.User, error) {
	return s.users.GetByID(ctx, userID)
}

// SetAdmin grants or revokes the admin flag of a user. The user's session
// is revoked so the next token carries the new flag.
func (s *AuthService) SetAdmin(ctx context.Context, userID int, isAdmin bool) (*model.User, error) {
	if err := s.users.SetAdmin(ctx, userID, isAdmin); err != nil {
		return nil, err
	}
	if err := s.sessions.Revoke(ctx, userID); err != nil {
		return nil, fmt.Errorf("revoke session: %w", err)
	}
	return s.users.GetByID(ctx, userID)
}
