package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/airchat/airchat-server/internal/store"
)

var (
	// ErrInvalidCredentials is returned when email/password don't match.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserExists is returned when trying to sign up with an existing email.
	ErrUserExists = errors.New("user already exists")
	// ErrInvalidEmail is returned when the email doesn't meet constraints.
	ErrInvalidEmail = errors.New("invalid email")
	// ErrInvalidFullName is returned when the full name is missing.
	ErrInvalidFullName = errors.New("invalid full name")
	// ErrInvalidPassword is returned when the password doesn't meet constraints.
	ErrInvalidPassword = errors.New("invalid password")
)

// Cleaner abstracts the message cleanup run when an account is removed.
type Cleaner interface {
	DeleteAllForUser(ctx context.Context, userID int64) error
}

// Service provides authentication and profile operations.
type Service struct {
	store     store.UserStore
	cleaner   Cleaner
	jwtConfig *JWTConfig
}

// NewService creates a new authentication service. cleaner may be nil if
// account deletion should not cascade to messages.
func NewService(userStore store.UserStore, cleaner Cleaner, jwtConfig *JWTConfig) *Service {
	return &Service{
		store:     userStore,
		cleaner:   cleaner,
		jwtConfig: jwtConfig,
	}
}

// Signup creates a new user with hashed password and returns the user and a JWT token.
func (s *Service) Signup(ctx context.Context, email, fullName, password string) (*store.User, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	fullName = strings.TrimSpace(fullName)
	if !strings.Contains(email, "@") || len(email) < 3 || len(email) > 254 {
		return nil, "", ErrInvalidEmail
	}
	if fullName == "" {
		return nil, "", ErrInvalidFullName
	}
	if len(password) < 6 {
		return nil, "", ErrInvalidPassword
	}

	// Check if user already exists
	existing, err := s.store.GetUserByEmail(ctx, email)
	if err == nil && existing != nil {
		return nil, "", ErrUserExists
	}

	hashedPassword, err := HashPassword(password)
	if err != nil {
		return nil, "", fmt.Errorf("hash password: %w", err)
	}

	user, err := s.store.CreateUser(ctx, email, fullName, hashedPassword)
	if err != nil {
		return nil, "", fmt.Errorf("create user: %w", err)
	}

	token, err := GenerateToken(s.jwtConfig, user.ID, user.FullName)
	if err != nil {
		return nil, "", fmt.Errorf("generate token: %w", err)
	}

	return user, token, nil
}

// Login validates credentials and returns the user and a JWT token.
func (s *Service) Login(ctx context.Context, email, password string) (*store.User, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, "", ErrInvalidCredentials
	}

	if errPwd := ComparePassword(user.PasswordHash, password); errPwd != nil {
		return nil, "", ErrInvalidCredentials
	}

	token, err := GenerateToken(s.jwtConfig, user.ID, user.FullName)
	if err != nil {
		return nil, "", fmt.Errorf("generate token: %w", err)
	}

	return user, token, nil
}

// UpdateProfile changes the user's display name and/or avatar.
// Empty fields are left unchanged.
func (s *Service) UpdateProfile(ctx context.Context, userID int64, fullName, avatar string) (*store.User, error) {
	fullName = strings.TrimSpace(fullName)
	user, err := s.store.UpdateProfile(ctx, userID, fullName, avatar)
	if err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}
	return user, nil
}

// DeleteAccount removes the user and every message involving them.
func (s *Service) DeleteAccount(ctx context.Context, userID int64) error {
	if s.cleaner != nil {
		if err := s.cleaner.DeleteAllForUser(ctx, userID); err != nil {
			return fmt.Errorf("delete user messages: %w", err)
		}
	}
	if err := s.store.DeleteUser(ctx, userID); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return nil
}

// ValidateToken validates a JWT token and returns the claims.
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	return ValidateToken(s.jwtConfig, tokenString)
}
