package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrInvalidToken       = errors.New("auth: invalid token")
	ErrWeakPassword       = errors.New("auth: password must be at least 8 characters")
	ErrBadInput           = errors.New("auth: email and wallet address are required")
)

const tokenTTL = 24 * time.Hour

// Store is the persistence surface the service needs.
type Store interface {
	Insert(ctx context.Context, u User) error
	GetByEmail(ctx context.Context, email string) (User, error)
	GetByID(ctx context.Context, id string) (User, error)
}

// Service handles registration, login, and token verification. Tokens are
// HS256 JWTs carrying the user's wallet address and role.
type Service struct {
	store  Store
	secret []byte
	now    func() time.Time
}

func NewService(store Store, secret string) *Service {
	return &Service{store: store, secret: []byte(secret), now: time.Now}
}

// RegisterParams is the signup input.
type RegisterParams struct {
	Email         string
	FullName      string
	Password      string
	WalletAddress string
	Role          Role
}

// Register creates a user and returns it with a fresh token.
func (s *Service) Register(ctx context.Context, p RegisterParams) (User, string, error) {
	email := strings.ToLower(strings.TrimSpace(p.Email))
	wallet := strings.ToLower(strings.TrimSpace(p.WalletAddress))
	if email == "" || wallet == "" {
		return User{}, "", ErrBadInput
	}
	if len(p.Password) < 8 {
		return User{}, "", ErrWeakPassword
	}
	if p.Role == "" {
		p.Role = RoleTrader
	}
	if !ValidRole(p.Role) {
		return User{}, "", fmt.Errorf("auth: unknown role %q", p.Role)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(p.Password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, "", fmt.Errorf("auth: hash password: %w", err)
	}

	now := s.now().UTC()
	u := User{
		ID:            uuid.New(),
		Email:         email,
		FullName:      strings.TrimSpace(p.FullName),
		PasswordHash:  string(hash),
		WalletAddress: wallet,
		Role:          p.Role,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.store.Insert(ctx, u); err != nil {
		return User{}, "", err
	}

	token, err := s.issueToken(u)
	if err != nil {
		return User{}, "", err
	}
	return u, token, nil
}

// Login verifies credentials and returns the user with a fresh token.
func (s *Service) Login(ctx context.Context, email, password string) (User, string, error) {
	u, err := s.store.GetByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		return User{}, "", ErrInvalidCredentials
	}
	if err != nil {
		return User{}, "", err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return User{}, "", ErrInvalidCredentials
	}

	token, err := s.issueToken(u)
	if err != nil {
		return User{}, "", err
	}
	return u, token, nil
}

// VerifyToken parses and validates a bearer token.
func (s *Service) VerifyToken(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("auth: unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(func() time.Time { return s.now() }))
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// GetUser fetches the account behind a token's claims.
func (s *Service) GetUser(ctx context.Context, userID string) (User, error) {
	return s.store.GetByID(ctx, userID)
}

func (s *Service) issueToken(u User) (string, error) {
	now := s.now().UTC()
	claims := Claims{
		UserID:        u.ID.String(),
		WalletAddress: u.WalletAddress,
		Role:          u.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return token, nil
}
