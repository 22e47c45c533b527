package services

import (
	"context"
	"strings"
	"time"

	"challenge-quest/models"
	"challenge-quest/repository"
	"challenge-quest/utils"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
)

type RegisterInput struct {
	Email    string
	Username string
	Password string
}

type AuthResult struct {
	User  *models.User      `json:"user"`
	Token utils.AccessToken `json:"token"`
}

type AuthService struct {
	Store      repository.Store
	Clock      clockwork.Clock
	Log        logrus.FieldLogger
	Secret     string
	TTL        time.Duration
	BcryptCost int
}

func NewAuthService(store repository.Store, clock clockwork.Clock, log logrus.FieldLogger, secret string, ttl time.Duration, bcryptCost int) *AuthService {
	return &AuthService{Store: store, Clock: clock, Log: log, Secret: secret, TTL: ttl, BcryptCost: bcryptCost}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *AuthService) issue(u *models.User) (*AuthResult, error) {
	tok, err := utils.NewAccessToken(s.Secret, u.ID, u.IsAdmin, s.TTL, s.Clock.Now())
	if err != nil {
		return nil, Infra(err)
	}
	return &AuthResult{User: u, Token: tok}, nil
}

// Register creates a level 1 player with zero XP and signs them in.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	email := normalizeEmail(in.Email)
	username := strings.TrimSpace(in.Username)
	switch {
	case email == "" || !strings.Contains(email, "@"):
		return nil, Validation("a valid email is required")
	case len(username) < 3:
		return nil, Validation("username must be at least 3 characters")
	case len(in.Password) < 8:
		return nil, Validation("password must be at least 8 characters")
	}

	hash, err := utils.HashPassword(in.Password, s.BcryptCost)
	if err != nil {
		return nil, Infra(err)
	}
	u := &models.User{
		ID:           uuid.NewString(),
		Email:        email,
		Username:     username,
		PasswordHash: hash,
		Level:        1,
		IsActive:     true,
	}
	if err := s.Store.CreateUser(ctx, u); err != nil {
		return nil, storeErr(err, nil, ErrDuplicate)
	}
	s.Log.WithFields(logrus.Fields{"user_id": u.ID, "username": u.Username}).Info("user registered")
	return s.issue(u)
}

// Login checks the password before the account status so disabled accounts
// are only revealed to their owner.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	u, err := s.Store.GetUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return nil, storeErr(err, ErrInvalidCredentials, nil)
	}
	if !utils.VerifyPassword(u.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	if !u.IsActive {
		return nil, ErrAccountDisabled
	}
	return s.issue(u)
}

// Authenticate verifies a bearer token and that its user still exists and is active.
func (s *AuthService) Authenticate(ctx context.Context, token string) (utils.Identity, error) {
	id, err := utils.ParseAccessToken(s.Secret, token)
	if err != nil {
		return utils.Identity{}, &Error{Kind: KindUnauthorized, Code: ErrUnauthorized.Code, Message: "invalid or expired token", Err: err}
	}
	u, err := s.Store.GetUser(ctx, id.UserID)
	if err != nil {
		return utils.Identity{}, storeErr(err, ErrUnauthorized, nil)
	}
	if !u.IsActive {
		return utils.Identity{}, ErrAccountDisabled
	}
	id.IsAdmin = u.IsAdmin
	return id, nil
}
