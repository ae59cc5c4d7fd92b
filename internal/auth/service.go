package auth

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"schoolattend/internal/domain"
)

// RegisterInput carries a new account.
type RegisterInput struct {
	Name     string
	Email    string
	Password string
	Role     domain.Role
}

// Session is the result of a successful login.
type Session struct {
	User   domain.User `json:"user"`
	Tokens TokenPair   `json:"tokens"`
}

// Service manages accounts and sessions.
type Service struct {
	users  domain.UserStore
	issuer Issuer
	log    *zap.Logger
}

// NewService creates an auth service.
func NewService(users domain.UserStore, issuer Issuer, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{users: users, issuer: issuer, log: log}
}

// Issuer returns the token issuer used by the service.
func (s *Service) Issuer() Issuer { return s.issuer }

var errBadCredentials = domain.Errorf(domain.CodeUnauthorized, "invalid email or password")

// Register creates an account. Role defaults to teacher.
func (s *Service) Register(ctx context.Context, in RegisterInput) (domain.User, error) {
	name := strings.TrimSpace(in.Name)
	email := domain.NormalizeEmail(in.Email)
	switch {
	case name == "":
		return domain.User{}, domain.Errorf(domain.CodeInvalidArgument, "name is required")
	case !strings.Contains(email, "@"):
		return domain.User{}, domain.Errorf(domain.CodeInvalidArgument, "email %q is not valid", in.Email)
	case len(in.Password) < minPasswordLen:
		return domain.User{}, domain.Errorf(domain.CodeInvalidArgument, "password must be at least %d characters", minPasswordLen)
	}
	role := in.Role
	if role == "" {
		role = domain.RoleTeacher
	}
	if !role.Valid() {
		return domain.User{}, domain.Errorf(domain.CodeInvalidArgument, "role %q is not valid", in.Role)
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return domain.User{}, err
	}
	u, err := s.users.CreateUser(ctx, domain.User{Name: name, Email: email, PasswordHash: hash, Role: role})
	if errors.Is(err, domain.ErrConflict) {
		return domain.User{}, domain.Errorf(domain.CodeDuplicateEmail, "email %s is already registered", email)
	}
	if err != nil {
		return domain.User{}, err
	}
	s.log.Info("user registered", zap.String("user_id", u.ID), zap.String("role", string(u.Role)))
	return u, nil
}

// Login verifies credentials and issues a token pair.
func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	u, err := s.users.GetUserByEmail(ctx, domain.NormalizeEmail(email))
	if errors.Is(err, domain.ErrNotFound) {
		return Session{}, errBadCredentials
	}
	if err != nil {
		return Session{}, err
	}
	if !CheckPassword(u.PasswordHash, password) {
		return Session{}, errBadCredentials
	}
	tokens, err := s.issuer.Issue(u.ID, string(u.Role))
	if err != nil {
		return Session{}, err
	}
	return Session{User: u, Tokens: tokens}, nil
}

// Refresh exchanges a refresh token for a new pair.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	claims, err := s.issuer.Parse(refreshToken)
	if err != nil || claims.Type != TypeRefresh {
		return TokenPair{}, domain.Errorf(domain.CodeUnauthorized, "invalid refresh token")
	}
	u, err := s.users.GetUser(ctx, claims.Subject)
	if errors.Is(err, domain.ErrNotFound) {
		return TokenPair{}, domain.Errorf(domain.CodeUnauthorized, "account no longer exists")
	}
	if err != nil {
		return TokenPair{}, err
	}
	return s.issuer.Issue(u.ID, string(u.Role))
}

// Me returns the account behind a token subject.
func (s *Service) Me(ctx context.Context, userID string) (domain.User, error) {
	u, err := s.users.GetUser(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.User{}, domain.Errorf(domain.CodeNotFound, "user %s not found", userID)
	}
	return u, err
}

// EnsureAdmin creates an admin account unless email is already registered.
func (s *Service) EnsureAdmin(ctx context.Context, email, password string) (bool, error) {
	_, err := s.users.GetUserByEmail(ctx, domain.NormalizeEmail(email))
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return false, err
	}
	if _, err := s.Register(ctx, RegisterInput{Name: "Administrator", Email: email, Password: password, Role: domain.RoleAdmin}); err != nil {
		return false, err
	}
	return true, nil
}
