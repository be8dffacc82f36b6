package service

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/taskboard/task-service/internal/auth"
	"github.com/taskboard/task-service/internal/config"
	"github.com/taskboard/task-service/internal/domain"
	"github.com/taskboard/task-service/internal/events"
	"github.com/taskboard/task-service/internal/repository"
	apperrors "github.com/taskboard/task-service/pkg/util"
)

const msgAllFieldsRequired = "All fields are required"

// bcrypt only accepts passwords up to this length.
const maxPasswordBytes = 72

// AuthService coordinates registration and login flows.
type AuthService struct {
	users      repository.UserRepository
	dispatcher events.Dispatcher
	tokenMgr   *auth.TokenManager
	bcryptCost int
	logger     *zap.Logger
}

// AuthDependencies encapsulates repo requirements for auth service.
type AuthDependencies struct {
	UserRepo   repository.UserRepository
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
}

// NewAuthService builds the service.
func NewAuthService(cfg config.AuthConfig, deps AuthDependencies) *AuthService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{
		users:      deps.UserRepo,
		dispatcher: deps.Dispatcher,
		tokenMgr:   auth.NewTokenManager(cfg.JWTSecret, cfg.TokenTTL),
		bcryptCost: cfg.BcryptCost,
		logger:     logger,
	}
}

// Register creates a new account and opens a session for it.
func (s *AuthService) Register(ctx context.Context, name, email, password string) (*domain.Session, error) {
	if strings.TrimSpace(name) == "" || strings.TrimSpace(email) == "" || password == "" {
		return nil, apperrors.NewValidationError(msgAllFieldsRequired, nil)
	}
	if len(password) > maxPasswordBytes {
		return nil, apperrors.NewValidationError("password must be at most 72 bytes", nil)
	}

	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil, apperrors.NewConflict("User already exists", nil)
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NewPersistenceError(err)
	}

	hash, err := auth.HashPassword(password, s.bcryptCost)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}

	user := &domain.User{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
	}
	if err := s.users.Create(ctx, user); err != nil {
		// a concurrent registration can still win the unique index
		if errors.Is(err, repository.ErrEmailTaken) {
			return nil, apperrors.NewConflict("User already exists", nil)
		}
		return nil, apperrors.NewPersistenceError(err)
	}

	session, err := s.openSession(user)
	if err != nil {
		return nil, err
	}
	s.publishEvent(ctx, events.New(events.EventUserRegistered, user.ID, "", nil))
	return session, nil
}

// Login authenticates by email and password. Unknown email and wrong password
// produce the same error.
func (s *AuthService) Login(ctx context.Context, email, password string) (*domain.Session, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return nil, apperrors.NewValidationError(msgAllFieldsRequired, nil)
	}
	// no stored hash can match a password bcrypt refuses to hash
	if len(password) > maxPasswordBytes {
		return nil, apperrors.NewInvalidCredentials()
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewInvalidCredentials()
		}
		return nil, apperrors.NewPersistenceError(err)
	}
	if err := auth.ComparePassword(user.PasswordHash, password); err != nil {
		return nil, apperrors.NewInvalidCredentials()
	}

	session, err := s.openSession(user)
	if err != nil {
		return nil, err
	}
	s.publishEvent(ctx, events.New(events.EventUserLoggedIn, user.ID, "", nil))
	return session, nil
}

// CurrentUser returns the account behind a verified token.
func (s *AuthService) CurrentUser(ctx context.Context, userID string) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFound("user", nil)
		}
		return nil, apperrors.NewPersistenceError(err)
	}
	return user, nil
}

// TokenManager exposes the underlying token manager for middleware usage.
func (s *AuthService) TokenManager() *auth.TokenManager {
	return s.tokenMgr
}

func (s *AuthService) openSession(user *domain.User) (*domain.Session, error) {
	token, exp, err := s.tokenMgr.Issue(user.ID)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return &domain.Session{User: user, Token: token, ExpiresAt: exp}, nil
}

func (s *AuthService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("event handler failed", zap.String("event_type", string(event.Type)), zap.Error(err))
	}
}
