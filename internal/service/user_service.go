package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"datasethub/internal/auth"
	"datasethub/internal/domain"
)

const tokenType = "bearer"

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]{3,64}$`)

// Credentials хеширует пароли и выпускает токены
type Credentials interface {
	HashPassword(password string) (string, error)
	VerifyPassword(password, hash string) bool
	IssueToken(username string) (string, time.Time, error)
}

// UserService связывает хранилище пользователей с выдачей и проверкой токенов
type UserService struct {
	userRepo    UserRepository
	credentials Credentials
	validator   auth.Validator
}

func NewUserService(userRepo UserRepository, credentials Credentials, validator auth.Validator) *UserService {
	return &UserService{
		userRepo:    userRepo,
		credentials: credentials,
		validator:   validator,
	}
}

// Register создает пользователя. Email проверяется раньше имени.
func (s *UserService) Register(ctx context.Context, reg domain.UserRegistration) (*domain.User, error) {
	reg.Username = strings.TrimSpace(reg.Username)
	reg.Email = strings.TrimSpace(reg.Email)

	if !usernamePattern.MatchString(reg.Username) {
		return nil, fmt.Errorf("%w: username must be 3-64 letters, digits, '.', '_' or '-'", domain.ErrInvalidInput)
	}
	if addr, err := mail.ParseAddress(reg.Email); err != nil || addr.Address != reg.Email {
		return nil, fmt.Errorf("%w: invalid email", domain.ErrInvalidInput)
	}
	if reg.Password == "" {
		return nil, fmt.Errorf("%w: password is required", domain.ErrInvalidInput)
	}

	if _, err := s.userRepo.GetByEmail(ctx, reg.Email); err == nil {
		return nil, fmt.Errorf("%w: email already registered", domain.ErrConflict)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	if _, err := s.userRepo.GetByUsername(ctx, reg.Username); err == nil {
		return nil, fmt.Errorf("%w: username already taken", domain.ErrConflict)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	hash, err := s.credentials.HashPassword(reg.Password)
	if err != nil {
		return nil, err
	}

	user := &domain.User{
		Username:     reg.Username,
		Email:        reg.Email,
		PasswordHash: hash,
		FullName:     reg.FullName,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}

	log.Printf("[UserService] Registered user %s (id=%d)", user.Username, user.ID)
	return user, nil
}

// Login проверяет пароль и выпускает токен
func (s *UserService) Login(ctx context.Context, username, password string) (*domain.AccessToken, error) {
	user, err := s.userRepo.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("%w: incorrect username or password", domain.ErrInvalidCredentials)
		}
		return nil, err
	}
	if !s.credentials.VerifyPassword(password, user.PasswordHash) {
		return nil, fmt.Errorf("%w: incorrect username or password", domain.ErrInvalidCredentials)
	}

	token, expiresAt, err := s.credentials.IssueToken(user.Username)
	if err != nil {
		return nil, err
	}

	return &domain.AccessToken{
		AccessToken: token,
		TokenType:   tokenType,
		ExpiresAt:   expiresAt,
	}, nil
}

// Authenticate проверяет токен и находит его владельца.
// Если пользователь из токена не найден, возвращается ErrNotFound.
func (s *UserService) Authenticate(ctx context.Context, token string) (*domain.User, error) {
	username, err := s.validator.ValidateToken(ctx, token)
	if err != nil {
		return nil, err
	}
	return s.userRepo.GetByUsername(ctx, username)
}

func (s *UserService) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	return s.userRepo.GetByUsername(ctx, username)
}

func (s *UserService) UpdateProfile(ctx context.Context, userID int64, patch domain.ProfilePatch) (*domain.User, error) {
	return s.userRepo.UpdateProfile(ctx, userID, patch)
}
