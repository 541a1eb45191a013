package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"taskboard/backend/internal/apperrors"
	"taskboard/backend/internal/models"
	"taskboard/backend/internal/repositories"

	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid"
	"golang.org/x/crypto/bcrypt"
)

const MinPasswordLength = 8

type UserStore interface {
	Create(ctx context.Context, user *models.User) error
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

type TokenIssuer interface {
	Issue(userID uuid.UUID) (string, time.Time, error)
}

type RegisterInput struct {
	Name     string
	Email    string
	Password string
}

type LoginInput struct {
	Email    string
	Password string
}

type AuthResult struct {
	User      *models.User
	Token     string
	ExpiresAt time.Time
}

type AuthService interface {
	Register(ctx context.Context, in RegisterInput) (*AuthResult, error)
	Login(ctx context.Context, in LoginInput) (*AuthResult, error)
	ResolveUser(ctx context.Context, id uuid.UUID) (*models.User, error)
}

type AuthServiceImpl struct {
	users      UserStore
	tokens     TokenIssuer
	bcryptCost int
	validate   *validator.Validate
}

func NewAuthService(users UserStore, tokens TokenIssuer, bcryptCost int) *AuthServiceImpl {
	if bcryptCost < bcrypt.MinCost || bcryptCost > bcrypt.MaxCost {
		bcryptCost = bcrypt.DefaultCost
	}
	return &AuthServiceImpl{
		users:      users,
		tokens:     tokens,
		bcryptCost: bcryptCost,
		validate:   validator.New(),
	}
}

func VerifyPassword(hashedPassword, plainPassword string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(plainPassword))
	return err == nil
}

func (s *AuthServiceImpl) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	name := strings.TrimSpace(in.Name)
	email := models.NormalizeEmail(in.Email)

	if name == "" || email == "" || in.Password == "" {
		return nil, apperrors.Validation("Name, email, and password are required")
	}
	if err := s.validate.Var(email, "email"); err != nil {
		return nil, apperrors.Validation("Please provide a valid email address",
			apperrors.FieldError{Field: "email", Rule: "email", Message: "must be a valid email address"})
	}
	if len(in.Password) < MinPasswordLength {
		return nil, apperrors.Validation("Password must be at least 8 characters long",
			apperrors.FieldError{Field: "password", Rule: "min", Param: "8", Message: "must be at least 8"})
	}

	_, err := s.users.FindByEmail(ctx, email)
	switch {
	case err == nil:
		return nil, apperrors.Conflict("An account with this email already exists")
	case !errors.Is(err, repositories.ErrNotFound):
		return nil, apperrors.Internal(fmt.Errorf("lookup email: %w", err))
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.bcryptCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return nil, apperrors.Validation("Password must be at most 72 bytes long")
		}
		return nil, apperrors.Internal(fmt.Errorf("hash password: %w", err))
	}

	user := &models.User{
		Name:     name,
		Email:    email,
		Password: string(hashed),
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repositories.ErrDuplicateEmail) {
			return nil, apperrors.Conflict("An account with this email already exists")
		}
		return nil, apperrors.Internal(fmt.Errorf("create user: %w", err))
	}

	return s.issue(user)
}

func (s *AuthServiceImpl) Login(ctx context.Context, in LoginInput) (*AuthResult, error) {
	email := models.NormalizeEmail(in.Email)
	if email == "" || in.Password == "" {
		return nil, apperrors.Validation("Email and password are required")
	}

	user, err := s.users.FindByEmail(ctx, email)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, apperrors.Unauthenticated("Invalid email or password")
	}
	if err != nil {
		return nil, apperrors.Internal(fmt.Errorf("lookup email: %w", err))
	}

	if !VerifyPassword(user.Password, in.Password) {
		return nil, apperrors.Unauthenticated("Invalid email or password")
	}

	return s.issue(user)
}

func (s *AuthServiceImpl) ResolveUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user, err := s.users.FindByID(ctx, id)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, apperrors.Unauthenticated("User no longer exists")
	}
	if err != nil {
		return nil, apperrors.Internal(fmt.Errorf("lookup user: %w", err))
	}
	return user, nil
}

func (s *AuthServiceImpl) issue(user *models.User) (*AuthResult, error) {
	token, expiresAt, err := s.tokens.Issue(user.ID)
	if err != nil {
		return nil, apperrors.Internal(fmt.Errorf("issue token: %w", err))
	}
	return &AuthResult{User: user, Token: token, ExpiresAt: expiresAt}, nil
}
