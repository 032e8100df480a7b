package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"billing-service/internal/models"
	"billing-service/internal/repository"
)

// RegisterUserRequest creates a panel user
type RegisterUserRequest struct {
	Email     string          `json:"email" validate:"required,email,max=255"`
	Password  string          `json:"password" validate:"required,min=8,max=72"`
	FirstName string          `json:"first_name" validate:"required,max=100"`
	LastName  string          `json:"last_name" validate:"max=100"`
	UserType  models.UserType `json:"user_type" validate:"omitempty,oneof=tenant_owner panel_admin"`
}

// UpdateProfileRequest changes the editable profile fields
type UpdateProfileRequest struct {
	Email     string `json:"email" validate:"required,email,max=255"`
	FirstName string `json:"first_name" validate:"required,max=100"`
	LastName  string `json:"last_name" validate:"max=100"`
}

// ChangePasswordRequest replaces a password after verifying the current one
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8,max=72"`
}

// UserService manages panel users
type UserService struct {
	users    repository.UserRepository
	hashCost int
	events   eventEmitter
	logger   *logrus.Entry
}

// NewUserService creates a new user service
func NewUserService(users repository.UserRepository, publisher EventPublisher, logger *logrus.Logger) *UserService {
	entry := logger.WithField("service", "user")
	return &UserService{
		users:    users,
		hashCost: bcrypt.DefaultCost,
		events:   newEventEmitter(publisher, entry, utcNow),
		logger:   entry,
	}
}

// Register creates a user with a bcrypt hashed password
func (s *UserService) Register(ctx context.Context, req RegisterUserRequest, actor Actor) (*models.User, error) {
	req.Email = normalizeEmail(req.Email)
	if err := validateStruct(req); err != nil {
		return nil, err
	}

	email := req.Email
	existing, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, NewConflictError("user", "email is already registered")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.hashCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		Email:     email,
		Password:  string(hash),
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Status:    models.UserStatusActive,
		UserType:  req.UserType,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if repository.IsDuplicateKey(err) {
			return nil, NewConflictError("user", "email is already registered")
		}
		return nil, err
	}

	s.logger.WithField("user_id", user.ID).Info("User registered")
	s.events.emit(ctx, EventUserRegistered, actor, map[string]interface{}{
		"user_id":   user.ID,
		"email":     user.Email,
		"user_type": user.UserType,
	})
	return user, nil
}

// Get returns a user, or nil when missing
func (s *UserService) Get(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return s.users.GetByID(ctx, id)
}

// List returns a page of users
func (s *UserService) List(ctx context.Context, filters repository.UserFilters) ([]models.User, int64, error) {
	return s.users.List(ctx, filters)
}

// UpdateProfile changes name and email
func (s *UserService) UpdateProfile(ctx context.Context, id uuid.UUID, req UpdateProfileRequest, actor Actor) (*models.User, error) {
	req.Email = normalizeEmail(req.Email)
	if err := validateStruct(req); err != nil {
		return nil, err
	}
	user, err := s.require(ctx, id)
	if err != nil {
		return nil, err
	}

	email := req.Email
	if email != user.Email {
		other, err := s.users.GetByEmail(ctx, email)
		if err != nil {
			return nil, err
		}
		if other != nil {
			return nil, NewConflictError("user", "email is already registered")
		}
	}

	if err := s.users.Update(ctx, id, map[string]interface{}{
		"email":      email,
		"first_name": req.FirstName,
		"last_name":  req.LastName,
	}); err != nil {
		if repository.IsDuplicateKey(err) {
			return nil, NewConflictError("user", "email is already registered")
		}
		return nil, err
	}
	user.Email = email
	user.FirstName = req.FirstName
	user.LastName = req.LastName

	s.events.emit(ctx, EventUserUpdated, actor, map[string]interface{}{"user_id": id})
	return user, nil
}

// ChangePassword verifies the current password and stores a new hash
func (s *UserService) ChangePassword(ctx context.Context, id uuid.UUID, req ChangePasswordRequest, actor Actor) error {
	if err := validateStruct(req); err != nil {
		return err
	}
	user, err := s.require(ctx, id)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.CurrentPassword)); err != nil {
		return NewValidationError("current_password", "is incorrect")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), s.hashCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	if err := s.users.Update(ctx, id, map[string]interface{}{"password": string(hash)}); err != nil {
		return err
	}

	s.logger.WithField("user_id", id).Info("Password changed")
	s.events.emit(ctx, EventUserUpdated, actor, map[string]interface{}{
		"user_id":          id,
		"password_changed": true,
	})
	return nil
}

// UpdateStatus activates or deactivates a user
func (s *UserService) UpdateStatus(ctx context.Context, id uuid.UUID, status models.UserStatus, actor Actor) error {
	switch status {
	case models.UserStatusActive, models.UserStatusPassive, models.UserStatusDraft:
	default:
		return NewValidationError("status", "must be one of: active, passive, draft")
	}
	if err := s.users.Update(ctx, id, map[string]interface{}{"status": status}); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return NewNotFoundError("user", id)
		}
		return err
	}

	s.events.emit(ctx, EventUserStatusUpdated, actor, map[string]interface{}{
		"user_id": id,
		"status":  status,
	})
	return nil
}

func (s *UserService) require(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, NewNotFoundError("user", id)
	}
	return user, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
