package repositories

import (
	"context"
	"errors"

	"taskboard/backend/internal/models"

	"github.com/gofrs/uuid"
	"gorm.io/gorm"
)

type UserRepository struct {
	db  *gorm.DB
	obs Observer
}

func NewUserRepository(db *gorm.DB, obs Observer) *UserRepository {
	return &UserRepository{db: db, obs: observerOrNoop(obs)}
}

// Create inserts user. The driver error is what gets observed; the
// duplicate-email sentinel is mapped afterwards.
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	err := r.obs.ObserveDB("users.create", func() error {
		return r.db.WithContext(ctx).Create(user).Error
	})
	if err != nil && isDuplicateKey(err) {
		return ErrDuplicateEmail
	}
	return err
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := r.obs.ObserveDB("users.find_by_email", func() error {
		return r.db.WithContext(ctx).
			Where("email = ?", models.NormalizeEmail(email)).
			First(&user).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	err := r.obs.ObserveDB("users.find_by_id", func() error {
		return r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}
