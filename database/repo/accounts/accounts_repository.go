package accounts

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/galerly/galerly/database/models"
	"github.com/galerly/galerly/utils"
	cryptopackage "github.com/galerly/galerly/utils/crypto"
)

// Repository persists user accounts.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new account repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// DB returns the underlying *gorm.DB.
func (r *Repository) DB() *gorm.DB {
	return r.db
}

// CreateDefaultAdminUser creates the bootstrap admin account if no
// user named admin exists. Returns the generated password, or empty
// when the account was already present.
func (r *Repository) CreateDefaultAdminUser() (string, error) {
	var count int64

	if err := r.db.Model(&models.User{}).Where("username = ?", "admin").Count(&count).Error; err != nil {
		return "", fmt.Errorf("failed to check admin user existence: %w", err)
	}

	if count == 0 {
		randomPassword, err := utils.GenerateRandomToken(16)
		if err != nil {
			return "", fmt.Errorf("failed to generate random password: %w", err)
		}

		hashedPassword, err := cryptopackage.GenerateFromPassword(randomPassword)
		if err != nil {
			return "", fmt.Errorf("failed to hash default password: %w", err)
		}

		user := &models.User{
			Username: "admin",
			Password: hashedPassword,
		}

		if err := r.db.Create(user).Error; err != nil {
			return "", fmt.Errorf("failed to create default admin user: %w", err)
		}

		return randomPassword, nil
	}

	return "", nil
}

// ErrUserNotFound is returned when a user lookup misses.
var ErrUserNotFound = errors.New("user not found")

// GetUserByUsername loads a user by username.
func (r *Repository) GetUserByUsername(username string) (*models.User, error) {
	var user models.User
	err := r.db.Where("username = ?", username).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// GetUserByID loads a user by primary key.
func (r *Repository) GetUserByID(id uint) (*models.User, error) {
	var user models.User
	err := r.db.Where("id = ?", id).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// CreateUser inserts a user row.
func (r *Repository) CreateUser(user *models.User) error {
	return r.db.Create(user).Error
}

// UpdateUser saves the full user row.
func (r *Repository) UpdateUser(user *models.User) error {
	return r.db.Save(user).Error
}

// UserExists checks whether a username is taken.
func (r *Repository) UserExists(username string) (bool, error) {
	var count int64
	err := r.db.Model(&models.User{}).Where("username = ?", username).Count(&count).Error
	return count > 0, err
}

// WithContext returns a context-bound copy of the repository.
func (r *Repository) WithContext(ctx context.Context) *Repository {
	return &Repository{db: r.db.WithContext(ctx)}
}
