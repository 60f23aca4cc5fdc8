// Package account is the identity store: signup, credential checks, profile
// name updates and the user directory search.
package account

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	dbadapter "github.com/kasuganosora/socialgraph/db"
	"github.com/kasuganosora/socialgraph/model"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Service owns model.User rows.
type Service struct {
	db         *gorm.DB
	bcryptCost int
	logger     *zap.Logger
}

// NewService creates an account Service. A bcryptCost outside bcrypt's valid
// range falls back to bcrypt.DefaultCost.
func NewService(db *gorm.DB, bcryptCost int, logger *zap.Logger) *Service {
	if bcryptCost < bcrypt.MinCost || bcryptCost > bcrypt.MaxCost {
		bcryptCost = bcrypt.DefaultCost
	}
	return &Service{db: db, bcryptCost: bcryptCost, logger: logger}
}

// NormalizeEmail trims and lower-cases an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Signup creates a user. The email is stored lower-cased.
func (s *Service) Signup(ctx context.Context, email, password, confirmation string) (*model.User, error) {
	if password != confirmation {
		return nil, ErrPasswordMismatch
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	user := &model.User{
		Email:        NormalizeEmail(email),
		PasswordHash: string(hash),
	}
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		if dbadapter.IsUniqueViolation(err) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	s.logger.Info("user signed up", zap.Int64("user_id", user.ID))
	return user, nil
}

// Authenticate checks the email/password pair and stamps last_login_at.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*model.User, error) {
	var user model.User
	err := s.db.WithContext(ctx).Where("email = ?", NormalizeEmail(email)).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	// Best-effort.
	now := time.Now().UTC()
	if err := s.db.WithContext(ctx).Model(&user).Update("last_login_at", now).Error; err != nil {
		s.logger.Warn("update last_login_at failed", zap.Int64("user_id", user.ID), zap.Error(err))
	}
	return &user, nil
}

// Lookup returns the user with the given id.
func (s *Service) Lookup(ctx context.Context, id int64) (*model.User, error) {
	var user model.User
	err := s.db.WithContext(ctx).First(&user, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Exists reports whether a user with the given id exists.
func (s *Service) Exists(ctx context.Context, id int64) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// UsersByID loads the given users ordered by id. Unknown ids are skipped.
func (s *Service) UsersByID(ctx context.Context, ids []int64) ([]model.User, error) {
	users := make([]model.User, 0, len(ids))
	if len(ids) == 0 {
		return users, nil
	}
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Order("id").Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

// UpdateName changes the display name. Nil fields are left unchanged.
func (s *Service) UpdateName(ctx context.Context, id int64, firstName, lastName *string) (*model.User, error) {
	user, err := s.Lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	updates := make(map[string]interface{}, 2)
	if firstName != nil {
		user.FirstName = strings.TrimSpace(*firstName)
		updates["first_name"] = user.FirstName
	}
	if lastName != nil {
		user.LastName = strings.TrimSpace(*lastName)
		updates["last_name"] = user.LastName
	}
	if len(updates) == 0 {
		return user, nil
	}
	if err := s.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("update name: %w", err)
	}
	return user, nil
}
