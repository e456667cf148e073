package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"autobot-console/internal/model"
)

// UserRepository stores Telegram operators and their autobot sessions.
type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// UpsertFromTelegram finds or creates an operator and refreshes the profile fields.
// The stored session is never touched here.
func (r *UserRepository) UpsertFromTelegram(ctx context.Context, telegramID int64, firstName, lastName, username string) (*model.User, error) {
	var user model.User
	db := r.db.WithContext(ctx)
	err := db.Where("telegram_id = ?", telegramID).First(&user).Error
	switch {
	case err == nil:
		updates := map[string]interface{}{
			"first_name": firstName,
			"last_name":  lastName,
			"username":   username,
		}
		if err := db.Model(&user).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("update user: %w", err)
		}
		return &user, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		user = model.User{
			TelegramID: telegramID,
			FirstName:  firstName,
			LastName:   lastName,
			Username:   username,
		}
		if err := db.Create(&user).Error; err != nil {
			return nil, fmt.Errorf("create user: %w", err)
		}
		return &user, nil
	default:
		return nil, fmt.Errorf("find user: %w", err)
	}
}

func (r *UserRepository) FindByTelegramID(ctx context.Context, telegramID int64) (*model.User, error) {
	var user model.User
	if err := r.db.WithContext(ctx).Where("telegram_id = ?", telegramID).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// ListWithSession returns the operators that are logged in to autobot.
func (r *UserRepository) ListWithSession(ctx context.Context) ([]model.User, error) {
	var users []model.User
	if err := r.db.WithContext(ctx).Where("api_session <> ''").Order("id").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("list logged in users: %w", err)
	}
	return users, nil
}

// SetSession binds an autobot session cookie and account name to the operator.
func (r *UserRepository) SetSession(ctx context.Context, telegramID int64, session, apiUser string) error {
	res := r.db.WithContext(ctx).Model(&model.User{}).
		Where("telegram_id = ?", telegramID).
		Updates(map[string]interface{}{"api_session": session, "api_user": apiUser})
	if res.Error != nil {
		return fmt.Errorf("set session: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("set session: %w", gorm.ErrRecordNotFound)
	}
	return nil
}

// ClearSession forgets the operator's session. Unknown operators are ignored.
func (r *UserRepository) ClearSession(ctx context.Context, telegramID int64) error {
	err := r.db.WithContext(ctx).Model(&model.User{}).
		Where("telegram_id = ?", telegramID).
		Updates(map[string]interface{}{"api_session": "", "api_user": ""}).Error
	if err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}
