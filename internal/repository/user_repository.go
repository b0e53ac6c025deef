package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"time-planner/internal/model"
)

// UserRepository handles CRUD for registered operators.
type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// UpsertFromTelegram finds or creates a user by TelegramID and records the
// chat to push reminders to.
func (r *UserRepository) UpsertFromTelegram(ctx context.Context, telegramID, chatID int64, firstName, username string) (*model.User, error) {
	var user model.User
	db := r.db.WithContext(ctx)
	err := db.Where("telegram_id = ?", telegramID).First(&user).Error
	switch {
	case err == nil:
		updates := map[string]interface{}{
			"chat_id":    chatID,
			"first_name": firstName,
			"username":   username,
		}
		if err := db.Model(&user).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("update user: %w", err)
		}
		return &user, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		user = model.User{
			TelegramID: telegramID,
			ChatID:     chatID,
			FirstName:  firstName,
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

// ListChatIDs returns all chats that should receive pushed reminders.
func (r *UserRepository) ListChatIDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	if err := r.db.WithContext(ctx).Model(&model.User{}).
		Where("chat_id <> 0").
		Pluck("chat_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("list chat ids: %w", err)
	}
	return ids, nil
}
