package repository

import (
	"time"

	"somahub/internal/models"

	"gorm.io/gorm"
)

type TokenRepository struct {
	db *gorm.DB
}

func NewTokenRepository(db *gorm.DB) *TokenRepository {
	return &TokenRepository{db: db}
}

func (r *TokenRepository) Create(t *models.CallbackToken) error {
	return r.db.Create(t).Error
}

// GetByToken resolves a callback slug. Unknown tokens return ErrRecordNotFound;
// the webhook path rejects those before touching any transaction.
func (r *TokenRepository) GetByToken(token string) (*models.CallbackToken, error) {
	var t models.CallbackToken
	if err := r.db.Where("token = ?", token).First(&t).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

// MarkUsed stamps the token once its transaction reaches a terminal status.
// Audit only: replayed callbacks for a terminal transaction are still
// acknowledged, the idempotency gate keeps them from mutating anything.
func (r *TokenRepository) MarkUsed(id uint) error {
	now := time.Now()
	return r.db.Model(&models.CallbackToken{}).
		Where("id = ? AND used_at IS NULL", id).
		Update("used_at", now).Error
}
