package repository

import (
	"time"

	"somahub/internal/domain"
	"somahub/internal/models"

	"gorm.io/gorm"
)

type TransactionRepository struct {
	db *gorm.DB
}

func NewTransactionRepository(db *gorm.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

func (r *TransactionRepository) Create(t *models.Transaction) error {
	return r.db.Create(t).Error
}

func (r *TransactionRepository) GetByID(id uint) (*models.Transaction, error) {
	var t models.Transaction
	if err := r.db.First(&t, id).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *TransactionRepository) GetByReference(ref string) (*models.Transaction, error) {
	var t models.Transaction
	if err := r.db.Where("reference = ?", ref).First(&t).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

// SetProviderRefs records the provider correlation pair after the provider
// accepts the initiation request.
func (r *TransactionRepository) SetProviderRefs(id uint, merchantRequestID, checkoutRequestID string) error {
	return r.db.Model(&models.Transaction{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"merchant_request_id": merchantRequestID,
			"checkout_request_id": checkoutRequestID,
		}).Error
}

// CompleteIfPending atomically moves the transaction PENDING -> COMPLETED.
// The WHERE clause on status is the idempotency guard: of any number of
// concurrent callback deliveries, exactly one caller sees true.
func (r *TransactionRepository) CompleteIfPending(id uint, receipt, resultDesc string) (bool, error) {
	now := time.Now()
	res := r.db.Model(&models.Transaction{}).
		Where("id = ? AND status = ?", id, domain.TxStatusPending).
		Updates(map[string]interface{}{
			"status":               domain.TxStatusCompleted,
			"mpesa_receipt_number": receipt,
			"result_desc":          resultDesc,
			"completed_at":         now,
		})
	return res.RowsAffected > 0, res.Error
}

// FailIfPending atomically moves the transaction PENDING -> FAILED. A
// transaction already terminal is left untouched.
func (r *TransactionRepository) FailIfPending(id uint, reason, resultDesc string) (bool, error) {
	res := r.db.Model(&models.Transaction{}).
		Where("id = ? AND status = ?", id, domain.TxStatusPending).
		Updates(map[string]interface{}{
			"status":      domain.TxStatusFailed,
			"fail_reason": reason,
			"result_desc": resultDesc,
		})
	return res.RowsAffected > 0, res.Error
}

// FailExpiredPending fails every PENDING transaction created before the
// cutoff. Used by the expiry sweeper; the status guard keeps it from touching
// anything a late callback settled in the meantime.
func (r *TransactionRepository) FailExpiredPending(cutoff time.Time) (int64, error) {
	res := r.db.Model(&models.Transaction{}).
		Where("status = ? AND created_at < ?", domain.TxStatusPending, cutoff).
		Updates(map[string]interface{}{
			"status":      domain.TxStatusFailed,
			"fail_reason": domain.FailReasonExpired,
			"result_desc": "payment window expired",
		})
	return res.RowsAffected, res.Error
}
