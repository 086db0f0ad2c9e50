package models

import (
	"time"

	"somahub/internal/domain"

	"gorm.io/datatypes"
)

// Transaction is the durable record of one payment attempt. Rows are a
// financial audit trail: they are created once by the initiator, transitioned
// at most once by the webhook processor or the expiry sweeper, never deleted.
type Transaction struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	Reference string `gorm:"size:64;uniqueIndex;not null" json:"reference"` // internal, caller-generated
	UserID    uint   `gorm:"index" json:"user_id"`                          // 0 = guest
	CourseID  uint   `gorm:"not null;index" json:"course_id"`

	AmountCents int64  `gorm:"not null" json:"amount_cents"` // settlement currency, smallest unit
	Currency    string `gorm:"size:3;default:'KES'" json:"currency"`
	Provider    string `gorm:"size:20;not null" json:"provider"`       // mpesa | free | card
	Status      string `gorm:"size:20;not null;index" json:"status"`   // PENDING, COMPLETED, FAILED
	PhoneNumber string `gorm:"size:20" json:"phone_number,omitempty"`

	// Provider correlation pair, written after the provider accepts the
	// initiation request. A callback may race this write; lookups tolerate
	// the pair being empty by rejecting so the provider retries.
	MerchantRequestID string `gorm:"size:64" json:"merchant_request_id,omitempty"`
	CheckoutRequestID string `gorm:"size:64;index" json:"checkout_request_id,omitempty"`

	MpesaReceiptNumber string         `gorm:"size:32" json:"mpesa_receipt_number,omitempty"`
	ResultDesc         string         `gorm:"size:255" json:"result_desc,omitempty"`
	FailReason         string         `gorm:"size:32" json:"fail_reason,omitempty"`
	Metadata           datatypes.JSON `json:"metadata,omitempty"`

	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (Transaction) TableName() string { return "transactions" }

func (t *Transaction) IsTerminal() bool {
	return t.Status != domain.TxStatusPending
}
