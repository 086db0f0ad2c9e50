package models

import "time"

// CallbackToken is the single-use slug embedded in the callback URL handed to
// the payment provider. The webhook path trusts nothing else: an inbound
// callback whose token does not resolve here is rejected outright.
type CallbackToken struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	Token         string     `gorm:"size:64;uniqueIndex;not null" json:"-"`
	TransactionID uint       `gorm:"not null;index" json:"transaction_id"`
	UsedAt        *time.Time `json:"used_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

func (CallbackToken) TableName() string { return "callback_tokens" }
