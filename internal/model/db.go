package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Account struct {
	ID        string    `gorm:"primaryKey;size:64;not null" json:"id"`
	Email     string    `gorm:"size:255;uniqueIndex;not null" json:"email"`
	Plan      string    `gorm:"size:32;index;not null;default:free" json:"plan"` // free, pro
	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
}

// BeforeSave stores emails lower-cased so lookups by a normalized address match.
func (a *Account) BeforeSave(tx *gorm.DB) error {
	a.Email = strings.ToLower(strings.TrimSpace(a.Email))
	return nil
}

func (a *Account) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}

// AccountTransaction is the append-only payment log. ProviderTransactionID is
// the idempotency key: one row per provider payment.
type AccountTransaction struct {
	ID                    string          `gorm:"primaryKey;size:64;not null" json:"id,omitempty"`
	AccountID             string          `gorm:"size:64;index;not null" json:"user_id"`
	Provider              string          `gorm:"size:32;not null" json:"provider"`
	PlanName              string          `gorm:"size:32;not null" json:"plan_name"`
	Amount                decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"amount"`
	Currency              string          `gorm:"size:8;not null" json:"currency"`
	Status                string          `gorm:"size:32;not null" json:"status"`
	ProviderTransactionID string          `gorm:"size:191;uniqueIndex;not null" json:"provider_transaction_id"`
	CreatedAt             time.Time       `json:"-"`
}

func (t *AccountTransaction) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}

// WebhookEvent is one accepted delivery, kept for audit and replay.
type WebhookEvent struct {
	ID                    string `gorm:"primaryKey;size:64;not null"`
	Provider              string `gorm:"size:32;index;not null"`
	EventType             string `gorm:"size:100;index"`
	ProviderTransactionID string `gorm:"size:191;index"`
	SignatureStatus       string `gorm:"size:16;index;not null"` // verified, skipped
	PayloadJSON           string `gorm:"type:text;not null"`
	Outcome               string `gorm:"size:32;index"`
	ProcessingError       string `gorm:"type:text"`
	ProcessedAt           *time.Time
	CreatedAt             time.Time
}

// FulfillmentFailure is the dead-letter record for a delivery that was
// acknowledged to the provider but could not be fulfilled.
type FulfillmentFailure struct {
	ID                    string    `gorm:"primaryKey;size:64;not null" json:"id"`
	WebhookEventID        string    `gorm:"size:64;index" json:"webhook_event_id"`
	Provider              string    `gorm:"size:32;not null" json:"provider"`
	ProviderTransactionID string    `gorm:"size:191;index" json:"provider_transaction_id"`
	Email                 string    `gorm:"size:255;index" json:"email"`
	Stage                 string    `gorm:"size:32;not null" json:"stage"` // lookup, apply, disabled
	Error                 string    `gorm:"type:text;not null" json:"error"`
	PayloadJSON           string    `gorm:"type:text" json:"payload"`
	Resolved              bool      `gorm:"not null;default:false;index" json:"resolved"`
	CreatedAt             time.Time `json:"created_at"`
}

func (f *FulfillmentFailure) BeforeCreate(tx *gorm.DB) error {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	return nil
}
