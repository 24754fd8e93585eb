package model

import "github.com/shopspring/decimal"

const (
	PlanFree = "free"

	// WebhookEvent.SignatureStatus values
	SignatureVerified = "verified"
	SignatureSkipped  = "skipped"
	SignatureInvalid  = "invalid"
)

// PaymentEvent is the provider-neutral view of a success notification.
type PaymentEvent struct {
	Provider              string
	EventType             string
	Email                 string
	ProviderTransactionID string
	Amount                decimal.Decimal
	Currency              string
	Status                string
	Plan                  string
}
