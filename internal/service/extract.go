package service

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"summit-webhook/internal/model"

	"github.com/shopspring/decimal"
)

// Payload locations are tried in order; the provider schema was inferred
// from observed deliveries, so the precedence is provisional.
var (
	emailPaths = [][]string{
		{"customer", "email"},
		{"data", "customer", "email"},
		{"metadata", "email"},
		{"buyer_email"},
	}
	transactionIDPaths = [][]string{
		{"payment_id"},
		{"transaction_id"},
		{"data", "payment_id"},
		{"data", "transaction_id"},
		{"data", "id"},
	}
	amountPaths   = [][]string{{"amount"}, {"data", "amount"}}
	currencyPaths = [][]string{{"currency"}, {"data", "currency"}}
	statusPaths   = [][]string{{"status"}, {"data", "status"}}
	planPaths     = [][]string{{"metadata", "plan"}, {"plan"}}
	typePaths     = [][]string{{"type"}, {"event_type"}}
)

// ExtractPayment builds the normalized payment view. Missing transaction ids
// fall back to a hash of the raw body so an identical redelivery still
// collides on the idempotency key.
func ExtractPayment(provider, defaultPlan string, payload map[string]any, rawBody []byte) model.PaymentEvent {
	ev := model.PaymentEvent{
		Provider:              provider,
		EventType:             firstString(payload, typePaths),
		Email:                 strings.ToLower(firstString(payload, emailPaths)),
		ProviderTransactionID: firstString(payload, transactionIDPaths),
		Amount:                firstAmount(payload, amountPaths),
		Currency:              strings.ToUpper(firstString(payload, currencyPaths)),
		Status:                strings.ToLower(firstString(payload, statusPaths)),
		Plan:                  strings.ToLower(firstString(payload, planPaths)),
	}

	if ev.ProviderTransactionID == "" {
		sum := sha256.Sum256(rawBody)
		ev.ProviderTransactionID = "hash:" + hex.EncodeToString(sum[:])
	}
	if ev.Currency == "" {
		ev.Currency = "USD"
	}
	if ev.Status == "" {
		ev.Status = "succeeded"
	}
	if ev.Plan == "" || ev.Plan == model.PlanFree {
		ev.Plan = defaultPlan
	}

	return ev
}

func firstString(payload map[string]any, paths [][]string) string {
	for _, path := range paths {
		if s := stringAt(payload, path...); s != "" {
			return s
		}
	}
	return ""
}

func firstAmount(payload map[string]any, paths [][]string) decimal.Decimal {
	for _, path := range paths {
		v, ok := valueAt(payload, path...)
		if !ok {
			continue
		}

		var raw string
		switch n := v.(type) {
		case json.Number:
			raw = n.String()
		case string:
			raw = strings.TrimSpace(n)
		default:
			continue
		}

		d, err := decimal.NewFromString(raw)
		if err != nil {
			continue
		}
		return d
	}
	return decimal.Zero
}
