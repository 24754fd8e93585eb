package dto

// WebhookResponse acknowledges a delivery. Error is set when the event was
// authenticated but could not be fulfilled; the status is still 200 so the
// provider does not retry.
type WebhookResponse struct {
	Received  bool   `json:"received"`
	Error     string `json:"error,omitempty"`
	Duplicate bool   `json:"duplicate,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type HealthResponse struct {
	Status                string `json:"status"`
	Service               string `json:"service"`
	SignatureVerification string `json:"signature_verification"`
	Fulfillment           string `json:"fulfillment"`
}
