package service

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"summit-webhook/internal/model"
	"summit-webhook/internal/repository"
	"time"

	"go.uber.org/zap"
)

// WebhookResult is what the transport reports back to the provider.
type WebhookResult struct {
	EventID string
	Kind    EventKind
	Outcome Outcome
	// Err is set when fulfillment failed after authentication. The delivery
	// is still acknowledged; the failure has been escalated.
	Err error
}

type WebhookService interface {
	Provider() string
	SignatureVerificationEnabled() bool
	FulfillmentEnabled() bool
	HandleWebhook(ctx context.Context, provider string, headers http.Header, body []byte) (*WebhookResult, error)
}

type webhookServiceImpl struct {
	logger           *zap.Logger
	provider         string
	paidPlan         string
	verifier         *Verifier
	fulfillment      FulfillmentService
	webhookEventRepo repository.WebhookEventRepository
	failures         FailureSink
	storeTimeout     time.Duration
}

func NewWebhookService(
	logger *zap.Logger,
	provider string,
	paidPlan string,
	verifier *Verifier,
	fulfillment FulfillmentService,
	webhookEventRepo repository.WebhookEventRepository,
	failures FailureSink,
	storeTimeout time.Duration,
) WebhookService {
	return &webhookServiceImpl{
		logger:           logger,
		provider:         strings.ToLower(provider),
		paidPlan:         paidPlan,
		verifier:         verifier,
		fulfillment:      fulfillment,
		webhookEventRepo: webhookEventRepo,
		failures:         failures,
		storeTimeout:     storeTimeout,
	}
}

func (s *webhookServiceImpl) Provider() string {
	return s.provider
}

func (s *webhookServiceImpl) SignatureVerificationEnabled() bool {
	return s.verifier.Enabled()
}

func (s *webhookServiceImpl) FulfillmentEnabled() bool {
	return s.fulfillment.Enabled()
}

// HandleWebhook authenticates, classifies and fulfills one delivery. Only
// ErrUnknownProvider and ErrInvalidSignature are returned as errors; every
// later failure is reported on the result and escalated.
func (s *webhookServiceImpl) HandleWebhook(ctx context.Context, provider string, headers http.Header, body []byte) (*WebhookResult, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider != s.provider {
		return nil, ErrUnknownProvider
	}

	verdict := s.verifier.Verify(body, SignatureHeader(headers, provider))
	switch verdict {
	case SignatureInvalid:
		s.logger.Warn("webhook signature rejected",
			zap.String("provider", provider),
			zap.Int("body_bytes", len(body)),
		)
		return nil, ErrInvalidSignature
	case SignatureSkipped:
		s.logger.Warn("webhook accepted without signature verification: no secret configured",
			zap.String("provider", provider),
			zap.String("signature", verdict.String()),
		)
	}

	payload := ParsePayload(body)
	kind := Classify(payload)
	event := ExtractPayment(provider, s.paidPlan, payload, body)

	log := s.logger.With(
		zap.String("provider", provider),
		zap.String("event_type", event.EventType),
		zap.String("kind", kind.String()),
		zap.String("signature", verdict.String()),
	)

	stored := &model.WebhookEvent{
		Provider:        provider,
		EventType:       event.EventType,
		SignatureStatus: verdict.String(),
		PayloadJSON:     string(body),
	}
	if kind == EventPaymentSucceeded {
		stored.ProviderTransactionID = event.ProviderTransactionID
	}
	if err := s.createEvent(ctx, stored); err != nil {
		// the delivery log is audit only; fulfillment does not depend on it
		log.Error("persist webhook event", zap.Error(err))
		stored.ID = ""
	}

	result := &WebhookResult{EventID: stored.ID, Kind: kind, Outcome: OutcomeIgnored}

	if kind == EventPaymentSucceeded {
		outcome, err := s.fulfillment.Fulfill(ctx, event)
		result.Outcome = outcome
		if err != nil {
			result.Err = err
			log.Error("payment fulfillment failed",
				zap.String("provider_transaction_id", event.ProviderTransactionID),
				zap.String("outcome", string(outcome)),
				zap.Error(err),
			)
			s.escalate(ctx, stored, event, err)
		}
	} else {
		log.Info("webhook event ignored")
	}

	s.markProcessed(ctx, log, stored.ID, result)

	return result, nil
}

func (s *webhookServiceImpl) createEvent(ctx context.Context, stored *model.WebhookEvent) error {
	if s.storeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.storeTimeout)
		defer cancel()
	}
	return s.webhookEventRepo.Create(ctx, stored)
}

func (s *webhookServiceImpl) escalate(ctx context.Context, stored *model.WebhookEvent, event model.PaymentEvent, cause error) {
	stage := "apply"
	var ferr *FulfillmentError
	if errors.As(cause, &ferr) {
		stage = ferr.Stage
	}

	failure := &model.FulfillmentFailure{
		WebhookEventID:        stored.ID,
		Provider:              event.Provider,
		ProviderTransactionID: event.ProviderTransactionID,
		Email:                 event.Email,
		Stage:                 stage,
		Error:                 cause.Error(),
		PayloadJSON:           stored.PayloadJSON,
	}

	// the request context may be the one that timed out
	escCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := s.failures.Escalate(escCtx, failure); err != nil {
		s.logger.Error("escalate fulfillment failure",
			zap.String("provider_transaction_id", event.ProviderTransactionID),
			zap.String("email", event.Email),
			zap.NamedError("cause", cause),
			zap.Error(err),
		)
	}
}

func (s *webhookServiceImpl) markProcessed(ctx context.Context, log *zap.Logger, eventID string, result *WebhookResult) {
	if eventID == "" {
		return
	}

	errMsg := ""
	if result.Err != nil {
		errMsg = result.Err.Error()
	}

	markCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := s.webhookEventRepo.MarkProcessed(markCtx, eventID, string(result.Outcome), errMsg); err != nil {
		log.Error("mark webhook event processed", zap.String("event_id", eventID), zap.Error(err))
	}
}
