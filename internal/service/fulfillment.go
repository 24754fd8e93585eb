package service

import (
	"context"
	"errors"
	"fmt"
	"summit-webhook/internal/model"
	"summit-webhook/internal/repository"
	"time"

	"go.uber.org/zap"
)

var (
	ErrInvalidSignature = errors.New("invalid signature")
	ErrUnknownProvider  = errors.New("unknown provider")
)

type Outcome string

const (
	OutcomeIgnored             Outcome = "ignored"
	OutcomeAccountNotFound     Outcome = "account_not_found"
	OutcomeDuplicate           Outcome = "duplicate"
	OutcomeFulfilled           Outcome = "fulfilled"
	OutcomeFailed              Outcome = "failed"
	OutcomeFulfillmentDisabled Outcome = "fulfillment_disabled"
)

// FulfillmentError carries the stage a fulfillment failed at.
type FulfillmentError struct {
	Stage string
	Err   error
}

func (e *FulfillmentError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *FulfillmentError) Unwrap() error {
	return e.Err
}

type FulfillmentService interface {
	Enabled() bool
	Fulfill(ctx context.Context, event model.PaymentEvent) (Outcome, error)
}

type fulfillmentServiceImpl struct {
	logger   *zap.Logger
	store    repository.AccountStore
	paidPlan string
	timeout  time.Duration
}

// NewFulfillmentService wires the account store. A nil store disables
// fulfillment: events are acknowledged and reported as failures.
// Accounts are only ever moved to paidPlan; the plan named in a payload is
// recorded on the transaction but never applied to the account.
func NewFulfillmentService(logger *zap.Logger, store repository.AccountStore, paidPlan string, timeout time.Duration) FulfillmentService {
	return &fulfillmentServiceImpl{
		logger:   logger,
		store:    store,
		paidPlan: paidPlan,
		timeout:  timeout,
	}
}

func (s *fulfillmentServiceImpl) Enabled() bool {
	return s.store != nil
}

func (s *fulfillmentServiceImpl) Fulfill(ctx context.Context, event model.PaymentEvent) (Outcome, error) {
	log := s.logger.With(
		zap.String("provider", event.Provider),
		zap.String("provider_transaction_id", event.ProviderTransactionID),
		zap.String("email", event.Email),
	)

	if s.store == nil {
		return OutcomeFulfillmentDisabled, &FulfillmentError{Stage: "disabled", Err: errors.New("no account store configured")}
	}
	if event.Email == "" {
		log.Warn("payment event carries no customer email")
		return OutcomeAccountNotFound, nil
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	account, err := s.store.FindAccountByEmail(ctx, event.Email)
	if errors.Is(err, repository.ErrAccountNotFound) {
		log.Warn("no account matches payment email")
		return OutcomeAccountNotFound, nil
	}
	if err != nil {
		return OutcomeFailed, &FulfillmentError{Stage: "lookup", Err: err}
	}

	applied := false
	err = s.store.RunInTx(ctx, func(store repository.AccountStore) error {
		inserted, err := store.InsertTransactionIfAbsent(ctx, &model.AccountTransaction{
			AccountID:             account.ID,
			Provider:              event.Provider,
			PlanName:              event.Plan,
			Amount:                event.Amount,
			Currency:              event.Currency,
			Status:                event.Status,
			ProviderTransactionID: event.ProviderTransactionID,
		})
		if err != nil {
			return fmt.Errorf("insert transaction: %w", err)
		}
		if !inserted {
			return nil
		}

		if err := store.UpdateAccountPlan(ctx, account.ID, s.paidPlan); err != nil {
			return fmt.Errorf("update account plan: %w", err)
		}
		applied = true
		return nil
	})
	if err != nil {
		return OutcomeFailed, &FulfillmentError{Stage: "apply", Err: err}
	}

	if !applied {
		log.Info("payment already applied")
		return OutcomeDuplicate, nil
	}

	log.Info("account upgraded",
		zap.String("account_id", account.ID),
		zap.String("plan", s.paidPlan),
		zap.String("previous_plan", account.Plan),
		zap.String("payload_plan", event.Plan),
	)
	return OutcomeFulfilled, nil
}
