package service

import (
	"context"
	"errors"
	"fmt"
	"summit-webhook/internal/model"
)

// FailureSink receives deliveries that were acknowledged to the provider but
// not fulfilled. The provider will not retry them, so a sink is the only
// place an operator learns about a customer missing their upgrade.
type FailureSink interface {
	Escalate(ctx context.Context, failure *model.FulfillmentFailure) error
}

// FanoutSink escalates to every sink and joins their errors.
type FanoutSink []FailureSink

func (f FanoutSink) Escalate(ctx context.Context, failure *model.FulfillmentFailure) error {
	var errs []error
	for i, sink := range f {
		if sink == nil {
			continue
		}
		if err := sink.Escalate(ctx, failure); err != nil {
			errs = append(errs, fmt.Errorf("sink %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}
