package application

import (
	"context"
	"gitlab.com/ignitionrobotics/billing/metering/pkg/accounts"
	"gitlab.com/ignitionrobotics/billing/metering/pkg/api"
)

// CreateSetupIntent creates a card setup intent for the customer of the given account.
func (s *service) CreateSetupIntent(ctx context.Context, req api.CreateSetupIntentRequest) (api.CreateSetupIntentResponse, error) {
	if err := req.Validate(); err != nil {
		return api.CreateSetupIntentResponse{}, err
	}

	var res api.CreateSetupIntentResponse
	err := s.withAccount(ctx, req.AccountID, func(ctx context.Context, acc *accounts.Account) error {
		customerID, err := s.resolveCustomer(ctx, acc)
		if err != nil {
			return err
		}
		intent, err := s.adapter.CreateSetupIntent(ctx, customerID)
		if s.metrics.gateway("create_setup_intent", err) != nil {
			return err
		}
		res.ClientSecret = intent.ClientSecret
		return nil
	})
	if err != nil {
		s.logger.WithField("account_id", req.AccountID).WithError(err).Error("Failed to create setup intent")
		return api.CreateSetupIntentResponse{}, err
	}
	return res, nil
}
