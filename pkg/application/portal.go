package application

import (
	"context"
	"gitlab.com/ignitionrobotics/billing/metering/pkg/accounts"
	"gitlab.com/ignitionrobotics/billing/metering/pkg/api"
)

// CreatePortalSession creates a billing-portal session for the given account.
func (s *service) CreatePortalSession(ctx context.Context, req api.CreatePortalSessionRequest) (api.CreatePortalSessionResponse, error) {
	if err := req.Validate(); err != nil {
		return api.CreatePortalSessionResponse{}, err
	}

	var res api.CreatePortalSessionResponse
	err := s.withAccount(ctx, req.AccountID, func(ctx context.Context, acc *accounts.Account) error {
		customerID, err := s.resolveCustomer(ctx, acc)
		if err != nil {
			return err
		}
		session, err := s.adapter.CreatePortalSession(ctx, customerID, s.portalReturnURL)
		if s.metrics.gateway("create_portal_session", err) != nil {
			return err
		}
		res.PortalURL = session.URL
		return nil
	})
	if err != nil {
		s.logger.WithField("account_id", req.AccountID).WithError(err).Error("Failed to create portal session")
		return api.CreatePortalSessionResponse{}, err
	}
	return res, nil
}
