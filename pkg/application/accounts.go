package application

import (
	"context"
	"errors"
	"gitlab.com/ignitionrobotics/billing/metering/pkg/accounts"
	"gitlab.com/ignitionrobotics/billing/metering/pkg/api"
)

// RegisterAccount creates the given account with an empty billing profile, or updates the contact details of an
// existing one.
func (s *service) RegisterAccount(ctx context.Context, req api.RegisterAccountRequest) (api.RegisterAccountResponse, error) {
	if err := req.Validate(); err != nil {
		return api.RegisterAccountResponse{}, err
	}

	unlock, err := s.lock(ctx, req.AccountID)
	if err != nil {
		return api.RegisterAccountResponse{}, err
	}
	defer unlock()

	acc, err := s.accounts.Get(ctx, req.AccountID)
	if errors.Is(err, accounts.ErrAccountNotFound) {
		acc = accounts.Account{
			ID:      req.AccountID,
			Billing: &accounts.BillingProfile{},
		}
	} else if err != nil {
		return api.RegisterAccountResponse{}, err
	}
	acc.Name = req.Name
	acc.Email = req.Email

	if err = s.accounts.Save(ctx, acc); err != nil {
		s.logger.WithField("account_id", req.AccountID).WithError(err).Error("Failed to register account")
		return api.RegisterAccountResponse{}, err
	}

	res := api.RegisterAccountResponse{
		AccountID: acc.ID,
		Name:      acc.Name,
		Email:     acc.Email,
	}
	if acc.Billing != nil {
		res.CustomerID = acc.Billing.CustomerID
		res.SubscriptionID = acc.Billing.SubscriptionID
		res.SubscriptionItemID = acc.Billing.SubscriptionItemID
	}
	return res, nil
}
