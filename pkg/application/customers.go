package application

import (
	"context"
	"errors"
	"fmt"
	"github.com/sirupsen/logrus"
	"gitlab.com/ignitionrobotics/billing/metering/pkg/accounts"
	"gitlab.com/ignitionrobotics/billing/metering/pkg/adapter"
	"gitlab.com/ignitionrobotics/billing/metering/pkg/api"
)

// staleReason names why a stored customer id couldn't be reused.
type staleReason string

const (
	staleNotFound    staleReason = "not_found"
	staleDeleted     staleReason = "deleted"
	staleUnreachable staleReason = "unreachable"
)

func staleReasonOf(err error) staleReason {
	switch {
	case errors.Is(err, adapter.ErrCustomerNotFound):
		return staleNotFound
	case errors.Is(err, adapter.ErrCustomerDeleted):
		return staleDeleted
	default:
		return staleUnreachable
	}
}

// ResolveCustomer returns the gateway customer of the given account.
func (s *service) ResolveCustomer(ctx context.Context, req api.ResolveCustomerRequest) (api.ResolveCustomerResponse, error) {
	if err := req.Validate(); err != nil {
		return api.ResolveCustomerResponse{}, err
	}

	var res api.ResolveCustomerResponse
	err := s.withAccount(ctx, req.AccountID, func(ctx context.Context, acc *accounts.Account) error {
		id, err := s.resolveCustomer(ctx, acc)
		if err != nil {
			return err
		}
		res.CustomerID = id
		return nil
	})
	if err != nil {
		return api.ResolveCustomerResponse{}, err
	}
	return res, nil
}

// resolveCustomer returns the customer id stored in the account if the gateway still knows it. Otherwise, it creates
// a new customer and writes its id back to the account billing profile, if the account has one.
func (s *service) resolveCustomer(ctx context.Context, acc *accounts.Account) (string, error) {
	logger := s.logger.WithField("account_id", acc.ID)

	if acc.Billing != nil && len(acc.Billing.CustomerID) > 0 {
		id := acc.Billing.CustomerID
		_, err := s.adapter.GetCustomer(ctx, id)
		if s.metrics.gateway("get_customer", err) == nil {
			return id, nil
		}
		reason := staleReasonOf(err)
		s.metrics.StaleCustomers.WithLabelValues(string(reason)).Inc()
		logger.WithFields(logrus.Fields{
			"customer_id": id,
			"reason":      reason,
		}).WithError(err).Warn("Stored customer is stale, creating a new one")
	}

	c, err := s.adapter.CreateCustomer(ctx, adapter.CreateCustomerInput{
		Email:     acc.Email,
		Name:      acc.Name,
		AccountID: acc.ID,
	})
	if s.metrics.gateway("create_customer", err) != nil {
		logger.WithError(err).Error("Failed to create customer")
		return "", fmt.Errorf("failed to create customer: %w", err)
	}
	s.metrics.CustomersCreated.Inc()

	if acc.Billing == nil {
		logger.WithField("customer_id", c.ID).Warn("Account has no billing profile, customer id won't be persisted")
		return c.ID, nil
	}
	acc.Billing.CustomerID = c.ID
	logger.WithField("customer_id", c.ID).Info("Customer created")
	return c.ID, nil
}
