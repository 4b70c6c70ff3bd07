package application

import (
	"context"
	"errors"
	"github.com/sirupsen/logrus"
	"gitlab.com/ignitionrobotics/billing/metering/pkg/accounts"
	"gitlab.com/ignitionrobotics/billing/metering/pkg/adapter"
	"gitlab.com/ignitionrobotics/billing/metering/pkg/api"
)

// AddUsageBasedBilling subscribes the given account to the metered price. Accounts without cards are rejected
// before any subscription is created in the gateway.
func (s *service) AddUsageBasedBilling(ctx context.Context, req api.AddUsageBasedBillingRequest) (api.AddUsageBasedBillingResponse, error) {
	if err := req.Validate(); err != nil {
		return api.AddUsageBasedBillingResponse{}, err
	}
	logger := s.logger.WithField("account_id", req.AccountID)
	logger.Info("Adding usage-based billing")

	var res api.AddUsageBasedBillingResponse
	err := s.withAccount(ctx, req.AccountID, func(ctx context.Context, acc *accounts.Account) error {
		customerID, methods, err := s.listPaymentMethods(ctx, acc)
		if err != nil {
			return err
		}
		if !methods.HasPaymentMethod {
			s.metrics.BusinessFailures.WithLabelValues("add_usage_based_billing", "no_payment_method").Inc()
			res = api.AddUsageBasedBillingResponse{Error: api.MessageNoPaymentMethod}
			return nil
		}

		sub, err := s.adapter.CreateSubscription(ctx, customerID, s.priceID)
		if s.metrics.gateway("create_subscription", err) != nil {
			var gwErr *adapter.Error
			if errors.As(err, &gwErr) {
				s.metrics.BusinessFailures.WithLabelValues("add_usage_based_billing", "gateway_error").Inc()
				logger.WithError(err).Warn("Gateway rejected subscription")
				res = api.AddUsageBasedBillingResponse{Error: gatewayMessage(gwErr)}
				return nil
			}
			return err
		}

		if !acc.Billing.SetSubscription(sub.ID, sub.ItemID) {
			logger.WithFields(logrus.Fields{
				"subscription_id":      sub.ID,
				"subscription_item_id": sub.ItemID,
			}).Warn("Subscription identifiers not written back to the account")
		}

		res = api.AddUsageBasedBillingResponse{
			OK: true,
			Subscription: &api.Subscription{
				ID:                  sub.ID,
				ItemID:              sub.ItemID,
				CustomerID:          customerID,
				Status:              sub.Status,
				LatestInvoiceID:     sub.LatestInvoiceID,
				PaymentIntentStatus: sub.PaymentIntentStatus,
			},
		}
		return nil
	})
	if err != nil {
		logger.WithError(err).Error("Failed to add usage-based billing")
		return api.AddUsageBasedBillingResponse{}, err
	}
	return res, nil
}

// gatewayMessage returns the message reported by the gateway, falling back to the full error.
func gatewayMessage(err *adapter.Error) string {
	if len(err.Message) > 0 {
		return err.Message
	}
	return err.Error()
}
