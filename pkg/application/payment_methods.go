package application

import (
	"context"
	"gitlab.com/ignitionrobotics/billing/metering/pkg/accounts"
	"gitlab.com/ignitionrobotics/billing/metering/pkg/api"
)

// CheckPaymentMethods lists the cards stored for the given account. Having no cards is not an error.
func (s *service) CheckPaymentMethods(ctx context.Context, req api.CheckPaymentMethodsRequest) (api.CheckPaymentMethodsResponse, error) {
	if err := req.Validate(); err != nil {
		return api.CheckPaymentMethodsResponse{}, err
	}

	var res api.CheckPaymentMethodsResponse
	err := s.withAccount(ctx, req.AccountID, func(ctx context.Context, acc *accounts.Account) error {
		var err error
		_, res, err = s.listPaymentMethods(ctx, acc)
		return err
	})
	if err != nil {
		return api.CheckPaymentMethodsResponse{}, err
	}
	return res, nil
}

// listPaymentMethods resolves the customer of the given account and lists its cards.
// It returns the resolved customer id along with the cards.
func (s *service) listPaymentMethods(ctx context.Context, acc *accounts.Account) (string, api.CheckPaymentMethodsResponse, error) {
	customerID, err := s.resolveCustomer(ctx, acc)
	if err != nil {
		return "", api.CheckPaymentMethodsResponse{}, err
	}

	cards, err := s.adapter.ListCards(ctx, customerID)
	if s.metrics.gateway("list_payment_methods", err) != nil {
		s.logger.WithField("customer_id", customerID).WithError(err).Error("Failed to list payment methods")
		return "", api.CheckPaymentMethodsResponse{}, err
	}

	res := api.CheckPaymentMethodsResponse{
		HasPaymentMethod: len(cards) > 0,
		Cards:            make([]api.Card, 0, len(cards)),
	}
	for _, c := range cards {
		res.Cards = append(res.Cards, api.Card{
			Last4:    c.Last4,
			Brand:    c.Brand,
			ExpMonth: c.ExpMonth,
			ExpYear:  c.ExpYear,
		})
	}
	return customerID, res, nil
}
