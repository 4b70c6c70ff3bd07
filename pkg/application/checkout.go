package application

import (
	"context"
	"errors"
	"fmt"
	"github.com/sirupsen/logrus"
	"gitlab.com/ignitionrobotics/billing/metering/pkg/accounts"
	"gitlab.com/ignitionrobotics/billing/metering/pkg/adapter"
	"gitlab.com/ignitionrobotics/billing/metering/pkg/api"
	"math"
	"strconv"
)

const (
	// Checkout session metadata keys.
	metadataAccountID      = "accountId"
	metadataCreditQuantity = "creditQuantity"
	metadataUnitPrice      = "unitPrice"

	// paymentStatusPaid is the checkout session payment status of a completed payment.
	paymentStatusPaid = "paid"
)

// checkoutIntent is what a checkout session is created for. It travels in the session metadata.
type checkoutIntent struct {
	AccountID      string
	UnitPrice      float64
	CreditQuantity int64
}

// metadata encodes the intent as session metadata.
func (i checkoutIntent) metadata() map[string]string {
	return map[string]string{
		metadataAccountID:      i.AccountID,
		metadataCreditQuantity: strconv.FormatInt(i.CreditQuantity, 10),
		metadataUnitPrice:      strconv.FormatFloat(i.UnitPrice, 'f', -1, 64),
	}
}

// parseCheckoutIntent decodes an intent from session metadata. Missing or malformed values decode as zero.
func parseCheckoutIntent(md map[string]string) checkoutIntent {
	i := checkoutIntent{
		AccountID: md[metadataAccountID],
	}
	if q, err := strconv.ParseInt(md[metadataCreditQuantity], 10, 64); err == nil {
		i.CreditQuantity = q
	}
	if p, err := strconv.ParseFloat(md[metadataUnitPrice], 64); err == nil && !math.IsNaN(p) && !math.IsInf(p, 0) {
		i.UnitPrice = p
	}
	return i
}

// CreateCheckoutSession creates a one-time checkout session to buy a bundle of credits. Gateway failures are
// returned in the response.
func (s *service) CreateCheckoutSession(ctx context.Context, req api.CreateCheckoutSessionRequest) (api.CreateCheckoutSessionResponse, error) {
	if err := req.Validate(); err != nil {
		return api.CreateCheckoutSessionResponse{}, err
	}
	logger := s.logger.WithFields(logrus.Fields{
		"account_id":      req.AccountID,
		"unit_price":      req.UnitPrice,
		"credit_quantity": req.CreditQuantity,
	})
	logger.Info("Creating checkout session")

	var res api.CreateCheckoutSessionResponse
	err := s.withAccount(ctx, req.AccountID, func(ctx context.Context, acc *accounts.Account) error {
		session, err := s.createCheckoutSession(ctx, acc, checkoutIntent{
			AccountID:      acc.ID,
			UnitPrice:      req.UnitPrice,
			CreditQuantity: req.CreditQuantity,
		})
		if err != nil {
			s.metrics.BusinessFailures.WithLabelValues("create_checkout_session", "gateway_error").Inc()
			logger.WithError(err).Warn("Failed to create checkout session")
			res = api.CreateCheckoutSessionResponse{Error: errorMessage(err)}
			return nil
		}
		logger.WithField("session_id", session.ID).Info("Checkout session created")
		res = api.CreateCheckoutSessionResponse{URL: session.URL}
		return nil
	})
	if err != nil {
		return api.CreateCheckoutSessionResponse{}, err
	}
	return res, nil
}

func (s *service) createCheckoutSession(ctx context.Context, acc *accounts.Account, intent checkoutIntent) (adapter.CheckoutSession, error) {
	customerID, err := s.resolveCustomer(ctx, acc)
	if err != nil {
		return adapter.CheckoutSession{}, err
	}

	session, err := s.adapter.CreateCheckoutSession(ctx, adapter.CreateCheckoutSessionInput{
		CustomerID: customerID,
		LineItem: adapter.LineItem{
			Name:        fmt.Sprintf("%d Credits", intent.CreditQuantity),
			Description: fmt.Sprintf("%d credits for usage-based processing", intent.CreditQuantity),
			Currency:    s.currency,
			UnitAmount:  int64(math.Round(intent.UnitPrice * 100)),
			Quantity:    1,
		},
		SuccessURL:          s.successURL,
		CancelURL:           s.cancelURL,
		AllowPromotionCodes: true,
		Metadata:            intent.metadata(),
	})
	if s.metrics.gateway("create_checkout_session", err) != nil {
		return adapter.CheckoutSession{}, err
	}
	return session, nil
}

// VerifyPayment fetches the given checkout session and reports whether it has been paid. It doesn't grant credits.
func (s *service) VerifyPayment(ctx context.Context, req api.VerifyPaymentRequest) (api.VerifyPaymentResponse, error) {
	if err := req.Validate(); err != nil {
		return api.VerifyPaymentResponse{}, err
	}
	logger := s.logger.WithField("session_id", req.SessionID)

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	session, err := s.adapter.GetCheckoutSession(ctx, req.SessionID)
	if s.metrics.gateway("get_checkout_session", err) != nil {
		logger.WithError(err).Error("Failed to get checkout session")
		return api.VerifyPaymentResponse{}, err
	}

	intent := parseCheckoutIntent(session.Metadata)
	if session.PaymentStatus != paymentStatusPaid {
		s.metrics.BusinessFailures.WithLabelValues("verify_payment", "unpaid").Inc()
		logger.WithField("payment_status", session.PaymentStatus).Info("Checkout session not paid")
		return api.VerifyPaymentResponse{
			AccountID: intent.AccountID,
			Message:   api.MessagePaymentFailed,
		}, nil
	}

	logger.WithFields(logrus.Fields{
		"account_id":      intent.AccountID,
		"credit_quantity": intent.CreditQuantity,
	}).Info("Checkout session paid")
	return api.VerifyPaymentResponse{
		OK:             true,
		AccountID:      intent.AccountID,
		CreditsGranted: intent.CreditQuantity,
		Price:          intent.UnitPrice,
		Message:        api.MessagePaymentSucceeded,
	}, nil
}

// errorMessage returns the gateway message if err was reported by the gateway.
func errorMessage(err error) string {
	var gwErr *adapter.Error
	if errors.As(err, &gwErr) {
		return gatewayMessage(gwErr)
	}
	return err.Error()
}
