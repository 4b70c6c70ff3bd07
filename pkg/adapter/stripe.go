package adapter

import (
	"context"
	"errors"
	"fmt"
	"github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
	"gitlab.com/ignitionrobotics/billing/metering/internal/conf"
	"io"
	"strconv"
)

const (
	// metadataAccountID is the customer metadata key holding the internal account id.
	metadataAccountID = "account_id"

	// meterPayloadCustomer and meterPayloadValue are the payload keys Stripe meters read by default.
	meterPayloadCustomer = "stripe_customer_id"
	meterPayloadValue    = "value"

	// expandPaymentIntent asks Stripe to include the payment intent of the first invoice of a subscription.
	expandPaymentIntent = "latest_invoice.payment_intent"
)

var _ Client = (*stripeAdapter)(nil)

// stripeAdapter implements Client using the Stripe API.
type stripeAdapter struct {
	// API contains a stripe client implementation.
	API *client.API
}

// GetCustomer retrieves a customer from Stripe.
// Stripe docs: https://stripe.com/docs/api/customers/retrieve
func (s *stripeAdapter) GetCustomer(ctx context.Context, id string) (Customer, error) {
	params := &stripe.CustomerParams{}
	params.Context = ctx
	c, err := s.API.Customers.Get(id, params)
	if err != nil {
		var se *stripe.Error
		if errors.As(err, &se) && se.Code == stripe.ErrorCodeResourceMissing {
			return Customer{}, fmt.Errorf("%w: %s", ErrCustomerNotFound, id)
		}
		return Customer{}, wrapError("get customer", err)
	}
	if c.Deleted {
		return Customer{}, fmt.Errorf("%w: %s", ErrCustomerDeleted, id)
	}
	return Customer{
		ID:    c.ID,
		Email: c.Email,
		Name:  c.Name,
	}, nil
}

// CreateCustomer creates a customer in Stripe tagged with the internal account id. It returns the new customer.
// Stripe docs: https://stripe.com/docs/api/customers/create
func (s *stripeAdapter) CreateCustomer(ctx context.Context, in CreateCustomerInput) (Customer, error) {
	params := &stripe.CustomerParams{
		Email: stripe.String(in.Email),
		Name:  stripe.String(in.Name),
	}
	params.Context = ctx
	params.AddMetadata(metadataAccountID, in.AccountID)

	c, err := s.API.Customers.New(params)
	if err != nil {
		return Customer{}, wrapError("create customer", err)
	}
	return Customer{
		ID:    c.ID,
		Email: c.Email,
		Name:  c.Name,
	}, nil
}

// ListCards lists every card attached to the given customer.
// Stripe docs: https://stripe.com/docs/api/payment_methods/customer_list
func (s *stripeAdapter) ListCards(ctx context.Context, customerID string) ([]Card, error) {
	params := &stripe.PaymentMethodListParams{
		Customer: stripe.String(customerID),
		Type:     stripe.String(string(stripe.PaymentMethodTypeCard)),
	}
	params.Context = ctx

	cards := make([]Card, 0)
	it := s.API.PaymentMethods.List(params)
	for it.Next() {
		pm := it.PaymentMethod()
		if pm.Card == nil {
			continue
		}
		cards = append(cards, Card{
			Last4:    pm.Card.Last4,
			Brand:    string(pm.Card.Brand),
			ExpMonth: pm.Card.ExpMonth,
			ExpYear:  pm.Card.ExpYear,
		})
	}
	if err := it.Err(); err != nil {
		return nil, wrapError("list payment methods", err)
	}
	return cards, nil
}

// CreateSubscription creates a subscription with a single item for the given price.
// Stripe docs: https://stripe.com/docs/api/subscriptions/create
func (s *stripeAdapter) CreateSubscription(ctx context.Context, customerID, priceID string) (Subscription, error) {
	params := &stripe.SubscriptionParams{
		Customer: stripe.String(customerID),
		Items: []*stripe.SubscriptionItemsParams{
			{
				Price: stripe.String(priceID),
			},
		},
	}
	params.Context = ctx
	params.AddExpand(expandPaymentIntent)

	sub, err := s.API.Subscriptions.New(params)
	if err != nil {
		return Subscription{}, wrapError("create subscription", err)
	}

	res := Subscription{
		ID:         sub.ID,
		CustomerID: customerID,
		Status:     string(sub.Status),
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 && sub.Items.Data[0] != nil {
		res.ItemID = sub.Items.Data[0].ID
	}
	if sub.LatestInvoice != nil {
		res.LatestInvoiceID = sub.LatestInvoice.ID
		if sub.LatestInvoice.PaymentIntent != nil {
			res.PaymentIntentStatus = string(sub.LatestInvoice.PaymentIntent.Status)
		}
	}
	return res, nil
}

// CreateMeterEvent sends a billing meter event to Stripe.
// Stripe docs: https://stripe.com/docs/api/billing/meter-event/create
func (s *stripeAdapter) CreateMeterEvent(ctx context.Context, in MeterEventInput) (MeterEvent, error) {
	params := &stripe.BillingMeterEventParams{
		EventName: stripe.String(in.EventName),
		Payload: map[string]string{
			meterPayloadCustomer: in.CustomerID,
			meterPayloadValue:    strconv.FormatInt(in.Value, 10),
		},
	}
	if len(in.Identifier) > 0 {
		params.Identifier = stripe.String(in.Identifier)
	}
	params.Context = ctx

	ev, err := s.API.BillingMeterEvents.New(params)
	if err != nil {
		return MeterEvent{}, wrapError("create meter event", err)
	}
	return MeterEvent{
		EventName:  ev.EventName,
		Identifier: ev.Identifier,
		Timestamp:  ev.Timestamp,
		Created:    ev.Created,
	}, nil
}

// CreateCheckoutSession initializes a new Stripe Checkout session in payment mode.
// Stripe docs: https://stripe.com/docs/api/checkout/sessions/create
func (s *stripeAdapter) CreateCheckoutSession(ctx context.Context, in CreateCheckoutSessionInput) (CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Customer:   stripe.String(in.CustomerID),
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(in.SuccessURL),
		PaymentMethodTypes: stripe.StringSlice([]string{
			"card",
		}),
		AllowPromotionCodes: stripe.Bool(in.AllowPromotionCodes),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Quantity: stripe.Int64(in.LineItem.Quantity),
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency: stripe.String(in.LineItem.Currency),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name:        stripe.String(in.LineItem.Name),
						Description: stripe.String(in.LineItem.Description),
					},
					UnitAmount: stripe.Int64(in.LineItem.UnitAmount),
				},
			},
		},
	}
	if len(in.CancelURL) > 0 {
		params.CancelURL = stripe.String(in.CancelURL)
	}
	for k, v := range in.Metadata {
		params.AddMetadata(k, v)
	}
	params.Context = ctx

	session, err := s.API.CheckoutSessions.New(params)
	if err != nil {
		return CheckoutSession{}, wrapError("create checkout session", err)
	}
	return checkoutSession(session), nil
}

// GetCheckoutSession retrieves a Stripe Checkout session.
// Stripe docs: https://stripe.com/docs/api/checkout/sessions/retrieve
func (s *stripeAdapter) GetCheckoutSession(ctx context.Context, id string) (CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	session, err := s.API.CheckoutSessions.Get(id, params)
	if err != nil {
		return CheckoutSession{}, wrapError("get checkout session", err)
	}
	return checkoutSession(session), nil
}

// CreatePortalSession creates a customer portal session.
// Stripe docs: https://stripe.com/docs/api/customer_portal/sessions/create
func (s *stripeAdapter) CreatePortalSession(ctx context.Context, customerID, returnURL string) (PortalSession, error) {
	params := &stripe.BillingPortalSessionParams{
		Customer: stripe.String(customerID),
	}
	if len(returnURL) > 0 {
		params.ReturnURL = stripe.String(returnURL)
	}
	params.Context = ctx

	session, err := s.API.BillingPortalSessions.New(params)
	if err != nil {
		return PortalSession{}, wrapError("create portal session", err)
	}
	return PortalSession{
		ID:  session.ID,
		URL: session.URL,
	}, nil
}

// CreateSetupIntent creates a card setup intent kept for off-session usage.
// Stripe docs: https://stripe.com/docs/api/setup_intents/create
func (s *stripeAdapter) CreateSetupIntent(ctx context.Context, customerID string) (SetupIntent, error) {
	params := &stripe.SetupIntentParams{
		Customer:           stripe.String(customerID),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		Usage:              stripe.String(string(stripe.SetupIntentUsageOffSession)),
	}
	params.Context = ctx

	intent, err := s.API.SetupIntents.New(params)
	if err != nil {
		return SetupIntent{}, wrapError("create setup intent", err)
	}
	return SetupIntent{
		ID:           intent.ID,
		ClientSecret: intent.ClientSecret,
	}, nil
}

func checkoutSession(session *stripe.CheckoutSession) CheckoutSession {
	return CheckoutSession{
		ID:            session.ID,
		URL:           session.URL,
		PaymentStatus: string(session.PaymentStatus),
		Metadata:      session.Metadata,
	}
}

// wrapError converts errors reported by Stripe into *Error. Any other error is wrapped with the operation name.
func wrapError(op string, err error) error {
	var se *stripe.Error
	if errors.As(err, &se) {
		return &Error{
			Op:         op,
			Type:       string(se.Type),
			Code:       string(se.Code),
			Message:    se.Msg,
			StatusCode: se.HTTPStatusCode,
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

// NewStripeClient initializes a new Stripe client using the provided conf.Stripe config.
// Network retries are disabled, every gateway call is attempted once.
func NewStripeClient(cfg conf.Stripe, logger logrus.FieldLogger) *client.API {
	if logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		logger = l
	}
	var backendURL *string
	if len(cfg.URL) > 0 {
		backendURL = &cfg.URL
	}
	config := stripe.BackendConfig{
		URL:               backendURL,
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     logger,
	}
	return client.New(cfg.SecretKey, &stripe.Backends{
		API:     stripe.GetBackendWithConfig(stripe.APIBackend, &config),
		Connect: stripe.GetBackendWithConfig(stripe.ConnectBackend, &config),
		Uploads: stripe.GetBackendWithConfig(stripe.UploadsBackend, &config),
	})
}

// NewStripeAdapter initializes a new adapter using the Stripe client.
func NewStripeAdapter(cfg conf.Stripe, logger logrus.FieldLogger) Client {
	return &stripeAdapter{
		API: NewStripeClient(cfg, logger),
	}
}
