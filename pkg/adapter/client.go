package adapter

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrCustomerNotFound is returned when the gateway doesn't know the requested customer.
	ErrCustomerNotFound = errors.New("customer not found")

	// ErrCustomerDeleted is returned when the requested customer has been deleted in the gateway.
	ErrCustomerDeleted = errors.New("customer deleted")
)

// Error is an error reported by the payment gateway itself, such as a declined card or an invalid price.
// Transport failures are never returned as Error.
type Error struct {
	// Op is the adapter operation that failed.
	Op string
	// Type is the gateway error type. E.g. card_error, invalid_request_error.
	Type string
	// Code is the gateway error code. E.g. resource_missing, card_declined.
	Code string
	// Message is the human readable message reported by the gateway.
	Message string
	// StatusCode is the HTTP status code of the gateway response.
	StatusCode int
}

// Error implements error.
func (e *Error) Error() string {
	if len(e.Code) > 0 {
		return fmt.Sprintf("%s: %s (%s): %s", e.Op, e.Type, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Type, e.Message)
}

// Customer is a payer in the context of the payment gateway.
type Customer struct {
	ID    string
	Email string
	Name  string
}

// CreateCustomerInput is the input for Client.CreateCustomer.
type CreateCustomerInput struct {
	Email     string
	Name      string
	AccountID string
}

// Card is a card-type payment method stored for a customer.
type Card struct {
	Last4    string
	Brand    string
	ExpMonth int64
	ExpYear  int64
}

// Subscription is a recurring billing arrangement created in the gateway.
type Subscription struct {
	ID string
	// ItemID is the identifier of the first line item. It's empty if the gateway didn't return any item.
	ItemID     string
	CustomerID string
	Status     string
	// LatestInvoiceID and PaymentIntentStatus are filled from the expanded latest invoice, if present.
	LatestInvoiceID     string
	PaymentIntentStatus string
}

// MeterEventInput is the input for Client.CreateMeterEvent.
type MeterEventInput struct {
	EventName  string
	CustomerID string
	Value      int64
	// Identifier is a unique identifier used by the gateway to deduplicate events.
	Identifier string
}

// MeterEvent is a usage event as accepted by the gateway. Zero values mean the gateway didn't report the field.
type MeterEvent struct {
	EventName  string
	Identifier string
	Status     string
	Timestamp  int64
	Created    int64
}

// LineItem is a single ad-hoc priced line item of a checkout session.
type LineItem struct {
	Name        string
	Description string
	Currency    string
	// UnitAmount is expressed in minor currency units.
	UnitAmount int64
	Quantity   int64
}

// CreateCheckoutSessionInput is the input for Client.CreateCheckoutSession.
type CreateCheckoutSessionInput struct {
	CustomerID          string
	LineItem            LineItem
	SuccessURL          string
	CancelURL           string
	AllowPromotionCodes bool
	Metadata            map[string]string
}

// CheckoutSession is a one-time payment session hosted by the gateway.
type CheckoutSession struct {
	ID            string
	URL           string
	PaymentStatus string
	Metadata      map[string]string
}

// PortalSession is a self-service billing-portal session hosted by the gateway.
type PortalSession struct {
	ID  string
	URL string
}

// SetupIntent lets a customer attach a card for later off-session charges.
type SetupIntent struct {
	ID           string
	ClientSecret string
}

// Client wraps a payment service client such as Stripe to be used as an adapter.
type Client interface {
	// GetCustomer retrieves a customer. It returns ErrCustomerNotFound or ErrCustomerDeleted when the customer
	// can no longer be used.
	GetCustomer(ctx context.Context, id string) (Customer, error)

	// CreateCustomer creates a customer in the context of the payment service.
	CreateCustomer(ctx context.Context, in CreateCustomerInput) (Customer, error)

	// ListCards lists the card-type payment methods of the given customer.
	ListCards(ctx context.Context, customerID string) ([]Card, error)

	// CreateSubscription creates a subscription with a single line item for the given price.
	CreateSubscription(ctx context.Context, customerID, priceID string) (Subscription, error)

	// CreateMeterEvent reports a usage event.
	CreateMeterEvent(ctx context.Context, in MeterEventInput) (MeterEvent, error)

	// CreateCheckoutSession creates a one-time payment checkout session.
	CreateCheckoutSession(ctx context.Context, in CreateCheckoutSessionInput) (CheckoutSession, error)

	// GetCheckoutSession retrieves a checkout session.
	GetCheckoutSession(ctx context.Context, id string) (CheckoutSession, error)

	// CreatePortalSession creates a billing-portal session for the given customer.
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (PortalSession, error)

	// CreateSetupIntent creates a setup intent to collect a card for off-session usage.
	CreateSetupIntent(ctx context.Context, customerID string) (SetupIntent, error)
}
