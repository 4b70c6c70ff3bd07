package api

import (
	"context"
	"errors"
	"math"
)

var (
	// ErrEmptyAccountID is returned when the account identifier provided is empty.
	ErrEmptyAccountID = errors.New("empty account id")

	// ErrEmptyEmail is returned when an account is registered without contact address.
	ErrEmptyEmail = errors.New("empty email")

	// ErrEmptySessionID is returned when the checkout session identifier provided is empty.
	ErrEmptySessionID = errors.New("empty session id")

	// ErrInvalidQuantity is returned when a non-positive usage quantity is reported.
	ErrInvalidQuantity = errors.New("invalid quantity")

	// ErrInvalidUnitPrice is returned when a checkout unit price rounds to zero minor units or exceeds MaxUnitPrice.
	ErrInvalidUnitPrice = errors.New("invalid unit price")

	// ErrInvalidCreditQuantity is returned when a non-positive amount of credits is requested.
	ErrInvalidCreditQuantity = errors.New("invalid credit quantity")
)

const (
	// MessageNoPaymentMethod is returned when a subscription is requested by an account without cards.
	MessageNoPaymentMethod = "No payment method found. Please add a card first."

	// MessageNoActiveSubscription is returned when usage is reported by an account without a subscription.
	MessageNoActiveSubscription = "No active subscription found. Please subscribe first."

	// MessagePaymentSucceeded is returned when a checkout session has been paid.
	MessagePaymentSucceeded = "Payment successful"

	// MessagePaymentFailed is returned when a checkout session hasn't been paid.
	MessagePaymentFailed = "Payment failed"

	// MaxUnitPrice is the largest credit bundle price accepted, in decimal currency units.
	// It matches the largest amount the gateway accepts for a single charge.
	MaxUnitPrice = 999999.99

	// MeterEventAPIRequest is the name of the meter event usage is reported with.
	MeterEventAPIRequest = "api.request"
)

// AccountsV1 registers the accounts billed by the service.
type AccountsV1 interface {
	// RegisterAccount creates an account or updates its contact details. The billing profile is preserved.
	RegisterAccount(ctx context.Context, req RegisterAccountRequest) (RegisterAccountResponse, error)
}

// RegisterAccountRequest is the input for the AccountsV1.RegisterAccount method.
type RegisterAccountRequest struct {
	AccountID string `json:"account_id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
}

// Validate validates the current request.
func (r RegisterAccountRequest) Validate() error {
	if len(r.AccountID) == 0 {
		return ErrEmptyAccountID
	}
	if len(r.Email) == 0 {
		return ErrEmptyEmail
	}
	return nil
}

// RegisterAccountResponse is the output of the AccountsV1.RegisterAccount method.
type RegisterAccountResponse struct {
	AccountID          string `json:"account_id"`
	Name               string `json:"name"`
	Email              string `json:"email"`
	CustomerID         string `json:"customer_id,omitempty"`
	SubscriptionID     string `json:"subscription_id,omitempty"`
	SubscriptionItemID string `json:"subscription_item_id,omitempty"`
}

// CustomersV1 resolves the identity of an account in the payment gateway.
type CustomersV1 interface {
	// ResolveCustomer returns the gateway customer of the given account, creating one if none is known
	// or the known one is no longer valid.
	ResolveCustomer(ctx context.Context, req ResolveCustomerRequest) (ResolveCustomerResponse, error)
}

// ResolveCustomerRequest is the input for the CustomersV1.ResolveCustomer method.
type ResolveCustomerRequest struct {
	AccountID string `json:"account_id"`
}

// Validate validates the current request.
func (r ResolveCustomerRequest) Validate() error {
	if len(r.AccountID) == 0 {
		return ErrEmptyAccountID
	}
	return nil
}

// ResolveCustomerResponse is the output of the CustomersV1.ResolveCustomer method.
type ResolveCustomerResponse struct {
	CustomerID string `json:"customer_id"`
}

// BillingV1 holds the methods that allow an account to interact with usage-based billing.
// Business failures are reported through the response values. Returned errors are unexpected failures.
type BillingV1 interface {
	// CreatePortalSession creates a self-service billing-portal session.
	CreatePortalSession(ctx context.Context, req CreatePortalSessionRequest) (CreatePortalSessionResponse, error)

	// CreateSetupIntent starts collecting a card for an account to be charged off-session.
	CreateSetupIntent(ctx context.Context, req CreateSetupIntentRequest) (CreateSetupIntentResponse, error)

	// CheckPaymentMethods lists the cards stored for an account.
	CheckPaymentMethods(ctx context.Context, req CheckPaymentMethodsRequest) (CheckPaymentMethodsResponse, error)

	// AddUsageBasedBilling subscribes an account to the metered price.
	AddUsageBasedBilling(ctx context.Context, req AddUsageBasedBillingRequest) (AddUsageBasedBillingResponse, error)

	// ReportUsage reports a usage quantity against the subscription of an account.
	ReportUsage(ctx context.Context, req ReportUsageRequest) (ReportUsageResponse, error)

	// CreateCheckoutSession creates a one-time payment session to buy a credit bundle.
	CreateCheckoutSession(ctx context.Context, req CreateCheckoutSessionRequest) (CreateCheckoutSessionResponse, error)

	// VerifyPayment checks the outcome of a checkout session.
	VerifyPayment(ctx context.Context, req VerifyPaymentRequest) (VerifyPaymentResponse, error)
}

// CreatePortalSessionRequest is the input for the BillingV1.CreatePortalSession method.
type CreatePortalSessionRequest struct {
	AccountID string `json:"account_id"`
}

// Validate validates the current request.
func (r CreatePortalSessionRequest) Validate() error {
	if len(r.AccountID) == 0 {
		return ErrEmptyAccountID
	}
	return nil
}

// CreatePortalSessionResponse is the output of the BillingV1.CreatePortalSession method.
type CreatePortalSessionResponse struct {
	PortalURL string `json:"portal_url"`
}

// CreateSetupIntentRequest is the input for the BillingV1.CreateSetupIntent method.
type CreateSetupIntentRequest struct {
	AccountID string `json:"account_id"`
}

// Validate validates the current request.
func (r CreateSetupIntentRequest) Validate() error {
	if len(r.AccountID) == 0 {
		return ErrEmptyAccountID
	}
	return nil
}

// CreateSetupIntentResponse is the output of the BillingV1.CreateSetupIntent method.
// ClientSecret is handed to the frontend to confirm the card with the gateway.
type CreateSetupIntentResponse struct {
	ClientSecret string `json:"client_secret"`
}

// CheckPaymentMethodsRequest is the input for the BillingV1.CheckPaymentMethods method.
type CheckPaymentMethodsRequest struct {
	AccountID string `json:"account_id"`
}

// Validate validates the current request.
func (r CheckPaymentMethodsRequest) Validate() error {
	if len(r.AccountID) == 0 {
		return ErrEmptyAccountID
	}
	return nil
}

// Card is a read-only summary of a stored card.
type Card struct {
	Last4    string `json:"last4"`
	Brand    string `json:"brand"`
	ExpMonth int64  `json:"exp_month"`
	ExpYear  int64  `json:"exp_year"`
}

// CheckPaymentMethodsResponse is the output of the BillingV1.CheckPaymentMethods method.
type CheckPaymentMethodsResponse struct {
	HasPaymentMethod bool   `json:"has_payment_method"`
	Cards            []Card `json:"cards"`
}

// AddUsageBasedBillingRequest is the input for the BillingV1.AddUsageBasedBilling method.
type AddUsageBasedBillingRequest struct {
	AccountID string `json:"account_id"`
}

// Validate validates the current request.
func (r AddUsageBasedBillingRequest) Validate() error {
	if len(r.AccountID) == 0 {
		return ErrEmptyAccountID
	}
	return nil
}

// Subscription is a metered subscription created for an account.
type Subscription struct {
	ID                  string `json:"id"`
	ItemID              string `json:"item_id"`
	CustomerID          string `json:"customer_id"`
	Status              string `json:"status"`
	LatestInvoiceID     string `json:"latest_invoice_id,omitempty"`
	PaymentIntentStatus string `json:"payment_intent_status,omitempty"`
}

// AddUsageBasedBillingResponse is the output of the BillingV1.AddUsageBasedBilling method.
type AddUsageBasedBillingResponse struct {
	OK           bool          `json:"ok"`
	Subscription *Subscription `json:"subscription,omitempty"`
	Error        string        `json:"error,omitempty"`
}

// ReportUsageRequest is the input for the BillingV1.ReportUsage method.
type ReportUsageRequest struct {
	AccountID string `json:"account_id"`
	Quantity  int64  `json:"quantity"`
}

// Validate validates the current request.
func (r ReportUsageRequest) Validate() error {
	if len(r.AccountID) == 0 {
		return ErrEmptyAccountID
	}
	if r.Quantity <= 0 {
		return ErrInvalidQuantity
	}
	return nil
}

// MeterEvent is a usage event accepted by the gateway.
// Fields the gateway didn't report are nil.
type MeterEvent struct {
	EventName  string  `json:"event_name"`
	Identifier string  `json:"identifier,omitempty"`
	Timestamp  *int64  `json:"timestamp"`
	Status     *string `json:"status"`
	Created    *int64  `json:"created"`
}

// ReportUsageResponse is the output of the BillingV1.ReportUsage method.
type ReportUsageResponse struct {
	OK         bool        `json:"ok"`
	MeterEvent *MeterEvent `json:"meter_event,omitempty"`
	Error      string      `json:"error,omitempty"`
}

// CreateCheckoutSessionRequest is the input for the BillingV1.CreateCheckoutSession method.
type CreateCheckoutSessionRequest struct {
	AccountID string `json:"account_id"`

	// UnitPrice is the price of the whole credit bundle in decimal currency units.
	UnitPrice float64 `json:"unit_price"`

	// CreditQuantity is the amount of credits granted once the session is paid.
	CreditQuantity int64 `json:"credit_quantity"`
}

// Validate validates the current request.
func (r CreateCheckoutSessionRequest) Validate() error {
	if len(r.AccountID) == 0 {
		return ErrEmptyAccountID
	}
	if math.IsNaN(r.UnitPrice) || r.UnitPrice > MaxUnitPrice || math.Round(r.UnitPrice*100) < 1 {
		return ErrInvalidUnitPrice
	}
	if r.CreditQuantity <= 0 {
		return ErrInvalidCreditQuantity
	}
	return nil
}

// CreateCheckoutSessionResponse is the output of the BillingV1.CreateCheckoutSession method.
// Either URL or Error is set.
type CreateCheckoutSessionResponse struct {
	URL   string `json:"url,omitempty"`
	Error string `json:"error,omitempty"`
}

// VerifyPaymentRequest is the input for the BillingV1.VerifyPayment method.
type VerifyPaymentRequest struct {
	SessionID string `json:"session_id"`
}

// Validate validates the current request.
func (r VerifyPaymentRequest) Validate() error {
	if len(r.SessionID) == 0 {
		return ErrEmptySessionID
	}
	return nil
}

// VerifyPaymentResponse is the output of the BillingV1.VerifyPayment method.
// Granting CreditsGranted to the account is responsibility of the caller.
type VerifyPaymentResponse struct {
	OK             bool    `json:"ok"`
	AccountID      string  `json:"account_id,omitempty"`
	CreditsGranted int64   `json:"credits_granted"`
	Price          float64 `json:"price"`
	Message        string  `json:"message"`
}
