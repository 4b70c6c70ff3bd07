package fake

import (
	"context"
	"github.com/stretchr/testify/mock"
	"gitlab.com/ignitionrobotics/billing/metering/pkg/adapter"
)

var _ adapter.Client = (*Adapter)(nil)

// Adapter is a fake implementation of adapter.Client.
type Adapter struct {
	mock.Mock
}

// GetCustomer mocks a GetCustomer call.
func (a *Adapter) GetCustomer(ctx context.Context, id string) (adapter.Customer, error) {
	args := a.Called(ctx, id)
	return args.Get(0).(adapter.Customer), args.Error(1)
}

// CreateCustomer mocks a CreateCustomer call.
func (a *Adapter) CreateCustomer(ctx context.Context, in adapter.CreateCustomerInput) (adapter.Customer, error) {
	args := a.Called(ctx, in)
	return args.Get(0).(adapter.Customer), args.Error(1)
}

// ListCards mocks a ListCards call.
func (a *Adapter) ListCards(ctx context.Context, customerID string) ([]adapter.Card, error) {
	args := a.Called(ctx, customerID)
	res, _ := args.Get(0).([]adapter.Card)
	return res, args.Error(1)
}

// CreateSubscription mocks a CreateSubscription call.
func (a *Adapter) CreateSubscription(ctx context.Context, customerID, priceID string) (adapter.Subscription, error) {
	args := a.Called(ctx, customerID, priceID)
	return args.Get(0).(adapter.Subscription), args.Error(1)
}

// CreateMeterEvent mocks a CreateMeterEvent call.
func (a *Adapter) CreateMeterEvent(ctx context.Context, in adapter.MeterEventInput) (adapter.MeterEvent, error) {
	args := a.Called(ctx, in)
	return args.Get(0).(adapter.MeterEvent), args.Error(1)
}

// CreateCheckoutSession mocks a CreateCheckoutSession call.
func (a *Adapter) CreateCheckoutSession(ctx context.Context, in adapter.CreateCheckoutSessionInput) (adapter.CheckoutSession, error) {
	args := a.Called(ctx, in)
	return args.Get(0).(adapter.CheckoutSession), args.Error(1)
}

// GetCheckoutSession mocks a GetCheckoutSession call.
func (a *Adapter) GetCheckoutSession(ctx context.Context, id string) (adapter.CheckoutSession, error) {
	args := a.Called(ctx, id)
	return args.Get(0).(adapter.CheckoutSession), args.Error(1)
}

// CreatePortalSession mocks a CreatePortalSession call.
func (a *Adapter) CreatePortalSession(ctx context.Context, customerID, returnURL string) (adapter.PortalSession, error) {
	args := a.Called(ctx, customerID, returnURL)
	return args.Get(0).(adapter.PortalSession), args.Error(1)
}

// CreateSetupIntent mocks a CreateSetupIntent call.
func (a *Adapter) CreateSetupIntent(ctx context.Context, customerID string) (adapter.SetupIntent, error) {
	args := a.Called(ctx, customerID)
	return args.Get(0).(adapter.SetupIntent), args.Error(1)
}
