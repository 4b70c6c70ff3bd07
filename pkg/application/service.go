package application

import (
	"context"
	"fmt"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"gitlab.com/ignitionrobotics/billing/metering/pkg/accounts"
	"gitlab.com/ignitionrobotics/billing/metering/pkg/adapter"
	"gitlab.com/ignitionrobotics/billing/metering/pkg/api"
	"io"
	"time"
)

const (
	// saveTimeout bounds storing a billing profile once an operation is done.
	saveTimeout = 5 * time.Second

	// defaultLeaseTTL is used for shared account locks when operations have no timeout.
	defaultLeaseTTL = time.Minute

	// leaseMargin is added to shared account lock lifetimes on top of the operation and save timeouts.
	leaseMargin = 5 * time.Second
)

// service contains the business logic to orchestrate usage-based billing against a payment gateway.
type service struct {
	// logger is used to log relevant information when running this service.
	logger logrus.FieldLogger

	// accounts holds the accounts the service operates on.
	accounts accounts.Repository

	// adapter contains an implementation of a payment service client.
	// E.g. Stripe, Paypal, etc.
	adapter adapter.Client

	// metrics is updated on every gateway call and business failure.
	metrics *Metrics

	// locks serializes operations on the same account.
	locks *accountLocker

	// timeout bounds each operation. Zero disables it.
	timeout time.Duration

	priceID         string
	currency        string
	successURL      string
	cancelURL       string
	portalReturnURL string
}

// withAccount loads the account identified by id and runs fn with it while holding the account lock.
// The account is saved back if fn changed its billing profile, even when fn failed afterwards.
func (s *service) withAccount(ctx context.Context, id string, fn func(ctx context.Context, acc *accounts.Account) error) error {
	unlock, err := s.lock(ctx, id)
	if err != nil {
		return err
	}
	defer unlock()

	acc, err := s.accounts.Get(ctx, id)
	if err != nil {
		return err
	}
	before := acc.Clone()

	opCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		opCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	fnErr := fn(opCtx, &acc)

	if billingChanged(before.Billing, acc.Billing) {
		// Gateway state has already changed, the profile is stored even if the caller went away.
		saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), saveTimeout)
		defer cancel()
		if err = s.accounts.Save(saveCtx, acc); err != nil {
			s.logger.WithField("account_id", id).WithError(err).Error("Failed to save billing profile")
			if fnErr == nil {
				return fmt.Errorf("failed to save account: %w", err)
			}
		}
	}
	return fnErr
}

// lock serializes operations on the given account. Repositories shared between processes are locked too.
func (s *service) lock(ctx context.Context, id string) (func(), error) {
	unlock := s.locks.Lock(id)
	locker, ok := s.accounts.(accounts.Locker)
	if !ok {
		return unlock, nil
	}
	release, err := locker.Lock(ctx, id, s.leaseTTL())
	if err != nil {
		unlock()
		s.logger.WithField("account_id", id).WithError(err).Error("Failed to lock account")
		return nil, err
	}
	return func() {
		release()
		unlock()
	}, nil
}

// leaseTTL returns how long a shared account lock lives if its holder never releases it.
func (s *service) leaseTTL() time.Duration {
	if s.timeout <= 0 {
		return defaultLeaseTTL
	}
	return s.timeout + saveTimeout + leaseMargin
}

// withTimeout returns a context bounded by the service timeout.
func (s *service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout > 0 {
		return context.WithTimeout(ctx, s.timeout)
	}
	return context.WithCancel(ctx)
}

func billingChanged(before, after *accounts.BillingProfile) bool {
	if before == nil || after == nil {
		return before != after
	}
	return *before != *after
}

// Service holds methods to interact with usage-based billing.
type Service interface {
	api.AccountsV1
	api.CustomersV1
	api.BillingV1
}

// Options contains a set of components needed to configure the billing service.
type Options struct {
	// Accounts holds the accounts repository.
	Accounts accounts.Repository

	// Adapter contains a payment adapter implementation such as Stripe.
	Adapter adapter.Client

	// Logger contains a logger mechanism. If set to nil, it defaults to a logger pointing to io.Discard.
	Logger logrus.FieldLogger

	// Metrics contains the collectors to update. If set to nil, metrics are registered in a private registry.
	Metrics *Metrics

	// Timeout bounds each billing operation, gateway calls included.
	Timeout time.Duration

	// PriceID is the metered price used when subscribing accounts.
	PriceID string

	// Currency is used for checkout sessions. Defaults to usd.
	Currency string

	// SuccessURL is where checkout sessions redirect once they're paid.
	SuccessURL string

	// CancelURL is where checkout sessions redirect when they're abandoned. Optional.
	CancelURL string

	// PortalReturnURL is where the billing portal links back to. Optional.
	PortalReturnURL string
}

// NewBillingService initializes a new Service implementation.
func NewBillingService(opts Options) Service {
	if opts.Logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		opts.Logger = l
	}
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics(prometheus.NewRegistry())
	}
	if len(opts.Currency) == 0 {
		opts.Currency = "usd"
	}
	return &service{
		logger:          opts.Logger,
		accounts:        opts.Accounts,
		adapter:         opts.Adapter,
		metrics:         opts.Metrics,
		locks:           newAccountLocker(),
		timeout:         opts.Timeout,
		priceID:         opts.PriceID,
		currency:        opts.Currency,
		successURL:      opts.SuccessURL,
		cancelURL:       opts.CancelURL,
		portalReturnURL: opts.PortalReturnURL,
	}
}
