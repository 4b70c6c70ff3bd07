package server

import (
	"context"
	"errors"
	"fmt"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"gitlab.com/ignitionrobotics/billing/metering/internal/conf"
	"gitlab.com/ignitionrobotics/billing/metering/pkg/accounts"
	"gitlab.com/ignitionrobotics/billing/metering/pkg/adapter"
	"gitlab.com/ignitionrobotics/billing/metering/pkg/application"
	"net/http"
	"os"
	"os/signal"
	"syscall"
)

// Server is the HTTP transport of the metering service.
type Server struct {
	config   conf.Config
	billing  application.Service
	logger   logrus.FieldLogger
	gatherer prometheus.Gatherer
	router   chi.Router
	http     *http.Server
}

// Options contains the components needed to initialize a Server.
type Options struct {
	// Config is the server configuration.
	Config conf.Config

	// Billing is the service requests are forwarded to.
	Billing application.Service

	// Logger is used to log requests and failures.
	Logger logrus.FieldLogger

	// Gatherer exposes metrics through the /metrics route. Optional.
	Gatherer prometheus.Gatherer
}

// NewServer initializes a new Server.
func NewServer(opts Options) *Server {
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.NewRegistry()
	}
	s := &Server{
		config:   opts.Config,
		billing:  opts.Billing,
		logger:   opts.Logger,
		gatherer: opts.Gatherer,
	}
	s.router = s.routes()
	s.http = &http.Server{
		Addr:    fmt.Sprintf(":%d", opts.Config.Port),
		Handler: s.router,
	}
	return s
}

// routes registers every HTTP route served by s.
func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Put("/accounts/{accountID}", s.RegisterAccount)
	r.Post("/accounts/{accountID}/portal-session", s.CreatePortalSession)
	r.Post("/accounts/{accountID}/setup-intent", s.CreateSetupIntent)
	r.Get("/accounts/{accountID}/cards", s.CheckPaymentMethods)
	r.Post("/accounts/{accountID}/subscription", s.AddUsageBasedBilling)
	r.Post("/accounts/{accountID}/credits", s.ReportUsage)
	r.Post("/accounts/{accountID}/checkout-sessions", s.CreateCheckoutSession)
	r.Post("/checkout-sessions/{sessionID}/verify", s.VerifyPayment)
	r.Get("/verify-payment", s.VerifyPayment)
	r.Handle("/metrics", s.Metrics())
	return r
}

// Handler returns the HTTP handler serving every route.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe starts listening for incoming requests. It returns nil once the server is shut down.
func (s *Server) ListenAndServe() error {
	s.logger.WithField("addr", s.http.Addr).Info("Listening for HTTP requests")
	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// Setup initializes the conf.Config to run the web server.
func Setup(logger logrus.FieldLogger) (conf.Config, error) {
	var cfg conf.Config
	logger.Info("Parsing config")
	if err := cfg.Parse(); err != nil {
		return conf.Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return conf.Config{}, err
	}
	return cfg, nil
}

// Run runs the web server using the given config until it fails or the process receives SIGINT or SIGTERM.
func Run(config conf.Config, logger logrus.FieldLogger) error {
	repository, closeRepository, err := newRepository(config, logger)
	if err != nil {
		return err
	}
	defer closeRepository()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	billing := application.NewBillingService(application.Options{
		Accounts:        repository,
		Adapter:         adapter.NewStripeAdapter(config.Stripe, logger),
		Logger:          logger,
		Metrics:         application.NewMetrics(registry),
		Timeout:         config.Timeout,
		PriceID:         config.Stripe.PriceID,
		Currency:        config.Checkout.Currency,
		SuccessURL:      config.Checkout.SuccessURL,
		CancelURL:       config.Checkout.CancelURL,
		PortalReturnURL: config.PortalReturnURL,
	})

	s := NewServer(Options{
		Config:   config,
		Billing:  billing,
		Logger:   logger,
		Gatherer: registry,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errs := make(chan error, 1)
	go func() {
		errs <- s.ListenAndServe()
	}()

	select {
	case err = <-errs:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting HTTP server down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.Timeout)
	defer cancel()
	if err = s.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errs
}

// newRepository returns the redis repository if one is configured, otherwise accounts are kept in memory.
func newRepository(config conf.Config, logger logrus.FieldLogger) (accounts.Repository, func(), error) {
	if len(config.RedisURL) == 0 {
		logger.Warn("No redis URL configured, accounts will be kept in memory")
		return accounts.NewMemoryRepository(), func() {}, nil
	}
	repository, err := accounts.NewRedisRepository(config.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	return repository, func() {
		if err := repository.Close(); err != nil {
			logger.WithError(err).Warn("Failed to close redis connection")
		}
	}, nil
}
