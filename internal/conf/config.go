package conf

import (
	"errors"
	"github.com/caarlos0/env/v6"
	"net/url"
	"time"
)

// ErrInvalidURL is returned when a configured URL is not well-formed.
var ErrInvalidURL = errors.New("invalid URL")

// Stripe contains the needed config to interact with the stripe API.
type Stripe struct {
	// SecretKey is the key used to allow the stripe client use the stripe API.
	SecretKey string `env:"METERING_STRIPE_SECRET_KEY,required"`

	// PriceID is the metered price every usage-based subscription is created with.
	PriceID string `env:"METERING_STRIPE_PRICE_ID,required"`

	// URL is the backend stripe API url, only used for testing purposes.
	URL string `env:"METERING_STRIPE_URL"`
}

// Parse fills Stripe data from an external source.
func (c *Stripe) Parse() error {
	return env.Parse(c)
}

// Checkout contains the config used when creating one-time checkout sessions.
type Checkout struct {
	// SuccessURL is where the hosted checkout redirects once the payment is completed.
	// The {CHECKOUT_SESSION_ID} template is replaced by Stripe.
	SuccessURL string `env:"METERING_CHECKOUT_SUCCESS_URL" envDefault:"http://localhost:8000/verify-payment?session_id={CHECKOUT_SESSION_ID}"`

	// CancelURL is where the hosted checkout redirects when the user abandons it. Optional.
	CancelURL string `env:"METERING_CHECKOUT_CANCEL_URL"`

	// Currency holds the ISO 4217 currency value in lowercase format.
	Currency string `env:"METERING_CHECKOUT_CURRENCY" envDefault:"usd"`
}

// Config contains the needed config to start the Metering HTTP server.
type Config struct {
	// Stripe contains configuration for the stripe client.
	Stripe Stripe

	// Checkout contains configuration for credit bundle checkout sessions.
	Checkout Checkout

	// PortalReturnURL is the URL the billing portal links back to. Optional.
	PortalReturnURL string `env:"METERING_PORTAL_RETURN_URL"`

	// Port is the TCP port to listen to for incoming HTTP requests.
	Port uint `env:"METERING_HTTP_SERVER_PORT" envDefault:"80"`

	// Timeout is used as the amount of time a single billing operation may take before it fails due to timeout.
	Timeout time.Duration `env:"METERING_REQUEST_TIMEOUT" envDefault:"30s"`

	// RedisURL points to the redis instance holding accounts. When empty, accounts are kept in memory.
	RedisURL string `env:"METERING_REDIS_URL"`

	// LogLevel is the minimum level the service logs at.
	LogLevel string `env:"METERING_LOG_LEVEL" envDefault:"info"`
}

// Parse fills Config data from an external source.
func (c *Config) Parse() error {
	if err := c.Stripe.Parse(); err != nil {
		return err
	}
	return env.Parse(c)
}

// Validate validates the URLs present in the current config.
func (c Config) Validate() error {
	if err := validateURL(c.Checkout.SuccessURL); err != nil {
		return err
	}
	for _, raw := range []string{c.Checkout.CancelURL, c.PortalReturnURL, c.Stripe.URL} {
		if len(raw) == 0 {
			continue
		}
		if err := validateURL(raw); err != nil {
			return err
		}
	}
	return nil
}

// validateURL validates if a raw URL string is well-formed or not.
func validateURL(raw string) error {
	u, err := url.ParseRequestURI(raw)
	if err != nil {
		return err
	}
	if u.Scheme == "" || u.Host == "" {
		return ErrInvalidURL
	}
	return nil
}
