package accounts

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrAccountNotFound is returned when the requested account doesn't exist in a Repository.
	ErrAccountNotFound = errors.New("account not found")

	// ErrEmptyAccountID is returned when an account without identifier is stored or requested.
	ErrEmptyAccountID = errors.New("empty account id")
)

// BillingProfile holds the identifiers of an account in the context of the payment gateway.
//
// SubscriptionID and SubscriptionItemID are only meaningful once CustomerID is set,
// and they are always written together.
type BillingProfile struct {
	// CustomerID is the gateway customer identifier.
	CustomerID string `json:"customer_id,omitempty"`

	// SubscriptionID is the gateway identifier of the metered subscription.
	SubscriptionID string `json:"subscription_id,omitempty"`

	// SubscriptionItemID is the identifier of the metered line item of SubscriptionID.
	SubscriptionItemID string `json:"subscription_item_id,omitempty"`
}

// HasSubscription returns true if the profile carries an active subscription item.
func (p *BillingProfile) HasSubscription() bool {
	return p != nil && len(p.SubscriptionItemID) > 0
}

// SetSubscription sets both subscription identifiers. Nothing is written unless both values are present.
func (p *BillingProfile) SetSubscription(subscriptionID, itemID string) bool {
	if p == nil || len(subscriptionID) == 0 || len(itemID) == 0 {
		return false
	}
	p.SubscriptionID = subscriptionID
	p.SubscriptionItemID = itemID
	return true
}

// Account is an internal user of the credits-consuming product.
type Account struct {
	// ID is the internal account identifier.
	ID string `json:"id"`

	// Name is the display name of the account.
	Name string `json:"name"`

	// Email is the contact address of the account.
	Email string `json:"email"`

	// Billing is the optional billing profile owned by this account. Accounts without a billing profile
	// can still interact with the gateway, but gateway identifiers are not written back to them.
	Billing *BillingProfile `json:"billing,omitempty"`
}

// Clone returns a deep copy of the account.
func (a Account) Clone() Account {
	if a.Billing != nil {
		b := *a.Billing
		a.Billing = &b
	}
	return a
}

// Repository persists accounts. Implementations must return copies, callers own the returned values.
type Repository interface {
	// Get returns the account identified by id. It returns ErrAccountNotFound if there's no such account.
	Get(ctx context.Context, id string) (Account, error)

	// Save creates or replaces the given account.
	Save(ctx context.Context, account Account) error
}

// Locker is implemented by repositories shared between processes. It guards an account across every process using
// the same storage.
type Locker interface {
	// Lock blocks until the account lock is acquired or ctx is done. The lock expires after ttl if it's never
	// released. The returned func releases it.
	Lock(ctx context.Context, id string, ttl time.Duration) (func(), error)
}
