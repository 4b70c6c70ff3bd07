package accounts

import (
	"context"
	"sync"
)

var _ Repository = (*memoryRepository)(nil)

// memoryRepository is a Repository implementation that keeps accounts in memory.
type memoryRepository struct {
	lock     sync.RWMutex
	accounts map[string]Account
}

// Get returns a copy of the account identified by id.
func (r *memoryRepository) Get(_ context.Context, id string) (Account, error) {
	if len(id) == 0 {
		return Account{}, ErrEmptyAccountID
	}
	r.lock.RLock()
	defer r.lock.RUnlock()
	acc, ok := r.accounts[id]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return acc.Clone(), nil
}

// Save stores a copy of the given account.
func (r *memoryRepository) Save(_ context.Context, account Account) error {
	if len(account.ID) == 0 {
		return ErrEmptyAccountID
	}
	r.lock.Lock()
	defer r.lock.Unlock()
	r.accounts[account.ID] = account.Clone()
	return nil
}

// NewMemoryRepository initializes a new in-memory Repository filled with the given accounts.
func NewMemoryRepository(seed ...Account) Repository {
	r := &memoryRepository{
		accounts: make(map[string]Account, len(seed)),
	}
	for _, acc := range seed {
		if len(acc.ID) == 0 {
			continue
		}
		r.accounts[acc.ID] = acc.Clone()
	}
	return r
}
