package cart

import (
	"context"
	"sync"

	"github.com/Zhima-Mochi/foodcart/internal/auth"
	domain "github.com/Zhima-Mochi/foodcart/internal/domain/cart"
	"github.com/shopspring/decimal"
)

// Store is the live cart of the active owner. It holds the owner's lines in
// memory and mirrors every successful mutation to the repository.
type Store struct {
	svc *Service

	mu      sync.Mutex
	session auth.Session
	cart    *domain.Cart
}

// Open loads the session owner's cart into a new Store.
func (s *Service) Open(ctx context.Context, session auth.Session) (*Store, error) {
	st := &Store{svc: s}
	if err := st.SwitchOwner(ctx, session); err != nil {
		return nil, err
	}
	return st, nil
}

// SwitchOwner reloads the store for a new session. With no owner the
// in-memory cart is emptied; persisted lines of every owner stay as they are.
func (st *Store) SwitchOwner(ctx context.Context, session auth.Session) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	if session.OwnerID == "" {
		st.session = auth.Session{}
		st.cart = domain.New("", nil)
		return nil
	}
	c, err := st.svc.Get(ctx, session)
	if err != nil {
		st.session = auth.Session{}
		st.cart = domain.New("", nil)
		return err
	}
	st.session = session
	st.cart = c
	return nil
}

func (st *Store) Session() auth.Session {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.session
}

// Cart returns a copy of the live cart.
func (st *Store) Cart() *domain.Cart {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.cart.Clone()
}

func (st *Store) Lines() []domain.Line {
	return st.Cart().Lines
}

func (st *Store) AddItem(ctx context.Context, record map[string]any) (domain.AddOutcome, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	c, outcome, err := st.svc.AddItem(ctx, st.session, record)
	if err != nil {
		return outcome, err
	}
	st.cart = c
	return outcome, nil
}

func (st *Store) RemoveItem(ctx context.Context, itemID string) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	c, err := st.svc.RemoveItem(ctx, st.session, itemID)
	if err != nil {
		return err
	}
	st.cart = c
	return nil
}

func (st *Store) UpdateQuantity(ctx context.Context, itemID string, requested int) (domain.UpdateOutcome, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	c, outcome, err := st.svc.UpdateQuantity(ctx, st.session, itemID, requested)
	if err != nil {
		return outcome, err
	}
	st.cart = c
	return outcome, nil
}

func (st *Store) ClearCart(ctx context.Context) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	c, err := st.svc.Clear(ctx, st.session)
	if err != nil {
		return err
	}
	st.cart = c
	return nil
}

func (st *Store) TotalPrice() decimal.Decimal {
	return st.Cart().Total()
}

func (st *Store) Totals() domain.Totals {
	return st.Cart().Totals()
}
