package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Zhima-Mochi/foodcart/internal/application"
	"github.com/Zhima-Mochi/foodcart/internal/auth"
	domain "github.com/Zhima-Mochi/foodcart/internal/domain/cart"
	"github.com/Zhima-Mochi/foodcart/internal/domain/failure"
	"github.com/Zhima-Mochi/foodcart/internal/domain/stock"
	"github.com/Zhima-Mochi/foodcart/internal/observability"

	"go.opentelemetry.io/otel/attribute"
)

const (
	cartService = "cart-service"

	useCaseGet    = "cart.get"
	useCaseAdd    = "cart.add_item"
	useCaseRemove = "cart.remove_item"
	useCaseUpdate = "cart.update_quantity"
	useCaseClear  = "cart.clear"

	catalogPeer     = "backend"
	catalogEndpoint = "GET /foods/{id}"
)

// Catalog returns the current record of an item so stock can be re-resolved
// at the moment of a quantity change.
type Catalog interface {
	Item(ctx context.Context, token, itemID string) (map[string]any, error)
}

// Service runs cart use cases for an explicit owner.
type Service struct {
	repo    domain.Repository
	catalog Catalog
	probe   *application.Probe

	mutations observability.Counter // cart_mutations_total{op,outcome}
}

// NewService wires the cart use cases. catalog may be nil, in which case
// quantity updates use the record stored on the line.
func NewService(repo domain.Repository, catalog Catalog, tel observability.Observability) *Service {
	if tel == nil {
		tel = observability.Nop()
	}
	return &Service{
		repo:      repo,
		catalog:   catalog,
		probe:     application.NewProbe(tel, cartService),
		mutations: tel.Metrics().Counter(observability.MCartMutations),
	}
}

func ownerOf(s auth.Session) (string, error) {
	if !s.Authenticated() {
		return "", failure.ErrUnauthenticated
	}
	return s.OwnerID, nil
}

// Get returns the owner's cart.
func (s *Service) Get(ctx context.Context, session auth.Session) (_ *domain.Cart, err error) {
	ctx, run := s.probe.Start(ctx, useCaseGet, "GetCart", attribute.String("cart.owner_id", session.OwnerID))
	defer func() { run.End(err) }()

	owner, err := ownerOf(session)
	if err != nil {
		run.Fail("UNAUTHENTICATED")
		return nil, err
	}
	c, err := s.repo.Load(ctx, owner)
	if err != nil {
		run.Fail("REPO_LOAD_FAILED")
		return nil, fmt.Errorf("cart: load: %w", err)
	}
	run.With(observability.F("lines", len(c.Lines)))
	return c, nil
}

// AddItem adds one unit of the item described by record. Adding an item that
// is out of stock or already at its stock ceiling is a silent no-op: the
// outcome says so but no error is returned.
func (s *Service) AddItem(ctx context.Context, session auth.Session, record map[string]any) (_ *domain.Cart, outcome domain.AddOutcome, err error) {
	ctx, run := s.probe.Start(ctx, useCaseAdd, "AddItem", attribute.String("cart.owner_id", session.OwnerID))
	defer func() {
		s.countMutation("add", string(outcome), err)
		run.End(err)
	}()

	owner, err := ownerOf(session)
	if err != nil {
		run.Fail("UNAUTHENTICATED")
		run.Logger().Warn("cart_mutation_unauthenticated", observability.F("op", "add"))
		return nil, "", err
	}
	item, err := domain.ItemFromRecord(record)
	if err != nil {
		run.Fail("ITEM_INVALID")
		return nil, "", err
	}
	run.Span().SetAttributes(attribute.String("cart.item_id", item.ID))

	c, err := s.repo.Mutate(ctx, owner, func(c *domain.Cart) error {
		outcome = c.Add(item)
		if !outcome.Changed() {
			return domain.ErrNoChange
		}
		return nil
	})
	if err != nil {
		run.Fail("REPO_MUTATE_FAILED")
		return nil, outcome, fmt.Errorf("cart: add item: %w", err)
	}
	if !outcome.Changed() {
		run.Note(string(outcome))
		run.Logger().Info("cart_add_ignored",
			observability.F("item_id", item.ID),
			observability.F("reason", string(outcome)),
			observability.F("stock", item.Stock()),
		)
	}
	return c, outcome, nil
}

// RemoveItem deletes the owner's line for itemID; an absent line is a no-op.
func (s *Service) RemoveItem(ctx context.Context, session auth.Session, itemID string) (_ *domain.Cart, err error) {
	ctx, run := s.probe.Start(ctx, useCaseRemove, "RemoveItem",
		attribute.String("cart.owner_id", session.OwnerID),
		attribute.String("cart.item_id", itemID),
	)
	removed := false
	defer func() {
		outcome := "removed"
		if !removed {
			outcome = "missing"
		}
		s.countMutation("remove", outcome, err)
		run.End(err)
	}()

	owner, err := ownerOf(session)
	if err != nil {
		run.Fail("UNAUTHENTICATED")
		run.Logger().Warn("cart_mutation_unauthenticated", observability.F("op", "remove"))
		return nil, err
	}
	c, err := s.repo.Mutate(ctx, owner, func(c *domain.Cart) error {
		if removed = c.Remove(itemID); !removed {
			return domain.ErrNoChange
		}
		return nil
	})
	if err != nil {
		run.Fail("REPO_MUTATE_FAILED")
		return nil, fmt.Errorf("cart: remove item: %w", err)
	}
	return c, nil
}

// UpdateQuantity sets the line quantity clamped to [0, stock]. Stock is
// resolved at call time from the catalog when one is configured, and from the
// record stored on the line otherwise or when the catalog has no entry.
func (s *Service) UpdateQuantity(ctx context.Context, session auth.Session, itemID string, requested int) (_ *domain.Cart, outcome domain.UpdateOutcome, err error) {
	ctx, run := s.probe.Start(ctx, useCaseUpdate, "UpdateQuantity",
		attribute.String("cart.owner_id", session.OwnerID),
		attribute.String("cart.item_id", itemID),
		attribute.Int("cart.requested_quantity", requested),
	)
	defer func() {
		s.countMutation("update", string(outcome), err)
		run.End(err)
	}()

	owner, err := ownerOf(session)
	if err != nil {
		run.Fail("UNAUTHENTICATED")
		run.Logger().Warn("cart_mutation_unauthenticated", observability.F("op", "update"))
		return nil, "", err
	}

	current, err := s.repo.Load(ctx, owner)
	if err != nil {
		run.Fail("REPO_LOAD_FAILED")
		return nil, "", fmt.Errorf("cart: load: %w", err)
	}
	if _, ok := current.Line(itemID); !ok {
		outcome = domain.UpdateMissing
		run.Note(string(outcome))
		return current, outcome, nil
	}

	fresh := -1
	if s.catalog != nil {
		start := time.Now()
		record, cerr := s.catalog.Item(ctx, session.Token, itemID)
		s.probe.External(catalogPeer, catalogEndpoint, start, cerr)
		switch {
		case cerr == nil:
			fresh = stock.Of(record)
		case errors.Is(cerr, failure.ErrNotFound):
			// no catalog entry to read; the stored record still bounds the line
			run.Logger().Warn("cart_catalog_item_missing", observability.F("item_id", itemID))
		default:
			run.Fail("CATALOG_LOOKUP_FAILED")
			return nil, "", fmt.Errorf("cart: resolve stock: %w", cerr)
		}
	}

	c, err := s.repo.Mutate(ctx, owner, func(c *domain.Cart) error {
		line, ok := c.Line(itemID)
		if !ok {
			outcome = domain.UpdateMissing
			return domain.ErrNoChange
		}
		ceiling := fresh
		if ceiling < 0 {
			ceiling = line.Stock()
		}
		outcome = c.UpdateQuantity(itemID, requested, ceiling)
		if outcome == domain.UpdateUnchanged {
			return domain.ErrNoChange
		}
		return nil
	})
	if err != nil {
		run.Fail("REPO_MUTATE_FAILED")
		return nil, outcome, fmt.Errorf("cart: update quantity: %w", err)
	}
	run.Note(string(outcome))
	return c, outcome, nil
}

// Clear removes only the owner's lines. Clearing an empty cart is a no-op.
// Only the owner id is required, so background settlement can clear too.
func (s *Service) Clear(ctx context.Context, session auth.Session) (_ *domain.Cart, err error) {
	ctx, run := s.probe.Start(ctx, useCaseClear, "ClearCart", attribute.String("cart.owner_id", session.OwnerID))
	cleared := 0
	defer func() {
		outcome := "cleared"
		if cleared == 0 {
			outcome = "empty"
		}
		s.countMutation("clear", outcome, err)
		run.End(err)
	}()

	if session.OwnerID == "" {
		run.Fail("UNAUTHENTICATED")
		return nil, failure.ErrUnauthenticated
	}
	c, err := s.repo.Mutate(ctx, session.OwnerID, func(c *domain.Cart) error {
		if cleared = c.Clear(); cleared == 0 {
			return domain.ErrNoChange
		}
		return nil
	})
	if err != nil {
		run.Fail("REPO_MUTATE_FAILED")
		return nil, fmt.Errorf("cart: clear: %w", err)
	}
	run.With(observability.F("lines_cleared", cleared))
	return c, nil
}

func (s *Service) countMutation(op, outcome string, err error) {
	if err != nil {
		outcome = "error"
	}
	s.mutations.Add(1,
		observability.L("op", op),
		observability.L("outcome", outcome),
	)
}
