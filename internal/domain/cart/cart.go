package cart

import (
	"github.com/Zhima-Mochi/foodcart/internal/domain/stock"
	"github.com/shopspring/decimal"
)

// Line is one item held by one owner. A line always has 1 <= Quantity <= stock;
// a line that would drop to zero is removed instead.
type Line struct {
	ItemID    string          `json:"itemId"`
	OwnerID   string          `json:"ownerId"`
	Name      string          `json:"name,omitempty"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Quantity  int             `json:"quantity"`
	Item      map[string]any  `json:"item,omitempty"`
}

func (l Line) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Stock resolves the stock ceiling from the record stored with the line.
func (l Line) Stock() int { return stock.Of(l.Item) }

func (l Line) clone() Line {
	l.Item = cloneRecord(l.Item)
	return l
}

type AddOutcome string

const (
	AddCreated     AddOutcome = "created"
	AddIncremented AddOutcome = "incremented"
	AddAtCeiling   AddOutcome = "at_stock_ceiling"
	AddOutOfStock  AddOutcome = "out_of_stock"
)

// Changed reports whether the add mutated the cart.
func (o AddOutcome) Changed() bool { return o == AddCreated || o == AddIncremented }

type UpdateOutcome string

const (
	UpdateSet       UpdateOutcome = "updated"
	UpdateRemoved   UpdateOutcome = "removed"
	UpdateUnchanged UpdateOutcome = "unchanged"
	UpdateMissing   UpdateOutcome = "missing"
)

// Totals splits the price of a cart. Delivery fee and tax are fixed at zero
// until pricing policy for them exists.
type Totals struct {
	Subtotal    decimal.Decimal `json:"subtotal"`
	DeliveryFee decimal.Decimal `json:"deliveryFee"`
	Tax         decimal.Decimal `json:"tax"`
	Total       decimal.Decimal `json:"total"`
}

// Cart is the set of lines belonging to a single owner.
type Cart struct {
	OwnerID string
	Lines   []Line
}

// New builds the cart of ownerID, ignoring lines that belong to anyone else.
// Repeated lines for one item are merged into the first, capped at its stock
// when the stored record names one.
func New(ownerID string, lines []Line) *Cart {
	c := &Cart{OwnerID: ownerID}
	for _, l := range lines {
		if l.OwnerID != ownerID || l.Quantity <= 0 {
			continue
		}
		if i := c.index(l.ItemID); i >= 0 {
			merged := &c.Lines[i]
			merged.Quantity += l.Quantity
			if ceiling := merged.Stock(); ceiling > 0 && merged.Quantity > ceiling {
				merged.Quantity = ceiling
			}
			continue
		}
		c.Lines = append(c.Lines, l.clone())
	}
	return c
}

func (c *Cart) Clone() *Cart {
	return New(c.OwnerID, c.Lines)
}

func (c *Cart) IsEmpty() bool { return len(c.Lines) == 0 }

func (c *Cart) Line(itemID string) (Line, bool) {
	if i := c.index(itemID); i >= 0 {
		return c.Lines[i].clone(), true
	}
	return Line{}, false
}

// Add puts one more unit of item in the cart. It never exceeds the item's
// stock: an out-of-stock item or a line at the ceiling is left untouched.
func (c *Cart) Add(item Item) AddOutcome {
	ceiling := item.Stock()
	if ceiling <= 0 {
		return AddOutOfStock
	}
	if i := c.index(item.ID); i >= 0 {
		if c.Lines[i].Quantity >= ceiling {
			return AddAtCeiling
		}
		c.Lines[i].Quantity++
		return AddIncremented
	}
	c.Lines = append(c.Lines, Line{
		ItemID:    item.ID,
		OwnerID:   c.OwnerID,
		Name:      item.Name,
		UnitPrice: item.Price,
		Quantity:  1,
		Item:      cloneRecord(item.Record),
	})
	return AddCreated
}

// Remove deletes the line for itemID and reports whether one existed.
func (c *Cart) Remove(itemID string) bool {
	i := c.index(itemID)
	if i < 0 {
		return false
	}
	c.Lines = append(c.Lines[:i], c.Lines[i+1:]...)
	return true
}

// UpdateQuantity clamps requested into [0, ceiling]; zero removes the line.
// ceiling must be resolved by the caller at call time.
func (c *Cart) UpdateQuantity(itemID string, requested, ceiling int) UpdateOutcome {
	i := c.index(itemID)
	if i < 0 {
		return UpdateMissing
	}
	qty := requested
	if ceiling < 0 {
		ceiling = 0
	}
	if qty > ceiling {
		qty = ceiling
	}
	if qty <= 0 {
		c.Remove(itemID)
		return UpdateRemoved
	}
	if c.Lines[i].Quantity == qty {
		return UpdateUnchanged
	}
	c.Lines[i].Quantity = qty
	return UpdateSet
}

// Clear drops every line and returns how many there were.
func (c *Cart) Clear() int {
	n := len(c.Lines)
	c.Lines = nil
	return n
}

func (c *Cart) Total() decimal.Decimal {
	total := decimal.Zero
	for _, l := range c.Lines {
		total = total.Add(l.Subtotal())
	}
	return total
}

func (c *Cart) Totals() Totals {
	sub := c.Total()
	return Totals{
		Subtotal:    sub,
		DeliveryFee: decimal.Zero,
		Tax:         decimal.Zero,
		Total:       sub,
	}
}

func (c *Cart) index(itemID string) int {
	for i := range c.Lines {
		if c.Lines[i].ItemID == itemID {
			return i
		}
	}
	return -1
}
