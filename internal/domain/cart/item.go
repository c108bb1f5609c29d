package cart

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/Zhima-Mochi/foodcart/internal/domain/failure"
	"github.com/Zhima-Mochi/foodcart/internal/domain/stock"
	"github.com/shopspring/decimal"
)

// Item is a purchasable food record as received from the catalog.
type Item struct {
	ID    string
	Name  string
	Price decimal.Decimal
	// Record is the raw upstream record; stock is resolved from it.
	Record map[string]any
}

func (i Item) Stock() int { return stock.Of(i.Record) }

// ItemFromRecord builds an Item from a record of unknown shape.
func ItemFromRecord(record map[string]any) (Item, error) {
	if record == nil {
		return Item{}, failure.Validation("item is required")
	}
	id := firstString(record, "id", "food_id", "foodId")
	if id == "" {
		return Item{}, failure.Validation("item id is required")
	}
	price, err := priceOf(record["price"])
	if err != nil {
		return Item{}, failure.Wrap(failure.KindValidation, "item price is invalid", err)
	}
	if price.IsNegative() {
		return Item{}, failure.Validation("item price must be zero or greater")
	}
	return Item{
		ID:     id,
		Name:   firstString(record, "name", "title"),
		Price:  price,
		Record: cloneRecord(record),
	}, nil
}

func firstString(record map[string]any, keys ...string) string {
	for _, k := range keys {
		if s := stringOf(record[k]); s != "" {
			return s
		}
	}
	return ""
}

func stringOf(v any) string {
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case json.Number:
		return x.String()
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	default:
		return ""
	}
}

func priceOf(v any) (decimal.Decimal, error) {
	switch x := v.(type) {
	case nil:
		return decimal.Decimal{}, fmt.Errorf("price is missing")
	case float64:
		return decimal.NewFromFloat(x), nil
	case int:
		return decimal.NewFromInt(int64(x)), nil
	case int64:
		return decimal.NewFromInt(x), nil
	case json.Number:
		return decimal.NewFromString(x.String())
	case string:
		return decimal.NewFromString(strings.TrimSpace(x))
	default:
		return decimal.Decimal{}, fmt.Errorf("unsupported price type %T", v)
	}
}

func cloneRecord(record map[string]any) map[string]any {
	if record == nil {
		return nil
	}
	out := make(map[string]any, len(record))
	for k, v := range record {
		out[k] = v
	}
	return out
}
