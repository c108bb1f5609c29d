// Package stock resolves a canonical stock count from item records whose
// inventory field name is not consistent across upstream schemas.
package stock

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Fields lists the candidate inventory fields in priority order.
var Fields = []string{
	"stock",
	"stock_quantity",
	"stockQuantity",
	"available_quantity",
	"quantity_available",
	"inventory",
	"qty",
}

// Of returns the stock count of record: the first candidate field holding a
// finite number wins, floored and clamped at zero. Unknown stock is 0.
func Of(record map[string]any) int {
	for _, field := range Fields {
		raw, ok := record[field]
		if !ok || raw == nil {
			continue
		}
		v, ok := number(raw)
		if !ok {
			continue
		}
		return clamp(v)
	}
	return 0
}

func clamp(v float64) int {
	v = math.Floor(v)
	if v <= 0 {
		return 0
	}
	if v >= math.MaxInt32 {
		return math.MaxInt32
	}
	return int(v)
}

func number(raw any) (float64, bool) {
	var v float64
	switch n := raw.(type) {
	case float64:
		v = n
	case float32:
		v = float64(n)
	case int:
		v = float64(n)
	case int32:
		v = float64(n)
	case int64:
		v = float64(n)
	case uint:
		v = float64(n)
	case uint32:
		v = float64(n)
	case uint64:
		v = float64(n)
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		v = f
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		v = f
	default:
		return 0, false
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
