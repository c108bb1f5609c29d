package stock

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOf_FirstCandidateWins(t *testing.T) {
	assert.Equal(t, 5, Of(map[string]any{"stock": 5, "inventory": 99}))
	assert.Equal(t, 99, Of(map[string]any{"inventory": 99, "qty": 3}))
}

func TestOf_Defaults(t *testing.T) {
	tests := []struct {
		name   string
		record map[string]any
		want   int
	}{
		{"nil record", nil, 0},
		{"no candidates", map[string]any{"name": "ramen", "price": 12}, 0},
		{"all non numeric", map[string]any{"stock": "lots", "inventory": true}, 0},
		{"null is skipped", map[string]any{"stock": nil, "qty": 4}, 4},
		{"invalid falls through", map[string]any{"stock": "n/a", "inventory": "7"}, 7},
		{"empty string is not zero", map[string]any{"stock": "", "qty": 2}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Of(tt.record))
		})
	}
}

func TestOf_Coercion(t *testing.T) {
	tests := []struct {
		name string
		raw  any
		want int
	}{
		{"float floors", 3.9, 3},
		{"negative clamps", -4, 0},
		{"numeric string", " 12 ", 12},
		{"fractional string", "2.5", 2},
		{"json number", json.Number("8"), 8},
		{"int64", int64(6), 6},
		{"infinity is ignored", math.Inf(1), 0},
		{"nan is ignored", math.NaN(), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Of(map[string]any{"stock": tt.raw}))
		})
	}
}

func TestOf_Pure(t *testing.T) {
	record := map[string]any{"stock_quantity": "3"}
	assert.Equal(t, Of(record), Of(record))
	assert.Equal(t, "3", record["stock_quantity"])
}
