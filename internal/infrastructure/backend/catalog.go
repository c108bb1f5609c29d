package backend

import (
	"context"
	"net/http"
	"net/url"
)

// Item returns the raw catalog record of one food.
func (c *Client) Item(ctx context.Context, token, itemID string) (map[string]any, error) {
	var resp map[string]any
	if err := c.do(ctx, http.MethodGet, "/foods/"+url.PathEscape(itemID), token, nil, &resp); err != nil {
		return nil, err
	}
	for _, k := range []string{"food", "data"} {
		if inner := object(resp, k); inner != nil {
			return inner, nil
		}
	}
	return resp, nil
}
