package kream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/alejandrodnm/kreambot/internal/domain"
)

// PlaceBid implementa ports.BidSink. Un rechazo del marketplace (4xx o
// status "rejected") envuelve domain.ErrBidRejected.
func (c *Client) PlaceBid(ctx context.Context, productID, size string, price int64) error {
	u := fmt.Sprintf("%s/api/products/%s/bids", c.base, url.PathEscape(productID))

	body, err := c.post(ctx, u, bidRequest{Size: size, Price: price})
	if err != nil {
		var se *statusError
		if errors.As(err, &se) && se.code >= 400 && se.code < 500 && se.code != http.StatusTooManyRequests {
			return fmt.Errorf("kream.PlaceBid: %w: %s", domain.ErrBidRejected, se.Error())
		}
		return fmt.Errorf("kream.PlaceBid: %w", err)
	}

	if len(body) == 0 {
		return nil
	}
	var resp bidResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("kream.PlaceBid: decode response: %w", err)
	}
	if strings.EqualFold(resp.Status, "rejected") {
		return fmt.Errorf("kream.PlaceBid: %w: %s", domain.ErrBidRejected, resp.Message)
	}
	return nil
}
