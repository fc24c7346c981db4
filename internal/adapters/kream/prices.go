package kream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"

	"github.com/alejandrodnm/kreambot/internal/domain"
)

// FetchPrice implementa ports.PriceSource. Los errores se clasifican como
// *domain.TransientSourceError salvo la cancelación del contexto del caller.
func (c *Client) FetchPrice(ctx context.Context, productID, size string) (domain.PriceSnapshot, error) {
	u := fmt.Sprintf("%s/api/products/%s/prices?size=%s", c.base, url.PathEscape(productID), url.QueryEscape(size))

	body, err := c.get(ctx, u)
	if err != nil {
		if ctx.Err() != nil {
			return domain.PriceSnapshot{}, fmt.Errorf("kream.FetchPrice: %w", ctx.Err())
		}
		return domain.PriceSnapshot{}, domain.NewSourceError(classify(err), productID, size, err)
	}

	if len(bytes.TrimSpace(body)) == 0 {
		return domain.PriceSnapshot{}, domain.NewSourceError(domain.SourceNoData, productID, size, errors.New("empty response"))
	}

	var resp priceResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.PriceSnapshot{}, domain.NewSourceError(domain.SourceMalformed, productID, size,
			fmt.Errorf("decode response: %w", err))
	}
	return resp.toSnapshot(size), nil
}

// classify mapea un error de transporte o de status a su tipo de fallo.
func classify(err error) domain.SourceErrorKind {
	if isStatus(err, http.StatusNotFound) {
		return domain.SourceNoData
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.SourceTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return domain.SourceTimeout
	}
	return domain.SourceUnreachable
}
