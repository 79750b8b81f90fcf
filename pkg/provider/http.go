package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethpandaops/gpxenrich/pkg/query"
	"github.com/gofiber/fiber/v3/client"
)

// StatusError is returned for non-2xx responses. query.Classify reads the
// code through StatusCode.
type StatusError struct {
	Provider string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: unexpected status %d", e.Provider, e.Code)
	}

	return fmt.Sprintf("%s: unexpected status %d: %s", e.Provider, e.Code, e.Body)
}

// StatusCode returns the HTTP status.
func (e *StatusError) StatusCode() int {
	return e.Code
}

const maxErrorBody = 256

// httpClient is the shared request plumbing of the adapters.
type httpClient struct {
	name      string
	userAgent string
	client    *client.Client
}

func newHTTPClient(name, userAgent string) *httpClient {
	return &httpClient{
		name:      name,
		userAgent: userAgent,
		client:    client.New(),
	}
}

// do sends a request built from cfg and decodes a JSON response into out.
func (h *httpClient) do(ctx context.Context, method, url string, cfg client.Config, out any) error {
	cfg.Ctx = ctx
	cfg.UserAgent = h.userAgent

	if cfg.Header == nil {
		cfg.Header = map[string]string{}
	}

	cfg.Header["Accept"] = "application/json"

	resp, err := h.client.Custom(url, method, cfg)
	if err != nil {
		if errors.Is(err, client.ErrTimeoutOrCancel) && ctx.Err() == nil {
			return fmt.Errorf("%s: %w: %w", h.name, query.ErrTimeout, err)
		}

		if ctx.Err() != nil {
			return fmt.Errorf("%s: %w", h.name, ctx.Err())
		}

		return fmt.Errorf("%s: %w: %w", h.name, query.ErrTransient, err)
	}
	defer resp.Close()

	if code := resp.StatusCode(); code < 200 || code > 299 {
		body := resp.String()
		if len(body) > maxErrorBody {
			body = body[:maxErrorBody]
		}

		return &StatusError{Provider: h.name, Code: code, Body: body}
	}

	if err := resp.JSON(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", h.name, err)
	}

	return nil
}
