// Package pages answers whether a page exists. Page hierarchy and membership
// live in another service; this is the only question contentdb asks of it.
package pages

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
)

// ErrUnavailable wraps failures to reach the page service.
var ErrUnavailable = errors.New("page service unavailable")

// Directory reports whether a page exists.
type Directory interface {
	Exists(ctx context.Context, pageID string) (bool, error)
}

// AllowAll treats every page id as existing. Used when no page service is
// configured.
type AllowAll struct{}

// Exists always reports true
func (AllowAll) Exists(context.Context, string) (bool, error) {
	return true, nil
}

// HTTPDirectory asks a page service with HEAD {BaseURL}/pages/{id}.
type HTTPDirectory struct {
	BaseURL string
	Timeout time.Duration
}

// NewHTTPDirectory creates a directory client for baseURL
func NewHTTPDirectory(baseURL string) *HTTPDirectory {
	return &HTTPDirectory{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		Timeout: 2 * time.Second,
	}
}

// Exists maps 2xx to true and 404 to false. Anything else is ErrUnavailable.
func (d *HTTPDirectory) Exists(ctx context.Context, pageID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	agent := fiber.Head(d.BaseURL + "/pages/" + url.PathEscape(pageID)).Timeout(d.Timeout)
	code, _, errs := agent.Bytes()
	if len(errs) > 0 {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, errors.Join(errs...))
	}

	switch {
	case code >= 200 && code < 300:
		return true, nil
	case code == fiber.StatusNotFound:
		return false, nil
	}
	return false, fmt.Errorf("%w: status %d", ErrUnavailable, code)
}
