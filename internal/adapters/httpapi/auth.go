package httpapi

import (
	"context"
	"strconv"

	"benchcore/internal/core"

	"github.com/labstack/echo/v4"
)

// EditHeader carries the caller's edit capability. Requests without it, or
// with a value that does not parse as true, are read-only.
const EditHeader = "X-Bench-Edit"

type editKey struct{}

// withEdit records the edit capability of an HTTP request on its context.
func withEdit(ctx context.Context, allowed bool) context.Context {
	return context.WithValue(ctx, editKey{}, allowed)
}

// Authorizer returns the capability check for services behind this adapter.
// Contexts that did not come through the adapter, such as the background
// sweep loop, are allowed to edit.
func Authorizer() core.Authorizer {
	return core.AuthorizerFunc(func(ctx context.Context) bool {
		if allowed, ok := ctx.Value(editKey{}).(bool); ok {
			return allowed
		}
		return true
	})
}

func editCapability(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		allowed, _ := strconv.ParseBool(c.Request().Header.Get(EditHeader))
		req := c.Request()
		c.SetRequest(req.WithContext(withEdit(req.Context(), allowed)))
		return next(c)
	}
}
