package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/ehr/maternity/internal/platform/fhir"
)

// RequestTimeout sets a deadline on the request context. A handler still
// running when the deadline passes gets a 504 with an OperationOutcome body.
// A zero timeout disables the middleware.
func RequestTimeout(timeout time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		if timeout <= 0 {
			return next
		}
		return func(c echo.Context) error {
			ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
			defer cancel()
			c.SetRequest(c.Request().WithContext(ctx))

			done := make(chan error, 1)
			go func() {
				done <- next(c)
			}()

			select {
			case err := <-done:
				return err
			case <-ctx.Done():
				if !errors.Is(ctx.Err(), context.DeadlineExceeded) {
					return ctx.Err()
				}
				if c.Response().Committed {
					return nil
				}
				outcome := fhir.NewOperationOutcome(fhir.IssueSeverityError, fhir.IssueTypeTimeout,
					"request processing exceeded "+timeout.String())
				return c.JSON(http.StatusGatewayTimeout, outcome)
			}
		}
	}
}
