package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/labstack/echo/v4"
)

// ServiceKeyMiddleware guards internal producer endpoints. Course, grading
// and forum services call these with a shared key instead of a user token.
type ServiceKeyMiddleware struct {
	serviceKey string
}

func NewServiceKeyMiddleware(serviceKey string) *ServiceKeyMiddleware {
	return &ServiceKeyMiddleware{
		serviceKey: serviceKey,
	}
}

func (m *ServiceKeyMiddleware) Authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if m.serviceKey == "" {
			return echo.NewHTTPError(http.StatusForbidden, "Service endpoints are disabled")
		}

		key := c.Request().Header.Get("X-Service-Key")
		if subtle.ConstantTimeCompare([]byte(key), []byte(m.serviceKey)) != 1 {
			return echo.NewHTTPError(http.StatusUnauthorized, "Invalid service key")
		}

		return next(c)
	}
}
