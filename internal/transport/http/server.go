// Package http provides the HTTP server of the reference generation backend.
package http

import (
	"crypto/subtle"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/johnmikel306/learntrack-sub002/internal/platform/logger"
	"github.com/johnmikel306/learntrack-sub002/internal/service"
	v1 "github.com/johnmikel306/learntrack-sub002/internal/transport/http/v1"
)

// NewServer creates the backend HTTP server. When apiToken is set every
// generator route requires "Authorization: Bearer <apiToken>".
func NewServer(svc *service.Service, apiToken string, log *logger.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	var mw []echo.MiddlewareFunc
	if apiToken != "" {
		mw = append(mw, bearerAuth(apiToken))
	}

	// Handlers
	v1Handler := v1.NewHandler(svc, log)

	// Register Routes
	v1Handler.RegisterRoutes(e, mw...)

	return e
}

func bearerAuth(token string) echo.MiddlewareFunc {
	return middleware.KeyAuthWithConfig(middleware.KeyAuthConfig{
		KeyLookup:  "header:" + echo.HeaderAuthorization,
		AuthScheme: "Bearer",
		Validator: func(key string, c echo.Context) (bool, error) {
			return subtle.ConstantTimeCompare([]byte(key), []byte(token)) == 1, nil
		},
	})
}
