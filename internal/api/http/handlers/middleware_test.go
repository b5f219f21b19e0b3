package handlers

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itsupport/helpdesk/internal/observability"
	apperrors "github.com/itsupport/helpdesk/pkg/util"
)

func apiKeyApp(secret string) *fiber.App {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) (err error) {
		defer func() {
			if err != nil {
				domainErr := apperrors.ToDomainError(err)
				c.Status(domainErr.HTTPStatus)
				_ = c.JSON(fiber.Map{"error": fiber.Map{"code": domainErr.Code}})
				err = nil
			}
		}()
		return c.Next()
	})
	app.Get("/api/v1/stats", APIKeyMiddleware(secret), func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"ok": true})
	})
	return app
}

func TestAPIKeyMissing(t *testing.T) {
	app := apiKeyApp("topsecret")

	resp, err := app.Test(httptest.NewRequest("GET", "/api/v1/stats", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestAPIKeyWrong(t *testing.T) {
	app := apiKeyApp("topsecret")

	req := httptest.NewRequest("GET", "/api/v1/stats", nil)
	req.Header.Set("X-API-Key", "nope")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}

func TestAPIKeyHeader(t *testing.T) {
	app := apiKeyApp("topsecret")

	req := httptest.NewRequest("GET", "/api/v1/stats", nil)
	req.Header.Set("X-API-Key", "topsecret")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestAPIKeyQueryParam(t *testing.T) {
	app := apiKeyApp("topsecret")

	resp, err := app.Test(httptest.NewRequest("GET", "/api/v1/stats?api_key=topsecret", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestAPIKeyDisabled(t *testing.T) {
	app := apiKeyApp("")

	req := httptest.NewRequest("GET", "/api/v1/stats", nil)
	req.Header.Set("X-API-Key", "anything")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}

func TestErrorMiddlewareShapesResponse(t *testing.T) {
	app := fiber.New()
	metrics := observability.NewMetrics()
	app.Use(func(c *fiber.Ctx) (err error) {
		defer func() {
			if err != nil {
				domainErr := apperrors.ToDomainError(err)
				metrics.RecordError(c.Path(), c.Method(), domainErr.Code)
				c.Status(domainErr.HTTPStatus)
				_ = c.JSON(fiber.Map{"error": fiber.Map{"code": domainErr.Code, "message": domainErr.Message}})
				err = nil
			}
		}()
		return c.Next()
	})
	app.Get("/boom", func(c *fiber.Ctx) error {
		return apperrors.NewNotFound("ticket", nil)
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/boom", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	_, errors := metrics.Snapshot()
	assert.Equal(t, int64(1), errors["/boom|GET|NOT_FOUND"])
}
