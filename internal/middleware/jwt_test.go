package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func newJWTApp(secret string) *fiber.App {
	app := fiber.New()
	app.Use(JWTProtected(secret))
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"user_id": c.Locals("user_id"), "user_role": c.Locals("user_role")})
	})
	return app
}

func TestJWTProtectedStoresStringSubjectAndRole(t *testing.T) {
	app := newJWTApp("secret")
	token := signToken(t, "secret", jwt.MapClaims{
		"sub":  "7f7c6c1e-3c1a-4f7e-9d7e-1f1f1f1f1f1f",
		"role": "Judge",
		"exp":  time.Now().Add(time.Hour).Unix(),
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestJWTProtectedRejectsMissingOrInvalidTokens(t *testing.T) {
	app := newJWTApp("secret")

	cases := map[string]string{
		"missing":      "",
		"wrong scheme": "Basic abc",
		"bad secret":   "Bearer " + signToken(t, "other", jwt.MapClaims{"sub": "u1"}),
		"no subject":   "Bearer " + signToken(t, "secret", jwt.MapClaims{"role": "admin"}),
	}

	for name, header := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode, name)
	}
}

func TestNormalizeUserID(t *testing.T) {
	require.Equal(t, "abc", normalizeUserID(" abc "))
	require.Equal(t, "42", normalizeUserID(float64(42)))
	require.Equal(t, "", normalizeUserID(float64(-1)))
	require.Equal(t, "", normalizeUserID(1.5))
	require.Equal(t, "", normalizeUserID(true))
}

func TestRateLimitReturnsErrorEnvelope(t *testing.T) {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("user_id", "user-1")
		return c.Next()
	})
	app.Post("/", RateLimit("analysis", 1, time.Minute), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	first, err := app.Test(httptest.NewRequest(http.MethodPost, "/", nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, first.StatusCode)

	second, err := app.Test(httptest.NewRequest(http.MethodPost, "/", nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusTooManyRequests, second.StatusCode)
}
