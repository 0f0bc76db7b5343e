package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"orderflow/internal/config"

	"github.com/golang-jwt/jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func doRequest(t *testing.T, mw echo.MiddlewareFunc, authz string) (*httptest.ResponseRecorder, echo.Context) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := mw(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
	require.NoError(t, handler(c))
	return rec, c
}

func TestAuthJWT_ValidToken(t *testing.T) {
	cfg := config.Config{JWTSecret: testSecret}
	token := signToken(t, jwt.MapClaims{
		"sub":  int64(42),
		"role": "USER",
		"iat":  time.Now().Unix(),
		"exp":  time.Now().Add(time.Minute).Unix(),
	})

	rec, c := doRequest(t, AuthJWT(cfg), "Bearer "+token)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(42), c.Get(CtxUserIDKey))
	assert.Equal(t, "USER", c.Get(CtxUserRoleKey))
}

func TestAuthJWT_MissingHeader(t *testing.T) {
	cfg := config.Config{JWTSecret: testSecret}

	rec, _ := doRequest(t, AuthJWT(cfg), "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthJWT_WrongScheme(t *testing.T) {
	cfg := config.Config{JWTSecret: testSecret}

	rec, _ := doRequest(t, AuthJWT(cfg), "Basic abc")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthJWT_ExpiredToken(t *testing.T) {
	cfg := config.Config{JWTSecret: testSecret}
	token := signToken(t, jwt.MapClaims{
		"sub":  int64(42),
		"role": "USER",
		"exp":  time.Now().Add(-time.Minute).Unix(),
	})

	rec, _ := doRequest(t, AuthJWT(cfg), "Bearer "+token)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthJWT_WrongSecret(t *testing.T) {
	cfg := config.Config{JWTSecret: "other-secret"}
	token := signToken(t, jwt.MapClaims{
		"sub":  int64(42),
		"role": "USER",
		"exp":  time.Now().Add(time.Minute).Unix(),
	})

	rec, _ := doRequest(t, AuthJWT(cfg), "Bearer "+token)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminRoleGuard(t *testing.T) {
	e := echo.New()

	run := func(role interface{}) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		if role != nil {
			c.Set(CtxUserRoleKey, role)
		}
		handler := AdminRoleGuard()(func(c echo.Context) error {
			return c.NoContent(http.StatusOK)
		})
		require.NoError(t, handler(c))
		return rec
	}

	assert.Equal(t, http.StatusOK, run("ADMIN").Code)
	assert.Equal(t, http.StatusForbidden, run("USER").Code)
	assert.Equal(t, http.StatusUnauthorized, run(nil).Code)
}
