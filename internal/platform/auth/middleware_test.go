package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

var testSigningKey = []byte("test-secret-key-for-unit-tests-only")

func createTestToken(t *testing.T, claims Claims, key []byte) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenStr, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}
	return tokenStr
}

func validClaims(subject string, roles ...string) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		Roles: roles,
	}
}

func runMiddleware(t *testing.T, mw echo.MiddlewareFunc, authHeader string, handler echo.HandlerFunc) error {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/records", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath("/api/v1/records")
	if handler == nil {
		handler = func(c echo.Context) error { return c.String(http.StatusOK, "ok") }
	}
	return mw(handler)(c)
}

func assertStatus(t *testing.T, err error, code int) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected HTTP %d error, got nil", code)
	}
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T", err)
	}
	if httpErr.Code != code {
		t.Errorf("expected %d, got %d", code, httpErr.Code)
	}
}

func TestJWTMiddleware_MissingHeader(t *testing.T) {
	err := runMiddleware(t, JWTMiddleware(JWTConfig{SigningKey: testSigningKey}), "", nil)
	assertStatus(t, err, http.StatusUnauthorized)
}

func TestJWTMiddleware_InvalidFormat(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"no bearer prefix", "Token abc123"},
		{"missing token", "Bearer"},
		{"empty value", "Bearer "},
		{"basic auth", "Basic dXNlcjpwYXNz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := runMiddleware(t, JWTMiddleware(JWTConfig{SigningKey: testSigningKey}), tt.header, nil)
			assertStatus(t, err, http.StatusUnauthorized)
		})
	}
}

func TestJWTMiddleware_ValidToken(t *testing.T) {
	tokenStr := createTestToken(t, validClaims("user-123", RoleReader), testSigningKey)

	var handlerCalled bool
	err := runMiddleware(t, JWTMiddleware(JWTConfig{SigningKey: testSigningKey}), "Bearer "+tokenStr, func(c echo.Context) error {
		handlerCalled = true
		return c.String(http.StatusOK, "ok")
	})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !handlerCalled {
		t.Error("handler was not called")
	}
}

func TestJWTMiddleware_LowercaseScheme(t *testing.T) {
	tokenStr := createTestToken(t, validClaims("user-123"), testSigningKey)

	if err := runMiddleware(t, JWTMiddleware(JWTConfig{SigningKey: testSigningKey}), "bearer "+tokenStr, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestJWTMiddleware_RejectsBadTokens(t *testing.T) {
	expired := validClaims("user-123")
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))

	noExpiry := validClaims("user-123")
	noExpiry.ExpiresAt = nil

	noneToken, err := jwt.NewWithClaims(jwt.SigningMethodNone, validClaims("user-123")).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("failed to sign none token: %v", err)
	}

	tests := map[string]string{
		"expired":    createTestToken(t, expired, testSigningKey),
		"no expiry":  createTestToken(t, noExpiry, testSigningKey),
		"wrong key":  createTestToken(t, validClaims("user-123"), []byte("another-key")),
		"alg none":   noneToken,
		"not a jwt":  "abc.def.ghi",
		"garbage":    "garbage",
	}
	for name, tokenStr := range tests {
		t.Run(name, func(t *testing.T) {
			err := runMiddleware(t, JWTMiddleware(JWTConfig{SigningKey: testSigningKey}), "Bearer "+tokenStr, nil)
			assertStatus(t, err, http.StatusUnauthorized)
		})
	}
}

func TestJWTMiddleware_IssuerAndAudience(t *testing.T) {
	cfg := JWTConfig{SigningKey: testSigningKey, Issuer: "ccda-analyst", Audience: "records"}

	good := validClaims("user-1")
	good.Issuer = "ccda-analyst"
	good.Audience = jwt.ClaimStrings{"records"}
	if err := runMiddleware(t, JWTMiddleware(cfg), "Bearer "+createTestToken(t, good, testSigningKey), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	bad := validClaims("user-1")
	bad.Issuer = "someone-else"
	bad.Audience = jwt.ClaimStrings{"records"}
	err := runMiddleware(t, JWTMiddleware(cfg), "Bearer "+createTestToken(t, bad, testSigningKey), nil)
	assertStatus(t, err, http.StatusUnauthorized)
}

func TestJWTMiddleware_ClaimsExtraction(t *testing.T) {
	tokenStr := createTestToken(t, validClaims("user-456", RoleClinician, RoleIngestor), testSigningKey)

	err := runMiddleware(t, JWTMiddleware(JWTConfig{SigningKey: testSigningKey}), "Bearer "+tokenStr, func(c echo.Context) error {
		ctx := c.Request().Context()

		if uid := UserIDFromContext(ctx); uid != "user-456" {
			t.Errorf("expected user_id=user-456, got %s", uid)
		}
		roles := RolesFromContext(ctx)
		if len(roles) != 2 || roles[0] != RoleClinician || roles[1] != RoleIngestor {
			t.Errorf("expected roles=[clinician ingestor], got %v", roles)
		}
		return c.String(http.StatusOK, "ok")
	})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestJWTMiddleware_Skipper(t *testing.T) {
	cfg := JWTConfig{
		SigningKey: testSigningKey,
		Skipper:    func(c echo.Context) bool { return true },
	}

	if err := runMiddleware(t, JWTMiddleware(cfg), "", nil); err != nil {
		t.Fatalf("expected skipped request to pass, got %v", err)
	}
}

func TestDevAuthMiddleware_NoToken(t *testing.T) {
	err := runMiddleware(t, DevAuthMiddleware(JWTConfig{}), "", func(c echo.Context) error {
		ctx := c.Request().Context()
		if uid := UserIDFromContext(ctx); uid != "dev-user" {
			t.Errorf("expected user_id=dev-user, got %s", uid)
		}
		roles := RolesFromContext(ctx)
		if len(roles) != 1 || roles[0] != RoleAdmin {
			t.Errorf("expected roles=[admin], got %v", roles)
		}
		return c.String(http.StatusOK, "ok")
	})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDevAuthMiddleware_ValidatesProvidedToken(t *testing.T) {
	cfg := JWTConfig{SigningKey: testSigningKey}

	err := runMiddleware(t, DevAuthMiddleware(cfg), "Bearer garbage", nil)
	assertStatus(t, err, http.StatusUnauthorized)

	tokenStr := createTestToken(t, validClaims("user-9", RoleReader), testSigningKey)
	err = runMiddleware(t, DevAuthMiddleware(cfg), "Bearer "+tokenStr, func(c echo.Context) error {
		if roles := RolesFromContext(c.Request().Context()); len(roles) != 1 || roles[0] != RoleReader {
			t.Errorf("expected token roles, got %v", roles)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDevAuthMiddleware_TokenWithoutKey(t *testing.T) {
	err := runMiddleware(t, DevAuthMiddleware(JWTConfig{}), "Bearer anything", func(c echo.Context) error {
		if uid := UserIDFromContext(c.Request().Context()); uid != "dev-user" {
			t.Errorf("expected dev-user without a signing key, got %s", uid)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
