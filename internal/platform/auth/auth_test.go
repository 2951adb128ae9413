package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

func TestIssueAndParseRoundTrip(t *testing.T) {
	issuer := NewTokenIssuer("test-secret")
	id := uuid.New()

	token, err := issuer.Issue(id, RolePatient, "pat@example.com")
	if err != nil {
		t.Fatal(err)
	}

	claims, err := issuer.Parse(token)
	if err != nil {
		t.Fatal(err)
	}
	if claims.Subject != id.String() {
		t.Errorf("subject = %q, want %q", claims.Subject, id.String())
	}
	if claims.Role != RolePatient {
		t.Errorf("role = %q, want patient", claims.Role)
	}
	if claims.Email != "pat@example.com" {
		t.Errorf("email = %q", claims.Email)
	}
}

func TestParseRejectsWrongSecret(t *testing.T) {
	token, err := NewTokenIssuer("secret-a").Issue(uuid.New(), RoleDoctor, "dr@example.com")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := NewTokenIssuer("secret-b").Parse(token); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	if _, err := NewTokenIssuer("secret").Parse("not.a.token"); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func request(t *testing.T, header string) (echo.Context, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	issuer := NewTokenIssuer("test-secret")
	handler := Middleware(issuer)(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
	return c, handler(c)
}

func TestMiddlewareMissingHeader(t *testing.T) {
	_, err := request(t, "")
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", err)
	}
}

func TestMiddlewareBadFormat(t *testing.T) {
	_, err := request(t, "Basic abc")
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", err)
	}
}

func TestMiddlewareSetsContext(t *testing.T) {
	issuer := NewTokenIssuer("test-secret")
	id := uuid.New()
	token, err := issuer.Issue(id, RoleDoctor, "dr@example.com")
	if err != nil {
		t.Fatal(err)
	}

	c, err := request(t, "Bearer "+token)
	if err != nil {
		t.Fatal(err)
	}
	ctx := c.Request().Context()
	if got := UserIDFromContext(ctx); got != id.String() {
		t.Errorf("user id = %q, want %q", got, id.String())
	}
	if got := UserUUIDFromContext(ctx); got != id {
		t.Errorf("user uuid = %v, want %v", got, id)
	}
	if got := RoleFromContext(ctx); got != RoleDoctor {
		t.Errorf("role = %q, want doctor", got)
	}
}

func TestRequireRole(t *testing.T) {
	e := echo.New()
	handler := RequireRole(RoleDoctor)(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	// Doctor passes
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	c := e.NewContext(req, httptest.NewRecorder())
	ctx := c.Request().Context()
	c.SetRequest(c.Request().WithContext(contextWithRole(ctx, RoleDoctor)))
	if err := handler(c); err != nil {
		t.Fatalf("doctor rejected: %v", err)
	}

	// Patient forbidden
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	c = e.NewContext(req, httptest.NewRecorder())
	ctx = c.Request().Context()
	c.SetRequest(c.Request().WithContext(contextWithRole(ctx, RolePatient)))
	err := handler(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %v", err)
	}
}
