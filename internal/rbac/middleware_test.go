package rbac

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"call-signaling/internal/auth"

	"github.com/gin-gonic/gin"
)

func serveAs(userID, role string, chain ...gin.HandlerFunc) int {
	gin.SetMode(gin.TestMode)

	handlers := []gin.HandlerFunc{func(c *gin.Context) {
		ctx := auth.WithIdentity(c.Request.Context(), userID, "d", role)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}}
	handlers = append(handlers, chain...)
	handlers = append(handlers, func(c *gin.Context) { c.Status(http.StatusOK) })

	r := gin.New()
	r.GET("/x", handlers...)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	return w.Code
}

func TestRequireAnyRole_SuperAdminBypasses(t *testing.T) {
	if code := serveAs("u", RoleSuperAdmin, RequireUser(), RequireAnyRole(RoleAdmin)); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
}

func TestRequireAnyRole_HiddenRoleDeniedUnlessAllowed(t *testing.T) {
	if code := serveAs("u", RoleService, RequireUser(), RequireAnyRole(RoleAdmin)); code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", code)
	}
	if code := serveAs("u", RoleService, RequireUser(), RequireAnyRole(RoleAdmin, RoleService)); code != http.StatusOK {
		t.Fatalf("expected 200 when explicitly allowed, got %d", code)
	}
}

func TestRequireAnyRole_PlainUserForbidden(t *testing.T) {
	if code := serveAs("u", RoleUser, RequireUser(), RequireAnyRole(RoleAdmin, RoleSupport)); code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", code)
	}
}

func TestRequireUser(t *testing.T) {
	if code := serveAs("", RoleAdmin, RequireUser(), RequireAnyRole(RoleAdmin)); code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", code)
	}
}
