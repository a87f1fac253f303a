package rbac

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"empathy-ledger/internal/auth"

	"github.com/gin-gonic/gin"
)

func identityMW(id auth.Identity) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request = c.Request.WithContext(auth.WithIdentity(c.Request.Context(), id))
		c.Next()
	}
}

func TestRequireAnyRole_SuperAdminBypasses(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.GET("/x", identityMW(auth.Identity{UserID: "u", TenantID: "t", Role: RoleSuperAdmin}),
		RequireTenant(), RequireAnyRole(RoleStoryteller), func(c *gin.Context) {
			c.Status(200)
		})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	r.ServeHTTP(w, req)
	if w.Code != 200 {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestRequireAnyRole_HiddenRoleDeniedUnlessAllowed(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.GET("/x", identityMW(auth.Identity{UserID: "u", TenantID: "t", Role: RolePlatformService}),
		RequireTenant(), RequireAnyRole(RoleStoryteller), func(c *gin.Context) {
			c.Status(200)
		})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	r.ServeHTTP(w, req)
	if w.Code != 403 {
		t.Fatalf("expected 403, got %d", w.Code)
	}
}

func TestRequireAnyRole_TenantRequired(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.GET("/x", identityMW(auth.Identity{UserID: "u", Role: RoleStoryteller}),
		RequireTenant(), RequireAnyRole(RoleStoryteller), func(c *gin.Context) {
			c.Status(200)
		})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	r.ServeHTTP(w, req)
	if w.Code != 401 {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}
