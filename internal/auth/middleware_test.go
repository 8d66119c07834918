package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func newProtectedRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()

	authed := r.Group("", UserAuth("secret", "attendify"))
	authed.GET("/me", func(c *gin.Context) {
		claims, _ := FromContext(c)
		c.JSON(http.StatusOK, gin.H{"sub": claims.Subject, "role": claims.Role})
	})
	authed.GET("/admin", RequireRole(RoleAdmin), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return r
}

func doRequest(r *gin.Engine, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestUserAuth(t *testing.T) {
	r := newProtectedRouter(t)

	t.Run("missing token", func(t *testing.T) {
		if w := doRequest(r, "/me", ""); w.Code != http.StatusUnauthorized {
			t.Errorf("status = %d; want 401", w.Code)
		}
	})

	t.Run("garbage token", func(t *testing.T) {
		if w := doRequest(r, "/me", "garbage"); w.Code != http.StatusUnauthorized {
			t.Errorf("status = %d; want 401", w.Code)
		}
	})

	t.Run("valid token", func(t *testing.T) {
		token, _, err := Issue("u1", RoleStudent, "Alice", "attendify", "secret", time.Hour)
		if err != nil {
			t.Fatal(err)
		}
		if w := doRequest(r, "/me", token); w.Code != http.StatusOK {
			t.Errorf("status = %d; want 200; body %s", w.Code, w.Body.String())
		}
	})

	t.Run("wrong issuer", func(t *testing.T) {
		token, _, err := Issue("u1", RoleStudent, "", "other", "secret", time.Hour)
		if err != nil {
			t.Fatal(err)
		}
		if w := doRequest(r, "/me", token); w.Code != http.StatusUnauthorized {
			t.Errorf("status = %d; want 401", w.Code)
		}
	})
}

func TestRequireRole(t *testing.T) {
	r := newProtectedRouter(t)

	student, _, err := Issue("u1", RoleStudent, "", "attendify", "secret", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if w := doRequest(r, "/admin", student); w.Code != http.StatusForbidden {
		t.Errorf("student on admin route: status = %d; want 403", w.Code)
	}

	admin, _, err := Issue("u2", RoleAdmin, "", "attendify", "secret", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if w := doRequest(r, "/admin", admin); w.Code != http.StatusOK {
		t.Errorf("admin on admin route: status = %d; want 200", w.Code)
	}
}
