package middlewares_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/geocoder89/chatauth/internal/actorctx"
	"github.com/geocoder89/chatauth/internal/domain/account"
	"github.com/geocoder89/chatauth/internal/http/middlewares"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeAuthenticator struct {
	authFn func(ctx context.Context, raw string) (account.Account, error)
}

func (f fakeAuthenticator) Authenticate(ctx context.Context, raw string) (account.Account, error) {
	return f.authFn(ctx, raw)
}

func newAuthRouter(a middlewares.Authenticator) *gin.Engine {
	r := gin.New()
	r.Use(middlewares.RequestID())

	mw := middlewares.NewAuthMiddleware(a)
	r.GET("/me", mw.RequireAuth(), func(c *gin.Context) {
		acc, ok := middlewares.AccountFromContext(c)
		if !ok {
			c.Status(http.StatusTeapot)
			return
		}

		id, _ := actorctx.AccountIDFrom(c.Request.Context())
		c.JSON(http.StatusOK, gin.H{"id": acc.ID, "ctxId": id, "ginId": c.GetString(middlewares.CtxAccountID)})
	})

	return r
}

func TestRequireAuth(t *testing.T) {
	ann := account.Account{ID: "acc-1", FullName: "Ann"}

	authn := fakeAuthenticator{authFn: func(ctx context.Context, raw string) (account.Account, error) {
		switch raw {
		case "good":
			return ann, nil
		case "broken-store":
			return account.Account{}, errors.New("db down")
		default:
			return account.Account{}, account.ErrUnauthenticated
		}
	}}
	r := newAuthRouter(authn)

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantCode   string
	}{
		{name: "valid", header: "Bearer good", wantStatus: http.StatusOK},
		{name: "missing header", header: "", wantStatus: http.StatusUnauthorized, wantCode: "unauthorized"},
		{name: "wrong scheme", header: "Basic good", wantStatus: http.StatusUnauthorized, wantCode: "unauthorized"},
		{name: "invalid token", header: "Bearer nope", wantStatus: http.StatusUnauthorized, wantCode: "unauthorized"},
		{name: "store failure", header: "Bearer broken-store", wantStatus: http.StatusInternalServerError, wantCode: "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			require.Equal(t, tt.wantStatus, w.Code, w.Body.String())

			var body map[string]any
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))

			if tt.wantCode == "" {
				assert.Equal(t, "acc-1", body["id"])
				assert.Equal(t, "acc-1", body["ctxId"])
				assert.Equal(t, "acc-1", body["ginId"])
				return
			}

			errBody, ok := body["error"].(map[string]any)
			require.True(t, ok)
			assert.Equal(t, tt.wantCode, errBody["code"])
			assert.NotEmpty(t, errBody["requestId"])
			assert.NotContains(t, w.Body.String(), "db down")
		})
	}
}

func TestRequestID_EchoesOrGenerates(t *testing.T) {
	r := gin.New()
	r.Use(middlewares.RequestID())
	r.GET("/x", func(c *gin.Context) { c.String(http.StatusOK, c.GetString(middlewares.CtxRequestID)) })

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("X-Request-Id", "req-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "req-123", w.Body.String())
	assert.Equal(t, "req-123", w.Header().Get("X-Request-Id"))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))
	assert.Equal(t, w.Header().Get("X-Request-Id"), w.Body.String())
}

func TestRequireJSON(t *testing.T) {
	r := gin.New()
	r.Use(middlewares.RequireJSON())
	r.POST("/x", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	req := httptest.NewRequest(http.MethodPost, "/x", strings.NewReader("a=b"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)

	req = httptest.NewRequest(http.MethodPost, "/x", strings.NewReader("{}"))
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestCORSMiddleware(t *testing.T) {
	r := gin.New()
	r.Use(middlewares.CORSMiddleware([]string{"https://chat.example.com"}))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "https://chat.example.com")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "https://chat.example.com", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Credentials"))

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}
