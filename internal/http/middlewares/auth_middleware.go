package middlewares

import (
	"context"
	"errors"
	"net/http"

	"github.com/geocoder89/chatauth/internal/actorctx"
	"github.com/geocoder89/chatauth/internal/auth"
	"github.com/geocoder89/chatauth/internal/domain/account"
	"github.com/gin-gonic/gin"
)

// Keep this small interface so tests can fake it easily.
type Authenticator interface {
	Authenticate(ctx context.Context, rawToken string) (account.Account, error)
}

type AuthMiddleware struct {
	accounts Authenticator
}

func NewAuthMiddleware(accounts Authenticator) *AuthMiddleware {
	return &AuthMiddleware{accounts: accounts}
}

// RequireAuth resolves the bearer token to the current account on every
// request and threads it through the request context.
func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := auth.BearerToken(c.GetHeader("Authorization"))
		if !ok {
			abortUnauthorized(c, "Missing or invalid Authorization header")
			return
		}

		a, err := m.accounts.Authenticate(c.Request.Context(), raw)
		if err != nil {
			if errors.Is(err, account.ErrUnauthenticated) {
				abortUnauthorized(c, "Invalid or expired access token")
				return
			}

			reqID, _ := c.Get(CtxRequestID)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": gin.H{
					"code":      "internal_error",
					"message":   "Could not verify session",
					"requestId": reqID,
				},
			})
			return
		}

		c.Request = c.Request.WithContext(actorctx.WithAccount(c.Request.Context(), a))
		c.Set(CtxAccountID, a.ID)

		c.Next()
	}
}

func abortUnauthorized(c *gin.Context, message string) {
	reqID, _ := c.Get(CtxRequestID)
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error": gin.H{
			"code":      "unauthorized",
			"message":   message,
			"requestId": reqID,
		},
	})
}

// AccountFromContext returns the account resolved by RequireAuth.
func AccountFromContext(c *gin.Context) (account.Account, bool) {
	return actorctx.AccountFrom(c.Request.Context())
}
