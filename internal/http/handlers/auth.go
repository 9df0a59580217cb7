package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/geocoder89/chatauth/internal/actorctx"
	"github.com/geocoder89/chatauth/internal/domain/account"
	"github.com/geocoder89/chatauth/internal/service"
	"github.com/gin-gonic/gin"
)

type AccountService interface {
	Register(ctx context.Context, in account.RegisterInput) (service.Session, error)
	Login(ctx context.Context, in account.LoginInput) (service.Session, error)
	UpdateProfile(ctx context.Context, accountID string, in account.ProfileUpdate) (account.Profile, error)
}

type AuthHandler struct {
	accounts AccountService
}

func NewAuthHandler(accounts AccountService) *AuthHandler {
	return &AuthHandler{accounts: accounts}
}

// bcrypt at the default cost plus one store round trip fits well inside this
const credentialTimeout = 5 * time.Second

func (h *AuthHandler) SignUp(ctx *gin.Context) {
	var req account.RegisterInput

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), credentialTimeout)
	defer cancel()

	sess, err := h.accounts.Register(cctx, req)
	if err != nil {
		RespondServiceError(ctx, err)
		return
	}

	ctx.JSON(http.StatusCreated, sess)
}

func (h *AuthHandler) Login(ctx *gin.Context) {
	var req account.LoginInput

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), credentialTimeout)
	defer cancel()

	sess, err := h.accounts.Login(cctx, req)
	if err != nil {
		RespondServiceError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, sess)
}

// Me returns the account the auth middleware resolved for this request.
func (h *AuthHandler) Me(ctx *gin.Context) {
	a, ok := actorctx.AccountFrom(ctx.Request.Context())
	if !ok {
		RespondServiceError(ctx, account.ErrUnauthenticated)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"account": a.Profile()})
}

func (h *AuthHandler) UpdateProfile(ctx *gin.Context) {
	a, ok := actorctx.AccountFrom(ctx.Request.Context())
	if !ok {
		RespondServiceError(ctx, account.ErrUnauthenticated)
		return
	}

	var req account.ProfileUpdate

	if !BindJSON(ctx, &req) {
		return
	}

	// the uploader carries its own deadline
	p, err := h.accounts.UpdateProfile(ctx.Request.Context(), a.ID, req)
	if err != nil {
		RespondServiceError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"account": p})
}
