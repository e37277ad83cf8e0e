package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/clinic-appointments/internal/access"
	"github.com/iliyamo/clinic-appointments/internal/model"
	"github.com/iliyamo/clinic-appointments/internal/repository"
	"github.com/iliyamo/clinic-appointments/internal/service"
)

// Accounts is the part of service.AccountService the handlers call.
type Accounts interface {
	Register(ctx context.Context, in service.RegisterInput) (model.User, error)
	Login(ctx context.Context, email, password string) (model.User, service.TokenPair, error)
	Me(ctx context.Context, caller access.Identity) (model.User, error)
	UpdateMe(ctx context.Context, caller access.Identity, p service.UserPatch) (model.User, error)
	DeleteMe(ctx context.Context, caller access.Identity) error
	ListUsers(ctx context.Context, caller access.Identity, q repository.UserQuery) ([]model.User, int, error)
	GetUser(ctx context.Context, caller access.Identity, id string) (model.User, error)
	UpdateUser(ctx context.Context, caller access.Identity, id string, p service.UserPatch) (model.User, error)
	DeleteUser(ctx context.Context, caller access.Identity, id string) error
}

// Sessions is the refresh-token half of service.SessionManager.
type Sessions interface {
	Rotate(ctx context.Context, raw string) (service.TokenPair, error)
	Revoke(ctx context.Context, raw string) error
	RevokeAll(ctx context.Context, userID string) (int, error)
}

// AuthHandler serves /auth.
type AuthHandler struct {
	Accounts Accounts
	Sessions Sessions
}

func NewAuthHandler(a Accounts, s Sessions) *AuthHandler {
	if a == nil || s == nil {
		panic("nil dependency passed to NewAuthHandler")
	}
	return &AuthHandler{Accounts: a, Sessions: s}
}

// ----- DTOs -----

type registerReq struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}
type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
type refreshReq struct {
	RefreshToken string `json:"refreshToken"`
}
type loginResp struct {
	tokensResp
	User userResp `json:"user"`
}

// Register creates a PATIENT account.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	ctx, cancel := requestCtx(c)
	defer cancel()

	u, err := h.Accounts.Register(ctx, service.RegisterInput{Name: req.Name, Email: req.Email, Password: req.Password})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"user": toUser(u)})
}

// Login exchanges credentials for an access/refresh token pair.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		return badRequest(c, "email and password are required")
	}
	ctx, cancel := requestCtx(c)
	defer cancel()

	u, pair, err := h.Accounts.Login(ctx, req.Email, req.Password)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, loginResp{tokensResp: toTokens(pair), User: toUser(u)})
}

// Refresh rotates a refresh token.  The presented token is spent whether or
// not the client receives the response.
func (h *AuthHandler) Refresh(c echo.Context) error {
	raw, ok := bindRefresh(c)
	if !ok {
		return badRequest(c, "refreshToken is required")
	}
	ctx, cancel := requestCtx(c)
	defer cancel()

	pair, err := h.Sessions.Rotate(ctx, raw)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, toTokens(pair))
}

// Logout revokes one refresh token.  Unknown or already revoked tokens
// succeed too.
func (h *AuthHandler) Logout(c echo.Context) error {
	raw, ok := bindRefresh(c)
	if !ok {
		return badRequest(c, "refreshToken is required")
	}
	ctx, cancel := requestCtx(c)
	defer cancel()

	if err := h.Sessions.Revoke(ctx, raw); err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true})
}

// LogoutAll revokes every active refresh token of the caller.
func (h *AuthHandler) LogoutAll(c echo.Context) error {
	ctx, cancel := requestCtx(c)
	defer cancel()

	n, err := h.Sessions.RevokeAll(ctx, caller(c).ID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "revoked": n})
}

// bindRefresh reads the refreshToken body field.
func bindRefresh(c echo.Context) (string, bool) {
	var req refreshReq
	if err := c.Bind(&req); err != nil {
		return "", false
	}
	raw := strings.TrimSpace(req.RefreshToken)
	return raw, raw != ""
}
