package handler

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/clinic-appointments/internal/repository"
	"github.com/iliyamo/clinic-appointments/internal/service"
)

// UserHandler serves /users: the caller's own account and, for admins, every
// account.
type UserHandler struct {
	Accounts Accounts
}

func NewUserHandler(a Accounts) *UserHandler {
	if a == nil {
		panic("nil accounts passed to NewUserHandler")
	}
	return &UserHandler{Accounts: a}
}

type userPatchReq struct {
	Name     *string `json:"name"`
	Email    *string `json:"email"`
	Password *string `json:"password"`
	Role     *string `json:"role"`
}

func (r userPatchReq) patch() service.UserPatch {
	return service.UserPatch{Name: trimmed(r.Name), Email: trimmed(r.Email), Password: r.Password, Role: trimmed(r.Role)}
}

// Me returns the caller's account.
func (h *UserHandler) Me(c echo.Context) error {
	ctx, cancel := requestCtx(c)
	defer cancel()

	u, err := h.Accounts.Me(ctx, caller(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, toUser(u))
}

// UpdateMe changes name, email or password of the caller.
func (h *UserHandler) UpdateMe(c echo.Context) error {
	var req userPatchReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	ctx, cancel := requestCtx(c)
	defer cancel()

	u, err := h.Accounts.UpdateMe(ctx, caller(c), req.patch())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, toUser(u))
}

// DeleteMe removes the caller's account.
func (h *UserHandler) DeleteMe(c echo.Context) error {
	ctx, cancel := requestCtx(c)
	defer cancel()

	if err := h.Accounts.DeleteMe(ctx, caller(c)); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// List pages through all accounts (ADMIN).
func (h *UserHandler) List(c echo.Context) error {
	page, limit, err := pageParams(c)
	if err != nil {
		return respondError(c, err)
	}
	q := repository.UserQuery{Search: strings.TrimSpace(c.QueryParam("search")), Page: page, Limit: limit}
	ctx, cancel := requestCtx(c)
	defer cancel()

	users, total, err := h.Accounts.ListUsers(ctx, caller(c), q)
	if err != nil {
		return respondError(c, err)
	}
	data := make([]userResp, 0, len(users))
	for _, u := range users {
		data = append(data, toUser(u))
	}
	page, limit = repository.ClampPage(page, limit)
	return c.JSON(http.StatusOK, echo.Map{"data": data, "meta": pageMeta{Page: page, Limit: limit, Total: total}})
}

// Get returns one account (ADMIN).
func (h *UserHandler) Get(c echo.Context) error {
	ctx, cancel := requestCtx(c)
	defer cancel()

	u, err := h.Accounts.GetUser(ctx, caller(c), c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, toUser(u))
}

// Update changes any field of an account, role included (ADMIN).
func (h *UserHandler) Update(c echo.Context) error {
	var req userPatchReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	ctx, cancel := requestCtx(c)
	defer cancel()

	u, err := h.Accounts.UpdateUser(ctx, caller(c), c.Param("id"), req.patch())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, toUser(u))
}

// Delete removes an account (ADMIN).
func (h *UserHandler) Delete(c echo.Context) error {
	ctx, cancel := requestCtx(c)
	defer cancel()

	if err := h.Accounts.DeleteUser(ctx, caller(c), c.Param("id")); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
