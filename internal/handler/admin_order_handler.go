package handler

import (
	"net/http"

	"marketplace/internal/domain/model"
	"marketplace/internal/middleware"
	repo "marketplace/internal/repository"
	"marketplace/internal/usecase"

	"github.com/labstack/echo/v4"
)

type AdminOrderHandler struct {
	uc *usecase.AdminOrderUsecase
}

func NewAdminOrderHandler(uc *usecase.AdminOrderUsecase) *AdminOrderHandler {
	return &AdminOrderHandler{uc: uc}
}

func (h *AdminOrderHandler) RegisterRoutes(e *echo.Echo, auth echo.MiddlewareFunc) {
	admin := e.Group("/admin")
	admin.Use(auth)
	admin.Use(middleware.RoleGuard(model.RoleAdmin))

	admin.GET("/orders", h.list)
	admin.GET("/orders/stats", h.stats)
	admin.GET("/orders/:id/audit-logs", h.auditLogs)
}

func parseAdminFilter(c echo.Context) (repo.AdminOrderListFilter, string) {
	page, ok := queryInt(c, "page", 1)
	if !ok {
		return repo.AdminOrderListFilter{}, "invalid page"
	}
	limit, ok := queryInt(c, "limit", 50)
	if !ok {
		return repo.AdminOrderListFilter{}, "invalid limit"
	}
	userID, ok := queryInt64Ptr(c, "user_id")
	if !ok {
		return repo.AdminOrderListFilter{}, "invalid user_id"
	}
	from, ok := queryDatePtr(c, "from")
	if !ok {
		return repo.AdminOrderListFilter{}, "invalid from"
	}
	to, ok := queryDatePtr(c, "to")
	if !ok {
		return repo.AdminOrderListFilter{}, "invalid to"
	}

	return repo.AdminOrderListFilter{
		Page:   page,
		Limit:  limit,
		Status: c.QueryParam("status"),
		UserID: userID,
		From:   from,
		To:     to,
	}, ""
}

func (h *AdminOrderHandler) list(c echo.Context) error {
	f, msg := parseAdminFilter(c)
	if msg != "" {
		return badRequest(c, msg)
	}

	out, err := h.uc.List(c.Request().Context(), f)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *AdminOrderHandler) stats(c echo.Context) error {
	f, msg := parseAdminFilter(c)
	if msg != "" {
		return badRequest(c, msg)
	}

	out, err := h.uc.Stats(c.Request().Context(), f)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *AdminOrderHandler) auditLogs(c echo.Context) error {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}
	limit, ok := queryInt(c, "limit", 50)
	if !ok {
		return badRequest(c, "invalid limit")
	}
	offset, ok := queryInt(c, "offset", 0)
	if !ok {
		return badRequest(c, "invalid offset")
	}

	actor, ok := queryInt64Ptr(c, "actor_user_id")
	if !ok {
		return badRequest(c, "invalid actor_user_id")
	}
	from, ok := queryDatePtr(c, "from")
	if !ok {
		return badRequest(c, "invalid from")
	}
	to, ok := queryDatePtr(c, "to")
	if !ok {
		return badRequest(c, "invalid to")
	}

	out, err := h.uc.AuditLogs(c.Request().Context(), id, usecase.AuditLogQuery{
		Action:      c.QueryParam("action"),
		ActorUserID: actor,
		From:        from,
		To:          to,
		Limit:       limit,
		Offset:      offset,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}
