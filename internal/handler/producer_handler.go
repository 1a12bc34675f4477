package handler

import (
	"fmt"
	"net/http"
	"strings"

	"marketplace/internal/domain/model"
	"marketplace/internal/middleware"
	"marketplace/internal/usecase"

	"github.com/labstack/echo/v4"
)

// 出品者向けの売上レポート
type ProducerHandler struct {
	uc *usecase.ProducerRevenueUsecase
}

func NewProducerHandler(uc *usecase.ProducerRevenueUsecase) *ProducerHandler {
	return &ProducerHandler{uc: uc}
}

func (h *ProducerHandler) RegisterRoutes(e *echo.Echo, auth echo.MiddlewareFunc) {
	g := e.Group("/producer")
	g.Use(auth)
	g.Use(middleware.RoleGuard(model.RoleProducer, model.RoleAdmin))

	g.GET("/revenue", h.revenue)
}

func (h *ProducerHandler) revenue(c echo.Context) error {
	actor, ok := actorFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	from, ok := queryDatePtr(c, "from")
	if !ok {
		return badRequest(c, "invalid from")
	}
	to, ok := queryDatePtr(c, "to")
	if !ok {
		return badRequest(c, "invalid to")
	}

	rep, err := h.uc.Report(c.Request().Context(), actor, from, to)
	if err != nil {
		return writeError(c, err)
	}

	if strings.EqualFold(c.QueryParam("format"), "csv") {
		b, err := rep.CSV()
		if err != nil {
			return writeError(c, err)
		}
		c.Response().Header().Set(echo.HeaderContentDisposition,
			fmt.Sprintf(`attachment; filename="revenue-%d.csv"`, rep.ProducerID))
		return c.Blob(http.StatusOK, "text/csv; charset=utf-8", b)
	}
	return c.JSON(http.StatusOK, rep)
}
