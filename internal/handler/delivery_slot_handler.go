package handler

import (
	"net/http"

	"marketplace/internal/domain/model"
	"marketplace/internal/middleware"
	"marketplace/internal/usecase"

	"github.com/labstack/echo/v4"
)

type DeliverySlotHandler struct {
	uc *usecase.DeliverySlotUsecase
}

func NewDeliverySlotHandler(uc *usecase.DeliverySlotUsecase) *DeliverySlotHandler {
	return &DeliverySlotHandler{uc: uc}
}

type CreateSlotRequest struct {
	ProductID   int64  `json:"product_id"`
	Date        string `json:"date"`
	MaxCapacity int64  `json:"max_capacity"`
}

type UpdateSlotRequest struct {
	MaxCapacity int64 `json:"max_capacity"`
}

func (h *DeliverySlotHandler) RegisterRoutes(e *echo.Echo, auth echo.MiddlewareFunc) {
	g := e.Group("/delivery-slots")
	g.Use(auth)

	g.GET("", h.listAvailable)
	g.POST("/cleanup", h.cleanup)

	producer := middleware.RoleGuard(model.RoleProducer, model.RoleAdmin)
	g.GET("/overview", h.overview, producer)
	g.POST("", h.create, producer)
	g.PATCH("/:id", h.updateCapacity, producer)
	g.DELETE("/:id", h.delete, producer)
}

func (h *DeliverySlotHandler) listAvailable(c echo.Context) error {
	productID, ok := queryInt64Ptr(c, "product_id")
	if !ok || productID == nil {
		return badRequest(c, "invalid product_id")
	}

	out, err := h.uc.ListAvailable(c.Request().Context(), *productID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *DeliverySlotHandler) overview(c echo.Context) error {
	actor, ok := actorFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	productID, ok := queryInt64Ptr(c, "product_id")
	if !ok {
		return badRequest(c, "invalid product_id")
	}
	from, ok := queryDatePtr(c, "from")
	if !ok {
		return badRequest(c, "invalid from")
	}
	to, ok := queryDatePtr(c, "to")
	if !ok {
		return badRequest(c, "invalid to")
	}

	out, err := h.uc.Overview(c.Request().Context(), actor, usecase.SlotOverviewFilter{
		ProductID: productID,
		From:      from,
		To:        to,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *DeliverySlotHandler) create(c echo.Context) error {
	actor, ok := actorFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	var req CreateSlotRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}

	in := usecase.CreateSlotInput{ProductID: req.ProductID, MaxCapacity: req.MaxCapacity}
	if req.Date != "" {
		d, err := parseDate(req.Date)
		if err != nil {
			return c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
				Error:  "validation failed",
				Kind:   string(usecase.KindValidationFailed),
				Fields: map[string]string{"date": "invalid date"},
			})
		}
		in.Date = d
	}

	out, err := h.uc.Create(c.Request().Context(), actor, in)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, out)
}

func (h *DeliverySlotHandler) updateCapacity(c echo.Context) error {
	actor, ok := actorFromContext(c)
	if !ok {
		return unauthorized(c)
	}
	id, ok := parseIDParam(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}

	var req UpdateSlotRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}

	out, err := h.uc.UpdateCapacity(c.Request().Context(), actor, id, req.MaxCapacity)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *DeliverySlotHandler) delete(c echo.Context) error {
	actor, ok := actorFromContext(c)
	if !ok {
		return unauthorized(c)
	}
	id, ok := parseIDParam(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}

	if err := h.uc.Delete(c.Request().Context(), actor, id); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, SuccessResponse{Message: "deleted"})
}

func (h *DeliverySlotHandler) cleanup(c echo.Context) error {
	res, err := h.uc.Cleanup(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}
