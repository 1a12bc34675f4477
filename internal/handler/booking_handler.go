package handler

import (
	"net/http"

	"marketplace/internal/usecase"

	"github.com/labstack/echo/v4"
)

// 配送枠の予約（DRAFTの予約行）
type BookingHandler struct {
	cart  *usecase.CartUsecase
	slots *usecase.DeliverySlotUsecase
}

func NewBookingHandler(cart *usecase.CartUsecase, slots *usecase.DeliverySlotUsecase) *BookingHandler {
	return &BookingHandler{cart: cart, slots: slots}
}

type AddBookingRequest struct {
	DeliverySlotID int64 `json:"delivery_slot_id"`
	Quantity       int64 `json:"quantity"`
}

func (h *BookingHandler) RegisterRoutes(e *echo.Echo, auth echo.MiddlewareFunc) {
	g := e.Group("/bookings")
	g.Use(auth)

	g.POST("", h.create)
	g.DELETE("/:id", h.cancel)
	g.POST("/cleanup", h.cleanup)
}

func (h *BookingHandler) create(c echo.Context) error {
	actor, ok := actorFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	var req AddBookingRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	if req.DeliverySlotID <= 0 {
		return badRequest(c, "invalid delivery_slot_id")
	}

	out, err := h.cart.AddBooking(c.Request().Context(), actor, usecase.AddBookingInput{
		DeliverySlotID: req.DeliverySlotID,
		Quantity:       req.Quantity,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *BookingHandler) cancel(c echo.Context) error {
	actor, ok := actorFromContext(c)
	if !ok {
		return unauthorized(c)
	}
	id, ok := parseIDParam(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}

	out, err := h.cart.CancelBooking(c.Request().Context(), actor, id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

// 放置DRAFTの回収。失敗してもログだけで200を返す。
func (h *BookingHandler) cleanup(c echo.Context) error {
	if _, ok := actorFromContext(c); !ok {
		return unauthorized(c)
	}

	res, err := h.slots.Cleanup(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}
