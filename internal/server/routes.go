package server

import (
	"net/http"

	"marketplace/internal/handler"

	"github.com/labstack/echo/v4"
)

type Handlers struct {
	Orders        *handler.OrderHandler
	Bookings      *handler.BookingHandler
	DeliverySlots *handler.DeliverySlotHandler
	AdminOrders   *handler.AdminOrderHandler
	Producer      *handler.ProducerHandler
}

func RegisterRoutes(e *echo.Echo, h Handlers, auth echo.MiddlewareFunc) {
	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, handler.SuccessResponse{Message: "ok"})
	})

	h.Orders.RegisterRoutes(e, auth)
	h.Bookings.RegisterRoutes(e, auth)
	h.DeliverySlots.RegisterRoutes(e, auth)
	h.AdminOrders.RegisterRoutes(e, auth)
	h.Producer.RegisterRoutes(e, auth)
}
