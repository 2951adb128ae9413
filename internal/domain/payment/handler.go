package payment

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/deeptb/api/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(g *echo.Group, authMW echo.MiddlewareFunc) {
	grp := g.Group("/payment", authMW, auth.RequireRole(auth.RolePatient))
	grp.POST("/order", h.createOrder)
	grp.POST("/capture/:orderId", h.captureOrder)
	grp.POST("/create-and-capture-order", h.createAndCaptureOrder)
}

func (h *Handler) createOrder(c echo.Context) error {
	order, err := h.svc.CreateConsultationOrder(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]any{
		"success": true,
		"status":  "order-created",
		"id":      order.ID,
		"links":   order.Links,
	})
}

func (h *Handler) captureOrder(c echo.Context) error {
	orderID := c.Param("orderId")
	capture, err := h.svc.CaptureConsultationOrder(c.Request().Context(), orderID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]any{
		"success": true,
		"status":  "success",
		"capture": capture,
	})
}

func (h *Handler) createAndCaptureOrder(c echo.Context) error {
	orderID, capture, err := h.svc.CreateAndCaptureConsultationOrder(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]any{
		"success": true,
		"status":  "success",
		"orderId": orderID,
		"capture": capture,
	})
}
