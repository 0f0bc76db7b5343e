package handler

import (
	"net/http"

	"orderflow/internal/config"
	"orderflow/internal/middleware"
	"orderflow/internal/usecase"

	"github.com/labstack/echo/v4"
)

// 決済ゲートウェイのコールバック窓口。
// 本物のゲートウェイ連携では署名検証になるが、ここではJWT必須のAPIとして受ける。
type PaymentHandler struct {
	uc *usecase.OrderUsecase
}

func NewPaymentHandler(uc *usecase.OrderUsecase) *PaymentHandler {
	return &PaymentHandler{uc: uc}
}

func (h *PaymentHandler) RegisterRoutes(e *echo.Echo, cfg config.Config) {
	g := e.Group("/payments")
	g.Use(middleware.AuthJWT(cfg))

	g.POST("/:order_id/success", h.success)
	g.POST("/:order_id/failure", h.failure)
}

func (h *PaymentHandler) success(c echo.Context) error {
	if err := h.uc.CompletePaymentSuccess(c.Request().Context(), c.Param("order_id")); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, SuccessResponse{Message: "paid"})
}

func (h *PaymentHandler) failure(c echo.Context) error {
	if err := h.uc.CompletePaymentFailure(c.Request().Context(), c.Param("order_id")); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, SuccessResponse{Message: "failed"})
}
