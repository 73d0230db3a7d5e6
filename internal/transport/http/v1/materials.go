package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/johnmikel306/learntrack-sub002/internal/domain"
)

func (h *Handler) CreateMaterial(c echo.Context) error {
	var m domain.Material
	if err := c.Bind(&m); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body", Code: "bad_request"})
	}
	created, err := h.service.CreateMaterial(c.Request().Context(), m)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusCreated, created)
}

func (h *Handler) GetMaterial(c echo.Context) error {
	m, err := h.service.GetMaterial(c.Request().Context(), c.Param("material_id"))
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, m)
}
