package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/johnmikel306/learntrack-sub002/internal/domain"
)

// ListSessions returns the session history with embedded questions.
func (h *Handler) ListSessions(c echo.Context) error {
	sessions, err := h.service.ListSessions(c.Request().Context())
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"sessions": sessions})
}

func (h *Handler) GetSession(c echo.Context) error {
	session, err := h.service.GetSession(c.Request().Context(), c.Param("session_id"))
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, session)
}

func (h *Handler) DeleteSession(c echo.Context) error {
	if err := h.service.DeleteSession(c.Request().Context(), c.Param("session_id")); err != nil {
		return h.writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ApproveQuestion(c echo.Context) error {
	q, err := h.service.ApproveQuestion(c.Request().Context(), c.Param("session_id"), c.Param("question_id"))
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, q)
}

func (h *Handler) RejectQuestion(c echo.Context) error {
	q, err := h.service.RejectQuestion(c.Request().Context(), c.Param("session_id"), c.Param("question_id"))
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, q)
}

// UpdateQuestion applies an edit. Only the fields present in the body change.
func (h *Handler) UpdateQuestion(c echo.Context) error {
	var patch domain.QuestionPatch
	if err := c.Bind(&patch); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body", Code: "bad_request"})
	}
	q, err := h.service.UpdateQuestion(c.Request().Context(), c.Param("session_id"), c.Param("question_id"), patch)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, q)
}
