// Package v1 provides the HTTP handlers of the question generator API.
package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/johnmikel306/learntrack-sub002/internal/domain"
	"github.com/johnmikel306/learntrack-sub002/internal/platform/logger"
	"github.com/johnmikel306/learntrack-sub002/internal/service"
)

// BasePath is the prefix of every generator route.
const BasePath = "/api/v1/question-generator"

// Handler handles HTTP requests.
type Handler struct {
	service *service.Service
	log     *logger.Logger
}

// NewHandler creates a new handler.
func NewHandler(service *service.Service, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Nop()
	}
	return &Handler{
		service: service,
		log:     log.With("component", "http.v1"),
	}
}

// RegisterRoutes registers the generator routes. Middleware such as
// authentication applies to the generator group only.
func (h *Handler) RegisterRoutes(e *echo.Echo, mw ...echo.MiddlewareFunc) {
	g := e.Group(BasePath, mw...)

	// Generation stream
	g.POST("/generate", h.Generate)

	// Session history and review
	g.GET("/sessions-with-questions", h.ListSessions)
	g.GET("/sessions/:session_id", h.GetSession)
	g.DELETE("/sessions/:session_id", h.DeleteSession)
	g.POST("/sessions/:session_id/questions/:question_id/approve", h.ApproveQuestion)
	g.POST("/sessions/:session_id/questions/:question_id/reject", h.RejectQuestion)
	g.PUT("/sessions/:session_id/questions/:question_id", h.UpdateQuestion)

	// Reference materials
	g.POST("/materials", h.CreateMaterial)
	g.GET("/materials/:material_id", h.GetMaterial)

	e.GET("/health", h.Health)
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": "0.1.0",
	})
}

type errorResponse struct {
	Error  string              `json:"error"`
	Code   string              `json:"code"`
	Fields []domain.FieldError `json:"fields,omitempty"`
}

// writeError maps service errors onto status codes.
func (h *Handler) writeError(c echo.Context, err error) error {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		return c.JSON(http.StatusBadRequest, errorResponse{Error: verr.Err.Error(), Code: "validation_error", Fields: verr.Fields})
	case errors.Is(err, domain.ErrSessionNotFound),
		errors.Is(err, domain.ErrQuestionNotFound),
		errors.Is(err, service.ErrMaterialNotFound):
		return c.JSON(http.StatusNotFound, errorResponse{Error: err.Error(), Code: "not_found"})
	case errors.Is(err, service.ErrConflict):
		return c.JSON(http.StatusConflict, errorResponse{Error: err.Error(), Code: "conflict"})
	case errors.Is(err, service.ErrPolicyDenied):
		return c.JSON(http.StatusUnprocessableEntity, errorResponse{Error: err.Error(), Code: "policy_denied"})
	}
	h.log.Error("request failed", "method", c.Request().Method, "path", c.Path(), "error", err)
	return c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal error", Code: "internal"})
}
